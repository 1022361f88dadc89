package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOnlineTable(t *testing.T) {
	tab := newOnlineTable()

	require.False(t, tab.isOnline("alice"))
	require.Equal(t, 0, tab.count())

	tab.login("alice")
	tab.login("bob")
	require.True(t, tab.isOnline("alice"))
	require.Equal(t, 2, tab.count())
	require.Equal(t, []string{"alice", "bob"}, tab.snapshot())

	tab.logout("alice")
	require.False(t, tab.isOnline("alice"))
	require.Equal(t, []string{"bob"}, tab.snapshot())

	// Logging out a user twice never leaves a negative count behind.
	tab.logout("alice")
	tab.login("alice")
	require.True(t, tab.isOnline("alice"))
}

func TestOnlineTableMultiset(t *testing.T) {
	tab := newOnlineTable()
	tab.login("alice")
	tab.login("alice")
	require.Equal(t, 1, tab.count())

	tab.logout("alice")
	require.True(t, tab.isOnline("alice"))
	tab.logout("alice")
	require.False(t, tab.isOnline("alice"))
}
