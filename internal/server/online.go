package server

import (
	"sort"
	"sync"
)

// onlineTable is the multiset of logged-in usernames. A user with two
// sockets would count twice, but AUTH refuses a second login while the
// first is still counted, so in practice counts stay at one.
type onlineTable struct {
	mu    sync.Mutex
	users map[string]int
}

func newOnlineTable() *onlineTable {
	return &onlineTable{users: make(map[string]int)}
}

func (t *onlineTable) login(user string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.users[user]++
}

func (t *onlineTable) logout(user string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.users[user]--
	if t.users[user] <= 0 {
		delete(t.users, user)
	}
}

func (t *onlineTable) isOnline(user string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.users[user] > 0
}

func (t *onlineTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.users)
}

// snapshot returns the distinct online usernames, sorted.
func (t *onlineTable) snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.users))
	for u := range t.users {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
