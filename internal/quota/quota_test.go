// Package quota tests cover reservation and clamping behavior.
package quota

import (
	"sync"
	"testing"
)

// TestReserveCommit applies the actual delta and frees the hold.
func TestReserveCommit(t *testing.T) {
	m := NewManager()
	m.SetLimit("alice", 100)

	res, err := m.Reserve("alice", 60)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	// Held bytes count against further reservations.
	if _, err := m.Reserve("alice", 50); err != ErrQuotaExceeded {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if got := res.Commit(60); got != 60 {
		t.Fatalf("Commit = %d, want 60", got)
	}
	if got := m.Used("alice"); got != 60 {
		t.Fatalf("Used = %d, want 60", got)
	}
	// Hold is gone; 40 more fit.
	if _, err := m.Reserve("alice", 40); err != nil {
		t.Fatalf("Reserve after commit: %v", err)
	}
}

// TestReserveRelease frees the hold without touching usage.
func TestReserveRelease(t *testing.T) {
	m := NewManager()
	m.SetLimit("alice", 10)
	res, err := m.Reserve("alice", 10)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	res.Release()
	if got := m.Used("alice"); got != 0 {
		t.Fatalf("Used = %d, want 0", got)
	}
	if _, err := m.Reserve("alice", 10); err != nil {
		t.Fatalf("Reserve after release: %v", err)
	}
}

// TestZeroLimitIsUnlimited allows any reservation when limit is 0.
func TestZeroLimitIsUnlimited(t *testing.T) {
	m := NewManager()
	res, err := m.Reserve("bob", 1<<40)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	res.Commit(1 << 40)
}

// TestAdjustClampsAtZero never lets usage go negative.
func TestAdjustClampsAtZero(t *testing.T) {
	m := NewManager()
	m.SetUsed("alice", 5)
	if got := m.Adjust("alice", -50); got != 0 {
		t.Fatalf("Adjust = %d, want 0", got)
	}
}

// TestConcurrentReserves never overshoots the limit.
func TestConcurrentReserves(t *testing.T) {
	m := NewManager()
	m.SetLimit("alice", 100)

	var wg sync.WaitGroup
	granted := make(chan int64, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := m.Reserve("alice", 10)
			if err != nil {
				return
			}
			granted <- 10
			res.Commit(10)
		}()
	}
	wg.Wait()
	close(granted)

	var total int64
	for n := range granted {
		total += n
	}
	if total > 100 {
		t.Fatalf("granted %d bytes over a 100-byte limit", total)
	}
	if got := m.Used("alice"); got != total {
		t.Fatalf("Used = %d, want %d", got, total)
	}
}
