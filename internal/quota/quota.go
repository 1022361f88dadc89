// Package quota tracks per-user storage usage in memory.
//
// Transfers that grow a user's tree reserve their worst-case delta up
// front; the reservation is committed with the actual signed delta once
// the bytes are on disk, or released on failure. Check and reserve
// happen under one lock so concurrent uploads cannot overshoot the
// limit between the check and the adjustment.
package quota

import (
	"errors"
	"sync"
)

// ErrQuotaExceeded is returned when a reservation would push a user
// past their limit.
var ErrQuotaExceeded = errors.New("quota exceeded")

type entry struct {
	limit int64 // 0 means unlimited
	used  int64
	held  int64 // reserved but not yet committed
}

// Manager holds the usage table for all users under a single mutex.
type Manager struct {
	mu    sync.Mutex
	users map[string]*entry
}

func NewManager() *Manager {
	return &Manager{users: make(map[string]*entry)}
}

func (m *Manager) get(user string) *entry {
	e, ok := m.users[user]
	if !ok {
		e = &entry{}
		m.users[user] = e
	}
	return e
}

// SetLimit sets the user's limit in bytes. Zero means unlimited.
func (m *Manager) SetLimit(user string, limit int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.get(user).limit = limit
}

// SetUsed overwrites the user's usage with the persisted value. Called
// at login time so the cache starts from the database's truth.
func (m *Manager) SetUsed(user string, used int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if used < 0 {
		used = 0
	}
	m.get(user).used = used
}

// Used returns the user's current usage in bytes.
func (m *Manager) Used(user string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(user).used
}

// Adjust applies a signed delta to the user's usage, clamping at zero,
// and returns the new value.
func (m *Manager) Adjust(user string, delta int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.get(user)
	e.used += delta
	if e.used < 0 {
		e.used = 0
	}
	return e.used
}

// Reservation is a held allocation produced by Reserve. Exactly one of
// Commit or Release must be called.
type Reservation struct {
	mgr    *Manager
	user   string
	amount int64
	done   bool
}

// Reserve atomically checks that amount more bytes fit under the
// user's limit and holds them. A non-positive amount always succeeds
// and holds nothing.
func (m *Manager) Reserve(user string, amount int64) (*Reservation, error) {
	if amount < 0 {
		amount = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.get(user)
	if e.limit != 0 && e.used+e.held+amount > e.limit {
		return nil, ErrQuotaExceeded
	}
	e.held += amount
	return &Reservation{mgr: m, user: user, amount: amount}, nil
}

// Commit releases the hold and applies the actual signed delta,
// clamping at zero. It returns the user's new usage.
func (r *Reservation) Commit(delta int64) int64 {
	r.mgr.mu.Lock()
	defer r.mgr.mu.Unlock()
	e := r.mgr.get(r.user)
	if !r.done {
		e.held -= r.amount
		r.done = true
	}
	e.used += delta
	if e.used < 0 {
		e.used = 0
	}
	return e.used
}

// Release drops the hold without changing usage.
func (r *Reservation) Release() {
	r.mgr.mu.Lock()
	defer r.mgr.mu.Unlock()
	if r.done {
		return
	}
	r.mgr.get(r.user).held -= r.amount
	r.done = true
}
