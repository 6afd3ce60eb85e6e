// Package presence tracks online/offline state and last-seen
// timestamps for connected users. A user is online while it has at
// least one active connection.
package presence

import (
	"sync"
	"time"
)

// Tracker refcounts active connections per user. It is safe for
// concurrent use.
type Tracker struct {
	mu       sync.RWMutex
	conns    map[uint]int
	lastSeen map[uint]time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		conns:    make(map[uint]int),
		lastSeen: make(map[uint]time.Time),
	}
}

// ConnOpened records a new connection for a user and reports whether
// it is the user's first active connection (the online transition).
func (t *Tracker) ConnOpened(userID uint) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.conns[userID]++
	t.lastSeen[userID] = time.Now().UTC()
	return t.conns[userID] == 1
}

// ConnClosed records a closed connection and reports whether it was
// the user's last active connection (the offline transition).
func (t *Tracker) ConnClosed(userID uint) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conns[userID] == 0 {
		return false
	}
	t.conns[userID]--
	t.lastSeen[userID] = time.Now().UTC()
	if t.conns[userID] > 0 {
		return false
	}
	delete(t.conns, userID)
	return true
}

// Touch updates the user's last-seen timestamp without changing
// online state.
func (t *Tracker) Touch(userID uint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSeen[userID] = time.Now().UTC()
}

func (t *Tracker) IsOnline(userID uint) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conns[userID] > 0
}

func (t *Tracker) LastSeen(userID uint) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ts, ok := t.lastSeen[userID]
	return ts, ok
}

// OnlineUsers returns a snapshot of all users with at least one
// active connection.
func (t *Tracker) OnlineUsers() []uint {
	t.mu.RLock()
	defer t.mu.RUnlock()

	users := make([]uint, 0, len(t.conns))
	for userID := range t.conns {
		users = append(users, userID)
	}
	return users
}
