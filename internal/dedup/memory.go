package dedup

import (
	"context"
	"sync"
	"time"
)

// Memory is the single-instance alert state store. All transitions for a key
// happen under one mutex, so check-and-set is atomic.
type Memory struct {
	cooldown time.Duration

	mu        sync.Mutex
	lastAlert map[Key]time.Time
}

// NewMemory builds an in-memory store with the given cooldown window.
func NewMemory(cooldown time.Duration) *Memory {
	return &Memory{
		cooldown:  cooldown,
		lastAlert: make(map[Key]time.Time),
	}
}

// Transition implements Store.
func (m *Memory) Transition(ctx context.Context, key Key, belowThreshold bool, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !belowThreshold {
		// Recovery: clear outstanding state so the next drop re-alerts.
		delete(m.lastAlert, key)
		return false, nil
	}

	last, alerted := m.lastAlert[key]
	if alerted && now.Sub(last) < m.cooldown {
		return false, nil
	}

	m.lastAlert[key] = now
	return true, nil
}

// Len reports the number of keys currently in the Alerted state.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lastAlert)
}

var _ Store = (*Memory)(nil)
