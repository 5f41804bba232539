package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time // zero = never
}

// DefaultSweepInterval is how often Set scans for expired entries.
const DefaultSweepInterval = time.Minute

// Memory is an in-process Cache with per-entry TTL.
// Expired entries are dropped on read, and Set sweeps the whole map at
// most once per sweep interval so keys that are never read again do not
// accumulate.
type Memory struct {
	mu            sync.Mutex
	data          map[string]entry
	now           func() time.Time
	sweepInterval time.Duration
	nextSweep     time.Time
}

var _ Cache = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		data:          make(map[string]entry),
		now:           time.Now,
		sweepInterval: DefaultSweepInterval,
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.data[key]
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.data, key)
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores value. A ttl <= 0 keeps the entry until overwritten.
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.After(m.nextSweep) {
		m.sweep(now)
		m.nextSweep = now.Add(m.sweepInterval)
	}

	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	m.data[key] = e
	return nil
}

// sweep removes expired entries. Caller holds mu.
func (m *Memory) sweep(now time.Time) {
	for key, e := range m.data {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(m.data, key)
		}
	}
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}
