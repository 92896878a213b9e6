package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryCounters is a process-local CounterStore used when no Redis URL is
// configured. Counts are not shared across gateway instances.
type MemoryCounters struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	n       int64
	expires time.Time
}

func NewMemoryCounters() *MemoryCounters {
	return &MemoryCounters{
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

func (m *MemoryCounters) IncrWindow(_ context.Context, key string, ttl time.Duration) (int64, error) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Dead buckets from past windows accumulate between hits on the same
	// key, so sweep them out at most once a minute.
	if now.Sub(m.lastSweep) > time.Minute {
		for k, b := range m.buckets {
			if now.After(b.expires) {
				delete(m.buckets, k)
			}
		}
		m.lastSweep = now
	}

	b, ok := m.buckets[key]
	if !ok || now.After(b.expires) {
		b = &bucket{}
		m.buckets[key] = b
	}
	b.n++
	b.expires = now.Add(ttl)
	return b.n, nil
}
