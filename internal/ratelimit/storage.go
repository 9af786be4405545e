// Package ratelimit implements per-client sliding-window rate limiting.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Storage is the sliding-window primitive the limiter runs on. Count evicts
// entries older than the window and returns how many remain; Add records one
// request at the given instant. Implementations must be safe for concurrent
// use.
type Storage interface {
	Count(ctx context.Context, clientID string, now time.Time) (int, error)
	Add(ctx context.Context, clientID string, now time.Time) error
}

// MemoryStorage keeps per-client request timestamps in process memory.
// It is the default backend: all limiter state lives and dies with the
// process.
type MemoryStorage struct {
	window  time.Duration
	mu      sync.Mutex
	windows map[string][]time.Time
}

// NewMemoryStorage creates an in-process sliding window storage.
func NewMemoryStorage(window time.Duration) *MemoryStorage {
	return &MemoryStorage{
		window:  window,
		windows: make(map[string][]time.Time),
	}
}

// Count evicts timestamps older than the window and returns the remaining count.
func (m *MemoryStorage) Count(_ context.Context, clientID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.windows[clientID]
	cutoff := now.Add(-m.window)

	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) == 0 {
		delete(m.windows, clientID)
		return 0, nil
	}

	m.windows[clientID] = kept
	return len(kept), nil
}

// Add records a request timestamp for the client.
func (m *MemoryStorage) Add(_ context.Context, clientID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.windows[clientID] = append(m.windows[clientID], now)
	return nil
}
