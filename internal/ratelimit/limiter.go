package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Defaults for the request window.
const (
	MaxRequestsPerWindow = 10
	Window               = time.Minute
)

// Result is the outcome of an admission check.
type Result struct {
	Allowed   bool
	Count     int
	Remaining int
}

// Limiter admits or rejects requests by counting timestamps in a trailing
// window per client identifier. Rejected requests are not recorded, so a
// client that backs off for a full window is admitted again.
type Limiter struct {
	storage Storage
	limit   int
	now     func() time.Time

	// mu serializes the count-then-record pair so concurrent requests at
	// the boundary cannot both observe a count below the limit.
	mu sync.Mutex
}

// New creates a limiter over the given storage. now may be nil, in which
// case time.Now is used.
func New(storage Storage, limit int, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{storage: storage, limit: limit, now: now}
}

// Admit checks the client's window and records the request when admitted.
func (l *Limiter) Admit(ctx context.Context, clientID string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	count, err := l.storage.Count(ctx, clientID, now)
	if err != nil {
		return Result{}, err
	}

	if count >= l.limit {
		return Result{Allowed: false, Count: count, Remaining: 0}, nil
	}

	if err := l.storage.Add(ctx, clientID, now); err != nil {
		return Result{}, err
	}

	return Result{Allowed: true, Count: count + 1, Remaining: l.limit - count - 1}, nil
}
