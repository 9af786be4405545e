// Package service composes the session store, scoring and persistence into
// the submit/stats operations exposed over HTTP.
package service

import (
	"context"

	"stillness-api/internal/domain"
)

// SessionService is the application-facing contract for session handling.
type SessionService interface {
	// Start rehydrates the store from the snapshot file, if present.
	Start(ctx context.Context) error
	// Stop writes a final best-effort snapshot.
	Stop(ctx context.Context) error

	// Submit validates and records a session, returning the percentile
	// feedback. Validation and daily-limit failures come back as AppError.
	Submit(ctx context.Context, clientID string, req *domain.SessionRequest) (*domain.SessionResponse, error)

	Home() *domain.HomeResponse
	Stats() *domain.StatsResponse
}
