// Package domain holds the core types shared across the stillness API.
package domain

import "encoding/json"

// Session limits. These are fixed by design, not externally configurable.
const (
	MinSessionDuration = 1     // seconds
	MaxSessionDuration = 14400 // 4 hours in seconds
	MaxSessionsPerDay  = 100
)

// DateKeyFormat is the calendar-date key used for daily buckets,
// e.g. "2024-01-15".
const DateKeyFormat = "2006-01-02"

// SessionRequest is the inbound payload for POST /api/session.
// Duration is kept raw so validation can distinguish a missing field,
// a non-numeric value and an out-of-range one.
type SessionRequest struct {
	Duration  json.RawMessage `json:"duration"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// SessionResponse is returned after a successful submission.
type SessionResponse struct {
	Message       string `json:"message"`
	Duration      int    `json:"duration"`
	Percentile    int    `json:"percentile"`
	SessionsToday int    `json:"sessions_today"`
	TotalSessions int    `json:"total_sessions"`
}

// HomeResponse is the health/summary payload for GET /.
type HomeResponse struct {
	Status        string  `json:"status"`
	TodaySessions int     `json:"today_sessions"`
	TotalSessions int     `json:"total_sessions"`
	AverageToday  float64 `json:"average_today"`
}

// PeriodStats aggregates one window of sessions.
type PeriodStats struct {
	Sessions int     `json:"sessions"`
	Average  float64 `json:"average"`
	Longest  int     `json:"longest"`
}

// StatsResponse is the payload for GET /api/stats.
type StatsResponse struct {
	Today   PeriodStats `json:"today"`
	AllTime PeriodStats `json:"all_time"`
}
