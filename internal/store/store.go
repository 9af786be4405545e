// Package store keeps session durations in per-day buckets with best-effort
// JSON snapshot persistence.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"stillness-api/internal/domain"
)

// ErrDailyLimit is returned when a day's bucket already holds the maximum
// number of sessions. The bucket is not mutated.
var ErrDailyLimit = errors.New("daily session limit reached")

// Store maps calendar-date keys to ordered session durations. Buckets grow
// only by append; day rollover is implicit in the date key.
type Store struct {
	mu       sync.RWMutex
	sessions map[string][]int
}

// New creates an empty store.
func New() *Store {
	return &Store{sessions: make(map[string][]int)}
}

// Append records a duration under the date key. It returns a copy of the
// prior durations for that day (the comparison set for scoring, excluding
// the new session) and the bucket size after the append. ErrDailyLimit is
// returned, with no mutation, when the bucket is full.
func (s *Store) Append(dateKey string, duration int) (priors []int, todayCount int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.sessions[dateKey]
	if len(bucket) >= domain.MaxSessionsPerDay {
		return nil, len(bucket), ErrDailyLimit
	}

	priors = append([]int(nil), bucket...)
	s.sessions[dateKey] = append(bucket, duration)

	return priors, len(bucket) + 1, nil
}

// DayCount returns the number of sessions recorded for the date key.
func (s *Store) DayCount(dateKey string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[dateKey])
}

// TotalSessions returns the number of sessions across all days.
func (s *Store) TotalSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, bucket := range s.sessions {
		total += len(bucket)
	}
	return total
}

// DayStats aggregates the bucket for one date key.
func (s *Store) DayStats(dateKey string) domain.PeriodStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return aggregate(s.sessions[dateKey])
}

// AllTimeStats aggregates every recorded session.
func (s *Store) AllTimeStats() domain.PeriodStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []int
	for _, bucket := range s.sessions {
		all = append(all, bucket...)
	}
	return aggregate(all)
}

func aggregate(durations []int) domain.PeriodStats {
	stats := domain.PeriodStats{Sessions: len(durations)}
	if len(durations) == 0 {
		return stats
	}

	sum := 0
	for _, d := range durations {
		sum += d
		if d > stats.Longest {
			stats.Longest = d
		}
	}
	// Average rounded to one decimal place.
	stats.Average = math.Round(float64(sum)/float64(len(durations))*10) / 10
	return stats
}

// Snapshot serializes the whole store to path as a single JSON object
// mapping date keys to duration arrays. The write is best-effort: the
// caller logs failures and the in-memory state stays authoritative.
func (s *Store) Snapshot(path string) error {
	s.mu.RLock()
	data, err := json.Marshal(s.sessions)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to serialize sessions: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}
	return nil
}

// Load replaces the store contents from a snapshot file. A missing file is
// not an error; the store simply starts empty.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}

	sessions := make(map[string][]int)
	if err := json.Unmarshal(data, &sessions); err != nil {
		return fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}

	s.mu.Lock()
	s.sessions = sessions
	s.mu.Unlock()
	return nil
}
