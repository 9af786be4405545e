package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"stillness-api/internal/domain"
	"stillness-api/internal/scoring"
	"stillness-api/internal/security"
	"stillness-api/internal/store"
	apperrors "stillness-api/pkg/errors"
	"stillness-api/pkg/logger"
)

// sessionService records sessions, scores them against the day's bucket and
// snapshots the store after every successful submission.
type sessionService struct {
	store    *store.Store
	tracker  *security.Tracker
	logger   *logger.Logger
	dataFile string
	now      func() time.Time

	mu        sync.Mutex
	isRunning bool
}

// NewSessionService creates a session service. now may be nil.
func NewSessionService(st *store.Store, tracker *security.Tracker, log *logger.Logger, dataFile string, now func() time.Time) SessionService {
	if now == nil {
		now = time.Now
	}
	return &sessionService{
		store:    st,
		tracker:  tracker,
		logger:   log,
		dataFile: dataFile,
		now:      now,
	}
}

// Start rehydrates the store from the snapshot file. A read failure is
// logged and the service starts with empty state.
func (s *sessionService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if err := s.store.Load(s.dataFile); err != nil {
		s.logger.WithError(err).Warn("Could not load session data, starting empty")
	} else {
		s.logger.WithField("total_sessions", s.store.TotalSessions()).Info("Loaded session data from snapshot")
	}

	s.isRunning = true
	return nil
}

// Stop writes a final snapshot. Failure is logged, never returned as fatal.
func (s *sessionService) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	if err := s.store.Snapshot(s.dataFile); err != nil {
		s.logger.WithError(err).Error("Failed to write final session snapshot")
	}

	s.isRunning = false
	return nil
}

// Submit validates the payload, appends to the day's bucket and returns the
// percentile feedback. The comparison set excludes the new session itself.
func (s *sessionService) Submit(ctx context.Context, clientID string, req *domain.SessionRequest) (*domain.SessionResponse, error) {
	now := s.now()

	duration, at, reason := validateSession(req, now)
	if reason != "" {
		s.tracker.Record(clientID, domain.EventInvalidData, reason, domain.SeverityWarning)
		return nil, apperrors.NewValidationError(reason)
	}

	dateKey := at.Format(domain.DateKeyFormat)

	priors, todayCount, err := s.store.Append(dateKey, duration)
	if err != nil {
		if errors.Is(err, store.ErrDailyLimit) {
			s.tracker.Record(clientID, domain.EventDailyLimitExceeded,
				"daily session limit reached", domain.SeverityWarning)
			return nil, apperrors.NewDailyLimitError("Daily session limit reached. Try again tomorrow.")
		}
		return nil, apperrors.NewInternalError("Internal server error", err)
	}

	percentile := scoring.Percentile(duration, priors)
	message := scoring.Message(duration, percentile)

	// The append already succeeded in memory, so a snapshot failure must
	// not fail the request.
	if err := s.store.Snapshot(s.dataFile); err != nil {
		s.logger.WithError(err).Error("Failed to persist session snapshot")
	}

	s.logger.WithFields(map[string]interface{}{
		"duration":       scoring.FormatDuration(duration),
		"percentile":     percentile,
		"client":         security.TruncateID(clientID),
		"sessions_today": todayCount,
	}).Info("New session recorded")

	return &domain.SessionResponse{
		Message:       message,
		Duration:      duration,
		Percentile:    percentile,
		SessionsToday: todayCount,
		TotalSessions: s.store.TotalSessions(),
	}, nil
}

// Home returns the health/summary payload.
func (s *sessionService) Home() *domain.HomeResponse {
	today := s.now().Format(domain.DateKeyFormat)
	stats := s.store.DayStats(today)

	return &domain.HomeResponse{
		Status:        "Stillness API is running",
		TodaySessions: stats.Sessions,
		TotalSessions: s.store.TotalSessions(),
		AverageToday:  stats.Average,
	}
}

// Stats returns today's and all-time aggregates.
func (s *sessionService) Stats() *domain.StatsResponse {
	today := s.now().Format(domain.DateKeyFormat)

	return &domain.StatsResponse{
		Today:   s.store.DayStats(today),
		AllTime: s.store.AllTimeStats(),
	}
}
