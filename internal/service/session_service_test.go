package service

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stillness-api/internal/config"
	"stillness-api/internal/domain"
	"stillness-api/internal/security"
	"stillness-api/internal/store"
	apperrors "stillness-api/pkg/errors"
	"stillness-api/pkg/logger"
)

func rawDuration(v string) json.RawMessage { return json.RawMessage(v) }

func newTestService(t *testing.T, now func() time.Time) (SessionService, *store.Store, *security.Tracker, string) {
	t.Helper()

	log, err := logger.New("error")
	require.NoError(t, err)

	dir := t.TempDir()
	events, err := security.NewEventLog(filepath.Join(dir, "security.log"), log, now)
	require.NoError(t, err)
	t.Cleanup(func() { events.Close() })

	alerter := security.NewAlerter(&config.Config{}, log, now)
	tracker := security.NewTracker(events, alerter, log, now)

	st := store.New()
	dataFile := filepath.Join(dir, "session_data.json")
	svc := NewSessionService(st, tracker, log, dataFile, now)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { svc.Stop(context.Background()) })

	return svc, st, tracker, dataFile
}

func fixedNow() time.Time {
	return time.Date(2024, time.January, 15, 10, 30, 0, 0, time.UTC)
}

func TestValidateSession(t *testing.T) {
	now := fixedNow()

	tests := []struct {
		name       string
		req        *domain.SessionRequest
		wantReason string
		wantDur    int
	}{
		{name: "nil payload", req: nil, wantReason: "Invalid data format"},
		{name: "missing duration", req: &domain.SessionRequest{}, wantReason: "Duration is required"},
		{name: "non numeric duration", req: &domain.SessionRequest{Duration: rawDuration(`"abc"`)}, wantReason: "Duration must be a number"},
		{name: "boolean duration", req: &domain.SessionRequest{Duration: rawDuration(`true`)}, wantReason: "Duration must be a number"},
		{name: "zero duration", req: &domain.SessionRequest{Duration: rawDuration(`0`)}, wantReason: "Duration too short (minimum: 1s)"},
		{name: "negative duration", req: &domain.SessionRequest{Duration: rawDuration(`-5`)}, wantReason: "Duration too short (minimum: 1s)"},
		{name: "too long", req: &domain.SessionRequest{Duration: rawDuration(`14401`)}, wantReason: "Duration too long (maximum: 14400s = 4 hours)"},
		{name: "lower bound", req: &domain.SessionRequest{Duration: rawDuration(`1`)}, wantDur: 1},
		{name: "upper bound", req: &domain.SessionRequest{Duration: rawDuration(`14400`)}, wantDur: 14400},
		{name: "numeric string coerced", req: &domain.SessionRequest{Duration: rawDuration(`"120"`)}, wantDur: 120},
		{name: "float truncated", req: &domain.SessionRequest{Duration: rawDuration(`120.9`)}, wantDur: 120},
		{name: "bad timestamp", req: &domain.SessionRequest{Duration: rawDuration(`60`), Timestamp: "yesterday"}, wantReason: "Invalid timestamp format"},
		{name: "timestamp too old", req: &domain.SessionRequest{Duration: rawDuration(`60`), Timestamp: "2024-01-13T10:30:00Z"}, wantReason: "Timestamp too far from current time"},
		{name: "timestamp in tolerance", req: &domain.SessionRequest{Duration: rawDuration(`60`), Timestamp: "2024-01-14T12:00:00Z"}, wantDur: 60},
		{name: "timestamp without offset", req: &domain.SessionRequest{Duration: rawDuration(`60`), Timestamp: "2024-01-15T08:00:00"}, wantDur: 60},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dur, _, reason := validateSession(tc.req, now)
			assert.Equal(t, tc.wantReason, reason)
			if tc.wantReason == "" {
				assert.Equal(t, tc.wantDur, dur)
			}
		})
	}
}

func TestSubmit_FirstSessionDefaultsTo50(t *testing.T) {
	svc, _, _, _ := newTestService(t, fixedNow)

	res, err := svc.Submit(context.Background(), "203.0.113.1", &domain.SessionRequest{Duration: rawDuration(`120`)})
	require.NoError(t, err)

	assert.Equal(t, 50, res.Percentile)
	assert.Equal(t, 120, res.Duration)
	assert.Equal(t, 1, res.SessionsToday)
	assert.Equal(t, 1, res.TotalSessions)
	assert.NotEmpty(t, res.Message)
}

func TestSubmit_ExcludesCurrentSessionFromComparison(t *testing.T) {
	svc, _, _, _ := newTestService(t, fixedNow)
	ctx := context.Background()

	durations := []int{30, 120, 300, 60, 45}
	want := []int{50, 100, 100, 33, 25}

	for i, d := range durations {
		res, err := svc.Submit(ctx, "203.0.113.1", &domain.SessionRequest{Duration: rawDuration(jsonInt(d))})
		require.NoError(t, err)
		assert.Equal(t, want[i], res.Percentile, "submission %d", i+1)
		assert.Equal(t, i+1, res.SessionsToday)
	}
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestSubmit_InvalidPayloadRecordsViolation(t *testing.T) {
	svc, _, tracker, _ := newTestService(t, fixedNow)

	_, err := svc.Submit(context.Background(), "203.0.113.2", &domain.SessionRequest{Duration: rawDuration(`"nope"`)})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrorTypeValidation, appErr.Type)
	assert.Equal(t, 1, tracker.Violations("203.0.113.2"))
}

func TestSubmit_DailyLimit(t *testing.T) {
	svc, st, tracker, _ := newTestService(t, fixedNow)
	ctx := context.Background()

	dateKey := fixedNow().Format(domain.DateKeyFormat)
	for i := 0; i < domain.MaxSessionsPerDay; i++ {
		_, _, err := st.Append(dateKey, 60)
		require.NoError(t, err)
	}

	_, err := svc.Submit(ctx, "203.0.113.3", &domain.SessionRequest{Duration: rawDuration(`60`)})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrorTypeDailyLimit, appErr.Type)
	assert.Equal(t, domain.MaxSessionsPerDay, st.DayCount(dateKey))

	// Daily-limit events are logged but not counted toward blocking.
	assert.Equal(t, 0, tracker.Violations("203.0.113.3"))
}

func TestSubmit_TimestampSelectsBucket(t *testing.T) {
	svc, st, _, _ := newTestService(t, fixedNow)

	_, err := svc.Submit(context.Background(), "203.0.113.4", &domain.SessionRequest{
		Duration:  rawDuration(`90`),
		Timestamp: "2024-01-14T23:30:00Z",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, st.DayCount("2024-01-14"))
	assert.Equal(t, 0, st.DayCount("2024-01-15"))
}

func TestSubmit_PersistsSnapshot(t *testing.T) {
	svc, _, _, dataFile := newTestService(t, fixedNow)

	_, err := svc.Submit(context.Background(), "203.0.113.5", &domain.SessionRequest{Duration: rawDuration(`120`)})
	require.NoError(t, err)

	reloaded := store.New()
	require.NoError(t, reloaded.Load(dataFile))
	assert.Equal(t, 1, reloaded.TotalSessions())
}

func TestHomeAndStats(t *testing.T) {
	svc, st, _, _ := newTestService(t, fixedNow)

	today := fixedNow().Format(domain.DateKeyFormat)
	for _, d := range []int{30, 120, 300} {
		_, _, err := st.Append(today, d)
		require.NoError(t, err)
	}
	_, _, err := st.Append("2024-01-10", 600)
	require.NoError(t, err)

	home := svc.Home()
	assert.Equal(t, 3, home.TodaySessions)
	assert.Equal(t, 4, home.TotalSessions)
	assert.Equal(t, 150.0, home.AverageToday)

	stats := svc.Stats()
	assert.Equal(t, domain.PeriodStats{Sessions: 3, Average: 150, Longest: 300}, stats.Today)
	assert.Equal(t, domain.PeriodStats{Sessions: 4, Average: 262.5, Longest: 600}, stats.AllTime)
}
