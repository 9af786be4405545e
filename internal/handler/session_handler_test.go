package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stillness-api/internal/config"
	"stillness-api/internal/domain"
	"stillness-api/internal/middleware"
	"stillness-api/internal/ratelimit"
	"stillness-api/internal/security"
	"stillness-api/internal/service"
	"stillness-api/internal/store"
	"stillness-api/pkg/logger"
)

type testApp struct {
	router  chi.Router
	tracker *security.Tracker
	store   *store.Store
	advance func(time.Duration)
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	current := time.Date(2024, time.January, 15, 10, 30, 0, 0, time.UTC)
	now := func() time.Time { return current }
	advance := func(d time.Duration) { current = current.Add(d) }

	log, err := logger.New("error")
	require.NoError(t, err)

	dir := t.TempDir()
	events, err := security.NewEventLog(filepath.Join(dir, "security.log"), log, now)
	require.NoError(t, err)
	t.Cleanup(func() { events.Close() })

	alerter := security.NewAlerter(&config.Config{}, log, now)
	tracker := security.NewTracker(events, alerter, log, now)

	st := store.New()
	svc := service.NewSessionService(st, tracker, log, filepath.Join(dir, "session_data.json"), now)
	limiter := ratelimit.New(ratelimit.NewMemoryStorage(ratelimit.Window), ratelimit.MaxRequestsPerWindow, now)

	h := NewSessionHandler(svc, limiter, tracker, log)

	r := chi.NewRouter()
	r.Use(middleware.SecurityHeaders)
	h.RegisterRoutes(r)
	r.NotFound(NotFound)

	return &testApp{router: r, tracker: tracker, store: st, advance: advance}
}

func (a *testApp) submit(t *testing.T, body string, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/session", strings.NewReader(body))
	req.RemoteAddr = "203.0.113.50:4321"
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func TestSubmit_Success(t *testing.T) {
	app := newTestApp(t)

	rec := app.submit(t, `{"duration": 120}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res domain.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 120, res.Duration)
	assert.Equal(t, 50, res.Percentile)
	assert.Equal(t, 1, res.SessionsToday)
	assert.NotEmpty(t, res.Message)

	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestSubmit_SecurityHeadersOnEveryResponse(t *testing.T) {
	app := newTestApp(t)

	for _, rec := range []*httptest.ResponseRecorder{
		app.submit(t, `{"duration": 120}`),
		app.submit(t, `not json`),
	} {
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
		assert.Equal(t, "default-src 'none'; script-src 'none'; style-src 'none'", rec.Header().Get("Content-Security-Policy"))
		assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
		assert.Equal(t, "geolocation=(), microphone=(), camera=()", rec.Header().Get("Permissions-Policy"))
	}
}

func TestSubmit_ValidationFailures(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		name        string
		body        string
		contentType string
		wantMsg     string
	}{
		{name: "wrong content type", body: `{"duration": 120}`, contentType: "text/plain", wantMsg: "Content-Type must be application/json"},
		{name: "malformed json", body: `{`, contentType: "application/json", wantMsg: "Invalid data format"},
		{name: "missing duration", body: `{}`, contentType: "application/json", wantMsg: "Duration is required"},
		{name: "out of range", body: `{"duration": 999999}`, contentType: "application/json", wantMsg: "Duration too long (maximum: 14400s = 4 hours)"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := app.submit(t, tc.body, func(r *http.Request) {
				r.Header.Set("Content-Type", tc.contentType)
			})

			require.Equal(t, http.StatusBadRequest, rec.Code)

			var res struct {
				Error struct {
					Type    string `json:"type"`
					Message string `json:"message"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.Equal(t, "validation", res.Error.Type)
			assert.Equal(t, tc.wantMsg, res.Error.Message)
		})
	}
}

func TestSubmit_RateLimited(t *testing.T) {
	app := newTestApp(t)

	for i := 0; i < ratelimit.MaxRequestsPerWindow; i++ {
		rec := app.submit(t, `{"duration": 60}`)
		require.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i+1)
	}

	rec := app.submit(t, `{"duration": 60}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, rec.Body.String(), "rate_limit")

	// The rejected request appended nothing.
	assert.Equal(t, ratelimit.MaxRequestsPerWindow, app.store.DayCount("2024-01-15"))

	// After the window clears, requests flow again.
	app.advance(61 * time.Second)
	rec = app.submit(t, `{"duration": 60}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmit_BlockedClientShortCircuits(t *testing.T) {
	app := newTestApp(t)

	for i := 0; i < domain.ViolationBlockThreshold; i++ {
		app.tracker.Record("203.0.113.50", domain.EventInvalidData, "probe", domain.SeverityWarning)
	}
	require.True(t, app.tracker.Blocked("203.0.113.50"))

	rec := app.submit(t, `{"duration": 60}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "blocked")

	// The request never reached the store or the rate-limit window.
	assert.Equal(t, 0, app.store.DayCount("2024-01-15"))
	assert.Equal(t, "", rec.Header().Get("X-RateLimit-Limit"))
}

func TestSubmit_DailyLimitReturns429(t *testing.T) {
	app := newTestApp(t)

	for i := 0; i < domain.MaxSessionsPerDay; i++ {
		_, _, err := app.store.Append("2024-01-15", 60)
		require.NoError(t, err)
	}

	rec := app.submit(t, `{"duration": 60}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "daily_limit")
	assert.Equal(t, domain.MaxSessionsPerDay, app.store.DayCount("2024-01-15"))
}

func TestHome(t *testing.T) {
	app := newTestApp(t)

	_, _, err := app.store.Append("2024-01-15", 120)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var res domain.HomeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 1, res.TodaySessions)
	assert.Equal(t, 1, res.TotalSessions)
	assert.Equal(t, 120.0, res.AverageToday)
	assert.NotEmpty(t, res.Status)
}

func TestStats(t *testing.T) {
	app := newTestApp(t)

	for _, d := range []int{30, 120, 300} {
		_, _, err := app.store.Append("2024-01-15", d)
		require.NoError(t, err)
	}
	_, _, err := app.store.Append("2024-01-10", 600)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var res domain.StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, domain.PeriodStats{Sessions: 3, Average: 150, Longest: 300}, res.Today)
	assert.Equal(t, domain.PeriodStats{Sessions: 4, Average: 262.5, Longest: 600}, res.AllTime)
}

func TestNotFound(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
}
