// Package handler wires the HTTP surface of the stillness API.
package handler

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"stillness-api/internal/domain"
	"stillness-api/internal/middleware"
	"stillness-api/internal/ratelimit"
	"stillness-api/internal/security"
	"stillness-api/internal/service"
	apperrors "stillness-api/pkg/errors"
	"stillness-api/pkg/logger"
)

// SessionHandler handles session submission and statistics requests.
type SessionHandler struct {
	service service.SessionService
	limiter *ratelimit.Limiter
	tracker *security.Tracker
	logger  *logger.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(svc service.SessionService, limiter *ratelimit.Limiter, tracker *security.Tracker, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		service: svc,
		limiter: limiter,
		tracker: tracker,
		logger:  log,
	}
}

// RegisterRoutes registers the handler's routes with the router.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Home)
	r.Route("/api", func(r chi.Router) {
		r.Post("/session", h.Submit)
		r.Get("/stats", h.Stats)
	})
}

// Home handles GET / (health/summary).
func (h *SessionHandler) Home(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.service.Home())
}

// Stats handles GET /api/stats.
func (h *SessionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.service.Stats())
}

// Submit handles POST /api/session. The pipeline is strictly ordered:
// block check, rate limit, content type, parse, validation, daily cap,
// append, score. Any failure short-circuits with no partial mutation.
func (h *SessionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := clientIdentifier(r)

	if h.tracker.Blocked(clientID) {
		h.tracker.Record(clientID, domain.EventBlockedIPAccess,
			"Blocked IP attempted access", domain.SeverityCritical)
		h.writeError(w, r, apperrors.NewBlockedError("Rate limit exceeded. Try again later."))
		return
	}

	result, err := h.limiter.Admit(ctx, clientID)
	if err != nil {
		h.writeError(w, r, apperrors.NewInternalError("Internal server error", err))
		return
	}

	h.setRateLimitHeaders(w, result)

	if !result.Allowed {
		h.tracker.Record(clientID, domain.EventRateLimitExceeded,
			fmt.Sprintf("%d requests in 1 minute", result.Count), domain.SeverityWarning)
		h.tracker.DetectPatterns(clientID)
		h.writeError(w, r, apperrors.NewRateLimitError("Rate limit exceeded. Try again later."))
		return
	}

	if !hasJSONContentType(r) {
		h.writeError(w, r, apperrors.NewValidationError("Content-Type must be application/json"))
		return
	}

	var req domain.SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// An unparseable body goes through the service with a nil payload
		// so the violation is recorded like any other invalid submission.
		_, subErr := h.service.Submit(ctx, clientID, nil)
		if subErr == nil {
			subErr = apperrors.NewValidationError("Invalid data format")
		}
		h.writeError(w, r, subErr)
		return
	}

	res, err := h.service.Submit(ctx, clientID, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, res)
}

// setRateLimitHeaders exposes the window state to clients.
func (h *SessionHandler) setRateLimitHeaders(w http.ResponseWriter, result ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(ratelimit.MaxRequestsPerWindow))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
}

func (h *SessionHandler) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

func (h *SessionHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		appErr = apperrors.NewInternalError("Internal server error", err)
	}

	if appErr.Type == apperrors.ErrorTypeInternal {
		// Full detail stays server-side.
		h.logger.WithError(appErr).Error("Request failed")
	}

	response := &apperrors.ErrorResponse{}
	response.Error.Type = appErr.Type
	response.Error.Message = appErr.Message
	response.Error.Details = appErr.Details
	response.Error.Timestamp = time.Now().UTC().Format(time.RFC3339)
	if requestID, ok := r.Context().Value(middleware.RequestIDContextKey).(string); ok {
		response.Error.RequestID = requestID
	}

	h.writeJSON(w, r, appErr.StatusCode, response)
}

// clientIdentifier derives the rate-limit key from the request origin.
// chi's RealIP middleware already folds proxy headers into RemoteAddr.
func clientIdentifier(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func hasJSONContentType(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "application/json")
}

// NotFound is the router's fallback handler.
func NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"error":{"type":"not_found","message":"Endpoint not found"}}`))
}
