package service

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"stillness-api/internal/domain"
)

// timestampTolerance bounds how far a client-supplied timestamp may drift
// from server time.
const timestampTolerance = 24 * time.Hour

// timestampLayouts accepted for the optional timestamp field, tried in order.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// validateSession checks the payload and returns the parsed duration and the
// session timestamp (server time when the field is absent). The returned
// reason string is safe to show to clients.
func validateSession(req *domain.SessionRequest, now time.Time) (duration int, at time.Time, reason string) {
	if req == nil {
		return 0, time.Time{}, "Invalid data format"
	}

	if len(req.Duration) == 0 {
		return 0, time.Time{}, "Duration is required"
	}

	duration, ok := coerceInt(req.Duration)
	if !ok {
		return 0, time.Time{}, "Duration must be a number"
	}

	if duration < domain.MinSessionDuration {
		return 0, time.Time{}, fmt.Sprintf("Duration too short (minimum: %ds)", domain.MinSessionDuration)
	}
	if duration > domain.MaxSessionDuration {
		return 0, time.Time{}, fmt.Sprintf("Duration too long (maximum: %ds = 4 hours)", domain.MaxSessionDuration)
	}

	at = now
	if req.Timestamp != "" {
		parsed, ok := parseTimestamp(req.Timestamp)
		if !ok {
			return 0, time.Time{}, "Invalid timestamp format"
		}
		drift := now.Sub(parsed)
		if drift < 0 {
			drift = -drift
		}
		if drift > timestampTolerance {
			return 0, time.Time{}, "Timestamp too far from current time"
		}
		at = parsed
	}

	return duration, at, ""
}

// coerceInt accepts a JSON number or a numeric string; fractional parts are
// truncated toward zero.
func coerceInt(raw json.RawMessage) (int, bool) {
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return int(num), true
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(str)); err == nil {
			return n, true
		}
	}

	return 0, false
}

func parseTimestamp(value string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
