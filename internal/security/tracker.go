package security

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"stillness-api/internal/domain"
	"stillness-api/pkg/logger"
)

// History and heuristic windows.
const (
	historyRetention = 24 * time.Hour

	rapidFireWindow    = time.Minute
	rapidFireThreshold = 20
	scrapingWindow     = time.Hour
	scrapingThreshold  = 50
	probingHistory     = 10
	probingThreshold   = 3
)

// countedEventTypes are the event types that add to a client's violation
// counter and therefore toward the block threshold.
var countedEventTypes = map[domain.EventType]bool{
	domain.EventRateLimitExceeded: true,
	domain.EventInvalidData:       true,
	domain.EventBlockedIPAccess:   true,
}

// Tracker keeps per-client violation counters, a 24h rolling event history
// and the process-lifetime blocked set. Blocked clients are never unblocked.
type Tracker struct {
	events  *EventLog
	alerter *Alerter
	log     *logger.Logger
	now     func() time.Time

	mu         sync.Mutex
	violations map[string]int
	history    map[string][]domain.SecurityEvent
	blocked    map[string]struct{}
}

// NewTracker creates a violation tracker.
func NewTracker(events *EventLog, alerter *Alerter, log *logger.Logger, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		events:     events,
		alerter:    alerter,
		log:        log,
		now:        now,
		violations: make(map[string]int),
		history:    make(map[string][]domain.SecurityEvent),
		blocked:    make(map[string]struct{}),
	}
}

// Blocked reports whether the client identifier is permanently blocked.
func (t *Tracker) Blocked(clientID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.blocked[clientID]
	return ok
}

// Violations returns the client's current violation count.
func (t *Tracker) Violations(clientID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.violations[clientID]
}

// Record logs a security event, appends it to the client's history and, for
// counted event types, advances the violation counter. Crossing the alert
// threshold emits a moderate alert; reaching the block threshold adds the
// client to the blocked set and emits a critical alert.
func (t *Tracker) Record(clientID string, eventType domain.EventType, details string, severity domain.Severity) {
	t.events.Write(eventType, clientID, details, severity)

	now := t.now()

	t.mu.Lock()

	t.history[clientID] = append(t.history[clientID], domain.SecurityEvent{
		Type:    eventType,
		Time:    now,
		Details: details,
	})
	t.pruneLocked(now)

	if !countedEventTypes[eventType] {
		t.mu.Unlock()
		return
	}

	t.violations[clientID]++
	count := t.violations[clientID]

	var alreadyBlocked bool
	if count >= domain.ViolationBlockThreshold {
		_, alreadyBlocked = t.blocked[clientID]
		t.blocked[clientID] = struct{}{}
	}
	recent := t.recentLocked(clientID, 5)

	t.mu.Unlock()

	short := TruncateID(clientID)

	switch {
	case count == domain.ViolationAlertThreshold:
		t.alerter.Send("moderate",
			fmt.Sprintf("Repeated violations from IP %s...", short),
			fmt.Sprintf("Client %s... has violated security rules %d times. Recent events: %s",
				short, count, formatEvents(recent)))
	case count >= domain.ViolationBlockThreshold && !alreadyBlocked:
		t.log.WithFields(map[string]interface{}{
			"client":     short,
			"violations": count,
		}).Error("Client permanently blocked")
		t.alerter.Send("critical",
			fmt.Sprintf("IP %s... BLOCKED", short),
			fmt.Sprintf("Client %s... has been automatically blocked after %d violations. Recent events: %s",
				short, count, formatEvents(recent)))
	}
}

// DetectPatterns inspects the client's recent history for attack shapes that
// a plain counter misses. Matches are logged as their own events but do not
// count toward the block threshold. Returns whether any pattern matched.
func (t *Tracker) DetectPatterns(clientID string) bool {
	now := t.now()

	t.mu.Lock()
	events := append([]domain.SecurityEvent(nil), t.history[clientID]...)
	t.mu.Unlock()

	if len(events) == 0 {
		return false
	}

	var lastMinute, lastHour int
	for _, e := range events {
		age := now.Sub(e.Time)
		if age < rapidFireWindow {
			lastMinute++
		}
		if age < scrapingWindow {
			lastHour++
		}
	}

	if lastMinute > rapidFireThreshold {
		t.events.Write(domain.EventRapidFireAttack, clientID,
			fmt.Sprintf("%d requests in 1 minute", lastMinute), domain.SeverityCritical)
		return true
	}

	if lastHour > scrapingThreshold {
		t.events.Write(domain.EventPossibleScraping, clientID,
			fmt.Sprintf("%d requests in 1 hour", lastHour), domain.SeverityError)
		return true
	}

	tail := events
	if len(tail) > probingHistory {
		tail = tail[len(tail)-probingHistory:]
	}
	invalidTypes := make(map[domain.EventType]struct{})
	for _, e := range tail {
		if strings.Contains(string(e.Type), "INVALID") {
			invalidTypes[e.Type] = struct{}{}
		}
	}
	if len(invalidTypes) >= probingThreshold {
		names := make([]string, 0, len(invalidTypes))
		for et := range invalidTypes {
			names = append(names, string(et))
		}
		t.events.Write(domain.EventSystematicProbing, clientID,
			fmt.Sprintf("Multiple attack types: %s", strings.Join(names, ", ")), domain.SeverityError)
		return true
	}

	return false
}

// pruneLocked drops history entries older than the retention window for all
// clients. Caller must hold t.mu.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-historyRetention)
	for id, events := range t.history {
		kept := events[:0]
		for _, e := range events {
			if e.Time.After(cutoff) {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(t.history, id)
			continue
		}
		t.history[id] = kept
	}
}

// recentLocked returns up to n most recent events for the client. Caller
// must hold t.mu.
func (t *Tracker) recentLocked(clientID string, n int) []domain.SecurityEvent {
	events := t.history[clientID]
	if len(events) > n {
		events = events[len(events)-n:]
	}
	return append([]domain.SecurityEvent(nil), events...)
}

func formatEvents(events []domain.SecurityEvent) string {
	parts := make([]string, 0, len(events))
	for _, e := range events {
		parts = append(parts, fmt.Sprintf("%s (%s)", e.Type, e.Details))
	}
	return strings.Join(parts, "; ")
}
