package domain

import "time"

// EventType identifies a class of security event written to the event log.
type EventType string

const (
	EventRateLimitExceeded  EventType = "RATE_LIMIT_EXCEEDED"
	EventInvalidData        EventType = "INVALID_DATA"
	EventBlockedIPAccess    EventType = "BLOCKED_IP_ACCESS"
	EventDailyLimitExceeded EventType = "DAILY_LIMIT_EXCEEDED"
	EventRapidFireAttack    EventType = "RAPID_FIRE_ATTACK"
	EventPossibleScraping   EventType = "POSSIBLE_SCRAPING"
	EventSystematicProbing  EventType = "SYSTEMATIC_PROBING"
)

// Severity of a security event as written to the event log.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// SecurityEvent is one entry in a client's rolling violation history.
type SecurityEvent struct {
	Type    EventType
	Time    time.Time
	Details string
}

// Violation thresholds. A client accumulating ViolationAlertThreshold counted
// violations triggers a moderate alert; at ViolationBlockThreshold the client
// is blocked for the remainder of the process lifetime.
const (
	ViolationAlertThreshold = 5
	ViolationBlockThreshold = 10
)
