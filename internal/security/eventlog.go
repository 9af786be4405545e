// Package security tracks per-client violations, writes the security event
// log and escalates to alerts and permanent blocks.
package security

import (
	"fmt"
	"os"
	"sync"
	"time"

	"stillness-api/internal/domain"
	"stillness-api/pkg/logger"
)

// eventTimeFormat is the timestamp layout of security log lines. The
// monitoring dashboard parses it, so it must not change.
const eventTimeFormat = "2006-01-02 15:04:05"

// truncatedIDLen is how much of a client identifier is written to the log.
const truncatedIDLen = 8

// EventLog appends one line per security event to a flat text file. The
// format is fixed: timestamp - severity - SECURITY EVENT: TYPE from IP
// 12345678... - details. The dashboard process tails and parses these lines.
type EventLog struct {
	mu   sync.Mutex
	path string
	file *os.File
	log  *logger.Logger
	now  func() time.Time
}

// NewEventLog opens (or creates) the event log file at path in append mode.
func NewEventLog(path string, log *logger.Logger, now func() time.Time) (*EventLog, error) {
	if now == nil {
		now = time.Now
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open security log %s: %w", path, err)
	}

	return &EventLog{path: path, file: file, log: log, now: now}, nil
}

// Write appends one event line and mirrors it to the application logger.
func (e *EventLog) Write(eventType domain.EventType, clientID, details string, severity domain.Severity) {
	line := fmt.Sprintf("%s - %s - SECURITY EVENT: %s from IP %s... - %s\n",
		e.now().Format(eventTimeFormat), severity, eventType, TruncateID(clientID), details)

	e.mu.Lock()
	_, err := e.file.WriteString(line)
	e.mu.Unlock()

	if err != nil {
		e.log.WithError(err).Error("Failed to write security event log")
	}

	entry := e.log.WithFields(map[string]interface{}{
		"event_type": string(eventType),
		"client":     TruncateID(clientID),
		"details":    details,
	})

	switch severity {
	case domain.SeverityCritical, domain.SeverityError:
		entry.Error("Security event")
	default:
		entry.Warn("Security event")
	}
}

// Close closes the underlying file.
func (e *EventLog) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.file.Close()
}

// TruncateID shortens a client identifier for logging so full addresses
// never land in the event log.
func TruncateID(clientID string) string {
	if len(clientID) > truncatedIDLen {
		return clientID[:truncatedIDLen]
	}
	return clientID
}
