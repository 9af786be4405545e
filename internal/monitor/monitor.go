// Package monitor renders a terminal dashboard over the security event log.
// It is consumed by the standalone monitor process, not by the API server.
package monitor

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Refresh and windowing defaults, matching what the dashboard displays.
const (
	RefreshInterval = 5 * time.Second
	summaryLines    = 100
	recentEvents    = 20
	displayEvents   = 10
	topClients      = 5
)

// Event is one parsed security log line.
type Event struct {
	Timestamp string
	Type      string
	Client    string
	Details   string
	Severity  string
}

var (
	timestampRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})`)
	eventTypeRe = regexp.MustCompile(`SECURITY EVENT: (\w+)`)
	clientRe    = regexp.MustCompile(`from IP (\S+)\.\.\.`)
)

// ParseLine extracts the security event from one log line. Lines without
// the SECURITY EVENT marker are skipped.
func ParseLine(line string) (*Event, bool) {
	if !strings.Contains(line, "SECURITY EVENT:") {
		return nil, false
	}

	event := &Event{Timestamp: "Unknown", Type: "Unknown", Client: "Unknown"}

	if m := timestampRe.FindStringSubmatch(line); m != nil {
		event.Timestamp = m[1]
	}
	if m := eventTypeRe.FindStringSubmatch(line); m != nil {
		event.Type = m[1]
	}
	if m := clientRe.FindStringSubmatch(line); m != nil {
		event.Client = m[1] + "..."
	}
	if idx := strings.Index(line, "... - "); idx >= 0 {
		event.Details = strings.TrimRight(line[idx+len("... - "):], "\n")
	}

	switch {
	case strings.Contains(line, " - CRITICAL - "):
		event.Severity = "CRITICAL"
	case strings.Contains(line, " - ERROR - "):
		event.Severity = "ERROR"
	case strings.Contains(line, " - WARNING - "):
		event.Severity = "WARNING"
	default:
		event.Severity = "INFO"
	}

	return event, true
}

// Tailer reads a file incrementally from its last read offset.
type Tailer struct {
	path   string
	offset int64
}

// NewTailer creates a tailer over the given path.
func NewTailer(path string) *Tailer {
	return &Tailer{path: path}
}

// ReadNew returns the lines appended since the previous call. A missing
// file yields no lines; a truncated file restarts from the beginning.
func (t *Tailer) ReadNew() ([]string, error) {
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < t.offset {
		t.offset = 0
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	// Only consume up to the last newline. A line still being written has
	// no terminator yet and is picked up whole on a later call.
	end := strings.LastIndexByte(string(data), '\n')
	if end < 0 {
		return nil, nil
	}
	t.offset += int64(end + 1)

	return splitLines(string(data[:end+1])), nil
}

// Summary aggregates recent security events.
type Summary struct {
	Total    int
	ByType   map[string]int
	ByClient map[string]int
	Recent   []Event
}

// Summarize parses the last summaryLines lines of the log file into counts
// by event type and client, keeping the most recent events.
func Summarize(path string) (*Summary, error) {
	summary := &Summary{
		ByType:   make(map[string]int),
		ByClient: make(map[string]int),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return summary, nil
		}
		return nil, err
	}

	lines := splitLines(string(data))
	if len(lines) > summaryLines {
		lines = lines[len(lines)-summaryLines:]
	}

	var events []Event
	for _, line := range lines {
		if event, ok := ParseLine(line); ok {
			events = append(events, *event)
			summary.ByType[event.Type]++
			summary.ByClient[event.Client]++
		}
	}

	summary.Total = len(events)
	if len(events) > recentEvents {
		events = events[len(events)-recentEvents:]
	}
	summary.Recent = events

	return summary, nil
}

// Dashboard periodically re-renders the security summary to out.
type Dashboard struct {
	logPath string
	out     io.Writer
	tailer  *Tailer
	now     func() time.Time
}

// NewDashboard creates a dashboard over the security log at logPath.
func NewDashboard(logPath string, out io.Writer, now func() time.Time) *Dashboard {
	if now == nil {
		now = time.Now
	}
	return &Dashboard{
		logPath: logPath,
		out:     out,
		tailer:  NewTailer(logPath),
		now:     now,
	}
}

// Run refreshes the dashboard on a fixed interval until the context ends.
func (d *Dashboard) Run(ctx context.Context) error {
	ticker := time.NewTicker(RefreshInterval)
	defer ticker.Stop()

	if err := d.refresh(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.refresh(); err != nil {
				return err
			}
		}
	}
}

func (d *Dashboard) refresh() error {
	fresh, err := d.tailer.ReadNew()
	if err != nil {
		return err
	}

	summary, err := Summarize(d.logPath)
	if err != nil {
		return err
	}

	// ANSI clear screen + cursor home.
	fmt.Fprint(d.out, "\033[2J\033[H")
	d.Render(summary, fresh)
	return nil
}

// Render writes the dashboard view for the summary plus any freshly
// tailed lines.
func (d *Dashboard) Render(summary *Summary, freshLines []string) {
	w := d.out

	fmt.Fprintln(w, "SECURITY MONITORING DASHBOARD")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "%s\n", d.now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Total security events: %d\n\n", summary.Total)

	if len(summary.ByType) > 0 {
		fmt.Fprintln(w, "EVENT TYPES:")
		for _, kv := range sortedCounts(summary.ByType) {
			fmt.Fprintf(w, "  %s: %d\n", kv.key, kv.count)
		}
		fmt.Fprintln(w)
	}

	if len(summary.ByClient) > 0 {
		fmt.Fprintln(w, "TOP CLIENTS BY VIOLATIONS:")
		clients := sortedCounts(summary.ByClient)
		if len(clients) > topClients {
			clients = clients[:topClients]
		}
		for _, kv := range clients {
			fmt.Fprintf(w, "  %s: %d violations (%s RISK)\n", kv.key, kv.count, riskLevel(kv.count))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "RECENT SECURITY EVENTS:")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	if len(summary.Recent) == 0 {
		fmt.Fprintln(w, "  No security events detected")
	} else {
		recent := summary.Recent
		if len(recent) > displayEvents {
			recent = recent[len(recent)-displayEvents:]
		}
		for _, event := range recent {
			fmt.Fprintf(w, "[%s] %s | %s | %s\n", event.Severity, event.Timestamp, event.Type, event.Client)
			if event.Details != "" {
				fmt.Fprintf(w, "    %s\n", event.Details)
			}
		}
	}

	if len(freshLines) > 0 {
		fmt.Fprintln(w, "\nNEW SECURITY EVENTS:")
		for _, line := range freshLines {
			if event, ok := ParseLine(line); ok {
				fmt.Fprintf(w, "[%s] %s from %s - %s\n", event.Severity, event.Type, event.Client, event.Details)
			}
		}
	}

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 60))
	fmt.Fprintf(w, "Monitoring %s (Ctrl+C to exit)\n", d.logPath)
}

// riskLevel buckets a violation count for display.
func riskLevel(count int) string {
	switch {
	case count > 10:
		return "HIGH"
	case count > 5:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

type keyCount struct {
	key   string
	count int
}

func sortedCounts(m map[string]int) []keyCount {
	out := make([]keyCount, 0, len(m))
	for k, v := range m {
		out = append(out, keyCount{key: k, count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	return out
}

func splitLines(data string) []string {
	var lines []string
	for _, line := range strings.Split(data, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
