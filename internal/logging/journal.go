package logging

import (
	"fmt"
	"html"
	"strings"
	"sync"
)

// defaultJournalLimit caps how many lines a journal keeps; the oldest are dropped
const defaultJournalLimit = 400

// Journal is a Sink that accumulates entries as chat-ready lines for one cycle.
// The orchestrator attaches a fresh journal per cycle and resets it at the boundary.
type Journal struct {
	mu       sync.Mutex
	lines    []string
	limit    int
	minLevel LogLevel
	dropped  int
}

// NewJournal creates a journal that keeps entries at or above minLevel
func NewJournal(minLevel LogLevel) *Journal {
	return &Journal{
		limit:    defaultJournalLimit,
		minLevel: minLevel,
	}
}

// SetLimit changes the maximum number of kept lines
func (j *Journal) SetLimit(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if n > 0 {
		j.limit = n
	}
}

// Record implements Sink
func (j *Journal) Record(entry *LogEntry) {
	if levelRank[entry.Level] < levelRank[j.minLevel] {
		return
	}

	line := fmt.Sprintf("<b>[%s]</b> %s", entry.Level, html.EscapeString(entry.Message))
	if entry.Error != nil {
		line += ": " + html.EscapeString(entry.Error.Error())
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.lines = append(j.lines, line)
	if len(j.lines) > j.limit {
		overflow := len(j.lines) - j.limit
		j.lines = j.lines[overflow:]
		j.dropped += overflow
	}
}

// Len returns the number of kept lines
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.lines)
}

// Report joins the kept lines for a chat message
func (j *Journal) Report() string {
	j.mu.Lock()
	defer j.mu.Unlock()

	var b strings.Builder
	if j.dropped > 0 {
		fmt.Fprintf(&b, "<i>… %d earlier lines omitted</i>\r\n", j.dropped)
	}
	b.WriteString(strings.Join(j.lines, "\r\n"))
	return b.String()
}

// Reset clears the journal for the next cycle
func (j *Journal) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lines = nil
	j.dropped = 0
}
