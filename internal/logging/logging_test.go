package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"jordanella.com/tapfarm/internal/events"
)

func TestLoggerLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDiscardLogger("Main").AddOutput(&buf).SetMinLevel(LogLevelWarn)

	logger.Info("hidden")
	logger.WarnWithContext("proxy slow", map[string]interface{}{"account": "7", "attempt": 2})
	logger.Error("proxy failed", errors.New("timeout"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Info should be filtered at WARN level")
	}
	if !strings.Contains(out, "WARN [Main] proxy slow | account=7 attempt=2") {
		t.Errorf("Unexpected warn line: %q", out)
	}
	if !strings.Contains(out, "ERROR [Main] proxy failed | error=timeout") {
		t.Errorf("Unexpected error line: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LogLevelDebug,
		" WARN ":  LogLevelWarn,
		"error":   LogLevelError,
		"":        LogLevelInfo,
		"verbose": LogLevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestDeriveFeedsJournal(t *testing.T) {
	var buf bytes.Buffer
	root := NewDiscardLogger("Main").AddOutput(&buf)
	journal := NewJournal(LogLevelInfo)

	cycleLog := root.Derive("Cycle", journal)
	gameLog := cycleLog.Derive("blum")

	root.Info("not journaled")
	cycleLog.Debug("below journal level")
	cycleLog.Info("👍 #1")
	gameLog.Error("claim <failed>", errors.New("no button"))

	want := "<b>[INFO]</b> 👍 #1\r\n<b>[ERROR]</b> claim &lt;failed&gt;: no button"
	if got := journal.Report(); got != want {
		t.Errorf("Report() = %q, want %q", got, want)
	}
	if !strings.Contains(buf.String(), "[blum] claim <failed>") {
		t.Error("Derived logger should share the root outputs")
	}

	journal.Reset()
	if journal.Len() != 0 || journal.Report() != "" {
		t.Error("Reset should clear the journal")
	}
}

func TestJournalLimit(t *testing.T) {
	journal := NewJournal(LogLevelDebug)
	journal.SetLimit(2)
	logger := NewDiscardLogger("Cycle").Derive("Cycle", journal)

	for i := 1; i <= 4; i++ {
		logger.Info(fmt.Sprintf("line %d", i))
	}

	report := journal.Report()
	if !strings.HasPrefix(report, "<i>… 2 earlier lines omitted</i>\r\n") {
		t.Errorf("Missing omission note: %q", report)
	}
	if !strings.HasSuffix(report, "<b>[INFO]</b> line 3\r\n<b>[INFO]</b> line 4") {
		t.Errorf("Unexpected tail: %q", report)
	}
}

func TestErrorReporterStatsAndCallbacks(t *testing.T) {
	reporter := NewErrorReporter(NewDiscardLogger("Errors"))

	var critical []string
	reporter.OnError(ErrorSeverityCritical, func(r *ErrorReport) {
		critical = append(critical, r.Message)
	})

	reporter.ReportError(ErrorCategoryNetwork, ErrorSeverityHigh, "Orchestrator", "update proxy", errors.New("refused"))
	reporter.ReportError(ErrorCategoryGame, ErrorSeverityMedium, "blum", "blum run ended early", errors.New("stalled"))
	reporter.ReportErrorWithContext(ErrorCategoryCycle, ErrorSeverityCritical, "Orchestrator", "resolve general profile", errors.New("none"), map[string]interface{}{"pass": 1})

	stats := reporter.GetErrorStats()
	if stats["total"] != 3 {
		t.Errorf("Expected 3 errors, got %d", stats["total"])
	}
	if stats["category_network"] != 1 || stats["category_game"] != 1 || stats["category_cycle"] != 1 {
		t.Errorf("Unexpected category counts: %v", stats)
	}
	if stats["severity_critical"] != 1 || stats["severity_high"] != 1 || stats["severity_low"] != 0 {
		t.Errorf("Unexpected severity counts: %v", stats)
	}
	if len(critical) != 1 || critical[0] != "resolve general profile" {
		t.Errorf("Critical callback got %v", critical)
	}

	reporter.Clear()
	if reporter.GetErrorStats()["total"] != 0 {
		t.Error("Clear should reset the counts")
	}

	reporter.ReportError(ErrorCategoryCycle, ErrorSeverityCritical, "Orchestrator", "resolve general profile", nil)
	if len(critical) != 2 {
		t.Error("Callbacks should survive Clear")
	}
}

func TestErrorReporterLogsThroughCurrentLogger(t *testing.T) {
	var out bytes.Buffer
	reporter := NewErrorReporter(NewDiscardLogger("Errors"))
	reporter.SetLogger(NewDiscardLogger("Cycle").AddOutput(&out))

	reporter.ReportErrorWithContext(ErrorCategoryGame, ErrorSeverityMedium, "blum", "blum run ended early", errors.New("stalled"), map[string]interface{}{"url": "https://example.test"})

	line := out.String()
	for _, want := range []string{"[Cycle]", "blum run ended early: stalled", "category=game", "url=https://example.test"} {
		if !strings.Contains(line, want) {
			t.Errorf("Log line %q missing %q", line, want)
		}
	}
}

func TestEventLoggerWritesEvents(t *testing.T) {
	dir := t.TempDir()
	bus := events.NewEventBus(8)

	el, err := NewEventLogger(bus, dir)
	if err != nil {
		t.Fatalf("Failed to create event logger: %v", err)
	}
	bus.Publish(events.NewScheduleArmedEvent(time.Now()))
	bus.Stop()
	if err := el.Close(); err != nil {
		t.Fatalf("Failed to close event logger: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "events_*.log"))
	if err != nil || len(files) != 1 {
		t.Fatalf("Expected one event log, got %v (%v)", files, err)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("Failed to read event log: %v", err)
	}
	var entry struct {
		Level     string                 `json:"level"`
		Component string                 `json:"component"`
		Message   string                 `json:"message"`
		Context   map[string]interface{} `json:"context"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("Event log is not one JSON line: %v (%q)", err, data)
	}
	if entry.Message != "Event: schedule.armed" || entry.Component != "Events" || entry.Level != "INFO" {
		t.Errorf("Unexpected event entry: %+v", entry)
	}
	if entry.Context["source"] != "scheduler" || entry.Context["fire_at"] == nil {
		t.Errorf("Event fields missing: %v", entry.Context)
	}
}

func TestJSONFormatterKeepsErrorText(t *testing.T) {
	line := JSONFormatter{}.Format(&LogEntry{
		Timestamp: time.Now(),
		Level:     LogLevelWarn,
		Component: "Events",
		Message:   "Event: error",
		Error:     errors.New("profile busy"),
	})

	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("Failed to decode %q: %v", line, err)
	}
	if decoded["error"] != "profile busy" {
		t.Errorf("Expected error text, got %v", decoded["error"])
	}
	if !strings.HasSuffix(line, "\n") {
		t.Error("Entries end with a newline")
	}
}
