package logging

import (
	"fmt"
	"sync"
	"time"
)

// ErrorCategory names the stage an error came from
type ErrorCategory string

const (
	ErrorCategoryCycle   ErrorCategory = "cycle"
	ErrorCategoryAccount ErrorCategory = "account"
	ErrorCategorySession ErrorCategory = "session"
	ErrorCategoryGame    ErrorCategory = "game"
	ErrorCategoryNetwork ErrorCategory = "network"
	ErrorCategoryConfig  ErrorCategory = "config"
	ErrorCategoryStorage ErrorCategory = "storage"
)

// ErrorSeverity is how much work an error cost.
// Critical aborts a cycle attempt, high aborts an account pass,
// medium aborts one game, low is recovered inside a driver.
type ErrorSeverity string

const (
	ErrorSeverityLow      ErrorSeverity = "low"
	ErrorSeverityMedium   ErrorSeverity = "medium"
	ErrorSeverityHigh     ErrorSeverity = "high"
	ErrorSeverityCritical ErrorSeverity = "critical"
)

// ErrorReport is one reported failure
type ErrorReport struct {
	Timestamp time.Time
	Category  ErrorCategory
	Severity  ErrorSeverity
	Component string
	Message   string
	Error     error
	Context   map[string]interface{}
}

// ErrorCallback is called synchronously for every report of its severity
type ErrorCallback func(report *ErrorReport)

// ErrorReporter logs reports, counts them until the next Clear and hands them
// to the callbacks registered for their severity.
type ErrorReporter struct {
	mu        sync.Mutex
	logger    *Logger
	total     int
	counts    map[string]int
	callbacks map[ErrorSeverity][]ErrorCallback
}

// NewErrorReporter creates a reporter logging through logger
func NewErrorReporter(logger *Logger) *ErrorReporter {
	if logger == nil {
		logger = NewLogger("ErrorReporter")
	}
	return &ErrorReporter{
		logger:    logger,
		counts:    make(map[string]int),
		callbacks: make(map[ErrorSeverity][]ErrorCallback),
	}
}

// SetLogger swaps the logger, e.g. for the duration of one cycle
func (er *ErrorReporter) SetLogger(logger *Logger) {
	er.mu.Lock()
	defer er.mu.Unlock()
	er.logger = logger
}

// OnError registers callback for severity
func (er *ErrorReporter) OnError(severity ErrorSeverity, callback ErrorCallback) {
	er.mu.Lock()
	defer er.mu.Unlock()
	er.callbacks[severity] = append(er.callbacks[severity], callback)
}

// ReportError reports err without extra context
func (er *ErrorReporter) ReportError(category ErrorCategory, severity ErrorSeverity, component, message string, err error) {
	er.ReportErrorWithContext(category, severity, component, message, err, nil)
}

// ReportErrorWithContext reports err with fields that end up in the log line
func (er *ErrorReporter) ReportErrorWithContext(category ErrorCategory, severity ErrorSeverity, component, message string, err error, context map[string]interface{}) {
	er.Report(&ErrorReport{
		Category:  category,
		Severity:  severity,
		Component: component,
		Message:   message,
		Error:     err,
		Context:   context,
	})
}

// Report stamps, logs and counts report, then runs its callbacks in
// registration order.
func (er *ErrorReporter) Report(report *ErrorReport) {
	report.Timestamp = time.Now()

	er.mu.Lock()
	logger := er.logger
	er.total++
	er.counts["severity_"+string(report.Severity)]++
	er.counts["category_"+string(report.Category)]++
	callbacks := er.callbacks[report.Severity]
	er.mu.Unlock()

	logReport(logger, report)
	for _, callback := range callbacks {
		callback(report)
	}
}

func logReport(logger *Logger, report *ErrorReport) {
	fields := map[string]interface{}{
		"category":  string(report.Category),
		"severity":  string(report.Severity),
		"component": report.Component,
	}
	for k, v := range report.Context {
		fields[k] = v
	}

	switch report.Severity {
	case ErrorSeverityCritical:
		logger.FatalWithContext(report.Message, report.Error, fields)
	case ErrorSeverityHigh:
		logger.ErrorWithContext(report.Message, report.Error, fields)
	case ErrorSeverityMedium:
		logger.WarnWithContext(withCause(report), fields)
	default:
		logger.InfoWithContext(withCause(report), fields)
	}
}

func withCause(report *ErrorReport) string {
	if report.Error == nil {
		return report.Message
	}
	return fmt.Sprintf("%s: %v", report.Message, report.Error)
}

// GetErrorStats returns the number of reports since the last Clear under
// "total", "severity_<severity>" and "category_<category>"
func (er *ErrorReporter) GetErrorStats() map[string]int {
	er.mu.Lock()
	defer er.mu.Unlock()

	stats := make(map[string]int, len(er.counts)+1)
	for k, n := range er.counts {
		stats[k] = n
	}
	stats["total"] = er.total
	return stats
}

// Clear resets the counts; callbacks stay registered
func (er *ErrorReporter) Clear() {
	er.mu.Lock()
	defer er.mu.Unlock()
	er.total = 0
	er.counts = make(map[string]int)
}
