package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
)

var levelRank = map[LogLevel]int{
	LogLevelDebug: 0,
	LogLevelInfo:  1,
	LogLevelWarn:  2,
	LogLevelError: 3,
	LogLevelFatal: 4,
}

// ParseLevel converts a config string into a LogLevel, defaulting to INFO
func ParseLevel(s string) LogLevel {
	level := LogLevel(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelRank[level]; ok {
		return level
	}
	return LogLevelInfo
}

// LogEntry represents a single log entry
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     LogLevel               `json:"level"`
	Component string                 `json:"component"`
	Message   string                 `json:"message"`
	Error     error                  `json:"error,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// Sink receives every entry that passes the level filter.
// Sinks see structured entries, outputs see formatted text.
type Sink interface {
	Record(entry *LogEntry)
}

// shared holds the state a logger and all loggers derived from it have in common
type shared struct {
	mu        sync.Mutex
	minLevel  LogLevel
	outputs   []io.Writer
	formatter LogFormatter
}

// Logger provides structured logging functionality
type Logger struct {
	component string
	core      *shared
	sinks     []Sink
}

// LogFormatter formats log entries for output
type LogFormatter interface {
	Format(entry *LogEntry) string
}

// TextFormatter formats logs as human-readable text
type TextFormatter struct{}

func (f *TextFormatter) Format(entry *LogEntry) string {
	timestamp := entry.Timestamp.Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf("[%s] %s [%s] %s", timestamp, entry.Level, entry.Component, entry.Message)

	if entry.Error != nil {
		msg += fmt.Sprintf(" | error=%v", entry.Error)
	}

	if len(entry.Context) > 0 {
		keys := make([]string, 0, len(entry.Context))
		for k := range entry.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		msg += " |"
		for _, k := range keys {
			msg += fmt.Sprintf(" %s=%v", k, entry.Context[k])
		}
	}

	return msg + "\n"
}

// NewLogger creates a new logger for a specific component
func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		core: &shared{
			minLevel:  LogLevelInfo,
			outputs:   []io.Writer{os.Stdout},
			formatter: &TextFormatter{},
		},
	}
}

// NewDiscardLogger creates a logger that writes nowhere; sinks still receive entries
func NewDiscardLogger(component string) *Logger {
	l := NewLogger(component)
	l.core.outputs = nil
	return l
}

// SetMinLevel sets the minimum log level to output
func (l *Logger) SetMinLevel(level LogLevel) *Logger {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.minLevel = level
	return l
}

// AddOutput adds an output writer for logs
func (l *Logger) AddOutput(w io.Writer) *Logger {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.outputs = append(l.core.outputs, w)
	return l
}

// SetFormatter sets the log formatter
func (l *Logger) SetFormatter(formatter LogFormatter) *Logger {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.formatter = formatter
	return l
}

// Derive returns a logger for another component that shares this logger's
// outputs and level, and additionally feeds the given sinks.
func (l *Logger) Derive(component string, sinks ...Sink) *Logger {
	combined := make([]Sink, 0, len(l.sinks)+len(sinks))
	combined = append(combined, l.sinks...)
	combined = append(combined, sinks...)
	return &Logger{
		component: component,
		core:      l.core,
		sinks:     combined,
	}
}

// log writes a log entry
func (l *Logger) log(level LogLevel, message string, err error, context map[string]interface{}) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()

	if levelRank[level] < levelRank[l.core.minLevel] {
		return
	}

	entry := &LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Component: l.component,
		Message:   message,
		Error:     err,
		Context:   context,
	}

	if len(l.core.outputs) > 0 {
		formatted := l.core.formatter.Format(entry)
		for _, output := range l.core.outputs {
			output.Write([]byte(formatted))
		}
	}

	for _, sink := range l.sinks {
		sink.Record(entry)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(message string) {
	l.log(LogLevelDebug, message, nil, nil)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(LogLevelDebug, fmt.Sprintf(format, args...), nil, nil)
}

// DebugWithContext logs a debug message with context
func (l *Logger) DebugWithContext(message string, context map[string]interface{}) {
	l.log(LogLevelDebug, message, nil, context)
}

// Info logs an info message
func (l *Logger) Info(message string) {
	l.log(LogLevelInfo, message, nil, nil)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(LogLevelInfo, fmt.Sprintf(format, args...), nil, nil)
}

// InfoWithContext logs an info message with context
func (l *Logger) InfoWithContext(message string, context map[string]interface{}) {
	l.log(LogLevelInfo, message, nil, context)
}

// Warn logs a warning message
func (l *Logger) Warn(message string) {
	l.log(LogLevelWarn, message, nil, nil)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(LogLevelWarn, fmt.Sprintf(format, args...), nil, nil)
}

// WarnWithContext logs a warning message with context
func (l *Logger) WarnWithContext(message string, context map[string]interface{}) {
	l.log(LogLevelWarn, message, nil, context)
}

// Error logs an error message
func (l *Logger) Error(message string, err error) {
	l.log(LogLevelError, message, err, nil)
}

// ErrorWithContext logs an error message with context
func (l *Logger) ErrorWithContext(message string, err error, context map[string]interface{}) {
	l.log(LogLevelError, message, err, context)
}

// Fatal logs a fatal error message
func (l *Logger) Fatal(message string, err error) {
	l.log(LogLevelFatal, message, err, nil)
}

// FatalWithContext logs a fatal error message with context
func (l *Logger) FatalWithContext(message string, err error, context map[string]interface{}) {
	l.log(LogLevelFatal, message, err, context)
}

// WithContext returns a log function that includes context
func (l *Logger) WithContext(context map[string]interface{}) *ContextLogger {
	return &ContextLogger{
		logger:  l,
		context: context,
	}
}

// ContextLogger is a logger with pre-set context
type ContextLogger struct {
	logger  *Logger
	context map[string]interface{}
}

// Debug logs a debug message with pre-set context
func (cl *ContextLogger) Debug(message string) {
	cl.logger.log(LogLevelDebug, message, nil, cl.context)
}

// Info logs an info message with pre-set context
func (cl *ContextLogger) Info(message string) {
	cl.logger.log(LogLevelInfo, message, nil, cl.context)
}

// Warn logs a warning message with pre-set context
func (cl *ContextLogger) Warn(message string) {
	cl.logger.log(LogLevelWarn, message, nil, cl.context)
}

// Error logs an error message with pre-set context
func (cl *ContextLogger) Error(message string, err error) {
	cl.logger.log(LogLevelError, message, err, cl.context)
}
