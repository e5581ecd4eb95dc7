package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"jordanella.com/tapfarm/internal/events"
)

// JSONFormatter writes one JSON object per entry and line
type JSONFormatter struct{}

func (JSONFormatter) Format(entry *LogEntry) string {
	line := struct {
		*LogEntry
		Error string `json:"error,omitempty"`
	}{LogEntry: entry}
	if entry.Error != nil {
		line.Error = entry.Error.Error()
	}

	data, err := json.Marshal(line)
	if err != nil {
		return fmt.Sprintf("{\"level\":%q,\"message\":%q,\"format_error\":%q}\n", entry.Level, entry.Message, err.Error())
	}
	return string(data) + "\n"
}

// EventLogger appends every bus event to a per-run JSON lines file
type EventLogger struct {
	bus    events.EventBus
	sub    events.SubscriptionID
	file   *os.File
	logger *Logger
}

// NewEventLogger opens events_<start time>.log in dir and subscribes to bus
func NewEventLogger(bus events.EventBus, dir string) (*EventLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create event log directory: %w", err)
	}
	name := fmt.Sprintf("events_%s.log", time.Now().Format("2006-01-02_15-04-05"))
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	el := &EventLogger{
		bus:    bus,
		file:   file,
		logger: NewDiscardLogger("Events").SetMinLevel(LogLevelDebug).AddOutput(file).SetFormatter(JSONFormatter{}),
	}
	el.sub = bus.SubscribeAll(el.record)
	return el, nil
}

func (el *EventLogger) record(event events.Event) {
	fields := make(map[string]interface{}, len(event.Data)+2)
	for k, v := range event.Data {
		fields[k] = v
	}
	fields["source"] = event.Source
	fields["published_at"] = event.Timestamp.Format(time.RFC3339Nano)

	message := "Event: " + string(event.Type)
	if event.Type == events.EventTypeError {
		el.logger.WarnWithContext(message, fields)
		return
	}
	el.logger.InfoWithContext(message, fields)
}

// Close stops recording and closes the file
func (el *EventLogger) Close() error {
	el.bus.Unsubscribe(el.sub)
	return el.file.Close()
}
