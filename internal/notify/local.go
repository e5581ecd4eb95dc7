package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"jordanella.com/tapfarm/internal/logging"
)

// Local is the fallback used without Telegram: messages go to the log
// and documents are written under a directory.
type Local struct {
	dir    string
	logger *logging.Logger
	now    func() time.Time
}

// NewLocal creates a notifier writing documents to dir. An empty dir drops documents.
func NewLocal(dir string, logger *logging.Logger) *Local {
	if logger == nil {
		logger = logging.NewLogger("Notify")
	}
	return &Local{dir: dir, logger: logger, now: time.Now}
}

// SendMessage logs text
func (l *Local) SendMessage(ctx context.Context, text string) error {
	l.logger.Info(text)
	return nil
}

// SendAndPin logs text
func (l *Local) SendAndPin(ctx context.Context, text string) error {
	return l.SendMessage(ctx, text)
}

// SendDocument writes data to <dir>/<timestamp>_<filename>
func (l *Local) SendDocument(ctx context.Context, filename string, data []byte, caption string) error {
	if l.dir == "" {
		l.logger.Debugf("Dropping document %s (%s)", filename, caption)
		return nil
	}
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}

	path := filepath.Join(l.dir, l.now().Format("20060102_150405")+"_"+filepath.Base(filename))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	l.logger.Infof("Saved %s: %s", caption, path)
	return nil
}
