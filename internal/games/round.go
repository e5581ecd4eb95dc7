package games

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"jordanella.com/tapfarm/internal/browser"
	"jordanella.com/tapfarm/internal/jitter"
	"jordanella.com/tapfarm/internal/logging"
)

// Round is the state of one driver run on one page
type Round struct {
	Page   browser.Page
	Pacer  *jitter.Pacer
	Log    *logging.Logger
	Result Result

	runner *Runner
	resets atomic.Int32
}

// Resets returns how many times the watcher reset an error screen
func (r *Round) Resets() int {
	return int(r.resets.Load())
}

// Set records a metric value
func (r *Round) Set(metric string, value Amount) {
	r.Result.Metrics[metric] = value
}

// buttonWait is the short randomized wait used when looking for a button
func (r *Round) buttonWait() time.Duration {
	return r.Pacer.Between(time.Second, 2*time.Second+time.Millisecond)
}

// WaitButton reports whether sel becomes visible within timeout.
// A zero timeout uses a short randomized wait.
func (r *Round) WaitButton(ctx context.Context, sel browser.Selector, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = r.buttonWait()
	}
	return r.Page.WaitVisible(ctx, sel, timeout) == nil
}

// ClickButton clicks sel, bounded by the runner's click timeout. Failures are logged.
func (r *Round) ClickButton(ctx context.Context, sel browser.Selector) bool {
	clickCtx, cancel := context.WithTimeout(ctx, r.runner.clickTimeout)
	defer cancel()

	if err := r.Page.Click(clickCtx, sel); err != nil {
		r.Log.Warnf("Could not click %s: %v", sel, err)
		return false
	}
	return true
}

// FirstVisible checks signals in order and returns the index of the first
// one that shows up, or -1 when none does.
func (r *Round) FirstVisible(ctx context.Context, signals ...browser.Selector) int {
	for i, sel := range signals {
		if ctx.Err() != nil {
			return -1
		}
		if r.WaitButton(ctx, sel, 0) {
			return i
		}
	}
	return -1
}

// ReadAmount parses the text of sel; a missing element yields None
func (r *Round) ReadAmount(ctx context.Context, sel browser.Selector) Amount {
	text, err := r.Page.Text(ctx, sel)
	if err != nil {
		if !errors.Is(err, browser.ErrNotFound) {
			r.Log.Debugf("Read %s failed: %v", sel, err)
		}
		return None
	}
	return ParseAmount(text)
}

// Pause waits a randomized human-like delay
func (r *Round) Pause(ctx context.Context, min, max time.Duration) error {
	return r.Pacer.Pause(ctx, min, max)
}
