package games

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"jordanella.com/tapfarm/internal/browser"
	"jordanella.com/tapfarm/internal/jitter"
	"jordanella.com/tapfarm/internal/logging"
)

// ErrLoadingStalled is returned when a game never leaves its loading screen
var ErrLoadingStalled = errors.New("loading indicator still present after all reloads")

const (
	defaultWatchInterval = 5 * time.Second
	defaultClickTimeout  = 6 * time.Second
	cleanupTimeout       = 10 * time.Second
	resetPollInterval    = 250 * time.Millisecond
)

// LoadingPolicy reloads the page while a loading indicator stays on screen.
// One reload is attempted per entry in Waits, each followed by that wait.
type LoadingPolicy struct {
	Indicator browser.Selector
	Waits     []time.Duration
}

// WatchPolicy describes the transient error screen the background watcher resets
type WatchPolicy struct {
	Indicator browser.Selector
	Reset     browser.Selector
}

// Driver is one game's plug-in to the shared page state machine
type Driver struct {
	Game Game
	// Settle is waited after navigation before anything is checked
	Settle  time.Duration
	Loading *LoadingPolicy
	Watch   *WatchPolicy
	// Play runs the ready, claim, verify and secondary activity states.
	// Recoverable problems are logged inside; a returned error ends the run.
	Play func(ctx context.Context, r *Round) error
}

// Runner executes drivers against pages of a connected browser
type Runner struct {
	pacer         *jitter.Pacer
	logger        *logging.Logger
	reporter      *logging.ErrorReporter
	drivers       map[Game]*Driver
	watchInterval time.Duration
	clickTimeout  time.Duration
}

// NewRunner creates a runner with the built-in drivers registered
func NewRunner(pacer *jitter.Pacer, logger *logging.Logger, opts DriverOptions) *Runner {
	r := &Runner{
		pacer:         pacer,
		logger:        logger,
		drivers:       make(map[Game]*Driver),
		watchInterval: defaultWatchInterval,
		clickTimeout:  defaultClickTimeout,
	}
	for _, d := range DefaultDrivers(opts) {
		r.Register(d)
	}
	return r
}

// Register installs or replaces the driver for d.Game
func (r *Runner) Register(d *Driver) {
	r.drivers[d.Game] = d
}

// SetWatchInterval changes how often the error watcher polls
func (r *Runner) SetWatchInterval(d time.Duration) {
	r.watchInterval = d
}

// SetErrorReporter routes failed runs into reporter
func (r *Runner) SetErrorReporter(reporter *logging.ErrorReporter) {
	r.reporter = reporter
}

// WithLogger returns a copy of the runner that logs through logger
func (r *Runner) WithLogger(logger *logging.Logger) *Runner {
	clone := *r
	clone.logger = logger
	return &clone
}

// Play opens a page, runs game's driver on url and always cleans the page up.
// Driver failures and panics are folded into the result; an error is returned
// only when no page could be opened.
func (r *Runner) Play(ctx context.Context, b browser.Browser, game Game, url string) (Result, error) {
	d, ok := r.drivers[game]
	if !ok {
		return Result{}, &UnknownGameError{Name: string(game)}
	}

	page, err := b.NewPage(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("open page for %s: %w", game, err)
	}

	log := r.logger.Derive(string(game))
	round := &Round{
		Page:   page,
		Pacer:  r.pacer,
		Log:    log,
		Result: newResult(game),
		runner: r,
	}
	defer r.cleanup(ctx, round)

	log.Debugf("Playing %s", game)

	pageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(pageCtx)
	g.Go(func() error {
		defer cancel()
		round.Result.Failure = r.drive(gctx, d, round, url)
		return nil
	})
	if d.Watch != nil {
		g.Go(func() error {
			r.watch(gctx, d.Watch, round)
			return nil
		})
	}
	_ = g.Wait()
	round.Result.Resets = round.Resets()

	if failure := round.Result.Failure; failure != nil {
		if r.reporter != nil {
			r.reporter.ReportErrorWithContext(logging.ErrorCategoryGame, logging.ErrorSeverityMedium,
				string(game), fmt.Sprintf("%s run ended early", game), failure, map[string]interface{}{"url": url})
		} else {
			log.Error(fmt.Sprintf("%s run ended early", game), failure)
		}
	}
	return round.Result, nil
}

// drive runs the main flow, converting panics into errors
func (r *Runner) drive(ctx context.Context, d *Driver, round *Round, url string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("driver panic: %v\n%s", rec, debug.Stack())
		}
	}()

	if err := round.Page.Navigate(ctx, url); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if err := r.pacer.Sleep(ctx, d.Settle); err != nil {
		return err
	}

	if d.Loading != nil {
		if err := r.awaitLoaded(ctx, d.Loading, round); err != nil {
			return err
		}
	}

	return d.Play(ctx, round)
}

func (r *Runner) awaitLoaded(ctx context.Context, policy *LoadingPolicy, round *Round) error {
	for attempt, wait := range policy.Waits {
		loading, err := round.Page.Exists(ctx, policy.Indicator)
		if err != nil {
			return fmt.Errorf("check loading indicator: %w", err)
		}
		round.Log.Infof("Reload checker: attempt %d, still loading: %t", attempt+1, loading)
		if !loading {
			return nil
		}

		if err := round.Page.Reload(ctx); err != nil {
			round.Log.Warnf("Reload failed: %v", err)
		}
		if err := r.pacer.Sleep(ctx, wait); err != nil {
			return err
		}
	}

	loading, err := round.Page.Exists(ctx, policy.Indicator)
	if err != nil {
		return fmt.Errorf("check loading indicator: %w", err)
	}
	if loading {
		return fmt.Errorf("%d reloads: %w", len(policy.Waits), ErrLoadingStalled)
	}
	return nil
}

// watch polls for the error screen until ctx ends. It never fails the run.
func (r *Runner) watch(ctx context.Context, policy *WatchPolicy, round *Round) {
	ticker := time.NewTicker(r.watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		present, err := round.Page.Exists(ctx, policy.Indicator)
		if err != nil || !present {
			continue
		}

		round.Log.Warn("Error screen detected, resetting")
		clickCtx, cancel := context.WithTimeout(ctx, r.clickTimeout)
		err = round.Page.Click(clickCtx, policy.Reset)
		cancel()
		if err != nil {
			round.Log.Debugf("Reset click failed: %v", err)
			continue
		}
		round.resets.Add(1)

		if !r.awaitCleared(ctx, policy, round) && ctx.Err() == nil {
			round.Log.Debug("Error screen still shown after reset")
		}
		ticker.Reset(r.watchInterval)
	}
}

// awaitCleared waits up to the click timeout for the reset to reload the page
func (r *Runner) awaitCleared(ctx context.Context, policy *WatchPolicy, round *Round) bool {
	waitCtx, cancel := context.WithTimeout(ctx, r.clickTimeout)
	defer cancel()

	poll := time.NewTicker(resetPollInterval)
	defer poll.Stop()

	for {
		present, err := round.Page.Exists(waitCtx, policy.Indicator)
		if err == nil && !present {
			return true
		}
		select {
		case <-waitCtx.Done():
			return false
		case <-poll.C:
		}
	}
}

// cleanup clears page storage and closes the page. It runs even when ctx is canceled.
func (r *Runner) cleanup(ctx context.Context, round *Round) {
	cleanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := round.Page.ClearStorage(cleanCtx); err != nil {
		round.Log.Debugf("Clear storage failed: %v", err)
	}
	if err := round.Page.Close(cleanCtx); err != nil {
		round.Log.Debugf("Close page failed: %v", err)
	}
}
