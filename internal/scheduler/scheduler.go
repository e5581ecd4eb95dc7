// Package scheduler fires cycles at randomized intervals, one at a time.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"jordanella.com/tapfarm/internal/accounts"
	"jordanella.com/tapfarm/internal/bot"
	"jordanella.com/tapfarm/internal/events"
	"jordanella.com/tapfarm/internal/jitter"
	"jordanella.com/tapfarm/internal/logging"
	"jordanella.com/tapfarm/internal/metrics"
)

// TimeFormat is how the next fire time is shown in chat
const TimeFormat = "2006-01-02 15:04:05"

// CycleRunner runs one cycle over the given accounts
type CycleRunner interface {
	RunCycle(ctx context.Context, accs []*accounts.Account) (*bot.Outcome, error)
}

// AccountSource loads the account list at the start of every cycle
type AccountSource func() ([]*accounts.Account, error)

// Announcer pins the next fire time in the chat
type Announcer interface {
	SendAndPin(ctx context.Context, text string) error
	SendMessage(ctx context.Context, text string) error
}

// Config holds the fire window
type Config struct {
	// Delay until the next fire is drawn in whole minutes from [MinMinutes, MaxMinutes]
	MinMinutes int
	MaxMinutes int
	// Immediate runs one cycle at startup before the first re-arm
	Immediate bool
}

// NewDefaultConfig returns the 181 to 228 minute window
func NewDefaultConfig() Config {
	return Config{MinMinutes: 181, MaxMinutes: 228}
}

// Timer waits for d or until ctx ends
type Timer func(ctx context.Context, d time.Duration) error

// Scheduler re-arms a one-shot timer after every cycle returns
type Scheduler struct {
	config    Config
	runner    CycleRunner
	source    AccountSource
	announcer Announcer
	pacer     *jitter.Pacer
	logger    *logging.Logger
	reporter  *logging.ErrorReporter
	eventBus  events.EventBus
	metrics   *metrics.Metrics
	now       func() time.Time
	wait      Timer

	mu     sync.RWMutex
	nextAt time.Time
}

// New creates a scheduler. announcer may be nil.
func New(config Config, runner CycleRunner, source AccountSource, announcer Announcer, logger *logging.Logger) *Scheduler {
	if config.MinMinutes <= 0 || config.MaxMinutes < config.MinMinutes {
		def := NewDefaultConfig()
		config.MinMinutes, config.MaxMinutes = def.MinMinutes, def.MaxMinutes
	}
	if logger == nil {
		logger = logging.NewLogger("Scheduler")
	}
	return &Scheduler{
		config:    config,
		runner:    runner,
		source:    source,
		announcer: announcer,
		pacer:     jitter.NewPacer(),
		logger:    logger,
		now:       time.Now,
		wait:      jitter.ContextSleep,
	}
}

// SetPacer replaces the random source for the fire window
func (s *Scheduler) SetPacer(p *jitter.Pacer) { s.pacer = p }

// SetClock replaces the wall clock and the timer
func (s *Scheduler) SetClock(now func() time.Time, wait Timer) {
	s.now = now
	s.wait = wait
}

// SetErrorReporter routes load failures into reporter
func (s *Scheduler) SetErrorReporter(r *logging.ErrorReporter) { s.reporter = r }

// SetEventBus publishes re-arm events to bus
func (s *Scheduler) SetEventBus(bus events.EventBus) { s.eventBus = bus }

// SetMetrics records the next fire time into m
func (s *Scheduler) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// NextFire returns when the armed timer fires, or the zero time when none is armed
func (s *Scheduler) NextFire() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextAt
}

// Run fires cycles until ctx ends. Every cycle outcome, including a failed
// one, is followed by a re-arm.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Infof("Scheduler started (window %d-%d min, immediate: %t)",
		s.config.MinMinutes, s.config.MaxMinutes, s.config.Immediate)

	if s.config.Immediate {
		s.Fire(ctx)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		delay := s.arm(ctx)
		if err := s.wait(ctx, delay); err != nil {
			s.disarm()
			s.logger.Info("Scheduler stopped")
			return err
		}
		s.disarm()
		s.Fire(ctx)
	}
}

// arm draws the next fire time and announces it
func (s *Scheduler) arm(ctx context.Context) time.Duration {
	minutes := s.pacer.IntBetween(s.config.MinMinutes, s.config.MaxMinutes)
	delay := time.Duration(minutes) * time.Minute
	at := s.now().Add(delay)

	s.mu.Lock()
	s.nextAt = at
	s.mu.Unlock()

	s.logger.Infof("Next fire on %s (in %d min)", at.Format(TimeFormat), minutes)
	s.metrics.ScheduleArmed(at)
	if s.eventBus != nil {
		s.eventBus.PublishAsync(events.NewScheduleArmedEvent(at))
	}
	if s.announcer != nil {
		text := fmt.Sprintf("🕒 NEXT FIRE ON <b>%s</b> 🕒", at.Format(TimeFormat))
		if err := s.announcer.SendAndPin(ctx, text); err != nil {
			s.logger.Warnf("Pin next fire time failed: %v", err)
		}
	}
	return delay
}

func (s *Scheduler) disarm() {
	s.mu.Lock()
	s.nextAt = time.Time{}
	s.mu.Unlock()
}

// Fire loads the accounts and runs one cycle. Failures are logged, never returned.
func (s *Scheduler) Fire(ctx context.Context) *bot.Outcome {
	accs, err := s.source()
	if err != nil {
		if s.reporter != nil {
			s.reporter.ReportError(logging.ErrorCategoryConfig, logging.ErrorSeverityHigh, "Scheduler", "load accounts", err)
		} else {
			s.logger.Error("Load accounts failed", err)
		}
		if s.announcer != nil {
			if sendErr := s.announcer.SendMessage(context.WithoutCancel(ctx), fmt.Sprintf("😫 %v", err)); sendErr != nil {
				s.logger.Warnf("Send load failure failed: %v", sendErr)
			}
		}
		return nil
	}

	outcome, err := s.runner.RunCycle(ctx, accs)
	if outcome == nil {
		s.logger.Error("Cycle returned no outcome", err)
		return nil
	}

	s.logger.InfoWithContext(fmt.Sprintf("Cycle %s", outcome.Status), map[string]interface{}{
		"cycle_id":  outcome.CycleID,
		"passes":    outcome.Passes,
		"processed": len(outcome.Processed),
		"active":    outcome.Active,
		"duration":  outcome.Duration.Round(time.Second).String(),
	})
	if err != nil {
		s.logger.Warnf("Cycle %s ended with: %v", outcome.CycleID, err)
	}
	return outcome
}
