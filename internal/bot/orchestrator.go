// Package bot runs cycles over the account list: every active account gets a
// browser session in which each of its games is played, until all of them
// produced results or the pass cap is reached.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"jordanella.com/tapfarm/internal/accounts"
	"jordanella.com/tapfarm/internal/database"
	"jordanella.com/tapfarm/internal/events"
	"jordanella.com/tapfarm/internal/games"
	"jordanella.com/tapfarm/internal/jitter"
	"jordanella.com/tapfarm/internal/logging"
	"jordanella.com/tapfarm/internal/metrics"
	"jordanella.com/tapfarm/internal/report"
	"jordanella.com/tapfarm/internal/session"
)

// ErrProfileUnavailable aborts a cycle attempt when the shared profile cannot be resolved
var ErrProfileUnavailable = errors.New("general profile unavailable")

// Account pass failure stages
const (
	stageProxy   = "proxy"
	stageSession = "session"
	stageConnect = "connect"
	stageGames   = "games"
)

// Orchestrator runs cycles. One cycle runs at a time.
type Orchestrator struct {
	config   *Config
	profiles ProfileDirectory
	proxies  ProxyConfigurator
	sessions SessionOpener
	runner   *games.Runner
	notifier Notifier
	logger   *logging.Logger

	// Optional collaborators
	pacer    *jitter.Pacer
	reports  *report.Builder
	reporter *logging.ErrorReporter
	eventBus events.EventBus
	metrics  *metrics.Metrics
	recorder Recorder
	receiver Receiver

	runMu sync.Mutex

	statusMu sync.RWMutex
	status   Status
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(
	config *Config,
	profiles ProfileDirectory,
	proxies ProxyConfigurator,
	sessions SessionOpener,
	runner *games.Runner,
	notifier Notifier,
	logger *logging.Logger,
) *Orchestrator {
	if logger == nil {
		logger = logging.NewLogger("Orchestrator")
	}
	return &Orchestrator{
		config:   config.withDefaults(),
		profiles: profiles,
		proxies:  proxies,
		sessions: sessions,
		runner:   runner,
		notifier: notifier,
		logger:   logger,
		pacer:    jitter.NewPacer(),
		reports:  report.NewBuilder(),
	}
}

// SetPacer replaces the delay source
func (o *Orchestrator) SetPacer(p *jitter.Pacer) { o.pacer = p }

// SetErrorReporter routes failures into reporter
func (o *Orchestrator) SetErrorReporter(r *logging.ErrorReporter) { o.reporter = r }

// SetEventBus publishes lifecycle events to bus
func (o *Orchestrator) SetEventBus(bus events.EventBus) { o.eventBus = bus }

// SetMetrics records counters into m
func (o *Orchestrator) SetMetrics(m *metrics.Metrics) { o.metrics = m }

// SetRecorder persists run history
func (o *Orchestrator) SetRecorder(r Recorder) { o.recorder = r }

// SetReceiver enables chat commands while a cycle runs
func (o *Orchestrator) SetReceiver(r Receiver) { o.receiver = r }

// Status returns a snapshot of the current cycle
func (o *Orchestrator) Status() Status {
	o.statusMu.RLock()
	defer o.statusMu.RUnlock()
	return o.status
}

func (o *Orchestrator) updateStatus(fn func(s *Status)) {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	fn(&o.status)
}

// RunCycle processes accounts until every active one produced results, the
// pass cap is hit or a pass cannot start. Cycle state never outlives the call.
// The returned error is the outcome's Err.
func (o *Orchestrator) RunCycle(ctx context.Context, accs []*accounts.Account) (*Outcome, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	cycle := newCycle(uuid.New().String(), accs)
	journal := logging.NewJournal(o.config.JournalLevel)
	log := o.logger.Derive("Cycle", journal)
	runner := o.runner.WithLogger(log)

	if o.reporter != nil {
		o.reporter.Clear()
		o.reporter.SetLogger(log.Derive("ErrorReporter"))
		defer o.reporter.SetLogger(o.logger.Derive("ErrorReporter"))
	}

	log.InfoWithContext("Cycle started", map[string]interface{}{
		"cycle_id": cycle.ID,
		"accounts": len(accs),
		"active":   cycle.Active,
	})
	o.publish(events.NewCycleStartedEvent(cycle.ID, len(accs), cycle.Active))
	o.updateStatus(func(s *Status) {
		s.Running = true
		s.CycleID = cycle.ID
		s.Pass = 0
		s.Processed = 0
		s.Active = cycle.Active
		s.Account = ""
		s.StartedAt = cycle.StartedAt
	})
	if o.recorder != nil {
		if err := o.recorder.StartCycle(cycle.ID, cycle.Active); err != nil {
			o.report(log, logging.ErrorCategoryStorage, logging.ErrorSeverityLow, "record cycle start", err, nil)
		}
	}

	if o.receiver != nil {
		if err := o.receiver.StartReceiving(ctx); err != nil {
			log.Warnf("Chat commands unavailable: %v", err)
		} else {
			defer o.receiver.StopReceiving()
		}
	}

	outcome := o.runPasses(ctx, cycle, accs, runner, log)
	outcome.Duration = time.Since(cycle.StartedAt)

	o.finish(ctx, cycle, outcome, journal, log)
	return outcome, outcome.Err
}

func (o *Orchestrator) runPasses(ctx context.Context, cycle *Cycle, accs []*accounts.Account, runner *games.Runner, log *logging.Logger) *Outcome {
	outcome := &Outcome{CycleID: cycle.ID, Active: cycle.Active}

	for {
		cycle.Pass++
		outcome.Passes = cycle.Pass
		o.updateStatus(func(s *Status) { s.Pass = cycle.Pass })
		o.metrics.PassStarted(cycle.Active, cycle.Active-cycle.ProcessedCount())

		profileID, err := o.profiles.GeneralProfile(ctx)
		if err != nil {
			outcome.Status = CycleAborted
			outcome.Err = fmt.Errorf("%w: %v", ErrProfileUnavailable, err)
			o.report(log, logging.ErrorCategoryCycle, logging.ErrorSeverityCritical, "resolve general profile", err, nil)
			break
		}

		log.Infof("Pass %d started, %d/%d accounts processed", cycle.Pass, cycle.ProcessedCount(), cycle.Active)
		o.runPass(ctx, cycle, profileID, accs, runner, log)

		o.publish(events.NewPassCompletedEvent(cycle.ID, cycle.Pass, cycle.ProcessedCount(), cycle.Active))
		o.send(ctx, "summary", SummaryText(cycle.Processed()))

		if err := ctx.Err(); err != nil {
			outcome.Status = CycleAborted
			outcome.Err = err
			break
		}
		if cycle.Done() {
			log.Debugf("Processed all %d active accounts", cycle.Active)
			outcome.Status = CycleCompleted
			break
		}
		if cycle.Pass >= o.config.MaxPassesPerCycle {
			log.Warnf("Giving up after %d passes, %d/%d accounts processed",
				cycle.Pass, cycle.ProcessedCount(), cycle.Active)
			outcome.Status = CycleAbandoned
			break
		}
		log.Debugf("Only %d accounts processed, running again", cycle.ProcessedCount())
	}

	outcome.Processed = cycle.Processed()
	outcome.Unprocessed = cycle.Unprocessed(accs)
	outcome.Results = cycle.Results()
	return outcome
}

// runPass visits every pending account once, in random order
func (o *Orchestrator) runPass(ctx context.Context, cycle *Cycle, profileID string, accs []*accounts.Account, runner *games.Runner, log *logging.Logger) {
	order := append([]*accounts.Account(nil), accs...)
	o.pacer.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	for _, acc := range order {
		if ctx.Err() != nil {
			return
		}
		if cycle.IsProcessed(acc.ID) {
			continue
		}
		if !acc.Active {
			log.Debugf("👎 #%s", acc.ID)
			o.publish(events.NewAccountEvent(events.EventTypeAccountSkipped, cycle.ID, acc.ID, "inactive"))
			continue
		}

		log.Debugf("👍 #%s", acc.ID)
		o.updateStatus(func(s *Status) { s.Account = acc.ID })

		started := time.Now()
		results, stage, err := o.runAccount(ctx, profileID, acc, runner, log)

		run := &database.AccountRun{
			CycleID:    cycle.ID,
			Pass:       cycle.Pass,
			AccountID:  acc.ID,
			Username:   acc.Username,
			StartedAt:  started,
			FinishedAt: time.Now(),
			Games:      gameEntries(results),
		}

		if cycle.MarkProcessed(acc, results) {
			run.Status = database.RunProcessed
			o.metrics.AccountProcessed()
			o.publish(events.NewAccountEvent(events.EventTypeAccountProcessed, cycle.ID, acc.ID, ""))
			o.updateStatus(func(s *Status) { s.Processed = cycle.ProcessedCount() })
		} else {
			if err == nil {
				stage, err = stageGames, errors.New("no game produced a result")
			}
			reason := fmt.Sprintf("%s: %v", stage, err)
			run.Status = database.RunFailed
			run.Reason = &reason
			o.metrics.AccountFailed(stage)
			o.publish(events.NewAccountEvent(events.EventTypeAccountFailed, cycle.ID, acc.ID, reason))
		}

		o.recordRun(run, log)
	}
	o.updateStatus(func(s *Status) { s.Account = "" })
}

// runAccount plays every configured game of one account in its own session.
// On failure it returns the stage that failed.
func (o *Orchestrator) runAccount(ctx context.Context, profileID string, acc *accounts.Account, runner *games.Runner, log *logging.Logger) ([]games.Result, string, error) {
	accountCtx := map[string]interface{}{"account_id": acc.ID, "profile_id": profileID}

	if err := o.proxies.UpdateProxy(ctx, profileID, acc.Proxy); err != nil {
		o.report(log, logging.ErrorCategoryNetwork, logging.ErrorSeverityHigh, "update proxy", err, accountCtx)
		return nil, stageProxy, err
	}
	log.Infof("Successfully updated proxy: %s", acc.Proxy)

	sess, err := o.sessions.Open(ctx, profileID)
	if err != nil {
		stage := stageSession
		if errors.Is(err, session.ErrConnectFailed) {
			stage = stageConnect
		}
		o.report(log, logging.ErrorCategorySession, logging.ErrorSeverityHigh, "open browser session", err, accountCtx)
		return nil, stage, err
	}
	o.publish(events.NewSessionEvent(events.EventTypeSessionOpened, acc.ID))
	defer func() {
		if err := sess.Close(ctx); err != nil {
			log.Debugf("Close session for #%s: %v", acc.ID, err)
		}
		o.publish(events.NewSessionEvent(events.EventTypeSessionClosed, acc.ID))
	}()

	for _, link := range acc.Games {
		if link.URL == "" {
			log.Warnf("There is no link to the [%s] app", link.Game)
		}
	}

	var results []games.Result
	for _, link := range acc.Playable() {
		if ctx.Err() != nil {
			break
		}

		started := time.Now()
		res, err := runner.Play(ctx, sess.Browser, link.Game, link.URL)
		elapsed := time.Since(started)
		if err != nil {
			o.report(log, logging.ErrorCategoryGame, logging.ErrorSeverityMedium, fmt.Sprintf("play %s", link.Game), err, accountCtx)
			o.metrics.GamePlayed(string(link.Game), false, elapsed)
			o.publish(events.NewGameCompletedEvent(acc.ID, string(link.Game), false, 0, elapsed))
			continue
		}

		ok := res.Failure == nil
		if res.Resets > 0 {
			log.Infof("[%s] recovered from %d error screens", link.Game, res.Resets)
		}
		o.metrics.GamePlayed(string(link.Game), ok, elapsed)
		o.publish(events.NewGameCompletedEvent(acc.ID, string(link.Game), ok, res.Resets, elapsed))
		results = append(results, res)
	}

	if err := o.pacer.Pause(ctx, o.config.TrailingDelayMin, o.config.TrailingDelayMax); err != nil {
		log.Debugf("Trailing delay cut short: %v", err)
	}
	return results, "", nil
}

// finish reports the outcome, clears per-cycle state and records the end of the cycle
func (o *Orchestrator) finish(ctx context.Context, cycle *Cycle, outcome *Outcome, journal *logging.Journal, log *logging.Logger) {
	// Reports still go out when the cycle's context ended
	sendCtx := context.WithoutCancel(ctx)

	switch outcome.Status {
	case CycleCompleted:
		log.InfoWithContext("Cycle completed", map[string]interface{}{
			"passes":    outcome.Passes,
			"processed": len(outcome.Processed),
		})
		o.sendReports(sendCtx, outcome.Results, log)
	case CycleAbandoned:
		o.send(sendCtx, "abandoned", AbandonedText(outcome.Passes, outcome.Unprocessed))
		o.sendReports(sendCtx, outcome.Results, log)
	case CycleAborted:
		log.Error("Cycle aborted", outcome.Err)
		o.send(sendCtx, "aborted", AbortedText(outcome.Err))
		o.publish(events.NewCycleAbortedEvent(cycle.ID, outcome.Err))
	}

	if o.reporter != nil {
		if text := ErrorStatsText(o.reporter.GetErrorStats()); text != "" {
			o.send(sendCtx, "errors", text)
		}
	}
	if o.config.SendJournal && journal.Len() > 0 {
		o.send(sendCtx, "journal", journal.Report())
	}
	journal.Reset()

	if outcome.Status != CycleAborted {
		o.publish(events.NewCycleFinishedEvent(cycle.ID, outcome.Status == CycleCompleted,
			outcome.Passes, len(outcome.Processed), outcome.Active, outcome.Duration))
	}
	o.metrics.CycleFinished(string(outcome.Status), outcome.Duration)

	if o.recorder != nil {
		err := o.recorder.FinishCycle(cycle.ID, string(outcome.Status), outcome.Passes, len(outcome.Processed), outcome.Err)
		if err != nil {
			o.logger.Warnf("Record cycle end failed: %v", err)
		}
	}

	o.updateStatus(func(s *Status) {
		s.Running = false
		s.Account = ""
		s.LastStatus = outcome.Status
		s.LastFinished = time.Now()
	})
}

// sendReports posts one CSV per game and the optional workbook
func (o *Orchestrator) sendReports(ctx context.Context, results []AccountResult, log *logging.Logger) {
	tables := GroupByGame(results)
	if len(tables) == 0 {
		return
	}

	for _, table := range tables {
		data, err := o.reports.Generate(table.Game, table.Rows)
		if err != nil {
			log.Error(fmt.Sprintf("Build %s report", table.Game), err)
			continue
		}
		o.sendDocument(ctx, report.Filename(table.Game), data, fmt.Sprintf("%s (%d)", table.Game, len(table.Rows)))
	}

	if o.config.SendWorkbook {
		data, err := o.reports.Workbook(tables)
		if err != nil {
			log.Error("Build workbook", err)
			return
		}
		o.sendDocument(ctx, fmt.Sprintf("results_%s.xlsx", time.Now().Format("2006-01-02_15-04")), data, "")
	}
}

func (o *Orchestrator) send(ctx context.Context, kind, text string) {
	if o.notifier == nil {
		return
	}
	err := o.notifier.SendMessage(ctx, text)
	o.metrics.Notification(kind, err == nil)
	if err != nil {
		o.logger.Warnf("Send %s message failed: %v", kind, err)
	}
}

func (o *Orchestrator) sendDocument(ctx context.Context, filename string, data []byte, caption string) {
	if o.notifier == nil {
		return
	}
	err := o.notifier.SendDocument(ctx, filename, data, caption)
	o.metrics.Notification("document", err == nil)
	if err != nil {
		o.logger.Warnf("Send %s failed: %v", filename, err)
	}
}

func (o *Orchestrator) publish(event events.Event) {
	if o.eventBus != nil {
		o.eventBus.PublishAsync(event)
	}
}

// report logs err through the cycle logger, or through the error reporter when one is set
func (o *Orchestrator) report(log *logging.Logger, category logging.ErrorCategory, severity logging.ErrorSeverity, message string, err error, context map[string]interface{}) {
	if o.reporter != nil {
		o.reporter.ReportErrorWithContext(category, severity, "Orchestrator", message, err, context)
		return
	}
	log.ErrorWithContext(message, err, context)
}

func (o *Orchestrator) recordRun(run *database.AccountRun, log *logging.Logger) {
	if o.recorder == nil {
		return
	}
	if _, err := o.recorder.RecordAccountRun(run); err != nil {
		log.Debugf("Record run of #%s failed: %v", run.AccountID, err)
	}
}

// gameEntries converts results into their stored form
func gameEntries(results []games.Result) []database.GameEntry {
	entries := make([]database.GameEntry, 0, len(results))
	for _, r := range results {
		entry := database.GameEntry{
			Game:    string(r.Game),
			Metrics: make(map[string]*int64, len(r.Metrics)),
		}
		if r.Failure != nil {
			entry.Failure = r.Failure.Error()
		}
		for name, amount := range r.Metrics {
			if v, ok := amount.Value(); ok {
				entry.Metrics[name] = &v
			} else {
				entry.Metrics[name] = nil
			}
		}
		entries = append(entries, entry)
	}
	return entries
}
