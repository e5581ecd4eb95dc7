package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"jordanella.com/tapfarm/internal/accounts"
	"jordanella.com/tapfarm/internal/ads"
	"jordanella.com/tapfarm/internal/bot"
	"jordanella.com/tapfarm/internal/browser"
	"jordanella.com/tapfarm/internal/config"
	"jordanella.com/tapfarm/internal/database"
	"jordanella.com/tapfarm/internal/events"
	"jordanella.com/tapfarm/internal/games"
	"jordanella.com/tapfarm/internal/jitter"
	"jordanella.com/tapfarm/internal/logging"
	"jordanella.com/tapfarm/internal/metrics"
	"jordanella.com/tapfarm/internal/notify"
	"jordanella.com/tapfarm/internal/scheduler"
	"jordanella.com/tapfarm/internal/session"
)

// chatNotifier is what the daemon needs from the chat side
type chatNotifier interface {
	bot.Notifier
	scheduler.Announcer
}

func main() {
	configPath := flag.String("config", "settings.ini", "Path to settings file")
	envPath := flag.String("env", ".env", "Path to .env file with secrets")
	once := flag.Bool("once", false, "Run one cycle and exit")
	history := flag.Int("history", 0, "Print the last N cycles from the database and exit")
	backup := flag.String("backup", "", "Copy the database to this path before pruning history")
	rollback := flag.Int("rollback", 0, "Revert schema migrations newer than this version and exit")
	flag.Parse()

	settings, err := config.Load(*configPath, *envPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLogger("Main")
	logger.SetMinLevel(logging.ParseLevel(settings.LogLevel))

	if err := os.MkdirAll(filepath.Dir(settings.DatabasePath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}
	db, err := database.Open(settings.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	if *history > 0 {
		if err := printHistory(os.Stdout, db, *history); err != nil {
			log.Fatalf("Failed to read history: %v", err)
		}
		return
	}

	if *rollback > 0 {
		if err := db.RollbackTo(*rollback); err != nil {
			log.Fatalf("Failed to roll back migrations: %v", err)
		}
		return
	}

	var cutoff time.Time
	if settings.HistoryDays > 0 {
		cutoff = time.Now().AddDate(0, 0, -settings.HistoryDays)
	}
	if err := maintain(db, cutoff, *backup, logger); err != nil {
		log.Fatalf("Failed to prepare database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, settings, db, logger, *once)
	if code := exitCode(err); code != 0 {
		logger.Fatal("Daemon stopped", err)
		db.Close()
		os.Exit(code)
	}
	logger.Info("Shutdown complete")
}

// exitCode maps the daemon result to a process status; shutdown by signal is clean
func exitCode(err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	return 1
}

func run(ctx context.Context, settings *config.Settings, db *database.DB, logger *logging.Logger, once bool) error {
	eventBus := events.NewEventBus(256)
	defer eventBus.Stop()

	eventLogger, err := logging.NewEventLogger(eventBus, settings.LogDir)
	if err != nil {
		return err
	}
	defer eventLogger.Close()

	m := metrics.New()
	if settings.MetricsAddr != "" {
		server := &http.Server{Addr: settings.MetricsAddr, Handler: metricsMux(m)}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
		logger.Infof("Serving metrics on %s", settings.MetricsAddr)
	}

	chat, telegram := newNotifier(settings, logger)

	reporter := logging.NewErrorReporter(logger.Derive("Errors"))

	pacer := jitter.NewPacer()
	adsClient := ads.NewClient(settings.AdsBaseURL, settings.RequestsPerSecond, logger.Derive("Ads"))

	acquirer := session.NewAcquirer(adsClient, pacer, logger.Derive("Session"), settings.AcquireAttempts)
	acquirer.SetAttemptObserver(m.AcquireAttempt)
	sessions := session.NewManager(acquirer, browser.NewChromeConnector(), adsClient, logger.Derive("Session"))

	runner := games.NewRunner(pacer, logger.Derive("Games"), games.DefaultDriverOptions())
	runner.SetErrorReporter(reporter)

	orch := bot.NewOrchestrator(settings.BotConfig(), adsClient, adsClient, sessions, runner, chat, logger.Derive("Orchestrator"))
	orch.SetPacer(pacer)
	orch.SetErrorReporter(reporter)
	orch.SetEventBus(eventBus)
	orch.SetMetrics(m)
	orch.SetRecorder(db)

	persistErrors(reporter, db, orch)
	reporter.OnError(logging.ErrorSeverityCritical, func(r *logging.ErrorReport) {
		eventBus.PublishAsync(events.NewErrorEvent("ErrorReporter", r.Component, r.Error, map[string]interface{}{
			"category": string(r.Category),
			"message":  r.Message,
		}))
	})

	source := func() ([]*accounts.Account, error) {
		return accounts.Load(settings.AccountsFile)
	}

	var announcer scheduler.Announcer = chat
	if !settings.PinSchedule {
		announcer = nil
	}
	sched := scheduler.New(settings.SchedulerConfig(), orch, source, announcer, logger.Derive("Scheduler"))
	sched.SetPacer(pacer)
	sched.SetErrorReporter(reporter)
	sched.SetEventBus(eventBus)
	sched.SetMetrics(m)

	if telegram != nil {
		telegram.Handle("status", func(ctx context.Context, args string) string {
			return statusReply(orch.Status(), sched.NextFire())
		})
		orch.SetReceiver(telegram)
	}

	if once {
		sched.Fire(ctx)
		return nil
	}
	return sched.Run(ctx)
}

// newNotifier returns Telegram when configured, otherwise the local fallback
func newNotifier(settings *config.Settings, logger *logging.Logger) (chatNotifier, *notify.Telegram) {
	telegram, err := notify.NewTelegram(notify.TelegramConfig{
		BotToken:    settings.TelegramToken,
		ChatID:      settings.ReceiverID,
		PollTimeout: 30 * time.Second,
	}, logger.Derive("Telegram"))
	if err == nil {
		return telegram, telegram
	}
	if errors.Is(err, notify.ErrNotConfigured) {
		logger.Warnf("Telegram is not configured, writing reports to %s", settings.ReportDir)
	} else {
		logger.Error("Telegram setup failed", err)
	}
	return notify.NewLocal(settings.ReportDir, logger.Derive("Notify")), nil
}

// persistErrors copies every reported error into the error log table
func persistErrors(reporter *logging.ErrorReporter, db *database.DB, orch *bot.Orchestrator) {
	save := func(r *logging.ErrorReport) {
		cycleID := ""
		if status := orch.Status(); status.Running {
			cycleID = status.CycleID
		}
		_, err := db.LogError(cycleID, string(r.Category), string(r.Severity), r.Component, r.Message, r.Error)
		if err != nil {
			log.Printf("Failed to persist error report: %v", err)
		}
	}
	for _, severity := range []logging.ErrorSeverity{
		logging.ErrorSeverityLow,
		logging.ErrorSeverityMedium,
		logging.ErrorSeverityHigh,
		logging.ErrorSeverityCritical,
	} {
		reporter.OnError(severity, save)
	}
}

func statusReply(status bot.Status, nextFire time.Time) string {
	text := bot.StatusText(status)
	if !nextFire.IsZero() {
		text += fmt.Sprintf("\r\n🕒 Next fire on <b>%s</b>", nextFire.Format(scheduler.TimeFormat))
	}
	return text
}

func metricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
