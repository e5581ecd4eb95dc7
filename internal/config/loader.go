package config

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"

	"jordanella.com/tapfarm/internal/ads"
	"jordanella.com/tapfarm/internal/bot"
	"jordanella.com/tapfarm/internal/logging"
	"jordanella.com/tapfarm/internal/scheduler"
)

// Settings is everything read from settings.ini and the environment
type Settings struct {
	// Schedule
	MinMinutes        int
	MaxMinutes        int
	RunImmediately    bool
	MaxPassesPerCycle int

	// Ads
	AdsBaseURL        string
	RequestsPerSecond float64
	AcquireAttempts   int

	// Paths
	AccountsFile string
	DatabasePath string
	LogDir       string
	ReportDir    string
	// HistoryDays is how long finished cycles stay in the database; 0 keeps everything
	HistoryDays int

	// Telegram. The token only ever comes from the environment.
	TelegramToken string
	ReceiverID    string
	PinSchedule   bool
	SendJournal   bool
	SendWorkbook  bool

	// Metrics
	MetricsAddr string

	// Logging
	LogLevel     string
	JournalLevel string
}

// NewDefaultConfig creates settings with default values
func NewDefaultConfig() *Settings {
	return &Settings{
		MinMinutes:        181,
		MaxMinutes:        228,
		RunImmediately:    false,
		MaxPassesPerCycle: 5,
		AdsBaseURL:        ads.DefaultBaseURL,
		RequestsPerSecond: 1,
		AcquireAttempts:   3,
		AccountsFile:      "data/apps.json",
		DatabasePath:      "data/tapfarm.db",
		LogDir:            "logs",
		ReportDir:         "reports",
		HistoryDays:       30,
		PinSchedule:       true,
		SendJournal:       true,
		SendWorkbook:      false,
		MetricsAddr:       "",
		LogLevel:          "INFO",
		JournalLevel:      "INFO",
	}
}

// LoadFromINI loads settings from an INI file; missing keys keep their defaults
func LoadFromINI(path string) (*Settings, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	def := NewDefaultConfig()
	s := &Settings{}

	schedule := cfg.Section("Schedule")
	s.MinMinutes = schedule.Key("minMinutes").MustInt(def.MinMinutes)
	s.MaxMinutes = schedule.Key("maxMinutes").MustInt(def.MaxMinutes)
	s.RunImmediately = schedule.Key("runImmediately").MustBool(def.RunImmediately)
	s.MaxPassesPerCycle = schedule.Key("maxPasses").MustInt(def.MaxPassesPerCycle)

	adsSection := cfg.Section("Ads")
	s.AdsBaseURL = adsSection.Key("baseURL").MustString(def.AdsBaseURL)
	s.RequestsPerSecond = adsSection.Key("requestsPerSecond").MustFloat64(def.RequestsPerSecond)
	s.AcquireAttempts = adsSection.Key("acquireAttempts").MustInt(def.AcquireAttempts)

	paths := cfg.Section("Paths")
	s.AccountsFile = paths.Key("accounts").MustString(def.AccountsFile)
	s.DatabasePath = paths.Key("database").MustString(def.DatabasePath)
	s.LogDir = paths.Key("logs").MustString(def.LogDir)
	s.ReportDir = paths.Key("reports").MustString(def.ReportDir)
	s.HistoryDays = paths.Key("historyDays").MustInt(def.HistoryDays)

	telegram := cfg.Section("Telegram")
	s.ReceiverID = telegram.Key("receiverID").MustString(def.ReceiverID)
	s.PinSchedule = telegram.Key("pinSchedule").MustBool(def.PinSchedule)
	s.SendJournal = telegram.Key("sendJournal").MustBool(def.SendJournal)
	s.SendWorkbook = telegram.Key("sendWorkbook").MustBool(def.SendWorkbook)

	s.MetricsAddr = cfg.Section("Metrics").Key("listen").MustString(def.MetricsAddr)

	logSection := cfg.Section("Logging")
	s.LogLevel = strings.ToUpper(logSection.Key("level").MustString(def.LogLevel))
	s.JournalLevel = strings.ToUpper(logSection.Key("journal").MustString(def.JournalLevel))

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return s, nil
}

// SaveToINI saves settings to an INI file. The Telegram token is never written.
func SaveToINI(s *Settings, path string) error {
	cfg := ini.Empty()

	schedule := cfg.Section("Schedule")
	schedule.Key("minMinutes").SetValue(fmt.Sprintf("%d", s.MinMinutes))
	schedule.Key("maxMinutes").SetValue(fmt.Sprintf("%d", s.MaxMinutes))
	schedule.Key("runImmediately").SetValue(fmt.Sprintf("%t", s.RunImmediately))
	schedule.Key("maxPasses").SetValue(fmt.Sprintf("%d", s.MaxPassesPerCycle))

	adsSection := cfg.Section("Ads")
	adsSection.Key("baseURL").SetValue(s.AdsBaseURL)
	adsSection.Key("requestsPerSecond").SetValue(fmt.Sprintf("%g", s.RequestsPerSecond))
	adsSection.Key("acquireAttempts").SetValue(fmt.Sprintf("%d", s.AcquireAttempts))

	paths := cfg.Section("Paths")
	paths.Key("accounts").SetValue(s.AccountsFile)
	paths.Key("database").SetValue(s.DatabasePath)
	paths.Key("logs").SetValue(s.LogDir)
	paths.Key("reports").SetValue(s.ReportDir)
	paths.Key("historyDays").SetValue(fmt.Sprintf("%d", s.HistoryDays))

	telegram := cfg.Section("Telegram")
	telegram.Key("receiverID").SetValue(s.ReceiverID)
	telegram.Key("pinSchedule").SetValue(fmt.Sprintf("%t", s.PinSchedule))
	telegram.Key("sendJournal").SetValue(fmt.Sprintf("%t", s.SendJournal))
	telegram.Key("sendWorkbook").SetValue(fmt.Sprintf("%t", s.SendWorkbook))

	cfg.Section("Metrics").Key("listen").SetValue(s.MetricsAddr)

	logSection := cfg.Section("Logging")
	logSection.Key("level").SetValue(s.LogLevel)
	logSection.Key("journal").SetValue(s.JournalLevel)

	return cfg.SaveTo(path)
}

// Validate rejects settings the daemon cannot run with
func (s *Settings) Validate() error {
	if s.MinMinutes < 1 || s.MaxMinutes < s.MinMinutes {
		return fmt.Errorf("schedule window %d-%d minutes is empty", s.MinMinutes, s.MaxMinutes)
	}
	if s.MaxPassesPerCycle < 1 {
		return fmt.Errorf("maxPasses must be at least 1, got %d", s.MaxPassesPerCycle)
	}
	if s.AcquireAttempts < 1 {
		return fmt.Errorf("acquireAttempts must be at least 1, got %d", s.AcquireAttempts)
	}
	if s.HistoryDays < 0 {
		return fmt.Errorf("historyDays cannot be negative, got %d", s.HistoryDays)
	}
	if s.AccountsFile == "" {
		return fmt.Errorf("accounts path is empty")
	}
	return nil
}

// BotConfig derives the orchestrator configuration
func (s *Settings) BotConfig() *bot.Config {
	c := bot.NewDefaultConfig()
	c.MaxPassesPerCycle = s.MaxPassesPerCycle
	c.JournalLevel = logging.ParseLevel(s.JournalLevel)
	c.SendJournal = s.SendJournal
	c.SendWorkbook = s.SendWorkbook
	return c
}

// SchedulerConfig derives the fire window
func (s *Settings) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		MinMinutes: s.MinMinutes,
		MaxMinutes: s.MaxMinutes,
		Immediate:  s.RunImmediately,
	}
}
