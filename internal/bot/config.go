package bot

import (
	"time"

	"jordanella.com/tapfarm/internal/logging"
)

// Config controls how a cycle walks the account list
type Config struct {
	// MaxPassesPerCycle bounds how many passes a cycle makes before it is abandoned
	MaxPassesPerCycle int

	// Delay after the last game of an account, before its session closes
	TrailingDelayMin time.Duration
	TrailingDelayMax time.Duration

	// JournalLevel is the lowest level copied into the chat narrative
	JournalLevel logging.LogLevel
	// SendJournal posts the narrative after each cycle
	SendJournal bool
	// SendWorkbook posts an XLSX workbook next to the CSV reports
	SendWorkbook bool
}

// NewDefaultConfig creates a config with default values
func NewDefaultConfig() *Config {
	return &Config{
		MaxPassesPerCycle: 5,
		TrailingDelayMin:  4 * time.Second,
		TrailingDelayMax:  8 * time.Second,
		JournalLevel:      logging.LogLevelInfo,
		SendJournal:       true,
		SendWorkbook:      false,
	}
}

func (c *Config) withDefaults() *Config {
	def := NewDefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.MaxPassesPerCycle < 1 {
		out.MaxPassesPerCycle = def.MaxPassesPerCycle
	}
	if out.TrailingDelayMax <= 0 {
		out.TrailingDelayMin = def.TrailingDelayMin
		out.TrailingDelayMax = def.TrailingDelayMax
	}
	if out.JournalLevel == "" {
		out.JournalLevel = def.JournalLevel
	}
	return &out
}
