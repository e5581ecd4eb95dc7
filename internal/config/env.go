package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variable names
const (
	EnvTelegramToken = "TG_TOKEN"
	EnvReceiverID    = "TG_RECEIVER_ID"
	EnvInitRun       = "INIT_RUN"
	EnvAdsURL        = "ADS_API_URL"
)

// LoadEnv reads a .env file into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto s
func (s *Settings) ApplyEnv() error {
	return s.applyEnv(os.LookupEnv)
}

func (s *Settings) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvTelegramToken); ok {
		s.TelegramToken = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvReceiverID); ok && strings.TrimSpace(v) != "" {
		s.ReceiverID = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvAdsURL); ok && strings.TrimSpace(v) != "" {
		s.AdsBaseURL = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvInitRun); ok && strings.TrimSpace(v) != "" {
		run, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvInitRun, err)
		}
		s.RunImmediately = run
	}
	return nil
}

// Load reads the optional .env file, then settings.ini (defaults when the
// file does not exist), then overlays the environment.
func Load(iniPath, envPath string) (*Settings, error) {
	if err := LoadEnv(envPath); err != nil {
		return nil, err
	}

	s := NewDefaultConfig()
	if iniPath != "" {
		if _, err := os.Stat(iniPath); err == nil {
			loaded, err := LoadFromINI(iniPath)
			if err != nil {
				return nil, err
			}
			s = loaded
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	if err := s.ApplyEnv(); err != nil {
		return nil, err
	}
	return s, s.Validate()
}
