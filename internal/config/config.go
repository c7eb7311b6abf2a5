package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Config is the fully parsed application configuration.
type Config struct {
	Log       LogConfig
	Telegram  TelegramConfig
	Store     StoreConfig
	Broadcast BroadcastConfig
}

type LogConfig struct {
	Level string
}

type TelegramConfig struct {
	Token       string
	PollTimeout time.Duration
}

type StoreConfig struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration
}

type BroadcastConfig struct {
	MessageDelay  time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	ProgressEvery int
}

// fileConfig mirrors the YAML document. Durations are strings so operators
// can write "50ms" or "1h30m".
type fileConfig struct {
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Telegram struct {
		Token       string `yaml:"token"`
		PollTimeout string `yaml:"poll_timeout"`
	} `yaml:"telegram"`
	Store struct {
		Driver      string `yaml:"driver"`
		Path        string `yaml:"path"`
		BusyTimeout string `yaml:"busy_timeout"`
	} `yaml:"store"`
	Broadcast struct {
		MessageDelay  string `yaml:"message_delay"`
		MaxRetries    int    `yaml:"max_retries"`
		RetryDelay    string `yaml:"retry_delay"`
		ProgressEvery int    `yaml:"progress_every"`
	} `yaml:"broadcast"`
}

// Load reads and validates a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

// Parse decodes and validates YAML config bytes.
func Parse(data []byte) (Config, error) {
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return Config{}, fmt.Errorf("config decode: %w", err)
	}

	var (
		cfg Config
		err error
	)
	cfg.Log.Level = fc.Log.Level
	cfg.Telegram.Token = strings.TrimSpace(fc.Telegram.Token)

	if cfg.Telegram.PollTimeout, err = durationField("telegram.poll_timeout", fc.Telegram.PollTimeout); err != nil {
		return Config{}, err
	}

	cfg.Store.Driver = fc.Store.Driver
	cfg.Store.Path = fc.Store.Path
	if cfg.Store.BusyTimeout, err = durationField("store.busy_timeout", fc.Store.BusyTimeout); err != nil {
		return Config{}, err
	}

	if cfg.Broadcast.MessageDelay, err = durationField("broadcast.message_delay", fc.Broadcast.MessageDelay); err != nil {
		return Config{}, err
	}
	if cfg.Broadcast.RetryDelay, err = durationField("broadcast.retry_delay", fc.Broadcast.RetryDelay); err != nil {
		return Config{}, err
	}
	cfg.Broadcast.MaxRetries = fc.Broadcast.MaxRetries
	cfg.Broadcast.ProgressEvery = fc.Broadcast.ProgressEvery

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Telegram.Token == "" {
		return errors.New("telegram.token is required")
	}
	if c.Broadcast.MaxRetries < 0 {
		return errors.New("broadcast.max_retries must be >= 0")
	}
	if c.Broadcast.ProgressEvery < 0 {
		return errors.New("broadcast.progress_every must be >= 0")
	}
	return nil
}

func durationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}
