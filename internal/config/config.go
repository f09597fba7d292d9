package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/fakeyudi/focuspet/internal/health"
)

// Config holds all configurable focuspet settings.
type Config struct {
	HealAmount   int `json:"heal_amount" toml:"heal_amount"`
	DamageAmount int `json:"damage_amount" toml:"damage_amount"`
	GraceSeconds int `json:"grace_seconds" toml:"grace_seconds"`

	WorkSeconds          int `json:"work_seconds" toml:"work_seconds"`
	FallbackBreakSeconds int `json:"fallback_break_seconds" toml:"fallback_break_seconds"`
	MinBreakSeconds      int `json:"min_break_seconds" toml:"min_break_seconds"`
	MaxBreakSeconds      int `json:"max_break_seconds" toml:"max_break_seconds"`

	RequestTimeoutSeconds int `json:"request_timeout_seconds" toml:"request_timeout_seconds"`
	StaleFocusSeconds     int `json:"stale_focus_seconds" toml:"stale_focus_seconds"`

	APIURL      string `json:"api_url" toml:"api_url"`
	GazeURL     string `json:"gaze_url" toml:"gaze_url"`
	ListenAddr  string `json:"listen_addr" toml:"listen_addr"`
	DatabaseURL string `json:"database_url" toml:"database_url"` // empty: sqlite in the data dir
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	h := health.DefaultConfig()
	return Config{
		HealAmount:            h.HealAmount,
		DamageAmount:          h.DamageAmount,
		GraceSeconds:          h.GraceTicks,
		WorkSeconds:           1500,
		FallbackBreakSeconds:  300,
		MinBreakSeconds:       60,
		MaxBreakSeconds:       3600,
		RequestTimeoutSeconds: 5,
		StaleFocusSeconds:     5,
		APIURL:                "http://127.0.0.1:5000",
		GazeURL:               "http://127.0.0.1:5000",
		ListenAddr:            "127.0.0.1:5000",
	}
}

// Dir returns the focuspet config directory:
// $XDG_CONFIG_HOME/focuspet or ~/.config/focuspet.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "focuspet"), nil
}

// LoadGlobal reads config.toml (or config.json) from the config directory.
// Returns defaults if neither file exists.
func LoadGlobal() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	cfg, err := loadFile(filepath.Join(dir, "config.toml"), false)
	if err != nil || cfg != nil {
		return cfg, err
	}
	return loadFile(filepath.Join(dir, "config.json"), true)
}

// LoadProject reads .focuspetconfig in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(".focuspetconfig", false)
}

// loadFile reads and parses a config file at path. Files ending in .toml are
// decoded as TOML, everything else as JSON.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if filepath.Ext(path) == ".toml" {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	overlay(&result, global)
	overlay(&result, project)
	return result
}

// overlay copies every set (non-zero) field of src onto dst.
func overlay(dst, src *Config) {
	if src == nil {
		return
	}
	ints := []struct{ dst, src *int }{
		{&dst.HealAmount, &src.HealAmount},
		{&dst.DamageAmount, &src.DamageAmount},
		{&dst.GraceSeconds, &src.GraceSeconds},
		{&dst.WorkSeconds, &src.WorkSeconds},
		{&dst.FallbackBreakSeconds, &src.FallbackBreakSeconds},
		{&dst.MinBreakSeconds, &src.MinBreakSeconds},
		{&dst.MaxBreakSeconds, &src.MaxBreakSeconds},
		{&dst.RequestTimeoutSeconds, &src.RequestTimeoutSeconds},
		{&dst.StaleFocusSeconds, &src.StaleFocusSeconds},
	}
	for _, f := range ints {
		if *f.src != 0 {
			*f.dst = *f.src
		}
	}
	strs := []struct{ dst, src *string }{
		{&dst.APIURL, &src.APIURL},
		{&dst.GazeURL, &src.GazeURL},
		{&dst.ListenAddr, &src.ListenAddr},
		{&dst.DatabaseURL, &src.DatabaseURL},
	}
	for _, f := range strs {
		if *f.src != "" {
			*f.dst = *f.src
		}
	}
}

// envConfig mirrors Config for FOCUSPET_* variables. Pointer fields stay nil
// when a variable is unset, so only exported variables override files.
type envConfig struct {
	HealAmount            *int    `env:"FOCUSPET_HEAL_AMOUNT"`
	DamageAmount          *int    `env:"FOCUSPET_DAMAGE_AMOUNT"`
	GraceSeconds          *int    `env:"FOCUSPET_GRACE_SECONDS"`
	WorkSeconds           *int    `env:"FOCUSPET_WORK_SECONDS"`
	FallbackBreakSeconds  *int    `env:"FOCUSPET_FALLBACK_BREAK_SECONDS"`
	MinBreakSeconds       *int    `env:"FOCUSPET_MIN_BREAK_SECONDS"`
	MaxBreakSeconds       *int    `env:"FOCUSPET_MAX_BREAK_SECONDS"`
	RequestTimeoutSeconds *int    `env:"FOCUSPET_REQUEST_TIMEOUT_SECONDS"`
	StaleFocusSeconds     *int    `env:"FOCUSPET_STALE_FOCUS_SECONDS"`
	APIURL                *string `env:"FOCUSPET_API_URL"`
	GazeURL               *string `env:"FOCUSPET_GAZE_URL"`
	ListenAddr            *string `env:"FOCUSPET_LISTEN_ADDR"`
	DatabaseURL           *string `env:"FOCUSPET_DATABASE_URL"`
}

// LoadEnv applies FOCUSPET_* environment variables on top of cfg.
func LoadEnv(cfg *Config) error {
	var e envConfig
	if err := env.Parse(&e); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setInt(&cfg.HealAmount, e.HealAmount)
	setInt(&cfg.DamageAmount, e.DamageAmount)
	setInt(&cfg.GraceSeconds, e.GraceSeconds)
	setInt(&cfg.WorkSeconds, e.WorkSeconds)
	setInt(&cfg.FallbackBreakSeconds, e.FallbackBreakSeconds)
	setInt(&cfg.MinBreakSeconds, e.MinBreakSeconds)
	setInt(&cfg.MaxBreakSeconds, e.MaxBreakSeconds)
	setInt(&cfg.RequestTimeoutSeconds, e.RequestTimeoutSeconds)
	setInt(&cfg.StaleFocusSeconds, e.StaleFocusSeconds)
	setStr(&cfg.APIURL, e.APIURL)
	setStr(&cfg.GazeURL, e.GazeURL)
	setStr(&cfg.ListenAddr, e.ListenAddr)
	setStr(&cfg.DatabaseURL, e.DatabaseURL)
	return nil
}

// Load resolves the full configuration: defaults, global file, project
// file, then environment.
func Load() (Config, error) {
	global, err := LoadGlobal()
	if err != nil {
		return Config{}, err
	}
	project, err := LoadProject()
	if err != nil {
		return Config{}, err
	}
	cfg := Merge(global, project)
	if err := LoadEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the session cannot run with.
func (c Config) Validate() error {
	if err := c.Health().Validate(); err != nil {
		return err
	}
	if c.WorkSeconds <= 0 {
		return fmt.Errorf("work_seconds must be positive, got %d", c.WorkSeconds)
	}
	if c.MinBreakSeconds <= 0 || c.MaxBreakSeconds < c.MinBreakSeconds {
		return fmt.Errorf("invalid break bounds [%d, %d]", c.MinBreakSeconds, c.MaxBreakSeconds)
	}
	if c.FallbackBreakSeconds < c.MinBreakSeconds || c.FallbackBreakSeconds > c.MaxBreakSeconds {
		return fmt.Errorf("fallback_break_seconds %d outside [%d, %d]",
			c.FallbackBreakSeconds, c.MinBreakSeconds, c.MaxBreakSeconds)
	}
	if c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("request_timeout_seconds must be positive, got %d", c.RequestTimeoutSeconds)
	}
	if c.StaleFocusSeconds <= 0 {
		return fmt.Errorf("stale_focus_seconds must be positive, got %d", c.StaleFocusSeconds)
	}
	return nil
}

// Health returns the vitality curve. One tick is one second, so the grace
// period in seconds is also the grace period in ticks.
func (c Config) Health() health.Config {
	return health.Config{
		HealAmount:   c.HealAmount,
		DamageAmount: c.DamageAmount,
		GraceTicks:   c.GraceSeconds,
	}
}

// RequestTimeout bounds every collaborator request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// StaleFocus is how old the last telemetry sample may be before focus is
// treated as unknown.
func (c Config) StaleFocus() time.Duration {
	return time.Duration(c.StaleFocusSeconds) * time.Second
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
