// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) initializer to build a Config with defaults.
// - All functions accept context.Context as the first parameter.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// DefaultTimeMachineMin is the earliest instant the time machine can show.
const DefaultTimeMachineMin = "2017-01-04T00:00:00Z"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`
	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`
	// DatabasePath is the SQLite database file.
	DatabasePath string `koanf:"database_path"`

	// ListSize is the last position of the main list.
	ListSize int `koanf:"list_size"`
	// ExtendedListSize is the last position of the extended list.
	ExtendedListSize int `koanf:"extended_list_size"`
	// TimeMachineMin is the RFC3339 lower bound for time machine requests.
	TimeMachineMin string `koanf:"time_machine_min"`

	// QueueSize bounds the in-memory record submission queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of submission workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets the size of the submission video de-duplication cache.
	DedupeSize int `koanf:"dedupe_size"`
	// MaxRankingLimit caps GET /api/v1/players/ranking?limit.
	MaxRankingLimit int `koanf:"max_ranking_limit"`

	// AddDemonInterval is the minimum spacing between two demon additions.
	// Zero disables the limit.
	AddDemonInterval time.Duration `koanf:"add_demon_interval"`
	// SubmissionsPerIP submissions are allowed per SubmissionIPWindow from one address.
	SubmissionsPerIP   int           `koanf:"submissions_per_ip"`
	SubmissionIPWindow time.Duration `koanf:"submission_ip_window"`
	// SubmissionsGlobal submissions are allowed per SubmissionGlobalWindow overall.
	// For both submission limits a count of zero disables the limit.
	SubmissionsGlobal      int           `koanf:"submissions_global"`
	SubmissionGlobalWindow time.Duration `koanf:"submission_global_window"`

	// MetricsNamespace and MetricsSubsystem prefix every metric name.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`
	// MetricsInstance, when set, labels every metric with instance=<value>.
	MetricsInstance string `koanf:"metrics_instance"`
}

// New creates a Config populated with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":8088",
		DatabasePath:           "demonlist.db",
		ListSize:               75,
		ExtendedListSize:       150,
		TimeMachineMin:         DefaultTimeMachineMin,
		QueueSize:              10_000,
		WorkerCount:            runtime.NumCPU(),
		DedupeSize:             50_000,
		MaxRankingLimit:        100,
		AddDemonInterval:       time.Minute,
		SubmissionsPerIP:       3,
		SubmissionIPWindow:     20 * time.Minute,
		SubmissionsGlobal:      20,
		SubmissionGlobalWindow: time.Hour,
		MetricsNamespace:       "pointercrate",
		MetricsSubsystem:       "demonlist",
	}
}

// Validate checks cross-field invariants.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DatabasePath == "":
		return fmt.Errorf("%w: database_path must not be empty", ErrInvalidConfig)
	case c.ListSize < 1:
		return fmt.Errorf("%w: list_size must be positive", ErrInvalidConfig)
	case c.ExtendedListSize <= c.ListSize:
		return fmt.Errorf("%w: extended_list_size (%d) must exceed list_size (%d)",
			ErrInvalidConfig, c.ExtendedListSize, c.ListSize)
	}
	if _, err := c.TimeMachineFloor(); err != nil {
		return err
	}
	return c.validateRateLimits()
}

func (c *Config) validateRateLimits() error {
	if c.AddDemonInterval < 0 {
		return fmt.Errorf("%w: add_demon_interval must not be negative", ErrInvalidConfig)
	}
	limits := []struct {
		name   string
		n      int
		window time.Duration
	}{
		{"submissions_per_ip", c.SubmissionsPerIP, c.SubmissionIPWindow},
		{"submissions_global", c.SubmissionsGlobal, c.SubmissionGlobalWindow},
	}
	for _, l := range limits {
		switch {
		case l.n < 0:
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, l.name)
		case l.n > 0 && l.window <= 0:
			return fmt.Errorf("%w: %s needs a positive window", ErrInvalidConfig, l.name)
		}
	}
	return nil
}

// TimeMachineFloor parses TimeMachineMin.
func (c *Config) TimeMachineFloor() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, c.TimeMachineMin)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time_machine_min: %v", ErrInvalidConfig, err)
	}
	return t.UTC(), nil
}
