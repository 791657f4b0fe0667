package config

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/knadh/koanf/providers/file"

	"github.com/pointercrate/demonlist/pkg/logger"
	"github.com/pointercrate/demonlist/pkg/metrics"
)

// Live holds the active Config and swaps it atomically on reload.
// List sizes are read through Live on every call so that a reload takes
// effect for the next request without a restart.
type Live struct {
	cur  atomic.Pointer[Config]
	path string
}

// NewLive wraps cfg. path is the YAML file Watch reloads from.
func NewLive(cfg *Config, path string) *Live {
	l := &Live{path: path}
	l.cur.Store(cfg)
	return l
}

// Current returns the active snapshot. Callers must not mutate it.
func (l *Live) Current() *Config { return l.cur.Load() }

// ListSize returns the current main list size.
func (l *Live) ListSize() int { return l.cur.Load().ListSize }

// ExtendedListSize returns the current extended list size.
func (l *Live) ExtendedListSize() int { return l.cur.Load().ExtendedListSize }

// TimeMachineMin returns the earliest instant the time machine serves.
func (l *Live) TimeMachineMin() time.Time {
	t, err := l.cur.Load().TimeMachineFloor()
	if err != nil {
		// Validated on Store; only reachable for a hand-built Config.
		t, _ = time.Parse(time.RFC3339, DefaultTimeMachineMin)
	}
	return t
}

// Store validates cfg and makes it the active snapshot.
func (l *Live) Store(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	l.cur.Store(cfg)
	return nil
}

// Reload re-reads the file and environment layers.
func (l *Live) Reload(ctx context.Context) error {
	cfg, err := LoadFile(ctx, l.path)
	if err != nil {
		metrics.RecordConfigReload("error")
		return err
	}
	if err := l.Store(cfg); err != nil {
		metrics.RecordConfigReload("error")
		return err
	}
	metrics.RecordConfigReload("ok")
	return nil
}

// Watch reloads whenever the config file changes, until ctx is done.
// It returns immediately with nil when no file path is configured.
func (l *Live) Watch(ctx context.Context) error {
	if l.path == "" {
		return nil
	}
	log := logger.Get().Named("config")
	fp := file.Provider(l.path)
	err := fp.Watch(func(_ interface{}, err error) {
		if err != nil {
			log.Warn(ctx, "config watch error", logger.Error(err))
			return
		}
		if err := l.Reload(ctx); err != nil {
			log.Warn(ctx, "config reload rejected, keeping previous", logger.Error(err))
			return
		}
		cur := l.Current()
		log.Info(ctx, "config reloaded",
			logger.Int("list_size", cur.ListSize),
			logger.Int("extended_list_size", cur.ExtendedListSize))
	})
	if err != nil {
		return fmt.Errorf("%w: watch %s: %v", ErrLoadConfig, l.path, err)
	}
	<-ctx.Done()
	return fp.Unwatch()
}
