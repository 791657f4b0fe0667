package timemachine

import (
	"time"

	"github.com/pointercrate/demonlist/pkg/logger"
)

// Option applies a configuration option to the Reconstructor.
type Option func(*Reconstructor)

// WithClock sets the source of "now".
func WithClock(now func() time.Time) Option {
	return func(r *Reconstructor) {
		if now != nil {
			r.now = now
		}
	}
}

// WithMinimum fixes the earliest reconstructable instant.
func WithMinimum(t time.Time) Option {
	return func(r *Reconstructor) {
		if !t.IsZero() {
			r.bounds = fixedBounds(t.UTC())
		}
	}
}

// WithBounds reads the earliest reconstructable instant on every call.
func WithBounds(b Bounds) Option {
	return func(r *Reconstructor) {
		if b != nil {
			r.bounds = b
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(r *Reconstructor) {
		if log != nil {
			r.log = log
		}
	}
}
