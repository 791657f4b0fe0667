package ledger

import (
	"time"

	"github.com/pointercrate/demonlist/pkg/logger"
)

// Option applies a configuration option to the Ledger.
type Option func(*Ledger)

// WithClock sets the time source used to stamp log events.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}
