package worker

import (
	"github.com/pointercrate/demonlist/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(log logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if log != nil {
			w.logger = log
		}
	}
}

// WithFailureHook registers a callback for submissions that fail to persist.
func WithFailureHook(hook FailureHook) Option {
	return func(w *InMemoryWorker) {
		w.onFailure = hook
	}
}
