package worker

import (
	"github.com/okian/diamond/pkg/logger"
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
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithFlushEvery flushes the writer after every n records.
func WithFlushEvery(n int) Option {
	return func(w *InMemoryWorker) {
		if n > 0 {
			w.flushEvery = n
		}
	}
}
