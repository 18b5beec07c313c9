// Package worker runs badge refresh jobs pulled from a queue.
package worker

import (
	"time"

	"github.com/volunteerfinder/reputation/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name used in logs.
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

// WithReleaser releases the job's user id when the worker picks it up, so
// a completion arriving during the refresh queues a fresh one.
func WithReleaser(r Releaser) Option {
	return func(w *InMemoryWorker) { w.releaser = r }
}

// WithJobTimeout bounds a single refresh.
func WithJobTimeout(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d > 0 {
			w.jobTimeout = d
		}
	}
}
