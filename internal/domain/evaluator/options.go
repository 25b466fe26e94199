package evaluator

import (
	"github.com/okian/diamond/internal/domain/layering"
	"github.com/okian/diamond/pkg/logger"
)

// Option applies a configuration option to the Evaluator.
type Option func(*Evaluator)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithWorkers bounds the goroutines used inside a layer.
func WithWorkers(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithSink sets where records go. Without a sink records are dropped.
func WithSink(s Sink) Option {
	return func(e *Evaluator) { e.sink = s }
}

// WithCheckpointer persists progress after every layer.
func WithCheckpointer(c Checkpointer) Option {
	return func(e *Evaluator) { e.checkpointer = c }
}

// WithPlanner sets the layering planner.
func WithPlanner(p *layering.Planner) Option {
	return func(e *Evaluator) {
		if p != nil {
			e.planner = p
		}
	}
}

// WithStartLayer skips layers below n, which a checkpoint has already
// applied to the ratings.
func WithStartLayer(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.startLayer = n
		}
	}
}
