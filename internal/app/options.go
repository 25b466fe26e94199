package service

import (
	"time"

	"github.com/okian/diamond/internal/domain/rating"
	"github.com/okian/diamond/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWorkerCount sets the number of goroutines used per layer.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithShardCount sets the number of rating store shards.
func WithShardCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithQueueSize sets the capacity of the record queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithPlaysPath sets the JSONL play corpus to evaluate.
func WithPlaysPath(path string) Option {
	return func(s *Service) { s.playsPath = path }
}

// WithCheckpointPath sets the SQLite checkpoint file. Empty disables
// checkpointing and resume.
func WithCheckpointPath(path string) Option {
	return func(s *Service) { s.checkpointPath = path }
}

// WithDatasetPath sets where records are written.
func WithDatasetPath(path string) Option {
	return func(s *Service) { s.datasetPath = path }
}

// WithRatingParams sets the timescales and clamp floor.
func WithRatingParams(p rating.Params) Option {
	return func(s *Service) { s.params = p }
}

// WithDrainTimeout bounds how long a finished run waits for the record
// writer.
func WithDrainTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.drainTimeout = d
		}
	}
}
