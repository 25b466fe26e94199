package repository

import (
	"time"

	"github.com/okian/diamond/internal/domain/rating"
)

// Option applies a configuration option to the ShardedStore.
type Option func(*ShardedStore)

// WithMetricsUpdateInterval sets the interval for background metrics and
// summary updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *ShardedStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithShardCount sets the number of shards. Values below one are ignored.
func WithShardCount(n int) Option {
	return func(s *ShardedStore) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithPrior sets the distribution new ratings start from.
func WithPrior(prior rating.Vector) Option {
	return func(s *ShardedStore) {
		s.prior = prior
	}
}
