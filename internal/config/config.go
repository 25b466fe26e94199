// Package config defines the run configuration and how it is loaded.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - External errors are wrapped with this package's sentinels.
package config

import (
	"fmt"
	"runtime"
	"slices"

	"github.com/okian/diamond/internal/domain/rating"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr is the inspection HTTP listen address, e.g. ":9080". Empty
	// disables the server.
	Addr string `koanf:"addr"`

	// PlaysPath is the JSONL play corpus (.gz allowed).
	PlaysPath string `koanf:"plays_path"`

	// CheckpointPath is the SQLite checkpoint file. Empty disables
	// checkpointing and resume.
	CheckpointPath string `koanf:"checkpoint_path"`

	// DatasetPath receives one JSONL record per play (.gz allowed).
	DatasetPath string `koanf:"dataset_path"`

	// WorkerCount bounds the goroutines used inside a layer.
	WorkerCount int `koanf:"worker_count"`

	// ShardCount configures the number of rating store shards.
	ShardCount int `koanf:"shard_count"`

	// RecordQueueSize bounds the queue between evaluator and dataset writer.
	RecordQueueSize int `koanf:"record_queue_size"`

	// Epsilon is the clamp floor for probabilities.
	Epsilon float64 `koanf:"epsilon"`

	// PlayerTimescales and LeagueTimescales are the decay windows, shortest
	// first.
	PlayerTimescales []int `koanf:"player_timescales"`
	LeagueTimescales []int `koanf:"league_timescales"`
}

// New creates a Config with defaults.
func New() *Config {
	p := rating.DefaultParams()
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		PlaysPath:        "plays.jsonl",
		CheckpointPath:   "diamond.db",
		DatasetPath:      "records.jsonl",
		WorkerCount:      runtime.NumCPU() * 2,
		ShardCount:       32,
		RecordQueueSize:  8192,
		Epsilon:          p.Epsilon,
		PlayerTimescales: p.PlayerTimescales,
		LeagueTimescales: p.LeagueTimescales,
	}
}

// RatingParams returns the rating parameters the config describes.
func (c *Config) RatingParams() rating.Params {
	return rating.Params{
		PlayerTimescales: slices.Clone(c.PlayerTimescales),
		LeagueTimescales: slices.Clone(c.LeagueTimescales),
		Epsilon:          c.Epsilon,
	}
}

// Validate checks the config for values no run can use.
func (c *Config) Validate() error {
	switch {
	case c.PlaysPath == "":
		return fmt.Errorf("%w: plays_path must not be empty", ErrInvalidConfig)
	case c.DatasetPath == "":
		return fmt.Errorf("%w: dataset_path must not be empty", ErrInvalidConfig)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be positive, got %d", ErrInvalidConfig, c.WorkerCount)
	case c.ShardCount < 1:
		return fmt.Errorf("%w: shard_count must be positive, got %d", ErrInvalidConfig, c.ShardCount)
	case c.RecordQueueSize < 1:
		return fmt.Errorf("%w: record_queue_size must be positive, got %d", ErrInvalidConfig, c.RecordQueueSize)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	if err := c.RatingParams().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
