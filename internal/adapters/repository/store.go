// Package repository holds the rating store: every player and league-average
// rating of a run, split into shards so readers of different entities never
// contend.
package repository

import (
	"context"

	"github.com/okian/diamond/internal/domain/model"
	"github.com/okian/diamond/internal/domain/rating"
)

// Store provides read/write access to the rating state.
type Store interface {
	// Read returns a clamped copy of the rating for key. Keys that were
	// never updated read as the prior with zero appearances.
	Read(ctx context.Context, key rating.Key) rating.Snapshot

	// Update applies one observation to every timescale of key and counts
	// the appearance. It returns the number of entries clamped at epsilon.
	Update(ctx context.Context, key rating.Key, observed model.Outcome) (int, error)

	// Get is Read for keys that must already exist.
	// Returns ErrNotFound if key was never updated or restored.
	Get(ctx context.Context, key rating.Key) (rating.Snapshot, error)

	// Snapshot copies the ratings for keys, skipping unknown ones. With no
	// keys it copies every rating, ordered by key.
	Snapshot(ctx context.Context, keys ...rating.Key) []rating.Snapshot

	// Restore replaces the ratings named in snaps.
	Restore(ctx context.Context, snaps []rating.Snapshot) error

	// Count returns the number of ratings held.
	Count(ctx context.Context) int
}
