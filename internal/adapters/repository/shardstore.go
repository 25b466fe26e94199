package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/samber/lo"

	"github.com/okian/diamond/internal/domain/model"
	"github.com/okian/diamond/internal/domain/rating"
	"github.com/okian/diamond/pkg/metrics"
)

// Summary is a periodically published view of the store for cheap status
// queries.
type Summary struct {
	Keys        int       `json:"keys"`
	Entities    int       `json:"entities"`
	Updates     int64     `json:"updates"`
	PublishedAt time.Time `json:"published_at"`
}

var _ Store = (*ShardedStore)(nil)

type shard struct {
	mu    sync.RWMutex
	byKey map[rating.Key]*rating.State
}

// ShardedStore is the in-memory Store. Ratings are spread over shards by a
// hash of the entity id, so all of one player's ratings share a shard.
type ShardedStore struct {
	params     rating.Params
	prior      rating.Vector
	shardCount int
	shards     []*shard

	updates atomic.Int64
	summary atomic.Pointer[Summary]

	metricsUpdateInterval time.Duration
	wg                    sync.WaitGroup
	stopChan              chan struct{}
	closeOnce             sync.Once
}

// NewShardedStore constructs a store for params. The background metrics
// goroutine runs until ctx is done or Close is called.
func NewShardedStore(ctx context.Context, params rating.Params, opts ...Option) *ShardedStore {
	s := &ShardedStore{
		params:                params,
		prior:                 rating.Uniform(),
		shardCount:            16,
		metricsUpdateInterval: metrics.RefreshInterval(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{byKey: make(map[rating.Key]*rating.State)}
	}
	s.publishSummary()

	s.stopChan = make(chan struct{})
	s.startMetricsUpdater(ctx)
	return s
}

func (s *ShardedStore) shardFor(entity string) *shard {
	return s.shards[xxhash.Sum64String(entity)%uint64(len(s.shards))]
}

// Prior returns the distribution unseen ratings start from.
func (s *ShardedStore) Prior() rating.Vector { return s.prior }

// Params returns the rating params the store was built with.
func (s *ShardedStore) Params() rating.Params { return s.params }

// Read implements Store.Read.
func (s *ShardedStore) Read(ctx context.Context, key rating.Key) rating.Snapshot {
	sh := s.shardFor(key.Entity)
	sh.mu.RLock()
	st, ok := sh.byKey[key]
	var snap rating.Snapshot
	if ok {
		snap = s.snapshotOf(key, st)
	}
	sh.mu.RUnlock()

	if !ok {
		snap = s.snapshotOf(key, rating.NewState(s.prior, len(s.params.Timescales(key))))
	}
	for i := range snap.Vectors {
		snap.Vectors[i].Clamp(s.params.Epsilon)
	}
	return snap
}

// Get implements Store.Get.
func (s *ShardedStore) Get(ctx context.Context, key rating.Key) (rating.Snapshot, error) {
	sh := s.shardFor(key.Entity)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	st, ok := sh.byKey[key]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return rating.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return s.snapshotOf(key, st), nil
}

// Update implements Store.Update.
func (s *ShardedStore) Update(ctx context.Context, key rating.Key, observed model.Outcome) (int, error) {
	if !key.Hand.Bucket() || key.Entity == "" {
		metrics.RecordErrorByComponent("repository", "invalid_key")
		return 0, fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	if !observed.Valid() {
		return 0, fmt.Errorf("%w: %d", model.ErrInvalidOutcome, uint8(observed))
	}
	timescales := s.params.Timescales(key)

	sh := s.shardFor(key.Entity)
	sh.mu.Lock()
	st, ok := sh.byKey[key]
	if !ok {
		st = rating.NewState(s.prior, len(timescales))
		sh.byKey[key] = st
	}
	under := st.Apply(observed, timescales, s.params.Epsilon)
	sh.mu.Unlock()

	s.updates.Add(1)
	metrics.RecordRatingUpdate(key.Role.String())
	return under, nil
}

// Snapshot implements Store.Snapshot.
func (s *ShardedStore) Snapshot(ctx context.Context, keys ...rating.Key) []rating.Snapshot {
	if len(keys) > 0 {
		out := make([]rating.Snapshot, 0, len(keys))
		for _, k := range lo.Uniq(keys) {
			if snap, err := s.get(k); err == nil {
				out = append(out, snap)
			}
		}
		return out
	}

	var out []rating.Snapshot
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k, st := range sh.byKey {
			out = append(out, s.snapshotOf(k, st))
		}
		sh.mu.RUnlock()
	}
	slices.SortFunc(out, func(a, b rating.Snapshot) int { return compareKeys(a.Key, b.Key) })
	return out
}

func (s *ShardedStore) get(k rating.Key) (rating.Snapshot, error) {
	sh := s.shardFor(k.Entity)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	st, ok := sh.byKey[k]
	if !ok {
		return rating.Snapshot{}, ErrNotFound
	}
	return s.snapshotOf(k, st), nil
}

// Restore implements Store.Restore. Every snapshot is checked before any is
// applied.
func (s *ShardedStore) Restore(ctx context.Context, snaps []rating.Snapshot) error {
	for _, snap := range snaps {
		want := s.params.Timescales(snap.Key)
		if !slices.Equal(snap.Timescales, want) || len(snap.Vectors) != len(want) {
			return fmt.Errorf("%w: %s has timescales %v, want %v", ErrShape, snap.Key, snap.Timescales, want)
		}
		if !snap.Key.Hand.Bucket() {
			return fmt.Errorf("%w: %s", ErrInvalidKey, snap.Key)
		}
	}
	for _, snap := range snaps {
		st := &rating.State{Vectors: slices.Clone(snap.Vectors), Appearances: snap.Appearances}
		sh := s.shardFor(snap.Key.Entity)
		sh.mu.Lock()
		sh.byKey[snap.Key] = st
		sh.mu.Unlock()
	}
	s.publishSummary()
	return nil
}

// Count implements Store.Count.
func (s *ShardedStore) Count(ctx context.Context) int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.byKey)
		sh.mu.RUnlock()
	}
	return n
}

// Summary returns the last published summary.
func (s *ShardedStore) Summary() Summary { return *s.summary.Load() }

// Close stops the background goroutine.
func (s *ShardedStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *ShardedStore) snapshotOf(k rating.Key, st *rating.State) rating.Snapshot {
	return rating.Snapshot{
		Key:         k,
		Timescales:  s.params.Timescales(k),
		Vectors:     slices.Clone(st.Vectors),
		Appearances: st.Appearances,
	}
}

func compareKeys(a, b rating.Key) int {
	if c := cmp.Compare(a.Role, b.Role); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Entity, b.Entity); c != 0 {
		return c
	}
	return cmp.Compare(a.Hand, b.Hand)
}

// startMetricsUpdater refreshes shard gauges and the published summary.
func (s *ShardedStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.publishSummary()
			}
		}
	}()
}

func (s *ShardedStore) publishSummary() {
	entities := make(map[string]struct{})
	total := 0
	for i, sh := range s.shards {
		sh.mu.RLock()
		n := len(sh.byKey)
		for k := range sh.byKey {
			entities[k.Entity] = struct{}{}
		}
		sh.mu.RUnlock()
		total += n
		metrics.UpdateRatingShardKeys("shard_"+strconv.Itoa(i), n)
	}
	metrics.UpdateRatingKeys(total)
	s.summary.Store(&Summary{
		Keys:        total,
		Entities:    len(entities),
		Updates:     s.updates.Load(),
		PublishedAt: time.Now(),
	})
}
