// Package service runs one evaluation end to end: it loads the play corpus,
// decides whether a checkpoint can be resumed, builds the play graph and
// drives the evaluator while a background worker writes the records out.
// It also implements the dependencies of the inspection API.
package service

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/diamond/internal/adapters/checkpoint"
	"github.com/okian/diamond/internal/adapters/dataset"
	recordqueue "github.com/okian/diamond/internal/adapters/mq/queue"
	"github.com/okian/diamond/internal/adapters/mq/worker"
	"github.com/okian/diamond/internal/adapters/playstore"
	"github.com/okian/diamond/internal/adapters/repository"
	"github.com/okian/diamond/internal/domain/evaluator"
	"github.com/okian/diamond/internal/domain/layering"
	"github.com/okian/diamond/internal/domain/playgraph"
	"github.com/okian/diamond/internal/domain/rating"
	"github.com/okian/diamond/pkg/logger"
	"github.com/okian/diamond/pkg/metrics"
)

// Service owns the components of one run.
type Service struct {
	mu sync.RWMutex

	// Configuration
	playsPath      string
	checkpointPath string
	datasetPath    string
	workerCount    int
	shardCount     int
	queueSize      int
	params         rating.Params
	drainTimeout   time.Duration

	// Components, set while Run progresses
	store  *repository.ShardedStore
	eval   *evaluator.Evaluator
	queue  *recordqueue.InMemoryQueue
	writer *worker.InMemoryWorker

	// State
	running    bool
	loaded     playstore.Stats
	resumed    bool
	startLayer int
	result     *evaluator.Result

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		playsPath:    "plays.jsonl",
		datasetPath:  "records.jsonl",
		workerCount:  runtime.NumCPU() * 2,
		shardCount:   32,
		queueSize:    8192,
		params:       rating.DefaultParams(),
		drainTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	return s
}

// Run performs the whole evaluation. It can be called again after it
// returns; every call starts from the checkpoint as it was left.
func (s *Service) Run(ctx context.Context) (evaluator.Result, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return evaluator.Result{}, ErrAlreadyRunning
	}
	s.running = true
	s.result = nil
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info(ctx, "starting run",
		logger.String("plays", s.playsPath),
		logger.String("checkpoint", s.checkpointPath),
		logger.String("dataset", s.datasetPath),
		logger.Int("workers", s.workerCount),
		logger.Bool("checkpointing", s.checkpointPath != ""),
	)

	plays := playstore.New(
		playstore.WithLogger(s.logger.Named("playstore")),
		playstore.WithFingerprintSalt(paramsSalt(s.params)),
	)
	corpus, stats, err := plays.Load(ctx, s.playsPath)
	if err != nil {
		return evaluator.Result{}, err
	}
	s.mu.Lock()
	s.loaded = stats
	s.mu.Unlock()

	var (
		cp       *checkpoint.Store
		restored []rating.Snapshot
		last     = checkpoint.NoLayer
	)
	if s.checkpointPath != "" {
		cp, err = checkpoint.Open(ctx, s.checkpointPath, checkpoint.WithLogger(s.logger.Named("checkpoint")))
		if err != nil {
			return evaluator.Result{}, err
		}
		defer func() { _ = cp.Close() }()

		if restored, last, err = s.resumeOrReset(ctx, cp, stats.Fingerprint); err != nil {
			return evaluator.Result{}, err
		}
	}

	store := repository.NewShardedStore(ctx, s.params,
		repository.WithShardCount(s.shardCount),
		repository.WithPrior(rating.CorpusAverage(corpus)),
	)
	if err := store.Restore(ctx, restored); err != nil {
		_ = store.Close()
		return evaluator.Result{}, fmt.Errorf("restore ratings: %w", err)
	}
	s.mu.Lock()
	if s.store != nil {
		_ = s.store.Close()
	}
	s.store = store
	s.resumed = last != checkpoint.NoLayer
	s.startLayer = last + 1
	s.mu.Unlock()

	g, err := playgraph.NewBuilder(playgraph.WithLogger(s.logger.Named("playgraph"))).Build(ctx, corpus)
	if err != nil {
		return evaluator.Result{}, err
	}

	res, err := s.evaluate(ctx, g, cp, last)
	s.mu.Lock()
	s.result = &res
	s.mu.Unlock()
	return res, err
}

// resumeOrReset returns the ratings to continue from and the last completed
// layer, or claims the checkpoint for this input when it belongs to another.
func (s *Service) resumeOrReset(ctx context.Context, cp *checkpoint.Store, fp uint64) ([]rating.Snapshot, int, error) {
	st, err := cp.State(ctx)
	if err != nil {
		return nil, checkpoint.NoLayer, err
	}
	if st.Matches(fp) && st.LastLayer != checkpoint.NoLayer {
		snaps, err := cp.Ratings(ctx)
		if err != nil {
			return nil, checkpoint.NoLayer, err
		}
		s.logger.Info(ctx, "resuming from checkpoint",
			logger.Int("last_completed_layer", st.LastLayer),
			logger.Int("layers", st.Layers),
			logger.Int("ratings", len(snaps)),
		)
		return snaps, st.LastLayer, nil
	}

	if st.HasFingerprint && !st.Matches(fp) {
		s.logger.Warn(ctx, "checkpoint belongs to different input; starting over",
			logger.String("stored", strconv.FormatUint(st.Fingerprint, 16)),
			logger.String("input", strconv.FormatUint(fp, 16)),
		)
	}
	if err := cp.Reset(ctx, fp); err != nil {
		return nil, checkpoint.NoLayer, fmt.Errorf("reset checkpoint: %w", err)
	}
	return nil, checkpoint.NoLayer, nil
}

// evaluate runs the evaluator with the record queue, writer worker and
// dataset file around it.
func (s *Service) evaluate(ctx context.Context, g *playgraph.Graph, cp *checkpoint.Store, last int) (evaluator.Result, error) {
	resumed := last != checkpoint.NoLayer
	if resumed {
		kept, err := dataset.Trim(s.datasetPath, last)
		if err != nil {
			return evaluator.Result{}, err
		}
		s.logger.Info(ctx, "dataset trimmed to checkpoint", logger.Int("records", kept))
	}
	out, err := dataset.Create(s.datasetPath, resumed)
	if err != nil {
		return evaluator.Result{}, err
	}
	defer func() {
		if err := out.Close(); err != nil {
			s.logger.Error(ctx, "closing dataset failed", logger.Error(err))
		}
	}()

	q := recordqueue.NewInMemoryQueue(recordqueue.WithCapacity(s.queueSize))
	wk := worker.NewInMemoryWorker(q, out, worker.WithName("dataset"), worker.WithLogger(s.logger.Named("dataset")))
	// records already queued are written even if ctx is cancelled
	go wk.Run(context.WithoutCancel(ctx))

	sink := &countingSink{queue: q}
	opts := []evaluator.Option{
		evaluator.WithLogger(s.logger.Named("evaluator")),
		evaluator.WithWorkers(s.workerCount),
		evaluator.WithSink(sink),
		evaluator.WithPlanner(layering.NewPlanner(layering.WithLogger(s.logger.Named("layering")))),
		evaluator.WithStartLayer(last + 1),
	}
	if cp != nil {
		opts = append(opts, evaluator.WithCheckpointer(&durableCheckpoint{store: cp, sink: sink, worker: wk}))
	}
	eval := evaluator.New(s.store, opts...)

	s.mu.Lock()
	s.eval, s.queue, s.writer = eval, q, wk
	s.mu.Unlock()

	res, runErr := eval.Run(ctx, g)

	_ = q.Close()
	drainErr := worker.Drain(wk, s.drainTimeout)
	if runErr != nil {
		return res, runErr
	}
	if drainErr != nil {
		return res, fmt.Errorf("write records: %w", drainErr)
	}
	written, _ := wk.Counts()
	s.logger.Info(ctx, "run complete",
		logger.Int("layers", res.Layers),
		logger.Int("records", res.Records),
		logger.Int64("written", written),
		logger.Int("underflows", res.Underflows),
		logger.Bool("resumed", resumed),
	)
	return res, nil
}

// Stop releases the rating store. Inspection reads fail afterwards.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store != nil {
		_ = s.store.Close()
		s.store = nil
	}
	s.logger.Info(context.Background(), "service stopped")
}

// Get returns the stored rating for key.
func (s *Service) Get(ctx context.Context, key rating.Key) (rating.Snapshot, error) {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()
	if store == nil {
		return rating.Snapshot{}, fmt.Errorf("%w: %w", ErrNotReady, repository.ErrNotFound)
	}
	return store.Get(ctx, key)
}

// Progress returns the evaluator's progress, or a pending one before it
// exists.
func (s *Service) Progress() evaluator.Progress {
	s.mu.RLock()
	eval := s.eval
	s.mu.RUnlock()
	if eval == nil {
		return evaluator.Progress{Phase: evaluator.Pending}
	}
	return eval.Progress()
}

// GetStats returns run statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"running":     s.running,
		"workerCount": s.workerCount,
		"shardCount":  s.shardCount,
		"queueSize":   s.queueSize,
		"phase":       evaluator.Pending.String(),
	}
	if s.loaded.Rows > 0 {
		stats["rows"] = s.loaded.Rows
		stats["plays"] = s.loaded.Plays
		stats["skippedRows"] = s.loaded.Skipped
		stats["fingerprint"] = strconv.FormatUint(s.loaded.Fingerprint, 16)
	}
	if s.store != nil {
		sum := s.store.Summary()
		stats["resumed"] = s.resumed
		stats["startLayer"] = s.startLayer
		stats["ratingKeys"] = sum.Keys
		stats["entities"] = sum.Entities
		stats["ratingUpdates"] = sum.Updates
	}
	if s.eval != nil {
		p := s.eval.Progress()
		stats["phase"] = p.Phase.String()
		stats["layer"] = p.Layer
		stats["layers"] = p.Layers
		stats["playsDone"] = p.PlaysDone
		stats["underflows"] = p.Underflows
		stats["recordsIssued"] = p.RecordsIssued

		queueLen := s.queue.Len(ctx)
		written, failed := s.writer.Counts()
		stats["queueLength"] = queueLen
		stats["recordsWritten"] = written
		stats["recordsFailed"] = failed
		metrics.UpdateRecordQueueSize(queueLen)
	}
	if s.result != nil {
		stats["duration"] = s.result.Duration.String()
	}
	return stats
}

// countingSink forwards records to the queue and counts them.
type countingSink struct {
	queue   *recordqueue.InMemoryQueue
	emitted atomic.Int64
}

func (c *countingSink) Emit(ctx context.Context, rec evaluator.Record) error { //nolint:gocritic // records travel by value
	if err := c.queue.Emit(ctx, rec); err != nil {
		return err
	}
	c.emitted.Add(1)
	return nil
}

// durableCheckpoint commits a layer only once every record emitted so far
// is in the dataset file.
type durableCheckpoint struct {
	store  *checkpoint.Store
	sink   *countingSink
	worker *worker.InMemoryWorker
}

func (d *durableCheckpoint) Begin(ctx context.Context, g *playgraph.Graph, plan *layering.Plan) error {
	return d.store.Begin(ctx, g, plan)
}

func (d *durableCheckpoint) Commit(ctx context.Context, layer int, touched []rating.Snapshot) error {
	if err := d.worker.Sync(ctx, d.sink.emitted.Load()); err != nil {
		return fmt.Errorf("sync records: %w", err)
	}
	return d.store.Commit(ctx, layer, touched)
}

// paramsSalt ties the input fingerprint to the rating parameters, so a
// checkpoint computed with other timescales is not resumed.
func paramsSalt(p rating.Params) string {
	return fmt.Sprintf("player=%v league=%v eps=%g", p.PlayerTimescales, p.LeagueTimescales, p.Epsilon)
}
