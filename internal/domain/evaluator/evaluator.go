// Package evaluator walks the layers of a play graph in order. For each layer
// it first reads every rating the layer's plays need, emits one record per
// play, and only then applies the layer's updates, so every read in a layer
// sees exactly the same history.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/diamond/internal/domain/layering"
	"github.com/okian/diamond/internal/domain/model"
	"github.com/okian/diamond/internal/domain/playgraph"
	"github.com/okian/diamond/internal/domain/rating"
	"github.com/okian/diamond/pkg/logger"
	"github.com/okian/diamond/pkg/metrics"
)

// Sentinel kinds for evaluator errors.
var (
	ErrAlreadyRun = errors.New("evaluator already run")
	ErrNilGraph   = errors.New("nil play graph")
)

// Ratings is the rating state the evaluator reads and mutates.
type Ratings interface {
	Read(ctx context.Context, key rating.Key) rating.Snapshot
	Update(ctx context.Context, key rating.Key, observed model.Outcome) (int, error)
	Snapshot(ctx context.Context, keys ...rating.Key) []rating.Snapshot
}

// Sink receives records in sequence order within each layer.
type Sink interface {
	Emit(ctx context.Context, rec Record) error
}

// Checkpointer persists progress. Begin is called once after layering;
// Commit after every layer with the ratings that layer touched.
type Checkpointer interface {
	Begin(ctx context.Context, g *playgraph.Graph, plan *layering.Plan) error
	Commit(ctx context.Context, layer int, touched []rating.Snapshot) error
}

// Result summarises a finished run.
type Result struct {
	Layers     int
	Skipped    int // layers already done before this run
	Plays      int
	Records    int
	Underflows int
	Duration   time.Duration
}

// Progress is a point-in-time view of a run.
type Progress struct {
	Phase         Phase `json:"phase"`
	Layer         int   `json:"layer"`
	Layers        int   `json:"layers"`
	PlaysDone     int64 `json:"plays_done"`
	Underflows    int64 `json:"underflows"`
	RecordsIssued int64 `json:"records_issued"`
}

// Evaluator runs one pass over a play graph. It is single-use.
type Evaluator struct {
	ratings      Ratings
	planner      *layering.Planner
	sink         Sink
	checkpointer Checkpointer
	logger       logger.Logger
	workers      int
	startLayer   int

	phase      atomic.Int32
	layer      atomic.Int64
	layers     atomic.Int64
	playsDone  atomic.Int64
	underflows atomic.Int64
	records    atomic.Int64
}

// New creates an evaluator over ratings.
func New(ratings Ratings, opts ...Option) *Evaluator {
	e := &Evaluator{
		ratings: ratings,
		workers: 8,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Get().Named("evaluator")
	}
	if e.planner == nil {
		e.planner = layering.NewPlanner()
	}
	e.setPhase(Pending)
	return e
}

// Phase returns the current state.
func (e *Evaluator) Phase() Phase { return Phase(e.phase.Load()) }

// Progress returns the current progress.
func (e *Evaluator) Progress() Progress {
	return Progress{
		Phase:         e.Phase(),
		Layer:         int(e.layer.Load()),
		Layers:        int(e.layers.Load()),
		PlaysDone:     e.playsDone.Load(),
		Underflows:    e.underflows.Load(),
		RecordsIssued: e.records.Load(),
	}
}

func (e *Evaluator) setPhase(p Phase) {
	e.phase.Store(int32(p))
	metrics.UpdateRunPhase(p.metric())
}

// Run layers g and evaluates every layer from the configured start layer on.
func (e *Evaluator) Run(ctx context.Context, g *playgraph.Graph) (Result, error) {
	if !e.phase.CompareAndSwap(int32(Pending), int32(Layering)) {
		return Result{}, fmt.Errorf("%w: phase %s", ErrAlreadyRun, e.Phase())
	}
	metrics.UpdateRunPhase(Layering.metric())
	if g == nil {
		return Result{}, e.fail(ctx, ErrNilGraph)
	}
	start := time.Now()

	plan, err := e.planner.Plan(ctx, g)
	if err != nil {
		return Result{}, e.fail(ctx, err)
	}
	e.layers.Store(int64(plan.Len()))
	if e.checkpointer != nil {
		if err := e.checkpointer.Begin(ctx, g, plan); err != nil {
			return Result{}, e.fail(ctx, fmt.Errorf("checkpoint begin: %w", err))
		}
	}

	e.setPhase(Evaluating)
	inGame := pitcherGameCounts(g)
	res := Result{Layers: plan.Len(), Skipped: min(e.startLayer, plan.Len())}
	for _, l := range plan.Layers[res.Skipped:] {
		if err := ctx.Err(); err != nil {
			return res, e.fail(ctx, err)
		}
		n, under, err := e.evaluateLayer(ctx, g, l, inGame)
		res.Plays += len(l.Plays)
		res.Records += n
		res.Underflows += under
		if err != nil {
			return res, e.fail(ctx, fmt.Errorf("layer %d: %w", l.Number, err))
		}
	}

	res.Duration = time.Since(start)
	e.setPhase(Done)
	e.logger.Info(ctx, "evaluation complete",
		logger.Int("layers", res.Layers),
		logger.Int("skipped_layers", res.Skipped),
		logger.Int("plays", res.Plays),
		logger.Int("underflows", res.Underflows),
		logger.String("duration", res.Duration.String()),
	)
	return res, nil
}

func (e *Evaluator) fail(ctx context.Context, err error) error {
	e.setPhase(Failed)
	metrics.RecordErrorByComponent("evaluator", "run_failed")
	e.logger.Error(ctx, "evaluation failed", logger.Error(err))
	return err
}

// evaluateLayer reads, emits, updates and checkpoints one layer.
func (e *Evaluator) evaluateLayer(ctx context.Context, g *playgraph.Graph, l layering.Layer, inGame []int) (int, int, error) {
	start := time.Now()
	e.layer.Store(int64(l.Number))

	recs := make([]Record, len(l.Plays))
	rg, rctx := errgroup.WithContext(ctx)
	rg.SetLimit(e.workers)
	for j, idx := range l.Plays {
		rg.Go(func() error {
			p := g.Play(idx)
			bf, pf := p.BatterFaces, p.PitcherFaces
			recs[j] = newRecord(p, l.Number, inGame[idx],
				e.ratings.Read(rctx, rating.PlayerKey(p.BatterID, model.Batter, bf)),
				e.ratings.Read(rctx, rating.PlayerKey(p.PitcherID, model.Pitcher, pf)),
				e.ratings.Read(rctx, rating.LeagueKey(model.Batter, bf)),
				e.ratings.Read(rctx, rating.LeagueKey(model.Pitcher, pf)),
			)
			return nil
		})
	}
	if err := rg.Wait(); err != nil {
		return 0, 0, err
	}
	metrics.RecordRatingReads(4 * len(l.Plays))

	emitted := 0
	if e.sink != nil {
		for i := range recs {
			if err := e.sink.Emit(ctx, recs[i]); err != nil {
				return emitted, 0, fmt.Errorf("emit %s: %w", recs[i].PlayID, err)
			}
			emitted++
			e.records.Add(1)
		}
	}

	under, touched, err := e.applyUpdates(ctx, g, l)
	if err != nil {
		return emitted, under, err
	}
	e.playsDone.Add(int64(len(l.Plays)))
	if under > 0 {
		e.underflows.Add(int64(under))
		metrics.RecordNumericUnderflow(under)
		e.logger.Warn(ctx, "probabilities clamped at epsilon",
			logger.Int("layer", l.Number),
			logger.Int("entries", under),
		)
	}

	if e.checkpointer != nil {
		cs := time.Now()
		if err := e.checkpointer.Commit(ctx, l.Number, e.ratings.Snapshot(ctx, touched...)); err != nil {
			metrics.RecordCheckpointError()
			return emitted, under, fmt.Errorf("checkpoint: %w", err)
		}
		metrics.RecordCheckpoint(l.Number, float64(time.Since(cs).Milliseconds()))
	}

	ms := float64(time.Since(start).Milliseconds())
	metrics.RecordLayerEvaluated(ms)
	e.logger.Debug(ctx, "layer evaluated",
		logger.Int("layer", l.Number),
		logger.Int("plays", len(l.Plays)),
		logger.Float64("ms", ms),
	)
	return emitted, under, nil
}

// applyUpdates mutates every rating the layer observed. Player keys are
// distinct within a layer and update in parallel. League keys are shared by
// the whole layer and update afterwards in sequence order.
func (e *Evaluator) applyUpdates(ctx context.Context, g *playgraph.Graph, l layering.Layer) (int, []rating.Key, error) {
	var (
		mu    sync.Mutex
		total int
	)
	touched := make([]rating.Key, 0, 2*len(l.Plays)+2*model.NumBuckets)

	ug, uctx := errgroup.WithContext(ctx)
	ug.SetLimit(e.workers)
	for _, idx := range l.Plays {
		p := g.Play(idx)
		bk := rating.PlayerKey(p.BatterID, model.Batter, p.BatterFaces)
		pk := rating.PlayerKey(p.PitcherID, model.Pitcher, p.PitcherFaces)
		touched = append(touched, bk, pk)
		ug.Go(func() error {
			n := 0
			for _, k := range []rating.Key{bk, pk} {
				u, err := e.ratings.Update(uctx, k, p.Outcome)
				if err != nil {
					return fmt.Errorf("update %s for play %s: %w", k, p.ID, err)
				}
				n += u
			}
			mu.Lock()
			total += n
			mu.Unlock()
			return nil
		})
	}
	if err := ug.Wait(); err != nil {
		return total, nil, err
	}

	seen := make(map[rating.Key]struct{}, 2*model.NumBuckets)
	for _, idx := range l.Plays {
		p := g.Play(idx)
		for _, k := range []rating.Key{
			rating.LeagueKey(model.Batter, p.BatterFaces),
			rating.LeagueKey(model.Pitcher, p.PitcherFaces),
		} {
			u, err := e.ratings.Update(ctx, k, p.Outcome)
			if err != nil {
				return total, nil, fmt.Errorf("update %s for play %s: %w", k, p.ID, err)
			}
			total += u
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				touched = append(touched, k)
			}
		}
	}
	return total, touched, nil
}

// pitcherGameCounts returns, per graph index, how many earlier plays of the
// same game the play's pitcher already faced. It follows the pitcher chain,
// so it is independent of which layers were already evaluated.
func pitcherGameCounts(g *playgraph.Graph) []int {
	out := make([]int, g.Len())
	for i := 0; i < g.Len(); i++ {
		prev := g.Pred(i, model.Pitcher)
		if prev != playgraph.None && g.Play(prev).GameID == g.Play(i).GameID {
			out[i] = out[prev] + 1
		}
	}
	return out
}
