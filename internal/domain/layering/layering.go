// Package layering partitions a dependency graph into layers that can be
// evaluated one after another, each layer fully in parallel.
//
// A play's layer is one more than the deepest of its batter and pitcher
// predecessors, or 0 when it has none. Plays in the same layer therefore
// never share a participant in the same role, and every play sits in the
// earliest layer its dependencies allow.
package layering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/okian/diamond/internal/domain/model"
	"github.com/okian/diamond/internal/domain/playgraph"
	"github.com/okian/diamond/pkg/logger"
	"github.com/okian/diamond/pkg/metrics"
)

const unassigned = -1

// Sentinel kinds for layering errors.
var (
	ErrCycleDetected = errors.New("dependency cycle detected")
	ErrLayerMismatch = errors.New("layer assignment violates ordering")
)

// CycleDetectedError reports a play whose predecessor had not been layered
// when the play was reached.
type CycleDetectedError struct {
	PlayID        string
	PredecessorID string
	Role          model.Role
}

func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("%s: play %s depends on unlayered %s predecessor %s",
		ErrCycleDetected, e.PlayID, e.Role, e.PredecessorID)
}

// Is reports whether target is ErrCycleDetected.
func (e *CycleDetectedError) Is(target error) bool { return target == ErrCycleDetected }

// Layer is one evaluation step: play indexes into the graph, in sequence
// order.
type Layer struct {
	Number int
	Plays  []int
}

// Plan is the result of layering a graph.
type Plan struct {
	// Assignment maps each graph index to its layer number.
	Assignment []int
	Layers     []Layer
}

// Len returns the number of layers.
func (p *Plan) Len() int { return len(p.Layers) }

// Assign computes every play's layer in one forward pass over the graph's
// sequence order.
func Assign(g *playgraph.Graph) ([]int, error) {
	layers := make([]int, g.Len())
	for i := range layers {
		layers[i] = unassigned
	}
	for i := 0; i < g.Len(); i++ {
		depth := unassigned
		for _, r := range model.Roles() {
			p := g.Pred(i, r)
			if p == playgraph.None {
				continue
			}
			if p >= i || layers[p] == unassigned {
				return nil, &CycleDetectedError{PlayID: g.Play(i).ID, PredecessorID: g.Play(p).ID, Role: r}
			}
			depth = max(depth, layers[p])
		}
		layers[i] = depth + 1
	}
	return layers, nil
}

// Group collects an assignment into layers, ordered by number.
func Group(assignment []int) []Layer {
	if len(assignment) == 0 {
		return nil
	}
	byLayer := lo.GroupBy(lo.Range(len(assignment)), func(i int) int { return assignment[i] })
	out := make([]Layer, lo.Max(assignment)+1)
	for n := range out {
		out[n] = Layer{Number: n, Plays: byLayer[n]}
	}
	return out
}

// Planner layers graphs and reports layer statistics.
type Planner struct {
	logger logger.Logger
}

// Option applies a configuration option to the Planner.
type Option func(*Planner)

// WithLogger sets a custom logger for the planner.
func WithLogger(l logger.Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPlanner creates a planner.
func NewPlanner(opts ...Option) *Planner {
	p := &Planner{}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("layering")
	}
	return p
}

// Plan layers g.
func (pl *Planner) Plan(ctx context.Context, g *playgraph.Graph) (*Plan, error) {
	start := time.Now()
	assignment, err := Assign(g)
	if err != nil {
		metrics.RecordErrorByComponent("layering", "cycle")
		pl.logger.Error(ctx, "layering failed", logger.Error(err))
		return nil, err
	}
	plan := &Plan{Assignment: assignment, Layers: Group(assignment)}

	widest := 0
	for _, l := range plan.Layers {
		metrics.RecordLayerWidth(len(l.Plays))
		widest = max(widest, len(l.Plays))
	}
	ms := float64(time.Since(start).Milliseconds())
	metrics.UpdateLayerCount(plan.Len())
	metrics.RecordLayeringDuration(ms)
	pl.logger.Info(ctx, "plays layered",
		logger.Int("plays", g.Len()),
		logger.Int("layers", plan.Len()),
		logger.Int("widest", widest),
		logger.Float64("ms", ms),
	)
	return plan, nil
}

// Verify checks an assignment against g: each play sits strictly after its
// predecessors and exactly one layer after the deepest of them, and no layer
// holds two plays of the same participant in the same role.
func Verify(g *playgraph.Graph, assignment []int) error {
	if len(assignment) != g.Len() {
		return fmt.Errorf("%w: %d layers for %d plays", ErrLayerMismatch, len(assignment), g.Len())
	}
	type slot struct {
		layer int
		role  model.Role
		who   string
	}
	seen := make(map[slot]string, 2*g.Len())
	for i := 0; i < g.Len(); i++ {
		want := 0
		for _, r := range model.Roles() {
			if p := g.Pred(i, r); p != playgraph.None {
				if assignment[p] >= assignment[i] {
					return fmt.Errorf("%w: play %s in layer %d not after %s in layer %d",
						ErrLayerMismatch, g.Play(i).ID, assignment[i], g.Play(p).ID, assignment[p])
				}
				want = max(want, assignment[p]+1)
			}
			s := slot{layer: assignment[i], role: r, who: g.Play(i).Participant(r)}
			if other, dup := seen[s]; dup {
				return fmt.Errorf("%w: %s %s appears in layer %d twice (%s, %s)",
					ErrLayerMismatch, r, s.who, s.layer, other, g.Play(i).ID)
			}
			seen[s] = g.Play(i).ID
		}
		if assignment[i] != want {
			return fmt.Errorf("%w: play %s in layer %d, earliest is %d",
				ErrLayerMismatch, g.Play(i).ID, assignment[i], want)
		}
	}
	return nil
}
