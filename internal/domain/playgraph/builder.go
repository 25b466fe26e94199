// Package playgraph links every play to the previous play of the same batter
// and the previous play of the same pitcher. The links are the dependency
// edges the layering pass schedules around: a player's rating must absorb
// play n before it is read for play n+1.
package playgraph

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/okian/diamond/internal/domain/model"
	"github.com/okian/diamond/pkg/logger"
	"github.com/okian/diamond/pkg/metrics"
)

// None marks a play with no predecessor of a given kind.
const None = -1

// Edge is a dependency from an earlier play to the next play sharing the
// participant in the same role.
type Edge struct {
	From string
	To   string
	Role model.Role
}

// Graph is the play set in sequence-key order with predecessor indexes.
// Predecessor indexes always point at a smaller index.
type Graph struct {
	plays       []model.Play
	batterPred  []int
	pitcherPred []int
	byID        map[string]int
}

// Len returns the number of plays.
func (g *Graph) Len() int { return len(g.plays) }

// Play returns the i-th play in sequence order.
func (g *Graph) Play(i int) *model.Play { return &g.plays[i] }

// Plays returns the ordered play slice. Callers must not modify it.
func (g *Graph) Plays() []model.Play { return g.plays }

// Pred returns the index of the predecessor of play i in role r, or None.
func (g *Graph) Pred(i int, r model.Role) int {
	if r == model.Pitcher {
		return g.pitcherPred[i]
	}
	return g.batterPred[i]
}

// Index looks a play up by id.
func (g *Graph) Index(id string) (int, bool) {
	i, ok := g.byID[id]
	return i, ok
}

// Edges lists every dependency edge, batter edges first within a play.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for i := range g.plays {
		for _, r := range model.Roles() {
			if p := g.Pred(i, r); p != None {
				out = append(out, Edge{From: g.plays[p].ID, To: g.plays[i].ID, Role: r})
			}
		}
	}
	return out
}

// FromLinks assembles a graph from plays already in evaluation order and
// their predecessor indexes, as stored by a checkpoint. Links are taken as
// given; Assign rejects any that point forward.
func FromLinks(plays []model.Play, batterPred, pitcherPred []int) (*Graph, error) {
	if len(batterPred) != len(plays) || len(pitcherPred) != len(plays) {
		return nil, fmt.Errorf("%w: %d plays with %d/%d links",
			ErrMalformedInput, len(plays), len(batterPred), len(pitcherPred))
	}
	g := &Graph{
		plays:       plays,
		batterPred:  batterPred,
		pitcherPred: pitcherPred,
		byID:        make(map[string]int, len(plays)),
	}
	for i := range plays {
		for _, p := range []int{batterPred[i], pitcherPred[i]} {
			if p != None && (p < 0 || p >= len(plays)) {
				return nil, fmt.Errorf("%w: play %s links to index %d", ErrMalformedInput, plays[i].ID, p)
			}
		}
		g.byID[plays[i].ID] = i
	}
	return g, nil
}

// Builder constructs dependency graphs.
type Builder struct {
	logger logger.Logger
}

// Option applies a configuration option to the Builder.
type Option func(*Builder)

// WithLogger sets a custom logger for the builder.
func WithLogger(l logger.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBuilder creates a builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logger.Get().Named("playgraph")
	}
	return b
}

// Build validates plays and links each one to its batter and pitcher
// predecessors. The input is not modified. It fails with a
// *MalformedInputError when a play lacks a participant, a play id repeats, or
// one participant has two plays with the same sequence key.
func (b *Builder) Build(ctx context.Context, plays []model.Play) (*Graph, error) {
	start := time.Now()

	var problems []Problem
	byID := make(map[string]int, len(plays))
	for i := range plays {
		p := &plays[i]
		if err := p.Validate(); err != nil {
			problems = append(problems, Problem{Reason: err.Error(), PlayIDs: []string{p.ID}})
			continue
		}
		if _, dup := byID[p.ID]; dup {
			problems = append(problems, Problem{Reason: "duplicate play id", PlayIDs: []string{p.ID}})
			continue
		}
		byID[p.ID] = i
	}
	if len(problems) > 0 {
		return nil, b.fail(ctx, problems)
	}

	sorted := slices.Clone(plays)
	slices.SortStableFunc(sorted, func(x, y model.Play) int {
		if c := x.Key().Compare(y.Key()); c != 0 {
			return c
		}
		return cmp.Compare(x.ID, y.ID)
	})

	g := &Graph{
		plays:       sorted,
		batterPred:  make([]int, len(sorted)),
		pitcherPred: make([]int, len(sorted)),
		byID:        make(map[string]int, len(sorted)),
	}
	for i := range sorted {
		g.byID[sorted[i].ID] = i
	}

	order := lo.Range(len(sorted))
	for _, role := range model.Roles() {
		preds := g.batterPred
		if role == model.Pitcher {
			preds = g.pitcherPred
		}
		// GroupBy keeps input order inside each group, so every chain is
		// already in sequence-key order.
		chains := lo.GroupBy(order, func(i int) string { return sorted[i].Participant(role) })
		edges := 0
		for _, chain := range chains {
			preds[chain[0]] = None
			for j := 1; j < len(chain); j++ {
				prev, cur := &sorted[chain[j-1]], &sorted[chain[j]]
				if prev.Key().Compare(cur.Key()) == 0 {
					problems = append(problems, Problem{
						Reason:  fmt.Sprintf("%s %s has two plays at %s", role, cur.Participant(role), cur.Key()),
						PlayIDs: []string{prev.ID, cur.ID},
					})
				}
				preds[chain[j]] = chain[j-1]
				edges++
			}
		}
		metrics.RecordGraphEdges(role.String(), edges)
	}
	if len(problems) > 0 {
		return nil, b.fail(ctx, problems)
	}

	ms := float64(time.Since(start).Milliseconds())
	metrics.RecordGraphBuildDuration(ms)
	b.logger.Info(ctx, "dependency graph built",
		logger.Int("plays", g.Len()),
		logger.Float64("ms", ms),
	)
	return g, nil
}

func (b *Builder) fail(ctx context.Context, problems []Problem) error {
	slices.SortFunc(problems, func(x, y Problem) int {
		return slices.Compare(x.PlayIDs, y.PlayIDs)
	})
	metrics.RecordErrorByComponent("playgraph", "malformed_input")
	err := &MalformedInputError{Problems: problems}
	b.logger.Error(ctx, "play set rejected", logger.Int("problems", len(problems)), logger.Error(err))
	return err
}
