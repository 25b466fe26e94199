// Package playgen writes synthetic play-by-play corpora in the JSONL format
// the play store reads. Players get fixed handedness and their own outcome
// tendencies, so the generated ratings have something to find.
package playgen

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"

	"github.com/google/uuid"

	"github.com/okian/diamond/internal/adapters/playstore"
	"github.com/okian/diamond/internal/domain/model"
	"github.com/okian/diamond/pkg/logger"
)

// Sentinel kinds for generator errors.
var (
	ErrInvalidConfig = errors.New("invalid generator config")
)

// baseline is roughly a modern league's plate-appearance mix, in outcome
// index order.
var baseline = [model.NumOutcomes]float64{ //nolint:gochecknoglobals // static table
	0.22, 0.08, 0.20, 0.18, 0.09, 0.15, 0.045, 0.005, 0.03,
}

var descriptions = [model.NumOutcomes][]string{ //nolint:gochecknoglobals // static table
	{"Strikeout Swinging", "Strikeout Looking", "Strikeout Double Play"},
	{"Lineout to SS", "Lineout to CF", "Reached on E4 (Line Drive)"},
	{"Groundout to 2B", "Double Play (Ground Ball)", "Reached on E6 (Ground Ball)"},
	{"Flyout to CF", "Pop Fly to 1B", "Sac Fly to RF"},
	{"Walk", "Intent Walk"},
	{"Single to LF", "Single to CF"},
	{"Double to RF", "Ground-rule Double"},
	{"Triple to RCF"},
	{"Home Run to LF", "Inside-the-park Home Run"},
}

var noise = []string{"Stolen Base 2B", "Picked Off 1B", "Caught Stealing 3B"} //nolint:gochecknoglobals // static table

type player struct {
	id      string
	hand    string
	weights [model.NumOutcomes]float64
}

// Generator produces one corpus per Generate call.
type Generator struct {
	cfg    Config
	logger logger.Logger
}

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates a generator for cfg.
func New(cfg Config, opts ...Option) (*Generator, error) {
	switch {
	case cfg.Games <= 0, cfg.PlaysPerGame <= 0, cfg.GamesPerDay <= 0:
		return nil, fmt.Errorf("%w: games, games per day and plays per game must be positive", ErrInvalidConfig)
	case cfg.Batters < 2, cfg.Pitchers < 2:
		return nil, fmt.Errorf("%w: need at least two batters and two pitchers", ErrInvalidConfig)
	case cfg.DescriptionRate < 0, cfg.DescriptionRate > 1, cfg.NoiseRate < 0, cfg.NoiseRate >= 1:
		return nil, fmt.Errorf("%w: rates must be in [0,1)", ErrInvalidConfig)
	}
	if cfg.StarterPlays <= 0 {
		cfg.StarterPlays = cfg.PlaysPerGame
	}
	g := &Generator{cfg: cfg}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logger.Get().Named("playgen")
	}
	return g, nil
}

// Generate writes the corpus to w. The same config always yields the same
// bytes.
func (g *Generator) Generate(ctx context.Context, w io.Writer) (Stats, error) {
	rng := rand.New(rand.NewPCG(g.cfg.Seed, g.cfg.Seed^0x9e3779b97f4a7c15))
	ids := rand.NewChaCha8(seedBytes(g.cfg.Seed))

	batters := g.roster(rng, "b", g.cfg.Batters, []string{"L", "R", "R", "B"})
	pitchers := g.roster(rng, "p", g.cfg.Pitchers, []string{"R", "R", "R", "L"})

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	var st Stats
	rowID := 0
	for game := 0; game < g.cfg.Games; game++ {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		gameID, err := uuid.NewRandomFromReader(ids)
		if err != nil {
			return st, fmt.Errorf("game id: %w", err)
		}
		date := g.cfg.Start.AddDate(0, 0, game/g.cfg.GamesPerDay).Format("2006-01-02")

		starter := (game * 2) % len(pitchers)
		lineup := rng.IntN(len(batters))
		for idx := 1; idx <= g.cfg.PlaysPerGame; idx++ {
			pitcher := pitchers[starter]
			if idx > g.cfg.StarterPlays {
				pitcher = pitchers[(starter+1+(idx-g.cfg.StarterPlays)/10)%len(pitchers)]
			}
			batter := batters[(lineup+idx)%len(batters)]

			rowID++
			row := playstore.Row{
				ID:        strconv.Itoa(rowID),
				GameID:    gameID.String(),
				Date:      date,
				Index:     idx,
				BatterID:  batter.id,
				PitcherID: pitcher.id,
				Bats:      batter.hand,
				Throws:    pitcher.hand,
			}
			if rng.Float64() < g.cfg.NoiseRate {
				row.Description = noise[rng.IntN(len(noise))]
				st.Noise++
			} else {
				o := sample(rng, batter, pitcher)
				if rng.Float64() < g.cfg.DescriptionRate {
					opts := descriptions[o]
					row.Description = opts[rng.IntN(len(opts))]
				} else {
					row.Outcome = o.String()
				}
				st.Plays++
			}
			if err := enc.Encode(&row); err != nil {
				return st, fmt.Errorf("encode row %d: %w", rowID, err)
			}
			st.Rows++
		}
		st.Games++
	}
	if err := bw.Flush(); err != nil {
		return st, err
	}
	g.logger.Info(ctx, "corpus generated",
		logger.Int("games", st.Games),
		logger.Int("rows", st.Rows),
		logger.Int("plays", st.Plays),
	)
	return st, nil
}

func (g *Generator) roster(rng *rand.Rand, prefix string, n int, hands []string) []player {
	out := make([]player, n)
	width := len(strconv.Itoa(n))
	for i := range out {
		p := player{
			id:   fmt.Sprintf("%s%0*d", prefix, width, i),
			hand: hands[rng.IntN(len(hands))],
		}
		for o := range p.weights {
			// a player's tendency is the baseline scaled by up to +-40%
			p.weights[o] = baseline[o] * (0.6 + 0.8*rng.Float64())
		}
		out[i] = p
	}
	return out
}

// sample draws an outcome from the product of batter and pitcher tendencies.
func sample(rng *rand.Rand, b, p player) model.Outcome {
	var w [model.NumOutcomes]float64
	total := 0.0
	for o := range w {
		w[o] = b.weights[o] * p.weights[o] / baseline[o]
		total += w[o]
	}
	r := rng.Float64() * total
	for o := range w {
		r -= w[o]
		if r < 0 {
			return model.Outcome(o)
		}
	}
	return model.HomeRun
}

func seedBytes(seed uint64) [32]byte {
	var b [32]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(seed >> (8 * i))
	}
	return b
}
