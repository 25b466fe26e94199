package evaluator

import (
	"time"

	"github.com/okian/diamond/internal/domain/model"
	"github.com/okian/diamond/internal/domain/rating"
)

// Record is one training example: what every rating expected before a play,
// and what happened.
type Record struct {
	PlayID string    `json:"play_id"`
	GameID string    `json:"game_id"`
	Date   time.Time `json:"date"`
	Layer  int       `json:"layer"`

	BatterID     string     `json:"batter_id"`
	PitcherID    string     `json:"pitcher_id"`
	BatterFaces  model.Hand `json:"batter_faces"`
	PitcherFaces model.Hand `json:"pitcher_faces"`

	// One vector per timescale, shortest window first.
	Batter        []rating.Vector `json:"batter"`
	Pitcher       []rating.Vector `json:"pitcher"`
	LeagueBatter  []rating.Vector `json:"league_batter"`
	LeaguePitcher []rating.Vector `json:"league_pitcher"`

	// Player minus league average at the same timescale index.
	BatterDiff  []rating.Vector `json:"batter_diff"`
	PitcherDiff []rating.Vector `json:"pitcher_diff"`

	BatterAppearances  int64 `json:"batter_appearances"`
	PitcherAppearances int64 `json:"pitcher_appearances"`
	// Plays this pitcher already faced in the same game.
	PitcherGameAppearances int `json:"pitcher_game_appearances"`

	Outcome model.Outcome              `json:"outcome"`
	Actual  [model.NumOutcomes]float64 `json:"actual"`
}

func newRecord(p *model.Play, layer, inGame int, batter, pitcher, lgBatter, lgPitcher rating.Snapshot) Record {
	return Record{
		PlayID:                 p.ID,
		GameID:                 p.GameID,
		Date:                   p.Date,
		Layer:                  layer,
		BatterID:               p.BatterID,
		PitcherID:              p.PitcherID,
		BatterFaces:            p.BatterFaces,
		PitcherFaces:           p.PitcherFaces,
		Batter:                 batter.Vectors,
		Pitcher:                pitcher.Vectors,
		LeagueBatter:           lgBatter.Vectors,
		LeaguePitcher:          lgPitcher.Vectors,
		BatterDiff:             diff(batter.Vectors, lgBatter.Vectors),
		PitcherDiff:            diff(pitcher.Vectors, lgPitcher.Vectors),
		BatterAppearances:      batter.Appearances,
		PitcherAppearances:     pitcher.Appearances,
		PitcherGameAppearances: inGame,
		Outcome:                p.Outcome,
		Actual:                 p.Outcome.OneHot(),
	}
}

func diff(player, league []rating.Vector) []rating.Vector {
	out := make([]rating.Vector, min(len(player), len(league)))
	for i := range out {
		out[i] = player[i].Sub(league[i])
	}
	return out
}
