package rating

import (
	"errors"
	"fmt"
	"slices"

	"github.com/okian/diamond/internal/domain/model"
)

// LeagueEntity is the entity id of the two synthetic league-average ratings;
// the role tells the batter average from the pitcher average. It lives under
// model.ReservedPrefix, so no player can share it.
const LeagueEntity = model.ReservedPrefix + "_league__"

// Sentinel kinds for rating parameter errors.
var (
	ErrInvalidParams = errors.New("invalid rating params")
)

// Key identifies one rating: who, in which role, against which hand.
type Key struct {
	Entity string
	Role   model.Role
	Hand   model.Hand
}

// PlayerKey builds the key for a player in a role facing hand.
func PlayerKey(entity string, role model.Role, hand model.Hand) Key {
	return Key{Entity: entity, Role: role, Hand: hand}
}

// LeagueKey builds the key for the league average of role facing hand.
func LeagueKey(role model.Role, hand model.Hand) Key {
	return Key{Entity: LeagueEntity, Role: role, Hand: hand}
}

// League reports whether k is a league-average key.
func (k Key) League() bool { return k.Entity == LeagueEntity }

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Role, k.Entity, k.Hand)
}

// Params fixes the timescales and clamp floor for a run.
type Params struct {
	PlayerTimescales []int
	LeagueTimescales []int
	Epsilon          float64
}

// DefaultParams returns the standard windows: 100/1000/10000 plays for
// players and ten times that for the league averages.
func DefaultParams() Params {
	return Params{
		PlayerTimescales: []int{100, 1000, 10000},
		LeagueTimescales: []int{1000, 10000, 100000},
		Epsilon:          DefaultEpsilon,
	}
}

// Timescales returns the windows used for k.
func (p Params) Timescales(k Key) []int {
	if k.League() {
		return p.LeagueTimescales
	}
	return p.PlayerTimescales
}

// Validate checks that both timescale sets are usable and the same length.
func (p Params) Validate() error {
	if len(p.PlayerTimescales) == 0 || len(p.PlayerTimescales) != len(p.LeagueTimescales) {
		return fmt.Errorf("%w: need matching non-empty timescale sets, got %d player and %d league",
			ErrInvalidParams, len(p.PlayerTimescales), len(p.LeagueTimescales))
	}
	if slices.ContainsFunc(p.PlayerTimescales, nonPositive) || slices.ContainsFunc(p.LeagueTimescales, nonPositive) {
		return fmt.Errorf("%w: timescales must be positive", ErrInvalidParams)
	}
	if p.Epsilon <= 0 || p.Epsilon >= 1.0/model.NumOutcomes {
		return fmt.Errorf("%w: epsilon %g out of range", ErrInvalidParams, p.Epsilon)
	}
	return nil
}

func nonPositive(k int) bool { return k <= 0 }

// Snapshot is a read-only copy of one rating, as handed to features and to
// the checkpoint store.
type Snapshot struct {
	Key         Key
	Timescales  []int
	Vectors     []Vector
	Appearances int64
}
