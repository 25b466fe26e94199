// Package model contains domain models passed between layers.
package model

import (
	"cmp"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel kinds for model validation errors.
var (
	ErrInvalidOutcome = errors.New("invalid outcome")
	ErrInvalidHand    = errors.New("invalid handedness")
	ErrInvalidRole    = errors.New("invalid role")
	ErrInvalidPlay    = errors.New("invalid play")
)

// Role is the side of a matchup a rating belongs to.
type Role uint8

const (
	Batter Role = iota
	Pitcher
)

// Roles lists both roles.
func Roles() []Role { return []Role{Batter, Pitcher} }

func (r Role) String() string {
	switch r {
	case Batter:
		return "batter"
	case Pitcher:
		return "pitcher"
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// ParseRole accepts "batter"/"pitcher" (or b/p).
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "batter", "b":
		return Batter, nil
	case "pitcher", "p":
		return Pitcher, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// SequenceKey orders plays across the whole corpus: game date, then game id,
// then the play's index inside the game.
type SequenceKey struct {
	Date   time.Time
	GameID string
	Index  int
}

// Compare returns -1, 0 or +1 like cmp.Compare.
func (k SequenceKey) Compare(o SequenceKey) int {
	if c := k.Date.Compare(o.Date); c != 0 {
		return c
	}
	if c := strings.Compare(k.GameID, o.GameID); c != 0 {
		return c
	}
	return cmp.Compare(k.Index, o.Index)
}

func (k SequenceKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Date.Format(time.DateOnly), k.GameID, k.Index)
}

// Play is one plate appearance with a classified outcome.
type Play struct {
	ID        string    `json:"id"`
	GameID    string    `json:"game_id"`
	Date      time.Time `json:"date"`
	Index     int       `json:"index"` // play number inside the game
	BatterID  string    `json:"batter_id"`
	PitcherID string    `json:"pitcher_id"`
	Outcome   Outcome   `json:"outcome"`

	// BatterFaces is the pitcher's effective throwing hand, PitcherFaces the
	// batter's effective batting side. Both are L or R.
	BatterFaces  Hand `json:"batter_faces"`
	PitcherFaces Hand `json:"pitcher_faces"`
}

// Key returns the play's global sequence key.
func (p *Play) Key() SequenceKey {
	return SequenceKey{Date: p.Date, GameID: p.GameID, Index: p.Index}
}

// Participant returns the player id for role.
func (p *Play) Participant(r Role) string {
	if r == Pitcher {
		return p.PitcherID
	}
	return p.BatterID
}

// Faces returns the opposing handedness bucket for role.
func (p *Play) Faces(r Role) Hand {
	if r == Pitcher {
		return p.PitcherFaces
	}
	return p.BatterFaces
}

// ReservedPrefix starts the ids of synthetic entities such as the league
// averages. No batter or pitcher id may use it.
const ReservedPrefix = "_"

// Validate checks the fields a play needs to be scheduled and rated.
func (p *Play) Validate() error {
	switch {
	case strings.TrimSpace(p.ID) == "":
		return fmt.Errorf("%w: missing id", ErrInvalidPlay)
	case strings.TrimSpace(p.BatterID) == "":
		return fmt.Errorf("%w: play %s missing batter id", ErrInvalidPlay, p.ID)
	case strings.TrimSpace(p.PitcherID) == "":
		return fmt.Errorf("%w: play %s missing pitcher id", ErrInvalidPlay, p.ID)
	case strings.HasPrefix(p.BatterID, ReservedPrefix) || strings.HasPrefix(p.PitcherID, ReservedPrefix):
		return fmt.Errorf("%w: play %s: participant ids may not start with %q", ErrInvalidPlay, p.ID, ReservedPrefix)
	case !p.Outcome.Valid():
		return fmt.Errorf("%w: play %s: %w", ErrInvalidPlay, p.ID, ErrInvalidOutcome)
	case !p.BatterFaces.Bucket() || !p.PitcherFaces.Bucket():
		return fmt.Errorf("%w: play %s: handedness must be resolved to L or R", ErrInvalidPlay, p.ID)
	}
	return nil
}
