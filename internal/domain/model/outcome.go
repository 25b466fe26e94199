package model

import (
	"fmt"
	"strings"
)

// Outcome is one of the nine field-agnostic results of a plate appearance.
// Field agnostic means the result does not depend on fielder positioning or
// baserunners: errors count as the out they would have been, fielder's
// choices and steals are not outcomes at all.
type Outcome uint8

// Outcome values double as indexes into rating vectors.
const (
	Strikeout Outcome = iota
	Lineout
	Groundout
	Flyout
	Walk
	Single
	Double
	Triple
	HomeRun
)

// NumOutcomes is the length of every rating vector.
const NumOutcomes = 9

var outcomeNames = [NumOutcomes]string{ //nolint:gochecknoglobals // static lookup table
	"strikeout", "lineout", "groundout", "flyout", "walk",
	"single", "double", "triple", "home_run",
}

// Outcomes lists every outcome in index order.
func Outcomes() []Outcome {
	out := make([]Outcome, NumOutcomes)
	for i := range out {
		out[i] = Outcome(i)
	}
	return out
}

// Valid reports whether o is one of the nine outcomes.
func (o Outcome) Valid() bool { return o < NumOutcomes }

func (o Outcome) String() string {
	if !o.Valid() {
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
	return outcomeNames[o]
}

// OneHot returns the observed-outcome vector for o.
func (o Outcome) OneHot() [NumOutcomes]float64 {
	var v [NumOutcomes]float64
	if o.Valid() {
		v[o] = 1
	}
	return v
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOutcome, uint8(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(b []byte) error {
	v, err := ParseOutcomeName(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// ParseOutcomeName parses the canonical outcome name ("home_run", "walk", ...).
func ParseOutcomeName(s string) (Outcome, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	for i, n := range outcomeNames {
		if n == s {
			return Outcome(i), nil
		}
	}
	if s == "homerun" || s == "hr" {
		return HomeRun, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidOutcome, s)
}

// ParseOutcome classifies a play-by-play description. ok is false when the
// description is not a plate-appearance outcome (steals, pickoffs, unknown
// text).
func ParseOutcome(desc string) (o Outcome, ok bool) {
	d, _, _ := strings.Cut(strings.ToLower(desc), ";")
	switch {
	case strings.Contains(d, "double play"), strings.Contains(d, "triple play"):
		return parseMultiOut(d)
	case strings.Contains(d, "reached on"):
		return parseReachedOnError(d)
	case strings.Contains(d, "steal"), strings.Contains(d, "picked off"):
		return 0, false
	case strings.Contains(d, "single"):
		return Single, true
	case strings.Contains(d, "double"):
		return Double, true
	case strings.Contains(d, "triple"):
		return Triple, true
	case strings.Contains(d, "home run"):
		return HomeRun, true
	case strings.Contains(d, "strikeout"):
		return Strikeout, true
	case strings.Contains(d, "lineout"):
		return Lineout, true
	case strings.Contains(d, "fly"):
		return Flyout, true
	case strings.Contains(d, "on foul ball"):
		// foul-ball error, scored as the fly out it would have been
		return Flyout, true
	case strings.Contains(d, "groundout"):
		return Groundout, true
	case strings.Contains(d, "walk"):
		return Walk, true
	}
	return 0, false
}

func parseMultiOut(d string) (Outcome, bool) {
	switch {
	case strings.Contains(d, "strikeout"):
		return Strikeout, true
	case strings.Contains(d, "ground ball"), strings.Contains(d, "groundout"):
		return Groundout, true
	case strings.Contains(d, "lineout"):
		return Lineout, true
	case strings.Contains(d, "fly"):
		return Flyout, true
	}
	return 0, false
}

func parseReachedOnError(d string) (Outcome, bool) {
	switch {
	case strings.Contains(d, "ground ball"):
		return Groundout, true
	case strings.Contains(d, "fly"):
		return Flyout, true
	case strings.Contains(d, "line"):
		return Lineout, true
	}
	return 0, false
}
