package model

import (
	"fmt"
	"strings"
)

// Hand is a batting or throwing side.
type Hand uint8

const (
	Left Hand = iota
	Right
	// Both marks a switch hitter or an ambidextrous pitcher. It never
	// appears as a handedness bucket; ResolveMatchup collapses it.
	Both
)

// NumBuckets is the number of opposing-handedness buckets per rating.
const NumBuckets = 2

// Buckets lists the handedness buckets a rating is split into.
func Buckets() []Hand { return []Hand{Left, Right} }

// Bucket reports whether h can index a rating bucket.
func (h Hand) Bucket() bool { return h == Left || h == Right }

func (h Hand) String() string {
	switch h {
	case Left:
		return "L"
	case Right:
		return "R"
	case Both:
		return "B"
	}
	return fmt.Sprintf("hand(%d)", uint8(h))
}

// Opposite returns the other side; Both has no opposite and maps to itself.
func (h Hand) Opposite() Hand {
	switch h {
	case Left:
		return Right
	case Right:
		return Left
	}
	return h
}

// MarshalText implements encoding.TextMarshaler.
func (h Hand) MarshalText() ([]byte, error) {
	if h > Both {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHand, uint8(h))
	}
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hand) UnmarshalText(b []byte) error {
	v, err := ParseHand(string(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// ParseHand accepts L/R/B and the spelled-out forms.
func ParseHand(s string) (Hand, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l", "left":
		return Left, nil
	case "r", "right":
		return Right, nil
	case "b", "both", "s", "switch":
		return Both, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidHand, s)
}

// ResolveMatchup turns a batter's batting side and a pitcher's throwing side
// into the handedness each participant actually faces. An ambidextrous
// pitcher throws from the batter's side (left against a switch hitter), and a
// switch hitter bats opposite the effective throwing hand.
func ResolveMatchup(bats, throws Hand) (batterFaces, pitcherFaces Hand) {
	throw := throws
	if throw == Both {
		throw = Left
		if bats == Right {
			throw = Right
		}
	}
	bat := bats
	if bat == Both {
		bat = throw.Opposite()
	}
	return throw, bat
}
