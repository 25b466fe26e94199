package playgraph

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds for graph construction errors.
var (
	ErrMalformedInput = errors.New("malformed play input")
)

// Problem is one reason the play set cannot be scheduled.
type Problem struct {
	Reason  string
	PlayIDs []string
}

// MalformedInputError lists every problem found in the play set. It matches
// ErrMalformedInput under errors.Is.
type MalformedInputError struct {
	Problems []Problem
}

func (e *MalformedInputError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d problem(s)", ErrMalformedInput, len(e.Problems))
	for i, p := range e.Problems {
		if i == maxReportedProblems {
			fmt.Fprintf(&b, "; ... %d more", len(e.Problems)-i)
			break
		}
		fmt.Fprintf(&b, "; %s [%s]", p.Reason, strings.Join(p.PlayIDs, ", "))
	}
	return b.String()
}

// Is reports whether target is ErrMalformedInput.
func (e *MalformedInputError) Is(target error) bool { return target == ErrMalformedInput }

// PlayIDs returns every offending play id, in problem order.
func (e *MalformedInputError) PlayIDs() []string {
	var ids []string
	for _, p := range e.Problems {
		ids = append(ids, p.PlayIDs...)
	}
	return ids
}

const maxReportedProblems = 10
