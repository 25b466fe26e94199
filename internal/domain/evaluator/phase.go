package evaluator

import (
	"fmt"

	"github.com/okian/diamond/pkg/metrics"
)

// Phase is the run state. A run moves Pending, Layering, Evaluating, Done
// and stops in Failed on any fatal error.
type Phase int32

const (
	Pending Phase = iota
	Layering
	Evaluating
	Done
	Failed
)

func (p Phase) String() string {
	switch p {
	case Pending:
		return "pending"
	case Layering:
		return "layering"
	case Evaluating:
		return "evaluating"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int32(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Terminal reports whether no further transition can happen.
func (p Phase) Terminal() bool { return p == Done || p == Failed }

func (p Phase) metric() int {
	switch p {
	case Layering:
		return metrics.PhaseLayering
	case Evaluating:
		return metrics.PhaseEvaluating
	case Done:
		return metrics.PhaseDone
	case Failed:
		return metrics.PhaseFailed
	}
	return metrics.PhasePending
}
