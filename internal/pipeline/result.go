package pipeline

import (
	"errors"
	"fmt"

	"github.com/diarisk/diarisk/internal/assessment"
)

// Outcome classifies how a stage finished.
type Outcome int

const (
	// Succeeded means the stage produced its normal result.
	Succeeded Outcome = iota
	// Degraded means the stage produced a usable stand-in (a disabled stub,
	// a fallback, or a placeholder after an absorbed failure). The run continues.
	Degraded
	// Fatal means the stage failed and the run stops.
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Degraded:
		return "degraded"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result is what every stage returns to the orchestrator.
type Result[T any] struct {
	Value   T
	Outcome Outcome
	// Reason explains a degraded result and is recorded in the trace notes.
	Reason string
	// Warnings are surfaced to the caller in the final analysis.
	Warnings []string
	Err      error
}

func succeeded[T any](v T) Result[T] {
	return Result[T]{Value: v, Outcome: Succeeded}
}

func degraded[T any](v T, reason string, warnings ...string) Result[T] {
	return Result[T]{Value: v, Outcome: Degraded, Reason: reason, Warnings: warnings}
}

func fatal[T any](err error) Result[T] {
	return Result[T]{Outcome: Fatal, Err: err}
}

// StageError is returned by Run when a stage fails. Trace holds every entry
// recorded up to and including the failed stage.
type StageError struct {
	Stage string
	Trace []assessment.AgentTraceItem
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// TraceOf returns the trace carried by err, if it is a StageError.
func TraceOf(err error) []assessment.AgentTraceItem {
	var se *StageError
	if errors.As(err, &se) {
		return se.Trace
	}
	return nil
}
