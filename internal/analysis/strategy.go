package analysis

import (
	"context"
	"fmt"
)

// Stage names used in execution errors and status events.
const (
	StageSchemaAnalysis  = "schema_analysis"
	StageTechnicalDesign = "technical_design"
	StageTaskPlanning    = "task_planning"
)

// ExecutionError is the typed failure of a strategy or one of its stages.
type ExecutionError struct {
	Strategy string
	Stage    string
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("strategy %s failed at stage %s: %v", e.Strategy, e.Stage, e.Err)
	}
	return fmt.Sprintf("strategy %s failed: %v", e.Strategy, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Phase is the lifecycle position reported by a status event.
type Phase string

const (
	PhaseStarted   Phase = "started"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// StatusEvent reports strategy and stage progress to an external observer.
// Stage is empty for strategy-level events.
type StatusEvent struct {
	Strategy string
	Stage    string
	Phase    Phase
	Err      error
}

// StatusFunc receives status events. Delivery is best-effort: implementations
// must not block, and their availability never affects the execution result.
type StatusFunc func(StatusEvent)

// Request is the input to an execution strategy.
type Request struct {
	SessionID   string
	Requirement string
	// Context is the bounded recent-conversation context used to ground the
	// analysis prompts.
	Context string
	Status  StatusFunc
}

func (r Request) notify(e StatusEvent) {
	if r.Status != nil {
		r.Status(e)
	}
}

// Strategy is a swappable algorithm for producing an analysis result from a
// validated requirement. Implementations fail only with *ExecutionError and
// must observe ctx cancellation without emitting partial results.
type Strategy interface {
	Name() string
	Execute(ctx context.Context, req Request) (Result, error)
}
