package saga

import (
	"context"
	"time"
)

// SagaState is the lifecycle state of one run
type SagaState string

const (
	SagaStateRunning     SagaState = "running"
	SagaStateCompleted   SagaState = "completed"
	SagaStateFailed      SagaState = "failed"
	SagaStateCompensated SagaState = "compensated"
)

// StepState is the lifecycle state of one step within a run
type StepState string

const (
	StepStatePending     StepState = "pending"
	StepStateRunning     StepState = "running"
	StepStateCompleted   StepState = "completed"
	StepStateFailed      StepState = "failed"
	StepStateCompensated StepState = "compensated"
)

type (
	SagaID string
	StepID string
)

// SagaData is shared by every step of a run. Steps publish their outputs
// into it for later steps and for the caller.
type SagaData map[string]interface{}

// Step is one unit of work. Compensate undoes a completed Execute.
type Step interface {
	ID() StepID
	Execute(ctx context.Context, data SagaData) error
	Compensate(ctx context.Context, data SagaData) error
}

// SagaDefinition is an ordered list of steps with a deadline for the
// forward path.
type SagaDefinition interface {
	ID() string
	Steps() []Step
	Timeout() time.Duration
}

// SagaInstance records the progress of one run
type SagaInstance struct {
	ID          SagaID
	State       SagaState
	Steps       []StepExecution
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// StepExecution records the progress of one step
type StepExecution struct {
	ID          StepID
	State       StepState
	StartedAt   *time.Time
	CompletedAt *time.Time
	Error       string
}

// EventType names a lifecycle transition
type EventType string

const (
	EventSagaStarted     EventType = "saga_started"
	EventSagaCompleted   EventType = "saga_completed"
	EventSagaFailed      EventType = "saga_failed"
	EventSagaCompensated EventType = "saga_compensated"
	EventStepStarted     EventType = "step_started"
	EventStepCompleted   EventType = "step_completed"
	EventStepFailed      EventType = "step_failed"
	EventStepCompensated EventType = "step_compensated"
)

// SagaEvent is delivered to listeners on every transition. Error is set
// for failures.
type SagaEvent struct {
	SagaID    SagaID
	StepID    StepID
	Type      EventType
	Timestamp time.Time
	Error     string
}
