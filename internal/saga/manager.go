package saga

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// Finished instances kept for inspection.
	maxRetainedInstances = 64

	// Upper bound for all compensations of one saga.
	compensationTimeout = 10 * time.Second
)

// Manager manages saga execution and coordination
type Manager struct {
	logger      *zap.Logger
	instances   map[SagaID]*SagaInstance
	order       []SagaID
	definitions map[string]SagaDefinition
	listeners   []func(SagaEvent)
	seq         uint64
	mu          sync.RWMutex
}

// NewManager creates a new saga manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger:      logger,
		instances:   make(map[SagaID]*SagaInstance),
		definitions: make(map[string]SagaDefinition),
	}
}

// RegisterDefinition registers a saga definition
func (m *Manager) RegisterDefinition(def SagaDefinition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.definitions[def.ID()] = def
	m.logger.Info("Saga definition registered", zap.String("id", def.ID()))
}

// OnEvent registers a listener called synchronously for every saga event
func (m *Manager) OnEvent(fn func(SagaEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Run executes a saga in the calling goroutine. When a step fails, the
// completed steps are compensated in reverse order and the step error is
// returned.
func (m *Manager) Run(ctx context.Context, definitionID string, data SagaData) (SagaID, error) {
	m.mu.Lock()
	def, exists := m.definitions[definitionID]
	if !exists {
		m.mu.Unlock()
		return "", fmt.Errorf("saga definition not found: %s", definitionID)
	}

	m.seq++
	sagaID := SagaID(fmt.Sprintf("%s_%d_%d", definitionID, time.Now().UnixNano(), m.seq))

	// Initialize step executions
	stepExecs := make([]StepExecution, len(def.Steps()))
	for i, step := range def.Steps() {
		stepExecs[i] = StepExecution{
			ID:    step.ID(),
			State: StepStatePending,
		}
	}

	if data == nil {
		data = SagaData{}
	}
	instance := &SagaInstance{
		ID:        sagaID,
		State:     SagaStateRunning,
		Steps:     stepExecs,
		StartedAt: time.Now(),
	}

	m.instances[sagaID] = instance
	m.order = append(m.order, sagaID)
	m.evictLocked()
	m.mu.Unlock()

	m.emitEvent(SagaEvent{
		SagaID:    sagaID,
		Type:      EventSagaStarted,
		Timestamp: time.Now(),
	})

	m.logger.Debug("Saga started", zap.String("sagaID", string(sagaID)), zap.String("definition", definitionID))
	return sagaID, m.executeSaga(ctx, sagaID, def, data)
}

// GetSaga returns a snapshot of a retained saga instance. Later progress of
// the run does not affect the returned value.
func (m *Manager) GetSaga(sagaID SagaID) (*SagaInstance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	instance, exists := m.instances[sagaID]
	if !exists {
		return nil, false
	}

	snapshot := *instance
	snapshot.Steps = append([]StepExecution(nil), instance.Steps...)
	return &snapshot, true
}

// executeSaga executes a saga instance
func (m *Manager) executeSaga(ctx context.Context, sagaID SagaID, def SagaDefinition, data SagaData) error {
	stepCtx, cancel := context.WithTimeout(ctx, def.Timeout())
	defer cancel()

	// Execute steps sequentially
	lastCompletedStep := -1
	for i, step := range def.Steps() {
		if err := m.executeStep(stepCtx, sagaID, i, step, data); err != nil {
			m.logger.Error("Step failed",
				zap.String("sagaID", string(sagaID)),
				zap.String("stepID", string(step.ID())),
				zap.Error(err))

			m.updateSaga(sagaID, func(inst *SagaInstance) {
				inst.State = SagaStateFailed
				inst.Error = err.Error()
			})
			m.emitEvent(SagaEvent{
				SagaID:    sagaID,
				StepID:    step.ID(),
				Type:      EventSagaFailed,
				Timestamp: time.Now(),
				Error:     err.Error(),
			})

			// Compensation must run even if the caller's context is done.
			compCtx, compCancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
			defer compCancel()
			m.compensateSaga(compCtx, sagaID, def, lastCompletedStep, data)
			return err
		}
		lastCompletedStep = i
	}

	m.completeSaga(sagaID)
	return nil
}

// executeStep executes a single step
func (m *Manager) executeStep(ctx context.Context, sagaID SagaID, stepIndex int, step Step, data SagaData) error {
	now := time.Now()
	m.updateStep(sagaID, stepIndex, func(e *StepExecution) {
		e.State = StepStateRunning
		e.StartedAt = &now
	})

	m.emitEvent(SagaEvent{
		SagaID:    sagaID,
		StepID:    step.ID(),
		Type:      EventStepStarted,
		Timestamp: now,
	})

	err := step.Execute(ctx, data)
	if err == nil {
		completed := time.Now()
		m.updateStep(sagaID, stepIndex, func(e *StepExecution) {
			e.State = StepStateCompleted
			e.CompletedAt = &completed
		})

		m.emitEvent(SagaEvent{
			SagaID:    sagaID,
			StepID:    step.ID(),
			Type:      EventStepCompleted,
			Timestamp: completed,
		})

		m.logger.Debug("Step completed",
			zap.String("sagaID", string(sagaID)),
			zap.String("stepID", string(step.ID())))

		return nil
	}

	failed := time.Now()
	m.updateStep(sagaID, stepIndex, func(e *StepExecution) {
		e.State = StepStateFailed
		e.Error = err.Error()
		e.CompletedAt = &failed
	})

	m.emitEvent(SagaEvent{
		SagaID:    sagaID,
		StepID:    step.ID(),
		Type:      EventStepFailed,
		Timestamp: failed,
		Error:     err.Error(),
	})

	return err
}

// compensateSaga runs compensation for completed steps in reverse order
func (m *Manager) compensateSaga(ctx context.Context, sagaID SagaID, def SagaDefinition, lastCompletedStep int, data SagaData) {
	steps := def.Steps()

	for i := lastCompletedStep; i >= 0; i-- {
		step := steps[i]

		m.logger.Info("Compensating step",
			zap.String("sagaID", string(sagaID)),
			zap.String("stepID", string(step.ID())))

		if err := step.Compensate(ctx, data); err != nil {
			m.logger.Error("Compensation failed",
				zap.String("sagaID", string(sagaID)),
				zap.String("stepID", string(step.ID())),
				zap.Error(err))
			continue
		}

		m.updateStep(sagaID, i, func(e *StepExecution) { e.State = StepStateCompensated })
		m.emitEvent(SagaEvent{
			SagaID:    sagaID,
			StepID:    step.ID(),
			Type:      EventStepCompensated,
			Timestamp: time.Now(),
		})
	}

	now := time.Now()
	m.updateSaga(sagaID, func(inst *SagaInstance) {
		inst.State = SagaStateCompensated
		inst.CompletedAt = &now
	})

	m.emitEvent(SagaEvent{
		SagaID:    sagaID,
		Type:      EventSagaCompensated,
		Timestamp: now,
	})

	m.logger.Info("Saga compensated", zap.String("sagaID", string(sagaID)))
}

// completeSaga marks a saga as completed
func (m *Manager) completeSaga(sagaID SagaID) {
	now := time.Now()
	m.updateSaga(sagaID, func(inst *SagaInstance) {
		inst.State = SagaStateCompleted
		inst.CompletedAt = &now
	})

	m.emitEvent(SagaEvent{
		SagaID:    sagaID,
		Type:      EventSagaCompleted,
		Timestamp: now,
	})

	m.logger.Debug("Saga completed", zap.String("sagaID", string(sagaID)))
}

// evictLocked drops the oldest instances beyond the retention limit
func (m *Manager) evictLocked() {
	for len(m.order) > maxRetainedInstances {
		delete(m.instances, m.order[0])
		m.order = m.order[1:]
	}
}

// updateSaga applies fn to the instance under the lock. Evicted instances
// are skipped.
func (m *Manager) updateSaga(sagaID SagaID, fn func(*SagaInstance)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if instance, exists := m.instances[sagaID]; exists {
		fn(instance)
	}
}

func (m *Manager) updateStep(sagaID SagaID, stepIndex int, fn func(*StepExecution)) {
	m.updateSaga(sagaID, func(instance *SagaInstance) {
		if stepIndex < len(instance.Steps) {
			fn(&instance.Steps[stepIndex])
		}
	})
}

func (m *Manager) emitEvent(event SagaEvent) {
	m.mu.RLock()
	listeners := m.listeners
	m.mu.RUnlock()

	for _, fn := range listeners {
		fn(event)
	}
}
