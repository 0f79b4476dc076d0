package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/officeflow/officeflow/internal/domain"
	"github.com/officeflow/officeflow/internal/ports"
)

// TriggerInput carries the event that starts a run.
type TriggerInput struct {
	Type       string
	OrgID      string
	EmployeeID string
	Payload    map[string]interface{}
}

// SaveDefinition persists a workflow definition. An active definition is
// frozen; publishing a change means saving a new version under a new id.
func (e *Engine) SaveDefinition(def *domain.WorkflowDefinition) error {
	existing, err := e.state.loadDefinition(def.ID)
	if err != nil && !domain.IsNotFound(err) {
		return err
	}
	if existing != nil && existing.Active {
		return domain.ErrDefinitionFroze
	}
	return e.state.saveDefinition(def)
}

func (e *Engine) GetDefinition(definitionID string) (*domain.WorkflowDefinition, error) {
	return e.state.loadDefinition(definitionID)
}

// StartRun seeds a run from the trigger nodes matching the incoming
// event and enqueues their first attempts.
func (e *Engine) StartRun(ctx context.Context, definitionID string, trigger TriggerInput) (*domain.Run, error) {
	def, err := e.state.loadDefinition(definitionID)
	if err != nil {
		return nil, err
	}

	seeds := matchTriggerNodes(def, trigger.Type)
	if len(seeds) == 0 {
		return nil, domain.Error{
			Type:    domain.ErrorTypeValidation,
			Message: fmt.Sprintf("definition %s has no trigger node for event %q", definitionID, trigger.Type),
		}
	}

	now := e.now()
	run := &domain.Run{
		ID:           uuid.NewString(),
		DefinitionID: def.ID,
		Status:       domain.RunStatusPending,
		EmployeeID:   trigger.EmployeeID,
		OrgID:        trigger.OrgID,
		TriggerType:  trigger.Type,
		Context:      map[string]interface{}{},
		StartedAt:    now,
	}
	if trigger.Payload != nil {
		run.Context["trigger"] = trigger.Payload
	}
	if err := e.state.saveRun(run, ""); err != nil {
		return nil, err
	}

	// The run turns running before its seed envelopes exist, so no worker
	// ever claims an attempt for a pending run.
	run.Status = domain.RunStatusRunning
	if err := e.state.saveRun(run, domain.RunStatusPending); err != nil {
		return nil, err
	}

	initial := make([]string, 0, len(seeds))
	for _, node := range seeds {
		if _, err := e.enqueueNode(ctx, run, node); err != nil {
			return nil, err
		}
		initial = append(initial, node.ID)
	}
	sort.Strings(initial)

	e.metrics.observeRunStarted()
	e.publishEvent(domain.RunStartedEvent{
		RunID:        run.ID,
		DefinitionID: def.ID,
		TriggerType:  trigger.Type,
		StartedAt:    now,
		InitialSteps: initial,
	})

	e.logger.Info("run started",
		"run_id", run.ID,
		"definition_id", def.ID,
		"trigger_type", trigger.Type,
		"initial_steps", len(initial),
	)
	return run, nil
}

func matchTriggerNodes(def *domain.WorkflowDefinition, triggerType string) []domain.Node {
	var seeds []domain.Node
	for _, node := range def.TriggerNodes() {
		event, _ := node.Params["event"].(string)
		if triggerType == "" || event == "" || event == triggerType {
			seeds = append(seeds, node)
		}
	}
	return seeds
}

func (e *Engine) GetRun(runID string) (*domain.Run, error) {
	return e.state.loadRun(runID)
}

func (e *Engine) GetSteps(runID string) ([]*domain.Step, error) {
	byNode, err := e.state.loadSteps(runID)
	if err != nil {
		return nil, err
	}

	steps := make([]*domain.Step, 0, len(byNode))
	for _, step := range byNode {
		steps = append(steps, step)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].NodeID < steps[j].NodeID })
	return steps, nil
}

// GetAttempts returns the attempt-by-attempt history of one step.
func (e *Engine) GetAttempts(runID, nodeID string) ([]*domain.AttemptRecord, error) {
	return e.state.listAttempts(runID, nodeID)
}

func (e *Engine) ListRuns(status domain.RunStatus, offset, limit int) ([]*domain.Run, error) {
	return e.state.listRuns(status, offset, limit)
}

// CountRuns reports how many runs sit in the given status, via the
// status index rather than a row scan.
func (e *Engine) CountRuns(status domain.RunStatus) (int, error) {
	return e.state.countRuns(status)
}

func (e *Engine) PauseRun(_ context.Context, runID, reason string) error {
	run, err := e.state.loadRun(runID)
	if err != nil {
		return err
	}
	if run.Status != domain.RunStatusRunning {
		return domain.ErrRunNotActive
	}

	previous := run.Status
	run.Status = domain.RunStatusPaused
	if err := e.state.saveRun(run, previous); err != nil {
		return err
	}

	now := e.now()
	e.publishEvent(domain.RunPausedEvent{RunID: runID, PausedAt: now, Reason: reason})
	e.logger.Info("run paused", "run_id", runID, "reason", reason)
	return nil
}

func (e *Engine) ResumeRun(_ context.Context, runID string) error {
	run, err := e.state.loadRun(runID)
	if err != nil {
		return err
	}
	if run.Status != domain.RunStatusPaused {
		return domain.ErrRunNotActive
	}

	previous := run.Status
	run.Status = domain.RunStatusRunning
	if err := e.state.saveRun(run, previous); err != nil {
		return err
	}

	e.publishEvent(domain.RunResumedEvent{RunID: runID, ResumedAt: e.now()})
	e.logger.Info("run resumed", "run_id", runID)
	return nil
}

func (e *Engine) CancelRun(ctx context.Context, runID string) error {
	run, err := e.state.loadRun(runID)
	if err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		return domain.ErrRunNotActive
	}

	now := e.now()
	previous := run.Status
	run.Status = domain.RunStatusCancelled
	run.CompletedAt = &now
	if err := e.state.saveRun(run, previous); err != nil {
		return err
	}

	cancelled, err := e.cancelOutstandingSteps(ctx, run, now)
	if err != nil {
		return err
	}
	sort.Strings(cancelled)

	e.metrics.observeRunFinished(domain.RunStatusCancelled, now.Sub(run.StartedAt))
	e.publishEvent(domain.RunCancelledEvent{
		RunID:          runID,
		CancelledAt:    now,
		CancelledSteps: cancelled,
	})

	e.logger.Info("run cancelled", "run_id", runID, "cancelled_steps", len(cancelled))
	return nil
}

// RetryRun re-arms a failed run: steps that ended failed, timed out, or
// cancelled go back to the queue with a fresh attempt budget.
func (e *Engine) RetryRun(ctx context.Context, runID string) error {
	run, err := e.state.loadRun(runID)
	if err != nil {
		return err
	}
	if run.Status != domain.RunStatusFailed {
		return domain.Error{
			Type:    domain.ErrorTypeConflict,
			Message: fmt.Sprintf("run %s is %s, only failed runs can be retried", runID, run.Status),
		}
	}

	def, err := e.state.loadDefinition(run.DefinitionID)
	if err != nil {
		return err
	}

	steps, err := e.state.loadSteps(runID)
	if err != nil {
		return err
	}

	previous := run.Status
	run.Status = domain.RunStatusRunning
	run.LastError = ""
	run.CompletedAt = nil
	if err := e.state.saveRun(run, previous); err != nil {
		return err
	}

	retried := 0
	for _, step := range steps {
		switch step.Status {
		case domain.StepStatusFailed, domain.StepStatusTimeout, domain.StepStatusCancelled:
		default:
			continue
		}

		node, ok := def.Node(step.NodeID)
		if !ok {
			continue
		}

		// Earlier attempt markers would suppress the re-delivery.
		prefix := domain.IdempotencyClaimKey(fmt.Sprintf("%s:%s:", runID, step.NodeID))
		if _, err := e.storage.DeleteByPrefix(prefix); err != nil {
			return err
		}

		step.Status = domain.StepStatusQueued
		step.Attempt = 0
		step.Error = ""
		step.CompletedAt = nil
		if err := e.state.saveStep(step); err != nil {
			return err
		}

		req := &domain.ExecutionRequest{
			ID:             uuid.NewString(),
			RunID:          runID,
			NodeID:         node.ID,
			NodeType:       node.Type,
			Attempt:        0,
			IdempotencyKey: domain.IdempotencyKey(runID, node.ID, 0),
			EnqueuedAt:     e.now(),
		}
		data, err := req.ToBytes()
		if err != nil {
			return err
		}
		if err := e.bus.Publish(ctx, TopicSteps, runID, data); err != nil {
			return err
		}
		retried++
	}

	e.logger.Info("run retry started", "run_id", runID, "steps_requeued", retried)
	return nil
}

func (e *Engine) DeadLetters(limit int) ([]ports.DeadLetterItem, error) {
	return e.bus.DeadLetterItems(TopicSteps, limit)
}

func (e *Engine) RetryDeadLetter(ctx context.Context, itemID string) error {
	return e.bus.RetryFromDeadLetter(ctx, TopicSteps, itemID)
}
