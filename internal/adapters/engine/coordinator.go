package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/officeflow/officeflow/internal/domain"
	"github.com/officeflow/officeflow/internal/executors"
)

// advanceRun evaluates the successors of a freshly resolved node. A
// successor is scheduled once every dependency has reached a terminal
// status and at least one incoming edge delivers; if all dependencies
// resolved but no edge delivers, the successor is skipped and the skip
// cascades through its own successors.
func (e *Engine) advanceRun(ctx context.Context, run *domain.Run, def *domain.WorkflowDefinition, resolvedNodeID string) error {
	steps, err := e.state.loadSteps(run.ID)
	if err != nil {
		return err
	}

	frontier := []string{resolvedNodeID}
	for len(frontier) > 0 {
		nodeID := frontier[0]
		frontier = frontier[1:]

		for _, edge := range def.OutgoingEdges(nodeID) {
			if _, scheduled := steps[edge.Target]; scheduled {
				continue
			}

			ready, delivers := e.evaluateDependencies(def, steps, edge.Target)
			if !ready {
				continue
			}

			node, ok := def.Node(edge.Target)
			if !ok {
				continue
			}

			if delivers {
				step, err := e.enqueueNode(ctx, run, node)
				if err != nil {
					return err
				}
				steps[node.ID] = step
				continue
			}

			step := e.skippedStep(run.ID, node)
			if err := e.state.saveStep(step); err != nil {
				return err
			}
			steps[node.ID] = step
			frontier = append(frontier, node.ID)

			e.logger.Debug("step skipped",
				"run_id", run.ID,
				"node_id", node.ID,
			)
		}
	}

	return e.checkRunCompletion(run, steps)
}

// evaluateDependencies reports whether every dependency of the node has
// settled, and whether any taken edge delivers control into it.
func (e *Engine) evaluateDependencies(def *domain.WorkflowDefinition, steps map[string]*domain.Step, nodeID string) (ready, delivers bool) {
	incoming := def.IncomingEdges(nodeID)
	if len(incoming) == 0 {
		return false, false
	}

	for _, edge := range incoming {
		source, exists := steps[edge.Source]
		if !exists || !source.Status.IsTerminal() {
			return false, false
		}
		if edgeDelivers(edge, source) {
			delivers = true
		}
	}
	return true, delivers
}

// edgeDelivers is true when the source completed and, for handle-tagged
// edges, the source reported taking that handle.
func edgeDelivers(edge domain.Edge, source *domain.Step) bool {
	if source.Status != domain.StepStatusCompleted {
		return false
	}
	if edge.SourceHandle == "" {
		return true
	}
	taken, _ := source.Output[executors.OutputKeyHandle].(string)
	return taken == edge.SourceHandle
}

func (e *Engine) enqueueNode(ctx context.Context, run *domain.Run, node domain.Node) (*domain.Step, error) {
	step := &domain.Step{
		ID:       uuid.NewString(),
		RunID:    run.ID,
		NodeID:   node.ID,
		NodeType: node.Type,
		Status:   domain.StepStatusQueued,
		Attempt:  0,
	}
	if err := e.state.saveStep(step); err != nil {
		return nil, err
	}

	req := &domain.ExecutionRequest{
		ID:             uuid.NewString(),
		RunID:          run.ID,
		NodeID:         node.ID,
		NodeType:       node.Type,
		Attempt:        0,
		IdempotencyKey: domain.IdempotencyKey(run.ID, node.ID, 0),
		EnqueuedAt:     e.now(),
	}
	data, err := req.ToBytes()
	if err != nil {
		return nil, err
	}
	if err := e.bus.Publish(ctx, TopicSteps, run.ID, data); err != nil {
		return nil, err
	}

	e.logger.Debug("step enqueued",
		"run_id", run.ID,
		"node_id", node.ID,
		"node_type", string(node.Type),
	)
	return step, nil
}

func (e *Engine) skippedStep(runID string, node domain.Node) *domain.Step {
	now := e.now()
	return &domain.Step{
		ID:          uuid.NewString(),
		RunID:       runID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		Status:      domain.StepStatusSkipped,
		CompletedAt: &now,
	}
}

// checkRunCompletion finishes the run once no step remains in flight.
// Joins are evaluated as their dependencies settle, so a fully terminal
// step set means nothing further will ever be scheduled.
func (e *Engine) checkRunCompletion(run *domain.Run, steps map[string]*domain.Step) error {
	for _, step := range steps {
		if !step.Status.IsTerminal() {
			return nil
		}
	}
	if run.Status.IsTerminal() {
		return nil
	}

	now := e.now()
	previous := run.Status
	run.Status = domain.RunStatusCompleted
	run.CompletedAt = &now
	if err := e.state.saveRun(run, previous); err != nil {
		return err
	}

	duration := now.Sub(run.StartedAt)
	e.metrics.observeRunFinished(domain.RunStatusCompleted, duration)
	e.publishEvent(domain.RunCompletedEvent{
		RunID:       run.ID,
		CompletedAt: now,
		Duration:    duration,
		StepCount:   len(steps),
	})

	e.logger.Info("run completed",
		"run_id", run.ID,
		"duration", duration.String(),
		"steps", len(steps),
	)
	return nil
}

func (e *Engine) failRun(ctx context.Context, run *domain.Run, failedNodeID, message string) error {
	now := e.now()
	previous := run.Status
	run.Status = domain.RunStatusFailed
	run.LastError = message
	run.CompletedAt = &now
	if err := e.state.saveRun(run, previous); err != nil {
		return err
	}

	if _, err := e.cancelOutstandingSteps(ctx, run, now); err != nil {
		return err
	}

	e.metrics.observeRunFinished(domain.RunStatusFailed, now.Sub(run.StartedAt))
	e.publishEvent(domain.RunFailedEvent{
		RunID:      run.ID,
		FailedNode: failedNodeID,
		Error:      message,
		FailedAt:   now,
	})

	e.logger.Error("run failed",
		"run_id", run.ID,
		"failed_node", failedNodeID,
		"error", message,
	)
	return nil
}

func (e *Engine) cancelOutstandingSteps(_ context.Context, run *domain.Run, now time.Time) ([]string, error) {
	steps, err := e.state.loadSteps(run.ID)
	if err != nil {
		return nil, err
	}

	var cancelled []string
	for _, step := range steps {
		if step.Status.IsTerminal() {
			continue
		}
		step.Status = domain.StepStatusCancelled
		step.CompletedAt = &now
		if err := e.state.saveStep(step); err != nil {
			return nil, err
		}
		cancelled = append(cancelled, step.NodeID)
	}
	return cancelled, nil
}
