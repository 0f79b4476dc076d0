package engine

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/officeflow/officeflow/internal/domain"
	"github.com/officeflow/officeflow/internal/ports"
)

// idempotencyClaimTTL bounds how long an attempt marker survives; after
// it lapses a redelivered envelope would execute again, which
// at-least-once delivery already permits.
const idempotencyClaimTTL = 24 * time.Hour

// processClaim handles one claimed bus envelope end to end. The claim is
// completed on every path except transient infrastructure errors, which
// bubble up so the caller releases the claim for redelivery.
func (e *Engine) processClaim(ctx context.Context, item []byte, claimID string, logger *slog.Logger) error {
	req, err := domain.ExecutionRequestFromBytes(item)
	if err != nil {
		logger.Warn("quarantining malformed envelope", "error", err.Error())
		if qErr := e.bus.SendToQuarantine(ctx, TopicSteps, item, "malformed execution request"); qErr != nil {
			return qErr
		}
		return e.bus.Complete(ctx, claimID)
	}

	logger = logger.With("run_id", req.RunID, "node_id", req.NodeID, "attempt", req.Attempt)

	run, err := e.state.loadRun(req.RunID)
	if err != nil {
		if domain.IsNotFound(err) {
			logger.Warn("dropping envelope for unknown run")
			return e.bus.Complete(ctx, claimID)
		}
		return err
	}

	switch run.Status {
	case domain.RunStatusPaused:
		// Defer the envelope; the run picks up where it left off on resume.
		if err := e.bus.PublishAfter(ctx, TopicSteps, run.ID, item, pauseRecheckDelay); err != nil {
			return err
		}
		return e.bus.Complete(ctx, claimID)
	case domain.RunStatusCancelled, domain.RunStatusCompleted, domain.RunStatusFailed:
		logger.Debug("dropping envelope for terminal run", "run_status", string(run.Status))
		return e.bus.Complete(ctx, claimID)
	}

	claimed, err := e.claimIdempotency(req)
	if err != nil {
		return err
	}
	if !claimed {
		if err := e.resolveSuppressed(ctx, run, req, logger); err != nil {
			return err
		}
		return e.bus.Complete(ctx, claimID)
	}

	if err := e.executeStep(ctx, run, req, logger); err != nil {
		return err
	}
	return e.bus.Complete(ctx, claimID)
}

// resolveSuppressed handles a redelivery whose idempotency marker already
// exists. A marker paired with a non-terminal step at the same attempt is
// a crash leftover: the worker died between claiming the attempt and
// recording its verdict, so the step would otherwise stay queued forever.
// A marker paired with a terminal step may still predate successor
// enqueue, so the run is advanced rather than the envelope dropped.
func (e *Engine) resolveSuppressed(ctx context.Context, run *domain.Run, req *domain.ExecutionRequest, logger *slog.Logger) error {
	step, found, err := e.state.loadStep(run.ID, req.NodeID)
	if err != nil {
		return err
	}
	if !found {
		logger.Debug("duplicate delivery suppressed", "idempotency_key", req.IdempotencyKey)
		return nil
	}

	switch {
	case step.Status.IsTerminal():
		def, err := e.state.loadDefinition(run.DefinitionID)
		if err != nil {
			return err
		}
		return e.advanceRun(ctx, run, def, req.NodeID)

	case step.Attempt == req.Attempt:
		logger.Warn("reclaiming attempt with no recorded verdict", "idempotency_key", req.IdempotencyKey)
		key := domain.IdempotencyClaimKey(req.IdempotencyKey)
		if err := e.storage.PutWithTTL(key, []byte(req.ID), idempotencyClaimTTL); err != nil {
			return err
		}
		return e.executeStep(ctx, run, req, logger)

	default:
		// A newer attempt owns the step now.
		logger.Debug("duplicate delivery suppressed", "idempotency_key", req.IdempotencyKey)
		return nil
	}
}

// claimIdempotency writes the attempt marker inside one transaction so
// two workers racing on the same redelivered envelope cannot both win.
func (e *Engine) claimIdempotency(req *domain.ExecutionRequest) (bool, error) {
	key := domain.IdempotencyClaimKey(req.IdempotencyKey)
	claimed := false
	err := e.storage.RunInTransaction(func(tx ports.Transaction) error {
		exists, err := tx.Exists(key)
		if err != nil || exists {
			return err
		}
		claimed = true
		return tx.PutWithTTL(key, []byte(req.ID), idempotencyClaimTTL)
	})
	return claimed, err
}

func (e *Engine) executeStep(ctx context.Context, run *domain.Run, req *domain.ExecutionRequest, logger *slog.Logger) error {
	def, err := e.state.loadDefinition(run.DefinitionID)
	if err != nil {
		return err
	}

	node, ok := def.Node(req.NodeID)
	if !ok {
		logger.Error("node missing from definition", "definition_id", def.ID)
		return e.failRun(ctx, run, req.NodeID,
			"node "+req.NodeID+" not present in definition "+def.ID)
	}

	step, found, err := e.state.loadStep(run.ID, req.NodeID)
	if err != nil {
		return err
	}
	if !found {
		logger.Warn("envelope without a step row, dropping")
		return nil
	}
	if step.Status.IsTerminal() {
		// The verdict already landed; a crash may still have preceded
		// successor enqueue, and advancing is idempotent.
		logger.Debug("step already terminal", "step_status", string(step.Status))
		return e.advanceRun(ctx, run, def, req.NodeID)
	}

	now := e.now()
	step.Status = domain.StepStatusRunning
	step.Attempt = req.Attempt
	if step.StartedAt == nil {
		step.StartedAt = &now
	}
	if err := e.state.saveStep(step); err != nil {
		return err
	}

	executor, err := e.registry.Get(node.Type)
	if err != nil {
		return e.failStep(ctx, run, def, req, domain.NewExecutionError(domain.ErrClassValidation,
			"no executor registered for node type %s", node.Type), step)
	}

	params := node.Params
	if e.resolver != nil {
		resolved, resolveErr := e.resolver.ResolveParams(node.Params, run.Context)
		if resolveErr != nil {
			return e.failStep(ctx, run, def, req, domain.NewExecutionError(domain.ErrClassValidation,
				"parameter resolution failed: %v", resolveErr), step)
		}
		params = resolved
	}

	input := ports.ExecutionInput{
		RunID:          run.ID,
		NodeID:         node.ID,
		OrgID:          run.OrgID,
		EmployeeID:     run.EmployeeID,
		Params:         params,
		Context:        run.Context,
		IdempotencyKey: req.IdempotencyKey,
		Attempt:        req.Attempt,
	}

	timeout := node.Timeout()
	if timeout <= 0 {
		timeout = e.config.DefaultTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	started := e.now()
	result := e.safeExecute(attemptCtx, executor, input)
	elapsed := e.now().Sub(started)
	timedOut := attemptCtx.Err() == context.DeadlineExceeded
	cancel()

	if ctx.Err() != nil && result.Status != ports.StatusSuccess {
		// Shutdown mid-attempt: give the envelope back for redelivery
		// instead of recording a verdict the executor never reached.
		if delErr := e.storage.Delete(domain.IdempotencyClaimKey(req.IdempotencyKey)); delErr != nil {
			logger.Error("idempotency rollback failed", "error", delErr.Error())
		}
		return ctx.Err()
	}

	e.metrics.observeStep(node.Type, result.Status, elapsed)
	e.recordAttempt(req, started, elapsed, timedOut, result)

	switch {
	// A result that arrives after the deadline does not count, even a
	// successful one; the deadline is a hard bound on the attempt.
	case timedOut:
		logger.Warn("attempt exceeded deadline", "timeout", timeout.String(), "elapsed", elapsed.String())
		step.Status = domain.StepStatusTimeout
		step.Error = "attempt timed out after " + timeout.String()
		if err := e.state.saveStep(step); err != nil {
			return err
		}
		return e.retryOrFail(ctx, run, def, node, req, step, domain.NewExecutionError(
			domain.ErrClassExecution, "attempt timed out after %s", timeout))

	case result.Status == ports.StatusSuccess:
		return e.completeStep(ctx, run, def, req, step, result.Output, elapsed)

	case result.Status == ports.StatusRetry:
		return e.retryOrFail(ctx, run, def, node, req, step, result.Error)

	default:
		return e.failStepWithOutput(ctx, run, def, req, result.Error, step, result.Output)
	}
}

// recordAttempt writes the per-attempt audit row. Audit failures are
// logged, never fatal to the attempt itself.
func (e *Engine) recordAttempt(req *domain.ExecutionRequest, started time.Time, elapsed time.Duration, timedOut bool, result ports.ExecutionResult) {
	record := &domain.AttemptRecord{
		RunID:      req.RunID,
		NodeID:     req.NodeID,
		Attempt:    req.Attempt,
		StartedAt:  started,
		FinishedAt: started.Add(elapsed),
		Duration:   elapsed.Milliseconds(),
	}
	switch {
	case timedOut:
		record.Status = domain.StepStatusTimeout
		record.Error = "attempt timed out"
	case result.Status == ports.StatusSuccess:
		record.Status = domain.StepStatusCompleted
	case result.Status == ports.StatusRetry:
		record.Status = domain.StepStatusRetrying
	default:
		record.Status = domain.StepStatusFailed
	}
	if record.Error == "" && result.Error != nil {
		record.Error = result.Error.Error()
	}

	if err := e.state.saveAttempt(record); err != nil {
		e.logger.Error("attempt record write failed",
			"run_id", req.RunID,
			"node_id", req.NodeID,
			"attempt", req.Attempt,
			"error", err.Error(),
		)
	}
}

func (e *Engine) completeStep(ctx context.Context, run *domain.Run, def *domain.WorkflowDefinition, req *domain.ExecutionRequest, step *domain.Step, output map[string]interface{}, elapsed time.Duration) error {
	now := e.now()
	step.Status = domain.StepStatusCompleted
	step.Output = output
	step.Error = ""
	step.CompletedAt = &now
	if err := e.state.saveStep(step); err != nil {
		return err
	}

	if len(output) > 0 {
		merged, err := domain.MergeContext(run.Context, map[string]interface{}{step.NodeID: output})
		if err != nil {
			return err
		}
		run.Context = merged
		if err := e.state.saveRun(run, run.Status); err != nil {
			return err
		}
	}

	e.publishEvent(domain.StepCompletedEvent{
		RunID:    run.ID,
		NodeID:   step.NodeID,
		Status:   step.Status,
		Attempt:  req.Attempt,
		Duration: elapsed,
	})

	return e.advanceRun(ctx, run, def, step.NodeID)
}

// retryOrFail applies the node's retry policy to a retryable fault. The
// attempt count is zero-based: a policy of maxRetries=3 permits attempts
// 0 through 3, four executions in total.
func (e *Engine) retryOrFail(ctx context.Context, run *domain.Run, def *domain.WorkflowDefinition, node domain.Node, req *domain.ExecutionRequest, step *domain.Step, execErr *domain.ExecutionError) error {
	if req.Attempt >= node.RetryPolicy.MaxRetries {
		e.logger.Warn("retry budget exhausted",
			"run_id", run.ID,
			"node_id", node.ID,
			"attempts", req.Attempt+1,
			"error", execErr.Error(),
		)
		return e.failStep(ctx, run, def, req, execErr, step)
	}

	delay := e.backoffDelay(node, req.Attempt)
	nextAttempt := req.Attempt + 1

	step.Status = domain.StepStatusRetrying
	step.Error = execErr.Error()
	if err := e.state.saveStep(step); err != nil {
		return err
	}

	next := &domain.ExecutionRequest{
		ID:             req.ID,
		RunID:          req.RunID,
		NodeID:         req.NodeID,
		NodeType:       req.NodeType,
		Attempt:        nextAttempt,
		IdempotencyKey: domain.IdempotencyKey(req.RunID, req.NodeID, nextAttempt),
		EnqueuedAt:     e.now(),
	}
	data, err := next.ToBytes()
	if err != nil {
		return err
	}
	if err := e.bus.PublishAfter(ctx, TopicSteps, run.ID, data, delay); err != nil {
		return err
	}

	step.Status = domain.StepStatusQueued
	step.Attempt = nextAttempt
	if err := e.state.saveStep(step); err != nil {
		return err
	}

	e.metrics.observeRetry(node.Type)
	e.logger.Info("step retry scheduled",
		"run_id", run.ID,
		"node_id", node.ID,
		"next_attempt", nextAttempt,
		"delay", delay.String(),
	)
	return nil
}

func (e *Engine) backoffDelay(node domain.Node, attempt int) time.Duration {
	base := node.Backoff()
	if base <= 0 {
		base = time.Second
	}
	scaled := float64(base) * math.Pow(e.config.BackoffMultiplier, float64(attempt)) * e.jitter()
	delay := time.Duration(scaled)
	if delay > e.config.MaxBackoff {
		delay = e.config.MaxBackoff
	}
	return delay
}

func (e *Engine) failStep(ctx context.Context, run *domain.Run, def *domain.WorkflowDefinition, req *domain.ExecutionRequest, execErr *domain.ExecutionError, step *domain.Step) error {
	return e.failStepWithOutput(ctx, run, def, req, execErr, step, nil)
}

// failStepWithOutput marks the step terminally failed, dead-letters the
// envelope, and fails the run unless the node opted out of criticality.
func (e *Engine) failStepWithOutput(ctx context.Context, run *domain.Run, def *domain.WorkflowDefinition, req *domain.ExecutionRequest, execErr *domain.ExecutionError, step *domain.Step, output map[string]interface{}) error {
	now := e.now()
	errMessage := "step failed"
	if execErr != nil {
		errMessage = execErr.Error()
	}

	if step != nil {
		step.Status = domain.StepStatusFailed
		step.Error = errMessage
		if len(output) > 0 {
			step.Output = output
		}
		step.CompletedAt = &now
		if err := e.state.saveStep(step); err != nil {
			return err
		}
	}

	if data, marshalErr := req.ToBytes(); marshalErr == nil {
		if dlErr := e.bus.SendToDeadLetter(ctx, TopicSteps, data, errMessage); dlErr != nil {
			e.logger.Error("dead-letter publish failed",
				"run_id", run.ID,
				"node_id", req.NodeID,
				"error", dlErr.Error(),
			)
		}
	}

	node, _ := def.Node(req.NodeID)
	if !node.Critical {
		e.logger.Warn("non-critical step failed, run continues",
			"run_id", run.ID,
			"node_id", req.NodeID,
			"error", errMessage,
		)
		run.LastError = errMessage
		if err := e.state.saveRun(run, run.Status); err != nil {
			return err
		}
		return e.advanceRun(ctx, run, def, req.NodeID)
	}

	return e.failRun(ctx, run, req.NodeID, errMessage)
}
