package executors

import (
	"context"
	"time"

	"github.com/officeflow/officeflow/internal/domain"
	"github.com/officeflow/officeflow/internal/ports"
)

// DelayExecutor holds the branch for the configured duration. The node's
// timeout must exceed the duration or the attempt is cut short by the
// dispatcher's deadline.
type DelayExecutor struct{}

func NewDelayExecutor() *DelayExecutor {
	return &DelayExecutor{}
}

func (e *DelayExecutor) Type() domain.NodeType {
	return domain.NodeTypeDelay
}

func (e *DelayExecutor) Validate(params map[string]interface{}) ports.ValidationResult {
	if int64Param(params, "duration_ms") <= 0 {
		return invalid("delay requires a positive duration_ms")
	}
	return valid()
}

func (e *DelayExecutor) Execute(ctx context.Context, input ports.ExecutionInput) ports.ExecutionResult {
	durationMs := int64Param(input.Params, "duration_ms")
	if durationMs <= 0 {
		return ports.FailedResult(domain.NewExecutionError(domain.ErrClassValidation,
			"delay step has no positive duration"))
	}

	duration := time.Duration(durationMs) * time.Millisecond
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return ports.SuccessResult(map[string]interface{}{
			"waited_ms": durationMs,
		})
	case <-ctx.Done():
		return ports.FailedResult(domain.NewExecutionError(domain.ErrClassExecution,
			"delay interrupted: %v", ctx.Err()))
	}
}

func (e *DelayExecutor) Schema() ports.Schema {
	return ports.Schema{
		Type:        domain.NodeTypeDelay,
		Description: "Pauses the branch for a fixed duration",
		Required:    []string{"duration_ms"},
		Properties: map[string]ports.SchemaField{
			"duration_ms": {Type: "number", Description: "how long to wait; must be below the node timeout"},
		},
	}
}
