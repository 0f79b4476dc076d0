package engine

import (
	"context"
	"runtime/debug"

	"github.com/officeflow/officeflow/internal/domain"
	"github.com/officeflow/officeflow/internal/ports"
)

// safeExecute runs an executor behind a panic barrier. A panicking
// executor becomes a terminal execution fault with the captured stack
// instead of taking the worker down.
func (e *Engine) safeExecute(ctx context.Context, executor ports.StepExecutor, input ports.ExecutionInput) (result ports.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			panicErr := &domain.StepPanicError{
				PanicValue: r,
				StackTrace: string(debug.Stack()),
			}
			e.logger.Error("executor panicked",
				"run_id", input.RunID,
				"node_id", input.NodeID,
				"panic", panicErr.Error(),
				"stack", panicErr.StackTrace,
			)
			result = ports.FailedResult(domain.NewExecutionError(domain.ErrClassExecution,
				"executor panicked: %v", r))
		}
	}()

	return executor.Execute(ctx, input)
}
