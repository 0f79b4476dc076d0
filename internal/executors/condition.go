package executors

import (
	"context"

	"github.com/officeflow/officeflow/internal/domain"
	"github.com/officeflow/officeflow/internal/ports"
)

const (
	HandleTrue  = "true"
	HandleFalse = "false"

	OutputKeyResult = "result"
	OutputKeyHandle = "handle"
)

// ConditionExecutor evaluates the node's expression against the run
// context and reports which outgoing handle the run should follow. The
// scheduler uses the handle to resolve the taken branch and skip the
// other.
type ConditionExecutor struct {
	evaluator ports.ConditionEvaluator
}

func NewConditionExecutor(evaluator ports.ConditionEvaluator) *ConditionExecutor {
	return &ConditionExecutor{evaluator: evaluator}
}

func (e *ConditionExecutor) Type() domain.NodeType {
	return domain.NodeTypeCondition
}

func (e *ConditionExecutor) Validate(params map[string]interface{}) ports.ValidationResult {
	if stringParam(params, "expression") == "" {
		return invalid("condition requires an expression")
	}
	return valid()
}

func (e *ConditionExecutor) Execute(_ context.Context, input ports.ExecutionInput) ports.ExecutionResult {
	expression := stringParam(input.Params, "expression")
	if expression == "" {
		return ports.FailedResult(domain.NewExecutionError(domain.ErrClassValidation,
			"condition step has no expression"))
	}

	result, err := e.evaluator.EvaluateCondition(expression, input.Context)
	if err != nil {
		return ports.FailedResult(domain.NewExecutionError(domain.ErrClassValidation,
			"condition evaluation failed: %v", err))
	}

	handle := HandleFalse
	if result {
		handle = HandleTrue
	}

	return ports.SuccessResult(map[string]interface{}{
		OutputKeyResult: result,
		OutputKeyHandle: handle,
	})
}

func (e *ConditionExecutor) Schema() ports.Schema {
	return ports.Schema{
		Type:        domain.NodeTypeCondition,
		Description: "Branches the run on a boolean expression over the context bag",
		Required:    []string{"expression"},
		Properties: map[string]ports.SchemaField{
			"expression": {Type: "string", Description: "boolean expression, e.g. employee.department == \"engineering\""},
		},
	}
}
