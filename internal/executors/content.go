package executors

import (
	"context"

	"github.com/officeflow/officeflow/internal/domain"
	"github.com/officeflow/officeflow/internal/ports"
)

type ContentExecutor struct {
	generator ports.ContentGenerator
}

func NewContentExecutor(generator ports.ContentGenerator) *ContentExecutor {
	return &ContentExecutor{generator: generator}
}

func (e *ContentExecutor) Type() domain.NodeType {
	return domain.NodeTypeContentGeneration
}

func (e *ContentExecutor) Validate(params map[string]interface{}) ports.ValidationResult {
	if stringParam(params, "prompt") == "" {
		return invalid("content generation requires a prompt")
	}
	return valid()
}

func (e *ContentExecutor) Execute(ctx context.Context, input ports.ExecutionInput) ports.ExecutionResult {
	prompt := stringParam(input.Params, "prompt")
	if prompt == "" {
		return ports.FailedResult(domain.NewExecutionError(domain.ErrClassValidation,
			"content generation step has no prompt"))
	}

	content, err := e.generator.Generate(ctx, prompt, input.Context)
	if err != nil {
		return providerFailure(ctx, err)
	}

	return ports.SuccessResult(map[string]interface{}{
		"content": content,
	})
}

func (e *ContentExecutor) Schema() ports.Schema {
	return ports.Schema{
		Type:        domain.NodeTypeContentGeneration,
		Description: "Generates text content from a prompt and the run context",
		Required:    []string{"prompt"},
		Properties: map[string]ports.SchemaField{
			"prompt": {Type: "string"},
		},
	}
}
