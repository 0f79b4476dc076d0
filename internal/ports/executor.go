package ports

import (
	"context"

	"github.com/officeflow/officeflow/internal/domain"
)

// StepExecutor is the per-node-type execution contract. Validate is
// synchronous and side-effect free; Execute may block on provider I/O and
// must honor ctx cancellation as a hard deadline.
type StepExecutor interface {
	Type() domain.NodeType
	Validate(params map[string]interface{}) ValidationResult
	Execute(ctx context.Context, input ExecutionInput) ExecutionResult
	Schema() Schema
}

type ExecutionInput struct {
	RunID          string
	NodeID         string
	OrgID          string
	EmployeeID     string
	Params         map[string]interface{}
	Context        map[string]interface{}
	IdempotencyKey string
	Attempt        int
}

type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusRetry   ResultStatus = "retry"
	StatusFailed  ResultStatus = "failed"
)

// ExecutionResult is returned, never thrown: a retryable condition comes
// back as StatusRetry even when no error occurred at the transport level,
// and StatusFailed is terminal regardless of remaining retry budget.
type ExecutionResult struct {
	Status   ResultStatus
	Output   map[string]interface{}
	Error    *domain.ExecutionError
	Metadata map[string]string
}

func SuccessResult(output map[string]interface{}) ExecutionResult {
	return ExecutionResult{Status: StatusSuccess, Output: output}
}

func RetryResult(err *domain.ExecutionError) ExecutionResult {
	return ExecutionResult{Status: StatusRetry, Error: err}
}

func FailedResult(err *domain.ExecutionError) ExecutionResult {
	return ExecutionResult{Status: StatusFailed, Error: err}
}

type ValidationResult struct {
	Valid  bool
	Errors []string
}

type Schema struct {
	Type        domain.NodeType        `json:"type"`
	Description string                 `json:"description"`
	Required    []string               `json:"required"`
	Properties  map[string]SchemaField `json:"properties"`
}

type SchemaField struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default,omitempty"`
}
