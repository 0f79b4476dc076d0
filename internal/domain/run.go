package domain

import (
	"time"
)

type Run struct {
	ID           string                 `json:"id"`
	DefinitionID string                 `json:"definition_id"`
	Status       RunStatus              `json:"status"`
	EmployeeID   string                 `json:"employee_id,omitempty"`
	OrgID        string                 `json:"org_id"`
	TriggerType  string                 `json:"trigger_type"`
	Context      map[string]interface{} `json:"context"`
	StartedAt    time.Time              `json:"started_at"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
	LastError    string                 `json:"last_error,omitempty"`
}

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

type Step struct {
	ID          string                 `json:"id"`
	RunID       string                 `json:"run_id"`
	NodeID      string                 `json:"node_id"`
	NodeType    NodeType               `json:"node_type"`
	Status      StepStatus             `json:"status"`
	Attempt     int                    `json:"attempt"`
	Input       map[string]interface{} `json:"input,omitempty"`
	Output      map[string]interface{} `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

type StepStatus string

const (
	StepStatusQueued    StepStatus = "queued"
	StepStatusRunning   StepStatus = "running"
	StepStatusRetrying  StepStatus = "retrying"
	StepStatusTimeout   StepStatus = "timeout"
	StepStatusSkipped   StepStatus = "skipped"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusCancelled StepStatus = "cancelled"
)

func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed, StepStatusSkipped, StepStatusCancelled:
		return true
	}
	return false
}

// Resolved reports whether the step no longer blocks its successors.
func (s StepStatus) Resolved() bool {
	return s == StepStatusCompleted || s == StepStatusSkipped
}
