package domain

import (
	"time"
)

type RunStartedEvent struct {
	RunID        string                 `json:"run_id"`
	DefinitionID string                 `json:"definition_id"`
	TriggerType  string                 `json:"trigger_type"`
	StartedAt    time.Time              `json:"started_at"`
	InitialSteps []string               `json:"initial_steps"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

type RunCompletedEvent struct {
	RunID       string        `json:"run_id"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
	StepCount   int           `json:"step_count"`
}

type RunFailedEvent struct {
	RunID      string    `json:"run_id"`
	FailedNode string    `json:"failed_node"`
	Error      string    `json:"error"`
	FailedAt   time.Time `json:"failed_at"`
}

type RunPausedEvent struct {
	RunID    string    `json:"run_id"`
	PausedAt time.Time `json:"paused_at"`
	Reason   string    `json:"reason,omitempty"`
}

type RunResumedEvent struct {
	RunID     string    `json:"run_id"`
	ResumedAt time.Time `json:"resumed_at"`
}

type RunCancelledEvent struct {
	RunID          string    `json:"run_id"`
	CancelledAt    time.Time `json:"cancelled_at"`
	CancelledSteps []string  `json:"cancelled_steps"`
}

type StepCompletedEvent struct {
	RunID    string        `json:"run_id"`
	NodeID   string        `json:"node_id"`
	Status   StepStatus    `json:"status"`
	Attempt  int           `json:"attempt"`
	Duration time.Duration `json:"duration"`
}
