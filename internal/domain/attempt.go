package domain

import (
	"time"
)

// AttemptRecord is the per-attempt audit row kept alongside a step, so a
// failed step stays inspectable attempt by attempt.
type AttemptRecord struct {
	RunID      string     `json:"run_id"`
	NodeID     string     `json:"node_id"`
	Attempt    int        `json:"attempt"`
	Status     StepStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Duration   int64      `json:"duration_ms"`
}
