package domain

import (
	"time"

	json "github.com/goccy/go-json"
)

// ExecutionRequest is the bus envelope for one attempt of one step. The
// idempotency key is derived from (run, node, attempt) so redelivered
// envelopes are detectable by consumers.
type ExecutionRequest struct {
	ID             string     `json:"id"`
	RunID          string     `json:"run_id"`
	NodeID         string     `json:"node_id"`
	NodeType       NodeType   `json:"node_type"`
	Attempt        int        `json:"attempt"`
	IdempotencyKey string     `json:"idempotency_key"`
	EnqueuedAt     time.Time  `json:"enqueued_at"`
	ProcessAfter   *time.Time `json:"process_after,omitempty"`
}

func (r *ExecutionRequest) ToBytes() ([]byte, error) {
	return json.Marshal(r)
}

func ExecutionRequestFromBytes(data []byte) (*ExecutionRequest, error) {
	var req ExecutionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *ExecutionRequest) Ready(now time.Time) bool {
	return r.ProcessAfter == nil || !now.Before(*r.ProcessAfter)
}
