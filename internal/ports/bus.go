package ports

import (
	"context"
	"time"
)

// BusPort is a partitioned at-least-once message bus. Envelopes sharing a
// partition key are delivered in order to one consumer at a time; delivery
// of the same envelope more than once is possible and consumers must
// deduplicate by idempotency key.
type BusPort interface {
	Publish(ctx context.Context, topic, partitionKey string, item []byte) error
	PublishAfter(ctx context.Context, topic, partitionKey string, item []byte, delay time.Duration) error

	// Claim hands out the oldest ready envelope of any unclaimed partition
	// and locks that partition until Complete or Release.
	Claim(ctx context.Context, topic string) (item []byte, claimID string, exists bool, err error)
	Complete(ctx context.Context, claimID string) error
	Release(ctx context.Context, claimID string) error

	WaitForItem(ctx context.Context, topic string) <-chan struct{}
	Size(topic string) (int, error)

	SendToDeadLetter(ctx context.Context, topic string, item []byte, reason string) error
	DeadLetterItems(topic string, limit int) ([]DeadLetterItem, error)
	RetryFromDeadLetter(ctx context.Context, topic, itemID string) error

	SendToQuarantine(ctx context.Context, topic string, item []byte, reason string) error
	QuarantineItems(limit int) ([]QuarantineItem, error)

	Close() error
}

type DeadLetterItem struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	Item       []byte    `json:"item"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
	RetryCount int       `json:"retry_count"`
}

type QuarantineItem struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Item      []byte    `json:"item"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
