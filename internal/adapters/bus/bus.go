// Package bus implements the partitioned execution-request bus on top of
// the storage adapter. Envelopes sharing a partition key land in the same
// partition and are handed out in publish order, one consumer per
// partition at a time; delivery is at-least-once, so consumers must
// deduplicate by idempotency key. Retry-exhausted envelopes go to the
// per-topic dead-letter channel; malformed envelopes go to the shared
// quarantine channel and bypass retry entirely.
package bus

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/officeflow/officeflow/internal/domain"
	"github.com/officeflow/officeflow/internal/ports"
)

type Bus struct {
	storage    ports.StoragePort
	partitions int
	claimTTL   time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	claims  map[string]*claim
	locked  map[string]*claim
	waiters map[string][]chan struct{}
	closed  bool
}

type claim struct {
	id        string
	topic     string
	partition int
	key       string
	claimedAt time.Time
}

type envelope struct {
	Data         []byte     `json:"data"`
	Sequence     int64      `json:"sequence"`
	PartitionKey string     `json:"partition_key"`
	EnqueuedAt   time.Time  `json:"enqueued_at"`
	ProcessAfter *time.Time `json:"process_after,omitempty"`
}

type Config struct {
	Partitions int
	ClaimTTL   time.Duration
}

func New(storage ports.StoragePort, cfg Config, logger *slog.Logger) (*Bus, error) {
	if storage == nil {
		return nil, domain.NewValidationError("storage", "bus requires a storage adapter")
	}
	if cfg.Partitions <= 0 {
		cfg.Partitions = 16
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Bus{
		storage:    storage,
		partitions: cfg.Partitions,
		claimTTL:   cfg.ClaimTTL,
		logger:     logger.With("component", "bus"),
		claims:     make(map[string]*claim),
		locked:     make(map[string]*claim),
		waiters:    make(map[string][]chan struct{}),
	}, nil
}

func (b *Bus) Publish(ctx context.Context, topic, partitionKey string, item []byte) error {
	return b.publish(ctx, topic, partitionKey, item, nil)
}

func (b *Bus) PublishAfter(ctx context.Context, topic, partitionKey string, item []byte, delay time.Duration) error {
	after := time.Now().Add(delay)
	return b.publish(ctx, topic, partitionKey, item, &after)
}

func (b *Bus) publish(_ context.Context, topic, partitionKey string, item []byte, processAfter *time.Time) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	partition := b.partitionFor(partitionKey)
	sequence, err := b.storage.AtomicIncrement(sequenceKey(topic, partition))
	if err != nil {
		return err
	}

	env := envelope{
		Data:         item,
		Sequence:     sequence,
		PartitionKey: partitionKey,
		EnqueuedAt:   time.Now(),
		ProcessAfter: processAfter,
	}
	envBytes, err := json.Marshal(env)
	if err != nil {
		return err
	}

	if err := b.storage.Put(pendingKey(topic, partition, sequence), envBytes); err != nil {
		return err
	}

	b.logger.Debug("envelope published",
		"topic", topic,
		"partition", partition,
		"sequence", sequence,
	)

	b.notify(topic)
	return nil
}

// Claim scans partitions for an unlocked one whose head envelope is ready
// and locks it until Complete or Release. A lock older than the claim TTL
// is treated as abandoned and stolen.
func (b *Bus) Claim(_ context.Context, topic string) (item []byte, claimID string, exists bool, err error) {
	if err := b.checkOpen(); err != nil {
		return nil, "", false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	for partition := 0; partition < b.partitions; partition++ {
		lockKey := partitionLockKey(topic, partition)
		if held, ok := b.locked[lockKey]; ok {
			if now.Sub(held.claimedAt) < b.claimTTL {
				continue
			}
			b.logger.Warn("stealing expired partition claim",
				"topic", topic,
				"partition", partition,
				"claim_id", held.id,
			)
			delete(b.claims, held.id)
			delete(b.locked, lockKey)
		}

		key, value, found, err := b.storage.GetNext(partitionPrefix(topic, partition))
		if err != nil {
			return nil, "", false, err
		}
		if !found {
			continue
		}

		var env envelope
		if err := json.Unmarshal(value, &env); err != nil {
			// Unparseable envelopes never retry; hand them to quarantine.
			if qerr := b.quarantineRaw(topic, value, "malformed envelope"); qerr != nil {
				return nil, "", false, qerr
			}
			if derr := b.storage.Delete(key); derr != nil {
				return nil, "", false, derr
			}
			continue
		}

		if env.ProcessAfter != nil && now.Before(*env.ProcessAfter) {
			continue
		}

		c := &claim{
			id:        uuid.New().String(),
			topic:     topic,
			partition: partition,
			key:       key,
			claimedAt: now,
		}
		b.claims[c.id] = c
		b.locked[lockKey] = c

		return env.Data, c.id, true, nil
	}

	return nil, "", false, nil
}

func (b *Bus) Complete(_ context.Context, claimID string) error {
	b.mu.Lock()
	c, ok := b.claims[claimID]
	if ok {
		delete(b.claims, claimID)
		delete(b.locked, partitionLockKey(c.topic, c.partition))
	}
	b.mu.Unlock()

	if !ok {
		return domain.NewNotFoundError("claim", claimID)
	}

	return b.storage.Delete(c.key)
}

// Release unlocks the partition without removing the envelope, so it is
// redelivered to the next claimer.
func (b *Bus) Release(_ context.Context, claimID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.claims[claimID]
	if !ok {
		return domain.NewNotFoundError("claim", claimID)
	}
	delete(b.claims, claimID)
	delete(b.locked, partitionLockKey(c.topic, c.partition))
	return nil
}

func (b *Bus) WaitForItem(ctx context.Context, topic string) <-chan struct{} {
	ch := make(chan struct{})

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch
	}
	b.waiters[topic] = append(b.waiters[topic], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		remaining := b.waiters[topic][:0]
		for _, w := range b.waiters[topic] {
			if w != ch {
				remaining = append(remaining, w)
			}
		}
		b.waiters[topic] = remaining
	}()

	return ch
}

func (b *Bus) Size(topic string) (int, error) {
	if err := b.checkOpen(); err != nil {
		return 0, err
	}

	total := 0
	for partition := 0; partition < b.partitions; partition++ {
		count, err := b.storage.CountPrefix(partitionPrefix(topic, partition))
		if err != nil {
			return 0, err
		}
		total += count
	}
	return total, nil
}

func (b *Bus) SendToDeadLetter(_ context.Context, topic string, item []byte, reason string) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	dl := ports.DeadLetterItem{
		ID:        fmt.Sprintf("dlq-%d-%s", time.Now().UnixNano(), uuid.New().String()[:8]),
		Topic:     topic,
		Item:      item,
		Reason:    reason,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(dl)
	if err != nil {
		return err
	}

	b.logger.Warn("envelope dead-lettered", "topic", topic, "reason", reason)
	return b.storage.Put(deadLetterKey(topic, dl.ID), data)
}

func (b *Bus) DeadLetterItems(topic string, limit int) ([]ports.DeadLetterItem, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	kvs, err := b.storage.ListByPrefix(deadLetterPrefix(topic))
	if err != nil {
		return nil, err
	}

	var items []ports.DeadLetterItem
	for _, kv := range kvs {
		if limit > 0 && len(items) >= limit {
			break
		}
		var dl ports.DeadLetterItem
		if err := json.Unmarshal(kv.Value, &dl); err != nil {
			continue
		}
		items = append(items, dl)
	}
	return items, nil
}

func (b *Bus) RetryFromDeadLetter(ctx context.Context, topic, itemID string) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	key := deadLetterKey(topic, itemID)
	value, exists, err := b.storage.Get(key)
	if err != nil {
		return err
	}
	if !exists {
		return domain.NewNotFoundError("dead letter item", itemID)
	}

	var dl ports.DeadLetterItem
	if err := json.Unmarshal(value, &dl); err != nil {
		return err
	}

	partitionKey := partitionKeyFromItem(dl.Item)
	if err := b.Publish(ctx, topic, partitionKey, dl.Item); err != nil {
		return err
	}
	return b.storage.Delete(key)
}

func (b *Bus) SendToQuarantine(_ context.Context, topic string, item []byte, reason string) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	return b.quarantineRaw(topic, item, reason)
}

func (b *Bus) QuarantineItems(limit int) ([]ports.QuarantineItem, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	kvs, err := b.storage.ListByPrefix(quarantinePrefix())
	if err != nil {
		return nil, err
	}

	var items []ports.QuarantineItem
	for _, kv := range kvs {
		if limit > 0 && len(items) >= limit {
			break
		}
		var q ports.QuarantineItem
		if err := json.Unmarshal(kv.Value, &q); err != nil {
			continue
		}
		items = append(items, q)
	}
	return items, nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for topic, chans := range b.waiters {
		for _, ch := range chans {
			close(ch)
		}
		delete(b.waiters, topic)
	}
	return nil
}

func (b *Bus) quarantineRaw(topic string, item []byte, reason string) error {
	q := ports.QuarantineItem{
		ID:        fmt.Sprintf("quar-%d-%s", time.Now().UnixNano(), uuid.New().String()[:8]),
		Topic:     topic,
		Item:      item,
		Reason:    reason,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(q)
	if err != nil {
		return err
	}

	b.logger.Warn("envelope quarantined", "topic", topic, "reason", reason)
	return b.storage.Put(quarantineKey(q.ID), data)
}

func (b *Bus) notify(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.waiters[topic] {
		close(ch)
	}
	b.waiters[topic] = nil
}

func (b *Bus) partitionFor(partitionKey string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(partitionKey))
	return int(h.Sum32() % uint32(b.partitions))
}

func (b *Bus) checkOpen() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return domain.ErrClosed
	}
	return nil
}

// partitionKeyFromItem recovers the run id from an execution request so a
// dead-letter retry lands back on its original partition. Items that are
// not execution requests fall back to an empty key.
func partitionKeyFromItem(item []byte) string {
	req, err := domain.ExecutionRequestFromBytes(item)
	if err != nil || req.RunID == "" {
		return ""
	}
	return req.RunID
}
