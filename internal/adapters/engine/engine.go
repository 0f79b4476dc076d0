// Package engine schedules workflow runs: it seeds runs from trigger
// nodes, dispatches step attempts through the partitioned bus, applies
// per-attempt timeouts and the retry policy, resolves branch and skip
// propagation, and drives each run to a terminal status.
package engine

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/officeflow/officeflow/internal/domain"
	"github.com/officeflow/officeflow/internal/executors"
	"github.com/officeflow/officeflow/internal/ports"
)

// TopicSteps is the bus topic carrying step execution requests. Envelopes
// are partitioned by run id so steps of one run never execute concurrently.
const TopicSteps = "steps"

// pauseRecheckDelay is how long a claimed envelope of a paused run is
// deferred before a worker looks at it again.
const pauseRecheckDelay = 5 * time.Second

type Engine struct {
	storage   ports.StoragePort
	bus       ports.BusPort
	registry  *executors.Registry
	resolver  ports.ParamResolver
	events    ports.EventManager
	state     *stateManager
	metrics   *metricsTracker
	logger    *slog.Logger
	config    domain.EngineConfig
	jitter    func() float64
	now       func() time.Time
	cancel    context.CancelFunc
	workers   sync.WaitGroup
	startStop sync.Mutex
	started   bool
}

func New(storage ports.StoragePort, bus ports.BusPort, registry *executors.Registry, resolver ports.ParamResolver, events ports.EventManager, cfg domain.EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		storage:  storage,
		bus:      bus,
		registry: registry,
		resolver: resolver,
		events:   events,
		state:    newStateManager(storage),
		metrics:  newMetricsTracker(),
		logger:   logger.With("component", "engine"),
		config:   cfg,
		jitter:   func() float64 { return 0.5 + rand.Float64() },
		now:      time.Now,
	}
}

func (e *Engine) Start(ctx context.Context) error {
	e.startStop.Lock()
	defer e.startStop.Unlock()

	if e.started {
		return domain.ErrAlreadyStarted
	}

	workerCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.started = true

	for i := 0; i < e.config.WorkerCount; i++ {
		e.workers.Add(1)
		go e.workerLoop(workerCtx, i)
	}

	e.logger.Info("engine started", "workers", e.config.WorkerCount)
	return nil
}

func (e *Engine) Stop() error {
	e.startStop.Lock()
	defer e.startStop.Unlock()

	if !e.started {
		return domain.ErrNotStarted
	}

	e.cancel()
	e.workers.Wait()
	e.started = false

	e.logger.Info("engine stopped")
	return nil
}

func (e *Engine) workerLoop(ctx context.Context, workerID int) {
	defer e.workers.Done()

	logger := e.logger.With("worker", workerID)
	logger.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker stopping")
			return
		default:
		}

		item, claimID, exists, err := e.bus.Claim(ctx, TopicSteps)
		if err != nil {
			logger.Error("claim failed", "error", err.Error())
			e.waitForWork(ctx)
			continue
		}
		if !exists {
			e.waitForWork(ctx)
			continue
		}

		if err := e.processClaim(ctx, item, claimID, logger); err != nil {
			logger.Error("claim processing failed",
				"claim_id", claimID,
				"error", err.Error(),
			)
			if releaseErr := e.bus.Release(ctx, claimID); releaseErr != nil {
				logger.Error("claim release failed",
					"claim_id", claimID,
					"error", releaseErr.Error(),
				)
			}
		}
	}
}

func (e *Engine) waitForWork(ctx context.Context) {
	// The wait gets its own context so the bus deregisters the waiter as
	// soon as this poll round ends, not when the worker shuts down.
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	select {
	case <-waitCtx.Done():
	case <-e.bus.WaitForItem(waitCtx, TopicSteps):
	case <-time.After(e.config.PollInterval):
	}
}

func (e *Engine) publishEvent(event interface{}) {
	if e.events != nil {
		e.events.Publish(event)
	}
}
