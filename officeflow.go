// Package officeflow is a workflow engine for corporate process
// automation. Definitions are DAGs of typed steps (account provisioning,
// messaging, calendar, documents, conditions, delays) validated before
// activation and executed as Runs with per-step retry policies, hard
// timeouts, and encrypted provider credentials.
//
// Basic usage:
//
//	flow, err := officeflow.New(officeflow.Config{
//	    DataDir: "./data",
//	    Credentials: officeflow.CredentialsConfig{EncryptionKey: key},
//	}, officeflow.Providers{
//	    Identity:  myDirectoryClient,
//	    Messaging: myChatClient,
//	})
//	if err != nil { ... }
//	defer flow.Close()
//
//	flow.Start(context.Background())
//
//	def, _ := officeflow.LoadDefinitionJSON(doc)
//	if err := flow.SaveDefinition(def); err != nil { ... }
//
//	run, _ := flow.StartRun(ctx, def.ID, officeflow.TriggerInput{
//	    Type:    "employee.onboarding",
//	    OrgID:   "acme",
//	    Payload: map[string]interface{}{"employee_id": "emp-42"},
//	})
package officeflow

import (
	"context"
	"log/slog"

	"github.com/officeflow/officeflow/internal/adapters/bus"
	"github.com/officeflow/officeflow/internal/adapters/engine"
	"github.com/officeflow/officeflow/internal/adapters/evaluator"
	"github.com/officeflow/officeflow/internal/adapters/events"
	"github.com/officeflow/officeflow/internal/adapters/storage"
	"github.com/officeflow/officeflow/internal/credentials"
	"github.com/officeflow/officeflow/internal/domain"
	"github.com/officeflow/officeflow/internal/executors"
	"github.com/officeflow/officeflow/internal/loader"
	"github.com/officeflow/officeflow/internal/ports"
	"github.com/officeflow/officeflow/internal/validator"
	"github.com/prometheus/client_golang/prometheus"
)

// Config carries storage location, engine tuning, and the credential
// encryption key. Zero values get sensible defaults; the encryption key
// is mandatory.
type Config = domain.Config

type (
	EngineConfig      = domain.EngineConfig
	BusConfig         = domain.BusConfig
	CredentialsConfig = domain.CredentialsConfig
)

// Definition model.
type (
	WorkflowDefinition = domain.WorkflowDefinition
	Node               = domain.Node
	Edge               = domain.Edge
	NodeType           = domain.NodeType
	RetryPolicy        = domain.RetryPolicy
)

// Run model.
type (
	Run           = domain.Run
	Step          = domain.Step
	RunStatus     = domain.RunStatus
	StepStatus    = domain.StepStatus
	AttemptRecord = domain.AttemptRecord
)

// Credential model.
type (
	Credential = domain.Credential
	TokenSet   = domain.TokenSet
	Provider   = domain.Provider
)

const (
	NodeTypeTrigger           = domain.NodeTypeTrigger
	NodeTypeSchedule          = domain.NodeTypeSchedule
	NodeTypeIdentity          = domain.NodeTypeIdentity
	NodeTypeMessaging         = domain.NodeTypeMessaging
	NodeTypeCalendar          = domain.NodeTypeCalendar
	NodeTypeDocument          = domain.NodeTypeDocument
	NodeTypeContentGeneration = domain.NodeTypeContentGeneration
	NodeTypeCondition         = domain.NodeTypeCondition
	NodeTypeDelay             = domain.NodeTypeDelay
)

const (
	RunStatusPending   = domain.RunStatusPending
	RunStatusRunning   = domain.RunStatusRunning
	RunStatusPaused    = domain.RunStatusPaused
	RunStatusCompleted = domain.RunStatusCompleted
	RunStatusFailed    = domain.RunStatusFailed
	RunStatusCancelled = domain.RunStatusCancelled
)

const (
	ProviderWorkspace = domain.ProviderWorkspace
	ProviderDirectory = domain.ProviderDirectory
	ProviderCalendar  = domain.ProviderCalendar
	ProviderChat      = domain.ProviderChat
	ProviderDocs      = domain.ProviderDocs
)

// Executor extension surface: implement StepExecutor and register it to
// add a step type.
type (
	StepExecutor     = ports.StepExecutor
	ExecutionInput   = ports.ExecutionInput
	ExecutionResult  = ports.ExecutionResult
	ValidationResult = ports.ValidationResult
	Schema           = ports.Schema
)

// Providers are the external API clients the built-in executors call.
// Leaving one nil leaves its step types unregistered.
type Providers struct {
	Identity  ports.IdentityProvider
	Messaging ports.MessagingProvider
	Calendar  ports.CalendarProvider
	Documents ports.DocumentProvider
	Content   ports.ContentGenerator
}

type (
	TriggerInput    = engine.TriggerInput
	MetricsSnapshot = engine.MetricsSnapshot
	DeadLetterItem  = ports.DeadLetterItem
)

// ValidateDefinition checks a definition's structure and per-node
// configuration without touching storage.
func ValidateDefinition(def *WorkflowDefinition) validator.Result {
	return validator.Validate(def.Nodes, def.Edges)
}

// LoadDefinitionJSON decodes the editor wire format.
func LoadDefinitionJSON(data []byte) (*WorkflowDefinition, error) {
	return loader.LoadJSON(data)
}

// LoadDefinitionYAML decodes the hand-authored YAML form.
func LoadDefinitionYAML(data []byte) (*WorkflowDefinition, error) {
	return loader.LoadYAML(data)
}

// Flow owns every runtime component: storage, the partitioned bus, the
// scheduler, the executor registry, and the credential manager.
type Flow struct {
	config      Config
	storage     *storage.Store
	bus         *bus.Bus
	events      *events.Manager
	registry    *executors.Registry
	engine      *engine.Engine
	credentials *credentials.Manager
	logger      *slog.Logger
}

func New(cfg Config, providers Providers) (*Flow, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger

	store, err := storage.Open(cfg.DataDir, logger)
	if err != nil {
		return nil, err
	}

	b, err := bus.New(store, bus.Config{
		Partitions: cfg.Bus.Partitions,
		ClaimTTL:   cfg.Bus.ClaimTTL,
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	credManager, err := credentials.NewManager(store, cfg.Credentials.EncryptionKey, logger)
	if err != nil {
		_ = b.Close()
		_ = store.Close()
		return nil, err
	}

	registry, err := executors.NewBuiltinRegistry(executors.Deps{
		Evaluator:   evaluator.New(),
		Credentials: credManager,
		Identity:    providers.Identity,
		Messaging:   providers.Messaging,
		Calendar:    providers.Calendar,
		Documents:   providers.Documents,
		Content:     providers.Content,
		Logger:      logger,
	})
	if err != nil {
		_ = b.Close()
		_ = store.Close()
		return nil, err
	}

	eventManager := events.NewManager(logger)
	eng := engine.New(store, b, registry, evaluator.New(), eventManager, cfg.Engine, logger)

	return &Flow{
		config:      cfg,
		storage:     store,
		bus:         b,
		events:      eventManager,
		registry:    registry,
		engine:      eng,
		credentials: credManager,
		logger:      logger,
	}, nil
}

// Start launches the worker pool. Runs started before Start sit queued
// until workers come up.
func (f *Flow) Start(ctx context.Context) error {
	return f.engine.Start(ctx)
}

func (f *Flow) Stop() error {
	return f.engine.Stop()
}

// Close stops the workers and releases storage. The Flow is unusable
// afterwards.
func (f *Flow) Close() error {
	if err := f.engine.Stop(); err != nil && err != domain.ErrNotStarted {
		f.logger.Error("engine stop failed", "error", err.Error())
	}
	f.events.Close()
	if err := f.bus.Close(); err != nil {
		f.logger.Error("bus close failed", "error", err.Error())
	}
	return f.storage.Close()
}

// RegisterExecutor adds a custom step executor. Registration conflicts
// with a built-in or earlier registration fail.
func (f *Flow) RegisterExecutor(executor StepExecutor) error {
	return f.registry.Register(executor)
}

// SaveDefinition validates and persists a definition. Validation errors
// block the save; warnings do not.
func (f *Flow) SaveDefinition(def *WorkflowDefinition) error {
	result := ValidateDefinition(def)
	if !result.IsValid {
		return domain.Error{
			Type:    domain.ErrorTypeValidation,
			Message: "definition failed validation",
			Details: map[string]interface{}{"errors": result.Errors},
		}
	}
	return f.engine.SaveDefinition(def)
}

func (f *Flow) GetDefinition(definitionID string) (*WorkflowDefinition, error) {
	return f.engine.GetDefinition(definitionID)
}

func (f *Flow) StartRun(ctx context.Context, definitionID string, trigger TriggerInput) (*Run, error) {
	return f.engine.StartRun(ctx, definitionID, trigger)
}

func (f *Flow) GetRun(runID string) (*Run, error) {
	return f.engine.GetRun(runID)
}

func (f *Flow) GetSteps(runID string) ([]*Step, error) {
	return f.engine.GetSteps(runID)
}

// GetAttempts returns the full attempt history of one step, including
// retried and timed-out attempts.
func (f *Flow) GetAttempts(runID, nodeID string) ([]*domain.AttemptRecord, error) {
	return f.engine.GetAttempts(runID, nodeID)
}

func (f *Flow) ListRuns(status RunStatus, offset, limit int) ([]*Run, error) {
	return f.engine.ListRuns(status, offset, limit)
}

// CountRuns reports how many runs sit in the given status.
func (f *Flow) CountRuns(status RunStatus) (int, error) {
	return f.engine.CountRuns(status)
}

func (f *Flow) PauseRun(ctx context.Context, runID, reason string) error {
	return f.engine.PauseRun(ctx, runID, reason)
}

func (f *Flow) ResumeRun(ctx context.Context, runID string) error {
	return f.engine.ResumeRun(ctx, runID)
}

func (f *Flow) CancelRun(ctx context.Context, runID string) error {
	return f.engine.CancelRun(ctx, runID)
}

func (f *Flow) RetryRun(ctx context.Context, runID string) error {
	return f.engine.RetryRun(ctx, runID)
}

// Credentials exposes the credential lifecycle manager for token
// onboarding and refresh flows.
func (f *Flow) Credentials() *credentials.Manager {
	return f.credentials
}

// Subscribe returns a channel of run lifecycle events and an
// unsubscribe func.
func (f *Flow) Subscribe(buffer int) (<-chan interface{}, func()) {
	return f.events.Subscribe(buffer)
}

func (f *Flow) Metrics() MetricsSnapshot {
	return f.engine.MetricsSnapshot()
}

// RegisterMetrics attaches prometheus collectors to reg.
func (f *Flow) RegisterMetrics(reg prometheus.Registerer) error {
	return f.engine.RegisterMetrics(reg)
}

func (f *Flow) DeadLetters(limit int) ([]DeadLetterItem, error) {
	return f.engine.DeadLetters(limit)
}

func (f *Flow) RetryDeadLetter(ctx context.Context, itemID string) error {
	return f.engine.RetryDeadLetter(ctx, itemID)
}
