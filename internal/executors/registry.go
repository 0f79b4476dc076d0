// Package executors holds the capability registry and the built-in step
// executors. Each node type maps to exactly one registered executor; the
// registry is the single place type dispatch happens, so adding a step
// type means adding one registration here.
package executors

import (
	"log/slog"
	"sync"

	"github.com/officeflow/officeflow/internal/domain"
	"github.com/officeflow/officeflow/internal/ports"
	"github.com/officeflow/officeflow/internal/taskexec"
)

type Registry struct {
	mu        sync.RWMutex
	executors map[domain.NodeType]ports.StepExecutor
}

func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[domain.NodeType]ports.StepExecutor),
	}
}

func (r *Registry) Register(executor ports.StepExecutor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	nodeType := executor.Type()
	if _, exists := r.executors[nodeType]; exists {
		return domain.Error{
			Type:    domain.ErrorTypeConflict,
			Message: "executor already registered",
			Details: map[string]interface{}{"node_type": string(nodeType)},
		}
	}
	r.executors[nodeType] = executor
	return nil
}

func (r *Registry) Get(nodeType domain.NodeType) (ports.StepExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, ok := r.executors[nodeType]
	if !ok {
		return nil, domain.NewNotFoundError("executor", string(nodeType))
	}
	return executor, nil
}

func (r *Registry) Types() []domain.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]domain.NodeType, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	return types
}

// Deps collects the collaborators the built-in executors draw on.
// Provider adapters left nil skip registration of the executors that
// need them.
type Deps struct {
	Evaluator   ports.ConditionEvaluator
	Credentials ports.CredentialSource
	Identity    ports.IdentityProvider
	Messaging   ports.MessagingProvider
	Calendar    ports.CalendarProvider
	Documents   ports.DocumentProvider
	Content     ports.ContentGenerator
	Logger      *slog.Logger
}

// NewBuiltinRegistry registers the full built-in step-type set.
func NewBuiltinRegistry(deps Deps) (*Registry, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := NewRegistry()

	toRegister := []ports.StepExecutor{
		NewTriggerExecutor(),
		NewScheduleExecutor(),
	}
	if deps.Evaluator != nil {
		toRegister = append(toRegister, NewConditionExecutor(deps.Evaluator))
	}
	toRegister = append(toRegister, NewDelayExecutor())

	if deps.Identity != nil {
		teardown := taskexec.New(deps.Logger)
		toRegister = append(toRegister, NewIdentityExecutor(deps.Identity, deps.Credentials, teardown, deps.Logger))
	}
	if deps.Messaging != nil {
		toRegister = append(toRegister, NewMessagingExecutor(deps.Messaging, deps.Credentials))
	}
	if deps.Calendar != nil {
		toRegister = append(toRegister, NewCalendarExecutor(deps.Calendar, deps.Credentials))
	}
	if deps.Documents != nil {
		toRegister = append(toRegister, NewDocumentExecutor(deps.Documents, deps.Credentials))
	}
	if deps.Content != nil {
		toRegister = append(toRegister, NewContentExecutor(deps.Content))
	}

	for _, executor := range toRegister {
		if err := r.Register(executor); err != nil {
			return nil, err
		}
	}
	return r, nil
}
