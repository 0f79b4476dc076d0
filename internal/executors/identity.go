package executors

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/officeflow/officeflow/internal/domain"
	"github.com/officeflow/officeflow/internal/ports"
	"github.com/officeflow/officeflow/internal/taskexec"
)

const (
	ActionProvision   = "provision"
	ActionDeprovision = "deprovision"
)

// IdentityExecutor provisions and deprovisions directory accounts.
// Deprovisioning is a multi-step teardown: it builds a dependency-ordered
// task plan and runs it through the task executor, so a partial teardown
// still produces a complete completed/failed/warnings report instead of
// an opaque fault.
type IdentityExecutor struct {
	provider    ports.IdentityProvider
	credentials ports.CredentialSource
	teardown    *taskexec.Executor
	logger      *slog.Logger
}

func NewIdentityExecutor(provider ports.IdentityProvider, credentials ports.CredentialSource, teardown *taskexec.Executor, logger *slog.Logger) *IdentityExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &IdentityExecutor{
		provider:    provider,
		credentials: credentials,
		teardown:    teardown,
		logger:      logger.With("component", "identity-executor"),
	}
	e.registerTeardownHandlers()
	return e
}

func (e *IdentityExecutor) Type() domain.NodeType {
	return domain.NodeTypeIdentity
}

func (e *IdentityExecutor) Validate(params map[string]interface{}) ports.ValidationResult {
	action := stringParam(params, "action")
	switch action {
	case ActionProvision, ActionDeprovision:
		return valid()
	case "":
		return invalid("identity requires an action")
	default:
		return invalid(fmt.Sprintf("unknown identity action %q", action))
	}
}

func (e *IdentityExecutor) Execute(ctx context.Context, input ports.ExecutionInput) ports.ExecutionResult {
	tokens, execErr := fetchTokens(ctx, e.credentials, input.OrgID, domain.ProviderDirectory)
	if execErr != nil {
		return ports.FailedResult(execErr)
	}

	switch stringParam(input.Params, "action") {
	case ActionProvision:
		return e.provision(ctx, tokens, input)
	case ActionDeprovision:
		return e.deprovision(ctx, tokens, input)
	default:
		return ports.FailedResult(domain.NewExecutionError(domain.ErrClassValidation,
			"identity step has no valid action"))
	}
}

func (e *IdentityExecutor) provision(ctx context.Context, tokens domain.TokenSet, input ports.ExecutionInput) ports.ExecutionResult {
	employee := mapParam(input.Params, "employee")
	if employee == nil {
		employee = mapParam(input.Context, "employee")
	}
	if employee == nil {
		return ports.FailedResult(domain.NewExecutionError(domain.ErrClassValidation,
			"provision requires employee details"))
	}

	account, err := e.provider.CreateAccount(ctx, tokens, employee)
	if err != nil {
		return providerFailure(ctx, err)
	}

	return ports.SuccessResult(map[string]interface{}{
		"account": account,
	})
}

type teardownContextKey struct{}

type teardownContext struct {
	tokens     domain.TokenSet
	employeeID string
	successor  string
}

func (e *IdentityExecutor) deprovision(ctx context.Context, tokens domain.TokenSet, input ports.ExecutionInput) ports.ExecutionResult {
	employeeID := input.EmployeeID
	if v := stringParam(input.Params, "employee_id"); v != "" {
		employeeID = v
	}
	if employeeID == "" {
		return ports.FailedResult(domain.NewExecutionError(domain.ErrClassValidation,
			"deprovision requires an employee id"))
	}

	plan := buildTeardownPlan(input.Params)
	ctx = context.WithValue(ctx, teardownContextKey{}, &teardownContext{
		tokens:     tokens,
		employeeID: employeeID,
		successor:  stringParam(input.Params, "successor_id"),
	})

	report := e.teardown.Execute(ctx, plan)

	e.logger.Info("teardown finished",
		"run_id", input.RunID,
		"employee_id", employeeID,
		"completed", len(report.CompletedTasks),
		"failed", len(report.FailedTasks),
		"success", report.Success,
	)

	output := map[string]interface{}{
		"success":         report.Success,
		"completed_tasks": report.CompletedTasks,
		"failed_tasks":    report.FailedTasks,
		"warnings":        report.Warnings,
	}
	if !report.Success {
		// The run sees a failed teardown as a terminal step failure while
		// keeping the full report in the output.
		return ports.ExecutionResult{
			Status: ports.StatusFailed,
			Output: output,
			Error: domain.NewExecutionError(domain.ErrClassExecution,
				"teardown incomplete: %d of %d tasks failed", len(report.FailedTasks), len(plan.Tasks)),
		}
	}
	return ports.SuccessResult(output)
}

// buildTeardownPlan orders the teardown: the account must be disabled
// before group and license removal, which precede data transfer and
// mailbox archival.
func buildTeardownPlan(params map[string]interface{}) domain.TaskPlan {
	plan := domain.TaskPlan{Tasks: []domain.Task{
		{ID: "disable-account", Type: domain.TaskTypeDisableAccount, Priority: 1},
		{ID: "revoke-sessions", Type: domain.TaskTypeRevokeSessions, Priority: 2, DependsOn: []string{"disable-account"}},
		{ID: "remove-groups", Type: domain.TaskTypeRemoveGroups, Priority: 2, DependsOn: []string{"disable-account"}},
		{ID: "revoke-licenses", Type: domain.TaskTypeRevokeLicenses, Priority: 3, DependsOn: []string{"remove-groups"}},
	}}

	if stringParam(params, "successor_id") != "" {
		plan.Tasks = append(plan.Tasks, domain.Task{
			ID: "transfer-data", Type: domain.TaskTypeTransferData, Priority: 4,
			DependsOn: []string{"disable-account"},
		})
	}
	return plan
}

func (e *IdentityExecutor) registerTeardownHandlers() {
	e.teardown.MarkCritical(domain.TaskTypeDisableAccount)

	e.teardown.RegisterHandler(domain.TaskTypeDisableAccount, func(ctx context.Context, _ domain.Task) error {
		tc := teardownFrom(ctx)
		return e.provider.DisableAccount(ctx, tc.tokens, tc.employeeID)
	})
	e.teardown.RegisterHandler(domain.TaskTypeRevokeSessions, func(ctx context.Context, _ domain.Task) error {
		tc := teardownFrom(ctx)
		return e.provider.RevokeSessions(ctx, tc.tokens, tc.employeeID)
	})
	e.teardown.RegisterHandler(domain.TaskTypeRemoveGroups, func(ctx context.Context, _ domain.Task) error {
		tc := teardownFrom(ctx)
		_, err := e.provider.RemoveFromGroups(ctx, tc.tokens, tc.employeeID)
		return err
	})
	e.teardown.RegisterHandler(domain.TaskTypeRevokeLicenses, func(ctx context.Context, _ domain.Task) error {
		tc := teardownFrom(ctx)
		_, err := e.provider.RevokeLicenses(ctx, tc.tokens, tc.employeeID)
		return err
	})
	e.teardown.RegisterHandler(domain.TaskTypeTransferData, func(ctx context.Context, _ domain.Task) error {
		tc := teardownFrom(ctx)
		return e.provider.TransferData(ctx, tc.tokens, tc.employeeID, tc.successor)
	})
}

func teardownFrom(ctx context.Context) *teardownContext {
	if tc, ok := ctx.Value(teardownContextKey{}).(*teardownContext); ok {
		return tc
	}
	return &teardownContext{}
}

func (e *IdentityExecutor) Schema() ports.Schema {
	return ports.Schema{
		Type:        domain.NodeTypeIdentity,
		Description: "Provisions or tears down a directory account",
		Required:    []string{"action"},
		Properties: map[string]ports.SchemaField{
			"action":       {Type: "string", Description: "provision or deprovision"},
			"employee":     {Type: "object", Description: "account details for provisioning"},
			"employee_id":  {Type: "string", Description: "target account for deprovisioning"},
			"successor_id": {Type: "string", Description: "data transfer recipient, optional"},
		},
	}
}
