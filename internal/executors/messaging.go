package executors

import (
	"context"

	"github.com/officeflow/officeflow/internal/domain"
	"github.com/officeflow/officeflow/internal/ports"
)

type MessagingExecutor struct {
	provider    ports.MessagingProvider
	credentials ports.CredentialSource
}

func NewMessagingExecutor(provider ports.MessagingProvider, credentials ports.CredentialSource) *MessagingExecutor {
	return &MessagingExecutor{provider: provider, credentials: credentials}
}

func (e *MessagingExecutor) Type() domain.NodeType {
	return domain.NodeTypeMessaging
}

func (e *MessagingExecutor) Validate(params map[string]interface{}) ports.ValidationResult {
	var errs []string
	if len(stringListParam(params, "recipients")) == 0 {
		errs = append(errs, "messaging requires at least one recipient")
	}
	if stringParam(params, "body") == "" {
		errs = append(errs, "messaging requires a body")
	}
	if len(errs) > 0 {
		return invalid(errs...)
	}
	return valid()
}

func (e *MessagingExecutor) Execute(ctx context.Context, input ports.ExecutionInput) ports.ExecutionResult {
	recipients := stringListParam(input.Params, "recipients")
	if len(recipients) == 0 {
		return ports.FailedResult(domain.NewExecutionError(domain.ErrClassValidation,
			"messaging step has no recipients"))
	}

	tokens, execErr := fetchTokens(ctx, e.credentials, input.OrgID, domain.ProviderChat)
	if execErr != nil {
		return ports.FailedResult(execErr)
	}

	messageID, err := e.provider.SendMessage(ctx, tokens,
		recipients,
		stringParam(input.Params, "subject"),
		stringParam(input.Params, "body"),
	)
	if err != nil {
		return providerFailure(ctx, err)
	}

	return ports.SuccessResult(map[string]interface{}{
		"message_id": messageID,
		"recipients": recipients,
	})
}

func (e *MessagingExecutor) Schema() ports.Schema {
	return ports.Schema{
		Type:        domain.NodeTypeMessaging,
		Description: "Sends a message through the organization's chat provider",
		Required:    []string{"recipients", "body"},
		Properties: map[string]ports.SchemaField{
			"recipients": {Type: "array", Description: "destination addresses or channel ids"},
			"subject":    {Type: "string"},
			"body":       {Type: "string", Description: "message body; supports {{path}} substitution"},
		},
	}
}
