package executors

import (
	"context"

	"github.com/officeflow/officeflow/internal/domain"
	"github.com/officeflow/officeflow/internal/ports"
)

type CalendarExecutor struct {
	provider    ports.CalendarProvider
	credentials ports.CredentialSource
}

func NewCalendarExecutor(provider ports.CalendarProvider, credentials ports.CredentialSource) *CalendarExecutor {
	return &CalendarExecutor{provider: provider, credentials: credentials}
}

func (e *CalendarExecutor) Type() domain.NodeType {
	return domain.NodeTypeCalendar
}

func (e *CalendarExecutor) Validate(params map[string]interface{}) ports.ValidationResult {
	if stringParam(params, "title") == "" {
		return invalid("calendar requires an event title")
	}
	return valid()
}

func (e *CalendarExecutor) Execute(ctx context.Context, input ports.ExecutionInput) ports.ExecutionResult {
	tokens, execErr := fetchTokens(ctx, e.credentials, input.OrgID, domain.ProviderCalendar)
	if execErr != nil {
		return ports.FailedResult(execErr)
	}

	event := map[string]interface{}{
		"title":     stringParam(input.Params, "title"),
		"attendees": stringListParam(input.Params, "attendees"),
		"start":     stringParam(input.Params, "start"),
		"end":       stringParam(input.Params, "end"),
	}

	eventID, err := e.provider.CreateEvent(ctx, tokens, event)
	if err != nil {
		return providerFailure(ctx, err)
	}

	return ports.SuccessResult(map[string]interface{}{
		"event_id": eventID,
	})
}

func (e *CalendarExecutor) Schema() ports.Schema {
	return ports.Schema{
		Type:        domain.NodeTypeCalendar,
		Description: "Creates a calendar event for the employee",
		Required:    []string{"title"},
		Properties: map[string]ports.SchemaField{
			"title":     {Type: "string"},
			"attendees": {Type: "array"},
			"start":     {Type: "string", Description: "RFC 3339 timestamp"},
			"end":       {Type: "string", Description: "RFC 3339 timestamp"},
		},
	}
}
