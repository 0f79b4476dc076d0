package executors

import (
	"context"

	"github.com/officeflow/officeflow/internal/domain"
	"github.com/officeflow/officeflow/internal/ports"
)

type DocumentExecutor struct {
	provider    ports.DocumentProvider
	credentials ports.CredentialSource
}

func NewDocumentExecutor(provider ports.DocumentProvider, credentials ports.CredentialSource) *DocumentExecutor {
	return &DocumentExecutor{provider: provider, credentials: credentials}
}

func (e *DocumentExecutor) Type() domain.NodeType {
	return domain.NodeTypeDocument
}

func (e *DocumentExecutor) Validate(params map[string]interface{}) ports.ValidationResult {
	var errs []string
	if stringParam(params, "document_id") == "" {
		errs = append(errs, "document requires a document_id")
	}
	if len(stringListParam(params, "recipients")) == 0 {
		errs = append(errs, "document requires at least one recipient")
	}
	if len(errs) > 0 {
		return invalid(errs...)
	}
	return valid()
}

func (e *DocumentExecutor) Execute(ctx context.Context, input ports.ExecutionInput) ports.ExecutionResult {
	tokens, execErr := fetchTokens(ctx, e.credentials, input.OrgID, domain.ProviderDocs)
	if execErr != nil {
		return ports.FailedResult(execErr)
	}

	documentID := stringParam(input.Params, "document_id")
	recipients := stringListParam(input.Params, "recipients")

	if err := e.provider.ShareDocument(ctx, tokens, documentID, recipients); err != nil {
		return providerFailure(ctx, err)
	}

	return ports.SuccessResult(map[string]interface{}{
		"document_id": documentID,
		"shared_with": recipients,
	})
}

func (e *DocumentExecutor) Schema() ports.Schema {
	return ports.Schema{
		Type:        domain.NodeTypeDocument,
		Description: "Distributes a document to the employee or team",
		Required:    []string{"document_id", "recipients"},
		Properties: map[string]ports.SchemaField{
			"document_id": {Type: "string"},
			"recipients":  {Type: "array"},
		},
	}
}
