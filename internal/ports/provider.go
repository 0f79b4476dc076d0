package ports

import (
	"context"

	"github.com/officeflow/officeflow/internal/domain"
)

// CredentialSource supplies decrypted provider tokens to identity-capable
// executors. A missing or undecryptable credential surfaces as nil.
type CredentialSource interface {
	Retrieve(ctx context.Context, orgID string, provider domain.Provider) (*domain.Credential, error)
}

// Provider adapter contracts. Concrete API clients live outside the engine;
// executors depend only on these.

type IdentityProvider interface {
	CreateAccount(ctx context.Context, tokens domain.TokenSet, employee map[string]interface{}) (map[string]interface{}, error)
	DisableAccount(ctx context.Context, tokens domain.TokenSet, employeeID string) error
	RemoveFromGroups(ctx context.Context, tokens domain.TokenSet, employeeID string) ([]string, error)
	RevokeLicenses(ctx context.Context, tokens domain.TokenSet, employeeID string) ([]string, error)
	RevokeSessions(ctx context.Context, tokens domain.TokenSet, employeeID string) error
	TransferData(ctx context.Context, tokens domain.TokenSet, employeeID, successorID string) error
}

type MessagingProvider interface {
	SendMessage(ctx context.Context, tokens domain.TokenSet, recipients []string, subject, body string) (string, error)
}

type CalendarProvider interface {
	CreateEvent(ctx context.Context, tokens domain.TokenSet, event map[string]interface{}) (string, error)
}

type DocumentProvider interface {
	ShareDocument(ctx context.Context, tokens domain.TokenSet, documentID string, recipients []string) error
}

type ContentGenerator interface {
	Generate(ctx context.Context, prompt string, vars map[string]interface{}) (string, error)
}
