// Package credentials manages per-organization, per-provider OAuth-style
// token sets. Access and refresh tokens are encrypted before they reach
// the persistence layer and decrypted only inside this package; callers
// outside it never see ciphertext, and storage never sees plaintext.
package credentials

import (
	"context"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/officeflow/officeflow/internal/domain"
	"github.com/officeflow/officeflow/internal/ports"
)

const DefaultExpiryBuffer = 5 * time.Minute

type Manager struct {
	storage ports.StoragePort
	box     *cipherBox
	logger  *slog.Logger
	now     func() time.Time
}

// persistedCredential is the at-rest form: the two token secrets are
// sealed, everything else stays inspectable for expiry checks and
// listing.
type persistedCredential struct {
	ID                 string            `json:"id"`
	OrgID              string            `json:"org_id"`
	Provider           domain.Provider   `json:"provider"`
	SealedAccessToken  string            `json:"sealed_access_token"`
	SealedRefreshToken string            `json:"sealed_refresh_token,omitempty"`
	TokenType          string            `json:"token_type"`
	ExpiresAt          time.Time         `json:"expires_at"`
	Scope              string            `json:"scope,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

func NewManager(storage ports.StoragePort, encryptionKey string, logger *slog.Logger) (*Manager, error) {
	if storage == nil {
		return nil, domain.NewValidationError("storage", "credential manager requires a storage adapter")
	}

	box, err := newCipherBox(encryptionKey)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		storage: storage,
		box:     box,
		logger:  logger.With("component", "credentials"),
		now:     time.Now,
	}, nil
}

// Store encrypts and persists a token set. One live row exists per
// (org, provider); a later store replaces the prior one and keeps its id.
func (m *Manager) Store(_ context.Context, orgID string, provider domain.Provider, tokens domain.TokenSet, metadata map[string]string) (string, error) {
	if orgID == "" {
		return "", domain.NewValidationError("org_id", "org id is required")
	}
	if provider == "" {
		return "", domain.NewValidationError("provider", "provider is required")
	}
	if tokens.AccessToken == "" {
		return "", domain.NewValidationError("access_token", "access token is required")
	}

	sealedAccess, err := m.box.seal(tokens.AccessToken)
	if err != nil {
		return "", err
	}
	sealedRefresh, err := m.box.seal(tokens.RefreshToken)
	if err != nil {
		return "", err
	}

	key := domain.CredentialKey(orgID, provider)
	now := m.now()

	record := persistedCredential{
		ID:                 uuid.New().String(),
		OrgID:              orgID,
		Provider:           provider,
		SealedAccessToken:  sealedAccess,
		SealedRefreshToken: sealedRefresh,
		TokenType:          tokens.TokenType,
		ExpiresAt:          tokens.ExpiresAt,
		Scope:              tokens.Scope,
		Metadata:           metadata,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if existing, err := m.load(key); err == nil && existing != nil {
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
	}

	data, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	if err := m.storage.Put(key, data); err != nil {
		return "", err
	}

	m.logger.Info("credential stored",
		"org_id", orgID,
		"provider", provider,
		"credential_id", record.ID,
	)
	return record.ID, nil
}

// Retrieve returns the decrypted credential, or nil when none is stored.
// A record that cannot be decrypted is unusable and comes back as a
// CREDENTIALS_NOT_FOUND execution error, never as garbage tokens.
func (m *Manager) Retrieve(_ context.Context, orgID string, provider domain.Provider) (*domain.Credential, error) {
	key := domain.CredentialKey(orgID, provider)

	record, err := m.load(key)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}

	accessToken, err := m.box.open(record.SealedAccessToken)
	if err != nil {
		m.logger.Error("credential decryption failed",
			"org_id", orgID,
			"provider", provider,
			"error", err.Error(),
		)
		return nil, err
	}
	refreshToken, err := m.box.open(record.SealedRefreshToken)
	if err != nil {
		m.logger.Error("credential decryption failed",
			"org_id", orgID,
			"provider", provider,
			"error", err.Error(),
		)
		return nil, err
	}

	return &domain.Credential{
		ID:       record.ID,
		OrgID:    record.OrgID,
		Provider: record.Provider,
		Tokens: domain.TokenSet{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			TokenType:    record.TokenType,
			ExpiresAt:    record.ExpiresAt,
			Scope:        record.Scope,
		},
		Metadata:  record.Metadata,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}, nil
}

// UpdateTokens re-encrypts and persists a refreshed token set for an
// existing credential id.
func (m *Manager) UpdateTokens(ctx context.Context, credentialID string, tokens domain.TokenSet) error {
	record, key, err := m.findByID(credentialID)
	if err != nil {
		return err
	}

	sealedAccess, err := m.box.seal(tokens.AccessToken)
	if err != nil {
		return err
	}
	sealedRefresh, err := m.box.seal(tokens.RefreshToken)
	if err != nil {
		return err
	}

	record.SealedAccessToken = sealedAccess
	record.SealedRefreshToken = sealedRefresh
	record.TokenType = tokens.TokenType
	record.ExpiresAt = tokens.ExpiresAt
	record.Scope = tokens.Scope
	record.UpdatedAt = m.now()

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return m.storage.Put(key, data)
}

func (m *Manager) Delete(_ context.Context, orgID string, provider domain.Provider) error {
	return m.storage.Delete(domain.CredentialKey(orgID, provider))
}

func (m *Manager) IsTokenExpired(tokens domain.TokenSet) bool {
	return tokens.Expired(m.now())
}

func (m *Manager) IsTokenExpiringSoon(tokens domain.TokenSet, buffer time.Duration) bool {
	if buffer <= 0 {
		buffer = DefaultExpiryBuffer
	}
	return tokens.ExpiringSoon(m.now(), buffer)
}

func (m *Manager) load(key string) (*persistedCredential, error) {
	value, exists, err := m.storage.Get(key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	var record persistedCredential
	if err := json.Unmarshal(value, &record); err != nil {
		return nil, domain.NewExecutionError(domain.ErrClassCredentialsNotFound,
			"stored credential is unreadable")
	}
	return &record, nil
}

func (m *Manager) findByID(credentialID string) (*persistedCredential, string, error) {
	kvs, err := m.storage.ListByPrefix("credential:")
	if err != nil {
		return nil, "", err
	}

	for _, kv := range kvs {
		var record persistedCredential
		if err := json.Unmarshal(kv.Value, &record); err != nil {
			continue
		}
		if record.ID == credentialID {
			return &record, kv.Key, nil
		}
	}
	return nil, "", domain.NewNotFoundError("credential", credentialID)
}
