package domain

import (
	"time"
)

type Provider string

const (
	ProviderWorkspace Provider = "workspace"
	ProviderDirectory Provider = "directory"
	ProviderCalendar  Provider = "calendar"
	ProviderChat      Provider = "chat"
	ProviderDocs      Provider = "docs"
)

type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        string    `json:"scope,omitempty"`
}

func (t TokenSet) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

func (t TokenSet) ExpiringSoon(now time.Time, buffer time.Duration) bool {
	return !t.ExpiresAt.IsZero() && !now.Add(buffer).Before(t.ExpiresAt)
}

type Credential struct {
	ID        string            `json:"id"`
	OrgID     string            `json:"org_id"`
	Provider  Provider          `json:"provider"`
	Tokens    TokenSet          `json:"tokens"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
