package executors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/officeflow/officeflow/internal/adapters/evaluator"
	"github.com/officeflow/officeflow/internal/domain"
	"github.com/officeflow/officeflow/internal/ports"
	"github.com/officeflow/officeflow/internal/taskexec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCredentials struct {
	cred *domain.Credential
	err  error
}

func (s *stubCredentials) Retrieve(context.Context, string, domain.Provider) (*domain.Credential, error) {
	return s.cred, s.err
}

func liveCredentials() *stubCredentials {
	return &stubCredentials{cred: &domain.Credential{
		ID:     "cred-1",
		OrgID:  "org-1",
		Tokens: domain.TokenSet{AccessToken: "token", ExpiresAt: time.Now().Add(time.Hour)},
	}}
}

type stubMessaging struct {
	err      error
	lastBody string
}

func (s *stubMessaging) SendMessage(_ context.Context, _ domain.TokenSet, _ []string, _ string, body string) (string, error) {
	s.lastBody = body
	if s.err != nil {
		return "", s.err
	}
	return "msg-123", nil
}

type stubIdentity struct {
	disableErr  error
	groupsErr   error
	licensesErr error
	calls       []string
}

func (s *stubIdentity) record(name string) { s.calls = append(s.calls, name) }

func (s *stubIdentity) CreateAccount(context.Context, domain.TokenSet, map[string]interface{}) (map[string]interface{}, error) {
	s.record("create")
	return map[string]interface{}{"email": "dana@example.com"}, nil
}

func (s *stubIdentity) DisableAccount(context.Context, domain.TokenSet, string) error {
	s.record("disable")
	return s.disableErr
}

func (s *stubIdentity) RemoveFromGroups(context.Context, domain.TokenSet, string) ([]string, error) {
	s.record("groups")
	return []string{"eng"}, s.groupsErr
}

func (s *stubIdentity) RevokeLicenses(context.Context, domain.TokenSet, string) ([]string, error) {
	s.record("licenses")
	return []string{"suite"}, s.licensesErr
}

func (s *stubIdentity) RevokeSessions(context.Context, domain.TokenSet, string) error {
	s.record("sessions")
	return nil
}

func (s *stubIdentity) TransferData(context.Context, domain.TokenSet, string, string) error {
	s.record("transfer")
	return nil
}

func newIdentityExecutor(provider *stubIdentity, creds ports.CredentialSource) *IdentityExecutor {
	return NewIdentityExecutor(provider, creds, taskexec.New(nil), nil)
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewDelayExecutor()))

	executor, err := r.Get(domain.NodeTypeDelay)
	require.NoError(t, err)
	assert.Equal(t, domain.NodeTypeDelay, executor.Type())

	err = r.Register(NewDelayExecutor())
	require.Error(t, err)
	assert.True(t, domain.IsErrorType(err, domain.ErrorTypeConflict))

	_, err = r.Get(domain.NodeTypeMessaging)
	require.Error(t, err)
	assert.True(t, domain.IsErrorType(err, domain.ErrorTypeNotFound))
}

func TestNewBuiltinRegistry_SkipsMissingProviders(t *testing.T) {
	r, err := NewBuiltinRegistry(Deps{Evaluator: evaluator.New()})
	require.NoError(t, err)

	_, err = r.Get(domain.NodeTypeTrigger)
	assert.NoError(t, err)
	_, err = r.Get(domain.NodeTypeCondition)
	assert.NoError(t, err)

	_, err = r.Get(domain.NodeTypeIdentity)
	assert.Error(t, err, "identity executor needs an identity provider")
}

func TestConditionExecutor(t *testing.T) {
	e := NewConditionExecutor(evaluator.New())

	result := e.Execute(context.Background(), ports.ExecutionInput{
		Params:  map[string]interface{}{"expression": `department == "engineering"`},
		Context: map[string]interface{}{"department": "engineering"},
	})

	require.Equal(t, ports.StatusSuccess, result.Status)
	assert.Equal(t, true, result.Output[OutputKeyResult])
	assert.Equal(t, HandleTrue, result.Output[OutputKeyHandle])

	result = e.Execute(context.Background(), ports.ExecutionInput{
		Params:  map[string]interface{}{"expression": `department == "engineering"`},
		Context: map[string]interface{}{"department": "sales"},
	})

	require.Equal(t, ports.StatusSuccess, result.Status)
	assert.Equal(t, HandleFalse, result.Output[OutputKeyHandle])
}

func TestConditionExecutor_BadExpressionIsTerminal(t *testing.T) {
	e := NewConditionExecutor(evaluator.New())

	result := e.Execute(context.Background(), ports.ExecutionInput{
		Params: map[string]interface{}{"expression": `((`},
	})

	require.Equal(t, ports.StatusFailed, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, domain.ErrClassValidation, result.Error.Class)
}

func TestDelayExecutor(t *testing.T) {
	e := NewDelayExecutor()

	start := time.Now()
	result := e.Execute(context.Background(), ports.ExecutionInput{
		Params: map[string]interface{}{"duration_ms": float64(30)},
	})

	require.Equal(t, ports.StatusSuccess, result.Status)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestDelayExecutor_CancelledContext(t *testing.T) {
	e := NewDelayExecutor()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result := e.Execute(ctx, ports.ExecutionInput{
		Params: map[string]interface{}{"duration_ms": float64(5000)},
	})

	require.Equal(t, ports.StatusFailed, result.Status)
}

func TestMessagingExecutor_Success(t *testing.T) {
	provider := &stubMessaging{}
	e := NewMessagingExecutor(provider, liveCredentials())

	result := e.Execute(context.Background(), ports.ExecutionInput{
		OrgID: "org-1",
		Params: map[string]interface{}{
			"recipients": []interface{}{"dana@example.com"},
			"body":       "Welcome aboard!",
		},
	})

	require.Equal(t, ports.StatusSuccess, result.Status)
	assert.Equal(t, "msg-123", result.Output["message_id"])
	assert.Equal(t, "Welcome aboard!", provider.lastBody)
}

func TestMessagingExecutor_MissingCredentialsIsTerminal(t *testing.T) {
	e := NewMessagingExecutor(&stubMessaging{}, &stubCredentials{})

	result := e.Execute(context.Background(), ports.ExecutionInput{
		OrgID: "org-1",
		Params: map[string]interface{}{
			"recipients": []interface{}{"dana@example.com"},
			"body":       "hello",
		},
	})

	require.Equal(t, ports.StatusFailed, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, domain.ErrClassCredentialsNotFound, result.Error.Class)
}

func TestMessagingExecutor_ProviderErrorIsRetryable(t *testing.T) {
	e := NewMessagingExecutor(&stubMessaging{err: errors.New("429 rate limited")}, liveCredentials())

	result := e.Execute(context.Background(), ports.ExecutionInput{
		OrgID: "org-1",
		Params: map[string]interface{}{
			"recipients": []interface{}{"dana@example.com"},
			"body":       "hello",
		},
	})

	require.Equal(t, ports.StatusRetry, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, domain.ErrClassProvider, result.Error.Class)
}

func TestIdentityExecutor_Provision(t *testing.T) {
	provider := &stubIdentity{}
	e := newIdentityExecutor(provider, liveCredentials())

	result := e.Execute(context.Background(), ports.ExecutionInput{
		OrgID: "org-1",
		Params: map[string]interface{}{
			"action":   ActionProvision,
			"employee": map[string]interface{}{"name": "Dana"},
		},
	})

	require.Equal(t, ports.StatusSuccess, result.Status)
	account := result.Output["account"].(map[string]interface{})
	assert.Equal(t, "dana@example.com", account["email"])
}

func TestIdentityExecutor_DeprovisionHappyPath(t *testing.T) {
	provider := &stubIdentity{}
	e := newIdentityExecutor(provider, liveCredentials())

	result := e.Execute(context.Background(), ports.ExecutionInput{
		OrgID:      "org-1",
		EmployeeID: "emp-9",
		Params:     map[string]interface{}{"action": ActionDeprovision},
	})

	require.Equal(t, ports.StatusSuccess, result.Status)
	assert.Equal(t, true, result.Output["success"])
	assert.Equal(t, "disable", provider.calls[0], "account disable runs first")
	assert.Contains(t, provider.calls, "licenses")
}

func TestIdentityExecutor_DisableFailureCascades(t *testing.T) {
	provider := &stubIdentity{disableErr: errors.New("account locked")}
	e := newIdentityExecutor(provider, liveCredentials())

	result := e.Execute(context.Background(), ports.ExecutionInput{
		OrgID:      "org-1",
		EmployeeID: "emp-9",
		Params:     map[string]interface{}{"action": ActionDeprovision},
	})

	require.Equal(t, ports.StatusFailed, result.Status)
	assert.Equal(t, false, result.Output["success"])

	completed := result.Output["completed_tasks"].([]string)
	assert.Empty(t, completed)

	failed := result.Output["failed_tasks"].([]domain.TaskFailure)
	assert.Len(t, failed, 4, "every dependent lands in the report, none attempted")

	// Only the disable call reached the provider.
	assert.Equal(t, []string{"disable"}, provider.calls)

	warnings := result.Output["warnings"].([]string)
	require.NotEmpty(t, warnings, "disable is the designated critical task")
}

func TestIdentityExecutor_ValidateAction(t *testing.T) {
	e := newIdentityExecutor(&stubIdentity{}, liveCredentials())

	assert.True(t, e.Validate(map[string]interface{}{"action": ActionProvision}).Valid)
	assert.False(t, e.Validate(map[string]interface{}{}).Valid)
	assert.False(t, e.Validate(map[string]interface{}{"action": "explode"}).Valid)
}

func TestTriggerExecutor_PassesPayloadThrough(t *testing.T) {
	e := NewTriggerExecutor()

	result := e.Execute(context.Background(), ports.ExecutionInput{
		Params: map[string]interface{}{"event": "employee.onboarding"},
		Context: map[string]interface{}{
			"trigger": map[string]interface{}{"employee_id": "emp-1"},
		},
	})

	require.Equal(t, ports.StatusSuccess, result.Status)
	assert.Equal(t, "employee.onboarding", result.Output["event"])
	payload := result.Output["payload"].(map[string]interface{})
	assert.Equal(t, "emp-1", payload["employee_id"])
}
