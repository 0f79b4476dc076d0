package officeflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	officeflow "github.com/officeflow/officeflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEncryptionKey = "0123456789abcdef0123456789abcdef"

type fakeChat struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeChat) SendMessage(_ context.Context, _ officeflow.TokenSet, _ []string, _ string, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, body)
	return "msg-1", nil
}

func (f *fakeChat) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

func newFlow(t *testing.T, providers officeflow.Providers) *officeflow.Flow {
	t.Helper()

	flow, err := officeflow.New(officeflow.Config{
		Credentials: officeflow.CredentialsConfig{EncryptionKey: testEncryptionKey},
		Engine: officeflow.EngineConfig{
			WorkerCount:  2,
			PollInterval: 5 * time.Millisecond,
		},
	}, providers)
	require.NoError(t, err)
	t.Cleanup(func() { _ = flow.Close() })
	return flow
}

const onboardingDoc = `{
  "id": "onboarding",
  "name": "Onboarding",
  "nodes": [
    {"id": "start", "type": "trigger",
     "data": {"params": {"event": "employee.onboarding"}}},
    {"id": "welcome", "type": "messaging",
     "data": {"params": {"recipients": ["{{trigger.email}}"], "body": "Welcome {{trigger.name}}!"}}}
  ],
  "edges": [
    {"id": "e1", "source": "start", "target": "welcome"}
  ]
}`

func TestFlow_OnboardingEndToEnd(t *testing.T) {
	chat := &fakeChat{}
	flow := newFlow(t, officeflow.Providers{Messaging: chat})
	require.NoError(t, flow.Start(context.Background()))

	ctx := context.Background()
	_, err := flow.Credentials().Store(ctx, "acme", officeflow.ProviderChat, officeflow.TokenSet{
		AccessToken: "chat-token",
		ExpiresAt:   time.Now().Add(time.Hour),
	}, nil)
	require.NoError(t, err)

	def, err := officeflow.LoadDefinitionJSON([]byte(onboardingDoc))
	require.NoError(t, err)
	require.NoError(t, flow.SaveDefinition(def))

	run, err := flow.StartRun(ctx, def.ID, officeflow.TriggerInput{
		Type:  "employee.onboarding",
		OrgID: "acme",
		Payload: map[string]interface{}{
			"email": "dana@acme.example",
			"name":  "Dana",
		},
	})
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		current, getErr := flow.GetRun(run.ID)
		require.NoError(t, getErr)
		if current.Status == officeflow.RunStatusCompleted {
			break
		}
		require.False(t, current.Status == officeflow.RunStatusFailed,
			"run failed: %s", current.LastError)
		time.Sleep(10 * time.Millisecond)
	}

	current, err := flow.GetRun(run.ID)
	require.NoError(t, err)
	require.Equal(t, officeflow.RunStatusCompleted, current.Status)

	// Placeholders resolved from the trigger payload before the provider
	// call.
	require.Equal(t, []string{"Welcome Dana!"}, chat.sent())

	steps, err := flow.GetSteps(run.ID)
	require.NoError(t, err)
	assert.Len(t, steps, 2)

	snapshot := flow.Metrics()
	assert.Equal(t, 1, snapshot.CompletedRuns)
}

func TestFlow_SaveDefinitionRejectsInvalidGraph(t *testing.T) {
	flow := newFlow(t, officeflow.Providers{})

	def := &officeflow.WorkflowDefinition{
		ID:   "broken",
		Name: "no trigger here",
		Nodes: []officeflow.Node{
			{ID: "a", Type: officeflow.NodeTypeMessaging,
				Params: map[string]interface{}{"recipients": []interface{}{"x"}, "body": "y"}},
		},
	}

	err := flow.SaveDefinition(def)
	require.Error(t, err)

	_, err = flow.GetDefinition("broken")
	require.Error(t, err, "rejected definitions are not persisted")
}

func TestFlow_MissingCredentialFailsRunTerminally(t *testing.T) {
	chat := &fakeChat{}
	flow := newFlow(t, officeflow.Providers{Messaging: chat})
	require.NoError(t, flow.Start(context.Background()))

	def, err := officeflow.LoadDefinitionJSON([]byte(onboardingDoc))
	require.NoError(t, err)
	require.NoError(t, flow.SaveDefinition(def))

	run, err := flow.StartRun(context.Background(), def.ID, officeflow.TriggerInput{
		Type:    "employee.onboarding",
		OrgID:   "org-without-credentials",
		Payload: map[string]interface{}{"email": "x@example.com", "name": "X"},
	})
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		current, getErr := flow.GetRun(run.ID)
		require.NoError(t, getErr)
		if current.Status.IsTerminal() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	current, err := flow.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, officeflow.RunStatusFailed, current.Status)
	assert.Contains(t, current.LastError, "CREDENTIALS_NOT_FOUND")
	assert.Empty(t, chat.sent(), "provider is never called without tokens")
}

func TestFlow_CustomExecutorRegistration(t *testing.T) {
	flow := newFlow(t, officeflow.Providers{})

	custom := &staticExecutor{}
	require.NoError(t, flow.RegisterExecutor(custom))
	require.Error(t, flow.RegisterExecutor(custom), "duplicate type registration")
}

type staticExecutor struct{}

func (s *staticExecutor) Type() officeflow.NodeType { return "ticketing" }

func (s *staticExecutor) Validate(map[string]interface{}) officeflow.ValidationResult {
	return officeflow.ValidationResult{Valid: true}
}

func (s *staticExecutor) Execute(context.Context, officeflow.ExecutionInput) officeflow.ExecutionResult {
	return officeflow.ExecutionResult{Status: "success"}
}

func (s *staticExecutor) Schema() officeflow.Schema {
	return officeflow.Schema{Type: "ticketing"}
}
