package loader

import (
	"testing"

	"github.com/officeflow/officeflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const editorDocument = `{
  "id": "onboarding-v2",
  "name": "Engineering onboarding",
  "version": 2,
  "nodes": [
    {
      "id": "start",
      "type": "trigger",
      "position": {"x": 120, "y": 80},
      "data": {
        "label": "New hire",
        "params": {"event": "employee.onboarding"}
      }
    },
    {
      "id": "welcome",
      "type": "messaging",
      "position": {"x": 360, "y": 80},
      "data": {
        "label": "Welcome message",
        "params": {"recipients": ["{{trigger.email}}"], "body": "Welcome!"},
        "retryPolicy": {"maxRetries": 3, "backoffMs": 1000},
        "timeoutMs": 30000,
        "critical": false
      }
    }
  ],
  "edges": [
    {"id": "e1", "source": "start", "target": "welcome"}
  ]
}`

func TestLoadJSON(t *testing.T) {
	def, err := LoadJSON([]byte(editorDocument))
	require.NoError(t, err)

	assert.Equal(t, "onboarding-v2", def.ID)
	assert.Equal(t, "Engineering onboarding", def.Name)
	assert.Equal(t, 2, def.Version)
	require.Len(t, def.Nodes, 2)
	require.Len(t, def.Edges, 1)

	start, ok := def.Node("start")
	require.True(t, ok)
	assert.Equal(t, domain.NodeTypeTrigger, start.Type)
	assert.Equal(t, "New hire", start.Label)
	assert.True(t, start.Critical, "criticality defaults on when omitted")

	welcome, ok := def.Node("welcome")
	require.True(t, ok)
	assert.Equal(t, domain.NodeTypeMessaging, welcome.Type)
	assert.Equal(t, 3, welcome.RetryPolicy.MaxRetries)
	assert.Equal(t, int64(1000), welcome.RetryPolicy.BackoffMs)
	assert.Equal(t, int64(30000), welcome.TimeoutMs)
	assert.False(t, welcome.Critical)
}

func TestLoadJSON_GeneratesMissingIDs(t *testing.T) {
	def, err := LoadJSON([]byte(`{
	  "nodes": [{"id": "a", "type": "trigger", "data": {}}],
	  "edges": [{"source": "a", "target": "a"}]
	}`))
	require.NoError(t, err)

	assert.NotEmpty(t, def.ID)
	assert.Equal(t, 1, def.Version)
	assert.NotEmpty(t, def.Edges[0].ID)
}

func TestLoadJSON_Rejections(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"malformed json", `{"nodes": [`},
		{"node without id", `{"nodes": [{"type": "trigger", "data": {}}], "edges": []}`},
		{"node without type", `{"nodes": [{"id": "a", "data": {}}], "edges": []}`},
		{"edge without endpoints", `{"nodes": [{"id": "a", "type": "trigger", "data": {}}], "edges": [{"id": "e1"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadJSON([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, domain.IsErrorType(err, domain.ErrorTypeValidation))
		})
	}
}

func TestLoadYAML(t *testing.T) {
	doc := `
id: offboarding
name: Standard offboarding
version: 1
nodes:
  - id: start
    type: trigger
    params:
      event: employee.offboarding
  - id: teardown
    type: identity
    label: Account teardown
    params:
      action: deprovision
    retry_policy:
      max_retries: 2
      backoff_ms: 500
    timeout_ms: 60000
edges:
  - id: e1
    source: start
    target: teardown
`
	def, err := LoadYAML([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "offboarding", def.ID)
	require.Len(t, def.Nodes, 2)

	teardown, ok := def.Node("teardown")
	require.True(t, ok)
	assert.Equal(t, domain.NodeTypeIdentity, teardown.Type)
	assert.Equal(t, "deprovision", teardown.Params["action"])
	assert.Equal(t, 2, teardown.RetryPolicy.MaxRetries)
	assert.Equal(t, int64(60000), teardown.TimeoutMs)
	assert.True(t, teardown.Critical)
}

func TestExportJSON_RoundTrip(t *testing.T) {
	def, err := LoadJSON([]byte(editorDocument))
	require.NoError(t, err)

	data, err := ExportJSON(def)
	require.NoError(t, err)

	reloaded, err := LoadJSON(data)
	require.NoError(t, err)

	assert.Equal(t, def.ID, reloaded.ID)
	assert.Equal(t, def.Nodes, reloaded.Nodes)
	assert.Equal(t, def.Edges, reloaded.Edges)
}
