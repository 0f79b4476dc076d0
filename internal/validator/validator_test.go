package validator

import (
	"testing"

	"github.com/officeflow/officeflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func triggerNode(id string) domain.Node {
	return domain.Node{ID: id, Type: domain.NodeTypeTrigger}
}

func messagingNode(id string) domain.Node {
	return domain.Node{
		ID:     id,
		Type:   domain.NodeTypeMessaging,
		Params: map[string]interface{}{"recipients": []interface{}{"new-hire@example.com"}},
	}
}

func edge(id, source, target string) domain.Edge {
	return domain.Edge{ID: id, Source: source, Target: target}
}

func issueCodes(issues []Issue) []string {
	codes := make([]string, 0, len(issues))
	for _, i := range issues {
		codes = append(codes, i.Code)
	}
	return codes
}

func TestValidate_HappyPath(t *testing.T) {
	nodes := []domain.Node{
		triggerNode("start"),
		messagingNode("welcome"),
		{ID: "wait", Type: domain.NodeTypeDelay, Params: map[string]interface{}{"duration_ms": float64(5000)}},
		messagingNode("followup"),
	}
	edges := []domain.Edge{
		edge("e1", "start", "welcome"),
		edge("e2", "welcome", "wait"),
		edge("e3", "wait", "followup"),
	}

	result := Validate(nodes, edges)

	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidate_NoTrigger(t *testing.T) {
	nodes := []domain.Node{messagingNode("a"), messagingNode("b")}
	edges := []domain.Edge{edge("e1", "a", "b")}

	result := Validate(nodes, edges)

	assert.False(t, result.IsValid)
	assert.Contains(t, issueCodes(result.Errors), CodeNoTrigger)
}

func TestValidate_MultipleTriggersWarns(t *testing.T) {
	nodes := []domain.Node{
		triggerNode("t1"),
		triggerNode("t2"),
		messagingNode("a"),
	}
	edges := []domain.Edge{
		edge("e1", "t1", "a"),
		edge("e2", "t2", "a"),
	}

	result := Validate(nodes, edges)

	assert.True(t, result.IsValid)
	assert.Contains(t, issueCodes(result.Warnings), CodeMultipleTriggers)
}

func TestValidate_CycleDetected(t *testing.T) {
	nodes := []domain.Node{
		triggerNode("t"),
		messagingNode("A"),
		messagingNode("B"),
		messagingNode("C"),
	}
	edges := []domain.Edge{
		edge("e1", "t", "A"),
		edge("e2", "A", "B"),
		edge("e3", "B", "C"),
		edge("e4", "C", "A"),
	}

	result := Validate(nodes, edges)

	require.False(t, result.IsValid)

	var cycleIssue *Issue
	for i := range result.Errors {
		if result.Errors[i].Code == CodeCycle {
			cycleIssue = &result.Errors[i]
			break
		}
	}
	require.NotNil(t, cycleIssue, "expected a cycle error")
	assert.Contains(t, cycleIssue.Path, "A")
	assert.Contains(t, cycleIssue.Path, "B")
	assert.Contains(t, cycleIssue.Path, "C")
}

func TestValidate_SelfLoop(t *testing.T) {
	nodes := []domain.Node{triggerNode("t"), messagingNode("a")}
	edges := []domain.Edge{
		edge("e1", "t", "a"),
		edge("e2", "a", "a"),
	}

	result := Validate(nodes, edges)

	assert.False(t, result.IsValid)
	assert.Contains(t, issueCodes(result.Errors), CodeCycle)
}

func TestValidate_OrphanNodeWarnsOnly(t *testing.T) {
	nodes := []domain.Node{
		triggerNode("t"),
		messagingNode("a"),
		messagingNode("lonely"),
	}
	edges := []domain.Edge{edge("e1", "t", "a")}

	result := Validate(nodes, edges)

	assert.True(t, result.IsValid)

	require.Len(t, result.Warnings, 1)
	assert.Equal(t, CodeOrphanNode, result.Warnings[0].Code)
	assert.Equal(t, "lonely", result.Warnings[0].NodeID)
}

func TestValidate_UnreachableNodeWarns(t *testing.T) {
	nodes := []domain.Node{
		triggerNode("t"),
		messagingNode("a"),
		messagingNode("island1"),
		messagingNode("island2"),
	}
	edges := []domain.Edge{
		edge("e1", "t", "a"),
		edge("e2", "island1", "island2"),
	}

	result := Validate(nodes, edges)

	assert.True(t, result.IsValid)
	codes := issueCodes(result.Warnings)
	assert.Contains(t, codes, CodeUnreachableNode)
}

func TestValidate_EdgeToUnknownNode(t *testing.T) {
	nodes := []domain.Node{triggerNode("t")}
	edges := []domain.Edge{edge("e1", "t", "ghost")}

	result := Validate(nodes, edges)

	assert.False(t, result.IsValid)
	assert.Contains(t, issueCodes(result.Errors), CodeUnknownNode)
}

func TestValidate_DuplicateNodeID(t *testing.T) {
	nodes := []domain.Node{triggerNode("t"), messagingNode("a"), messagingNode("a")}
	result := Validate(nodes, nil)

	assert.False(t, result.IsValid)
	assert.Contains(t, issueCodes(result.Errors), CodeDuplicateNodeID)
}

func TestValidate_RequiredParams(t *testing.T) {
	tests := []struct {
		name string
		node domain.Node
	}{
		{
			name: "messaging without recipients",
			node: domain.Node{ID: "m", Type: domain.NodeTypeMessaging},
		},
		{
			name: "messaging with empty recipients",
			node: domain.Node{ID: "m", Type: domain.NodeTypeMessaging,
				Params: map[string]interface{}{"recipients": []interface{}{}}},
		},
		{
			name: "condition without expression",
			node: domain.Node{ID: "c", Type: domain.NodeTypeCondition},
		},
		{
			name: "delay without duration",
			node: domain.Node{ID: "d", Type: domain.NodeTypeDelay},
		},
		{
			name: "delay with negative duration",
			node: domain.Node{ID: "d", Type: domain.NodeTypeDelay,
				Params: map[string]interface{}{"duration_ms": float64(-1)}},
		},
		{
			name: "identity without action",
			node: domain.Node{ID: "i", Type: domain.NodeTypeIdentity},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes := []domain.Node{triggerNode("t"), tt.node}
			edges := []domain.Edge{edge("e1", "t", tt.node.ID)}

			result := Validate(nodes, edges)

			assert.False(t, result.IsValid)
			assert.Contains(t, issueCodes(result.Errors), CodeMissingParam)
		})
	}
}

func TestValidate_BoundWarningsNeverBlock(t *testing.T) {
	nodes := []domain.Node{
		triggerNode("t"),
		{
			ID:   "m",
			Type: domain.NodeTypeMessaging,
			Params: map[string]interface{}{
				"recipients": []interface{}{"x@example.com"},
			},
			RetryPolicy: domain.RetryPolicy{MaxRetries: 99, BackoffMs: 10},
			TimeoutMs:   500,
		},
	}
	edges := []domain.Edge{edge("e1", "t", "m")}

	result := Validate(nodes, edges)

	assert.True(t, result.IsValid)
	codes := issueCodes(result.Warnings)
	assert.Contains(t, codes, CodeRetryBounds)
	assert.Contains(t, codes, CodeTimeoutBounds)
}

func TestValidate_Idempotent(t *testing.T) {
	nodes := []domain.Node{
		triggerNode("t"),
		messagingNode("a"),
		messagingNode("b"),
	}
	edges := []domain.Edge{
		edge("e1", "t", "a"),
		edge("e2", "a", "b"),
		edge("e3", "b", "a"),
	}

	first := Validate(nodes, edges)
	second := Validate(nodes, edges)

	assert.Equal(t, first, second)
}
