// Package validator performs the structural and semantic checks a workflow
// definition must pass before it may be activated. Validation is a pure
// function of the node and edge sets: it touches no storage and keeps no
// state between calls.
package validator

import (
	"fmt"

	"github.com/officeflow/officeflow/internal/domain"
)

const (
	CodeNoTrigger        = "no-trigger"
	CodeMultipleTriggers = "multiple-triggers"
	CodeCycle            = "cycle"
	CodeOrphanNode       = "orphan-node"
	CodeUnreachableNode  = "unreachable-node"
	CodeUnknownNode      = "unknown-node"
	CodeDuplicateNodeID  = "duplicate-node-id"
	CodeMissingParam     = "missing-param"
	CodeRetryBounds      = "retry-bounds"
	CodeTimeoutBounds    = "timeout-bounds"
)

type Issue struct {
	Code    string   `json:"code"`
	NodeID  string   `json:"node_id,omitempty"`
	EdgeID  string   `json:"edge_id,omitempty"`
	Message string   `json:"message"`
	Path    []string `json:"path,omitempty"`
}

type Result struct {
	IsValid  bool    `json:"is_valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Validate checks the graph. Errors block activation; warnings never do.
func Validate(nodes []domain.Node, edges []domain.Edge) Result {
	r := Result{}

	byID := make(map[string]domain.Node, len(nodes))
	for _, n := range nodes {
		if _, dup := byID[n.ID]; dup {
			r.Errors = append(r.Errors, Issue{
				Code:    CodeDuplicateNodeID,
				NodeID:  n.ID,
				Message: fmt.Sprintf("node id %q appears more than once", n.ID),
			})
			continue
		}
		byID[n.ID] = n
	}

	for _, e := range edges {
		if _, ok := byID[e.Source]; !ok {
			r.Errors = append(r.Errors, Issue{
				Code:    CodeUnknownNode,
				EdgeID:  e.ID,
				Message: fmt.Sprintf("edge %q references unknown source node %q", e.ID, e.Source),
			})
		}
		if _, ok := byID[e.Target]; !ok {
			r.Errors = append(r.Errors, Issue{
				Code:    CodeUnknownNode,
				EdgeID:  e.ID,
				Message: fmt.Sprintf("edge %q references unknown target node %q", e.ID, e.Target),
			})
		}
	}

	checkTriggers(nodes, &r)
	checkOrphans(nodes, edges, &r)
	checkCycles(nodes, edges, byID, &r)
	checkReachability(nodes, edges, &r)

	for _, n := range nodes {
		checkParams(n, &r)
		checkBounds(n, &r)
	}

	r.IsValid = len(r.Errors) == 0
	return r
}

func checkTriggers(nodes []domain.Node, r *Result) {
	var triggers []string
	for _, n := range nodes {
		if n.Type.IsTriggerClass() {
			triggers = append(triggers, n.ID)
		}
	}

	switch {
	case len(triggers) == 0:
		r.Errors = append(r.Errors, Issue{
			Code:    CodeNoTrigger,
			Message: "workflow has no trigger or schedule node",
		})
	case len(triggers) > 1:
		r.Warnings = append(r.Warnings, Issue{
			Code:    CodeMultipleTriggers,
			Message: fmt.Sprintf("workflow has %d trigger nodes; only one fires per event", len(triggers)),
			Path:    triggers,
		})
	}
}

func checkOrphans(nodes []domain.Node, edges []domain.Edge, r *Result) {
	connected := make(map[string]bool)
	for _, e := range edges {
		connected[e.Source] = true
		connected[e.Target] = true
	}

	for _, n := range nodes {
		if n.Type.IsTriggerClass() {
			continue
		}
		if !connected[n.ID] {
			r.Warnings = append(r.Warnings, Issue{
				Code:    CodeOrphanNode,
				NodeID:  n.ID,
				Message: fmt.Sprintf("node %q has no incident edges and will never run", n.ID),
			})
		}
	}
}

// checkCycles runs a single depth-first pass with a recursion stack. It is
// guaranteed to reject any non-DAG graph, though overlapping cycles may be
// reported as one.
func checkCycles(nodes []domain.Node, edges []domain.Edge, byID map[string]domain.Node, r *Result) {
	adjacency := make(map[string][]string)
	for _, e := range edges {
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
	}

	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var stack []string

	var visit func(id string)
	visit = func(id string) {
		visited[id] = true
		onStack[id] = true
		stack = append(stack, id)

		for _, next := range adjacency[id] {
			if _, ok := byID[next]; !ok {
				continue
			}
			if onStack[next] {
				cycle := cycleSuffix(stack, next)
				r.Errors = append(r.Errors, Issue{
					Code:    CodeCycle,
					NodeID:  next,
					Message: fmt.Sprintf("cycle detected: %v", cycle),
					Path:    cycle,
				})
				continue
			}
			if !visited[next] {
				visit(next)
			}
		}

		onStack[id] = false
		stack = stack[:len(stack)-1]
	}

	for _, n := range nodes {
		if !visited[n.ID] {
			visit(n.ID)
		}
	}
}

func cycleSuffix(stack []string, entry string) []string {
	for i, id := range stack {
		if id == entry {
			suffix := make([]string, len(stack)-i)
			copy(suffix, stack[i:])
			return suffix
		}
	}
	return []string{entry}
}

func checkReachability(nodes []domain.Node, edges []domain.Edge, r *Result) {
	adjacency := make(map[string][]string)
	connected := make(map[string]bool)
	for _, e := range edges {
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
		connected[e.Source] = true
		connected[e.Target] = true
	}

	reached := make(map[string]bool)
	var frontier []string
	for _, n := range nodes {
		if n.Type.IsTriggerClass() {
			reached[n.ID] = true
			frontier = append(frontier, n.ID)
		}
	}

	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		for _, next := range adjacency[id] {
			if !reached[next] {
				reached[next] = true
				frontier = append(frontier, next)
			}
		}
	}

	for _, n := range nodes {
		if n.Type.IsTriggerClass() || reached[n.ID] {
			continue
		}
		// Nodes with no incident edges at all already warned as orphans.
		if !connected[n.ID] {
			continue
		}
		r.Warnings = append(r.Warnings, Issue{
			Code:    CodeUnreachableNode,
			NodeID:  n.ID,
			Message: fmt.Sprintf("node %q is not reachable from any trigger", n.ID),
		})
	}
}

func checkParams(n domain.Node, r *Result) {
	missing := func(param, why string) {
		r.Errors = append(r.Errors, Issue{
			Code:    CodeMissingParam,
			NodeID:  n.ID,
			Message: fmt.Sprintf("node %q (%s): %s", n.ID, n.Type, why),
			Path:    []string{param},
		})
	}

	switch n.Type {
	case domain.NodeTypeMessaging:
		if !hasNonEmptyList(n.Params, "recipients") {
			missing("recipients", "messaging step requires at least one recipient")
		}
	case domain.NodeTypeCondition:
		if !hasNonEmptyString(n.Params, "expression") {
			missing("expression", "condition step requires an expression")
		}
	case domain.NodeTypeDelay:
		if !hasPositiveNumber(n.Params, "duration_ms") {
			missing("duration_ms", "delay step requires a positive duration")
		}
	case domain.NodeTypeIdentity:
		if !hasNonEmptyString(n.Params, "action") {
			missing("action", "identity step requires an action")
		}
	case domain.NodeTypeDocument:
		if !hasNonEmptyString(n.Params, "document_id") {
			missing("document_id", "document step requires a document id")
		}
	case domain.NodeTypeContentGeneration:
		if !hasNonEmptyString(n.Params, "prompt") {
			missing("prompt", "content generation step requires a prompt")
		}
	case domain.NodeTypeSchedule:
		if !hasNonEmptyString(n.Params, "cron") {
			missing("cron", "schedule node requires a cron expression")
		}
	}
}

func checkBounds(n domain.Node, r *Result) {
	if n.RetryPolicy.MaxRetries < 0 || n.RetryPolicy.MaxRetries > 10 {
		r.Warnings = append(r.Warnings, Issue{
			Code:    CodeRetryBounds,
			NodeID:  n.ID,
			Message: fmt.Sprintf("node %q: max_retries %d outside [0,10]", n.ID, n.RetryPolicy.MaxRetries),
		})
	}
	if n.RetryPolicy.BackoffMs != 0 && n.RetryPolicy.BackoffMs < 100 {
		r.Warnings = append(r.Warnings, Issue{
			Code:    CodeRetryBounds,
			NodeID:  n.ID,
			Message: fmt.Sprintf("node %q: backoff_ms %d below minimum 100", n.ID, n.RetryPolicy.BackoffMs),
		})
	}
	if n.TimeoutMs != 0 && n.TimeoutMs < 1000 {
		r.Warnings = append(r.Warnings, Issue{
			Code:    CodeTimeoutBounds,
			NodeID:  n.ID,
			Message: fmt.Sprintf("node %q: timeout_ms %d below minimum 1000", n.ID, n.TimeoutMs),
		})
	}
}

func hasNonEmptyString(params map[string]interface{}, key string) bool {
	v, ok := params[key]
	if !ok {
		return false
	}
	s, ok := v.(string)
	return ok && s != ""
}

func hasNonEmptyList(params map[string]interface{}, key string) bool {
	v, ok := params[key]
	if !ok {
		return false
	}
	switch list := v.(type) {
	case []interface{}:
		return len(list) > 0
	case []string:
		return len(list) > 0
	}
	return false
}

func hasPositiveNumber(params map[string]interface{}, key string) bool {
	v, ok := params[key]
	if !ok {
		return false
	}
	switch n := v.(type) {
	case int:
		return n > 0
	case int64:
		return n > 0
	case float64:
		return n > 0
	}
	return false
}
