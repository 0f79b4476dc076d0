package domain

import (
	"time"
)

type NodeType string

const (
	NodeTypeTrigger           NodeType = "trigger"
	NodeTypeSchedule          NodeType = "schedule"
	NodeTypeIdentity          NodeType = "identity"
	NodeTypeMessaging         NodeType = "messaging"
	NodeTypeCalendar          NodeType = "calendar"
	NodeTypeDocument          NodeType = "document"
	NodeTypeContentGeneration NodeType = "content_generation"
	NodeTypeCondition         NodeType = "condition"
	NodeTypeDelay             NodeType = "delay"
)

func (t NodeType) IsTriggerClass() bool {
	return t == NodeTypeTrigger || t == NodeTypeSchedule
}

type RetryPolicy struct {
	MaxRetries int   `json:"max_retries" yaml:"max_retries"`
	BackoffMs  int64 `json:"backoff_ms" yaml:"backoff_ms"`
}

type Node struct {
	ID          string                 `json:"id" yaml:"id"`
	Type        NodeType               `json:"type" yaml:"type"`
	Label       string                 `json:"label" yaml:"label"`
	Params      map[string]interface{} `json:"params" yaml:"params"`
	RetryPolicy RetryPolicy            `json:"retry_policy" yaml:"retry_policy"`
	TimeoutMs   int64                  `json:"timeout_ms" yaml:"timeout_ms"`
	Critical    bool                   `json:"critical" yaml:"critical"`
}

func (n Node) Timeout() time.Duration {
	return time.Duration(n.TimeoutMs) * time.Millisecond
}

func (n Node) Backoff() time.Duration {
	return time.Duration(n.RetryPolicy.BackoffMs) * time.Millisecond
}

type Edge struct {
	ID           string `json:"id" yaml:"id"`
	Source       string `json:"source" yaml:"source"`
	Target       string `json:"target" yaml:"target"`
	SourceHandle string `json:"source_handle,omitempty" yaml:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty" yaml:"target_handle,omitempty"`
}

type WorkflowDefinition struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Version   int       `json:"version" yaml:"version"`
	Nodes     []Node    `json:"nodes" yaml:"nodes"`
	Edges     []Edge    `json:"edges" yaml:"edges"`
	Active    bool      `json:"active" yaml:"active"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

func (d *WorkflowDefinition) Node(id string) (Node, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

func (d *WorkflowDefinition) TriggerNodes() []Node {
	var triggers []Node
	for _, n := range d.Nodes {
		if n.Type.IsTriggerClass() {
			triggers = append(triggers, n)
		}
	}
	return triggers
}

func (d *WorkflowDefinition) IncomingEdges(nodeID string) []Edge {
	var edges []Edge
	for _, e := range d.Edges {
		if e.Target == nodeID {
			edges = append(edges, e)
		}
	}
	return edges
}

func (d *WorkflowDefinition) OutgoingEdges(nodeID string) []Edge {
	var edges []Edge
	for _, e := range d.Edges {
		if e.Source == nodeID {
			edges = append(edges, e)
		}
	}
	return edges
}

func (d *WorkflowDefinition) Dependencies(nodeID string) []string {
	var deps []string
	for _, e := range d.Edges {
		if e.Target == nodeID {
			deps = append(deps, e.Source)
		}
	}
	return deps
}
