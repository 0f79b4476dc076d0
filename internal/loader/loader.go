// Package loader decodes workflow definitions from their wire formats.
// The canonical interchange form is the editor's JSON document, where
// node settings live under a nested "data" object and layout positions
// are opaque to the engine. A flatter YAML form exists for hand-authored
// definitions.
package loader

import (
	"github.com/google/uuid"

	json "github.com/goccy/go-json"
	"github.com/officeflow/officeflow/internal/domain"
	"gopkg.in/yaml.v3"
)

type wireDocument struct {
	ID      string     `json:"id,omitempty"`
	Name    string     `json:"name,omitempty"`
	Version int        `json:"version,omitempty"`
	Nodes   []wireNode `json:"nodes"`
	Edges   []wireEdge `json:"edges"`
}

type wireNode struct {
	ID string `json:"id"`
	// Position is editor layout state; carried through untouched.
	Position json.RawMessage `json:"position,omitempty"`
	Type     string          `json:"type"`
	Data     wireNodeData    `json:"data"`
}

type wireNodeData struct {
	Label       string                 `json:"label,omitempty"`
	Params      map[string]interface{} `json:"params,omitempty"`
	RetryPolicy *wireRetryPolicy       `json:"retryPolicy,omitempty"`
	TimeoutMs   int64                  `json:"timeoutMs,omitempty"`
	Critical    *bool                  `json:"critical,omitempty"`
}

type wireRetryPolicy struct {
	MaxRetries int   `json:"maxRetries" yaml:"max_retries"`
	BackoffMs  int64 `json:"backoffMs" yaml:"backoff_ms"`
}

type wireEdge struct {
	ID           string        `json:"id"`
	Source       string        `json:"source"`
	Target       string        `json:"target"`
	SourceHandle string        `json:"sourceHandle,omitempty"`
	TargetHandle string        `json:"targetHandle,omitempty"`
	Data         *wireEdgeData `json:"data,omitempty"`
}

type wireEdgeData struct {
	Condition string `json:"condition,omitempty"`
	Label     string `json:"label,omitempty"`
}

// LoadJSON decodes an editor document into a definition. Steps default
// to critical; a node opts out with "critical": false in its data.
func LoadJSON(data []byte) (*domain.WorkflowDefinition, error) {
	var doc wireDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, domain.Error{
			Type:    domain.ErrorTypeValidation,
			Message: "definition is not valid JSON",
			Details: map[string]interface{}{"error": err.Error()},
		}
	}
	return normalize(&doc)
}

type yamlDocument struct {
	ID      string     `yaml:"id"`
	Name    string     `yaml:"name"`
	Version int        `yaml:"version"`
	Nodes   []yamlNode `yaml:"nodes"`
	Edges   []yamlEdge `yaml:"edges"`
}

type yamlNode struct {
	ID          string                 `yaml:"id"`
	Type        string                 `yaml:"type"`
	Label       string                 `yaml:"label"`
	Params      map[string]interface{} `yaml:"params"`
	RetryPolicy *wireRetryPolicy       `yaml:"retry_policy"`
	TimeoutMs   int64                  `yaml:"timeout_ms"`
	Critical    *bool                  `yaml:"critical"`
}

type yamlEdge struct {
	ID           string `yaml:"id"`
	Source       string `yaml:"source"`
	Target       string `yaml:"target"`
	SourceHandle string `yaml:"source_handle"`
	TargetHandle string `yaml:"target_handle"`
}

// LoadYAML decodes the hand-authored YAML form.
func LoadYAML(data []byte) (*domain.WorkflowDefinition, error) {
	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, domain.Error{
			Type:    domain.ErrorTypeValidation,
			Message: "definition is not valid YAML",
			Details: map[string]interface{}{"error": err.Error()},
		}
	}

	wire := wireDocument{
		ID:      doc.ID,
		Name:    doc.Name,
		Version: doc.Version,
		Nodes:   make([]wireNode, 0, len(doc.Nodes)),
		Edges:   make([]wireEdge, 0, len(doc.Edges)),
	}
	for _, n := range doc.Nodes {
		wire.Nodes = append(wire.Nodes, wireNode{
			ID:   n.ID,
			Type: n.Type,
			Data: wireNodeData{
				Label:       n.Label,
				Params:      n.Params,
				RetryPolicy: n.RetryPolicy,
				TimeoutMs:   n.TimeoutMs,
				Critical:    n.Critical,
			},
		})
	}
	for _, e := range doc.Edges {
		wire.Edges = append(wire.Edges, wireEdge{
			ID:           e.ID,
			Source:       e.Source,
			Target:       e.Target,
			SourceHandle: e.SourceHandle,
			TargetHandle: e.TargetHandle,
		})
	}
	return normalize(&wire)
}

func normalize(doc *wireDocument) (*domain.WorkflowDefinition, error) {
	def := &domain.WorkflowDefinition{
		ID:      doc.ID,
		Name:    doc.Name,
		Version: doc.Version,
		Nodes:   make([]domain.Node, 0, len(doc.Nodes)),
		Edges:   make([]domain.Edge, 0, len(doc.Edges)),
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	if def.Version <= 0 {
		def.Version = 1
	}

	for _, n := range doc.Nodes {
		if n.ID == "" {
			return nil, domain.NewValidationError("nodes.id", "node id is required")
		}
		if n.Type == "" {
			return nil, domain.NewValidationError("nodes.type", "node "+n.ID+" has no type")
		}

		node := domain.Node{
			ID:        n.ID,
			Type:      domain.NodeType(n.Type),
			Label:     n.Data.Label,
			Params:    n.Data.Params,
			TimeoutMs: n.Data.TimeoutMs,
			Critical:  n.Data.Critical == nil || *n.Data.Critical,
		}
		if n.Data.RetryPolicy != nil {
			node.RetryPolicy = domain.RetryPolicy{
				MaxRetries: n.Data.RetryPolicy.MaxRetries,
				BackoffMs:  n.Data.RetryPolicy.BackoffMs,
			}
		}
		def.Nodes = append(def.Nodes, node)
	}

	for _, e := range doc.Edges {
		if e.Source == "" || e.Target == "" {
			return nil, domain.NewValidationError("edges", "edge "+e.ID+" must name a source and a target")
		}
		edge := domain.Edge{
			ID:           e.ID,
			Source:       e.Source,
			Target:       e.Target,
			SourceHandle: e.SourceHandle,
			TargetHandle: e.TargetHandle,
		}
		if edge.ID == "" {
			edge.ID = uuid.NewString()
		}
		def.Edges = append(def.Edges, edge)
	}

	return def, nil
}

// ExportJSON renders a definition back into the editor wire shape.
// Layout positions are not round-tripped; the engine never had them.
func ExportJSON(def *domain.WorkflowDefinition) ([]byte, error) {
	doc := wireDocument{
		ID:      def.ID,
		Name:    def.Name,
		Version: def.Version,
		Nodes:   make([]wireNode, 0, len(def.Nodes)),
		Edges:   make([]wireEdge, 0, len(def.Edges)),
	}
	for _, n := range def.Nodes {
		critical := n.Critical
		data := wireNodeData{
			Label:     n.Label,
			Params:    n.Params,
			TimeoutMs: n.TimeoutMs,
			Critical:  &critical,
		}
		if n.RetryPolicy != (domain.RetryPolicy{}) {
			data.RetryPolicy = &wireRetryPolicy{
				MaxRetries: n.RetryPolicy.MaxRetries,
				BackoffMs:  n.RetryPolicy.BackoffMs,
			}
		}
		doc.Nodes = append(doc.Nodes, wireNode{ID: n.ID, Type: string(n.Type), Data: data})
	}
	for _, e := range def.Edges {
		doc.Edges = append(doc.Edges, wireEdge{
			ID:           e.ID,
			Source:       e.Source,
			Target:       e.Target,
			SourceHandle: e.SourceHandle,
			TargetHandle: e.TargetHandle,
		})
	}
	return json.Marshal(doc)
}
