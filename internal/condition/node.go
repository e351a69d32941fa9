package condition

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Node is a structured showWhen/hideWhen tree: comparisons joined by AND/OR,
// or an opaque backend callback.
type Node interface {
	Eval(data map[string]any) bool
	// Attributes lists every attribute the tree reads. Callbacks read none
	// that can be known ahead of time.
	Attributes() []string
}

// Comparison is a leaf node.
type Comparison struct {
	Condition
}

// Compare builds a comparison leaf.
func Compare(attribute string, op Operator, value any) Comparison {
	return Comparison{Condition: When(attribute, value, op)}
}

func (c Comparison) Eval(data map[string]any) bool { return c.Test(data) }

func (c Comparison) Attributes() []string { return []string{c.Attribute} }

func (c Comparison) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"type":      "comparison",
		"attribute": c.Attribute,
		"operator":  c.Operator,
		"value":     c.Value,
	})
}

// And passes when every child passes. An empty And passes.
type And []Node

func (n And) Eval(data map[string]any) bool {
	for _, child := range n {
		if !child.Eval(data) {
			return false
		}
	}
	return true
}

func (n And) Attributes() []string { return collect(n) }

func (n And) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"type": "and", "conditions": []Node(n)})
}

// Or passes when at least one child passes. An empty Or fails.
type Or []Node

func (n Or) Eval(data map[string]any) bool {
	for _, child := range n {
		if child.Eval(data) {
			return true
		}
	}
	return false
}

func (n Or) Attributes() []string { return collect(n) }

func (n Or) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"type": "or", "conditions": []Node(n)})
}

// Callback is a backend-only predicate. It serializes as a marker so clients
// know the decision happens server side.
type Callback func(data map[string]any) bool

func (fn Callback) Eval(data map[string]any) bool {
	if fn == nil {
		return true
	}
	return fn(data)
}

func (fn Callback) Attributes() []string { return nil }

func (fn Callback) MarshalJSON() ([]byte, error) {
	return []byte(`{"type":"callback"}`), nil
}

func collect(nodes []Node) []string {
	var out []string
	for _, child := range nodes {
		out = append(out, child.Attributes()...)
	}
	return out
}

// DecodeNode builds a tree from decoded JSON/YAML. Objects without a "type"
// are read as comparisons; "callback" nodes cannot be declared in data.
func DecodeNode(raw any) (Node, error) {
	if raw == nil {
		return nil, nil
	}
	m, ok := asMap(raw)
	if !ok {
		return nil, errNotObject
	}
	kind, _ := m["type"].(string)
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "comparison":
		c, err := DecodeCondition(m)
		if err != nil {
			return nil, err
		}
		return Comparison{Condition: c}, nil
	case "and", "or":
		items, ok := m["conditions"].([]any)
		if !ok {
			return nil, fmt.Errorf("condition: %s node needs a conditions list", kind)
		}
		children := make([]Node, 0, len(items))
		for i, it := range items {
			child, err := DecodeNode(it)
			if err != nil {
				return nil, fmt.Errorf("condition: %s[%d]: %w", kind, i, err)
			}
			if child != nil {
				children = append(children, child)
			}
		}
		if strings.EqualFold(kind, "and") {
			return And(children), nil
		}
		return Or(children), nil
	case "callback":
		return nil, fmt.Errorf("condition: callback nodes are backend-only and cannot be decoded")
	}
	return nil, fmt.Errorf("condition: unknown node type %q", kind)
}
