package condition

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Condition is a single {attribute, value, operator} triple tested against
// form data.
type Condition struct {
	Attribute string   `json:"attribute"`
	Value     any      `json:"value"`
	Operator  Operator `json:"operator"`
}

// When builds a condition; the operator defaults to "=".
func When(attribute string, value any, op ...Operator) Condition {
	c := Condition{Attribute: attribute, Value: value, Operator: OpEqual}
	if len(op) > 0 && op[0] != "" {
		c.Operator = normalize(op[0])
	}
	return c
}

// Test reads the attribute from data (missing reads as nil) and evaluates.
func (c Condition) Test(data map[string]any) bool {
	actual, _ := Lookup(data, c.Attribute)
	return Evaluate(actual, c.Value, c.Operator)
}

// Mode tells how a DependsOn set combines its conditions.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeAll    Mode = "all"
	ModeAny    Mode = "any"
)

// DependsOn is either a single condition or an all/any set.
type DependsOn struct {
	Mode       Mode
	Conditions []Condition
}

// Single wraps one condition.
func Single(c Condition) *DependsOn {
	return &DependsOn{Mode: ModeSingle, Conditions: []Condition{c}}
}

// All requires every condition to pass.
func All(conds ...Condition) *DependsOn {
	return &DependsOn{Mode: ModeAll, Conditions: conds}
}

// Any requires at least one condition to pass.
func Any(conds ...Condition) *DependsOn {
	return &DependsOn{Mode: ModeAny, Conditions: conds}
}

// Attributes lists the attributes referenced by the set, in order.
func (d *DependsOn) Attributes() []string {
	if d == nil {
		return nil
	}
	out := make([]string, 0, len(d.Conditions))
	for _, c := range d.Conditions {
		out = append(out, c.Attribute)
	}
	return out
}

// Eval tests the set against data. A nil set passes.
func (d *DependsOn) Eval(data map[string]any) bool {
	if d == nil || len(d.Conditions) == 0 {
		return true
	}
	switch d.Mode {
	case ModeAny:
		for _, c := range d.Conditions {
			if c.Test(data) {
				return true
			}
		}
		return false
	case ModeAll:
		for _, c := range d.Conditions {
			if !c.Test(data) {
				return false
			}
		}
		return true
	}
	return d.Conditions[0].Test(data)
}

func (d *DependsOn) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	switch d.Mode {
	case ModeAll:
		return json.Marshal(map[string][]Condition{"all": d.Conditions})
	case ModeAny:
		return json.Marshal(map[string][]Condition{"any": d.Conditions})
	}
	if len(d.Conditions) == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(d.Conditions[0])
}

func (d *DependsOn) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := DecodeDependsOn(raw)
	if err != nil {
		return err
	}
	if parsed == nil {
		*d = DependsOn{}
		return nil
	}
	*d = *parsed
	return nil
}

var errNotObject = errors.New("condition: expected an object")

// DecodeCondition accepts decoded JSON/YAML maps of the form
// {attribute, value, operator}.
func DecodeCondition(raw any) (Condition, error) {
	m, ok := asMap(raw)
	if !ok {
		return Condition{}, errNotObject
	}
	attr, _ := m["attribute"].(string)
	if strings.TrimSpace(attr) == "" {
		attr, _ = m["field"].(string)
	}
	if strings.TrimSpace(attr) == "" {
		return Condition{}, errors.New("condition: attribute is required")
	}
	op, _ := m["operator"].(string)
	c := When(strings.TrimSpace(attr), m["value"], Operator(op))
	if !c.Operator.Known() {
		return Condition{}, fmt.Errorf("condition: unknown operator %q", op)
	}
	return c, nil
}

// DecodeDependsOn accepts a single condition object or {"all": [...]} /
// {"any": [...]}. A nil input decodes to nil.
func DecodeDependsOn(raw any) (*DependsOn, error) {
	if raw == nil {
		return nil, nil
	}
	m, ok := asMap(raw)
	if !ok {
		return nil, errNotObject
	}
	for _, mode := range []Mode{ModeAll, ModeAny} {
		list, ok := m[string(mode)]
		if !ok {
			continue
		}
		items, ok := list.([]any)
		if !ok {
			return nil, fmt.Errorf("condition: %q must be a list", mode)
		}
		conds := make([]Condition, 0, len(items))
		for i, it := range items {
			c, err := DecodeCondition(it)
			if err != nil {
				return nil, fmt.Errorf("condition: %s[%d]: %w", mode, i, err)
			}
			conds = append(conds, c)
		}
		return &DependsOn{Mode: mode, Conditions: conds}, nil
	}
	c, err := DecodeCondition(m)
	if err != nil {
		return nil, err
	}
	return Single(c), nil
}

// Lookup reads a value by key, falling back to dot-path traversal through
// nested maps. The boolean reports presence.
func Lookup(data map[string]any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if len(data) == 0 || path == "" {
		return nil, false
	}
	if v, ok := data[path]; ok {
		return v, true
	}
	if !strings.Contains(path, ".") {
		return nil, false
	}
	var current any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		next, ok := m[part]
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

func asMap(raw any) (map[string]any, bool) {
	switch t := raw.(type) {
	case map[string]any:
		return t, true
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[fmt.Sprint(k)] = v
		}
		return out, true
	}
	return nil, false
}
