package field

import (
	"encoding/json"

	"resourcekit/internal/condition"
)

// Group is an ordered run of fields sharing one visibility predicate. The
// predicate is evaluated once per payload and never joins a field's
// dependency stack; it supports a single condition and a callback only.
type Group struct {
	Items     []*Field
	DependsOn *condition.Condition
	ShowWhen  condition.Callback
	Cols      string
}

// NewGroup groups fields.
func NewGroup(fields ...*Field) *Group {
	return &Group{Items: fields, Cols: defaultCols}
}

// When shows the group only when attribute compares true against value.
func (g *Group) When(attribute string, value any, op ...condition.Operator) *Group {
	c := condition.When(attribute, value, op...)
	g.DependsOn = &c
	return g
}

// ShowWhenFunc shows the group only when fn returns true.
func (g *Group) ShowWhenFunc(fn func(map[string]any) bool) *Group {
	g.ShowWhen = fn
	return g
}

// IsVisible checks dependsOn, then the callback. A missing attribute reads
// as null.
func (g *Group) IsVisible(data map[string]any) bool {
	if g.DependsOn != nil && !g.DependsOn.Test(data) {
		return false
	}
	if g.ShowWhen != nil && !g.ShowWhen(data) {
		return false
	}
	return true
}

// Fields returns the grouped fields in order.
func (g *Group) Fields() []*Field { return g.Items }

func (g *Group) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.descriptor("group"))
}

func (g *Group) descriptor(kind string) map[string]any {
	fields := g.Items
	if fields == nil {
		fields = []*Field{}
	}
	out := map[string]any{
		"type":      kind,
		"cols":      g.Cols,
		"fields":    fields,
		"dependsOn": nil,
		"showWhen":  nil,
	}
	if g.DependsOn != nil {
		out["dependsOn"] = g.DependsOn
	}
	if g.ShowWhen != nil {
		out["showWhen"] = g.ShowWhen
	}
	return out
}

// Section is a Group with a title and collapse state.
type Section struct {
	Group
	Title       string
	Description string
	Collapsible bool
	Collapsed   bool
}

// NewSection builds a titled section.
func NewSection(title string, fields ...*Field) *Section {
	return &Section{Group: Group{Items: fields, Cols: defaultCols}, Title: title}
}

func (s *Section) When(attribute string, value any, op ...condition.Operator) *Section {
	s.Group.When(attribute, value, op...)
	return s
}

func (s *Section) ShowWhenFunc(fn func(map[string]any) bool) *Section {
	s.Group.ShowWhenFunc(fn)
	return s
}

func (s *Section) Describe(text string) *Section {
	s.Description = text
	return s
}

// Collapse makes the section collapsible, initially collapsed or not.
func (s *Section) Collapse(collapsed bool) *Section {
	s.Collapsible = true
	s.Collapsed = collapsed
	return s
}

func (s *Section) MarshalJSON() ([]byte, error) {
	out := s.descriptor("section")
	out["title"] = s.Title
	out["description"] = s.Description
	out["collapsible"] = s.Collapsible
	out["collapsed"] = s.Collapsed
	return json.Marshal(out)
}
