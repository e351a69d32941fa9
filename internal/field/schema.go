package field

import "encoding/json"

// Element is a schema entry: a field, a group or a section.
type Element interface {
	json.Marshaler
	Fields() []*Field
}

// Schema is an ordered list of elements for one view.
type Schema []Element

// Fields flattens the schema, groups and sections included.
func (s Schema) Fields() []*Field {
	var out []*Field
	for _, el := range s {
		out = append(out, el.Fields()...)
	}
	return out
}

// Field finds a field by attribute.
func (s Schema) Field(attribute string) (*Field, bool) {
	for _, f := range s.Fields() {
		if f.Attribute == attribute {
			return f, true
		}
	}
	return nil, false
}

// State is the per-attribute answer for a payload.
type State struct {
	Visible  bool `json:"visible"`
	Required bool `json:"required"`
	Disabled bool `json:"disabled"`
}

// Resolver evaluates a schema against payloads. Dependencies between fields
// are followed through the attribute index, so cycles are detected across
// the whole schema.
type Resolver struct {
	schema Schema
	index  map[string]*Field
}

// NewResolver indexes s. When two fields share an attribute the first wins.
func NewResolver(s Schema) *Resolver {
	r := &Resolver{schema: s, index: make(map[string]*Field)}
	for _, f := range s.Fields() {
		if _, dup := r.index[f.Attribute]; !dup {
			r.index[f.Attribute] = f
		}
	}
	return r
}

// Lookup is the Siblings func of the schema.
func (r *Resolver) Lookup(attribute string) (*Field, bool) {
	f, ok := r.index[attribute]
	return f, ok
}

// IsVisible evaluates one field, following its dependencies.
func (r *Resolver) IsVisible(f *Field, data map[string]any) (bool, error) {
	return f.visible(data, r.Lookup, nil)
}

// VisibleFields lists the fields visible for data, in schema order. Fields
// inside a hidden group or section are hidden.
func (r *Resolver) VisibleFields(data map[string]any) ([]*Field, error) {
	var out []*Field
	err := r.walk(data, func(f *Field, visible bool) {
		if visible {
			out = append(out, f)
		}
	})
	return out, err
}

// State reports visible/required/disabled for every field.
func (r *Resolver) State(data map[string]any) (map[string]State, error) {
	out := make(map[string]State, len(r.index))
	err := r.walk(data, func(f *Field, visible bool) {
		out[f.Attribute] = State{
			Visible:  visible,
			Required: visible && f.IsRequired(data),
			Disabled: f.IsDisabled(data),
		}
	})
	return out, err
}

func (r *Resolver) walk(data map[string]any, fn func(f *Field, visible bool)) error {
	for _, el := range r.schema {
		containerVisible := true
		switch c := el.(type) {
		case *Group:
			containerVisible = c.IsVisible(data)
		case *Section:
			containerVisible = c.IsVisible(data)
		}
		for _, f := range el.Fields() {
			if !containerVisible {
				fn(f, false)
				continue
			}
			visible, err := r.IsVisible(f, data)
			if err != nil {
				return err
			}
			fn(f, visible)
		}
	}
	return nil
}
