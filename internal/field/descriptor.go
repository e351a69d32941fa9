package field

import (
	"encoding/json"
	"fmt"
)

// Descriptor is the wire shape of a field.
type Descriptor struct {
	Type             Kind           `json:"type"`
	Attribute        string         `json:"attribute"`
	Label            string         `json:"label"`
	Sortable         bool           `json:"sortable"`
	Searchable       bool           `json:"searchable"`
	Required         bool           `json:"required"`
	Nullable         bool           `json:"nullable"`
	Creatable        bool           `json:"creatable"`
	Default          any            `json:"default"`
	Cols             string         `json:"cols"`
	ContainerClasses *string        `json:"containerClasses"`
	Meta             map[string]any `json:"meta"`
}

// Descriptor builds the wire descriptor. Variant config is flattened into
// meta next to the five condition keys, which are always present.
func (f *Field) Descriptor() (Descriptor, error) {
	meta := map[string]any{
		"dependsOn":    nil,
		"showWhen":     nil,
		"hideWhen":     nil,
		"requiredWhen": nil,
		"disabledWhen": nil,
	}
	for _, cfg := range f.configs() {
		if err := mergeInto(meta, cfg); err != nil {
			return Descriptor{}, fmt.Errorf("field %s: meta: %w", f.Attribute, err)
		}
	}
	if f.Help != "" {
		meta["help"] = f.Help
	}
	if f.DependsOn != nil {
		meta["dependsOn"] = f.DependsOn
	}
	switch {
	case f.ShowWhen != nil:
		meta["showWhen"] = f.ShowWhen
	case f.ShowWhenFunc != nil:
		meta["showWhen"] = f.ShowWhenFunc
	}
	switch {
	case f.HideWhen != nil:
		meta["hideWhen"] = f.HideWhen
	case f.HideWhenFunc != nil:
		meta["hideWhen"] = f.HideWhenFunc
	}
	if f.RequiredWhen != nil {
		meta["requiredWhen"] = f.RequiredWhen
	}
	if f.DisabledWhen != nil {
		meta["disabledWhen"] = f.DisabledWhen
	}

	return Descriptor{
		Type:             f.Kind,
		Attribute:        f.Attribute,
		Label:            f.Label,
		Sortable:         f.Sortable,
		Searchable:       f.Searchable,
		Required:         f.Required || f.HasRule("required"),
		Nullable:         f.Nullable,
		Creatable:        f.Creatable,
		Default:          f.Default,
		Cols:             f.Cols,
		ContainerClasses: f.ContainerClasses,
		Meta:             meta,
	}, nil
}

func (f *Field) MarshalJSON() ([]byte, error) {
	d, err := f.Descriptor()
	if err != nil {
		return nil, err
	}
	return json.Marshal(d)
}

// Fields lets a single field stand in a schema.
func (f *Field) Fields() []*Field { return []*Field{f} }

func (f *Field) configs() []any {
	var out []any
	for _, cfg := range []any{f.Select, f.Relation, f.Media, f.Date, f.Number, f.Text, f.Tag, f.Server, f.JSON} {
		if !isNilPointer(cfg) {
			out = append(out, cfg)
		}
	}
	return out
}

func isNilPointer(v any) bool {
	switch t := v.(type) {
	case *SelectConfig:
		return t == nil
	case *RelationConfig:
		return t == nil
	case *MediaConfig:
		return t == nil
	case *DateConfig:
		return t == nil
	case *NumberConfig:
		return t == nil
	case *TextConfig:
		return t == nil
	case *TagConfig:
		return t == nil
	case *ServerConfig:
		return t == nil
	case *JSONConfig:
		return t == nil
	}
	return v == nil
}
