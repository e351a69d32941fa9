package field

import "encoding/json"

// Option is one choice of a select field.
type Option struct {
	Value any    `json:"value"`
	Label string `json:"label"`
}

// SelectConfig configures select fields. With Multiple and Resource set the
// value is a related-id collection synced through a pivot.
type SelectConfig struct {
	Options              []Option `json:"options"`
	Multiple             bool     `json:"multiple"`
	Resource             string   `json:"resource,omitempty"`
	Relation             string   `json:"relation,omitempty"`
	EnforceUniqueRelated bool     `json:"enforceUniqueRelated,omitempty"`
}

// RelationConfig configures belongs_to, belongs_to_many and has_many.
type RelationConfig struct {
	Resource             string `json:"resource"`
	Relation             string `json:"relation"`
	TitleAttribute       string `json:"titleAttribute"`
	Searchable           bool   `json:"searchable"`
	EnforceUniqueRelated bool   `json:"enforceUniqueRelated"`
}

// MediaConfig configures media and image fields.
type MediaConfig struct {
	Collection string   `json:"collection"`
	Multiple   bool     `json:"multiple"`
	Accept     []string `json:"accept,omitempty"`
	MaxSize    int64    `json:"maxSize,omitempty"`
}

// DateConfig carries the Go layout used for output.
type DateConfig struct {
	Format  string `json:"format"`
	MinDate string `json:"minDate,omitempty"`
	MaxDate string `json:"maxDate,omitempty"`
}

// NumberConfig bounds a number input.
type NumberConfig struct {
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Step *float64 `json:"step,omitempty"`
}

// TextConfig covers text, textarea, email and password inputs.
type TextConfig struct {
	Placeholder string `json:"placeholder,omitempty"`
	MaxLength   int    `json:"maxLength,omitempty"`
	Rows        int    `json:"rows,omitempty"`
}

// TagConfig configures tag_input.
type TagConfig struct {
	Suggestions []string `json:"suggestions,omitempty"`
	Separator   string   `json:"separator"`
}

// ServerConfig configures multi_select_server: options are fetched from
// Endpoint as the user types.
type ServerConfig struct {
	Endpoint             string `json:"endpoint"`
	Resource             string `json:"resource,omitempty"`
	Relation             string `json:"relation,omitempty"`
	Multiple             bool   `json:"multiple"`
	MinChars             int    `json:"minChars"`
	EnforceUniqueRelated bool   `json:"enforceUniqueRelated,omitempty"`
}

// JSONConfig configures json fields.
type JSONConfig struct {
	Schema map[string]any `json:"schema,omitempty"`
	Pretty bool           `json:"pretty"`
}

// mergeInto flattens a config struct into the meta bag using its json tags.
func mergeInto(meta map[string]any, cfg any) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var flat map[string]any
	if err := json.Unmarshal(b, &flat); err != nil {
		return err
	}
	for k, v := range flat {
		meta[k] = v
	}
	return nil
}
