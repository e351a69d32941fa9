package field

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"resourcekit/internal/condition"
	"resourcekit/internal/store"
)

// Kind is the wire "type" of a field.
type Kind string

const (
	KindText              Kind = "text"
	KindTextarea          Kind = "textarea"
	KindNumber            Kind = "number"
	KindBoolean           Kind = "boolean"
	KindDate              Kind = "date"
	KindDateTime          Kind = "datetime"
	KindEmail             Kind = "email"
	KindSelect            Kind = "select"
	KindBelongsTo         Kind = "belongs_to"
	KindBelongsToMany     Kind = "belongs_to_many"
	KindHasMany           Kind = "has_many"
	KindMedia             Kind = "media"
	KindImage             Kind = "image"
	KindPassword          Kind = "password"
	KindJSON              Kind = "json"
	KindTagInput          Kind = "tag_input"
	KindIconPicker        Kind = "icon_picker"
	KindMultiSelectServer Kind = "multi_select_server"
	KindID                Kind = "id"
	KindHidden            Kind = "hidden"
)

// transformFunc formats a stored value for output. rec is the row being
// transformed, with whatever relations were loaded.
type transformFunc func(f *Field, value any, rec *store.Record) any

// behaviour is what differs between kinds beyond their config.
type behaviour struct {
	transform transformFunc
	// relational values are id collections synced through a pivot
	relational func(f *Field) bool
	// persisted values are written to the entity's own columns
	persisted bool
}

var behaviours = map[Kind]behaviour{
	KindText:              {transform: passThrough, persisted: true},
	KindTextarea:          {transform: passThrough, persisted: true},
	KindEmail:             {transform: passThrough, persisted: true},
	KindHidden:            {transform: passThrough, persisted: true},
	KindIconPicker:        {transform: passThrough, persisted: true},
	KindMedia:             {transform: passThrough, persisted: true},
	KindImage:             {transform: passThrough, persisted: true},
	KindNumber:            {transform: toNumber, persisted: true},
	KindBoolean:           {transform: toBool, persisted: true},
	KindDate:              {transform: formatDate, persisted: true},
	KindDateTime:          {transform: formatDate, persisted: true},
	KindSelect:            {transform: selectValue, relational: selectRelational, persisted: true},
	KindBelongsTo:         {transform: foreignKey, persisted: true},
	KindBelongsToMany:     {transform: relatedIDs, relational: always, persisted: true},
	KindHasMany:           {transform: relatedIDs},
	KindPassword:          {transform: func(*Field, any, *store.Record) any { return nil }, persisted: true},
	KindJSON:              {transform: decodeJSON, persisted: true},
	KindTagInput:          {transform: splitTags, persisted: true},
	KindMultiSelectServer: {transform: selectValue, relational: serverRelational, persisted: true},
	KindID:                {transform: foreignKey},
}

func (f *Field) behaviour() behaviour {
	if b, ok := behaviours[f.Kind]; ok {
		return b
	}
	return behaviour{transform: passThrough, persisted: true}
}

// TransformValue formats value (the raw stored attribute) for output.
func (f *Field) TransformValue(value any, rec *store.Record) any {
	return f.behaviour().transform(f, value, rec)
}

// IsRelational reports whether the value is a related-id collection that
// must be synced through a pivot instead of written to a column.
func (f *Field) IsRelational() bool {
	b := f.behaviour()
	return b.relational != nil && b.relational(f)
}

// IsPersisted reports whether incoming values are written at all.
func (f *Field) IsPersisted() bool {
	return f.behaviour().persisted
}

// StoresJSON reports whether the column holds a JSON document rather than
// a scalar.
func (f *Field) StoresJSON() bool {
	switch f.Kind {
	case KindJSON, KindTagInput:
		return true
	case KindSelect:
		return f.Select != nil && f.Select.Multiple && !f.IsRelational()
	case KindMultiSelectServer:
		return !f.IsRelational()
	case KindMedia, KindImage:
		return f.Media != nil && f.Media.Multiple
	}
	return false
}

func always(*Field) bool { return true }

func selectRelational(f *Field) bool {
	return f.Select != nil && f.Select.Multiple && f.Select.Resource != ""
}

func serverRelational(f *Field) bool {
	return f.Server != nil && f.Server.Resource != ""
}

func passThrough(_ *Field, value any, _ *store.Record) any { return value }

func toNumber(_ *Field, value any, _ *store.Record) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return n
	}
	if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return n
	}
	return value
}

func toBool(f *Field, value any, _ *store.Record) any {
	if value == nil && f.Nullable {
		return nil
	}
	switch t := value.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err == nil {
			return b
		}
	}
	return !condition.IsEmpty(value)
}

func formatDate(f *Field, value any, _ *store.Record) any {
	t, ok := value.(time.Time)
	if !ok {
		return value
	}
	layout := "2006-01-02"
	if f.Date != nil && f.Date.Format != "" {
		layout = f.Date.Format
	}
	return t.Format(layout)
}

// selectValue returns the related ids for relation-backed selects, sorted
// so the output never depends on attach order.
func selectValue(f *Field, value any, rec *store.Record) any {
	if selectRelational(f) || serverRelational(f) {
		if name := f.RelationName(); rec.RelationLoaded(name) {
			return rec.RelatedIDs(name)
		}
	}
	return value
}

func foreignKey(_ *Field, value any, _ *store.Record) any {
	if value == nil {
		return nil
	}
	return store.IDString(value)
}

func relatedIDs(f *Field, value any, rec *store.Record) any {
	name := f.RelationName()
	if rec.RelationLoaded(name) {
		return rec.RelatedIDs(name)
	}
	if value == nil {
		return []string{}
	}
	return value
}

func decodeJSON(_ *Field, value any, _ *store.Record) any {
	var raw []byte
	switch t := value.(type) {
	case string:
		raw = []byte(t)
	case []byte:
		raw = t
	case json.RawMessage:
		raw = t
	default:
		return value
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return value
	}
	return out
}

func splitTags(f *Field, value any, _ *store.Record) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	sep := ","
	if f.Tag != nil && f.Tag.Separator != "" {
		sep = f.Tag.Separator
	}
	out := []string{}
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
