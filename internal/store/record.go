package store

import (
	"fmt"
	"sort"
	"time"
)

// Record is one row plus whatever relations were eager loaded. Relation
// values are *Record (belongs_to, nil when unset) or []*Record.
type Record struct {
	Attributes map[string]any
	Relations  map[string]any
}

// NewRecord wraps attrs.
func NewRecord(attrs map[string]any) *Record {
	if attrs == nil {
		attrs = map[string]any{}
	}
	return &Record{Attributes: attrs, Relations: map[string]any{}}
}

// ID returns the primary key as a string.
func (r *Record) ID() string {
	if r == nil {
		return ""
	}
	return IDString(r.Attributes["id"])
}

// Get returns an attribute value.
func (r *Record) Get(key string) any {
	if r == nil {
		return nil
	}
	return r.Attributes[key]
}

// SetRelation stores a loaded relation.
func (r *Record) SetRelation(name string, value any) {
	if r.Relations == nil {
		r.Relations = map[string]any{}
	}
	r.Relations[name] = value
}

// RelationLoaded reports whether name was eager loaded.
func (r *Record) RelationLoaded(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.Relations[name]
	return ok
}

// One returns a loaded belongs_to relation.
func (r *Record) One(name string) *Record {
	if r == nil {
		return nil
	}
	rec, _ := r.Relations[name].(*Record)
	return rec
}

// Many returns a loaded to-many relation.
func (r *Record) Many(name string) []*Record {
	if r == nil {
		return nil
	}
	recs, _ := r.Relations[name].([]*Record)
	return recs
}

// RelatedIDs lists the ids of a loaded to-many relation, sorted so the
// result never depends on attach order.
func (r *Record) RelatedIDs(name string) []string {
	recs := r.Many(name)
	out := make([]string, 0, len(recs))
	for _, rel := range recs {
		out = append(out, rel.ID())
	}
	SortIDs(out)
	return out
}

// Clone copies attributes and the relation map (related records are
// cloned too).
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := NewRecord(make(map[string]any, len(r.Attributes)))
	for k, v := range r.Attributes {
		out.Attributes[k] = v
	}
	for k, v := range r.Relations {
		switch t := v.(type) {
		case *Record:
			out.Relations[k] = t.Clone()
		case []*Record:
			list := make([]*Record, len(t))
			for i, it := range t {
				list[i] = it.Clone()
			}
			out.Relations[k] = list
		default:
			out.Relations[k] = v
		}
	}
	return out
}

// ToMap serializes the record: attributes minus the model's hidden
// columns, timestamps as RFC3339, loaded relations nested under their name.
func (r *Record) ToMap(m *Model) map[string]any {
	if r == nil {
		return nil
	}
	out := make(map[string]any, len(r.Attributes)+len(r.Relations))
	for k, v := range r.Attributes {
		if m.IsHidden(k) {
			continue
		}
		if t, ok := v.(time.Time); ok {
			out[k] = t.UTC().Format(time.RFC3339)
			continue
		}
		out[k] = v
	}
	for name, v := range r.Relations {
		related := &Model{Hidden: DefaultHidden()}
		if rel, ok := m.Relation(name); ok {
			related.Hidden = rel.Hidden
		}
		key := name
		if _, clash := out[key]; clash {
			// attribute wins, relation goes under a prefixed key
			key = "relation." + name
		}
		switch t := v.(type) {
		case *Record:
			out[key] = t.ToMap(related)
		case []*Record:
			list := make([]map[string]any, 0, len(t))
			for _, it := range t {
				list = append(list, it.ToMap(related))
			}
			out[key] = list
		default:
			out[key] = nil
		}
	}
	return out
}

// IDString normalizes ids arriving as strings, JSON numbers or ints.
func IDString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprint(t)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

// IDStrings normalizes a list of ids and drops empties and duplicates,
// keeping first-seen order.
func IDStrings(values []any) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		id := IDString(v)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// SortIDs orders ids ascending. ULIDs sort by creation time this way.
func SortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return LessID(ids[i], ids[j]) })
}

// LessID orders numeric-looking ids numerically and ULIDs lexically.
func LessID(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
