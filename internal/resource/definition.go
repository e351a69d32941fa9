// Package resource declares resources: which fields each view shows, how
// the resource is stored, and which filters and actions it offers.
package resource

import (
	"errors"

	"resourcekit/internal/field"
	"resourcekit/internal/store"
)

var (
	// ErrResourceNotFound is returned for keys no factory is registered under.
	ErrResourceNotFound = errors.New("resource: not found")
	// ErrActionNotFound is returned for action keys a resource does not declare.
	ErrActionNotFound = errors.New("resource: action not found")
)

// View selects one of the field lists.
type View string

const (
	ViewIndex View = "index"
	ViewShow  View = "show"
	ViewForm  View = "form"
)

// ParseView maps a request value onto a view; anything unknown is the form.
func ParseView(s string) View {
	switch View(s) {
	case ViewIndex, ViewShow:
		return View(s)
	}
	return ViewForm
}

// Definition is the read-only contract the resource service works from.
// Definitions are built fresh for every request and never shared.
type Definition struct {
	Key   string
	Label string
	Model *store.Model

	Index field.Schema
	Show  field.Schema
	Form  field.Schema

	Filters []Filter
	Actions []Action

	Searchable    bool
	SearchColumns []string
	SortColumns   []string
	PerPage       int
}

// DefaultPerPage is the page size of definitions that set none.
const DefaultPerPage = 15

// New starts a definition whose model is derived from the fields once
// Finalize runs.
func New(key string) *Definition {
	return &Definition{Key: key, Label: field.DefaultLabel(key)}
}

// Finalize fills defaults: show and form fall back to the index list,
// search columns to searchable fields, and the model to one derived from
// the relational fields.
func (d *Definition) Finalize() *Definition {
	if d.Show == nil {
		d.Show = d.Index
	}
	if d.Form == nil {
		d.Form = d.Show
	}
	if d.PerPage <= 0 {
		d.PerPage = DefaultPerPage
	}
	if len(d.SearchColumns) == 0 {
		for _, f := range d.Fields() {
			if f.Searchable && f.IsPersisted() && !f.IsRelational() {
				d.SearchColumns = append(d.SearchColumns, f.Attribute)
			}
		}
	}
	if d.Model == nil {
		d.Model = ModelFor(store.TableName(d.Key), d.Fields())
	}
	return d
}

// ModelFor derives a store model from fields: belongs_to fields become
// belongs_to relations keyed by their attribute, relational fields become
// belongs_to_many and has_many fields has_many.
func ModelFor(table string, fields []*field.Field) *store.Model {
	m := store.NewModel(table)
	for _, f := range fields {
		if f.IsPersisted() && f.StoresJSON() {
			m.JSON = append(m.JSON, f.Attribute)
		}
		name := f.RelationName()
		if name == "" || m.HasRelation(name) {
			continue
		}
		related := store.TableName(f.RelatedResource())
		switch {
		case f.Kind == field.KindBelongsTo:
			m.AddRelation(store.Relation{Name: name, Kind: store.BelongsTo, Table: related, ForeignKey: f.Attribute})
		case f.Kind == field.KindHasMany:
			m.AddRelation(store.Relation{Name: name, Kind: store.HasMany, Table: related})
		case f.IsRelational():
			m.AddRelation(store.Relation{Name: name, Kind: store.BelongsToMany, Table: related})
		}
	}
	return m
}

// Schema returns the field list of a view.
func (d *Definition) Schema(v View) field.Schema {
	switch v {
	case ViewIndex:
		return d.Index
	case ViewShow:
		return d.Show
	}
	return d.Form
}

// Fields is every field across the three views, first declaration wins.
func (d *Definition) Fields() []*field.Field {
	seen := map[string]struct{}{}
	var out []*field.Field
	for _, s := range []field.Schema{d.Index, d.Show, d.Form} {
		for _, f := range s.Fields() {
			if _, dup := seen[f.Attribute]; dup {
				continue
			}
			seen[f.Attribute] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

// SortWhitelist is id, created_at, updated_at, every sortable field and
// the extra sort columns.
func (d *Definition) SortWhitelist() []string {
	out := []string{"id", "created_at", "updated_at"}
	seen := map[string]struct{}{"id": {}, "created_at": {}, "updated_at": {}}
	add := func(col string) {
		if _, dup := seen[col]; dup {
			return
		}
		seen[col] = struct{}{}
		out = append(out, col)
	}
	for _, f := range d.Fields() {
		if f.Sortable && f.IsPersisted() && !f.IsRelational() {
			add(f.Attribute)
		}
	}
	for _, col := range d.SortColumns {
		add(col)
	}
	return out
}

// CanSortBy reports whether column is on the sort whitelist.
func (d *Definition) CanSortBy(column string) bool {
	for _, c := range d.SortWhitelist() {
		if c == column {
			return true
		}
	}
	return false
}

// Filter finds a declared filter by key.
func (d *Definition) Filter(key string) (Filter, bool) {
	for _, f := range d.Filters {
		if f.Key() == key {
			return f, true
		}
	}
	return nil, false
}

// Action finds a declared action by key.
func (d *Definition) Action(key string) (Action, bool) {
	for _, a := range d.Actions {
		if a.Key() == key {
			return a, true
		}
	}
	return nil, false
}
