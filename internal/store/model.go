package store

import (
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
)

// RelationKind is the shape of a model relation.
type RelationKind string

const (
	BelongsTo     RelationKind = "belongs_to"
	BelongsToMany RelationKind = "belongs_to_many"
	HasMany       RelationKind = "has_many"
)

// Pivot describes the join table of a belongs_to_many relation.
type Pivot struct {
	Table      string
	ParentKey  string // column holding the owning entity id
	RelatedKey string // column holding the related entity id
}

// Relation is a named relation declared on a model.
//
// For belongs_to, ForeignKey is the column on this model's table.
// For has_many, ForeignKey is the column on the related table.
type Relation struct {
	Name       string
	Kind       RelationKind
	Table      string
	ForeignKey string
	Pivot      *Pivot
	Hidden     []string // columns of the related table never serialized
}

// Model is the backing-store contract of a resource: which table, which
// relations can be eager loaded, which columns never leave the store.
type Model struct {
	Table      string
	PrimaryKey string
	Relations  map[string]Relation
	Hidden     []string
	// JSON lists columns holding JSON documents. Stores that keep values
	// natively ignore it.
	JSON []string
}

// NewModel builds a model with the default "id" primary key.
func NewModel(table string, relations ...Relation) *Model {
	m := &Model{Table: table, PrimaryKey: "id", Relations: map[string]Relation{}, Hidden: DefaultHidden()}
	for _, r := range relations {
		m.AddRelation(r)
	}
	return m
}

// AddRelation registers r, filling in conventional names for whatever is
// left empty.
func (m *Model) AddRelation(r Relation) {
	if m.Relations == nil {
		m.Relations = map[string]Relation{}
	}
	if r.Table == "" {
		r.Table = TableName(r.Name)
	}
	if r.Hidden == nil {
		r.Hidden = DefaultHidden()
	}
	switch r.Kind {
	case BelongsTo:
		if r.ForeignKey == "" {
			r.ForeignKey = inflection.Singular(r.Name) + "_id"
		}
	case HasMany:
		if r.ForeignKey == "" {
			r.ForeignKey = inflection.Singular(m.Table) + "_id"
		}
	case BelongsToMany:
		if r.Pivot == nil {
			r.Pivot = &Pivot{}
		}
		if r.Pivot.Table == "" {
			r.Pivot.Table = PivotTable(m.Table, r.Table)
		}
		if r.Pivot.ParentKey == "" {
			r.Pivot.ParentKey = inflection.Singular(m.Table) + "_id"
		}
		if r.Pivot.RelatedKey == "" {
			r.Pivot.RelatedKey = inflection.Singular(r.Table) + "_id"
		}
	}
	m.Relations[r.Name] = r
}

// DefaultHidden lists the columns hidden unless a model says otherwise.
func DefaultHidden() []string {
	return []string{"password", "remember_token"}
}

// IsJSON reports whether column is listed in JSON.
func (m *Model) IsJSON(column string) bool {
	if m == nil {
		return false
	}
	for _, c := range m.JSON {
		if c == column {
			return true
		}
	}
	return false
}

// HasRelation reports whether name is declared on the model.
func (m *Model) HasRelation(name string) bool {
	if m == nil {
		return false
	}
	_, ok := m.Relations[name]
	return ok
}

// Relation returns the named relation.
func (m *Model) Relation(name string) (Relation, bool) {
	if m == nil {
		return Relation{}, false
	}
	r, ok := m.Relations[name]
	return r, ok
}

// Key returns the primary key column.
func (m *Model) Key() string {
	if m == nil || m.PrimaryKey == "" {
		return "id"
	}
	return m.PrimaryKey
}

// IsHidden reports whether column is excluded from serialized output.
func (m *Model) IsHidden(column string) bool {
	if m == nil {
		return false
	}
	for _, h := range m.Hidden {
		if h == column {
			return true
		}
	}
	return false
}

// TableName derives a table from a resource or relation name:
// "BlogPost" -> "blog_posts", "role" -> "roles".
func TableName(name string) string {
	return inflection.Plural(snake(name))
}

// PivotTable is the conventional join table: both tables singularized,
// sorted alphabetically, joined by "_" (roles + users -> role_user).
func PivotTable(a, b string) string {
	parts := []string{inflection.Singular(snake(a)), inflection.Singular(snake(b))}
	sort.Strings(parts)
	return parts[0] + "_" + parts[1]
}

func snake(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && s[i-1] != '_' && s[i-1] != '-' {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		if r == '-' || r == ' ' {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
