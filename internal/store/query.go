package store

import (
	"fmt"
	"regexp"
	"strings"
)

// Op is a where-clause operator. Values are always bound, never spliced
// into statements.
type Op string

const (
	Eq      Op = "="
	Neq     Op = "!="
	Gt      Op = ">"
	Gte     Op = ">="
	Lt      Op = "<"
	Lte     Op = "<="
	Like    Op = "like"
	In      Op = "in"
	NotIn   Op = "not_in"
	IsNull  Op = "null"
	NotNull Op = "not_null"
)

// Where is one predicate on a column.
type Where struct {
	Column string
	Op     Op
	Value  any
}

// Order is one sort key.
type Order struct {
	Column string
	Desc   bool
}

// Query collects predicates, sort keys and eager loads for a model. Any
// column that is not a plain identifier poisons the query: Err reports it
// and stores refuse to run it.
type Query struct {
	Model  *Model
	Wheres []Where
	AnyOf  [][]Where
	Orders []Order
	Loads  []string
	err    error
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s may be used as a column or table name.
func ValidIdentifier(s string) bool {
	return identRe.MatchString(s)
}

// NewQuery starts a query on m.
func NewQuery(m *Model) *Query {
	return &Query{Model: m}
}

// Err returns the first invalid column seen, if any.
func (q *Query) Err() error { return q.err }

func (q *Query) check(column string) bool {
	if ValidIdentifier(column) {
		return true
	}
	if q.err == nil {
		q.err = fmt.Errorf("%w: %q", ErrInvalidColumn, column)
	}
	return false
}

// Where adds an AND predicate.
func (q *Query) Where(column string, op Op, value any) *Query {
	if q.check(column) {
		q.Wheres = append(q.Wheres, Where{Column: column, Op: op, Value: value})
	}
	return q
}

// WhereIn restricts column to values.
func (q *Query) WhereIn(column string, values []any) *Query {
	return q.Where(column, In, values)
}

// WhereAny adds a parenthesized OR group, ANDed with everything else.
func (q *Query) WhereAny(conds ...Where) *Query {
	group := make([]Where, 0, len(conds))
	for _, c := range conds {
		if q.check(c.Column) {
			group = append(group, c)
		}
	}
	if len(group) > 0 {
		q.AnyOf = append(q.AnyOf, group)
	}
	return q
}

// Search ORs a LIKE %term% over columns.
func (q *Query) Search(columns []string, term string) *Query {
	term = strings.TrimSpace(term)
	if term == "" || len(columns) == 0 {
		return q
	}
	pattern := "%" + escapeLike(term) + "%"
	conds := make([]Where, 0, len(columns))
	for _, c := range columns {
		conds = append(conds, Where{Column: c, Op: Like, Value: pattern})
	}
	return q.WhereAny(conds...)
}

// OrderBy appends a sort key.
func (q *Query) OrderBy(column string, desc bool) *Query {
	if q.check(column) {
		q.Orders = append(q.Orders, Order{Column: column, Desc: desc})
	}
	return q
}

// With asks for relations to be eager loaded. Names the model does not
// declare are ignored by stores.
func (q *Query) With(relations ...string) *Query {
	for _, r := range relations {
		if r == "" {
			continue
		}
		dup := false
		for _, have := range q.Loads {
			if have == r {
				dup = true
				break
			}
		}
		if !dup {
			q.Loads = append(q.Loads, r)
		}
	}
	return q
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
