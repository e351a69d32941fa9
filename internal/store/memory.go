package store

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store. Tables are created on first write.
// A transaction holds the write lock until it commits or rolls back, so
// other callers never see its uncommitted writes.
type Memory struct {
	mu sync.RWMutex
	st *memState
}

var _ Store = (*Memory)(nil)

// memState holds the data. Its methods take no locks.
type memState struct {
	tables map[string]map[string]map[string]any // table -> id -> row
	pivots map[string][]map[string]string      // pivot table -> rows
	now    func() time.Time
}

// memTx is the Store handed to a transaction body; the enclosing
// Memory.Transaction already holds the write lock.
type memTx struct {
	*memState
}

var _ Store = memTx{}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{st: &memState{
		tables: make(map[string]map[string]map[string]any),
		pivots: make(map[string][]map[string]string),
		now:    func() time.Time { return time.Now().UTC() },
	}}
}

// Seed inserts rows as-is (ids included) without timestamps. Test helper
// and fixture loader.
func (s *Memory) Seed(table string, rows ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.st.table(table)
	for _, r := range rows {
		cp := copyRow(r)
		id := IDString(cp["id"])
		if id == "" {
			id = NewID()
		}
		cp["id"] = id
		t[id] = cp
	}
}

// Attach inserts one pivot row without any checks.
func (s *Memory) Attach(p Pivot, parentID, relatedID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.pivots[p.Table] = append(s.st.pivots[p.Table], map[string]string{p.ParentKey: parentID, p.RelatedKey: relatedID})
}

func (s *Memory) Paginate(ctx context.Context, q *Query, page, perPage int) (*Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.Paginate(ctx, q, page, perPage)
}

func (s *Memory) Find(ctx context.Context, m *Model, id string, with ...string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.Find(ctx, m, id, with...)
}

func (s *Memory) FindMany(ctx context.Context, m *Model, ids []string, with ...string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.FindMany(ctx, m, ids, with...)
}

func (s *Memory) Create(ctx context.Context, m *Model, attrs map[string]any) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Create(ctx, m, attrs)
}

func (s *Memory) Update(ctx context.Context, m *Model, id string, attrs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Update(ctx, m, id, attrs)
}

func (s *Memory) UpdateMany(ctx context.Context, m *Model, ids []string, attrs map[string]any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpdateMany(ctx, m, ids, attrs)
}

func (s *Memory) DeleteMany(ctx context.Context, m *Model, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.DeleteMany(ctx, m, ids)
}

func (s *Memory) Exists(ctx context.Context, table, column string, value any, exceptID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.Exists(ctx, table, column, value, exceptID)
}

func (s *Memory) RelatedIDs(ctx context.Context, p Pivot, parentID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.RelatedIDs(ctx, p, parentID)
}

func (s *Memory) Sync(ctx context.Context, p Pivot, parentID string, relatedIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Sync(ctx, p, parentID, relatedIDs)
}

func (s *Memory) DetachFromOthers(ctx context.Context, p Pivot, parentID string, relatedIDs []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.DetachFromOthers(ctx, p, parentID, relatedIDs)
}

// Transaction serializes with every other write and read. On error or
// panic the data written through tx is rolled back.
func (s *Memory) Transaction(ctx context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.atomically(fn)
}

// Transaction nests as a savepoint: a failing inner body undoes only its
// own writes.
func (tx memTx) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return tx.atomically(fn)
}

func (st *memState) atomically(fn func(tx Store) error) (err error) {
	snap := st.snapshot()
	defer func() {
		if r := recover(); r != nil {
			st.restore(snap)
			panic(r)
		}
		if err != nil {
			st.restore(snap)
		}
	}()
	return fn(memTx{st})
}

func (st *memState) table(name string) map[string]map[string]any {
	t := st.tables[name]
	if t == nil {
		t = make(map[string]map[string]any)
		st.tables[name] = t
	}
	return t
}

func (st *memState) Paginate(ctx context.Context, q *Query, page, perPage int) (*Page, error) {
	if err := q.Err(); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 15
	}

	rows := make([]map[string]any, 0)
	for _, row := range st.tables[q.Model.Table] {
		if matchAll(row, q.Wheres) && matchGroups(row, q.AnyOf) {
			rows = append(rows, row)
		}
	}
	sortRows(rows, q.Orders)

	total := int64(len(rows))
	start := (page - 1) * perPage
	if start > len(rows) {
		start = len(rows)
	}
	end := start + perPage
	if end > len(rows) {
		end = len(rows)
	}

	out := make([]*Record, 0, end-start)
	for _, row := range rows[start:end] {
		rec := NewRecord(copyRow(row))
		st.load(q.Model, rec, q.Loads)
		out = append(out, rec)
	}
	return &Page{Records: out, Total: total, Page: page, PerPage: perPage}, nil
}

func (st *memState) Find(ctx context.Context, m *Model, id string, with ...string) (*Record, error) {
	row, ok := st.tables[m.Table][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, m.Table, id)
	}
	rec := NewRecord(copyRow(row))
	st.load(m, rec, with)
	return rec, nil
}

func (st *memState) FindMany(ctx context.Context, m *Model, ids []string, with ...string) ([]*Record, error) {
	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		row, ok := st.tables[m.Table][id]
		if !ok {
			continue
		}
		rec := NewRecord(copyRow(row))
		st.load(m, rec, with)
		out = append(out, rec)
	}
	return out, nil
}

func (st *memState) Create(ctx context.Context, m *Model, attrs map[string]any) (*Record, error) {
	if err := validColumns(attrs); err != nil {
		return nil, err
	}
	row := copyRow(attrs)
	id := IDString(row[m.Key()])
	if id == "" {
		id = NewID()
	}
	t := st.table(m.Table)
	if _, dup := t[id]; dup {
		return nil, fmt.Errorf("%w: %s %s already exists", ErrConflict, m.Table, id)
	}
	now := st.now()
	row[m.Key()] = id
	row["created_at"] = now
	row["updated_at"] = now
	t[id] = row
	return NewRecord(copyRow(row)), nil
}

func (st *memState) Update(ctx context.Context, m *Model, id string, attrs map[string]any) error {
	if err := validColumns(attrs); err != nil {
		return err
	}
	row, ok := st.tables[m.Table][id]
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrNotFound, m.Table, id)
	}
	for k, v := range attrs {
		row[k] = v
	}
	row["updated_at"] = st.now()
	return nil
}

func (st *memState) UpdateMany(ctx context.Context, m *Model, ids []string, attrs map[string]any) (int64, error) {
	if err := validColumns(attrs); err != nil {
		return 0, err
	}
	now := st.now()
	var n int64
	for _, id := range ids {
		row, ok := st.tables[m.Table][id]
		if !ok {
			continue
		}
		for k, v := range attrs {
			row[k] = v
		}
		row["updated_at"] = now
		n++
	}
	return n, nil
}

func (st *memState) DeleteMany(ctx context.Context, m *Model, ids []string) (int64, error) {
	gone := make(map[string]struct{}, len(ids))
	var n int64
	for _, id := range ids {
		if _, ok := st.tables[m.Table][id]; !ok {
			continue
		}
		delete(st.tables[m.Table], id)
		gone[id] = struct{}{}
		n++
	}
	for _, rel := range m.Relations {
		if rel.Kind != BelongsToMany || rel.Pivot == nil {
			continue
		}
		kept := make([]map[string]string, 0, len(st.pivots[rel.Pivot.Table]))
		for _, row := range st.pivots[rel.Pivot.Table] {
			if _, drop := gone[row[rel.Pivot.ParentKey]]; drop {
				continue
			}
			kept = append(kept, row)
		}
		st.pivots[rel.Pivot.Table] = kept
	}
	return n, nil
}

func (st *memState) Exists(ctx context.Context, table, column string, value any, exceptID string) (bool, error) {
	if !ValidIdentifier(table) || !ValidIdentifier(column) {
		return false, fmt.Errorf("%w: %s.%s", ErrInvalidColumn, table, column)
	}
	needle := IDString(value)
	for id, row := range st.tables[table] {
		if exceptID != "" && id == exceptID {
			continue
		}
		if v, ok := row[column]; ok && v != nil && IDString(v) == needle {
			return true, nil
		}
	}
	return false, nil
}

func (st *memState) RelatedIDs(ctx context.Context, p Pivot, parentID string) ([]string, error) {
	if err := validPivot(p); err != nil {
		return nil, err
	}
	return st.relatedIDs(p, parentID), nil
}

func (st *memState) relatedIDs(p Pivot, parentID string) []string {
	var out []string
	for _, row := range st.pivots[p.Table] {
		if row[p.ParentKey] == parentID {
			out = append(out, row[p.RelatedKey])
		}
	}
	SortIDs(out)
	return out
}

func (st *memState) Sync(ctx context.Context, p Pivot, parentID string, relatedIDs []string) error {
	if err := validPivot(p); err != nil {
		return err
	}
	want := make(map[string]struct{}, len(relatedIDs))
	for _, id := range relatedIDs {
		want[id] = struct{}{}
	}

	kept := make([]map[string]string, 0, len(st.pivots[p.Table]))
	have := make(map[string]struct{})
	for _, row := range st.pivots[p.Table] {
		if row[p.ParentKey] != parentID {
			kept = append(kept, row)
			continue
		}
		if _, ok := want[row[p.RelatedKey]]; !ok {
			continue // detach
		}
		if _, dup := have[row[p.RelatedKey]]; dup {
			continue
		}
		have[row[p.RelatedKey]] = struct{}{}
		kept = append(kept, row)
	}
	for _, id := range relatedIDs {
		if _, ok := have[id]; ok {
			continue
		}
		have[id] = struct{}{}
		kept = append(kept, map[string]string{p.ParentKey: parentID, p.RelatedKey: id})
	}
	st.pivots[p.Table] = kept
	return nil
}

func (st *memState) DetachFromOthers(ctx context.Context, p Pivot, parentID string, relatedIDs []string) (int64, error) {
	if err := validPivot(p); err != nil {
		return 0, err
	}
	targets := make(map[string]struct{}, len(relatedIDs))
	for _, id := range relatedIDs {
		targets[id] = struct{}{}
	}
	kept := make([]map[string]string, 0, len(st.pivots[p.Table]))
	var n int64
	for _, row := range st.pivots[p.Table] {
		_, hit := targets[row[p.RelatedKey]]
		if hit && row[p.ParentKey] != parentID {
			n++
			continue
		}
		kept = append(kept, row)
	}
	st.pivots[p.Table] = kept
	return n, nil
}

type memorySnapshot struct {
	tables map[string]map[string]map[string]any
	pivots map[string][]map[string]string
}

func (st *memState) snapshot() memorySnapshot {
	snap := memorySnapshot{
		tables: make(map[string]map[string]map[string]any, len(st.tables)),
		pivots: make(map[string][]map[string]string, len(st.pivots)),
	}
	for name, rows := range st.tables {
		t := make(map[string]map[string]any, len(rows))
		for id, row := range rows {
			t[id] = copyRow(row)
		}
		snap.tables[name] = t
	}
	for name, rows := range st.pivots {
		list := make([]map[string]string, len(rows))
		for i, row := range rows {
			list[i] = map[string]string{}
			for k, v := range row {
				list[i][k] = v
			}
		}
		snap.pivots[name] = list
	}
	return snap
}

func (st *memState) restore(snap memorySnapshot) {
	st.tables = snap.tables
	st.pivots = snap.pivots
}

func (st *memState) load(m *Model, rec *Record, with []string) {
	for _, name := range with {
		rel, ok := m.Relation(name)
		if !ok {
			continue
		}
		switch rel.Kind {
		case BelongsTo:
			fk := IDString(rec.Attributes[rel.ForeignKey])
			if row, ok := st.tables[rel.Table][fk]; ok && fk != "" {
				rec.SetRelation(name, NewRecord(copyRow(row)))
			} else {
				rec.SetRelation(name, (*Record)(nil))
			}
		case BelongsToMany:
			ids := st.relatedIDs(*rel.Pivot, rec.ID())
			list := make([]*Record, 0, len(ids))
			for _, id := range ids {
				if row, ok := st.tables[rel.Table][id]; ok {
					list = append(list, NewRecord(copyRow(row)))
				}
			}
			rec.SetRelation(name, list)
		case HasMany:
			list := make([]*Record, 0)
			for _, row := range st.tables[rel.Table] {
				if IDString(row[rel.ForeignKey]) == rec.ID() {
					list = append(list, NewRecord(copyRow(row)))
				}
			}
			sort.Slice(list, func(i, j int) bool { return LessID(list[i].ID(), list[j].ID()) })
			rec.SetRelation(name, list)
		}
	}
}

func validColumns(attrs map[string]any) error {
	for k := range attrs {
		if !ValidIdentifier(k) {
			return fmt.Errorf("%w: %q", ErrInvalidColumn, k)
		}
	}
	return nil
}

func copyRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func matchAll(row map[string]any, wheres []Where) bool {
	for _, w := range wheres {
		if !match(row, w) {
			return false
		}
	}
	return true
}

func matchGroups(row map[string]any, groups [][]Where) bool {
	for _, group := range groups {
		hit := false
		for _, w := range group {
			if match(row, w) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func match(row map[string]any, w Where) bool {
	v, present := row[w.Column]
	null := !present || v == nil
	switch w.Op {
	case IsNull:
		return null
	case NotNull:
		return !null
	case In, NotIn:
		found := false
		for _, it := range listOf(w.Value) {
			if !null && IDString(it) == IDString(v) {
				found = true
				break
			}
		}
		if w.Op == In {
			return found
		}
		return !null && !found
	}
	if null {
		return false
	}
	switch w.Op {
	case Eq:
		return compareValues(v, w.Value) == 0
	case Neq:
		return compareValues(v, w.Value) != 0
	case Gt:
		return compareValues(v, w.Value) > 0
	case Gte:
		return compareValues(v, w.Value) >= 0
	case Lt:
		return compareValues(v, w.Value) < 0
	case Lte:
		return compareValues(v, w.Value) <= 0
	case Like:
		pattern, _ := w.Value.(string)
		return likeMatch(IDString(v), pattern)
	}
	return false
}

func listOf(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	}
	return []any{v}
}

// compareValues orders numbers numerically, times chronologically and
// everything else by string form.
func compareValues(a, b any) int {
	_, at := a.(time.Time)
	_, bt := b.(time.Time)
	if at || bt {
		ta, aok := asTime(a)
		tb, bok := asTime(b)
		if aok && bok {
			return ta.Compare(tb)
		}
	}
	af, aok := number(a)
	bf, bok := number(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(IDString(a), IDString(b))
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

// sortRows applies orders with nulls last, falling back to id ascending.
func sortRows(rows []map[string]any, orders []Order) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range orders {
			a, b := rows[i][o.Column], rows[j][o.Column]
			if a == nil || b == nil {
				if a == nil && b == nil {
					continue
				}
				return b == nil
			}
			c := compareValues(a, b)
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return LessID(IDString(rows[i]["id"]), IDString(rows[j]["id"]))
	})
}

// likeMatch implements case-insensitive SQL LIKE with backslash escapes.
func likeMatch(value, pattern string) bool {
	var b strings.Builder
	b.WriteString("(?is)^")
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			b.WriteString(".*")
		case r == '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(value)
}
