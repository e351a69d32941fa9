package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"resourcekit/internal/store"
)

// Store runs store.Store against PostgreSQL through gorm. Tables are
// addressed by name and rows travel as maps, so no Go struct exists per
// resource.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) table(ctx context.Context, name string) *gorm.DB {
	return s.db.WithContext(ctx).Table(name)
}

func (s *Store) Paginate(ctx context.Context, q *store.Query, page, perPage int) (*store.Page, error) {
	if err := q.Err(); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 15
	}
	if !store.ValidIdentifier(q.Model.Table) {
		return nil, fmt.Errorf("%w: %q", store.ErrInvalidColumn, q.Model.Table)
	}

	tx := s.table(ctx, q.Model.Table)
	for _, w := range q.Wheres {
		tx = tx.Where(expression(w))
	}
	for _, group := range q.AnyOf {
		exprs := make([]clause.Expression, 0, len(group))
		for _, w := range group {
			exprs = append(exprs, expression(w))
		}
		if len(exprs) == 1 {
			// a lone OrConditions would be ORed onto the previous predicate
			tx = tx.Where(exprs[0])
			continue
		}
		tx = tx.Where(clause.Or(exprs...))
	}

	var total int64
	if err := tx.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, translate(err)
	}

	tiebreak := true
	for _, o := range q.Orders {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: o.Column}, Desc: o.Desc})
		if o.Column == q.Model.Key() {
			tiebreak = false
		}
	}
	if tiebreak {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: q.Model.Key()}})
	}

	var rows []map[string]any
	if err := tx.Offset((page - 1) * perPage).Limit(perPage).Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	records := s.records(q.Model, rows)
	if err := s.load(ctx, q.Model, records, q.Loads); err != nil {
		return nil, err
	}
	return &store.Page{Records: records, Total: total, Page: page, PerPage: perPage}, nil
}

func (s *Store) Find(ctx context.Context, m *store.Model, id string, with ...string) (*store.Record, error) {
	row := map[string]any{}
	err := s.table(ctx, m.Table).Where(eq(m.Key(), id)).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s %s", store.ErrNotFound, m.Table, id)
		}
		return nil, translate(err)
	}
	records := s.records(m, []map[string]any{row})
	if err := s.load(ctx, m, records, with); err != nil {
		return nil, err
	}
	return records[0], nil
}

func (s *Store) FindMany(ctx context.Context, m *store.Model, ids []string, with ...string) ([]*store.Record, error) {
	if len(ids) == 0 {
		return []*store.Record{}, nil
	}
	var rows []map[string]any
	if err := s.table(ctx, m.Table).Where(in(m.Key(), ids)).Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	byID := make(map[string]*store.Record, len(rows))
	for _, rec := range s.records(m, rows) {
		byID[rec.ID()] = rec
	}
	out := make([]*store.Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			out = append(out, rec)
		}
	}
	if err := s.load(ctx, m, out, with); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, m *store.Model, attrs map[string]any) (*store.Record, error) {
	row, err := s.encode(m, attrs)
	if err != nil {
		return nil, err
	}
	if store.IDString(row[m.Key()]) == "" {
		row[m.Key()] = store.NewID()
	}
	now := s.now()
	row["created_at"], row["updated_at"] = now, now
	if err := s.table(ctx, m.Table).Create(row).Error; err != nil {
		return nil, translate(err)
	}
	return s.Find(ctx, m, store.IDString(row[m.Key()]))
}

func (s *Store) Update(ctx context.Context, m *store.Model, id string, attrs map[string]any) error {
	row, err := s.encode(m, attrs)
	if err != nil {
		return err
	}
	row["updated_at"] = s.now()
	res := s.table(ctx, m.Table).Where(eq(m.Key(), id)).Updates(row)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s %s", store.ErrNotFound, m.Table, id)
	}
	return nil
}

func (s *Store) UpdateMany(ctx context.Context, m *store.Model, ids []string, attrs map[string]any) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	row, err := s.encode(m, attrs)
	if err != nil {
		return 0, err
	}
	row["updated_at"] = s.now()
	res := s.table(ctx, m.Table).Where(in(m.Key(), ids)).Updates(row)
	return res.RowsAffected, translate(res.Error)
}

func (s *Store) DeleteMany(ctx context.Context, m *store.Model, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if !store.ValidIdentifier(m.Table) {
		return 0, fmt.Errorf("%w: %q", store.ErrInvalidColumn, m.Table)
	}
	var n int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, name := range relationNames(m) {
			rel := m.Relations[name]
			if rel.Kind != store.BelongsToMany || rel.Pivot == nil {
				continue
			}
			if err := validPivot(*rel.Pivot); err != nil {
				return err
			}
			if err := tx.Exec("DELETE FROM ? WHERE ? IN ?",
				clause.Table{Name: rel.Pivot.Table}, clause.Column{Name: rel.Pivot.ParentKey}, ids).Error; err != nil {
				return err
			}
		}
		res := tx.Exec("DELETE FROM ? WHERE ? IN ?", clause.Table{Name: m.Table}, clause.Column{Name: m.Key()}, ids)
		n = res.RowsAffected
		return res.Error
	})
	return n, translate(err)
}

func (s *Store) Exists(ctx context.Context, table, column string, value any, exceptID string) (bool, error) {
	if !store.ValidIdentifier(table) || !store.ValidIdentifier(column) {
		return false, fmt.Errorf("%w: %s.%s", store.ErrInvalidColumn, table, column)
	}
	tx := s.table(ctx, table).Where("CAST(? AS TEXT) = ?", clause.Column{Name: column}, store.IDString(value))
	if exceptID != "" {
		tx = tx.Where(clause.Neq{Column: clause.Column{Name: "id"}, Value: exceptID})
	}
	var n int64
	if err := tx.Limit(1).Count(&n).Error; err != nil {
		return false, translate(err)
	}
	return n > 0, nil
}

func (s *Store) RelatedIDs(ctx context.Context, p store.Pivot, parentID string) ([]string, error) {
	if err := validPivot(p); err != nil {
		return nil, err
	}
	var ids []string
	if err := s.table(ctx, p.Table).Where(eq(p.ParentKey, parentID)).Pluck(p.RelatedKey, &ids).Error; err != nil {
		return nil, translate(err)
	}
	store.SortIDs(ids)
	return ids, nil
}

func (s *Store) Sync(ctx context.Context, p store.Pivot, parentID string, relatedIDs []string) error {
	if err := validPivot(p); err != nil {
		return err
	}
	ids := store.IDStrings(toAny(relatedIDs))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pivot, parent, related := clause.Table{Name: p.Table}, clause.Column{Name: p.ParentKey}, clause.Column{Name: p.RelatedKey}
		if len(ids) == 0 {
			return tx.Exec("DELETE FROM ? WHERE ? = ?", pivot, parent, parentID).Error
		}
		if err := tx.Exec("DELETE FROM ? WHERE ? = ? AND ? NOT IN ?", pivot, parent, parentID, related, ids).Error; err != nil {
			return err
		}
		rows := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, map[string]any{p.ParentKey: parentID, p.RelatedKey: id})
		}
		return tx.Table(p.Table).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	})
	return translate(err)
}

func (s *Store) DetachFromOthers(ctx context.Context, p store.Pivot, parentID string, relatedIDs []string) (int64, error) {
	if err := validPivot(p); err != nil {
		return 0, err
	}
	if len(relatedIDs) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Exec("DELETE FROM ? WHERE ? IN ? AND ? <> ?",
		clause.Table{Name: p.Table},
		clause.Column{Name: p.RelatedKey}, relatedIDs,
		clause.Column{Name: p.ParentKey}, parentID)
	return res.RowsAffected, translate(res.Error)
}

// Transaction runs fn on a store bound to one database transaction.
// Nested calls become savepoints.
func (s *Store) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, now: s.now})
	})
}

// load eager loads relations for a batch of records with one query per
// relation (two for belongs_to_many).
func (s *Store) load(ctx context.Context, m *store.Model, records []*store.Record, with []string) error {
	if len(records) == 0 {
		return nil
	}
	parentIDs := make([]string, 0, len(records))
	for _, r := range records {
		parentIDs = append(parentIDs, r.ID())
	}
	for _, name := range with {
		rel, ok := m.Relation(name)
		if !ok {
			continue
		}
		related := store.NewModel(rel.Table)
		switch rel.Kind {
		case store.BelongsTo:
			fks := make([]any, 0, len(records))
			for _, r := range records {
				fks = append(fks, r.Get(rel.ForeignKey))
			}
			byID, err := s.byID(ctx, related, store.IDStrings(fks))
			if err != nil {
				return err
			}
			for _, r := range records {
				if one, ok := byID[store.IDString(r.Get(rel.ForeignKey))]; ok {
					r.SetRelation(name, one.Clone())
				} else {
					r.SetRelation(name, (*store.Record)(nil))
				}
			}
		case store.BelongsToMany:
			if err := validPivot(*rel.Pivot); err != nil {
				return err
			}
			var links []map[string]any
			err := s.table(ctx, rel.Pivot.Table).
				Select([]string{rel.Pivot.ParentKey, rel.Pivot.RelatedKey}).
				Where(in(rel.Pivot.ParentKey, parentIDs)).
				Find(&links).Error
			if err != nil {
				return translate(err)
			}
			attached := map[string][]string{}
			var all []any
			for _, l := range links {
				parent, child := store.IDString(l[rel.Pivot.ParentKey]), store.IDString(l[rel.Pivot.RelatedKey])
				attached[parent] = append(attached[parent], child)
				all = append(all, child)
			}
			byID, err := s.byID(ctx, related, store.IDStrings(all))
			if err != nil {
				return err
			}
			for _, r := range records {
				ids := attached[r.ID()]
				store.SortIDs(ids)
				list := make([]*store.Record, 0, len(ids))
				for _, id := range ids {
					if one, ok := byID[id]; ok {
						list = append(list, one.Clone())
					}
				}
				r.SetRelation(name, list)
			}
		case store.HasMany:
			var rows []map[string]any
			if err := s.table(ctx, rel.Table).Where(in(rel.ForeignKey, parentIDs)).Find(&rows).Error; err != nil {
				return translate(err)
			}
			children := map[string][]*store.Record{}
			for _, child := range s.records(related, rows) {
				parent := store.IDString(child.Get(rel.ForeignKey))
				children[parent] = append(children[parent], child)
			}
			for _, r := range records {
				list := children[r.ID()]
				if list == nil {
					list = []*store.Record{}
				}
				sort.Slice(list, func(i, j int) bool { return store.LessID(list[i].ID(), list[j].ID()) })
				r.SetRelation(name, list)
			}
		}
	}
	return nil
}

func (s *Store) byID(ctx context.Context, m *store.Model, ids []string) (map[string]*store.Record, error) {
	out := map[string]*store.Record{}
	if len(ids) == 0 {
		return out, nil
	}
	var rows []map[string]any
	if err := s.table(ctx, m.Table).Where(in(m.Key(), ids)).Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	for _, rec := range s.records(m, rows) {
		out[rec.ID()] = rec
	}
	return out, nil
}

// records normalizes scanned rows: byte slices become strings and JSON
// columns are decoded.
func (s *Store) records(m *store.Model, rows []map[string]any) []*store.Record {
	out := make([]*store.Record, 0, len(rows))
	for _, row := range rows {
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				v = string(b)
				row[k] = v
			}
			if str, ok := v.(string); ok && m.IsJSON(k) {
				var doc any
				if json.Unmarshal([]byte(str), &doc) == nil {
					row[k] = doc
				}
			}
		}
		out = append(out, store.NewRecord(row))
	}
	return out
}

// encode copies attrs, rejecting non-identifier columns and marshaling
// JSON columns.
func (s *Store) encode(m *store.Model, attrs map[string]any) (map[string]any, error) {
	row := make(map[string]any, len(attrs)+2)
	for k, v := range attrs {
		if !store.ValidIdentifier(k) {
			return nil, fmt.Errorf("%w: %q", store.ErrInvalidColumn, k)
		}
		if m.IsJSON(k) && v != nil {
			if _, isString := v.(string); !isString {
				raw, err := json.Marshal(v)
				if err != nil {
					return nil, fmt.Errorf("pg: encode %s: %w", k, err)
				}
				v = string(raw)
			}
		}
		row[k] = v
	}
	return row, nil
}

func expression(w store.Where) clause.Expression {
	col := clause.Column{Name: w.Column}
	switch w.Op {
	case store.Neq:
		return clause.Neq{Column: col, Value: w.Value}
	case store.Gt:
		return clause.Gt{Column: col, Value: w.Value}
	case store.Gte:
		return clause.Gte{Column: col, Value: w.Value}
	case store.Lt:
		return clause.Lt{Column: col, Value: w.Value}
	case store.Lte:
		return clause.Lte{Column: col, Value: w.Value}
	case store.Like:
		// case-insensitive on any column type
		return clause.Expr{SQL: "CAST(? AS TEXT) ILIKE ?", Vars: []any{col, w.Value}}
	case store.In:
		return clause.IN{Column: col, Values: listOf(w.Value)}
	case store.NotIn:
		return clause.Not(clause.IN{Column: col, Values: listOf(w.Value)})
	case store.IsNull:
		return clause.Eq{Column: col, Value: nil}
	case store.NotNull:
		return clause.Neq{Column: col, Value: nil}
	}
	return clause.Eq{Column: col, Value: w.Value}
}

func eq(column string, value any) clause.Expression {
	return clause.Eq{Column: clause.Column{Name: column}, Value: value}
}

func in(column string, ids []string) clause.Expression {
	return clause.IN{Column: clause.Column{Name: column}, Values: toAny(ids)}
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func listOf(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		return toAny(t)
	case nil:
		return nil
	}
	return []any{v}
}

func relationNames(m *store.Model) []string {
	names := make([]string, 0, len(m.Relations))
	for name := range m.Relations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func validPivot(p store.Pivot) error {
	for _, name := range []string{p.Table, p.ParentKey, p.RelatedKey} {
		if !store.ValidIdentifier(name) {
			return fmt.Errorf("%w: %q", store.ErrInvalidColumn, name)
		}
	}
	return nil
}

// translate maps driver errors onto store errors: unique violations
// (23505) become ErrConflict.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Detail)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}
	return err
}
