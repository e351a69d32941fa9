// Package service runs the resource lifecycle: listing, reading, writing,
// relationship sync and actions, all driven by resource definitions.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"resourcekit/internal/field"
	"resourcekit/internal/resource"
	"resourcekit/internal/store"
	"resourcekit/internal/validation"
)

// ValidationError carries the per-attribute failures of a payload.
type ValidationError struct {
	Errors validation.Errors
}

func (e *ValidationError) Error() string { return e.Errors.Error() }

// Fields groups messages by attribute.
func (e *ValidationError) Fields() map[string][]string { return e.Errors.ByField() }

func invalid(attr, code, msg string) *ValidationError {
	return &ValidationError{Errors: validation.Errors{{Code: code, Field: attr, Message: msg}}}
}

// Options tune a ResourceService.
type Options struct {
	MaxPerPage int
	BcryptCost int
}

// ResourceService is the persistence orchestrator over a registry and a store.
type ResourceService struct {
	registry  *resource.Registry
	store     store.Store
	validator *validation.Validator
	log       *zap.Logger
	opts      Options
}

func New(reg *resource.Registry, st store.Store, log *zap.Logger, opts Options) *ResourceService {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxPerPage <= 0 {
		opts.MaxPerPage = 100
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &ResourceService{
		registry:  reg,
		store:     st,
		validator: validation.New(st),
		log:       log.Named("resources"),
		opts:      opts,
	}
}

// Definition resolves a fresh definition for key.
func (s *ResourceService) Definition(key string) (*resource.Definition, error) {
	return s.registry.Resolve(key)
}

// IndexParams are the listing inputs of Index.
type IndexParams struct {
	Search    string
	Sort      string
	Direction string
	Page      int
	PerPage   int
	Filters   map[string]any
}

// PageMeta describes the returned page.
type PageMeta struct {
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
	LastPage    int   `json:"last_page"`
}

// IndexResult is a page of transformed rows.
type IndexResult struct {
	Data []map[string]any `json:"data"`
	Meta PageMeta         `json:"meta"`
}

// Index lists one page of a resource. Unknown filters are ignored and an
// unsupported sort column falls back to id descending.
func (s *ResourceService) Index(ctx context.Context, key string, p IndexParams) (*IndexResult, error) {
	def, err := s.registry.Resolve(key)
	if err != nil {
		return nil, err
	}
	q := store.NewQuery(def.Model)

	if def.Searchable && strings.TrimSpace(p.Search) != "" {
		q.Search(def.SearchColumns, p.Search)
	}

	names := make([]string, 0, len(p.Filters))
	for name := range p.Filters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f, ok := def.Filter(name)
		if !ok {
			s.log.Debug("unknown filter ignored", zap.String("resource", key), zap.String("filter", name))
			continue
		}
		if err := f.Apply(q, p.Filters[name]); err != nil {
			return nil, invalid("filter."+name, validation.ErrInvalid, err.Error())
		}
	}

	column, desc := "id", true
	if p.Sort != "" {
		if def.CanSortBy(p.Sort) {
			column, desc = p.Sort, strings.EqualFold(p.Direction, "desc")
		} else {
			s.log.Debug("sort column not allowed, using id desc", zap.String("resource", key), zap.String("sort", p.Sort))
		}
	}
	q.OrderBy(column, desc)
	q.With(loads(def, resource.ViewIndex)...)

	perPage := p.PerPage
	if perPage <= 0 {
		perPage = def.PerPage
	}
	if perPage > s.opts.MaxPerPage {
		perPage = s.opts.MaxPerPage
	}

	page, err := s.store.Paginate(ctx, q, p.Page, perPage)
	if err != nil {
		s.log.Error("index failed", zap.String("resource", key), zap.Error(err))
		return nil, err
	}
	out := &IndexResult{
		Data: make([]map[string]any, 0, len(page.Records)),
		Meta: PageMeta{CurrentPage: page.Page, PerPage: page.PerPage, Total: page.Total, LastPage: page.LastPage()},
	}
	for _, rec := range page.Records {
		out.Data = append(out.Data, Transform(def, rec, resource.ViewIndex))
	}
	return out, nil
}

// Show returns one transformed entity.
func (s *ResourceService) Show(ctx context.Context, key, id string) (map[string]any, error) {
	def, err := s.registry.Resolve(key)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.Find(ctx, def.Model, id, loads(def, resource.ViewShow)...)
	if err != nil {
		return nil, err
	}
	return Transform(def, rec, resource.ViewShow), nil
}

// Store creates an entity from data and returns it reloaded.
func (s *ResourceService) Store(ctx context.Context, key string, data map[string]any) (map[string]any, error) {
	def, err := s.registry.Resolve(key)
	if err != nil {
		return nil, err
	}
	data = copyMap(data)
	applyDefaults(def.Form, data)

	visible, err := field.NewResolver(def.Form).VisibleFields(data)
	if err != nil {
		return nil, err
	}
	visible = writable(visible, true)
	if err := s.validate(ctx, def, visible, data, data, "", false); err != nil {
		return nil, err
	}
	scalar, relational, err := s.split(visible, data, false)
	if err != nil {
		return nil, err
	}

	var id string
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		rec, err := tx.Create(ctx, def.Model, scalar)
		if err != nil {
			return err
		}
		id = rec.ID()
		return s.syncAll(ctx, tx, def, id, relational)
	})
	if err != nil {
		s.log.Error("store failed", zap.String("resource", key), zap.Error(err))
		return nil, err
	}
	s.log.Debug("stored", zap.String("resource", key), zap.String("id", id))
	return s.reload(ctx, def, id)
}

// Update replaces the visible attributes of an entity.
func (s *ResourceService) Update(ctx context.Context, key, id string, data map[string]any) (map[string]any, error) {
	return s.update(ctx, key, id, data, false)
}

// Patch writes only the attributes present in data; required rules apply
// only where a requiredWhen condition fires.
func (s *ResourceService) Patch(ctx context.Context, key, id string, data map[string]any) (map[string]any, error) {
	return s.update(ctx, key, id, data, true)
}

func (s *ResourceService) update(ctx context.Context, key, id string, data map[string]any, patch bool) (map[string]any, error) {
	def, err := s.registry.Resolve(key)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.Find(ctx, def.Model, id)
	if err != nil {
		return nil, err
	}
	data = copyMap(data)
	dropEmptyPassword(def.Form, data)

	// visibility sees stored values for attributes the payload leaves out
	state := copyMap(existing.Attributes)
	for k, v := range data {
		state[k] = v
	}
	visible, err := field.NewResolver(def.Form).VisibleFields(state)
	if err != nil {
		return nil, err
	}
	visible = writable(visible, false)
	if patch {
		visible = present(visible, data)
	}
	if err := s.validate(ctx, def, visible, data, state, existing.ID(), patch); err != nil {
		return nil, err
	}
	scalar, relational, err := s.split(visible, data, true)
	if err != nil {
		return nil, err
	}

	err = s.store.Transaction(ctx, func(tx store.Store) error {
		if len(scalar) > 0 {
			if err := tx.Update(ctx, def.Model, existing.ID(), scalar); err != nil {
				return err
			}
		}
		return s.syncAll(ctx, tx, def, existing.ID(), relational)
	})
	if err != nil {
		s.log.Error("update failed", zap.String("resource", key), zap.String("id", id), zap.Error(err))
		return nil, err
	}
	s.log.Debug("updated", zap.String("resource", key), zap.String("id", id), zap.Bool("patch", patch))
	return s.reload(ctx, def, existing.ID())
}

// Destroy removes one entity along with its pivot rows.
func (s *ResourceService) Destroy(ctx context.Context, key, id string) error {
	def, err := s.registry.Resolve(key)
	if err != nil {
		return err
	}
	rec, err := s.store.Find(ctx, def.Model, id)
	if err != nil {
		return err
	}
	if _, err := s.store.DeleteMany(ctx, def.Model, []string{rec.ID()}); err != nil {
		s.log.Error("destroy failed", zap.String("resource", key), zap.String("id", id), zap.Error(err))
		return err
	}
	s.log.Debug("destroyed", zap.String("resource", key), zap.String("id", id))
	return nil
}

// BulkDestroy deletes every listed id in one statement.
func (s *ResourceService) BulkDestroy(ctx context.Context, key string, ids []string) (int64, error) {
	def, err := s.registry.Resolve(key)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.store.DeleteMany(ctx, def.Model, ids)
	if err != nil {
		s.log.Error("bulk destroy failed", zap.String("resource", key), zap.Error(err))
		return 0, err
	}
	s.log.Debug("bulk destroyed", zap.String("resource", key), zap.Int64("affected", n))
	return n, nil
}

// BulkUpdate assigns the scalar attributes of data to every listed id in
// one statement. Relational attributes are not bulk-assignable.
func (s *ResourceService) BulkUpdate(ctx context.Context, key string, ids []string, data map[string]any) (int64, error) {
	def, err := s.registry.Resolve(key)
	if err != nil {
		return 0, err
	}
	data = copyMap(data)
	dropEmptyPassword(def.Form, data)

	var fields []*field.Field
	for _, f := range present(writable(def.Form.Fields(), false), data) {
		if f.IsRelational() {
			return 0, invalid(f.Attribute, validation.ErrInvalid, fmt.Sprintf("The %s field cannot be bulk updated.", f.Attribute))
		}
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		return 0, invalid("data", validation.ErrRequired, "Nothing to update.")
	}
	if err := s.validate(ctx, def, fields, data, data, "", true); err != nil {
		return 0, err
	}
	scalar, _, err := s.split(fields, data, true)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.store.UpdateMany(ctx, def.Model, ids, scalar)
	if err != nil {
		s.log.Error("bulk update failed", zap.String("resource", key), zap.Error(err))
		return 0, err
	}
	s.log.Debug("bulk updated", zap.String("resource", key), zap.Int64("affected", n))
	return n, nil
}

// RunAction loads the listed records and hands them to the action inside
// one transaction.
func (s *ResourceService) RunAction(ctx context.Context, key, action string, ids []string, data map[string]any) (resource.Result, error) {
	def, err := s.registry.Resolve(key)
	if err != nil {
		return resource.Result{}, err
	}
	a, ok := def.Action(action)
	if !ok {
		return resource.Result{}, fmt.Errorf("%w: %s.%s", resource.ErrActionNotFound, key, action)
	}
	if len(ids) == 0 {
		return resource.Result{}, invalid("ids", validation.ErrRequired, "Select at least one record.")
	}

	var res resource.Result
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		records, err := tx.FindMany(ctx, def.Model, ids, loads(def, resource.ViewShow)...)
		if err != nil {
			return err
		}
		res, err = a.Handle(ctx, tx, def.Model, records, data)
		return err
	})
	if err != nil {
		s.log.Error("action failed", zap.String("resource", key), zap.String("action", action), zap.Error(err))
		return resource.Result{}, err
	}
	s.log.Info("action ran", zap.String("resource", key), zap.String("action", action), zap.Int64("affected", res.Affected))
	return res, nil
}

// SyncBelongsToManyRelationship makes ids the exact related set of the
// entity. Fields enforcing unique related ids first detach those ids from
// every other parent.
func (s *ResourceService) SyncBelongsToManyRelationship(ctx context.Context, st store.Store, m *store.Model, entityID, relation string, ids []string, f *field.Field) error {
	rel, ok := m.Relation(relation)
	if !ok || rel.Kind != store.BelongsToMany || rel.Pivot == nil {
		return fmt.Errorf("%s.%s: not a belongs_to_many relation", m.Table, relation)
	}
	ids = dedupe(ids)
	if f != nil && f.EnforcesUniqueRelated() && len(ids) > 0 {
		n, err := st.DetachFromOthers(ctx, *rel.Pivot, entityID, ids)
		if err != nil {
			return err
		}
		if n > 0 {
			s.log.Info("detached related ids from other parents",
				zap.String("relation", relation), zap.String("id", entityID), zap.Int64("rows", n))
		}
	}
	return st.Sync(ctx, *rel.Pivot, entityID, ids)
}

// FieldState answers visible/required/disabled per attribute of a view
// for a draft payload.
func (s *ResourceService) FieldState(ctx context.Context, key string, v resource.View, data map[string]any) (map[string]field.State, error) {
	def, err := s.registry.Resolve(key)
	if err != nil {
		return nil, err
	}
	return field.NewResolver(def.Schema(v)).State(data)
}

// Transform serializes a record for a view: the stored attributes, then
// every field of the view rendered through its kind.
func Transform(def *resource.Definition, rec *store.Record, v resource.View) map[string]any {
	out := rec.ToMap(def.Model)
	for _, f := range def.Schema(v).Fields() {
		if f.Kind == field.KindPassword || def.Model.IsHidden(f.Attribute) {
			continue
		}
		out[f.Attribute] = f.TransformValue(rec.Get(f.Attribute), rec)
	}
	return out
}

func (s *ResourceService) reload(ctx context.Context, def *resource.Definition, id string) (map[string]any, error) {
	rec, err := s.store.Find(ctx, def.Model, id, loads(def, resource.ViewShow)...)
	if err != nil {
		return nil, err
	}
	return Transform(def, rec, resource.ViewShow), nil
}

// validate builds the rules of fields and checks data against them.
// requiredWhen conditions read state; id is the current entity on updates.
func (s *ResourceService) validate(ctx context.Context, def *resource.Definition, fields []*field.Field, data, state map[string]any, id string, partial bool) error {
	rules := make(map[string]string, len(fields))
	for _, f := range fields {
		r := f.ValidationRules()
		if partial {
			r = validation.StripRequired(r)
		}
		if f.IsRequiredWhen(state) {
			r = validation.AddRequired(r)
		}
		if validation.Has(r, "unique") {
			r = validation.QualifyUnique(r, def.Model.Table, f.Attribute)
			if id != "" {
				r = validation.RewriteUnique(r, f.Attribute, id)
			}
		}
		if r != "" {
			rules[f.Attribute] = r
		}
	}
	if partial {
		rules = validation.Narrow(rules, data)
	}
	errs, err := s.validator.Validate(ctx, data, rules)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// split separates column writes from relationship syncs. Relational ids
// are keyed by field attribute.
func (s *ResourceService) split(fields []*field.Field, data map[string]any, update bool) (map[string]any, map[*field.Field][]string, error) {
	scalar := make(map[string]any)
	relational := make(map[*field.Field][]string)
	for _, f := range fields {
		v, ok := data[f.Attribute]
		if !ok {
			continue
		}
		switch {
		case f.IsRelational():
			relational[f] = store.IDStrings(listOf(v))
		case f.Kind == field.KindPassword:
			pw, _ := v.(string)
			if pw == "" {
				if !update {
					scalar[f.Attribute] = nil
				}
				continue
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(pw), s.opts.BcryptCost)
			if err != nil {
				return nil, nil, fmt.Errorf("hash %s: %w", f.Attribute, err)
			}
			scalar[f.Attribute] = string(hash)
		case f.Kind == field.KindBelongsTo:
			if id := store.IDString(v); id != "" {
				scalar[f.Attribute] = id
			} else {
				scalar[f.Attribute] = nil
			}
		default:
			scalar[f.Attribute] = v
		}
	}
	return scalar, relational, nil
}

func (s *ResourceService) syncAll(ctx context.Context, tx store.Store, def *resource.Definition, id string, relational map[*field.Field][]string) error {
	fields := make([]*field.Field, 0, len(relational))
	for f := range relational {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Attribute < fields[j].Attribute })
	for _, f := range fields {
		name := f.RelationName()
		rel, ok := def.Model.Relation(name)
		if !ok || rel.Kind != store.BelongsToMany {
			s.log.Warn("relational field without a belongs_to_many relation", zap.String("resource", def.Key), zap.String("field", f.Attribute))
			continue
		}
		if err := s.SyncBelongsToManyRelationship(ctx, tx, def.Model, id, name, relational[f], f); err != nil {
			return err
		}
	}
	return nil
}

// loads lists the relations a view renders: belongs_to targets and the
// related id sets of relational fields, when the model declares them.
func loads(def *resource.Definition, v resource.View) []string {
	var out []string
	for _, f := range def.Schema(v).Fields() {
		if f.Kind != field.KindBelongsTo && !f.IsRelational() {
			continue
		}
		if name := f.RelationName(); name != "" && def.Model.HasRelation(name) {
			out = append(out, name)
		}
	}
	return out
}

// writable keeps fields that own data; creating additionally skips
// fields that are not creatable.
func writable(fields []*field.Field, creating bool) []*field.Field {
	out := fields[:0:0]
	for _, f := range fields {
		if !f.IsPersisted() || f.Kind == field.KindHasMany || f.Attribute == "id" {
			continue
		}
		if creating && !f.Creatable {
			continue
		}
		out = append(out, f)
	}
	return out
}

func present(fields []*field.Field, data map[string]any) []*field.Field {
	out := fields[:0:0]
	for _, f := range fields {
		if _, ok := data[f.Attribute]; ok {
			out = append(out, f)
		}
	}
	return out
}

func applyDefaults(s field.Schema, data map[string]any) {
	for _, f := range s.Fields() {
		if f.Default == nil || !f.Creatable {
			continue
		}
		if _, ok := data[f.Attribute]; !ok {
			data[f.Attribute] = f.Default
		}
	}
}

func dropEmptyPassword(s field.Schema, data map[string]any) {
	for _, f := range s.Fields() {
		if f.Kind != field.KindPassword {
			continue
		}
		if v, ok := data[f.Attribute]; ok && (v == nil || v == "") {
			delete(data, f.Attribute)
		}
	}
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func listOf(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		return []any{t}
	}
	return []any{v}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// IsNotFound reports the not-found errors of the lifecycle.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, resource.ErrResourceNotFound) || errors.Is(err, resource.ErrActionNotFound)
}
