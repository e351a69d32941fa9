package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"resourcekit/internal/field"
	"resourcekit/internal/resource"
	"resourcekit/internal/store"
	"resourcekit/internal/validation"
)

func testRegistry() *resource.Registry {
	reg := resource.NewRegistry()
	reg.Register("users", func() *resource.Definition {
		d := resource.New("users")
		d.Searchable = true
		d.Index = field.Schema{
			field.ID(),
			field.Text("name", field.Searchable(), field.Sortable()),
			field.Email("email"),
			field.Boolean("active"),
		}
		d.Form = field.Schema{
			field.Text("name", field.Required()),
			field.Email("email", field.Required(), field.Rules("email|unique")),
			field.Password("password", field.Rules("min:8")),
			field.Boolean("active", field.Default(true)),
			field.Select("roles", field.Resource("roles"), field.Multiple()),
			field.Text("company", field.RequiredWhen("active", false)),
		}
		d.Show = d.Form
		d.Actions = []resource.Action{&resource.DeleteAction{ActionKey: "purge"}}
		return d
	})
	reg.Register("roles", func() *resource.Definition {
		d := resource.New("roles")
		d.Index = field.Schema{field.ID(), field.Text("name")}
		return d
	})
	reg.Register("posts", func() *resource.Definition {
		d := resource.New("posts")
		d.Index = field.Schema{
			field.ID(),
			field.Text("title", field.Required()),
			field.Select("labels", field.Options(field.Option{Value: "a", Label: "A"}, field.Option{Value: "b", Label: "B"}), field.Multiple()),
			field.Select("tags", field.Resource("tags"), field.Multiple(), field.EnforceUniqueRelated()),
			field.Boolean("has_discount"),
			field.Number("discount", field.DependsOn("has_discount", true)),
		}
		return d
	})
	reg.Register("loops", func() *resource.Definition {
		d := resource.New("loops")
		d.Index = field.Schema{
			field.Text("a", field.DependsOn("b", "x")),
			field.Text("b", field.DependsOn("a", "y")),
		}
		return d
	})
	return reg
}

func newService(t *testing.T) (*ResourceService, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	st.Seed("roles",
		map[string]any{"id": "r1", "name": "admin"},
		map[string]any{"id": "r2", "name": "editor"},
	)
	st.Seed("tags",
		map[string]any{"id": "t1", "name": "go"},
		map[string]any{"id": "t2", "name": "sql"},
	)
	return New(testRegistry(), st, zaptest.NewLogger(t), Options{BcryptCost: bcrypt.MinCost}), st
}

func validationError(t *testing.T, err error) *ValidationError {
	t.Helper()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "want a validation error, got %v", err)
	return ve
}

func TestStoreCreatesWithDefaultsRelationsAndHashedPassword(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)

	out, err := svc.Store(ctx, "users", map[string]any{
		"name": "Ann", "email": "ann@example.com", "password": "secret123",
		"roles": []any{"r2", "r1", "r2"},
	})
	require.NoError(t, err)
	assert.Equal(t, true, out["active"])
	assert.Equal(t, []string{"r1", "r2"}, out["roles"])
	assert.NotContains(t, out, "password")

	raw, err := st.Find(ctx, store.NewModel("users"), out["id"].(string))
	require.NoError(t, err)
	hash, _ := raw.Get("password").(string)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret123")))
}

func TestStoreValidates(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.Store(ctx, "users", map[string]any{"email": "not-an-email"})
	ve := validationError(t, err)
	assert.Equal(t, []string{"email", "name"}, ve.Errors.Fields())

	_, err = svc.Store(ctx, "users", map[string]any{"name": "Ann", "email": "ann@example.com"})
	require.NoError(t, err)
	_, err = svc.Store(ctx, "users", map[string]any{"name": "Ann 2", "email": "ann@example.com"})
	ve = validationError(t, err)
	assert.True(t, ve.Errors.Has("email", validation.ErrUniqueViolation))
}

func TestRequiredWhenAddsRequired(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.Store(ctx, "users", map[string]any{"name": "Ann", "email": "ann@example.com", "active": false})
	ve := validationError(t, err)
	assert.True(t, ve.Errors.Has("company", validation.ErrRequired))

	_, err = svc.Store(ctx, "users", map[string]any{"name": "Ann", "email": "ann@example.com", "active": false, "company": "Acme"})
	assert.NoError(t, err)
}

func TestUpdateKeepsOwnUniqueValueAndDropsEmptyPassword(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)

	out, err := svc.Store(ctx, "users", map[string]any{"name": "Ann", "email": "ann@example.com", "password": "secret123"})
	require.NoError(t, err)
	id := out["id"].(string)
	before, err := st.Find(ctx, store.NewModel("users"), id)
	require.NoError(t, err)

	out, err = svc.Update(ctx, "users", id, map[string]any{"name": "Annie", "email": "ann@example.com", "password": ""})
	require.NoError(t, err)
	assert.Equal(t, "Annie", out["name"])

	after, err := st.Find(ctx, store.NewModel("users"), id)
	require.NoError(t, err)
	assert.Equal(t, before.Get("password"), after.Get("password"))

	_, err = svc.Update(ctx, "users", "missing", map[string]any{"name": "x"})
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestPatchWritesOnlyPresentAttributes(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	out, err := svc.Store(ctx, "users", map[string]any{"name": "Ann", "email": "ann@example.com", "roles": []any{"r1"}})
	require.NoError(t, err)
	id := out["id"].(string)

	out, err = svc.Patch(ctx, "users", id, map[string]any{"name": "Annie"})
	require.NoError(t, err, "absent required attributes are not checked")
	assert.Equal(t, "Annie", out["name"])
	assert.Equal(t, "ann@example.com", out["email"])
	assert.Equal(t, []string{"r1"}, out["roles"], "absent relations are left alone")

	_, err = svc.Patch(ctx, "users", id, map[string]any{"active": false, "company": ""})
	ve := validationError(t, err)
	assert.True(t, ve.Errors.Has("company", validation.ErrRequired))

	_, err = svc.Patch(ctx, "users", id, map[string]any{"email": "bad"})
	validationError(t, err)

	out, err = svc.Patch(ctx, "users", id, map[string]any{})
	require.NoError(t, err, "an empty patch changes nothing")
	assert.Equal(t, "Annie", out["name"])
	assert.Equal(t, "ann@example.com", out["email"])
	assert.Equal(t, []string{"r1"}, out["roles"])
}

func TestHiddenFieldsAreNotWritten(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	out, err := svc.Store(ctx, "posts", map[string]any{"title": "x", "has_discount": false, "discount": 5})
	require.NoError(t, err)
	assert.Nil(t, out["discount"])

	out, err = svc.Store(ctx, "posts", map[string]any{"title": "y", "has_discount": true, "discount": 5.0})
	require.NoError(t, err)
	assert.Equal(t, float64(5), out["discount"])
}

func TestSelectMultipleRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	out, err := svc.Store(ctx, "posts", map[string]any{"title": "x", "labels": []any{"a", "b"}})
	require.NoError(t, err)
	shown, err := svc.Show(ctx, "posts", out["id"].(string))
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, shown["labels"])
}

func TestEnforceUniqueRelatedMovesIDs(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	first, err := svc.Store(ctx, "posts", map[string]any{"title": "first", "tags": []any{"t1", "t2"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, first["tags"])

	second, err := svc.Store(ctx, "posts", map[string]any{"title": "second", "tags": []any{"t2"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, second["tags"])

	first, err = svc.Show(ctx, "posts", first["id"].(string))
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, first["tags"])
}

func TestIndexSortSearchAndPaging(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	for _, n := range []string{"Bob", "Ann", "Cid"} {
		_, err := svc.Store(ctx, "users", map[string]any{"name": n, "email": n + "@example.com"})
		require.NoError(t, err)
	}
	names := func(res *IndexResult) []any {
		var out []any
		for _, row := range res.Data {
			out = append(out, row["name"])
		}
		return out
	}

	res, err := svc.Index(ctx, "users", IndexParams{Sort: "password"})
	require.NoError(t, err)
	assert.Equal(t, []any{"Cid", "Ann", "Bob"}, names(res), "unknown sort falls back to id desc")

	res, err = svc.Index(ctx, "users", IndexParams{Sort: "name"})
	require.NoError(t, err)
	assert.Equal(t, []any{"Ann", "Bob", "Cid"}, names(res))

	res, err = svc.Index(ctx, "users", IndexParams{Sort: "name", Direction: "DESC", PerPage: 2, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, []any{"Ann"}, names(res))
	assert.Equal(t, PageMeta{CurrentPage: 2, PerPage: 2, Total: 3, LastPage: 2}, res.Meta)

	res, err = svc.Index(ctx, "users", IndexParams{Search: "BO", Filters: map[string]any{"nope": "x"}})
	require.NoError(t, err)
	assert.Equal(t, []any{"Bob"}, names(res))
	assert.NotContains(t, res.Data[0], "password")

	_, err = svc.Index(ctx, "nope", IndexParams{})
	assert.True(t, errors.Is(err, resource.ErrResourceNotFound))
}

func TestBulkOperations(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	var ids []string
	for _, n := range []string{"a", "b", "c"} {
		out, err := svc.Store(ctx, "users", map[string]any{"name": n, "email": n + "@example.com"})
		require.NoError(t, err)
		ids = append(ids, out["id"].(string))
	}

	n, err := svc.BulkUpdate(ctx, "users", ids[:2], map[string]any{"active": false, "ignored": 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	shown, err := svc.Show(ctx, "users", ids[0])
	require.NoError(t, err)
	assert.Equal(t, false, shown["active"])

	_, err = svc.BulkUpdate(ctx, "users", ids, map[string]any{"roles": []any{"r1"}})
	validationError(t, err)

	n, err = svc.BulkDestroy(ctx, "users", append(ids[:2:2], "missing"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, svc.Destroy(ctx, "users", ids[2]))
	assert.True(t, errors.Is(svc.Destroy(ctx, "users", ids[2]), store.ErrNotFound))
}

func TestRunAction(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	out, err := svc.Store(ctx, "users", map[string]any{"name": "Ann", "email": "ann@example.com"})
	require.NoError(t, err)
	id := out["id"].(string)

	_, err = svc.RunAction(ctx, "users", "nope", []string{id}, nil)
	assert.True(t, errors.Is(err, resource.ErrActionNotFound))

	res, err := svc.RunAction(ctx, "users", "purge", []string{id}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)
	_, err = svc.Show(ctx, "users", id)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestFailedActionRollsBack(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)
	boom := errors.New("boom")
	svc.registry.Register("notes", func() *resource.Definition {
		d := resource.New("notes")
		d.Index = field.Schema{field.Text("body")}
		d.Actions = []resource.Action{&resource.ActionFunc{ActionKey: "wipe", Fn: func(ctx context.Context, tx store.Store, m *store.Model, records []*store.Record, _ map[string]any) (resource.Result, error) {
			if _, err := tx.UpdateMany(ctx, m, []string{records[0].ID()}, map[string]any{"body": "gone"}); err != nil {
				return resource.Result{}, err
			}
			return resource.Result{}, boom
		}}}
		return d
	})
	out, err := svc.Store(ctx, "notes", map[string]any{"body": "keep"})
	require.NoError(t, err)
	id := out["id"].(string)

	_, err = svc.RunAction(ctx, "notes", "wipe", []string{id}, nil)
	assert.ErrorIs(t, err, boom)

	rec, err := st.Find(ctx, store.NewModel("notes"), id)
	require.NoError(t, err)
	assert.Equal(t, "keep", rec.Get("body"))
}

func TestActionReceivesShowRelations(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	var loaded bool
	var related []string
	svc.registry.Register("members", func() *resource.Definition {
		d := resource.New("members")
		d.Index = field.Schema{
			field.Text("name"),
			field.Select("roles", field.Resource("roles"), field.Multiple()),
		}
		d.Actions = []resource.Action{&resource.ActionFunc{ActionKey: "audit", Fn: func(ctx context.Context, tx store.Store, m *store.Model, records []*store.Record, _ map[string]any) (resource.Result, error) {
			loaded = records[0].RelationLoaded("roles")
			related = records[0].RelatedIDs("roles")
			err := tx.Transaction(ctx, func(tx store.Store) error {
				_, err := tx.UpdateMany(ctx, m, []string{records[0].ID()}, map[string]any{"name": "audited"})
				return err
			})
			return resource.Result{Affected: int64(len(records))}, err
		}}}
		return d
	})
	out, err := svc.Store(ctx, "members", map[string]any{"name": "Ann", "roles": []any{"r2", "r1"}})
	require.NoError(t, err)
	id := out["id"].(string)

	res, err := svc.RunAction(ctx, "members", "audit", []string{id}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)
	assert.True(t, loaded)
	assert.Equal(t, []string{"r1", "r2"}, related)

	out, err = svc.Show(ctx, "members", id)
	require.NoError(t, err)
	assert.Equal(t, "audited", out["name"])
}

func TestCircularDependencySurfaces(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.Store(ctx, "loops", map[string]any{"a": "y", "b": "x"})
	var cycle *field.CircularDependencyError
	assert.True(t, errors.As(err, &cycle))

	_, err = svc.FieldState(ctx, "loops", resource.ViewForm, nil)
	assert.True(t, errors.As(err, &cycle))
}

func TestFieldState(t *testing.T) {
	svc, _ := newService(t)
	state, err := svc.FieldState(context.Background(), "users", resource.ViewForm, map[string]any{"active": false})
	require.NoError(t, err)
	assert.Equal(t, field.State{Visible: true, Required: true}, state["company"])
	assert.Equal(t, field.State{Visible: true, Required: true}, state["name"])
	assert.Equal(t, field.State{Visible: true}, state["password"])
}

func TestSyncRejectsNonPivotRelations(t *testing.T) {
	svc, st := newService(t)
	m := store.NewModel("posts")
	err := svc.SyncBelongsToManyRelationship(context.Background(), st, m, "1", "tags", []string{"t1"}, nil)
	assert.Error(t, err)
}
