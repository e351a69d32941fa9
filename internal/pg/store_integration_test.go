//go:build integration

package pg

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"resourcekit/internal/resource"
	"resourcekit/internal/store"
)

func startPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("resourcekit"),
		tcpostgres.WithUsername("resourcekit"),
		tcpostgres.WithPassword("resourcekit"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := Open(ctx, url, zaptest.NewLogger(t), 0, Pool{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func migrate(t *testing.T, db *gorm.DB) map[string]*resource.Definition {
	t.Helper()
	defs := testDefinitions()
	ddl, err := GenerateDDL(defs)
	require.NoError(t, err)
	require.NoError(t, ApplyDDL(context.Background(), db, ddl, zaptest.NewLogger(t)))
	// a second run only hits objects that already exist
	require.NoError(t, ApplyDDL(context.Background(), db, ddl, zaptest.NewLogger(t)))

	out := map[string]*resource.Definition{}
	for _, d := range defs {
		out[d.Key] = d
	}
	return out
}

func TestStoreRoundTrip(t *testing.T) {
	db := startPostgres(t)
	defs := migrate(t, db)
	ctx := context.Background()
	st := NewStore(db)
	users, roles, posts := defs["users"].Model, defs["roles"].Model, defs["posts"].Model

	admin, err := st.Create(ctx, roles, map[string]any{"name": "admin"})
	require.NoError(t, err)
	editor, err := st.Create(ctx, roles, map[string]any{"name": "editor"})
	require.NoError(t, err)

	ann, err := st.Create(ctx, users, map[string]any{"name": "Ann", "email": "ann@example.com", "password": "x", "tags": []any{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, ann.Get("tags"))
	assert.Equal(t, true, ann.Get("active"), "column default applies")

	_, err = st.Create(ctx, users, map[string]any{"name": "Dup", "email": "ann@example.com"})
	assert.True(t, errors.Is(err, store.ErrConflict))

	rolesRel, _ := users.Relation("roles")
	require.NoError(t, st.Sync(ctx, *rolesRel.Pivot, ann.ID(), []string{editor.ID(), admin.ID(), admin.ID()}))
	ids, err := st.RelatedIDs(ctx, *rolesRel.Pivot, ann.ID())
	require.NoError(t, err)
	want := []string{admin.ID(), editor.ID()}
	store.SortIDs(want)
	assert.Equal(t, want, ids)

	got, err := st.Find(ctx, users, ann.ID(), "roles")
	require.NoError(t, err)
	assert.Equal(t, want, got.RelatedIDs("roles"))

	bob, err := st.Create(ctx, users, map[string]any{"name": "Bob", "email": "bob@example.com"})
	require.NoError(t, err)
	require.NoError(t, st.Sync(ctx, *rolesRel.Pivot, bob.ID(), []string{admin.ID()}))
	n, err := st.DetachFromOthers(ctx, *rolesRel.Pivot, bob.ID(), []string{admin.ID()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	post, err := st.Create(ctx, posts, map[string]any{"title": "Hello 100%", "user_id": ann.ID(), "meta": map[string]any{"k": "v"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v"}, post.Get("meta"))

	q := store.NewQuery(posts).Search([]string{"title"}, "100%").With("user")
	page, err := st.Paginate(ctx, q, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, ann.ID(), page.Records[0].One("user").ID())

	page, err = st.Paginate(ctx, store.NewQuery(posts).Search([]string{"title"}, "x%"), 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.Total, "wildcards in terms are literal")

	exists, err := st.Exists(ctx, "users", "email", "ann@example.com", "")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = st.Exists(ctx, "users", "email", "ann@example.com", ann.ID())
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, st.Update(ctx, users, bob.ID(), map[string]any{"name": "Robert"}))
	assert.True(t, errors.Is(st.Update(ctx, users, "missing", map[string]any{"name": "x"}), store.ErrNotFound))

	deleted, err := st.DeleteMany(ctx, users, []string{bob.ID()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	_, err = st.Find(ctx, users, bob.ID())
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestStoreTransactionRollsBack(t *testing.T) {
	db := startPostgres(t)
	defs := migrate(t, db)
	ctx := context.Background()
	st := NewStore(db)
	roles := defs["roles"].Model

	boom := errors.New("boom")
	err := st.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.Create(ctx, roles, map[string]any{"name": "ghost"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	page, err := st.Paginate(ctx, store.NewQuery(roles), 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}
