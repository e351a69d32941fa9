package resource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resourcekit/internal/store"
)

func seedOrders(t *testing.T) (*store.Memory, *store.Model, []*store.Record) {
	t.Helper()
	st := store.NewMemory()
	m := store.NewModel("orders")
	st.Seed("orders",
		map[string]any{"id": "1", "status": "new", "note": "a"},
		map[string]any{"id": "2", "status": "new", "note": "b"},
		map[string]any{"id": "3", "status": "new", "note": "c"},
	)
	records, err := st.FindMany(context.Background(), m, []string{"1", "2"})
	require.NoError(t, err)
	return st, m, records
}

func TestUpdateAction(t *testing.T) {
	ctx := context.Background()
	st, m, records := seedOrders(t)

	a := &UpdateAction{ActionKey: "ship", Attributes: map[string]any{"status": "shipped"}, Editable: []string{"note"}}
	assert.Equal(t, "Ship", a.Name())

	res, err := a.Handle(ctx, st, m, records, map[string]any{"note": "rush", "status": "ignored"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Affected)

	rec, err := st.Find(ctx, m, "1")
	require.NoError(t, err)
	assert.Equal(t, "shipped", rec.Get("status"))
	assert.Equal(t, "rush", rec.Get("note"))

	rec, err = st.Find(ctx, m, "3")
	require.NoError(t, err)
	assert.Equal(t, "new", rec.Get("status"))

	_, err = (&UpdateAction{ActionKey: "noop"}).Handle(ctx, st, m, records, nil)
	assert.Error(t, err)
}

func TestDeleteAction(t *testing.T) {
	ctx := context.Background()
	st, m, records := seedOrders(t)

	res, err := (&DeleteAction{ActionKey: "purge", Label: "Purge"}).Handle(ctx, st, m, records, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Affected)
	assert.Equal(t, "2 record(s) deleted", res.Message)

	page, err := st.Paginate(ctx, store.NewQuery(m), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestActionFunc(t *testing.T) {
	ctx := context.Background()
	st, m, records := seedOrders(t)
	var seen []string
	a := &ActionFunc{ActionKey: "export", Fn: func(_ context.Context, _ store.Store, _ *store.Model, recs []*store.Record, _ map[string]any) (Result, error) {
		for _, r := range recs {
			seen = append(seen, r.ID())
		}
		return Result{Message: "ok", Affected: int64(len(recs))}, nil
	}}
	res, err := a.Handle(ctx, st, m, records, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, seen)
	assert.Equal(t, "ok", res.Message)
}
