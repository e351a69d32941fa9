package resource

import (
	"context"
	"fmt"

	"resourcekit/internal/store"
)

// Result is what an action reports back.
type Result struct {
	Message  string `json:"message"`
	Affected int64  `json:"affected"`
}

// Action runs against a batch of loaded records.
type Action interface {
	Key() string
	Name() string
	Handle(ctx context.Context, st store.Store, m *store.Model, records []*store.Record, data map[string]any) (Result, error)
}

// UpdateAction assigns Attributes to every record in one statement.
// Request data may override the keys listed in Editable.
type UpdateAction struct {
	ActionKey  string
	Label      string
	Attributes map[string]any
	Editable   []string
}

func (a *UpdateAction) Key() string  { return a.ActionKey }
func (a *UpdateAction) Name() string { return label(a.Label, a.ActionKey) }

func (a *UpdateAction) Handle(ctx context.Context, st store.Store, m *store.Model, records []*store.Record, data map[string]any) (Result, error) {
	attrs := make(map[string]any, len(a.Attributes)+len(a.Editable))
	for k, v := range a.Attributes {
		attrs[k] = v
	}
	for _, k := range a.Editable {
		if v, ok := data[k]; ok {
			attrs[k] = v
		}
	}
	if len(attrs) == 0 {
		return Result{}, fmt.Errorf("action %s: nothing to update", a.ActionKey)
	}
	n, err := st.UpdateMany(ctx, m, ids(records), attrs)
	if err != nil {
		return Result{}, err
	}
	return Result{Message: fmt.Sprintf("%d record(s) updated", n), Affected: n}, nil
}

// DeleteAction removes every record in one statement.
type DeleteAction struct {
	ActionKey string
	Label     string
}

func (a *DeleteAction) Key() string  { return a.ActionKey }
func (a *DeleteAction) Name() string { return label(a.Label, a.ActionKey) }

func (a *DeleteAction) Handle(ctx context.Context, st store.Store, m *store.Model, records []*store.Record, _ map[string]any) (Result, error) {
	n, err := st.DeleteMany(ctx, m, ids(records))
	if err != nil {
		return Result{}, err
	}
	return Result{Message: fmt.Sprintf("%d record(s) deleted", n), Affected: n}, nil
}

// HandlerFunc is the body of an ActionFunc.
type HandlerFunc func(ctx context.Context, st store.Store, m *store.Model, records []*store.Record, data map[string]any) (Result, error)

// ActionFunc adapts a function into an Action.
type ActionFunc struct {
	ActionKey string
	Label     string
	Fn        HandlerFunc
}

func (a *ActionFunc) Key() string  { return a.ActionKey }
func (a *ActionFunc) Name() string { return label(a.Label, a.ActionKey) }

func (a *ActionFunc) Handle(ctx context.Context, st store.Store, m *store.Model, records []*store.Record, data map[string]any) (Result, error) {
	return a.Fn(ctx, st, m, records, data)
}

func ids(records []*store.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID())
	}
	return out
}
