package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"resourcekit/internal/field"
	"resourcekit/internal/resource"
	"resourcekit/internal/service"
	"resourcekit/internal/store"
)

func init() { gin.SetMode(gin.TestMode) }

func registry() *resource.Registry {
	reg := resource.NewRegistry()
	reg.Register("tasks", func() *resource.Definition {
		d := resource.New("tasks")
		d.Searchable = true
		d.Index = field.Schema{
			field.ID(),
			field.Text("title", field.Required(), field.Searchable(), field.Sortable(), field.Rules("unique")),
			field.Select("status", field.Options(field.Option{Value: "open", Label: "Open"}, field.Option{Value: "done", Label: "Done"}), field.Default("open")),
			field.Boolean("urgent"),
			field.Text("reason", field.DependsOn("urgent", true), field.RequiredWhen("urgent", true)),
		}
		d.Filters = []resource.Filter{&resource.SelectFilter{Name: "status"}}
		d.Actions = []resource.Action{&resource.UpdateAction{ActionKey: "close", Attributes: map[string]any{"status": "done"}}}
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

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	log := zaptest.NewLogger(t)
	reg := registry()
	svc := service.New(reg, store.NewMemory(), log, service.Options{})
	reload := func() (*resource.Registry, error) { return nil, errors.New("no sources") }
	return NewRouter(reg, svc, reload, log)
}

func do(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func create(t *testing.T, r http.Handler, title string) string {
	t.Helper()
	rec, out := do(t, r, http.MethodPost, "/api/resources/tasks", map[string]any{"title": title})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return out["data"].(map[string]any)["id"].(string)
}

func TestCRUD(t *testing.T) {
	r := newRouter(t)
	id := create(t, r, "write docs")

	rec, out := do(t, r, http.MethodGet, "/api/resources/tasks/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := out["data"].(map[string]any)
	assert.Equal(t, "write docs", data["title"])
	assert.Equal(t, "open", data["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec, out = do(t, r, http.MethodPatch, "/api/resources/tasks/"+id, map[string]any{"status": "done"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "done", out["data"].(map[string]any)["status"])

	rec, _ = do(t, r, http.MethodPut, "/api/resources/tasks/"+id, map[string]any{"status": "open"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "put requires the full payload")

	rec, _ = do(t, r, http.MethodDelete, "/api/resources/tasks/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec, _ = do(t, r, http.MethodGet, "/api/resources/tasks/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidationErrors(t *testing.T) {
	r := newRouter(t)
	create(t, r, "same")

	rec, out := do(t, r, http.MethodPost, "/api/resources/tasks", map[string]any{"title": "same"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errs := out["errors"].(map[string]any)
	assert.Contains(t, errs, "title")

	rec, out = do(t, r, http.MethodPost, "/api/resources/tasks", map[string]any{"title": "x", "urgent": true})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, out["errors"].(map[string]any), "reason")

	req := httptest.NewRequest(http.MethodPost, "/api/resources/tasks", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIndexQuery(t *testing.T) {
	r := newRouter(t)
	for _, title := range []string{"b", "a", "c"} {
		create(t, r, title)
	}
	rec, out := do(t, r, http.MethodGet, "/api/resources/tasks?sort=-title&per_page=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := out["data"].([]any)
	require.Len(t, rows, 2)
	assert.Equal(t, "c", rows[0].(map[string]any)["title"])
	assert.Equal(t, float64(3), out["meta"].(map[string]any)["total"])

	rec, out = do(t, r, http.MethodGet, "/api/resources/tasks?q=A&filter[status]=open", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["data"].([]any), 1)

	rec, out = do(t, r, http.MethodGet, "/api/resources/tasks?filter.status=done", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, out["data"].([]any))

	rec, _ = do(t, r, http.MethodGet, "/api/resources/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBulkAndActions(t *testing.T) {
	r := newRouter(t)
	a, b := create(t, r, "a"), create(t, r, "b")

	rec, out := do(t, r, http.MethodPost, "/api/resources/tasks/actions/close", map[string]any{"ids": []string{a}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1), out["affected"])

	rec, _ = do(t, r, http.MethodPost, "/api/resources/tasks/actions/nope", map[string]any{"ids": []string{a}})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, out = do(t, r, http.MethodPatch, "/api/resources/tasks/_bulk", map[string]any{"ids": []string{a, b}, "data": map[string]any{"urgent": true}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(2), out["affected"])

	rec, _ = do(t, r, http.MethodPost, "/api/resources/tasks/_bulk_delete", map[string]any{"ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, out = do(t, r, http.MethodPost, "/api/resources/tasks/_bulk_delete", map[string]any{"ids": []string{a, b}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), out["affected"])
}

func TestMetaAndFieldState(t *testing.T) {
	r := newRouter(t)

	rec, out := do(t, r, http.MethodGet, "/api/resources/tasks/_meta?view=index", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "index", out["view"])
	assert.Len(t, out["fields"].([]any), 5)
	assert.Equal(t, "id", out["fields"].([]any)[0].(map[string]any)["attribute"])
	assert.Len(t, out["filters"].([]any), 1)
	assert.Equal(t, []any{map[string]any{"key": "close", "name": "Close"}}, out["actions"])

	rec, out = do(t, r, http.MethodPost, "/api/resources/tasks/_fields", map[string]any{"urgent": true})
	require.Equal(t, http.StatusOK, rec.Code)
	reason := out["fields"].(map[string]any)["reason"].(map[string]any)
	assert.Equal(t, true, reason["visible"])
	assert.Equal(t, true, reason["required"])

	rec, out = do(t, r, http.MethodPost, "/api/resources/loops/_fields", map[string]any{})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, out["path"])

	req := httptest.NewRequest(http.MethodGet, "/api/resources", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var list []metaListItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, []metaListItem{{Key: "loops", Label: "Loops"}, {Key: "tasks", Label: "Tasks"}}, list)
}

func TestAdminReloadKeepsLiveRegistryOnError(t *testing.T) {
	r := newRouter(t)
	rec, out := do(t, r, http.MethodPost, "/api/_admin/reload", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no sources", out["details"])

	rec, _ = do(t, r, http.MethodGet, "/api/resources/tasks", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestParseIndexParams(t *testing.T) {
	q := url.Values{
		"search":         {" hello "},
		"sort":           {"-created_at"},
		"page":           {"3"},
		"per_page":       {"x"},
		"filter[status]": {"open", "done"},
		"filter.owner":   {"7"},
		"filter[empty]":  {" "},
		"other":          {"ignored"},
	}
	p := parseIndexParams(q)
	assert.Equal(t, "hello", p.Search)
	assert.Equal(t, "created_at", p.Sort)
	assert.Equal(t, "desc", p.Direction)
	assert.Equal(t, 3, p.Page)
	assert.Zero(t, p.PerPage)
	assert.Equal(t, map[string]any{"status": []any{"open", "done"}, "owner": "7"}, p.Filters)

	p = parseIndexParams(url.Values{"q": {"x"}, "sort": {"title"}, "direction": {"DESC"}})
	assert.Equal(t, "x", p.Search)
	assert.Equal(t, "desc", p.Direction)
}
