package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	rows  map[string][]map[string]any
	calls []string
}

func (f *fakeLookup) Exists(_ context.Context, table, column string, value any, exceptID string) (bool, error) {
	f.calls = append(f.calls, table+"."+column+":"+exceptID)
	for _, row := range f.rows[table] {
		if exceptID != "" && row["id"] == exceptID {
			continue
		}
		if stringOf(row[column]) == stringOf(value) {
			return true, nil
		}
	}
	return false, nil
}

func TestParseAndFormat(t *testing.T) {
	rules := Parse("required| string |max:255|unique:users,email|regex:/^[a-z,]+$/")
	require.Len(t, rules, 5)
	assert.Equal(t, Rule{Name: "max", Params: []string{"255"}}, rules[2])
	assert.Equal(t, Rule{Name: "unique", Params: []string{"users", "email"}}, rules[3])
	assert.Equal(t, []string{"/^[a-z,]+$/"}, rules[4].Params)
	assert.Equal(t, "required|string|max:255|unique:users,email|regex:/^[a-z,]+$/", Format(rules))
}

func TestPatchHelpers(t *testing.T) {
	assert.Equal(t, "string|max:255", StripRequired("required|string|max:255"))
	assert.Equal(t, "", StripRequired("required"))
	assert.Equal(t, "required|string", AddRequired("string"))
	assert.Equal(t, "required", AddRequired(""))
	assert.Equal(t, "required|x", AddRequired("required|x"))

	assert.Equal(t, "email|unique:users,email,42", RewriteUnique("email|unique:users,email", "email", "42"))
	assert.Equal(t, "unique:users,login,42", RewriteUnique("unique:users", "login", "42"))
	assert.Equal(t, "unique:users,email,42,id", RewriteUnique("unique:users,email,7,id", "email", "42"))

	assert.Equal(t, "email|unique:users,email", QualifyUnique("email|unique", "users", "email"))
	assert.Equal(t, "unique:accounts,email", QualifyUnique("unique:accounts", "users", "email"))
	assert.Equal(t, "unique:users,login", QualifyUnique("unique:users,login", "posts", "email"))

	narrowed := Narrow(map[string]string{"name": "required", "email": "email"}, map[string]any{"name": "x"})
	assert.Equal(t, map[string]string{"name": "required"}, narrowed)
}

func TestRequiredAndOptional(t *testing.T) {
	v := New(nil)
	ctx := context.Background()

	errs, err := v.Validate(ctx, map[string]any{}, map[string]string{"name": "required|string"})
	require.NoError(t, err)
	assert.True(t, errs.Has("name", ErrRequired))
	assert.Equal(t, map[string][]string{"name": {"The name field is required."}}, errs.ByField())

	errs, err = v.Validate(ctx, map[string]any{"name": "  "}, map[string]string{"name": "required"})
	require.NoError(t, err)
	assert.True(t, errs.Has("name", ErrRequired))

	errs, err = v.Validate(ctx, map[string]any{"roles": []any{}, "meta": map[string]any{}}, map[string]string{"roles": "required|array", "meta": "required"})
	require.NoError(t, err)
	assert.True(t, errs.Has("roles", ErrRequired))
	assert.True(t, errs.Has("meta", ErrRequired))

	errs, err = v.Validate(ctx, map[string]any{"roles": []string{"r1"}}, map[string]string{"roles": "required|array"})
	require.NoError(t, err)
	assert.Nil(t, errs)

	errs, err = v.Validate(ctx, map[string]any{"nick": nil}, map[string]string{"nick": "nullable|string|min:3"})
	require.NoError(t, err)
	assert.Nil(t, errs)

	errs, err = v.Validate(ctx, map[string]any{}, map[string]string{"nick": "string|min:3"})
	require.NoError(t, err)
	assert.Nil(t, errs)
}

func TestFormatRules(t *testing.T) {
	v := New(nil)
	ctx := context.Background()
	rules := map[string]string{
		"email":    "email",
		"site":     "url",
		"age":      "integer|between:18,99",
		"score":    "numeric|max:10",
		"name":     "string|max:5",
		"tags":     "array|min:2",
		"active":   "boolean",
		"born":     "date",
		"status":   "in:draft,published",
		"code":     "alpha_num|size:4",
		"settings": "json",
		"slug":     "regex:/^[a-z-]+$/",
	}

	good := map[string]any{
		"email":    "a@b.io",
		"site":     "https://example.com",
		"age":      float64(30),
		"score":    "9.5",
		"name":     "Ann",
		"tags":     []any{"a", "b"},
		"active":   "true",
		"born":     "2001-02-03",
		"status":   "draft",
		"code":     "ab12",
		"settings": `{"a":1}`,
		"slug":     "hello-world",
	}
	errs, err := v.Validate(ctx, good, rules)
	require.NoError(t, err)
	assert.Nil(t, errs)

	bad := map[string]any{
		"email":    "nope",
		"site":     "not a url",
		"age":      float64(12),
		"score":    "11",
		"name":     "Annabelle",
		"tags":     []any{"a"},
		"active":   "maybe",
		"born":     "03/02/2001",
		"status":   "archived",
		"code":     "ab1",
		"settings": "{",
		"slug":     "Hello World",
	}
	errs, err = v.Validate(ctx, bad, rules)
	require.NoError(t, err)
	assert.Equal(t, []string{"active", "age", "born", "code", "email", "name", "score", "settings", "site", "slug", "status", "tags"}, errs.Fields())
	assert.Equal(t, []string{"The name may not be greater than 5 characters."}, errs.ByField()["name"])
	assert.Equal(t, []string{"The age must be between 18 and 99."}, errs.ByField()["age"])
	assert.Equal(t, []string{"The tags must have at least 2 items."}, errs.ByField()["tags"])
	assert.True(t, errs.Has("status", ErrEnumInvalid))
}

func TestConfirmed(t *testing.T) {
	v := New(nil)
	errs, err := v.Validate(context.Background(),
		map[string]any{"password": "secret", "password_confirmation": "other"},
		map[string]string{"password": "confirmed"})
	require.NoError(t, err)
	assert.True(t, errs.Has("password", ErrConfirmation))
}

func TestUniqueAndExists(t *testing.T) {
	lookup := &fakeLookup{rows: map[string][]map[string]any{
		"users": {{"id": "1", "email": "a@x.io"}},
		"roles": {{"id": "r1"}, {"id": "r2"}},
	}}
	v := New(lookup)
	ctx := context.Background()

	errs, err := v.Validate(ctx, map[string]any{"email": "a@x.io"}, map[string]string{"email": "unique:users"})
	require.NoError(t, err)
	assert.True(t, errs.Has("email", ErrUniqueViolation))

	errs, err = v.Validate(ctx, map[string]any{"email": "a@x.io"}, map[string]string{"email": RewriteUnique("unique:users", "email", "1")})
	require.NoError(t, err)
	assert.Nil(t, errs)
	assert.Equal(t, "users.email:1", lookup.calls[len(lookup.calls)-1])

	errs, err = v.Validate(ctx, map[string]any{"roles": []any{"r1", "r2"}}, map[string]string{"roles": "array|exists:roles,id"})
	require.NoError(t, err)
	assert.Nil(t, errs)

	errs, err = v.Validate(ctx, map[string]any{"roles": []any{"r1", "r9"}}, map[string]string{"roles": "exists:roles,id"})
	require.NoError(t, err)
	assert.True(t, errs.Has("roles", ErrRefNotFound))
}

func TestBrokenRulesAreErrors(t *testing.T) {
	v := New(nil)
	ctx := context.Background()

	_, err := v.Validate(ctx, map[string]any{"x": "a"}, map[string]string{"x": "frobnicate"})
	assert.ErrorContains(t, err, `unknown rule "frobnicate"`)

	_, err = v.Validate(ctx, map[string]any{"x": "a"}, map[string]string{"x": "max:abc"})
	assert.Error(t, err)

	_, err = v.Validate(ctx, map[string]any{"x": "a"}, map[string]string{"x": "unique:users"})
	assert.ErrorContains(t, err, "needs a lookup")
}
