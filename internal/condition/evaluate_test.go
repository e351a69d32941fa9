package condition

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateNullActual(t *testing.T) {
	assert.True(t, Evaluate(nil, nil, OpEqual))
	for _, expected := range []any{0, "", false, "x", []any{}} {
		assert.False(t, Evaluate(nil, expected, OpEqual), "expected %v", expected)
	}
	for _, op := range []Operator{OpNotEqual, OpGreater, OpLess, OpIn, OpContains, OpEmpty, OpNotEmpty} {
		assert.False(t, Evaluate(nil, "x", op), "operator %s", op)
	}
}

func TestEvaluateLooseEquality(t *testing.T) {
	assert.True(t, Evaluate("1", 1, OpEqual))
	assert.True(t, Evaluate(1.0, "1", OpEqual))
	assert.True(t, Evaluate("01", "1", OpEqual))
	assert.True(t, Evaluate(true, "1", OpEqual))
	assert.True(t, Evaluate("percentage", "percentage", OpEqual))
	assert.False(t, Evaluate("fixed", "percentage", OpEqual))
	assert.True(t, Evaluate("fixed", "percentage", OpNotEqual))
	assert.False(t, Evaluate("1", 1, OpNotEqual))
}

func TestStrictEvaluatorDiffersOnMixedTypes(t *testing.T) {
	strict := Evaluator{Equal: StrictEqual}
	assert.False(t, strict.Evaluate("1", 1, OpEqual))
	assert.True(t, strict.Evaluate(1, 1.0, OpEqual))
	assert.True(t, strict.Evaluate("a", "a", OpEqual))
}

func TestEvaluateOrdering(t *testing.T) {
	assert.True(t, Evaluate(10, 5, OpGreater))
	assert.True(t, Evaluate("10", 5, OpGreater))
	assert.True(t, Evaluate(5, 5, OpGreaterOrEqual))
	assert.True(t, Evaluate(4, 5, OpLess))
	assert.True(t, Evaluate(5, "5", OpLessOrEqual))
	assert.True(t, Evaluate("b", "a", OpGreater))
	assert.False(t, Evaluate(5, nil, OpGreater))
}

func TestEvaluateIn(t *testing.T) {
	assert.True(t, Evaluate(5, []any{1, 2, 5}, OpIn))
	assert.True(t, Evaluate(5, []int{1, 2, 5}, OpIn))
	assert.False(t, Evaluate(5, 5, OpIn))
	assert.False(t, Evaluate(5, 5, OpNotIn))
	assert.True(t, Evaluate("admin", []string{"editor"}, OpNotIn))
	assert.True(t, Evaluate("2", []any{1, 2}, OpIn))
}

func TestEvaluateContains(t *testing.T) {
	assert.True(t, Evaluate([]any{"a", "b"}, "b", OpContains))
	assert.True(t, Evaluate([]any{"a", "b"}, "c", OpNotContains))
	assert.False(t, Evaluate("abc", "b", OpContains), "strings are not sequences")
	assert.False(t, Evaluate("abc", "z", OpNotContains))
}

func TestEvaluateEmpty(t *testing.T) {
	for _, v := range []any{"", "0", 0, false, []any{}, map[string]any{}} {
		assert.True(t, Evaluate(v, nil, OpEmpty), "value %#v", v)
	}
	for _, v := range []any{"a", 1, true, []any{1}} {
		assert.True(t, Evaluate(v, nil, OpNotEmpty), "value %#v", v)
	}
}

func TestEvaluateUnknownOperator(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.False(t, Evaluate(1, 1, Operator("like")))
	})
}

func TestOperatorAliases(t *testing.T) {
	assert.True(t, Evaluate(3, 2, Operator("gt")))
	assert.True(t, Evaluate(3, 3, Operator("==")))
	assert.True(t, Evaluate(3, 2, Operator("<>")))
}

func TestDependsOnJSON(t *testing.T) {
	single := Single(When("type", "percentage"))
	b, err := json.Marshal(single)
	require.NoError(t, err)
	assert.JSONEq(t, `{"attribute":"type","value":"percentage","operator":"="}`, string(b))

	all := All(When("a", 1), When("b", 2, OpGreater))
	b, err = json.Marshal(all)
	require.NoError(t, err)
	assert.JSONEq(t, `{"all":[{"attribute":"a","value":1,"operator":"="},{"attribute":"b","value":2,"operator":">"}]}`, string(b))

	var back DependsOn
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, ModeAll, back.Mode)
	assert.Equal(t, []string{"a", "b"}, back.Attributes())
}

func TestDecodeDependsOnRejectsUnknownOperator(t *testing.T) {
	_, err := DecodeDependsOn(map[string]any{"attribute": "a", "operator": "like", "value": 1})
	assert.Error(t, err)

	d, err := DecodeDependsOn(map[string]any{"any": []any{
		map[string]any{"attribute": "a", "value": 1},
		map[string]any{"field": "b", "operator": "not_empty"},
	}})
	require.NoError(t, err)
	assert.Equal(t, ModeAny, d.Mode)
	assert.Len(t, d.Conditions, 2)
}

func TestNodeTree(t *testing.T) {
	tree := And{
		Compare("country", OpEqual, "DE"),
		Or{
			Compare("age", OpGreaterOrEqual, 18),
			Compare("guardian", OpNotEmpty, nil),
		},
	}
	assert.True(t, tree.Eval(map[string]any{"country": "DE", "age": "21"}))
	assert.True(t, tree.Eval(map[string]any{"country": "DE", "age": 12, "guardian": "x"}))
	assert.False(t, tree.Eval(map[string]any{"country": "FR", "age": 30}))
	assert.Equal(t, []string{"country", "age", "guardian"}, tree.Attributes())

	b, err := json.Marshal(tree)
	require.NoError(t, err)
	var raw any
	require.NoError(t, json.Unmarshal(b, &raw))
	decoded, err := DecodeNode(raw)
	require.NoError(t, err)
	assert.True(t, decoded.Eval(map[string]any{"country": "DE", "age": 40}))

	b, err = json.Marshal(Callback(func(map[string]any) bool { return true }))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"callback"}`, string(b))
}

func TestLookupDotPath(t *testing.T) {
	data := map[string]any{"cta.headline": "flat", "address": map[string]any{"city": "Berlin"}}
	v, ok := Lookup(data, "cta.headline")
	assert.True(t, ok)
	assert.Equal(t, "flat", v)
	v, ok = Lookup(data, "address.city")
	assert.True(t, ok)
	assert.Equal(t, "Berlin", v)
	_, ok = Lookup(data, "address.zip")
	assert.False(t, ok)
}
