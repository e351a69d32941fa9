package condition

import (
	"reflect"
	"strings"
)

// Operator names a single comparison understood by Evaluate.
type Operator string

const (
	OpEqual          Operator = "="
	OpNotEqual       Operator = "!="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpIn             Operator = "in"
	OpNotIn          Operator = "not_in"
	OpContains       Operator = "contains"
	OpNotContains    Operator = "not_contains"
	OpEmpty          Operator = "empty"
	OpNotEmpty       Operator = "not_empty"
)

// Known reports whether op is one of the supported operators.
func (op Operator) Known() bool {
	switch op {
	case OpEqual, OpNotEqual, OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual,
		OpIn, OpNotIn, OpContains, OpNotContains, OpEmpty, OpNotEmpty:
		return true
	}
	return false
}

// normalize maps the aliases accepted from declarations onto canonical operators.
func normalize(op Operator) Operator {
	switch strings.ToLower(strings.TrimSpace(string(op))) {
	case "", "=", "==", "eq":
		return OpEqual
	case "!=", "<>", "neq":
		return OpNotEqual
	case ">", "gt":
		return OpGreater
	case ">=", "gte":
		return OpGreaterOrEqual
	case "<", "lt":
		return OpLess
	case "<=", "lte":
		return OpLessOrEqual
	case "in":
		return OpIn
	case "not_in", "notin":
		return OpNotIn
	case "contains":
		return OpContains
	case "not_contains":
		return OpNotContains
	case "empty":
		return OpEmpty
	case "not_empty":
		return OpNotEmpty
	}
	return op
}

// Evaluator compares form values. Equal decides what "=" means; swapping it
// for StrictEqual tightens every condition without touching call sites.
type Evaluator struct {
	Equal Equality
}

// Default is the evaluator used by Evaluate and by field conditions.
var Default = Evaluator{Equal: LooseEqual}

// Evaluate runs op against actual and expected with the Default evaluator.
func Evaluate(actual, expected any, op Operator) bool {
	return Default.Evaluate(actual, expected, op)
}

// Evaluate never fails: unknown operators and shape mismatches yield false.
func (e Evaluator) Evaluate(actual, expected any, op Operator) bool {
	eq := e.Equal
	if eq == nil {
		eq = LooseEqual
	}
	op = normalize(op)

	if isNil(actual) {
		return op == OpEqual && isNil(expected)
	}

	switch op {
	case OpEqual:
		return eq(actual, expected)
	case OpNotEqual:
		return !eq(actual, expected)
	case OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual:
		c, ok := compare(actual, expected)
		if !ok {
			return false
		}
		switch op {
		case OpGreater:
			return c > 0
		case OpGreaterOrEqual:
			return c >= 0
		case OpLess:
			return c < 0
		default:
			return c <= 0
		}
	case OpIn, OpNotIn:
		items, ok := sequence(expected)
		if !ok {
			return false
		}
		found := containsAny(items, actual, eq)
		if op == OpIn {
			return found
		}
		return !found
	case OpContains, OpNotContains:
		items, ok := sequence(actual)
		if !ok {
			return false
		}
		found := containsAny(items, expected, eq)
		if op == OpContains {
			return found
		}
		return !found
	case OpEmpty:
		return IsEmpty(actual)
	case OpNotEmpty:
		return !IsEmpty(actual)
	}
	return false
}

func containsAny(items []any, needle any, eq Equality) bool {
	for _, it := range items {
		if eq(it, needle) {
			return true
		}
	}
	return false
}

// sequence unpacks slices and arrays; strings and maps are not sequences.
func sequence(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, false
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		// []byte is text, not a list
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// IsEmpty follows form semantics: nil, "", "0", 0, false and empty
// collections are empty.
func IsEmpty(v any) bool {
	if isNil(v) {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == "" || t == "0"
	case bool:
		return !t
	}
	if f, ok := toFloat(v); ok {
		return f == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	}
	return false
}
