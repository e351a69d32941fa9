package validation

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Lookup answers unique/exists rules. store.Store satisfies it.
type Lookup interface {
	Exists(ctx context.Context, table, column string, value any, exceptID string) (bool, error)
}

// Validator checks payloads against rule strings. Format checks are
// delegated to go-playground/validator through the tags below.
type Validator struct {
	lookup Lookup
	v      *validator.Validate
}

// tags maps rule names onto validator tags.
var tags = map[string]string{
	"email":     "email",
	"url":       "url",
	"uuid":      "uuid",
	"alpha":     "alpha",
	"alpha_num": "alphanum",
	"json":      "json",
	"numeric":   "numeric",
	"boolean":   "boolean",
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

var messages = map[string]string{
	"required":  "The %s field is required.",
	"string":    "The %s must be a string.",
	"integer":   "The %s must be an integer.",
	"numeric":   "The %s must be a number.",
	"boolean":   "The %s field must be true or false.",
	"array":     "The %s must be an array.",
	"email":     "The %s must be a valid email address.",
	"url":       "The %s must be a valid URL.",
	"uuid":      "The %s must be a valid UUID.",
	"date":      "The %s is not a valid date.",
	"json":      "The %s must be a valid JSON string.",
	"alpha":     "The %s may only contain letters.",
	"alpha_num": "The %s may only contain letters and numbers.",
	"in":        "The selected %s is invalid.",
	"not_in":    "The selected %s is invalid.",
	"regex":     "The %s format is invalid.",
	"confirmed": "The %s confirmation does not match.",
	"unique":    "The %s has already been taken.",
	"exists":    "The selected %s is invalid.",
}

var codes = map[string]string{
	"required":  ErrRequired,
	"string":    ErrTypeMismatch,
	"integer":   ErrTypeMismatch,
	"numeric":   ErrTypeMismatch,
	"boolean":   ErrTypeMismatch,
	"array":     ErrTypeMismatch,
	"date":      ErrTypeMismatch,
	"in":        ErrEnumInvalid,
	"not_in":    ErrEnumInvalid,
	"unique":    ErrUniqueViolation,
	"exists":    ErrRefNotFound,
	"confirmed": ErrConfirmation,
	"min":       ErrSize,
	"max":       ErrSize,
	"between":   ErrSize,
	"size":      ErrSize,
}

// New returns a validator. lookup may be nil when no rule needs the store.
func New(lookup Lookup) *Validator {
	return &Validator{lookup: lookup, v: validator.New()}
}

// Validate checks data against rules keyed by attribute. Rule failures come
// back as Errors (nil when valid); the error return is reserved for broken
// rules and lookup failures. Each attribute stops at its first failure.
func (v *Validator) Validate(ctx context.Context, data map[string]any, rules map[string]string) (Errors, error) {
	attrs := make([]string, 0, len(rules))
	for attr := range rules {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)

	var errs Errors
	for _, attr := range attrs {
		fe, err := v.check(ctx, attr, data, Parse(rules[attr]))
		if err != nil {
			return nil, fmt.Errorf("validation: %s: %w", attr, err)
		}
		if fe != nil {
			errs = append(errs, *fe)
		}
	}
	return errs, nil
}

func (v *Validator) check(ctx context.Context, attr string, data map[string]any, rules []Rule) (*FieldError, error) {
	has := func(name string) bool {
		for _, r := range rules {
			if r.Name == name {
				return true
			}
		}
		return false
	}
	value, present := data[attr]
	if !present || blank(value) {
		if has("required") {
			return fail(attr, "required", nil), nil
		}
		return nil, nil
	}

	numericCtx := has("numeric") || has("integer")
	for _, r := range rules {
		ok, err := v.passes(ctx, attr, value, data, r, numericCtx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return fail(attr, r.Name, r.Params, sizeKind(value, numericCtx)), nil
		}
	}
	return nil, nil
}

func (v *Validator) passes(ctx context.Context, attr string, value any, data map[string]any, r Rule, numericCtx bool) (bool, error) {
	switch r.Name {
	case "required", "nullable", "sometimes", "bail":
		return true, nil
	case "string":
		_, ok := value.(string)
		return ok, nil
	case "integer":
		return isInteger(value), nil
	case "numeric":
		if _, ok := toFloat(value); ok {
			return true, nil
		}
		s, ok := value.(string)
		return ok && v.tag(s, r.Name), nil
	case "boolean":
		switch t := value.(type) {
		case bool:
			return true, nil
		case string:
			return v.tag(t, r.Name), nil
		}
		f, ok := toFloat(value)
		return ok && (f == 0 || f == 1), nil
	case "array":
		k := reflect.ValueOf(value).Kind()
		return k == reflect.Slice || k == reflect.Array || k == reflect.Map, nil
	case "email", "url", "uuid", "alpha", "alpha_num", "json":
		s, ok := value.(string)
		return ok && v.tag(s, r.Name), nil
	case "date":
		if _, ok := value.(time.Time); ok {
			return true, nil
		}
		if !isString(value) {
			return false, nil
		}
		for _, layout := range dateLayouts {
			if v.v.Var(value, "datetime="+layout) == nil {
				return true, nil
			}
		}
		return false, nil
	case "min", "max", "size":
		if len(r.Params) != 1 {
			return false, fmt.Errorf("rule %s needs one parameter", r.Name)
		}
		tag := map[string]string{"min": "min", "max": "max", "size": "len"}[r.Name]
		return v.size(value, numericCtx, tag+"="+r.Params[0])
	case "between":
		if len(r.Params) != 2 {
			return false, fmt.Errorf("rule between needs two parameters")
		}
		return v.size(value, numericCtx, "min="+r.Params[0]+",max="+r.Params[1])
	case "in", "not_in":
		found := true
		for _, item := range items(value) {
			if !contains(r.Params, stringOf(item)) {
				found = false
				break
			}
		}
		if r.Name == "in" {
			return found, nil
		}
		for _, item := range items(value) {
			if contains(r.Params, stringOf(item)) {
				return false, nil
			}
		}
		return true, nil
	case "regex":
		if len(r.Params) != 1 {
			return false, fmt.Errorf("rule regex needs a pattern")
		}
		re, err := regexp.Compile(strings.Trim(r.Params[0], "/"))
		if err != nil {
			return false, fmt.Errorf("rule regex: %w", err)
		}
		s, ok := value.(string)
		return ok && re.MatchString(s), nil
	case "confirmed":
		other, ok := data[attr+"_confirmation"]
		return ok && stringOf(other) == stringOf(value), nil
	case "unique":
		if v.lookup == nil {
			return false, fmt.Errorf("rule unique needs a lookup")
		}
		table, column, except := ruleTarget(r, attr)
		if table == "" {
			return false, fmt.Errorf("rule unique needs a table")
		}
		exists, err := v.lookup.Exists(ctx, table, column, value, except)
		return !exists, err
	case "exists":
		if v.lookup == nil {
			return false, fmt.Errorf("rule exists needs a lookup")
		}
		table, column, _ := ruleTarget(r, attr)
		if table == "" {
			return false, fmt.Errorf("rule exists needs a table")
		}
		for _, item := range items(value) {
			ok, err := v.lookup.Exists(ctx, table, column, item, "")
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
	return false, fmt.Errorf("unknown rule %q", r.Name)
}

func (v *Validator) tag(value any, rule string) bool {
	return v.v.Var(value, tags[rule]) == nil
}

// size runs a min/max/len tag against the measurable form of value:
// numbers by value, strings by rune count, collections by length.
func (v *Validator) size(value any, numericCtx bool, tag string) (bool, error) {
	measured := value
	if f, ok := toFloat(value); ok && (numericCtx || !isString(value)) {
		measured = f
	}
	switch reflect.ValueOf(measured).Kind() {
	case reflect.Float64, reflect.String, reflect.Slice, reflect.Array, reflect.Map:
	default:
		return false, nil
	}
	if _, isNum := measured.(float64); !isNum {
		for _, part := range strings.Split(tag, ",") {
			_, param, _ := strings.Cut(part, "=")
			if _, err := strconv.Atoi(param); err != nil {
				return false, fmt.Errorf("size parameter %q must be an integer", param)
			}
		}
	} else {
		for _, part := range strings.Split(tag, ",") {
			_, param, _ := strings.Cut(part, "=")
			if _, err := strconv.ParseFloat(param, 64); err != nil {
				return false, fmt.Errorf("size parameter %q must be a number", param)
			}
		}
	}
	return v.v.Var(measured, tag) == nil, nil
}

func ruleTarget(r Rule, attr string) (table, column, except string) {
	if len(r.Params) > 0 {
		table = r.Params[0]
	}
	column = attr
	if len(r.Params) > 1 && r.Params[1] != "" && !strings.EqualFold(r.Params[1], "NULL") {
		column = r.Params[1]
	}
	if len(r.Params) > 2 && !strings.EqualFold(r.Params[2], "NULL") {
		except = r.Params[2]
	}
	return table, column, except
}

func fail(attr, rule string, params []string, kind ...string) *FieldError {
	label := strings.ReplaceAll(attr, "_", " ")
	code := codes[rule]
	if code == "" {
		code = ErrInvalid
	}
	var msg string
	switch rule {
	case "min", "max", "size", "between":
		msg = sizeMessage(label, rule, params, kind)
	default:
		tmpl, ok := messages[rule]
		if !ok {
			tmpl = "The %s is invalid."
		}
		msg = fmt.Sprintf(tmpl, label)
	}
	return &FieldError{Code: code, Field: attr, Message: msg}
}

func sizeMessage(label, rule string, params, kind []string) string {
	unit := ""
	if len(kind) > 0 {
		switch kind[0] {
		case "string":
			unit = " characters"
		case "array":
			unit = " items"
		}
	}
	p := func(i int) string {
		if i < len(params) {
			return params[i]
		}
		return ""
	}
	switch rule {
	case "min":
		return fmt.Sprintf("The %s must be at least %s%s.", label, p(0), unit)
	case "max":
		return fmt.Sprintf("The %s may not be greater than %s%s.", label, p(0), unit)
	case "size":
		return fmt.Sprintf("The %s must be %s%s.", label, p(0), unit)
	}
	return fmt.Sprintf("The %s must be between %s and %s%s.", label, p(0), p(1), unit)
}

func sizeKind(value any, numericCtx bool) string {
	if _, ok := toFloat(value); ok && (numericCtx || !isString(value)) {
		return "numeric"
	}
	if isString(value) {
		return "string"
	}
	return "array"
}

// blank is true for nil, whitespace-only strings and empty collections.
func blank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func isInteger(v any) bool {
	switch t := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return t == float64(int64(t))
	case float32:
		return t == float32(int64(t))
	case string:
		_, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return err == nil
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func items(v any) []any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func contains(list []string, s string) bool {
	for _, it := range list {
		if it == s {
			return true
		}
	}
	return false
}

func stringOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
	}
	return fmt.Sprint(v)
}
