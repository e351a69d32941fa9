package validation

import (
	"sort"
	"strings"
)

// Error codes carried by FieldError.
const (
	ErrRequired        = "required"
	ErrTypeMismatch    = "type_mismatch"
	ErrInvalid         = "invalid"
	ErrEnumInvalid     = "enum_invalid"
	ErrUniqueViolation = "unique_violation"
	ErrRefNotFound     = "ref_not_found"
	ErrSize            = "size"
	ErrConfirmation    = "confirmation"
)

// FieldError is one failed rule.
type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is the list of failures of one payload. A nil Errors means valid.
type Errors []FieldError

func (e Errors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, fe := range e {
		msgs = append(msgs, fe.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// ByField groups messages per attribute, in rule order.
func (e Errors) ByField() map[string][]string {
	out := make(map[string][]string, len(e))
	for _, fe := range e {
		out[fe.Field] = append(out[fe.Field], fe.Message)
	}
	return out
}

// Fields lists the failing attributes, sorted.
func (e Errors) Fields() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, fe := range e {
		if _, ok := seen[fe.Field]; !ok {
			seen[fe.Field] = struct{}{}
			out = append(out, fe.Field)
		}
	}
	sort.Strings(out)
	return out
}

// Has reports whether field failed with code ("" matches any code).
func (e Errors) Has(field, code string) bool {
	for _, fe := range e {
		if fe.Field == field && (code == "" || fe.Code == code) {
			return true
		}
	}
	return false
}
