// Package validation checks payloads against pipe-separated rule strings
// such as "required|string|max:255|unique:users,email".
package validation

import "strings"

// Rule is one parsed rule with its comma-separated parameters.
type Rule struct {
	Name   string
	Params []string
}

func (r Rule) String() string {
	if len(r.Params) == 0 {
		return r.Name
	}
	return r.Name + ":" + strings.Join(r.Params, ",")
}

// Parse splits a rule string. regex parameters keep their commas.
func Parse(rules string) []Rule {
	var out []Rule
	for _, part := range strings.Split(rules, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, params, hasParams := strings.Cut(part, ":")
		r := Rule{Name: strings.ToLower(strings.TrimSpace(name))}
		if hasParams {
			if r.Name == "regex" || r.Name == "not_regex" {
				r.Params = []string{params}
			} else {
				for _, p := range strings.Split(params, ",") {
					r.Params = append(r.Params, strings.TrimSpace(p))
				}
			}
		}
		out = append(out, r)
	}
	return out
}

// Format joins rules back into a rule string.
func Format(rules []Rule) string {
	parts := make([]string, 0, len(rules))
	for _, r := range rules {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, "|")
}

// Has reports whether the rule string contains the named rule.
func Has(rules, name string) bool {
	for _, r := range Parse(rules) {
		if r.Name == name {
			return true
		}
	}
	return false
}

// StripRequired removes every "required" rule.
func StripRequired(rules string) string {
	parsed := Parse(rules)
	kept := parsed[:0]
	for _, r := range parsed {
		if r.Name != "required" {
			kept = append(kept, r)
		}
	}
	return Format(kept)
}

// AddRequired prepends "required" unless present.
func AddRequired(rules string) string {
	if Has(rules, "required") {
		return rules
	}
	if strings.TrimSpace(rules) == "" {
		return "required"
	}
	return "required|" + rules
}

// QualifyUnique fills the table and column of unique rules that leave
// them out, so "unique" on users.email reads "unique:users,email".
func QualifyUnique(rules, table, attribute string) string {
	parsed := Parse(rules)
	for i, r := range parsed {
		if r.Name != "unique" {
			continue
		}
		params := append([]string(nil), r.Params...)
		for len(params) < 2 {
			params = append(params, "")
		}
		if params[0] == "" {
			params[0] = table
		}
		if params[1] == "" || strings.EqualFold(params[1], "NULL") {
			params[1] = attribute
		}
		parsed[i].Params = params
	}
	return Format(parsed)
}

// RewriteUnique makes every unique rule ignore the row with id, filling
// the column with attribute when the rule left it out.
func RewriteUnique(rules, attribute, id string) string {
	parsed := Parse(rules)
	for i, r := range parsed {
		if r.Name != "unique" || len(r.Params) == 0 {
			continue
		}
		params := append([]string(nil), r.Params...)
		for len(params) < 3 {
			params = append(params, "")
		}
		if params[1] == "" || strings.EqualFold(params[1], "NULL") {
			params[1] = attribute
		}
		params[2] = id
		parsed[i].Params = params
	}
	return Format(parsed)
}

// Narrow keeps only the rules of attributes present in data.
func Narrow(rules map[string]string, data map[string]any) map[string]string {
	out := make(map[string]string, len(data))
	for attr, r := range rules {
		if _, ok := data[attr]; ok {
			out[attr] = r
		}
	}
	return out
}
