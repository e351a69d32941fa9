package resource

import (
	"fmt"
	"sort"

	"resourcekit/internal/condition"
	"resourcekit/internal/field"
	"resourcekit/internal/store"
)

// Issue is one lint finding.
type Issue struct {
	Resource string `json:"resource"`
	Field    string `json:"field"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// Lint reports declarations that will misbehave at evaluation time:
// conditions on attributes no field declares, sort and search columns
// that are not identifiers, relational fields pointing at unknown
// resources (when known is non-nil). Findings are advisory.
func (d *Definition) Lint(known func(key string) bool) []Issue {
	var issues []Issue
	attrs := map[string]struct{}{}
	for _, f := range d.Fields() {
		attrs[f.Attribute] = struct{}{}
	}
	add := func(fieldName, code, msg string) {
		issues = append(issues, Issue{Resource: d.Key, Field: fieldName, Code: code, Message: msg})
	}
	checkAttr := func(owner, kind, attr string) {
		if _, ok := attrs[attr]; !ok {
			add(owner, "condition_attribute_unknown", fmt.Sprintf("%s references unknown attribute %q", kind, attr))
		}
	}

	for _, f := range d.Fields() {
		for _, a := range f.DependsOn.Attributes() {
			checkAttr(f.Attribute, "dependsOn", a)
		}
		for _, a := range nodeAttributes(f.ShowWhen) {
			checkAttr(f.Attribute, "showWhen", a)
		}
		for _, a := range nodeAttributes(f.HideWhen) {
			checkAttr(f.Attribute, "hideWhen", a)
		}
		for _, a := range f.RequiredWhen.Attributes() {
			checkAttr(f.Attribute, "requiredWhen", a)
		}
		for _, a := range f.DisabledWhen.Attributes() {
			checkAttr(f.Attribute, "disabledWhen", a)
		}
		if !store.ValidIdentifier(f.Attribute) && f.IsPersisted() {
			add(f.Attribute, "attribute_invalid", "attribute is not a plain identifier and cannot be stored")
		}
		if known != nil && f.RelationName() != "" && f.RelatedResource() != "" && !known(f.RelatedResource()) {
			add(f.Attribute, "relation_resource_unknown", fmt.Sprintf("related resource %q is not registered", f.RelatedResource()))
		}
	}
	seen := map[*condition.Condition]bool{}
	for _, s := range []field.Schema{d.Index, d.Show, d.Form} {
		for _, el := range s {
			var c *condition.Condition
			switch g := el.(type) {
			case *field.Group:
				c = g.DependsOn
			case *field.Section:
				c = g.DependsOn
			}
			if c != nil && !seen[c] {
				seen[c] = true
				checkAttr("", "group dependsOn", c.Attribute)
			}
		}
	}
	for _, col := range d.SearchColumns {
		if !store.ValidIdentifier(col) {
			add(col, "search_column_invalid", "search column is not a plain identifier")
		}
	}
	for _, col := range d.SortColumns {
		if !store.ValidIdentifier(col) {
			add(col, "sort_column_invalid", "sort column is not a plain identifier")
		}
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Field < issues[j].Field })
	return issues
}

func nodeAttributes(n condition.Node) []string {
	if n == nil {
		return nil
	}
	return n.Attributes()
}
