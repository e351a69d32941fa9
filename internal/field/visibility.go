package field

import (
	"strings"

	"resourcekit/internal/condition"
)

// CircularDependencyError is returned when a field's visibility depends,
// directly or through other fields, on itself. Path is the evaluation stack
// ending with the repeated attribute.
type CircularDependencyError struct {
	Path []string
}

func (e *CircularDependencyError) Error() string {
	return "field: circular dependency: " + strings.Join(e.Path, " -> ")
}

// Siblings resolves an attribute to the field declaring it.
type Siblings func(attribute string) (*Field, bool)

// IsVisible evaluates the field on its own. Dependencies on other fields
// are plain comparisons against data and are never followed, so a cycle
// through a sibling is not detected here; only a self-dependency is.
// Callers holding a whole schema must use Resolver.IsVisible, which
// follows siblings and reports CircularDependencyError.
func (f *Field) IsVisible(data map[string]any) (bool, error) {
	self := func(attr string) (*Field, bool) {
		if attr == f.Attribute {
			return f, true
		}
		return nil, false
	}
	return f.visible(data, self, nil)
}

// visible runs the ordered hide checks. stack is this evaluation's path;
// it is passed by value so no cleanup is needed on any return.
func (f *Field) visible(data map[string]any, siblings Siblings, stack []string) (bool, error) {
	for _, attr := range stack {
		if attr == f.Attribute {
			path := make([]string, 0, len(stack)+1)
			path = append(append(path, stack...), f.Attribute)
			return false, &CircularDependencyError{Path: path}
		}
	}
	stack = append(stack[:len(stack):len(stack)], f.Attribute)

	if f.DependsOn != nil {
		ok, err := dependsOnPasses(f.DependsOn, data, siblings, stack)
		if err != nil || !ok {
			return false, err
		}
	}
	if f.ShowWhenFunc != nil && !f.ShowWhenFunc(data) {
		return false, nil
	}
	if f.ShowWhen != nil && !f.ShowWhen.Eval(data) {
		return false, nil
	}
	if f.HideWhenFunc != nil && f.HideWhenFunc(data) {
		return false, nil
	}
	if f.HideWhen != nil && f.HideWhen.Eval(data) {
		return false, nil
	}
	return true, nil
}

func dependsOnPasses(d *condition.DependsOn, data map[string]any, siblings Siblings, stack []string) (bool, error) {
	switch d.Mode {
	case condition.ModeAll:
		for _, c := range d.Conditions {
			ok, err := conditionPasses(c, data, siblings, stack)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case condition.ModeAny:
		for _, c := range d.Conditions {
			ok, err := conditionPasses(c, data, siblings, stack)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	if len(d.Conditions) == 0 {
		return true, nil
	}
	return conditionPasses(d.Conditions[0], data, siblings, stack)
}

// conditionPasses fails when the dependency field is itself hidden or the
// attribute is absent from data; otherwise it compares.
func conditionPasses(c condition.Condition, data map[string]any, siblings Siblings, stack []string) (bool, error) {
	if siblings != nil {
		if dep, ok := siblings(c.Attribute); ok {
			visible, err := dep.visible(data, siblings, stack)
			if err != nil || !visible {
				return false, err
			}
		}
	}
	if _, present := condition.Lookup(data, c.Attribute); !present {
		return false, nil
	}
	return c.Test(data), nil
}

// IsRequired reports static requiredness or a passing requiredWhen. It
// does not follow dependencies.
func (f *Field) IsRequired(data map[string]any) bool {
	if f.Required || f.HasRule("required") {
		return true
	}
	return f.RequiredWhen != nil && f.RequiredWhen.Eval(data)
}

// IsRequiredWhen reports only the conditional part of IsRequired.
func (f *Field) IsRequiredWhen(data map[string]any) bool {
	return f.RequiredWhen != nil && f.RequiredWhen.Eval(data)
}

// IsDisabled reports a passing disabledWhen.
func (f *Field) IsDisabled(data map[string]any) bool {
	return f.DisabledWhen != nil && f.DisabledWhen.Eval(data)
}
