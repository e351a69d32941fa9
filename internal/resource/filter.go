package resource

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/now"

	"resourcekit/internal/field"
	"resourcekit/internal/store"
)

// Filter narrows an index query by one request value.
type Filter interface {
	Key() string
	// Apply mutates q. Empty values are ignored; unusable values are errors.
	Apply(q *store.Query, value any) error
	Descriptor() map[string]any
}

// SelectFilter matches a column against one value, or several when
// Multiple (comma separated strings are split).
type SelectFilter struct {
	Name     string
	Column   string
	Label    string
	Options  []field.Option
	Multiple bool
}

func (f *SelectFilter) Key() string { return f.Name }

func (f *SelectFilter) Apply(q *store.Query, value any) error {
	values := filterValues(value, f.Multiple)
	switch len(values) {
	case 0:
		return nil
	case 1:
		q.Where(column(f.Column, f.Name), store.Eq, values[0])
	default:
		q.WhereIn(column(f.Column, f.Name), values)
	}
	return nil
}

func (f *SelectFilter) Descriptor() map[string]any {
	opts := f.Options
	if opts == nil {
		opts = []field.Option{}
	}
	return map[string]any{"key": f.Name, "type": "select", "label": label(f.Label, f.Name), "options": opts, "multiple": f.Multiple}
}

// BooleanFilter matches a column against true or false.
type BooleanFilter struct {
	Name   string
	Column string
	Label  string
}

func (f *BooleanFilter) Key() string { return f.Name }

func (f *BooleanFilter) Apply(q *store.Query, value any) error {
	var b bool
	switch t := value.(type) {
	case nil:
		return nil
	case bool:
		b = t
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		parsed, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return fmt.Errorf("filter %s: %q is not a boolean", f.Name, t)
		}
		b = parsed
	default:
		return fmt.Errorf("filter %s: %v is not a boolean", f.Name, value)
	}
	q.Where(column(f.Column, f.Name), store.Eq, b)
	return nil
}

func (f *BooleanFilter) Descriptor() map[string]any {
	return map[string]any{"key": f.Name, "type": "boolean", "label": label(f.Label, f.Name)}
}

// DateRangeFilter accepts a preset (today, yesterday, this_week,
// this_month, this_year, last_7_days, last_30_days) or an explicit
// {from, to} pair / "from..to" string.
type DateRangeFilter struct {
	Name   string
	Column string
	Label  string
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// DatePresets lists the accepted preset names.
var DatePresets = []string{"today", "yesterday", "this_week", "this_month", "this_year", "last_7_days", "last_30_days"}

func (f *DateRangeFilter) Key() string { return f.Name }

func (f *DateRangeFilter) Apply(q *store.Query, value any) error {
	from, to, ok, err := f.Range(value)
	if err != nil || !ok {
		return err
	}
	col := column(f.Column, f.Name)
	if !from.IsZero() {
		q.Where(col, store.Gte, from)
	}
	if !to.IsZero() {
		q.Where(col, store.Lte, to)
	}
	return nil
}

// Range resolves value into bounds. ok is false for empty values; a zero
// bound is open.
func (f *DateRangeFilter) Range(value any) (from, to time.Time, ok bool, err error) {
	clock := time.Now
	if f.Now != nil {
		clock = f.Now
	}
	n := (&now.Config{WeekStartDay: time.Monday, TimeFormats: now.TimeFormats}).With(clock())

	var rawFrom, rawTo string
	switch t := value.(type) {
	case nil:
		return from, to, false, nil
	case string:
		t = strings.TrimSpace(t)
		switch t {
		case "":
			return from, to, false, nil
		case "today":
			return n.BeginningOfDay(), n.EndOfDay(), true, nil
		case "yesterday":
			y := now.With(n.AddDate(0, 0, -1))
			return y.BeginningOfDay(), y.EndOfDay(), true, nil
		case "this_week":
			return n.BeginningOfWeek(), n.EndOfWeek(), true, nil
		case "this_month":
			return n.BeginningOfMonth(), n.EndOfMonth(), true, nil
		case "this_year":
			return n.BeginningOfYear(), n.EndOfYear(), true, nil
		case "last_7_days":
			return now.With(n.AddDate(0, 0, -6)).BeginningOfDay(), n.EndOfDay(), true, nil
		case "last_30_days":
			return now.With(n.AddDate(0, 0, -29)).BeginningOfDay(), n.EndOfDay(), true, nil
		}
		var found bool
		rawFrom, rawTo, found = strings.Cut(t, "..")
		if !found {
			return from, to, false, fmt.Errorf("filter %s: unknown range %q", f.Name, t)
		}
	case map[string]any:
		rawFrom, _ = t["from"].(string)
		rawTo, _ = t["to"].(string)
	case map[string]string:
		rawFrom, rawTo = t["from"], t["to"]
	default:
		return from, to, false, fmt.Errorf("filter %s: unsupported value %v", f.Name, value)
	}

	if s := strings.TrimSpace(rawFrom); s != "" {
		parsed, err := n.Parse(s)
		if err != nil {
			return from, to, false, fmt.Errorf("filter %s: from: %w", f.Name, err)
		}
		from = now.With(parsed).BeginningOfDay()
	}
	if s := strings.TrimSpace(rawTo); s != "" {
		parsed, err := n.Parse(s)
		if err != nil {
			return from, to, false, fmt.Errorf("filter %s: to: %w", f.Name, err)
		}
		to = now.With(parsed).EndOfDay()
	}
	return from, to, !from.IsZero() || !to.IsZero(), nil
}

func (f *DateRangeFilter) Descriptor() map[string]any {
	return map[string]any{"key": f.Name, "type": "date_range", "label": label(f.Label, f.Name), "presets": DatePresets}
}

// NullFilter matches "present" (not null) or "missing" (null).
type NullFilter struct {
	Name   string
	Column string
	Label  string
}

func (f *NullFilter) Key() string { return f.Name }

func (f *NullFilter) Apply(q *store.Query, value any) error {
	s, _ := value.(string)
	switch strings.TrimSpace(s) {
	case "":
		return nil
	case "present":
		q.Where(column(f.Column, f.Name), store.NotNull, nil)
	case "missing":
		q.Where(column(f.Column, f.Name), store.IsNull, nil)
	default:
		return fmt.Errorf("filter %s: expected present or missing, got %q", f.Name, s)
	}
	return nil
}

func (f *NullFilter) Descriptor() map[string]any {
	return map[string]any{"key": f.Name, "type": "null", "label": label(f.Label, f.Name), "options": []string{"present", "missing"}}
}

func column(col, name string) string {
	if col != "" {
		return col
	}
	return name
}

func label(l, name string) string {
	if l != "" {
		return l
	}
	return field.DefaultLabel(name)
}

func filterValues(value any, split bool) []any {
	var out []any
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	switch t := value.(type) {
	case nil:
	case string:
		if split {
			for _, part := range strings.Split(t, ",") {
				add(part)
			}
		} else {
			add(t)
		}
	case []string:
		for _, s := range t {
			add(s)
		}
	case []any:
		for _, v := range t {
			if v != nil {
				out = append(out, v)
			}
		}
	default:
		out = append(out, value)
	}
	return out
}
