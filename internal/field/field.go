// Package field declares resource fields: their metadata, the conditions
// that drive their visibility/required/disabled state, and how each variant
// formats a stored value for output.
package field

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"resourcekit/internal/condition"
	"resourcekit/internal/store"
)

// Field is the base descriptor shared by every variant. Variant-specific
// options live in the typed config pointers; only the ones matching Kind
// are set.
type Field struct {
	Kind      Kind
	Attribute string
	Label     string
	Rules     string

	Sortable   bool
	Searchable bool
	Required   bool
	Nullable   bool
	Creatable  bool

	Default          any
	Cols             string
	ContainerClasses *string
	Help             string

	DependsOn    *condition.DependsOn
	ShowWhen     condition.Node
	HideWhen     condition.Node
	ShowWhenFunc condition.Callback
	HideWhenFunc condition.Callback
	RequiredWhen *condition.DependsOn
	DisabledWhen *condition.DependsOn

	Select   *SelectConfig
	Relation *RelationConfig
	Media    *MediaConfig
	Date     *DateConfig
	Number   *NumberConfig
	Text     *TextConfig
	Tag      *TagConfig
	Server   *ServerConfig
	JSON     *JSONConfig
}

// Opt configures a field at construction.
type Opt func(*Field)

const defaultCols = "col-span-12"

// DefaultLabel turns an attribute into a label: "team_id" -> "Team",
// "first_name" -> "First Name".
func DefaultLabel(attribute string) string {
	s := strings.TrimSuffix(attribute, "_id")
	s = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(s)
	return cases.Title(language.English).String(strings.TrimSpace(s))
}

// New builds a field of any kind. The typed constructors below are the
// usual entry points.
func New(kind Kind, attribute string, opts ...Opt) *Field {
	f := &Field{
		Kind:      kind,
		Attribute: attribute,
		Label:     DefaultLabel(attribute),
		Cols:      defaultCols,
		Creatable: true,
	}
	switch kind {
	case KindText, KindTextarea, KindEmail, KindPassword:
		f.Text = &TextConfig{}
		if kind == KindTextarea {
			f.Text.Rows = 4
		}
	case KindNumber:
		f.Number = &NumberConfig{}
	case KindDate:
		f.Date = &DateConfig{Format: "2006-01-02"}
	case KindDateTime:
		f.Date = &DateConfig{Format: "2006-01-02T15:04:05Z07:00"}
	case KindSelect:
		f.Select = &SelectConfig{Options: []Option{}}
	case KindBelongsTo:
		rel := strings.TrimSuffix(attribute, "_id")
		f.Relation = &RelationConfig{Resource: store.TableName(rel), Relation: rel, TitleAttribute: "name"}
	case KindBelongsToMany, KindHasMany:
		f.Relation = &RelationConfig{Resource: store.TableName(attribute), Relation: attribute, TitleAttribute: "name"}
	case KindMedia, KindImage:
		f.Media = &MediaConfig{Collection: "default"}
		if kind == KindImage {
			f.Media.Accept = []string{"image/*"}
		}
	case KindTagInput:
		f.Tag = &TagConfig{Separator: ","}
	case KindMultiSelectServer:
		f.Server = &ServerConfig{Multiple: true, MinChars: 1}
	case KindJSON:
		f.JSON = &JSONConfig{}
	case KindID:
		f.Label = "ID"
		f.Sortable = true
		f.Creatable = false
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func Text(attribute string, opts ...Opt) *Field     { return New(KindText, attribute, opts...) }
func Textarea(attribute string, opts ...Opt) *Field { return New(KindTextarea, attribute, opts...) }
func Number(attribute string, opts ...Opt) *Field   { return New(KindNumber, attribute, opts...) }
func Boolean(attribute string, opts ...Opt) *Field  { return New(KindBoolean, attribute, opts...) }
func Date(attribute string, opts ...Opt) *Field     { return New(KindDate, attribute, opts...) }
func DateTime(attribute string, opts ...Opt) *Field { return New(KindDateTime, attribute, opts...) }
func Email(attribute string, opts ...Opt) *Field    { return New(KindEmail, attribute, opts...) }
func Select(attribute string, opts ...Opt) *Field   { return New(KindSelect, attribute, opts...) }
func Media(attribute string, opts ...Opt) *Field    { return New(KindMedia, attribute, opts...) }
func Image(attribute string, opts ...Opt) *Field    { return New(KindImage, attribute, opts...) }
func Password(attribute string, opts ...Opt) *Field { return New(KindPassword, attribute, opts...) }
func JSON(attribute string, opts ...Opt) *Field     { return New(KindJSON, attribute, opts...) }
func Hidden(attribute string, opts ...Opt) *Field   { return New(KindHidden, attribute, opts...) }

// BelongsTo declares a foreign-key field; attribute is the key column
// ("team_id"), the relation and resource are derived from it.
func BelongsTo(attribute string, opts ...Opt) *Field {
	return New(KindBelongsTo, attribute, opts...)
}

// BelongsToMany declares a pivot-backed id collection named after the relation.
func BelongsToMany(attribute string, opts ...Opt) *Field {
	return New(KindBelongsToMany, attribute, opts...)
}

// HasMany declares a read-only child collection.
func HasMany(attribute string, opts ...Opt) *Field {
	return New(KindHasMany, attribute, opts...)
}

func TagInput(attribute string, opts ...Opt) *Field   { return New(KindTagInput, attribute, opts...) }
func IconPicker(attribute string, opts ...Opt) *Field { return New(KindIconPicker, attribute, opts...) }

// MultiSelectServer declares a multi select whose options come from endpoint.
func MultiSelectServer(attribute, endpoint string, opts ...Opt) *Field {
	f := New(KindMultiSelectServer, attribute)
	f.Server.Endpoint = endpoint
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ID declares the primary key column.
func ID(opts ...Opt) *Field { return New(KindID, "id", opts...) }

// Options.

func Label(label string) Opt { return func(f *Field) { f.Label = label } }
func Rules(rules string) Opt { return func(f *Field) { f.Rules = rules } }
func Sortable() Opt          { return func(f *Field) { f.Sortable = true } }
func Searchable() Opt        { return func(f *Field) { f.Searchable = true } }
func Required() Opt          { return func(f *Field) { f.Required = true } }
func Nullable() Opt          { return func(f *Field) { f.Nullable = true } }
func Default(v any) Opt      { return func(f *Field) { f.Default = v } }
func Cols(cols string) Opt   { return func(f *Field) { f.Cols = cols } }
func Help(text string) Opt   { return func(f *Field) { f.Help = text } }

// NotCreatable hides the field from create forms.
func NotCreatable() Opt { return func(f *Field) { f.Creatable = false } }

func ContainerClasses(classes string) Opt {
	return func(f *Field) { f.ContainerClasses = &classes }
}

// DependsOn shows the field only when attribute compares true against value.
func DependsOn(attribute string, value any, op ...condition.Operator) Opt {
	return func(f *Field) { f.DependsOn = condition.Single(condition.When(attribute, value, op...)) }
}

// DependsOnAll shows the field only when every condition passes.
func DependsOnAll(conds ...condition.Condition) Opt {
	return func(f *Field) { f.DependsOn = condition.All(conds...) }
}

// DependsOnAny shows the field when at least one condition passes.
func DependsOnAny(conds ...condition.Condition) Opt {
	return func(f *Field) { f.DependsOn = condition.Any(conds...) }
}

func ShowWhen(n condition.Node) Opt { return func(f *Field) { f.ShowWhen = n } }
func HideWhen(n condition.Node) Opt { return func(f *Field) { f.HideWhen = n } }

// ShowWhenFunc adds a backend-only predicate; false hides the field.
func ShowWhenFunc(fn func(map[string]any) bool) Opt {
	return func(f *Field) { f.ShowWhenFunc = fn }
}

// HideWhenFunc adds a backend-only predicate; true hides the field.
func HideWhenFunc(fn func(map[string]any) bool) Opt {
	return func(f *Field) { f.HideWhenFunc = fn }
}

func RequiredWhen(attribute string, value any, op ...condition.Operator) Opt {
	return func(f *Field) { f.RequiredWhen = condition.Single(condition.When(attribute, value, op...)) }
}

func DisabledWhen(attribute string, value any, op ...condition.Operator) Opt {
	return func(f *Field) { f.DisabledWhen = condition.Single(condition.When(attribute, value, op...)) }
}

// Placeholder applies to text-like inputs.
func Placeholder(text string) Opt {
	return func(f *Field) {
		if f.Text != nil {
			f.Text.Placeholder = text
		}
	}
}

func MaxLength(n int) Opt {
	return func(f *Field) {
		if f.Text != nil {
			f.Text.MaxLength = n
		}
	}
}

// Options sets select choices.
func Options(opts ...Option) Opt {
	return func(f *Field) {
		if f.Select != nil {
			f.Select.Options = append(f.Select.Options, opts...)
		}
	}
}

// Multiple lets select, media and server fields hold several values.
func Multiple() Opt {
	return func(f *Field) {
		switch {
		case f.Select != nil:
			f.Select.Multiple = true
		case f.Media != nil:
			f.Media.Multiple = true
		case f.Server != nil:
			f.Server.Multiple = true
		}
	}
}

// Resource points a relational field at another resource. For select and
// server fields it also names the relation unless one is set.
func Resource(key string) Opt {
	return func(f *Field) {
		switch {
		case f.Select != nil:
			f.Select.Resource = key
			if f.Select.Relation == "" {
				f.Select.Relation = f.Attribute
			}
		case f.Server != nil:
			f.Server.Resource = key
			if f.Server.Relation == "" {
				f.Server.Relation = f.Attribute
			}
		case f.Relation != nil:
			f.Relation.Resource = key
		}
	}
}

// Relation overrides the relation name.
func Relation(name string) Opt {
	return func(f *Field) {
		switch {
		case f.Select != nil:
			f.Select.Relation = name
		case f.Server != nil:
			f.Server.Relation = name
		case f.Relation != nil:
			f.Relation.Relation = name
		}
	}
}

func TitleAttribute(attr string) Opt {
	return func(f *Field) {
		if f.Relation != nil {
			f.Relation.TitleAttribute = attr
		}
	}
}

// EnforceUniqueRelated makes every related id belong to at most one parent:
// syncing it here detaches it from every other parent first.
func EnforceUniqueRelated() Opt {
	return func(f *Field) {
		switch {
		case f.Select != nil:
			f.Select.EnforceUniqueRelated = true
		case f.Server != nil:
			f.Server.EnforceUniqueRelated = true
		case f.Relation != nil:
			f.Relation.EnforceUniqueRelated = true
		}
	}
}

func Collection(name string) Opt {
	return func(f *Field) {
		if f.Media != nil {
			f.Media.Collection = name
		}
	}
}

// Format sets the Go time layout used for date output.
func Format(layout string) Opt {
	return func(f *Field) {
		if f.Date != nil {
			f.Date.Format = layout
		}
	}
}

// Range bounds a number field.
func Range(lo, hi float64) Opt {
	return func(f *Field) {
		if f.Number != nil {
			f.Number.Min, f.Number.Max = &lo, &hi
		}
	}
}

func Step(step float64) Opt {
	return func(f *Field) {
		if f.Number != nil {
			f.Number.Step = &step
		}
	}
}

func Suggestions(values ...string) Opt {
	return func(f *Field) {
		if f.Tag != nil {
			f.Tag.Suggestions = values
		}
	}
}

// RelationName is the model relation behind a relational field, "" for
// plain columns.
func (f *Field) RelationName() string {
	switch {
	case f.Select != nil && f.Select.Resource != "":
		return f.Select.Relation
	case f.Server != nil && f.Server.Resource != "":
		return f.Server.Relation
	case f.Relation != nil:
		return f.Relation.Relation
	}
	return ""
}

// RelatedResource is the resource key a relational field points at.
func (f *Field) RelatedResource() string {
	switch {
	case f.Select != nil:
		return f.Select.Resource
	case f.Server != nil:
		return f.Server.Resource
	case f.Relation != nil:
		return f.Relation.Resource
	}
	return ""
}

// EnforcesUniqueRelated reports whether syncing this field must first
// detach its ids from other parents.
func (f *Field) EnforcesUniqueRelated() bool {
	switch {
	case f.Select != nil:
		return f.Select.EnforceUniqueRelated
	case f.Server != nil:
		return f.Server.EnforceUniqueRelated
	case f.Relation != nil:
		return f.Relation.EnforceUniqueRelated
	}
	return false
}

// HasRule reports whether the rule string carries the named rule.
func (f *Field) HasRule(name string) bool {
	for _, part := range strings.Split(f.Rules, "|") {
		rule, _, _ := strings.Cut(strings.TrimSpace(part), ":")
		if rule == name {
			return true
		}
	}
	return false
}

// ValidationRules is the rule string with the Required flag folded in.
func (f *Field) ValidationRules() string {
	if f.Required && !f.HasRule("required") {
		if f.Rules == "" {
			return "required"
		}
		return "required|" + f.Rules
	}
	return f.Rules
}
