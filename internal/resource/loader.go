package resource

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"resourcekit/internal/condition"
	"resourcekit/internal/field"
	"resourcekit/internal/reference"
)

// fileDecl is one resource YAML file.
type fileDecl struct {
	Key        string       `yaml:"key"`
	Label      string       `yaml:"label"`
	Table      string       `yaml:"table"`
	Searchable bool         `yaml:"searchable"`
	Search     []string     `yaml:"search"`
	Sort       []string     `yaml:"sort"`
	PerPage    int          `yaml:"per_page"`
	Fields     []fieldDecl  `yaml:"fields"`
	Filters    []filterDecl `yaml:"filters"`
	Actions    []actionDecl `yaml:"actions"`
}

// fieldDecl is a field, or a group/section holding nested fields.
type fieldDecl struct {
	Type      string   `yaml:"type"`
	Attribute string   `yaml:"attribute"`
	Label     string   `yaml:"label"`
	Rules     string   `yaml:"rules"`
	Views     []string `yaml:"views"`

	Sortable   bool    `yaml:"sortable"`
	Searchable bool    `yaml:"searchable"`
	Required   bool    `yaml:"required"`
	Nullable   bool    `yaml:"nullable"`
	Creatable  *bool   `yaml:"creatable"`
	Default    any     `yaml:"default"`
	Cols       string  `yaml:"cols"`
	Classes    *string `yaml:"container_classes"`
	Help       string  `yaml:"help"`

	DependsOn    any `yaml:"depends_on"`
	ShowWhen     any `yaml:"show_when"`
	HideWhen     any `yaml:"hide_when"`
	RequiredWhen any `yaml:"required_when"`
	DisabledWhen any `yaml:"disabled_when"`

	Options        []field.Option `yaml:"options"`
	OptionsCatalog string         `yaml:"options_catalog"`
	Multiple       bool           `yaml:"multiple"`
	Resource       string         `yaml:"resource"`
	Relation       string         `yaml:"relation"`
	TitleAttribute string         `yaml:"title_attribute"`
	EnforceUnique  bool           `yaml:"enforce_unique_related"`
	Collection     string         `yaml:"collection"`
	Format         string         `yaml:"format"`
	Endpoint       string         `yaml:"endpoint"`
	Min            *float64       `yaml:"min"`
	Max            *float64       `yaml:"max"`
	Step           *float64       `yaml:"step"`
	Placeholder    string         `yaml:"placeholder"`
	MaxLength      int            `yaml:"max_length"`
	Suggestions    []string       `yaml:"suggestions"`

	// group / section
	Title       string      `yaml:"title"`
	Description string      `yaml:"description"`
	Collapsible bool        `yaml:"collapsible"`
	Collapsed   bool        `yaml:"collapsed"`
	Fields      []fieldDecl `yaml:"fields"`
}

type filterDecl struct {
	Type           string         `yaml:"type"`
	Name           string         `yaml:"name"`
	Column         string         `yaml:"column"`
	Label          string         `yaml:"label"`
	Options        []field.Option `yaml:"options"`
	OptionsCatalog string         `yaml:"options_catalog"`
	Multiple       bool           `yaml:"multiple"`
}

type actionDecl struct {
	Type       string         `yaml:"type"`
	Key        string         `yaml:"key"`
	Label      string         `yaml:"label"`
	Attributes map[string]any `yaml:"attributes"`
	Editable   []string       `yaml:"editable"`
}

// LoadDir reads every *.yaml / *.yml under dir (recursively) and registers
// one factory per resource. Each file is built once up front so broken
// declarations fail at startup instead of on first request.
func LoadDir(r *Registry, dir string, catalog reference.Catalog) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := filepath.Ext(path)
		if d.IsDir() || (ext != ".yaml" && ext != ".yml") {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		key, factory, err := Parse(raw, strings.TrimSuffix(filepath.Base(path), ext), catalog)
		if err != nil {
			return fmt.Errorf("resource: %s: %w", path, err)
		}
		r.Register(key, factory)
		keys = append(keys, key)
		return nil
	})
	return keys, err
}

// Parse decodes one resource declaration. fallbackKey is used when the
// file does not name its key.
func Parse(raw []byte, fallbackKey string, catalog reference.Catalog) (string, Factory, error) {
	var decl fileDecl
	if err := yaml.Unmarshal(raw, &decl); err != nil {
		return "", nil, err
	}
	if decl.Key == "" {
		decl.Key = fallbackKey
	}
	if decl.Key == "" {
		return "", nil, fmt.Errorf("resource key is empty")
	}
	if _, err := decl.build(catalog); err != nil {
		return "", nil, err
	}
	factory := func() *Definition {
		def, err := decl.build(catalog)
		if err != nil {
			// the same declaration built cleanly at load time
			panic(fmt.Sprintf("resource %s: %v", decl.Key, err))
		}
		return def
	}
	return decl.Key, factory, nil
}

func (decl fileDecl) build(catalog reference.Catalog) (*Definition, error) {
	def := New(decl.Key)
	if decl.Label != "" {
		def.Label = decl.Label
	}
	def.Searchable = decl.Searchable
	def.SearchColumns = decl.Search
	def.SortColumns = decl.Sort
	if decl.PerPage > 0 {
		def.PerPage = decl.PerPage
	}

	def.Index, def.Show, def.Form = field.Schema{}, field.Schema{}, field.Schema{}
	for i, fd := range decl.Fields {
		el, err := fd.element(catalog)
		if err != nil {
			return nil, fmt.Errorf("fields[%d]: %w", i, err)
		}
		for _, v := range fd.views() {
			switch v {
			case ViewIndex:
				def.Index = append(def.Index, el)
			case ViewShow:
				def.Show = append(def.Show, el)
			case ViewForm:
				def.Form = append(def.Form, el)
			}
		}
	}

	for i, fd := range decl.Filters {
		f, err := fd.filter(catalog)
		if err != nil {
			return nil, fmt.Errorf("filters[%d]: %w", i, err)
		}
		def.Filters = append(def.Filters, f)
	}
	for i, ad := range decl.Actions {
		switch ad.Type {
		case "update":
			def.Actions = append(def.Actions, &UpdateAction{ActionKey: ad.Key, Label: ad.Label, Attributes: ad.Attributes, Editable: ad.Editable})
		case "delete":
			def.Actions = append(def.Actions, &DeleteAction{ActionKey: ad.Key, Label: ad.Label})
		default:
			return nil, fmt.Errorf("actions[%d]: unknown type %q", i, ad.Type)
		}
	}

	if decl.Table != "" {
		def.Model = ModelFor(decl.Table, def.Fields())
	}
	return def, nil
}

func (fd fieldDecl) views() []View {
	if len(fd.Views) == 0 {
		return []View{ViewIndex, ViewShow, ViewForm}
	}
	out := make([]View, 0, len(fd.Views))
	for _, v := range fd.Views {
		out = append(out, View(v))
	}
	return out
}

func (fd fieldDecl) element(catalog reference.Catalog) (field.Element, error) {
	switch fd.Type {
	case "group", "section":
		children := make([]*field.Field, 0, len(fd.Fields))
		for i, child := range fd.Fields {
			f, err := child.field(catalog)
			if err != nil {
				return nil, fmt.Errorf("fields[%d]: %w", i, err)
			}
			children = append(children, f)
		}
		var cond *condition.Condition
		if fd.DependsOn != nil {
			c, err := condition.DecodeCondition(fd.DependsOn)
			if err != nil {
				return nil, fmt.Errorf("depends_on: %w", err)
			}
			cond = &c
		}
		if fd.Type == "group" {
			g := field.NewGroup(children...)
			g.DependsOn = cond
			if fd.Cols != "" {
				g.Cols = fd.Cols
			}
			return g, nil
		}
		s := field.NewSection(fd.Title, children...)
		s.DependsOn = cond
		s.Description = fd.Description
		s.Collapsible = fd.Collapsible || fd.Collapsed
		s.Collapsed = fd.Collapsed
		return s, nil
	}
	return fd.field(catalog)
}

var kinds = map[string]field.Kind{}

func init() {
	for _, k := range []field.Kind{
		field.KindText, field.KindTextarea, field.KindNumber, field.KindBoolean,
		field.KindDate, field.KindDateTime, field.KindEmail, field.KindSelect,
		field.KindBelongsTo, field.KindBelongsToMany, field.KindHasMany,
		field.KindMedia, field.KindImage, field.KindPassword, field.KindJSON,
		field.KindTagInput, field.KindIconPicker, field.KindMultiSelectServer,
		field.KindID, field.KindHidden,
	} {
		kinds[string(k)] = k
	}
}

func (fd fieldDecl) field(catalog reference.Catalog) (*field.Field, error) {
	kind, ok := kinds[fd.Type]
	if !ok {
		return nil, fmt.Errorf("unknown field type %q", fd.Type)
	}
	attr := fd.Attribute
	if kind == field.KindID && attr == "" {
		attr = "id"
	}
	if strings.TrimSpace(attr) == "" {
		return nil, fmt.Errorf("%s field without attribute", fd.Type)
	}

	opts := []field.Opt{field.Rules(fd.Rules)}
	if fd.Label != "" {
		opts = append(opts, field.Label(fd.Label))
	}
	flags := []struct {
		on  bool
		opt field.Opt
	}{
		{fd.Sortable, field.Sortable()},
		{fd.Searchable, field.Searchable()},
		{fd.Required, field.Required()},
		{fd.Nullable, field.Nullable()},
		{fd.Multiple, field.Multiple()},
		{fd.EnforceUnique, field.EnforceUniqueRelated()},
		{fd.Creatable != nil && !*fd.Creatable, field.NotCreatable()},
		{fd.Default != nil, field.Default(fd.Default)},
		{fd.Cols != "", field.Cols(fd.Cols)},
		{fd.Classes != nil, containerClasses(fd.Classes)},
		{fd.Help != "", field.Help(fd.Help)},
		{fd.Resource != "", field.Resource(fd.Resource)},
		{fd.Relation != "", field.Relation(fd.Relation)},
		{fd.TitleAttribute != "", field.TitleAttribute(fd.TitleAttribute)},
		{fd.Collection != "", field.Collection(fd.Collection)},
		{fd.Format != "", field.Format(fd.Format)},
		{fd.Placeholder != "", field.Placeholder(fd.Placeholder)},
		{fd.MaxLength > 0, field.MaxLength(fd.MaxLength)},
		{len(fd.Suggestions) > 0, field.Suggestions(fd.Suggestions...)},
		{len(fd.Options) > 0, field.Options(fd.Options...)},
	}
	for _, fl := range flags {
		if fl.on {
			opts = append(opts, fl.opt)
		}
	}

	f := field.New(kind, attr, opts...)
	if f.Number != nil {
		f.Number.Min, f.Number.Max, f.Number.Step = fd.Min, fd.Max, fd.Step
	}
	if f.Server != nil {
		f.Server.Endpoint = fd.Endpoint
	}
	if fd.OptionsCatalog != "" {
		options, err := catalog.Options(fd.OptionsCatalog, time.Now())
		if err != nil {
			return nil, err
		}
		field.Options(options...)(f)
	}

	var err error
	if f.DependsOn, err = condition.DecodeDependsOn(fd.DependsOn); err != nil {
		return nil, fmt.Errorf("%s: depends_on: %w", attr, err)
	}
	if f.RequiredWhen, err = condition.DecodeDependsOn(fd.RequiredWhen); err != nil {
		return nil, fmt.Errorf("%s: required_when: %w", attr, err)
	}
	if f.DisabledWhen, err = condition.DecodeDependsOn(fd.DisabledWhen); err != nil {
		return nil, fmt.Errorf("%s: disabled_when: %w", attr, err)
	}
	if f.ShowWhen, err = condition.DecodeNode(fd.ShowWhen); err != nil {
		return nil, fmt.Errorf("%s: show_when: %w", attr, err)
	}
	if f.HideWhen, err = condition.DecodeNode(fd.HideWhen); err != nil {
		return nil, fmt.Errorf("%s: hide_when: %w", attr, err)
	}
	return f, nil
}

func containerClasses(c *string) field.Opt {
	if c == nil {
		return func(*field.Field) {}
	}
	return field.ContainerClasses(*c)
}

func (fd filterDecl) filter(catalog reference.Catalog) (Filter, error) {
	if fd.Name == "" {
		return nil, fmt.Errorf("filter without name")
	}
	switch fd.Type {
	case "select":
		opts := fd.Options
		if fd.OptionsCatalog != "" {
			more, err := catalog.Options(fd.OptionsCatalog, time.Now())
			if err != nil {
				return nil, err
			}
			opts = append(opts, more...)
		}
		return &SelectFilter{Name: fd.Name, Column: fd.Column, Label: fd.Label, Options: opts, Multiple: fd.Multiple}, nil
	case "boolean":
		return &BooleanFilter{Name: fd.Name, Column: fd.Column, Label: fd.Label}, nil
	case "date_range":
		return &DateRangeFilter{Name: fd.Name, Column: fd.Column, Label: fd.Label}, nil
	case "null":
		return &NullFilter{Name: fd.Name, Column: fd.Column, Label: fd.Label}, nil
	}
	return nil, fmt.Errorf("unknown filter type %q", fd.Type)
}
