package resource

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resourcekit/internal/field"
	"resourcekit/internal/store"
)

func postsDefinition() *Definition {
	d := New("posts")
	d.Index = field.Schema{
		field.ID(),
		field.Text("title", field.Sortable(), field.Searchable()),
		field.Text("slug", field.Searchable()),
		field.BelongsTo("author_id", field.Sortable()),
	}
	d.Form = field.Schema{
		field.Text("title", field.Required()),
		field.Textarea("body"),
		field.Select("tags", field.Resource("tags"), field.Multiple()),
		field.HasMany("comments"),
		field.NewSection("Publishing",
			field.Boolean("published"),
			field.DateTime("published_at", field.DependsOn("published", true)),
		),
	}
	d.SortColumns = []string{"views"}
	return d
}

func TestFinalizeDefaults(t *testing.T) {
	d := postsDefinition().Finalize()

	assert.Equal(t, "Posts", d.Label)
	assert.Equal(t, 15, d.PerPage)
	assert.Equal(t, d.Index, d.Show, "show falls back to index")
	assert.Equal(t, []string{"title", "slug"}, d.SearchColumns)
	assert.Equal(t, "posts", d.Model.Table)

	var attrs []string
	for _, f := range d.Fields() {
		attrs = append(attrs, f.Attribute)
	}
	assert.Equal(t, []string{"id", "title", "slug", "author_id", "body", "tags", "comments", "published", "published_at"}, attrs)
}

func TestFinalizeFormFallsBackToShow(t *testing.T) {
	d := New("notes")
	d.Index = field.Schema{field.Text("title")}
	d.Show = field.Schema{field.Text("title"), field.Textarea("body")}
	d.Finalize()
	assert.Equal(t, d.Show, d.Form)
}

func TestModelFor(t *testing.T) {
	m := postsDefinition().Finalize().Model

	author, ok := m.Relation("author")
	require.True(t, ok)
	assert.Equal(t, store.BelongsTo, author.Kind)
	assert.Equal(t, "authors", author.Table)
	assert.Equal(t, "author_id", author.ForeignKey)

	tags, ok := m.Relation("tags")
	require.True(t, ok)
	assert.Equal(t, store.BelongsToMany, tags.Kind)
	assert.Equal(t, "post_tag", tags.Pivot.Table)
	assert.Equal(t, "post_id", tags.Pivot.ParentKey)
	assert.Equal(t, "tag_id", tags.Pivot.RelatedKey)

	comments, ok := m.Relation("comments")
	require.True(t, ok)
	assert.Equal(t, store.HasMany, comments.Kind)
	assert.Equal(t, "post_id", comments.ForeignKey)

	assert.False(t, m.HasRelation("title"))
}

func TestSortWhitelist(t *testing.T) {
	d := postsDefinition().Finalize()
	assert.Equal(t, []string{"id", "created_at", "updated_at", "title", "author_id", "views"}, d.SortWhitelist())
	assert.True(t, d.CanSortBy("views"))
	assert.False(t, d.CanSortBy("slug"))
	assert.False(t, d.CanSortBy("tags"))
}

func TestSchemaByView(t *testing.T) {
	d := postsDefinition().Finalize()
	assert.Equal(t, ViewIndex, ParseView("index"))
	assert.Equal(t, ViewForm, ParseView("bogus"))
	assert.Len(t, d.Schema(ViewIndex), 4)
	assert.Len(t, d.Schema(ViewForm), 5)
	assert.Len(t, d.Schema(ViewForm).Fields(), 6)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	builds := 0
	r.Register("posts", func() *Definition {
		builds++
		return postsDefinition()
	})

	a, err := r.Resolve("posts")
	require.NoError(t, err)
	b, err := r.Resolve("posts")
	require.NoError(t, err)
	assert.Equal(t, 2, builds)
	assert.NotSame(t, a, b)
	assert.NotSame(t, a.Fields()[0], b.Fields()[0], "fields never cross resolutions")

	_, err = r.Resolve("missing")
	assert.True(t, errors.Is(err, ErrResourceNotFound))
	assert.Equal(t, []string{"posts"}, r.Keys())
}

func TestRegistryKeyFallback(t *testing.T) {
	r := NewRegistry()
	r.Register("drafts", func() *Definition { return &Definition{Index: field.Schema{field.Text("title")}} })
	d, err := r.Resolve("drafts")
	require.NoError(t, err)
	assert.Equal(t, "drafts", d.Key)
	assert.Equal(t, "drafts", d.Model.Table)
	assert.Equal(t, DefaultPerPage, d.PerPage)

	r.SetDefaultPerPage(50)
	d, err = r.Resolve("drafts")
	require.NoError(t, err)
	assert.Equal(t, 50, d.PerPage)
}

func TestLint(t *testing.T) {
	d := New("orders")
	d.Form = field.Schema{
		field.Boolean("has_discount"),
		field.Number("discount", field.DependsOn("has_discont", true)),
		field.Number("total", field.RequiredWhen("currency", "EUR")),
		field.Select("tags", field.Resource("tags")),
		field.Text("bad-name"),
		field.NewGroup(field.Text("note")).When("kind", "b2b"),
	}
	d.SearchColumns = []string{"number", "x;drop"}
	d.Finalize()

	issues := d.Lint(func(key string) bool { return key == "customers" })
	codes := map[string]string{}
	for _, is := range issues {
		codes[is.Field+"/"+is.Code] = is.Message
	}
	assert.Contains(t, codes, "discount/condition_attribute_unknown")
	assert.Contains(t, codes, "total/condition_attribute_unknown")
	assert.Contains(t, codes, "/condition_attribute_unknown")
	assert.Contains(t, codes, "tags/relation_resource_unknown")
	assert.Contains(t, codes, "bad-name/attribute_invalid")
	assert.Contains(t, codes, "x;drop/search_column_invalid")
	assert.Len(t, issues, 6)
}

func TestRegistryReplaceAndLint(t *testing.T) {
	live := NewRegistry()
	live.Register("old", func() *Definition { return New("old") })

	next := NewRegistry()
	next.Register("posts", postsDefinition)
	live.Replace(next)
	assert.Equal(t, []string{"posts"}, live.Keys())

	var fields []string
	for _, is := range live.Lint() {
		assert.Equal(t, "relation_resource_unknown", is.Code)
		fields = append(fields, is.Field)
	}
	assert.Equal(t, []string{"author_id", "comments", "tags"}, fields)

	next.Register("tags", func() *Definition { return New("tags") })
	assert.Equal(t, []string{"posts"}, live.Keys(), "later registrations on the source do not leak")
}
