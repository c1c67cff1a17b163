package nesteddocs

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/contentcore/core/runtime"
	"github.com/artpar/contentcore/core/schema"
	"github.com/artpar/contentcore/core/storage"
)

func testConfig() schema.Config {
	return schema.Config{
		Collections: []schema.Collection{
			{
				Slug:  "pages",
				Admin: schema.CollectionAdmin{UseAsTitle: "title"},
				Fields: []schema.Field{
					{Name: "title", Type: schema.FieldTypeText, Required: true},
					{Name: "slug", Type: schema.FieldTypeText, Hooks: schema.FieldHooks{BeforeValidate: []string{runtime.FuncFormatSlug}}},
				},
			},
			{
				Slug:  "categories",
				Admin: schema.CollectionAdmin{UseAsTitle: "name"},
				Fields: []schema.Field{
					{Name: "name", Type: schema.FieldTypeText},
					ParentField("categories", schema.Field{
						Name:  "owner",
						Admin: schema.Admin{Description: "custom"},
					}),
					BreadcrumbsField("categories", schema.Field{
						Name:   "categorization",
						Admin:  schema.Admin{Description: "custom"},
						Fields: []schema.Field{{Name: "test", Type: schema.FieldTypeText}},
					}),
				},
			},
		},
	}
}

func newRuntime(t *testing.T) *runtime.Runtime {
	t.Helper()
	cfg := testConfig()

	cfg, err := Apply(cfg, Options{
		Collections: []string{"pages"},
		GenerateURL: SlugURL("slug"),
	})
	require.NoError(t, err)
	cfg, err = Apply(cfg, Options{
		Collections:          []string{"categories"},
		ParentFieldSlug:      "owner",
		BreadcrumbsFieldSlug: "categorization",
	})
	require.NoError(t, err)

	rt := runtime.New(storage.NewMemoryStore(), runtime.Config{Logger: zerolog.Nop()})
	require.NoError(t, rt.Load(context.Background(), cfg))
	return rt
}

func seedPages(t *testing.T, rt *runtime.Runtime) (parent, child, grandchild map[string]any) {
	t.Helper()
	ctx := context.Background()

	parent, err := rt.Create(ctx, "pages", map[string]any{"title": "Parent Page"}, nil)
	require.NoError(t, err)
	child, err = rt.Create(ctx, "pages", map[string]any{"title": "Child Page", "parent": parent["id"]}, nil)
	require.NoError(t, err)
	grandchild, err = rt.Create(ctx, "pages", map[string]any{"title": "Grandchild Page", "parent": child["id"]}, nil)
	require.NoError(t, err)
	return parent, child, grandchild
}

func findBySlug(t *testing.T, rt *runtime.Runtime, slug string) map[string]any {
	t.Helper()
	res, err := rt.Find(context.Background(), "pages", storage.Query{
		Where: map[string]any{"slug": map[string]any{"equals": slug}},
	}, nil)
	require.NoError(t, err)
	require.Len(t, res.Docs, 1)
	return res.Docs[0]
}

func crumbs(t *testing.T, doc map[string]any, field string) []map[string]any {
	t.Helper()
	rows, ok := doc[field].([]any)
	require.True(t, ok, "%s should be a list, got %T", field, doc[field])

	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		m, ok := row.(map[string]any)
		require.True(t, ok)
		out = append(out, m)
	}
	return out
}

func urls(rows []map[string]any) []any {
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, row["url"])
	}
	return out
}

func TestBreadcrumbs_TwoLevels(t *testing.T) {
	rt := newRuntime(t)
	seedPages(t, rt)

	child := findBySlug(t, rt, "child-page")
	assert.Len(t, crumbs(t, child, "breadcrumbs"), 2)
}

func TestBreadcrumbs_ThreeLevels(t *testing.T) {
	rt := newRuntime(t)
	parent, child, _ := seedPages(t, rt)

	grandchild := findBySlug(t, rt, "grandchild-page")
	rows := crumbs(t, grandchild, "breadcrumbs")
	require.Len(t, rows, 3)

	assert.Equal(t, []any{
		"/parent-page",
		"/parent-page/child-page",
		"/parent-page/child-page/grandchild-page",
	}, urls(rows))
	assert.Equal(t, parent["id"], rows[0]["doc"])
	assert.Equal(t, child["id"], rows[1]["doc"])
	assert.Equal(t, grandchild["id"], rows[2]["doc"])
	assert.Equal(t, "Grandchild Page", rows[2]["label"])
	assert.NotEmpty(t, rows[0]["id"], "breadcrumb rows get row IDs")
}

func TestBreadcrumbs_ParentChangePropagates(t *testing.T) {
	rt := newRuntime(t)
	parent, _, _ := seedPages(t, rt)

	_, err := rt.Update(context.Background(), "pages", parent["id"].(string), map[string]any{"slug": "new-parent"}, nil)
	require.NoError(t, err)

	grandchild := findBySlug(t, rt, "grandchild-page")
	assert.Equal(t, []any{
		"/new-parent",
		"/new-parent/child-page",
		"/new-parent/child-page/grandchild-page",
	}, urls(crumbs(t, grandchild, "breadcrumbs")))
}

func TestBreadcrumbs_Reparent(t *testing.T) {
	rt := newRuntime(t)
	ctx := context.Background()
	parent, child, _ := seedPages(t, rt)

	other, err := rt.Create(ctx, "pages", map[string]any{"title": "Other"}, nil)
	require.NoError(t, err)

	_, err = rt.Update(ctx, "pages", child["id"].(string), map[string]any{"parent": other["id"]}, nil)
	require.NoError(t, err)

	grandchild := findBySlug(t, rt, "grandchild-page")
	assert.Equal(t, []any{
		"/other",
		"/other/child-page",
		"/other/child-page/grandchild-page",
	}, urls(crumbs(t, grandchild, "breadcrumbs")))

	// Moving a page under its own descendant is rejected.
	_, err = rt.Update(ctx, "pages", other["id"].(string), map[string]any{"parent": child["id"]}, nil)
	assert.ErrorIs(t, err, ErrCircularParent)

	_, err = rt.FindByID(ctx, "pages", parent["id"].(string), nil)
	require.NoError(t, err)
}

func TestOverrides_Fields(t *testing.T) {
	rt := newRuntime(t)
	coll, ok := rt.Registry().Collection("categories")
	require.True(t, ok)

	breadcrumbs, ok := coll.Field("categorization")
	require.True(t, ok)
	assert.Equal(t, schema.FieldTypeArray, breadcrumbs.Type)
	assert.Equal(t, "custom", breadcrumbs.Admin.Description)
	assert.True(t, breadcrumbs.Admin.ReadOnly)
	_, ok = schema.FindField(breadcrumbs.Fields, "test")
	assert.True(t, ok, "custom row field is kept")

	owner, ok := coll.Field("owner")
	require.True(t, ok)
	assert.Equal(t, schema.FieldTypeRelationship, owner.Type)
	assert.Equal(t, "custom", owner.Admin.Description)

	_, ok = coll.Field("parent")
	assert.False(t, ok, "default parent field is not added")
	_, ok = coll.Field("breadcrumbs")
	assert.False(t, ok, "default breadcrumbs field is not added")
}

func TestOverrides_CustomSlugs(t *testing.T) {
	rt := newRuntime(t)
	ctx := context.Background()

	parent, err := rt.Create(ctx, "categories", map[string]any{"name": "parent"}, nil)
	require.NoError(t, err)
	child, err := rt.Create(ctx, "categories", map[string]any{"name": "child", "owner": parent["id"]}, nil)
	require.NoError(t, err)
	grandchild, err := rt.Create(ctx, "categories", map[string]any{"name": "grandchild", "owner": child["id"]}, nil)
	require.NoError(t, err)

	rows := crumbs(t, grandchild, "categorization")
	require.Len(t, rows, 3)
	assert.Equal(t, parent["id"], rows[0]["doc"])
	assert.Equal(t, "parent", rows[0]["label"])
	assert.Equal(t, child["id"], rows[1]["doc"])
	assert.Equal(t, "child", rows[1]["label"])
	assert.Equal(t, "grandchild", rows[2]["label"])
	assert.NotContains(t, rows[0], "url", "no url without GenerateURL")
}

func TestApply_UnknownCollection(t *testing.T) {
	_, err := Apply(testConfig(), Options{Collections: []string{"posts"}})
	assert.Error(t, err)
}

func TestApply_DoesNotModifyInput(t *testing.T) {
	cfg := testConfig()
	before := len(cfg.Collections[0].Fields)

	_, err := Apply(cfg, Options{Collections: []string{"pages"}})
	require.NoError(t, err)

	assert.Len(t, cfg.Collections[0].Fields, before)
	assert.Empty(t, cfg.Collections[0].Hooks.BeforeChange)
}

func TestHelpers(t *testing.T) {
	docs := []map[string]any{{"slug": "a", "title": "A"}, {"slug": "b", "title": "B"}}

	assert.Equal(t, "/a/b", SlugURL("slug")(docs, docs[1]))
	assert.Equal(t, "B", FieldLabel("title")(docs, docs[1]))
	assert.Equal(t, "", FieldLabel("missing")(docs, docs[1]))
}
