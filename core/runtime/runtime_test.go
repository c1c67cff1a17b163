package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/artpar/contentcore/core/events"
	"github.com/artpar/contentcore/core/hooks"
	"github.com/artpar/contentcore/core/sanitize"
	"github.com/artpar/contentcore/core/schema"
	"github.com/artpar/contentcore/core/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestRuntime(t *testing.T, cfg schema.Config) *Runtime {
	t.Helper()
	rt := New(storage.NewMemoryStore(), Config{
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return fixedNow },
	})
	require.NoError(t, rt.Load(context.Background(), cfg))
	return rt
}

func pagesConfig() schema.Config {
	return schema.Config{
		Collections: []schema.Collection{{
			Slug: "pages",
			Fields: []schema.Field{
				{Name: "title", Type: schema.FieldTypeText, Required: true},
				{
					Name:  "slug",
					Type:  schema.FieldTypeText,
					Hooks: schema.FieldHooks{BeforeValidate: []string{FuncFormatSlug}},
				},
				{Name: "code", Type: schema.FieldTypeText, Unique: true},
				{Name: "secret", Type: schema.FieldTypeText, Hidden: true},
			},
		}},
	}
}

func TestRuntime_Create(t *testing.T) {
	rt := newTestRuntime(t, pagesConfig())
	ctx := context.Background()

	doc, err := rt.Create(ctx, "pages", map[string]any{
		"title":  "Parent Page",
		"secret": "s3cret",
	}, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, doc["id"])
	assert.Equal(t, "parent-page", doc["slug"])
	assert.Equal(t, "2024-05-01T12:00:00Z", doc["createdAt"])
	assert.Equal(t, "2024-05-01T12:00:00Z", doc["updatedAt"])
	assert.NotContains(t, doc, "secret", "hidden fields are stripped from results")

	stored, err := rt.Store().FindByID(ctx, "pages", doc["id"].(string))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", stored["secret"], "hidden fields are still stored")
}

func TestRuntime_Create_KeepsID(t *testing.T) {
	rt := newTestRuntime(t, pagesConfig())

	doc, err := rt.Create(context.Background(), "pages", map[string]any{"id": "home", "title": "Home"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "home", doc["id"])
}

func TestRuntime_Create_DoesNotModifyInput(t *testing.T) {
	rt := newTestRuntime(t, pagesConfig())
	input := map[string]any{"title": "Hello World"}

	_, err := rt.Create(context.Background(), "pages", input, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Hello World"}, input)
}

func TestRuntime_Create_ValidationError(t *testing.T) {
	rt := newTestRuntime(t, pagesConfig())

	_, err := rt.Create(context.Background(), "pages", map[string]any{}, nil)
	require.Error(t, err)

	var verr *hooks.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "pages", verr.Slug)
	require.Len(t, verr.Errors, 1)
	assert.Equal(t, "title", verr.Errors[0].Path)
	assert.Equal(t, "the following field is invalid: title", err.Error())
}

func TestRuntime_Create_Unique(t *testing.T) {
	rt := newTestRuntime(t, pagesConfig())
	ctx := context.Background()

	first, err := rt.Create(ctx, "pages", map[string]any{"title": "A", "code": "x"}, nil)
	require.NoError(t, err)

	_, err = rt.Create(ctx, "pages", map[string]any{"title": "B", "code": "x"}, nil)
	var verr *hooks.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "code", verr.Errors[0].Path)

	// Saving a document with its own value is fine.
	_, err = rt.Update(ctx, "pages", first["id"].(string), map[string]any{"title": "A2"}, nil)
	require.NoError(t, err)
}

func TestRuntime_UnknownCollection(t *testing.T) {
	rt := newTestRuntime(t, pagesConfig())
	ctx := context.Background()

	_, err := rt.Create(ctx, "posts", map[string]any{}, nil)
	assert.ErrorIs(t, err, ErrUnknownCollection)

	_, err = rt.FindByID(ctx, "posts", "1", nil)
	assert.ErrorIs(t, err, ErrUnknownCollection)

	_, err = rt.FindGlobal(ctx, "menu", nil)
	assert.ErrorIs(t, err, ErrUnknownGlobal)
}

func TestRuntime_Update(t *testing.T) {
	rt := newTestRuntime(t, pagesConfig())
	ctx := context.Background()

	created, err := rt.Create(ctx, "pages", map[string]any{"title": "First", "code": "c1"}, nil)
	require.NoError(t, err)
	id := created["id"].(string)

	later := fixedNow.Add(time.Hour)
	rt.now = func() time.Time { return later }

	updated, err := rt.Update(ctx, "pages", id, map[string]any{"title": "Second", "slug": "Second Page"}, nil)
	require.NoError(t, err)

	assert.Equal(t, id, updated["id"])
	assert.Equal(t, "Second", updated["title"])
	assert.Equal(t, "second-page", updated["slug"])
	assert.Equal(t, "c1", updated["code"], "untouched keys are kept")
	assert.Equal(t, created["createdAt"], updated["createdAt"])
	assert.Equal(t, "2024-05-01T13:00:00Z", updated["updatedAt"])
}

func TestRuntime_Update_NotFound(t *testing.T) {
	rt := newTestRuntime(t, pagesConfig())

	_, err := rt.Update(context.Background(), "pages", "missing", map[string]any{"title": "x"}, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRuntime_FindAndDelete(t *testing.T) {
	rt := newTestRuntime(t, pagesConfig())
	ctx := context.Background()

	for _, title := range []string{"b", "a", "c"} {
		_, err := rt.Create(ctx, "pages", map[string]any{"title": title, "secret": "hidden"}, nil)
		require.NoError(t, err)
	}

	res, err := rt.Find(ctx, "pages", storage.Query{Sort: "title"}, nil)
	require.NoError(t, err)
	require.Equal(t, 3, res.TotalDocs)
	assert.Equal(t, "a", res.Docs[0]["title"])
	for _, doc := range res.Docs {
		assert.NotContains(t, doc, "secret")
	}

	res, err = rt.Find(ctx, "pages", storage.Query{Where: map[string]any{"title": "c"}}, nil)
	require.NoError(t, err)
	require.Len(t, res.Docs, 1)
	id := res.Docs[0]["id"].(string)

	require.NoError(t, rt.Delete(ctx, "pages", id, nil))

	_, err = rt.FindByID(ctx, "pages", id, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = rt.Delete(ctx, "pages", id, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRuntime_PipelineOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}

	field := schema.Field{Name: "title", Type: schema.FieldTypeText}
	for _, phase := range schema.Phases {
		phase := phase
		field.AddHook(phase, func(context.Context, schema.FieldHookArgs) (any, error) {
			record("field:" + string(phase))
			return nil, nil
		})
	}

	collectionHook := func(phase schema.Phase) schema.CollectionHook {
		return func(_ context.Context, args schema.CollectionHookArgs) (map[string]any, error) {
			require.Equal(t, phase, args.Phase)
			record("collection:" + string(phase))
			return nil, nil
		}
	}

	cfg := schema.Config{Collections: []schema.Collection{{
		Slug:   "pages",
		Fields: []schema.Field{field},
		Hooks: schema.CollectionHooks{
			BeforeValidate: []schema.CollectionHook{collectionHook(schema.PhaseBeforeValidate)},
			BeforeChange:   []schema.CollectionHook{collectionHook(schema.PhaseBeforeChange)},
			AfterChange:    []schema.CollectionHook{collectionHook(schema.PhaseAfterChange)},
			AfterRead:      []schema.CollectionHook{collectionHook(schema.PhaseAfterRead)},
		},
	}}}
	rt := newTestRuntime(t, cfg)

	_, err := rt.Create(context.Background(), "pages", map[string]any{"title": "x"}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"field:beforeValidate",
		"collection:beforeValidate",
		"collection:beforeChange",
		"field:beforeChange",
		"field:afterRead",
		"collection:afterRead",
		"field:afterChange",
		"collection:afterChange",
	}, order)
}

func TestRuntime_CollectionHookResult(t *testing.T) {
	cfg := pagesConfig()
	cfg.Collections[0].Hooks.BeforeChange = []schema.CollectionHook{
		func(_ context.Context, args schema.CollectionHookArgs) (map[string]any, error) {
			args.Data["title"] = "from hook"
			return args.Data, nil
		},
	}
	rt := newTestRuntime(t, cfg)

	doc, err := rt.Create(context.Background(), "pages", map[string]any{"title": "input"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "from hook", doc["title"])
}

func TestRuntime_HookErrorsPassThrough(t *testing.T) {
	boom := errors.New("boom")

	field := schema.Field{Name: "title", Type: schema.FieldTypeText}
	field.AddHook(schema.PhaseAfterChange, func(context.Context, schema.FieldHookArgs) (any, error) {
		return nil, boom
	})
	rt := newTestRuntime(t, schema.Config{Collections: []schema.Collection{{
		Slug:   "pages",
		Fields: []schema.Field{field},
	}}})

	_, err := rt.Create(context.Background(), "pages", map[string]any{"title": "x"}, nil)
	assert.Same(t, boom, err)
}

func TestRuntime_EventsKeepGlobalsApart(t *testing.T) {
	rt := newTestRuntime(t, schema.Config{
		Collections: []schema.Collection{{Slug: "settings", Fields: []schema.Field{{Name: "title", Type: schema.FieldTypeText}}}},
		Globals:     []schema.Global{{Slug: "settings", Fields: []schema.Field{{Name: "siteName", Type: schema.FieldTypeText}}}},
	})
	ctx := context.Background()

	var collection, global []string
	rt.Events().Subscribe("settings.*", func(_ context.Context, e events.Event) error {
		collection = append(collection, e.Name)
		return nil
	})
	rt.Events().Subscribe("globals.settings.*", func(_ context.Context, e events.Event) error {
		global = append(global, e.Name)
		return nil
	})

	_, err := rt.Create(ctx, "settings", map[string]any{"title": "x"}, nil)
	require.NoError(t, err)
	_, err = rt.UpdateGlobal(ctx, "settings", map[string]any{"siteName": "Acme"}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"settings.created"}, collection)
	assert.Equal(t, []string{"globals.settings.updated"}, global)
}

func TestRuntime_Events(t *testing.T) {
	rt := newTestRuntime(t, pagesConfig())
	ctx := context.Background()

	var got []events.Event
	rt.Events().Subscribe("pages.*", func(_ context.Context, e events.Event) error {
		got = append(got, e)
		return nil
	})

	doc, err := rt.Create(ctx, "pages", map[string]any{"title": "x"}, nil)
	require.NoError(t, err)
	id := doc["id"].(string)
	_, err = rt.Update(ctx, "pages", id, map[string]any{"title": "y"}, nil)
	require.NoError(t, err)
	require.NoError(t, rt.Delete(ctx, "pages", id, nil))

	require.Len(t, got, 3)
	assert.Equal(t, "pages.created", got[0].Name)
	assert.Equal(t, "pages.updated", got[1].Name)
	assert.Equal(t, "x", got[1].PreviousDoc["title"])
	assert.Equal(t, "y", got[1].Doc["title"])
	assert.Equal(t, "pages.deleted", got[2].Name)
	assert.Equal(t, id, got[2].ID)
}

func TestRuntime_Globals(t *testing.T) {
	cfg := schema.Config{Globals: []schema.Global{{
		Slug: "settings",
		Fields: []schema.Field{
			{Name: "siteName", Type: schema.FieldTypeText, Hooks: schema.FieldHooks{BeforeChange: []string{FuncTrim}}},
			{Name: "perPage", Type: schema.FieldTypeNumber},
		},
	}}}
	rt := newTestRuntime(t, cfg)
	ctx := context.Background()

	empty, err := rt.FindGlobal(ctx, "settings", nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	var names []string
	rt.Events().Subscribe("globals.settings.updated", func(_ context.Context, e events.Event) error {
		names = append(names, e.Global)
		return nil
	})

	_, err = rt.UpdateGlobal(ctx, "settings", map[string]any{"siteName": "  Acme  "}, nil)
	require.NoError(t, err)
	doc, err := rt.UpdateGlobal(ctx, "settings", map[string]any{"perPage": "20"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Acme", doc["siteName"])
	assert.Equal(t, 20.0, doc["perPage"])
	assert.Equal(t, []string{"settings", "settings"}, names)

	read, err := rt.FindGlobal(ctx, "settings", nil)
	require.NoError(t, err)
	assert.Equal(t, doc, read)
}

func TestRuntime_AuthPassword(t *testing.T) {
	rt := newTestRuntime(t, schema.Config{Collections: []schema.Collection{{
		Slug:   "users",
		Auth:   true,
		Fields: []schema.Field{{Name: "name", Type: schema.FieldTypeText}},
	}}})
	ctx := context.Background()

	doc, err := rt.Create(ctx, "users", map[string]any{"email": "a@example.com", "password": "pw"}, nil)
	require.NoError(t, err)
	assert.NotContains(t, doc, "password")

	id := doc["id"].(string)
	stored, err := rt.Store().FindByID(ctx, "users", id)
	require.NoError(t, err)
	hash := stored["password"].(string)
	assert.NotEqual(t, "pw", hash)

	_, err = rt.Update(ctx, "users", id, map[string]any{"name": "Ann"}, nil)
	require.NoError(t, err)
	stored, err = rt.Store().FindByID(ctx, "users", id)
	require.NoError(t, err)
	assert.Equal(t, hash, stored["password"], "unchanged password keeps its hash")

	_, err = rt.Create(ctx, "users", map[string]any{"email": "a@example.com"}, nil)
	var verr *hooks.ValidationError
	assert.True(t, errors.As(err, &verr), "email is unique")
}

func TestRuntime_HooksUseAPI(t *testing.T) {
	field := schema.Field{Name: "position", Type: schema.FieldTypeNumber}
	field.AddHook(schema.PhaseBeforeChange, func(ctx context.Context, args schema.FieldHookArgs) (any, error) {
		docs, err := args.Req.API.Find(ctx, "pages", nil, args.Req)
		if err != nil {
			return nil, err
		}
		return float64(len(docs) + 1), nil
	})
	rt := newTestRuntime(t, schema.Config{Collections: []schema.Collection{{
		Slug:   "pages",
		Fields: []schema.Field{{Name: "title", Type: schema.FieldTypeText}, field},
	}}})
	ctx := context.Background()

	var last map[string]any
	for i := 0; i < 3; i++ {
		doc, err := rt.Create(ctx, "pages", map[string]any{"title": "p"}, nil)
		require.NoError(t, err)
		last = doc
	}
	assert.Equal(t, 3.0, last["position"])

	doc, err := rt.API().FindByID(ctx, "pages", last["id"].(string), nil)
	require.NoError(t, err)
	assert.Equal(t, last, doc)
}

type recordingMetrics struct {
	mu         sync.Mutex
	operations []string
	hooks      []string
}

func (m *recordingMetrics) ObserveHook(phase schema.Phase, schemaPath string, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, string(phase)+":"+schemaPath)
}

func (m *recordingMetrics) ObserveOperation(slug string, op schema.Operation, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.operations = append(m.operations, slug+"."+string(op)+":"+status)
}

func TestRuntime_Metrics(t *testing.T) {
	metrics := &recordingMetrics{}
	rt := New(storage.NewMemoryStore(), Config{Logger: zerolog.Nop(), Metrics: metrics})
	require.NoError(t, rt.Load(context.Background(), pagesConfig()))

	_, err := rt.Create(context.Background(), "pages", map[string]any{"title": "Hi"}, nil)
	require.NoError(t, err)
	_, err = rt.Create(context.Background(), "pages", map[string]any{}, nil)
	require.Error(t, err)

	assert.Equal(t, []string{"pages.create:ok", "pages.create:error"}, metrics.operations)
	assert.Contains(t, metrics.hooks, "beforeValidate:slug")
}

func TestRuntime_Load(t *testing.T) {
	t.Run("invalid relationship", func(t *testing.T) {
		rt := New(storage.NewMemoryStore(), Config{Logger: zerolog.Nop()})
		err := rt.Load(context.Background(), schema.Config{Collections: []schema.Collection{{
			Slug:   "pages",
			Fields: []schema.Field{{Name: "author", Type: schema.FieldTypeRelationship, RelationTo: schema.Relations{"users"}}},
		}}})
		assert.ErrorIs(t, err, sanitize.ErrInvalidConfig)
	})

	t.Run("unknown hook name", func(t *testing.T) {
		rt := New(storage.NewMemoryStore(), Config{Logger: zerolog.Nop()})
		err := rt.Load(context.Background(), schema.Config{Collections: []schema.Collection{{
			Slug:   "pages",
			Fields: []schema.Field{{Name: "title", Type: schema.FieldTypeText, Hooks: schema.FieldHooks{AfterRead: []string{"nope"}}}},
		}}})
		assert.ErrorIs(t, err, sanitize.ErrInvalidConfig)
	})

	t.Run("duplicate registration", func(t *testing.T) {
		rt := newTestRuntime(t, pagesConfig())
		err := rt.Load(context.Background(), pagesConfig())
		assert.Error(t, err)
	})

	t.Run("reload replaces", func(t *testing.T) {
		rt := newTestRuntime(t, pagesConfig())
		require.NoError(t, rt.Reload(context.Background(), schema.Config{Collections: []schema.Collection{{
			Slug:   "posts",
			Fields: []schema.Field{{Name: "title", Type: schema.FieldTypeText}},
		}}}))
		_, ok := rt.Registry().Collection("pages")
		assert.False(t, ok)
		_, ok = rt.Registry().Collection("posts")
		assert.True(t, ok)
	})
}

func TestRuntime_LoadDir(t *testing.T) {
	dir := t.TempDir()
	yaml := `collections:
  - slug: posts
    fields:
      - name: title
        type: text
        hooks:
          beforeChange: [trim]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "posts.yaml"), []byte(yaml), 0o644))

	rt := New(storage.NewMemoryStore(), Config{Logger: zerolog.Nop()})
	require.NoError(t, rt.LoadDir(context.Background(), dir))

	doc, err := rt.Create(context.Background(), "posts", map[string]any{"title": "  spaced  "}, nil)
	require.NoError(t, err)
	assert.Equal(t, "spaced", doc["title"])
}
