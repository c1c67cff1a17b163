package bootstrap

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/contentcore/config"
	"github.com/artpar/contentcore/core/events"
	"github.com/artpar/contentcore/core/schema"
)

func TestChangeLog(t *testing.T) {
	var buf bytes.Buffer
	handler := changeLog(zerolog.New(&buf))

	require.NoError(t, handler(context.Background(), events.Event{
		Name:       "pages.created",
		Collection: "pages",
		Operation:  schema.OperationCreate,
		ID:         "abc",
	}))
	assert.Contains(t, buf.String(), `"collection":"pages"`)
	assert.Contains(t, buf.String(), `"id":"abc"`)

	buf.Reset()
	require.NoError(t, handler(context.Background(), events.Event{
		Name:      "globals.header.updated",
		Global:    "header",
		Operation: schema.OperationUpdate,
	}))
	assert.Contains(t, buf.String(), `"global":"header"`)
	assert.NotContains(t, buf.String(), `"id"`)
}

func TestNestedDocsOptions(t *testing.T) {
	opts := NestedDocsOptions(config.NestedDocsConfig{Collections: []string{"pages"}})
	require.NotNil(t, opts.GenerateURL)
	assert.Nil(t, opts.GenerateLabel)

	docs := []map[string]any{{"slug": "a"}, {"slug": "b"}}
	assert.Equal(t, "/a/b", opts.GenerateURL(docs, docs[1]))

	opts = NestedDocsOptions(config.NestedDocsConfig{
		Collections: []string{"pages"},
		URLField:    "path",
		LabelField:  "name",
	})
	docs = []map[string]any{{"path": "x", "name": "X"}}
	assert.Equal(t, "/x", opts.GenerateURL(docs, docs[0]))
	assert.Equal(t, "X", opts.GenerateLabel(docs, docs[0]))
}

func TestSameNestedDocs(t *testing.T) {
	a := []config.NestedDocsConfig{{Collections: []string{"pages"}, URLField: "slug"}}
	b := []config.NestedDocsConfig{{Collections: []string{"pages"}, URLField: "slug"}}
	assert.True(t, sameNestedDocs(a, b))

	b[0].URLField = "path"
	assert.False(t, sameNestedDocs(a, b))
	assert.False(t, sameNestedDocs(a, nil))
	assert.True(t, sameNestedDocs(nil, nil))
}

func TestIsSchemaFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"pages.yaml", true},
		{"/schema/pages.yml", true},
		{"PAGES.YAML", true},
		{"pages.yaml~", false},
		{".pages.yaml.swp", false},
		{"README.md", false},
	}
	for _, tt := range tests {
		if got := isSchemaFile(tt.name); got != tt.want {
			t.Errorf("isSchemaFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSetupLogger(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	setupLogger(config.LoggingConfig{Level: "warn", Format: "console"})
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	setupLogger(config.LoggingConfig{Level: "nonsense"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
