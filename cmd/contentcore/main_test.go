package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "contentcore dev")
}

func TestHooksList(t *testing.T) {
	out, err := execute(t, "hooks", "list")
	require.NoError(t, err)
	assert.Equal(t, []string{"formatSlug", "sanitizeHTML", "trim"}, strings.Fields(out))
}

func TestHooksRun(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"trim", []string{"trim", `"  padded  "`}, `"padded"`},
		{"slug from value", []string{"formatSlug", `"Hello World"`}, `"hello-world"`},
		{"slug from title", []string{"formatSlug", "null", "--sibling", `{"title":"About Us"}`}, `"about-us"`},
		{"slug unchanged", []string{"formatSlug", "null"}, "unchanged"},
		{"sanitize", []string{"sanitizeHTML", `"<b>x</b><script>y</script>"`}, `"<b>x</b>"`},
		{"html characters unescaped", []string{"trim", `" a < b & c "`}, `"a < b & c"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"hooks", "run"}, tt.args...)...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.TrimSpace(out))
		})
	}
}

func TestHooksRun_Errors(t *testing.T) {
	_, err := execute(t, "hooks", "run", "nope", `"x"`)
	assert.ErrorContains(t, err, `"nope" not registered`)

	_, err = execute(t, "hooks", "run", "trim", "not json")
	assert.ErrorContains(t, err, "parse value")

	_, err = execute(t, "hooks", "run", "trim")
	assert.Error(t, err)
}

func TestValidate_SchemaDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pages.yaml"), `
collections:
  - slug: pages
    fields:
      - { name: title, type: text }
      - { name: parent, type: relationship, relationTo: pages }
`)

	out, err := execute(t, "validate", "--schema", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "1 collections, 0 globals")
	assert.Contains(t, out, "Configuration is valid.")
}

func TestValidate_BadRelationship(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pages.yaml"), `
collections:
  - slug: pages
    fields:
      - { name: author, type: relationship, relationTo: users }
`)

	out, err := execute(t, "validate", "--schema", dir)
	require.Error(t, err)
	assert.Contains(t, out, "Schema sanitized")
}

func TestValidate_ConfigFile(t *testing.T) {
	t.Setenv("CONTENTCORE_SCHEMA_DIR", "")
	dir := t.TempDir()
	schemaDir := filepath.Join(dir, "schema")
	require.NoError(t, os.Mkdir(schemaDir, 0755))
	writeFile(t, filepath.Join(schemaDir, "pages.yaml"), `
collections:
  - slug: pages
    admin: { useAsTitle: title }
    fields:
      - { name: title, type: text }
      - { name: slug, type: text }
`)
	cfgPath := filepath.Join(dir, "contentcore.yaml")
	writeFile(t, cfgPath, "schema:\n  dir: "+schemaDir+"\nplugins:\n  nested_docs:\n    - collections: [pages]\n")

	out, err := execute(t, "validate", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Nested docs plugins: 1")
	assert.Contains(t, out, "Configuration is valid.")
}

func TestValidate_MissingConfig(t *testing.T) {
	t.Setenv("CONTENTCORE_SCHEMA_DIR", "")

	_, err := execute(t, "validate", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "config error")
}

func TestServe_NoConfig(t *testing.T) {
	t.Setenv("CONTENTCORE_SCHEMA_DIR", "")

	out, err := execute(t, "serve", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.Contains(t, out, "No configuration found.")
}
