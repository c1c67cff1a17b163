package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse_Collection(t *testing.T) {
	yamlData := `
collections:
  - slug: pages
    admin: { useAsTitle: title }
    fields:
      - { name: title, type: text, required: true }
      - name: status
        type: select
        options:
          - draft
          - { label: Published, value: published }
      - { name: parent, type: relationship, relationTo: pages }
      - { name: related, type: relationship, relationTo: [pages, posts], hasMany: true }
      - name: layout
        type: blocks
        blocks:
          - slug: apples
            fields:
              - { name: showConditionalApple, type: checkbox }
              - name: conditionalFields
                type: group
                admin: { condition: "siblingData.showConditionalApple == true" }
                fields:
                  - { name: ConditionalFieldApple, type: text }
      - name: slug
        type: text
        hooks:
          beforeValidate: [formatSlug]
`

	cfg, err := Parse([]byte(yamlData))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(cfg.Collections) != 1 {
		t.Fatalf("len(Collections) = %d, want 1", len(cfg.Collections))
	}

	pages := cfg.Collections[0]
	if pages.Slug != "pages" {
		t.Errorf("Slug = %q, want pages", pages.Slug)
	}
	if pages.Admin.UseAsTitle != "title" {
		t.Errorf("Admin.UseAsTitle = %q, want title", pages.Admin.UseAsTitle)
	}
	if len(pages.Fields) != 6 {
		t.Fatalf("len(Fields) = %d, want 6", len(pages.Fields))
	}

	status := pages.Fields[1]
	if len(status.Options) != 2 || status.Options[0].Value != "draft" || status.Options[1].Label != "Published" {
		t.Errorf("Options = %+v, want draft and Published", status.Options)
	}

	parent := pages.Fields[2]
	if len(parent.RelationTo) != 1 || parent.RelationTo[0] != "pages" {
		t.Errorf("parent.RelationTo = %v, want [pages]", parent.RelationTo)
	}
	if parent.RelationTo.Polymorphic() {
		t.Error("single target relationship should not be polymorphic")
	}

	related := pages.Fields[3]
	if !related.RelationTo.Polymorphic() || !related.HasMany {
		t.Errorf("related = %+v, want polymorphic hasMany", related)
	}

	layout := pages.Fields[4]
	block, ok := layout.BlockBySlug("apples")
	if !ok {
		t.Fatal("BlockBySlug(apples) not found")
	}
	if got := block.Fields[1].Admin.Condition; got != "siblingData.showConditionalApple == true" {
		t.Errorf("condition = %q", got)
	}

	slug := pages.Fields[5]
	if names := slug.Hooks.Names(PhaseBeforeValidate); len(names) != 1 || names[0] != "formatSlug" {
		t.Errorf("beforeValidate hooks = %v, want [formatSlug]", names)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "invalid yaml",
			yaml:    "collections: [",
			wantErr: "parse yaml",
		},
		{
			name:    "missing slug",
			yaml:    "collections:\n  - fields: []\n",
			wantErr: "slug is required",
		},
		{
			name:    "invalid slug",
			yaml:    "globals:\n  - slug: 1menu\n",
			wantErr: "not valid",
		},
		{
			name:    "relationTo mapping",
			yaml:    "collections:\n  - slug: a\n    fields:\n      - {name: r, type: relationship, relationTo: {x: y}}\n",
			wantErr: "relationTo",
		},
		{
			name:    "default locale missing",
			yaml:    "localization:\n  locales: [en, de]\n  defaultLocale: fr\n",
			wantErr: "default locale",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseDir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "globals")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	files := map[string]string{
		filepath.Join(dir, "pages.yaml"):   "collections:\n  - slug: pages\n    fields:\n      - {name: title, type: text}\n",
		filepath.Join(dir, "posts.yml"):    "collections:\n  - slug: posts\n    fields:\n      - {name: title, type: text}\n",
		filepath.Join(dir, "README.md"):    "not yaml",
		filepath.Join(sub, "menu.yaml"):    "globals:\n  - slug: menu\n    fields:\n      - {name: items, type: array, fields: [{name: label, type: text}]}\n",
		filepath.Join(dir, "locales.yaml"): "localization:\n  locales: [en, de]\n  defaultLocale: en\n",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg, err := ParseDir(dir)
	if err != nil {
		t.Fatalf("ParseDir() error = %v", err)
	}

	if len(cfg.Collections) != 2 {
		t.Errorf("len(Collections) = %d, want 2", len(cfg.Collections))
	}
	if len(cfg.Globals) != 1 || cfg.Globals[0].Slug != "menu" {
		t.Errorf("Globals = %+v, want [menu]", cfg.Globals)
	}
	if !cfg.Localization.Enabled() || cfg.Localization.DefaultLocale != "en" {
		t.Errorf("Localization = %+v", cfg.Localization)
	}
}

func TestParseDir_DuplicateLocalization(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("localization:\n  locales: [en]\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := ParseDir(dir); err == nil {
		t.Error("ParseDir() should reject localization defined twice")
	}
}

func TestIsValidSlug(t *testing.T) {
	tests := []struct {
		slug string
		want bool
	}{
		{"pages", true},
		{"fields-drag-blocks", true},
		{"plugin_nested", true},
		{"Media2", true},
		{"", false},
		{"2pages", false},
		{"-pages", false},
		{"pa ges", false},
		{"pa.ges", false},
	}

	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			if got := IsValidSlug(tt.slug); got != tt.want {
				t.Errorf("IsValidSlug(%q) = %v, want %v", tt.slug, got, tt.want)
			}
		})
	}
}
