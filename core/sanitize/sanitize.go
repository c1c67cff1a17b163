// Package sanitize turns a parsed schema into the form the hook pipeline runs
// against: defaults filled in, relationships checked, named hooks resolved,
// conditions compiled and implicit fields added. It never mutates its input.
package sanitize

import (
	"fmt"

	"github.com/artpar/contentcore/core/convention"
	"github.com/artpar/contentcore/core/schema"
)

// HookResolver resolves named field hooks.
type HookResolver interface {
	Lookup(name string) (schema.FieldHook, bool)
}

// Options controls field sanitization.
type Options struct {
	// ValidRelationships lists the collection slugs relationship fields may target.
	ValidRelationships []string

	// Resolver resolves the hook names in field definitions. Required when
	// any field names a hook.
	Resolver HookResolver

	// Localization reports whether localization is enabled. Localized is
	// cleared on every field when it is not.
	Localization bool
}

// SanitizeConfig sanitizes every collection and global. Relationships may
// target any collection of the config.
func SanitizeConfig(cfg schema.Config, resolver HookResolver) (schema.Config, error) {
	opts := Options{
		Resolver:     resolver,
		Localization: cfg.Localization.Enabled(),
	}

	seen := make(map[string]bool, len(cfg.Collections))
	for _, c := range cfg.Collections {
		if seen[c.Slug] {
			return schema.Config{}, fieldErr("", "collection %q is defined more than once", c.Slug)
		}
		seen[c.Slug] = true
		opts.ValidRelationships = append(opts.ValidRelationships, c.Slug)
	}

	out := schema.Config{
		Localization: schema.Localization{
			Locales:       append([]string(nil), cfg.Localization.Locales...),
			DefaultLocale: cfg.Localization.DefaultLocale,
		},
	}
	if out.Localization.Enabled() && out.Localization.DefaultLocale == "" {
		out.Localization.DefaultLocale = out.Localization.Locales[0]
	}

	for _, c := range cfg.Collections {
		sc, err := SanitizeCollection(c, opts)
		if err != nil {
			return schema.Config{}, err
		}
		out.Collections = append(out.Collections, sc)
	}

	globals := make(map[string]bool, len(cfg.Globals))
	for _, g := range cfg.Globals {
		if globals[g.Slug] {
			return schema.Config{}, fieldErr("", "global %q is defined more than once", g.Slug)
		}
		globals[g.Slug] = true

		sg, err := SanitizeGlobal(g, opts)
		if err != nil {
			return schema.Config{}, err
		}
		out.Globals = append(out.Globals, sg)
	}

	return out, nil
}

// SanitizeCollection sanitizes one collection and adds its implicit fields.
func SanitizeCollection(c schema.Collection, opts Options) (schema.Collection, error) {
	out := c
	out.Hooks = copyCollectionHooks(c.Hooks)

	singular, plural := convention.CollectionLabels(c.Slug)
	if out.Labels.Singular == "" {
		out.Labels.Singular = singular
	}
	if out.Labels.Plural == "" {
		out.Labels.Plural = plural
	}

	fields := append([]schema.Field(nil), c.Fields...)
	if c.Auth {
		fields = withAuthFields(fields)
	}
	if c.HasTimestamps() {
		fields = withTimestampFields(fields)
	}

	sanitized, err := SanitizeFields(fields, opts)
	if err != nil {
		return schema.Collection{}, fmt.Errorf("collection %s: %w", c.Slug, err)
	}
	out.Fields = sanitized

	if out.Admin.UseAsTitle != "" {
		if _, ok := schema.FindField(out.Fields, out.Admin.UseAsTitle); !ok {
			return schema.Collection{}, fmt.Errorf("collection %s: %w",
				c.Slug, fieldErr("", "useAsTitle %q is not a top-level field", out.Admin.UseAsTitle))
		}
	}

	return out, nil
}

// SanitizeGlobal sanitizes one global.
func SanitizeGlobal(g schema.Global, opts Options) (schema.Global, error) {
	out := g
	out.Hooks = copyCollectionHooks(g.Hooks)
	if out.Label == "" {
		out.Label = convention.ToWords(g.Slug)
	}

	sanitized, err := SanitizeFields(g.Fields, opts)
	if err != nil {
		return schema.Global{}, fmt.Errorf("global %s: %w", g.Slug, err)
	}
	out.Fields = sanitized
	return out, nil
}

func copyCollectionHooks(h schema.CollectionHooks) schema.CollectionHooks {
	return schema.CollectionHooks{
		BeforeValidate: append([]schema.CollectionHook(nil), h.BeforeValidate...),
		BeforeChange:   append([]schema.CollectionHook(nil), h.BeforeChange...),
		AfterChange:    append([]schema.CollectionHook(nil), h.AfterChange...),
		AfterRead:      append([]schema.CollectionHook(nil), h.AfterRead...),
	}
}
