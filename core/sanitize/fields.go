package sanitize

import (
	"strings"

	"github.com/artpar/contentcore/core/convention"
	"github.com/artpar/contentcore/core/schema"
	"github.com/artpar/contentcore/core/validation"
)

// SanitizeFields validates a field list and returns a copy with defaults applied.
func SanitizeFields(fields []schema.Field, opts Options) ([]schema.Field, error) {
	s := &sanitizer{
		opts:  opts,
		valid: make(map[string]bool, len(opts.ValidRelationships)),
	}
	for _, slug := range opts.ValidRelationships {
		s.valid[slug] = true
	}
	return s.fields(fields, "", make(map[string]bool))
}

type sanitizer struct {
	opts  Options
	valid map[string]bool
}

// fields sanitizes one data level. names is shared with presentational
// children because they write into the same sibling map.
func (s *sanitizer) fields(fields []schema.Field, prefix string, names map[string]bool) ([]schema.Field, error) {
	out := make([]schema.Field, 0, len(fields))
	for i := range fields {
		f, err := s.field(fields[i], prefix, names)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *sanitizer) field(in schema.Field, prefix string, names map[string]bool) (schema.Field, error) {
	f := in
	f.Funcs = copyFuncs(in.Funcs)
	f.RelationTo = append(schema.Relations(nil), in.RelationTo...)
	f.Options = append([]schema.Option(nil), in.Options...)

	path := joinPath(prefix, in.Name)

	if f.Type == "" {
		return schema.Field{}, fieldErr(path, "type is required")
	}
	if !f.Type.Valid() {
		return schema.Field{}, fieldErr(path, "unknown field type %q", f.Type)
	}

	if f.Type.Presentational() {
		if f.Name != "" {
			return schema.Field{}, fieldErr(path, "%s fields cannot have a name", f.Type)
		}
		for _, phase := range schema.Phases {
			if len(f.Hooks.Names(phase)) > 0 || len(f.HookFuncs(phase)) > 0 {
				return schema.Field{}, fieldErr(path, "%s fields cannot have hooks", f.Type)
			}
		}
		if err := s.condition(&f, path); err != nil {
			return schema.Field{}, err
		}
		children, err := s.fields(in.Fields, prefix, names)
		if err != nil {
			return schema.Field{}, err
		}
		f.Fields = children
		return f, nil
	}

	if f.Name == "" {
		return schema.Field{}, fieldErr(prefix, "%s field requires a name", f.Type)
	}
	if strings.Contains(f.Name, ".") {
		return schema.Field{}, fieldErr(path, "name cannot contain '.'")
	}
	if names[f.Name] {
		return schema.Field{}, fieldErr(path, "duplicate field name %q", f.Name)
	}
	names[f.Name] = true

	if f.Label == "" {
		f.Label = convention.ToWords(f.Name)
	}
	if !s.opts.Localization {
		f.Localized = false
	}

	switch f.Type {
	case schema.FieldTypeRelationship:
		if err := s.relationship(f, path); err != nil {
			return schema.Field{}, err
		}
	case schema.FieldTypeSelect:
		if len(f.Options) == 0 {
			return schema.Field{}, fieldErr(path, "select field requires options")
		}
		for i := range f.Options {
			if f.Options[i].Label == "" {
				f.Options[i].Label = f.Options[i].Value
			}
		}
	case schema.FieldTypeArray:
		children, err := s.fields(withRowID(in.Fields), path, make(map[string]bool))
		if err != nil {
			return schema.Field{}, err
		}
		f.Fields = children
	case schema.FieldTypeGroup:
		children, err := s.fields(in.Fields, path, make(map[string]bool))
		if err != nil {
			return schema.Field{}, err
		}
		f.Fields = children
	case schema.FieldTypeBlocks:
		blocks, err := s.blocks(in.Blocks, path)
		if err != nil {
			return schema.Field{}, err
		}
		f.Blocks = blocks
	}

	if f.Validate == nil {
		f.Validate = validation.For(f.Type)
	}
	if err := s.hooks(&f, path); err != nil {
		return schema.Field{}, err
	}
	if err := s.condition(&f, path); err != nil {
		return schema.Field{}, err
	}

	return f, nil
}

func (s *sanitizer) relationship(f schema.Field, path string) error {
	if len(f.RelationTo) == 0 {
		return fieldErr(path, "relationship field requires relationTo")
	}
	var invalid []string
	for _, slug := range f.RelationTo {
		if !s.valid[slug] {
			invalid = append(invalid, slug)
		}
	}
	if len(invalid) > 0 {
		return &InvalidFieldRelationshipError{Path: path, Invalid: invalid}
	}
	return nil
}

func (s *sanitizer) blocks(in []schema.Block, path string) ([]schema.Block, error) {
	if len(in) == 0 {
		return nil, fieldErr(path, "blocks field requires at least one block")
	}

	out := make([]schema.Block, 0, len(in))
	slugs := make(map[string]bool, len(in))
	for _, b := range in {
		if b.Slug == "" {
			return nil, fieldErr(path, "block slug is required")
		}
		if slugs[b.Slug] {
			return nil, fieldErr(path, "duplicate block slug %q", b.Slug)
		}
		slugs[b.Slug] = true

		if b.Labels.Singular == "" {
			b.Labels.Singular = convention.ToWords(b.Slug)
		}
		if b.Labels.Plural == "" {
			b.Labels.Plural = convention.Pluralize(b.Labels.Singular)
		}

		fields, err := s.fields(withBlockFields(b.Fields), joinPath(path, b.Slug), make(map[string]bool))
		if err != nil {
			return nil, err
		}
		b.Fields = fields
		out = append(out, b)
	}
	return out, nil
}

func (s *sanitizer) hooks(f *schema.Field, path string) error {
	for _, phase := range schema.Phases {
		for _, name := range f.Hooks.Names(phase) {
			if s.opts.Resolver == nil {
				return fieldErr(path, "hook %q cannot be resolved", name)
			}
			hook, ok := s.opts.Resolver.Lookup(name)
			if !ok {
				return fieldErr(path, "unknown %s hook %q", phase, name)
			}
			f.AddHook(phase, hook)
		}
	}
	return nil
}

func (s *sanitizer) condition(f *schema.Field, path string) error {
	if f.Admin.Condition == "" || f.Condition != nil {
		return nil
	}
	cond, err := CompileCondition(f.Admin.Condition)
	if err != nil {
		return fieldErr(path, "invalid condition: %v", err)
	}
	f.Condition = cond
	return nil
}

func copyFuncs(in map[schema.Phase][]schema.FieldHook) map[schema.Phase][]schema.FieldHook {
	if in == nil {
		return nil
	}
	out := make(map[schema.Phase][]schema.FieldHook, len(in))
	for phase, hooks := range in {
		out[phase] = append([]schema.FieldHook(nil), hooks...)
	}
	return out
}

func joinPath(prefix, name string) string {
	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	default:
		return prefix + "." + name
	}
}
