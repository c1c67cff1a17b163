// Package nesteddocs adds parent/child nesting with breadcrumbs to collections.
//
// Each configured collection gets a relationship to itself (the parent field)
// and an array of breadcrumbs, one row per ancestor plus the document itself:
//
//	breadcrumbs:
//	  - { doc: <root id>,  label: Parent Page, url: /parent-page }
//	  - { doc: <self id>,  label: Child Page,  url: /parent-page/child-page }
//
// Breadcrumbs are rebuilt in beforeChange by walking the parent chain. When a
// document is updated its direct children are saved again, so changes travel
// down the tree.
package nesteddocs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/artpar/contentcore/core/schema"
)

const (
	DefaultParentFieldSlug      = "parent"
	DefaultBreadcrumbsFieldSlug = "breadcrumbs"
)

// ErrCircularParent is returned when the parent chain loops back on itself.
var ErrCircularParent = errors.New("circular parent chain")

// LabelFunc builds the label of the last document of docs. docs runs from
// the root to the current document.
type LabelFunc func(docs []map[string]any, current map[string]any) string

// URLFunc builds the url of the last document of docs.
type URLFunc func(docs []map[string]any, current map[string]any) string

// Options configures the plugin.
type Options struct {
	// Collections lists the slugs of the nested collections.
	Collections []string

	ParentFieldSlug      string
	BreadcrumbsFieldSlug string

	// GenerateLabel defaults to the useAsTitle field, else the ID.
	GenerateLabel LabelFunc

	// GenerateURL is optional; without it breadcrumbs carry no url.
	GenerateURL URLFunc
}

func (o Options) withDefaults() Options {
	if o.ParentFieldSlug == "" {
		o.ParentFieldSlug = DefaultParentFieldSlug
	}
	if o.BreadcrumbsFieldSlug == "" {
		o.BreadcrumbsFieldSlug = DefaultBreadcrumbsFieldSlug
	}
	return o
}

// Apply returns a copy of cfg with nesting added to the configured
// collections. Fields the collection already declares under the parent or
// breadcrumbs slug are kept as they are, which is how they are customized.
func Apply(cfg schema.Config, opts Options) (schema.Config, error) {
	opts = opts.withDefaults()

	out := cfg
	out.Collections = append([]schema.Collection(nil), cfg.Collections...)

	for _, slug := range opts.Collections {
		i := indexOf(out.Collections, slug)
		if i < 0 {
			return schema.Config{}, fmt.Errorf("nested docs: collection %q not found", slug)
		}
		out.Collections[i] = apply(out.Collections[i], opts)
	}
	return out, nil
}

func apply(c schema.Collection, opts Options) schema.Collection {
	fields := append([]schema.Field(nil), c.Fields...)
	if _, ok := schema.FindField(fields, opts.ParentFieldSlug); !ok {
		fields = append(fields, ParentField(c.Slug, schema.Field{Name: opts.ParentFieldSlug}))
	}
	if _, ok := schema.FindField(fields, opts.BreadcrumbsFieldSlug); !ok {
		fields = append(fields, BreadcrumbsField(c.Slug, schema.Field{Name: opts.BreadcrumbsFieldSlug}))
	}
	c.Fields = fields

	p := &plugin{
		slug:       c.Slug,
		useAsTitle: c.Admin.UseAsTitle,
		opts:       opts,
	}
	c.Hooks.BeforeChange = append(append([]schema.CollectionHook(nil), c.Hooks.BeforeChange...), p.populateBreadcrumbs)
	c.Hooks.AfterChange = append(append([]schema.CollectionHook(nil), c.Hooks.AfterChange...), p.resaveChildren)
	return c
}

// ParentField builds the parent relationship of a nested collection.
// Non-zero attributes of override replace the defaults.
func ParentField(collection string, override schema.Field) schema.Field {
	f := schema.Field{
		Name:       DefaultParentFieldSlug,
		Type:       schema.FieldTypeRelationship,
		RelationTo: schema.Relations{collection},
		Admin:      schema.Admin{Position: "sidebar"},
	}
	if override.Name != "" {
		f.Name = override.Name
	}
	if override.Label != "" {
		f.Label = override.Label
	}
	if override.Admin.Description != "" {
		f.Admin.Description = override.Admin.Description
	}
	if override.Admin.Condition != "" {
		f.Admin.Condition = override.Admin.Condition
	}
	return f
}

// BreadcrumbsField builds the breadcrumbs array of a nested collection.
// override may rename it, describe it and append row fields; it stays read-only.
func BreadcrumbsField(collection string, override schema.Field) schema.Field {
	f := schema.Field{
		Name: DefaultBreadcrumbsFieldSlug,
		Type: schema.FieldTypeArray,
		Fields: []schema.Field{
			{Name: "doc", Type: schema.FieldTypeRelationship, RelationTo: schema.Relations{collection}},
			{Name: "url", Type: schema.FieldTypeText, Label: "URL"},
			{Name: "label", Type: schema.FieldTypeText},
		},
	}
	if override.Name != "" {
		f.Name = override.Name
	}
	if override.Label != "" {
		f.Label = override.Label
	}
	f.Admin.Description = override.Admin.Description
	f.Admin.ReadOnly = true
	f.Fields = append(f.Fields, override.Fields...)
	return f
}

// SlugURL builds urls by joining the value of field across the chain,
// e.g. "/parent-page/child-page".
func SlugURL(field string) URLFunc {
	return func(docs []map[string]any, _ map[string]any) string {
		var b strings.Builder
		for _, doc := range docs {
			b.WriteString("/")
			b.WriteString(stringOf(doc[field]))
		}
		return b.String()
	}
}

// FieldLabel labels each breadcrumb with the value of field.
func FieldLabel(field string) LabelFunc {
	return func(_ []map[string]any, current map[string]any) string {
		return stringOf(current[field])
	}
}

type plugin struct {
	slug       string
	useAsTitle string
	opts       Options
}

// populateBreadcrumbs is the collection beforeChange hook.
func (p *plugin) populateBreadcrumbs(ctx context.Context, args schema.CollectionHookArgs) (map[string]any, error) {
	data := args.Data
	if data == nil {
		return nil, nil
	}

	ancestors, err := p.ancestors(ctx, args.Req, idOf(data["id"]), idOf(data[p.opts.ParentFieldSlug]))
	if err != nil {
		return nil, err
	}

	docs := append(ancestors, data)
	crumbs := make([]any, 0, len(docs))
	for i := range docs {
		crumbs = append(crumbs, p.breadcrumb(docs[:i+1]))
	}
	data[p.opts.BreadcrumbsFieldSlug] = crumbs
	return data, nil
}

// ancestors returns the parent chain of a document, root first.
func (p *plugin) ancestors(ctx context.Context, req *schema.Request, self, parentID string) ([]map[string]any, error) {
	var chain []map[string]any
	seen := map[string]bool{}
	if self != "" {
		seen[self] = true
	}

	for parentID != "" {
		if seen[parentID] {
			return nil, fmt.Errorf("%w: %s %q", ErrCircularParent, p.slug, parentID)
		}
		seen[parentID] = true

		parent, err := req.API.FindByID(ctx, p.slug, parentID, req)
		if err != nil {
			return nil, fmt.Errorf("find parent %q: %w", parentID, err)
		}
		chain = append(chain, parent)
		parentID = idOf(parent[p.opts.ParentFieldSlug])
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

func (p *plugin) breadcrumb(docs []map[string]any) map[string]any {
	current := docs[len(docs)-1]
	crumb := map[string]any{
		"doc":   idOf(current["id"]),
		"label": p.label(docs, current),
	}
	if p.opts.GenerateURL != nil {
		crumb["url"] = p.opts.GenerateURL(docs, current)
	}
	return crumb
}

func (p *plugin) label(docs []map[string]any, current map[string]any) string {
	if p.opts.GenerateLabel != nil {
		return p.opts.GenerateLabel(docs, current)
	}
	if p.useAsTitle != "" {
		if s := stringOf(current[p.useAsTitle]); s != "" {
			return s
		}
	}
	return idOf(current["id"])
}

// resaveChildren is the collection afterChange hook. Saving a child rebuilds
// its breadcrumbs, and its own afterChange carries on to the grandchildren.
func (p *plugin) resaveChildren(ctx context.Context, args schema.CollectionHookArgs) (map[string]any, error) {
	if args.Operation != schema.OperationUpdate || args.Doc == nil {
		return nil, nil
	}
	id := idOf(args.Doc["id"])
	if id == "" {
		return nil, nil
	}

	children, err := args.Req.API.Find(ctx, p.slug, map[string]any{
		p.opts.ParentFieldSlug: map[string]any{"equals": id},
	}, args.Req)
	if err != nil {
		return nil, fmt.Errorf("find children of %q: %w", id, err)
	}

	for _, child := range children {
		childID := idOf(child["id"])
		if _, err := args.Req.API.Update(ctx, p.slug, childID, map[string]any{}, args.Req); err != nil {
			return nil, fmt.Errorf("resave child %q: %w", childID, err)
		}
		args.Req.Logger.Debug().
			Str("collection", p.slug).
			Str("parent", id).
			Str("child", childID).
			Msg("resaved nested child")
	}
	return nil, nil
}

func indexOf(collections []schema.Collection, slug string) int {
	for i, c := range collections {
		if c.Slug == slug {
			return i
		}
	}
	return -1
}

// idOf reads a relationship value: a plain ID or a populated document.
func idOf(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case map[string]any:
		return idOf(id["id"])
	default:
		return ""
	}
}

func stringOf(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
