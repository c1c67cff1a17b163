// Package registry holds the sanitized collections and globals an
// application serves and detects slug conflicts between them.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/artpar/contentcore/core/schema"
)

// Kind distinguishes collections from globals.
type Kind string

const (
	KindCollection Kind = "collection"
	KindGlobal     Kind = "global"
)

// reserved slugs would shadow fixed API routes.
var reserved = map[string]bool{
	"globals": true,
	"access":  true,
}

// Registry stores sanitized collections and globals by slug.
// It is safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	collections map[string]*schema.Collection
	globals     map[string]*schema.Global
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		collections: make(map[string]*schema.Collection),
		globals:     make(map[string]*schema.Global),
	}
}

// Register adds every collection and global of a sanitized config. Nothing
// is registered when any slug conflicts.
func (r *Registry) Register(cfg schema.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conflicts := r.detectConflicts(cfg); len(conflicts) > 0 {
		return &ConflictError{Conflicts: conflicts}
	}

	for i := range cfg.Collections {
		c := cfg.Collections[i]
		r.collections[c.Slug] = &c
	}
	for i := range cfg.Globals {
		g := cfg.Globals[i]
		r.globals[g.Slug] = &g
	}
	return nil
}

// Replace swaps the registered config for cfg, as done on schema reload.
func (r *Registry) Replace(cfg schema.Config) error {
	next := New()
	if err := next.Register(cfg); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections = next.collections
	r.globals = next.globals
	return nil
}

// Unregister removes a collection or global.
func (r *Registry) Unregister(kind Kind, slug string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch kind {
	case KindCollection:
		if _, ok := r.collections[slug]; !ok {
			return fmt.Errorf("collection %q not registered", slug)
		}
		delete(r.collections, slug)
	case KindGlobal:
		if _, ok := r.globals[slug]; !ok {
			return fmt.Errorf("global %q not registered", slug)
		}
		delete(r.globals, slug)
	default:
		return fmt.Errorf("unknown kind %q", kind)
	}
	return nil
}

// Collection returns a registered collection by slug.
func (r *Registry) Collection(slug string) (*schema.Collection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.collections[slug]
	return c, ok
}

// Global returns a registered global by slug.
func (r *Registry) Global(slug string) (*schema.Global, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.globals[slug]
	return g, ok
}

// Collections returns all collections sorted by slug.
func (r *Registry) Collections() []*schema.Collection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*schema.Collection, 0, len(r.collections))
	for _, c := range r.collections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Slug < out[j].Slug
	})
	return out
}

// Globals returns all globals sorted by slug.
func (r *Registry) Globals() []*schema.Global {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*schema.Global, 0, len(r.globals))
	for _, g := range r.globals {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Slug < out[j].Slug
	})
	return out
}

// CollectionSlugs returns the sorted slugs of all collections.
func (r *Registry) CollectionSlugs() []string {
	cols := r.Collections()
	slugs := make([]string, len(cols))
	for i, c := range cols {
		slugs[i] = c.Slug
	}
	return slugs
}

// detectConflicts checks cfg against itself and the registered slugs
// without modifying the registry.
func (r *Registry) detectConflicts(cfg schema.Config) []Conflict {
	var conflicts []Conflict

	// Collections and globals are served under separate routes, so a slug
	// only conflicts within its own kind.
	claimed := map[Kind]map[string]bool{
		KindCollection: make(map[string]bool, len(r.collections)),
		KindGlobal:     make(map[string]bool, len(r.globals)),
	}
	for slug := range r.collections {
		claimed[KindCollection][slug] = true
	}
	for slug := range r.globals {
		claimed[KindGlobal][slug] = true
	}

	claim := func(kind Kind, slug string) {
		if reserved[slug] {
			conflicts = append(conflicts, Conflict{Slug: slug, Kinds: []Kind{kind}, Reserved: true})
			return
		}
		if claimed[kind][slug] {
			conflicts = append(conflicts, Conflict{Slug: slug, Kinds: []Kind{kind, kind}})
			return
		}
		claimed[kind][slug] = true
	}

	for _, c := range cfg.Collections {
		claim(KindCollection, c.Slug)
	}
	for _, g := range cfg.Globals {
		claim(KindGlobal, g.Slug)
	}
	return conflicts
}

// Conflict is one slug claimed twice, or a reserved slug.
type Conflict struct {
	Slug     string
	Kinds    []Kind
	Reserved bool
}

func (c Conflict) Error() string {
	if c.Reserved {
		return fmt.Sprintf("%s slug %q is reserved", c.Kinds[0], c.Slug)
	}
	return fmt.Sprintf("%s slug %q is already registered", c.Kinds[1], c.Slug)
}

// ConflictError represents one or more slug conflicts.
type ConflictError struct {
	Conflicts []Conflict
}

// Error returns the conflict error message.
func (e *ConflictError) Error() string {
	var msgs []string
	for _, c := range e.Conflicts {
		msgs = append(msgs, c.Error())
	}
	return fmt.Sprintf("slug conflicts detected:\n  - %s", strings.Join(msgs, "\n  - "))
}
