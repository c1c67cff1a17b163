package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/artpar/contentcore/core/schema"
)

// FunctionRegistry holds the field hooks schema files refer to by name.
// It is the resolver the sanitizer uses for `hooks:` entries.
type FunctionRegistry struct {
	mu    sync.RWMutex
	funcs map[string]schema.FieldHook
}

// NewFunctionRegistry creates an empty function registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		funcs: make(map[string]schema.FieldHook),
	}
}

// Register adds a hook under a name, replacing any previous one.
func (r *FunctionRegistry) Register(name string, fn schema.FieldHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Lookup returns the hook registered under name.
func (r *FunctionRegistry) Lookup(name string) (schema.FieldHook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	if !ok || fn == nil {
		return nil, false
	}
	return fn, true
}

// Call invokes a registered hook by name.
func (r *FunctionRegistry) Call(ctx context.Context, name string, args schema.FieldHookArgs) (any, error) {
	fn, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("function %q not registered", name)
	}
	return fn(ctx, args)
}

// Has checks if a function is registered.
func (r *FunctionRegistry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// List returns all registered function names, sorted.
func (r *FunctionRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
