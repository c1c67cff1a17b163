// Package runtime runs document operations through the hook pipeline.
//
// The runtime ties together the schema registry, the document store, the
// named hook functions and the event bus. Every write runs the same sequence:
//
//	beforeValidate (fields, then collection hooks)
//	beforeChange   (collection hooks, then fields and validation)
//	store
//	afterRead      (fields, then collection hooks)
//	afterChange    (fields, then collection hooks)
//	publish "<slug>.<verb>"
//
// Reads run afterRead only.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/artpar/contentcore/core/document"
	"github.com/artpar/contentcore/core/events"
	"github.com/artpar/contentcore/core/hooks"
	"github.com/artpar/contentcore/core/registry"
	"github.com/artpar/contentcore/core/sanitize"
	"github.com/artpar/contentcore/core/schema"
	"github.com/artpar/contentcore/core/storage"
	"github.com/artpar/contentcore/core/validation"
)

var (
	// ErrUnknownCollection is returned for operations on unregistered collections.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrUnknownGlobal is returned for operations on unregistered globals.
	ErrUnknownGlobal = errors.New("unknown global")
)

// Metrics observes operations and hook invocations.
type Metrics interface {
	hooks.Observer
	ObserveOperation(slug string, op schema.Operation, elapsed time.Duration, err error)
}

// Config configures a runtime.
type Config struct {
	Logger zerolog.Logger

	// Metrics is optional.
	Metrics Metrics

	// Bus is optional; a new bus is created when nil.
	Bus *events.Bus

	// Now is optional; it stamps createdAt and updatedAt.
	Now func() time.Time
}

// Runtime executes document operations.
type Runtime struct {
	registry  *registry.Registry
	store     storage.Store
	functions *FunctionRegistry
	events    *events.Bus
	metrics   Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates a runtime over a store. The built-in hooks are registered.
func New(store storage.Store, config Config) *Runtime {
	r := &Runtime{
		registry:  registry.New(),
		store:     store,
		functions: NewFunctionRegistry(),
		events:    config.Bus,
		metrics:   config.Metrics,
		logger:    config.Logger,
		now:       config.Now,
	}
	if r.events == nil {
		r.events = events.NewBus(config.Logger)
	}
	if r.now == nil {
		r.now = time.Now
	}
	registerBuiltins(r.functions)
	return r
}

// Registry returns the schema registry.
func (r *Runtime) Registry() *registry.Registry {
	return r.registry
}

// Functions returns the named hook registry.
func (r *Runtime) Functions() *FunctionRegistry {
	return r.functions
}

// Events returns the event bus.
func (r *Runtime) Events() *events.Bus {
	return r.events
}

// Store returns the document store.
func (r *Runtime) Store() storage.Store {
	return r.store
}

// RegisterFunction registers a named field hook. Functions must be
// registered before the configs that name them are loaded.
func (r *Runtime) RegisterFunction(name string, fn schema.FieldHook) {
	r.functions.Register(name, fn)
}

// Load sanitizes a config and registers its collections and globals.
// Relationships may only target collections of the same config.
func (r *Runtime) Load(_ context.Context, cfg schema.Config) error {
	sanitized, err := sanitize.SanitizeConfig(cfg, r.functions)
	if err != nil {
		return fmt.Errorf("sanitize config: %w", err)
	}
	if err := r.registry.Register(sanitized); err != nil {
		return fmt.Errorf("register config: %w", err)
	}

	r.logger.Info().
		Int("collections", len(sanitized.Collections)).
		Int("globals", len(sanitized.Globals)).
		Msg("schema loaded")
	return nil
}

// LoadDir parses every YAML file of a directory and loads the merged config.
func (r *Runtime) LoadDir(ctx context.Context, dir string) error {
	cfg, err := schema.ParseDir(dir)
	if err != nil {
		return fmt.Errorf("parse schema dir %q: %w", dir, err)
	}
	return r.Load(ctx, cfg)
}

// Reload sanitizes cfg and replaces everything registered with it.
func (r *Runtime) Reload(_ context.Context, cfg schema.Config) error {
	sanitized, err := sanitize.SanitizeConfig(cfg, r.functions)
	if err != nil {
		return fmt.Errorf("sanitize config: %w", err)
	}
	if err := r.registry.Replace(sanitized); err != nil {
		return fmt.Errorf("register config: %w", err)
	}
	r.logger.Info().Msg("schema reloaded")
	return nil
}

// Create stores a new document. An "id" string in data is kept; otherwise
// one is generated.
func (r *Runtime) Create(ctx context.Context, slug string, data map[string]any, req *schema.Request) (document.Document, error) {
	start := time.Now()
	doc, err := r.create(ctx, slug, data, req)
	r.observe(slug, schema.OperationCreate, start, err)
	return doc, err
}

func (r *Runtime) create(ctx context.Context, slug string, data map[string]any, req *schema.Request) (document.Document, error) {
	coll, err := r.collection(slug)
	if err != nil {
		return nil, err
	}
	req = r.request(req)

	input := document.DeepCopy(data)
	if input == nil {
		input = map[string]any{}
	}
	id, _ := input["id"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	input["id"] = id
	if coll.HasTimestamps() {
		now := r.timestamp()
		input["createdAt"] = now
		input["updatedAt"] = now
	}

	doc, err := r.change(ctx, coll, schema.OperationCreate, id, input, nil, req)
	if err != nil {
		return nil, err
	}

	r.logger.Debug().Str("collection", slug).Str("id", id).Msg("document created")
	r.events.Publish(ctx, events.Event{
		Name:       events.Name(slug, "created"),
		Collection: slug,
		Operation:  schema.OperationCreate,
		ID:         id,
		Doc:        doc,
	})
	return doc, nil
}

// Update merges data over the stored document and saves the result.
// Top-level keys of data replace the stored values.
func (r *Runtime) Update(ctx context.Context, slug, id string, data map[string]any, req *schema.Request) (document.Document, error) {
	start := time.Now()
	doc, err := r.update(ctx, slug, id, data, req)
	r.observe(slug, schema.OperationUpdate, start, err)
	return doc, err
}

func (r *Runtime) update(ctx context.Context, slug, id string, data map[string]any, req *schema.Request) (document.Document, error) {
	coll, err := r.collection(slug)
	if err != nil {
		return nil, err
	}
	req = r.request(req)

	previous, err := r.store.FindByID(ctx, slug, id)
	if err != nil {
		return nil, fmt.Errorf("find %s %q: %w", slug, id, err)
	}

	input := merge(previous, data)
	input["id"] = id
	if coll.HasTimestamps() {
		input["createdAt"] = previous["createdAt"]
		input["updatedAt"] = r.timestamp()
	}

	doc, err := r.change(ctx, coll, schema.OperationUpdate, id, input, previous, req)
	if err != nil {
		return nil, err
	}

	r.logger.Debug().Str("collection", slug).Str("id", id).Msg("document updated")
	r.events.Publish(ctx, events.Event{
		Name:        events.Name(slug, "updated"),
		Collection:  slug,
		Operation:   schema.OperationUpdate,
		ID:          id,
		Doc:         doc,
		PreviousDoc: previous,
	})
	return doc, nil
}

// change runs the write pipeline for a collection document.
func (r *Runtime) change(ctx context.Context, coll *schema.Collection, op schema.Operation, id string, data, previous map[string]any, req *schema.Request) (document.Document, error) {
	args := hooks.Args{
		Collection:  coll,
		Operation:   op,
		Req:         req,
		Data:        data,
		Doc:         previous,
		PreviousDoc: previous,
		Observer:    r.observer(),
	}

	data, err := r.beforeChange(ctx, args, coll.Hooks)
	if err != nil {
		return nil, err
	}
	// Hooks may not move a document to another ID.
	data["id"] = id

	if err := r.checkUnique(ctx, coll, id, data); err != nil {
		return nil, err
	}

	var stored map[string]any
	if op == schema.OperationCreate {
		stored, err = r.store.Create(ctx, coll.Slug, data)
	} else {
		stored, err = r.store.Update(ctx, coll.Slug, id, data)
	}
	if err != nil {
		return nil, fmt.Errorf("store %s %q: %w", coll.Slug, id, err)
	}

	args.Data = data
	return r.afterChange(ctx, args, coll.Hooks, stored)
}

// beforeChange runs beforeValidate and beforeChange and returns the data to store.
func (r *Runtime) beforeChange(ctx context.Context, args hooks.Args, ch schema.CollectionHooks) (map[string]any, error) {
	data, err := hooks.BeforeValidate(ctx, args)
	if err != nil {
		return nil, err
	}
	data, err = runCollectionHooks(ctx, ch.BeforeValidate, hookArgs(args, schema.PhaseBeforeValidate), data)
	if err != nil {
		return nil, err
	}
	data, err = runCollectionHooks(ctx, ch.BeforeChange, hookArgs(args, schema.PhaseBeforeChange), data)
	if err != nil {
		return nil, err
	}

	args.Data = data
	return hooks.BeforeChange(ctx, args)
}

// afterChange runs afterRead and afterChange over the stored document.
func (r *Runtime) afterChange(ctx context.Context, args hooks.Args, ch schema.CollectionHooks, stored map[string]any) (document.Document, error) {
	args.Doc = stored
	doc, err := r.read(ctx, args, ch)
	if err != nil {
		return nil, err
	}

	args.Doc = doc
	doc, err = hooks.AfterChange(ctx, args)
	if err != nil {
		return nil, err
	}
	ca := hookArgs(args, schema.PhaseAfterChange)
	ca.OriginalDoc = stored
	return runCollectionHooks(ctx, ch.AfterChange, ca, doc)
}

// read runs afterRead over args.Doc.
func (r *Runtime) read(ctx context.Context, args hooks.Args, ch schema.CollectionHooks) (document.Document, error) {
	doc, err := hooks.AfterRead(ctx, args)
	if err != nil {
		return nil, err
	}
	ca := hookArgs(args, schema.PhaseAfterRead)
	ca.OriginalDoc = args.Doc
	return runCollectionHooks(ctx, ch.AfterRead, ca, doc)
}

// FindByID returns one document after afterRead hooks.
func (r *Runtime) FindByID(ctx context.Context, slug, id string, req *schema.Request) (document.Document, error) {
	start := time.Now()
	doc, err := r.findByID(ctx, slug, id, req)
	r.observe(slug, schema.OperationRead, start, err)
	return doc, err
}

func (r *Runtime) findByID(ctx context.Context, slug, id string, req *schema.Request) (document.Document, error) {
	coll, err := r.collection(slug)
	if err != nil {
		return nil, err
	}
	stored, err := r.store.FindByID(ctx, slug, id)
	if err != nil {
		return nil, fmt.Errorf("find %s %q: %w", slug, id, err)
	}
	return r.read(ctx, r.readArgs(coll, nil, stored, req), coll.Hooks)
}

// Find returns one page of documents after afterRead hooks.
func (r *Runtime) Find(ctx context.Context, slug string, q storage.Query, req *schema.Request) (storage.Result, error) {
	start := time.Now()
	res, err := r.find(ctx, slug, q, req)
	r.observe(slug, schema.OperationRead, start, err)
	return res, err
}

func (r *Runtime) find(ctx context.Context, slug string, q storage.Query, req *schema.Request) (storage.Result, error) {
	coll, err := r.collection(slug)
	if err != nil {
		return storage.Result{}, err
	}
	res, err := r.store.Find(ctx, slug, q)
	if err != nil {
		return storage.Result{}, fmt.Errorf("find %s: %w", slug, err)
	}

	req = r.request(req)
	for i, stored := range res.Docs {
		doc, err := r.read(ctx, r.readArgs(coll, nil, stored, req), coll.Hooks)
		if err != nil {
			return storage.Result{}, err
		}
		res.Docs[i] = doc
	}
	return res, nil
}

// Delete removes a document and publishes "<slug>.deleted".
func (r *Runtime) Delete(ctx context.Context, slug, id string, req *schema.Request) error {
	start := time.Now()
	err := r.delete(ctx, slug, id, req)
	r.observe(slug, schema.OperationDelete, start, err)
	return err
}

func (r *Runtime) delete(ctx context.Context, slug, id string, _ *schema.Request) error {
	if _, err := r.collection(slug); err != nil {
		return err
	}
	previous, err := r.store.FindByID(ctx, slug, id)
	if err != nil {
		return fmt.Errorf("find %s %q: %w", slug, id, err)
	}
	if err := r.store.Delete(ctx, slug, id); err != nil {
		return fmt.Errorf("delete %s %q: %w", slug, id, err)
	}

	r.logger.Debug().Str("collection", slug).Str("id", id).Msg("document deleted")
	r.events.Publish(ctx, events.Event{
		Name:        events.Name(slug, "deleted"),
		Collection:  slug,
		Operation:   schema.OperationDelete,
		ID:          id,
		PreviousDoc: previous,
	})
	return nil
}

// FindGlobal returns a global after afterRead hooks. A global that was never
// saved reads as an empty document.
func (r *Runtime) FindGlobal(ctx context.Context, slug string, req *schema.Request) (document.Document, error) {
	start := time.Now()
	doc, err := r.findGlobal(ctx, slug, req)
	r.observe(slug, schema.OperationRead, start, err)
	return doc, err
}

func (r *Runtime) findGlobal(ctx context.Context, slug string, req *schema.Request) (document.Document, error) {
	g, err := r.global(slug)
	if err != nil {
		return nil, err
	}
	stored, err := r.loadGlobal(ctx, slug)
	if err != nil {
		return nil, err
	}
	return r.read(ctx, r.readArgs(nil, g, stored, req), g.Hooks)
}

// UpdateGlobal merges data over a global and saves it.
func (r *Runtime) UpdateGlobal(ctx context.Context, slug string, data map[string]any, req *schema.Request) (document.Document, error) {
	start := time.Now()
	doc, err := r.updateGlobal(ctx, slug, data, req)
	r.observe(slug, schema.OperationUpdate, start, err)
	return doc, err
}

func (r *Runtime) updateGlobal(ctx context.Context, slug string, data map[string]any, req *schema.Request) (document.Document, error) {
	g, err := r.global(slug)
	if err != nil {
		return nil, err
	}
	req = r.request(req)

	previous, err := r.loadGlobal(ctx, slug)
	if err != nil {
		return nil, err
	}

	args := hooks.Args{
		Global:      g,
		Operation:   schema.OperationUpdate,
		Req:         req,
		Data:        merge(previous, data),
		Doc:         previous,
		PreviousDoc: previous,
		Observer:    r.observer(),
	}
	input, err := r.beforeChange(ctx, args, g.Hooks)
	if err != nil {
		return nil, err
	}

	stored, err := r.store.SetGlobal(ctx, slug, input)
	if err != nil {
		return nil, fmt.Errorf("store global %s: %w", slug, err)
	}

	args.Data = input
	doc, err := r.afterChange(ctx, args, g.Hooks, stored)
	if err != nil {
		return nil, err
	}

	r.logger.Debug().Str("global", slug).Msg("global updated")
	r.events.Publish(ctx, events.Event{
		Name:        events.GlobalName(slug, "updated"),
		Global:      slug,
		Operation:   schema.OperationUpdate,
		Doc:         doc,
		PreviousDoc: previous,
	})
	return doc, nil
}

func (r *Runtime) loadGlobal(ctx context.Context, slug string) (map[string]any, error) {
	stored, err := r.store.GetGlobal(ctx, slug)
	if errors.Is(err, storage.ErrNotFound) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find global %s: %w", slug, err)
	}
	return stored, nil
}

func (r *Runtime) collection(slug string) (*schema.Collection, error) {
	coll, ok := r.registry.Collection(slug)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, slug)
	}
	return coll, nil
}

func (r *Runtime) global(slug string) (*schema.Global, error) {
	g, ok := r.registry.Global(slug)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGlobal, slug)
	}
	return g, nil
}

// request fills in what hooks expect on every request.
func (r *Runtime) request(req *schema.Request) *schema.Request {
	if req == nil {
		req = &schema.Request{Logger: r.logger}
	}
	if req.Context == nil {
		req.Context = map[string]any{}
	}
	if req.API == nil {
		req.API = r.API()
	}
	return req
}

func (r *Runtime) readArgs(coll *schema.Collection, g *schema.Global, stored map[string]any, req *schema.Request) hooks.Args {
	return hooks.Args{
		Collection: coll,
		Global:     g,
		Operation:  schema.OperationRead,
		Req:        r.request(req),
		Doc:        stored,
		Observer:   r.observer(),
	}
}

func (r *Runtime) observer() hooks.Observer {
	if r.metrics == nil {
		return nil
	}
	return r.metrics
}

func (r *Runtime) observe(slug string, op schema.Operation, start time.Time, err error) {
	if r.metrics != nil {
		r.metrics.ObserveOperation(slug, op, time.Since(start), err)
	}
	if err != nil {
		r.logger.Debug().Err(err).Str("slug", slug).Str("operation", string(op)).Msg("operation failed")
	}
}

func (r *Runtime) timestamp() string {
	return r.now().UTC().Format(time.RFC3339Nano)
}

// checkUnique rejects values of unique top-level fields that another
// document of the collection already holds.
func (r *Runtime) checkUnique(ctx context.Context, coll *schema.Collection, id string, data map[string]any) error {
	var errs []validation.FieldError
	for _, f := range uniqueFields(coll.Fields) {
		v, ok := data[f.Name]
		if !ok || v == nil {
			continue
		}
		res, err := r.store.Find(ctx, coll.Slug, storage.Query{
			Where: map[string]any{f.Name: map[string]any{"equals": v}},
			Limit: 2,
		})
		if err != nil {
			return fmt.Errorf("check unique %s.%s: %w", coll.Slug, f.Name, err)
		}
		for _, doc := range res.Docs {
			if other, _ := doc["id"].(string); other != id {
				errs = append(errs, validation.FieldError{
					Path:    f.Name,
					Message: "value must be unique",
					Value:   v,
				})
				break
			}
		}
	}
	if len(errs) > 0 {
		return &hooks.ValidationError{Slug: coll.Slug, Errors: errs}
	}
	return nil
}

func uniqueFields(fields []schema.Field) []schema.Field {
	var out []schema.Field
	for _, f := range fields {
		if f.Type.Presentational() {
			out = append(out, uniqueFields(f.Fields)...)
			continue
		}
		if f.Unique && f.Name != "" {
			out = append(out, f)
		}
	}
	return out
}

func hookArgs(args hooks.Args, phase schema.Phase) schema.CollectionHookArgs {
	return schema.CollectionHookArgs{
		Phase:       phase,
		Operation:   args.Operation,
		Collection:  args.Collection,
		Global:      args.Global,
		Data:        args.Data,
		Doc:         args.Doc,
		PreviousDoc: args.PreviousDoc,
		Req:         args.Req,
	}
}

// runCollectionHooks threads current through hooks. Before-phases see it as
// Data, after-phases as Doc. Errors are returned as is.
func runCollectionHooks(ctx context.Context, fns []schema.CollectionHook, args schema.CollectionHookArgs, current map[string]any) (map[string]any, error) {
	before := args.Phase == schema.PhaseBeforeValidate || args.Phase == schema.PhaseBeforeChange
	for _, fn := range fns {
		if before {
			args.Data = current
		} else {
			args.Doc = current
		}
		out, err := fn(ctx, args)
		if err != nil {
			return nil, err
		}
		if out != nil {
			current = out
		}
	}
	return current, nil
}

// merge returns a copy of base with the top-level keys of patch applied.
func merge(base, patch map[string]any) map[string]any {
	out := document.DeepCopy(base)
	if out == nil {
		out = map[string]any{}
	}
	for k, v := range patch {
		out[k] = document.CopyValue(v)
	}
	return out
}
