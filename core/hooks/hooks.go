// Package hooks runs field hooks over documents.
//
// Each orchestrator copies its input, then walks the collection (or global)
// schema depth-first in declaration order, running the hooks of every field
// for one phase. Hooks run one at a time; a hook sees the writes of every
// hook that ran before it in the same traversal.
//
//	doc, err := hooks.AfterChange(ctx, hooks.Args{
//		Collection:  &pages,
//		Operation:   schema.OperationCreate,
//		Data:        data,
//		Doc:         stored,
//		PreviousDoc: previous,
//		Req:         req,
//	})
package hooks

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/artpar/contentcore/core/document"
	"github.com/artpar/contentcore/core/schema"
	"github.com/artpar/contentcore/core/validation"
)

// Args describes one document operation.
type Args struct {
	Collection *schema.Collection
	Global     *schema.Global
	Operation  schema.Operation
	Req        *schema.Request

	// Data is the incoming data of a create or update.
	Data map[string]any

	// Doc is the document produced by the operation. Before-phases receive
	// the stored document here, if any.
	Doc map[string]any

	// PreviousDoc is the document as it was before the operation.
	PreviousDoc map[string]any

	// ShowHiddenFields keeps hidden fields in AfterRead output.
	ShowHiddenFields bool

	// Observer, when set, is told about every hook invocation.
	Observer Observer
}

// Observer receives hook invocations. Metrics collectors implement it.
type Observer interface {
	ObserveHook(phase schema.Phase, schemaPath string, err error)
}

// AfterChange runs afterChange field hooks over a copy of args.Doc and
// returns the copy. args.Doc is never modified. Hook errors are returned as is.
func AfterChange(ctx context.Context, args Args) (document.Document, error) {
	doc := ensure(document.DeepCopy(args.Doc))

	t := newTraversal(schema.PhaseAfterChange, args)
	t.data = args.Data
	t.doc = doc

	err := t.traverseFields(ctx, fieldsOf(args), frame{
		siblingData:        args.Data,
		siblingDoc:         doc,
		previousSiblingDoc: args.PreviousDoc,
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// AfterRead runs afterRead field hooks over a copy of args.Doc. Hidden fields
// are removed unless args.ShowHiddenFields is set.
func AfterRead(ctx context.Context, args Args) (document.Document, error) {
	doc := ensure(document.DeepCopy(args.Doc))

	t := newTraversal(schema.PhaseAfterRead, args)
	t.data = args.Data
	t.doc = doc

	err := t.traverseFields(ctx, fieldsOf(args), frame{
		siblingData:        args.Data,
		siblingDoc:         doc,
		previousSiblingDoc: args.PreviousDoc,
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// BeforeValidate runs beforeValidate field hooks over a copy of args.Data.
// On create, default values fill undefined fields first. Loosely typed input
// (numeric strings, "true"/"false", empty relationship IDs) is coerced.
func BeforeValidate(ctx context.Context, args Args) (document.Document, error) {
	data := ensure(document.DeepCopy(args.Data))

	t := newTraversal(schema.PhaseBeforeValidate, args)
	t.data = data
	t.doc = args.Doc

	err := t.traverseFields(ctx, fieldsOf(args), frame{
		siblingData:        data,
		siblingDoc:         args.Doc,
		previousSiblingDoc: args.PreviousDoc,
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// BeforeChange runs beforeChange field hooks over a copy of args.Data, then
// validates every field whose admin condition passes. Validation failures
// are collected into a *ValidationError.
func BeforeChange(ctx context.Context, args Args) (document.Document, error) {
	data := ensure(document.DeepCopy(args.Data))

	t := newTraversal(schema.PhaseBeforeChange, args)
	t.data = data
	t.doc = args.Doc
	t.result = validation.NewResult()

	err := t.traverseFields(ctx, fieldsOf(args), frame{
		siblingData:        data,
		siblingDoc:         args.Doc,
		previousSiblingDoc: args.PreviousDoc,
	})
	if err != nil {
		return nil, err
	}

	if !t.result.Valid {
		return nil, &ValidationError{Slug: slugOf(args), Errors: t.result.Errors}
	}
	return data, nil
}

// fieldsOf returns the fields of the collection, else the global. A missing
// schema is an empty field list.
func fieldsOf(args Args) []schema.Field {
	if args.Collection != nil {
		return args.Collection.Fields
	}
	if args.Global != nil {
		return args.Global.Fields
	}
	return nil
}

func slugOf(args Args) string {
	if args.Collection != nil {
		return args.Collection.Slug
	}
	if args.Global != nil {
		return args.Global.Slug
	}
	return ""
}

func ensure(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// requestOf returns a request with a context map. A caller's request
// without one is copied, never filled in.
func requestOf(req *schema.Request) *schema.Request {
	if req == nil {
		return &schema.Request{
			Context: map[string]any{},
			Logger:  zerolog.Nop(),
		}
	}
	if req.Context != nil {
		return req
	}
	r := *req
	r.Context = map[string]any{}
	return &r
}
