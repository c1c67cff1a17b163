package schema

import (
	"context"

	"github.com/rs/zerolog"
)

// Phase is a document lifecycle stage at which hooks run.
type Phase string

const (
	PhaseBeforeValidate Phase = "beforeValidate"
	PhaseBeforeChange   Phase = "beforeChange"
	PhaseAfterChange    Phase = "afterChange"
	PhaseAfterRead      Phase = "afterRead"
)

// Phases lists every phase in pipeline order.
var Phases = []Phase{PhaseBeforeValidate, PhaseBeforeChange, PhaseAfterChange, PhaseAfterRead}

// Operation is the document operation a pipeline runs for.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationRead   Operation = "read"
	OperationDelete Operation = "delete"
)

// FieldHook runs for one field at one phase. Returning a nil value leaves the
// field unchanged; returning Null stores an explicit null.
type FieldHook func(ctx context.Context, args FieldHookArgs) (any, error)

// FieldHookArgs is what a field hook sees. Sibling maps are shared with the
// rest of the traversal, so writes to them are visible to later fields.
type FieldHookArgs struct {
	Phase     Phase
	Operation Operation

	Collection *Collection
	Global     *Global
	Field      *Field

	Value         any
	PreviousValue any

	// Data is the incoming data of the operation.
	Data map[string]any
	// Doc is the document being produced (after-phases) or the stored document (before-phases).
	Doc         map[string]any
	PreviousDoc map[string]any

	SiblingData        map[string]any
	SiblingDoc         map[string]any
	PreviousSiblingDoc map[string]any

	Path       Path
	SchemaPath Path

	Req *Request
}

type null struct{}

// Null is returned by a hook to clear a value. Returning nil leaves the value unchanged.
var Null any = null{}

// IsNull reports whether v is the Null sentinel.
func IsNull(v any) bool {
	_, ok := v.(null)
	return ok
}

// CollectionHook runs once per operation for a whole document. A nil result
// leaves the document unchanged.
type CollectionHook func(ctx context.Context, args CollectionHookArgs) (map[string]any, error)

// CollectionHookArgs is what a collection or global hook sees.
type CollectionHookArgs struct {
	Phase      Phase
	Operation  Operation
	Collection *Collection
	Global     *Global

	// Data is set for before-phases, Doc for after-phases.
	Data        map[string]any
	Doc         map[string]any
	OriginalDoc map[string]any
	PreviousDoc map[string]any

	Req *Request
}

// CollectionHooks holds document level hooks per phase, attached in code.
type CollectionHooks struct {
	BeforeValidate []CollectionHook
	BeforeChange   []CollectionHook
	AfterChange    []CollectionHook
	AfterRead      []CollectionHook
}

// For returns the hooks of a phase.
func (h CollectionHooks) For(phase Phase) []CollectionHook {
	switch phase {
	case PhaseBeforeValidate:
		return h.BeforeValidate
	case PhaseBeforeChange:
		return h.BeforeChange
	case PhaseAfterChange:
		return h.AfterChange
	case PhaseAfterRead:
		return h.AfterRead
	default:
		return nil
	}
}

// Request carries per-operation context into hooks.
type Request struct {
	Locale         string
	FallbackLocale string

	// User is the authenticated user document, if any.
	User map[string]any

	// Context is shared by every hook of one operation, including nested
	// operations started from hooks.
	Context map[string]any

	// API lets hooks read and write other documents.
	API API

	Logger zerolog.Logger
}

// API is the document access hooks may use.
type API interface {
	FindByID(ctx context.Context, collection, id string, req *Request) (map[string]any, error)
	Find(ctx context.Context, collection string, where map[string]any, req *Request) ([]map[string]any, error)
	Update(ctx context.Context, collection, id string, data map[string]any, req *Request) (map[string]any, error)
}
