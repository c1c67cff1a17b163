// Package storage persists documents as JSON. Collections hold many
// documents keyed by ID; globals hold one document per slug.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a document or global does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned when creating a document whose ID is taken.
	ErrConflict = errors.New("document already exists")

	// ErrInvalidQuery is returned for malformed where or sort clauses.
	ErrInvalidQuery = errors.New("invalid query")
)

// DefaultLimit is the page size when a query does not set one.
const DefaultLimit = 10

// Store persists documents. Documents passed in must carry a string "id".
type Store interface {
	// Create inserts a new document and returns it as stored.
	Create(ctx context.Context, collection string, doc map[string]any) (map[string]any, error)

	// FindByID returns a document or ErrNotFound.
	FindByID(ctx context.Context, collection, id string) (map[string]any, error)

	// Find returns one page of matching documents.
	Find(ctx context.Context, collection string, q Query) (Result, error)

	// Update replaces a document and returns it as stored.
	Update(ctx context.Context, collection, id string, doc map[string]any) (map[string]any, error)

	// Delete removes a document.
	Delete(ctx context.Context, collection, id string) error

	// GetGlobal returns a global document or ErrNotFound when never saved.
	GetGlobal(ctx context.Context, slug string) (map[string]any, error)

	// SetGlobal replaces a global document.
	SetGlobal(ctx context.Context, slug string, doc map[string]any) (map[string]any, error)

	// Close releases the store.
	Close() error
}

// Query selects documents.
type Query struct {
	// Where maps dotted field paths to a value (equality) or an operator map:
	// {"equals": v}, {"not_equals": v}, {"in": [...]}, {"exists": bool}.
	Where map[string]any

	// Sort is a dotted field path; a leading "-" sorts descending.
	// Empty sorts by insertion order.
	Sort string

	// Limit is the page size. Zero means DefaultLimit.
	Limit int

	// Page is 1-based. Zero means the first page.
	Page int
}

// Result is one page of a query.
type Result struct {
	Docs       []map[string]any `json:"docs"`
	TotalDocs  int              `json:"totalDocs"`
	Limit      int              `json:"limit"`
	Page       int              `json:"page"`
	TotalPages int              `json:"totalPages"`
}

func (q Query) normalized() Query {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	return q
}

func (q Query) offset() int {
	return (q.Page - 1) * q.Limit
}

func newResult(q Query, docs []map[string]any, total int) Result {
	if docs == nil {
		docs = []map[string]any{}
	}
	pages := 0
	if total > 0 {
		pages = (total + q.Limit - 1) / q.Limit
	}
	return Result{
		Docs:       docs,
		TotalDocs:  total,
		Limit:      q.Limit,
		Page:       q.Page,
		TotalPages: pages,
	}
}

// condition is one parsed Where entry.
type condition struct {
	path     []string
	operator string
	value    any
}

const (
	opEquals    = "equals"
	opNotEquals = "not_equals"
	opIn        = "in"
	opExists    = "exists"
)

func parseWhere(where map[string]any) ([]condition, error) {
	conds := make([]condition, 0, len(where))
	for key, raw := range where {
		path, err := parseFieldPath(key)
		if err != nil {
			return nil, err
		}

		ops, isOps := raw.(map[string]any)
		if !isOps || !isOperatorMap(ops) {
			conds = append(conds, condition{path: path, operator: opEquals, value: normalize(raw)})
			continue
		}

		for op, v := range ops {
			switch op {
			case opEquals, opNotEquals:
			case opIn:
				if _, ok := normalize(v).([]any); !ok {
					return nil, fmt.Errorf("%w: where %s: in requires a list", ErrInvalidQuery, key)
				}
			case opExists:
				if _, ok := v.(bool); !ok {
					return nil, fmt.Errorf("%w: where %s: exists requires a boolean", ErrInvalidQuery, key)
				}
			}
			conds = append(conds, condition{path: path, operator: op, value: normalize(v)})
		}
	}
	return conds, nil
}

func isOperatorMap(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for op := range m {
		switch op {
		case opEquals, opNotEquals, opIn, opExists:
		default:
			return false
		}
	}
	return true
}

// parseFieldPath splits a dotted path and rejects segments that are not
// plain identifiers or row indices.
func parseFieldPath(key string) ([]string, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: empty field path", ErrInvalidQuery)
	}
	segs := strings.Split(key, ".")
	for _, seg := range segs {
		if seg == "" {
			return nil, fmt.Errorf("%w: invalid field path %q", ErrInvalidQuery, key)
		}
		for _, c := range seg {
			if !(c == '_' || c == '-' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
				return nil, fmt.Errorf("%w: invalid field path %q", ErrInvalidQuery, key)
			}
		}
	}
	return segs, nil
}

func parseSort(sort string) (path []string, desc bool, err error) {
	if sort == "" {
		return nil, false, nil
	}
	if strings.HasPrefix(sort, "-") {
		desc = true
		sort = sort[1:]
	}
	path, err = parseFieldPath(sort)
	return path, desc, err
}

// normalize round-trips a value through JSON so every store holds the same
// types: float64 numbers, []any lists and map[string]any objects.
func normalize(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

func normalizeDoc(doc map[string]any) (map[string]any, []byte, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("encode document: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, nil, fmt.Errorf("decode document: %w", err)
	}
	return out, b, nil
}

func docID(doc map[string]any) (string, error) {
	id, _ := doc["id"].(string)
	if id == "" {
		return "", fmt.Errorf("document has no id")
	}
	return id, nil
}
