package storage

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/artpar/contentcore/core/document"
)

// MemoryStore keeps documents in process. It is safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
	globals     map[string]map[string]any
}

type memCollection struct {
	order []string
	docs  map[string]map[string]any
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memCollection),
		globals:     make(map[string]map[string]any),
	}
}

func (s *MemoryStore) collection(slug string) *memCollection {
	c, ok := s.collections[slug]
	if !ok {
		c = &memCollection{docs: make(map[string]map[string]any)}
		s.collections[slug] = c
	}
	return c
}

// Create inserts a new document.
func (s *MemoryStore) Create(_ context.Context, collection string, doc map[string]any) (map[string]any, error) {
	id, err := docID(doc)
	if err != nil {
		return nil, err
	}
	stored, _, err := normalizeDoc(doc)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	if _, exists := c.docs[id]; exists {
		return nil, fmt.Errorf("%s %s: %w", collection, id, ErrConflict)
	}
	c.docs[id] = stored
	c.order = append(c.order, id)

	return document.DeepCopy(stored), nil
}

// FindByID returns a document by ID.
func (s *MemoryStore) FindByID(_ context.Context, collection, id string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, ErrNotFound
	}
	doc, ok := c.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return document.DeepCopy(doc), nil
}

// Find returns one page of matching documents.
func (s *MemoryStore) Find(_ context.Context, collection string, q Query) (Result, error) {
	q = q.normalized()
	conds, err := parseWhere(q.Where)
	if err != nil {
		return Result{}, err
	}
	sortPath, desc, err := parseSort(q.Sort)
	if err != nil {
		return Result{}, err
	}

	s.mu.RLock()
	var matched []map[string]any
	if c, ok := s.collections[collection]; ok {
		for _, id := range c.order {
			doc := c.docs[id]
			if matchAll(doc, conds) {
				matched = append(matched, doc)
			}
		}
	}
	s.mu.RUnlock()

	if sortPath != nil {
		sort.SliceStable(matched, func(i, j int) bool {
			a, _ := document.Get(matched[i], sortPath)
			b, _ := document.Get(matched[j], sortPath)
			if desc {
				return compareValues(b, a) < 0
			}
			return compareValues(a, b) < 0
		})
	}

	total := len(matched)
	start := q.offset()
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}

	page := make([]map[string]any, 0, end-start)
	for _, doc := range matched[start:end] {
		page = append(page, document.DeepCopy(doc))
	}
	return newResult(q, page, total), nil
}

// Update replaces a document.
func (s *MemoryStore) Update(_ context.Context, collection, id string, doc map[string]any) (map[string]any, error) {
	stored, _, err := normalizeDoc(doc)
	if err != nil {
		return nil, err
	}
	stored["id"] = id

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, ErrNotFound
	}
	if _, ok := c.docs[id]; !ok {
		return nil, ErrNotFound
	}
	c.docs[id] = stored

	return document.DeepCopy(stored), nil
}

// Delete removes a document.
func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return ErrNotFound
	}
	if _, ok := c.docs[id]; !ok {
		return ErrNotFound
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// GetGlobal returns a global document.
func (s *MemoryStore) GetGlobal(_ context.Context, slug string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.globals[slug]
	if !ok {
		return nil, ErrNotFound
	}
	return document.DeepCopy(doc), nil
}

// SetGlobal replaces a global document.
func (s *MemoryStore) SetGlobal(_ context.Context, slug string, doc map[string]any) (map[string]any, error) {
	stored, _, err := normalizeDoc(doc)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.globals[slug] = stored

	return document.DeepCopy(stored), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func matchAll(doc map[string]any, conds []condition) bool {
	for _, c := range conds {
		if !matches(doc, c) {
			return false
		}
	}
	return true
}

func matches(doc map[string]any, c condition) bool {
	v, _ := document.Get(doc, c.path)

	switch c.operator {
	case opEquals:
		return equalValues(v, c.value)
	case opNotEquals:
		return !equalValues(v, c.value)
	case opIn:
		list, _ := c.value.([]any)
		for _, item := range list {
			if v != nil && equalValues(v, item) {
				return true
			}
		}
		return false
	case opExists:
		want, _ := c.value.(bool)
		return (v != nil) == want
	default:
		return false
	}
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders values the way SQLite orders JSON values:
// null, then numbers and booleans, then strings, then everything else.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}

	switch av := a.(type) {
	case string:
		bv := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case float64, bool:
		an, bn := number(a), number(b)
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case float64, bool:
		return 1
	case string:
		return 2
	default:
		return 3
	}
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case bool:
		if n {
			return 1
		}
	}
	return 0
}
