// Package document provides helpers for untyped documents: deep copies and
// path based access.
package document

import (
	"reflect"
	"strconv"

	"github.com/artpar/contentcore/core/schema"
)

// Document is a stored or in-flight document. Groups are nested maps,
// arrays and blocks are []any of maps.
type Document = map[string]any

// DeepCopy returns a copy of doc that shares no maps or slices with it.
// Leaf values (strings, numbers, booleans) are copied by assignment.
func DeepCopy(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = CopyValue(v)
	}
	return out
}

// CopyValue deep copies the container types documents are built from.
// Rows given as []map[string]any become []any; any other map, slice or
// array keeps its type.
func CopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return DeepCopy(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CopyValue(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = DeepCopy(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	case nil, string, bool, float64, int, int64:
		return v
	default:
		return copyTyped(v)
	}
}

func copyTyped(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), copyElem(iter.Value(), rv.Type().Elem()))
		}
		return out.Interface()
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(copyElem(rv.Index(i), rv.Type().Elem()))
		}
		return out.Interface()
	case reflect.Array:
		out := reflect.New(rv.Type()).Elem()
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(copyElem(rv.Index(i), rv.Type().Elem()))
		}
		return out.Interface()
	default:
		return v
	}
}

// copyElem copies one element of a typed container so that it stays
// assignable to the container's element type.
func copyElem(v reflect.Value, typ reflect.Type) reflect.Value {
	if typ.Kind() == reflect.Interface {
		c := CopyValue(v.Interface())
		if c == nil {
			return reflect.Zero(typ)
		}
		return reflect.ValueOf(c)
	}
	return reflect.ValueOf(copyTyped(v.Interface()))
}

// Get resolves a value by path. Numeric segments index into lists.
func Get(doc map[string]any, path schema.Path) (any, bool) {
	var current any = doc
	for _, seg := range path {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			current = node[i]
		default:
			return nil, false
		}
	}
	return current, true
}

// Set writes a value by path, creating intermediate maps as needed.
// It reports false when the path crosses a non-container value or an
// out of range list index.
func Set(doc map[string]any, path schema.Path, value any) bool {
	if len(path) == 0 {
		return false
	}

	var current any = doc
	for i, seg := range path {
		last := i == len(path)-1
		switch node := current.(type) {
		case map[string]any:
			if last {
				node[seg] = value
				return true
			}
			next, ok := node[seg]
			if !ok || next == nil {
				next = make(map[string]any)
				node[seg] = next
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return false
			}
			if last {
				node[idx] = value
				return true
			}
			current = node[idx]
		default:
			return false
		}
	}
	return false
}

// Rows returns the rows of an array or blocks value. Anything that is not
// a list yields nil.
func Rows(v any) []any {
	switch val := v.(type) {
	case []any:
		return val
	case []map[string]any:
		out := make([]any, len(val))
		for i, row := range val {
			out[i] = row
		}
		return out
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// Row returns the i-th row of a list as a map, or nil when absent.
func Row(v any, i int) map[string]any {
	rows := Rows(v)
	if i < 0 || i >= len(rows) {
		return nil
	}
	row, _ := rows[i].(map[string]any)
	return row
}

// Map returns v as a map, or nil.
func Map(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
