package http

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/artpar/contentcore/core/schema"
	"github.com/artpar/contentcore/core/storage"
)

var operators = map[string]bool{
	"equals":     true,
	"not_equals": true,
	"in":         true,
	"exists":     true,
}

// ParseQuery reads a find query from URL parameters:
//
//	?where[title][equals]=Home&where[meta.views][in]=1,2&sort=-createdAt&limit=20&page=2
//
// `where[field]=v` is short for equals. Values are converted to the type of
// the field they filter, looked up in fields.
func ParseQuery(values url.Values, fields []schema.Field) (storage.Query, error) {
	q := storage.Query{Sort: values.Get("sort")}

	var err error
	if q.Limit, err = intParam(values, "limit"); err != nil {
		return storage.Query{}, err
	}
	if q.Page, err = intParam(values, "page"); err != nil {
		return storage.Query{}, err
	}

	for key, vals := range values {
		if !strings.HasPrefix(key, "where[") {
			continue
		}
		segs, err := brackets(strings.TrimPrefix(key, "where"))
		if err != nil {
			return storage.Query{}, err
		}

		op := "equals"
		if len(segs) > 1 && operators[segs[len(segs)-1]] {
			op = segs[len(segs)-1]
			segs = segs[:len(segs)-1]
		}
		path := strings.Join(segs, ".")

		value, err := whereValue(op, vals, fieldAt(fields, strings.Split(path, ".")))
		if err != nil {
			return storage.Query{}, fmt.Errorf("where %s: %w", path, err)
		}

		if q.Where == nil {
			q.Where = map[string]any{}
		}
		ops, _ := q.Where[path].(map[string]any)
		if ops == nil {
			ops = map[string]any{}
			q.Where[path] = ops
		}
		ops[op] = value
	}
	return q, nil
}

func intParam(values url.Values, name string) (int, error) {
	s := values.Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", storage.ErrInvalidQuery, name)
	}
	return n, nil
}

// brackets splits "[a][b.c][d]" into ["a", "b.c", "d"].
func brackets(s string) ([]string, error) {
	var segs []string
	for s != "" {
		if s[0] != '[' {
			return nil, fmt.Errorf("%w: malformed where parameter", storage.ErrInvalidQuery)
		}
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return nil, fmt.Errorf("%w: malformed where parameter", storage.ErrInvalidQuery)
		}
		if seg := s[1:end]; seg != "" {
			segs = append(segs, seg)
		}
		s = s[end+1:]
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: empty where parameter", storage.ErrInvalidQuery)
	}
	return segs, nil
}

func whereValue(op string, vals []string, field *schema.Field) (any, error) {
	switch op {
	case "exists":
		b, err := strconv.ParseBool(last(vals))
		if err != nil {
			return nil, fmt.Errorf("%w: exists requires true or false", storage.ErrInvalidQuery)
		}
		return b, nil
	case "in":
		var list []any
		for _, v := range vals {
			for _, part := range strings.Split(v, ",") {
				cv, err := convert(part, field)
				if err != nil {
					return nil, err
				}
				list = append(list, cv)
			}
		}
		return list, nil
	default:
		return convert(last(vals), field)
	}
}

func convert(s string, field *schema.Field) (any, error) {
	if field == nil {
		return s, nil
	}
	switch field.Type {
	case schema.FieldTypeNumber:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", storage.ErrInvalidQuery, s)
		}
		return n, nil
	case schema.FieldTypeCheckbox:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a boolean", storage.ErrInvalidQuery, s)
		}
		return b, nil
	default:
		return s, nil
	}
}

func last(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[len(vals)-1]
}

// fieldAt finds the field a dotted data path points at. Row indices are skipped.
func fieldAt(fields []schema.Field, segs []string) *schema.Field {
	for len(segs) > 0 && isIndex(segs[0]) {
		segs = segs[1:]
	}
	if len(segs) == 0 {
		return nil
	}
	f, ok := schema.FindField(fields, segs[0])
	if !ok {
		return nil
	}
	if len(segs) == 1 {
		return &f
	}
	return fieldAt(f.Fields, segs[1:])
}

func isIndex(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}
