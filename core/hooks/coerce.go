package hooks

import (
	"strconv"
	"strings"
	"time"

	"github.com/artpar/contentcore/core/document"
	"github.com/artpar/contentcore/core/schema"
)

// prepare applies defaults and coercion ahead of beforeValidate hooks.
func (t *traversal) prepare(f *schema.Field, target map[string]any) {
	value, exists := target[f.Name]
	if !exists {
		if t.args.Operation == schema.OperationCreate && f.DefaultValue != nil {
			target[f.Name] = document.CopyValue(f.DefaultValue)
		}
		return
	}
	target[f.Name] = coerce(f, value)
}

// coerce converts form-style input to the stored type of a field. Values it
// cannot convert are left for validation to reject.
func coerce(f *schema.Field, value any) any {
	switch f.Type {
	case schema.FieldTypeNumber:
		if f.HasMany {
			return mapRows(value, coerceNumber)
		}
		return coerceNumber(value)
	case schema.FieldTypeCheckbox:
		if s, ok := value.(string); ok {
			switch s {
			case "true":
				return true
			case "false":
				return false
			case "":
				return nil
			}
		}
	case schema.FieldTypeDate:
		if ts, ok := value.(time.Time); ok {
			return ts.UTC().Format(time.RFC3339Nano)
		}
	case schema.FieldTypeRelationship:
		if f.HasMany {
			if rows := document.Rows(value); rows != nil {
				out := make([]any, 0, len(rows))
				for _, row := range rows {
					if v := coerceRelation(row); v != nil {
						out = append(out, v)
					}
				}
				return out
			}
		}
		return coerceRelation(value)
	}
	return value
}

func coerceNumber(value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return value
}

func coerceRelation(value any) any {
	switch v := value.(type) {
	case string:
		if v == "" || v == "null" || v == "none" {
			return nil
		}
	case map[string]any:
		if _, ok := v["relationTo"]; ok && coerceRelation(v["value"]) == nil {
			return nil
		}
	}
	return value
}

func mapRows(value any, fn func(any) any) any {
	rows := document.Rows(value)
	if rows == nil {
		return fn(value)
	}
	out := make([]any, len(rows))
	for i, row := range rows {
		out[i] = fn(row)
	}
	return out
}
