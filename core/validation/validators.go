package validation

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/artpar/contentcore/core/document"
	"github.com/artpar/contentcore/core/schema"
)

// For returns the default validator of a field kind. Presentational kinds
// and kinds without constraints return nil.
func For(t schema.FieldType) schema.ValidateFunc {
	switch t {
	case schema.FieldTypeText, schema.FieldTypeTextarea:
		return Text
	case schema.FieldTypeEmail:
		return Email
	case schema.FieldTypeNumber:
		return Number
	case schema.FieldTypeCheckbox:
		return Checkbox
	case schema.FieldTypeSelect:
		return Select
	case schema.FieldTypeDate:
		return Date
	case schema.FieldTypeRelationship:
		return Relationship
	case schema.FieldTypeArray:
		return Array
	case schema.FieldTypeBlocks:
		return Blocks
	case schema.FieldTypeJSON, schema.FieldTypeRichText:
		return Required
	default:
		return nil
	}
}

// Required fails for nil values on required fields.
func Required(_ context.Context, value any, args schema.ValidateArgs) error {
	if args.Field != nil && args.Field.Required && value == nil {
		return fmt.Errorf("this field is required")
	}
	return nil
}

// Text accepts strings; required text must not be blank.
func Text(ctx context.Context, value any, args schema.ValidateArgs) error {
	if value == nil {
		return Required(ctx, value, args)
	}
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("must be a string")
	}
	if args.Field.Required && strings.TrimSpace(s) == "" {
		return fmt.Errorf("this field is required")
	}
	return nil
}

// Email accepts a single RFC 5322 address.
func Email(ctx context.Context, value any, args schema.ValidateArgs) error {
	if err := Text(ctx, value, args); err != nil {
		return err
	}
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return fmt.Errorf("please enter a valid email address")
	}
	return nil
}

// Number accepts numeric values within Min and Max.
func Number(ctx context.Context, value any, args schema.ValidateArgs) error {
	if value == nil {
		return Required(ctx, value, args)
	}

	values := []any{value}
	if args.Field.HasMany {
		values = document.Rows(value)
		if values == nil {
			return fmt.Errorf("must be a list of numbers")
		}
	}

	for _, v := range values {
		n, ok := ToFloat(v)
		if !ok {
			return fmt.Errorf("%v is not a valid number", v)
		}
		if min := args.Field.Min; min != nil && n < *min {
			return fmt.Errorf("%v is less than the min allowed value of %v", n, *min)
		}
		if max := args.Field.Max; max != nil && n > *max {
			return fmt.Errorf("%v is greater than the max allowed value of %v", n, *max)
		}
	}
	return nil
}

// Checkbox accepts booleans.
func Checkbox(ctx context.Context, value any, args schema.ValidateArgs) error {
	if value == nil {
		return Required(ctx, value, args)
	}
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

// Select accepts one of the field options, or a list of them for hasMany.
func Select(ctx context.Context, value any, args schema.ValidateArgs) error {
	if value == nil {
		return Required(ctx, value, args)
	}

	values := []any{value}
	if args.Field.HasMany {
		values = document.Rows(value)
		if values == nil {
			return fmt.Errorf("must be a list of options")
		}
		if args.Field.Required && len(values) == 0 {
			return fmt.Errorf("this field is required")
		}
	}

	for _, v := range values {
		s, ok := v.(string)
		if !ok || !hasOption(args.Field.Options, s) {
			return fmt.Errorf("this field has an invalid selection: %v", v)
		}
	}
	return nil
}

func hasOption(options []schema.Option, value string) bool {
	for _, o := range options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// Date accepts RFC 3339 strings and time.Time values.
func Date(ctx context.Context, value any, args schema.ValidateArgs) error {
	switch v := value.(type) {
	case nil:
		return Required(ctx, value, args)
	case time.Time:
		return nil
	case string:
		if _, err := time.Parse(time.RFC3339, v); err != nil {
			return fmt.Errorf("%q is not a valid date", v)
		}
		return nil
	default:
		return fmt.Errorf("%v is not a valid date", v)
	}
}

// Relationship accepts IDs, or {relationTo, value} pairs for polymorphic
// relationships, and lists of either for hasMany.
func Relationship(ctx context.Context, value any, args schema.ValidateArgs) error {
	if value == nil {
		return Required(ctx, value, args)
	}

	values := []any{value}
	if args.Field.HasMany {
		values = document.Rows(value)
		if values == nil {
			return fmt.Errorf("must be a list of relationships")
		}
		if args.Field.Required && len(values) == 0 {
			return fmt.Errorf("this field is required")
		}
	}

	for _, v := range values {
		if err := validateRelation(args.Field, v); err != nil {
			return err
		}
	}
	return nil
}

func validateRelation(field *schema.Field, v any) error {
	if field.RelationTo.Polymorphic() {
		m := document.Map(v)
		if m == nil {
			return fmt.Errorf("polymorphic relationship must be {relationTo, value}")
		}
		target, _ := m["relationTo"].(string)
		found := false
		for _, slug := range field.RelationTo {
			if slug == target {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%q is not a valid relationship target", target)
		}
		v = m["value"]
	}

	// Populated relationships are accepted as long as they carry an id.
	if m := document.Map(v); m != nil {
		v = m["id"]
	}

	switch id := v.(type) {
	case string:
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("relationship id cannot be empty")
		}
	case float64, int, int64:
	default:
		return fmt.Errorf("%v is not a valid relationship id", v)
	}
	return nil
}

// Array checks the row count against Required, MinRows and MaxRows.
func Array(ctx context.Context, value any, args schema.ValidateArgs) error {
	if value == nil {
		return Required(ctx, value, args)
	}
	rows := document.Rows(value)
	if rows == nil {
		return fmt.Errorf("must be a list of rows")
	}
	return checkRows(args.Field, len(rows))
}

// Blocks checks the row count and that each row names a known block.
func Blocks(ctx context.Context, value any, args schema.ValidateArgs) error {
	if err := Array(ctx, value, args); err != nil {
		return err
	}
	for i, row := range document.Rows(value) {
		m := document.Map(row)
		blockType, _ := m["blockType"].(string)
		if _, ok := args.Field.BlockBySlug(blockType); !ok {
			return fmt.Errorf("row %d has an invalid block type %q", i, blockType)
		}
	}
	return nil
}

func checkRows(field *schema.Field, n int) error {
	if field.Required && n == 0 {
		return fmt.Errorf("this field requires at least one row")
	}
	if field.MinRows != nil && n < *field.MinRows {
		return fmt.Errorf("this field requires at least %d rows", *field.MinRows)
	}
	if field.MaxRows != nil && n > *field.MaxRows {
		return fmt.Errorf("this field requires no more than %d rows", *field.MaxRows)
	}
	return nil
}

// ToFloat converts the numeric types documents may hold.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
