package sanitize

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/artpar/contentcore/core/schema"
)

// withRowID prepends the `id` field every array row carries.
func withRowID(fields []schema.Field) []schema.Field {
	if _, ok := schema.FindField(fields, "id"); ok {
		return fields
	}
	id := schema.Field{
		Name:  "id",
		Type:  schema.FieldTypeText,
		Label: "ID",
		Admin: schema.Admin{ReadOnly: true},
	}
	id.AddHook(schema.PhaseBeforeChange, assignRowID)
	return append([]schema.Field{id}, fields...)
}

// withBlockFields adds `id` and `blockName` to a block's fields.
func withBlockFields(fields []schema.Field) []schema.Field {
	fields = withRowID(fields)
	if _, ok := schema.FindField(fields, "blockName"); ok {
		return fields
	}
	return append(fields, schema.Field{
		Name:  "blockName",
		Type:  schema.FieldTypeText,
		Label: "Block Name",
	})
}

func assignRowID(_ context.Context, args schema.FieldHookArgs) (any, error) {
	if s, ok := args.Value.(string); ok && s != "" {
		return nil, nil
	}
	return uuid.NewString(), nil
}

// withTimestampFields appends createdAt and updatedAt. The runtime sets their values.
func withTimestampFields(fields []schema.Field) []schema.Field {
	for _, name := range []string{"createdAt", "updatedAt"} {
		if _, ok := schema.FindField(fields, name); ok {
			continue
		}
		fields = append(fields, schema.Field{
			Name:  name,
			Type:  schema.FieldTypeDate,
			Admin: schema.Admin{ReadOnly: true, Position: "sidebar"},
		})
	}
	return fields
}

// withAuthFields prepends email and a hidden password field to auth collections.
func withAuthFields(fields []schema.Field) []schema.Field {
	var auth []schema.Field

	if _, ok := schema.FindField(fields, "email"); !ok {
		auth = append(auth, schema.Field{
			Name:     "email",
			Type:     schema.FieldTypeEmail,
			Required: true,
			Unique:   true,
		})
	}

	if _, ok := schema.FindField(fields, "password"); !ok {
		password := schema.Field{
			Name:   "password",
			Type:   schema.FieldTypeText,
			Hidden: true,
		}
		password.AddHook(schema.PhaseBeforeChange, HashPassword)
		auth = append(auth, password)
	}

	return append(auth, fields...)
}

// HashPassword is the beforeChange hook of auth password fields. A value equal
// to the stored hash is left alone; an empty value keeps the stored hash.
func HashPassword(_ context.Context, args schema.FieldHookArgs) (any, error) {
	plain, _ := args.Value.(string)
	previous, _ := args.PreviousValue.(string)

	if plain == "" {
		if previous != "" {
			return previous, nil
		}
		return nil, nil
	}
	if plain == previous {
		return nil, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return string(hash), nil
}
