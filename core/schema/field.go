package schema

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Field defines one entry in a collection or global schema.
// The Type tag selects which of the remaining attributes apply.
type Field struct {
	// Name is the data key. Empty for presentational fields (row, collapsible).
	Name string `yaml:"name,omitempty"`

	// Type is the field kind. See FieldType constants.
	Type FieldType `yaml:"type"`

	// Label is the human readable name. Derived from Name when empty.
	Label string `yaml:"label,omitempty"`

	// Fields are the nested fields of array, group, row and collapsible fields.
	Fields []Field `yaml:"fields,omitempty"`

	// Blocks are the available block types of a blocks field.
	Blocks []Block `yaml:"blocks,omitempty"`

	// RelationTo lists the target collection slugs of a relationship field.
	RelationTo Relations `yaml:"relationTo,omitempty"`

	// HasMany stores a list of values instead of a single one.
	HasMany bool `yaml:"hasMany,omitempty"`

	Required  bool `yaml:"required,omitempty"`
	Unique    bool `yaml:"unique,omitempty"`
	Localized bool `yaml:"localized,omitempty"`

	// Hidden fields are stripped from read results unless explicitly requested.
	Hidden bool `yaml:"hidden,omitempty"`

	// DefaultValue is applied on create when the value is undefined.
	DefaultValue any `yaml:"defaultValue,omitempty"`

	// Options lists the allowed values of a select field.
	Options []Option `yaml:"options,omitempty"`

	// Min and Max bound number fields.
	Min *float64 `yaml:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty"`

	// MinRows and MaxRows bound array and blocks fields.
	MinRows *int `yaml:"minRows,omitempty"`
	MaxRows *int `yaml:"maxRows,omitempty"`

	Admin Admin `yaml:"admin,omitempty"`

	// Hooks names registered hook functions per phase.
	Hooks FieldHooks `yaml:"hooks,omitempty"`

	// Funcs holds hook functions per phase. Plugins attach hooks here in code;
	// the sanitizer appends the functions resolved from Hooks.
	Funcs map[Phase][]FieldHook `yaml:"-"`

	// Validate checks a value during beforeChange. The sanitizer installs the
	// default validator for the field kind when nil.
	Validate ValidateFunc `yaml:"-"`

	// Condition is the compiled form of Admin.Condition.
	Condition ConditionFunc `yaml:"-"`
}

// FieldType is the tag of the field variant.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeTextarea FieldType = "textarea"
	FieldTypeEmail    FieldType = "email"
	FieldTypeNumber   FieldType = "number"
	FieldTypeCheckbox FieldType = "checkbox"
	FieldTypeSelect   FieldType = "select"
	FieldTypeDate     FieldType = "date"
	FieldTypeJSON     FieldType = "json"
	FieldTypeRichText FieldType = "richText"

	FieldTypeRelationship FieldType = "relationship"

	// Composite kinds
	FieldTypeArray  FieldType = "array"
	FieldTypeBlocks FieldType = "blocks"
	FieldTypeGroup  FieldType = "group"

	// Presentational kinds: no data key of their own
	FieldTypeRow         FieldType = "row"
	FieldTypeCollapsible FieldType = "collapsible"
)

// Valid reports whether t is one of the known field kinds.
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeText, FieldTypeTextarea, FieldTypeEmail, FieldTypeNumber,
		FieldTypeCheckbox, FieldTypeSelect, FieldTypeDate, FieldTypeJSON,
		FieldTypeRichText, FieldTypeRelationship,
		FieldTypeArray, FieldTypeBlocks, FieldTypeGroup,
		FieldTypeRow, FieldTypeCollapsible:
		return true
	default:
		return false
	}
}

// Presentational reports whether the kind groups fields without owning a data key.
func (t FieldType) Presentational() bool {
	return t == FieldTypeRow || t == FieldTypeCollapsible
}

// Composite reports whether the kind nests documents under its own key.
func (t FieldType) Composite() bool {
	return t == FieldTypeArray || t == FieldTypeBlocks || t == FieldTypeGroup
}

// AffectsData reports whether the field owns a key in the document.
func (f Field) AffectsData() bool {
	return f.Name != "" && !f.Type.Presentational()
}

// HookFuncs returns the hook functions registered for a phase.
func (f Field) HookFuncs(phase Phase) []FieldHook {
	if f.Funcs == nil {
		return nil
	}
	return f.Funcs[phase]
}

// AddHook appends a hook function for a phase.
func (f *Field) AddHook(phase Phase, hook FieldHook) {
	if f.Funcs == nil {
		f.Funcs = make(map[Phase][]FieldHook)
	}
	f.Funcs[phase] = append(f.Funcs[phase], hook)
}

// PassesCondition evaluates the admin condition. Fields without one always pass.
func (f Field) PassesCondition(data, siblingData map[string]any) (bool, error) {
	if f.Condition == nil {
		return true, nil
	}
	return f.Condition(data, siblingData)
}

// BlockBySlug finds a block of a blocks field.
func (f Field) BlockBySlug(slug string) (Block, bool) {
	for _, b := range f.Blocks {
		if b.Slug == slug {
			return b, true
		}
	}
	return Block{}, false
}

// Block is one selectable row type of a blocks field.
type Block struct {
	Slug   string  `yaml:"slug"`
	Labels Labels  `yaml:"labels,omitempty"`
	Fields []Field `yaml:"fields"`
}

// Option is a select field choice.
type Option struct {
	Label string `yaml:"label"`
	Value string `yaml:"value"`
}

// UnmarshalYAML accepts both `- draft` and `- {label: Draft, value: draft}`.
func (o *Option) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		o.Value = node.Value
		return nil
	}
	type plain Option
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*o = Option(p)
	return nil
}

// Relations lists relationship targets.
type Relations []string

// UnmarshalYAML accepts both `relationTo: pages` and `relationTo: [pages, posts]`.
func (r *Relations) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*r = Relations{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*r = list
		return nil
	default:
		return fmt.Errorf("relationTo must be a string or a list of strings")
	}
}

// Polymorphic reports whether the relationship targets more than one collection.
func (r Relations) Polymorphic() bool {
	return len(r) > 1
}

// Admin holds presentation settings. Only Condition affects the pipeline.
type Admin struct {
	// Condition is an expression over `data` and `siblingData`. When it evaluates
	// to false the field is hidden in the admin and skips validation, but its hooks still run.
	Condition   string `yaml:"condition,omitempty"`
	Description string `yaml:"description,omitempty"`
	ReadOnly    bool   `yaml:"readOnly,omitempty"`
	Position    string `yaml:"position,omitempty"`
}

// FieldHooks names hook functions per phase. Names are resolved by the sanitizer.
type FieldHooks struct {
	BeforeValidate []string `yaml:"beforeValidate,omitempty"`
	BeforeChange   []string `yaml:"beforeChange,omitempty"`
	AfterChange    []string `yaml:"afterChange,omitempty"`
	AfterRead      []string `yaml:"afterRead,omitempty"`
}

// Names returns the hook names for a phase.
func (h FieldHooks) Names(phase Phase) []string {
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

// ValidateFunc validates a field value. A nil error means valid.
type ValidateFunc func(ctx context.Context, value any, args ValidateArgs) error

// ValidateArgs carries the context a validator may consult.
type ValidateArgs struct {
	Field       *Field
	Data        map[string]any
	SiblingData map[string]any
	Operation   Operation
	Req         *Request
}

// ConditionFunc decides whether a field is shown in the admin.
type ConditionFunc func(data, siblingData map[string]any) (bool, error)
