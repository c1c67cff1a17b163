package hooks

import (
	"context"
	"fmt"
	"strconv"

	"github.com/artpar/contentcore/core/document"
	"github.com/artpar/contentcore/core/schema"
	"github.com/artpar/contentcore/core/validation"
)

// traversal is the state of one phase over one document. It is created per
// orchestrator call and never shared.
type traversal struct {
	phase schema.Phase
	args  Args
	req   *schema.Request

	// data and doc are the roots handed to every hook.
	data map[string]any
	doc  map[string]any

	// result collects validation failures during beforeChange.
	result *validation.Result
}

// frame is the position of the traversal within the document.
type frame struct {
	siblingData        map[string]any
	siblingDoc         map[string]any
	previousSiblingDoc map[string]any

	path       schema.Path
	schemaPath schema.Path

	// skipValidation is set below a field whose condition failed.
	skipValidation bool
}

func newTraversal(phase schema.Phase, args Args) *traversal {
	return &traversal{
		phase: phase,
		args:  args,
		req:   requestOf(args.Req),
	}
}

// after reports whether the phase transforms the document rather than the data.
func (t *traversal) after() bool {
	return t.phase == schema.PhaseAfterChange || t.phase == schema.PhaseAfterRead
}

// target returns the sibling map the phase writes to.
func (t *traversal) target(fr frame) map[string]any {
	if t.after() {
		return fr.siblingDoc
	}
	return fr.siblingData
}

func (t *traversal) traverseFields(ctx context.Context, fields []schema.Field, fr frame) error {
	for i := range fields {
		if err := t.traverseField(ctx, &fields[i], fr); err != nil {
			return err
		}
	}
	return nil
}

func (t *traversal) traverseField(ctx context.Context, f *schema.Field, fr frame) error {
	if !f.Type.Valid() {
		return fmt.Errorf("field %s: unknown field type %q", fr.path.Append(f.Name), f.Type)
	}

	skip, err := t.skipValidation(f, fr)
	if err != nil {
		return err
	}

	// Presentational fields share their parent's data and path.
	if f.Type.Presentational() {
		fr.skipValidation = skip
		return t.traverseFields(ctx, f.Fields, fr)
	}
	if !f.AffectsData() {
		return nil
	}

	target := t.target(fr)
	path := fr.path.Append(f.Name)
	schemaPath := fr.schemaPath.Append(f.Name)

	switch t.phase {
	case schema.PhaseAfterRead:
		if f.Hidden && !t.args.ShowHiddenFields {
			delete(target, f.Name)
			return nil
		}
	case schema.PhaseBeforeValidate:
		t.prepare(f, target)
	}

	if err := t.runHooks(ctx, f, fr, target, path, schemaPath); err != nil {
		return err
	}

	if t.phase == schema.PhaseBeforeChange && !skip && f.Validate != nil {
		value := target[f.Name]
		err := f.Validate(ctx, value, schema.ValidateArgs{
			Field:       f,
			Data:        t.data,
			SiblingData: target,
			Operation:   t.args.Operation,
			Req:         t.req,
		})
		if err != nil {
			t.result.AddError(path.String(), value, err.Error())
		}
	}

	switch f.Type {
	case schema.FieldTypeGroup:
		return t.traverseGroup(ctx, f, fr, target, path, schemaPath, skip)
	case schema.FieldTypeArray, schema.FieldTypeBlocks:
		return t.traverseRows(ctx, f, fr, target, path, schemaPath, skip)
	}
	return nil
}

// skipValidation evaluates the admin condition during beforeChange. Other
// phases ignore conditions: hooks of hidden fields still run.
func (t *traversal) skipValidation(f *schema.Field, fr frame) (bool, error) {
	if fr.skipValidation || t.phase != schema.PhaseBeforeChange {
		return fr.skipValidation, nil
	}
	passes, err := f.PassesCondition(t.data, fr.siblingData)
	if err != nil {
		return false, fmt.Errorf("field %s: %w", fr.path.Append(f.Name), err)
	}
	return !passes, nil
}

func (t *traversal) runHooks(ctx context.Context, f *schema.Field, fr frame, target map[string]any, path, schemaPath schema.Path) error {
	for _, hook := range f.HookFuncs(t.phase) {
		value, err := hook(ctx, schema.FieldHookArgs{
			Phase:              t.phase,
			Operation:          t.args.Operation,
			Collection:         t.args.Collection,
			Global:             t.args.Global,
			Field:              f,
			Value:              target[f.Name],
			PreviousValue:      fr.previousSiblingDoc[f.Name],
			Data:               t.data,
			Doc:                t.doc,
			PreviousDoc:        t.args.PreviousDoc,
			SiblingData:        fr.siblingData,
			SiblingDoc:         fr.siblingDoc,
			PreviousSiblingDoc: fr.previousSiblingDoc,
			Path:               path,
			SchemaPath:         schemaPath,
			Req:                t.req,
		})
		if t.args.Observer != nil {
			t.args.Observer.ObserveHook(t.phase, schemaPath.String(), err)
		}
		if err != nil {
			return err
		}

		switch {
		case value == nil:
		case schema.IsNull(value):
			target[f.Name] = nil
		default:
			target[f.Name] = value
		}
	}
	return nil
}

func (t *traversal) traverseGroup(ctx context.Context, f *schema.Field, fr frame, target map[string]any, path, schemaPath schema.Path, skip bool) error {
	own := document.Map(target[f.Name])
	if own == nil {
		own = map[string]any{}
		// Before-phases build the data, so a missing group is created.
		if !t.after() {
			target[f.Name] = own
		}
	}

	child := frame{
		previousSiblingDoc: ensure(document.Map(fr.previousSiblingDoc[f.Name])),
		path:               path,
		schemaPath:         schemaPath,
		skipValidation:     skip,
	}
	if t.after() {
		child.siblingDoc = own
		child.siblingData = ensure(document.Map(fr.siblingData[f.Name]))
	} else {
		child.siblingData = own
		child.siblingDoc = ensure(document.Map(fr.siblingDoc[f.Name]))
	}

	return t.traverseFields(ctx, f.Fields, child)
}

// traverseRows walks array and blocks rows. Previous rows are matched by
// index; a previous document with fewer rows yields empty previous siblings.
func (t *traversal) traverseRows(ctx context.Context, f *schema.Field, fr frame, target map[string]any, path, schemaPath schema.Path, skip bool) error {
	for i, row := range document.Rows(target[f.Name]) {
		own := document.Map(row)
		if own == nil {
			continue
		}

		fields := f.Fields
		rowSchemaPath := schemaPath
		if f.Type == schema.FieldTypeBlocks {
			blockType, _ := own["blockType"].(string)
			block, ok := f.BlockBySlug(blockType)
			if !ok {
				continue
			}
			fields = block.Fields
			rowSchemaPath = schemaPath.Append(block.Slug)
		}

		child := frame{
			previousSiblingDoc: ensure(document.Row(fr.previousSiblingDoc[f.Name], i)),
			path:               path.Append(strconv.Itoa(i)),
			schemaPath:         rowSchemaPath,
			skipValidation:     skip,
		}
		if t.after() {
			child.siblingDoc = own
			child.siblingData = ensure(document.Row(fr.siblingData[f.Name], i))
		} else {
			child.siblingData = own
			child.siblingDoc = ensure(document.Row(fr.siblingDoc[f.Name], i))
		}

		if err := t.traverseFields(ctx, fields, child); err != nil {
			return err
		}
	}
	return nil
}
