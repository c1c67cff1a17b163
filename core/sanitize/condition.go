package sanitize

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/artpar/contentcore/core/schema"
)

// CompileCondition compiles an admin condition such as
// `siblingData.type == "external"` into a ConditionFunc.
func CompileCondition(source string) (schema.ConditionFunc, error) {
	env := conditionEnv(nil, nil)
	program, err := expr.Compile(source, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	return conditionFunc(source, program), nil
}

func conditionFunc(source string, program *vm.Program) schema.ConditionFunc {
	return func(data, siblingData map[string]any) (bool, error) {
		out, err := expr.Run(program, conditionEnv(data, siblingData))
		if err != nil {
			return false, fmt.Errorf("run condition %q: %w", source, err)
		}
		switch v := out.(type) {
		case bool:
			return v, nil
		case nil:
			return false, nil
		default:
			return false, fmt.Errorf("condition %q returned %T, want bool", source, out)
		}
	}
}

func conditionEnv(data, siblingData map[string]any) map[string]any {
	if data == nil {
		data = map[string]any{}
	}
	if siblingData == nil {
		siblingData = map[string]any{}
	}
	return map[string]any{
		"data":        data,
		"siblingData": siblingData,
	}
}
