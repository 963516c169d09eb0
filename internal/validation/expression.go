package validation

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/galaxyproject/galaxy-params/internal/toolsource"
)

// ExpressionValidator evaluates a JavaScript expression with the parameter
// value bound to `value`. A truthy result accepts the value; evaluation
// errors reject it.
type ExpressionValidator struct {
	base
	expression string
	program    *goja.Program
}

func newExpressionValidator(spec toolsource.ValidatorSpec, _ Env) (Validator, error) {
	v, err := NewExpressionValidator(spec.Content, spec.Message, spec.Negate)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// NewExpressionValidator compiles expression once; each validation runs it in
// a fresh runtime since goja runtimes are not safe for concurrent use.
func NewExpressionValidator(expression, message string, negate bool) (*ExpressionValidator, error) {
	program, err := goja.Compile("validator", "("+expression+")", false)
	if err != nil {
		return nil, fmt.Errorf("invalid validator expression '%s': %w", expression, err)
	}
	return &ExpressionValidator{
		base:       base{kind: "expression", message: message, negate: negate},
		expression: expression,
		program:    program,
	}, nil
}

func (v *ExpressionValidator) Validate(value interface{}) error {
	msg := fmt.Sprintf("Value '%v' does %sevaluate to True for '%s'", value, v.not(), v.expression)
	return v.check(v.evaluate(value), msg)
}

func (v *ExpressionValidator) evaluate(value interface{}) bool {
	vm := goja.New()
	if err := vm.Set("value", value); err != nil {
		return false
	}
	result, err := vm.RunProgram(v.program)
	if err != nil {
		return false
	}
	return result.ToBoolean()
}
