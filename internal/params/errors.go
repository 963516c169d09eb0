package params

import (
	"errors"
	"fmt"
)

// ParameterValueError reports a value a parameter cannot accept.
type ParameterValueError struct {
	Parameter string
	Message   string
	Value     interface{}
	IsDynamic bool
}

func (e *ParameterValueError) Error() string {
	return fmt.Sprintf("parameter '%s': %s", e.Parameter, e.Message)
}

func valueError(name, format string, args ...interface{}) *ParameterValueError {
	return &ParameterValueError{Parameter: name, Message: fmt.Sprintf(format, args...)}
}

// LoadError is a structurally invalid input declaration. It disables the
// tool it belongs to.
type LoadError struct {
	Message string
}

func (e *LoadError) Error() string {
	return e.Message
}

func loadError(format string, args ...interface{}) *LoadError {
	return &LoadError{Message: fmt.Sprintf(format, args...)}
}

// errImplicitConversionRequired signals that the options of a parameter
// depend on a dataset that first has to be converted.
var errImplicitConversionRequired = errors.New("implicit conversion required")

// ErrNoCaseMatched is wrapped by Conditional.GetCurrentCase.
var ErrNoCaseMatched = errors.New("no case matched value")
