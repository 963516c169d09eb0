// Package validation implements the validators attached to tool parameters.
//
// Validators are built once per tool load from their declarations and are safe
// for concurrent use. A validator receives the checked value of its parameter
// (a string, number, list or *model.HDA) and returns an error carrying a user
// facing message when the value is rejected.
package validation

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/galaxyproject/galaxy-params/internal/toolsource"
)

// Validator checks a single parameter value.
type Validator interface {
	Validate(value interface{}) error
	// RequiresDatasetMetadata reports whether the validator inspects dataset
	// metadata and should be skipped for datasets that are not ready yet.
	RequiresDatasetMetadata() bool
	Type() string
}

// ValidationError is returned when a value is rejected.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidationError reports whether err is a rejected value.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Env carries the collaborators some validators need at construction time.
type Env struct {
	DataTables DataTables
}

// Constructor builds a validator from its declaration.
type Constructor func(spec toolsource.ValidatorSpec, env Env) (Validator, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{
		"regex":                              newRegexValidator,
		"expression":                         newExpressionValidator,
		"in_range":                           newInRangeValidator,
		"length":                             newLengthValidator,
		"empty_field":                        newEmptyFieldValidator,
		"no_options":                         newNoOptionsValidator,
		"dataset_ok_validator":               newDatasetOkValidator,
		"dataset_empty":                      newDatasetEmptyValidator,
		"metadata":                           newMetadataValidator,
		"unspecified_build":                  newUnspecifiedBuildValidator,
		"value_in_data_table":                newValueInDataTableValidator,
		"value_not_in_data_table":            negated(newValueInDataTableValidator),
		"dataset_metadata_in_data_table":     newMetadataInDataTableValidator,
		"dataset_metadata_not_in_data_table": negated(newMetadataInDataTableValidator),
	}
)

// Register adds or replaces a validator kind.
func Register(kind string, c Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = c
}

// Kinds lists the registered validator kinds.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// FromSpec builds a validator from its declaration.
func FromSpec(spec toolsource.ValidatorSpec, env Env) (Validator, error) {
	registryMu.RLock()
	c, ok := registry[spec.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown validator type '%s'", spec.Type)
	}
	return c(spec, env)
}

// FromSpecs builds validators in declaration order.
func FromSpecs(specs []toolsource.ValidatorSpec, env Env) ([]Validator, error) {
	out := make([]Validator, 0, len(specs))
	for _, spec := range specs {
		v, err := FromSpec(spec, env)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Run applies validators in order and returns the first failure.
func Run(validators []Validator, value interface{}) error {
	for _, v := range validators {
		if err := v.Validate(value); err != nil {
			return err
		}
	}
	return nil
}

func negated(c Constructor) Constructor {
	return func(spec toolsource.ValidatorSpec, env Env) (Validator, error) {
		spec.Negate = !spec.Negate
		return c(spec, env)
	}
}

// base holds the behaviour shared by every validator: a custom message and
// the negate flag.
type base struct {
	kind    string
	message string
	negate  bool
}

func newBase(kind string, spec toolsource.ValidatorSpec) base {
	return base{kind: kind, message: spec.Message, negate: spec.Negate}
}

func (b base) Type() string                  { return b.kind }
func (b base) RequiresDatasetMetadata() bool { return false }

// check fails when ok equals negate. def is used when no custom message was
// declared.
func (b base) check(ok bool, def string) error {
	if ok != b.negate {
		return nil
	}
	msg := b.message
	if msg == "" {
		msg = def
	}
	return &ValidationError{Message: msg}
}

// not returns "not " unless the validator is negated, for default messages
// that describe the failure.
func (b base) not() string {
	if b.negate {
		return ""
	}
	return "not "
}
