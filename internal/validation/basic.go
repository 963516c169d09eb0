package validation

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/galaxyproject/galaxy-params/internal/toolsource"
)

// RegexValidator requires the value to match a regular expression at its
// start. List values must match element-wise.
type RegexValidator struct {
	base
	expression string
	re         *regexp2.Regexp
}

func newRegexValidator(spec toolsource.ValidatorSpec, _ Env) (Validator, error) {
	v, err := NewRegexValidator(spec.Content, spec.Message, spec.Negate)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// NewRegexValidator compiles expression with Python compatible syntax.
func NewRegexValidator(expression, message string, negate bool) (*RegexValidator, error) {
	re, err := regexp2.Compile(`\A(?:`+expression+`)`, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("invalid regular expression '%s': %w", expression, err)
	}
	return &RegexValidator{
		base:       base{kind: "regex", message: message, negate: negate},
		expression: expression,
		re:         re,
	}, nil
}

func (v *RegexValidator) Validate(value interface{}) error {
	for _, s := range stringValues(value) {
		ok, err := v.re.MatchString(s)
		if err != nil {
			ok = false
		}
		msg := fmt.Sprintf("Value '%s' does %smatch regular expression '%s'", s, v.not(), v.expression)
		if err := v.check(ok, msg); err != nil {
			return err
		}
	}
	return nil
}

// InRangeValidator requires a numeric value within bounds.
type InRangeValidator struct {
	base
	min, max               float64
	excludeMin, excludeMax bool
}

func newInRangeValidator(spec toolsource.ValidatorSpec, _ Env) (Validator, error) {
	min, max := math.Inf(-1), math.Inf(1)
	var err error
	if s := spec.Attr("min", ""); s != "" {
		if min, err = strconv.ParseFloat(s, 64); err != nil {
			return nil, fmt.Errorf("in_range validator: invalid min '%s'", s)
		}
	}
	if s := spec.Attr("max", ""); s != "" {
		if max, err = strconv.ParseFloat(s, 64); err != nil {
			return nil, fmt.Errorf("in_range validator: invalid max '%s'", s)
		}
	}
	v, err := NewInRangeValidator(min, max,
		parseFlag(spec.Attr("exclude_min", "")), parseFlag(spec.Attr("exclude_max", "")),
		spec.Message, spec.Negate)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// NewInRangeValidator creates a range check. Use ±Inf for a missing bound.
func NewInRangeValidator(min, max float64, excludeMin, excludeMax bool, message string, negate bool) (*InRangeValidator, error) {
	if min > max {
		return nil, fmt.Errorf("in_range validator: min (%s) must not be greater than max (%s)", formatBound(min), formatBound(max))
	}
	return &InRangeValidator{
		base:       base{kind: "in_range", message: message, negate: negate},
		min:        min,
		max:        max,
		excludeMin: excludeMin,
		excludeMax: excludeMax,
	}, nil
}

// DefaultMessage describes the accepted range in English.
func (v *InRangeValidator) DefaultMessage() string {
	lower := "greater than or equal to"
	if v.excludeMin {
		lower = "greater than"
	}
	upper := "less than or equal to"
	if v.excludeMax {
		upper = "less than"
	}
	must := "must"
	if v.negate {
		must = "must not"
	}
	return fmt.Sprintf("Value %s be %s %s and %s %s", must, lower, formatBound(v.min), upper, formatBound(v.max))
}

func (v *InRangeValidator) Validate(value interface{}) error {
	f, ok := toFloat(value)
	if !ok {
		return v.check(false, v.DefaultMessage())
	}
	inRange := true
	if v.excludeMin {
		inRange = inRange && v.min < f
	} else {
		inRange = inRange && v.min <= f
	}
	if v.excludeMax {
		inRange = inRange && f < v.max
	} else {
		inRange = inRange && f <= v.max
	}
	return v.check(inRange, v.DefaultMessage())
}

// LengthValidator bounds the length of a string or list.
type LengthValidator struct {
	base
	min, max int
	hasMin   bool
	hasMax   bool
}

func newLengthValidator(spec toolsource.ValidatorSpec, _ Env) (Validator, error) {
	v := &LengthValidator{base: newBase("length", spec)}
	if s := spec.Attr("min", ""); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("length validator: invalid min '%s'", s)
		}
		v.min, v.hasMin = n, true
	}
	if s := spec.Attr("max", ""); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("length validator: invalid max '%s'", s)
		}
		v.max, v.hasMax = n, true
	}
	return v, nil
}

func (v *LengthValidator) defaultMessage() string {
	switch {
	case v.hasMin && v.hasMax:
		return fmt.Sprintf("Must have length of at least %d and at most %d", v.min, v.max)
	case v.hasMin:
		return fmt.Sprintf("Must have length of at least %d", v.min)
	case v.hasMax:
		return fmt.Sprintf("Must have length no more than %d", v.max)
	}
	return "Invalid length"
}

func (v *LengthValidator) Validate(value interface{}) error {
	n := lengthOf(value)
	ok := (!v.hasMin || n >= v.min) && (!v.hasMax || n <= v.max)
	return v.check(ok, v.defaultMessage())
}

// EmptyFieldValidator rejects empty strings.
type EmptyFieldValidator struct{ base }

func newEmptyFieldValidator(spec toolsource.ValidatorSpec, _ Env) (Validator, error) {
	return &EmptyFieldValidator{base: newBase("empty_field", spec)}, nil
}

func (v *EmptyFieldValidator) Validate(value interface{}) error {
	if v.negate {
		return v.check(!isEmpty(value), "Field must not set a value")
	}
	return v.check(!isEmpty(value), "Field requires a value")
}

// NoOptionsValidator rejects a select that ended up with no value because
// no options were available.
type NoOptionsValidator struct{ base }

func newNoOptionsValidator(spec toolsource.ValidatorSpec, _ Env) (Validator, error) {
	return &NoOptionsValidator{base: newBase("no_options", spec)}, nil
}

func (v *NoOptionsValidator) Validate(value interface{}) error {
	return v.check(value != nil, "No options available for selection")
}

func stringValues(value interface{}) []string {
	switch t := value.(type) {
	case nil:
		return []string{""}
	case string:
		return []string{t}
	case []string:
		return t
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return []string{fmt.Sprint(value)}
}

func toFloat(value interface{}) (float64, bool) {
	switch t := value.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func lengthOf(value interface{}) int {
	switch t := value.(type) {
	case nil:
		return 0
	case string:
		return len([]rune(t))
	case []string:
		return len(t)
	case []interface{}:
		return len(t)
	}
	return len(fmt.Sprint(value))
}

func isEmpty(value interface{}) bool {
	switch t := value.(type) {
	case nil:
		return true
	case string:
		return t == ""
	}
	return false
}

func formatBound(f float64) string {
	switch {
	case math.IsInf(f, -1):
		return "-infinity"
	case math.IsInf(f, 1):
		return "infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseFlag(s string) bool {
	switch strings.ToLower(s) {
	case "true", "yes", "1":
		return true
	}
	return false
}
