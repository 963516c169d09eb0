// Package params implements tool parameters: their construction from tool
// sources, the conversions between request, checked and persisted values,
// and the traversal of nested parameter state.
package params

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/galaxyproject/galaxy-params/internal/toolsource"
	"github.com/galaxyproject/galaxy-params/internal/validation"
)

// Input is a declared tool input: a parameter or a grouping construct.
type Input interface {
	Name() string
	Type() string
	// Label is the human readable name used in prefixed labels.
	Label() string
	GetInitialValue(trans *Trans, other *ExpressionContext) (interface{}, error)
	ToDict(trans *Trans, other *ExpressionContext) map[string]interface{}
}

// Parameter is a leaf input with a value.
type Parameter interface {
	Input
	Base() *BaseParameter

	// FromJSON converts a request value into its checked form.
	FromJSON(trans *Trans, value interface{}, other *ExpressionContext) (interface{}, error)
	// ToJSON converts a checked value into basic types.
	ToJSON(value interface{}, app *App, useSecurity bool) (interface{}, error)
	// ToPython converts basic types back into a checked value.
	ToPython(ctx context.Context, value interface{}, app *App) (interface{}, error)
	Validate(trans *Trans, value interface{}) error
	// ToParamDictString renders the value for a command line.
	ToParamDictString(value interface{}, other *ExpressionContext) (string, error)
}

// Inputs is an ordered set of inputs.
type Inputs []Input

// Get returns the input with the given name.
func (in Inputs) Get(name string) (Input, bool) {
	for _, i := range in {
		if i.Name() == name {
			return i, true
		}
	}
	return nil, false
}

// Names returns input names in declaration order.
func (in Inputs) Names() []string {
	names := make([]string, len(in))
	for i, input := range in {
		names[i] = input.Name()
	}
	return names
}

// BaseParameter holds the attributes every parameter type shares.
type BaseParameter struct {
	name            string
	paramType       string
	modelClass      string
	label           string
	help            string
	argument        string
	optional        bool
	hidden          bool
	isDynamic       bool
	refreshOnChange bool
	validators      []validation.Validator
	tool            *Tool
}

func newBaseParameter(tool *Tool, src toolsource.InputSource, modelClass string) (BaseParameter, error) {
	name, err := parseName(src)
	if err != nil {
		return BaseParameter{}, err
	}
	var app *App
	if tool != nil {
		app = tool.app
	}
	validators, err := validation.FromSpecs(src.ParseValidators(), app.validationEnv())
	if err != nil {
		return BaseParameter{}, loadError("parameter '%s': %v", name, err)
	}
	return BaseParameter{
		name:            name,
		paramType:       src.Get("type", ""),
		modelClass:      modelClass,
		label:           src.Get("label", ""),
		help:            src.Get("help", ""),
		argument:        src.Get("argument", ""),
		optional:        src.ParseOptional(false),
		hidden:          src.GetBool("hidden", false),
		refreshOnChange: src.GetBool("refresh_on_change", false),
		validators:      validators,
		tool:            tool,
	}, nil
}

// parseName returns the declared name, deriving it from the argument when
// no name is given: "--foo-bar" becomes "foo_bar".
func parseName(src toolsource.InputSource) (string, error) {
	if name := src.Get("name", ""); name != "" {
		return name, nil
	}
	argument := src.Get("argument", "")
	if argument == "" {
		return "", loadError("parameter must specify a 'name' or 'argument' attribute")
	}
	return strings.ReplaceAll(strings.TrimLeft(argument, "-"), "-", "_"), nil
}

// ParseName exposes the name derivation for callers outside the package.
func ParseName(src toolsource.InputSource) (string, error) {
	return parseName(src)
}

func (p *BaseParameter) Base() *BaseParameter { return p }
func (p *BaseParameter) Name() string         { return p.name }
func (p *BaseParameter) Type() string         { return p.paramType }
func (p *BaseParameter) Label() string        { return p.label }
func (p *BaseParameter) Help() string         { return p.help }
func (p *BaseParameter) Argument() string     { return p.argument }
func (p *BaseParameter) Optional() bool       { return p.optional }
func (p *BaseParameter) Hidden() bool         { return p.hidden }
func (p *BaseParameter) IsDynamic() bool      { return p.isDynamic }
func (p *BaseParameter) Tool() *Tool          { return p.tool }

// Validators returns the validators in declaration order.
func (p *BaseParameter) Validators() []validation.Validator { return p.validators }

func (p *BaseParameter) GetInitialValue(trans *Trans, other *ExpressionContext) (interface{}, error) {
	return nil, nil
}

func (p *BaseParameter) FromJSON(trans *Trans, value interface{}, other *ExpressionContext) (interface{}, error) {
	if keepForWorkflow(trans, value) {
		return value, nil
	}
	return value, nil
}

func (p *BaseParameter) ToJSON(value interface{}, app *App, useSecurity bool) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	return pyStr(value), nil
}

func (p *BaseParameter) ToPython(ctx context.Context, value interface{}, app *App) (interface{}, error) {
	return value, nil
}

// Validate runs the validators, skipping empty values of optional
// parameters.
func (p *BaseParameter) Validate(trans *Trans, value interface{}) error {
	if p.optional && (value == nil || value == "") {
		return nil
	}
	return p.runValidators(value)
}

func (p *BaseParameter) runValidators(value interface{}) error {
	if err := validation.Run(p.validators, value); err != nil {
		return valueError(p.name, "%s", err.Error())
	}
	return nil
}

func (p *BaseParameter) ToParamDictString(value interface{}, other *ExpressionContext) (string, error) {
	s := ""
	if value != nil {
		s = pyStr(value)
	}
	return p.sanitize(s), nil
}

func (p *BaseParameter) sanitize(s string) string {
	if p.tool == nil || p.tool.Sanitize {
		return SanitizeParam(s)
	}
	return s
}

func (p *BaseParameter) ToDict(trans *Trans, other *ExpressionContext) map[string]interface{} {
	return map[string]interface{}{
		"model_class":       p.modelClass,
		"name":              p.name,
		"argument":          p.argument,
		"type":              p.paramType,
		"label":             p.label,
		"help":              p.help,
		"refresh_on_change": p.refreshOnChange,
		"optional":          p.optional,
		"hidden":            p.hidden,
		"is_dynamic":        p.isDynamic,
	}
}

func (p *BaseParameter) profile() float64 {
	if p.tool == nil {
		return 0
	}
	return p.tool.Profile
}

// Constructor builds a parameter of one type from its declaration.
type Constructor func(tool *Tool, src toolsource.InputSource) (Parameter, error)

var (
	typesMu        sync.RWMutex
	parameterTypes = map[string]Constructor{}
)

func init() {
	for name, c := range map[string]Constructor{
		"text":            newTextParameter,
		"integer":         newIntegerParameter,
		"float":           newFloatParameter,
		"boolean":         newBooleanParameter,
		"genomebuild":     newGenomeBuildParameter,
		"select":          newSelectParameter,
		"color":           newColorParameter,
		"data_column":     newColumnListParameter,
		"hidden":          newHiddenParameter,
		"hidden_data":     newHiddenDataParameter,
		"baseurl":         newBaseURLParameter,
		"file":            newFileParameter,
		"ftpfile":         newFTPFileParameter,
		"data":            newDataParameter,
		"data_collection": newDataCollectionParameter,
		"library_data":    newLibraryDatasetParameter,
		"drill_down":      newDrillDownParameter,
	} {
		parameterTypes[name] = c
	}
}

// RegisterType adds or replaces a parameter type.
func RegisterType(name string, c Constructor) {
	typesMu.Lock()
	defer typesMu.Unlock()
	parameterTypes[name] = c
}

// Types lists the registered parameter types.
func Types() []string {
	typesMu.RLock()
	defer typesMu.RUnlock()
	out := make([]string, 0, len(parameterTypes))
	for name := range parameterTypes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// BuildParameter constructs a parameter from its declaration.
func BuildParameter(tool *Tool, src toolsource.InputSource) (Parameter, error) {
	name, _ := parseName(src)
	paramType := src.Get("type", "")
	if paramType == "" {
		return nil, loadError("parameter '%s' requires a 'type'", name)
	}
	typesMu.RLock()
	c, ok := parameterTypes[paramType]
	typesMu.RUnlock()
	if !ok {
		return nil, loadError("parameter '%s' uses an unknown type '%s'", name, paramType)
	}
	return c(tool, src)
}

type basicConverter interface {
	ValueToBasic(value interface{}, app *App, useSecurity bool) (interface{}, error)
	ValueFromBasic(ctx context.Context, value interface{}, app *App, ignoreErrors bool) (interface{}, error)
}

// ValueToBasic converts a checked value of input into basic types for
// persisting. Runtime markers become their dict form.
func ValueToBasic(input Input, value interface{}, app *App, useSecurity bool) (interface{}, error) {
	if g, ok := input.(basicConverter); ok {
		return g.ValueToBasic(value, app, useSecurity)
	}
	p, ok := input.(Parameter)
	if !ok {
		return nil, fmt.Errorf("unsupported input %T", input)
	}
	if IsRuntimeValue(value) {
		return RuntimeToJSON(value), nil
	}
	if IsUnvalidatedValue(value) {
		return value, nil
	}
	return p.ToJSON(value, app, useSecurity)
}

// ValueFromBasic restores a checked value from basic types. With
// ignoreErrors set a value that cannot be converted is returned unchanged.
func ValueFromBasic(ctx context.Context, input Input, value interface{}, app *App, ignoreErrors bool) (interface{}, error) {
	if g, ok := input.(basicConverter); ok {
		return g.ValueFromBasic(ctx, value, app, ignoreErrors)
	}
	p, ok := input.(Parameter)
	if !ok {
		return nil, fmt.Errorf("unsupported input %T", input)
	}
	if IsRuntimeValue(value) {
		if _, hidden := p.(*HiddenParameter); hidden {
			return nil, valueError(p.Name(), "Runtime Parameter not valid")
		}
		return RuntimeToObject(value), nil
	}
	if IsUnvalidatedValue(value) {
		return value.(map[string]interface{})["value"], nil
	}
	v, err := p.ToPython(ctx, value, app)
	if err != nil {
		if ignoreErrors {
			return value, nil
		}
		return nil, err
	}
	return v, nil
}

func labelOrName(input Input) string {
	if l := input.Label(); l != "" {
		return l
	}
	return input.Name()
}
