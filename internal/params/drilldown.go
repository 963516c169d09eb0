package params

import (
	"context"
	"strings"

	"github.com/galaxyproject/galaxy-params/internal/toolsource"
)

// DrillDownParameter selects values from a tree of options. With hierarchy
// "recurse" a selected inner node stands for all the leaves below it.
type DrillDownParameter struct {
	BaseParameter
	multiple    bool
	display     string
	hierarchy   string
	separator   string
	dynamicCode string
	options     []toolsource.DrillDownOption
}

func newDrillDownParameter(tool *Tool, src toolsource.InputSource) (Parameter, error) {
	base, err := newBaseParameter(tool, src, "DrillDownSelectToolParameter")
	if err != nil {
		return nil, err
	}
	p := &DrillDownParameter{
		BaseParameter: base,
		multiple:      src.GetBool("multiple", false),
		display:       src.Get("display", ""),
		hierarchy:     src.Get("hierarchy", "exact"),
		separator:     src.Get("separator", ","),
	}
	if spec := src.ParseDynamicOptions(); spec != nil && spec.Code != "" {
		p.dynamicCode = spec.Code
		p.isDynamic = true
	} else {
		p.options = src.ParseDrillDownStaticOptions()
	}
	return p, nil
}

// GetOptions returns the option tree. A failing option function yields an
// empty tree.
func (p *DrillDownParameter) GetOptions(trans *Trans, other *ExpressionContext) []toolsource.DrillDownOption {
	if p.dynamicCode == "" {
		return p.options
	}
	fn, ok := lookupDrillDownOptionsFunc(p.dynamicCode)
	if !ok {
		trans.app().logger().Warn("drill down options function not registered", "parameter", p.name, "code", p.dynamicCode)
		return nil
	}
	opts, err := fn(trans, other)
	if err != nil {
		trans.app().logger().Debug("drill down options failed", "parameter", p.name, "error", err)
		return nil
	}
	return opts
}

func (p *DrillDownParameter) legalValues(trans *Trans, other *ExpressionContext) []string {
	var out []string
	var walk func([]toolsource.DrillDownOption)
	walk = func(opts []toolsource.DrillDownOption) {
		for _, o := range opts {
			out = append(out, o.Value)
			walk(o.Options)
		}
	}
	walk(p.GetOptions(trans, other))
	return out
}

func (p *DrillDownParameter) FromJSON(trans *Trans, value interface{}, other *ExpressionContext) (interface{}, error) {
	if keepForWorkflow(trans, value) {
		return value, nil
	}
	legal := p.legalValues(trans, other)
	if len(legal) == 0 && trans.workflowMode() {
		if p.multiple {
			if value == "" {
				return nil, nil
			}
			if s, ok := value.(string); ok {
				return strings.Split(s, "\n"), nil
			}
		}
		return value, nil
	}
	if value == nil {
		if p.optional {
			return nil, nil
		}
		return nil, valueError(p.name, "an invalid option (None) was selected")
	}
	if len(legal) == 0 {
		return nil, valueError(p.name, "requires a value, but no legal values defined")
	}
	values := toStringSlice(value)
	if len(values) > 1 && !p.multiple {
		return nil, valueError(p.name, "multiple values provided but parameter is not expecting multiple values")
	}
	for _, v := range values {
		if !containsString(legal, v) {
			return nil, valueError(p.name, "an invalid option (%s) was selected (valid options: %s)",
				pyRepr(v), strings.Join(legal, ","))
		}
	}
	return values, nil
}

func (p *DrillDownParameter) GetInitialValue(trans *Trans, other *ExpressionContext) (interface{}, error) {
	opts := p.GetOptions(trans, other)
	if len(opts) == 0 {
		return nil, nil
	}
	var selected []string
	var walk func([]toolsource.DrillDownOption)
	walk = func(opts []toolsource.DrillDownOption) {
		for _, o := range opts {
			if o.Selected {
				selected = append(selected, o.Value)
			}
			walk(o.Options)
		}
	}
	walk(opts)
	if len(selected) == 0 {
		return nil, nil
	}
	return selected, nil
}

func findDrillDownOption(value string, opts []toolsource.DrillDownOption) *toolsource.DrillDownOption {
	for i := range opts {
		if opts[i].Value == value {
			return &opts[i]
		}
		if found := findDrillDownOption(value, opts[i].Options); found != nil {
			return found
		}
	}
	return nil
}

func drillDownLeaves(o toolsource.DrillDownOption, out []string) []string {
	if len(o.Options) == 0 {
		return append(out, o.Value)
	}
	for _, child := range o.Options {
		out = drillDownLeaves(child, out)
	}
	return out
}

func (p *DrillDownParameter) ToParamDictString(value interface{}, other *ExpressionContext) (string, error) {
	if value == nil {
		return "None", nil
	}
	values := toStringSlice(value)
	var rval []string
	if p.hierarchy == "exact" {
		rval = values
	} else {
		opts := p.GetOptions(nil, other)
		for _, v := range values {
			base := findDrillDownOption(v, opts)
			if base == nil {
				rval = append(rval, v)
				continue
			}
			rval = drillDownLeaves(*base, rval)
		}
	}
	if len(rval) > 1 && !p.multiple {
		return "", valueError(p.name, "multiple values provided but parameter is not expecting multiple values")
	}
	return p.sanitize(strings.Join(rval, p.separator)), nil
}

func (p *DrillDownParameter) ToJSON(value interface{}, app *App, useSecurity bool) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	return toStringSlice(value), nil
}

func (p *DrillDownParameter) ToPython(ctx context.Context, value interface{}, app *App) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	return toStringSlice(value), nil
}

func (p *DrillDownParameter) ToDict(trans *Trans, other *ExpressionContext) map[string]interface{} {
	d := p.BaseParameter.ToDict(trans, other)
	d["options"] = p.GetOptions(trans, other)
	d["display"] = p.display
	d["multiple"] = p.multiple
	d["hierarchy"] = p.hierarchy
	return d
}
