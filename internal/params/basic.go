package params

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/galaxyproject/galaxy-params/internal/toolsource"
	"github.com/galaxyproject/galaxy-params/internal/validation"
)

// TextParameter is a free text field.
type TextParameter struct {
	BaseParameter
	value    *string
	area     bool
	datalist []map[string]interface{}
}

func newTextParameter(tool *Tool, src toolsource.InputSource) (Parameter, error) {
	base, err := newBaseParameter(tool, src, "TextToolParameter")
	if err != nil {
		return nil, err
	}
	p := &TextParameter{BaseParameter: base, area: src.GetBool("area", false)}
	if src.Has("value") {
		v := src.Get("value", "")
		p.value = &v
	}
	for _, o := range src.ParseStaticOptions() {
		p.datalist = append(p.datalist, map[string]interface{}{"label": o.Name, "value": o.Value})
	}
	return p, nil
}

func (p *TextParameter) GetInitialValue(trans *Trans, other *ExpressionContext) (interface{}, error) {
	if p.value == nil {
		if p.optional {
			return nil, nil
		}
		return "", nil
	}
	return *p.value, nil
}

func (p *TextParameter) FromJSON(trans *Trans, value interface{}, other *ExpressionContext) (interface{}, error) {
	if keepForWorkflow(trans, value) {
		return value, nil
	}
	switch t := value.(type) {
	case nil:
		if p.optional {
			return nil, nil
		}
		return "", nil
	case string:
		return t, nil
	case []interface{}, map[string]interface{}:
		return nil, valueError(p.name, "a list or dict is not a valid text value")
	}
	return pyStr(value), nil
}

func (p *TextParameter) ToJSON(value interface{}, app *App, useSecurity bool) (interface{}, error) {
	if value == nil {
		if p.optional {
			return nil, nil
		}
		return "", nil
	}
	return pyStr(value), nil
}

// Validate skips values containing workflow placeholders in workflow
// building mode.
func (p *TextParameter) Validate(trans *Trans, value interface{}) error {
	if trans.workflowMode() && ContainsWorkflowParameter(value, true) {
		return nil
	}
	return p.BaseParameter.Validate(trans, value)
}

func (p *TextParameter) ToDict(trans *Trans, other *ExpressionContext) map[string]interface{} {
	d := p.BaseParameter.ToDict(trans, other)
	d["area"] = p.area
	d["datalist"] = p.datalist
	if v, _ := p.GetInitialValue(trans, other); v != nil {
		d["value"] = v
	}
	return d
}

// IntegerParameter is a whole number field with optional bounds.
type IntegerParameter struct {
	BaseParameter
	value    *int64
	min, max *int64
}

func newIntegerParameter(tool *Tool, src toolsource.InputSource) (Parameter, error) {
	base, err := newBaseParameter(tool, src, "IntegerToolParameter")
	if err != nil {
		return nil, err
	}
	p := &IntegerParameter{BaseParameter: base}
	if v := src.Get("value", ""); v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, loadError("parameter '%s': the attribute 'value' must be an integer", p.name)
		}
		p.value = &n
	} else if !src.Has("value") && !p.optional {
		return nil, loadError("parameter '%s': the attribute 'value' must be set for non optional parameters", p.name)
	}
	for attr, dst := range map[string]**int64{"min": &p.min, "max": &p.max} {
		if s := src.Get(attr, ""); s != "" {
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return nil, loadError("parameter '%s': attribute '%s' must be an integer", p.name, attr)
			}
			*dst = &n
		}
	}
	if p.min != nil || p.max != nil {
		lo, hi := math.Inf(-1), math.Inf(1)
		if p.min != nil {
			lo = float64(*p.min)
		}
		if p.max != nil {
			hi = float64(*p.max)
		}
		v, err := validation.NewInRangeValidator(lo, hi, src.GetBool("exclude_min", false), src.GetBool("exclude_max", false), "", false)
		if err != nil {
			return nil, loadError("parameter '%s': %v", p.name, err)
		}
		p.validators = append(p.validators, v)
	}
	return p, nil
}

func (p *IntegerParameter) GetInitialValue(trans *Trans, other *ExpressionContext) (interface{}, error) {
	if p.value == nil {
		return nil, nil
	}
	return *p.value, nil
}

func (p *IntegerParameter) FromJSON(trans *Trans, value interface{}, other *ExpressionContext) (interface{}, error) {
	if keepForWorkflow(trans, value) {
		return value, nil
	}
	n, err := toInt64(value)
	if err == nil {
		return n, nil
	}
	if !isTruthy(value) && p.optional {
		return "", nil
	}
	if trans.workflowMode() {
		return nil, valueError(p.name, "must be a valid integer or workflow parameter")
	}
	return nil, valueError(p.name, "must be a valid integer")
}

func (p *IntegerParameter) ToPython(ctx context.Context, value interface{}, app *App) (interface{}, error) {
	n, err := toInt64(value)
	if err == nil {
		return n, nil
	}
	if ContainsWorkflowParameter(value, false) {
		return value, nil
	}
	if !isTruthy(value) && p.optional {
		return nil, nil
	}
	return nil, valueError(p.name, "%v", err)
}

func (p *IntegerParameter) Validate(trans *Trans, value interface{}) error {
	if trans.workflowMode() && ContainsWorkflowParameter(value, false) {
		return nil
	}
	return p.BaseParameter.Validate(trans, value)
}

func (p *IntegerParameter) ToDict(trans *Trans, other *ExpressionContext) map[string]interface{} {
	d := p.BaseParameter.ToDict(trans, other)
	d["min"], d["max"] = nil, nil
	if p.min != nil {
		d["min"] = *p.min
	}
	if p.max != nil {
		d["max"] = *p.max
	}
	if p.value != nil {
		d["value"] = *p.value
	}
	return d
}

// FloatParameter is a real number field with optional bounds.
type FloatParameter struct {
	BaseParameter
	value    *float64
	min, max *float64
}

func newFloatParameter(tool *Tool, src toolsource.InputSource) (Parameter, error) {
	base, err := newBaseParameter(tool, src, "FloatToolParameter")
	if err != nil {
		return nil, err
	}
	p := &FloatParameter{BaseParameter: base}
	if v := src.Get("value", ""); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, loadError("parameter '%s': the attribute 'value' must be a real number", p.name)
		}
		p.value = &f
	} else if !src.Has("value") && !p.optional {
		return nil, loadError("parameter '%s': the attribute 'value' must be set for non optional parameters", p.name)
	}
	for attr, dst := range map[string]**float64{"min": &p.min, "max": &p.max} {
		if s := src.Get(attr, ""); s != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, loadError("parameter '%s': attribute '%s' must be a real number", p.name, attr)
			}
			*dst = &f
		}
	}
	if p.min != nil || p.max != nil {
		lo, hi := math.Inf(-1), math.Inf(1)
		if p.min != nil {
			lo = *p.min
		}
		if p.max != nil {
			hi = *p.max
		}
		v, err := validation.NewInRangeValidator(lo, hi, src.GetBool("exclude_min", false), src.GetBool("exclude_max", false), "", false)
		if err != nil {
			return nil, loadError("parameter '%s': %v", p.name, err)
		}
		p.validators = append(p.validators, v)
	}
	return p, nil
}

func (p *FloatParameter) GetInitialValue(trans *Trans, other *ExpressionContext) (interface{}, error) {
	if p.value == nil {
		return nil, nil
	}
	return *p.value, nil
}

func (p *FloatParameter) FromJSON(trans *Trans, value interface{}, other *ExpressionContext) (interface{}, error) {
	if keepForWorkflow(trans, value) {
		return value, nil
	}
	f, err := toFloat64(value)
	if err == nil {
		return f, nil
	}
	if !isTruthy(value) && p.optional {
		return "", nil
	}
	if trans.workflowMode() {
		return nil, valueError(p.name, "must be a valid real number or workflow parameter")
	}
	return nil, valueError(p.name, "must be a valid real number")
}

func (p *FloatParameter) ToPython(ctx context.Context, value interface{}, app *App) (interface{}, error) {
	f, err := toFloat64(value)
	if err == nil {
		return f, nil
	}
	if ContainsWorkflowParameter(value, false) {
		return value, nil
	}
	if !isTruthy(value) && p.optional {
		return nil, nil
	}
	return nil, valueError(p.name, "%v", err)
}

func (p *FloatParameter) Validate(trans *Trans, value interface{}) error {
	if trans.workflowMode() && ContainsWorkflowParameter(value, false) {
		return nil
	}
	return p.BaseParameter.Validate(trans, value)
}

func (p *FloatParameter) ToDict(trans *Trans, other *ExpressionContext) map[string]interface{} {
	d := p.BaseParameter.ToDict(trans, other)
	d["min"], d["max"] = nil, nil
	if p.min != nil {
		d["min"] = *p.min
	}
	if p.max != nil {
		d["max"] = *p.max
	}
	if p.value != nil {
		d["value"] = *p.value
	}
	return d
}

// BooleanParameter is a checkbox. Its command line form is truevalue or
// falsevalue.
type BooleanParameter struct {
	BaseParameter
	TrueValue  string
	FalseValue string
	checked    interface{}
}

func newBooleanParameter(tool *Tool, src toolsource.InputSource) (Parameter, error) {
	base, err := newBaseParameter(tool, src, "BooleanToolParameter")
	if err != nil {
		return nil, err
	}
	p := &BooleanParameter{
		BaseParameter: base,
		TrueValue:     src.Get("truevalue", "true"),
		FalseValue:    src.Get("falsevalue", "false"),
	}
	switch {
	case src.Has("checked"):
		p.checked = src.GetBool("checked", false)
	case !p.optional:
		p.checked = false
	}
	return p, nil
}

// LegalValues returns the command line forms.
func (p *BooleanParameter) LegalValues() []string {
	return []string{p.TrueValue, p.FalseValue}
}

func (p *BooleanParameter) GetInitialValue(trans *Trans, other *ExpressionContext) (interface{}, error) {
	return p.checked, nil
}

func (p *BooleanParameter) toBool(value interface{}) interface{} {
	if p.optional && isNoneLike(value) {
		return nil
	}
	switch t := value.(type) {
	case bool:
		return t
	case string:
		return t == "True" || t == "true"
	}
	return false
}

func (p *BooleanParameter) FromJSON(trans *Trans, value interface{}, other *ExpressionContext) (interface{}, error) {
	if keepForWorkflow(trans, value) {
		return value, nil
	}
	return p.toBool(value), nil
}

func (p *BooleanParameter) ToPython(ctx context.Context, value interface{}, app *App) (interface{}, error) {
	return p.toBool(value), nil
}

func (p *BooleanParameter) ToJSON(value interface{}, app *App, useSecurity bool) (interface{}, error) {
	b := p.toBool(value)
	if b == nil {
		return nil, nil
	}
	if b.(bool) {
		return "true", nil
	}
	return "false", nil
}

func (p *BooleanParameter) ToParamDictString(value interface{}, other *ExpressionContext) (string, error) {
	if b, ok := p.toBool(value).(bool); ok && b {
		return p.TrueValue, nil
	}
	return p.FalseValue, nil
}

func (p *BooleanParameter) ToDict(trans *Trans, other *ExpressionContext) map[string]interface{} {
	d := p.BaseParameter.ToDict(trans, other)
	d["truevalue"] = p.TrueValue
	d["falsevalue"] = p.FalseValue
	d["value"] = p.checked
	return d
}

// HiddenParameter carries a fixed value that is not shown to users.
type HiddenParameter struct {
	BaseParameter
	value string
}

func newHiddenParameter(tool *Tool, src toolsource.InputSource) (Parameter, error) {
	base, err := newBaseParameter(tool, src, "HiddenToolParameter")
	if err != nil {
		return nil, err
	}
	base.hidden = true
	return &HiddenParameter{BaseParameter: base, value: src.Get("value", "")}, nil
}

func (p *HiddenParameter) Label() string { return "" }

func (p *HiddenParameter) GetInitialValue(trans *Trans, other *ExpressionContext) (interface{}, error) {
	return p.value, nil
}

// ColorParameter is a #rrggbb color, optionally rendered as an RGB tuple.
type ColorParameter struct {
	BaseParameter
	value string
	rgb   bool
}

func newColorParameter(tool *Tool, src toolsource.InputSource) (Parameter, error) {
	base, err := newBaseParameter(tool, src, "ColorToolParameter")
	if err != nil {
		return nil, err
	}
	return &ColorParameter{
		BaseParameter: base,
		value:         src.Get("value", "#000000"),
		rgb:           src.GetBool("rgb", false),
	}, nil
}

func (p *ColorParameter) GetInitialValue(trans *Trans, other *ExpressionContext) (interface{}, error) {
	return strings.ToLower(p.value), nil
}

func (p *ColorParameter) ToParamDictString(value interface{}, other *ExpressionContext) (string, error) {
	s := pyStr(value)
	if !p.rgb {
		return s, nil
	}
	hex := strings.TrimLeft(s, "#")
	if len(hex) < 6 {
		return "", valueError(p.name, "Failed to convert '%s' to RGB.", s)
	}
	var parts [3]string
	for i := 0; i < 3; i++ {
		n, err := strconv.ParseUint(hex[2*i:2*i+2], 16, 8)
		if err != nil {
			return "", valueError(p.name, "Failed to convert '%s' to RGB.", s)
		}
		parts[i] = strconv.FormatUint(n, 10)
	}
	return "(" + strings.Join(parts[:], ", ") + ")", nil
}

func (p *ColorParameter) ToDict(trans *Trans, other *ExpressionContext) map[string]interface{} {
	d := p.BaseParameter.ToDict(trans, other)
	d["value"] = strings.ToLower(p.value)
	return d
}

// BaseURLParameter resolves a server relative path into a qualified URL.
type BaseURLParameter struct {
	HiddenParameter
}

func newBaseURLParameter(tool *Tool, src toolsource.InputSource) (Parameter, error) {
	base, err := newBaseParameter(tool, src, "BaseURLToolParameter")
	if err != nil {
		return nil, err
	}
	base.hidden = true
	return &BaseURLParameter{HiddenParameter{BaseParameter: base, value: src.Get("value", "")}}, nil
}

func (p *BaseURLParameter) qualified(trans *Trans) string {
	if !strings.HasPrefix(p.value, "/") {
		trans.app().logger().Debug("baseurl value must start with a /", "parameter", p.name, "value", p.value)
		return p.value
	}
	return trans.qualifiedURL(p.value)
}

func (p *BaseURLParameter) GetInitialValue(trans *Trans, other *ExpressionContext) (interface{}, error) {
	return p.qualified(trans), nil
}

func (p *BaseURLParameter) FromJSON(trans *Trans, value interface{}, other *ExpressionContext) (interface{}, error) {
	if keepForWorkflow(trans, value) {
		return value, nil
	}
	return p.qualified(trans), nil
}

// FileParameter is an uploaded file. Only its local file name persists.
type FileParameter struct {
	BaseParameter
}

func newFileParameter(tool *Tool, src toolsource.InputSource) (Parameter, error) {
	base, err := newBaseParameter(tool, src, "FileToolParameter")
	if err != nil {
		return nil, err
	}
	return &FileParameter{BaseParameter: base}, nil
}

func (p *FileParameter) ToJSON(value interface{}, app *App, useSecurity bool) (interface{}, error) {
	switch t := value.(type) {
	case nil:
		return nil, nil
	case string:
		if t == "" {
			return nil, nil
		}
		return t, nil
	case map[string]interface{}:
		if name, ok := t["local_filename"].(string); ok {
			return name, nil
		}
		return nil, nil
	}
	return nil, fmt.Errorf("file parameter '%s' cannot be persisted", p.name)
}

func (p *FileParameter) ToPython(ctx context.Context, value interface{}, app *App) (interface{}, error) {
	switch value.(type) {
	case nil, string:
		return value, nil
	}
	return nil, fmt.Errorf("file parameter '%s' cannot be persisted", p.name)
}

// FTPFileParameter selects files from the user's FTP directory.
type FTPFileParameter struct {
	BaseParameter
	multiple bool
}

func newFTPFileParameter(tool *Tool, src toolsource.InputSource) (Parameter, error) {
	base, err := newBaseParameter(tool, src, "FTPFileToolParameter")
	if err != nil {
		return nil, err
	}
	base.optional = src.ParseOptional(true)
	return &FTPFileParameter{BaseParameter: base, multiple: src.GetBool("multiple", true)}, nil
}

func (p *FTPFileParameter) toList(value interface{}, validate bool) (interface{}, error) {
	var names []string
	for _, item := range listify(value) {
		if item == nil || item == "" {
			names = nil
			break
		}
		if m, ok := item.(map[string]interface{}); ok {
			names = append(names, pyStr(m["name"]))
			continue
		}
		names = append(names, pyStr(item))
	}
	if len(names) == 0 {
		if !p.optional && validate {
			return nil, valueError(p.name, "Please select a valid FTP file.")
		}
		return nil, nil
	}
	if validate && !p.multiple && len(names) > 1 {
		return nil, valueError(p.name, "Please select only a single FTP file.")
	}
	return names, nil
}

func (p *FTPFileParameter) FromJSON(trans *Trans, value interface{}, other *ExpressionContext) (interface{}, error) {
	if keepForWorkflow(trans, value) {
		return value, nil
	}
	return p.toList(value, true)
}

func (p *FTPFileParameter) ToJSON(value interface{}, app *App, useSecurity bool) (interface{}, error) {
	return p.toList(value, false)
}

func (p *FTPFileParameter) ToPython(ctx context.Context, value interface{}, app *App) (interface{}, error) {
	return p.toList(value, false)
}

func (p *FTPFileParameter) ToDict(trans *Trans, other *ExpressionContext) map[string]interface{} {
	d := p.BaseParameter.ToDict(trans, other)
	d["multiple"] = p.multiple
	if trans != nil && trans.User != nil && trans.User.FTPDir != "" {
		d["user_ftp_dir"] = trans.User.FTPDir + "/"
	}
	return d
}
