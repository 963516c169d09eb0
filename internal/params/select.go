package params

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/galaxyproject/galaxy-params/internal/model"
	"github.com/galaxyproject/galaxy-params/internal/toolsource"
)

// optionSource supplies the options of a select like parameter.
type optionSource interface {
	getOptions(trans *Trans, other *ExpressionContext) ([]toolsource.Option, error)
	getLegalValues(trans *Trans, other *ExpressionContext, value interface{}) ([]string, error)
}

// SelectParameter picks one or more values from a list of options. Options
// are static, come from a data table, or from a registered function.
type SelectParameter struct {
	BaseParameter
	multiple      bool
	display       string
	separator     string
	staticOptions []toolsource.Option
	dynamicCode   string
	options       *DynamicOptions
	source        optionSource
}

func newSelectParameter(tool *Tool, src toolsource.InputSource) (Parameter, error) {
	p, err := buildSelect(tool, src, "SelectToolParameter")
	if err != nil {
		return nil, err
	}
	return p, nil
}

func buildSelect(tool *Tool, src toolsource.InputSource, modelClass string) (*SelectParameter, error) {
	base, err := newBaseParameter(tool, src, modelClass)
	if err != nil {
		return nil, err
	}
	p := &SelectParameter{
		BaseParameter: base,
		multiple:      src.GetBool("multiple", false),
		display:       src.Get("display", ""),
		separator:     src.Get("separator", ","),
	}
	if p.multiple && !src.Has("optional") {
		p.optional = true
	}
	if spec := src.ParseDynamicOptions(); spec != nil {
		if spec.Code != "" {
			p.dynamicCode = spec.Code
		} else {
			p.options = newDynamicOptions(spec)
		}
		p.isDynamic = true
	} else {
		p.staticOptions = src.ParseStaticOptions()
	}
	p.source = p
	return p, nil
}

// Multiple reports whether several values may be selected.
func (p *SelectParameter) Multiple() bool { return p.multiple }

func (p *SelectParameter) getOptions(trans *Trans, other *ExpressionContext) ([]toolsource.Option, error) {
	switch {
	case p.options != nil:
		return p.options.GetOptions(trans, other)
	case p.dynamicCode != "":
		fn, ok := lookupOptionsFunc(p.dynamicCode)
		if !ok {
			trans.app().logger().Warn("dynamic options function not registered", "parameter", p.name, "code", p.dynamicCode)
			return nil, nil
		}
		opts, err := fn(trans, other)
		if err != nil {
			trans.app().logger().Debug("dynamic options failed", "parameter", p.name, "error", err)
			return nil, nil
		}
		return opts, nil
	}
	return p.staticOptions, nil
}

func (p *SelectParameter) getLegalValues(trans *Trans, other *ExpressionContext, value interface{}) ([]string, error) {
	opts, err := p.source.getOptions(trans, other)
	if err != nil {
		return nil, err
	}
	return optionValues(opts), nil
}

// GetOptions returns the options available in the given context.
func (p *SelectParameter) GetOptions(trans *Trans, other *ExpressionContext) ([]toolsource.Option, error) {
	return p.source.getOptions(trans, other)
}

// GetLegalValues returns the values that may currently be selected.
func (p *SelectParameter) GetLegalValues(trans *Trans, other *ExpressionContext) ([]string, error) {
	return p.source.getLegalValues(trans, other, nil)
}

func optionValues(opts []toolsource.Option) []string {
	seen := make(map[string]bool, len(opts))
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		if !seen[o.Value] {
			seen[o.Value] = true
			out = append(out, o.Value)
		}
	}
	return out
}

func (p *SelectParameter) legalNames(trans *Trans, other *ExpressionContext) map[string]string {
	opts, err := p.source.getOptions(trans, other)
	if err != nil {
		return nil
	}
	names := make(map[string]string, len(opts))
	for _, o := range opts {
		names[o.Name] = o.Value
	}
	return names
}

func (p *SelectParameter) GetInitialValue(trans *Trans, other *ExpressionContext) (interface{}, error) {
	opts, err := p.source.getOptions(trans, other)
	if errors.Is(err, errImplicitConversionRequired) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(opts) == 0 {
		return nil, nil
	}
	var selected []string
	for _, o := range opts {
		if o.Selected {
			selected = append(selected, o.Value)
		}
	}
	switch {
	case len(selected) == 0:
		if !p.optional && !p.multiple {
			return opts[0].Value, nil
		}
		return nil, nil
	case len(selected) == 1 || !p.multiple:
		return selected[0], nil
	}
	return selected, nil
}

func (p *SelectParameter) FromJSON(trans *Trans, value interface{}, other *ExpressionContext) (interface{}, error) {
	if keepForWorkflow(trans, value) {
		return value, nil
	}
	return p.fromJSON(trans, value, other, true)
}

func (p *SelectParameter) fromJSON(trans *Trans, value interface{}, other *ExpressionContext, requireLegal bool) (interface{}, error) {
	legal, err := p.source.getLegalValues(trans, other, value)
	if errors.Is(err, errImplicitConversionRequired) {
		return value, nil
	}
	if err != nil {
		return nil, err
	}
	if len(legal) == 0 && IsRuntimeContext(trans, other) {
		if p.multiple {
			if value == "" {
				return nil, nil
			}
			if s, ok := value.(string); ok {
				return strings.Fields(s), nil
			}
		}
		return value, nil
	}
	if value == nil {
		if p.optional {
			return nil, nil
		}
		return nil, p.selectError("an invalid option (None) was selected, please verify", value)
	}
	if len(legal) == 0 {
		if p.optional && p.profile() < 18.09 {
			return nil, nil
		}
		return nil, p.selectError("requires a value, but no legal values defined", value)
	}
	if IsRuntimeValue(value) {
		return nil, nil
	}
	switch value.(type) {
	case []interface{}, []string:
		return p.checkList(trans, other, toStringSlice(value), legal)
	}
	s := pyStr(value)
	if (s == "None" && !containsString(legal, "None")) || s == "" {
		switch {
		case p.multiple && p.optional:
			return []string{}, nil
		case p.multiple:
			return nil, p.selectError("no option was selected for non optional parameter", value)
		case p.optional:
			return nil, nil
		}
	}
	if containsString(legal, s) {
		return s, nil
	}
	if v, ok := p.legalNames(trans, other)[s]; ok {
		return v, nil
	}
	if p.multiple && strings.Contains(s, ",") {
		return p.checkList(trans, other, strings.Split(s, ","), legal)
	}
	if !requireLegal {
		return s, nil
	}
	return nil, p.selectError(fmt.Sprintf("an invalid option (%s) was selected (valid options: %s)",
		pyRepr(s), strings.Join(legal, ",")), value)
}

func (p *SelectParameter) checkList(trans *Trans, other *ExpressionContext, values, legal []string) (interface{}, error) {
	if !p.multiple {
		return nil, p.selectError("multiple values provided but parameter is not expecting multiple values", values)
	}
	var invalid []string
	for _, v := range values {
		if !containsString(legal, v) {
			invalid = append(invalid, v)
		}
	}
	if len(invalid) == 0 {
		return values, nil
	}
	names := p.legalNames(trans, other)
	mapped := make([]string, 0, len(values))
	for _, v := range values {
		if containsString(legal, v) {
			mapped = append(mapped, v)
			continue
		}
		m, ok := names[v]
		if !ok {
			return nil, p.selectError(fmt.Sprintf("invalid options (%s) were selected (valid options: %s)",
				pyRepr(strings.Join(invalid, ",")), strings.Join(legal, ",")), values)
		}
		mapped = append(mapped, m)
	}
	return mapped, nil
}

func (p *SelectParameter) selectError(msg string, value interface{}) *ParameterValueError {
	return &ParameterValueError{Parameter: p.name, Message: msg, Value: value, IsDynamic: p.isDynamic}
}

func (p *SelectParameter) ToJSON(value interface{}, app *App, useSecurity bool) (interface{}, error) {
	if l, ok := value.([]interface{}); ok {
		return toStringSlice(l), nil
	}
	return value, nil
}

func (p *SelectParameter) ToPython(ctx context.Context, value interface{}, app *App) (interface{}, error) {
	if l, ok := value.([]interface{}); ok {
		return toStringSlice(l), nil
	}
	return value, nil
}

func (p *SelectParameter) ToParamDictString(value interface{}, other *ExpressionContext) (string, error) {
	if value == nil {
		return "None", nil
	}
	switch value.(type) {
	case []interface{}, []string:
		values := toStringSlice(value)
		if len(values) == 0 {
			return "None", nil
		}
		if !p.multiple {
			return "", valueError(p.name, "multiple values provided but parameter is not expecting multiple values")
		}
		for i, v := range values {
			values[i] = p.sanitize(v)
		}
		return strings.Join(values, p.separator), nil
	}
	return p.sanitize(pyStr(value)), nil
}

func (p *SelectParameter) ToDict(trans *Trans, other *ExpressionContext) map[string]interface{} {
	d := p.BaseParameter.ToDict(trans, other)
	opts, err := p.source.getOptions(trans, other)
	if err != nil {
		trans.app().logger().Debug("failed to list options", "parameter", p.name, "error", err)
	}
	rows := make([][]interface{}, 0, len(opts))
	for _, o := range opts {
		rows = append(rows, []interface{}{o.Name, o.Value, o.Selected})
	}
	d["options"] = rows
	d["display"] = p.display
	d["multiple"] = p.multiple
	d["textable"] = IsRuntimeContext(trans, other)
	return d
}

func pyRepr(s string) string {
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

// GenomeBuildParameter selects a genome build. The history's build is
// preselected.
type GenomeBuildParameter struct {
	*SelectParameter
}

func newGenomeBuildParameter(tool *Tool, src toolsource.InputSource) (Parameter, error) {
	sp, err := buildSelect(tool, src, "GenomeBuildParameter")
	if err != nil {
		return nil, err
	}
	p := &GenomeBuildParameter{SelectParameter: sp}
	sp.source = p
	return p, nil
}

func genomeBuilds(trans *Trans) []GenomeBuild {
	if app := trans.app(); app != nil && len(app.GenomeBuilds) > 0 {
		return app.GenomeBuilds
	}
	return []GenomeBuild{{DBKey: "?", Name: "unspecified (?)"}}
}

func (p *GenomeBuildParameter) getOptions(trans *Trans, other *ExpressionContext) ([]toolsource.Option, error) {
	last := ""
	if trans != nil && trans.History != nil {
		last = trans.History.GenomeBuild
	}
	builds := genomeBuilds(trans)
	out := make([]toolsource.Option, 0, len(builds))
	for _, b := range builds {
		out = append(out, toolsource.Option{Name: b.Name, Value: b.DBKey, Selected: b.DBKey == last})
	}
	return out, nil
}

func (p *GenomeBuildParameter) getLegalValues(trans *Trans, other *ExpressionContext, value interface{}) ([]string, error) {
	builds := genomeBuilds(trans)
	out := make([]string, 0, len(builds))
	for _, b := range builds {
		out = append(out, b.DBKey)
	}
	return out, nil
}

// ColumnListParameter selects columns of a tabular dataset named by
// data_ref. Values are column numbers; a leading "c" is accepted.
type ColumnListParameter struct {
	*SelectParameter
	numerical      bool
	acceptDefault  bool
	useHeaderNames bool
	dataRef        string
	defaultValue   *string
}

func newColumnListParameter(tool *Tool, src toolsource.InputSource) (Parameter, error) {
	sp, err := buildSelect(tool, src, "ColumnListParameter")
	if err != nil {
		return nil, err
	}
	p := &ColumnListParameter{
		SelectParameter: sp,
		numerical:       src.GetBool("numerical", false),
		acceptDefault:   src.GetBool("accept_default", false),
		useHeaderNames:  src.GetBool("use_header_names", false),
		dataRef:         src.Get("data_ref", ""),
	}
	sp.optional = src.ParseOptional(false)
	if p.acceptDefault {
		sp.optional = true
	}
	for _, attr := range []string{"default_value", "value"} {
		if src.Has(attr) {
			v := stripColumnPrefix(src.Get(attr, ""))
			p.defaultValue = &v
			break
		}
	}
	sp.isDynamic = true
	sp.source = p
	return p, nil
}

// DataRef names the data input whose columns are offered.
func (p *ColumnListParameter) DataRef() string { return p.dataRef }

func stripColumnPrefix(column string) string {
	column = strings.TrimSpace(column)
	if len(column) > 1 && (column[0] == 'c' || column[0] == 'C') && isDigits(column[1:]) {
		return column[1:]
	}
	return column
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func (p *ColumnListParameter) FromJSON(trans *Trans, value interface{}, other *ExpressionContext) (interface{}, error) {
	if keepForWorkflow(trans, value) {
		return value, nil
	}
	if p.multiple {
		var columns []string
		switch t := value.(type) {
		case string:
			for _, line := range strings.Split(t, "\n") {
				for _, c := range strings.Split(line, ",") {
					if c = strings.TrimSpace(c); c != "" {
						columns = append(columns, stripColumnPrefix(c))
					}
				}
			}
		case []interface{}, []string:
			for _, c := range toStringSlice(t) {
				columns = append(columns, stripColumnPrefix(c))
			}
		}
		if len(columns) == 0 && p.acceptDefault {
			return []string{p.defaultOrFirst()}, nil
		}
		if len(columns) == 0 {
			value = nil
		} else {
			value = columns
		}
	} else {
		if isTruthy(value) && !IsRuntimeValue(value) {
			value = stripColumnPrefix(pyStr(value))
		} else if !IsRuntimeValue(value) {
			value = nil
		}
		if value == nil && p.acceptDefault {
			return p.defaultOrFirst(), nil
		}
	}
	return p.SelectParameter.fromJSON(trans, value, other, false)
}

func (p *ColumnListParameter) defaultOrFirst() string {
	if p.defaultValue != nil && *p.defaultValue != "" {
		return *p.defaultValue
	}
	return "1"
}

func (p *ColumnListParameter) GetInitialValue(trans *Trans, other *ExpressionContext) (interface{}, error) {
	if p.defaultValue != nil {
		return *p.defaultValue, nil
	}
	return p.SelectParameter.GetInitialValue(trans, other)
}

func (p *ColumnListParameter) refFormats() []string {
	if p.tool == nil {
		return nil
	}
	if ref, ok := p.tool.FindParameter(p.dataRef).(*DataParameter); ok {
		return ref.formats
	}
	return nil
}

// columnList returns the columns common to every dataset selected in the
// referenced input.
func (p *ColumnListParameter) columnList(trans *Trans, other *ExpressionContext) ([]string, *model.Metadata, error) {
	ref := other.Value(p.dataRef)
	if !isTruthy(ref) || IsRuntimeValue(ref) {
		return nil, nil, nil
	}
	var columns []string
	var first *model.Metadata
	for _, item := range listify(ref) {
		var hda *model.HDA
		switch t := item.(type) {
		case *model.HDA:
			hda = t
		case *model.HDCA:
			hda = t.ToHDARepresentative()
		case *model.DatasetCollectionElement:
			hda = firstDatasetInstance(t)
		}
		if hda == nil {
			return nil, nil, nil
		}
		if formats := p.refFormats(); len(formats) > 0 && trans.app() != nil && trans.app().Datatypes != nil {
			direct, target, converted := model.FindConversionDestination(trans.app().Datatypes, hda, formats)
			if !direct && target != "" {
				if converted == nil {
					return nil, nil, errImplicitConversionRequired
				}
				hda = converted
			}
		}
		meta := hda.GetMetadata()
		if meta.Columns == 0 {
			return nil, nil, nil
		}
		var these []string
		if p.numerical {
			for i, t := range meta.ColumnTypes {
				if t == "int" || t == "float" {
					these = append(these, fmt.Sprint(i+1))
				}
			}
		} else {
			for i := 1; i <= meta.Columns; i++ {
				these = append(these, fmt.Sprint(i))
			}
		}
		if columns == nil {
			columns = these
			first = meta
			continue
		}
		kept := columns[:0:0]
		for _, c := range columns {
			if containsString(these, c) {
				kept = append(kept, c)
			}
		}
		columns = kept
	}
	return columns, first, nil
}

func (p *ColumnListParameter) getOptions(trans *Trans, other *ExpressionContext) ([]toolsource.Option, error) {
	columns, meta, err := p.columnList(trans, other)
	if err != nil {
		return nil, err
	}
	out := make([]toolsource.Option, 0, len(columns))
	if p.useHeaderNames && meta != nil && len(meta.ColumnNames) > 0 {
		for _, c := range columns {
			n, err := strconv.Atoi(c)
			if err != nil || n < 1 || n > len(meta.ColumnNames) {
				out = out[:0]
				break
			}
			out = append(out, toolsource.Option{Name: "c" + c + ": " + meta.ColumnNames[n-1], Value: c})
		}
		if len(out) == len(columns) {
			return out, nil
		}
	}
	for _, c := range columns {
		out = append(out, toolsource.Option{Name: "Column: " + c, Value: c})
	}
	return out, nil
}

func (p *ColumnListParameter) getLegalValues(trans *Trans, other *ExpressionContext, value interface{}) ([]string, error) {
	if _, ok := other.Get(p.dataRef); !ok && !trans.workflowMode() {
		return nil, errors.New("Value for associated data reference not found (data_ref).")
	}
	columns, _, err := p.columnList(trans, other)
	return columns, err
}

func (p *ColumnListParameter) ToDict(trans *Trans, other *ExpressionContext) map[string]interface{} {
	d := p.SelectParameter.ToDict(trans, other)
	d["data_ref"] = p.dataRef
	d["numerical"] = p.numerical
	return d
}
