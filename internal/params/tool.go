package params

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/galaxyproject/galaxy-params/internal/model"
	"github.com/galaxyproject/galaxy-params/internal/toolsource"
)

// Tool is a loaded tool definition. It is immutable after NewTool returns
// and safe for concurrent use.
type Tool struct {
	ID          string
	Name        string
	Version     string
	Description string
	ToolType    string
	Profile     float64
	// Sanitize controls whether command line values are sanitized.
	Sanitize bool
	Inputs   Inputs
	// ValidInputStates overrides model.ValidInputStates when set.
	ValidInputStates []model.DatasetState

	app *App
}

// NewTool builds the input tree of src. Any declaration error is fatal to
// the tool.
func NewTool(src toolsource.ToolSource, app *App) (*Tool, error) {
	t := &Tool{
		ID:          src.ParseID(),
		Name:        src.ParseName(),
		Version:     src.ParseVersion(),
		Description: src.ParseDescription(),
		ToolType:    src.ParseToolType(),
		Sanitize:    true,
		app:         app,
	}
	if profile := src.ParseProfile(); profile != "" {
		p, err := strconv.ParseFloat(profile, 64)
		if err != nil {
			return nil, fmt.Errorf("tool '%s': invalid profile '%s'", t.ID, profile)
		}
		t.Profile = p
	}
	sources, err := src.ParseInputSources()
	if err != nil {
		return nil, fmt.Errorf("tool '%s': %w", t.ID, err)
	}
	if t.Inputs, err = t.parseInputs(sources); err != nil {
		return nil, fmt.Errorf("tool '%s': %w", t.ID, err)
	}
	return t, nil
}

// App returns the application services the tool was loaded with.
func (t *Tool) App() *App { return t.app }

func (t *Tool) parseInputs(sources []toolsource.InputSource) (Inputs, error) {
	inputs := make(Inputs, 0, len(sources))
	seen := map[string]bool{}
	for _, src := range sources {
		input, err := t.parseInput(src)
		if err != nil {
			return nil, err
		}
		if seen[input.Name()] {
			return nil, loadError("duplicate input name '%s'", input.Name())
		}
		seen[input.Name()] = true
		inputs = append(inputs, input)
	}
	return inputs, nil
}

func (t *Tool) parseInput(src toolsource.InputSource) (Input, error) {
	switch src.ParseInputType() {
	case "repeat":
		return t.parseRepeat(src)
	case "section":
		return t.parseSection(src)
	case "conditional":
		return t.parseConditional(src)
	case "upload_dataset":
		return t.parseUploadDataset(src)
	case "param":
		return BuildParameter(t, src)
	}
	return nil, loadError("unknown input type '%s'", src.ParseInputType())
}

func groupName(src toolsource.InputSource, kind string) (string, error) {
	name := src.Get("name", "")
	if name == "" {
		return "", loadError("%s requires a 'name'", kind)
	}
	return name, nil
}

func (t *Tool) parseRepeat(src toolsource.InputSource) (*Repeat, error) {
	name, err := groupName(src, "repeat")
	if err != nil {
		return nil, err
	}
	r := &Repeat{
		name:  name,
		title: src.Get("title", ""),
		help:  src.Get("help", ""),
		Max:   math.MaxInt,
	}
	r.titlePlural = src.Get("title_plural", r.title+"s")
	if r.Min, err = intAttr(src, "min", 0); err != nil {
		return nil, err
	}
	if s := src.Get("max", ""); s != "" && s != "inf" {
		if r.Max, err = strconv.Atoi(strings.TrimSpace(s)); err != nil {
			return nil, loadError("repeat '%s': attribute 'max' must be an integer", name)
		}
	}
	if r.Min > r.Max {
		return nil, loadError("Tool with id '%s': min repeat count must be less-than-or-equal to the max.", t.ID)
	}
	if r.Default, err = intAttr(src, "default", 0); err != nil {
		return nil, err
	}
	if r.Default < r.Min {
		r.Default = r.Min
	}
	if r.Default > r.Max {
		r.Default = r.Max
	}
	if r.Inputs, err = t.parseInputs(src.ParseNestedInputsSource()); err != nil {
		return nil, err
	}
	return r, nil
}

func intAttr(src toolsource.InputSource, key string, def int) (int, error) {
	s := src.Get(key, "")
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, loadError("attribute '%s' must be an integer, got '%s'", key, s)
	}
	return n, nil
}

func (t *Tool) parseSection(src toolsource.InputSource) (*Section, error) {
	name, err := groupName(src, "section")
	if err != nil {
		return nil, err
	}
	s := &Section{
		name:     name,
		title:    src.Get("title", ""),
		help:     src.Get("help", ""),
		expanded: src.GetBool("expanded", false),
	}
	if s.Inputs, err = t.parseInputs(src.ParseNestedInputsSource()); err != nil {
		return nil, err
	}
	return s, nil
}

func (t *Tool) parseConditional(src toolsource.InputSource) (*Conditional, error) {
	name, err := groupName(src, "conditional")
	if err != nil {
		return nil, err
	}
	c := &Conditional{name: name}
	testSrc, err := src.ParseTestInputSource()
	if err != nil || testSrc == nil {
		return nil, loadError("conditional '%s' requires a test parameter", name)
	}
	test, err := BuildParameter(t, testSrc)
	if err != nil {
		return nil, err
	}
	var legal []string
	switch tp := test.(type) {
	case *BooleanParameter:
		legal = tp.LegalValues()
	case *SelectParameter:
		if !tp.isDynamic {
			legal = optionValues(tp.staticOptions)
		}
	default:
		return nil, loadError("conditional '%s': test parameter must be a select or boolean, got '%s'", name, test.Type())
	}
	test.Base().refreshOnChange = true
	c.TestParam = test

	for _, when := range src.ParseWhenInputSources() {
		value := when.Value
		if b, ok := test.(*BooleanParameter); ok {
			switch strings.ToLower(value) {
			case "true":
				value = b.TrueValue
			case "false":
				value = b.FalseValue
			}
		}
		inputs, err := t.parseInputs(when.Inputs)
		if err != nil {
			return nil, err
		}
		c.Cases = append(c.Cases, &ConditionalWhen{Value: value, Inputs: inputs})
	}
	// Legal test values without a declared case select an empty case.
	for _, v := range legal {
		if c.caseIndex(v) < 0 {
			t.app.logger().Debug("conditional has no case for test value", "tool", t.ID, "conditional", name, "value", v)
			c.Cases = append(c.Cases, &ConditionalWhen{Value: v})
		}
	}
	return c, nil
}

func (t *Tool) parseUploadDataset(src toolsource.InputSource) (*UploadDataset, error) {
	name, err := groupName(src, "upload_dataset")
	if err != nil {
		return nil, err
	}
	u := &UploadDataset{
		name:            name,
		title:           src.Get("title", ""),
		fileTypeName:    src.Get("file_type_name", "file_type"),
		defaultFileType: "txt",
		metadataRef:     src.Get("metadata_ref", "files_metadata"),
		app:             t.app,
	}
	if u.Inputs, err = t.parseInputs(src.ParseNestedInputsSource()); err != nil {
		return nil, err
	}
	return u, nil
}

// FindParameter searches the whole input tree for a leaf parameter.
func (t *Tool) FindParameter(name string) Parameter {
	return findParameter(t.Inputs, name)
}

func findParameter(inputs Inputs, name string) Parameter {
	for _, input := range inputs {
		switch g := input.(type) {
		case *Repeat:
			if p := findParameter(g.Inputs, name); p != nil {
				return p
			}
		case *Section:
			if p := findParameter(g.Inputs, name); p != nil {
				return p
			}
		case *UploadDataset:
			if p := findParameter(g.Inputs, name); p != nil {
				return p
			}
		case *Conditional:
			if g.TestParam.Name() == name {
				return g.TestParam
			}
			for _, c := range g.Cases {
				if p := findParameter(c.Inputs, name); p != nil {
					return p
				}
			}
		case Parameter:
			if g.Name() == name {
				return g
			}
		}
	}
	return nil
}

// InitialState returns the initial values of every input.
func (t *Tool) InitialState(trans *Trans) (map[string]interface{}, error) {
	state := map[string]interface{}{}
	ctx := NewExpressionContext(state, nil)
	for _, input := range t.Inputs {
		v, err := input.GetInitialValue(trans, ctx)
		if err != nil {
			return nil, fmt.Errorf("initial value of '%s': %w", input.Name(), err)
		}
		state[input.Name()] = v
	}
	return state, nil
}

// ToDict describes the tool and its inputs populated with state. A nil
// state uses the initial values.
func (t *Tool) ToDict(trans *Trans, state map[string]interface{}) map[string]interface{} {
	if state == nil {
		if s, err := t.InitialState(trans); err == nil {
			state = s
		} else {
			state = map[string]interface{}{}
		}
	}
	return map[string]interface{}{
		"id":          t.ID,
		"name":        t.Name,
		"version":     t.Version,
		"description": t.Description,
		"tool_type":   t.ToolType,
		"profile":     t.Profile,
		"inputs":      t.PopulateModel(trans, t.Inputs, state, nil),
	}
}

// PopulateModel describes inputs together with their values in state.
func (t *Tool) PopulateModel(trans *Trans, inputs Inputs, state map[string]interface{}, other *ExpressionContext) []interface{} {
	other = NewExpressionContext(state, other)
	out := make([]interface{}, 0, len(inputs))
	for _, input := range inputs {
		var d map[string]interface{}
		switch g := input.(type) {
		case *Repeat:
			d = g.ToDict(trans, other)
			var cache []interface{}
			for _, el := range listify(state[g.name]) {
				m, _ := asMap(el)
				cache = append(cache, t.PopulateModel(trans, g.Inputs, m, other))
			}
			d["cache"] = cache
		case *Conditional:
			d = g.ToDict(trans, other)
			groupState, _ := asMap(state[g.name])
			testValue, ok := groupState[g.TestParam.Name()]
			if !ok {
				testValue, _ = g.TestParam.GetInitialValue(trans, other)
			}
			test := d["test_param"].(map[string]interface{})
			test["value"], _ = ValueToBasic(g.TestParam, testValue, t.app, true)
			current, hasCase := groupState[currentCaseKey]
			currentIndex, _ := toInt64(current)
			cases := d["cases"].([]interface{})
			for i, c := range g.Cases {
				caseState := map[string]interface{}{}
				if hasCase && int(currentIndex) == i {
					caseState = groupState
				}
				cases[i].(map[string]interface{})["inputs"] = t.PopulateModel(trans, c.Inputs, caseState, other)
			}
		case *Section:
			d = g.ToDict(trans, other)
			groupState, _ := asMap(state[g.name])
			d["inputs"] = t.PopulateModel(trans, g.Inputs, groupState, other)
		case *UploadDataset:
			d = g.ToDict(trans, other)
		case Parameter:
			d = t.describeParameter(trans, g, state, other)
		}
		out = append(out, d)
	}
	return out
}

func (t *Tool) describeParameter(trans *Trans, p Parameter, state map[string]interface{}, other *ExpressionContext) map[string]interface{} {
	initial, err := p.GetInitialValue(trans, other)
	if err != nil {
		trans.app().logger().Debug("skipping parameter expansion", "tool", t.ID, "parameter", p.Name(), "error", err)
		return p.ToDict(trans, nil)
	}
	d := p.ToDict(trans, other)
	value, ok := state[p.Name()]
	if !ok {
		value = initial
	}
	if d["value"], err = ValueToBasic(p, value, t.app, true); err != nil {
		trans.app().logger().Debug("skipping parameter value", "tool", t.ID, "parameter", p.Name(), "error", err)
		d["value"] = nil
	}
	d["default_value"], _ = ValueToBasic(p, initial, t.app, true)
	return d
}
