package params

import (
	"fmt"
	"strings"
)

// InputFormat selects how PopulateState reads the incoming request.
type InputFormat string

const (
	// FormatLegacy requests are flat maps keyed by prefixed names.
	FormatLegacy InputFormat = "legacy"
	// FormatNested requests mirror the nested state layout.
	FormatNested InputFormat = "21.01"
)

const caseUnavailable = "The selected case is unavailable/invalid."

// CheckParam converts and validates one incoming value. It never fails: a
// rejected value is returned together with the error message.
func CheckParam(trans *Trans, param Parameter, value interface{}, other *ExpressionContext) (interface{}, string) {
	if trans.workflowMode() && IsRuntimeValue(value) {
		return RuntimeToJSON(value), ""
	}
	checked, err := param.FromJSON(trans, value, other)
	if err != nil {
		return value, err.Error()
	}
	if err := param.Validate(trans, checked); err != nil {
		return checked, err.Error()
	}
	return checked, ""
}

// PopulateOptions configure PopulateState.
type PopulateOptions struct {
	Format InputFormat
	// NoCheck copies incoming values without converting them.
	NoCheck bool
	Context *ExpressionContext
}

// PopulateState fills state from an incoming request and records field
// errors. Legacy requests report errors under prefixed names; nested
// requests report nested error maps.
func PopulateState(trans *Trans, inputs Inputs, incoming, state, errors map[string]interface{}, opts PopulateOptions) error {
	switch opts.Format {
	case "", FormatLegacy:
		p := &populator{trans: trans, check: !opts.NoCheck}
		p.legacy(inputs, incoming, state, errors, "", opts.Context)
		return nil
	case FormatNested:
		p := &populator{trans: trans, check: !opts.NoCheck}
		p.nested(inputs, incoming, state, errors, opts.Context)
		return nil
	}
	return fmt.Errorf("unknown input format '%s'", opts.Format)
}

type populator struct {
	trans *Trans
	check bool
}

func (p *populator) checkParam(param Parameter, value interface{}, other *ExpressionContext) (interface{}, string) {
	if !p.check {
		return value, ""
	}
	return CheckParam(p.trans, param, value, other)
}

func (p *populator) initial(input Input, other *ExpressionContext, errors map[string]interface{}, key string) interface{} {
	v, err := input.GetInitialValue(p.trans, other)
	if err != nil {
		errors[key] = err.Error()
		return nil
	}
	return v
}

func (p *populator) legacy(inputs Inputs, incoming, state, errors map[string]interface{}, prefix string, other *ExpressionContext) {
	ctx := NewExpressionContext(state, other)
	for _, input := range inputs {
		key := prefix + input.Name()
		groupPrefix := key + "|"
		switch g := input.(type) {
		case *Repeat:
			var blocks []interface{}
			minBlocks := g.Min
			if g.Default > minBlocks {
				minBlocks = g.Default
			}
			for i := 0; ; i++ {
				blockPrefix := fmt.Sprintf("%s_%d", key, i)
				if !hasKeyPrefix(incoming, blockPrefix) && i >= minBlocks {
					break
				}
				if i < g.Max {
					block := map[string]interface{}{indexKey: i}
					blocks = append(blocks, block)
					p.legacy(g.Inputs, incoming, block, errors, blockPrefix+"|", ctx)
				}
			}
			if blocks == nil {
				blocks = []interface{}{}
			}
			state[g.name] = blocks
		case *Conditional:
			groupState, _ := asMap(p.initial(g, ctx, errors, key))
			if groupState == nil {
				groupState = map[string]interface{}{}
			}
			testKey := groupPrefix + g.TestParam.Name()
			raw, ok := incoming[testKey]
			if !ok {
				raw = groupState[g.TestParam.Name()]
			}
			value, errMsg := p.checkParam(g.TestParam, raw, ctx)
			if errMsg != "" {
				errors[testKey] = errMsg
			} else if current, err := g.GetCurrentCase(value); err != nil {
				errors[testKey] = caseUnavailable
			} else {
				groupState = map[string]interface{}{}
				p.legacy(g.Cases[current].Inputs, incoming, groupState, errors, groupPrefix, ctx)
				groupState[currentCaseKey] = current
			}
			groupState[g.TestParam.Name()] = value
			state[g.name] = groupState
		case *Section:
			groupState := map[string]interface{}{}
			state[g.name] = groupState
			p.legacy(g.Inputs, incoming, groupState, errors, groupPrefix, ctx)
		case *UploadDataset:
			blocks, _ := asList(p.initial(g, ctx, errors, key))
			count := g.FileCount(ctx)
			if len(blocks) > count {
				blocks = blocks[:count]
			}
			for len(blocks) < count {
				block, err := initialBlock(p.trans, g.Inputs, len(blocks), ctx)
				if err != nil {
					errors[key] = err.Error()
					break
				}
				blocks = append(blocks, block)
			}
			for _, el := range blocks {
				block, _ := asMap(el)
				index, _ := toInt64(block[indexKey])
				p.legacy(g.Inputs, incoming, block, errors, fmt.Sprintf("%s_%d|", key, index), ctx)
			}
			state[g.name] = blocks
		case Parameter:
			def, hasState := state[g.Name()]
			if !hasState {
				def = p.initial(g, ctx, errors, key)
			}
			value, errMsg := p.checkParam(g, incomingValue(incoming, key, def), ctx)
			if errMsg != "" {
				errors[key] = errMsg
			}
			state[g.Name()] = value
		}
	}
}

func (p *populator) nested(inputs Inputs, incoming, state, errors map[string]interface{}, other *ExpressionContext) {
	ctx := NewExpressionContext(state, other)
	for _, input := range inputs {
		switch g := input.(type) {
		case *Repeat:
			reps := listify(incoming[g.name])
			if len(reps) > g.Max || len(reps) < g.Min {
				errors[g.name] = "The number of repeat elements is outside the range specified by the tool."
				state[g.name] = p.initial(g, ctx, errors, g.name)
				continue
			}
			blocks := make([]interface{}, 0, len(reps))
			for i, rep := range reps {
				repIncoming, _ := asMap(rep)
				block := map[string]interface{}{indexKey: i}
				blocks = append(blocks, block)
				repErrors := map[string]interface{}{}
				p.nested(g.Inputs, repIncoming, block, repErrors, ctx)
				if len(repErrors) > 0 {
					errors[g.name] = repErrors
				}
			}
			state[g.name] = blocks
		case *Conditional:
			groupIncoming, _ := asMap(incoming[g.name])
			groupState, _ := asMap(p.initial(g, ctx, errors, g.name))
			if groupState == nil {
				groupState = map[string]interface{}{}
			}
			value, errMsg := p.checkParam(g.TestParam, groupIncoming[g.TestParam.Name()], ctx)
			if errMsg != "" {
				errors[g.TestParam.Name()] = errMsg
			} else if current, err := g.GetCurrentCase(value); err != nil {
				errors[g.TestParam.Name()] = caseUnavailable
			} else {
				groupState = map[string]interface{}{}
				caseErrors := map[string]interface{}{}
				p.nested(g.Cases[current].Inputs, groupIncoming, groupState, caseErrors, ctx)
				if len(caseErrors) > 0 {
					errors[g.name] = caseErrors
				}
				groupState[currentCaseKey] = current
			}
			groupState[g.TestParam.Name()] = value
			state[g.name] = groupState
		case *Section:
			groupIncoming, _ := asMap(incoming[g.name])
			groupState := map[string]interface{}{}
			sectionErrors := map[string]interface{}{}
			p.nested(g.Inputs, groupIncoming, groupState, sectionErrors, ctx)
			if len(sectionErrors) > 0 {
				errors[g.name] = sectionErrors
			}
			state[g.name] = groupState
		case *UploadDataset:
			errors[g.name] = "upload_dataset inputs are not supported in nested requests"
		case Parameter:
			def, hasState := state[g.Name()]
			if !hasState {
				def = p.initial(g, ctx, errors, g.Name())
			}
			value, errMsg := p.checkParam(g, incomingValue(incoming, g.Name(), def), ctx)
			if errMsg != "" {
				errors[g.Name()] = errMsg
			}
			state[g.Name()] = value
		}
	}
}

func hasKeyPrefix(m map[string]interface{}, prefix string) bool {
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// incomingValue reads key from a request. Composite values are spread over
// "<key>_<part>" keys listed under "__<key>__keys".
func incomingValue(incoming map[string]interface{}, key string, def interface{}) interface{} {
	if _, ok := incoming[fmt.Sprintf("__%s__is_composite", key)]; ok {
		value := map[string]interface{}{}
		for _, part := range strings.Fields(pyStr(incoming[fmt.Sprintf("__%s__keys", key)])) {
			value[part] = incoming[key+"_"+part]
		}
		return value
	}
	if v, ok := incoming[key]; ok {
		return v
	}
	return def
}
