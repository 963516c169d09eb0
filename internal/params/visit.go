package params

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// VisitArgs is passed to a VisitFunc for every leaf parameter.
type VisitArgs struct {
	Input  Parameter
	Parent map[string]interface{}
	Value  interface{}
	// PrefixedName is the persistence key, e.g. "queries_0|input".
	PrefixedName string
	// PrefixedLabel is the display name, e.g. "Query 1 > Input".
	PrefixedLabel string
	// Prefix is the name prefix of the enclosing block.
	Prefix  string
	Context *ExpressionContext
	// Error is set when the value is missing or a conditional case cannot
	// be resolved.
	Error string
}

// VisitFunc is called for each leaf parameter. Its return value may replace
// the visited value, depending on the ReplacePolicy.
type VisitFunc func(args VisitArgs) interface{}

// ReplacePolicy decides whether a callback result replaces the value.
type ReplacePolicy func(newValue interface{}) bool

// ReplaceOnTruthy replaces values with any truthy callback result.
func ReplaceOnTruthy(newValue interface{}) bool {
	return isTruthy(newValue)
}

// ReplaceUnlessEqual replaces values unless the callback returns sentinel.
func ReplaceUnlessEqual(sentinel interface{}) ReplacePolicy {
	return func(newValue interface{}) bool {
		return !reflect.DeepEqual(newValue, sentinel)
	}
}

// VisitOptions configure VisitInputValues. The zero value visits from the
// top level with ReplaceOnTruthy.
type VisitOptions struct {
	NamePrefix   string
	LabelPrefix  string
	ParentPrefix string
	Context      *ExpressionContext
	Replace      ReplacePolicy
}

// VisitInputValues walks inputs and values depth first and calls fn for
// every leaf parameter. Repeat blocks get their __index__ refreshed. Only
// the active case of a conditional is visited, after its test parameter;
// when the case cannot be resolved the test parameter is visited with an
// error and the case children are skipped.
func VisitInputValues(inputs Inputs, values map[string]interface{}, fn VisitFunc, opts VisitOptions) {
	if opts.Replace == nil {
		opts.Replace = ReplaceOnTruthy
	}
	ctx := NewExpressionContext(values, opts.Context)
	visitLeaf := func(p Parameter, parent map[string]interface{}, namePrefix, labelPrefix, parentPrefix, caseError string) {
		args := VisitArgs{
			Input:         p,
			Parent:        parent,
			Value:         parent[p.Name()],
			PrefixedName:  namePrefix + p.Name(),
			PrefixedLabel: labelPrefix + labelOrName(p),
			Prefix:        parentPrefix,
			Context:       ctx,
			Error:         caseError,
		}
		if _, ok := parent[p.Name()]; !ok {
			args.Error = fmt.Sprintf("No value found for '%s'.", args.PrefixedLabel)
		}
		if newValue := fn(args); opts.Replace(newValue) {
			parent[p.Name()] = newValue
		}
	}
	nested := func(namePrefix, labelPrefix, parentPrefix string) VisitOptions {
		return VisitOptions{
			NamePrefix:   namePrefix,
			LabelPrefix:  labelPrefix,
			ParentPrefix: parentPrefix,
			Context:      ctx,
			Replace:      opts.Replace,
		}
	}

	for _, input := range inputs {
		switch g := input.(type) {
		case *Repeat:
			visitBlocks(g.Inputs, g.name, g.title, values, fn, opts.NamePrefix, opts.LabelPrefix, nested)
		case *UploadDataset:
			visitBlocks(g.Inputs, g.name, g.title, values, fn, opts.NamePrefix, opts.LabelPrefix, nested)
		case *Conditional:
			groupValues := childMap(values, g.name)
			namePrefix := opts.NamePrefix + g.name + "|"
			caseErr := ""
			if testValue, ok := groupValues[g.TestParam.Name()]; !ok {
				caseErr = "The selected case is unavailable/invalid."
			} else if _, err := g.GetCurrentCase(testValue); err != nil {
				caseErr = "The selected case is unavailable/invalid."
			}
			visitLeaf(g.TestParam, groupValues, namePrefix, opts.LabelPrefix, opts.NamePrefix, caseErr)
			// The callback may have replaced the test value.
			current, err := g.GetCurrentCase(groupValues[g.TestParam.Name()])
			if err != nil {
				continue
			}
			groupValues[currentCaseKey] = current
			VisitInputValues(g.Cases[current].Inputs, groupValues, fn, nested(namePrefix, opts.LabelPrefix, opts.NamePrefix))
		case *Section:
			namePrefix := opts.NamePrefix + g.name + "|"
			VisitInputValues(g.Inputs, childMap(values, g.name), fn, nested(namePrefix, opts.LabelPrefix, opts.NamePrefix))
		case Parameter:
			visitLeaf(g, values, opts.NamePrefix, opts.LabelPrefix, opts.ParentPrefix, "")
		}
	}
}

func visitBlocks(inputs Inputs, name, title string, values map[string]interface{}, fn VisitFunc,
	namePrefix, labelPrefix string, nested func(string, string, string) VisitOptions) {
	blocks, _ := asList(values[name])
	if blocks == nil {
		blocks = []interface{}{}
	}
	values[name] = blocks
	for i, el := range blocks {
		d, ok := asMap(el)
		if !ok {
			continue
		}
		d[indexKey] = i
		blockPrefix := fmt.Sprintf("%s%s_%d|", namePrefix, name, i)
		blockLabel := fmt.Sprintf("%s%s %d > ", labelPrefix, title, i+1)
		VisitInputValues(inputs, d, fn, nested(blockPrefix, blockLabel, blockPrefix))
	}
}

// childMap returns values[name] as a map, creating it when absent.
func childMap(values map[string]interface{}, name string) map[string]interface{} {
	if m, ok := asMap(values[name]); ok && m != nil {
		return m
	}
	m := map[string]interface{}{}
	values[name] = m
	return m
}

// ParamsToIncoming flattens nested values into prefixed request keys, the
// inverse of ProcessKey.
func ParamsToIncoming(incoming map[string]interface{}, inputs Inputs, values map[string]interface{}, namePrefix string) {
	for _, input := range inputs {
		switch g := input.(type) {
		case *Repeat:
			blocksToIncoming(incoming, g.Inputs, g.name, values, namePrefix)
		case *UploadDataset:
			blocksToIncoming(incoming, g.Inputs, g.name, values, namePrefix)
		case *Conditional:
			groupValues, _ := asMap(values[g.name])
			prefix := namePrefix + g.name + "|"
			incoming[prefix+g.TestParam.Name()] = groupValues[g.TestParam.Name()]
			current, err := toInt64(groupValues[currentCaseKey])
			if err != nil || current < 0 || int(current) >= len(g.Cases) {
				continue
			}
			ParamsToIncoming(incoming, g.Cases[current].Inputs, groupValues, prefix)
		case *Section:
			groupValues, _ := asMap(values[g.name])
			ParamsToIncoming(incoming, g.Inputs, groupValues, namePrefix+g.name+"|")
		default:
			incoming[namePrefix+input.Name()] = values[input.Name()]
		}
	}
}

func blocksToIncoming(incoming map[string]interface{}, inputs Inputs, name string, values map[string]interface{}, namePrefix string) {
	for i, el := range listify(values[name]) {
		d, ok := asMap(el)
		if !ok {
			continue
		}
		index := i
		if n, err := toInt64(d[indexKey]); err == nil {
			index = int(n)
		}
		ParamsToIncoming(incoming, inputs, d, fmt.Sprintf("%s%s_%d|", namePrefix, name, index))
	}
}

// UpdateParam sets the value addressed by a prefixed name such as
// "queries_12|input" inside nested values. Keys are tried in sorted order.
func UpdateParam(prefixedName string, values map[string]interface{}, newValue interface{}) {
	for _, key := range sortedKeys(values) {
		if rest, index, ok := splitRepeatKey(prefixedName, key); ok && !strings.HasSuffix(key, "|__identifier__") {
			if blocks, ok := asList(values[key]); ok && index < len(blocks) {
				if d, ok := asMap(blocks[index]); ok {
					UpdateParam(rest, d, newValue)
				}
			}
			continue
		}
		if d, ok := asMap(values[key]); ok && strings.HasPrefix(prefixedName, key+"|") {
			UpdateParam(strings.TrimPrefix(prefixedName, key+"|"), d, newValue)
		} else if prefixedName == key {
			values[key] = newValue
		}
	}
}

// splitRepeatKey matches "<key>_<digits>|<rest>".
func splitRepeatKey(name, key string) (string, int, bool) {
	if !strings.HasPrefix(name, key+"_") {
		return "", 0, false
	}
	tail := name[len(key)+1:]
	bar := strings.IndexByte(tail, '|')
	if bar <= 0 || bar == len(tail)-1 {
		return "", 0, false
	}
	index, err := strconv.Atoi(tail[:bar])
	if err != nil || index < 0 {
		return "", 0, false
	}
	return tail[bar+1:], index, true
}

// ProcessKey nests one flat request key into d. "a_0|b" creates a repeat
// block, "a|b" a section or conditional map.
func ProcessKey(key string, value interface{}, d map[string]interface{}) {
	parts := strings.SplitN(key, "|", 2)
	if len(parts) == 1 {
		// An empty value must not clobber an already filled repeat.
		if _, exists := d[key]; exists && !isTruthy(value) {
			return
		}
		d[key] = value
		return
	}
	head, rest := parts[0], parts[1]
	if i := strings.LastIndexByte(head, '_'); i >= 0 && isDigits(head[i+1:]) {
		name := head[:i]
		index, _ := strconv.Atoi(head[i+1:])
		blocks, _ := asList(d[name])
		for len(blocks) <= index {
			blocks = append(blocks, map[string]interface{}{})
		}
		d[name] = blocks
		sub, ok := asMap(blocks[index])
		if !ok {
			sub = map[string]interface{}{}
			blocks[index] = sub
		}
		ProcessKey(rest, value, sub)
		return
	}
	sub, ok := asMap(d[head])
	if !ok {
		sub = map[string]interface{}{}
	}
	d[head] = sub
	ProcessKey(rest, value, sub)
}

// NestIncoming applies ProcessKey to every key of a flat request in sorted
// order.
func NestIncoming(flat map[string]interface{}) map[string]interface{} {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	nestedValues := map[string]interface{}{}
	for _, k := range keys {
		ProcessKey(k, flat[k], nestedValues)
	}
	return nestedValues
}
