// Package metaexpand expands batch requests into the individual tool and
// workflow runs they stand for.
package metaexpand

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/mohae/deepcopy"

	"github.com/galaxyproject/galaxy-params/internal/model"
	"github.com/galaxyproject/galaxy-params/internal/params"
)

const identifierSuffix = "|__identifier__"

// ExpandMetaParameters expands a flat tool request whose values may be batch
// wrappers ({"batch": true, "values": [...]}) into one request per run. It
// also returns the collections the runs are mapped over, or nil.
func ExpandMetaParameters(trans *params.Trans, tool *params.Tool, incoming map[string]interface{}) ([]map[string]interface{}, *MatchingCollections, error) {
	request := make(map[string]interface{}, len(incoming))
	for key, value := range incoming {
		if strings.HasSuffix(key, identifierSuffix) {
			continue
		}
		request[key] = value
	}

	keys := orderedKeys(tool, request)
	toMatch := NewCollectionsToMatch()

	classify := func(key string) (Classification, interface{}, error) {
		value := request[key]
		wrapper, ok := value.(map[string]interface{})
		if !ok {
			return Single, value, nil
		}
		values, ok := wrapper["values"]
		if !ok {
			return Single, value, nil
		}
		isBatch := truthy(wrapper["batch"])
		linked := true
		if l, ok := wrapper["linked"]; ok {
			linked = truthy(l)
		}
		if truthy(wrapper["product"]) {
			linked = false
		}
		class := Single
		switch {
		case isBatch && linked:
			class = Matched
		case isBatch:
			class = Multiplied
		}
		if isBatch {
			if ref, ok := collectionMultirun(values); ok {
				expanded, err := expandCollection(trans, key, ref, toMatch, linked)
				return class, expanded, err
			}
		}
		return class, values, nil
	}

	expanded, err := ExpandMultiInputs(keys, classify)
	if err != nil {
		return nil, nil, err
	}
	matching, err := MatchCollections(toMatch)
	if err != nil {
		return nil, nil, err
	}
	logger(trans).Debug("Expanded tool request", "tool_id", tool.ID, "runs", len(expanded), "mapped_over", matching != nil)
	return expanded, matching, nil
}

// orderedKeys lists the request keys in tool input order, followed by any
// keys the tool does not declare in sorted order.
func orderedKeys(tool *params.Tool, request map[string]interface{}) []string {
	nested := params.NestIncoming(copyRequest(request))
	seen := map[string]bool{}
	var keys []string
	params.VisitInputValues(tool.Inputs, nested, func(args params.VisitArgs) interface{} {
		if _, ok := request[args.PrefixedName]; ok && !seen[args.PrefixedName] {
			seen[args.PrefixedName] = true
			keys = append(keys, args.PrefixedName)
		}
		return nil
	}, params.VisitOptions{})

	var rest []string
	for key := range request {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// collectionMultirun returns the single hdca or dce reference a batch maps
// over.
func collectionMultirun(values interface{}) (map[string]interface{}, bool) {
	list := listify(values)
	if len(list) != 1 {
		return nil, false
	}
	ref, ok := list[0].(map[string]interface{})
	if !ok {
		return nil, false
	}
	src, _ := ref["src"].(string)
	return ref, src == model.SrcHDCA || src == model.SrcDCE
}

// expandCollection records the collection a batch input maps over and
// returns the values each run receives: datasets, or subcollection elements
// when a map_over_type is given.
func expandCollection(trans *params.Trans, key string, ref map[string]interface{}, toMatch *CollectionsToMatch, linked bool) ([]interface{}, error) {
	src, _ := ref["src"].(string)
	rawID := ref["id"]
	subcollectionType, _ := ref["map_over_type"].(string)
	// "<id>|<subcollection type>"
	if s, ok := rawID.(string); ok && strings.Contains(s, "|") {
		parts := strings.SplitN(s, "|", 2)
		rawID, subcollectionType = parts[0], parts[1]
	}
	if src != model.SrcHDCA && src != model.SrcDCE {
		return nil, &ToolMetaParameterError{Message: fmt.Sprintf("Invalid dataset collection source type %s", src)}
	}

	app := trans.App
	if app == nil || app.Datastore == nil {
		return nil, fmt.Errorf("no datastore configured")
	}
	id, err := decodeID(app, rawID)
	if err != nil {
		return nil, &ToolMetaParameterError{Message: fmt.Sprintf("Invalid dataset collection id %v", rawID)}
	}

	var collection *model.DatasetCollection
	if src == model.SrcDCE {
		dce, err := app.Datastore.GetDCE(trans.Context(), id)
		if err != nil {
			return nil, fmt.Errorf("failed to load collection element %d: %w", id, err)
		}
		collection = dce.ChildCollection
	} else {
		hdca, err := app.Datastore.GetHDCA(trans.Context(), id)
		if err != nil {
			return nil, fmt.Errorf("failed to load collection %d: %w", id, err)
		}
		collection = hdca.Collection
	}
	if collection == nil {
		return nil, &ToolMetaParameterError{Message: fmt.Sprintf("Collection %v has no elements to map over", rawID)}
	}
	if !collection.Populated {
		return nil, &ToolInputsNotReadyError{Message: notPopulatedMessage}
	}

	toMatch.Add(key, collection, subcollectionType, linked)
	if subcollectionType != "" {
		elements, err := model.SplitDatasetCollection(collection, subcollectionType)
		if err != nil {
			return nil, &ToolMetaParameterError{Message: err.Error()}
		}
		out := make([]interface{}, len(elements))
		for i, e := range elements {
			out[i] = e
		}
		return out, nil
	}

	var out []interface{}
	for _, element := range collection.DatasetElements() {
		if element.HDA == nil {
			continue
		}
		// Runs share the stored dataset; only the identifier differs.
		hda := *element.HDA
		hda.ElementIdentifier = element.ElementIdentifier
		out = append(out, &hda)
	}
	return out, nil
}

func decodeID(app *params.App, raw interface{}) (int64, error) {
	switch t := raw.(type) {
	case string:
		if app.Security != nil {
			return app.Security.DecodeID(t)
		}
		return strconv.ParseInt(t, 10, 64)
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		return int64(t), nil
	}
	return 0, fmt.Errorf("unsupported id %v", raw)
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != "" && t != "false" && t != "False"
	}
	return true
}

func logger(trans *params.Trans) *slog.Logger {
	if trans != nil && trans.App != nil && trans.App.Logger != nil {
		return trans.App.Logger
	}
	return slog.Default()
}

// WorkflowRun is one invocation of an expanded workflow request.
type WorkflowRun struct {
	// Params holds the step parameters keyed by step id.
	Params map[string]map[string]interface{}
	// Inputs holds the workflow level inputs.
	Inputs map[string]interface{}
	// HIDs labels the run with the hids of its batch values.
	HIDs []string
}

type batchSlot struct {
	step, key string
	values    []interface{}
}

// ExpandWorkflowInputs expands batch values in step parameters and workflow
// inputs. Linked batches advance together; product batches are crossed with
// the linked positions and with each other, the first in step order varying
// slowest.
func ExpandWorkflowInputs(paramInputs map[string]map[string]interface{}, inputs map[string]interface{}) ([]WorkflowRun, error) {
	var linked, product []batchSlot
	add := func(step, key string, value interface{}) error {
		wrapper, ok := value.(map[string]interface{})
		if !ok || wrapper["batch"] != true {
			return nil
		}
		values, ok := wrapper["values"].([]interface{})
		if !ok {
			return nil
		}
		slot := batchSlot{step: step, key: key, values: values}
		if wrapper["product"] == true {
			product = append(product, slot)
			return nil
		}
		if len(linked) > 0 && (len(linked[0].values) != len(values) || len(values) == 0) {
			return &RequestParameterInvalidError{Message: linkedMismatchMessage}
		}
		linked = append(linked, slot)
		return nil
	}

	steps := make([]string, 0, len(paramInputs))
	for step := range paramInputs {
		steps = append(steps, step)
	}
	sort.Strings(steps)
	for _, step := range steps {
		keys := make([]string, 0, len(paramInputs[step]))
		for key := range paramInputs[step] {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if err := add(step, key, paramInputs[step][key]); err != nil {
				return nil, err
			}
		}
	}
	inputKeys := make([]string, 0, len(inputs))
	for key := range inputs {
		inputKeys = append(inputKeys, key)
	}
	sort.Strings(inputKeys)
	for _, key := range inputKeys {
		if err := add(key, "", inputs[key]); err != nil {
			return nil, err
		}
	}

	matched := 1
	if len(linked) > 0 {
		matched = len(linked[0].values)
		if matched == 0 {
			return nil, &RequestParameterInvalidError{Message: linkedMismatchMessage}
		}
	}
	lens := make([]int, len(product))
	for i, slot := range product {
		lens[i] = len(slot.values)
	}

	var runs []WorkflowRun
	for _, c := range combinations(matched, lens) {
		run := WorkflowRun{
			Params: map[string]map[string]interface{}{},
			Inputs: map[string]interface{}{},
			HIDs:   []string{},
		}
		if paramInputs != nil {
			run.Params = deepcopy.Copy(paramInputs).(map[string]map[string]interface{})
		}
		if inputs != nil {
			run.Inputs = deepcopy.Copy(inputs).(map[string]interface{})
		}
		assign := func(slot batchSlot, value interface{}) {
			value = copyValue(value)
			if slot.key == "" {
				run.Inputs[slot.step] = value
			} else {
				run.Params[slot.step][slot.key] = value
			}
			if m, ok := value.(map[string]interface{}); ok {
				if hid, ok := m["hid"]; ok {
					run.HIDs = append(run.HIDs, fmt.Sprint(hid))
				}
			}
		}
		for _, slot := range linked {
			assign(slot, slot.values[c.matched])
		}
		for i, slot := range product {
			assign(slot, slot.values[c.multiplied[i]])
		}
		runs = append(runs, run)
	}
	return runs, nil
}
