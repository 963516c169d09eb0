package metaexpand

import (
	"fmt"

	"github.com/mohae/deepcopy"

	"github.com/galaxyproject/galaxy-params/internal/params"
)

// requestPath addresses a value inside a nested request. Steps are map keys
// (string) or repeat block indexes (int).
type requestPath []interface{}

func (p requestPath) with(step interface{}) requestPath {
	out := make(requestPath, len(p), len(p)+1)
	copy(out, p)
	return append(out, step)
}

// ExpandNestedMetaParameters expands a nested ("21.01") request. Declared
// values are flattened under their prefixed names, expanded like a legacy
// request and written back into a copy of the request for every run, so
// undeclared keys and empty repeats survive unchanged.
func ExpandNestedMetaParameters(trans *params.Trans, tool *params.Tool, incoming map[string]interface{}) ([]map[string]interface{}, *MatchingCollections, error) {
	flat := map[string]interface{}{}
	paths := map[string]requestPath{}
	flattenNested(tool.Inputs, incoming, "", nil, flat, paths)

	expanded, matching, err := ExpandMetaParameters(trans, tool, flat)
	if err != nil {
		return nil, nil, err
	}
	runs := make([]map[string]interface{}, len(expanded))
	for i, run := range expanded {
		nested, _ := deepcopy.Copy(incoming).(map[string]interface{})
		if nested == nil {
			nested = map[string]interface{}{}
		}
		for key, value := range run {
			if path, ok := paths[key]; ok {
				setPath(nested, path, value)
			}
		}
		runs[i] = nested
	}
	return runs, matching, nil
}

func flattenNested(inputs params.Inputs, values map[string]interface{}, prefix string, at requestPath, flat map[string]interface{}, paths map[string]requestPath) {
	for _, input := range inputs {
		name := input.Name()
		value, ok := values[name]
		if !ok {
			continue
		}
		here := at.with(name)
		switch g := input.(type) {
		case *params.Repeat:
			flattenBlocks(g.Inputs, value, prefix+name, here, flat, paths)
		case *params.UploadDataset:
			flattenBlocks(g.Inputs, value, prefix+name, here, flat, paths)
		case *params.Section:
			if m, ok := value.(map[string]interface{}); ok {
				flattenNested(g.Inputs, m, prefix+name+"|", here, flat, paths)
			}
		case *params.Conditional:
			m, ok := value.(map[string]interface{})
			if !ok {
				continue
			}
			flattenNested(params.Inputs{g.TestParam}, m, prefix+name+"|", here, flat, paths)
			for _, c := range g.Cases {
				flattenNested(c.Inputs, m, prefix+name+"|", here, flat, paths)
			}
		default:
			key := prefix + name
			if _, seen := paths[key]; seen {
				continue
			}
			flat[key] = value
			paths[key] = here
		}
	}
}

func flattenBlocks(inputs params.Inputs, value interface{}, prefix string, at requestPath, flat map[string]interface{}, paths map[string]requestPath) {
	blocks, ok := value.([]interface{})
	if !ok {
		return
	}
	for i, block := range blocks {
		if m, ok := block.(map[string]interface{}); ok {
			flattenNested(inputs, m, fmt.Sprintf("%s_%d|", prefix, i), at.with(i), flat, paths)
		}
	}
}

// setPath replaces the value at path. Paths that no longer resolve are
// ignored.
func setPath(root map[string]interface{}, path requestPath, value interface{}) {
	var cur interface{} = root
	for i, step := range path {
		last := i == len(path)-1
		switch s := step.(type) {
		case string:
			m, ok := cur.(map[string]interface{})
			if !ok {
				return
			}
			if last {
				m[s] = value
				return
			}
			cur = m[s]
		case int:
			l, ok := cur.([]interface{})
			if !ok || s >= len(l) {
				return
			}
			if last {
				l[s] = value
				return
			}
			cur = l[s]
		}
	}
}
