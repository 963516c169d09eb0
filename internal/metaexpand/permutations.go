package metaexpand

import (
	"github.com/mohae/deepcopy"
)

// Classification describes how a request input takes part in an expansion.
type Classification int

const (
	// Single inputs are copied into every expansion.
	Single Classification = iota
	// Matched inputs advance together, position by position.
	Matched
	// Multiplied inputs are crossed with everything else.
	Multiplied
)

func (c Classification) String() string {
	switch c {
	case Matched:
		return "matched"
	case Multiplied:
		return "multiplied"
	}
	return "single"
}

// Classifier classifies the input under key and returns its value, or its
// list of values for matched and multiplied inputs.
type Classifier func(key string) (Classification, interface{}, error)

// combo addresses one expansion: a position in the matched lists and one
// position per multiplied list.
type combo struct {
	matched    int
	multiplied []int
}

// combinations enumerates matched positions in order, crossed with the
// multiplied lists. The earliest multiplied list varies slowest.
func combinations(matchedN int, multipliedLens []int) []combo {
	radix := append([]int{matchedN}, multipliedLens...)
	total := 1
	for _, n := range radix {
		total *= n
	}
	out := make([]combo, 0, total)
	indices := make([]int, len(radix))
	for i := 0; i < total; i++ {
		out = append(out, combo{
			matched:    indices[0],
			multiplied: append([]int(nil), indices[1:]...),
		})
		incrementIndices(indices, radix)
	}
	return out
}

// incrementIndices counts in mixed radix, last position fastest.
func incrementIndices(indices, radix []int) {
	for i := len(indices) - 1; i >= 0; i-- {
		indices[i]++
		if indices[i] < radix[i] {
			return
		}
		indices[i] = 0
	}
}

// matchedLength returns the common length of the matched lists. Lists of
// different or zero length cannot be matched.
func matchedLength(lists [][]interface{}) (int, error) {
	if len(lists) == 0 {
		return 1, nil
	}
	n := len(lists[0])
	for _, l := range lists {
		if len(l) != n || len(l) == 0 {
			return 0, &RequestParameterInvalidError{Message: linkedMismatchMessage}
		}
	}
	return n, nil
}

// ExpandMultiInputs builds every combination of inputs to run together.
// keys fixes the order in which inputs are classified; it decides which
// multiplied input varies slowest.
func ExpandMultiInputs(keys []string, classify Classifier) ([]map[string]interface{}, error) {
	single := map[string]interface{}{}
	var matchedKeys, multipliedKeys []string
	var matched, multiplied [][]interface{}
	for _, key := range keys {
		class, value, err := classify(key)
		if err != nil {
			return nil, err
		}
		switch class {
		case Matched:
			matchedKeys = append(matchedKeys, key)
			matched = append(matched, listify(value))
		case Multiplied:
			multipliedKeys = append(multipliedKeys, key)
			multiplied = append(multiplied, listify(value))
		default:
			single[key] = value
		}
	}

	n, err := matchedLength(matched)
	if err != nil {
		return nil, err
	}
	lens := make([]int, len(multiplied))
	for i, l := range multiplied {
		lens[i] = len(l)
	}

	var out []map[string]interface{}
	for _, c := range combinations(n, lens) {
		expanded := copyRequest(single)
		for j, key := range matchedKeys {
			expanded[key] = copyValue(matched[j][c.matched])
		}
		for j, key := range multipliedKeys {
			expanded[key] = copyValue(multiplied[j][c.multiplied[j]])
		}
		out = append(out, expanded)
	}
	return out, nil
}

// copyRequest copies a request map entry by entry with copyValue.
func copyRequest(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

// copyValue deep copies request structures. Model objects are shared.
func copyValue(v interface{}) interface{} {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return deepcopy.Copy(v)
	}
	return v
}

func listify(v interface{}) []interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case []interface{}:
		return t
	}
	return []interface{}{v}
}
