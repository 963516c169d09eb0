package metaexpand

import (
	"errors"
	"strings"
	"testing"
)

func batchClassifier(classes map[string]Classification, values map[string]interface{}) Classifier {
	return func(key string) (Classification, interface{}, error) {
		return classes[key], values[key], nil
	}
}

func TestExpandMultiInputs_Matched(t *testing.T) {
	keys := []string{"a", "b", "c"}
	classify := batchClassifier(
		map[string]Classification{"a": Matched, "b": Matched, "c": Single},
		map[string]interface{}{
			"a": []interface{}{"1", "2"},
			"b": []interface{}{"3", "4"},
			"c": "fixed",
		},
	)

	expanded, err := ExpandMultiInputs(keys, classify)
	if err != nil {
		t.Fatalf("Failed to expand inputs: %v", err)
	}
	if len(expanded) != 2 {
		t.Fatalf("Expected 2 expansions, got %d", len(expanded))
	}
	var got []string
	for _, e := range expanded {
		got = append(got, e["a"].(string)+e["b"].(string)+e["c"].(string))
	}
	if strings.Join(got, ",") != "13fixed,24fixed" {
		t.Errorf("Expected 13fixed,24fixed, got %v", got)
	}
}

func TestExpandMultiInputs_MultipliedOrder(t *testing.T) {
	keys := []string{"first", "second"}
	classify := batchClassifier(
		map[string]Classification{"first": Multiplied, "second": Multiplied},
		map[string]interface{}{
			"first":  []interface{}{"a", "b"},
			"second": []interface{}{"x", "y", "z"},
		},
	)

	expanded, err := ExpandMultiInputs(keys, classify)
	if err != nil {
		t.Fatalf("Failed to expand inputs: %v", err)
	}
	var got []string
	for _, e := range expanded {
		got = append(got, e["first"].(string)+e["second"].(string))
	}
	want := "ax,ay,az,bx,by,bz"
	if strings.Join(got, ",") != want {
		t.Errorf("Expected %s, got %v", want, got)
	}
}

func TestExpandMultiInputs_MatchedAndMultiplied(t *testing.T) {
	keys := []string{"m", "p"}
	classify := batchClassifier(
		map[string]Classification{"m": Matched, "p": Multiplied},
		map[string]interface{}{
			"m": []interface{}{"1", "2"},
			"p": []interface{}{"x", "y"},
		},
	)

	expanded, err := ExpandMultiInputs(keys, classify)
	if err != nil {
		t.Fatalf("Failed to expand inputs: %v", err)
	}
	var got []string
	for _, e := range expanded {
		got = append(got, e["m"].(string)+e["p"].(string))
	}
	if strings.Join(got, ",") != "1x,1y,2x,2y" {
		t.Errorf("Expected 1x,1y,2x,2y, got %v", got)
	}
}

func TestExpandMultiInputs_LengthMismatch(t *testing.T) {
	classify := batchClassifier(
		map[string]Classification{"a": Matched, "b": Matched},
		map[string]interface{}{
			"a": []interface{}{"1", "2"},
			"b": []interface{}{"3"},
		},
	)

	_, err := ExpandMultiInputs([]string{"a", "b"}, classify)
	var invalid *RequestParameterInvalidError
	if !errors.As(err, &invalid) {
		t.Fatalf("Expected RequestParameterInvalidError, got %v", err)
	}
	if invalid.Message != linkedMismatchMessage {
		t.Errorf("Expected %q, got %q", linkedMismatchMessage, invalid.Message)
	}
}

func TestExpandMultiInputs_EmptyMatched(t *testing.T) {
	classify := batchClassifier(
		map[string]Classification{"a": Matched},
		map[string]interface{}{"a": []interface{}{}},
	)

	if _, err := ExpandMultiInputs([]string{"a"}, classify); err == nil {
		t.Error("Expected error for empty linked batch")
	}
}

func TestExpandMultiInputs_SingleOnly(t *testing.T) {
	classify := batchClassifier(
		map[string]Classification{},
		map[string]interface{}{"a": "1"},
	)

	expanded, err := ExpandMultiInputs([]string{"a"}, classify)
	if err != nil {
		t.Fatalf("Failed to expand inputs: %v", err)
	}
	if len(expanded) != 1 || expanded[0]["a"] != "1" {
		t.Errorf("Expected one unchanged expansion, got %v", expanded)
	}
}

func TestExpandMultiInputs_CopiesAreIndependent(t *testing.T) {
	shared := map[string]interface{}{"k": "v"}
	classify := batchClassifier(
		map[string]Classification{"a": Matched, "s": Single},
		map[string]interface{}{
			"a": []interface{}{"1", "2"},
			"s": shared,
		},
	)

	expanded, err := ExpandMultiInputs([]string{"a", "s"}, classify)
	if err != nil {
		t.Fatalf("Failed to expand inputs: %v", err)
	}
	expanded[0]["s"].(map[string]interface{})["k"] = "changed"
	if expanded[1]["s"].(map[string]interface{})["k"] != "v" {
		t.Error("Expected expansions not to share nested maps")
	}
	if shared["k"] != "v" {
		t.Error("Expected the request not to be modified")
	}
}

func TestIncrementIndices(t *testing.T) {
	indices := []int{0, 1}
	radix := []int{2, 2}
	incrementIndices(indices, radix)
	if indices[0] != 1 || indices[1] != 0 {
		t.Errorf("Expected [1 0], got %v", indices)
	}
}
