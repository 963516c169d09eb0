package params

import (
	"context"
	"math"
	"reflect"
	"testing"
)

func TestDumps(t *testing.T) {
	for _, tc := range []struct {
		name  string
		value interface{}
		want  string
	}{
		{"null", nil, "null"},
		{"string", "5", `"5"`},
		{"sorted map", map[string]interface{}{"b": 1, "a": "x"}, `{"a": "x", "b": 1}`},
		{"list", []interface{}{int64(1), "two", true}, `[1, "two", true]`},
		{"unicode", "café", `"caf\u00e9"`},
		{"astral", "\U0001F600", `"\ud83d\ude00"`},
		{"float", 1.0, "1.0"},
		{"infinity", math.Inf(1), "Infinity"},
		{"escapes", "a\"b\\c\n", `"a\"b\\c\n"`},
		{"string list", []string{"a", "b"}, `["a", "b"]`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Dumps(tc.value)
			if err != nil {
				t.Fatalf("Failed to encode: %v", err)
			}
			if got != tc.want {
				t.Errorf("Expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestSafeLoads(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   string
		want interface{}
	}{
		{"string", `"x"`, "x"},
		{"null", "null", nil},
		{"number kept as text", "5", "5"},
		{"bool kept as text", "true", "true"},
		{"invalid", "{not json", "{not json"},
		{"list", "[1, 2.5]", []interface{}{int64(1), 2.5}},
		{"map", `{"a": [1]}`, map[string]interface{}{"a": []interface{}{int64(1)}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := SafeLoads(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Expected %#v, got %#v", tc.want, got)
			}
		})
	}
}

func TestParamsToStrings_RoundTrip(t *testing.T) {
	tool := loadTool(t, conditionalToolXML, &App{})
	values := map[string]interface{}{
		"a": int64(5),
		"b": []interface{}{
			map[string]interface{}{"__index__": 0, "c": int64(7)},
		},
		"cond":         map[string]interface{}{"__current_case__": 1, "type": "b", "y": "v"},
		"__rerun__":    "undeclared",
		"__job_id__":   int64(3),
		"__workflow__": nil,
	}

	strs, err := ParamsToStrings(tool.Inputs, values, nil, false)
	if err != nil {
		t.Fatalf("Failed to convert to strings: %v", err)
	}
	if strs["a"] != `"5"` {
		t.Errorf("Expected \"5\", got %s", strs["a"])
	}
	if strs["b"] != `[{"__index__": 0, "c": "7"}]` {
		t.Errorf("Unexpected repeat encoding: %s", strs["b"])
	}
	if strs["cond"] != `{"__current_case__": 1, "type": "b", "y": "v"}` {
		t.Errorf("Unexpected conditional encoding: %s", strs["cond"])
	}
	if strs["__workflow__"] != "null" {
		t.Errorf("Expected null, got %s", strs["__workflow__"])
	}

	restored, err := ParamsFromStrings(context.Background(), tool.Inputs, strs, nil, false)
	if err != nil {
		t.Fatalf("Failed to restore from strings: %v", err)
	}
	if restored["a"] != int64(5) {
		t.Errorf("Expected 5, got %v (%T)", restored["a"], restored["a"])
	}
	block := restored["b"].([]interface{})[0].(map[string]interface{})
	if block["__index__"] != 0 || block["c"] != int64(7) {
		t.Errorf("Unexpected restored block: %v", block)
	}
	cond := restored["cond"].(map[string]interface{})
	if cond["__current_case__"] != 1 || cond["y"] != "v" {
		t.Errorf("Unexpected restored conditional: %v", cond)
	}
	if restored["__rerun__"] != "undeclared" {
		t.Errorf("Expected undeclared value to be kept, got %v", restored["__rerun__"])
	}
	// Undeclared scalars stay in their text form.
	if restored["__job_id__"] != "3" {
		t.Errorf("Expected \"3\", got %v", restored["__job_id__"])
	}
}

func TestParamsFromStrings_IgnoreErrors(t *testing.T) {
	tool := loadTool(t, conditionalToolXML, &App{})
	strs := map[string]string{"a": `"not a number"`}

	if _, err := ParamsFromStrings(context.Background(), tool.Inputs, strs, nil, false); err == nil {
		t.Error("Expected error restoring an invalid integer")
	}
	restored, err := ParamsFromStrings(context.Background(), tool.Inputs, strs, nil, true)
	if err != nil {
		t.Fatalf("Expected errors to be ignored, got %v", err)
	}
	if restored["a"] != "not a number" {
		t.Errorf("Expected raw value to be kept, got %v", restored["a"])
	}
}

func TestRepeatToDictInfinity(t *testing.T) {
	tool := loadTool(t, conditionalToolXML, &App{})
	in, _ := tool.Inputs.Get("b")
	d := in.ToDict(nil, nil)
	if d["max"] != "__Infinity__" {
		t.Errorf("Expected __Infinity__, got %v", d["max"])
	}
	if d["min"] != 1 {
		t.Errorf("Expected min 1, got %v", d["min"])
	}
}

const basicRoundTripToolXML = `<tool id="basic" name="Basic">
  <inputs>
    <param name="f" type="float" value="1.5"/>
    <param name="ms" type="select" multiple="true">
      <option value="a">A</option>
      <option value="b">B</option>
    </param>
  </inputs>
</tool>`

func TestValueToBasic_RoundTrip(t *testing.T) {
	tool := loadTool(t, basicRoundTripToolXML, &App{})
	ctx := context.Background()

	for _, tc := range []struct {
		name     string
		param    string
		value    interface{}
		basic    interface{}
		restored interface{}
	}{
		{"float", "f", 1.5, "1.5", 1.5},
		{"whole float", "f", 2.0, "2.0", 2.0},
		{"multiple select", "ms", []interface{}{"a", "b"}, []string{"a", "b"}, []string{"a", "b"}},
		{"multiple select strings", "ms", []string{"b"}, []string{"b"}, []string{"b"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := param(t, tool, tc.param)
			basic, err := ValueToBasic(p, tc.value, tool.App(), false)
			if err != nil {
				t.Fatalf("Failed to convert value: %v", err)
			}
			if !reflect.DeepEqual(basic, tc.basic) {
				t.Errorf("Expected basic %#v, got %#v", tc.basic, basic)
			}
			restored, err := ValueFromBasic(ctx, p, basic, tool.App(), false)
			if err != nil {
				t.Fatalf("Failed to restore value: %v", err)
			}
			if !reflect.DeepEqual(restored, tc.restored) {
				t.Errorf("Expected %#v, got %#v", tc.restored, restored)
			}
		})
	}

	// Lists decoded from JSON arrive as []interface{}.
	restored, err := ValueFromBasic(ctx, param(t, tool, "ms"), []interface{}{"a", "b"}, tool.App(), false)
	if err != nil {
		t.Fatalf("Failed to restore value: %v", err)
	}
	if !reflect.DeepEqual(restored, []string{"a", "b"}) {
		t.Errorf("Expected [a b], got %#v", restored)
	}
}
