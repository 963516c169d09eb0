package params

import (
	"context"
	"strings"
	"testing"
)

const nestedToolXML = `<tool id="nested" name="Nested">
  <inputs>
    <param name="a" type="integer" value="1"/>
    <repeat name="b" title="B">
      <param name="c" type="integer" value="3"/>
      <repeat name="d" title="D">
        <param name="e" type="integer" value="5"/>
        <section name="f" title="F">
          <param name="g" type="boolean"/>
          <param name="h" type="integer" value="7"/>
        </section>
      </repeat>
    </repeat>
  </inputs>
</tool>`

func nestedValues() map[string]interface{} {
	return map[string]interface{}{
		"a": 1,
		"b": []interface{}{
			map[string]interface{}{
				"c": 3,
				"d": []interface{}{
					map[string]interface{}{
						"e": 5,
						"f": map[string]interface{}{"g": true, "h": 7},
					},
				},
			},
		},
	}
}

func TestVisitInputValues(t *testing.T) {
	tool := loadTool(t, nestedToolXML, &App{})
	values := nestedValues()

	var names, labels []string
	VisitInputValues(tool.Inputs, values, func(args VisitArgs) interface{} {
		names = append(names, args.PrefixedName)
		labels = append(labels, args.PrefixedLabel)
		return nil
	}, VisitOptions{})

	want := "a,b_0|c,b_0|d_0|e,b_0|d_0|f|g,b_0|d_0|f|h"
	if strings.Join(names, ",") != want {
		t.Errorf("Expected %s, got %v", want, names)
	}
	if labels[2] != "B 1 > D 1 > e" {
		t.Errorf("Expected label 'B 1 > D 1 > e', got %q", labels[2])
	}

	block := values["b"].([]interface{})[0].(map[string]interface{})
	if block["__index__"] != 0 {
		t.Errorf("Expected __index__ 0, got %v", block["__index__"])
	}
}

func TestVisitInputValues_Replace(t *testing.T) {
	tool := loadTool(t, nestedToolXML, &App{})
	values := nestedValues()

	VisitInputValues(tool.Inputs, values, func(args VisitArgs) interface{} {
		if args.PrefixedName == "b_0|d_0|f|h" {
			return 70
		}
		return nil
	}, VisitOptions{})

	f := values["b"].([]interface{})[0].(map[string]interface{})["d"].([]interface{})[0].(map[string]interface{})["f"].(map[string]interface{})
	if f["h"] != 70 {
		t.Errorf("Expected h to be replaced, got %v", f["h"])
	}
	if values["a"] != 1 {
		t.Errorf("Expected a to be kept, got %v", values["a"])
	}
}

func TestVisitInputValues_MissingValue(t *testing.T) {
	tool := loadTool(t, nestedToolXML, &App{})

	var errs []string
	VisitInputValues(tool.Inputs, map[string]interface{}{}, func(args VisitArgs) interface{} {
		if args.Error != "" {
			errs = append(errs, args.Error)
		}
		return nil
	}, VisitOptions{})

	if len(errs) != 1 || errs[0] != "No value found for 'a'." {
		t.Errorf("Expected one missing value error for a, got %v", errs)
	}
}

const conditionalToolXML = `<tool id="cond" name="Conditional">
  <inputs>
    <param name="a" type="integer" value="1"/>
    <repeat name="b" title="B" min="1">
      <param name="c" type="integer" value="3"/>
    </repeat>
    <conditional name="cond">
      <param name="type" type="select">
        <option value="a">A</option>
        <option value="b">B</option>
      </param>
      <when value="a">
        <param name="x" type="text" value=""/>
      </when>
      <when value="b">
        <param name="y" type="text" value="why"/>
      </when>
    </conditional>
  </inputs>
</tool>`

func TestVisitInputValues_Conditional(t *testing.T) {
	tool := loadTool(t, conditionalToolXML, &App{})
	values := map[string]interface{}{
		"a":    1,
		"b":    []interface{}{},
		"cond": map[string]interface{}{"type": "b", "y": "v"},
	}

	var names []string
	VisitInputValues(tool.Inputs, values, func(args VisitArgs) interface{} {
		names = append(names, args.PrefixedName)
		return nil
	}, VisitOptions{})

	if strings.Join(names, ",") != "a,cond|type,cond|y" {
		t.Errorf("Expected a,cond|type,cond|y, got %v", names)
	}
	if values["cond"].(map[string]interface{})["__current_case__"] != 1 {
		t.Errorf("Expected current case 1, got %v", values["cond"])
	}
}

func TestVisitInputValues_UnresolvableCase(t *testing.T) {
	tool := loadTool(t, conditionalToolXML, &App{})
	values := map[string]interface{}{
		"a":    1,
		"b":    []interface{}{},
		"cond": map[string]interface{}{"type": "zzz"},
	}

	visited := map[string]string{}
	VisitInputValues(tool.Inputs, values, func(args VisitArgs) interface{} {
		visited[args.PrefixedName] = args.Error
		return nil
	}, VisitOptions{})

	if visited["cond|type"] != caseUnavailable {
		t.Errorf("Expected %q, got %q", caseUnavailable, visited["cond|type"])
	}
	if _, ok := visited["cond|x"]; ok {
		t.Error("Expected case children to be skipped")
	}
	if _, ok := visited["cond|y"]; ok {
		t.Error("Expected case children to be skipped")
	}
}

func TestUpdateParam(t *testing.T) {
	var blocks []interface{}
	for i := 0; i < 12; i++ {
		blocks = append(blocks, map[string]interface{}{"c": i})
	}
	values := map[string]interface{}{
		"b":    blocks,
		"s":    map[string]interface{}{"x": 1},
		"flat": "old",
	}

	UpdateParam("b_11|c", values, 99)
	UpdateParam("s|x", values, 2)
	UpdateParam("flat", values, "new")

	if blocks[11].(map[string]interface{})["c"] != 99 {
		t.Errorf("Expected b_11|c to be 99, got %v", blocks[11])
	}
	if blocks[1].(map[string]interface{})["c"] != 1 {
		t.Errorf("Expected b_1|c to be unchanged, got %v", blocks[1])
	}
	if values["s"].(map[string]interface{})["x"] != 2 {
		t.Errorf("Expected s|x to be 2, got %v", values["s"])
	}
	if values["flat"] != "new" {
		t.Errorf("Expected flat to be new, got %v", values["flat"])
	}
}

func TestNestIncoming(t *testing.T) {
	nested := NestIncoming(map[string]interface{}{
		"a":     1,
		"b_0|c": 3,
		"b_1|c": 4,
		"s|x":   2,
	})

	blocks, ok := nested["b"].([]interface{})
	if !ok || len(blocks) != 2 {
		t.Fatalf("Expected two repeat blocks, got %v", nested["b"])
	}
	if blocks[1].(map[string]interface{})["c"] != 4 {
		t.Errorf("Expected b_1|c to be 4, got %v", blocks[1])
	}
	if nested["s"].(map[string]interface{})["x"] != 2 {
		t.Errorf("Expected s|x to be 2, got %v", nested["s"])
	}
	if nested["a"] != 1 {
		t.Errorf("Expected a to be 1, got %v", nested["a"])
	}
}

func TestProcessKey_EmptyDoesNotClobber(t *testing.T) {
	d := map[string]interface{}{"b": []interface{}{map[string]interface{}{"c": 1}}}
	ProcessKey("b", "", d)
	if _, ok := d["b"].([]interface{}); !ok {
		t.Errorf("Expected repeat to survive an empty value, got %v", d["b"])
	}
}

func TestParamsToIncoming(t *testing.T) {
	tool := loadTool(t, conditionalToolXML, &App{})
	values := map[string]interface{}{
		"a": int64(5),
		"b": []interface{}{
			map[string]interface{}{"__index__": 0, "c": int64(7)},
			map[string]interface{}{"__index__": 1, "c": int64(8)},
		},
		"cond": map[string]interface{}{"__current_case__": 1, "type": "b", "y": "v"},
	}

	incoming := map[string]interface{}{}
	ParamsToIncoming(incoming, tool.Inputs, values, "")

	want := map[string]interface{}{
		"a":         int64(5),
		"b_0|c":     int64(7),
		"b_1|c":     int64(8),
		"cond|type": "b",
		"cond|y":    "v",
	}
	if len(incoming) != len(want) {
		t.Fatalf("Expected %d keys, got %v", len(want), incoming)
	}
	for k, v := range want {
		if incoming[k] != v {
			t.Errorf("Expected %s = %v, got %v", k, v, incoming[k])
		}
	}

	// Round trip through the legacy request format.
	state := map[string]interface{}{}
	errs := map[string]interface{}{}
	trans := NewTrans(context.Background(), tool.App())
	if err := PopulateState(trans, tool.Inputs, incoming, state, errs, PopulateOptions{}); err != nil {
		t.Fatalf("Failed to populate state: %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("Expected no errors, got %v", errs)
	}
	if len(state["b"].([]interface{})) != 2 {
		t.Errorf("Expected two blocks, got %v", state["b"])
	}
}
