package metaexpand

import (
	"context"
	"testing"

	"github.com/galaxyproject/galaxy-params/internal/params"
	"github.com/galaxyproject/galaxy-params/internal/toolsource"
)

func TestExpandJobs(t *testing.T) {
	app := &params.App{}
	tool := loadMetaTool(t, app)
	trans := params.NewTrans(context.Background(), app)

	expansion, err := ExpandJobs(trans, tool, map[string]interface{}{
		"zeta":  batch(false, "1", "2"),
		"alpha": "a",
	}, "")
	if err != nil {
		t.Fatalf("Failed to expand jobs: %v", err)
	}
	if len(expansion.Errors) != 0 {
		t.Fatalf("Expected no errors, got %v", expansion.Errors)
	}
	if len(expansion.Params) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(expansion.Params))
	}
	if expansion.Params[1]["zeta"] != `"2"` || expansion.Params[1]["alpha"] != `"a"` {
		t.Errorf("Unexpected second job: %v", expansion.Params[1])
	}
	if expansion.Params[0]["input1"] != "null" {
		t.Errorf("Expected empty optional dataset to be null, got %s", expansion.Params[0]["input1"])
	}
}

func TestExpandJobs_UnknownFormat(t *testing.T) {
	app := &params.App{}
	tool := loadMetaTool(t, app)
	trans := params.NewTrans(context.Background(), app)

	if _, err := ExpandJobs(trans, tool, map[string]interface{}{"zeta": "1"}, "99.01"); err == nil {
		t.Error("Expected error for unknown input format")
	}
}

const nestedToolXML = `<tool id="nested" name="Nested" version="1.0">
  <inputs>
    <section name="sec" title="Section">
      <param name="n" type="integer" value="0"/>
    </section>
    <repeat name="rep" title="Block">
      <param name="word" type="text" value=""/>
    </repeat>
  </inputs>
</tool>`

func loadNestedTool(t *testing.T, app *params.App) *params.Tool {
	t.Helper()
	src, err := toolsource.ParseXML([]byte(nestedToolXML))
	if err != nil {
		t.Fatalf("Failed to parse tool: %v", err)
	}
	tool, err := params.NewTool(src, app)
	if err != nil {
		t.Fatalf("Failed to load tool: %v", err)
	}
	return tool
}

func TestExpandJobs_NestedSection(t *testing.T) {
	app := &params.App{}
	tool := loadNestedTool(t, app)
	trans := params.NewTrans(context.Background(), app)

	expansion, err := ExpandJobs(trans, tool, map[string]interface{}{
		"sec": map[string]interface{}{"n": batch(false, "1", "2")},
	}, params.FormatNested)
	if err != nil {
		t.Fatalf("Failed to expand jobs: %v", err)
	}
	if len(expansion.Errors) != 0 {
		t.Fatalf("Expected no errors, got %v", expansion.Errors)
	}
	if len(expansion.Params) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(expansion.Params))
	}
}

func TestExpandNestedMetaParameters(t *testing.T) {
	app := &params.App{}
	tool := loadNestedTool(t, app)
	trans := params.NewTrans(context.Background(), app)

	incoming := map[string]interface{}{
		"sec": map[string]interface{}{"n": "3"},
		"rep": []interface{}{
			map[string]interface{}{"word": batch(false, "a", "b")},
			map[string]interface{}{"word": "c", "extra": "kept"},
		},
	}
	runs, matching, err := ExpandNestedMetaParameters(trans, tool, incoming)
	if err != nil {
		t.Fatalf("Failed to expand: %v", err)
	}
	if matching != nil {
		t.Errorf("Expected no matched collections, got %v", matching)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	for i, want := range []string{"a", "b"} {
		blocks := runs[i]["rep"].([]interface{})
		first := blocks[0].(map[string]interface{})
		if first["word"] != want {
			t.Errorf("Expected run %d word %s, got %v", i, want, first["word"])
		}
		second := blocks[1].(map[string]interface{})
		if second["word"] != "c" || second["extra"] != "kept" {
			t.Errorf("Expected second block unchanged, got %v", second)
		}
		if sec := runs[i]["sec"].(map[string]interface{}); sec["n"] != "3" {
			t.Errorf("Expected sec.n 3, got %v", sec["n"])
		}
	}

	first := incoming["rep"].([]interface{})[0].(map[string]interface{})
	if _, ok := first["word"].(map[string]interface{}); !ok {
		t.Error("Expected the request to be left unchanged")
	}
}
