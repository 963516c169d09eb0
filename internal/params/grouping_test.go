package params

import (
	"context"
	"reflect"
	"testing"

	"github.com/galaxyproject/galaxy-params/internal/model"
)

const uploadToolXML = `<tool id="upload" name="Upload">
  <inputs>
    <param name="file_type" type="select">
      <option value="txt">txt</option>
      <option value="velvet">velvet</option>
    </param>
    <param name="file_count" type="text" value="auto"/>
    <upload_dataset name="files" title="Specify Files for Dataset">
      <param name="url_paste" type="text" value=""/>
    </upload_dataset>
  </inputs>
</tool>`

func loadUploadTool(t *testing.T) (*Tool, *UploadDataset) {
	t.Helper()
	registry := model.NewSimpleRegistry()
	registry.AddComposite("velvet", "Sequences", "Roadmaps", "Log")
	tool := loadTool(t, uploadToolXML, &App{Datatypes: registry})
	for _, input := range tool.Inputs {
		if u, ok := input.(*UploadDataset); ok {
			return tool, u
		}
	}
	t.Fatal("Upload group not found")
	return nil, nil
}

func TestUploadDataset_FileCount(t *testing.T) {
	_, u := loadUploadTool(t)

	tests := []struct {
		name   string
		values map[string]interface{}
		count  int
	}{
		{"default type", nil, 1},
		{"composite", map[string]interface{}{"file_type": "velvet"}, 3},
		{"auto", map[string]interface{}{"file_type": "velvet", "file_count": "auto"}, 3},
		{"explicit", map[string]interface{}{"file_type": "velvet", "file_count": "5"}, 5},
		{"explicit number", map[string]interface{}{"file_count": 2}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := u.FileCount(NewExpressionContext(tt.values, nil)); got != tt.count {
				t.Errorf("Expected %d files, got %d", tt.count, got)
			}
		})
	}
}

func TestUploadDataset_TitleByIndex(t *testing.T) {
	_, u := loadUploadTool(t)
	other := NewExpressionContext(map[string]interface{}{"file_type": "velvet", "file_count": "4"}, nil)

	for i, want := range []string{"Sequences", "Roadmaps", "Log", "Extra primary file", ""} {
		if got := u.TitleByIndex(i, other); got != want {
			t.Errorf("Expected title %q at %d, got %q", want, i, got)
		}
	}
	if got := u.TitleByIndex(0, nil); got != "main" {
		t.Errorf("Expected main for the default type, got %q", got)
	}
	if got := u.FileType(nil); got != "txt" {
		t.Errorf("Expected default file type txt, got %q", got)
	}
}

func TestUploadDataset_LegacyPopulate(t *testing.T) {
	tool, _ := loadUploadTool(t)
	trans := NewTrans(context.Background(), tool.App())

	tests := []struct {
		name     string
		incoming map[string]interface{}
		want     []string
	}{
		{"one block per file", map[string]interface{}{
			"file_type":         "velvet",
			"files_0|url_paste": "a",
			"files_2|url_paste": "c",
		}, []string{"a", "", "c"}},
		{"file count truncates", map[string]interface{}{
			"file_type":         "velvet",
			"file_count":        "1",
			"files_0|url_paste": "a",
			"files_1|url_paste": "b",
		}, []string{"a"}},
		{"file count extends", map[string]interface{}{
			"file_type":         "velvet",
			"file_count":        "4",
			"files_3|url_paste": "d",
		}, []string{"", "", "", "d"}},
		{"plain type", map[string]interface{}{
			"files_0|url_paste": "a",
		}, []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := map[string]interface{}{}
			errs := map[string]interface{}{}
			if err := PopulateState(trans, tool.Inputs, tt.incoming, state, errs, PopulateOptions{}); err != nil {
				t.Fatalf("Failed to populate state: %v", err)
			}
			if len(errs) != 0 {
				t.Fatalf("Expected no errors, got %v", errs)
			}
			blocks := state["files"].([]interface{})
			if len(blocks) != len(tt.want) {
				t.Fatalf("Expected %d blocks, got %d", len(tt.want), len(blocks))
			}
			for i, want := range tt.want {
				block := blocks[i].(map[string]interface{})
				if block["url_paste"] != want {
					t.Errorf("Expected block %d url_paste %q, got %v", i, want, block["url_paste"])
				}
				if block["__index__"] != i {
					t.Errorf("Expected block %d to carry its index, got %v", i, block["__index__"])
				}
			}
		})
	}
}

func TestUploadDataset_BasicRoundTrip(t *testing.T) {
	tool, u := loadUploadTool(t)
	ctx := context.Background()

	blocks := []interface{}{
		map[string]interface{}{"__index__": 0, "url_paste": "a"},
		map[string]interface{}{"__index__": 1, "url_paste": "b"},
	}
	basic, err := ValueToBasic(u, blocks, tool.App(), false)
	if err != nil {
		t.Fatalf("Failed to convert blocks: %v", err)
	}
	restored, err := ValueFromBasic(ctx, u, basic, tool.App(), false)
	if err != nil {
		t.Fatalf("Failed to restore blocks: %v", err)
	}
	if !reflect.DeepEqual(restored, blocks) {
		t.Errorf("Expected %v, got %v", blocks, restored)
	}

	// Indexes persisted as JSON numbers come back as ints; missing ones
	// take the block position.
	restored, err = ValueFromBasic(ctx, u, []interface{}{
		map[string]interface{}{"__index__": float64(0), "url_paste": "a"},
		map[string]interface{}{"url_paste": "b"},
	}, tool.App(), false)
	if err != nil {
		t.Fatalf("Failed to restore blocks: %v", err)
	}
	if !reflect.DeepEqual(restored, blocks) {
		t.Errorf("Expected %v, got %v", blocks, restored)
	}
}

const booleanConditionalToolXML = `<tool id="boolcond" name="Boolean conditional">
  <inputs>
    <conditional name="cond">
      <param name="flag" type="boolean" truevalue="yes" falsevalue="no"/>
      <when value="yes">
        <param name="x" type="float" value="2.5"/>
      </when>
      <when value="no"/>
    </conditional>
  </inputs>
</tool>`

func TestConditional_BooleanRoundTrip(t *testing.T) {
	tool := loadTool(t, booleanConditionalToolXML, &App{})
	cond := tool.Inputs[0]

	tests := []struct {
		name  string
		value map[string]interface{}
		basic map[string]interface{}
	}{
		{"true case",
			map[string]interface{}{"flag": true, "x": 0.5, "__current_case__": 0},
			map[string]interface{}{"flag": "true", "x": "0.5", "__current_case__": 0}},
		{"false case",
			map[string]interface{}{"flag": false, "__current_case__": 1},
			map[string]interface{}{"flag": "false", "__current_case__": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			basic, err := ValueToBasic(cond, tt.value, tool.App(), false)
			if err != nil {
				t.Fatalf("Failed to convert conditional: %v", err)
			}
			if !reflect.DeepEqual(basic, tt.basic) {
				t.Errorf("Expected basic %v, got %v", tt.basic, basic)
			}
			restored, err := ValueFromBasic(context.Background(), cond, basic, tool.App(), false)
			if err != nil {
				t.Fatalf("Failed to restore conditional: %v", err)
			}
			if !reflect.DeepEqual(restored, tt.value) {
				t.Errorf("Expected %v, got %v", tt.value, restored)
			}
		})
	}
}
