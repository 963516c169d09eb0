package params

import (
	"context"
	"strings"
	"testing"

	"github.com/galaxyproject/galaxy-params/internal/model"
	"github.com/galaxyproject/galaxy-params/internal/security"
)

const dataToolXML = `<tool id="data" name="Data">
  <inputs>
    <param name="input1" type="data" format="tabular"/>
    <param name="many" type="data" format="tabular" multiple="true" min="1" max="2" optional="true"/>
    <param name="coll" type="data_collection" collection_type="list" optional="true"/>
  </inputs>
</tool>`

type dataFixture struct {
	store *model.MemoryStore
	app   *App
	tool  *Tool
	trans *Trans
}

func newDataFixture(t *testing.T) *dataFixture {
	t.Helper()
	store := model.NewMemoryStore()
	registry := model.NewSimpleRegistry()
	registry.AddDatatype("tabular", "data")
	registry.AddDatatype("interval", "tabular")
	registry.AddDatatype("csv", "data")
	registry.AddConverter("csv", "tabular")

	app := &App{Datastore: store, Datatypes: registry}
	f := &dataFixture{store: store, app: app, tool: loadTool(t, dataToolXML, app)}
	f.trans = NewTrans(context.Background(), app)
	f.trans.History = &model.History{ID: 1}

	for _, hda := range []*model.HDA{
		tabularHDA(1, 3),
		{ID: 2, HID: 2, Name: "deleted", Extension: "tabular", Deleted: true,
			Dataset: &model.Dataset{ID: 2, State: model.StateOK}},
		{ID: 3, HID: 3, Name: "failed", Extension: "tabular",
			Dataset: &model.Dataset{ID: 3, State: model.StateError}},
		{ID: 4, HID: 4, Name: "csv", Extension: "csv", Visible: true,
			Dataset: &model.Dataset{ID: 4, State: model.StateOK}},
		{ID: 5, HID: 5, Name: "interval", Extension: "interval", Visible: true,
			Dataset: &model.Dataset{ID: 5, State: model.StateOK}},
	} {
		store.AddHDA(hda)
		f.trans.History.Datasets = append(f.trans.History.Datasets, hda)
	}
	store.AddHDCA(&model.HDCA{ID: 9, HID: 6, Name: "list", Collection: &model.DatasetCollection{
		ID: 9, CollectionType: "list", Populated: true,
		Elements: []*model.DatasetCollectionElement{
			{ID: 90, ElementIdentifier: "e1", HDA: tabularHDA(91, 2)},
		},
	}})
	return f
}

func TestDataFromJSON_SrcDict(t *testing.T) {
	f := newDataFixture(t)
	p := param(t, f.tool, "input1")

	v, err := p.FromJSON(f.trans, map[string]interface{}{"src": "hda", "id": 1}, nil)
	if err != nil {
		t.Fatalf("Failed to resolve dataset: %v", err)
	}
	hda, ok := v.(*model.HDA)
	if !ok || hda.ID != 1 {
		t.Errorf("Expected hda 1, got %v", v)
	}
}

func TestDataFromJSON_ValuesDict(t *testing.T) {
	f := newDataFixture(t)
	p := param(t, f.tool, "input1")

	value := map[string]interface{}{
		"values": []interface{}{map[string]interface{}{"src": "hda", "id": 5}},
	}
	v, err := p.FromJSON(f.trans, value, nil)
	if err != nil {
		t.Fatalf("Failed to resolve dataset: %v", err)
	}
	if hda, ok := v.(*model.HDA); !ok || hda.ID != 5 {
		t.Errorf("Expected hda 5, got %v", v)
	}
}

func TestDataFromJSON_Rejects(t *testing.T) {
	f := newDataFixture(t)
	p := param(t, f.tool, "input1")

	for _, tc := range []struct {
		name  string
		value interface{}
		want  string
	}{
		{"deleted", map[string]interface{}{"src": "hda", "id": 2}, "has been deleted"},
		{"failed", map[string]interface{}{"src": "hda", "id": 3}, "unusable state"},
		{"missing", nil, "specify a dataset of the required format"},
		{"unknown source", map[string]interface{}{"src": "ftp", "id": 1}, "Unknown input source ftp"},
		{"several", []interface{}{int64(1), int64(5)}, "more than one dataset"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.FromJSON(f.trans, tc.value, nil)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestDataFromJSON_ImplicitConversion(t *testing.T) {
	f := newDataFixture(t)
	p := param(t, f.tool, "input1")

	v, err := p.FromJSON(f.trans, map[string]interface{}{"src": "hda", "id": 4}, nil)
	if err != nil {
		t.Fatalf("Failed to resolve dataset: %v", err)
	}
	hda := v.(*model.HDA)
	if !hda.ImplicitConversion {
		t.Error("Expected selection to be marked for implicit conversion")
	}
	stored, _ := f.store.GetHDA(context.Background(), 4)
	if stored.ImplicitConversion {
		t.Error("Expected the stored dataset not to be modified")
	}
}

func TestDataFromJSON_Multiple(t *testing.T) {
	f := newDataFixture(t)
	p := param(t, f.tool, "many")

	v, err := p.FromJSON(f.trans, "1,5", nil)
	if err != nil {
		t.Fatalf("Failed to resolve datasets: %v", err)
	}
	list, ok := v.([]interface{})
	if !ok || len(list) != 2 {
		t.Fatalf("Expected two datasets, got %v", v)
	}
	if err := p.Validate(f.trans, list); err != nil {
		t.Errorf("Expected two datasets to validate, got %v", err)
	}
	three := append(list, list[0])
	if err := p.Validate(f.trans, three); err == nil || !strings.Contains(err.Error(), "At most 2") {
		t.Errorf("Expected max error, got %v", err)
	}
}

func TestDataParameter_MinOnSingle(t *testing.T) {
	app := &App{}
	src := `<tool id="bad"><inputs><param name="d" type="data" min="1"/></inputs></tool>`
	tool, err := loadToolErr(src, app)
	if err == nil {
		t.Fatalf("Expected error for min on single data parameter, got tool %v", tool.ID)
	}
	if !strings.Contains(err.Error(), "cannot specify 'min' property on single data parameter 'd'") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestDataGetInitialValue(t *testing.T) {
	f := newDataFixture(t)
	p := param(t, f.tool, "input1")

	v, err := p.GetInitialValue(f.trans, nil)
	if err != nil {
		t.Fatalf("Failed to get initial value: %v", err)
	}
	// The most recent visible match wins.
	if hda, ok := v.(*model.HDA); !ok || hda.ID != 5 {
		t.Errorf("Expected hda 5, got %v", v)
	}

	f.trans.WorkflowBuildingMode = true
	v, _ = p.GetInitialValue(f.trans, nil)
	if _, ok := v.(RuntimeValue); !ok {
		t.Errorf("Expected RuntimeValue in workflow mode, got %T", v)
	}
}

func TestDataToJSON_Encoded(t *testing.T) {
	enc, err := security.NewBlowfishEncoder("a-secret-for-ids")
	if err != nil {
		t.Fatalf("Failed to create encoder: %v", err)
	}
	f := newDataFixture(t)
	f.app.Security = enc
	p := param(t, f.tool, "input1")

	hda, _ := f.store.GetHDA(context.Background(), 1)
	basic, err := ValueToBasic(p, hda, f.app, true)
	if err != nil {
		t.Fatalf("Failed to convert dataset: %v", err)
	}
	values := basic.(map[string]interface{})["values"].([]interface{})
	ref := values[0].(map[string]interface{})
	if ref["src"] != "hda" || ref["id"] != enc.EncodeID(1) {
		t.Errorf("Unexpected reference: %v", ref)
	}

	restored, err := ValueFromBasic(context.Background(), p, basic, f.app, false)
	if err != nil {
		t.Fatalf("Failed to restore dataset: %v", err)
	}
	if r, ok := restored.(*model.HDA); !ok || r.ID != 1 {
		t.Errorf("Expected hda 1, got %v", restored)
	}
}

func TestDataCollectionFromJSON(t *testing.T) {
	f := newDataFixture(t)
	p := param(t, f.tool, "coll")

	v, err := p.FromJSON(f.trans, map[string]interface{}{"src": "hdca", "id": 9}, nil)
	if err != nil {
		t.Fatalf("Failed to resolve collection: %v", err)
	}
	if hdca, ok := v.(*model.HDCA); !ok || hdca.ID != 9 {
		t.Errorf("Expected hdca 9, got %v", v)
	}

	v, err = p.FromJSON(f.trans, "dce:90", nil)
	if err != nil {
		t.Fatalf("Failed to resolve element: %v", err)
	}
	if dce, ok := v.(*model.DatasetCollectionElement); !ok || dce.ID != 90 {
		t.Errorf("Expected dce 90, got %v", v)
	}
}

func TestDataBasicRoundTrip(t *testing.T) {
	enc, err := security.NewBlowfishEncoder("a-secret-for-ids")
	if err != nil {
		t.Fatalf("Failed to create encoder: %v", err)
	}
	ctx := context.Background()

	for _, useSecurity := range []bool{false, true} {
		f := newDataFixture(t)
		f.app.Security = enc
		one, _ := f.store.GetHDA(ctx, 1)
		five, _ := f.store.GetHDA(ctx, 5)

		for _, tc := range []struct {
			param string
			value interface{}
			ids   []int64
		}{
			{"input1", one, []int64{1}},
			{"many", []interface{}{one, five}, []int64{1, 5}},
		} {
			p := param(t, f.tool, tc.param)
			basic, err := ValueToBasic(p, tc.value, f.app, useSecurity)
			if err != nil {
				t.Fatalf("Failed to convert %s: %v", tc.param, err)
			}
			refs := basic.(map[string]interface{})["values"].([]interface{})
			if len(refs) != len(tc.ids) {
				t.Fatalf("Expected %d references, got %v", len(tc.ids), refs)
			}
			for i, id := range tc.ids {
				var want interface{} = id
				if useSecurity {
					want = enc.EncodeID(id)
				}
				if got := refs[i].(map[string]interface{})["id"]; got != want {
					t.Errorf("Expected %s id %v (security %v), got %v", tc.param, want, useSecurity, got)
				}
			}

			restored, err := ValueFromBasic(ctx, p, basic, f.app, false)
			if err != nil {
				t.Fatalf("Failed to restore %s: %v", tc.param, err)
			}
			var got []int64
			for _, v := range listify(restored) {
				hda, ok := v.(*model.HDA)
				if !ok {
					t.Fatalf("Expected datasets, got %T", v)
				}
				got = append(got, hda.ID)
			}
			if len(got) != len(tc.ids) || got[0] != tc.ids[0] || got[len(got)-1] != tc.ids[len(tc.ids)-1] {
				t.Errorf("Expected ids %v (security %v), got %v", tc.ids, useSecurity, got)
			}
			if tc.param == "input1" {
				if _, single := restored.(*model.HDA); !single {
					t.Errorf("Expected a single dataset, got %T", restored)
				}
			}
		}
	}
}
