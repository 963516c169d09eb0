package metaexpand

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/galaxyproject/galaxy-params/internal/model"
	"github.com/galaxyproject/galaxy-params/internal/params"
	"github.com/galaxyproject/galaxy-params/internal/toolsource"
)

const metaToolXML = `<tool id="meta" name="Meta" version="1.0">
  <inputs>
    <param name="zeta" type="text" value=""/>
    <param name="alpha" type="text" value=""/>
    <param name="input1" type="data" format="txt" optional="true"/>
  </inputs>
</tool>`

func loadMetaTool(t *testing.T, app *params.App) *params.Tool {
	t.Helper()
	src, err := toolsource.ParseXML([]byte(metaToolXML))
	if err != nil {
		t.Fatalf("Failed to parse tool: %v", err)
	}
	tool, err := params.NewTool(src, app)
	if err != nil {
		t.Fatalf("Failed to load tool: %v", err)
	}
	return tool
}

func batch(product bool, values ...interface{}) map[string]interface{} {
	w := map[string]interface{}{"batch": true, "values": values}
	if product {
		w["product"] = true
	}
	return w
}

func TestExpandMetaParameters_ToolOrder(t *testing.T) {
	app := &params.App{}
	tool := loadMetaTool(t, app)
	trans := params.NewTrans(context.Background(), app)

	// Tool order puts zeta before alpha, so zeta varies slowest.
	incoming := map[string]interface{}{
		"alpha": batch(true, "x", "y"),
		"zeta":  batch(true, "1", "2"),
	}
	expanded, matching, err := ExpandMetaParameters(trans, tool, incoming)
	if err != nil {
		t.Fatalf("Failed to expand request: %v", err)
	}
	if matching != nil {
		t.Error("Expected no collection matching")
	}
	var got []string
	for _, e := range expanded {
		got = append(got, fmt.Sprint(e["zeta"], e["alpha"]))
	}
	want := "1x,1y,2x,2y"
	if strings.Join(got, ",") != want {
		t.Errorf("Expected %s, got %v", want, got)
	}
}

func TestExpandMetaParameters_DropsIdentifiers(t *testing.T) {
	app := &params.App{}
	tool := loadMetaTool(t, app)
	trans := params.NewTrans(context.Background(), app)

	incoming := map[string]interface{}{
		"zeta":                    "plain",
		"input1|__identifier__":   "sample",
		"alpha":                   map[string]interface{}{"values": []interface{}{"only"}},
		"undeclared_request_flag": true,
	}
	expanded, _, err := ExpandMetaParameters(trans, tool, incoming)
	if err != nil {
		t.Fatalf("Failed to expand request: %v", err)
	}
	if len(expanded) != 1 {
		t.Fatalf("Expected 1 expansion, got %d", len(expanded))
	}
	run := expanded[0]
	if _, ok := run["input1|__identifier__"]; ok {
		t.Error("Expected identifier keys to be dropped")
	}
	if run["zeta"] != "plain" || run["undeclared_request_flag"] != true {
		t.Errorf("Expected single values to be kept, got %v", run)
	}
	// A non-batch wrapper is unwrapped to its values.
	if vals, ok := run["alpha"].([]interface{}); !ok || len(vals) != 1 || vals[0] != "only" {
		t.Errorf("Expected unwrapped values, got %v", run["alpha"])
	}
}

func TestExpandMetaParameters_LinkedMismatch(t *testing.T) {
	app := &params.App{}
	tool := loadMetaTool(t, app)
	trans := params.NewTrans(context.Background(), app)

	incoming := map[string]interface{}{
		"alpha": batch(false, "x", "y"),
		"zeta":  batch(false, "1", "2", "3"),
	}
	_, _, err := ExpandMetaParameters(trans, tool, incoming)
	var invalid *RequestParameterInvalidError
	if !errors.As(err, &invalid) {
		t.Errorf("Expected RequestParameterInvalidError, got %v", err)
	}
}

func TestExpandMetaParameters_CollectionMultirun(t *testing.T) {
	store := model.NewMemoryStore()
	store.AddHDCA(&model.HDCA{ID: 5, HID: 3, Name: "samples", Collection: listCollection(5, "s1", "s2")})
	app := &params.App{Datastore: store}
	tool := loadMetaTool(t, app)
	trans := params.NewTrans(context.Background(), app)

	incoming := map[string]interface{}{
		"input1": map[string]interface{}{
			"batch":  true,
			"values": []interface{}{map[string]interface{}{"src": "hdca", "id": 5}},
		},
	}
	expanded, matching, err := ExpandMetaParameters(trans, tool, incoming)
	if err != nil {
		t.Fatalf("Failed to expand request: %v", err)
	}
	if len(expanded) != 2 {
		t.Fatalf("Expected 2 expansions, got %d", len(expanded))
	}
	hda, ok := expanded[1]["input1"].(*model.HDA)
	if !ok {
		t.Fatalf("Expected *model.HDA, got %T", expanded[1]["input1"])
	}
	if hda.ID != 501 || hda.ElementIdentifier != "s2" {
		t.Errorf("Expected dataset 501 identified as s2, got %d %s", hda.ID, hda.ElementIdentifier)
	}
	if matching == nil || !matching.IsMappedOver("input1") {
		t.Error("Expected input1 to be mapped over")
	}
}

func TestExpandMetaParameters_Subcollection(t *testing.T) {
	store := model.NewMemoryStore()
	pair := func(id int64) *model.DatasetCollection {
		c := listCollection(id, "forward", "reverse")
		c.CollectionType = "paired"
		return c
	}
	store.AddHDCA(&model.HDCA{ID: 7, Collection: &model.DatasetCollection{
		ID:             7,
		CollectionType: "list:paired",
		Populated:      true,
		Elements: []*model.DatasetCollectionElement{
			{ID: 70, ElementIdentifier: "a", ChildCollection: pair(8)},
			{ID: 71, ElementIdentifier: "b", ChildCollection: pair(9)},
		},
	}})
	app := &params.App{Datastore: store}
	tool := loadMetaTool(t, app)
	trans := params.NewTrans(context.Background(), app)

	incoming := map[string]interface{}{
		"input1": batch(false, map[string]interface{}{"src": "hdca", "id": 7, "map_over_type": "paired"}),
	}
	expanded, matching, err := ExpandMetaParameters(trans, tool, incoming)
	if err != nil {
		t.Fatalf("Failed to expand request: %v", err)
	}
	if len(expanded) != 2 {
		t.Fatalf("Expected 2 expansions, got %d", len(expanded))
	}
	dce, ok := expanded[0]["input1"].(*model.DatasetCollectionElement)
	if !ok || dce.ID != 70 {
		t.Errorf("Expected element 70, got %v", expanded[0]["input1"])
	}
	if matching.SubcollectionMappingType("input1") != "paired" {
		t.Errorf("Expected paired mapping, got %q", matching.SubcollectionMappingType("input1"))
	}
}

func TestExpandMetaParameters_NotPopulated(t *testing.T) {
	store := model.NewMemoryStore()
	c := listCollection(6, "s1")
	c.Populated = false
	store.AddHDCA(&model.HDCA{ID: 6, Collection: c})
	app := &params.App{Datastore: store}
	tool := loadMetaTool(t, app)
	trans := params.NewTrans(context.Background(), app)

	incoming := map[string]interface{}{
		"input1": batch(false, map[string]interface{}{"src": "hdca", "id": 6}),
	}
	_, _, err := ExpandMetaParameters(trans, tool, incoming)
	var notReady *ToolInputsNotReadyError
	if !errors.As(err, &notReady) {
		t.Errorf("Expected ToolInputsNotReadyError, got %v", err)
	}
}

func hids(runs []WorkflowRun, get func(WorkflowRun) []interface{}) []string {
	var out []string
	for _, r := range runs {
		s := ""
		for _, v := range get(r) {
			s += fmt.Sprint(v.(map[string]interface{})["hid"])
		}
		out = append(out, s)
	}
	return out
}

func stepInput(steps ...string) func(WorkflowRun) []interface{} {
	return func(r WorkflowRun) []interface{} {
		var out []interface{}
		for _, s := range steps {
			out = append(out, r.Params[s]["input"])
		}
		return out
	}
}

func hidValues(hids ...string) []interface{} {
	out := make([]interface{}, len(hids))
	for i, h := range hids {
		out[i] = map[string]interface{}{"hid": h}
	}
	return out
}

func TestExpandWorkflowInputs_Linked(t *testing.T) {
	runs, err := ExpandWorkflowInputs(map[string]map[string]interface{}{
		"1": {"input": batch(false, hidValues("1", "2")...)},
		"2": {"input": batch(false, hidValues("3", "4")...)},
	}, nil)
	if err != nil {
		t.Fatalf("Failed to expand workflow inputs: %v", err)
	}
	got := hids(runs, stepInput("1", "2"))
	if strings.Join(got, ",") != "13,24" {
		t.Errorf("Expected 13,24, got %v", got)
	}
	if strings.Join(runs[1].HIDs, ",") != "2,4" {
		t.Errorf("Expected hid labels 2,4, got %v", runs[1].HIDs)
	}
}

func TestExpandWorkflowInputs_ProductWithLinked(t *testing.T) {
	runs, err := ExpandWorkflowInputs(map[string]map[string]interface{}{
		"1": {"input": batch(true, hidValues("1", "2")...)},
		"2": {"input": batch(false, hidValues("3", "4", "5")...)},
	}, nil)
	if err != nil {
		t.Fatalf("Failed to expand workflow inputs: %v", err)
	}
	got := hids(runs, stepInput("1", "2"))
	want := "13,23,14,24,15,25"
	if strings.Join(got, ",") != want {
		t.Errorf("Expected %s, got %v", want, got)
	}
}

func TestExpandWorkflowInputs_ThreeProducts(t *testing.T) {
	runs, err := ExpandWorkflowInputs(map[string]map[string]interface{}{
		"1": {"input": batch(true, hidValues("1", "2")...)},
		"2": {"input": batch(true, hidValues("3", "4", "5")...)},
		"3": {"input": batch(true, hidValues("6", "7", "8")...)},
	}, nil)
	if err != nil {
		t.Fatalf("Failed to expand workflow inputs: %v", err)
	}
	got := hids(runs, stepInput("1", "2", "3"))
	want := "136,137,138,146,147,148,156,157,158,236,237,238,246,247,248,256,257,258"
	if strings.Join(got, ",") != want {
		t.Errorf("Expected %s, got %v", want, got)
	}
}

func TestExpandWorkflowInputs_Inputs(t *testing.T) {
	runs, err := ExpandWorkflowInputs(nil, map[string]interface{}{
		"myinput": batch(true, hidValues("1", "2")...),
	})
	if err != nil {
		t.Fatalf("Failed to expand workflow inputs: %v", err)
	}
	var got []string
	for _, r := range runs {
		got = append(got, fmt.Sprint(r.Inputs["myinput"].(map[string]interface{})["hid"]))
	}
	if strings.Join(got, ",") != "1,2" {
		t.Errorf("Expected 1,2, got %v", got)
	}
}

func TestExpandWorkflowInputs_Mismatch(t *testing.T) {
	_, err := ExpandWorkflowInputs(map[string]map[string]interface{}{
		"1": {"input": batch(false, hidValues("1", "2")...)},
		"2": {"input": batch(false, hidValues("3")...)},
	}, nil)
	var invalid *RequestParameterInvalidError
	if !errors.As(err, &invalid) {
		t.Errorf("Expected RequestParameterInvalidError, got %v", err)
	}
}

func TestExpandWorkflowInputs_NoBatch(t *testing.T) {
	runs, err := ExpandWorkflowInputs(map[string]map[string]interface{}{
		"1": {"input": map[string]interface{}{"src": "hda", "id": 1}},
	}, nil)
	if err != nil {
		t.Fatalf("Failed to expand workflow inputs: %v", err)
	}
	if len(runs) != 1 || len(runs[0].HIDs) != 0 {
		t.Errorf("Expected a single unlabeled run, got %+v", runs)
	}
}
