package validation

import (
	"math"
	"strings"
	"testing"

	"github.com/galaxyproject/galaxy-params/internal/model"
	"github.com/galaxyproject/galaxy-params/internal/toolsource"
)

func mustBuild(t *testing.T, spec toolsource.ValidatorSpec, env Env) Validator {
	t.Helper()
	v, err := FromSpec(spec, env)
	if err != nil {
		t.Fatalf("Failed to build %s validator: %v", spec.Type, err)
	}
	return v
}

func TestInRangeValidator_ExcludeMin(t *testing.T) {
	v := mustBuild(t, toolsource.ValidatorSpec{
		Type:  "in_range",
		Attrs: map[string]string{"min": "10", "max": "20", "exclude_min": "true"},
	}, Env{})

	tests := []struct {
		value   interface{}
		wantErr bool
	}{
		{int64(10), true},
		{int64(15), false},
		{int64(20), false},
		{int64(21), true},
		{"12.5", false},
		{"abc", true},
	}
	for _, tt := range tests {
		err := v.Validate(tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%v) error = %v, wantErr %v", tt.value, err, tt.wantErr)
		}
	}

	err := v.Validate(int64(10))
	expected := "Value must be greater than 10 and less than or equal to 20"
	if err == nil || err.Error() != expected {
		t.Errorf("Expected message %q, got %v", expected, err)
	}
}

func TestInRangeValidator_OpenBounds(t *testing.T) {
	v, err := NewInRangeValidator(0, math.Inf(1), false, true, "", false)
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}
	if !strings.Contains(v.DefaultMessage(), "less than infinity") {
		t.Errorf("Expected infinity in message, got %q", v.DefaultMessage())
	}
	if _, err := NewInRangeValidator(5, 1, false, false, "", false); err == nil {
		t.Error("Expected error for min greater than max")
	}
}

func TestRegexValidator(t *testing.T) {
	v := mustBuild(t, toolsource.ValidatorSpec{Type: "regex", Content: `[a-z]+`}, Env{})

	if err := v.Validate("abc123"); err != nil {
		t.Errorf("Expected match at start, got %v", err)
	}
	err := v.Validate("123abc")
	if err == nil {
		t.Fatal("Expected no match when pattern is not at start")
	}
	if err.Error() != "Value '123abc' does not match regular expression '[a-z]+'" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
	if err := v.Validate([]interface{}{"ab", "9"}); err == nil {
		t.Error("Expected list element failure")
	}

	neg := mustBuild(t, toolsource.ValidatorSpec{Type: "regex", Content: `\d`, Negate: true, Message: "no digits"}, Env{})
	if err := neg.Validate("abc"); err != nil {
		t.Errorf("Expected negated regex to accept, got %v", err)
	}
	if err := neg.Validate("1bc"); err == nil || err.Error() != "no digits" {
		t.Errorf("Expected custom message, got %v", err)
	}

	if _, err := FromSpec(toolsource.ValidatorSpec{Type: "regex", Content: `(`}, Env{}); err == nil {
		t.Error("Expected compile error")
	}
}

func TestExpressionValidator(t *testing.T) {
	v := mustBuild(t, toolsource.ValidatorSpec{Type: "expression", Content: "value.length > 2"}, Env{})
	if err := v.Validate("abcd"); err != nil {
		t.Errorf("Expected pass, got %v", err)
	}
	err := v.Validate("ab")
	if err == nil {
		t.Fatal("Expected failure for short value")
	}
	if !strings.Contains(err.Error(), "does not evaluate to True") {
		t.Errorf("Unexpected message: %s", err.Error())
	}

	broken := mustBuild(t, toolsource.ValidatorSpec{Type: "expression", Content: "value.foo.bar"}, Env{})
	if err := broken.Validate("x"); err == nil {
		t.Error("Expected evaluation error to reject the value")
	}
}

func TestLengthValidator(t *testing.T) {
	v := mustBuild(t, toolsource.ValidatorSpec{Type: "length", Attrs: map[string]string{"min": "2", "max": "4"}}, Env{})
	if err := v.Validate("abc"); err != nil {
		t.Errorf("Expected pass, got %v", err)
	}
	err := v.Validate("abcde")
	if err == nil || err.Error() != "Must have length of at least 2 and at most 4" {
		t.Errorf("Unexpected result: %v", err)
	}
}

func TestEmptyFieldAndNoOptions(t *testing.T) {
	empty := mustBuild(t, toolsource.ValidatorSpec{Type: "empty_field"}, Env{})
	if err := empty.Validate(""); err == nil || err.Error() != "Field requires a value" {
		t.Errorf("Unexpected result: %v", err)
	}
	noOpts := mustBuild(t, toolsource.ValidatorSpec{Type: "no_options"}, Env{})
	if err := noOpts.Validate(nil); err == nil || err.Error() != "No options available for selection" {
		t.Errorf("Unexpected result: %v", err)
	}
	if err := noOpts.Validate("x"); err != nil {
		t.Errorf("Expected pass, got %v", err)
	}
}

func TestDatasetValidators(t *testing.T) {
	running := &model.HDA{Dataset: &model.Dataset{State: model.StateRunning}}
	ok := &model.HDA{DBKey: "?", Dataset: &model.Dataset{State: model.StateOK, FileSize: 0},
		Metadata: &model.Metadata{Columns: 3}}

	dsOK := mustBuild(t, toolsource.ValidatorSpec{Type: "dataset_ok_validator"}, Env{})
	if err := dsOK.Validate(running); err == nil {
		t.Error("Expected running dataset to fail")
	}
	if err := dsOK.Validate(ok); err != nil {
		t.Errorf("Expected ok dataset to pass, got %v", err)
	}
	if dsOK.RequiresDatasetMetadata() {
		t.Error("dataset_ok_validator should not require metadata")
	}

	emptyV := mustBuild(t, toolsource.ValidatorSpec{Type: "dataset_empty"}, Env{})
	if err := emptyV.Validate(ok); err == nil {
		t.Error("Expected empty dataset to fail")
	}

	build := mustBuild(t, toolsource.ValidatorSpec{Type: "unspecified_build"}, Env{})
	if !build.RequiresDatasetMetadata() {
		t.Error("unspecified_build should require metadata")
	}
	err := build.Validate(ok)
	if err == nil || !strings.HasPrefix(err.Error(), "Unspecified genome build") {
		t.Errorf("Unexpected result: %v", err)
	}

	meta := mustBuild(t, toolsource.ValidatorSpec{Type: "metadata", Attrs: map[string]string{"check": "columns,column_names"}}, Env{})
	err = meta.Validate(ok)
	if err == nil || !strings.Contains(err.Error(), "'column_names'") {
		t.Errorf("Expected missing column_names, got %v", err)
	}
}

func TestValueInDataTableValidator_Refresh(t *testing.T) {
	tables := NewDataTableRegistry()
	table := NewStaticTable("all_fasta", []string{"value", "dbkey", "name"}, [][]string{
		{"hg19", "hg19", "Human"},
	})
	tables.Add(table)

	v := mustBuild(t, toolsource.ValidatorSpec{
		Type:  "value_in_data_table",
		Attrs: map[string]string{"table_name": "all_fasta", "metadata_column": "value"},
	}, Env{DataTables: tables})

	if err := v.Validate("hg19"); err != nil {
		t.Errorf("Expected hg19 to be found, got %v", err)
	}
	if err := v.Validate("mm10"); err == nil {
		t.Error("Expected mm10 to be missing")
	}

	cache := v.(*ValueInDataTableValidator).cache
	before := cache.Version()
	table.AddRow([]string{"mm10", "mm10", "Mouse"})
	if err := v.Validate("mm10"); err != nil {
		t.Errorf("Expected mm10 after refresh, got %v", err)
	}
	if cache.Version() == before {
		t.Error("Expected cache to be refreshed after version change")
	}

	not := mustBuild(t, toolsource.ValidatorSpec{
		Type:  "value_not_in_data_table",
		Attrs: map[string]string{"table_name": "all_fasta", "metadata_column": "0"},
	}, Env{DataTables: tables})
	if err := not.Validate("hg19"); err == nil {
		t.Error("Expected negated validator to reject present value")
	}
}

func TestMetadataInDataTableValidator(t *testing.T) {
	tables := NewDataTableRegistry()
	tables.Add(NewStaticTable("builds", []string{"value"}, [][]string{{"hg38"}}))
	v := mustBuild(t, toolsource.ValidatorSpec{
		Type:  "dataset_metadata_in_data_table",
		Attrs: map[string]string{"table_name": "builds", "metadata_name": "dbkey"},
	}, Env{DataTables: tables})

	if err := v.Validate(&model.HDA{DBKey: "hg38"}); err != nil {
		t.Errorf("Expected pass, got %v", err)
	}
	if err := v.Validate(&model.HDA{DBKey: "hg19"}); err == nil {
		t.Error("Expected failure for hg19")
	}
}

func TestReadLocFile(t *testing.T) {
	rows, err := ReadLocFile(strings.NewReader("# comment\nhg19\thg19\tHuman\n\nmm10\tmm10\tMouse\n"))
	if err != nil {
		t.Fatalf("Failed to read loc: %v", err)
	}
	if len(rows) != 2 || rows[1][2] != "Mouse" {
		t.Errorf("Unexpected rows: %v", rows)
	}
}

func TestUnknownValidator(t *testing.T) {
	if _, err := FromSpec(toolsource.ValidatorSpec{Type: "bogus"}, Env{}); err == nil {
		t.Error("Expected error for unknown validator type")
	}
}
