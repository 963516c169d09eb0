package validation

import (
	"fmt"
	"strings"

	"github.com/galaxyproject/galaxy-params/internal/model"
	"github.com/galaxyproject/galaxy-params/internal/toolsource"
)

// datasetView is the part of a dataset instance the validators look at.
type datasetView struct {
	state    model.DatasetState
	hasData  bool
	dbkey    string
	metadata *model.Metadata
}

func viewOf(value interface{}) (datasetView, bool) {
	switch t := value.(type) {
	case *model.HDA:
		if t == nil {
			return datasetView{}, false
		}
		return datasetView{state: t.State(), hasData: t.HasData(), dbkey: t.DBKey, metadata: t.GetMetadata()}, true
	case *model.LDDA:
		if t == nil {
			return datasetView{}, false
		}
		v := datasetView{state: model.StateNew, dbkey: t.DBKey, metadata: t.Metadata}
		if t.Dataset != nil {
			v.state = t.Dataset.State
			v.hasData = t.Dataset.FileSize > 0
		}
		if v.metadata == nil {
			v.metadata = &model.Metadata{}
		}
		return v, true
	}
	return datasetView{}, false
}

// DatasetOkValidator requires the dataset to be in the ok state.
type DatasetOkValidator struct{ base }

func newDatasetOkValidator(spec toolsource.ValidatorSpec, _ Env) (Validator, error) {
	return &DatasetOkValidator{base: newBase("dataset_ok_validator", spec)}, nil
}

func (v *DatasetOkValidator) Validate(value interface{}) error {
	d, ok := viewOf(value)
	if !ok {
		return nil
	}
	return v.check(d.state == model.StateOK,
		"The selected dataset is still being generated, select another dataset or wait until it is completed")
}

// DatasetEmptyValidator rejects empty datasets.
type DatasetEmptyValidator struct{ base }

func newDatasetEmptyValidator(spec toolsource.ValidatorSpec, _ Env) (Validator, error) {
	return &DatasetEmptyValidator{base: newBase("dataset_empty", spec)}, nil
}

func (v *DatasetEmptyValidator) Validate(value interface{}) error {
	d, ok := viewOf(value)
	if !ok {
		return nil
	}
	return v.check(d.hasData, "The selected dataset is empty, this tool expects non-empty files.")
}

// MetadataValidator requires metadata elements to be set.
type MetadataValidator struct {
	base
	names []string
	skip  []string
}

func newMetadataValidator(spec toolsource.ValidatorSpec, _ Env) (Validator, error) {
	return &MetadataValidator{
		base:  newBase("metadata", spec),
		names: splitList(spec.Attr("check", "")),
		skip:  splitList(spec.Attr("skip", "")),
	}, nil
}

func (v *MetadataValidator) RequiresDatasetMetadata() bool { return true }

func (v *MetadataValidator) Validate(value interface{}) error {
	d, ok := viewOf(value)
	if !ok {
		return nil
	}
	name, missing := d.metadata.MissingMeta(v.names, v.skip)
	return v.check(!missing, fmt.Sprintf(
		"Metadata '%s' missing, click the pencil icon in the history item to edit / set metadata", name))
}

// UnspecifiedBuildValidator rejects datasets whose genome build is "?".
type UnspecifiedBuildValidator struct{ base }

func newUnspecifiedBuildValidator(spec toolsource.ValidatorSpec, _ Env) (Validator, error) {
	return &UnspecifiedBuildValidator{base: newBase("unspecified_build", spec)}, nil
}

func (v *UnspecifiedBuildValidator) RequiresDatasetMetadata() bool { return true }

func (v *UnspecifiedBuildValidator) Validate(value interface{}) error {
	d, ok := viewOf(value)
	if !ok {
		return nil
	}
	dbkey := d.dbkey
	if dbkey == "" {
		if meta, ok := d.metadata.Get("dbkey"); ok {
			dbkey = fmt.Sprint(meta)
		}
	}
	return v.check(dbkey != "?",
		"Unspecified genome build, click the pencil icon in the history item to set the genome build")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
