package params

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/galaxyproject/galaxy-params/internal/model"
	"github.com/galaxyproject/galaxy-params/internal/toolsource"
)

// BaseDataParameter holds what dataset and collection inputs share.
type BaseDataParameter struct {
	BaseParameter
	formats         []string
	multiple        bool
	min, max        *int
	options         *DynamicOptions
	tag             string
	collectionTypes []string
}

func newBaseDataParameter(tool *Tool, src toolsource.InputSource, modelClass string) (BaseDataParameter, error) {
	base, err := newBaseParameter(tool, src, modelClass)
	if err != nil {
		return BaseDataParameter{}, err
	}
	p := BaseDataParameter{BaseParameter: base, tag: src.Get("tag", "")}
	for _, f := range strings.Split(src.Get("format", "data"), ",") {
		if f = strings.TrimSpace(f); f != "" {
			p.formats = append(p.formats, f)
		}
	}
	if spec := src.ParseDynamicOptions(); spec != nil && spec.Code == "" {
		p.options = newDynamicOptions(spec)
	}
	p.isDynamic = true
	return p, nil
}

// Formats lists the accepted datatype extensions.
func (p *BaseDataParameter) Formats() []string { return p.formats }

// Multiple reports whether several datasets may be selected.
func (p *BaseDataParameter) Multiple() bool { return p.multiple }

func decodeID(app *App, id interface{}) (int64, error) {
	if s, ok := id.(string); ok {
		if app == nil || app.Security == nil {
			return strconv.ParseInt(s, 10, 64)
		}
		return app.Security.DecodeID(s)
	}
	return toInt64(id)
}

func datastore(app *App) (model.Datastore, error) {
	if app == nil || app.Datastore == nil {
		return nil, errors.New("no datastore configured")
	}
	return app.Datastore, nil
}

// resolveSrc loads the object referenced by a {"src": ..., "id": ...} dict.
func resolveSrc(ctx context.Context, app *App, ref map[string]interface{}) (interface{}, error) {
	id, err := decodeID(app, ref["id"])
	if err != nil {
		return nil, fmt.Errorf("invalid id %v: %w", ref["id"], err)
	}
	return loadBySrc(ctx, app, pyStr(ref["src"]), id)
}

func loadBySrc(ctx context.Context, app *App, src string, id int64) (interface{}, error) {
	store, err := datastore(app)
	if err != nil {
		return nil, err
	}
	var obj interface{}
	switch src {
	case model.SrcHDA:
		obj, err = nilIfErr(store.GetHDA(ctx, id))
	case model.SrcHDCA:
		obj, err = nilIfErr(store.GetHDCA(ctx, id))
	case model.SrcLDDA:
		obj, err = nilIfErr(store.GetLDDA(ctx, id))
	case model.SrcDCE:
		obj, err = nilIfErr(store.GetDCE(ctx, id))
	default:
		return nil, fmt.Errorf("Unknown input source %s passed to job submission API.", src)
	}
	return obj, err
}

// nilIfErr keeps a failed lookup from leaking a typed nil pointer.
func nilIfErr[T any](obj *T, err error) (interface{}, error) {
	if err != nil || obj == nil {
		if err == nil {
			err = model.ErrNotFound
		}
		return nil, err
	}
	return obj, nil
}

func isSrcRef(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	_, hasSrc := m["src"]
	_, hasID := m["id"]
	return m, hasSrc && hasID
}

func objectID(v interface{}) (string, int64, bool) {
	switch t := v.(type) {
	case *model.DatasetCollectionElement:
		if t != nil {
			return model.SrcDCE, t.ID, true
		}
	case *model.HDCA:
		if t != nil {
			return model.SrcHDCA, t.ID, true
		}
	case *model.LDDA:
		if t != nil {
			return model.SrcLDDA, t.ID, true
		}
	case *model.HDA:
		if t != nil {
			return model.SrcHDA, t.ID, true
		}
	}
	return "", 0, false
}

func isModelObject(v interface{}) bool {
	_, _, ok := objectID(v)
	return ok
}

// ToJSON stores the selection as {"values": [{"id": ..., "src": ...}]}.
func (p *BaseDataParameter) ToJSON(value interface{}, app *App, useSecurity bool) (interface{}, error) {
	if isNoneLike(value) {
		return nil, nil
	}
	single := func(v interface{}) interface{} {
		if ref, ok := isSrcRef(v); ok {
			return ref
		}
		src, id, ok := objectID(v)
		if !ok {
			return nil
		}
		var encoded interface{} = id
		if useSecurity && app != nil && app.Security != nil {
			encoded = app.Security.EncodeID(id)
		}
		return map[string]interface{}{"id": encoded, "src": src}
	}
	var values []interface{}
	if l, ok := value.([]interface{}); ok && len(l) > 0 {
		for _, v := range l {
			values = append(values, single(v))
		}
	} else {
		values = []interface{}{single(value)}
	}
	return map[string]interface{}{"values": values}, nil
}

// ToPython restores a selection, accepting the legacy string forms too.
func (p *BaseDataParameter) ToPython(ctx context.Context, value interface{}, app *App) (interface{}, error) {
	if m, ok := value.(map[string]interface{}); ok {
		if values, ok := m["values"].([]interface{}); ok {
			if p.multiple {
				out := make([]interface{}, 0, len(values))
				for _, v := range values {
					obj, err := p.singleToPython(ctx, v, app)
					if err != nil {
						return nil, err
					}
					out = append(out, obj)
				}
				return out, nil
			}
			if len(values) > 0 {
				return p.singleToPython(ctx, values[0], app)
			}
			return nil, nil
		}
	}
	if isNoneLike(value) {
		return nil, nil
	}
	if isModelObject(value) {
		return value, nil
	}
	s := pyStr(value)
	switch {
	case strings.Contains(s, ","):
		var out []interface{}
		for _, part := range strings.Split(s, ",") {
			if isNoneLike(part) {
				continue
			}
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return nil, err
			}
			hda, err := loadBySrc(ctx, app, model.SrcHDA, id)
			if err != nil {
				return nil, err
			}
			out = append(out, hda)
		}
		return out, nil
	case strings.HasPrefix(s, collectionReducePfx):
		raw := strings.TrimPrefix(s, collectionReducePfx)
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			if id, err = decodeID(app, raw); err != nil {
				return nil, err
			}
		}
		return loadBySrc(ctx, app, model.SrcHDCA, id)
	case strings.HasPrefix(s, "dce:"):
		id, err := strconv.ParseInt(strings.TrimPrefix(s, "dce:"), 10, 64)
		if err != nil {
			return nil, err
		}
		return loadBySrc(ctx, app, model.SrcDCE, id)
	case strings.HasPrefix(s, "hdca:"):
		id, err := strconv.ParseInt(strings.TrimPrefix(s, "hdca:"), 10, 64)
		if err != nil {
			return nil, err
		}
		return loadBySrc(ctx, app, model.SrcHDCA, id)
	}
	id, err := toInt64(value)
	if err != nil {
		return nil, err
	}
	return loadBySrc(ctx, app, model.SrcHDA, id)
}

func (p *BaseDataParameter) singleToPython(ctx context.Context, v interface{}, app *App) (interface{}, error) {
	ref, ok := isSrcRef(v)
	if !ok {
		if isModelObject(v) {
			return v, nil
		}
		return nil, fmt.Errorf("invalid dataset reference %v", v)
	}
	return resolveSrc(ctx, app, ref)
}

func (p *BaseDataParameter) ToParamDictString(value interface{}, other *ExpressionContext) (string, error) {
	if isNoneLike(value) {
		return "None", nil
	}
	var parts []string
	for _, v := range listify(value) {
		if _, id, ok := objectID(v); ok {
			parts = append(parts, strconv.FormatInt(id, 10))
			continue
		}
		parts = append(parts, pyStr(v))
	}
	return strings.Join(parts, ","), nil
}

func (p *BaseDataParameter) matcher(trans *Trans, other *ExpressionContext) *DatasetMatcher {
	return NewDatasetMatcherFactory(trans, p.tool).DatasetMatcher(p, other)
}

func (p *BaseDataParameter) ToDict(trans *Trans, other *ExpressionContext) map[string]interface{} {
	d := p.BaseParameter.ToDict(trans, other)
	d["extensions"] = p.formats
	d["multiple"] = p.multiple
	d["tag"] = p.tag
	d["min"], d["max"] = nil, nil
	if p.min != nil {
		d["min"] = *p.min
	}
	if p.max != nil {
		d["max"] = *p.max
	}
	options := map[string]interface{}{"hda": []interface{}{}, "hdca": []interface{}{}}
	if trans != nil && trans.History != nil && !trans.workflowMode() {
		m := p.matcher(trans, other)
		var hdas, hdcas []interface{}
		for i := len(trans.History.Datasets) - 1; i >= 0; i-- {
			hda := trans.History.Datasets[i]
			if hda.Deleted {
				continue
			}
			if match := m.HDAMatch(hda, DefaultMatchOptions); match != nil {
				hdas = append(hdas, optionEntry(trans, model.SrcHDA, hda.ID, hda.HID, hda.Name, match.ImplicitConversion))
			}
		}
		cm := m.factory.DatasetCollectionMatcher(m)
		for i := len(trans.History.Collections) - 1; i >= 0; i-- {
			hdca := trans.History.Collections[i]
			if !hdca.Deleted && hdca.Visible && cm.HDCAMatch(hdca) {
				hdcas = append(hdcas, optionEntry(trans, model.SrcHDCA, hdca.ID, hdca.HID, hdca.Name, false))
			}
		}
		if hdas != nil {
			options["hda"] = hdas
		}
		if hdcas != nil {
			options["hdca"] = hdcas
		}
	}
	d["options"] = options
	return d
}

func optionEntry(trans *Trans, src string, id int64, hid int, name string, converted bool) map[string]interface{} {
	var encoded interface{} = id
	if app := trans.app(); app != nil && app.Security != nil {
		encoded = app.Security.EncodeID(id)
	}
	return map[string]interface{}{
		"id":                  encoded,
		"hid":                 hid,
		"name":                name,
		"src":                 src,
		"implicit_conversion": converted,
	}
}

// DataParameter selects one or more datasets.
type DataParameter struct {
	BaseDataParameter
}

func newDataParameter(tool *Tool, src toolsource.InputSource) (Parameter, error) {
	return buildDataParameter(tool, src, "DataToolParameter")
}

func newHiddenDataParameter(tool *Tool, src toolsource.InputSource) (Parameter, error) {
	p, err := buildDataParameter(tool, src, "HiddenDataToolParameter")
	if err != nil {
		return nil, err
	}
	p.hidden = true
	return p, nil
}

func buildDataParameter(tool *Tool, src toolsource.InputSource, modelClass string) (*DataParameter, error) {
	base, err := newBaseDataParameter(tool, src, modelClass)
	if err != nil {
		return nil, err
	}
	p := &DataParameter{BaseDataParameter: base}
	p.multiple = src.GetBool("multiple", false)
	for attr, dst := range map[string]**int{"min": &p.min, "max": &p.max} {
		s := src.Get(attr, "")
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, loadError("parameter '%s': attribute '%s' must be an integer", p.name, attr)
		}
		if !p.multiple {
			return nil, loadError("cannot specify '%s' property on single data parameter '%s'. Set multiple=\"true\" to enable this option.", attr, p.name)
		}
		*dst = &n
	}
	return p, nil
}

func (p *DataParameter) GetInitialValue(trans *Trans, other *ExpressionContext) (interface{}, error) {
	if trans.workflowMode() {
		return RuntimeValue{}, nil
	}
	if p.optional || trans == nil || trans.History == nil {
		return nil, nil
	}
	m := p.matcher(trans, other)
	for i := len(trans.History.Datasets) - 1; i >= 0; i-- {
		hda := trans.History.Datasets[i]
		if hda.Deleted {
			continue
		}
		if match := m.HDAMatch(hda, DefaultMatchOptions); match != nil {
			return match.HDA, nil
		}
	}
	return nil, nil
}

func (p *DataParameter) FromJSON(trans *Trans, value interface{}, other *ExpressionContext) (interface{}, error) {
	if keepForWorkflow(trans, value) {
		return value, nil
	}
	if trans.workflowMode() || IsRuntimeValue(value) {
		return nil, nil
	}
	if !isTruthy(value) && !p.optional {
		return nil, valueError(p.name, "specify a dataset of the required format / build for parameter")
	}
	if isNoneLike(value) {
		return nil, nil
	}
	ctx, app := trans.Context(), trans.app()
	if m, ok := value.(map[string]interface{}); ok {
		if _, ok := m["values"]; ok {
			v, err := p.ToPython(ctx, value, app)
			if err != nil {
				return nil, valueError(p.name, "%v", err)
			}
			value = v
		}
	}
	if s, ok := value.(string); ok && strings.Index(s, ",") > 0 && !strings.HasPrefix(s, collectionReducePfx) {
		var ids []interface{}
		for _, part := range strings.Split(s, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return nil, valueError(p.name, "invalid dataset id '%s'", part)
			}
			ids = append(ids, id)
		}
		value = ids
	}

	var rval []interface{}
	switch t := value.(type) {
	case nil:
	case []interface{}:
		foundHDCA := false
		for _, single := range t {
			obj, err := p.resolveSingle(ctx, app, single)
			if err != nil {
				return nil, err
			}
			if _, ok := obj.(*model.HDCA); ok {
				foundHDCA = true
			}
			rval = append(rval, obj)
		}
		if foundHDCA {
			for _, v := range rval {
				if _, ok := v.(*model.HDCA); !ok {
					return nil, valueError(p.name, "if collections are supplied to multiple data input parameter, only collections may be used")
				}
			}
		}
	case string:
		if strings.HasPrefix(t, collectionReducePfx) {
			for _, part := range strings.Split(t, ",") {
				id, err := decodeID(app, strings.TrimPrefix(part, collectionReducePfx))
				if err != nil {
					return nil, valueError(p.name, "invalid collection id '%s'", part)
				}
				obj, err := loadBySrc(ctx, app, model.SrcHDCA, id)
				if err != nil {
					return nil, valueError(p.name, "%v", err)
				}
				rval = append(rval, obj)
			}
			break
		}
		obj, err := p.resolveSingle(ctx, app, t)
		if err != nil {
			return nil, err
		}
		rval = append(rval, obj)
	default:
		obj, err := p.resolveSingle(ctx, app, t)
		if err != nil {
			return nil, err
		}
		rval = append(rval, obj)
	}

	m := p.matcher(trans, other)
	for i, v := range rval {
		checked, err := p.checkSelected(m, v)
		if err != nil {
			return nil, err
		}
		rval[i] = checked
	}
	if !p.multiple {
		if len(rval) > 1 {
			return nil, valueError(p.name, "more than one dataset supplied to single input dataset parameter")
		}
		if len(rval) == 0 {
			return nil, valueError(p.name, "invalid dataset supplied to single input dataset parameter")
		}
		return rval[0], nil
	}
	return rval, nil
}

func (p *DataParameter) resolveSingle(ctx context.Context, app *App, v interface{}) (interface{}, error) {
	if isModelObject(v) {
		return v, nil
	}
	if ref, ok := isSrcRef(v); ok {
		obj, err := resolveSrc(ctx, app, ref)
		if err != nil {
			return nil, valueError(p.name, "%v", err)
		}
		return obj, nil
	}
	var id int64
	var err error
	if s, ok := v.(string); ok && len(s) == 16 {
		id, err = decodeID(app, s)
	} else {
		id, err = toInt64(v)
	}
	if err != nil {
		return nil, valueError(p.name, "invalid dataset id '%s'", pyStr(v))
	}
	obj, err := loadBySrc(ctx, app, model.SrcHDA, id)
	if err != nil {
		return nil, valueError(p.name, "%v", err)
	}
	return obj, nil
}

// checkSelected rejects deleted or failed datasets and marks selections
// that need an implicit conversion.
func (p *DataParameter) checkSelected(m *DatasetMatcher, v interface{}) (interface{}, error) {
	var hda *model.HDA
	switch t := v.(type) {
	case *model.HDA:
		hda = t
	case *model.DatasetCollectionElement:
		hda = t.HDA
	case *model.HDCA:
		if t.Deleted {
			return nil, valueError(p.name, "the previously selected dataset has been deleted.")
		}
		return v, nil
	case *model.LDDA:
		if t.Deleted {
			return nil, valueError(p.name, "the previously selected dataset has been deleted.")
		}
		if t.Dataset != nil && t.Dataset.State.Unusable() {
			return nil, valueError(p.name, "the previously selected dataset has entered an unusable state")
		}
		return v, nil
	}
	if hda == nil {
		return v, nil
	}
	if hda.Deleted {
		return nil, valueError(p.name, "the previously selected dataset has been deleted.")
	}
	if hda.State().Unusable() {
		return nil, valueError(p.name, "the previously selected dataset has entered an unusable state")
	}
	if match := m.HDAMatch(hda, DefaultMatchOptions); match != nil && match.ImplicitConversion {
		marked := *hda
		marked.ImplicitConversion = true
		if _, isHDA := v.(*model.HDA); isHDA {
			return &marked, nil
		}
	}
	return v, nil
}

// Validate runs the validators on every selected dataset and enforces the
// min and max dataset counts.
func (p *DataParameter) Validate(trans *Trans, value interface{}) error {
	count := 0
	check := func(v interface{}) error {
		count++
		for _, validator := range p.validators {
			if hda, ok := v.(*model.HDA); ok && validator.RequiresDatasetMetadata() && hda.State() != model.StateOK {
				continue
			}
			if err := validator.Validate(v); err != nil {
				return valueError(p.name, "%s", err.Error())
			}
		}
		return nil
	}
	if isTruthy(value) {
		for _, v := range listify(value) {
			switch t := v.(type) {
			case *model.HDCA:
				if t.Collection == nil {
					continue
				}
				for _, hda := range t.Collection.DatasetInstances() {
					if err := check(hda); err != nil {
						return err
					}
				}
			case *model.DatasetCollectionElement:
				if t.ChildCollection != nil {
					for _, hda := range t.ChildCollection.DatasetInstances() {
						if err := check(hda); err != nil {
							return err
						}
					}
				} else if t.HDA != nil {
					if err := check(t.HDA); err != nil {
						return err
					}
				} else if t.LDDA != nil {
					if err := check(t.LDDA); err != nil {
						return err
					}
				}
			default:
				if err := check(v); err != nil {
					return err
				}
			}
		}
	}
	if p.min != nil && *p.min > count {
		return fmt.Errorf("At least %d datasets are required for %s", *p.min, p.name)
	}
	if p.max != nil && *p.max < count {
		return fmt.Errorf("At most %d datasets are required for %s", *p.max, p.name)
	}
	return nil
}

// DataCollectionParameter selects one dataset collection.
type DataCollectionParameter struct {
	BaseDataParameter
}

func newDataCollectionParameter(tool *Tool, src toolsource.InputSource) (Parameter, error) {
	base, err := newBaseDataParameter(tool, src, "DataCollectionToolParameter")
	if err != nil {
		return nil, err
	}
	p := &DataCollectionParameter{BaseDataParameter: base}
	for _, t := range strings.Split(src.Get("collection_type", ""), ",") {
		if t = strings.TrimSpace(t); t != "" {
			p.collectionTypes = append(p.collectionTypes, t)
		}
	}
	return p, nil
}

// CollectionTypes lists the accepted collection types; empty accepts any.
func (p *DataCollectionParameter) CollectionTypes() []string { return p.collectionTypes }

func (p *DataCollectionParameter) GetInitialValue(trans *Trans, other *ExpressionContext) (interface{}, error) {
	if trans.workflowMode() {
		return RuntimeValue{}, nil
	}
	if p.optional || trans == nil || trans.History == nil {
		return nil, nil
	}
	m := p.matcher(trans, other)
	cm := m.factory.DatasetCollectionMatcher(m)
	for i := len(trans.History.Collections) - 1; i >= 0; i-- {
		hdca := trans.History.Collections[i]
		if !hdca.Deleted && hdca.Visible && cm.HDCAMatch(hdca) {
			return hdca, nil
		}
	}
	return nil, nil
}

func (p *DataCollectionParameter) FromJSON(trans *Trans, value interface{}, other *ExpressionContext) (interface{}, error) {
	if keepForWorkflow(trans, value) {
		return value, nil
	}
	if trans.workflowMode() {
		return nil, nil
	}
	if !isTruthy(value) && !p.optional {
		return nil, valueError(p.name, "specify a dataset collection of the correct type")
	}
	if value == nil || value == "None" {
		return nil, nil
	}
	ctx, app := trans.Context(), trans.app()
	if m, ok := value.(map[string]interface{}); ok {
		if _, ok := m["values"]; ok {
			v, err := p.ToPython(ctx, value, app)
			if err != nil {
				return nil, valueError(p.name, "%v", err)
			}
			value = v
		}
	}
	if l, ok := value.([]interface{}); ok {
		if len(l) == 0 {
			return nil, nil
		}
		value = l[0]
	}
	var rval interface{}
	switch t := value.(type) {
	case *model.HDCA, *model.DatasetCollectionElement:
		rval = t
	case map[string]interface{}:
		ref, ok := isSrcRef(t)
		if !ok {
			return nil, valueError(p.name, "invalid dataset collection reference")
		}
		src := pyStr(ref["src"])
		if src != model.SrcHDCA && src != model.SrcDCE {
			return nil, valueError(p.name, "invalid dataset collection source '%s'", src)
		}
		obj, err := resolveSrc(ctx, app, ref)
		if err != nil {
			return nil, valueError(p.name, "%v", err)
		}
		rval = obj
	default:
		s := pyStr(t)
		src := model.SrcHDCA
		switch {
		case strings.HasPrefix(s, "dce:"):
			src, s = model.SrcDCE, strings.TrimPrefix(s, "dce:")
		case strings.HasPrefix(s, "hdca:"):
			s = strings.TrimPrefix(s, "hdca:")
		}
		if i := strings.Index(s, ","); i > 0 {
			s = s[:i]
		}
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, valueError(p.name, "invalid dataset collection id '%s'", s)
		}
		obj, err := loadBySrc(ctx, app, src, id)
		if err != nil {
			return nil, valueError(p.name, "%v", err)
		}
		rval = obj
	}
	if hdca, ok := rval.(*model.HDCA); ok && hdca.Deleted {
		return nil, valueError(p.name, "the previously selected dataset collection has been deleted")
	}
	return rval, nil
}

// Validate accepts any collection; element checks happen when matching.
func (p *DataCollectionParameter) Validate(trans *Trans, value interface{}) error {
	return nil
}

func (p *DataCollectionParameter) ToDict(trans *Trans, other *ExpressionContext) map[string]interface{} {
	d := p.BaseDataParameter.ToDict(trans, other)
	d["collection_types"] = p.collectionTypes
	return d
}

// LibraryDatasetParameter selects datasets from data libraries.
type LibraryDatasetParameter struct {
	BaseParameter
	multiple bool
}

func newLibraryDatasetParameter(tool *Tool, src toolsource.InputSource) (Parameter, error) {
	base, err := newBaseParameter(tool, src, "LibraryDatasetToolParameter")
	if err != nil {
		return nil, err
	}
	return &LibraryDatasetParameter{BaseParameter: base, multiple: src.GetBool("multiple", true)}, nil
}

func (p *LibraryDatasetParameter) FromJSON(trans *Trans, value interface{}, other *ExpressionContext) (interface{}, error) {
	if keepForWorkflow(trans, value) {
		return value, nil
	}
	return p.toPython(trans.Context(), value, trans.app(), true)
}

func (p *LibraryDatasetParameter) ToPython(ctx context.Context, value interface{}, app *App) (interface{}, error) {
	return p.toPython(ctx, value, app, false)
}

func (p *LibraryDatasetParameter) toPython(ctx context.Context, value interface{}, app *App, validate bool) (interface{}, error) {
	var out []interface{}
	for _, item := range listify(value) {
		if ldda, ok := item.(*model.LDDA); ok {
			out = append(out, ldda)
			continue
		}
		rawID := item
		if m, ok := item.(map[string]interface{}); ok {
			rawID = m["id"]
		}
		if isNoneLike(rawID) {
			continue
		}
		id, err := decodeID(app, rawID)
		if err == nil {
			var obj interface{}
			if obj, err = loadBySrc(ctx, app, model.SrcLDDA, id); err == nil {
				out = append(out, obj)
				continue
			}
		}
		if validate {
			return nil, valueError(p.name, "one of the selected library datasets is invalid or not available anymore")
		}
	}
	if len(out) == 0 {
		if !p.optional && validate {
			return nil, valueError(p.name, "invalid library dataset selected")
		}
		return nil, nil
	}
	return out, nil
}

func (p *LibraryDatasetParameter) ToJSON(value interface{}, app *App, useSecurity bool) (interface{}, error) {
	var out []interface{}
	for _, item := range listify(value) {
		var id, name interface{}
		switch t := item.(type) {
		case *model.LDDA:
			id, name = t.ID, t.Name
			if useSecurity && app != nil && app.Security != nil {
				id = app.Security.EncodeID(t.ID)
			}
		case map[string]interface{}:
			id, name = t["id"], t["name"]
		default:
			return nil, nil
		}
		if id != nil {
			out = append(out, map[string]interface{}{"id": id, "name": name})
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func (p *LibraryDatasetParameter) ToParamDictString(value interface{}, other *ExpressionContext) (string, error) {
	if value == nil {
		return "None", nil
	}
	var names []string
	for _, item := range listify(value) {
		if ldda, ok := item.(*model.LDDA); ok {
			names = append(names, ldda.Name)
		}
	}
	return strings.Join(names, ","), nil
}

func (p *LibraryDatasetParameter) ToDict(trans *Trans, other *ExpressionContext) map[string]interface{} {
	d := p.BaseParameter.ToDict(trans, other)
	d["multiple"] = p.multiple
	return d
}
