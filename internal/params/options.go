package params

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/galaxyproject/galaxy-params/internal/model"
	"github.com/galaxyproject/galaxy-params/internal/toolsource"
	"github.com/galaxyproject/galaxy-params/internal/validation"
)

// OptionsFunc computes select options at request time.
type OptionsFunc func(trans *Trans, other *ExpressionContext) ([]toolsource.Option, error)

// DrillDownOptionsFunc computes a drill down hierarchy at request time.
type DrillDownOptionsFunc func(trans *Trans, other *ExpressionContext) ([]toolsource.DrillDownOption, error)

var (
	optionFuncsMu       sync.RWMutex
	optionFuncs         = map[string]OptionsFunc{}
	drillDownOptionFunc = map[string]DrillDownOptionsFunc{}
)

// RegisterOptionsFunc makes fn available to dynamic_options="name(...)".
func RegisterOptionsFunc(name string, fn OptionsFunc) {
	optionFuncsMu.Lock()
	defer optionFuncsMu.Unlock()
	optionFuncs[name] = fn
}

// RegisterDrillDownOptionsFunc makes fn available to drill down parameters.
func RegisterDrillDownOptionsFunc(name string, fn DrillDownOptionsFunc) {
	optionFuncsMu.Lock()
	defer optionFuncsMu.Unlock()
	drillDownOptionFunc[name] = fn
}

// codeFuncName extracts the function name from "name(arg, ...)".
func codeFuncName(code string) string {
	if i := strings.Index(code, "("); i >= 0 {
		code = code[:i]
	}
	return strings.TrimSpace(code)
}

func lookupOptionsFunc(code string) (OptionsFunc, bool) {
	optionFuncsMu.RLock()
	defer optionFuncsMu.RUnlock()
	fn, ok := optionFuncs[codeFuncName(code)]
	return fn, ok
}

func lookupDrillDownOptionsFunc(code string) (DrillDownOptionsFunc, bool) {
	optionFuncsMu.RLock()
	defer optionFuncsMu.RUnlock()
	fn, ok := drillDownOptionFunc[codeFuncName(code)]
	return fn, ok
}

// DynamicOptions builds options from a data table, narrowed by filters.
// Without a table the filters alone contribute rows.
type DynamicOptions struct {
	table           string
	columns         map[string]int
	filters         []toolsource.FilterSpec
	filterAttribute string
}

func newDynamicOptions(spec *toolsource.DynamicOptionsSpec) *DynamicOptions {
	columns := make(map[string]int, len(spec.Columns))
	for k, v := range spec.Columns {
		columns[k] = v
	}
	return &DynamicOptions{
		table:           spec.FromDataTable,
		columns:         columns,
		filters:         spec.Filters,
		filterAttribute: spec.OptionsFilterAttribute,
	}
}

// FilterAttribute is the dataset attribute data inputs compare against the
// option names, e.g. "metadata.dbkey".
func (d *DynamicOptions) FilterAttribute() string {
	return d.filterAttribute
}

func columnOr(columns map[string]int, name string, def int) int {
	if i, ok := columns[name]; ok {
		return i
	}
	return def
}

func (d *DynamicOptions) resolveColumn(attr string, table validation.DataTable) (int, bool) {
	if attr == "" {
		return 0, false
	}
	if i, err := strconv.Atoi(attr); err == nil {
		return i, true
	}
	if i, ok := d.columns[attr]; ok {
		return i, true
	}
	if table != nil {
		if i, err := validation.ColumnIndex(table, attr); err == nil {
			return i, true
		}
	}
	return 0, false
}

// GetFields returns the rows that survive the filters.
func (d *DynamicOptions) GetFields(trans *Trans, other *ExpressionContext) ([][]string, error) {
	var table validation.DataTable
	var rows [][]string
	if d.table != "" {
		app := trans.app()
		if app == nil || app.DataTables == nil {
			return nil, fmt.Errorf("data table '%s' is not available", d.table)
		}
		t, ok := app.DataTables.Table(d.table)
		if !ok {
			return nil, fmt.Errorf("data table '%s' is not available", d.table)
		}
		table = t
		for _, r := range t.Rows() {
			rows = append(rows, append([]string(nil), r...))
		}
	}
	for _, f := range d.filters {
		var err error
		rows, err = d.applyFilter(f, rows, table, trans, other)
		if err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// GetOptions maps the filtered rows onto name, value and selected columns.
func (d *DynamicOptions) GetOptions(trans *Trans, other *ExpressionContext) ([]toolsource.Option, error) {
	rows, err := d.GetFields(trans, other)
	if err != nil {
		return nil, err
	}
	columns := d.columns
	if len(columns) == 0 && d.table == "" {
		columns = map[string]int{"name": 0, "value": 1, "selected": 2}
	}
	nameCol := columnOr(columns, "name", 0)
	valueCol := columnOr(columns, "value", nameCol)
	selectedCol, hasSelected := columns["selected"]
	out := make([]toolsource.Option, 0, len(rows))
	for _, r := range rows {
		if nameCol >= len(r) || valueCol >= len(r) {
			continue
		}
		o := toolsource.Option{Name: r[nameCol], Value: r[valueCol]}
		if hasSelected && selectedCol < len(r) {
			o.Selected = parseSelected(r[selectedCol])
		}
		out = append(out, o)
	}
	return out, nil
}

func parseSelected(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1":
		return true
	}
	return false
}

func (d *DynamicOptions) applyFilter(f toolsource.FilterSpec, rows [][]string, table validation.DataTable, trans *Trans, other *ExpressionContext) ([][]string, error) {
	switch f.Type {
	case "data_meta":
		return d.filterDataMeta(f, rows, table, other), nil
	case "static_value":
		col, ok := d.resolveColumn(f.Attr("column", ""), table)
		if !ok {
			return nil, fmt.Errorf("static_value filter requires a column")
		}
		keep := parseSelected(f.Attr("keep", "true"))
		return keepRows(rows, func(r []string) bool {
			return col < len(r) && (r[col] == f.Attr("value", "")) == keep
		}), nil
	case "param_value":
		col, ok := d.resolveColumn(f.Attr("column", ""), table)
		if !ok {
			return nil, fmt.Errorf("param_value filter requires a column")
		}
		keep := parseSelected(f.Attr("keep", "true"))
		refValues := toStringSlice(other.Value(f.Attr("ref", "")))
		return keepRows(rows, func(r []string) bool {
			return col < len(r) && containsString(refValues, r[col]) == keep
		}), nil
	case "remove_value":
		col := columnOr(d.columns, "value", columnOr(d.columns, "name", 0))
		remove := []string{}
		if v := f.Attr("value", ""); v != "" {
			remove = append(remove, v)
		}
		if ref := f.Attr("ref", ""); ref != "" {
			remove = append(remove, toStringSlice(other.Value(ref))...)
		}
		return keepRows(rows, func(r []string) bool {
			return col < len(r) && !containsString(remove, r[col])
		}), nil
	case "unique_value":
		col, ok := d.resolveColumn(f.Attr("column", ""), table)
		if !ok {
			return nil, fmt.Errorf("unique_value filter requires a column")
		}
		seen := map[string]bool{}
		return keepRows(rows, func(r []string) bool {
			if col >= len(r) || seen[r[col]] {
				return false
			}
			seen[r[col]] = true
			return true
		}), nil
	case "sort_by":
		col, ok := d.resolveColumn(f.Attr("column", ""), table)
		if !ok {
			return nil, fmt.Errorf("sort_by filter requires a column")
		}
		reverse := parseSelected(f.Attr("reverse_sort_order", "false"))
		sort.SliceStable(rows, func(i, j int) bool {
			a, b := cell(rows[i], col), cell(rows[j], col)
			if reverse {
				return a > b
			}
			return a < b
		})
		return rows, nil
	}
	return nil, fmt.Errorf("unknown options filter type '%s'", f.Type)
}

// filterDataMeta keeps rows whose column matches the metadata of the
// referenced dataset. Without a column the metadata values become options.
func (d *DynamicOptions) filterDataMeta(f toolsource.FilterSpec, rows [][]string, table validation.DataTable, other *ExpressionContext) [][]string {
	key := f.Attr("key", "")
	var meta []string
	for _, ref := range listify(other.Value(f.Attr("ref", ""))) {
		meta = append(meta, datasetMetaValues(ref, key)...)
	}
	col, ok := d.resolveColumn(f.Attr("column", ""), table)
	if !ok {
		for _, m := range meta {
			rows = append(rows, []string{m, m, "false"})
		}
		return rows
	}
	multiple := parseSelected(f.Attr("multiple", "false"))
	separator := f.Attr("separator", ",")
	return keepRows(rows, func(r []string) bool {
		if col >= len(r) {
			return false
		}
		if !multiple {
			return containsString(meta, r[col])
		}
		for _, part := range strings.Split(r[col], separator) {
			if containsString(meta, part) {
				return true
			}
		}
		return false
	})
}

func datasetMetaValues(ref interface{}, key string) []string {
	var hda *model.HDA
	switch t := ref.(type) {
	case *model.HDA:
		hda = t
	case *model.HDCA:
		hda = t.ToHDARepresentative()
	case *model.DatasetCollectionElement:
		hda = firstDatasetInstance(t)
	}
	if hda == nil {
		return nil
	}
	if key == "dbkey" && hda.DBKey != "" {
		return []string{hda.DBKey}
	}
	v, ok := hda.GetMetadata().Get(key)
	if !ok {
		return nil
	}
	return toStringSlice(v)
}

func firstDatasetInstance(e *model.DatasetCollectionElement) *model.HDA {
	if e == nil {
		return nil
	}
	if e.HDA != nil {
		return e.HDA
	}
	if e.ChildCollection != nil {
		if instances := e.ChildCollection.DatasetInstances(); len(instances) > 0 {
			return instances[0]
		}
	}
	return nil
}

func keepRows(rows [][]string, keep func([]string) bool) [][]string {
	out := rows[:0:0]
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func cell(r []string, i int) string {
	if i < len(r) {
		return r[i]
	}
	return ""
}
