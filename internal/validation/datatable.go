package validation

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/galaxyproject/galaxy-params/internal/toolsource"
)

// DataTable is a tool data table such as all_fasta. Version changes whenever
// the rows change.
type DataTable interface {
	Name() string
	Version() int64
	Columns() []string
	Rows() [][]string
}

// DataTables looks up data tables by name.
type DataTables interface {
	Table(name string) (DataTable, bool)
}

// ColumnIndex resolves a column given by name or by numeric index.
func ColumnIndex(t DataTable, column string) (int, error) {
	if i, err := strconv.Atoi(column); err == nil {
		return i, nil
	}
	for i, c := range t.Columns() {
		if c == column {
			return i, nil
		}
	}
	return 0, fmt.Errorf("data table '%s' has no column '%s'", t.Name(), column)
}

// StaticTable is an in-memory data table.
type StaticTable struct {
	mu      sync.RWMutex
	name    string
	columns []string
	rows    [][]string
	version int64
}

// NewStaticTable creates a table with the given column names.
func NewStaticTable(name string, columns []string, rows [][]string) *StaticTable {
	return &StaticTable{name: name, columns: columns, rows: rows, version: 1}
}

func (t *StaticTable) Name() string { return t.name }

func (t *StaticTable) Version() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

func (t *StaticTable) Columns() []string { return t.columns }

func (t *StaticTable) Rows() [][]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rows
}

// AddRow appends a row and bumps the version.
func (t *StaticTable) AddRow(row []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = append(t.rows, row)
	t.version++
}

// ReadLocFile reads tab separated .loc content, skipping comments and blank
// lines.
func ReadLocFile(r io.Reader) ([][]string, error) {
	var rows [][]string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rows = append(rows, strings.Split(line, "\t"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read loc file: %w", err)
	}
	return rows, nil
}

// DataTableRegistry is a DataTables backed by StaticTables.
type DataTableRegistry struct {
	mu     sync.RWMutex
	tables map[string]*StaticTable
}

// NewDataTableRegistry creates an empty registry.
func NewDataTableRegistry() *DataTableRegistry {
	return &DataTableRegistry{tables: make(map[string]*StaticTable)}
}

// Add registers a table, replacing one with the same name.
func (r *DataTableRegistry) Add(t *StaticTable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[t.name] = t
}

// LoadLocFile registers a table read from a .loc file.
func (r *DataTableRegistry) LoadLocFile(name string, columns []string, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open loc file: %w", err)
	}
	defer f.Close()
	rows, err := ReadLocFile(f)
	if err != nil {
		return err
	}
	r.Add(NewStaticTable(name, columns, rows))
	return nil
}

// Table implements DataTables.
func (r *DataTableRegistry) Table(name string) (DataTable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[name]
	if !ok {
		return nil, false
	}
	return t, true
}

type tableSnapshot struct {
	version int64
	values  map[string]struct{}
}

// columnCache holds the values of one data table column. A stale snapshot is
// replaced on the next read; concurrent readers may rebuild it twice.
type columnCache struct {
	tables DataTables
	table  string
	column string
	snap   atomic.Pointer[tableSnapshot]
}

func (c *columnCache) values() (map[string]struct{}, error) {
	if c.tables == nil {
		return nil, fmt.Errorf("no data tables configured")
	}
	t, ok := c.tables.Table(c.table)
	if !ok {
		return nil, fmt.Errorf("data table '%s' not found", c.table)
	}
	version := t.Version()
	if s := c.snap.Load(); s != nil && s.version == version {
		return s.values, nil
	}
	index, err := ColumnIndex(t, c.column)
	if err != nil {
		return nil, err
	}
	values := make(map[string]struct{})
	for _, row := range t.Rows() {
		if index < len(row) {
			values[row[index]] = struct{}{}
		}
	}
	c.snap.Store(&tableSnapshot{version: version, values: values})
	return values, nil
}

// Version returns the version of the cached snapshot, or 0 when empty.
func (c *columnCache) Version() int64 {
	if s := c.snap.Load(); s != nil {
		return s.version
	}
	return 0
}

// ValueInDataTableValidator requires the value to appear in a data table
// column.
type ValueInDataTableValidator struct {
	base
	cache *columnCache
}

func newValueInDataTableValidator(spec toolsource.ValidatorSpec, env Env) (Validator, error) {
	table := spec.Attr("table_name", "")
	if table == "" {
		return nil, fmt.Errorf("%s validator requires a table_name", spec.Type)
	}
	return &ValueInDataTableValidator{
		base: newBase("value_in_data_table", spec),
		cache: &columnCache{
			tables: env.DataTables,
			table:  table,
			column: spec.Attr("metadata_column", "value"),
		},
	}, nil
}

func (v *ValueInDataTableValidator) Validate(value interface{}) error {
	values, err := v.cache.values()
	if err != nil {
		return v.check(false, err.Error())
	}
	for _, s := range stringValues(value) {
		_, found := values[s]
		msg := fmt.Sprintf("Value '%s' was %sfound in the data table '%s'", s, v.not(), v.cache.table)
		if err := v.check(found, msg); err != nil {
			return err
		}
	}
	return nil
}

// MetadataInDataTableValidator requires a dataset metadata element to appear
// in a data table column.
type MetadataInDataTableValidator struct {
	base
	metadataName string
	cache        *columnCache
}

func newMetadataInDataTableValidator(spec toolsource.ValidatorSpec, env Env) (Validator, error) {
	table := spec.Attr("table_name", "")
	if table == "" {
		return nil, fmt.Errorf("%s validator requires a table_name", spec.Type)
	}
	return &MetadataInDataTableValidator{
		base:         newBase("dataset_metadata_in_data_table", spec),
		metadataName: spec.Attr("metadata_name", "dbkey"),
		cache: &columnCache{
			tables: env.DataTables,
			table:  table,
			column: spec.Attr("metadata_column", "value"),
		},
	}, nil
}

func (v *MetadataInDataTableValidator) RequiresDatasetMetadata() bool { return true }

func (v *MetadataInDataTableValidator) Validate(value interface{}) error {
	d, ok := viewOf(value)
	if !ok {
		return nil
	}
	var meta interface{}
	if v.metadataName == "dbkey" && d.dbkey != "" {
		meta = d.dbkey
	} else {
		meta, _ = d.metadata.Get(v.metadataName)
	}
	values, err := v.cache.values()
	if err != nil {
		return v.check(false, err.Error())
	}
	for _, s := range stringValues(meta) {
		_, found := values[s]
		msg := fmt.Sprintf("Value for metadata %s was %sfound in %s.", v.metadataName, v.not(), v.cache.table)
		if err := v.check(found, msg); err != nil {
			return err
		}
	}
	return nil
}
