package params

import (
	"context"
	"fmt"
	"math"
	"strconv"
)

// Repeat holds zero or more blocks of the same inputs. Its value is a list
// of maps, each carrying its position under __index__.
type Repeat struct {
	name        string
	title       string
	titlePlural string
	help        string
	Min         int
	// Max is math.MaxInt when unbounded.
	Max     int
	Default int
	Inputs  Inputs
}

func (r *Repeat) Name() string  { return r.name }
func (r *Repeat) Type() string  { return "repeat" }
func (r *Repeat) Label() string { return r.title }

// Title is used in prefixed labels, e.g. "Query 2 > ".
func (r *Repeat) Title() string { return r.title }

func (r *Repeat) GetInitialValue(trans *Trans, other *ExpressionContext) (interface{}, error) {
	rval := make([]interface{}, 0, r.Default)
	for i := 0; i < r.Default; i++ {
		el, err := initialBlock(trans, r.Inputs, i, other)
		if err != nil {
			return nil, err
		}
		rval = append(rval, el)
	}
	return rval, nil
}

func initialBlock(trans *Trans, inputs Inputs, index int, other *ExpressionContext) (map[string]interface{}, error) {
	el := map[string]interface{}{indexKey: index}
	for _, input := range inputs {
		v, err := input.GetInitialValue(trans, other)
		if err != nil {
			return nil, err
		}
		el[input.Name()] = v
	}
	return el, nil
}

func (r *Repeat) ValueToBasic(value interface{}, app *App, useSecurity bool) (interface{}, error) {
	return blocksToBasic(r.Inputs, value, app, useSecurity)
}

func (r *Repeat) ValueFromBasic(ctx context.Context, value interface{}, app *App, ignoreErrors bool) (interface{}, error) {
	return blocksFromBasic(ctx, r.Inputs, value, app, ignoreErrors)
}

func blocksToBasic(inputs Inputs, value interface{}, app *App, useSecurity bool) (interface{}, error) {
	rval := []interface{}{}
	for _, el := range listify(value) {
		d, ok := asMap(el)
		if !ok {
			return nil, fmt.Errorf("expected a block of values, got %T", el)
		}
		out := map[string]interface{}{}
		if idx, ok := d[indexKey]; ok {
			out[indexKey] = idx
		}
		for _, input := range inputs {
			v, ok := d[input.Name()]
			if !ok {
				continue
			}
			b, err := ValueToBasic(input, v, app, useSecurity)
			if err != nil {
				return nil, err
			}
			out[input.Name()] = b
		}
		rval = append(rval, out)
	}
	return rval, nil
}

// blocksFromBasic restores repeat blocks. Blocks persisted without an
// __index__ get their position.
func blocksFromBasic(ctx context.Context, inputs Inputs, value interface{}, app *App, ignoreErrors bool) (interface{}, error) {
	rval := []interface{}{}
	for i, el := range listify(value) {
		d, ok := asMap(el)
		if !ok {
			if ignoreErrors {
				return rval, nil
			}
			return nil, fmt.Errorf("expected a block of values, got %T", el)
		}
		out := map[string]interface{}{indexKey: i}
		if idx, ok := d[indexKey]; ok {
			if n, err := toInt64(idx); err == nil {
				out[indexKey] = int(n)
			}
		}
		for _, input := range inputs {
			v, ok := d[input.Name()]
			if !ok && ignoreErrors {
				continue
			}
			restored, err := ValueFromBasic(ctx, input, v, app, ignoreErrors)
			if err != nil {
				if ignoreErrors {
					return rval, nil
				}
				return nil, err
			}
			out[input.Name()] = restored
		}
		rval = append(rval, out)
	}
	return rval, nil
}

func (r *Repeat) ToDict(trans *Trans, other *ExpressionContext) map[string]interface{} {
	var max interface{} = r.Max
	if r.Max == math.MaxInt {
		max = "__Infinity__"
	}
	return map[string]interface{}{
		"model_class":  "Repeat",
		"name":         r.name,
		"type":         "repeat",
		"title":        r.title,
		"title_plural": r.titlePlural,
		"help":         r.help,
		"default":      r.Default,
		"min":          r.Min,
		"max":          max,
		"inputs":       inputsToDict(trans, r.Inputs, other),
	}
}

func inputsToDict(trans *Trans, inputs Inputs, other *ExpressionContext) []interface{} {
	out := make([]interface{}, 0, len(inputs))
	for _, input := range inputs {
		out = append(out, input.ToDict(trans, other))
	}
	return out
}

// Section groups inputs under one name without changing their number.
type Section struct {
	name     string
	title    string
	help     string
	expanded bool
	Inputs   Inputs
}

func (s *Section) Name() string  { return s.name }
func (s *Section) Type() string  { return "section" }
func (s *Section) Label() string { return s.title }

func (s *Section) GetInitialValue(trans *Trans, other *ExpressionContext) (interface{}, error) {
	rval := map[string]interface{}{}
	child := NewExpressionContext(rval, other)
	for _, input := range s.Inputs {
		v, err := input.GetInitialValue(trans, child)
		if err != nil {
			return nil, err
		}
		rval[input.Name()] = v
	}
	return rval, nil
}

func (s *Section) ValueToBasic(value interface{}, app *App, useSecurity bool) (interface{}, error) {
	d, _ := asMap(value)
	rval := map[string]interface{}{}
	for _, input := range s.Inputs {
		v, ok := d[input.Name()]
		if !ok {
			continue
		}
		b, err := ValueToBasic(input, v, app, useSecurity)
		if err != nil {
			return nil, err
		}
		rval[input.Name()] = b
	}
	return rval, nil
}

func (s *Section) ValueFromBasic(ctx context.Context, value interface{}, app *App, ignoreErrors bool) (interface{}, error) {
	d, _ := asMap(value)
	rval := map[string]interface{}{}
	for _, input := range s.Inputs {
		v, ok := d[input.Name()]
		if !ok && ignoreErrors {
			continue
		}
		restored, err := ValueFromBasic(ctx, input, v, app, ignoreErrors)
		if err != nil {
			if ignoreErrors {
				return rval, nil
			}
			return nil, err
		}
		rval[input.Name()] = restored
	}
	return rval, nil
}

func (s *Section) ToDict(trans *Trans, other *ExpressionContext) map[string]interface{} {
	return map[string]interface{}{
		"model_class": "Section",
		"name":        s.name,
		"type":        "section",
		"title":       s.title,
		"help":        s.help,
		"expanded":    s.expanded,
		"inputs":      inputsToDict(trans, s.Inputs, other),
	}
}

// ConditionalWhen is one case of a conditional.
type ConditionalWhen struct {
	Value  string
	Inputs Inputs
}

// Conditional shows the inputs of the case selected by its test parameter.
// The active case is always derived from the test value.
type Conditional struct {
	name      string
	TestParam Parameter
	Cases     []*ConditionalWhen
}

func (c *Conditional) Name() string  { return c.name }
func (c *Conditional) Type() string  { return "conditional" }
func (c *Conditional) Label() string { return fmt.Sprintf("Conditional (%s)", c.name) }

func (c *Conditional) caseIndex(value string) int {
	for i, w := range c.Cases {
		if w.Value == value {
			return i
		}
	}
	return -1
}

// GetCurrentCase returns the index of the case whose value equals the
// command line form of the test value. A value that matches no case is an
// error wrapping ErrNoCaseMatched.
func (c *Conditional) GetCurrentCase(value interface{}) (int, error) {
	s, err := c.TestParam.ToParamDictString(value, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %s, %s: %v", ErrNoCaseMatched, c.name, pyStr(value), err)
	}
	if i := c.caseIndex(s); i >= 0 {
		return i, nil
	}
	return 0, fmt.Errorf("%w: %s, %s", ErrNoCaseMatched, c.name, s)
}

func (c *Conditional) GetInitialValue(trans *Trans, other *ExpressionContext) (interface{}, error) {
	testValue, err := c.TestParam.GetInitialValue(trans, other)
	if err != nil {
		return nil, err
	}
	current, err := c.GetCurrentCase(testValue)
	if err != nil {
		return nil, err
	}
	rval := map[string]interface{}{
		currentCaseKey:     current,
		c.TestParam.Name(): testValue,
	}
	child := NewExpressionContext(rval, other)
	for _, input := range c.Cases[current].Inputs {
		v, err := input.GetInitialValue(trans, child)
		if err != nil {
			return nil, err
		}
		rval[input.Name()] = v
	}
	return rval, nil
}

func (c *Conditional) ValueToBasic(value interface{}, app *App, useSecurity bool) (interface{}, error) {
	d, ok := asMap(value)
	if !ok {
		return nil, fmt.Errorf("conditional '%s' expects a map, got %T", c.name, value)
	}
	testValue := d[c.TestParam.Name()]
	basicTest, err := ValueToBasic(c.TestParam, testValue, app, useSecurity)
	if err != nil {
		return nil, err
	}
	current, err := c.GetCurrentCase(testValue)
	if err != nil {
		return nil, err
	}
	rval := map[string]interface{}{
		c.TestParam.Name(): basicTest,
		currentCaseKey:     current,
	}
	for _, input := range c.Cases[current].Inputs {
		v, ok := d[input.Name()]
		if !ok {
			continue
		}
		b, err := ValueToBasic(input, v, app, useSecurity)
		if err != nil {
			return nil, err
		}
		rval[input.Name()] = b
	}
	return rval, nil
}

func (c *Conditional) ValueFromBasic(ctx context.Context, value interface{}, app *App, ignoreErrors bool) (interface{}, error) {
	d, _ := asMap(value)
	rval := map[string]interface{}{}
	fail := func(err error) (interface{}, error) {
		if ignoreErrors {
			return rval, nil
		}
		return nil, err
	}
	testValue, err := ValueFromBasic(ctx, c.TestParam, d[c.TestParam.Name()], app, ignoreErrors)
	if err != nil {
		return fail(err)
	}
	rval[c.TestParam.Name()] = testValue
	current, err := c.GetCurrentCase(testValue)
	if err != nil {
		return fail(err)
	}
	rval[currentCaseKey] = current
	for _, input := range c.Cases[current].Inputs {
		v, ok := d[input.Name()]
		if !ok && ignoreErrors {
			continue
		}
		restored, err := ValueFromBasic(ctx, input, v, app, ignoreErrors)
		if err != nil {
			return fail(err)
		}
		rval[input.Name()] = restored
	}
	return rval, nil
}

func (c *Conditional) ToDict(trans *Trans, other *ExpressionContext) map[string]interface{} {
	cases := make([]interface{}, 0, len(c.Cases))
	for _, w := range c.Cases {
		cases = append(cases, map[string]interface{}{
			"model_class": "ConditionalWhen",
			"value":       w.Value,
			"inputs":      inputsToDict(trans, w.Inputs, other),
		})
	}
	return map[string]interface{}{
		"model_class": "Conditional",
		"name":        c.name,
		"type":        "conditional",
		"test_param":  c.TestParam.ToDict(trans, other),
		"cases":       cases,
	}
}

// UploadDataset holds one block of inputs per file of the selected
// datatype. Composite datatypes have several files.
type UploadDataset struct {
	name            string
	title           string
	fileTypeName    string
	defaultFileType string
	metadataRef     string
	Inputs          Inputs
	app             *App
}

func (u *UploadDataset) Name() string  { return u.name }
func (u *UploadDataset) Type() string  { return "upload_dataset" }
func (u *UploadDataset) Label() string { return u.title }

// Title is used in prefixed labels.
func (u *UploadDataset) Title() string { return u.title }

// FileType returns the datatype selected in the sibling values.
func (u *UploadDataset) FileType(other *ExpressionContext) string {
	if v, ok := other.Get(u.fileTypeName); ok && !isNoneLike(v) {
		return pyStr(v)
	}
	return u.defaultFileType
}

func (u *UploadDataset) writableFiles(other *ExpressionContext) []string {
	if u.app == nil || u.app.Datatypes == nil {
		return []string{"main"}
	}
	return u.app.Datatypes.WritableFiles(u.FileType(other))
}

// FileCount is the number of file blocks: explicit via a file_count
// sibling, otherwise one per writable file of the datatype.
func (u *UploadDataset) FileCount(other *ExpressionContext) int {
	if v, ok := other.Get("file_count"); ok {
		if s := pyStr(v); s != "auto" {
			if n, err := strconv.Atoi(s); err == nil {
				return n
			}
		}
	}
	return len(u.writableFiles(other))
}

// TitleByIndex names the file block at index, or "" past the end.
func (u *UploadDataset) TitleByIndex(index int, other *ExpressionContext) string {
	files := u.writableFiles(other)
	if index < len(files) {
		return files[index]
	}
	if index < u.FileCount(other) {
		return "Extra primary file"
	}
	return ""
}

func (u *UploadDataset) GetInitialValue(trans *Trans, other *ExpressionContext) (interface{}, error) {
	count := len(u.writableFiles(other))
	rval := make([]interface{}, 0, count)
	for i := 0; i < count; i++ {
		el, err := initialBlock(trans, u.Inputs, i, other)
		if err != nil {
			return nil, err
		}
		rval = append(rval, el)
	}
	return rval, nil
}

func (u *UploadDataset) ValueToBasic(value interface{}, app *App, useSecurity bool) (interface{}, error) {
	return blocksToBasic(u.Inputs, value, app, useSecurity)
}

func (u *UploadDataset) ValueFromBasic(ctx context.Context, value interface{}, app *App, ignoreErrors bool) (interface{}, error) {
	return blocksFromBasic(ctx, u.Inputs, value, app, ignoreErrors)
}

func (u *UploadDataset) ToDict(trans *Trans, other *ExpressionContext) map[string]interface{} {
	return map[string]interface{}{
		"model_class":       "UploadDataset",
		"name":              u.name,
		"type":              "upload_dataset",
		"title":             u.title,
		"file_type_name":    u.fileTypeName,
		"default_file_type": u.defaultFileType,
		"metadata_ref":      u.metadataRef,
		"inputs":            inputsToDict(trans, u.Inputs, other),
	}
}
