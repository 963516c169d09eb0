// Package toolsource reads tool definitions and exposes each declared input
// through a narrow, format independent facade.
package toolsource

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// InputSource describes one declared input: a parameter or a grouping
// construct.
type InputSource interface {
	// Get returns an attribute value, or def when it is absent.
	Get(key, def string) string
	// GetBool parses an attribute as a boolean, returning def when absent.
	GetBool(key string, def bool) bool
	// Has reports whether an attribute is declared.
	Has(key string) bool

	// ParseInputType returns "param", "repeat", "conditional", "section" or
	// "upload_dataset".
	ParseInputType() string
	ParseOptional(def bool) bool
	ParseValidators() []ValidatorSpec
	ParseStaticOptions() []Option
	ParseDrillDownStaticOptions() []DrillDownOption
	// ParseDynamicOptions returns nil when the input has no dynamic options.
	ParseDynamicOptions() *DynamicOptionsSpec
	// ParseNestedInputsSource returns the children of a repeat, section or
	// upload_dataset.
	ParseNestedInputsSource() []InputSource
	// ParseTestInputSource returns the test parameter of a conditional.
	ParseTestInputSource() (InputSource, error)
	ParseWhenInputSources() []WhenSource
}

// ToolSource describes a whole tool.
type ToolSource interface {
	ParseID() string
	ParseName() string
	ParseVersion() string
	ParseProfile() string
	ParseToolType() string
	ParseDescription() string
	ParseInputSources() ([]InputSource, error)
}

// Option is a static select option.
type Option struct {
	Name     string `json:"name" yaml:"label"`
	Value    string `json:"value" yaml:"value"`
	Selected bool   `json:"selected" yaml:"selected"`
}

// DrillDownOption is a node in a static drill down hierarchy.
type DrillDownOption struct {
	Name     string            `json:"name"`
	Value    string            `json:"value"`
	Selected bool              `json:"selected"`
	Options  []DrillDownOption `json:"options"`
}

// ValidatorSpec is a declared validator. Content holds the element text,
// used by regex and expression validators.
type ValidatorSpec struct {
	Type    string
	Message string
	Negate  bool
	Content string
	Attrs   map[string]string
}

// Attr returns a validator attribute, or def.
func (v ValidatorSpec) Attr(key, def string) string {
	if s, ok := v.Attrs[key]; ok {
		return s
	}
	return def
}

// FilterSpec is a filter applied to dynamic options.
type FilterSpec struct {
	Type  string
	Attrs map[string]string
}

// Attr returns a filter attribute, or def.
func (f FilterSpec) Attr(key, def string) string {
	if s, ok := f.Attrs[key]; ok {
		return s
	}
	return def
}

// DynamicOptionsSpec describes where a select gets its options at runtime.
type DynamicOptionsSpec struct {
	// Code names a registered option function, e.g. "list_genomes(trans)".
	Code string
	// FromDataTable names a tool data table.
	FromDataTable string
	// Columns maps "name", "value" and "selected" to data table column indexes.
	Columns map[string]int
	// OptionsFilterAttribute is used by data inputs to filter candidates,
	// e.g. "metadata.dbkey".
	OptionsFilterAttribute string
	Filters                []FilterSpec
}

// WhenSource is one case of a conditional.
type WhenSource struct {
	Value  string
	Inputs []InputSource
}

// LoadFile reads a tool definition, choosing the format from the extension.
func LoadFile(path string) (ToolSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tool source: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		src, err := ParseYAML(data)
		if err != nil {
			return nil, err
		}
		return src, nil
	case ".xml":
		src, err := ParseXML(data)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unsupported tool source format: %s", path)
	}
}

func parseBool(s string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1":
		return true
	case "false", "no", "off", "0":
		return false
	}
	return def
}
