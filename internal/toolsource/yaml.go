package toolsource

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// YAMLToolSource is a Galaxy YAML tool description.
type YAMLToolSource struct {
	raw map[string]interface{}
}

// ParseYAML parses a YAML tool description.
func ParseYAML(data []byte) (*YAMLToolSource, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse tool YAML: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("empty tool document")
	}
	return &YAMLToolSource{raw: raw}, nil
}

func (s *YAMLToolSource) ParseID() string          { return stringOf(s.raw["id"], "") }
func (s *YAMLToolSource) ParseName() string        { return stringOf(s.raw["name"], "") }
func (s *YAMLToolSource) ParseVersion() string     { return stringOf(s.raw["version"], "1.0.0") }
func (s *YAMLToolSource) ParseProfile() string     { return stringOf(s.raw["profile"], "16.04") }
func (s *YAMLToolSource) ParseToolType() string    { return stringOf(s.raw["tool_type"], "default") }
func (s *YAMLToolSource) ParseDescription() string { return stringOf(s.raw["description"], "") }

func (s *YAMLToolSource) ParseInputSources() ([]InputSource, error) {
	return yamlInputSources(s.raw["inputs"])
}

func yamlInputSources(raw interface{}) ([]InputSource, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid inputs format")
	}
	out := make([]InputSource, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid input entry")
		}
		out = append(out, &YAMLInputSource{raw: m})
	}
	return out, nil
}

// YAMLInputSource wraps one input mapping.
type YAMLInputSource struct {
	raw map[string]interface{}
}

func (s *YAMLInputSource) Get(key, def string) string {
	return stringOf(s.raw[key], def)
}

func (s *YAMLInputSource) GetBool(key string, def bool) bool {
	switch v := s.raw[key].(type) {
	case bool:
		return v
	case string:
		return parseBool(v, def)
	}
	return def
}

func (s *YAMLInputSource) Has(key string) bool {
	_, ok := s.raw[key]
	return ok
}

func (s *YAMLInputSource) ParseInputType() string {
	switch t := s.Get("type", ""); t {
	case "repeat", "conditional", "section", "upload_dataset":
		return t
	}
	return "param"
}

func (s *YAMLInputSource) ParseOptional(def bool) bool {
	return s.GetBool("optional", def)
}

func (s *YAMLInputSource) ParseValidators() []ValidatorSpec {
	list, _ := s.raw["validators"].([]interface{})
	var out []ValidatorSpec
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		attrs := make(map[string]string, len(m))
		for k, v := range m {
			attrs[k] = stringOf(v, "")
		}
		out = append(out, ValidatorSpec{
			Type:    attrs["type"],
			Message: attrs["message"],
			Negate:  parseBool(attrs["negate"], false),
			Content: attrs["expression"],
			Attrs:   attrs,
		})
	}
	return out
}

func (s *YAMLInputSource) ParseStaticOptions() []Option {
	list, _ := s.raw["options"].([]interface{})
	var out []Option
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		value := stringOf(m["value"], "")
		out = append(out, Option{
			Name:     stringOf(m["label"], value),
			Value:    value,
			Selected: boolOf(m["selected"]),
		})
	}
	return out
}

func (s *YAMLInputSource) ParseDrillDownStaticOptions() []DrillDownOption {
	return yamlDrillDown(s.raw["options"])
}

func yamlDrillDown(raw interface{}) []DrillDownOption {
	list, _ := raw.([]interface{})
	var out []DrillDownOption
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, DrillDownOption{
			Name:     stringOf(m["name"], ""),
			Value:    stringOf(m["value"], ""),
			Selected: boolOf(m["selected"]),
			Options:  yamlDrillDown(m["options"]),
		})
	}
	return out
}

func (s *YAMLInputSource) ParseDynamicOptions() *DynamicOptionsSpec {
	code := s.Get("dynamic_options", "")
	m, _ := s.raw["dynamic_options_source"].(map[string]interface{})
	if code == "" && m == nil {
		return nil
	}
	spec := &DynamicOptionsSpec{Code: code, Columns: map[string]int{}}
	if m == nil {
		return spec
	}
	spec.FromDataTable = stringOf(m["from_data_table"], "")
	spec.OptionsFilterAttribute = stringOf(m["options_filter_attribute"], "")
	if cols, ok := m["columns"].(map[string]interface{}); ok {
		for name, idx := range cols {
			if i, err := strconv.Atoi(stringOf(idx, "")); err == nil {
				spec.Columns[name] = i
			}
		}
	}
	filters, _ := m["filters"].([]interface{})
	for _, f := range filters {
		fm, ok := f.(map[string]interface{})
		if !ok {
			continue
		}
		attrs := make(map[string]string, len(fm))
		for k, v := range fm {
			attrs[k] = stringOf(v, "")
		}
		spec.Filters = append(spec.Filters, FilterSpec{Type: attrs["type"], Attrs: attrs})
	}
	return spec
}

func (s *YAMLInputSource) ParseNestedInputsSource() []InputSource {
	key := "parameters"
	if s.ParseInputType() == "repeat" {
		key = "blocks"
	}
	nested, err := yamlInputSources(s.raw[key])
	if err != nil {
		return nil
	}
	return nested
}

func (s *YAMLInputSource) ParseTestInputSource() (InputSource, error) {
	m, ok := s.raw["test"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("conditional must contain a test parameter")
	}
	return &YAMLInputSource{raw: m}, nil
}

func (s *YAMLInputSource) ParseWhenInputSources() []WhenSource {
	list, _ := s.raw["when"].([]interface{})
	var out []WhenSource
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		inputs, _ := yamlInputSources(m["parameters"])
		out = append(out, WhenSource{Value: stringOf(m["discriminator"], ""), Inputs: inputs})
	}
	return out
}

func stringOf(v interface{}, def string) string {
	switch t := v.(type) {
	case nil:
		return def
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func boolOf(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return parseBool(t, false)
	}
	return false
}
