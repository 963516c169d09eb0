package toolsource

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Content  string     `xml:",chardata"`
	Children []*xmlNode `xml:",any"`
}

func (n *xmlNode) attr(key string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == key {
			return a.Value, true
		}
	}
	return "", false
}

func (n *xmlNode) find(tag string) *xmlNode {
	for _, c := range n.Children {
		if c.XMLName.Local == tag {
			return c
		}
	}
	return nil
}

func (n *xmlNode) findAll(tag string) []*xmlNode {
	var out []*xmlNode
	for _, c := range n.Children {
		if c.XMLName.Local == tag {
			out = append(out, c)
		}
	}
	return out
}

func (n *xmlNode) attrMap() map[string]string {
	m := make(map[string]string, len(n.Attrs))
	for _, a := range n.Attrs {
		m[a.Name.Local] = a.Value
	}
	return m
}

// XMLToolSource is a Galaxy tool XML document.
type XMLToolSource struct {
	root *xmlNode
}

// ParseXML parses a tool XML document.
func ParseXML(data []byte) (*XMLToolSource, error) {
	var root xmlNode
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse tool XML: %w", err)
	}
	if root.XMLName.Local != "tool" {
		return nil, fmt.Errorf("expected <tool> root element, got <%s>", root.XMLName.Local)
	}
	return &XMLToolSource{root: &root}, nil
}

func (s *XMLToolSource) get(key, def string) string {
	if v, ok := s.root.attr(key); ok {
		return v
	}
	return def
}

func (s *XMLToolSource) ParseID() string      { return s.get("id", "") }
func (s *XMLToolSource) ParseName() string    { return s.get("name", "") }
func (s *XMLToolSource) ParseVersion() string { return s.get("version", "1.0.0") }
func (s *XMLToolSource) ParseProfile() string { return s.get("profile", "16.01") }
func (s *XMLToolSource) ParseToolType() string {
	return s.get("tool_type", "default")
}

func (s *XMLToolSource) ParseDescription() string {
	if d := s.root.find("description"); d != nil {
		return strings.TrimSpace(d.Content)
	}
	return ""
}

// ParseInputSources returns the top level inputs in declaration order.
func (s *XMLToolSource) ParseInputSources() ([]InputSource, error) {
	inputs := s.root.find("inputs")
	if inputs == nil {
		return nil, nil
	}
	return xmlInputSources(inputs), nil
}

func xmlInputSources(parent *xmlNode) []InputSource {
	var out []InputSource
	for _, c := range parent.Children {
		switch c.XMLName.Local {
		case "param", "repeat", "conditional", "section", "upload_dataset":
			out = append(out, &XMLInputSource{elem: c})
		}
	}
	return out
}

// XMLInputSource wraps one input element.
type XMLInputSource struct {
	elem *xmlNode
}

func (s *XMLInputSource) Get(key, def string) string {
	if v, ok := s.elem.attr(key); ok {
		return v
	}
	return def
}

func (s *XMLInputSource) GetBool(key string, def bool) bool {
	v, ok := s.elem.attr(key)
	if !ok {
		return def
	}
	return parseBool(v, def)
}

func (s *XMLInputSource) Has(key string) bool {
	_, ok := s.elem.attr(key)
	return ok
}

func (s *XMLInputSource) ParseInputType() string {
	if s.elem.XMLName.Local == "param" {
		return "param"
	}
	return s.elem.XMLName.Local
}

func (s *XMLInputSource) ParseOptional(def bool) bool {
	return s.GetBool("optional", def)
}

func (s *XMLInputSource) ParseValidators() []ValidatorSpec {
	var out []ValidatorSpec
	for _, v := range s.elem.findAll("validator") {
		attrs := v.attrMap()
		spec := ValidatorSpec{
			Type:    attrs["type"],
			Message: attrs["message"],
			Negate:  parseBool(attrs["negate"], false),
			Content: strings.TrimSpace(v.Content),
			Attrs:   attrs,
		}
		out = append(out, spec)
	}
	return out
}

func (s *XMLInputSource) ParseStaticOptions() []Option {
	var out []Option
	for _, o := range s.elem.findAll("option") {
		value, _ := o.attr("value")
		selected, _ := o.attr("selected")
		out = append(out, Option{
			Name:     strings.TrimSpace(o.Content),
			Value:    value,
			Selected: parseBool(selected, false),
		})
	}
	return out
}

func (s *XMLInputSource) ParseDrillDownStaticOptions() []DrillDownOption {
	options := s.elem.find("options")
	if options == nil {
		return nil
	}
	return xmlDrillDown(options)
}

func xmlDrillDown(parent *xmlNode) []DrillDownOption {
	var out []DrillDownOption
	for _, o := range parent.findAll("option") {
		name, _ := o.attr("name")
		value, _ := o.attr("value")
		selected, _ := o.attr("selected")
		out = append(out, DrillDownOption{
			Name:     name,
			Value:    value,
			Selected: parseBool(selected, false),
			Options:  xmlDrillDown(o),
		})
	}
	return out
}

func (s *XMLInputSource) ParseDynamicOptions() *DynamicOptionsSpec {
	code, hasCode := s.elem.attr("dynamic_options")
	options := s.elem.find("options")
	if !hasCode && options == nil {
		return nil
	}
	spec := &DynamicOptionsSpec{Code: code, Columns: map[string]int{}}
	if options == nil {
		return spec
	}
	spec.FromDataTable, _ = options.attr("from_data_table")
	spec.OptionsFilterAttribute, _ = options.attr("options_filter_attribute")
	for _, col := range options.findAll("column") {
		name, _ := col.attr("name")
		index, _ := col.attr("index")
		if i, err := strconv.Atoi(index); err == nil {
			spec.Columns[name] = i
		}
	}
	for _, f := range options.findAll("filter") {
		attrs := f.attrMap()
		spec.Filters = append(spec.Filters, FilterSpec{Type: attrs["type"], Attrs: attrs})
	}
	// Drill down hierarchies are carried as nested <option> elements, not as
	// a dynamic source.
	if spec.Code == "" && spec.FromDataTable == "" && len(spec.Filters) == 0 && spec.OptionsFilterAttribute == "" {
		return nil
	}
	return spec
}

func (s *XMLInputSource) ParseNestedInputsSource() []InputSource {
	return xmlInputSources(s.elem)
}

func (s *XMLInputSource) ParseTestInputSource() (InputSource, error) {
	param := s.elem.find("param")
	if param == nil {
		return nil, fmt.Errorf("conditional must contain a test parameter")
	}
	return &XMLInputSource{elem: param}, nil
}

func (s *XMLInputSource) ParseWhenInputSources() []WhenSource {
	var out []WhenSource
	for _, w := range s.elem.findAll("when") {
		value, _ := w.attr("value")
		out = append(out, WhenSource{Value: value, Inputs: xmlInputSources(w)})
	}
	return out
}
