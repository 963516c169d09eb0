package params

import (
	"strings"
	"sync"

	"github.com/galaxyproject/galaxy-params/internal/model"
)

// MatchOptions tune DatasetMatcher.HDAMatch.
type MatchOptions struct {
	CheckImplicitConversions bool
	CheckSecurity            bool
	EnsureVisible            bool
}

// DefaultMatchOptions considers conversions and hidden datasets are only
// matched while selected.
var DefaultMatchOptions = MatchOptions{CheckImplicitConversions: true, EnsureVisible: true}

// HDAMatch describes how a dataset can satisfy a data input. When
// ImplicitConversion is set HDA is the converted copy, if one exists, and
// Original the selected dataset.
type HDAMatch struct {
	HDA                *model.HDA
	Original           *model.HDA
	TargetExt          string
	ImplicitConversion bool
}

// DatasetMatcherFactory caches format checks across the data inputs of one
// request.
type DatasetMatcherFactory struct {
	trans       *Trans
	tool        *Tool
	validStates []model.DatasetState

	mu          sync.Mutex
	formatCache map[[2]string]bool
}

// NewDatasetMatcherFactory creates a factory for the data inputs of tool.
func NewDatasetMatcherFactory(trans *Trans, tool *Tool) *DatasetMatcherFactory {
	states := model.ValidInputStates
	if tool != nil && len(tool.ValidInputStates) > 0 {
		states = tool.ValidInputStates
	}
	return &DatasetMatcherFactory{
		trans:       trans,
		tool:        tool,
		validStates: states,
		formatCache: make(map[[2]string]bool),
	}
}

// MatchesFormat reports whether extension ext satisfies format.
func (f *DatasetMatcherFactory) MatchesFormat(ext, format string) bool {
	key := [2]string{ext, format}
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.formatCache[key]; ok {
		return v
	}
	v := format == "data" || ext == format
	if app := f.trans.app(); !v && app != nil && app.Datatypes != nil {
		v = app.Datatypes.IsSubtype(ext, format)
	}
	f.formatCache[key] = v
	return v
}

// MatchesAnyFormat reports whether ext satisfies one of formats.
func (f *DatasetMatcherFactory) MatchesAnyFormat(ext string, formats []string) bool {
	for _, format := range formats {
		if f.MatchesFormat(ext, format) {
			return true
		}
	}
	return false
}

func (f *DatasetMatcherFactory) validState(s model.DatasetState) bool {
	for _, v := range f.validStates {
		if v == s {
			return true
		}
	}
	return false
}

// DatasetMatcher creates a matcher for one data input.
func (f *DatasetMatcherFactory) DatasetMatcher(param *BaseDataParameter, other *ExpressionContext) *DatasetMatcher {
	m := &DatasetMatcher{factory: f, param: param, selected: map[int64]bool{}}
	if param.options != nil {
		m.filterValues = map[string]bool{}
		if other != nil {
			opts, err := param.options.GetOptions(f.trans, other)
			if err == nil {
				for _, o := range opts {
					m.filterValues[o.Name] = true
				}
			}
		}
	}
	for _, v := range listify(other.Value(param.name)) {
		if hda, ok := v.(*model.HDA); ok && hda != nil {
			m.selected[hda.ID] = true
		}
	}
	return m
}

// DatasetCollectionMatcher creates a collection matcher on top of a
// dataset matcher.
func (f *DatasetMatcherFactory) DatasetCollectionMatcher(dm *DatasetMatcher) *DatasetCollectionMatcher {
	return &DatasetCollectionMatcher{datasetMatcher: dm}
}

// DatasetMatcher decides whether datasets may be used for one data input.
type DatasetMatcher struct {
	factory      *DatasetMatcherFactory
	param        *BaseDataParameter
	filterValues map[string]bool
	selected     map[int64]bool

	rolesOnce sync.Once
	roles     []int64
}

func (m *DatasetMatcher) userRoles() []int64 {
	m.rolesOnce.Do(func() {
		m.roles = m.factory.trans.UserRoles()
	})
	return m.roles
}

// HDAMatch returns how hda could be used, or nil when it cannot.
func (m *DatasetMatcher) HDAMatch(hda *model.HDA, opts MatchOptions) *HDAMatch {
	if hda == nil || !m.factory.validState(hda.State()) {
		return nil
	}
	if opts.EnsureVisible && !hda.Visible && !(m.selected[hda.ID] && hda.ConvertedFrom == nil) {
		return nil
	}
	if hda.Dataset != nil {
		if opts.CheckSecurity && !hda.Dataset.CanAccess(m.userRoles()) {
			return nil
		}
		if tool := m.factory.tool; tool != nil && tool.ToolType == "data_destination" && !hda.Dataset.IsPublic() {
			return nil
		}
	}
	if m.filter(hda) {
		return nil
	}
	return m.ValidHDAMatch(hda, opts.CheckImplicitConversions)
}

// ValidHDAMatch matches hda on format alone, trying an implicit conversion
// when checkConversions is set.
func (m *DatasetMatcher) ValidHDAMatch(hda *model.HDA, checkConversions bool) *HDAMatch {
	if len(m.param.formats) == 0 || m.factory.MatchesAnyFormat(hda.Extension, m.param.formats) {
		return &HDAMatch{HDA: hda}
	}
	if !checkConversions {
		return nil
	}
	app := m.factory.trans.app()
	if app == nil || app.Datatypes == nil {
		return nil
	}
	direct, target, converted := model.FindConversionDestination(app.Datatypes, hda, m.param.formats)
	if direct {
		return &HDAMatch{HDA: hda}
	}
	if target == "" {
		return nil
	}
	match := &HDAMatch{HDA: hda, Original: hda, TargetExt: target, ImplicitConversion: true}
	if converted != nil {
		match.HDA = converted
	}
	if m.filter(match.HDA) {
		return nil
	}
	return match
}

// filter reports whether hda is excluded by the input's option filter.
func (m *DatasetMatcher) filter(hda *model.HDA) bool {
	if m.param.options == nil {
		return false
	}
	return !m.filterValues[filterAttribute(hda, m.param.options.FilterAttribute())]
}

func filterAttribute(hda *model.HDA, attr string) string {
	attr = strings.TrimPrefix(attr, "metadata.")
	switch attr {
	case "", "dbkey":
		if hda.DBKey != "" {
			return hda.DBKey
		}
	case "extension", "ext":
		return hda.Extension
	case "name":
		return hda.Name
	}
	if v, ok := hda.GetMetadata().Get(attr); ok {
		return pyStr(v)
	}
	return ""
}

// DatasetCollectionMatcher decides whether collections may be used for a
// data or data_collection input.
type DatasetCollectionMatcher struct {
	datasetMatcher *DatasetMatcher
}

// HDCAMatch reports whether every element of hdca matches directly.
// Multiple data inputs reduce flat collections only.
func (m *DatasetCollectionMatcher) HDCAMatch(hdca *model.HDCA) bool {
	if hdca == nil || hdca.Collection == nil {
		return false
	}
	c := hdca.Collection
	if m.datasetMatcher.param.multiple && strings.Contains(c.CollectionType, ":") {
		return false
	}
	if types := m.datasetMatcher.param.collectionTypes; len(types) > 0 && !containsString(types, c.CollectionType) {
		return false
	}
	return m.DatasetCollectionMatch(c)
}

// DatasetCollectionMatch reports whether a populated collection contains
// only matching datasets.
func (m *DatasetCollectionMatcher) DatasetCollectionMatch(c *model.DatasetCollection) bool {
	if c == nil || !c.Populated {
		return false
	}
	for _, e := range c.Elements {
		if !m.validElement(e) {
			return false
		}
	}
	return true
}

func (m *DatasetCollectionMatcher) validElement(e *model.DatasetCollectionElement) bool {
	if e.LDDA != nil {
		return false
	}
	if e.ChildCollection != nil {
		return m.DatasetCollectionMatch(e.ChildCollection)
	}
	if e.HDA == nil {
		return false
	}
	match := m.datasetMatcher.HDAMatch(e.HDA, MatchOptions{CheckImplicitConversions: true})
	return match != nil && !match.ImplicitConversion
}
