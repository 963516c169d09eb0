package model

import "sync"

// DatatypeRegistry answers format questions for datasets.
type DatatypeRegistry interface {
	// IsSubtype reports whether a dataset of extension ext satisfies format.
	IsSubtype(ext, format string) bool
	// ConverterTargets lists the extensions ext can be implicitly converted to.
	ConverterTargets(ext string) []string
	// WritableFiles lists the composite file names of ext; non-composite
	// datatypes have exactly one.
	WritableFiles(ext string) []string
}

// SimpleRegistry is an in-memory DatatypeRegistry. Parents map an extension to
// the extension it derives from ("data" is the implicit root).
type SimpleRegistry struct {
	mu         sync.RWMutex
	parents    map[string]string
	converters map[string][]string
	composites map[string][]string
}

// NewSimpleRegistry creates an empty registry.
func NewSimpleRegistry() *SimpleRegistry {
	return &SimpleRegistry{
		parents:    make(map[string]string),
		converters: make(map[string][]string),
		composites: make(map[string][]string),
	}
}

// AddDatatype registers ext as a subtype of parent.
func (r *SimpleRegistry) AddDatatype(ext, parent string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parents[ext] = parent
}

// AddConverter registers an implicit converter from one extension to another.
func (r *SimpleRegistry) AddConverter(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.converters[from] = append(r.converters[from], to)
}

// AddComposite registers the writable files of a composite datatype.
func (r *SimpleRegistry) AddComposite(ext string, files ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.composites[ext] = files
}

// IsSubtype implements DatatypeRegistry.
func (r *SimpleRegistry) IsSubtype(ext, format string) bool {
	if format == "data" || ext == format {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]bool{}
	for cur := ext; cur != "" && !seen[cur]; cur = r.parents[cur] {
		if cur == format {
			return true
		}
		seen[cur] = true
	}
	return false
}

// ConverterTargets implements DatatypeRegistry.
func (r *SimpleRegistry) ConverterTargets(ext string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.converters[ext]...)
}

// WritableFiles implements DatatypeRegistry.
func (r *SimpleRegistry) WritableFiles(ext string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if files, ok := r.composites[ext]; ok && len(files) > 0 {
		return append([]string(nil), files...)
	}
	return []string{"main"}
}

// FindConversionDestination decides how hda can satisfy one of formats. A
// direct match wins; otherwise the first convertible target extension is
// returned together with an already converted dataset, if one exists.
func FindConversionDestination(reg DatatypeRegistry, hda *HDA, formats []string) (direct bool, targetExt string, converted *HDA) {
	if len(formats) == 0 {
		return true, "", nil
	}
	for _, f := range formats {
		if reg.IsSubtype(hda.Extension, f) {
			return true, "", nil
		}
	}
	targets := reg.ConverterTargets(hda.Extension)
	for _, f := range formats {
		for _, target := range targets {
			if reg.IsSubtype(target, f) {
				return false, target, hda.ImplicitConversions[target]
			}
		}
	}
	return false, "", nil
}
