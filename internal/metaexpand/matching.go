package metaexpand

import (
	"sort"
	"strings"

	"github.com/galaxyproject/galaxy-params/internal/model"
)

// Structure is the shape of a collection that is mapped over. A nil
// Structure is a leaf.
type Structure struct {
	CollectionType string
	Children       []StructureChild
}

// StructureChild is one identified position of a Structure.
type StructureChild struct {
	Identifier string
	Sub        *Structure
}

// IsLeaf reports whether s stands for a single dataset or subcollection.
func (s *Structure) IsLeaf() bool { return s == nil }

// GetStructure describes collection down to leafType. Collections of
// leafType become leaves; an empty leafType descends to datasets.
func GetStructure(collection *model.DatasetCollection, leafType string) *Structure {
	if collection == nil || (leafType != "" && collection.CollectionType == leafType) {
		return nil
	}
	s := &Structure{CollectionType: effectiveType(collection.CollectionType, leafType)}
	for _, element := range collection.Elements {
		child := StructureChild{Identifier: element.ElementIdentifier}
		if element.ChildCollection != nil {
			child.Sub = GetStructure(element.ChildCollection, leafType)
		}
		s.Children = append(s.Children, child)
	}
	return s
}

func effectiveType(collectionType, leafType string) string {
	if leafType == "" {
		return collectionType
	}
	return strings.TrimSuffix(collectionType, ":"+leafType)
}

// CanMatch reports whether s and other can be walked in lock step.
func (s *Structure) CanMatch(other *Structure) bool {
	if s.IsLeaf() || other.IsLeaf() {
		return s.IsLeaf() == other.IsLeaf()
	}
	if s.CollectionType != other.CollectionType || len(s.Children) != len(other.Children) {
		return false
	}
	for i, mine := range s.Children {
		theirs := other.Children[i]
		if mine.Sub.IsLeaf() != theirs.Sub.IsLeaf() {
			return false
		}
		if !mine.Sub.IsLeaf() && !mine.Sub.CanMatch(theirs.Sub) {
			return false
		}
	}
	return true
}

// Multiply nests other below every leaf of s.
func (s *Structure) Multiply(other *Structure) *Structure {
	if s.IsLeaf() {
		return other.clone()
	}
	if other.IsLeaf() {
		return s.clone()
	}
	out := &Structure{CollectionType: s.CollectionType + ":" + other.CollectionType}
	for _, child := range s.Children {
		out.Children = append(out.Children, StructureChild{
			Identifier: child.Identifier,
			Sub:        child.Sub.Multiply(other),
		})
	}
	return out
}

func (s *Structure) clone() *Structure {
	if s.IsLeaf() {
		return nil
	}
	out := &Structure{CollectionType: s.CollectionType}
	for _, child := range s.Children {
		out.Children = append(out.Children, StructureChild{Identifier: child.Identifier, Sub: child.Sub.clone()})
	}
	return out
}

// Len counts the leaves of s.
func (s *Structure) Len() int {
	if s.IsLeaf() {
		return 1
	}
	n := 0
	for _, child := range s.Children {
		n += child.Sub.Len()
	}
	return n
}

type collectionToMatch struct {
	collection        *model.DatasetCollection
	subcollectionType string
	linked            bool
}

// CollectionsToMatch gathers the collections a request maps over.
type CollectionsToMatch struct {
	collections map[string]collectionToMatch
}

// NewCollectionsToMatch returns an empty set.
func NewCollectionsToMatch() *CollectionsToMatch {
	return &CollectionsToMatch{collections: map[string]collectionToMatch{}}
}

// Add records that input maps over collection.
func (c *CollectionsToMatch) Add(input string, collection *model.DatasetCollection, subcollectionType string, linked bool) {
	c.collections[input] = collectionToMatch{collection: collection, subcollectionType: subcollectionType, linked: linked}
}

// HasCollections reports whether anything was added.
func (c *CollectionsToMatch) HasCollections() bool { return len(c.collections) > 0 }

// MatchingCollections is the agreed mapping structure of a request.
type MatchingCollections struct {
	LinkedStructure    *Structure
	UnlinkedStructures []*Structure
	Collections        map[string]*model.DatasetCollection
	SubcollectionTypes map[string]string
}

// MatchCollections checks that linked collections share one structure.
// It returns nil when nothing is mapped over.
func MatchCollections(toMatch *CollectionsToMatch) (*MatchingCollections, error) {
	if toMatch == nil || !toMatch.HasCollections() {
		return nil, nil
	}
	m := &MatchingCollections{
		Collections:        map[string]*model.DatasetCollection{},
		SubcollectionTypes: map[string]string{},
	}
	names := make([]string, 0, len(toMatch.collections))
	for name := range toMatch.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := toMatch.collections[name]
		structure := GetStructure(c.collection, c.subcollectionType)
		if !c.linked {
			m.UnlinkedStructures = append(m.UnlinkedStructures, structure)
			continue
		}
		if m.LinkedStructure == nil {
			m.LinkedStructure = structure
		} else if !m.LinkedStructure.CanMatch(structure) {
			return nil, &RequestParameterInvalidError{Message: cannotMatchMessage}
		}
		m.Collections[name] = c.collection
		m.SubcollectionTypes[name] = c.subcollectionType
	}
	return m, nil
}

// Structure crosses the unlinked structures with the linked one. It is nil
// when the result is a single leaf.
func (m *MatchingCollections) Structure() *Structure {
	var effective *Structure
	for _, s := range m.UnlinkedStructures {
		effective = effective.Multiply(s)
	}
	return effective.Multiply(m.LinkedStructure)
}

// IsMappedOver reports whether input is one of the linked collections.
func (m *MatchingCollections) IsMappedOver(input string) bool {
	_, ok := m.Collections[input]
	return ok
}

// SubcollectionMappingType returns the subcollection type input is mapped
// over with, or "".
func (m *MatchingCollections) SubcollectionMappingType(input string) string {
	return m.SubcollectionTypes[input]
}

// SliceCollections walks the linked collections in lock step and returns,
// per leaf, the element each input receives.
func (m *MatchingCollections) SliceCollections() []map[string]*model.DatasetCollectionElement {
	var out []map[string]*model.DatasetCollectionElement
	walkCollections(m.LinkedStructure, m.Collections, &out)
	return out
}

func walkCollections(s *Structure, collections map[string]*model.DatasetCollection, out *[]map[string]*model.DatasetCollectionElement) {
	if s.IsLeaf() {
		return
	}
	for i, child := range s.Children {
		elements := map[string]*model.DatasetCollectionElement{}
		for name, c := range collections {
			if c != nil && i < len(c.Elements) {
				elements[name] = c.Elements[i]
			}
		}
		if child.Sub.IsLeaf() {
			*out = append(*out, elements)
			continue
		}
		children := map[string]*model.DatasetCollection{}
		for name, e := range elements {
			children[name] = e.ChildCollection
		}
		walkCollections(child.Sub, children, out)
	}
}
