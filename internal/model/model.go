// Package model provides the dataset, collection and history entities that
// tool parameters resolve references against.
package model

import (
	"context"
	"errors"
	"fmt"
)

// DatasetState is the lifecycle state of a dataset.
type DatasetState string

const (
	StateNew             DatasetState = "new"
	StateUpload          DatasetState = "upload"
	StateQueued          DatasetState = "queued"
	StateRunning         DatasetState = "running"
	StateOK              DatasetState = "ok"
	StateEmpty           DatasetState = "empty"
	StateError           DatasetState = "error"
	StateDiscarded       DatasetState = "discarded"
	StatePaused          DatasetState = "paused"
	StateSettingMetadata DatasetState = "setting_metadata"
	StateFailedMetadata  DatasetState = "failed_metadata"
	StateDeferred        DatasetState = "deferred"
)

// ValidInputStates are the dataset states a tool may consume.
var ValidInputStates = []DatasetState{
	StateOK, StateUpload, StateQueued, StateRunning, StateNew,
	StatePaused, StateSettingMetadata, StateDeferred,
}

// Unusable reports whether a dataset in this state can never become usable.
func (s DatasetState) Unusable() bool {
	return s == StateError || s == StateDiscarded
}

// Source tags used in {"src": ..., "id": ...} references.
const (
	SrcHDA  = "hda"
	SrcHDCA = "hdca"
	SrcLDDA = "ldda"
	SrcDCE  = "dce"
)

// ErrNotFound is returned by a Datastore when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Dataset is the physical dataset shared by HDAs and LDDAs.
type Dataset struct {
	ID          int64        `json:"id"`
	State       DatasetState `json:"state"`
	FileSize    int64        `json:"file_size"`
	AccessRoles []int64      `json:"access_roles,omitempty"`
}

// IsPublic reports whether no role restricts access to the dataset.
func (d *Dataset) IsPublic() bool {
	return len(d.AccessRoles) == 0
}

// CanAccess reports whether any of the given roles grants access.
func (d *Dataset) CanAccess(roles []int64) bool {
	if d.IsPublic() {
		return true
	}
	for _, required := range d.AccessRoles {
		for _, r := range roles {
			if r == required {
				return true
			}
		}
	}
	return false
}

// Metadata holds datatype metadata for a dataset instance.
type Metadata struct {
	Columns     int                    `json:"columns,omitempty"`
	ColumnTypes []string               `json:"column_types,omitempty"`
	ColumnNames []string               `json:"column_names,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// Get returns a metadata element by name.
func (m *Metadata) Get(name string) (interface{}, bool) {
	switch name {
	case "columns":
		if m.Columns == 0 {
			return nil, false
		}
		return m.Columns, true
	case "column_types":
		if len(m.ColumnTypes) == 0 {
			return nil, false
		}
		return m.ColumnTypes, true
	case "column_names":
		if len(m.ColumnNames) == 0 {
			return nil, false
		}
		return m.ColumnNames, true
	}
	v, ok := m.Extra[name]
	return v, ok
}

// MissingMeta returns the first metadata element that is unset. When check is
// non-empty only those names are inspected; names in skip are ignored.
func (m *Metadata) MissingMeta(check, skip []string) (string, bool) {
	names := check
	if len(names) == 0 {
		names = []string{"columns", "column_types", "column_names"}
		for k := range m.Extra {
			names = append(names, k)
		}
	}
	for _, name := range names {
		if contains(skip, name) {
			continue
		}
		v, ok := m.Get(name)
		if !ok || isEmptyValue(v) {
			return name, true
		}
	}
	return "", false
}

// HDA is a dataset instance inside a history.
type HDA struct {
	ID        int64     `json:"id"`
	HID       int       `json:"hid"`
	Name      string    `json:"name"`
	Extension string    `json:"extension"`
	DBKey     string    `json:"dbkey"`
	Deleted   bool      `json:"deleted"`
	Visible   bool      `json:"visible"`
	Dataset   *Dataset  `json:"dataset"`
	Metadata  *Metadata `json:"metadata,omitempty"`

	// ImplicitConversions maps a target extension to an already converted copy.
	ImplicitConversions map[string]*HDA `json:"-"`
	// ConvertedFrom is set on implicitly converted datasets.
	ConvertedFrom *HDA `json:"-"`
	// ImplicitConversion marks a selection that still needs converting.
	ImplicitConversion bool `json:"-"`

	ElementIdentifier string `json:"element_identifier,omitempty"`
}

// State returns the dataset state, or new when no dataset is attached.
func (h *HDA) State() DatasetState {
	if h.Dataset == nil {
		return StateNew
	}
	return h.Dataset.State
}

// HasData reports whether the underlying file is non-empty.
func (h *HDA) HasData() bool {
	return h.Dataset != nil && h.Dataset.FileSize > 0
}

// GetMetadata returns the metadata, never nil.
func (h *HDA) GetMetadata() *Metadata {
	if h.Metadata == nil {
		return &Metadata{}
	}
	return h.Metadata
}

// LDDA is a dataset instance inside a data library.
type LDDA struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Extension string    `json:"extension"`
	DBKey     string    `json:"dbkey"`
	Deleted   bool      `json:"deleted"`
	Dataset   *Dataset  `json:"dataset"`
	Metadata  *Metadata `json:"metadata,omitempty"`
}

// DatasetCollection is the structural part of a collection.
type DatasetCollection struct {
	ID             int64                       `json:"id"`
	CollectionType string                      `json:"collection_type"`
	Populated      bool                        `json:"populated"`
	Elements       []*DatasetCollectionElement `json:"elements"`
}

// DatasetInstances returns every leaf HDA, depth first.
func (c *DatasetCollection) DatasetInstances() []*HDA {
	var out []*HDA
	for _, e := range c.Elements {
		switch {
		case e.HDA != nil:
			out = append(out, e.HDA)
		case e.ChildCollection != nil:
			out = append(out, e.ChildCollection.DatasetInstances()...)
		}
	}
	return out
}

// DatasetElements returns the elements that directly wrap a dataset.
func (c *DatasetCollection) DatasetElements() []*DatasetCollectionElement {
	var out []*DatasetCollectionElement
	for _, e := range c.Elements {
		if e.HDA != nil || e.LDDA != nil {
			out = append(out, e)
		}
	}
	return out
}

// DatasetCollectionElement is one member of a collection.
type DatasetCollectionElement struct {
	ID                int64              `json:"id"`
	ElementIdentifier string             `json:"element_identifier"`
	HDA               *HDA               `json:"hda,omitempty"`
	LDDA              *LDDA              `json:"ldda,omitempty"`
	ChildCollection   *DatasetCollection `json:"child_collection,omitempty"`
}

// HDCA is a collection instance inside a history.
type HDCA struct {
	ID         int64              `json:"id"`
	HID        int                `json:"hid"`
	Name       string             `json:"name"`
	Deleted    bool               `json:"deleted"`
	Visible    bool               `json:"visible"`
	Collection *DatasetCollection `json:"collection"`
}

// ToHDARepresentative returns the first leaf dataset of the collection.
func (h *HDCA) ToHDARepresentative() *HDA {
	if h.Collection == nil {
		return nil
	}
	instances := h.Collection.DatasetInstances()
	if len(instances) == 0 {
		return nil
	}
	return instances[0]
}

// History is a user history. Datasets and Collections are ordered by hid.
type History struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	GenomeBuild string  `json:"genome_build"`
	Datasets    []*HDA  `json:"-"`
	Collections []*HDCA `json:"-"`
}

// User is the requesting user.
type User struct {
	ID     int64   `json:"id"`
	Email  string  `json:"email"`
	Roles  []int64 `json:"roles"`
	FTPDir string  `json:"ftp_dir,omitempty"`
}

// Datastore resolves decoded ids to model objects. Lookups are read only and
// safe to repeat.
type Datastore interface {
	GetHDA(ctx context.Context, id int64) (*HDA, error)
	GetHDCA(ctx context.Context, id int64) (*HDCA, error)
	GetLDDA(ctx context.Context, id int64) (*LDDA, error)
	GetDCE(ctx context.Context, id int64) (*DatasetCollectionElement, error)
}

// SplitDatasetCollection splits a collection into its sub-collection elements
// of the given type.
func SplitDatasetCollection(collection *DatasetCollection, collectionType string) ([]*DatasetCollectionElement, error) {
	this := collection.CollectionType
	if !hasSuffixType(this, collectionType) || this == collectionType {
		return nil, fmt.Errorf("cannot split collection of type [%s] into collections of type [%s]", this, collectionType)
	}
	var split []*DatasetCollectionElement
	for _, element := range collection.Elements {
		child := element.ChildCollection
		if child == nil {
			return nil, fmt.Errorf("found element of type 'dataset' in collection that was expected to contain only collections")
		}
		if child.CollectionType == collectionType {
			split = append(split, element)
			continue
		}
		nested, err := SplitDatasetCollection(child, collectionType)
		if err != nil {
			return nil, err
		}
		split = append(split, nested...)
	}
	return split, nil
}

func hasSuffixType(collectionType, suffix string) bool {
	if len(suffix) > len(collectionType) {
		return false
	}
	return collectionType[len(collectionType)-len(suffix):] == suffix
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func isEmptyValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []string:
		return len(t) == 0
	case []interface{}:
		return len(t) == 0
	}
	return false
}
