package model

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is a Datastore backed by maps. It is used in development mode
// and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	hdas  map[int64]*HDA
	hdcas map[int64]*HDCA
	lddas map[int64]*LDDA
	dces  map[int64]*DatasetCollectionElement
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hdas:  make(map[int64]*HDA),
		hdcas: make(map[int64]*HDCA),
		lddas: make(map[int64]*LDDA),
		dces:  make(map[int64]*DatasetCollectionElement),
	}
}

// AddHDA registers a history dataset.
func (s *MemoryStore) AddHDA(h *HDA) *HDA {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hdas[h.ID] = h
	return h
}

// AddHDCA registers a history collection and every element it contains.
func (s *MemoryStore) AddHDCA(h *HDCA) *HDCA {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hdcas[h.ID] = h
	if h.Collection != nil {
		s.addElements(h.Collection)
	}
	return h
}

func (s *MemoryStore) addElements(c *DatasetCollection) {
	for _, e := range c.Elements {
		if e.ID != 0 {
			s.dces[e.ID] = e
		}
		if e.HDA != nil {
			s.hdas[e.HDA.ID] = e.HDA
		}
		if e.ChildCollection != nil {
			s.addElements(e.ChildCollection)
		}
	}
}

// AddLDDA registers a library dataset.
func (s *MemoryStore) AddLDDA(l *LDDA) *LDDA {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lddas[l.ID] = l
	return l
}

// GetHDA implements Datastore.
func (s *MemoryStore) GetHDA(ctx context.Context, id int64) (*HDA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h, ok := s.hdas[id]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("hda %d: %w", id, ErrNotFound)
}

// GetHDCA implements Datastore.
func (s *MemoryStore) GetHDCA(ctx context.Context, id int64) (*HDCA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h, ok := s.hdcas[id]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("hdca %d: %w", id, ErrNotFound)
}

// GetLDDA implements Datastore.
func (s *MemoryStore) GetLDDA(ctx context.Context, id int64) (*LDDA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if l, ok := s.lddas[id]; ok {
		return l, nil
	}
	return nil, fmt.Errorf("ldda %d: %w", id, ErrNotFound)
}

// GetDCE implements Datastore.
func (s *MemoryStore) GetDCE(ctx context.Context, id int64) (*DatasetCollectionElement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.dces[id]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("dce %d: %w", id, ErrNotFound)
}
