package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/pet-listings-scraper/internal/id/uuid"
	"github.com/JakeFAU/pet-listings-scraper/internal/pet"
)

// PetStore keeps records in insertion order for development/testing.
type PetStore struct {
	mu      sync.RWMutex
	ids     pet.IDGenerator
	order   []string
	records map[string]pet.Record
}

// NewPetStore constructs a PetStore. A nil generator falls back to UUIDv7 ids.
func NewPetStore(ids pet.IDGenerator) *PetStore {
	if ids == nil {
		ids = uuid.New()
	}
	return &PetStore{
		ids:     ids,
		records: make(map[string]pet.Record),
	}
}

// Insert appends records and returns their ids.
func (s *PetStore) Insert(_ context.Context, records []pet.Record) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(records)
}

// Replace drops every stored record before inserting the batch.
func (s *PetStore) Replace(_ context.Context, records []pet.Record) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.records = make(map[string]pet.Record, len(records))
	return s.insertLocked(records)
}

func (s *PetStore) insertLocked(records []pet.Record) ([]string, error) {
	ids := make([]string, 0, len(records))
	for _, record := range records {
		id, err := s.ids.NewID()
		if err != nil {
			return ids, fmt.Errorf("assign record id: %w", err)
		}
		if _, exists := s.records[id]; exists {
			return ids, fmt.Errorf("record %s already exists", id)
		}
		s.records[id] = record
		s.order = append(s.order, id)
		ids = append(ids, id)
	}
	return ids, nil
}

// Find returns the records matching filter in insertion order.
func (s *PetStore) Find(_ context.Context, filter pet.Filter) ([]pet.Record, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]pet.Record, 0, len(s.order))
	for _, id := range s.order {
		if record := s.records[id]; filter.Match(record) {
			out = append(out, record)
		}
	}
	return out, nil
}

// Len reports how many records are stored.
func (s *PetStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Close is a no-op.
func (s *PetStore) Close(context.Context) error {
	return nil
}
