package history

import (
	"context"
	"fmt"
	"sync"
)

type key struct {
	entityID string
	state    State
}

// MemoryStore is a Store backed by a process-local map. Used for
// development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[key]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[key]*Record)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Upsert(ctx context.Context, record *Record) error {
	if err := record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{record.EntityID, record.State}
	if existing, ok := s.records[k]; ok && !record.Supersedes(existing) {
		return nil
	}
	s.records[k] = record.Clone()
	return nil
}

func (s *MemoryStore) QueryByEntity(ctx context.Context, entityID string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Record
	for k, r := range s.records {
		if k.entityID == entityID {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) SupersedeAndInsert(ctx context.Context, outgoing, incoming *Record) error {
	superseded := outgoing.Clone()
	installed := incoming.Clone()
	if superseded == nil || installed == nil {
		return fmt.Errorf("history: supersede needs both records: %w", ErrInvalidRecord)
	}
	superseded.State = StateLast
	installed.State = StateCurrent
	if err := superseded.Validate(); err != nil {
		return err
	}
	if err := installed.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key{superseded.EntityID, StateLast}] = superseded
	s.records[key{installed.EntityID, StateCurrent}] = installed
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, entityID string, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{entityID, state}
	if _, ok := s.records[k]; !ok {
		return ErrRecordNotFound
	}
	delete(s.records, k)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	return out, nil
}
