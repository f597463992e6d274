package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// EpisodicStore is the in-memory Episodic tier: append-mostly workflow
// execution records, queried by workflow id or customer id with
// offset/limit pagination.
type EpisodicStore struct {
	mu      sync.RWMutex
	records map[string]*WorkflowRecord
	order   []string // insertion order for stable pagination
}

// NewEpisodicStore creates an empty episodic store.
func NewEpisodicStore() *EpisodicStore {
	return &EpisodicStore{
		records: make(map[string]*WorkflowRecord),
	}
}

func (s *EpisodicStore) Store(ctx context.Context, e Entity) (string, error) {
	rec, ok := e.(*WorkflowRecord)
	if !ok {
		return "", fmt.Errorf("%w: episodic tier stores workflow records, got %s", ErrWrongEntityKind, e.Kind())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if _, exists := s.records[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = rec.Clone().(*WorkflowRecord)

	return rec.ID, nil
}

func (s *EpisodicStore) Retrieve(ctx context.Context, id string) (Entity, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

func (s *EpisodicStore) Search(ctx context.Context, q Query, limit int) ([]Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entity
	skipped := 0
	for _, id := range s.order {
		rec, ok := s.records[id]
		if !ok {
			continue
		}
		if q.WorkflowID != "" && rec.WorkflowID != q.WorkflowID {
			continue
		}
		if q.CustomerID != "" && rec.CustomerID != q.CustomerID {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		out = append(out, rec.Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *EpisodicStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return false, nil
	}
	delete(s.records, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *EpisodicStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
