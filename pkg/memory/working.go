package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// WorkingStore is the in-memory Working tier: context snapshots keyed
// by workflow id, optimized for frequent small writes. Snapshots are
// immutable once stored; a workflow's history is an append-only chain.
type WorkingStore struct {
	mu        sync.RWMutex
	snapshots map[string]*ContextSnapshot
	chains    map[string][]string // workflow id -> snapshot ids in version order
}

// NewWorkingStore creates an empty working store.
func NewWorkingStore() *WorkingStore {
	return &WorkingStore{
		snapshots: make(map[string]*ContextSnapshot),
		chains:    make(map[string][]string),
	}
}

func (s *WorkingStore) Store(ctx context.Context, e Entity) (string, error) {
	snap, ok := e.(*ContextSnapshot)
	if !ok {
		return "", fmt.Errorf("%w: working tier stores context snapshots, got %s", ErrWrongEntityKind, e.Kind())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}

	stored := snap.Clone().(*ContextSnapshot)
	if _, exists := s.snapshots[stored.ID]; !exists {
		s.chains[stored.WorkflowID] = append(s.chains[stored.WorkflowID], stored.ID)
	}
	s.snapshots[stored.ID] = stored

	return stored.ID, nil
}

func (s *WorkingStore) Retrieve(ctx context.Context, id string) (Entity, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[id]
	if !ok {
		return nil, false, nil
	}
	return snap.Clone(), true, nil
}

// Search by workflow id returns the snapshot chain in version order.
func (s *WorkingStore) Search(ctx context.Context, q Query, limit int) ([]Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entity
	if q.WorkflowID != "" {
		for _, id := range s.chains[q.WorkflowID] {
			if snap, ok := s.snapshots[id]; ok {
				out = append(out, snap.Clone())
			}
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return out, nil
	}

	for _, snap := range s.snapshots {
		out = append(out, snap.Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *WorkingStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[id]
	if !ok {
		return false, nil
	}
	delete(s.snapshots, id)

	chain := s.chains[snap.WorkflowID]
	for i, cid := range chain {
		if cid == id {
			s.chains[snap.WorkflowID] = append(chain[:i], chain[i+1:]...)
			break
		}
	}
	if len(s.chains[snap.WorkflowID]) == 0 {
		delete(s.chains, snap.WorkflowID)
	}
	return true, nil
}

func (s *WorkingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// Latest returns the most recent snapshot for a workflow.
func (s *WorkingStore) Latest(workflowID string) (*ContextSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.chains[workflowID]
	if len(chain) == 0 {
		return nil, false
	}
	snap, ok := s.snapshots[chain[len(chain)-1]]
	if !ok {
		return nil, false
	}
	return snap.Clone().(*ContextSnapshot), true
}

// Workflows returns the workflow ids that currently hold snapshots.
func (s *WorkingStore) Workflows() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.chains))
	for id := range s.chains {
		ids = append(ids, id)
	}
	return ids
}
