package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// GraphStore is the in-memory Graph tier: typed relationship edges
// indexed by endpoint. Edges reference entities by id only; deleting an
// endpoint entity never cascades here.
type GraphStore struct {
	mu     sync.RWMutex
	edges  map[string]*RelationshipEdge
	byFrom map[string][]string
	byTo   map[string][]string
}

// NewGraphStore creates an empty graph store.
func NewGraphStore() *GraphStore {
	return &GraphStore{
		edges:  make(map[string]*RelationshipEdge),
		byFrom: make(map[string][]string),
		byTo:   make(map[string][]string),
	}
}

func (s *GraphStore) Store(ctx context.Context, e Entity) (string, error) {
	edge, ok := e.(*RelationshipEdge)
	if !ok {
		return "", fmt.Errorf("%w: graph tier stores relationship edges, got %s", ErrWrongEntityKind, e.Kind())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if edge.ID == "" {
		edge.ID = uuid.New().String()
	}
	if _, exists := s.edges[edge.ID]; !exists {
		s.byFrom[edge.FromID] = append(s.byFrom[edge.FromID], edge.ID)
		s.byTo[edge.ToID] = append(s.byTo[edge.ToID], edge.ID)
	}
	s.edges[edge.ID] = edge.Clone().(*RelationshipEdge)

	return edge.ID, nil
}

func (s *GraphStore) Retrieve(ctx context.Context, id string) (Entity, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edge, ok := s.edges[id]
	if !ok {
		return nil, false, nil
	}
	return edge.Clone(), true, nil
}

func (s *GraphStore) Search(ctx context.Context, q Query, limit int) ([]Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entity
	for _, edge := range s.edges {
		if q.EntityID != "" && edge.FromID != q.EntityID && edge.ToID != q.EntityID {
			continue
		}
		if q.Text != "" && edge.RelationType != q.Text {
			continue
		}
		out = append(out, edge.Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *GraphStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	edge, ok := s.edges[id]
	if !ok {
		return false, nil
	}
	delete(s.edges, id)
	s.byFrom[edge.FromID] = removeID(s.byFrom[edge.FromID], id)
	s.byTo[edge.ToID] = removeID(s.byTo[edge.ToID], id)
	return true, nil
}

func (s *GraphStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

// Relationships returns edges leaving the entity, plus edges arriving
// at it whose bidirectional flag is set.
func (s *GraphStore) Relationships(ctx context.Context, entityID string) ([]*RelationshipEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*RelationshipEdge
	for _, id := range s.byFrom[entityID] {
		if edge, ok := s.edges[id]; ok {
			out = append(out, edge.Clone().(*RelationshipEdge))
		}
	}
	for _, id := range s.byTo[entityID] {
		edge, ok := s.edges[id]
		if !ok || !edge.Bidirectional {
			continue
		}
		if edge.FromID == entityID {
			continue // self-loop already collected
		}
		out = append(out, edge.Clone().(*RelationshipEdge))
	}
	return out, nil
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
