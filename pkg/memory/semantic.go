package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SemanticStore is the in-memory Semantic tier: knowledge items with
// vector embeddings. Embeddings are computed lazily from content on
// first store and cached on the entity. With no provider configured
// the store still works; semantic search just returns nothing.
type SemanticStore struct {
	mu       sync.RWMutex
	items    map[string]*KnowledgeItem
	provider EmbeddingProvider
	logger   zerolog.Logger
}

// NewSemanticStore creates an empty semantic store. Provider may be
// nil.
func NewSemanticStore(provider EmbeddingProvider, logger zerolog.Logger) *SemanticStore {
	return &SemanticStore{
		items:    make(map[string]*KnowledgeItem),
		provider: provider,
		logger:   logger,
	}
}

func (s *SemanticStore) Store(ctx context.Context, e Entity) (string, error) {
	item, ok := e.(*KnowledgeItem)
	if !ok {
		return "", fmt.Errorf("%w: semantic tier stores knowledge items, got %s", ErrWrongEntityKind, e.Kind())
	}

	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	if err := s.EnsureEmbedding(ctx, item); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.items[item.ID] = item.Clone().(*KnowledgeItem)
	s.mu.Unlock()

	return item.ID, nil
}

func (s *SemanticStore) Retrieve(ctx context.Context, id string) (Entity, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, false, nil
	}
	return item.Clone(), true, nil
}

func (s *SemanticStore) Search(ctx context.Context, q Query, limit int) ([]Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entity
	for _, item := range s.items {
		if q.Text != "" && !containsFold(item.Content, q.Text) {
			continue
		}
		out = append(out, item.Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *SemanticStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return false, nil
	}
	delete(s.items, id)
	return true, nil
}

func (s *SemanticStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// EnsureEmbedding computes the item's embedding from its content when
// absent. Computed once, cached on the entity. A nil provider leaves
// the item unembedded.
func (s *SemanticStore) EnsureEmbedding(ctx context.Context, item *KnowledgeItem) error {
	if len(item.VectorEmbedding) > 0 || s.provider == nil {
		return nil
	}
	embedding, err := s.provider.GenerateEmbedding(ctx, item.Content)
	if err != nil {
		return fmt.Errorf("failed to generate embedding: %w", err)
	}
	item.VectorEmbedding = embedding
	return nil
}

// SemanticSearch embeds the query text and returns the nearest items by
// cosine similarity. Returns an empty result when no provider is
// configured.
func (s *SemanticStore) SemanticSearch(ctx context.Context, text string, limit int) ([]*KnowledgeItem, error) {
	if s.provider == nil {
		s.logger.Debug().Msg("No embedding provider, semantic search degrades to empty result")
		return []*KnowledgeItem{}, nil
	}

	queryVec, err := s.provider.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	type scored struct {
		item  *KnowledgeItem
		score float64
	}

	s.mu.RLock()
	ranked := make([]scored, 0, len(s.items))
	for _, item := range s.items {
		if len(item.VectorEmbedding) == 0 {
			continue
		}
		ranked = append(ranked, scored{
			item:  item.Clone().(*KnowledgeItem),
			score: cosineSimilarity(queryVec, item.VectorEmbedding),
		})
	}
	s.mu.RUnlock()

	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]*KnowledgeItem, len(ranked))
	for i, r := range ranked {
		out[i] = r.item
	}
	return out, nil
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// cosineSimilarity returns the cosine of the angle between two vectors,
// or 0 when lengths differ or either vector is zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
