package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockEmbeddingProvider generates deterministic embeddings for tests.
type MockEmbeddingProvider struct {
	dimension int
	calls     int
}

func NewMockEmbeddingProvider(dimension int) *MockEmbeddingProvider {
	return &MockEmbeddingProvider{dimension: dimension}
}

func (p *MockEmbeddingProvider) Dimension() int {
	return p.dimension
}

func (p *MockEmbeddingProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	p.calls++

	// Deterministic embedding from a text hash
	hash := 0
	for _, c := range text {
		hash = hash*31 + int(c)
	}

	embedding := make([]float32, p.dimension)
	for i := 0; i < p.dimension; i++ {
		embedding[i] = float32((hash+i)%100) / 100.0
	}
	return embedding, nil
}

func (p *MockEmbeddingProvider) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := p.GenerateEmbedding(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

func TestMockEmbeddingProvider_Deterministic(t *testing.T) {
	p := NewMockEmbeddingProvider(8)

	a, err := p.GenerateEmbedding(context.Background(), "cats are mammals")
	require.NoError(t, err)
	b, err := p.GenerateEmbedding(context.Background(), "cats are mammals")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 8)
}

func TestMockEmbeddingProvider_Batch(t *testing.T) {
	p := NewMockEmbeddingProvider(4)

	embeddings, err := p.GenerateEmbeddings(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)

	assert.Len(t, embeddings, 3)
	for _, emb := range embeddings {
		assert.Len(t, emb, 4)
	}
}

func TestNewOpenAIProvider_Defaults(t *testing.T) {
	p := NewOpenAIProvider("test-key", "")
	assert.Equal(t, 1536, p.Dimension())

	large := NewOpenAIProvider("test-key", "text-embedding-3-large")
	assert.Equal(t, 3072, large.Dimension())
}
