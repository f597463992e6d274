package memory

import "context"

// Query selects entities within one tier. Zero values match everything
// on that dimension; each backend interprets only the dimensions that
// make sense for its tier.
type Query struct {
	WorkflowID string
	CustomerID string
	EntityID   string
	Kind       EntityKind
	Text       string
	Offset     int
}

// TierBackend is the uniform contract every tier implements. Any
// concrete backend (in-memory, embedded file-based, relational) must
// satisfy it exactly; the Manager is backend-agnostic.
type TierBackend interface {
	// Store persists the entity and returns its id.
	Store(ctx context.Context, e Entity) (string, error)

	// Retrieve returns the entity, or ok=false if it does not exist.
	Retrieve(ctx context.Context, id string) (Entity, bool, error)

	// Search returns entities matching the query, up to limit.
	Search(ctx context.Context, q Query, limit int) ([]Entity, error)

	// Delete removes the entity, reporting whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// Len returns the number of entities held.
	Len() int
}

// SemanticSearcher is the extra capability of the semantic tier:
// embed the query text and return the nearest items by vector
// similarity. Implementations degrade to an empty result when no
// embedding provider is available, never to an error.
type SemanticSearcher interface {
	SemanticSearch(ctx context.Context, text string, limit int) ([]*KnowledgeItem, error)
}

// Embedder is implemented by semantic backends that can compute a
// knowledge item's embedding up front. The Manager calls it before
// checksumming so the stored fingerprint covers the final content.
type Embedder interface {
	EnsureEmbedding(ctx context.Context, item *KnowledgeItem) error
}

// RelationshipFinder is the extra capability of the graph tier: edges
// touching an entity, in either direction when bidirectional.
type RelationshipFinder interface {
	Relationships(ctx context.Context, entityID string) ([]*RelationshipEdge, error)
}
