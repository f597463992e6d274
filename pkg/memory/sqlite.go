package memory

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// SQLiteSemanticStore is the persistent Semantic tier backend: items in
// a plain table, embeddings in a sqlite-vec vec0 virtual table with
// cosine distance. It implements the same TierBackend contract as the
// in-memory store.
type SQLiteSemanticStore struct {
	db       *sql.DB
	provider EmbeddingProvider
	logger   zerolog.Logger
}

// SQLiteConfig holds sqlite semantic store configuration.
type SQLiteConfig struct {
	DBPath   string
	Provider EmbeddingProvider // optional, nil degrades semantic search
	Logger   zerolog.Logger
}

// NewSQLiteSemanticStore opens the database and initializes the schema.
func NewSQLiteSemanticStore(cfg SQLiteConfig) (*SQLiteSemanticStore, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteSemanticStore{
		db:       db,
		provider: cfg.Provider,
		logger:   cfg.Logger,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info().Str("path", cfg.DBPath).Msg("SQLite semantic store initialized")
	return s, nil
}

func (s *SQLiteSemanticStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS knowledge_items (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			content_type TEXT NOT NULL,
			entity_json BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_items_content_type ON knowledge_items(content_type);

		CREATE TABLE IF NOT EXISTS embedding_cache (
			content_hash TEXT PRIMARY KEY,
			embedding BLOB NOT NULL,
			dimension INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	if s.provider != nil {
		vectorSchema := fmt.Sprintf(`
			CREATE VIRTUAL TABLE IF NOT EXISTS embeddings USING vec0(
				item_id TEXT PRIMARY KEY,
				embedding float[%d] distance_metric=cosine
			);
		`, s.provider.Dimension())
		if _, err := s.db.Exec(vectorSchema); err != nil {
			return fmt.Errorf("failed to create vector table: %w", err)
		}
	}

	return nil
}

func (s *SQLiteSemanticStore) Store(ctx context.Context, e Entity) (string, error) {
	item, ok := e.(*KnowledgeItem)
	if !ok {
		return "", fmt.Errorf("%w: semantic tier stores knowledge items, got %s", ErrWrongEntityKind, e.Kind())
	}

	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if len(item.VectorEmbedding) == 0 && s.provider != nil {
		embedding, err := s.fetchOrGenerateEmbedding(ctx, tx, item.Content)
		if err != nil {
			return "", err
		}
		item.VectorEmbedding = embedding
	}

	entityJSON, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("failed to marshal knowledge item: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO knowledge_items (id, content, content_type, entity_json, updated_at) VALUES (?, ?, ?, ?, ?)",
		item.ID, item.Content, item.ContentType, entityJSON, time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to store knowledge item: %w", err)
	}

	if len(item.VectorEmbedding) > 0 && s.provider != nil {
		embeddingJSON, err := json.Marshal(item.VectorEmbedding)
		if err != nil {
			return "", fmt.Errorf("failed to marshal embedding: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO embeddings (item_id, embedding) VALUES (?, ?)",
			item.ID, string(embeddingJSON),
		)
		if err != nil {
			return "", fmt.Errorf("failed to store embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	return item.ID, nil
}

// EnsureEmbedding computes the item's embedding from its content when
// absent, going through the content-addressed cache. A nil provider
// leaves the item unembedded.
func (s *SQLiteSemanticStore) EnsureEmbedding(ctx context.Context, item *KnowledgeItem) error {
	if len(item.VectorEmbedding) > 0 || s.provider == nil {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	embedding, err := s.fetchOrGenerateEmbedding(ctx, tx, item.Content)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	item.VectorEmbedding = embedding
	return nil
}

// fetchOrGenerateEmbedding checks the content-addressed cache before
// calling the provider.
func (s *SQLiteSemanticStore) fetchOrGenerateEmbedding(ctx context.Context, tx *sql.Tx, content string) ([]float32, error) {
	hashBytes := sha256.Sum256([]byte(content))
	contentHash := hex.EncodeToString(hashBytes[:])

	var cached []byte
	err := tx.QueryRowContext(ctx,
		"SELECT embedding FROM embedding_cache WHERE content_hash = ?", contentHash,
	).Scan(&cached)

	var embedding []float32
	if err == nil {
		if err := json.Unmarshal(cached, &embedding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cached embedding: %w", err)
		}
		return embedding, nil
	}

	embedding, err = s.provider.GenerateEmbedding(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO embedding_cache (content_hash, embedding, dimension, created_at) VALUES (?, ?, ?, ?)",
		contentHash, embeddingJSON, len(embedding), time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to cache embedding: %w", err)
	}

	return embedding, nil
}

func (s *SQLiteSemanticStore) Retrieve(ctx context.Context, id string) (Entity, bool, error) {
	var entityJSON []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT entity_json FROM knowledge_items WHERE id = ?", id,
	).Scan(&entityJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to retrieve knowledge item: %w", err)
	}

	var item KnowledgeItem
	if err := json.Unmarshal(entityJSON, &item); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal knowledge item: %w", err)
	}
	return &item, true, nil
}

func (s *SQLiteSemanticStore) Search(ctx context.Context, q Query, limit int) ([]Entity, error) {
	query := "SELECT entity_json FROM knowledge_items"
	var args []interface{}
	switch {
	case q.Text != "":
		query += " WHERE content LIKE ?"
		args = append(args, "%"+q.Text+"%")
	case q.Kind == KindKnowledgeItem || q.Kind == "":
		// no filter
	}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search knowledge items: %w", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var entityJSON []byte
		if err := rows.Scan(&entityJSON); err != nil {
			return nil, err
		}
		var item KnowledgeItem
		if err := json.Unmarshal(entityJSON, &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal knowledge item: %w", err)
		}
		out = append(out, &item)
	}
	return out, rows.Err()
}

func (s *SQLiteSemanticStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM knowledge_items WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete knowledge item: %w", err)
	}
	if s.provider != nil {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM embeddings WHERE item_id = ?", id); err != nil {
			return false, fmt.Errorf("failed to delete embedding: %w", err)
		}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *SQLiteSemanticStore) Len() int {
	var count int
	s.db.QueryRow("SELECT COUNT(*) FROM knowledge_items").Scan(&count)
	return count
}

// SemanticSearch embeds the query text and runs a KNN scan over the
// vec0 table. Returns an empty result when no provider is configured.
func (s *SQLiteSemanticStore) SemanticSearch(ctx context.Context, text string, limit int) ([]*KnowledgeItem, error) {
	if s.provider == nil {
		s.logger.Debug().Msg("No embedding provider, semantic search degrades to empty result")
		return []*KnowledgeItem{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	queryVec, err := s.provider.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	queryJSON, err := json.Marshal(queryVec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query embedding: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.entity_json
		FROM (
			SELECT item_id, vec_distance_cosine(embedding, ?) AS distance
			FROM embeddings
			ORDER BY distance ASC
			LIMIT ?
		) e
		JOIN knowledge_items i ON i.id = e.item_id
		ORDER BY e.distance ASC
	`, string(queryJSON), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to run vector search: %w", err)
	}
	defer rows.Close()

	var out []*KnowledgeItem
	for rows.Next() {
		var entityJSON []byte
		if err := rows.Scan(&entityJSON); err != nil {
			return nil, err
		}
		var item KnowledgeItem
		if err := json.Unmarshal(entityJSON, &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal knowledge item: %w", err)
		}
		out = append(out, &item)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteSemanticStore) Close() error {
	return s.db.Close()
}
