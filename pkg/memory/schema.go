package memory

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// SchemaRegistry holds JSON Schemas keyed by knowledge-item content
// type. When a schema is registered for a content type, the Manager
// validates item content against it before dispatching the store.
// Content types with no registered schema pass through unchecked.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]*gojsonschema.Schema
	logger  zerolog.Logger
}

// NewSchemaRegistry creates an empty registry.
func NewSchemaRegistry(logger zerolog.Logger) *SchemaRegistry {
	return &SchemaRegistry{
		schemas: make(map[string]*gojsonschema.Schema),
		logger:  logger,
	}
}

// Register compiles and stores a schema for a content type.
func (r *SchemaRegistry) Register(contentType, schemaJSON string) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", contentType, err)
	}

	r.mu.Lock()
	r.schemas[contentType] = schema
	r.mu.Unlock()

	r.logger.Info().Str("content_type", contentType).Msg("Content schema registered")
	return nil
}

// Validate checks the item's content against the schema registered for
// its content type. Failures wrap ErrValidation.
func (r *SchemaRegistry) Validate(item *KnowledgeItem) error {
	r.mu.RLock()
	schema, ok := r.schemas[item.ContentType]
	r.mu.RUnlock()

	if !ok {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(item.Content))
	if err != nil {
		return fmt.Errorf("%w: content is not valid JSON for content_type %s: %v", ErrValidation, item.ContentType, err)
	}
	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, resErr := range result.Errors() {
			messages = append(messages, resErr.String())
		}
		return fmt.Errorf("%w: content_type %s: %s", ErrValidation, item.ContentType, strings.Join(messages, "; "))
	}
	return nil
}
