package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/arbiterhq/arbiter/internal/observability"
	"github.com/arbiterhq/arbiter/internal/tracing"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Manager is the single arbiter over the four tier backends. Every
// operation validates its entity, checks access, maintains integrity
// checksums, and records an audit entry. Permission and validation
// failures never reach a tier backend; backend failures are logged and
// propagated, never masked as empty results.
type Manager struct {
	tiers   map[Tier]TierBackend
	access  *AccessController
	audit   *AuditLog
	schemas *SchemaRegistry
	logger  zerolog.Logger
}

// Config holds memory manager configuration. Nil backends default to
// the in-memory implementations; nil access/audit default to an empty
// controller and an unsinked ring.
type Config struct {
	Working  TierBackend
	Episodic TierBackend
	Semantic TierBackend
	Graph    TierBackend
	Access   *AccessController
	Audit    *AuditLog
	Schemas  *SchemaRegistry // optional content-type validation
	Logger   zerolog.Logger
}

// NewManager creates a new memory manager.
func NewManager(cfg Config) *Manager {
	observability.EnsureRegistered()

	if cfg.Working == nil {
		cfg.Working = NewWorkingStore()
	}
	if cfg.Episodic == nil {
		cfg.Episodic = NewEpisodicStore()
	}
	if cfg.Semantic == nil {
		cfg.Semantic = NewSemanticStore(nil, cfg.Logger)
	}
	if cfg.Graph == nil {
		cfg.Graph = NewGraphStore()
	}
	if cfg.Access == nil {
		cfg.Access = NewAccessController(cfg.Logger)
	}
	if cfg.Audit == nil {
		cfg.Audit = NewAuditLog(DefaultAuditCapacity, nil)
	}

	m := &Manager{
		tiers: map[Tier]TierBackend{
			TierWorking:  cfg.Working,
			TierEpisodic: cfg.Episodic,
			TierSemantic: cfg.Semantic,
			TierGraph:    cfg.Graph,
		},
		access:  cfg.Access,
		audit:   cfg.Audit,
		schemas: cfg.Schemas,
		logger:  cfg.Logger,
	}

	m.logger.Info().Msg("Memory manager initialized")
	return m
}

// Access exposes the policy table for default-policy registration.
func (m *Manager) Access() *AccessController { return m.access }

// Store validates the entity, checks WRITE access for existing
// entities, stamps updated_at, recomputes the checksum, dispatches to
// the entity's tier, seeds a default access policy for new entities,
// and appends an audit entry. Concurrent stores for the same entity id
// are last-writer-wins; both writes are audited.
func (m *Manager) Store(ctx context.Context, e Entity, userID, role string) (string, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"arbiter.memory",
		"memory.store",
		attribute.String("tier", string(e.EntityMeta().Tier)),
		attribute.String("kind", string(e.Kind())),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, m.logger)
	start := time.Now()
	meta := e.EntityMeta()

	fail := func(err error) (string, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordStore(string(meta.Tier), "error", time.Since(start))
		return "", err
	}

	if err := e.Validate(); err != nil {
		logger.Warn().Err(err).Str("kind", string(e.Kind())).Msg("Entity failed validation")
		return fail(err)
	}
	if item, ok := e.(*KnowledgeItem); ok && m.schemas != nil {
		if err := m.schemas.Validate(item); err != nil {
			logger.Warn().Err(err).Str("content_type", item.ContentType).Msg("Content failed schema validation")
			return fail(err)
		}
	}

	backend, ok := m.tiers[meta.Tier]
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownTier, meta.Tier)
		logger.Error().Str("tier", string(meta.Tier)).Msg("Store dispatched to unknown tier")
		return fail(err)
	}

	// WRITE access applies to existing entities only; new entities
	// skip the check and get a policy seeded below.
	prevChecksum := ""
	if meta.ID != "" {
		existing, found, err := backend.Retrieve(ctx, meta.ID)
		if err != nil {
			logger.Error().Err(err).Str("entity_id", meta.ID).Msg("Backend retrieve failed during store")
			return fail(err)
		}
		if found {
			if err := m.access.Check(meta.ID, userID, role, OpWrite); err != nil {
				observability.RecordPermissionDenied(string(OpWrite))
				return fail(err)
			}
			prev := existing.EntityMeta()
			prevChecksum = prev.Checksum
			if meta.CreatedAt.IsZero() {
				meta.CreatedAt = prev.CreatedAt
			}
			if meta.CreatorID == "" {
				meta.CreatorID = prev.CreatorID
			}
		}
	}

	now := time.Now().UTC()
	if meta.ID == "" {
		meta.ID = uuid.New().String()
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}
	if meta.CreatorID == "" {
		meta.CreatorID = userID
	}
	meta.UpdatedAt = now

	// Embed before checksumming so the fingerprint covers the final
	// content.
	if item, ok := e.(*KnowledgeItem); ok {
		if embedder, ok := backend.(Embedder); ok {
			if err := embedder.EnsureEmbedding(ctx, item); err != nil {
				logger.Warn().Err(err).Str("entity_id", meta.ID).Msg("Embedding failed, storing without vector")
			}
		}
	}

	checksum, err := ComputeChecksum(e)
	if err != nil {
		logger.Error().Err(err).Str("entity_id", meta.ID).Msg("Checksum computation failed")
		return fail(err)
	}
	meta.Checksum = checksum

	id, err := backend.Store(ctx, e)
	if err != nil {
		logger.Error().Err(err).Str("entity_id", meta.ID).Str("tier", string(meta.Tier)).Msg("Backend store failed")
		return fail(err)
	}

	if !m.access.HasPolicy(id) {
		declared := meta.DeclaredPolicy
		if declared != nil {
			declared = declared.Clone()
			declared.EntityID = id
		}
		m.access.Seed(id, declared)
	}

	m.audit.Append(ctx, AuditEntry{
		EntityID:     id,
		Action:       ActionStore,
		UserID:       userID,
		Details:      map[string]interface{}{"tier": string(meta.Tier), "kind": string(e.Kind())},
		PrevChecksum: prevChecksum,
		NewChecksum:  checksum,
	})
	observability.RecordAuditAppend(m.audit.Utilization())
	observability.RecordStore(string(meta.Tier), "success", time.Since(start))
	observability.SetTierEntries(string(meta.Tier), backend.Len())

	logger.Debug().
		Str("entity_id", id).
		Str("tier", string(meta.Tier)).
		Str("kind", string(e.Kind())).
		Msg("Entity stored")

	return id, nil
}

// Retrieve checks READ access for the entity id (fail closed: no
// recorded policy means denied) and dispatches to the tier. Absence is
// reported as ok=false, never an error.
func (m *Manager) Retrieve(ctx context.Context, id string, tier Tier, userID, role string) (Entity, bool, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"arbiter.memory",
		"memory.retrieve",
		attribute.String("tier", string(tier)),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, m.logger)
	start := time.Now()

	backend, ok := m.tiers[tier]
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownTier, tier)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}

	if err := m.access.Check(id, userID, role, OpRead); err != nil {
		observability.RecordPermissionDenied(string(OpRead))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}

	e, found, err := backend.Retrieve(ctx, id)
	if err != nil {
		logger.Error().Err(err).Str("entity_id", id).Msg("Backend retrieve failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}

	outcome := "hit"
	if !found {
		outcome = "miss"
	}
	observability.RecordRetrieve(string(tier), outcome, time.Since(start))
	return e, found, nil
}

// Search runs an entity-independent query against one tier. Access is
// role-based at the tier level: only admin and the service role pass.
func (m *Manager) Search(ctx context.Context, tier Tier, q Query, limit int, userID, role string) ([]Entity, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"arbiter.memory",
		"memory.search",
		attribute.String("tier", string(tier)),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, m.logger)
	start := time.Now()

	backend, ok := m.tiers[tier]
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownTier, tier)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := m.access.CheckTier(role, OpRead); err != nil {
		observability.RecordPermissionDenied(string(OpRead))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results, err := backend.Search(ctx, q, limit)
	if err != nil {
		logger.Error().Err(err).Str("tier", string(tier)).Msg("Backend search failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	m.audit.Append(ctx, AuditEntry{
		Action:  ActionSearch,
		UserID:  userID,
		Details: map[string]interface{}{"tier": string(tier), "results": len(results)},
	})
	observability.RecordSearch(string(tier), time.Since(start))

	logger.Debug().
		Str("tier", string(tier)).
		Int("results", len(results)).
		Msg("Search completed")

	return results, nil
}

// SemanticSearch delegates embedding and similarity lookup to the
// semantic backend, then filters results by per-entity READ access.
// Items the caller cannot read are silently dropped, not reported as
// errors.
func (m *Manager) SemanticSearch(ctx context.Context, text string, limit int, userID, role string) ([]*KnowledgeItem, error) {
	ctx, span := tracing.StartSpan(ctx, "arbiter.memory", "memory.semantic_search")
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, m.logger)
	start := time.Now()

	searcher, ok := m.tiers[TierSemantic].(SemanticSearcher)
	if !ok {
		return []*KnowledgeItem{}, nil
	}

	items, err := searcher.SemanticSearch(ctx, text, limit)
	if err != nil {
		logger.Error().Err(err).Msg("Semantic search failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	visible := make([]*KnowledgeItem, 0, len(items))
	for _, item := range items {
		if m.access.Check(item.ID, userID, role, OpRead) == nil {
			visible = append(visible, item)
		}
	}

	m.audit.Append(ctx, AuditEntry{
		Action:  ActionSemanticSearch,
		UserID:  userID,
		Details: map[string]interface{}{"results": len(visible), "filtered": len(items) - len(visible)},
	})
	observability.RecordSemanticSearch(time.Since(start))

	logger.Debug().
		Int("results", len(visible)).
		Int("filtered", len(items)-len(visible)).
		Msg("Semantic search completed")

	return visible, nil
}

// Delete removes an entity. A missing entity returns false, never an
// error; a caller without DELETE permission gets ErrPermissionDenied
// and the entity and its policy stay untouched. The entity is
// retrieved first so its final checksum lands in the audit trail.
func (m *Manager) Delete(ctx context.Context, id string, tier Tier, userID, role string) (bool, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"arbiter.memory",
		"memory.delete",
		attribute.String("tier", string(tier)),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, m.logger)

	backend, ok := m.tiers[tier]
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownTier, tier)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	existing, found, err := backend.Retrieve(ctx, id)
	if err != nil {
		logger.Error().Err(err).Str("entity_id", id).Msg("Backend retrieve failed during delete")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	if !found {
		observability.RecordDelete(string(tier), "miss")
		return false, nil
	}

	if err := m.access.Check(id, userID, role, OpDelete); err != nil {
		observability.RecordPermissionDenied(string(OpDelete))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	existed, err := backend.Delete(ctx, id)
	if err != nil {
		logger.Error().Err(err).Str("entity_id", id).Msg("Backend delete failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	m.access.Remove(id)

	m.audit.Append(ctx, AuditEntry{
		EntityID:     id,
		Action:       ActionDelete,
		UserID:       userID,
		Details:      map[string]interface{}{"tier": string(tier)},
		PrevChecksum: existing.EntityMeta().Checksum,
	})
	observability.RecordAuditAppend(m.audit.Utilization())
	observability.RecordDelete(string(tier), "deleted")
	observability.SetTierEntries(string(tier), backend.Len())

	logger.Info().Str("entity_id", id).Str("tier", string(tier)).Msg("Entity deleted")
	return existed, nil
}

// ContextHistory returns the snapshot chain for a workflow, filtered to
// the snapshots the caller may read.
func (m *Manager) ContextHistory(ctx context.Context, workflowID, userID, role string) ([]*ContextSnapshot, error) {
	results, err := m.tiers[TierWorking].Search(ctx, Query{WorkflowID: workflowID}, 0)
	if err != nil {
		m.logger.Error().Err(err).Str("workflow_id", workflowID).Msg("Context history lookup failed")
		return nil, err
	}

	var out []*ContextSnapshot
	for _, e := range results {
		snap, ok := e.(*ContextSnapshot)
		if !ok {
			continue
		}
		if m.access.Check(snap.ID, userID, role, OpRead) == nil {
			out = append(out, snap)
		}
	}
	return out, nil
}

// WorkflowHistory returns workflow records matching the query, filtered
// to the records the caller may read.
func (m *Manager) WorkflowHistory(ctx context.Context, q Query, limit int, userID, role string) ([]*WorkflowRecord, error) {
	results, err := m.tiers[TierEpisodic].Search(ctx, q, limit)
	if err != nil {
		m.logger.Error().Err(err).Msg("Workflow history lookup failed")
		return nil, err
	}

	var out []*WorkflowRecord
	for _, e := range results {
		rec, ok := e.(*WorkflowRecord)
		if !ok {
			continue
		}
		if m.access.Check(rec.ID, userID, role, OpRead) == nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

// EntityRelationships returns edges touching the entity in either
// direction when bidirectional, filtered to edges the caller may read.
func (m *Manager) EntityRelationships(ctx context.Context, entityID, userID, role string) ([]*RelationshipEdge, error) {
	finder, ok := m.tiers[TierGraph].(RelationshipFinder)
	if !ok {
		return nil, nil
	}

	edges, err := finder.Relationships(ctx, entityID)
	if err != nil {
		m.logger.Error().Err(err).Str("entity_id", entityID).Msg("Relationship lookup failed")
		return nil, err
	}

	var out []*RelationshipEdge
	for _, edge := range edges {
		if m.access.Check(edge.ID, userID, role, OpRead) == nil {
			out = append(out, edge)
		}
	}
	return out, nil
}

// AuditEntries returns audit entries matching the filter, restricted to
// entries whose entity the caller may read. Entries not tied to one
// entity (searches) require tier-level read access.
func (m *Manager) AuditEntries(f AuditFilter, userID, role string) []AuditEntry {
	entries := m.audit.Query(f)

	var out []AuditEntry
	for _, e := range entries {
		if e.EntityID == "" {
			if m.access.CheckTier(role, OpRead) == nil {
				out = append(out, e)
			}
			continue
		}
		if m.access.Check(e.EntityID, userID, role, OpRead) == nil {
			out = append(out, e)
		}
	}
	return out
}

// TierCounts reports the entity count per tier.
func (m *Manager) TierCounts() map[Tier]int {
	out := make(map[Tier]int, len(m.tiers))
	for tier, backend := range m.tiers {
		out[tier] = backend.Len()
	}
	return out
}
