package memory

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAgentRole = "agent"
	testAgentUser = "agent-1"
)

func createTestManager(t *testing.T) *Manager {
	t.Helper()

	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	m := NewManager(Config{
		Semantic: NewSemanticStore(NewMockEmbeddingProvider(16), logger),
		Audit:    NewAuditLog(64, nil),
		Logger:   logger,
	})
	m.Access().RegisterRoleDefault(testAgentRole, NewOperationSet(OpRead, OpWrite))
	return m
}

func storeTestItem(t *testing.T, m *Manager) (string, *KnowledgeItem) {
	t.Helper()

	item := &KnowledgeItem{
		Meta:        Meta{Tier: TierSemantic},
		Content:     "cats are mammals",
		ContentType: "fact",
		Source:      "unit-test",
		Confidence:  0.9,
	}
	id, err := m.Store(context.Background(), item, testAgentUser, testAgentRole)
	require.NoError(t, err)
	return id, item
}

func TestManager_StoreRoundTrip(t *testing.T) {
	m := createTestManager(t)
	ctx := context.Background()

	id, _ := storeTestItem(t, m)
	require.NotEmpty(t, id)

	e, found, err := m.Retrieve(ctx, id, TierSemantic, testAgentUser, testAgentRole)
	require.NoError(t, err)
	require.True(t, found)

	got := e.(*KnowledgeItem)
	assert.Equal(t, "cats are mammals", got.Content)
	assert.Equal(t, "fact", got.ContentType)
	assert.Equal(t, testAgentUser, got.CreatorID)
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())

	// Stored checksum matches a fresh recomputation over the retrieved
	// content
	require.NoError(t, VerifyChecksum(got))
}

func TestManager_StoreValidatesFirst(t *testing.T) {
	m := createTestManager(t)

	_, err := m.Store(context.Background(), &KnowledgeItem{
		Meta:        Meta{Tier: TierSemantic},
		ContentType: "fact",
		Confidence:  0.5,
	}, testAgentUser, testAgentRole)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, m.TierCounts()[TierSemantic])
}

func TestManager_StoreUnknownTier(t *testing.T) {
	m := createTestManager(t)

	_, err := m.Store(context.Background(), &KnowledgeItem{
		Meta:        Meta{Tier: Tier("archival")},
		Content:     "x",
		ContentType: "fact",
		Confidence:  0.5,
	}, testAgentUser, testAgentRole)
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestManager_FailClosedAccess(t *testing.T) {
	m := createTestManager(t)
	ctx := context.Background()

	id, _ := storeTestItem(t, m)

	// A role with no grant on the entity cannot read, update, or
	// delete it
	_, _, err := m.Retrieve(ctx, id, TierSemantic, "outsider", "viewer")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	update := &KnowledgeItem{
		Meta:        Meta{ID: id, Tier: TierSemantic},
		Content:     "rewritten",
		ContentType: "fact",
		Confidence:  0.5,
	}
	_, err = m.Store(ctx, update, "outsider", "viewer")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = m.Delete(ctx, id, TierSemantic, "outsider", "viewer")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// Admin bypasses all of it
	_, found, err := m.Retrieve(ctx, id, TierSemantic, "root", AdminRole)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestManager_UpdatePreservesProvenance(t *testing.T) {
	m := createTestManager(t)
	ctx := context.Background()

	id, _ := storeTestItem(t, m)

	e, _, err := m.Retrieve(ctx, id, TierSemantic, testAgentUser, testAgentRole)
	require.NoError(t, err)
	original := e.(*KnowledgeItem)

	update := &KnowledgeItem{
		Meta:        Meta{ID: id, Tier: TierSemantic},
		Content:     "cats are small mammals",
		ContentType: "fact",
		Confidence:  0.95,
	}
	_, err = m.Store(ctx, update, "agent-2", testAgentRole)
	require.NoError(t, err)

	e, _, err = m.Retrieve(ctx, id, TierSemantic, testAgentUser, testAgentRole)
	require.NoError(t, err)
	got := e.(*KnowledgeItem)

	assert.Equal(t, "cats are small mammals", got.Content)
	assert.Equal(t, original.CreatorID, got.CreatorID)
	assert.Equal(t, original.CreatedAt, got.CreatedAt)
	assert.NotEqual(t, original.Checksum, got.Checksum)
}

func TestManager_AuditCompleteness(t *testing.T) {
	m := createTestManager(t)
	ctx := context.Background()

	id, _ := storeTestItem(t, m)

	// Exactly one store entry, prev checksum empty for a new entity
	entries := m.AuditEntries(AuditFilter{EntityID: id}, "root", AdminRole)
	require.Len(t, entries, 1)
	assert.Equal(t, ActionStore, entries[0].Action)
	assert.Empty(t, entries[0].PrevChecksum)
	assert.NotEmpty(t, entries[0].NewChecksum)

	// An update appends one more entry with differing checksums
	update := &KnowledgeItem{
		Meta:        Meta{ID: id, Tier: TierSemantic},
		Content:     "cats are small mammals",
		ContentType: "fact",
		Confidence:  0.95,
	}
	_, err := m.Store(ctx, update, testAgentUser, testAgentRole)
	require.NoError(t, err)

	entries = m.AuditEntries(AuditFilter{EntityID: id}, "root", AdminRole)
	require.Len(t, entries, 2)
	assert.NotEmpty(t, entries[1].PrevChecksum)
	assert.NotEqual(t, entries[1].PrevChecksum, entries[1].NewChecksum)

	// A permission failure appends nothing
	_, err = m.Delete(ctx, id, TierSemantic, "outsider", "viewer")
	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.Len(t, m.AuditEntries(AuditFilter{EntityID: id}, "root", AdminRole), 2)

	// A delete appends one entry with no new checksum
	_, err = m.Delete(ctx, id, TierSemantic, "root", AdminRole)
	require.NoError(t, err)

	entries = m.AuditEntries(AuditFilter{EntityID: id}, "root", AdminRole)
	require.Len(t, entries, 3)
	assert.Equal(t, ActionDelete, entries[2].Action)
	assert.NotEmpty(t, entries[2].PrevChecksum)
	assert.Empty(t, entries[2].NewChecksum)
}

func TestManager_DeleteSemantics(t *testing.T) {
	m := createTestManager(t)
	ctx := context.Background()

	// Missing id: false, no error
	ok, err := m.Delete(ctx, "no-such-id", TierSemantic, "root", AdminRole)
	require.NoError(t, err)
	assert.False(t, ok)

	id, _ := storeTestItem(t, m)

	// Denied delete leaves the entity and its policy untouched
	_, err = m.Delete(ctx, id, TierSemantic, testAgentUser, testAgentRole)
	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.True(t, m.Access().HasPolicy(id))
	_, found, err := m.Retrieve(ctx, id, TierSemantic, testAgentUser, testAgentRole)
	require.NoError(t, err)
	assert.True(t, found)

	// Admin delete removes entity and policy
	ok, err = m.Delete(ctx, id, TierSemantic, "root", AdminRole)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, m.Access().HasPolicy(id))

	_, found, err = m.Retrieve(ctx, id, TierSemantic, "root", AdminRole)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestManager_SemanticSearchDegradation(t *testing.T) {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	// With a provider the stored item is findable
	withProvider := createTestManager(t)
	_, _ = storeTestItem(t, withProvider)

	results, err := withProvider.SemanticSearch(context.Background(), "feline biology", 10, testAgentUser, testAgentRole)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "cats are mammals", results[0].Content)

	// Without one the same search returns empty, not an error
	without := NewManager(Config{
		Semantic: NewSemanticStore(nil, logger),
		Logger:   logger,
	})
	without.Access().RegisterRoleDefault(testAgentRole, NewOperationSet(OpRead, OpWrite))
	_, _ = storeTestItem(t, without)

	results, err = without.SemanticSearch(context.Background(), "feline biology", 10, testAgentUser, testAgentRole)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestManager_SemanticSearchFiltersUnreadable(t *testing.T) {
	m := createTestManager(t)
	ctx := context.Background()

	storeTestItem(t, m)

	restricted := &KnowledgeItem{
		Meta: Meta{
			Tier:        TierSemantic,
			Sensitivity: SensitivityRestricted,
			DeclaredPolicy: &AccessPolicy{
				Roles: map[string]OperationSet{"auditor": NewOperationSet(OpRead)},
			},
		},
		Content:     "cats carry classified payloads",
		ContentType: "fact",
		Confidence:  0.4,
	}
	_, err := m.Store(ctx, restricted, "auditor-1", "auditor")
	require.NoError(t, err)

	// The agent only sees the item its role default covers
	results, err := m.SemanticSearch(ctx, "cats", 10, testAgentUser, testAgentRole)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "cats are mammals", results[0].Content)

	// Admin sees both
	results, err = m.SemanticSearch(ctx, "cats", 10, "root", AdminRole)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestManager_SearchRequiresTierAccess(t *testing.T) {
	m := createTestManager(t)
	ctx := context.Background()

	storeTestItem(t, m)

	_, err := m.Search(ctx, TierSemantic, Query{}, 0, testAgentUser, testAgentRole)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	results, err := m.Search(ctx, TierSemantic, Query{}, 0, "svc", ServiceRole)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestManager_SchemaValidation(t *testing.T) {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	schemas := NewSchemaRegistry(logger)
	require.NoError(t, schemas.Register("invoice", invoiceSchema))

	m := NewManager(Config{
		Semantic: NewSemanticStore(nil, logger),
		Schemas:  schemas,
		Logger:   logger,
	})
	m.Access().RegisterRoleDefault(testAgentRole, NewOperationSet(OpRead, OpWrite))
	ctx := context.Background()

	_, err := m.Store(ctx, &KnowledgeItem{
		Meta:        Meta{Tier: TierSemantic},
		Content:     `{"invoice_id": "inv-1"}`,
		ContentType: "invoice",
		Confidence:  1.0,
	}, testAgentUser, testAgentRole)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = m.Store(ctx, &KnowledgeItem{
		Meta:        Meta{Tier: TierSemantic},
		Content:     `{"invoice_id": "inv-1", "amount": 12.5}`,
		ContentType: "invoice",
		Confidence:  1.0,
	}, testAgentUser, testAgentRole)
	assert.NoError(t, err)
}

func TestManager_ContextAndWorkflowHistory(t *testing.T) {
	m := createTestManager(t)
	ctx := context.Background()

	rec := &WorkflowRecord{
		Meta:           Meta{Tier: TierEpisodic},
		WorkflowID:     "wf-1",
		WorkflowName:   "order-flow",
		WorkflowStatus: "running",
		StartTime:      time.Now().UTC(),
	}
	_, err := m.Store(ctx, rec, testAgentUser, testAgentRole)
	require.NoError(t, err)

	for v := 1; v <= 2; v++ {
		snap := &ContextSnapshot{
			Meta:        Meta{Tier: TierWorking},
			WorkflowID:  "wf-1",
			Version:     v,
			ContextData: map[string]interface{}{"v": v},
		}
		_, err := m.Store(ctx, snap, testAgentUser, testAgentRole)
		require.NoError(t, err)
	}

	chain, err := m.ContextHistory(ctx, "wf-1", testAgentUser, testAgentRole)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, 1, chain[0].Version)
	assert.Equal(t, 2, chain[1].Version)

	records, err := m.WorkflowHistory(ctx, Query{WorkflowID: "wf-1"}, 0, testAgentUser, testAgentRole)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "order-flow", records[0].WorkflowName)
}

func TestManager_EntityRelationships(t *testing.T) {
	m := createTestManager(t)
	ctx := context.Background()

	itemID, _ := storeTestItem(t, m)

	edge := &RelationshipEdge{
		Meta:         Meta{Tier: TierGraph},
		FromID:       itemID,
		ToID:         "external-doc",
		RelationType: "references",
		Strength:     0.7,
	}
	_, err := m.Store(ctx, edge, testAgentUser, testAgentRole)
	require.NoError(t, err)

	edges, err := m.EntityRelationships(ctx, itemID, testAgentUser, testAgentRole)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "references", edges[0].RelationType)
}

func TestManager_TierCounts(t *testing.T) {
	m := createTestManager(t)

	storeTestItem(t, m)
	counts := m.TierCounts()
	assert.Equal(t, 1, counts[TierSemantic])
	assert.Equal(t, 0, counts[TierWorking])
	assert.Equal(t, 0, counts[TierEpisodic])
	assert.Equal(t, 0, counts[TierGraph])
}
