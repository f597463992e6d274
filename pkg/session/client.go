package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arbiterhq/arbiter/pkg/memory"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// WorkflowStatus values recorded on workflow records.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Client is the workflow-scoped façade agents use. It keeps two pieces
// of cursor state, the active workflow id and the latest snapshot id,
// plus the list of snapshot ids produced by context updates during the
// run. Everything else is delegated to the memory manager.
type Client struct {
	mu sync.Mutex

	manager   *memory.Manager
	agentID   string
	userID    string
	role      string
	validator *FieldValidator
	strict    bool
	logger    zerolog.Logger

	workflowID       string
	workflowRecordID string
	snapshotID       string
	producedVersions []string
}

// Config holds session client configuration.
type Config struct {
	Manager *memory.Manager
	AgentID string
	UserID  string
	Role    string

	// Validator is optional field-level validation of context updates.
	Validator *FieldValidator

	// Strict turns rule violations into rejected writes. The default
	// is advisory: violations are logged and the write proceeds.
	Strict bool

	Logger zerolog.Logger
}

// NewClient creates a session client bound to the manager.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("manager is required")
	}
	if cfg.AgentID == "" {
		return nil, fmt.Errorf("agent id is required")
	}
	if cfg.UserID == "" {
		cfg.UserID = cfg.AgentID
	}
	return &Client{
		manager:   cfg.Manager,
		agentID:   cfg.AgentID,
		userID:    cfg.UserID,
		role:      cfg.Role,
		validator: cfg.Validator,
		strict:    cfg.Strict,
		logger:    cfg.Logger,
	}, nil
}

// WorkflowID returns the active workflow id, empty before StartWorkflow.
func (c *Client) WorkflowID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.workflowID
}

// StartWorkflow creates the workflow record and the seed context
// snapshot, and points the cursor at them. A generated run id is used
// when workflowID is empty.
func (c *Client) StartWorkflow(ctx context.Context, workflowID, workflowName, customerID string, initialContext map[string]interface{}) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.workflowID != "" {
		return "", fmt.Errorf("workflow %s is already active", c.workflowID)
	}
	if workflowID == "" {
		suffix, err := gonanoid.New()
		if err != nil {
			return "", fmt.Errorf("failed to generate workflow id: %w", err)
		}
		workflowID = "wf-" + suffix
	}
	if workflowName == "" {
		workflowName = workflowID
	}
	if initialContext == nil {
		initialContext = map[string]interface{}{}
	}

	record := &memory.WorkflowRecord{
		Meta:           memory.Meta{Tier: memory.TierEpisodic},
		WorkflowID:     workflowID,
		WorkflowName:   workflowName,
		WorkflowStatus: StatusRunning,
		CustomerID:     customerID,
		StartTime:      time.Now().UTC(),
	}
	recordID, err := c.manager.Store(ctx, record, c.userID, c.role)
	if err != nil {
		return "", fmt.Errorf("failed to create workflow record: %w", err)
	}

	seed := &memory.ContextSnapshot{
		Meta:        memory.Meta{Tier: memory.TierWorking},
		WorkflowID:  workflowID,
		Version:     1,
		ContextData: initialContext,
		AgentID:     c.agentID,
	}
	snapshotID, err := c.manager.Store(ctx, seed, c.userID, c.role)
	if err != nil {
		return "", fmt.Errorf("failed to create seed snapshot: %w", err)
	}

	c.workflowID = workflowID
	c.workflowRecordID = recordID
	c.snapshotID = snapshotID
	c.producedVersions = nil

	c.logger.Info().
		Str("workflow_id", workflowID).
		Str("workflow_name", workflowName).
		Msg("Workflow started")

	return workflowID, nil
}

// GetContext returns the latest snapshot's context data, creating an
// empty seed snapshot if the workflow has none yet.
func (c *Client) GetContext(ctx context.Context) (map[string]interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.latestSnapshotLocked(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		seed := &memory.ContextSnapshot{
			Meta:        memory.Meta{Tier: memory.TierWorking},
			WorkflowID:  c.workflowID,
			Version:     1,
			ContextData: map[string]interface{}{},
			AgentID:     c.agentID,
		}
		id, err := c.manager.Store(ctx, seed, c.userID, c.role)
		if err != nil {
			return nil, fmt.Errorf("failed to create seed snapshot: %w", err)
		}
		c.snapshotID = id
		return map[string]interface{}{}, nil
	}

	c.snapshotID = snap.ID
	return snap.Clone().(*memory.ContextSnapshot).ContextData, nil
}

// UpdateContext deep-merges data into the latest snapshot and stores
// the result as a new snapshot; the old snapshot is never mutated. Rule
// violations are advisory unless the client is strict: they come back
// in the ValidationResult either way, and strict mode additionally
// rejects the write.
func (c *Client) UpdateContext(ctx context.Context, data map[string]interface{}) (map[string]interface{}, ValidationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := ValidationResult{Valid: true, Errors: []ValidationError{}, Warnings: []ValidationWarning{}}
	if c.workflowID == "" {
		return nil, result, fmt.Errorf("no active workflow")
	}

	parent, err := c.latestSnapshotLocked(ctx)
	if err != nil {
		return nil, result, err
	}
	if parent == nil {
		parent = &memory.ContextSnapshot{
			WorkflowID:  c.workflowID,
			Version:     0,
			ContextData: map[string]interface{}{},
		}
	}

	next := parent.Next(c.agentID, data)

	if c.validator != nil {
		result = c.validator.Validate(next.ContextData)
		if !result.Valid {
			for _, violation := range result.Errors {
				c.logger.Warn().
					Str("workflow_id", c.workflowID).
					Str("field", violation.Field).
					Str("message", violation.Message).
					Msg("Context update failed field validation")
			}
			if c.strict {
				return nil, result, fmt.Errorf("%w: context update rejected by rule table", memory.ErrValidation)
			}
		}
	}

	id, err := c.manager.Store(ctx, next, c.userID, c.role)
	if err != nil {
		return nil, result, fmt.Errorf("failed to store snapshot: %w", err)
	}

	c.snapshotID = id
	c.producedVersions = append(c.producedVersions, id)

	c.logger.Debug().
		Str("workflow_id", c.workflowID).
		Str("snapshot_id", id).
		Int("version", next.Version).
		Msg("Context updated")

	return next.ContextData, result, nil
}

// CompleteWorkflow re-reads the workflow record, stamps the final
// status, result, end time and the snapshot ids produced during the
// run, then clears the cursor.
func (c *Client) CompleteWorkflow(ctx context.Context, status string, result map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.workflowID == "" {
		return fmt.Errorf("no active workflow")
	}
	if status == "" {
		status = StatusCompleted
	}

	e, found, err := c.manager.Retrieve(ctx, c.workflowRecordID, memory.TierEpisodic, c.userID, c.role)
	if err != nil {
		return fmt.Errorf("failed to load workflow record: %w", err)
	}
	if !found {
		return fmt.Errorf("workflow record %s not found", c.workflowRecordID)
	}
	record, ok := e.(*memory.WorkflowRecord)
	if !ok {
		return fmt.Errorf("entity %s is not a workflow record", c.workflowRecordID)
	}

	end := time.Now().UTC()
	record.WorkflowStatus = status
	record.Result = result
	record.EndTime = &end
	record.ContextVersions = append([]string(nil), c.producedVersions...)

	if _, err := c.manager.Store(ctx, record, c.userID, c.role); err != nil {
		return fmt.Errorf("failed to update workflow record: %w", err)
	}

	c.logger.Info().
		Str("workflow_id", c.workflowID).
		Str("status", status).
		Int("context_versions", len(record.ContextVersions)).
		Msg("Workflow completed")

	c.workflowID = ""
	c.workflowRecordID = ""
	c.snapshotID = ""
	c.producedVersions = nil

	return nil
}

// StoreKnowledge builds a knowledge item and delegates to the manager.
func (c *Client) StoreKnowledge(ctx context.Context, content, contentType, source string, confidence float64) (string, error) {
	item := &memory.KnowledgeItem{
		Meta:        memory.Meta{Tier: memory.TierSemantic},
		Content:     content,
		ContentType: contentType,
		Source:      source,
		Confidence:  confidence,
	}
	return c.manager.Store(ctx, item, c.userID, c.role)
}

// CreateRelationship builds a relationship edge and delegates to the
// manager.
func (c *Client) CreateRelationship(ctx context.Context, fromID, toID, relationType string, strength float64, bidirectional bool, properties map[string]interface{}) (string, error) {
	edge := &memory.RelationshipEdge{
		Meta:          memory.Meta{Tier: memory.TierGraph},
		FromID:        fromID,
		ToID:          toID,
		RelationType:  relationType,
		Strength:      strength,
		Bidirectional: bidirectional,
		Properties:    properties,
	}
	return c.manager.Store(ctx, edge, c.userID, c.role)
}

// SemanticSearch delegates to the manager and renders results as plain
// maps, the shape agents consume.
func (c *Client) SemanticSearch(ctx context.Context, text string, limit int) ([]map[string]interface{}, error) {
	items, err := c.manager.SemanticSearch(ctx, text, limit, c.userID, c.role)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		m, err := memory.ToMap(item)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// WorkflowHistory returns workflow records visible to the caller,
// scoped to the client's workflow when one is active and no explicit
// query is given.
func (c *Client) WorkflowHistory(ctx context.Context, q memory.Query, limit int) ([]*memory.WorkflowRecord, error) {
	c.mu.Lock()
	if q == (memory.Query{}) && c.workflowID != "" {
		q.WorkflowID = c.workflowID
	}
	c.mu.Unlock()

	return c.manager.WorkflowHistory(ctx, q, limit, c.userID, c.role)
}

// latestSnapshotLocked resolves the newest snapshot for the active
// workflow. Caller holds c.mu.
func (c *Client) latestSnapshotLocked(ctx context.Context) (*memory.ContextSnapshot, error) {
	if c.workflowID == "" {
		return nil, fmt.Errorf("no active workflow")
	}

	chain, err := c.manager.ContextHistory(ctx, c.workflowID, c.userID, c.role)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, nil
	}
	return chain[len(chain)-1], nil
}
