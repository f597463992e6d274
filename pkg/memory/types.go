package memory

import (
	"encoding/json"
	"fmt"
	"time"
)

// Tier identifies which backend owns an entity.
type Tier string

const (
	TierWorking  Tier = "working"
	TierEpisodic Tier = "episodic"
	TierSemantic Tier = "semantic"
	TierGraph    Tier = "graph"
)

// Operation is a permission that can be granted on an entity.
type Operation string

const (
	OpRead   Operation = "read"
	OpWrite  Operation = "write"
	OpDelete Operation = "delete"
)

// OperationSet is the set of operations granted to a role or user.
type OperationSet map[Operation]bool

// NewOperationSet builds an OperationSet from a list of operations.
func NewOperationSet(ops ...Operation) OperationSet {
	s := make(OperationSet, len(ops))
	for _, op := range ops {
		s[op] = true
	}
	return s
}

// Has reports whether the set grants the operation.
func (s OperationSet) Has(op Operation) bool {
	return s != nil && s[op]
}

// Clone returns an independent copy of the set.
func (s OperationSet) Clone() OperationSet {
	if s == nil {
		return nil
	}
	out := make(OperationSet, len(s))
	for op, ok := range s {
		out[op] = ok
	}
	return out
}

// Action names an audited store operation.
type Action string

const (
	ActionStore          Action = "store"
	ActionDelete         Action = "delete"
	ActionSearch         Action = "search"
	ActionSemanticSearch Action = "semantic_search"
)

// EntityKind identifies an entity variant.
type EntityKind string

const (
	KindContextSnapshot  EntityKind = "context_snapshot"
	KindWorkflowRecord   EntityKind = "workflow_record"
	KindKnowledgeItem    EntityKind = "knowledge_item"
	KindRelationshipEdge EntityKind = "relationship_edge"
)

// Sensitivity classifies how an entity may be shared.
type Sensitivity string

const (
	SensitivityPublic       Sensitivity = "public"
	SensitivityInternal     Sensitivity = "internal"
	SensitivityConfidential Sensitivity = "confidential"
	SensitivityRestricted   Sensitivity = "restricted"
)

// Meta holds the fields shared by every stored entity. The checksum is
// recomputed by the Manager on every store and is excluded from its own
// input; it is never set by callers.
type Meta struct {
	ID          string      `json:"id"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	CreatorID   string      `json:"creator_id"`
	Sensitivity Sensitivity `json:"sensitivity,omitempty"`
	Tier        Tier        `json:"tier"`
	Checksum    string      `json:"checksum,omitempty"`

	// DeclaredPolicy seeds the entity's access policy on first store.
	// It is not part of the stored content and is excluded from the
	// checksum input.
	DeclaredPolicy *AccessPolicy `json:"-"`
}

// EntityMeta returns the entity's shared metadata.
func (m *Meta) EntityMeta() *Meta { return m }

// Entity is the contract every stored record implements.
type Entity interface {
	EntityMeta() *Meta
	Kind() EntityKind
	Validate() error
	Clone() Entity
}

// ContextSnapshot is an immutable, versioned capture of a workflow's
// shared context. Updates never mutate a snapshot in place; they create
// a child snapshot via Next.
type ContextSnapshot struct {
	Meta
	WorkflowID  string                 `json:"workflow_id"`
	Version     int                    `json:"version"`
	ContextData map[string]interface{} `json:"context_data"`
	ParentID    string                 `json:"parent_id,omitempty"`
	AgentID     string                 `json:"agent_id,omitempty"`
}

func (s *ContextSnapshot) Kind() EntityKind { return KindContextSnapshot }

func (s *ContextSnapshot) Validate() error {
	if s.WorkflowID == "" {
		return fmt.Errorf("%w: context snapshot requires workflow_id", ErrValidation)
	}
	if s.Version < 1 {
		return fmt.Errorf("%w: context snapshot version must be >= 1, got %d", ErrValidation, s.Version)
	}
	if s.ContextData == nil {
		return fmt.Errorf("%w: context snapshot requires context_data", ErrValidation)
	}
	return nil
}

func (s *ContextSnapshot) Clone() Entity {
	c := *s
	c.ContextData = deepCopyMap(s.ContextData)
	return &c
}

// Next creates the successor snapshot: context_data is the deep merge
// of this snapshot and updates (later keys win), version is parent+1,
// and parent_id links back to this snapshot.
func (s *ContextSnapshot) Next(agentID string, updates map[string]interface{}) *ContextSnapshot {
	merged := deepCopyMap(s.ContextData)
	deepMerge(merged, updates)

	return &ContextSnapshot{
		Meta: Meta{
			Tier:        TierWorking,
			Sensitivity: s.Sensitivity,
		},
		WorkflowID:  s.WorkflowID,
		Version:     s.Version + 1,
		ContextData: merged,
		ParentID:    s.ID,
		AgentID:     agentID,
	}
}

// WorkflowRecord tracks one workflow execution. Created once at start,
// mutated only to append status, result and the snapshot version list
// at completion.
type WorkflowRecord struct {
	Meta
	WorkflowID      string                 `json:"workflow_id"`
	WorkflowName    string                 `json:"workflow_name"`
	WorkflowStatus  string                 `json:"workflow_status"`
	CustomerID      string                 `json:"customer_id,omitempty"`
	StartTime       time.Time              `json:"start_time"`
	EndTime         *time.Time             `json:"end_time,omitempty"`
	Result          map[string]interface{} `json:"result,omitempty"`
	ContextVersions []string               `json:"context_versions"`
}

func (r *WorkflowRecord) Kind() EntityKind { return KindWorkflowRecord }

func (r *WorkflowRecord) Validate() error {
	if r.WorkflowID == "" {
		return fmt.Errorf("%w: workflow record requires workflow_id", ErrValidation)
	}
	if r.WorkflowName == "" {
		return fmt.Errorf("%w: workflow record requires workflow_name", ErrValidation)
	}
	if r.WorkflowStatus == "" {
		return fmt.Errorf("%w: workflow record requires workflow_status", ErrValidation)
	}
	if r.StartTime.IsZero() {
		return fmt.Errorf("%w: workflow record requires start_time", ErrValidation)
	}
	return nil
}

func (r *WorkflowRecord) Clone() Entity {
	c := *r
	c.Result = deepCopyMap(r.Result)
	c.ContextVersions = append([]string(nil), r.ContextVersions...)
	if r.EndTime != nil {
		t := *r.EndTime
		c.EndTime = &t
	}
	return &c
}

// KnowledgeItem is a piece of content in the semantic tier. The vector
// embedding is computed lazily from content on first store if absent.
type KnowledgeItem struct {
	Meta
	Content         string    `json:"content"`
	ContentType     string    `json:"content_type"`
	Source          string    `json:"source,omitempty"`
	Confidence      float64   `json:"confidence"`
	References      []string  `json:"references,omitempty"`
	VectorEmbedding []float32 `json:"vector_embedding,omitempty"`
}

func (k *KnowledgeItem) Kind() EntityKind { return KindKnowledgeItem }

func (k *KnowledgeItem) Validate() error {
	if k.Content == "" {
		return fmt.Errorf("%w: knowledge item requires content", ErrValidation)
	}
	if k.ContentType == "" {
		return fmt.Errorf("%w: knowledge item requires content_type", ErrValidation)
	}
	if k.Confidence < 0.0 || k.Confidence > 1.0 {
		return fmt.Errorf("%w: knowledge item confidence must be in [0.0, 1.0], got %v", ErrValidation, k.Confidence)
	}
	return nil
}

func (k *KnowledgeItem) Clone() Entity {
	c := *k
	c.References = append([]string(nil), k.References...)
	c.VectorEmbedding = append([]float32(nil), k.VectorEmbedding...)
	return &c
}

// RelationshipEdge is a typed relationship between two entities. The
// endpoints are id-based weak references; the edge never owns them and
// they may live in any tier.
type RelationshipEdge struct {
	Meta
	FromID        string                 `json:"from_id"`
	ToID          string                 `json:"to_id"`
	RelationType  string                 `json:"relation_type"`
	Strength      float64                `json:"strength"`
	Bidirectional bool                   `json:"bidirectional"`
	Properties    map[string]interface{} `json:"properties,omitempty"`
}

func (e *RelationshipEdge) Kind() EntityKind { return KindRelationshipEdge }

func (e *RelationshipEdge) Validate() error {
	if e.FromID == "" || e.ToID == "" {
		return fmt.Errorf("%w: relationship edge requires from_id and to_id", ErrValidation)
	}
	if e.RelationType == "" {
		return fmt.Errorf("%w: relationship edge requires relation_type", ErrValidation)
	}
	if e.Strength < 0.0 || e.Strength > 1.0 {
		return fmt.Errorf("%w: relationship edge strength must be in [0.0, 1.0], got %v", ErrValidation, e.Strength)
	}
	return nil
}

func (e *RelationshipEdge) Clone() Entity {
	c := *e
	c.Properties = deepCopyMap(e.Properties)
	return &c
}

// AccessPolicy maps roles and individual users to the operations they
// may perform on one entity. User overrides take precedence over role
// membership.
type AccessPolicy struct {
	EntityID      string                  `json:"entity_id"`
	Roles         map[string]OperationSet `json:"roles"`
	UserOverrides map[string]OperationSet `json:"user_overrides,omitempty"`
}

// Clone returns an independent copy of the policy.
func (p *AccessPolicy) Clone() *AccessPolicy {
	if p == nil {
		return nil
	}
	c := &AccessPolicy{
		EntityID:      p.EntityID,
		Roles:         make(map[string]OperationSet, len(p.Roles)),
		UserOverrides: make(map[string]OperationSet, len(p.UserOverrides)),
	}
	for role, ops := range p.Roles {
		c.Roles[role] = ops.Clone()
	}
	for user, ops := range p.UserOverrides {
		c.UserOverrides[user] = ops.Clone()
	}
	return c
}

// AuditEntry is an immutable record of one store operation. Entries are
// never edited or removed once appended; the ring only evicts from the
// head when full.
type AuditEntry struct {
	Timestamp    time.Time              `json:"timestamp"`
	EntityID     string                 `json:"entity_id,omitempty"`
	Action       Action                 `json:"action"`
	UserID       string                 `json:"user_id"`
	Details      map[string]interface{} `json:"details,omitempty"`
	PrevChecksum string                 `json:"prev_checksum,omitempty"`
	NewChecksum  string                 `json:"new_checksum,omitempty"`
	TraceID      string                 `json:"trace_id,omitempty"`
}

// ToMap renders an entity as a plain mapping, the shape handed back to
// agents at the session-client boundary.
func ToMap(e Entity) (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entity: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	return out, nil
}

// deepMerge merges src into dst recursively. Nested maps merge key by
// key; any other value in src replaces the value in dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = deepCopyValue(srcVal)
	}
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
