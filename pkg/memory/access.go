package memory

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const (
	// AdminRole is granted every operation on every policy.
	AdminRole = "admin"

	// ServiceRole is the fixed internal role allowed tier-level reads
	// (searches that are not tied to one entity id).
	ServiceRole = "memory_service"

	// defaultPolicyPrefix keys role-default policies in the policy
	// table. A policy registered under "role:analyst" seeds every new
	// entity that does not declare its own policy.
	defaultPolicyPrefix = "role:"
)

// AccessController owns the per-entity policy table. Checks are
// fail-closed: no recorded policy means access denied, with admin as
// the only exception.
type AccessController struct {
	mu       sync.RWMutex
	policies map[string]*AccessPolicy
	logger   zerolog.Logger
}

// NewAccessController creates an empty policy table.
func NewAccessController(logger zerolog.Logger) *AccessController {
	return &AccessController{
		policies: make(map[string]*AccessPolicy),
		logger:   logger,
	}
}

// Check decides whether (userID, role) may perform op on the entity.
// User overrides take precedence over role membership. Returns
// ErrPermissionDenied on any failure path.
func (ac *AccessController) Check(entityID, userID, role string, op Operation) error {
	if role == AdminRole {
		return nil
	}

	ac.mu.RLock()
	policy, ok := ac.policies[entityID]
	ac.mu.RUnlock()

	if !ok {
		ac.logger.Debug().
			Str("entity_id", entityID).
			Str("user_id", userID).
			Str("role", role).
			Str("operation", string(op)).
			Msg("No policy recorded, denying access")
		return fmt.Errorf("%w: no policy for entity %s", ErrPermissionDenied, entityID)
	}

	if ops, ok := policy.UserOverrides[userID]; ok {
		if ops.Has(op) {
			return nil
		}
		return fmt.Errorf("%w: user %s may not %s entity %s", ErrPermissionDenied, userID, op, entityID)
	}

	if policy.Roles[role].Has(op) {
		return nil
	}
	return fmt.Errorf("%w: role %s may not %s entity %s", ErrPermissionDenied, role, op, entityID)
}

// CheckTier decides whether a role may run entity-independent reads
// against a tier (search). Only admin and the service role pass.
func (ac *AccessController) CheckTier(role string, op Operation) error {
	if role == AdminRole {
		return nil
	}
	if op == OpRead && role == ServiceRole {
		return nil
	}
	return fmt.Errorf("%w: role %s may not %s at tier level", ErrPermissionDenied, role, op)
}

// Register records a policy for an entity, replacing any existing one.
// An admin full-access grant is always added.
func (ac *AccessController) Register(policy *AccessPolicy) {
	p := policy.Clone()
	if p.Roles == nil {
		p.Roles = make(map[string]OperationSet)
	}
	p.Roles[AdminRole] = NewOperationSet(OpRead, OpWrite, OpDelete)

	ac.mu.Lock()
	ac.policies[p.EntityID] = p
	ac.mu.Unlock()
}

// RegisterRoleDefault records a default policy for a role. Entities
// stored without a declared policy inherit the union of all registered
// role defaults.
func (ac *AccessController) RegisterRoleDefault(role string, ops OperationSet) {
	ac.Register(&AccessPolicy{
		EntityID: defaultPolicyPrefix + role,
		Roles:    map[string]OperationSet{role: ops.Clone()},
	})
	ac.logger.Info().Str("role", role).Msg("Default role policy registered")
}

// Seed installs the initial policy for a new entity: the entity's own
// declared policy if present, otherwise the union of registered role
// defaults. Admin always receives full access. Seed is a no-op if the
// entity already has a policy.
func (ac *AccessController) Seed(entityID string, declared *AccessPolicy) {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	if _, exists := ac.policies[entityID]; exists {
		return
	}

	policy := &AccessPolicy{
		EntityID:      entityID,
		Roles:         make(map[string]OperationSet),
		UserOverrides: make(map[string]OperationSet),
	}

	if declared != nil {
		for role, ops := range declared.Roles {
			policy.Roles[role] = ops.Clone()
		}
		for user, ops := range declared.UserOverrides {
			policy.UserOverrides[user] = ops.Clone()
		}
	} else {
		for key, def := range ac.policies {
			if !strings.HasPrefix(key, defaultPolicyPrefix) {
				continue
			}
			for role, ops := range def.Roles {
				if role == AdminRole {
					continue
				}
				merged := policy.Roles[role]
				if merged == nil {
					merged = make(OperationSet)
					policy.Roles[role] = merged
				}
				for op, ok := range ops {
					if ok {
						merged[op] = true
					}
				}
			}
		}
	}

	policy.Roles[AdminRole] = NewOperationSet(OpRead, OpWrite, OpDelete)
	ac.policies[entityID] = policy
}

// Policy returns a copy of the recorded policy for an entity.
func (ac *AccessController) Policy(entityID string) (*AccessPolicy, bool) {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	p, ok := ac.policies[entityID]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Remove drops the policy for an entity. Called when the entity is
// deleted.
func (ac *AccessController) Remove(entityID string) {
	ac.mu.Lock()
	delete(ac.policies, entityID)
	ac.mu.Unlock()
}

// HasPolicy reports whether the entity has a recorded policy.
func (ac *AccessController) HasPolicy(entityID string) bool {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	_, ok := ac.policies[entityID]
	return ok
}
