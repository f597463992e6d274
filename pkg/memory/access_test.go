package memory

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAccessController() *AccessController {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	return NewAccessController(logger)
}

func TestAccessController_FailClosed(t *testing.T) {
	ac := newTestAccessController()

	// No policy recorded: everything denied except admin
	err := ac.Check("entity-1", "user-1", "analyst", OpRead)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = ac.Check("entity-1", "user-1", "analyst", OpWrite)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	assert.NoError(t, ac.Check("entity-1", "root", AdminRole, OpDelete))
}

func TestAccessController_RoleGrants(t *testing.T) {
	ac := newTestAccessController()
	ac.Register(&AccessPolicy{
		EntityID: "entity-1",
		Roles: map[string]OperationSet{
			"analyst": NewOperationSet(OpRead),
			"editor":  NewOperationSet(OpRead, OpWrite),
		},
	})

	tests := []struct {
		name    string
		role    string
		op      Operation
		allowed bool
	}{
		{"analyst read", "analyst", OpRead, true},
		{"analyst write", "analyst", OpWrite, false},
		{"editor write", "editor", OpWrite, true},
		{"editor delete", "editor", OpDelete, false},
		{"unknown role", "viewer", OpRead, false},
		{"admin delete", AdminRole, OpDelete, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ac.Check("entity-1", "user-1", tt.role, tt.op)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrPermissionDenied)
			}
		})
	}
}

func TestAccessController_UserOverrideWins(t *testing.T) {
	ac := newTestAccessController()
	ac.Register(&AccessPolicy{
		EntityID: "entity-1",
		Roles: map[string]OperationSet{
			"editor": NewOperationSet(OpRead, OpWrite),
		},
		UserOverrides: map[string]OperationSet{
			"suspended-user": NewOperationSet(),
		},
	})

	// Override blocks even though the role would allow it
	err := ac.Check("entity-1", "suspended-user", "editor", OpRead)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// Other users in the role are unaffected
	assert.NoError(t, ac.Check("entity-1", "user-2", "editor", OpRead))
}

func TestAccessController_CheckTier(t *testing.T) {
	ac := newTestAccessController()

	assert.NoError(t, ac.CheckTier(AdminRole, OpRead))
	assert.NoError(t, ac.CheckTier(ServiceRole, OpRead))
	assert.ErrorIs(t, ac.CheckTier(ServiceRole, OpWrite), ErrPermissionDenied)
	assert.ErrorIs(t, ac.CheckTier("analyst", OpRead), ErrPermissionDenied)
}

func TestAccessController_SeedFromRoleDefaults(t *testing.T) {
	ac := newTestAccessController()
	ac.RegisterRoleDefault("agent", NewOperationSet(OpRead, OpWrite))
	ac.RegisterRoleDefault("analyst", NewOperationSet(OpRead))

	ac.Seed("entity-1", nil)

	assert.NoError(t, ac.Check("entity-1", "user-1", "agent", OpWrite))
	assert.NoError(t, ac.Check("entity-1", "user-1", "analyst", OpRead))
	assert.ErrorIs(t, ac.Check("entity-1", "user-1", "analyst", OpWrite), ErrPermissionDenied)
	assert.NoError(t, ac.Check("entity-1", "root", AdminRole, OpDelete))
}

func TestAccessController_SeedDeclaredPolicy(t *testing.T) {
	ac := newTestAccessController()
	ac.RegisterRoleDefault("agent", NewOperationSet(OpRead, OpWrite))

	ac.Seed("entity-1", &AccessPolicy{
		EntityID: "entity-1",
		Roles: map[string]OperationSet{
			"auditor": NewOperationSet(OpRead),
		},
	})

	// Declared policy replaces the role defaults entirely
	assert.ErrorIs(t, ac.Check("entity-1", "user-1", "agent", OpWrite), ErrPermissionDenied)
	assert.NoError(t, ac.Check("entity-1", "user-1", "auditor", OpRead))
}

func TestAccessController_SeedIsIdempotent(t *testing.T) {
	ac := newTestAccessController()

	ac.Seed("entity-1", &AccessPolicy{
		Roles: map[string]OperationSet{"auditor": NewOperationSet(OpRead)},
	})
	ac.Seed("entity-1", &AccessPolicy{
		Roles: map[string]OperationSet{"editor": NewOperationSet(OpWrite)},
	})

	// Second seed is a no-op
	assert.NoError(t, ac.Check("entity-1", "user-1", "auditor", OpRead))
	assert.ErrorIs(t, ac.Check("entity-1", "user-1", "editor", OpWrite), ErrPermissionDenied)
}

func TestAccessController_Remove(t *testing.T) {
	ac := newTestAccessController()
	ac.Register(&AccessPolicy{
		EntityID: "entity-1",
		Roles:    map[string]OperationSet{"analyst": NewOperationSet(OpRead)},
	})
	require.True(t, ac.HasPolicy("entity-1"))

	ac.Remove("entity-1")
	assert.False(t, ac.HasPolicy("entity-1"))
	assert.ErrorIs(t, ac.Check("entity-1", "user-1", "analyst", OpRead), ErrPermissionDenied)
}

func TestAccessController_PolicyReturnsCopy(t *testing.T) {
	ac := newTestAccessController()
	ac.Register(&AccessPolicy{
		EntityID: "entity-1",
		Roles:    map[string]OperationSet{"analyst": NewOperationSet(OpRead)},
	})

	p, ok := ac.Policy("entity-1")
	require.True(t, ok)
	p.Roles["analyst"][OpDelete] = true

	// Mutating the copy does not widen the recorded policy
	assert.ErrorIs(t, ac.Check("entity-1", "user-1", "analyst", OpDelete), ErrPermissionDenied)
}
