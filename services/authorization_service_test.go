package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinkhouse/league-system/models"
)

func TestRoleRanking(t *testing.T) {
	assert.True(t, models.RoleOwner.AtLeast(models.RoleAdmin))
	assert.True(t, models.RoleAdmin.AtLeast(models.RoleScorekeeper))
	assert.True(t, models.RoleScorekeeper.AtLeast(models.RoleScorekeeper))
	assert.False(t, models.RoleScorekeeper.AtLeast(models.RoleAdmin))
	assert.False(t, models.RoleAdmin.AtLeast(models.RoleOwner))
	assert.False(t, models.TournamentRole("referee").Valid())
}

func TestRequireRole(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tournament := env.newTournament(models.FormatSingleElimination, models.StatusDraft, 2)
	env.grantRole(tournament.ID, 2, models.RoleScorekeeper)

	assert.NoError(t, env.authz.RequireRole(ctx, tournament.ID, 1, models.RoleOwner))
	assert.NoError(t, env.authz.RequireRole(ctx, tournament.ID, 2, models.RoleScorekeeper))
	assert.ErrorIs(t, env.authz.RequireRole(ctx, tournament.ID, 2, models.RoleAdmin), ErrInsufficientRole)

	// No binding at all reads as no permission, not as an internal error.
	assert.ErrorIs(t, env.authz.RequireRole(ctx, tournament.ID, 42, models.RoleScorekeeper), ErrInsufficientRole)
}

func TestAssignRole(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tournament := env.newTournament(models.FormatSingleElimination, models.StatusDraft, 2)
	env.addUser(2)

	// Owner grants are never created through assignment.
	err := env.authz.AssignRole(ctx, 1, tournament.ID, 2, models.RoleOwner)
	assert.ErrorIs(t, err, ErrInvalidRole)
	err = env.authz.AssignRole(ctx, 1, tournament.ID, 2, models.TournamentRole("referee"))
	assert.ErrorIs(t, err, ErrInvalidRole)

	// The owner's own binding is untouchable.
	err = env.authz.AssignRole(ctx, 1, tournament.ID, 1, models.RoleAdmin)
	assert.ErrorIs(t, err, ErrCannotRemoveOwner)

	require.NoError(t, env.authz.AssignRole(ctx, 1, tournament.ID, 2, models.RoleScorekeeper))
	binding, err := env.roles.Get(ctx, tournament.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, models.RoleScorekeeper, binding.Role)

	// Re-assignment changes the role in place.
	require.NoError(t, env.authz.AssignRole(ctx, 1, tournament.ID, 2, models.RoleAdmin))
	binding, err = env.roles.Get(ctx, tournament.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, binding.Role)

	// Scorekeepers cannot hand out roles.
	env.grantRole(tournament.ID, 3, models.RoleScorekeeper)
	err = env.authz.AssignRole(ctx, 3, tournament.ID, 2, models.RoleScorekeeper)
	assert.ErrorIs(t, err, ErrInsufficientRole)

	assert.Contains(t, env.auditLog.actions(tournament.ID), models.AuditRoleAssigned)
}

func TestRemoveRole(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tournament := env.newTournament(models.FormatSingleElimination, models.StatusDraft, 2)
	env.grantRole(tournament.ID, 2, models.RoleScorekeeper)

	err := env.authz.RemoveRole(ctx, 1, tournament.ID, 1)
	assert.ErrorIs(t, err, ErrCannotRemoveOwner)

	require.NoError(t, env.authz.RemoveRole(ctx, 1, tournament.ID, 2))
	_, err = env.roles.Get(ctx, tournament.ID, 2)
	assert.Error(t, err)
	assert.Contains(t, env.auditLog.actions(tournament.ID), models.AuditRoleRemoved)
}

func TestTransferOwnership(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tournament := env.newTournament(models.FormatSingleElimination, models.StatusDraft, 2)

	err := env.authz.TransferOwnership(ctx, 1, tournament.ID, 1)
	assert.ErrorIs(t, err, ErrValidationFailed)

	// The target must already hold the admin role.
	env.grantRole(tournament.ID, 2, models.RoleScorekeeper)
	err = env.authz.TransferOwnership(ctx, 1, tournament.ID, 2)
	assert.ErrorIs(t, err, ErrTransferTargetNotAdmin)

	env.grantRole(tournament.ID, 2, models.RoleAdmin)

	// Only the current owner may transfer.
	env.grantRole(tournament.ID, 3, models.RoleAdmin)
	err = env.authz.TransferOwnership(ctx, 3, tournament.ID, 2)
	assert.ErrorIs(t, err, ErrInsufficientRole)

	require.NoError(t, env.authz.TransferOwnership(ctx, 1, tournament.ID, 2))

	owner, err := env.roles.GetOwner(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, owner.UserID)

	// The previous owner is demoted, never dropped: exactly one owner, no gaps.
	previous, err := env.roles.Get(ctx, tournament.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, previous.Role)
	assert.Contains(t, env.auditLog.actions(tournament.ID), models.AuditOwnershipTransferred)
}

func TestTransferOwnershipHonorsSingleOwnerIndex(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tournament := env.newTournament(models.FormatSingleElimination, models.StatusDraft, 2)
	env.grantRole(tournament.ID, 2, models.RoleAdmin)

	// The role store rejects a second owner row per statement, like the
	// partial unique index in the schema. The swap has to demote before it
	// promotes or the promotion can never go through.
	require.NoError(t, env.authz.TransferOwnership(ctx, 1, tournament.ID, 2))
	require.NoError(t, env.authz.TransferOwnership(ctx, 2, tournament.ID, 1))

	owner, err := env.roles.GetOwner(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, owner.UserID)

	bindings, err := env.roles.ListByTournament(ctx, tournament.ID)
	require.NoError(t, err)
	owners := 0
	for _, b := range bindings {
		if b.Role == models.RoleOwner {
			owners++
		}
	}
	assert.Equal(t, 1, owners)
}

func TestListRoles(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tournament := env.newTournament(models.FormatSingleElimination, models.StatusDraft, 2)
	env.grantRole(tournament.ID, 2, models.RoleScorekeeper)

	_, err := env.authz.ListRoles(ctx, 42, tournament.ID)
	assert.ErrorIs(t, err, ErrInsufficientRole)

	bindings, err := env.authz.ListRoles(ctx, 2, tournament.ID)
	require.NoError(t, err)
	assert.Len(t, bindings, 2)
}

func TestAuditLogListing(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tournament := env.newTournament(models.FormatSingleElimination, models.StatusDraft, 2)
	env.addUser(2)

	require.NoError(t, env.authz.AssignRole(ctx, 1, tournament.ID, 2, models.RoleScorekeeper))
	require.NoError(t, env.authz.RemoveRole(ctx, 1, tournament.ID, 2))

	_, _, err := env.audit.List(ctx, 42, tournament.ID, models.AuditFilter{})
	assert.ErrorIs(t, err, ErrInsufficientRole)

	records, total, err := env.audit.List(ctx, 1, tournament.ID, models.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, records, 2)

	action := models.AuditRoleAssigned
	records, total, err = env.audit.List(ctx, 1, tournament.ID, models.AuditFilter{Action: &action})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, models.AuditRoleAssigned, records[0].Action)
	assert.Equal(t, 1, records[0].ActorUserID)
	assert.NotEmpty(t, records[0].Details)
}
