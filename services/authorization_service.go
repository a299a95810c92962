package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rinkhouse/league-system/models"
	"github.com/rinkhouse/league-system/repositories"
)

// AuthorizationService is the single gate for per-tournament permissions.
// Every mutating service resolves the caller's role through RequireRole
// rather than reading the role table directly.
type AuthorizationService interface {
	RequireRole(ctx context.Context, tournamentID, userID int, min models.TournamentRole) error
	AssignRole(ctx context.Context, actorUserID, tournamentID, userID int, role models.TournamentRole) error
	RemoveRole(ctx context.Context, actorUserID, tournamentID, userID int) error
	TransferOwnership(ctx context.Context, actorUserID, tournamentID, newOwnerID int) error
	ListRoles(ctx context.Context, actorUserID, tournamentID int) ([]*models.TournamentRoleBinding, error)
}

type authorizationService struct {
	txManager repositories.TxManager
	roleRepo  repositories.RoleRepository
	userRepo  repositories.UserRepository
	audit     AuditService
}

func NewAuthorizationService(
	txManager repositories.TxManager,
	roleRepo repositories.RoleRepository,
	userRepo repositories.UserRepository,
	audit AuditService,
) AuthorizationService {
	return &authorizationService{
		txManager: txManager,
		roleRepo:  roleRepo,
		userRepo:  userRepo,
		audit:     audit,
	}
}

func (s *authorizationService) RequireRole(ctx context.Context, tournamentID, userID int, min models.TournamentRole) error {
	binding, err := s.roleRepo.Get(ctx, tournamentID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoleBindingNotFound) {
			return ErrInsufficientRole
		}
		return fmt.Errorf("resolving role for user %d in tournament %d: %w", userID, tournamentID, err)
	}
	if !binding.Role.AtLeast(min) {
		return ErrInsufficientRole
	}
	return nil
}

// AssignRole grants or changes a scorekeeper/admin binding. Owner bindings
// are created only through tournament creation and TransferOwnership.
func (s *authorizationService) AssignRole(ctx context.Context, actorUserID, tournamentID, userID int, role models.TournamentRole) error {
	if !role.Valid() || role == models.RoleOwner {
		return ErrInvalidRole
	}
	if err := s.RequireRole(ctx, tournamentID, actorUserID, models.RoleAdmin); err != nil {
		return err
	}
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return err
	}

	return s.txManager.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		owner, err := s.roleRepo.GetOwner(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if owner.UserID == userID {
			return ErrCannotRemoveOwner
		}
		binding := &models.TournamentRoleBinding{
			TournamentID: tournamentID,
			UserID:       userID,
			Role:         role,
		}
		if err := s.roleRepo.Upsert(ctx, exec, binding); err != nil {
			return err
		}
		return s.audit.Record(ctx, exec, AuditEntry{
			TournamentID: tournamentID,
			ActorUserID:  actorUserID,
			Action:       models.AuditRoleAssigned,
			Details:      map[string]interface{}{"user_id": userID, "role": role},
		})
	})
}

func (s *authorizationService) RemoveRole(ctx context.Context, actorUserID, tournamentID, userID int) error {
	if err := s.RequireRole(ctx, tournamentID, actorUserID, models.RoleAdmin); err != nil {
		return err
	}

	return s.txManager.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		owner, err := s.roleRepo.GetOwner(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if owner.UserID == userID {
			return ErrCannotRemoveOwner
		}
		if err := s.roleRepo.Delete(ctx, exec, tournamentID, userID); err != nil {
			return err
		}
		return s.audit.Record(ctx, exec, AuditEntry{
			TournamentID: tournamentID,
			ActorUserID:  actorUserID,
			Action:       models.AuditRoleRemoved,
			Details:      map[string]interface{}{"user_id": userID},
		})
	})
}

// TransferOwnership swaps the owner binding to an existing admin. The old
// owner is demoted to admin in the same transaction so the tournament always
// has exactly one owner.
func (s *authorizationService) TransferOwnership(ctx context.Context, actorUserID, tournamentID, newOwnerID int) error {
	if actorUserID == newOwnerID {
		return ErrValidationFailed
	}

	return s.txManager.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		owner, err := s.roleRepo.GetOwner(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if owner.UserID != actorUserID {
			return ErrInsufficientRole
		}

		target, err := s.roleRepo.Get(ctx, tournamentID, newOwnerID)
		if err != nil {
			if errors.Is(err, repositories.ErrRoleBindingNotFound) {
				return ErrTransferTargetNotAdmin
			}
			return err
		}
		if target.Role != models.RoleAdmin {
			return ErrTransferTargetNotAdmin
		}

		// The one-owner unique index is checked per statement, so the current
		// owner must be demoted before the target is promoted. The zero-owner
		// moment only exists inside the uncommitted transaction.
		demote := &models.TournamentRoleBinding{TournamentID: tournamentID, UserID: actorUserID, Role: models.RoleAdmin}
		promote := &models.TournamentRoleBinding{TournamentID: tournamentID, UserID: newOwnerID, Role: models.RoleOwner}
		if err := s.roleRepo.Upsert(ctx, exec, demote); err != nil {
			return err
		}
		if err := s.roleRepo.Upsert(ctx, exec, promote); err != nil {
			return err
		}
		return s.audit.Record(ctx, exec, AuditEntry{
			TournamentID: tournamentID,
			ActorUserID:  actorUserID,
			Action:       models.AuditOwnershipTransferred,
			Details:      map[string]interface{}{"new_owner_id": newOwnerID, "previous_owner_id": actorUserID},
		})
	})
}

func (s *authorizationService) ListRoles(ctx context.Context, actorUserID, tournamentID int) ([]*models.TournamentRoleBinding, error) {
	if err := s.RequireRole(ctx, tournamentID, actorUserID, models.RoleScorekeeper); err != nil {
		return nil, err
	}
	return s.roleRepo.ListByTournament(ctx, tournamentID)
}
