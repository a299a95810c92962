package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rinkhouse/league-system/models"
	"github.com/rinkhouse/league-system/repositories"
)

// AuditEntry describes a single accepted mutation. Details is marshaled to
// JSON before persisting and may be nil.
type AuditEntry struct {
	TournamentID int
	ActorUserID  int
	Action       models.AuditAction
	FromStatus   *string
	ToStatus     *string
	Details      interface{}
}

type AuditService interface {
	// Record appends an audit record. When exec is non-nil the insert joins
	// the caller's transaction so the record commits atomically with the
	// mutation it describes.
	Record(ctx context.Context, exec repositories.SQLExecutor, entry AuditEntry) error
	List(ctx context.Context, actorUserID, tournamentID int, filter models.AuditFilter) ([]*models.AuditRecord, int, error)
}

type auditService struct {
	auditRepo repositories.AuditRepository
	roleRepo  repositories.RoleRepository
}

func NewAuditService(auditRepo repositories.AuditRepository, roleRepo repositories.RoleRepository) AuditService {
	return &auditService{auditRepo: auditRepo, roleRepo: roleRepo}
}

func (s *auditService) Record(ctx context.Context, exec repositories.SQLExecutor, entry AuditEntry) error {
	var details json.RawMessage
	if entry.Details != nil {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshaling audit details: %w", err)
		}
		details = raw
	}

	record := &models.AuditRecord{
		TournamentID: entry.TournamentID,
		ActorUserID:  entry.ActorUserID,
		Action:       entry.Action,
		FromStatus:   entry.FromStatus,
		ToStatus:     entry.ToStatus,
		Details:      details,
	}
	if err := s.auditRepo.Create(ctx, exec, record); err != nil {
		return fmt.Errorf("recording audit entry: %w", err)
	}
	return nil
}

// List is restricted to scorekeepers and above. The gate is checked here
// directly against the role repository because the authorization service
// itself records audit entries.
func (s *auditService) List(ctx context.Context, actorUserID, tournamentID int, filter models.AuditFilter) ([]*models.AuditRecord, int, error) {
	binding, err := s.roleRepo.Get(ctx, tournamentID, actorUserID)
	if err != nil {
		if err == repositories.ErrRoleBindingNotFound {
			return nil, 0, ErrInsufficientRole
		}
		return nil, 0, err
	}
	if !binding.Role.AtLeast(models.RoleScorekeeper) {
		return nil, 0, ErrInsufficientRole
	}
	return s.auditRepo.ListByTournament(ctx, tournamentID, filter)
}
