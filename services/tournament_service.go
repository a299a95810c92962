package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/rinkhouse/league-system/models"
	"github.com/rinkhouse/league-system/repositories"
)

type CreateTournamentInput struct {
	Name        string
	Description *string
	Format      models.TournamentFormat
	Location    *string
	StartDate   time.Time
	Tiebreakers []string
}

type UpdateTournamentInput struct {
	Name        *string
	Description *string
	Location    *string
	StartDate   *time.Time
	Tiebreakers []string
}

type TournamentService interface {
	Create(ctx context.Context, actorUserID int, input CreateTournamentInput) (*models.Tournament, error)
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context, page, limit int) ([]*models.Tournament, error)
	Update(ctx context.Context, actorUserID, id int, input UpdateTournamentInput) (*models.Tournament, error)
	UpdateStatus(ctx context.Context, actorUserID, id int, status models.TournamentStatus) (*models.Tournament, error)
	Delete(ctx context.Context, actorUserID, id int) error

	// SweepFinished is a safety net for tournaments whose deciding match is
	// terminal but whose status update was lost. Runs on a timer.
	SweepFinished(ctx context.Context) error
}

type tournamentService struct {
	txManager      repositories.TxManager
	tournamentRepo repositories.TournamentRepository
	matchRepo      repositories.MatchRepository
	roleRepo       repositories.RoleRepository
	authz          AuthorizationService
	audit          AuditService
	logger         *slog.Logger
}

func NewTournamentService(
	txManager repositories.TxManager,
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	roleRepo repositories.RoleRepository,
	authz AuthorizationService,
	audit AuditService,
	logger *slog.Logger,
) TournamentService {
	return &tournamentService{
		txManager:      txManager,
		tournamentRepo: tournamentRepo,
		matchRepo:      matchRepo,
		roleRepo:       roleRepo,
		authz:          authz,
		audit:          audit,
		logger:         logger,
	}
}

// statusTransitions encodes the linear lifecycle. Canceled is reachable from
// every non-terminal status.
var statusTransitions = map[models.TournamentStatus][]models.TournamentStatus{
	models.StatusDraft:              {models.StatusOpen, models.StatusCanceled},
	models.StatusOpen:               {models.StatusRegistrationClosed, models.StatusCanceled},
	models.StatusRegistrationClosed: {models.StatusInProgress, models.StatusCanceled},
	models.StatusInProgress:         {models.StatusCompleted, models.StatusCanceled},
}

func isValidStatusTransition(from, to models.TournamentStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func validTiebreakers(rules []string) bool {
	seen := make(map[string]bool, len(rules))
	for _, rule := range rules {
		switch models.Tiebreaker(rule) {
		case models.TiebreakerScoreDiff, models.TiebreakerScoreFor, models.TiebreakerSeed:
		default:
			return false
		}
		if seen[rule] {
			return false
		}
		seen[rule] = true
	}
	return true
}

// Create stores the tournament and grants the creator the owner role in the
// same transaction, so no tournament ever exists without an owner.
func (s *tournamentService) Create(ctx context.Context, actorUserID int, input CreateTournamentInput) (*models.Tournament, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" || !input.Format.Valid() || !validTiebreakers(input.Tiebreakers) {
		return nil, ErrValidationFailed
	}
	if input.Tiebreakers == nil {
		input.Tiebreakers = []string{string(models.TiebreakerScoreDiff), string(models.TiebreakerScoreFor)}
	}

	tournament := &models.Tournament{
		Name:        input.Name,
		Description: input.Description,
		Format:      input.Format,
		Status:      models.StatusDraft,
		Location:    input.Location,
		StartDate:   input.StartDate,
		Tiebreakers: input.Tiebreakers,
	}

	err := s.txManager.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.tournamentRepo.Create(ctx, exec, tournament); err != nil {
			return err
		}
		binding := &models.TournamentRoleBinding{
			TournamentID: tournament.ID,
			UserID:       actorUserID,
			Role:         models.RoleOwner,
		}
		return s.roleRepo.Upsert(ctx, exec, binding)
	})
	if err != nil {
		return nil, err
	}
	return tournament, nil
}

func (s *tournamentService) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	return s.tournamentRepo.GetByID(ctx, id)
}

func (s *tournamentService) List(ctx context.Context, page, limit int) ([]*models.Tournament, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.tournamentRepo.List(ctx, limit, (page-1)*limit)
}

func (s *tournamentService) Update(ctx context.Context, actorUserID, id int, input UpdateTournamentInput) (*models.Tournament, error) {
	if err := s.authz.RequireRole(ctx, id, actorUserID, models.RoleAdmin); err != nil {
		return nil, err
	}
	tournament, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tournament.Status.Terminal() {
		return nil, ErrTournamentNotEditable
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, ErrValidationFailed
		}
		tournament.Name = name
	}
	if input.Description != nil {
		tournament.Description = input.Description
	}
	if input.Location != nil {
		tournament.Location = input.Location
	}
	if input.StartDate != nil {
		tournament.StartDate = *input.StartDate
	}
	if input.Tiebreakers != nil {
		if !validTiebreakers(input.Tiebreakers) {
			return nil, ErrValidationFailed
		}
		tournament.Tiebreakers = input.Tiebreakers
	}

	if err := s.tournamentRepo.Update(ctx, tournament); err != nil {
		return nil, err
	}
	return tournament, nil
}

func (s *tournamentService) UpdateStatus(ctx context.Context, actorUserID, id int, status models.TournamentStatus) (*models.Tournament, error) {
	if !status.Valid() {
		return nil, ErrValidationFailed
	}
	if err := s.authz.RequireRole(ctx, id, actorUserID, models.RoleAdmin); err != nil {
		return nil, err
	}

	err := s.txManager.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, id)
		if err != nil {
			return err
		}
		if !isValidStatusTransition(tournament.Status, status) {
			return ErrInvalidStatusTransition
		}
		if status == models.StatusInProgress {
			count, err := s.matchRepo.CountByTournament(ctx, exec, id)
			if err != nil {
				return err
			}
			if count == 0 {
				return ErrBracketRequiredForStart
			}
		}
		if err := s.tournamentRepo.UpdateStatus(ctx, exec, id, status); err != nil {
			return err
		}
		from := string(tournament.Status)
		to := string(status)
		return s.audit.Record(ctx, exec, AuditEntry{
			TournamentID: id,
			ActorUserID:  actorUserID,
			Action:       models.AuditTournamentStatusChanged,
			FromStatus:   &from,
			ToStatus:     &to,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.tournamentRepo.GetByID(ctx, id)
}

func (s *tournamentService) Delete(ctx context.Context, actorUserID, id int) error {
	tournament, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authz.RequireRole(ctx, id, actorUserID, models.RoleOwner); err != nil {
		return err
	}
	if tournament.Status != models.StatusDraft && tournament.Status != models.StatusCanceled {
		return ErrTournamentDeleteForbidden
	}
	return s.tournamentRepo.Delete(ctx, id)
}

func (s *tournamentService) SweepFinished(ctx context.Context) error {
	tournaments, err := s.tournamentRepo.ListByStatus(ctx, models.StatusInProgress)
	if err != nil {
		return err
	}
	for _, tournament := range tournaments {
		if tournament.BracketInconsistent {
			continue
		}
		matches, err := s.matchRepo.ListByTournament(ctx, tournament.ID)
		if err != nil {
			s.logger.Error("finished sweep failed to list matches", "tournament_id", tournament.ID, "error", err)
			continue
		}
		champion := findChampion(&models.Tournament{
			ID:     tournament.ID,
			Format: tournament.Format,
			Status: models.StatusCompleted,
		}, matches)
		if champion == nil {
			continue
		}
		if tournament.Format == models.FormatDoubleElimination && resetPending(matches) {
			continue
		}

		tid := tournament.ID
		err = s.txManager.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
			locked, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, tid)
			if err != nil {
				return err
			}
			if locked.Status != models.StatusInProgress {
				return nil
			}
			if err := s.tournamentRepo.UpdateStatus(ctx, exec, tid, models.StatusCompleted); err != nil {
				return err
			}
			from := string(models.StatusInProgress)
			to := string(models.StatusCompleted)
			return s.audit.Record(ctx, exec, AuditEntry{
				TournamentID: tid,
				ActorUserID:  0,
				Action:       models.AuditTournamentStatusChanged,
				FromStatus:   &from,
				ToStatus:     &to,
				Details:      map[string]interface{}{"source": "sweep", "champion_team_id": *champion},
			})
		})
		if err != nil {
			s.logger.Error("finished sweep failed", "tournament_id", tournament.ID, "error", err)
			continue
		}
		s.logger.Warn("tournament completed by sweep", "tournament_id", tournament.ID, "champion_team_id", *champion)
	}
	return nil
}

// resetPending reports whether the bracket reset still has to be played:
// either it is live and unfinished, or GF1 was won from the away slot and the
// reset has not yet been activated.
func resetPending(matches []*models.Match) bool {
	for _, m := range matches {
		if m.BracketType != models.BracketGrandFinal {
			continue
		}
		if m.Round == 2 {
			if m.Status == models.MatchStatusScheduled || m.Status == models.MatchStatusInProgress {
				return true
			}
			if m.Status == models.MatchStatusInert {
				// Inert reset: pending only if GF1 went to the away side.
				for _, gf1 := range matches {
					if gf1.BracketType == models.BracketGrandFinal && gf1.Round == 1 &&
						gf1.Status.Terminal() && gf1.WinnerTeamID != nil &&
						gf1.AwayTeamID != nil && *gf1.WinnerTeamID == *gf1.AwayTeamID {
						return true
					}
				}
			}
		}
	}
	return false
}
