package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rinkhouse/league-system/models"
	"github.com/rinkhouse/league-system/repositories"
	"github.com/rinkhouse/league-system/storage"
)

type CreateTeamInput struct {
	Name      string
	Seed      int
	CaptainID int
}

type TeamService interface {
	Create(ctx context.Context, actorUserID, tournamentID int, input CreateTeamInput) (*models.Team, error)
	GetByID(ctx context.Context, teamID int) (*models.Team, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Team, error)
	UploadLogo(ctx context.Context, actorUserID, teamID int, contentType string, body io.Reader) (*models.Team, error)
	Delete(ctx context.Context, actorUserID, teamID int) error
}

type teamService struct {
	teamRepo       repositories.TeamRepository
	tournamentRepo repositories.TournamentRepository
	matchRepo      repositories.MatchRepository
	authz          AuthorizationService
	uploader       storage.FileUploader
	logger         *slog.Logger
}

func NewTeamService(
	teamRepo repositories.TeamRepository,
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	authz AuthorizationService,
	uploader storage.FileUploader,
	logger *slog.Logger,
) TeamService {
	return &teamService{
		teamRepo:       teamRepo,
		tournamentRepo: tournamentRepo,
		matchRepo:      matchRepo,
		authz:          authz,
		uploader:       uploader,
		logger:         logger,
	}
}

// Create registers a team while the tournament is open for registration.
// Seeds are assigned by the admin and must be unique per tournament; the
// database constraint backs that up.
func (s *teamService) Create(ctx context.Context, actorUserID, tournamentID int, input CreateTeamInput) (*models.Team, error) {
	if err := s.authz.RequireRole(ctx, tournamentID, actorUserID, models.RoleAdmin); err != nil {
		return nil, err
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" || input.Seed < 1 || input.CaptainID < 1 {
		return nil, ErrValidationFailed
	}

	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if tournament.Status != models.StatusOpen {
		return nil, ErrTeamRegistrationClosed
	}

	team := &models.Team{
		TournamentID: tournamentID,
		Name:         input.Name,
		Seed:         input.Seed,
		CaptainID:    input.CaptainID,
	}
	if err := s.teamRepo.Create(ctx, team); err != nil {
		return nil, err
	}
	return team, nil
}

func (s *teamService) GetByID(ctx context.Context, teamID int) (*models.Team, error) {
	team, err := s.teamRepo.GetByID(ctx, teamID)
	if err != nil {
		return nil, err
	}
	s.populateLogoURL(team)
	return team, nil
}

func (s *teamService) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Team, error) {
	teams, err := s.teamRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	for _, team := range teams {
		s.populateLogoURL(team)
	}
	return teams, nil
}

// UploadLogo stores the logo in the object store and records its key. The
// previous logo object is deleted best-effort after the swap.
func (s *teamService) UploadLogo(ctx context.Context, actorUserID, teamID int, contentType string, body io.Reader) (*models.Team, error) {
	team, err := s.teamRepo.GetByID(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.RequireRole(ctx, team.TournamentID, actorUserID, models.RoleAdmin); err != nil {
		return nil, err
	}
	if s.uploader == nil {
		return nil, fmt.Errorf("file storage is not configured")
	}

	ext, err := extensionFromContentType(contentType)
	if err != nil {
		return nil, ErrValidationFailed
	}

	key := fmt.Sprintf("teams/%d/logo_%d%s", team.ID, time.Now().UnixNano(), ext)
	result, err := s.uploader.Upload(ctx, key, contentType, body)
	if err != nil {
		return nil, fmt.Errorf("uploading team logo: %w", err)
	}

	oldKey := team.LogoKey
	if err := s.teamRepo.UpdateLogoKey(ctx, team.ID, &result.Key); err != nil {
		return nil, err
	}
	if oldKey != nil && *oldKey != result.Key {
		if err := s.uploader.Delete(ctx, *oldKey); err != nil {
			s.logger.Warn("failed to delete previous team logo", "team_id", team.ID, "key", *oldKey, "error", err)
		}
	}

	team.LogoKey = &result.Key
	s.populateLogoURL(team)
	return team, nil
}

// Delete removes a team before the bracket exists. Once matches reference
// teams, removing one would orphan graph nodes.
func (s *teamService) Delete(ctx context.Context, actorUserID, teamID int) error {
	team, err := s.teamRepo.GetByID(ctx, teamID)
	if err != nil {
		return err
	}
	if err := s.authz.RequireRole(ctx, team.TournamentID, actorUserID, models.RoleAdmin); err != nil {
		return err
	}
	count, err := s.matchRepo.CountByTournament(ctx, nil, team.TournamentID)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrBracketAlreadyExists
	}
	return s.teamRepo.Delete(ctx, teamID)
}

func (s *teamService) populateLogoURL(team *models.Team) {
	if s.uploader == nil || team.LogoKey == nil || *team.LogoKey == "" {
		return
	}
	url := s.uploader.GetPublicURL(*team.LogoKey)
	team.LogoURL = &url
}

func extensionFromContentType(contentType string) (string, error) {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/gif":
		return ".gif", nil
	case "image/webp":
		return ".webp", nil
	default:
		return "", fmt.Errorf("unsupported logo content type %q", contentType)
	}
}
