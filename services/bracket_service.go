package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rinkhouse/league-system/brackets"
	"github.com/rinkhouse/league-system/models"
	"github.com/rinkhouse/league-system/repositories"
)

// BracketService owns the bracket graph as a whole: generation, clearing,
// reads, and the periodic safety sweep. Per-match mutations live in
// MatchService.
type BracketService interface {
	GenerateBracket(ctx context.Context, actorUserID, tournamentID int) ([]*models.Match, error)
	ClearBracket(ctx context.Context, actorUserID, tournamentID int) error
	GetMatches(ctx context.Context, tournamentID int) ([]*models.Match, error)
	GetBracketView(ctx context.Context, tournamentID int) (*models.Tournament, error)

	// SweepBracketResets walks in-progress tournaments and activates any
	// bracket-reset match whose first grand final was won from the away slot
	// but whose activation was lost, e.g. to a crash between commit and a
	// follow-up write. It is idempotent and safe to run on a timer.
	SweepBracketResets(ctx context.Context) error
}

type bracketService struct {
	txManager      repositories.TxManager
	tournamentRepo repositories.TournamentRepository
	teamRepo       repositories.TeamRepository
	matchRepo      repositories.MatchRepository
	authz          AuthorizationService
	audit          AuditService
	hub            *brackets.Hub
	logger         *slog.Logger
}

func NewBracketService(
	txManager repositories.TxManager,
	tournamentRepo repositories.TournamentRepository,
	teamRepo repositories.TeamRepository,
	matchRepo repositories.MatchRepository,
	authz AuthorizationService,
	audit AuditService,
	hub *brackets.Hub,
	logger *slog.Logger,
) BracketService {
	return &bracketService{
		txManager:      txManager,
		tournamentRepo: tournamentRepo,
		teamRepo:       teamRepo,
		matchRepo:      matchRepo,
		authz:          authz,
		audit:          audit,
		hub:            hub,
		logger:         logger,
	}
}

// GenerateBracket builds the full match graph for a tournament and persists
// it atomically. Either every match row and every forward pointer exists
// afterwards, or nothing does.
func (s *bracketService) GenerateBracket(ctx context.Context, actorUserID, tournamentID int) ([]*models.Match, error) {
	if err := s.authz.RequireRole(ctx, tournamentID, actorUserID, models.RoleAdmin); err != nil {
		return nil, err
	}

	err := s.txManager.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		// Lock the tournament row so concurrent generate/clear calls for the
		// same tournament serialize here.
		tournament, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if tournament.Status != models.StatusRegistrationClosed {
			return ErrBracketGenerationBlocked
		}

		count, err := s.matchRepo.CountByTournament(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrBracketAlreadyExists
		}

		teams, err := s.teamRepo.ListByTournament(ctx, tournamentID)
		if err != nil {
			return err
		}

		generator, err := brackets.NewGenerator(tournament.Format)
		if err != nil {
			return err
		}
		bracketMatches, err := generator.GenerateBracket(ctx, brackets.GenerateBracketParams{
			TournamentID: tournamentID,
			Teams:        teams,
		})
		if err != nil {
			return err
		}

		if err := s.persistBracket(ctx, exec, tournament, bracketMatches); err != nil {
			return err
		}

		return s.audit.Record(ctx, exec, AuditEntry{
			TournamentID: tournamentID,
			ActorUserID:  actorUserID,
			Action:       models.AuditBracketGenerated,
			Details: map[string]interface{}{
				"format":      tournament.Format,
				"team_count":  len(teams),
				"match_count": len(bracketMatches),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	matches, err := s.matchRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	s.broadcast(tournamentID, brackets.EventBracketGenerated, matches)
	return matches, nil
}

// persistBracket writes the generated graph in two passes: first every match
// row (byes already completed, the bracket reset inert), then the forward
// pointers once database ids exist for every UID.
func (s *bracketService) persistBracket(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, bracketMatches []*brackets.BracketMatch) error {
	scheduledTime := tournament.StartDate
	if scheduledTime.Before(time.Now()) {
		scheduledTime = time.Now().Add(15 * time.Minute)
	}

	idByUID := make(map[string]int, len(bracketMatches))
	for _, bm := range bracketMatches {
		match := &models.Match{
			TournamentID:  tournament.ID,
			BracketType:   bm.BracketType,
			Round:         bm.Round,
			MatchNumber:   bm.MatchNumber,
			HomeTeamID:    bm.HomeTeamID,
			AwayTeamID:    bm.AwayTeamID,
			Status:        models.MatchStatusScheduled,
			IsBye:         bm.IsBye,
			ScheduledTime: scheduledTime,
			Venue:         tournament.Location,
		}
		if bm.Inert {
			match.Status = models.MatchStatusInert
		}
		if bm.ByeWinnerID != nil {
			match.Status = models.MatchStatusCompleted
			match.WinnerTeamID = bm.ByeWinnerID
		}
		if err := s.matchRepo.Create(ctx, exec, match); err != nil {
			return fmt.Errorf("creating match %s: %w", bm.UID, err)
		}
		idByUID[bm.UID] = match.ID
	}

	for _, bm := range bracketMatches {
		if bm.NextMatchUID == nil && bm.LoserNextUID == nil {
			continue
		}
		var nextID, loserNextID *int
		var nextSlot, loserNextSlot *models.MatchSlot
		if bm.NextMatchUID != nil {
			id, ok := idByUID[*bm.NextMatchUID]
			if !ok {
				return fmt.Errorf("match %s points at unknown match %s", bm.UID, *bm.NextMatchUID)
			}
			slot := bm.NextSlot
			nextID, nextSlot = &id, &slot
		}
		if bm.LoserNextUID != nil {
			id, ok := idByUID[*bm.LoserNextUID]
			if !ok {
				return fmt.Errorf("match %s loser-points at unknown match %s", bm.UID, *bm.LoserNextUID)
			}
			slot := bm.LoserNextSlot
			loserNextID, loserNextSlot = &id, &slot
		}
		if err := s.matchRepo.UpdateLinks(ctx, exec, idByUID[bm.UID], nextID, nextSlot, loserNextID, loserNextSlot); err != nil {
			return fmt.Errorf("linking match %s: %w", bm.UID, err)
		}
	}
	return nil
}

// ClearBracket deletes every match of the tournament. Allowed while the
// tournament has not started, and also while in progress if the bracket was
// flagged inconsistent, in which case the tournament drops back to
// registration_closed so it can be regenerated.
func (s *bracketService) ClearBracket(ctx context.Context, actorUserID, tournamentID int) error {
	if err := s.authz.RequireRole(ctx, tournamentID, actorUserID, models.RoleAdmin); err != nil {
		return err
	}

	err := s.txManager.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		recovering := tournament.Status == models.StatusInProgress && tournament.BracketInconsistent
		if tournament.Status != models.StatusRegistrationClosed && !recovering {
			return ErrBracketClearBlocked
		}

		deleted, err := s.matchRepo.DeleteByTournament(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if recovering {
			if err := s.tournamentRepo.UpdateStatus(ctx, exec, tournamentID, models.StatusRegistrationClosed); err != nil {
				return err
			}
			if err := s.tournamentRepo.SetBracketInconsistent(ctx, exec, tournamentID, false); err != nil {
				return err
			}
		}

		return s.audit.Record(ctx, exec, AuditEntry{
			TournamentID: tournamentID,
			ActorUserID:  actorUserID,
			Action:       models.AuditBracketCleared,
			Details:      map[string]interface{}{"deleted_matches": deleted, "recovered": recovering},
		})
	})
	if err != nil {
		return err
	}

	s.broadcast(tournamentID, brackets.EventBracketCleared, nil)
	return nil
}

func (s *bracketService) GetMatches(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	if _, err := s.tournamentRepo.GetByID(ctx, tournamentID); err != nil {
		return nil, err
	}
	matches, err := s.matchRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	return visibleMatches(matches), nil
}

// visibleMatches drops inert matches from public reads. Until the first grand
// final is lost from the away slot the bracket reset is a placeholder, not a
// fixture anyone will play.
func visibleMatches(matches []*models.Match) []*models.Match {
	out := make([]*models.Match, 0, len(matches))
	for _, m := range matches {
		if m.Status == models.MatchStatusInert {
			continue
		}
		out = append(out, m)
	}
	return out
}

// GetBracketView returns the tournament with its teams and matches attached,
// fetched concurrently.
func (s *bracketService) GetBracketView(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	var teams []*models.Team
	var matches []*models.Match
	g.Go(func() error {
		var err error
		teams, err = s.teamRepo.ListByTournament(gctx, tournamentID)
		return err
	})
	g.Go(func() error {
		var err error
		matches, err = s.matchRepo.ListByTournament(gctx, tournamentID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tournament.Teams = make([]models.Team, 0, len(teams))
	for _, t := range teams {
		tournament.Teams = append(tournament.Teams, *t)
	}
	tournament.Matches = make([]models.Match, 0, len(matches))
	for _, m := range visibleMatches(matches) {
		tournament.Matches = append(tournament.Matches, *m)
	}
	return tournament, nil
}

func (s *bracketService) SweepBracketResets(ctx context.Context) error {
	tournaments, err := s.tournamentRepo.ListByStatus(ctx, models.StatusInProgress)
	if err != nil {
		return err
	}

	for _, tournament := range tournaments {
		if tournament.Format != models.FormatDoubleElimination || tournament.BracketInconsistent {
			continue
		}
		activated, err := s.sweepOne(ctx, tournament.ID)
		if err != nil {
			s.logger.Error("bracket reset sweep failed", "tournament_id", tournament.ID, "error", err)
			continue
		}
		if activated {
			s.logger.Warn("bracket reset activated by sweep", "tournament_id", tournament.ID)
			matches, err := s.matchRepo.ListByTournament(ctx, tournament.ID)
			if err == nil {
				s.broadcast(tournament.ID, brackets.EventBracketReset, matches)
			}
		}
	}
	return nil
}

func (s *bracketService) sweepOne(ctx context.Context, tournamentID int) (bool, error) {
	activated := false
	err := s.txManager.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		reset, err := s.matchRepo.GetBracketReset(ctx, exec, tournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrMatchNotFound) {
				return nil
			}
			return err
		}
		if reset.Status != models.MatchStatusInert {
			return nil
		}

		final, err := s.grandFinal(ctx, tournamentID)
		if err != nil || final == nil {
			return err
		}
		if final.Status != models.MatchStatusCompleted || final.WinnerTeamID == nil {
			return nil
		}
		if final.AwayTeamID == nil || *final.WinnerTeamID != *final.AwayTeamID {
			return nil
		}

		// The losers-bracket representative won the first grand final, so the
		// reset must be live. Seed it with the same pairing.
		if err := s.matchRepo.UpdateParticipants(ctx, exec, reset.ID, final.HomeTeamID, final.AwayTeamID); err != nil {
			return err
		}
		if err := s.matchRepo.UpdateStatus(ctx, exec, reset.ID, models.MatchStatusScheduled); err != nil {
			return err
		}
		activated = true
		return s.audit.Record(ctx, exec, AuditEntry{
			TournamentID: tournamentID,
			ActorUserID:  0,
			Action:       models.AuditBracketResetActivated,
			Details:      map[string]interface{}{"source": "sweep", "match_id": reset.ID},
		})
	})
	return activated, err
}

func (s *bracketService) grandFinal(ctx context.Context, tournamentID int) (*models.Match, error) {
	matches, err := s.matchRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		if m.BracketType == models.BracketGrandFinal && m.Round == brackets.GrandFinalRound {
			return m, nil
		}
	}
	return nil, nil
}

func (s *bracketService) broadcast(tournamentID int, eventType string, payload interface{}) {
	if s.hub == nil {
		return
	}
	room := strconv.Itoa(tournamentID)
	s.hub.BroadcastToRoom(room, brackets.Event{Type: eventType, RoomID: room, Payload: payload})
}
