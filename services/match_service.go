package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/rinkhouse/league-system/brackets"
	"github.com/rinkhouse/league-system/models"
	"github.com/rinkhouse/league-system/repositories"
)

// MatchService is the advancement engine: it accepts match results and walks
// winners and losers along their forward pointers, resolving byes and
// activating the bracket reset as it goes. All of that happens inside one
// transaction per accepted result.
type MatchService interface {
	GetByID(ctx context.Context, matchID int) (*models.Match, error)
	StartMatch(ctx context.Context, actorUserID, matchID int) (*models.Match, error)
	EnterScore(ctx context.Context, actorUserID, matchID, homeScore, awayScore int) (*models.Match, error)
	ForfeitMatch(ctx context.Context, actorUserID, matchID, forfeitingTeamID int) (*models.Match, error)
	CancelMatch(ctx context.Context, actorUserID, matchID int) (*models.Match, error)
}

type matchService struct {
	txManager      repositories.TxManager
	matchRepo      repositories.MatchRepository
	tournamentRepo repositories.TournamentRepository
	authz          AuthorizationService
	audit          AuditService
	hub            *brackets.Hub
	logger         *slog.Logger
}

func NewMatchService(
	txManager repositories.TxManager,
	matchRepo repositories.MatchRepository,
	tournamentRepo repositories.TournamentRepository,
	authz AuthorizationService,
	audit AuditService,
	hub *brackets.Hub,
	logger *slog.Logger,
) MatchService {
	return &matchService{
		txManager:      txManager,
		matchRepo:      matchRepo,
		tournamentRepo: tournamentRepo,
		authz:          authz,
		audit:          audit,
		hub:            hub,
		logger:         logger,
	}
}

func (s *matchService) GetByID(ctx context.Context, matchID int) (*models.Match, error) {
	return s.matchRepo.GetByID(ctx, matchID)
}

func (s *matchService) StartMatch(ctx context.Context, actorUserID, matchID int) (*models.Match, error) {
	_, tournament, err := s.loadForMutation(ctx, actorUserID, matchID)
	if err != nil {
		return nil, err
	}
	if err := s.checkTournamentPlayable(tournament); err != nil {
		return nil, err
	}

	err = s.txManager.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		locked, err := s.matchRepo.GetByIDForUpdate(ctx, exec, matchID)
		if err != nil {
			return err
		}
		if locked.Status.Terminal() {
			return ErrMatchAlreadyTerminal
		}
		if locked.Status != models.MatchStatusScheduled {
			return ErrMatchNotPlayable
		}
		if locked.HomeTeamID == nil || locked.AwayTeamID == nil {
			return ErrMatchParticipantsUnknown
		}
		return s.matchRepo.UpdateStatus(ctx, exec, matchID, models.MatchStatusInProgress)
	})
	if err != nil {
		return nil, err
	}
	return s.reloadAndBroadcast(ctx, tournament.ID, matchID, brackets.EventMatchUpdated)
}

// EnterScore records a final score and advances winner and loser. Ties are
// rejected: hockey brackets are played to a decision.
func (s *matchService) EnterScore(ctx context.Context, actorUserID, matchID, homeScore, awayScore int) (*models.Match, error) {
	if homeScore < 0 || awayScore < 0 {
		return nil, ErrNegativeScore
	}
	if homeScore == awayScore {
		return nil, ErrTiedScore
	}

	_, tournament, err := s.loadForMutation(ctx, actorUserID, matchID)
	if err != nil {
		return nil, err
	}
	if err := s.checkTournamentPlayable(tournament); err != nil {
		return nil, err
	}

	var outcome advanceOutcome
	err = s.txManager.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		locked, err := s.matchRepo.GetByIDForUpdate(ctx, exec, matchID)
		if err != nil {
			return err
		}
		if err := s.checkMatchAcceptsResult(locked); err != nil {
			return err
		}

		winnerID := *locked.HomeTeamID
		loserID := *locked.AwayTeamID
		if awayScore > homeScore {
			winnerID, loserID = loserID, winnerID
		}

		hs, as := homeScore, awayScore
		if err := s.matchRepo.UpdateResult(ctx, exec, matchID, &hs, &as, models.MatchStatusCompleted, &winnerID); err != nil {
			return err
		}
		locked.HomeScore, locked.AwayScore = &hs, &as
		locked.Status = models.MatchStatusCompleted
		locked.WinnerTeamID = &winnerID

		if err := s.propagate(ctx, exec, tournament, locked, winnerID, &loserID, actorUserID, &outcome); err != nil {
			return err
		}

		return s.audit.Record(ctx, exec, AuditEntry{
			TournamentID: tournament.ID,
			ActorUserID:  actorUserID,
			Action:       models.AuditScoreEntered,
			Details: map[string]interface{}{
				"match_id":       matchID,
				"home_score":     homeScore,
				"away_score":     awayScore,
				"winner_team_id": winnerID,
			},
		})
	})
	if err != nil {
		return nil, s.handleAdvancementError(ctx, tournament, err)
	}
	s.broadcastOutcome(tournament.ID, &outcome)
	return s.reloadAndBroadcast(ctx, tournament.ID, matchID, brackets.EventMatchUpdated)
}

// ForfeitMatch records a forfeit by one participant. The opponent advances as
// winner with no scores recorded.
func (s *matchService) ForfeitMatch(ctx context.Context, actorUserID, matchID, forfeitingTeamID int) (*models.Match, error) {
	_, tournament, err := s.loadForMutation(ctx, actorUserID, matchID)
	if err != nil {
		return nil, err
	}
	if err := s.checkTournamentPlayable(tournament); err != nil {
		return nil, err
	}

	var outcome advanceOutcome
	err = s.txManager.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		locked, err := s.matchRepo.GetByIDForUpdate(ctx, exec, matchID)
		if err != nil {
			return err
		}
		if err := s.checkMatchAcceptsResult(locked); err != nil {
			return err
		}
		if !locked.HasParticipant(forfeitingTeamID) {
			return ErrNotAParticipant
		}
		winnerID := locked.Opponent(forfeitingTeamID)

		if err := s.matchRepo.UpdateResult(ctx, exec, matchID, nil, nil, models.MatchStatusForfeit, winnerID); err != nil {
			return err
		}
		locked.Status = models.MatchStatusForfeit
		locked.WinnerTeamID = winnerID

		if err := s.propagate(ctx, exec, tournament, locked, *winnerID, &forfeitingTeamID, actorUserID, &outcome); err != nil {
			return err
		}

		return s.audit.Record(ctx, exec, AuditEntry{
			TournamentID: tournament.ID,
			ActorUserID:  actorUserID,
			Action:       models.AuditMatchForfeited,
			Details: map[string]interface{}{
				"match_id":           matchID,
				"forfeiting_team_id": forfeitingTeamID,
				"winner_team_id":     *winnerID,
			},
		})
	})
	if err != nil {
		return nil, s.handleAdvancementError(ctx, tournament, err)
	}
	s.broadcastOutcome(tournament.ID, &outcome)
	return s.reloadAndBroadcast(ctx, tournament.ID, matchID, brackets.EventMatchUpdated)
}

// CancelMatch marks a match canceled without advancing anyone. Admin-only,
// meant for administrative corrections before play.
func (s *matchService) CancelMatch(ctx context.Context, actorUserID, matchID int) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.RequireRole(ctx, match.TournamentID, actorUserID, models.RoleAdmin); err != nil {
		return nil, err
	}

	err = s.txManager.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		locked, err := s.matchRepo.GetByIDForUpdate(ctx, exec, matchID)
		if err != nil {
			return err
		}
		if locked.Status.Terminal() {
			return ErrMatchAlreadyTerminal
		}
		if locked.IsBye || locked.Status == models.MatchStatusInert {
			return ErrMatchNotPlayable
		}
		return s.matchRepo.UpdateStatus(ctx, exec, matchID, models.MatchStatusCanceled)
	})
	if err != nil {
		return nil, err
	}
	return s.reloadAndBroadcast(ctx, match.TournamentID, matchID, brackets.EventMatchUpdated)
}

func (s *matchService) loadForMutation(ctx context.Context, actorUserID, matchID int) (*models.Match, *models.Tournament, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.authz.RequireRole(ctx, match.TournamentID, actorUserID, models.RoleScorekeeper); err != nil {
		return nil, nil, err
	}
	tournament, err := s.tournamentRepo.GetByID(ctx, match.TournamentID)
	if err != nil {
		return nil, nil, err
	}
	return match, tournament, nil
}

func (s *matchService) checkTournamentPlayable(tournament *models.Tournament) error {
	if tournament.BracketInconsistent {
		return ErrBracketInconsistent
	}
	if tournament.Status != models.StatusInProgress {
		return ErrTournamentNotInProgress
	}
	return nil
}

func (s *matchService) checkMatchAcceptsResult(match *models.Match) error {
	if match.Status.Terminal() {
		return ErrMatchAlreadyTerminal
	}
	if match.IsBye {
		return ErrByeMatch
	}
	if match.Status == models.MatchStatusInert {
		return ErrMatchNotPlayable
	}
	if match.HomeTeamID == nil || match.AwayTeamID == nil {
		return ErrMatchParticipantsUnknown
	}
	return nil
}

// handleAdvancementError flags the tournament after the transaction rolled
// back, so the flag survives while the partial advancement does not.
func (s *matchService) handleAdvancementError(ctx context.Context, tournament *models.Tournament, err error) error {
	if !errors.Is(err, ErrBracketInconsistent) {
		return err
	}
	s.logger.Error("bracket inconsistency detected, flagging tournament",
		"tournament_id", tournament.ID, "error", err)
	if flagErr := s.tournamentRepo.SetBracketInconsistent(ctx, nil, tournament.ID, true); flagErr != nil {
		s.logger.Error("failed to flag inconsistent bracket", "tournament_id", tournament.ID, "error", flagErr)
	}
	return err
}

// advanceOutcome collects side effects of a propagation that the caller
// announces only after the transaction commits.
type advanceOutcome struct {
	ResetActivated bool
	ResetMatch     *models.Match
	ChampionTeamID *int
}

// propagate routes the winner (and, in double elimination, the loser) of a
// freshly terminal match along its forward pointers.
func (s *matchService) propagate(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, match *models.Match, winnerID int, loserID *int, actorUserID int, outcome *advanceOutcome) error {
	if match.BracketType == models.BracketGrandFinal {
		return s.propagateGrandFinal(ctx, exec, tournament, match, winnerID, actorUserID, outcome)
	}

	if match.NextMatchID != nil {
		if match.NextMatchSlot == nil {
			return ErrBracketInconsistent
		}
		if err := s.placeTeam(ctx, exec, tournament, *match.NextMatchID, *match.NextMatchSlot, winnerID, actorUserID, outcome); err != nil {
			return err
		}
	} else if tournament.Format == models.FormatDoubleElimination {
		// Every non-grand-final match in a double elimination bracket has a
		// forward pointer.
		return ErrBracketInconsistent
	} else {
		// Single elimination final: the bracket is decided.
		if err := s.concludeTournament(ctx, exec, tournament, winnerID, actorUserID, outcome); err != nil {
			return err
		}
	}

	if loserID != nil && match.LoserNextMatchID != nil {
		if match.LoserNextMatchSlot == nil {
			return ErrBracketInconsistent
		}
		if err := s.placeTeam(ctx, exec, tournament, *match.LoserNextMatchID, *match.LoserNextMatchSlot, *loserID, actorUserID, outcome); err != nil {
			return err
		}
	}
	return nil
}

// placeTeam puts a team into a slot of a downstream match. If that match is a
// structural bye, the team advances through it immediately and placement
// recurses.
func (s *matchService) placeTeam(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, targetID int, slot models.MatchSlot, teamID, actorUserID int, outcome *advanceOutcome) error {
	target, err := s.matchRepo.GetByIDForUpdate(ctx, exec, targetID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return ErrBracketInconsistent
		}
		return err
	}
	if target.Status.Terminal() {
		// A downstream match already has a result; the graph is broken.
		return ErrBracketInconsistent
	}

	switch slot {
	case models.SlotHome:
		target.HomeTeamID = &teamID
	case models.SlotAway:
		target.AwayTeamID = &teamID
	default:
		return ErrBracketInconsistent
	}
	if err := s.matchRepo.UpdateParticipants(ctx, exec, target.ID, target.HomeTeamID, target.AwayTeamID); err != nil {
		return err
	}

	if target.IsBye && target.Status == models.MatchStatusScheduled {
		// The opposing slot is structurally empty, so arrival decides the
		// match on the spot.
		if err := s.matchRepo.UpdateResult(ctx, exec, target.ID, nil, nil, models.MatchStatusCompleted, &teamID); err != nil {
			return err
		}
		target.Status = models.MatchStatusCompleted
		target.WinnerTeamID = &teamID
		return s.propagate(ctx, exec, tournament, target, teamID, nil, actorUserID, outcome)
	}
	return nil
}

// propagateGrandFinal handles the two grand final matches. A first grand
// final won from the away slot means the losers-bracket side handed the
// winners-bracket side its first loss, which activates the bracket reset.
func (s *matchService) propagateGrandFinal(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, match *models.Match, winnerID, actorUserID int, outcome *advanceOutcome) error {
	if match.Round == brackets.BracketResetRound {
		return s.concludeTournament(ctx, exec, tournament, winnerID, actorUserID, outcome)
	}

	if match.AwayTeamID == nil || winnerID != *match.AwayTeamID {
		return s.concludeTournament(ctx, exec, tournament, winnerID, actorUserID, outcome)
	}

	reset, err := s.matchRepo.GetBracketReset(ctx, exec, tournament.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return ErrBracketInconsistent
		}
		return err
	}
	if reset.Status != models.MatchStatusInert {
		return ErrBracketInconsistent
	}
	if err := s.matchRepo.UpdateParticipants(ctx, exec, reset.ID, match.HomeTeamID, match.AwayTeamID); err != nil {
		return err
	}
	if err := s.matchRepo.UpdateStatus(ctx, exec, reset.ID, models.MatchStatusScheduled); err != nil {
		return err
	}
	if err := s.audit.Record(ctx, exec, AuditEntry{
		TournamentID: tournament.ID,
		ActorUserID:  actorUserID,
		Action:       models.AuditBracketResetActivated,
		Details:      map[string]interface{}{"match_id": reset.ID},
	}); err != nil {
		return err
	}
	reset.Status = models.MatchStatusScheduled
	reset.HomeTeamID, reset.AwayTeamID = match.HomeTeamID, match.AwayTeamID
	outcome.ResetActivated = true
	outcome.ResetMatch = reset
	return nil
}

func (s *matchService) concludeTournament(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, championTeamID, actorUserID int, outcome *advanceOutcome) error {
	if err := s.tournamentRepo.UpdateStatus(ctx, exec, tournament.ID, models.StatusCompleted); err != nil {
		return err
	}
	outcome.ChampionTeamID = &championTeamID
	from := string(models.StatusInProgress)
	to := string(models.StatusCompleted)
	return s.audit.Record(ctx, exec, AuditEntry{
		TournamentID: tournament.ID,
		ActorUserID:  actorUserID,
		Action:       models.AuditTournamentStatusChanged,
		FromStatus:   &from,
		ToStatus:     &to,
		Details:      map[string]interface{}{"champion_team_id": championTeamID},
	})
}

func (s *matchService) broadcastOutcome(tournamentID int, outcome *advanceOutcome) {
	if outcome.ResetActivated {
		s.broadcast(tournamentID, brackets.EventBracketReset, outcome.ResetMatch)
	}
}

func (s *matchService) reloadAndBroadcast(ctx context.Context, tournamentID, matchID int, eventType string) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	s.broadcast(tournamentID, eventType, match)
	return match, nil
}

func (s *matchService) broadcast(tournamentID int, eventType string, payload interface{}) {
	if s.hub == nil {
		return
	}
	room := strconv.Itoa(tournamentID)
	s.hub.BroadcastToRoom(room, brackets.Event{Type: eventType, RoomID: room, Payload: payload})
}
