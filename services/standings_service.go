package services

import (
	"context"
	"math"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/rinkhouse/league-system/models"
	"github.com/rinkhouse/league-system/repositories"
)

// StandingsService derives live standings from the bracket graph. Standings
// are never stored: every read recomputes them from match results, so they
// can never drift from the graph.
type StandingsService interface {
	GetStandings(ctx context.Context, tournamentID int) ([]models.RankedTeam, error)
	ResolveTies(ctx context.Context, actorUserID, tournamentID int, orderedTeamIDs []int) error
}

type standingsService struct {
	txManager      repositories.TxManager
	tournamentRepo repositories.TournamentRepository
	teamRepo       repositories.TeamRepository
	matchRepo      repositories.MatchRepository
	tiebreakRepo   repositories.TiebreakRepository
	authz          AuthorizationService
	audit          AuditService
}

func NewStandingsService(
	txManager repositories.TxManager,
	tournamentRepo repositories.TournamentRepository,
	teamRepo repositories.TeamRepository,
	matchRepo repositories.MatchRepository,
	tiebreakRepo repositories.TiebreakRepository,
	authz AuthorizationService,
	audit AuditService,
) StandingsService {
	return &standingsService{
		txManager:      txManager,
		tournamentRepo: tournamentRepo,
		teamRepo:       teamRepo,
		matchRepo:      matchRepo,
		tiebreakRepo:   tiebreakRepo,
		authz:          authz,
		audit:          audit,
	}
}

func (s *standingsService) GetStandings(ctx context.Context, tournamentID int) ([]models.RankedTeam, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	var teams []*models.Team
	var matches []*models.Match
	var overrides []models.TiebreakOverride
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
	g.Go(func() error {
		var err error
		overrides, err = s.tiebreakRepo.ListByTournament(gctx, tournamentID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return computeStandings(tournament, teams, matches, overrides), nil
}

// ResolveTies records a manual ordering for teams the automatic tiebreakers
// could not separate. The list replaces any previous overrides wholesale.
func (s *standingsService) ResolveTies(ctx context.Context, actorUserID, tournamentID int, orderedTeamIDs []int) error {
	if err := s.authz.RequireRole(ctx, tournamentID, actorUserID, models.RoleAdmin); err != nil {
		return err
	}
	if len(orderedTeamIDs) < 2 {
		return ErrInvalidTiebreakOrder
	}

	teams, err := s.teamRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return err
	}
	known := make(map[int]bool, len(teams))
	for _, t := range teams {
		known[t.ID] = true
	}
	seen := make(map[int]bool, len(orderedTeamIDs))
	overrides := make([]models.TiebreakOverride, 0, len(orderedTeamIDs))
	for pos, teamID := range orderedTeamIDs {
		if !known[teamID] || seen[teamID] {
			return ErrInvalidTiebreakOrder
		}
		seen[teamID] = true
		overrides = append(overrides, models.TiebreakOverride{
			TournamentID: tournamentID,
			TeamID:       teamID,
			Position:     pos + 1,
		})
	}

	return s.txManager.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.tiebreakRepo.Replace(ctx, exec, tournamentID, overrides); err != nil {
			return err
		}
		return s.audit.Record(ctx, exec, AuditEntry{
			TournamentID: tournamentID,
			ActorUserID:  actorUserID,
			Action:       models.AuditTiesResolved,
			Details:      map[string]interface{}{"order": orderedTeamIDs},
		})
	})
}

type teamTally struct {
	wins, losses           int
	scoreFor, scoreAgainst int

	// elimDepth orders eliminated teams by how far they got. Higher is
	// better. Stays at the deepest loss seen.
	elimDepth int
	elimLabel string
}

// grandFinalDepthBase sits above any doubled bracket round while leaving
// headroom for the round offset on 32-bit ints.
const grandFinalDepthBase = 1 << 30

// stageDepth assigns every match a comparable depth so that losing later in
// the tournament always outranks losing earlier, across brackets. A losers
// bracket round sits between the winners rounds that feed it, so rounds are
// doubled and the losers bracket gets the odd positions.
func stageDepth(m *models.Match) int {
	switch m.BracketType {
	case models.BracketGrandFinal:
		return grandFinalDepthBase + m.Round
	case models.BracketLosers:
		return m.Round*2 + 1
	default:
		return m.Round * 2
	}
}

func stageLabel(m *models.Match) string {
	switch m.BracketType {
	case models.BracketGrandFinal:
		return "GF" + strconv.Itoa(m.Round)
	case models.BracketLosers:
		return "L" + strconv.Itoa(m.Round)
	default:
		return "W" + strconv.Itoa(m.Round)
	}
}

// computeStandings is the pure core of the standings calculation. An
// incomplete bracket is not an error: teams still alive come first, unranked,
// and eliminated teams are ranked below them by elimination depth.
func computeStandings(tournament *models.Tournament, teams []*models.Team, matches []*models.Match, overrides []models.TiebreakOverride) []models.RankedTeam {
	tallies := make(map[int]*teamTally, len(teams))
	for _, t := range teams {
		tallies[t.ID] = &teamTally{}
	}

	// head-to-head winners, keyed by the unordered team pair; a later meeting
	// (the bracket reset) supersedes an earlier one.
	type pair [2]int
	h2hWinner := make(map[pair]int)
	h2hDepth := make(map[pair]int)

	for _, m := range matches {
		if m.IsBye || m.WinnerTeamID == nil || !m.Status.Terminal() || m.Status == models.MatchStatusCanceled {
			continue
		}
		if m.HomeTeamID == nil || m.AwayTeamID == nil {
			continue
		}
		home, away := tallies[*m.HomeTeamID], tallies[*m.AwayTeamID]
		if home == nil || away == nil {
			continue
		}

		if m.HomeScore != nil && m.AwayScore != nil {
			home.scoreFor += *m.HomeScore
			home.scoreAgainst += *m.AwayScore
			away.scoreFor += *m.AwayScore
			away.scoreAgainst += *m.HomeScore
		}

		winnerID := *m.WinnerTeamID
		loserID := *m.AwayTeamID
		if winnerID == loserID {
			loserID = *m.HomeTeamID
		}
		tallies[winnerID].wins++
		loser := tallies[loserID]
		loser.losses++
		if d := stageDepth(m); d >= loser.elimDepth {
			loser.elimDepth = d
			loser.elimLabel = stageLabel(m)
		}

		key := pair{*m.HomeTeamID, *m.AwayTeamID}
		if key[0] > key[1] {
			key[0], key[1] = key[1], key[0]
		}
		if d := stageDepth(m); d >= h2hDepth[key] {
			h2hDepth[key] = d
			h2hWinner[key] = winnerID
		}
	}

	maxLosses := 1
	if tournament.Format == models.FormatDoubleElimination {
		maxLosses = 2
	}
	championID := findChampion(tournament, matches)
	finished := tournament.Status == models.StatusCompleted

	overridePos := make(map[int]int, len(overrides))
	for _, o := range overrides {
		overridePos[o.TeamID] = o.Position
	}

	var active, eliminated []models.RankedTeam
	for _, t := range teams {
		tally := tallies[t.ID]
		row := models.RankedTeam{
			TeamID:       t.ID,
			Name:         t.Name,
			Seed:         t.Seed,
			Wins:         tally.wins,
			Losses:       tally.losses,
			ScoreFor:     tally.scoreFor,
			ScoreAgainst: tally.scoreAgainst,
		}
		isChampion := championID != nil && *championID == t.ID
		if isChampion {
			eliminated = append(eliminated, row)
			continue
		}
		if !finished && tally.losses < maxLosses {
			row.Active = true
			active = append(active, row)
			continue
		}
		row.EliminatedIn = tally.elimLabel
		eliminated = append(eliminated, row)
	}

	sort.Slice(active, func(i, j int) bool { return active[i].Seed < active[j].Seed })

	depth := func(r models.RankedTeam) int {
		if championID != nil && *championID == r.TeamID {
			return math.MaxInt
		}
		return tallies[r.TeamID].elimDepth
	}
	sort.SliceStable(eliminated, func(i, j int) bool {
		a, b := eliminated[i], eliminated[j]
		if da, db := depth(a), depth(b); da != db {
			return da > db
		}
		key := pair{a.TeamID, b.TeamID}
		if key[0] > key[1] {
			key[0], key[1] = key[1], key[0]
		}
		if w, ok := h2hWinner[key]; ok {
			return w == a.TeamID
		}
		for _, rule := range tournament.Tiebreakers {
			switch models.Tiebreaker(rule) {
			case models.TiebreakerScoreDiff:
				if da, db := a.ScoreFor-a.ScoreAgainst, b.ScoreFor-b.ScoreAgainst; da != db {
					return da > db
				}
			case models.TiebreakerScoreFor:
				if a.ScoreFor != b.ScoreFor {
					return a.ScoreFor > b.ScoreFor
				}
			case models.TiebreakerSeed:
				if a.Seed != b.Seed {
					return a.Seed < b.Seed
				}
			}
		}
		pa, aok := overridePos[a.TeamID]
		pb, bok := overridePos[b.TeamID]
		if aok && bok && pa != pb {
			return pa < pb
		}
		return a.Seed < b.Seed
	})

	result := make([]models.RankedTeam, 0, len(teams))
	result = append(result, active...)
	for i := range eliminated {
		rank := len(active) + i + 1
		eliminated[i].Rank = &rank
		result = append(result, eliminated[i])
	}
	return result
}

// findChampion returns the winner of the deciding match once the tournament
// is completed, nil otherwise.
func findChampion(tournament *models.Tournament, matches []*models.Match) *int {
	if tournament.Status != models.StatusCompleted {
		return nil
	}
	if tournament.Format == models.FormatDoubleElimination {
		var gf1, gf2 *models.Match
		for _, m := range matches {
			if m.BracketType != models.BracketGrandFinal {
				continue
			}
			if m.Round == 1 {
				gf1 = m
			} else {
				gf2 = m
			}
		}
		if gf2 != nil && gf2.Status.Terminal() && gf2.WinnerTeamID != nil {
			return gf2.WinnerTeamID
		}
		if gf1 != nil && gf1.Status.Terminal() && gf1.WinnerTeamID != nil {
			return gf1.WinnerTeamID
		}
		return nil
	}
	for _, m := range matches {
		if m.BracketType == models.BracketWinners && m.NextMatchID == nil && m.Status.Terminal() && m.WinnerTeamID != nil {
			return m.WinnerTeamID
		}
	}
	return nil
}
