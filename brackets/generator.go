package brackets

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"github.com/rinkhouse/league-system/models"
)

var (
	ErrNotEnoughTeams = errors.New("not enough teams to generate a bracket (minimum 2)")
	ErrDuplicateSeed  = errors.New("duplicate seed in team list")
)

// BracketMatch is one node of a generated bracket, identified by a UID such
// as "W1M2", "L3M1" or "GF1". Links between nodes are expressed in UID space;
// the persistence layer remaps them to database ids after the rows exist.
type BracketMatch struct {
	UID         string
	BracketType models.BracketType
	Round       int
	MatchNumber int

	HomeTeamID *int
	AwayTeamID *int

	// IsBye marks a match that resolves without being played. Winners-bracket
	// byes resolve at generation time (ByeWinnerID set); losers-bracket byes
	// resolve when their single real participant arrives.
	IsBye       bool
	ByeWinnerID *int

	// Inert marks the bracket-reset slot (GF2): created up front, hidden and
	// without participants until the grand final forces it.
	Inert bool

	NextMatchUID  *string
	NextSlot      models.MatchSlot
	LoserNextUID  *string
	LoserNextSlot models.MatchSlot
}

type GenerateBracketParams struct {
	TournamentID int
	// Teams in seed order, best seed first.
	Teams []*models.Team
}

type BracketGenerator interface {
	GenerateBracket(ctx context.Context, params GenerateBracketParams) ([]*BracketMatch, error)

	GetName() string
}

// NewGenerator returns the generator for a tournament format.
func NewGenerator(format models.TournamentFormat) (BracketGenerator, error) {
	switch format {
	case models.FormatSingleElimination:
		return NewSingleEliminationGenerator(), nil
	case models.FormatDoubleElimination:
		return NewDoubleEliminationGenerator(), nil
	default:
		return nil, fmt.Errorf("unsupported tournament format %q", format)
	}
}

func winnersUID(round, number int) string {
	return fmt.Sprintf("W%dM%d", round, number)
}

func losersUID(round, number int) string {
	return fmt.Sprintf("L%dM%d", round, number)
}

const (
	GrandFinalUID      = "GF1"
	BracketResetUID    = "GF2"
	GrandFinalRound    = 1
	BracketResetRound  = 2
	grandFinalMatchNum = 1
)

// seedPositions returns the seeds 1..size laid out in bracket order, so that
// consecutive pairs form round-1 matches: seed 1 meets the lowest seed, seed 2
// the next lowest, and the top two seeds can only meet in the final.
func seedPositions(size int) []int {
	pos := []int{1}
	for len(pos) < size {
		sum := len(pos)*2 + 1
		next := make([]int, 0, len(pos)*2)
		for _, p := range pos {
			next = append(next, p, sum-p)
		}
		pos = next
	}
	return pos
}

// buildWinnersBracket creates every winners-bracket round for the given teams,
// pads with byes up to the next power of two, auto-resolves the byes and
// pre-places their winners into round 2. rounds is 1-indexed; bracketSize is
// the padded size and numRounds its log2.
func buildWinnersBracket(teams []*models.Team) (rounds [][]*BracketMatch, bracketSize, numRounds int, err error) {
	n := len(teams)
	if n < 2 {
		return nil, 0, 0, ErrNotEnoughTeams
	}
	seen := make(map[int]bool, n)
	for _, t := range teams {
		if seen[t.Seed] {
			return nil, 0, 0, fmt.Errorf("%w: seed %d", ErrDuplicateSeed, t.Seed)
		}
		seen[t.Seed] = true
	}

	bracketSize = 1
	for bracketSize < n {
		bracketSize <<= 1
	}
	numRounds = bits.TrailingZeros(uint(bracketSize))

	rounds = make([][]*BracketMatch, numRounds+1)
	for r := 1; r <= numRounds; r++ {
		count := bracketSize >> r
		rounds[r] = make([]*BracketMatch, count)
		for m := 1; m <= count; m++ {
			rounds[r][m-1] = &BracketMatch{
				UID:         winnersUID(r, m),
				BracketType: models.BracketWinners,
				Round:       r,
				MatchNumber: m,
			}
		}
	}

	// Forward links: winner of (r, m) advances to (r+1, ceil(m/2)); odd match
	// numbers feed the home slot.
	for r := 1; r < numRounds; r++ {
		for i, bm := range rounds[r] {
			m := i + 1
			next := rounds[r+1][(m-1)/2]
			bm.NextMatchUID = &next.UID
			bm.NextSlot = slotForFeeder(m)
		}
	}

	// Round 1 pairings. Positions above n are the padded byes, which land on
	// the top seeds first by construction.
	order := seedPositions(bracketSize)
	for i, bm := range rounds[1] {
		s1, s2 := order[2*i], order[2*i+1]
		var home, away *int
		if s1 <= n {
			home = &teams[s1-1].ID
		}
		if s2 <= n {
			away = &teams[s2-1].ID
		}
		switch {
		case home != nil && away != nil:
			bm.HomeTeamID, bm.AwayTeamID = home, away
		case home == nil && away == nil:
			return nil, 0, 0, fmt.Errorf("internal: round 1 match %d has no participants", i+1)
		default:
			if home == nil {
				home = away
			}
			bm.HomeTeamID = home
			bm.IsBye = true
			bm.ByeWinnerID = home
		}
	}

	// Auto-resolve byes as part of generation: the winner is placed directly
	// into its round-2 slot, not advanced later by the engine.
	if numRounds > 1 {
		for i, bm := range rounds[1] {
			if !bm.IsBye {
				continue
			}
			next := rounds[2][i/2]
			placeInSlot(next, slotForFeeder(i+1), bm.ByeWinnerID)
		}
	}

	return rounds, bracketSize, numRounds, nil
}

// slotForFeeder maps a feeder match number to the downstream slot: odd feeds
// home, even feeds away.
func slotForFeeder(matchNumber int) models.MatchSlot {
	if matchNumber%2 == 1 {
		return models.SlotHome
	}
	return models.SlotAway
}

func placeInSlot(bm *BracketMatch, slot models.MatchSlot, teamID *int) {
	if slot == models.SlotHome {
		bm.HomeTeamID = teamID
	} else {
		bm.AwayTeamID = teamID
	}
}

func appendRounds(dst []*BracketMatch, rounds [][]*BracketMatch) []*BracketMatch {
	for _, round := range rounds {
		for _, bm := range round {
			if bm != nil {
				dst = append(dst, bm)
			}
		}
	}
	return dst
}
