package brackets

import (
	"context"

	"github.com/rinkhouse/league-system/models"
)

// DoubleEliminationGenerator builds a winners bracket, a mirrored losers
// bracket, and the grand final pair (GF1 plus the inert bracket-reset GF2).
//
// For a padded bracket of size 2^W the losers bracket has 2(W-1) rounds; two
// losers rounds drain one winners round. Rounds 2k-1 and 2k each hold
// 2^(W-k-1) matches: the odd round pairs losers-bracket survivors with each
// other, the even round pits them against the losers dropping out of winners
// round k+1.
type DoubleEliminationGenerator struct{}

func NewDoubleEliminationGenerator() BracketGenerator {
	return &DoubleEliminationGenerator{}
}

func (g *DoubleEliminationGenerator) GetName() string {
	return "DoubleElimination"
}

func (g *DoubleEliminationGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) ([]*BracketMatch, error) {
	winners, bracketSize, numRounds, err := buildWinnersBracket(params.Teams)
	if err != nil {
		return nil, err
	}

	gf1 := &BracketMatch{
		UID:         GrandFinalUID,
		BracketType: models.BracketGrandFinal,
		Round:       GrandFinalRound,
		MatchNumber: grandFinalMatchNum,
	}
	gf2 := &BracketMatch{
		UID:         BracketResetUID,
		BracketType: models.BracketGrandFinal,
		Round:       BracketResetRound,
		MatchNumber: grandFinalMatchNum,
		Inert:       true,
	}

	wbFinal := winners[numRounds][0]
	wbFinal.NextMatchUID = &gf1.UID
	wbFinal.NextSlot = models.SlotHome

	if numRounds == 1 {
		// Two teams: no losers bracket, the first loss drops straight into
		// the grand final's away slot.
		wbFinal.LoserNextUID = &gf1.UID
		wbFinal.LoserNextSlot = models.SlotAway
		return append(appendRounds(nil, winners), gf1, gf2), nil
	}

	losers := make([][]*BracketMatch, 2*(numRounds-1)+1)

	// Losers round 1: adjacent pairs of winners round 1 losers. A feeder that
	// is a bye never produces a loser; a match with one such void slot waits
	// as a bye for its single real participant, a match with two is dropped.
	count := bracketSize >> 2
	losers[1] = make([]*BracketMatch, count)
	for j := 1; j <= count; j++ {
		f1, f2 := winners[1][2*j-2], winners[1][2*j-1]
		if f1.IsBye && f2.IsBye {
			continue
		}
		bm := &BracketMatch{
			UID:         losersUID(1, j),
			BracketType: models.BracketLosers,
			Round:       1,
			MatchNumber: j,
			IsBye:       f1.IsBye || f2.IsBye,
		}
		losers[1][j-1] = bm
		if !f1.IsBye {
			f1.LoserNextUID = &bm.UID
			f1.LoserNextSlot = models.SlotHome
		}
		if !f2.IsBye {
			f2.LoserNextUID = &bm.UID
			f2.LoserNextSlot = models.SlotAway
		}
	}

	for k := 1; k <= numRounds-1; k++ {
		// Even round 2k: home is the survivor of losers round 2k-1, away is
		// the loser of winners round k+1. The away feeder always exists, so
		// these matches are always created.
		count = bracketSize >> (k + 1)
		even := make([]*BracketMatch, count)
		losers[2*k] = even
		for j := 1; j <= count; j++ {
			bm := &BracketMatch{
				UID:         losersUID(2*k, j),
				BracketType: models.BracketLosers,
				Round:       2 * k,
				MatchNumber: j,
			}
			even[j-1] = bm

			if feeder := losers[2*k-1][j-1]; feeder != nil {
				feeder.NextMatchUID = &bm.UID
				feeder.NextSlot = models.SlotHome
			} else {
				bm.IsBye = true
			}

			wb := winners[k+1][j-1]
			wb.LoserNextUID = &bm.UID
			wb.LoserNextSlot = models.SlotAway
		}

		if k == numRounds-1 {
			break
		}

		// Odd round 2k+1: even-round survivors paired with each other.
		count = bracketSize >> (k + 2)
		odd := make([]*BracketMatch, count)
		losers[2*k+1] = odd
		for j := 1; j <= count; j++ {
			odd[j-1] = &BracketMatch{
				UID:         losersUID(2*k+1, j),
				BracketType: models.BracketLosers,
				Round:       2*k + 1,
				MatchNumber: j,
			}
		}
		for i, bm := range even {
			m := i + 1
			next := odd[(m-1)/2]
			bm.NextMatchUID = &next.UID
			bm.NextSlot = slotForFeeder(m)
		}
	}

	lbFinal := losers[2*(numRounds-1)][0]
	lbFinal.NextMatchUID = &gf1.UID
	lbFinal.NextSlot = models.SlotAway

	matches := appendRounds(nil, winners)
	matches = appendRounds(matches, losers)
	return append(matches, gf1, gf2), nil
}
