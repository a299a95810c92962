package brackets

import (
	"context"
)

// SingleEliminationGenerator builds a knockout bracket: one loss eliminates.
// The last winners-bracket round is the final; there is no grand final pair.
type SingleEliminationGenerator struct{}

func NewSingleEliminationGenerator() BracketGenerator {
	return &SingleEliminationGenerator{}
}

func (g *SingleEliminationGenerator) GetName() string {
	return "SingleElimination"
}

func (g *SingleEliminationGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) ([]*BracketMatch, error) {
	rounds, bracketSize, _, err := buildWinnersBracket(params.Teams)
	if err != nil {
		return nil, err
	}

	matches := make([]*BracketMatch, 0, bracketSize-1)
	return appendRounds(matches, rounds), nil
}
