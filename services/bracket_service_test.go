package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinkhouse/league-system/models"
)

func TestGenerateBracketLifecycle(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tournament := env.newTournament(models.FormatDoubleElimination, models.StatusOpen, 4)

	// Registration must be closed first.
	_, err := env.bracket.GenerateBracket(ctx, 1, tournament.ID)
	assert.ErrorIs(t, err, ErrBracketGenerationBlocked)

	require.NoError(t, env.tournaments.UpdateStatus(ctx, nil, tournament.ID, models.StatusRegistrationClosed))
	matches, err := env.bracket.GenerateBracket(ctx, 1, tournament.ID)
	require.NoError(t, err)
	assert.Len(t, matches, 7)

	// Every forward pointer was remapped to a persisted row.
	ids := make(map[int]bool, len(matches))
	for _, m := range matches {
		ids[m.ID] = true
	}
	for _, m := range matches {
		if m.NextMatchID != nil {
			assert.True(t, ids[*m.NextMatchID])
			assert.NotNil(t, m.NextMatchSlot)
		}
		if m.LoserNextMatchID != nil {
			assert.True(t, ids[*m.LoserNextMatchID])
			assert.NotNil(t, m.LoserNextMatchSlot)
		}
	}

	reset := env.findMatch(tournament.ID, models.BracketGrandFinal, 2, 1)
	require.NotNil(t, reset)
	assert.Equal(t, models.MatchStatusInert, reset.Status)

	// Generating twice is refused outright.
	_, err = env.bracket.GenerateBracket(ctx, 1, tournament.ID)
	assert.ErrorIs(t, err, ErrBracketAlreadyExists)

	assert.Contains(t, env.auditLog.actions(tournament.ID), models.AuditBracketGenerated)
}

func TestGenerateBracketRequiresAdmin(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tournament := env.newTournament(models.FormatDoubleElimination, models.StatusRegistrationClosed, 4)

	env.grantRole(tournament.ID, 5, models.RoleScorekeeper)
	_, err := env.bracket.GenerateBracket(ctx, 5, tournament.ID)
	assert.ErrorIs(t, err, ErrInsufficientRole)
}

func TestGenerateBracketPersistsByes(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tournament := env.newTournament(models.FormatDoubleElimination, models.StatusRegistrationClosed, 3)

	_, err := env.bracket.GenerateBracket(ctx, 1, tournament.ID)
	require.NoError(t, err)

	// Seed 1's bye is stored already decided, with the winner placed ahead.
	bye := env.findMatch(tournament.ID, models.BracketWinners, 1, 1)
	assert.True(t, bye.IsBye)
	assert.Equal(t, models.MatchStatusCompleted, bye.Status)
	require.NotNil(t, bye.WinnerTeamID)
	assert.Equal(t, 1, *bye.WinnerTeamID)

	next := env.findMatch(tournament.ID, models.BracketWinners, 2, 1)
	require.NotNil(t, next.HomeTeamID)
	assert.Equal(t, 1, *next.HomeTeamID)
}

func TestClearBracket(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tournament := env.newTournament(models.FormatDoubleElimination, models.StatusRegistrationClosed, 4)

	_, err := env.bracket.GenerateBracket(ctx, 1, tournament.ID)
	require.NoError(t, err)

	require.NoError(t, env.bracket.ClearBracket(ctx, 1, tournament.ID))
	count, err := env.matches.CountByTournament(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	// Regeneration after clearing works.
	_, err = env.bracket.GenerateBracket(ctx, 1, tournament.ID)
	require.NoError(t, err)

	// A healthy running tournament cannot be cleared.
	require.NoError(t, env.tournaments.UpdateStatus(ctx, nil, tournament.ID, models.StatusInProgress))
	err = env.bracket.ClearBracket(ctx, 1, tournament.ID)
	assert.ErrorIs(t, err, ErrBracketClearBlocked)
}

func TestClearBracketRecoversInconsistentTournament(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tournament := env.newTournament(models.FormatDoubleElimination, models.StatusRegistrationClosed, 4)

	_, err := env.bracket.GenerateBracket(ctx, 1, tournament.ID)
	require.NoError(t, err)
	require.NoError(t, env.tournaments.UpdateStatus(ctx, nil, tournament.ID, models.StatusInProgress))
	require.NoError(t, env.tournaments.SetBracketInconsistent(ctx, nil, tournament.ID, true))

	require.NoError(t, env.bracket.ClearBracket(ctx, 1, tournament.ID))

	current, err := env.tournaments.GetByID(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRegistrationClosed, current.Status)
	assert.False(t, current.BracketInconsistent)

	count, err := env.matches.CountByTournament(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGetBracketView(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tournament := env.newTournament(models.FormatDoubleElimination, models.StatusRegistrationClosed, 4)
	_, err := env.bracket.GenerateBracket(ctx, 1, tournament.ID)
	require.NoError(t, err)

	// The inert bracket reset stays out of public reads until it is live.
	view, err := env.bracket.GetBracketView(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Len(t, view.Teams, 4)
	assert.Len(t, view.Matches, 6)
	for _, m := range view.Matches {
		assert.NotEqual(t, models.MatchStatusInert, m.Status)
	}

	listed, err := env.bracket.GetMatches(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 6)
}

func TestGetMatchesShowsResetOnceActivated(t *testing.T) {
	env := newTestEnv()
	tournament := startTournament(t, env, models.FormatDoubleElimination, 4)
	ctx := context.Background()

	play(t, env, env.findMatch(tournament.ID, models.BracketWinners, 1, 1), 3, 1)
	play(t, env, env.findMatch(tournament.ID, models.BracketWinners, 1, 2), 2, 4)
	play(t, env, env.findMatch(tournament.ID, models.BracketWinners, 2, 1), 5, 2)
	play(t, env, env.findMatch(tournament.ID, models.BracketLosers, 1, 1), 1, 2)
	play(t, env, env.findMatch(tournament.ID, models.BracketLosers, 2, 1), 1, 3)

	listed, err := env.bracket.GetMatches(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 6)

	// An away-side win in the first grand final makes the reset real, so it
	// shows up in the listing.
	play(t, env, env.findMatch(tournament.ID, models.BracketGrandFinal, 1, 1), 1, 3)

	listed, err = env.bracket.GetMatches(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 7)
}

func TestSweepBracketResets(t *testing.T) {
	env := newTestEnv()
	tournament := startTournament(t, env, models.FormatDoubleElimination, 4)
	ctx := context.Background()

	play(t, env, env.findMatch(tournament.ID, models.BracketWinners, 1, 1), 3, 1)
	play(t, env, env.findMatch(tournament.ID, models.BracketWinners, 1, 2), 2, 4)
	play(t, env, env.findMatch(tournament.ID, models.BracketWinners, 2, 1), 5, 2)
	play(t, env, env.findMatch(tournament.ID, models.BracketLosers, 1, 1), 1, 2)
	play(t, env, env.findMatch(tournament.ID, models.BracketLosers, 2, 1), 1, 3)

	// Simulate a lost activation: complete the first grand final with an
	// away-side winner behind the engine's back.
	gf1 := env.findMatch(tournament.ID, models.BracketGrandFinal, 1, 1)
	winner := *gf1.AwayTeamID
	require.NoError(t, env.matches.UpdateResult(ctx, nil, gf1.ID, nil, nil, models.MatchStatusCompleted, &winner))

	require.NoError(t, env.bracket.SweepBracketResets(ctx))

	reset := env.findMatch(tournament.ID, models.BracketGrandFinal, 2, 1)
	assert.Equal(t, models.MatchStatusScheduled, reset.Status)
	require.NotNil(t, reset.HomeTeamID)
	assert.Equal(t, *gf1.HomeTeamID, *reset.HomeTeamID)
	assert.Equal(t, winner, *reset.AwayTeamID)

	// Running again is a no-op: the reset is no longer inert.
	before := len(env.auditLog.records)
	require.NoError(t, env.bracket.SweepBracketResets(ctx))
	assert.Equal(t, before, len(env.auditLog.records))
}
