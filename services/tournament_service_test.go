package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinkhouse/league-system/models"
	"github.com/rinkhouse/league-system/repositories"
)

func TestCreateTournament(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.addUser(1)

	created, err := env.tournament.Create(ctx, 1, CreateTournamentInput{
		Name:      "  Autumn Classic  ",
		Format:    models.FormatDoubleElimination,
		StartDate: time.Now().Add(48 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "Autumn Classic", created.Name)
	assert.Equal(t, models.StatusDraft, created.Status)
	assert.Equal(t, []string{"score_diff", "score_for"}, created.Tiebreakers)

	// The creator holds the owner role from the first moment.
	owner, err := env.roles.GetOwner(ctx, nil, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, owner.UserID)
	assert.Equal(t, models.RoleOwner, owner.Role)
}

func TestCreateTournamentValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.addUser(1)

	testCases := []struct {
		name  string
		input CreateTournamentInput
	}{
		{"empty name", CreateTournamentInput{Format: models.FormatSingleElimination}},
		{"bad format", CreateTournamentInput{Name: "Cup", Format: "round_robin"}},
		{"unknown tiebreaker", CreateTournamentInput{
			Name: "Cup", Format: models.FormatSingleElimination,
			Tiebreakers: []string{"coin_flip"},
		}},
		{"duplicate tiebreaker", CreateTournamentInput{
			Name: "Cup", Format: models.FormatSingleElimination,
			Tiebreakers: []string{"seed", "seed"},
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.tournament.Create(ctx, 1, tc.input)
			assert.ErrorIs(t, err, ErrValidationFailed)
		})
	}
}

func TestUpdateTournament(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tournament := env.newTournament(models.FormatSingleElimination, models.StatusDraft, 2)

	name := "Renamed Cup"
	updated, err := env.tournament.Update(ctx, 1, tournament.ID, UpdateTournamentInput{
		Name:        &name,
		Tiebreakers: []string{"seed"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed Cup", updated.Name)
	assert.Equal(t, []string{"seed"}, updated.Tiebreakers)

	_, err = env.tournament.Update(ctx, 1, tournament.ID, UpdateTournamentInput{
		Tiebreakers: []string{"nope"},
	})
	assert.ErrorIs(t, err, ErrValidationFailed)

	// Terminal tournaments are frozen.
	require.NoError(t, env.tournaments.UpdateStatus(ctx, nil, tournament.ID, models.StatusCanceled))
	_, err = env.tournament.Update(ctx, 1, tournament.ID, UpdateTournamentInput{Name: &name})
	assert.ErrorIs(t, err, ErrTournamentNotEditable)
}

func TestTournamentStatusTransitions(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tournament := env.newTournament(models.FormatDoubleElimination, models.StatusDraft, 4)

	// Skipping ahead in the lifecycle is refused.
	_, err := env.tournament.UpdateStatus(ctx, 1, tournament.ID, models.StatusInProgress)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	_, err = env.tournament.UpdateStatus(ctx, 1, tournament.ID, models.StatusOpen)
	require.NoError(t, err)
	_, err = env.tournament.UpdateStatus(ctx, 1, tournament.ID, models.StatusRegistrationClosed)
	require.NoError(t, err)

	// Starting requires a generated bracket.
	_, err = env.tournament.UpdateStatus(ctx, 1, tournament.ID, models.StatusInProgress)
	assert.ErrorIs(t, err, ErrBracketRequiredForStart)

	_, err = env.bracket.GenerateBracket(ctx, 1, tournament.ID)
	require.NoError(t, err)
	updated, err := env.tournament.UpdateStatus(ctx, 1, tournament.ID, models.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, updated.Status)

	// Terminal means terminal.
	_, err = env.tournament.UpdateStatus(ctx, 1, tournament.ID, models.StatusCompleted)
	require.NoError(t, err)
	_, err = env.tournament.UpdateStatus(ctx, 1, tournament.ID, models.StatusCanceled)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	assert.Contains(t, env.auditLog.actions(tournament.ID), models.AuditTournamentStatusChanged)
}

func TestDeleteTournament(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tournament := env.newTournament(models.FormatSingleElimination, models.StatusDraft, 2)

	// Only the owner deletes, and only drafts or canceled tournaments.
	env.grantRole(tournament.ID, 2, models.RoleAdmin)
	err := env.tournament.Delete(ctx, 2, tournament.ID)
	assert.ErrorIs(t, err, ErrInsufficientRole)

	require.NoError(t, env.tournaments.UpdateStatus(ctx, nil, tournament.ID, models.StatusOpen))
	err = env.tournament.Delete(ctx, 1, tournament.ID)
	assert.ErrorIs(t, err, ErrTournamentDeleteForbidden)

	require.NoError(t, env.tournaments.UpdateStatus(ctx, nil, tournament.ID, models.StatusCanceled))
	require.NoError(t, env.tournament.Delete(ctx, 1, tournament.ID))
	_, err = env.tournaments.GetByID(ctx, tournament.ID)
	assert.ErrorIs(t, err, repositories.ErrTournamentNotFound)
}

func TestListTournamentsClampsPaging(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		env.newTournament(models.FormatSingleElimination, models.StatusDraft, 2)
	}

	all, err := env.tournament.List(ctx, 0, -5)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	page, err := env.tournament.List(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestSweepFinished(t *testing.T) {
	env := newTestEnv()
	tournament := startTournament(t, env, models.FormatDoubleElimination, 4)
	ctx := context.Background()

	play(t, env, env.findMatch(tournament.ID, models.BracketWinners, 1, 1), 3, 1)
	play(t, env, env.findMatch(tournament.ID, models.BracketWinners, 1, 2), 2, 4)
	play(t, env, env.findMatch(tournament.ID, models.BracketWinners, 2, 1), 5, 2)
	play(t, env, env.findMatch(tournament.ID, models.BracketLosers, 1, 1), 1, 2)
	play(t, env, env.findMatch(tournament.ID, models.BracketLosers, 2, 1), 1, 3)

	// Nothing decided yet: the sweep leaves the tournament alone.
	require.NoError(t, env.tournament.SweepFinished(ctx))
	current, err := env.tournaments.GetByID(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, current.Status)

	// Decide the grand final behind the engine's back, home side winning, and
	// roll the status update back to in_progress as if it was lost.
	gf1 := env.findMatch(tournament.ID, models.BracketGrandFinal, 1, 1)
	winner := *gf1.HomeTeamID
	require.NoError(t, env.matches.UpdateResult(ctx, nil, gf1.ID, nil, nil, models.MatchStatusCompleted, &winner))

	require.NoError(t, env.tournament.SweepFinished(ctx))
	current, err = env.tournaments.GetByID(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, current.Status)
}

func TestSweepFinishedWaitsForBracketReset(t *testing.T) {
	env := newTestEnv()
	tournament := startTournament(t, env, models.FormatDoubleElimination, 4)
	ctx := context.Background()

	play(t, env, env.findMatch(tournament.ID, models.BracketWinners, 1, 1), 3, 1)
	play(t, env, env.findMatch(tournament.ID, models.BracketWinners, 1, 2), 2, 4)
	play(t, env, env.findMatch(tournament.ID, models.BracketWinners, 2, 1), 5, 2)
	play(t, env, env.findMatch(tournament.ID, models.BracketLosers, 1, 1), 1, 2)
	play(t, env, env.findMatch(tournament.ID, models.BracketLosers, 2, 1), 1, 3)

	// GF1 went to the losers-bracket side, so the reset is still owed even
	// though GF1 is terminal with a winner.
	gf1 := env.findMatch(tournament.ID, models.BracketGrandFinal, 1, 1)
	winner := *gf1.AwayTeamID
	require.NoError(t, env.matches.UpdateResult(ctx, nil, gf1.ID, nil, nil, models.MatchStatusCompleted, &winner))

	require.NoError(t, env.tournament.SweepFinished(ctx))
	current, err := env.tournaments.GetByID(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, current.Status)
}
