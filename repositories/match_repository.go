package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/rinkhouse/league-system/models"
)

var (
	ErrMatchNotFound          = errors.New("match not found")
	ErrMatchTournamentInvalid = errors.New("match references an unknown tournament")
	ErrMatchTeamInvalid       = errors.New("match references an unknown team")
)

const matchColumns = `id, tournament_id, bracket_type, round, match_number,
	home_team_id, away_team_id, home_score, away_score, winner_team_id,
	status, is_bye, next_match_id, next_match_slot,
	loser_next_match_id, loser_next_match_slot,
	scheduled_time, venue, created_at`

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	GetBracketReset(ctx context.Context, exec SQLExecutor, tournamentID int) (*models.Match, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error)
	CountByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
	UpdateResult(ctx context.Context, exec SQLExecutor, id int, homeScore, awayScore *int, status models.MatchStatus, winnerTeamID *int) error
	UpdateParticipants(ctx context.Context, exec SQLExecutor, id int, homeTeamID, awayTeamID *int) error
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.MatchStatus) error
	UpdateLinks(ctx context.Context, exec SQLExecutor, id int, nextMatchID *int, nextSlot *models.MatchSlot, loserNextMatchID *int, loserNextSlot *models.MatchSlot) error
	DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	query := `
		INSERT INTO matches
			(tournament_id, bracket_type, round, match_number,
			 home_team_id, away_team_id, home_score, away_score, winner_team_id,
			 status, is_bye, next_match_id, next_match_slot,
			 loser_next_match_id, loser_next_match_slot, scheduled_time, venue)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at`

	err := exec.QueryRowContext(ctx, query,
		match.TournamentID,
		match.BracketType,
		match.Round,
		match.MatchNumber,
		match.HomeTeamID,
		match.AwayTeamID,
		match.HomeScore,
		match.AwayScore,
		match.WinnerTeamID,
		match.Status,
		match.IsBye,
		match.NextMatchID,
		match.NextMatchSlot,
		match.LoserNextMatchID,
		match.LoserNextMatchSlot,
		match.ScheduledTime,
		match.Venue,
	).Scan(&match.ID, &match.CreatedAt)

	return r.handleMatchError(err)
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id), id)
}

// GetByIDForUpdate locks the match row for the remainder of the transaction,
// so a concurrent submission for the same match blocks here and then sees the
// terminal status.
func (r *postgresMatchRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1 FOR UPDATE`
	return r.scanOne(exec.QueryRowContext(ctx, query, id), id)
}

func (r *postgresMatchRepository) GetBracketReset(ctx context.Context, exec SQLExecutor, tournamentID int) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches
		WHERE tournament_id = $1 AND bracket_type = $2 AND round = $3
		FOR UPDATE`
	row := exec.QueryRowContext(ctx, query, tournamentID, models.BracketGrandFinal, 2)
	return r.scanOne(row, 0)
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches
		WHERE tournament_id = $1
		ORDER BY bracket_type, round, match_number`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) CountByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	if exec == nil {
		exec = r.db
	}
	var count int
	err := exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches WHERE tournament_id = $1`, tournamentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count matches for tournament %d: %w", tournamentID, err)
	}
	return count, nil
}

func (r *postgresMatchRepository) UpdateResult(ctx context.Context, exec SQLExecutor, id int, homeScore, awayScore *int, status models.MatchStatus, winnerTeamID *int) error {
	query := `UPDATE matches
		SET home_score = $1, away_score = $2, status = $3, winner_team_id = $4
		WHERE id = $5`
	result, err := exec.ExecContext(ctx, query, homeScore, awayScore, status, winnerTeamID, id)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) UpdateParticipants(ctx context.Context, exec SQLExecutor, id int, homeTeamID, awayTeamID *int) error {
	query := `UPDATE matches SET home_team_id = $1, away_team_id = $2 WHERE id = $3`
	result, err := exec.ExecContext(ctx, query, homeTeamID, awayTeamID, id)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.MatchStatus) error {
	result, err := exec.ExecContext(ctx, `UPDATE matches SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) UpdateLinks(ctx context.Context, exec SQLExecutor, id int, nextMatchID *int, nextSlot *models.MatchSlot, loserNextMatchID *int, loserNextSlot *models.MatchSlot) error {
	query := `UPDATE matches
		SET next_match_id = $1, next_match_slot = $2,
		    loser_next_match_id = $3, loser_next_match_slot = $4
		WHERE id = $5`
	result, err := exec.ExecContext(ctx, query, nextMatchID, nextSlot, loserNextMatchID, loserNextSlot, id)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	result, err := exec.ExecContext(ctx, `DELETE FROM matches WHERE tournament_id = $1`, tournamentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete matches for tournament %d: %w", tournamentID, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return int(deleted), nil
}

func (r *postgresMatchRepository) scanOne(row *sql.Row, id int) (*models.Match, error) {
	match, err := scanMatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match %d: %w", id, err)
	}
	return match, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMatch(row rowScanner) (*models.Match, error) {
	match := &models.Match{}
	err := row.Scan(
		&match.ID,
		&match.TournamentID,
		&match.BracketType,
		&match.Round,
		&match.MatchNumber,
		&match.HomeTeamID,
		&match.AwayTeamID,
		&match.HomeScore,
		&match.AwayScore,
		&match.WinnerTeamID,
		&match.Status,
		&match.IsBye,
		&match.NextMatchID,
		&match.NextMatchSlot,
		&match.LoserNextMatchID,
		&match.LoserNextMatchSlot,
		&match.ScheduledTime,
		&match.Venue,
		&match.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return match, nil
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Constraint {
		case "matches_tournament_id_fkey":
			return ErrMatchTournamentInvalid
		case "matches_home_team_id_fkey", "matches_away_team_id_fkey", "matches_winner_team_id_fkey":
			return ErrMatchTeamInvalid
		}
	}
	return err
}
