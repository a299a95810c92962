package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rinkhouse/league-system/models"
)

// TiebreakRepository stores manual standings resolutions. Replace is
// wholesale: a new resolution supersedes the previous one entirely.
type TiebreakRepository interface {
	Replace(ctx context.Context, exec SQLExecutor, tournamentID int, overrides []models.TiebreakOverride) error
	ListByTournament(ctx context.Context, tournamentID int) ([]models.TiebreakOverride, error)
}

type postgresTiebreakRepository struct {
	db *sql.DB
}

func NewPostgresTiebreakRepository(db *sql.DB) TiebreakRepository {
	return &postgresTiebreakRepository{db: db}
}

func (r *postgresTiebreakRepository) Replace(ctx context.Context, exec SQLExecutor, tournamentID int, overrides []models.TiebreakOverride) error {
	if exec == nil {
		exec = r.db
	}
	if _, err := exec.ExecContext(ctx, `DELETE FROM tiebreak_overrides WHERE tournament_id = $1`, tournamentID); err != nil {
		return fmt.Errorf("failed to clear tiebreak overrides for tournament %d: %w", tournamentID, err)
	}
	for _, o := range overrides {
		_, err := exec.ExecContext(ctx,
			`INSERT INTO tiebreak_overrides (tournament_id, team_id, position) VALUES ($1, $2, $3)`,
			tournamentID, o.TeamID, o.Position)
		if err != nil {
			return fmt.Errorf("failed to insert tiebreak override (team %d): %w", o.TeamID, err)
		}
	}
	return nil
}

func (r *postgresTiebreakRepository) ListByTournament(ctx context.Context, tournamentID int) ([]models.TiebreakOverride, error) {
	query := `SELECT tournament_id, team_id, position
		FROM tiebreak_overrides WHERE tournament_id = $1 ORDER BY position`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tiebreak overrides for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	overrides := make([]models.TiebreakOverride, 0)
	for rows.Next() {
		var o models.TiebreakOverride
		if err := rows.Scan(&o.TournamentID, &o.TeamID, &o.Position); err != nil {
			return nil, fmt.Errorf("failed to scan tiebreak override row: %w", err)
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during tiebreak override rows iteration: %w", err)
	}
	return overrides, nil
}
