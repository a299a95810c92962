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
	ErrTournamentNotFound     = errors.New("tournament not found")
	ErrTournamentNameConflict = errors.New("tournament name already exists")
)

const tournamentColumns = `id, name, description, format, status, location,
	start_date, tiebreakers, bracket_inconsistent, created_at`

type TournamentRepository interface {
	Create(ctx context.Context, exec SQLExecutor, tournament *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	List(ctx context.Context, limit, offset int) ([]*models.Tournament, error)
	ListByStatus(ctx context.Context, status models.TournamentStatus) ([]*models.Tournament, error)
	Update(ctx context.Context, tournament *models.Tournament) error
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error
	SetBracketInconsistent(ctx context.Context, exec SQLExecutor, id int, inconsistent bool) error
	Delete(ctx context.Context, id int) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) Create(ctx context.Context, exec SQLExecutor, tournament *models.Tournament) error {
	query := `
		INSERT INTO tournaments (name, description, format, status, location, start_date, tiebreakers)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := exec.QueryRowContext(ctx, query,
		tournament.Name,
		tournament.Description,
		tournament.Format,
		tournament.Status,
		tournament.Location,
		tournament.StartDate,
		pq.Array(tournament.Tiebreakers),
	).Scan(&tournament.ID, &tournament.CreatedAt)

	return r.handleTournamentError(err)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByIDForUpdate locks the tournament row. Bracket generation and clearing
// serialize on this lock so no score entry can interleave with a bulk
// create/delete of the match graph.
func (r *postgresTournamentRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE id = $1 FOR UPDATE`
	return r.scanOne(exec.QueryRowContext(ctx, query, id))
}

func (r *postgresTournamentRepository) List(ctx context.Context, limit, offset int) ([]*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments ORDER BY start_date DESC, id DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query tournaments: %w", err)
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *postgresTournamentRepository) ListByStatus(ctx context.Context, status models.TournamentStatus) ([]*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE status = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query tournaments by status %q: %w", status, err)
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *postgresTournamentRepository) Update(ctx context.Context, tournament *models.Tournament) error {
	query := `UPDATE tournaments
		SET name = $1, description = $2, location = $3, start_date = $4, tiebreakers = $5
		WHERE id = $6`
	result, err := r.db.ExecContext(ctx, query,
		tournament.Name,
		tournament.Description,
		tournament.Location,
		tournament.StartDate,
		pq.Array(tournament.Tiebreakers),
		tournament.ID,
	)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error {
	if exec == nil {
		exec = r.db
	}
	result, err := exec.ExecContext(ctx, `UPDATE tournaments SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) SetBracketInconsistent(ctx context.Context, exec SQLExecutor, id int, inconsistent bool) error {
	if exec == nil {
		exec = r.db
	}
	result, err := exec.ExecContext(ctx, `UPDATE tournaments SET bracket_inconsistent = $1 WHERE id = $2`, inconsistent, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tournaments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) scanOne(row *sql.Row) (*models.Tournament, error) {
	tournament, err := scanTournament(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to scan tournament: %w", err)
	}
	return tournament, nil
}

func (r *postgresTournamentRepository) collect(rows *sql.Rows) ([]*models.Tournament, error) {
	tournaments := make([]*models.Tournament, 0)
	for rows.Next() {
		tournament, err := scanTournament(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tournament row: %w", err)
		}
		tournaments = append(tournaments, tournament)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during tournament rows iteration: %w", err)
	}
	return tournaments, nil
}

func scanTournament(row rowScanner) (*models.Tournament, error) {
	tournament := &models.Tournament{}
	err := row.Scan(
		&tournament.ID,
		&tournament.Name,
		&tournament.Description,
		&tournament.Format,
		&tournament.Status,
		&tournament.Location,
		&tournament.StartDate,
		pq.Array(&tournament.Tiebreakers),
		&tournament.BracketInconsistent,
		&tournament.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return tournament, nil
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Constraint == "tournaments_name_key" {
		return ErrTournamentNameConflict
	}
	return err
}
