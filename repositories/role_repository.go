package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rinkhouse/league-system/models"
)

var ErrRoleBindingNotFound = errors.New("tournament role binding not found")

type RoleRepository interface {
	// Upsert grants or changes a user's role on a tournament.
	Upsert(ctx context.Context, exec SQLExecutor, binding *models.TournamentRoleBinding) error
	Get(ctx context.Context, tournamentID, userID int) (*models.TournamentRoleBinding, error)
	GetOwner(ctx context.Context, exec SQLExecutor, tournamentID int) (*models.TournamentRoleBinding, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.TournamentRoleBinding, error)
	Delete(ctx context.Context, exec SQLExecutor, tournamentID, userID int) error
}

type postgresRoleRepository struct {
	db *sql.DB
}

func NewPostgresRoleRepository(db *sql.DB) RoleRepository {
	return &postgresRoleRepository{db: db}
}

func (r *postgresRoleRepository) Upsert(ctx context.Context, exec SQLExecutor, binding *models.TournamentRoleBinding) error {
	if exec == nil {
		exec = r.db
	}
	query := `
		INSERT INTO tournament_roles (tournament_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (tournament_id, user_id) DO UPDATE SET role = EXCLUDED.role
		RETURNING created_at`

	err := exec.QueryRowContext(ctx, query,
		binding.TournamentID,
		binding.UserID,
		binding.Role,
	).Scan(&binding.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert role binding (tournament %d, user %d): %w",
			binding.TournamentID, binding.UserID, err)
	}
	return nil
}

func (r *postgresRoleRepository) Get(ctx context.Context, tournamentID, userID int) (*models.TournamentRoleBinding, error) {
	query := `SELECT tournament_id, user_id, role, created_at
		FROM tournament_roles WHERE tournament_id = $1 AND user_id = $2`

	binding := &models.TournamentRoleBinding{}
	err := r.db.QueryRowContext(ctx, query, tournamentID, userID).Scan(
		&binding.TournamentID,
		&binding.UserID,
		&binding.Role,
		&binding.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoleBindingNotFound
		}
		return nil, fmt.Errorf("failed to scan role binding: %w", err)
	}
	return binding, nil
}

// GetOwner locks the owner row when called inside a transaction, which keeps
// ownership transfers serialized per tournament.
func (r *postgresRoleRepository) GetOwner(ctx context.Context, exec SQLExecutor, tournamentID int) (*models.TournamentRoleBinding, error) {
	lock := " FOR UPDATE"
	if exec == nil {
		exec = r.db
		lock = ""
	}
	query := `SELECT tournament_id, user_id, role, created_at
		FROM tournament_roles WHERE tournament_id = $1 AND role = $2` + lock

	binding := &models.TournamentRoleBinding{}
	err := exec.QueryRowContext(ctx, query, tournamentID, models.RoleOwner).Scan(
		&binding.TournamentID,
		&binding.UserID,
		&binding.Role,
		&binding.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoleBindingNotFound
		}
		return nil, fmt.Errorf("failed to scan owner binding for tournament %d: %w", tournamentID, err)
	}
	return binding, nil
}

func (r *postgresRoleRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.TournamentRoleBinding, error) {
	query := `SELECT tournament_id, user_id, role, created_at
		FROM tournament_roles WHERE tournament_id = $1 ORDER BY role, user_id`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query role bindings for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	bindings := make([]*models.TournamentRoleBinding, 0)
	for rows.Next() {
		binding := &models.TournamentRoleBinding{}
		if err := rows.Scan(
			&binding.TournamentID,
			&binding.UserID,
			&binding.Role,
			&binding.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan role binding row: %w", err)
		}
		bindings = append(bindings, binding)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during role binding rows iteration: %w", err)
	}
	return bindings, nil
}

func (r *postgresRoleRepository) Delete(ctx context.Context, exec SQLExecutor, tournamentID, userID int) error {
	if exec == nil {
		exec = r.db
	}
	result, err := exec.ExecContext(ctx,
		`DELETE FROM tournament_roles WHERE tournament_id = $1 AND user_id = $2`,
		tournamentID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete role binding (tournament %d, user %d): %w", tournamentID, userID, err)
	}
	return checkAffectedRows(result, ErrRoleBindingNotFound)
}
