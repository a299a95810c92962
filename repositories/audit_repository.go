package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rinkhouse/league-system/models"
)

// AuditRepository is append-only on purpose: there is no update or delete.
type AuditRepository interface {
	Create(ctx context.Context, exec SQLExecutor, record *models.AuditRecord) error
	ListByTournament(ctx context.Context, tournamentID int, filter models.AuditFilter) ([]*models.AuditRecord, int, error)
}

type postgresAuditRepository struct {
	db *sql.DB
}

func NewPostgresAuditRepository(db *sql.DB) AuditRepository {
	return &postgresAuditRepository{db: db}
}

func (r *postgresAuditRepository) Create(ctx context.Context, exec SQLExecutor, record *models.AuditRecord) error {
	if exec == nil {
		exec = r.db
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	query := `
		INSERT INTO audit_records (id, tournament_id, action, from_status, to_status, actor_user_id, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := exec.QueryRowContext(ctx, query,
		record.ID,
		record.TournamentID,
		record.Action,
		record.FromStatus,
		record.ToStatus,
		record.ActorUserID,
		record.Details,
	).Scan(&record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit record for tournament %d: %w", record.TournamentID, err)
	}
	return nil
}

func (r *postgresAuditRepository) ListByTournament(ctx context.Context, tournamentID int, filter models.AuditFilter) ([]*models.AuditRecord, int, error) {
	var where strings.Builder
	where.WriteString("WHERE tournament_id = $1")
	args := []interface{}{tournamentID}

	if filter.Action != nil {
		args = append(args, *filter.Action)
		where.WriteString(" AND action = $")
		where.WriteString(strconv.Itoa(len(args)))
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_records " + where.String()
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit records for tournament %d: %w", tournamentID, err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}
	args = append(args, limit, offset)

	query := fmt.Sprintf(`
		SELECT id, tournament_id, action, from_status, to_status, actor_user_id, details, created_at
		FROM audit_records %s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`, where.String(), len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query audit records for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	records := make([]*models.AuditRecord, 0)
	for rows.Next() {
		record := &models.AuditRecord{}
		if err := rows.Scan(
			&record.ID,
			&record.TournamentID,
			&record.Action,
			&record.FromStatus,
			&record.ToStatus,
			&record.ActorUserID,
			&record.Details,
			&record.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit record row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error during audit record rows iteration: %w", err)
	}
	return records, total, nil
}
