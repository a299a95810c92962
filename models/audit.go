package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	AuditBracketGenerated        AuditAction = "bracket_generated"
	AuditBracketCleared          AuditAction = "bracket_cleared"
	AuditScoreEntered            AuditAction = "score_entered"
	AuditMatchForfeited          AuditAction = "match_forfeited"
	AuditTiesResolved            AuditAction = "ties_resolved"
	AuditRoleAssigned            AuditAction = "role_assigned"
	AuditRoleRemoved             AuditAction = "role_removed"
	AuditOwnershipTransferred    AuditAction = "ownership_transferred"
	AuditBracketResetActivated   AuditAction = "bracket_reset_activated"
	AuditTournamentStatusChanged AuditAction = "tournament_status_changed"
)

// AuditRecord is one immutable entry of the tournament's mutation trail.
// Records are only ever appended; there is no update or delete path.
type AuditRecord struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	TournamentID int             `json:"tournament_id" db:"tournament_id"`
	Action       AuditAction     `json:"action" db:"action"`
	FromStatus   *string         `json:"from_status,omitempty" db:"from_status"`
	ToStatus     *string         `json:"to_status,omitempty" db:"to_status"`
	ActorUserID  int             `json:"actor_user_id" db:"actor_user_id"`
	Details      json.RawMessage `json:"details,omitempty" db:"details"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// AuditFilter narrows and pages an audit log listing.
type AuditFilter struct {
	Action *AuditAction
	Page   int
	Limit  int
}
