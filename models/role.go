package models

import "time"

// TournamentRole is the per-tournament privilege level. Roles are compared by
// rank, not by type hierarchy: every mutating operation declares the minimum
// rank it needs and the gate is a plain comparison.
type TournamentRole string

const (
	RoleScorekeeper TournamentRole = "scorekeeper"
	RoleAdmin       TournamentRole = "admin"
	RoleOwner       TournamentRole = "owner"
)

var roleRank = map[TournamentRole]int{
	RoleScorekeeper: 1,
	RoleAdmin:       2,
	RoleOwner:       3,
}

func (r TournamentRole) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r carries at least the privileges of min.
func (r TournamentRole) AtLeast(min TournamentRole) bool {
	return roleRank[r] >= roleRank[min]
}

// TournamentRoleBinding grants a user a role on one tournament. Each
// tournament has exactly one owner binding at all times.
type TournamentRoleBinding struct {
	TournamentID int            `json:"tournament_id" db:"tournament_id"`
	UserID       int            `json:"user_id" db:"user_id"`
	Role         TournamentRole `json:"role" db:"role"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}
