package models

import "time"

// TournamentStatus mirrors the ENUM in the database. The lifecycle is linear:
// draft -> open -> registration_closed -> in_progress -> completed, with
// canceled reachable from any non-terminal status.
type TournamentStatus string

const (
	StatusDraft              TournamentStatus = "draft"
	StatusOpen               TournamentStatus = "open"
	StatusRegistrationClosed TournamentStatus = "registration_closed"
	StatusInProgress         TournamentStatus = "in_progress"
	StatusCompleted          TournamentStatus = "completed"
	StatusCanceled           TournamentStatus = "canceled"
)

type TournamentFormat string

const (
	FormatSingleElimination TournamentFormat = "single_elimination"
	FormatDoubleElimination TournamentFormat = "double_elimination"
)

// Tiebreaker names a rule the standings calculator may apply, in the order
// configured on the tournament, after head-to-head fails to separate teams.
type Tiebreaker string

const (
	TiebreakerScoreDiff Tiebreaker = "score_diff"
	TiebreakerScoreFor  Tiebreaker = "score_for"
	TiebreakerSeed      Tiebreaker = "seed"
)

type Tournament struct {
	ID          int              `json:"id" db:"id"`
	Name        string           `json:"name" db:"name"`
	Description *string          `json:"description,omitempty" db:"description"`
	Format      TournamentFormat `json:"format" db:"format"`
	Status      TournamentStatus `json:"status" db:"status"`
	Location    *string          `json:"location,omitempty" db:"location"`
	StartDate   time.Time        `json:"start_date" db:"start_date"`

	// Tiebreakers is the configured order of standings tiebreak rules,
	// stored as a text[] column.
	Tiebreakers []string `json:"tiebreakers" db:"tiebreakers"`

	// BracketInconsistent is set when advancement hits a broken forward
	// pointer. The only way out is an explicit clear + regenerate.
	BracketInconsistent bool `json:"bracket_inconsistent" db:"bracket_inconsistent"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`

	Teams   []Team  `json:"teams,omitempty" db:"-"`
	Matches []Match `json:"matches,omitempty" db:"-"`
}

func (f TournamentFormat) Valid() bool {
	return f == FormatSingleElimination || f == FormatDoubleElimination
}

func (s TournamentStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusOpen, StatusRegistrationClosed, StatusInProgress, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether no further status transition is possible.
func (s TournamentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}
