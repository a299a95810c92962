package models

import "time"

type MatchStatus string

const (
	MatchStatusScheduled  MatchStatus = "scheduled"
	MatchStatusInProgress MatchStatus = "in_progress"
	MatchStatusCompleted  MatchStatus = "completed"
	MatchStatusForfeit    MatchStatus = "forfeit"
	MatchStatusCanceled   MatchStatus = "canceled"

	// MatchStatusInert is used only by the bracket-reset slot (GF2): the row
	// exists from generation time but has no participants and is hidden until
	// the engine activates it, at which point it becomes scheduled.
	MatchStatusInert MatchStatus = "inert"
)

// Terminal reports whether the match can no longer change hands. A canceled
// match is terminal too, but never propagates a winner.
func (s MatchStatus) Terminal() bool {
	return s == MatchStatusCompleted || s == MatchStatusForfeit || s == MatchStatusCanceled
}

type BracketType string

const (
	BracketWinners    BracketType = "winners"
	BracketLosers     BracketType = "losers"
	BracketGrandFinal BracketType = "grand_final"
)

// MatchSlot addresses one of the two participant slots of a match. Forward
// pointers record which slot of the downstream match the winner (or loser)
// lands in, fixed at generation time.
type MatchSlot int

const (
	SlotHome MatchSlot = 1
	SlotAway MatchSlot = 2
)

// Match is one node of the bracket graph. NextMatchID and LoserNextMatchID
// are forward-only pointers (always to a later round); reverse lookups are
// queries on these columns, never stored back-references.
type Match struct {
	ID           int         `json:"id" db:"id"`
	TournamentID int         `json:"tournament_id" db:"tournament_id"`
	BracketType  BracketType `json:"bracket_type" db:"bracket_type"`
	Round        int         `json:"round" db:"round"`
	MatchNumber  int         `json:"match_number" db:"match_number"`

	HomeTeamID   *int `json:"home_team_id" db:"home_team_id"`
	AwayTeamID   *int `json:"away_team_id" db:"away_team_id"`
	HomeScore    *int `json:"home_score" db:"home_score"`
	AwayScore    *int `json:"away_score" db:"away_score"`
	WinnerTeamID *int `json:"winner_team_id" db:"winner_team_id"`

	Status MatchStatus `json:"status" db:"status"`
	IsBye  bool        `json:"is_bye" db:"is_bye"`

	NextMatchID        *int       `json:"next_match_id" db:"next_match_id"`
	NextMatchSlot      *MatchSlot `json:"next_match_slot" db:"next_match_slot"`
	LoserNextMatchID   *int       `json:"loser_next_match_id" db:"loser_next_match_id"`
	LoserNextMatchSlot *MatchSlot `json:"loser_next_match_slot" db:"loser_next_match_slot"`

	ScheduledTime time.Time `json:"scheduled_time" db:"scheduled_time"`
	Venue         *string   `json:"venue,omitempty" db:"venue"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// HasParticipant reports whether teamID currently occupies one of the slots.
func (m *Match) HasParticipant(teamID int) bool {
	if m.HomeTeamID != nil && *m.HomeTeamID == teamID {
		return true
	}
	return m.AwayTeamID != nil && *m.AwayTeamID == teamID
}

// Opponent returns the other participant, if both slots are filled.
func (m *Match) Opponent(teamID int) *int {
	if m.HomeTeamID != nil && *m.HomeTeamID == teamID {
		return m.AwayTeamID
	}
	if m.AwayTeamID != nil && *m.AwayTeamID == teamID {
		return m.HomeTeamID
	}
	return nil
}
