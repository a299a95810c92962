package models

// RankedTeam is one row of the computed standings. Teams still alive in an
// unfinished bracket carry Active=true and a nil Rank; eliminated teams are
// ranked below however many teams remain active.
type RankedTeam struct {
	TeamID int    `json:"team_id"`
	Name   string `json:"name"`
	Seed   int    `json:"seed"`

	Rank   *int `json:"rank,omitempty"`
	Active bool `json:"active"`

	Wins         int `json:"wins"`
	Losses       int `json:"losses"`
	ScoreFor     int `json:"score_for"`
	ScoreAgainst int `json:"score_against"`

	// EliminatedIn labels the stage of the final loss, e.g. "W2" (single
	// elimination), "L3" or "GF2". Empty while the team is active.
	EliminatedIn string `json:"eliminated_in,omitempty"`
}

// TiebreakOverride is a manual ordering recorded by an admin for teams the
// automatic rules could not separate. Lower position sorts higher.
type TiebreakOverride struct {
	TournamentID int `json:"tournament_id" db:"tournament_id"`
	TeamID       int `json:"team_id" db:"team_id"`
	Position     int `json:"position" db:"position"`
}
