package models

import "time"

// Team is a registered roster. Teams are finalized by the registration flow
// before the bracket is generated; the seed is unique within a tournament.
type Team struct {
	ID           int       `json:"id" db:"id"`
	TournamentID int       `json:"tournament_id" db:"tournament_id"`
	Name         string    `json:"name" db:"name"`
	Seed         int       `json:"seed" db:"seed"`
	CaptainID    int       `json:"captain_id" db:"captain_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`

	LogoKey *string `json:"-" db:"logo_key"`
	LogoURL *string `json:"logo_url,omitempty" db:"-"`

	Captain *User `json:"captain,omitempty" db:"-"`
}
