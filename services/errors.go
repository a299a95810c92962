package services

import "errors"

// Sentinel errors shared across services and mapped to HTTP status codes in
// the handlers package. Grouped by kind: validation, conflict, authorization,
// state, and internal consistency.
var (
	// Validation: the request itself is malformed or impossible.
	ErrValidationFailed         = errors.New("validation failed")
	ErrTiedScore                = errors.New("tied scores are not allowed, resolve the tie before submitting")
	ErrNegativeScore            = errors.New("scores must be non-negative")
	ErrByeMatch                 = errors.New("bye matches resolve automatically and never accept results")
	ErrMatchParticipantsUnknown = errors.New("match participants are not decided yet")
	ErrNotAParticipant          = errors.New("team is not a participant of this match")
	ErrInvalidTiebreakOrder     = errors.New("manual tiebreak order must list distinct teams of this tournament")
	ErrInvalidRole              = errors.New("invalid tournament role")

	// Conflict: a legitimate race or double submission.
	ErrMatchAlreadyTerminal = errors.New("match already has a final result")

	// Authorization: the caller's role is below the action's minimum.
	ErrInsufficientRole       = errors.New("operation requires a higher tournament role")
	ErrCannotRemoveOwner      = errors.New("tournament ownership must be transferred, never removed")
	ErrTransferTargetNotAdmin = errors.New("ownership can only be transferred to an existing admin")

	// State: the action is invalid for the current tournament/bracket state.
	ErrBracketAlreadyExists      = errors.New("tournament already has a bracket, clear it first")
	ErrBracketGenerationBlocked  = errors.New("tournament state does not permit bracket generation")
	ErrBracketClearBlocked       = errors.New("tournament state does not permit clearing the bracket")
	ErrTournamentNotInProgress   = errors.New("tournament is not in progress")
	ErrMatchNotPlayable          = errors.New("match is not playable in its current state")
	ErrInvalidStatusTransition   = errors.New("invalid tournament status transition")
	ErrTournamentNotEditable     = errors.New("tournament can no longer be edited")
	ErrTeamRegistrationClosed    = errors.New("team registration is closed for this tournament")
	ErrBracketRequiredForStart   = errors.New("tournament cannot start before its bracket is generated")
	ErrTournamentDeleteForbidden = errors.New("only draft or canceled tournaments can be deleted")

	// Internal: the bracket graph violated its own shape. The tournament is
	// flagged and requires an explicit clear + regenerate.
	ErrBracketInconsistent = errors.New("bracket is in an inconsistent state and requires regeneration")

	// Authentication.
	ErrAuthInvalidCredentials = errors.New("invalid email or password")
)
