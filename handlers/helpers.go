package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rinkhouse/league-system/brackets"
	"github.com/rinkhouse/league-system/repositories"
	"github.com/rinkhouse/league-system/services"
)

type jsonResponse map[string]interface{}

func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	maxBytes := 1_048_576 // 1MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var invalidUnmarshalError *json.InvalidUnmarshalError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		case err.Error() == "http: request body too large":
			return fmt.Errorf("body must not be larger than %d bytes", maxBytes)
		case errors.As(err, &invalidUnmarshalError):
			panic(err)
		default:
			return err
		}
	}

	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, headers http.Header) error {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return err
	}
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

func urlParamInt(r *http.Request, name string) (int, error) {
	value, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || value < 1 {
		return 0, fmt.Errorf("invalid %s parameter", name)
	}
	return value, nil
}

func errorResponse(w http.ResponseWriter, r *http.Request, status int, message interface{}) {
	env := jsonResponse{"error": message}
	if err := writeJSON(w, status, env, nil); err != nil {
		slog.Error("failed to write error response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("internal server error", "method", r.Method, "path", r.URL.Path, "error", err)
	message := "the server encountered a problem and could not process your request"
	errorResponse(w, r, http.StatusInternalServerError, message)
}

func badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func notFoundResponse(w http.ResponseWriter, r *http.Request) {
	message := "the requested resource could not be found"
	errorResponse(w, r, http.StatusNotFound, message)
}

func conflictResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusConflict, message)
}

func unauthorizedResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusUnauthorized, message)
}

func forbiddenResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusForbidden, message)
}

// mapServiceErrorToHTTP translates service and repository sentinels into
// HTTP responses: validation 400, conflicts and bad state 409, authorization
// 403, missing resources 404, everything unexpected 500.
func mapServiceErrorToHTTP(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repositories.ErrTournamentNotFound),
		errors.Is(err, repositories.ErrMatchNotFound),
		errors.Is(err, repositories.ErrTeamNotFound),
		errors.Is(err, repositories.ErrUserNotFound),
		errors.Is(err, repositories.ErrRoleBindingNotFound):
		notFoundResponse(w, r)

	case errors.Is(err, services.ErrValidationFailed),
		errors.Is(err, services.ErrTiedScore),
		errors.Is(err, services.ErrNegativeScore),
		errors.Is(err, services.ErrByeMatch),
		errors.Is(err, services.ErrMatchParticipantsUnknown),
		errors.Is(err, services.ErrNotAParticipant),
		errors.Is(err, services.ErrInvalidTiebreakOrder),
		errors.Is(err, services.ErrInvalidRole),
		errors.Is(err, services.ErrTransferTargetNotAdmin),
		errors.Is(err, brackets.ErrNotEnoughTeams),
		errors.Is(err, brackets.ErrDuplicateSeed):
		badRequestResponse(w, r, err)

	case errors.Is(err, services.ErrMatchAlreadyTerminal),
		errors.Is(err, services.ErrBracketAlreadyExists),
		errors.Is(err, services.ErrBracketGenerationBlocked),
		errors.Is(err, services.ErrBracketClearBlocked),
		errors.Is(err, services.ErrTournamentNotInProgress),
		errors.Is(err, services.ErrMatchNotPlayable),
		errors.Is(err, services.ErrInvalidStatusTransition),
		errors.Is(err, services.ErrTournamentNotEditable),
		errors.Is(err, services.ErrTeamRegistrationClosed),
		errors.Is(err, services.ErrBracketRequiredForStart),
		errors.Is(err, services.ErrTournamentDeleteForbidden),
		errors.Is(err, repositories.ErrTournamentNameConflict),
		errors.Is(err, repositories.ErrTeamNameConflict),
		errors.Is(err, repositories.ErrTeamSeedConflict),
		errors.Is(err, repositories.ErrUserEmailConflict):
		conflictResponse(w, r, err.Error())

	case errors.Is(err, services.ErrInsufficientRole),
		errors.Is(err, services.ErrCannotRemoveOwner):
		forbiddenResponse(w, r, err.Error())

	case errors.Is(err, services.ErrAuthInvalidCredentials):
		unauthorizedResponse(w, r, err.Error())

	case errors.Is(err, services.ErrBracketInconsistent):
		// Surfaced as an internal error on purpose: the graph broke an
		// invariant and only a clear + regenerate recovers it.
		errorResponse(w, r, http.StatusInternalServerError, err.Error())

	default:
		serverErrorResponse(w, r, err)
	}
}
