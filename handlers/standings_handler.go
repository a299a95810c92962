package handlers

import (
	"errors"
	"net/http"

	"github.com/rinkhouse/league-system/middleware"
	"github.com/rinkhouse/league-system/services"
)

type StandingsHandler struct {
	standingsService services.StandingsService
}

func NewStandingsHandler(ss services.StandingsService) *StandingsHandler {
	return &StandingsHandler{standingsService: ss}
}

// Get handles GET /tournaments/{tournamentID}/standings. Standings are a
// public read and always reflect the live bracket.
func (h *StandingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := urlParamInt(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	standings, err := h.standingsService.GetStandings(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"standings": standings}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ResolveTies handles POST /tournaments/{tournamentID}/ties.
func (h *StandingsHandler) ResolveTies(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}
	tournamentID, err := urlParamInt(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		OrderedTeamIDs []int `json:"ordered_team_ids"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if len(input.OrderedTeamIDs) == 0 {
		badRequestResponse(w, r, errors.New("ordered_team_ids is required"))
		return
	}

	if err := h.standingsService.ResolveTies(r.Context(), currentUserID, tournamentID, input.OrderedTeamIDs); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	standings, err := h.standingsService.GetStandings(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"standings": standings}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
