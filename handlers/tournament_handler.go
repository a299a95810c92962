package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rinkhouse/league-system/middleware"
	"github.com/rinkhouse/league-system/models"
	"github.com/rinkhouse/league-system/services"
)

type TournamentHandler struct {
	tournamentService services.TournamentService
}

func NewTournamentHandler(ts services.TournamentService) *TournamentHandler {
	return &TournamentHandler{tournamentService: ts}
}

// Create handles POST /tournaments.
func (h *TournamentHandler) Create(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input struct {
		Name        string   `json:"name"`
		Description *string  `json:"description"`
		Format      string   `json:"format"`
		Location    *string  `json:"location"`
		StartDate   string   `json:"start_date"`
		Tiebreakers []string `json:"tiebreakers"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	startDate := time.Now()
	if input.StartDate != "" {
		parsed, err := time.Parse(time.RFC3339, input.StartDate)
		if err != nil {
			badRequestResponse(w, r, err)
			return
		}
		startDate = parsed
	}

	tournament, err := h.tournamentService.Create(r.Context(), currentUserID, services.CreateTournamentInput{
		Name:        input.Name,
		Description: input.Description,
		Format:      models.TournamentFormat(input.Format),
		Location:    input.Location,
		StartDate:   startDate,
		Tiebreakers: input.Tiebreakers,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetByID handles GET /tournaments/{tournamentID}.
func (h *TournamentHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.tournamentService.GetByID(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// List handles GET /tournaments.
func (h *TournamentHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	limit, _ := strconv.Atoi(query.Get("limit"))

	tournaments, err := h.tournamentService.List(r.Context(), page, limit)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournaments": tournaments}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Update handles PATCH /tournaments/{tournamentID}.
func (h *TournamentHandler) Update(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}
	id, err := urlParamInt(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Name        *string  `json:"name"`
		Description *string  `json:"description"`
		Location    *string  `json:"location"`
		StartDate   *string  `json:"start_date"`
		Tiebreakers []string `json:"tiebreakers"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	update := services.UpdateTournamentInput{
		Name:        input.Name,
		Description: input.Description,
		Location:    input.Location,
		Tiebreakers: input.Tiebreakers,
	}
	if input.StartDate != nil {
		parsed, err := time.Parse(time.RFC3339, *input.StartDate)
		if err != nil {
			badRequestResponse(w, r, err)
			return
		}
		update.StartDate = &parsed
	}

	tournament, err := h.tournamentService.Update(r.Context(), currentUserID, id, update)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UpdateStatus handles PATCH /tournaments/{tournamentID}/status.
func (h *TournamentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}
	id, err := urlParamInt(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Status string `json:"status"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.tournamentService.UpdateStatus(r.Context(), currentUserID, id, models.TournamentStatus(input.Status))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Delete handles DELETE /tournaments/{tournamentID}.
func (h *TournamentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}
	id, err := urlParamInt(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.tournamentService.Delete(r.Context(), currentUserID, id); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
