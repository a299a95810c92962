package handlers

import (
	"errors"
	"net/http"

	"github.com/rinkhouse/league-system/middleware"
	"github.com/rinkhouse/league-system/models"
	"github.com/rinkhouse/league-system/services"
)

type RoleHandler struct {
	authzService services.AuthorizationService
}

func NewRoleHandler(as services.AuthorizationService) *RoleHandler {
	return &RoleHandler{authzService: as}
}

// List handles GET /tournaments/{tournamentID}/roles.
func (h *RoleHandler) List(w http.ResponseWriter, r *http.Request) {
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

	bindings, err := h.authzService.ListRoles(r.Context(), currentUserID, tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"roles": bindings}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Assign handles PUT /tournaments/{tournamentID}/roles.
func (h *RoleHandler) Assign(w http.ResponseWriter, r *http.Request) {
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
		UserID int    `json:"user_id"`
		Role   string `json:"role"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.UserID < 1 || input.Role == "" {
		badRequestResponse(w, r, errors.New("user_id and role are required"))
		return
	}

	err = h.authzService.AssignRole(r.Context(), currentUserID, tournamentID, input.UserID, models.TournamentRole(input.Role))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Remove handles DELETE /tournaments/{tournamentID}/roles/{userID}.
func (h *RoleHandler) Remove(w http.ResponseWriter, r *http.Request) {
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
	userID, err := urlParamInt(r, "userID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.authzService.RemoveRole(r.Context(), currentUserID, tournamentID, userID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TransferOwnership handles POST /tournaments/{tournamentID}/ownership.
func (h *RoleHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
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
		NewOwnerID int `json:"new_owner_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.NewOwnerID < 1 {
		badRequestResponse(w, r, errors.New("new_owner_id is required"))
		return
	}

	if err := h.authzService.TransferOwnership(r.Context(), currentUserID, tournamentID, input.NewOwnerID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
