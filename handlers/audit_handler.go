package handlers

import (
	"net/http"
	"strconv"

	"github.com/rinkhouse/league-system/middleware"
	"github.com/rinkhouse/league-system/models"
	"github.com/rinkhouse/league-system/services"
)

type AuditHandler struct {
	auditService services.AuditService
}

func NewAuditHandler(as services.AuditService) *AuditHandler {
	return &AuditHandler{auditService: as}
}

// List handles GET /tournaments/{tournamentID}/audit with optional action,
// page and limit query parameters.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
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

	query := r.URL.Query()
	filter := models.AuditFilter{}
	if action := query.Get("action"); action != "" {
		a := models.AuditAction(action)
		filter.Action = &a
	}
	filter.Page, _ = strconv.Atoi(query.Get("page"))
	filter.Limit, _ = strconv.Atoi(query.Get("limit"))

	records, total, err := h.auditService.List(r.Context(), currentUserID, tournamentID, filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	response := jsonResponse{
		"audit_records": records,
		"total":         total,
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
