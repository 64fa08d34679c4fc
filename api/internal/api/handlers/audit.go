package handlers

import (
	"net/http"
	"strconv"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
)

type AuditHandler struct {
	History domain.ApplyHistory
}

func NewAuditHandler(history domain.ApplyHistory) *AuditHandler {
	return &AuditHandler{History: history}
}

// List handles GET /api/v1/proxy/audit?limit=N
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.History.Recent(r.Context(), limit)
	if err != nil {
		HandleError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.ApplyAuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
