package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
)

// ServiceHandler exposes the orchestrator's service records read-only.
type ServiceHandler struct {
	Repo domain.ServiceRepository
}

func NewServiceHandler(repo domain.ServiceRepository) *ServiceHandler {
	return &ServiceHandler{Repo: repo}
}

// List handles GET /api/v1/services
func (h *ServiceHandler) List(w http.ResponseWriter, r *http.Request) {
	svcs, err := h.Repo.List(r.Context())
	if err != nil {
		HandleError(w, r, err)
		return
	}
	if svcs == nil {
		svcs = []domain.ManagedService{}
	}
	writeJSON(w, http.StatusOK, svcs)
}

// Get handles GET /api/v1/services/{name}
func (h *ServiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	svc, err := h.Repo.GetByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		HandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}
