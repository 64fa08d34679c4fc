package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
)

// ==============================================================================
// 1. Request Payloads (Input Validation)
// ==============================================================================

// UpdateDomainRequest maps a service onto <subdomain>.<base domain>.
// A null or empty subdomain detaches the service from the proxy.
type UpdateDomainRequest struct {
	Subdomain         *string `json:"subdomain" validate:"omitempty,max=63,dns_label"`
	Port              string  `json:"port" validate:"omitempty,proxy_port"`
	ClientMaxBodySize string  `json:"client_max_body_size" validate:"omitempty,max=16,nginx_size"`
}

// ==============================================================================
// 2. The Handler Struct (Dependency Injection)
// ==============================================================================

type ServiceDomainHandler struct {
	Service domain.ProxyManager
}

func NewServiceDomainHandler(service domain.ProxyManager) *ServiceDomainHandler {
	return &ServiceDomainHandler{
		Service: service,
	}
}

// ==============================================================================
// 3. HTTP Methods
// ==============================================================================

// Update handles PUT /api/v1/services/{name}/domain
func (h *ServiceDomainHandler) Update(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		http.Error(w, `{"message": "Missing service name"}`, http.StatusBadRequest)
		return
	}

	var req UpdateDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"message": "Invalid JSON payload"}`, http.StatusBadRequest)
		return
	}

	if err := validate.Struct(req); err != nil {
		HandleError(w, r, err)
		return
	}

	// The pipeline detaches from the request context, so a client that hangs
	// up mid-apply does not leave the proxy half configured.
	result, err := h.Service.ReconcileAndApply(r.Context(), name, req.Subdomain, req.Port, req.ClientMaxBodySize)
	if err != nil {
		HandleError(w, r, err)
		return
	}
	writeApplyResult(w, result)
}
