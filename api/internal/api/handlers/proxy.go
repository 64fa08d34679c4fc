package handlers

import (
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
)

// ==============================================================================
// 1. The Handler Struct (Dependency Injection)
// ==============================================================================

type ProxyHandler struct {
	Service domain.ProxyManager
}

func NewProxyHandler(service domain.ProxyManager) *ProxyHandler {
	return &ProxyHandler{
		Service: service,
	}
}

// ==============================================================================
// 2. HTTP Methods
// ==============================================================================

// GetConfig handles GET /api/v1/proxy/config
func (h *ProxyHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	content, err := h.Service.GetCurrentConfig(r.Context())
	if err != nil {
		HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, content)
}

// PutConfig handles PUT /api/v1/proxy/config. The body is the whole site file.
func (h *ProxyHandler) PutConfig(w http.ResponseWriter, r *http.Request) {
	// Safe to read fully: MaxBytes bounds the body
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, `{"message": "Failed to read request body"}`, http.StatusBadRequest)
		return
	}
	if !utf8.Valid(body) {
		http.Error(w, `{"message": "Configuration must be UTF-8 text"}`, http.StatusBadRequest)
		return
	}

	result, err := h.Service.ApplyRawConfig(r.Context(), string(body))
	if err != nil {
		HandleError(w, r, err)
		return
	}
	writeApplyResult(w, result)
}

// ListBlocks handles GET /api/v1/proxy/blocks
func (h *ProxyHandler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	blocks, err := h.Service.ListBlocks(r.Context())
	if err != nil {
		HandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, blocks)
}

// ListBackups handles GET /api/v1/proxy/backups
func (h *ProxyHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.Service.ListBackups(r.Context())
	if err != nil {
		HandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, backups)
}

// RestoreBackup handles POST /api/v1/proxy/backups/{name}/restore
func (h *ProxyHandler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		http.Error(w, `{"message": "Missing backup name"}`, http.StatusBadRequest)
		return
	}

	result, err := h.Service.RestoreBackup(r.Context(), name)
	if err != nil {
		HandleError(w, r, err)
		return
	}
	writeApplyResult(w, result)
}
