package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
)

const (
	AccessTokenCookie  = "dockpanel_access_token"
	RefreshTokenCookie = "dockpanel_refresh_token"
	refreshCookiePath  = "/api/v1/auth/refresh"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=128"`
}

type AuthHandler struct {
	Service      domain.AuthService
	SecureCookie bool
}

func NewAuthHandler(service domain.AuthService, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		Service:      service,
		SecureCookie: secureCookie,
	}
}

// Login handles POST /api/v1/auth/login. Browsers get HttpOnly cookies, CLI
// clients read the access token from the body.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"message": "Invalid JSON payload"}`, http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, err)
		return
	}

	access, refresh, err := h.Service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	h.setAuthCookies(w, access, refresh)
	writeJSON(w, http.StatusOK, map[string]string{"access_token": access})
}

// Refresh handles the Silent Refresh flow
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshTokenCookie)
	if err != nil {
		http.Error(w, `{"message": "No refresh token provided"}`, http.StatusUnauthorized)
		return
	}

	// 🛡️ Token rotation: the service re-reads the user, so revoked access stops here.
	access, refresh, err := h.Service.Refresh(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) || errors.Is(err, domain.ErrAccountSuspended) {
			h.clearCookies(w)
			http.Error(w, `{"message": "Session expired, please log in again"}`, http.StatusUnauthorized)
			return
		}
		HandleError(w, r, err)
		return
	}

	h.setAuthCookies(w, access, refresh)
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

// 🛡️ Helper: Apply Zero-Trust cookie policies
func (h *AuthHandler) setAuthCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookie,
		Value:    accessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(15 * time.Minute.Seconds()),
	})

	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    refreshToken,
		Path:     refreshCookiePath, // Only sent to the refresh endpoint
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(7 * 24 * time.Hour.Seconds()),
	})
}

func (h *AuthHandler) clearCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    "",
		Path:     refreshCookiePath,
		HttpOnly: true,
		MaxAge:   -1,
	})
}
