package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
	"github.com/iiitkota/dockpanel/api/internal/nginx"
)

// Use a single instance of Validate, it caches struct info
var validate = validator.New()

func init() {
	// 🛡️ Everything that ends up inside the Nginx file is checked against the
	// same rules the reconciler enforces.
	mustRegister("nginx_size", func(fl validator.FieldLevel) bool {
		return nginx.ValidateBodySize(fl.Field().String()) == nil
	})
	mustRegister("dns_label", func(fl validator.FieldLevel) bool {
		// An explicit empty subdomain clears the mapping.
		s := fl.Field().String()
		return s == "" || nginx.ValidateSubdomain(s) == nil
	})
	mustRegister("proxy_port", func(fl validator.FieldLevel) bool {
		return nginx.ValidatePort(fl.Field().String()) == nil
	})
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validator: %v", tag, err))
	}
}

// HandleError maps domain and validation errors onto HTTP responses.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
		writeError(w, http.StatusBadRequest, "Validation failed: "+strings.Join(fields, ", "))

	case errors.Is(err, domain.ErrPortRequired),
		errors.Is(err, domain.ErrInvalidPort),
		errors.Is(err, domain.ErrInvalidBodySize),
		errors.Is(err, domain.ErrInvalidSubdomain):
		writeError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, domain.ErrPortConflict):
		writeError(w, http.StatusConflict, err.Error())

	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "Resource not found")

	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")

	case errors.Is(err, domain.ErrAccountSuspended):
		writeError(w, http.StatusForbidden, "Account suspended")

	default:
		// 🛡️ Never leak internals; the request ID ties the client report to the log line.
		slog.Default().Error("Request failed",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeApplyResult reports a terminal pipeline outcome. Rejections and reload
// failures are not transport errors: the body always carries the result.
func writeApplyResult(w http.ResponseWriter, result domain.ApplyResult) {
	code := http.StatusOK
	switch result.Status {
	case domain.ApplyRejected:
		code = http.StatusUnprocessableEntity
	case domain.ApplyReloadFailed:
		code = http.StatusBadGateway
	}
	writeJSON(w, code, result)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"message": message})
}
