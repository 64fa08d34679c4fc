package middleware

import (
	"log/slog"
	"net/http"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
)

type RBACMiddleware struct {
	checker domain.PermissionChecker
	logger  *slog.Logger
}

func NewRBACMiddleware(checker domain.PermissionChecker, logger *slog.Logger) *RBACMiddleware {
	return &RBACMiddleware{
		checker: checker,
		logger:  logger,
	}
}

// RequirePermission consults the permission store on every request so that
// revocations apply without waiting for the access token to expire.
func (m *RBACMiddleware) RequirePermission(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 🛡️ Safe context retrieval
			claims, ok := r.Context().Value(domain.UserContextKey).(*domain.UserClaims)
			if !ok {
				http.Error(w, `{"message": "Identity context missing"}`, http.StatusUnauthorized)
				return
			}

			hasPerm, err := m.checker.HasPermission(r.Context(), claims.Subject, resource, action)
			if err != nil {
				m.logger.Error("Permission lookup failed",
					slog.String("user_id", claims.Subject.String()),
					slog.String("permission", resource+":"+action),
					slog.Any("error", err),
				)
				http.Error(w, `{"message": "Forbidden"}`, http.StatusForbidden)
				return
			}
			if !hasPerm {
				http.Error(w, `{"message": "Forbidden"}`, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
