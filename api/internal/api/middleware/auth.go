package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
)

const accessTokenCookie = "dockpanel_access_token"

type visitor struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	lastSeen time.Time
}

type AuthMiddleware struct {
	AuthService domain.AuthService
	UserRepo    domain.UserRepository // 🛡️ Real-time Zero-Trust checks
	Logger      *slog.Logger
	visitors    sync.Map
	limit       rate.Limit
	burst       int
}

// NewAuthMiddleware starts the visitor cleanup loop, which runs until ctx is done.
func NewAuthMiddleware(ctx context.Context, authService domain.AuthService, userRepo domain.UserRepository, logger *slog.Logger) *AuthMiddleware {
	m := &AuthMiddleware{
		AuthService: authService,
		UserRepo:    userRepo,
		Logger:      logger,
		limit:       rate.Limit(10),
		burst:       30,
	}
	go m.cleanupVisitors(ctx)
	return m
}

// ==============================================================================
// 1. Identity & Zero-Trust Access
// ==============================================================================

func (m *AuthMiddleware) RequireAuthentication(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractToken(r)
		if tokenString == "" {
			http.Error(w, `{"message": "Unauthorized"}`, http.StatusUnauthorized)
			return
		}

		claims, err := m.AuthService.ValidateAccessToken(r.Context(), tokenString)
		if err != nil {
			http.Error(w, `{"message": "Invalid token"}`, http.StatusUnauthorized)
			return
		}

		// 🛡️ Zero-Trust: Verify user is still active in the DB (Ghost Token Prevention)
		user, err := m.UserRepo.GetByID(r.Context(), claims.Subject)
		if err != nil || !user.IsActive {
			m.Logger.Warn("Attempted access with ghost token", slog.String("user_id", claims.Subject.String()))
			http.Error(w, `{"message": "Account suspended"}`, http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), domain.UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ==============================================================================
// 2. Performance & DoS Protection
// ==============================================================================

func (m *AuthMiddleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// RealIP has already rewritten RemoteAddr when behind the proxy
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		v, _ := m.visitors.LoadOrStore(ip, &visitor{
			limiter:  rate.NewLimiter(m.limit, m.burst),
			lastSeen: time.Now(),
		})

		vis := v.(*visitor)
		vis.mu.Lock()
		vis.lastSeen = time.Now()
		vis.mu.Unlock()

		if !vis.limiter.Allow() {
			http.Error(w, `{"message": "Rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) cleanupVisitors(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.visitors.Range(func(key, value any) bool {
				vis := value.(*visitor)
				vis.mu.Lock()
				stale := time.Since(vis.lastSeen) > 3*time.Minute
				vis.mu.Unlock()
				if stale {
					m.visitors.Delete(key)
				}
				return true
			})
		}
	}
}

// 🛡️ Platform Agnostic Token Extraction
func extractToken(r *http.Request) string {
	// 1. Authorization header (proxyctl / scripts)
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	// 2. Cookie (dashboard)
	if cookie, err := r.Cookie(accessTokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}
