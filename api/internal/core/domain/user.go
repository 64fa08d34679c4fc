package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type contextKey string

// UserContextKey carries the verified *UserClaims on the request context.
const UserContextKey contextKey = "user_claims"

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	Role         Role      `json:"role"`
	Permissions  []string  `json:"permissions"` // "resource:action"
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Role struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Rank int       `json:"rank"`
}

// UserClaims is the identity extracted from a verified access token.
type UserClaims struct {
	Subject     uuid.UUID
	Email       string
	Permissions []string
}

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// PermissionChecker answers "may principal P perform action A on resource S".
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID uuid.UUID, resource, action string) (bool, error)
}

// AuthService issues and verifies panel sessions.
type AuthService interface {
	Login(ctx context.Context, email, password string) (accessToken, refreshToken string, err error)
	Refresh(ctx context.Context, refreshToken string) (accessToken, newRefreshToken string, err error)
	ValidateAccessToken(ctx context.Context, token string) (*UserClaims, error)
}
