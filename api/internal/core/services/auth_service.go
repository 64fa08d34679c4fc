package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
)

type AuthService struct {
	repo   domain.UserRepository
	tokens *TokenService
}

func NewAuthService(repo domain.UserRepository, tokens *TokenService) *AuthService {
	return &AuthService{repo: repo, tokens: tokens}
}

func (s *AuthService) Login(ctx context.Context, email, password string) (string, string, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", "", domain.ErrInvalidCredentials
		}
		return "", "", fmt.Errorf("failed to load user: %w", err)
	}

	// Constant-time check
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", "", domain.ErrInvalidCredentials
	}

	if !user.IsActive {
		return "", "", domain.ErrAccountSuspended
	}

	return s.tokens.GenerateTokenPair(user)
}

// Refresh exchanges a valid refresh token for a new pair, re-reading the user
// so that suspended accounts and revoked permissions take effect.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	userID, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return "", "", domain.ErrInvalidCredentials
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", "", domain.ErrInvalidCredentials
		}
		return "", "", fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		return "", "", domain.ErrAccountSuspended
	}

	return s.tokens.GenerateTokenPair(user)
}

func (s *AuthService) ValidateAccessToken(_ context.Context, token string) (*domain.UserClaims, error) {
	return s.tokens.ValidateAccessToken(token)
}
