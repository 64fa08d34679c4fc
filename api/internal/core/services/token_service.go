package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
)

const (
	tokenIssuer     = "dockpanel"
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

// PanelClaims holds the stateless authorization data
type PanelClaims struct {
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Email       string   `json:"email,omitempty"`
	TokenType   string   `json:"token_type"` // 🛡️ 'access' or 'refresh', never interchangeable
	jwt.RegisteredClaims
}

type TokenService struct {
	secret []byte
}

func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret)}
}

// GenerateTokenPair mints both the short-lived access token and the long-lived refresh token
func (s *TokenService) GenerateTokenPair(user *domain.User) (string, string, error) {
	now := time.Now()

	// 1. 🛡️ Access Token - carries the RBAC data the proxy routes check
	accessClaims := PanelClaims{
		Role:        user.Role.Name,
		Permissions: user.Permissions,
		Email:       user.Email,
		TokenType:   "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}
	signedAccess, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign access token: %w", err)
	}

	// 2. 🛡️ Refresh Token - only the Subject ID
	refreshClaims := PanelClaims{
		TokenType: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(refreshTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			ID:        uuid.New().String(),
		},
	}
	signedRefresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return signedAccess, signedRefresh, nil
}

// ValidateAccessToken verifies an access token and returns the identity it carries.
func (s *TokenService) ValidateAccessToken(tokenString string) (*domain.UserClaims, error) {
	claims, err := s.parse(tokenString, "access")
	if err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("malformed subject claim")
	}

	return &domain.UserClaims{
		Subject:     userID,
		Email:       claims.Email,
		Permissions: claims.Permissions,
	}, nil
}

// VerifyRefreshToken validates the signature, expiry, and token type
func (s *TokenService) VerifyRefreshToken(tokenString string) (uuid.UUID, error) {
	claims, err := s.parse(tokenString, "refresh")
	if err != nil {
		return uuid.Nil, err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("malformed subject claim")
	}
	return userID, nil
}

func (s *TokenService) parse(tokenString, tokenType string) (*PanelClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &PanelClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 🛡️ Zero-Trust: Force the signing method check
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("invalid token signature or expired: %w", err)
	}

	claims, ok := token.Claims.(*PanelClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if claims.TokenType != tokenType {
		return nil, fmt.Errorf("invalid token type: expected %s", tokenType)
	}
	return claims, nil
}
