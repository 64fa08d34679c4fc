package services_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
	"github.com/iiitkota/dockpanel/api/internal/core/services"
)

const (
	testSecret = "super-secret-key-for-testing-purposes-1234567890"
)

func testUser() *domain.User {
	return &domain.User{
		ID:          uuid.New(),
		Email:       "ops@iiitkota.ac.in",
		IsActive:    true,
		Role:        domain.Role{Name: "admin", Rank: 100},
		Permissions: []string{"proxy:read", "proxy:write"},
	}
}

func TestTokenService_GenerateTokenPair(t *testing.T) {
	// 1. Setup
	tokenService := services.NewTokenService(testSecret)
	user := testUser()

	// 2. Execution
	accessTokenString, refreshTokenString, err := tokenService.GenerateTokenPair(user)

	// 3. Verification
	require.NoError(t, err)
	assert.NotEmpty(t, accessTokenString)
	assert.NotEmpty(t, refreshTokenString)

	// 3a. Verify Access Token Claims
	token, err := jwt.ParseWithClaims(accessTokenString, &services.PanelClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)

	claims, ok := token.Claims.(*services.PanelClaims)
	require.True(t, ok)

	assert.Equal(t, "access", claims.TokenType)
	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.Equal(t, "dockpanel", claims.Issuer)
	assert.Equal(t, "ops@iiitkota.ac.in", claims.Email)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, []string{"proxy:read", "proxy:write"}, claims.Permissions)

	// Verify Expiration (approx 15 mins)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, 5*time.Second)

	// 3b. Verify Refresh Token Claims
	refreshToken, err := jwt.ParseWithClaims(refreshTokenString, &services.PanelClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)
	require.True(t, refreshToken.Valid)

	refreshClaims, ok := refreshToken.Claims.(*services.PanelClaims)
	require.True(t, ok)

	assert.Equal(t, "refresh", refreshClaims.TokenType)
	assert.Equal(t, user.ID.String(), refreshClaims.Subject)
	assert.NotEmpty(t, refreshClaims.ID) // JTI should be present
	assert.Empty(t, refreshClaims.Permissions)

	// Verify Expiration (approx 7 days)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), refreshClaims.ExpiresAt.Time, 5*time.Second)
}

func TestTokenService_ValidateAccessToken(t *testing.T) {
	tokenService := services.NewTokenService(testSecret)
	user := testUser()
	accessToken, refreshToken, err := tokenService.GenerateTokenPair(user)
	require.NoError(t, err)

	t.Run("Valid Access Token", func(t *testing.T) {
		claims, err := tokenService.ValidateAccessToken(accessToken)
		require.NoError(t, err)
		assert.Equal(t, user.ID, claims.Subject)
		assert.Equal(t, user.Email, claims.Email)
		assert.Equal(t, user.Permissions, claims.Permissions)
	})

	t.Run("Invalid: Use Refresh Token as Access Token", func(t *testing.T) {
		_, err := tokenService.ValidateAccessToken(refreshToken)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid token type")
	})

	t.Run("Invalid: Signing Method None", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, services.PanelClaims{
			TokenType:        "access",
			RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID.String(), Issuer: "dockpanel"},
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = tokenService.ValidateAccessToken(unsigned)
		assert.Error(t, err)
	})
}

func TestTokenService_VerifyRefreshToken(t *testing.T) {
	tokenService := services.NewTokenService(testSecret)
	user := testUser()

	// Generate valid pair
	accessToken, refreshToken, _ := tokenService.GenerateTokenPair(user)

	t.Run("Valid Refresh Token", func(t *testing.T) {
		uid, err := tokenService.VerifyRefreshToken(refreshToken)
		require.NoError(t, err)
		assert.Equal(t, user.ID, uid)
	})

	t.Run("Invalid: Use Access Token as Refresh Token", func(t *testing.T) {
		uid, err := tokenService.VerifyRefreshToken(accessToken)
		assert.Error(t, err)
		assert.Equal(t, uuid.Nil, uid)
		assert.Contains(t, err.Error(), "invalid token type")
	})

	t.Run("Invalid: Wrong Secret", func(t *testing.T) {
		otherService := services.NewTokenService("wrong-secret-key")
		_, otherRefresh, _ := otherService.GenerateTokenPair(user)

		uid, err := tokenService.VerifyRefreshToken(otherRefresh)
		assert.Error(t, err)
		assert.Equal(t, uuid.Nil, uid)
		assert.Contains(t, err.Error(), "signature is invalid")
	})

	t.Run("Invalid: Malformed Token", func(t *testing.T) {
		uid, err := tokenService.VerifyRefreshToken("not.a.valid.token")
		assert.Error(t, err)
		assert.Equal(t, uuid.Nil, uid)
	})
}
