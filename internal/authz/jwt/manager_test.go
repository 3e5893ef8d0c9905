package jwt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tm2pc/txmanager/pkg/config"
)

func testConfig() config.AuthConfig {
	return config.AuthConfig{
		JWT: config.JWTConfig{
			SecretKey:   "test-secret-key",
			ExpiryHours: 1,
			RefreshDays: 7,
			Issuer:      "test-issuer",
			Algorithm:   "HS256",
		},
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	manager, err := NewManager(testConfig())
	require.NoError(t, err)

	userID := "operator-123"
	email := "operator@example.com"
	roles := []string{"operator"}
	permissions := []string{"governance:update", "governance:complete"}

	token, err := manager.GenerateToken(userID, email, roles, permissions)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := manager.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, email, claims.Email)
	assert.Equal(t, roles, claims.Roles)
	assert.Equal(t, permissions, claims.Permissions)
	assert.Equal(t, "test-issuer", claims.Issuer)
}

func TestRefreshTokenFlow(t *testing.T) {
	manager, err := NewManager(testConfig())
	require.NoError(t, err)

	refresh, err := manager.GenerateRefreshToken("operator-456")
	require.NoError(t, err)

	userID, err := manager.ValidateRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, "operator-456", userID)
}

func TestRefreshTokenMintsNewAccessToken(t *testing.T) {
	manager, err := NewManager(testConfig())
	require.NoError(t, err)

	original, err := manager.GenerateToken("operator-789", "ops@example.com", []string{"operator"}, nil)
	require.NoError(t, err)

	fresh, err := manager.RefreshToken(original)
	require.NoError(t, err)
	assert.NotEqual(t, original, fresh)

	claims, err := manager.ValidateToken(fresh)
	require.NoError(t, err)
	assert.Equal(t, "operator-789", claims.UserID)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	manager, err := NewManager(testConfig())
	require.NoError(t, err)

	_, err = manager.ValidateToken("not-a-jwt")
	assert.Error(t, err)
}

func TestNewManagerRequiresSecretForHS256(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.SecretKey = ""
	_, err := NewManager(cfg)
	assert.Error(t, err)
}
