package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusgate/campusgate-backend/pkg/config"
	"github.com/campusgate/campusgate-backend/pkg/errors"
)

func testManager(expiry time.Duration) *Manager {
	return NewManager(&config.JWTConfig{
		Secret:         "test-secret-at-least-32-bytes!!!",
		RecoveryExpiry: expiry,
		Issuer:         "campusgate-test",
	})
}

func TestManager_IssueAndValidate(t *testing.T) {
	m := testManager(15 * time.Minute)

	signed, expiry, err := m.IssueRecoveryToken("student@example.edu")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiry, 5*time.Second)

	claims, err := m.ValidateRecoveryToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "student@example.edu", claims.Email)
	assert.Equal(t, "student@example.edu", claims.Subject)
	assert.Equal(t, "campusgate-test", claims.Issuer)
}

func TestManager_ExpiredToken(t *testing.T) {
	m := testManager(-time.Minute)

	signed, _, err := m.IssueRecoveryToken("student@example.edu")
	require.NoError(t, err)

	_, err = m.ValidateRecoveryToken(signed)
	require.Error(t, err)
	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "TOKEN_EXPIRED", appErr.Code)
}

func TestManager_WrongSecret(t *testing.T) {
	signed, _, err := testManager(15 * time.Minute).IssueRecoveryToken("student@example.edu")
	require.NoError(t, err)

	other := NewManager(&config.JWTConfig{
		Secret:         "a-completely-different-secret!!!",
		RecoveryExpiry: 15 * time.Minute,
		Issuer:         "campusgate-test",
	})

	_, err = other.ValidateRecoveryToken(signed)
	require.Error(t, err)
	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "TOKEN_INVALID", appErr.Code)
}

func TestManager_WrongPurpose(t *testing.T) {
	m := testManager(15 * time.Minute)

	claims := RecoveryClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "student@example.edu",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email:   "student@example.edu",
		Purpose: "password_reset",
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte("test-secret-at-least-32-bytes!!!"))
	require.NoError(t, err)

	_, err = m.ValidateRecoveryToken(signed)
	assert.Error(t, err)
}

func TestManager_Garbage(t *testing.T) {
	m := testManager(15 * time.Minute)

	_, err := m.ValidateRecoveryToken("not.a.token")
	assert.Error(t, err)
}
