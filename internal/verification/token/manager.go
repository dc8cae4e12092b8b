// Package token issues and validates the short-lived recovery tokens
// that authorize a verification session.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/campusgate/campusgate-backend/pkg/config"
	"github.com/campusgate/campusgate-backend/pkg/errors"
)

// RecoveryClaims represents the recovery token claims. The subject is
// the student's email.
type RecoveryClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
}

const purposeRecovery = "account_recovery"

// Manager handles recovery token operations.
type Manager struct {
	config *config.JWTConfig
}

// NewManager creates a new token manager.
func NewManager(cfg *config.JWTConfig) *Manager {
	return &Manager{config: cfg}
}

// IssueRecoveryToken generates a signed token authorizing a
// verification session for the given email.
func (m *Manager) IssueRecoveryToken(email string) (string, time.Time, error) {
	now := time.Now()
	expiry := now.Add(m.config.RecoveryExpiry)

	claims := RecoveryClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		Email:   email,
		Purpose: purposeRecovery,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiry, nil
}

// ValidateRecoveryToken validates a recovery token and returns the
// claims.
func (m *Manager) ValidateRecoveryToken(tokenString string) (*RecoveryClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RecoveryClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.TokenInvalid()
		}
		return []byte(m.config.Secret), nil
	})

	if err != nil {
		if err.Error() == "token has invalid claims: token is expired" {
			return nil, errors.TokenExpired()
		}
		return nil, errors.TokenInvalid()
	}

	claims, ok := token.Claims.(*RecoveryClaims)
	if !ok || !token.Valid {
		return nil, errors.TokenInvalid()
	}
	if claims.Purpose != purposeRecovery {
		return nil, errors.TokenInvalid()
	}

	return claims, nil
}
