package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/arena-booking-api/internal/models"
	"github.com/noah-isme/arena-booking-api/pkg/config"
	appErrors "github.com/noah-isme/arena-booking-api/pkg/errors"
)

func signStudentToken(t *testing.T, secret string, method jwt.SigningMethod, claims models.StudentClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func portalClaims(issuer string, exp time.Time) models.StudentClaims {
	return models.StudentClaims{
		UserID: "42",
		Name:   "Maria Souza",
		Grade:  "3",
		Class:  "A",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
}

func TestAuthServiceValidateToken(t *testing.T) {
	svc := NewAuthService(config.JWTConfig{Secret: "s3cret", Issuer: "portal"})
	raw := signStudentToken(t, "s3cret", jwt.SigningMethodHS256, portalClaims("portal", time.Now().Add(time.Hour)))

	claims, err := svc.ValidateToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.StudentID())
	assert.Equal(t, "Maria Souza", claims.Name)
	assert.Equal(t, "3", claims.Grade)
}

func TestAuthServiceRejectsInvalidTokens(t *testing.T) {
	svc := NewAuthService(config.JWTConfig{Secret: "s3cret", Issuer: "portal"})
	future := time.Now().Add(time.Hour)

	noIdentity := portalClaims("portal", future)
	noIdentity.UserID = ""

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not-a-jwt",
		"wrong secret": signStudentToken(t, "other", jwt.SigningMethodHS256, portalClaims("portal", future)),
		"wrong issuer": signStudentToken(t, "s3cret", jwt.SigningMethodHS256, portalClaims("elsewhere", future)),
		"expired":      signStudentToken(t, "s3cret", jwt.SigningMethodHS256, portalClaims("portal", time.Now().Add(-time.Minute))),
		"wrong method": signStudentToken(t, "s3cret", jwt.SigningMethodHS512, portalClaims("portal", future)),
		"no identity":  signStudentToken(t, "s3cret", jwt.SigningMethodHS256, noIdentity),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(raw)
			require.Error(t, err)
			assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized))
		})
	}
}
