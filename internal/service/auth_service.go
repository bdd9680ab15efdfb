package service

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/arena-booking-api/internal/models"
	"github.com/noah-isme/arena-booking-api/pkg/config"
	appErrors "github.com/noah-isme/arena-booking-api/pkg/errors"
)

// AuthService validates access tokens issued by the student portal.
// Tokens are never minted here; the portal owns login.
type AuthService struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(cfg config.JWTConfig) *AuthService {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &AuthService{secret: []byte(cfg.Secret), issuer: cfg.Issuer, parser: jwt.NewParser(opts...)}
}

// ValidateToken parses and validates a JWT string returning its claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.StudentClaims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing token")
	}

	token, err := s.parser.ParseWithClaims(tokenString, &models.StudentClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.StudentClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.StudentID() == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token has no student identity")
	}

	return claims, nil
}
