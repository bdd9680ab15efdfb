package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/arena-booking-api/internal/models"
	"github.com/noah-isme/arena-booking-api/internal/repository"
	appErrors "github.com/noah-isme/arena-booking-api/pkg/errors"
	"github.com/noah-isme/arena-booking-api/pkg/logger"
	"github.com/noah-isme/arena-booking-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

type tokenValidator interface {
	ValidateToken(tokenString string) (*models.StudentClaims, error)
}

// JWT protects routes by requiring a valid portal access token. The raw token is forwarded
// on the request context so calls to the academic-records service act as the student.
func JWT(validator tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing or invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(raw)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Set(logger.UserKey, claims.StudentID())
		c.Request = c.Request.WithContext(repository.WithBearerToken(c.Request.Context(), raw))
		c.Next()
	}
}

func bearer(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
