package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/arena-booking-api/internal/middleware"
	"github.com/noah-isme/arena-booking-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.StudentClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.StudentClaims)
	if !ok {
		return nil
	}
	return claims
}

func queryBool(c *gin.Context, key string) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(c.Query(key)))
	return err == nil && value
}
