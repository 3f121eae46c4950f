package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/classpulse/classpulse-api/internal/middleware"
	"github.com/classpulse/classpulse-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// teacherID resolves the authenticated tenant from the request context; an
// empty string means the JWT middleware did not run.
func teacherID(c *gin.Context) string {
	claims := claimsFromContext(c)
	if claims == nil {
		return ""
	}
	return claims.UserID
}
