package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-enroll-api/internal/authz"
	"github.com/noah-isme/campus-enroll-api/internal/middleware"
	"github.com/noah-isme/campus-enroll-api/internal/models"
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

// actorFromContext builds the authorization actor from verified JWT claims.
// Identity never comes from request payloads.
func actorFromContext(c *gin.Context) (authz.Actor, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		return authz.Actor{}, false
	}
	return authz.Actor{
		AccountID: claims.UserID,
		Role:      claims.Role,
		ProfileID: claims.ProfileID,
	}, true
}
