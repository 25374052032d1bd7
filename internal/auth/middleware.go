package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cpravetz/stage7-sub007/internal/common/errors"
)

// claimsKey is the gin.Context key the verified claims are cached under.
const claimsKey = "auth.claims"

// Middleware verifies the bearer token on every request, returning 401 on
// a missing or invalid token and caching the verified claims on the
// request context for downstream handlers.
func Middleware(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			appErr := errors.Unauthorized("missing bearer token")
			c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")

		claims, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			appErr := errors.Unauthorized("invalid bearer token")
			c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// UserID returns the authenticated caller's userId, set by Middleware.
// Returns "" if Middleware was not applied to this route.
func UserID(c *gin.Context) string {
	v, ok := c.Get(claimsKey)
	if !ok {
		return ""
	}
	claims, ok := v.(*Claims)
	if !ok {
		return ""
	}
	return claims.UserID
}
