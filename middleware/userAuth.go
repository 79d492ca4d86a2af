package middleware

import (
	"net/http"
	"strings"

	"xquests/services/identity"
	"xquests/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// bearerToken reads the Authorization header. EventSource clients cannot set
// headers, so the access_token query parameter is accepted as well.
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return c.Query("access_token")
}

func setIdentity(c *gin.Context, id identity.Identity) {
	c.Set("userID", id.UserID)
	c.Set("role", id.Role)
	c.Request = c.Request.WithContext(identity.WithIdentity(c.Request.Context(), id))
}

// JWTAuthUserMiddleware authenticates the caller from a signed token and
// puts its identity on the request context. With optional set, a request
// without any token continues anonymously; a bad token is always rejected.
func JWTAuthUserMiddleware(optional bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			if optional {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Insufficient authorization",
				"code":  0,
			})
			return
		}

		userID, role, err := utils.ExtractClaims(tokenString)
		if err != nil {
			zap.L().Debug("rejected user token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Insufficient authorization",
				"code":  0,
			})
			return
		}

		setIdentity(c, identity.Identity{UserID: userID, Role: role})
		c.Next()
	}
}
