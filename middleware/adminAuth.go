package middleware

import (
	"net/http"

	"xquests/services/identity"
	"xquests/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const staticAdminID = "admin"

// JWTAuthAdminMiddleware admits a token carrying the admin role, or the
// static admin token whose bcrypt hash is adminTokenHash.
func JWTAuthAdminMiddleware(adminTokenHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}

		if sub, role, err := utils.ExtractClaims(tokenString); err == nil {
			if role != identity.RoleAdmin {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Unauthorized admin access"})
				return
			}
			setIdentity(c, identity.Identity{UserID: sub, Role: identity.RoleAdmin})
			c.Set("isAdmin", true)
			c.Next()
			return
		}

		if adminTokenHash == "" || bcrypt.CompareHashAndPassword([]byte(adminTokenHash), []byte(tokenString)) != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized admin access"})
			return
		}

		setIdentity(c, identity.Identity{UserID: staticAdminID, Role: identity.RoleAdmin})
		c.Set("isAdmin", true)
		c.Next()
	}
}
