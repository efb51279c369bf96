package auth

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"transit/internal/roster"
)

const claimsKey = "claims"

// SessionAuth enforces bearer JWT tokens signed with HS256.
func SessionAuth(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "please log in", "code": "NOT_AUTHENTICATED"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired, please log in again", "code": "NOT_AUTHENTICATED"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole aborts with 403 unless the session role is one of roles.
// It must run after SessionAuth.
func RequireRole(roles ...roster.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := SessionFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "please log in", "code": "NOT_AUTHENTICATED"})
			return
		}
		if !slices.Contains(roles, roster.Role(claims.Role)) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not allowed for " + claims.Role, "code": "FORBIDDEN"})
			return
		}
		c.Next()
	}
}

// SessionFrom returns the claims SessionAuth stored on c.
func SessionFrom(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}
