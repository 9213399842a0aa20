package middleware

import (
	"net/http"
	"strings"

	"github.com/TheGojiOG/athena/internal/auth"
	"github.com/gin-gonic/gin"
)

const accessTokenCookieName = "athena_access"

// Context keys set by Auth.
const (
	ClaimsKey   = "claims"
	OperatorKey = "operator"
)

// Auth middleware validates operator bearer tokens. With enabled=false every
// request runs as an anonymous operator holding the operate scope.
func Auth(jwtManager *auth.JWTManager, enabled bool) gin.HandlerFunc {
	anonymous := &auth.Claims{Operator: "anonymous", Scopes: []string{auth.ScopeOperate}}

	return func(c *gin.Context) {
		if !enabled || jwtManager == nil {
			c.Set(ClaimsKey, anonymous)
			c.Set(OperatorKey, anonymous.Operator)
			c.Next()
			return
		}

		// header, then cookie, then query (websocket clients cannot set headers)
		authHeader := c.GetHeader("Authorization")
		token := ""
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
				c.Abort()
				return
			}
			token = parts[1]
		}

		if token == "" {
			if cookie, err := c.Cookie(accessTokenCookieName); err == nil && cookie != "" {
				token = cookie
			}
		}

		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		claims, err := jwtManager.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(OperatorKey, claims.Operator)

		c.Next()
	}
}

// RequireScope rejects requests whose token does not grant scope.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(ClaimsKey)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Operator not authenticated"})
			c.Abort()
			return
		}

		claims, ok := value.(*auth.Claims)
		if !ok || !claims.HasScope(scope) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient scope"})
			c.Abort()
			return
		}

		c.Next()
	}
}
