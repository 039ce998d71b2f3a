package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fairdinkum/course-backend/internal/auth"
	"github.com/fairdinkum/course-backend/pkg/response"
)

// ContextAdminEmail is the key for the authenticated admin email in gin context.
const ContextAdminEmail = "admin_email"

// JWT returns a middleware that validates an admin bearer token.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "unauthorized", "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "unauthorized", "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "unauthorized", "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextAdminEmail, claims.Email)
		c.Next()
	}
}
