// Package middleware provides gin middleware for the HTTP and websocket
// surface.
package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/goatkit/goatchat/internal/apierrors"
	"github.com/goatkit/goatchat/internal/config"
)

// Context keys set by Identity. Handlers never trust client-supplied
// identity fields in request bodies; these are the only source of truth.
const (
	CtxUserID   = "user_id"
	CtxUserName = "user_name"
	CtxUserRole = "user_role"
)

// Roles recognized on the chat surface.
const (
	RoleContact = "contact"
	RoleAgent   = "agent"
	RoleAdmin   = "admin"
)

// identityClaims is the JWT claim set issued by the account service.
type identityClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Identity authenticates the request and stores the caller's identity in
// the gin context. Tokens are accepted from the Authorization header, the
// session cookie, or the token query parameter (websocket clients cannot
// set headers from the browser).
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			if setDevIdentity(c) {
				c.Next()
				return
			}
			apierrors.Error(c, apierrors.CodeUnauthorized)
			c.Abort()
			return
		}

		secret := jwtSecret()
		if secret == "" {
			apierrors.Error(c, apierrors.CodeServiceUnavailable)
			c.Abort()
			return
		}

		claims := &identityClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !parsed.Valid || claims.Subject == "" {
			apierrors.Error(c, apierrors.CodeInvalidToken)
			c.Abort()
			return
		}

		role := claims.Role
		if role == "" {
			role = RoleContact
		}
		c.Set(CtxUserID, claims.Subject)
		c.Set(CtxUserName, claims.Name)
		c.Set(CtxUserRole, role)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not in the allowed set. Admins
// pass every check.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(CtxUserRole)
		if role == RoleAdmin {
			c.Next()
			return
		}
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		apierrors.Error(c, apierrors.CodeForbidden)
		c.Abort()
	}
}

func extractToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if cookie, err := c.Cookie("goatchat_token"); err == nil && cookie != "" {
		return cookie
	}
	return c.Query("token")
}

func jwtSecret() string {
	if cfg := config.Get(); cfg != nil {
		return cfg.Auth.JWTSecret
	}
	return ""
}

// setDevIdentity accepts identity headers when no JWT secret is configured.
// Development and tests only; a configured secret disables this path.
func setDevIdentity(c *gin.Context) bool {
	if jwtSecret() != "" {
		return false
	}
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		return false
	}
	role := c.GetHeader("X-User-Role")
	if role == "" {
		role = RoleContact
	}
	c.Set(CtxUserID, userID)
	c.Set(CtxUserName, c.GetHeader("X-User-Name"))
	c.Set(CtxUserRole, role)
	return true
}
