// Package middleware provides the Gin middleware mounted by the admin router.
//
// Ordering is fixed in internal/api/router.go:
//
//	Recovery → RequestID → Metrics → Logger → Security → RateLimit → Auth → Audit → Handler
//
// Security headers run first so they appear on error responses too. Rate limiting runs
// before auth so brute-force attempts are rejected without database work. Audit runs
// after auth so entries carry the staff identity.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dpc-platform/dpc-admin/internal/auth"
	"github.com/dpc-platform/dpc-admin/internal/db/models"
)

const (
	// SessionCookie carries the staff JWT for browser sessions
	SessionCookie = "_dpc_admin_session"

	// Context keys set by AuthMiddleware
	ContextUserID     = "user_id"
	ContextStaffUser  = "staff_user"
	ContextAuthMethod = "auth_method"
)

// StaffLookup loads staff accounts named by session tokens
type StaffLookup interface {
	GetByID(ctx context.Context, id string) (*models.InternalUser, error)
}

// sessionToken returns the bearer token, falling back to the session cookie.
func sessionToken(c *gin.Context) (token, method string, ok bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			return "", "", false
		}
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		return token, "bearer", token != ""
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		return cookie, "cookie", true
	}
	return "", "", false
}

// AuthMiddleware requires a valid staff session on every request it guards
func AuthMiddleware(staff StaffLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, method, ok := sessionToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			slog.Debug("rejected session token", "method", method, "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session"})
			return
		}

		user, err := staff.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			slog.Error("failed to load staff user", "user_id", claims.UserID, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
			return
		}

		c.Set(ContextStaffUser, user)
		c.Set(ContextUserID, user.ID)
		c.Set(ContextAuthMethod, method)
		c.Next()
	}
}

// StaffUser returns the staff member set by AuthMiddleware, if any
func StaffUser(c *gin.Context) *models.InternalUser {
	if v, ok := c.Get(ContextStaffUser); ok {
		if u, ok := v.(*models.InternalUser); ok {
			return u
		}
	}
	return nil
}
