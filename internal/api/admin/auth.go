// auth.go implements staff single sign-on: the OIDC login redirect, the callback that
// opens a panel session, and logout.
package admin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dpc-platform/dpc-admin/internal/auth"
	"github.com/dpc-platform/dpc-admin/internal/auth/oidc"
	"github.com/dpc-platform/dpc-admin/internal/db/models"
	"github.com/dpc-platform/dpc-admin/internal/middleware"
)

const (
	// StateCookie binds an OIDC callback to the browser that started the login.
	StateCookie = "_dpc_admin_oauth_state"

	statePath   = "/internal/auth"
	stateMaxAge = 300

	// landingPath is where a fresh session lands.
	landingPath = "/internal/organizations"
)

// Authenticator runs the authorization code flow against the identity provider
type Authenticator interface {
	AuthURL(state string) string
	Authenticate(ctx context.Context, code string) (*oidc.Identity, error)
}

// StaffStore records staff members on sign-in
type StaffStore interface {
	UpsertFromOIDC(ctx context.Context, oidcSub, email, name string) (*models.InternalUser, error)
}

// AuthHandlers serves /internal/auth
type AuthHandlers struct {
	provider   Authenticator
	staff      StaffStore
	sessionTTL time.Duration
	cookies    Cookies
}

// NewAuthHandlers creates a new AuthHandlers instance. provider may be nil when single
// sign-on is disabled; login then answers 503.
func NewAuthHandlers(provider Authenticator, staff StaffStore, sessionTTL time.Duration, cookies Cookies) *AuthHandlers {
	if sessionTTL <= 0 {
		sessionTTL = auth.DefaultSessionTTL
	}
	return &AuthHandlers{provider: provider, staff: staff, sessionTTL: sessionTTL, cookies: cookies}
}

// generateState returns a random URL-safe state value
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// LoginHandler redirects the browser to the identity provider
// GET /internal/auth/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.provider == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Single sign-on is not configured"})
			return
		}

		state, err := generateState()
		if err != nil {
			writeError(c, err)
			return
		}

		h.cookies.set(c, StateCookie, state, statePath, stateMaxAge)
		c.Redirect(http.StatusFound, h.provider.AuthURL(state))
	}
}

// CallbackHandler completes sign-in and sets the session cookie
// GET /internal/auth/callback?code=&state=
func (h *AuthHandlers) CallbackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.provider == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Single sign-on is not configured"})
			return
		}

		expected, _ := c.Cookie(StateCookie)
		h.cookies.set(c, StateCookie, "", statePath, -1)

		state := c.Query("state")
		if expected == "" || subtle.ConstantTimeCompare([]byte(state), []byte(expected)) != 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid state parameter. Please try logging in again."})
			return
		}
		if idpErr := c.Query("error"); idpErr != "" {
			slog.Warn("identity provider returned an error", "error", idpErr, "description", c.Query("error_description"))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign-in was not completed"})
			return
		}
		code := c.Query("code")
		if code == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing authorization code"})
			return
		}

		identity, err := h.provider.Authenticate(c.Request.Context(), code)
		if errors.Is(err, oidc.ErrDomainNotAllowed) {
			c.JSON(http.StatusForbidden, gin.H{"error": "This account is not permitted to use the admin panel"})
			return
		}
		if err != nil {
			slog.Warn("staff sign-in failed", "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication failed"})
			return
		}

		user, err := h.staff.UpsertFromOIDC(c.Request.Context(), identity.Subject, identity.Email, identity.Name)
		if err != nil {
			writeError(c, err)
			return
		}

		token, err := auth.GenerateJWT(user.ID, user.Email, user.Name, h.sessionTTL)
		if err != nil {
			writeError(c, err)
			return
		}

		// Names the staff member in the access log and audit trail.
		c.Set(middleware.ContextUserID, user.ID)
		slog.Info("staff signed in", "user_id", user.ID, "email", user.Email)

		h.cookies.set(c, middleware.SessionCookie, token, "/", int(h.sessionTTL.Seconds()))
		c.Redirect(http.StatusFound, landingPath)
	}
}

// LogoutHandler clears the session cookie
// POST /internal/auth/logout
func (h *AuthHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.cookies.set(c, middleware.SessionCookie, "", "/", -1)
		c.JSON(http.StatusOK, gin.H{"notice": "Signed out."})
	}
}
