// security.go provides the response-hardening middleware: protective headers on every
// response and CORS for the panel front end.
package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dpc-platform/dpc-admin/internal/config"
)

// SecurityHeadersConfig holds the header values applied to every response
type SecurityHeadersConfig struct {
	// EnableHSTS sends Strict-Transport-Security; only meaningful behind TLS
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	FrameOptionsValue     string
	ContentSecurityPolicy string
	ReferrerPolicy        string
	PermissionsPolicy     string
}

// PanelSecurityHeadersConfig returns headers for the JSON panel API. HSTS follows TLS.
func PanelSecurityHeadersConfig(sec config.SecurityConfig) SecurityHeadersConfig {
	return SecurityHeadersConfig{
		EnableHSTS:            sec.TLS.Enabled,
		HSTSMaxAge:            31536000, // 1 year
		HSTSIncludeSubdomains: true,
		FrameOptionsValue:     "DENY",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
		PermissionsPolicy:     "geolocation=(), microphone=(), camera=()",
	}
}

// SecurityHeadersMiddleware adds the configured headers to all responses
func SecurityHeadersMiddleware(cfg SecurityHeadersConfig) gin.HandlerFunc {
	hsts := ""
	if cfg.EnableHSTS {
		hsts = "max-age=" + strconv.Itoa(cfg.HSTSMaxAge)
		if cfg.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
	}

	return func(c *gin.Context) {
		if hsts != "" {
			c.Header("Strict-Transport-Security", hsts)
		}
		if cfg.FrameOptionsValue != "" {
			c.Header("X-Frame-Options", cfg.FrameOptionsValue)
		}
		c.Header("X-Content-Type-Options", "nosniff")
		if cfg.ContentSecurityPolicy != "" {
			c.Header("Content-Security-Policy", cfg.ContentSecurityPolicy)
		}
		if cfg.ReferrerPolicy != "" {
			c.Header("Referrer-Policy", cfg.ReferrerPolicy)
		}
		if cfg.PermissionsPolicy != "" {
			c.Header("Permissions-Policy", cfg.PermissionsPolicy)
		}
		c.Header("Cross-Origin-Opener-Policy", "same-origin")
		c.Header("Cross-Origin-Resource-Policy", "same-origin")
		// Exports carry personal data.
		c.Header("Cache-Control", "no-store")

		c.Next()
	}
}

// CORSMiddleware answers preflight requests and reflects allowed origins. Credentials
// are allowed so the session cookie travels with cross-origin panel requests; the
// request origin is echoed rather than "*" for that reason.
func CORSMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	methods := strings.Join(cfg.AllowedMethods, ", ")
	if methods == "" {
		methods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	}
	wildcard := slices.Contains(cfg.AllowedOrigins, "*")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (wildcard || slices.Contains(cfg.AllowedOrigins, origin)) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, Content-Disposition")
			c.Header("Access-Control-Max-Age", "3600")
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
