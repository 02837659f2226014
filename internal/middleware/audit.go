package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dpc-platform/dpc-admin/internal/audit"
	"github.com/dpc-platform/dpc-admin/internal/config"
	"github.com/dpc-platform/dpc-admin/internal/db/models"
	"github.com/dpc-platform/dpc-admin/internal/safego"
)

// AuditResourceIDKey lets a handler name the record it created when the route carries
// no id, e.g. a new registered organization.
const AuditResourceIDKey = "audit_resource_id"

const auditTimeout = 5 * time.Second

// AuditRecorder persists audit entries
type AuditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuditMiddleware records staff actions after the handler has run. Entries are written
// to recorder and forwarded to shipper in the background; either may be nil. A nil cfg
// records successful mutating requests only.
func AuditMiddleware(recorder AuditRecorder, shipper audit.Shipper, cfg *config.AuditConfig) gin.HandlerFunc {
	logReads, logFailures := false, false
	if cfg != nil {
		logReads, logFailures = cfg.LogReadOperations, cfg.LogFailedRequests
	}

	return func(c *gin.Context) {
		c.Next()

		method := c.Request.Method
		if method == http.MethodOptions || method == http.MethodHead {
			return
		}
		if method == http.MethodGet && !logReads {
			return
		}
		status := c.Writer.Status()
		if status >= http.StatusBadRequest && !logFailures {
			return
		}

		// Everything the goroutine needs is read here; gin reuses the context.
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		resourceType := resourceTypeFor(route)
		entry := audit.LogEntry{
			Timestamp:    time.Now().UTC(),
			Action:       method + " " + route,
			UserID:       c.GetString(ContextUserID),
			ResourceType: resourceType,
			ResourceID:   resourceIDFor(c, resourceType),
			IPAddress:    c.ClientIP(),
			StatusCode:   status,
			RequestID:    c.GetString(RequestIDKey),
			Metadata: map[string]any{
				"path":        c.Request.URL.Path,
				"auth_method": c.GetString(ContextAuthMethod),
			},
		}

		ctx, cancel := safego.Detached(c.Request.Context(), auditTimeout)
		safego.Go("audit log", func() {
			defer cancel()
			writeAudit(ctx, recorder, shipper, entry)
		})
	}
}

func writeAudit(ctx context.Context, recorder AuditRecorder, shipper audit.Shipper, entry audit.LogEntry) {
	if recorder != nil {
		if err := recorder.CreateAuditLog(ctx, toAuditLog(entry)); err != nil {
			slog.Error("failed to write audit log", "action", entry.Action, "request_id", entry.RequestID, "error", err)
		}
	}
	if shipper != nil {
		if err := shipper.Ship(ctx, &entry); err != nil {
			slog.Warn("failed to ship audit log", "action", entry.Action, "request_id", entry.RequestID, "error", err)
		}
	}
}

func toAuditLog(e audit.LogEntry) *models.AuditLog {
	metadata := make(map[string]any, len(e.Metadata)+2)
	for k, v := range e.Metadata {
		metadata[k] = v
	}
	metadata["status_code"] = e.StatusCode
	if e.RequestID != "" {
		metadata["request_id"] = e.RequestID
	}

	return &models.AuditLog{
		UserID:       optional(e.UserID),
		Action:       e.Action,
		ResourceType: optional(e.ResourceType),
		ResourceID:   optional(e.ResourceID),
		Metadata:     metadata,
		IPAddress:    optional(e.IPAddress),
		CreatedAt:    e.Timestamp,
	}
}

// resourceTypeFor maps a route template to the most specific resource it addresses.
func resourceTypeFor(route string) string {
	switch {
	case strings.Contains(route, "/registered_organizations"):
		return "registered_organization"
	case strings.Contains(route, "/users"):
		return "user"
	case strings.Contains(route, "/organizations"):
		return "organization"
	case strings.Contains(route, "/auth/"):
		return "session"
	}
	return ""
}

func resourceIDFor(c *gin.Context, resourceType string) string {
	if id := c.GetString(AuditResourceIDKey); id != "" {
		return id
	}
	switch resourceType {
	case "registered_organization":
		return c.Param("ro_id")
	case "user", "organization":
		return c.Param("id")
	}
	return ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
