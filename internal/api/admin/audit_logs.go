// audit_logs.go implements the read-only audit trail listing.
package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dpc-platform/dpc-admin/internal/db/models"
	"github.com/dpc-platform/dpc-admin/internal/db/repositories"
)

const auditLogsPerPage = 50

// AuditLogLister reads the audit trail
type AuditLogLister interface {
	ListAuditLogs(ctx context.Context, filters repositories.AuditFilters, limit, offset int) ([]*models.AuditLog, int, error)
}

// AuditLogHandlers serves /internal/audit_logs
type AuditLogHandlers struct {
	logs AuditLogLister
}

// NewAuditLogHandlers creates a new AuditLogHandlers instance
func NewAuditLogHandlers(logs AuditLogLister) *AuditLogHandlers {
	return &AuditLogHandlers{logs: logs}
}

// ListHandler lists audit entries, newest first
// GET /internal/audit_logs?user_id=&resource_type=&resource_id=&start_date=&end_date=&page=
func (h *AuditLogHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page := pageParam(c, auditLogsPerPage)

		filters := repositories.AuditFilters{
			UserID:       queryPtr(c, "user_id"),
			ResourceType: queryPtr(c, "resource_type"),
			ResourceID:   queryPtr(c, "resource_id"),
		}
		if t, err := time.Parse(time.DateOnly, c.Query("start_date")); err == nil {
			filters.StartDate = &t
		}
		if t, err := time.Parse(time.DateOnly, c.Query("end_date")); err == nil {
			end := t.AddDate(0, 0, 1).Add(-time.Nanosecond)
			filters.EndDate = &end
		}

		logs, total, err := h.logs.ListAuditLogs(c.Request.Context(), filters, auditLogsPerPage, (page-1)*auditLogsPerPage)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"audit_logs": logs,
			"pagination": gin.H{
				"page":     page,
				"per_page": auditLogsPerPage,
				"total":    total,
			},
		})
	}
}

func queryPtr(c *gin.Context, key string) *string {
	if v := c.Query(key); v != "" {
		return &v
	}
	return nil
}
