// Package models - audit_log.go defines the AuditLog model recording staff changes made
// through the panel: actor, action, affected resource, client IP and free-form metadata.
package models

import "time"

// AuditLog represents an audit log entry for tracking staff actions
type AuditLog struct {
	ID           string                 `json:"id"`
	UserID       *string                `json:"user_id,omitempty"`       // Nullable for system actions
	Action       string                 `json:"action"`                  // "POST /internal/organizations/:id/registered_organizations"
	ResourceType *string                `json:"resource_type,omitempty"` // "registered_organization", "user", "organization"
	ResourceID   *string                `json:"resource_id,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"` // JSONB
	IPAddress    *string                `json:"ip_address,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}
