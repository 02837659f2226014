// registered_organizations.go implements the handlers that enable, edit and disable an
// organization's access to an API environment.
package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/dpc-platform/dpc-admin/internal/services"
)

const registrationRoot = "registered_organization"

// RegistrationHandlers serves /internal/organizations/:id/registered_organizations
type RegistrationHandlers struct {
	workflow *services.RegistrationWorkflow
	cookies  Cookies
}

// NewRegistrationHandlers creates a new RegistrationHandlers instance
func NewRegistrationHandlers(workflow *services.RegistrationWorkflow, cookies Cookies) *RegistrationHandlers {
	return &RegistrationHandlers{workflow: workflow, cookies: cookies}
}

// NewHandler renders an unsaved registration for ?api_env=
// GET /internal/organizations/:id/registered_organizations/new
func (h *RegistrationHandlers) NewHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := h.workflow.PrepareNew(c.Request.Context(), c.Param("id"), c.Query("api_env"))
		if err != nil {
			writeError(c, err)
			return
		}
		h.cookies.writeOutcome(c, out)
	}
}

// CreateHandler enables access to an environment
// POST /internal/organizations/:id/registered_organizations
func (h *RegistrationHandlers) CreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload services.RegistrationPayload
		if !bindRoot(c, registrationRoot, &payload) {
			return
		}

		out, err := h.workflow.Create(c.Request.Context(), c.Param("id"), payload, c.Query("api_env"))
		if err != nil {
			writeError(c, err)
			return
		}
		h.cookies.writeOutcome(c, out)
	}
}

// EditHandler renders an existing registration for editing
// GET /internal/organizations/:id/registered_organizations/:ro_id/edit
func (h *RegistrationHandlers) EditHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := h.workflow.PrepareEdit(c.Request.Context(), c.Param("id"), c.Param("ro_id"))
		if err != nil {
			writeError(c, err)
			return
		}
		h.cookies.writeOutcome(c, out)
	}
}

// UpdateHandler edits a registration's endpoint
// PUT|PATCH /internal/organizations/:id/registered_organizations/:ro_id
func (h *RegistrationHandlers) UpdateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload services.RegistrationPayload
		if !bindRoot(c, registrationRoot, &payload) {
			return
		}

		out, err := h.workflow.Update(c.Request.Context(), c.Param("id"), c.Param("ro_id"), payload)
		if err != nil {
			writeError(c, err)
			return
		}
		h.cookies.writeOutcome(c, out)
	}
}

// DestroyHandler revokes access
// DELETE /internal/organizations/:id/registered_organizations/:ro_id
func (h *RegistrationHandlers) DestroyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := h.workflow.Destroy(c.Request.Context(), c.Param("id"), c.Param("ro_id"))
		if err != nil {
			writeError(c, err)
			return
		}
		h.cookies.writeOutcome(c, out)
	}
}
