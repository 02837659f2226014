// organizations.go implements the organization list and the organization detail view that
// registration workflows redirect to.
package admin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dpc-platform/dpc-admin/internal/db/models"
)

// OrganizationReader lists and loads organizations
type OrganizationReader interface {
	GetByID(ctx context.Context, id string) (*models.Organization, error)
	List(ctx context.Context, limit, offset int) ([]*models.Organization, int, error)
}

// RegistrationLister loads an organization's registrations with their endpoints
type RegistrationLister interface {
	ListByOrganization(ctx context.Context, orgID string) ([]*models.RegisteredOrganization, error)
}

// OrganizationHandlers serves /internal/organizations
type OrganizationHandlers struct {
	orgs          OrganizationReader
	registrations RegistrationLister
	perPage       func() int
	cookies       Cookies
}

// NewOrganizationHandlers creates a new OrganizationHandlers instance. perPage is read on
// every request so reloaded page sizes apply immediately.
func NewOrganizationHandlers(orgs OrganizationReader, registrations RegistrationLister, perPage func() int, cookies Cookies) *OrganizationHandlers {
	return &OrganizationHandlers{orgs: orgs, registrations: registrations, perPage: perPage, cookies: cookies}
}

// ListHandler lists organizations by name
// GET /internal/organizations?page=
func (h *OrganizationHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		perPage := h.perPage()
		page := pageParam(c, perPage)

		orgs, total, err := h.orgs.List(c.Request.Context(), perPage, (page-1)*perPage)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"organizations": orgs,
			"pagination": gin.H{
				"page":        page,
				"per_page":    perPage,
				"total":       total,
				"total_pages": (total + perPage - 1) / perPage,
			},
		})
	}
}

// ShowHandler returns an organization with its registrations and the pending flash
// GET /internal/organizations/:id
func (h *OrganizationHandlers) ShowHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := uuid.Parse(id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "organization " + id + " not found"})
			return
		}

		org, err := h.orgs.GetByID(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		if org == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "organization " + id + " not found"})
			return
		}

		registrations, err := h.registrations.ListByOrganization(c.Request.Context(), org.ID)
		if err != nil {
			writeError(c, err)
			return
		}

		body := gin.H{
			"organization": models.OrganizationDetail{Organization: *org, RegisteredOrganizations: registrations},
			"api_envs":     models.APIEnvs,
		}
		if flash := h.cookies.consumeFlash(c); flash != nil {
			body[flash.Level] = flash.Message
		}
		c.JSON(http.StatusOK, body)
	}
}
