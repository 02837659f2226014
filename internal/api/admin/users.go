// users.go implements the user directory handlers: search, CSV download, show and edit.
package admin

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dpc-platform/dpc-admin/internal/services"
)

const userRoot = "user"

// UserHandlers serves /internal/users
type UserHandlers struct {
	directory *services.UserDirectory
	cookies   Cookies
}

// NewUserHandlers creates a new UserHandlers instance
func NewUserHandlers(directory *services.UserDirectory, cookies Cookies) *UserHandlers {
	return &UserHandlers{directory: directory, cookies: cookies}
}

// IndexHandler searches the directory
// GET /internal/users?keyword=&org_type=&created_after=&created_before=&page=
func (h *UserHandlers) IndexHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))

		out, err := h.directory.Search(c.Request.Context(), services.SearchParams{
			Keyword:       c.Query("keyword"),
			OrgType:       c.Query("org_type"),
			CreatedAfter:  c.Query("created_after"),
			CreatedBefore: c.Query("created_before"),
			Page:          page,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		h.cookies.writeOutcome(c, out)
	}
}

// DownloadHandler sends every user as CSV
// GET /internal/users/download
func (h *UserHandlers) DownloadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := h.directory.DownloadCSV(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		h.cookies.writeOutcome(c, out)
	}
}

// ShowHandler displays one user
// GET /internal/users/:id
func (h *UserHandlers) ShowHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := h.directory.Show(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		h.cookies.writeOutcome(c, out)
	}
}

// EditHandler renders one user for editing
// GET /internal/users/:id/edit
func (h *UserHandlers) EditHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := h.directory.Edit(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		h.cookies.writeOutcome(c, out)
	}
}

// UpdateHandler saves permitted user fields
// PUT|PATCH /internal/users/:id
func (h *UserHandlers) UpdateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload services.UserPayload
		if !bindRoot(c, userRoot, &payload) {
			return
		}

		out, err := h.directory.Update(c.Request.Context(), c.Param("id"), payload)
		if err != nil {
			writeError(c, err)
			return
		}
		h.cookies.writeOutcome(c, out)
	}
}
