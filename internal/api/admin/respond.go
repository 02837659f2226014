// Package admin implements the /internal staff panel handlers. Handlers translate HTTP
// requests into workflow calls and workflow Outcomes back into HTTP responses.
package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dpc-platform/dpc-admin/internal/middleware"
	"github.com/dpc-platform/dpc-admin/internal/services"
)

// FlashCookie carries a one-time message from a redirect to the page it lands on.
const FlashCookie = "_dpc_admin_flash"

const flashMaxAge = 60

// Cookies holds the attributes shared by every cookie the panel sets
type Cookies struct {
	Secure bool
}

func (k Cookies) set(c *gin.Context, name, value, path string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, path, "", k.Secure, true)
}

func (k Cookies) setFlash(c *gin.Context, flash *services.Flash) {
	raw, err := json.Marshal(flash)
	if err != nil {
		return
	}
	k.set(c, FlashCookie, string(raw), "/", flashMaxAge)
}

// consumeFlash returns the pending flash, if any, and clears it.
func (k Cookies) consumeFlash(c *gin.Context) *services.Flash {
	raw, err := c.Cookie(FlashCookie)
	if err != nil || raw == "" {
		return nil
	}
	k.set(c, FlashCookie, "", "/", -1)

	var flash services.Flash
	if err := json.Unmarshal([]byte(raw), &flash); err != nil || flash.Message == "" {
		return nil
	}
	return &flash
}

// writeOutcome delivers a workflow outcome. Redirects answer 303 with the flash in a
// cookie; renders answer 200, or 422 after a rejected write; files are attachments.
func (k Cookies) writeOutcome(c *gin.Context, out *services.Outcome) {
	if out.ResourceID != "" {
		c.Set(middleware.AuditResourceIDKey, out.ResourceID)
	}

	switch out.Kind {
	case services.OutcomeRedirect:
		body := gin.H{"location": out.Location}
		if out.Flash != nil {
			k.setFlash(c, out.Flash)
			body[out.Flash.Level] = out.Flash.Message
		}
		c.Header("Location", out.Location)
		c.JSON(http.StatusSeeOther, body)

	case services.OutcomeRender:
		body := gin.H{"template": out.Template}
		if out.Layout != "" {
			body["layout"] = out.Layout
		}
		if out.APIEnv != "" {
			body["api_env"] = out.APIEnv
		}
		body[modelKey(out.Template)] = out.Model
		for key, value := range out.State {
			body[key] = value
		}

		flash := out.Flash
		if flash == nil {
			flash = k.consumeFlash(c)
		}
		if flash != nil {
			body[flash.Level] = flash.Message
		}

		status := http.StatusOK
		if out.Failed() {
			status = http.StatusUnprocessableEntity
			body["errors"] = out.Errors
		}
		c.JSON(status, body)

	case services.OutcomeFile:
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.File.Name))
		c.Data(http.StatusOK, out.File.ContentType, out.File.Body)

	default:
		writeError(c, fmt.Errorf("unknown outcome kind %d", out.Kind))
	}
}

// modelKey names the model in a rendered body after the template's resource, e.g.
// "users/index" renders "users" and "users/show" renders "user".
func modelKey(template string) string {
	resource, view, _ := strings.Cut(template, "/")
	if view == "index" {
		return resource
	}
	return strings.TrimSuffix(resource, "s")
}

// writeError answers 404 for missing records and 500 for everything else.
func writeError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	slog.Error("request failed",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"request_id", c.GetString(middleware.RequestIDKey),
		"error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

// bindRoot decodes the object under root into dst. A missing, null or empty root answers
// 400 and returns false. Fields dst does not declare are ignored.
func bindRoot(c *gin.Context, root string, dst any) bool {
	var body map[string]json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body must be a JSON object"})
		return false
	}

	raw, ok := body[root]
	if !ok || string(raw) == "null" || string(raw) == "{}" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "param is missing or the value is empty: " + root})
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s: %v", root, err)})
		return false
	}
	return true
}

// pageParam reads ?page=. Missing or invalid values give 1, and large values are capped so
// the row offset fits a Postgres int4.
func pageParam(c *gin.Context, perPage int) int {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		return 1
	}
	if maxPage := math.MaxInt32/perPage + 1; page > maxPage {
		return maxPage
	}
	return page
}
