package admin

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/dpc-platform/dpc-admin/internal/db/models"
)

func newOrganizationRouter(orgs *fakeOrgs, regs *fakeRegistrations, perPage int) *gin.Engine {
	h := NewOrganizationHandlers(orgs, regs, func() int { return perPage }, Cookies{})

	r := gin.New()
	r.GET("/internal/organizations", h.ListHandler())
	r.GET("/internal/organizations/:id", h.ShowHandler())
	return r
}

func TestOrganizationListHandler_Paginates(t *testing.T) {
	orgs := newFakeOrgs(
		&models.Organization{ID: orgID, Name: "Acme"},
		&models.Organization{ID: otherID, Name: "Beta"},
	)
	r := newOrganizationRouter(orgs, newFakeRegistrations(), 1)

	w := serve(r, http.MethodGet, "/internal/organizations?page=2", nil)
	expectStatus(t, w, http.StatusOK)

	body := decode(t, w)
	list, _ := body["organizations"].([]any)
	if len(list) != 1 {
		t.Fatalf("organizations = %v, want one", body["organizations"])
	}
	if name := list[0].(map[string]any)["name"]; name != "Beta" {
		t.Errorf("page 2 organization = %v, want Beta", name)
	}

	pagination, _ := body["pagination"].(map[string]any)
	if pagination["total"] != float64(2) || pagination["total_pages"] != float64(2) {
		t.Errorf("pagination = %v, want total 2 over 2 pages", pagination)
	}
}

func TestOrganizationListHandler_HugePageStaysEmpty(t *testing.T) {
	r := newOrganizationRouter(newFakeOrgs(sampleOrg()), newFakeRegistrations(), 25)

	w := serve(r, http.MethodGet, "/internal/organizations?page=9223372036854775807", nil)
	expectStatus(t, w, http.StatusOK)
	if list, _ := decode(t, w)["organizations"].([]any); len(list) != 0 {
		t.Errorf("organizations = %v, want none past the last page", list)
	}
}

func TestOrganizationShowHandler(t *testing.T) {
	regs := newFakeRegistrations(existingProduction())
	r := newOrganizationRouter(newFakeOrgs(sampleOrg()), regs, 25)

	raw := url.QueryEscape(`{"level":"notice","message":"Access to sandbox enabled."}`)
	w := serve(r, http.MethodGet, "/internal/organizations/"+orgID, nil, &http.Cookie{Name: FlashCookie, Value: raw})
	expectStatus(t, w, http.StatusOK)

	body := decode(t, w)
	if body["notice"] != "Access to sandbox enabled." {
		t.Errorf("notice = %v", body["notice"])
	}
	org, _ := body["organization"].(map[string]any)
	if org["name"] != "Acme Clinic" {
		t.Errorf("organization name = %v", org["name"])
	}
	if regs, _ := org["registered_organizations"].([]any); len(regs) != 1 {
		t.Errorf("registered_organizations = %v, want one", org["registered_organizations"])
	}

	cleared := responseCookie(w, FlashCookie)
	if cleared == nil || cleared.MaxAge >= 0 {
		t.Errorf("flash cookie = %v, want it cleared", cleared)
	}
}

func TestOrganizationShowHandler_NotFound(t *testing.T) {
	r := newOrganizationRouter(newFakeOrgs(sampleOrg()), newFakeRegistrations(), 25)

	for _, id := range []string{otherID, "42"} {
		if w := serve(r, http.MethodGet, "/internal/organizations/"+id, nil); w.Code != http.StatusNotFound {
			t.Errorf("GET organization %s status = %d, want 404", id, w.Code)
		}
	}
}
