package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dpc-platform/dpc-admin/internal/db/models"
	"github.com/dpc-platform/dpc-admin/internal/db/repositories"
)

const (
	orgID   = "6f1c2f4e-8a43-4a4b-9c55-0b1d2e3f4a5b"
	otherID = "0a9b8c7d-6e5f-4a3b-8c2d-1e0f9a8b7c6d"
	roID    = "3c4d5e6f-7a8b-4c9d-8e0f-1a2b3c4d5e6f"
	userID  = "9e8d7c6b-5a4f-4e3d-9c2b-1a0f9e8d7c6b"
)

// fakeOrgs is an in-memory organization table.
type fakeOrgs struct {
	orgs map[string]*models.Organization
}

func newFakeOrgs(orgs ...*models.Organization) *fakeOrgs {
	f := &fakeOrgs{orgs: map[string]*models.Organization{}}
	for _, o := range orgs {
		f.orgs[o.ID] = o
	}
	return f
}

func (f *fakeOrgs) GetByID(_ context.Context, id string) (*models.Organization, error) {
	return f.orgs[id], nil
}

func (f *fakeOrgs) List(_ context.Context, limit, offset int) ([]*models.Organization, int, error) {
	all := make([]*models.Organization, 0, len(f.orgs))
	for _, o := range f.orgs {
		all = append(all, o)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	if offset > len(all) {
		offset = len(all)
	}
	end := min(offset+limit, len(all))
	return all[offset:end], len(all), nil
}

func (f *fakeOrgs) ExistingIDs(_ context.Context, ids []string) ([]string, error) {
	var found []string
	for _, id := range ids {
		if _, ok := f.orgs[id]; ok {
			found = append(found, id)
		}
	}
	return found, nil
}

// fakeRegistrations is an in-memory registered_organizations table.
type fakeRegistrations struct {
	mu        sync.Mutex
	rows      map[string]*models.RegisteredOrganization
	deleteErr error
}

func newFakeRegistrations(rows ...*models.RegisteredOrganization) *fakeRegistrations {
	f := &fakeRegistrations{rows: map[string]*models.RegisteredOrganization{}}
	for _, r := range rows {
		f.rows[r.ID] = r
	}
	return f
}

func (f *fakeRegistrations) GetByOrganizationAndID(_ context.Context, org, id string) (*models.RegisteredOrganization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rows[id]; ok && r.OrganizationID == org {
		cp := *r
		if r.FhirEndpoint != nil {
			ep := *r.FhirEndpoint
			cp.FhirEndpoint = &ep
		}
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeRegistrations) ListByOrganization(_ context.Context, org string) ([]*models.RegisteredOrganization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.RegisteredOrganization{}
	for _, r := range f.rows {
		if r.OrganizationID == org {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRegistrations) ExistsForEnv(_ context.Context, org, env, exclude string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.OrganizationID == org && r.APIEnv == env && r.ID != exclude {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRegistrations) Create(_ context.Context, ro *models.RegisteredOrganization) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ro.ID = roID
	f.rows[ro.ID] = ro
	return nil
}

func (f *fakeRegistrations) Update(_ context.Context, ro *models.RegisteredOrganization) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[ro.ID] = ro
	return nil
}

func (f *fakeRegistrations) Delete(_ context.Context, org, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	if r, ok := f.rows[id]; ok && r.OrganizationID == org {
		delete(f.rows, id)
		return true, nil
	}
	return false, nil
}

// fakeUsers is an in-memory users table.
type fakeUsers struct {
	users []*models.User
	saved *models.User
}

func (f *fakeUsers) GetUserByID(_ context.Context, id string) (*models.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) EmailTaken(_ context.Context, email, exclude string) (bool, error) {
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) && u.ID != exclude {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUsers) Search(_ context.Context, s repositories.UserSearch) ([]*models.User, int, error) {
	return f.users, len(f.users), nil
}

func (f *fakeUsers) Each(_ context.Context, fn func(*models.User) error) error {
	for _, u := range f.users {
		if err := fn(u); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeUsers) UpdateUser(_ context.Context, u *models.User, _ bool) error {
	f.saved = u
	return nil
}

func sampleOrg() *models.Organization {
	return &models.Organization{ID: orgID, Name: "Acme Clinic", OrganizationType: models.OrgTypePrimaryCareClinic}
}

func sampleUser() *models.User {
	n := 3
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.User{
		ID: userID, FirstName: "Ann", LastName: "Lee", Email: "ann@example.com",
		Organization: "Acme", OrganizationType: models.OrgTypePrimaryCareClinic, NumProviders: &n,
		Address1: "1 Main", City: "Springfield", State: "IL", Zip: "62701", AgreeToTerms: true,
		CreatedAt: now, UpdatedAt: now,
	}
}

// serve runs one request; body is JSON-encoded when not nil.
func serve(r *gin.Engine, method, target string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, w.Body.String())
	}
	return body
}

func responseCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, ck := range w.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

// expectStatus stops the test when the response status is not want.
func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, want, w.Body.String())
	}
}
