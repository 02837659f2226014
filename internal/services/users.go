package services

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dpc-platform/dpc-admin/internal/db/models"
	"github.com/dpc-platform/dpc-admin/internal/db/repositories"
	"github.com/dpc-platform/dpc-admin/internal/export"
	"github.com/dpc-platform/dpc-admin/internal/safego"
	"github.com/dpc-platform/dpc-admin/internal/telemetry"
	"github.com/dpc-platform/dpc-admin/internal/validation"
)

const (
	dateParam      = "2006-01-02"
	csvContentType = "text/csv"

	archiveTimeout = 2 * time.Minute
)

// UserStore reads and writes platform users
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	EmailTaken(ctx context.Context, email, excludeID string) (bool, error)
	Search(ctx context.Context, s repositories.UserSearch) ([]*models.User, int, error)
	Each(ctx context.Context, fn func(*models.User) error) error
	UpdateUser(ctx context.Context, user *models.User, replaceOrganizations bool) error
}

// OrganizationChecker reports which organization ids exist
type OrganizationChecker interface {
	ExistingIDs(ctx context.Context, ids []string) ([]string, error)
}

// SearchParams are the raw directory query parameters
type SearchParams struct {
	Keyword       string
	OrgType       string
	CreatedAfter  string
	CreatedBefore string
	Page          int
}

// UserPayload is the permitted subset of a submitted user. A nil OrganizationIDs leaves
// the user's assignments untouched; an empty slice clears them.
type UserPayload struct {
	FirstName       *string   `json:"first_name"`
	LastName        *string   `json:"last_name"`
	Email           *string   `json:"email"`
	OrganizationIDs *[]string `json:"organization_ids"`
}

// UserDirectory lists, edits and exports platform users
type UserDirectory struct {
	users    UserStore
	orgs     OrganizationChecker
	archiver *export.Archiver
	perPage  atomic.Int64
	now      func() time.Time
}

// NewUserDirectory creates a directory paging perPage users at a time. archiver may be
// nil to skip archiving downloads.
func NewUserDirectory(users UserStore, orgs OrganizationChecker, perPage int, archiver *export.Archiver) *UserDirectory {
	d := &UserDirectory{users: users, orgs: orgs, archiver: archiver, now: time.Now}
	d.SetPerPage(perPage)
	return d
}

// SetPerPage changes the page size; values below 1 are ignored
func (d *UserDirectory) SetPerPage(n int) {
	if n >= 1 {
		d.perPage.Store(int64(n))
	}
}

// PerPage returns the current page size
func (d *UserDirectory) PerPage() int {
	return int(d.perPage.Load())
}

// Search returns one page of users matching params, newest first
func (d *UserDirectory) Search(ctx context.Context, params SearchParams) (*Outcome, error) {
	perPage := d.PerPage()
	page := params.Page
	if page < 1 {
		page = 1
	}
	// Keep the row offset within a Postgres int4.
	if maxPage := math.MaxInt32/perPage + 1; page > maxPage {
		page = maxPage
	}

	scope := params.OrgType
	if !slices.Contains(repositories.UserScopes, scope) {
		scope = repositories.UserScopeAll
	}

	search := repositories.UserSearch{
		Keyword: strings.TrimSpace(params.Keyword),
		Scope:   scope,
		Limit:   perPage,
		Offset:  (page - 1) * perPage,
	}
	if t, ok := parseDate(params.CreatedAfter); ok {
		search.CreatedAfter = &t
	}
	if t, ok := parseDate(params.CreatedBefore); ok {
		// The named day is included.
		end := t.AddDate(0, 0, 1)
		search.CreatedBefore = &end
	}

	users, total, err := d.users.Search(ctx, search)
	if err != nil {
		return nil, err
	}

	out := render(TemplateUsersIndex, users)
	out.Layout = LayoutTableIndex
	out.State["page"] = page
	out.State["per_page"] = perPage
	out.State["total"] = total
	out.State["total_pages"] = (total + perPage - 1) / perPage
	out.State["keyword"] = search.Keyword
	out.State["org_type"] = scope
	out.State["created_after"] = params.CreatedAfter
	out.State["created_before"] = params.CreatedBefore
	return out, nil
}

// Show loads a user for display
func (d *UserDirectory) Show(ctx context.Context, id string) (*Outcome, error) {
	user, err := d.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return render(TemplateUserShow, user), nil
}

// Edit loads a user for editing
func (d *UserDirectory) Edit(ctx context.Context, id string) (*Outcome, error) {
	user, err := d.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return render(TemplateUserEdit, user), nil
}

// Update applies payload to a user and saves it
func (d *UserDirectory) Update(ctx context.Context, id string, payload UserPayload) (*Outcome, error) {
	user, err := d.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if payload.FirstName != nil {
		user.FirstName = *payload.FirstName
	}
	if payload.LastName != nil {
		user.LastName = *payload.LastName
	}
	if payload.Email != nil {
		user.Email = *payload.Email
	}
	replaceOrganizations := payload.OrganizationIDs != nil
	if replaceOrganizations {
		user.OrganizationIDs = uniqueIDs(*payload.OrganizationIDs)
	}

	errs, err := d.Save(ctx, user, replaceOrganizations)
	if err != nil {
		telemetry.UserUpdatesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if !errs.Empty() {
		telemetry.UserUpdatesTotal.WithLabelValues("invalid").Inc()
		slog.Info("user update rejected", "user_id", user.ID, "errors", errs.Error())

		out := render(TemplateUserEdit, user)
		out.Errors = errs
		out.Flash = alert("Please correct errors: %s", errs.Error())
		return out, nil
	}

	telemetry.UserUpdatesTotal.WithLabelValues("success").Inc()
	slog.Info("user updated", "user_id", user.ID, "organizations_replaced", replaceOrganizations)
	return redirect(UserPath(user.ID), notice("User successfully updated.")), nil
}

// Save normalizes, validates and, when valid, persists user. Validation failures are
// returned as the Errors bag; the error return is reserved for infrastructure failures.
func (d *UserDirectory) Save(ctx context.Context, user *models.User, replaceOrganizations bool) (*validation.Errors, error) {
	validation.NormalizeUser(user)
	errs := validation.ValidateUser(user)

	if len(errs.On("email")) == 0 {
		taken, err := d.users.EmailTaken(ctx, user.Email, user.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			errs.Add("email", validation.MsgTaken)
		}
	}

	if replaceOrganizations {
		known, err := d.knownOrganizations(ctx, user.OrganizationIDs)
		if err != nil {
			return nil, err
		}
		if !known {
			errs.Add("organizations", validation.MsgUnknownOrganization)
		}
	}

	if !errs.Empty() {
		return errs, nil
	}

	err := d.users.UpdateUser(ctx, user, replaceOrganizations)
	if errors.Is(err, repositories.ErrDuplicate) {
		errs.Add("email", validation.MsgTaken)
		return errs, nil
	}
	if errors.Is(err, repositories.ErrReferenced) {
		errs.Add("organizations", validation.MsgUnknownOrganization)
		return errs, nil
	}
	if err != nil {
		return nil, err
	}
	return errs, nil
}

// DownloadCSV renders the whole directory as a CSV attachment and, when configured,
// archives a copy in the background.
func (d *UserDirectory) DownloadCSV(ctx context.Context) (*Outcome, error) {
	exp, err := export.Build(ctx, d.users, d.now())
	if err != nil {
		return nil, err
	}

	telemetry.UserExportsTotal.WithLabelValues("download").Inc()
	telemetry.UserExportRows.Set(float64(exp.Rows))
	slog.Info("user export downloaded", "rows", exp.Rows, "filename", exp.Filename)

	if d.archiver != nil {
		archiveCtx, cancel := safego.Detached(ctx, archiveTimeout)
		safego.Go("archive user export", func() {
			defer cancel()
			if _, err := d.archiver.Archive(archiveCtx, exp); err != nil {
				slog.Error("failed to archive user export", "filename", exp.Filename, "error", err)
			}
		})
	}

	return &Outcome{
		Kind: OutcomeFile,
		File: &File{Name: exp.Filename, ContentType: csvContentType, Body: exp.Data},
	}, nil
}

func (d *UserDirectory) find(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, notFound("user", id)
	}
	user, err := d.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, notFound("user", id)
	}
	return user, nil
}

func (d *UserDirectory) knownOrganizations(ctx context.Context, ids []string) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false, nil
		}
	}
	found, err := d.orgs.ExistingIDs(ctx, ids)
	if err != nil {
		return false, err
	}
	return len(found) == len(ids), nil
}

// uniqueIDs drops blanks and duplicates, keeping first-seen order.
func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(dateParam, s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
