package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

var orgCols = []string{"id", "name", "organization_type", "npi", "vendor", "created_at", "updated_at"}

func sampleOrgRow() *sqlmock.Rows {
	return sqlmock.NewRows(orgCols).
		AddRow("org-1", "Springfield Clinic", "primary_care_clinic", "1234567890", nil, time.Now(), time.Now())
}

func newOrgRepo(t *testing.T) (*OrganizationRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewOrganizationRepository(db), mock
}

func TestOrganizationGetByID_Found(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT .* FROM organizations WHERE id").
		WithArgs("org-1").
		WillReturnRows(sampleOrgRow())

	org, err := repo.GetByID(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if org == nil || org.Name != "Springfield Clinic" {
		t.Fatalf("org = %+v", org)
	}
	if org.NPI == nil || *org.NPI != "1234567890" {
		t.Errorf("NPI = %v", org.NPI)
	}
	if org.Vendor != nil {
		t.Errorf("Vendor = %v, want nil", org.Vendor)
	}
}

func TestOrganizationGetByID_NotFound(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT .* FROM organizations WHERE id").
		WillReturnRows(sqlmock.NewRows(orgCols))

	org, err := repo.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if org != nil {
		t.Error("expected nil, got non-nil")
	}
}

func TestOrganizationGetByID_DBError(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT .* FROM organizations WHERE id").
		WillReturnError(errors.New("db down"))

	if _, err := repo.GetByID(context.Background(), "org-1"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestOrganizationList(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM organizations").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(41))
	mock.ExpectQuery("SELECT .* FROM organizations ORDER BY name LIMIT").
		WithArgs(20, 40).
		WillReturnRows(sampleOrgRow())

	orgs, total, err := repo.List(context.Background(), 20, 40)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 41 || len(orgs) != 1 {
		t.Errorf("total=%d len=%d, want 41/1", total, len(orgs))
	}
}

func TestOrganizationExistingIDs(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT id FROM organizations WHERE id = ANY").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("org-1"))

	found, err := repo.ExistingIDs(context.Background(), []string{"org-1", "org-2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(found) != 1 || found[0] != "org-1" {
		t.Errorf("found = %v, want [org-1]", found)
	}
}

func TestOrganizationExistingIDs_EmptyInputSkipsQuery(t *testing.T) {
	repo, mock := newOrgRepo(t)
	found, err := repo.ExistingIDs(context.Background(), nil)
	if err != nil || found != nil {
		t.Errorf("ExistingIDs(nil) = %v, %v", found, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
