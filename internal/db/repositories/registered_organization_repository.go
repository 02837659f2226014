// registered_organization_repository.go implements RegisteredOrganizationRepository. A
// registered organization and its FHIR endpoint are always written in one transaction.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/dpc-platform/dpc-admin/internal/db/models"
)

// RegisteredOrganizationRepository handles database operations for registered organizations
type RegisteredOrganizationRepository struct {
	db *sqlx.DB
}

// NewRegisteredOrganizationRepository creates a new registered organization repository
func NewRegisteredOrganizationRepository(db *sqlx.DB) *RegisteredOrganizationRepository {
	return &RegisteredOrganizationRepository{db: db}
}

const (
	registeredOrgColumns = `id, organization_id, api_env, api_id, created_at, updated_at`
	endpointColumns      = `id, registered_organization_id, kind, name, status, uri, created_at, updated_at`
)

// GetByOrganizationAndID retrieves a registered organization scoped to its parent organization.
// Returns (nil, nil) when no such record belongs to the organization.
func (r *RegisteredOrganizationRepository) GetByOrganizationAndID(ctx context.Context, orgID, id string) (*models.RegisteredOrganization, error) {
	query := `SELECT ` + registeredOrgColumns + ` FROM registered_organizations WHERE id = $1 AND organization_id = $2`

	var ro models.RegisteredOrganization
	err := r.db.GetContext(ctx, &ro, query, id, orgID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get registered organization: %w", err)
	}

	var ep models.FhirEndpoint
	err = r.db.GetContext(ctx, &ep, `SELECT `+endpointColumns+` FROM fhir_endpoints WHERE registered_organization_id = $1`, ro.ID)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, fmt.Errorf("failed to get fhir endpoint: %w", err)
	default:
		ro.FhirEndpoint = &ep
	}

	return &ro, nil
}

// ListByOrganization returns every registered organization of an organization with endpoints attached
func (r *RegisteredOrganizationRepository) ListByOrganization(ctx context.Context, orgID string) ([]*models.RegisteredOrganization, error) {
	query := `SELECT ` + registeredOrgColumns + ` FROM registered_organizations WHERE organization_id = $1 ORDER BY api_env`

	regs := make([]*models.RegisteredOrganization, 0)
	if err := r.db.SelectContext(ctx, &regs, query, orgID); err != nil {
		return nil, fmt.Errorf("failed to list registered organizations: %w", err)
	}
	if len(regs) == 0 {
		return regs, nil
	}

	ids := make([]string, len(regs))
	byID := make(map[string]*models.RegisteredOrganization, len(regs))
	for i, ro := range regs {
		ids[i] = ro.ID
		byID[ro.ID] = ro
	}

	var endpoints []*models.FhirEndpoint
	err := r.db.SelectContext(ctx, &endpoints,
		`SELECT `+endpointColumns+` FROM fhir_endpoints WHERE registered_organization_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list fhir endpoints: %w", err)
	}
	for _, ep := range endpoints {
		if ro, ok := byID[ep.RegisteredOrganizationID]; ok {
			ro.FhirEndpoint = ep
		}
	}

	return regs, nil
}

// ExistsForEnv reports whether the organization already holds a registration for apiEnv,
// ignoring the record with excludeID (pass "" when creating).
func (r *RegisteredOrganizationRepository) ExistsForEnv(ctx context.Context, orgID, apiEnv, excludeID string) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM registered_organizations
		WHERE organization_id = $1 AND api_env = $2 AND ($3 = '' OR id::text <> $3)
	)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, orgID, apiEnv, excludeID); err != nil {
		return false, fmt.Errorf("failed to check registered organization uniqueness: %w", err)
	}
	return exists, nil
}

// Create inserts a registered organization and its endpoint atomically
func (r *RegisteredOrganizationRepository) Create(ctx context.Context, ro *models.RegisteredOrganization) error {
	if ro.FhirEndpoint == nil {
		return fmt.Errorf("failed to create registered organization: missing fhir endpoint")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO registered_organizations (organization_id, api_env, api_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`, ro.OrganizationID, ro.APIEnv, ro.APIID).Scan(&ro.ID, &ro.CreatedAt, &ro.UpdatedAt)
	if err != nil {
		return translate("create registered organization", err)
	}

	ep := ro.FhirEndpoint
	ep.RegisteredOrganizationID = ro.ID
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO fhir_endpoints (registered_organization_id, kind, name, status, uri)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, ep.RegisteredOrganizationID, ep.Kind, ep.Name, ep.Status, ep.URI).Scan(&ep.ID, &ep.CreatedAt, &ep.UpdatedAt)
	if err != nil {
		return translate("create fhir endpoint", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit registered organization: %w", err)
	}
	return nil
}

// Update writes a registered organization and its endpoint atomically. api_env and
// organization_id are never changed here.
func (r *RegisteredOrganizationRepository) Update(ctx context.Context, ro *models.RegisteredOrganization) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	err = tx.QueryRowxContext(ctx, `
		UPDATE registered_organizations
		SET api_id = $1, updated_at = NOW()
		WHERE id = $2 AND organization_id = $3
		RETURNING updated_at
	`, ro.APIID, ro.ID, ro.OrganizationID).Scan(&ro.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("failed to update registered organization: %w", err)
		}
		return translate("update registered organization", err)
	}

	if ep := ro.FhirEndpoint; ep != nil {
		err = tx.QueryRowxContext(ctx, `
			UPDATE fhir_endpoints
			SET name = $1, status = $2, uri = $3, updated_at = NOW()
			WHERE registered_organization_id = $4
			RETURNING id, updated_at
		`, ep.Name, ep.Status, ep.URI, ro.ID).Scan(&ep.ID, &ep.UpdatedAt)
		if err != nil {
			return translate("update fhir endpoint", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit registered organization: %w", err)
	}
	return nil
}

// Delete removes a registered organization (its endpoint cascades). It reports false
// when no matching row existed.
func (r *RegisteredOrganizationRepository) Delete(ctx context.Context, orgID, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM registered_organizations WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		return false, translate("delete registered organization", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return n > 0, nil
}
