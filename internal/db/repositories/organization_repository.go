// organization_repository.go implements OrganizationRepository, providing read access to
// organizations and the id checks used when assigning users to them.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/dpc-platform/dpc-admin/internal/db/models"
)

// OrganizationRepository handles database operations for organizations
type OrganizationRepository struct {
	db *sql.DB
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *sql.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

const organizationColumns = `id, name, organization_type, npi, vendor, created_at, updated_at`

func scanOrganization(row interface{ Scan(...any) error }, org *models.Organization) error {
	return row.Scan(
		&org.ID,
		&org.Name,
		&org.OrganizationType,
		&org.NPI,
		&org.Vendor,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
}

// GetByID retrieves an organization by ID
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE id = $1`

	org := &models.Organization{}
	err := scanOrganization(r.db.QueryRowContext(ctx, query, id), org)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return org, nil
}

// List returns one page of organizations ordered by name, plus the total count
func (r *OrganizationRepository) List(ctx context.Context, limit, offset int) ([]*models.Organization, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM organizations`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count organizations: %w", err)
	}

	query := `SELECT ` + organizationColumns + ` FROM organizations ORDER BY name LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	orgs := make([]*models.Organization, 0)
	for rows.Next() {
		org := &models.Organization{}
		if err := scanOrganization(rows, org); err != nil {
			return nil, 0, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}

	return orgs, total, rows.Err()
}

// ExistingIDs returns the subset of ids that name an existing organization
func (r *OrganizationRepository) ExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id FROM organizations WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to check organization ids: %w", err)
	}
	defer rows.Close()

	found := make([]string, 0, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan organization id: %w", err)
		}
		found = append(found, id)
	}

	return found, rows.Err()
}
