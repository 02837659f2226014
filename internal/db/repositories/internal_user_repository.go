// internal_user_repository.go implements InternalUserRepository for the staff accounts that
// sign in to the panel through single sign-on.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/dpc-platform/dpc-admin/internal/db/models"
)

// InternalUserRepository handles database operations for staff accounts
type InternalUserRepository struct {
	db *sqlx.DB
}

// NewInternalUserRepository creates a new internal user repository
func NewInternalUserRepository(db *sqlx.DB) *InternalUserRepository {
	return &InternalUserRepository{db: db}
}

const internalUserColumns = `id, email, name, oidc_sub, last_login, created_at, updated_at`

// GetByID retrieves a staff account by ID
func (r *InternalUserRepository) GetByID(ctx context.Context, id string) (*models.InternalUser, error) {
	var u models.InternalUser
	err := r.db.GetContext(ctx, &u, `SELECT `+internalUserColumns+` FROM internal_users WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get internal user: %w", err)
	}
	return &u, nil
}

// UpsertFromOIDC finds the staff account for an SSO subject, creating it on first sign-in,
// and records the login. Email and name are refreshed from the identity provider.
func (r *InternalUserRepository) UpsertFromOIDC(ctx context.Context, oidcSub, email, name string) (*models.InternalUser, error) {
	query := `
		INSERT INTO internal_users (email, name, oidc_sub, last_login)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (oidc_sub) DO UPDATE
			SET email = EXCLUDED.email, name = EXCLUDED.name, last_login = NOW(), updated_at = NOW()
		RETURNING ` + internalUserColumns

	var u models.InternalUser
	if err := r.db.GetContext(ctx, &u, query, email, name, oidcSub); err != nil {
		return nil, translate("upsert internal user", err)
	}
	return &u, nil
}
