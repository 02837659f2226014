// user_repository.go implements UserRepository: directory search, single-record reads and
// writes including organization assignments, and a streaming cursor for CSV exports.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/dpc-platform/dpc-admin/internal/db/models"
)

// Organization-type scopes accepted by Search.
const (
	UserScopeAll        = "all"
	UserScopeVendor     = "vendor"
	UserScopeProvider   = "provider"
	UserScopeAssigned   = "assigned"
	UserScopeUnassigned = "unassigned"
)

// UserScopes lists the accepted scope values.
var UserScopes = []string{UserScopeAll, UserScopeVendor, UserScopeProvider, UserScopeAssigned, UserScopeUnassigned}

// UserSearch holds directory search criteria. Zero values disable a filter.
type UserSearch struct {
	Keyword       string
	Scope         string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
	Offset        int
}

// UserRepository handles database operations for platform users
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `users.id, users.first_name, users.last_name, users.email, users.organization,
	users.organization_type, users.num_providers, users.address_1, users.address_2, users.city,
	users.state, users.zip, users.agree_to_terms, users.created_at, users.updated_at`

// GetUserByID retrieves a user by ID with their organization assignments
func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE users.id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.OrganizationIDs = make([]string, 0)
	err = r.db.SelectContext(ctx, &user.OrganizationIDs,
		`SELECT organization_id FROM organization_user_assignments WHERE user_id = $1 ORDER BY created_at`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user organizations: %w", err)
	}

	return &user, nil
}

// EmailTaken reports whether another user (not excludeID) already uses email, case-insensitively
func (r *UserRepository) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($1) AND id::text <> $2)`

	var taken bool
	if err := r.db.GetContext(ctx, &taken, query, email, excludeID); err != nil {
		return false, fmt.Errorf("failed to check email uniqueness: %w", err)
	}
	return taken, nil
}

// likeEscaper makes LIKE wildcards in user input match literally
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// searchWhere builds the WHERE clause shared by the count and page queries
func searchWhere(s UserSearch) (string, []interface{}) {
	where := ` WHERE 1=1`
	args := make([]interface{}, 0)
	paramIndex := 1

	if kw := strings.TrimSpace(s.Keyword); kw != "" {
		where += fmt.Sprintf(` AND (users.first_name ILIKE $%[1]d ESCAPE '\' OR users.last_name ILIKE $%[1]d ESCAPE '\'
			OR users.email ILIKE $%[1]d ESCAPE '\' OR users.organization ILIKE $%[1]d ESCAPE '\'
			OR (users.first_name || ' ' || users.last_name) ILIKE $%[1]d ESCAPE '\')`,
			paramIndex)
		args = append(args, "%"+likeEscaper.Replace(kw)+"%")
		paramIndex++
	}

	switch s.Scope {
	case UserScopeVendor:
		where += fmt.Sprintf(` AND users.organization_type = $%d`, paramIndex)
		args = append(args, models.OrgTypeHealthITVendor)
		paramIndex++
	case UserScopeProvider:
		where += fmt.Sprintf(` AND users.organization_type <> $%d`, paramIndex)
		args = append(args, models.OrgTypeHealthITVendor)
		paramIndex++
	case UserScopeAssigned:
		where += ` AND EXISTS (SELECT 1 FROM organization_user_assignments a WHERE a.user_id = users.id)`
	case UserScopeUnassigned:
		where += ` AND NOT EXISTS (SELECT 1 FROM organization_user_assignments a WHERE a.user_id = users.id)`
	}

	if s.CreatedAfter != nil {
		where += fmt.Sprintf(` AND users.created_at >= $%d`, paramIndex)
		args = append(args, *s.CreatedAfter)
		paramIndex++
	}
	if s.CreatedBefore != nil {
		where += fmt.Sprintf(` AND users.created_at < $%d`, paramIndex)
		args = append(args, *s.CreatedBefore)
	}

	return where, args
}

// Search returns one page of users matching the criteria, newest first, plus the total match count
func (r *UserRepository) Search(ctx context.Context, s UserSearch) ([]*models.User, int, error) {
	where, args := searchWhere(s)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users` + where +
		fmt.Sprintf(` ORDER BY users.created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, s.Limit, s.Offset)

	users := make([]*models.User, 0)
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to search users: %w", err)
	}

	return users, total, nil
}

// Each streams every user to fn in creation order without loading the table into memory.
// Iteration stops at the first error returned by fn.
func (r *UserRepository) Each(ctx context.Context, fn func(*models.User) error) error {
	rows, err := r.db.QueryxContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY users.created_at, users.id`)
	if err != nil {
		return fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var user models.User
		if err := rows.StructScan(&user); err != nil {
			return fmt.Errorf("failed to scan user: %w", err)
		}
		if err := fn(&user); err != nil {
			return err
		}
	}
	return rows.Err()
}

// UpdateUser writes every user column. When replaceOrganizations is set the user's
// organization assignments are replaced with user.OrganizationIDs in the same transaction.
func (r *UserRepository) UpdateUser(ctx context.Context, user *models.User, replaceOrganizations bool) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	err = tx.QueryRowxContext(ctx, `
		UPDATE users SET
			first_name = $1, last_name = $2, email = $3, organization = $4, organization_type = $5,
			num_providers = $6, address_1 = $7, address_2 = $8, city = $9, state = $10, zip = $11,
			agree_to_terms = $12, updated_at = NOW()
		WHERE id = $13
		RETURNING updated_at
	`,
		user.FirstName,
		user.LastName,
		user.Email,
		user.Organization,
		user.OrganizationType,
		user.NumProviders,
		user.Address1,
		user.Address2,
		user.City,
		user.State,
		user.Zip,
		user.AgreeToTerms,
		user.ID,
	).Scan(&user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("failed to update user: %w", err)
		}
		return translate("update user", err)
	}

	if replaceOrganizations {
		if _, err := tx.ExecContext(ctx, `DELETE FROM organization_user_assignments WHERE user_id = $1`, user.ID); err != nil {
			return fmt.Errorf("failed to clear user organizations: %w", err)
		}
		if len(user.OrganizationIDs) > 0 {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO organization_user_assignments (organization_id, user_id)
				SELECT UNNEST($1::uuid[]), $2
			`, pq.Array(user.OrganizationIDs), user.ID)
			if err != nil {
				return translate("assign user organizations", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user update: %w", err)
	}
	return nil
}
