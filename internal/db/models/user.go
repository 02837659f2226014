// Package models - user.go defines the platform User record maintained by staff through
// the user directory, plus the internal staff account used to sign in to the panel.
package models

import (
	"strings"
	"time"
)

// User represents a platform user account and its self-reported practice details
type User struct {
	ID               string    `db:"id" json:"id"`
	FirstName        string    `db:"first_name" json:"first_name"`
	LastName         string    `db:"last_name" json:"last_name"`
	Email            string    `db:"email" json:"email"`
	Organization     string    `db:"organization" json:"organization"`
	OrganizationType string    `db:"organization_type" json:"organization_type"`
	NumProviders     *int      `db:"num_providers" json:"num_providers"`
	Address1         string    `db:"address_1" json:"address_1"`
	Address2         string    `db:"address_2" json:"address_2"`
	City             string    `db:"city" json:"city"`
	State            string    `db:"state" json:"state"`
	Zip              string    `db:"zip" json:"zip"`
	AgreeToTerms     bool      `db:"agree_to_terms" json:"agree_to_terms"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`

	// OrganizationIDs are the organizations the user is assigned to.
	OrganizationIDs []string `db:"-" json:"organization_ids"`
}

// Name returns the user's display name.
func (u *User) Name() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsVendor reports whether the user registered on behalf of a health IT vendor.
func (u *User) IsVendor() bool {
	return u.OrganizationType == OrgTypeHealthITVendor
}

// InternalUser is a staff account that signs in to the admin panel through SSO
type InternalUser struct {
	ID        string     `db:"id" json:"id"`
	Email     string     `db:"email" json:"email"`
	Name      string     `db:"name" json:"name"`
	OIDCSub   *string    `db:"oidc_sub" json:"-"`
	LastLogin *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}
