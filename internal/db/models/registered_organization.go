// Package models - registered_organization.go defines a grant of platform API access to an
// organization in one environment, together with the FHIR endpoint it publishes.
package models

import "time"

// API environments an organization can be registered in.
const (
	APIEnvSandbox    = "sandbox"
	APIEnvProduction = "production"
)

// APIEnvs lists the accepted api_env values in display order.
var APIEnvs = []string{APIEnvSandbox, APIEnvProduction}

// EndpointKind tags which FhirEndpoint variant a registration carries.
type EndpointKind string

const (
	// EndpointDefault is system supplied and never edited by staff.
	EndpointDefault EndpointKind = "default"
	// EndpointEditable carries staff-specified name, status and uri.
	EndpointEditable EndpointKind = "editable"
)

// Endpoint status codes from the FHIR Endpoint resource.
const (
	EndpointStatusActive         = "active"
	EndpointStatusSuspended      = "suspended"
	EndpointStatusError          = "error"
	EndpointStatusOff            = "off"
	EndpointStatusEnteredInError = "entered-in-error"
	EndpointStatusTest           = "test"
)

// EndpointStatuses lists every valid endpoint status.
var EndpointStatuses = []string{
	EndpointStatusActive,
	EndpointStatusSuspended,
	EndpointStatusError,
	EndpointStatusOff,
	EndpointStatusEnteredInError,
	EndpointStatusTest,
}

// RegisteredOrganization represents one organization's access to one API environment
type RegisteredOrganization struct {
	ID             string        `db:"id" json:"id,omitempty"`
	OrganizationID string        `db:"organization_id" json:"organization_id"`
	APIEnv         string        `db:"api_env" json:"api_env"`
	APIID          *string       `db:"api_id" json:"api_id,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
	FhirEndpoint   *FhirEndpoint `db:"-" json:"fhir_endpoint"`
}

// Persisted reports whether the record has been saved.
func (r *RegisteredOrganization) Persisted() bool {
	return r.ID != ""
}

// IsSandbox reports whether the registration targets the sandbox environment.
func (r *RegisteredOrganization) IsSandbox() bool {
	return r.APIEnv == APIEnvSandbox
}

// FhirEndpoint is the endpoint an organization exposes to the platform
type FhirEndpoint struct {
	ID                       string       `db:"id" json:"id,omitempty"`
	RegisteredOrganizationID string       `db:"registered_organization_id" json:"-"`
	Kind                     EndpointKind `db:"kind" json:"kind"`
	Name                     string       `db:"name" json:"name"`
	Status                   string       `db:"status" json:"status"`
	URI                      string       `db:"uri" json:"uri"`
	CreatedAt                time.Time    `db:"created_at" json:"-"`
	UpdatedAt                time.Time    `db:"updated_at" json:"-"`
}

// Editable reports whether staff may change the endpoint's attributes.
func (e *FhirEndpoint) Editable() bool {
	return e != nil && e.Kind == EndpointEditable
}
