// Package models - organization.go defines the Organization model, the parent aggregate
// that registered organizations and user assignments hang off.
package models

import "time"

// Organization types shared by organizations and self-reported user records.
const (
	OrgTypePrimaryCareClinic    = "primary_care_clinic"
	OrgTypeSpecialityClinic     = "speciality_clinic"
	OrgTypeMultispecialtyClinic = "multispecialty_clinic"
	OrgTypeInpatientFacility    = "inpatient_facility"
	OrgTypeEmergencyRoom        = "emergency_room"
	OrgTypeUrgentCare           = "urgent_care"
	OrgTypeAcademicFacility     = "academic_facility"
	OrgTypeHealthITVendor       = "health_it_vendor"
	OrgTypeOther                = "other"
)

// Organization represents a provider or vendor organization on the platform
type Organization struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	OrganizationType string    `db:"organization_type" json:"organization_type"`
	NPI              *string   `db:"npi" json:"npi,omitempty"`
	Vendor           *string   `db:"vendor" json:"vendor,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// OrganizationDetail is an organization together with its API environment grants
type OrganizationDetail struct {
	Organization
	RegisteredOrganizations []*RegisteredOrganization `json:"registered_organizations"`
}
