package validation

import (
	"net/url"
	"slices"

	"github.com/dpc-platform/dpc-admin/internal/db/models"
)

// Registered organization messages.
const (
	// MsgInvalidURI is reported when an editable endpoint uri is not an absolute http(s) URL.
	MsgInvalidURI = "must be a valid URI"
	// MsgImmutable is reported when an update tries to move a grant to another environment.
	MsgImmutable = "cannot be changed"
)

// ValidateRegisteredOrganization runs every registered organization rule, including the
// nested endpoint, and returns the accumulated failures. Uniqueness of
// (organization_id, api_env) needs the database and is checked by the caller.
func ValidateRegisteredOrganization(ro *models.RegisteredOrganization) *Errors {
	errs := &Errors{}

	if blank(ro.OrganizationID) {
		errs.Add("organization_id", MsgBlank)
	}
	if blank(ro.APIEnv) {
		errs.Add("api_env", MsgBlank)
	} else if !slices.Contains(models.APIEnvs, ro.APIEnv) {
		errs.Add("api_env", MsgNotIncluded)
	}

	if ro.FhirEndpoint == nil {
		errs.Add("fhir_endpoint", MsgBlank)
		return errs
	}
	errs.Merge(ValidateFhirEndpoint(ro.FhirEndpoint))

	return errs
}

// ValidateFhirEndpoint checks an endpoint's attributes. Default endpoints carry
// system-supplied values and are trusted.
func ValidateFhirEndpoint(ep *models.FhirEndpoint) *Errors {
	errs := &Errors{}
	if !ep.Editable() {
		return errs
	}

	if blank(ep.Name) {
		errs.Add("fhir_endpoint.name", MsgBlank)
	}
	if blank(ep.Status) {
		errs.Add("fhir_endpoint.status", MsgBlank)
	} else if !slices.Contains(models.EndpointStatuses, ep.Status) {
		errs.Add("fhir_endpoint.status", MsgNotIncluded)
	}
	if blank(ep.URI) {
		errs.Add("fhir_endpoint.uri", MsgBlank)
	} else if !validHTTPURI(ep.URI) {
		errs.Add("fhir_endpoint.uri", MsgInvalidURI)
	}

	return errs
}

func validHTTPURI(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
