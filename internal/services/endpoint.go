package services

import (
	"github.com/dpc-platform/dpc-admin/internal/config"
	"github.com/dpc-platform/dpc-admin/internal/db/models"
)

// BuildEndpoint returns the endpoint variant for apiEnv. Sandbox registrations get the
// system default endpoint described by sandbox; every other environment gets a blank
// editable endpoint for staff to fill in.
func BuildEndpoint(apiEnv string, sandbox config.SandboxEndpointConfig) *models.FhirEndpoint {
	if apiEnv == models.APIEnvSandbox {
		return &models.FhirEndpoint{
			Kind:   models.EndpointDefault,
			Name:   sandbox.Name,
			Status: sandbox.Status,
			URI:    sandbox.URI,
		}
	}
	return &models.FhirEndpoint{Kind: models.EndpointEditable}
}

// FhirEndpointAttributes are the endpoint fields staff may submit
type FhirEndpointAttributes struct {
	ID     *string `json:"id"`
	Status *string `json:"status"`
	URI    *string `json:"uri"`
	Name   *string `json:"name"`
}

// apply copies submitted attributes onto an editable endpoint. Default endpoints are
// left untouched.
func (a *FhirEndpointAttributes) apply(ep *models.FhirEndpoint) {
	if a == nil || !ep.Editable() {
		return
	}
	if a.Name != nil {
		ep.Name = *a.Name
	}
	if a.Status != nil {
		ep.Status = *a.Status
	}
	if a.URI != nil {
		ep.URI = *a.URI
	}
}
