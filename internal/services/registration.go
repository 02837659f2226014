package services

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dpc-platform/dpc-admin/internal/config"
	"github.com/dpc-platform/dpc-admin/internal/db/models"
	"github.com/dpc-platform/dpc-admin/internal/db/repositories"
	"github.com/dpc-platform/dpc-admin/internal/events"
	"github.com/dpc-platform/dpc-admin/internal/safego"
	"github.com/dpc-platform/dpc-admin/internal/telemetry"
	"github.com/dpc-platform/dpc-admin/internal/validation"
)

// OrganizationFinder loads parent organizations
type OrganizationFinder interface {
	GetByID(ctx context.Context, id string) (*models.Organization, error)
}

// RegistrationStore persists registered organizations together with their endpoint
type RegistrationStore interface {
	GetByOrganizationAndID(ctx context.Context, orgID, id string) (*models.RegisteredOrganization, error)
	ExistsForEnv(ctx context.Context, orgID, apiEnv, excludeID string) (bool, error)
	Create(ctx context.Context, ro *models.RegisteredOrganization) error
	Update(ctx context.Context, ro *models.RegisteredOrganization) error
	Delete(ctx context.Context, orgID, id string) (bool, error)
}

// RegistrationPayload is the permitted subset of a submitted registered organization.
// Any other submitted field is ignored.
type RegistrationPayload struct {
	APIEnv                 *string                 `json:"api_env"`
	OrganizationID         *string                 `json:"organization_id"`
	FhirEndpointAttributes *FhirEndpointAttributes `json:"fhir_endpoint_attributes"`
}

// publishTimeout bounds delivery of one registration event.
const publishTimeout = 30 * time.Second

// Registration actions, used as the metric action label.
const (
	actionEnable  = "enable"
	actionUpdate  = "update"
	actionDisable = "disable"
)

// RegistrationWorkflow grants, edits and revokes an organization's access to an API environment
type RegistrationWorkflow struct {
	orgs          OrganizationFinder
	registrations RegistrationStore
	sandbox       config.SandboxEndpointConfig
	publisher     events.Publisher
	eventsBackend string

	// dispatch runs event publishing off the request path.
	dispatch func(task string, fn func())
}

// NewRegistrationWorkflow creates a workflow. publisher may be nil to disable events.
func NewRegistrationWorkflow(orgs OrganizationFinder, registrations RegistrationStore, cfg *config.Config, publisher events.Publisher) *RegistrationWorkflow {
	return &RegistrationWorkflow{
		orgs:          orgs,
		registrations: registrations,
		sandbox:       cfg.Endpoints.Sandbox,
		publisher:     publisher,
		eventsBackend: cfg.Events.Backend,
		dispatch:      safego.Go,
	}
}

// PrepareNew builds an unsaved registration for apiEnv with the matching endpoint variant
func (w *RegistrationWorkflow) PrepareNew(ctx context.Context, orgID, apiEnv string) (*Outcome, error) {
	org, err := w.findOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	ro := &models.RegisteredOrganization{
		OrganizationID: org.ID,
		APIEnv:         apiEnv,
		FhirEndpoint:   BuildEndpoint(apiEnv, w.sandbox),
	}

	out := render(TemplateRegistrationNew, ro)
	out.APIEnv = apiEnv
	out.State["organization"] = org
	return out, nil
}

// Create builds a registration from payload and persists it. requestAPIEnv names the
// environment in messages when the payload does not carry one.
func (w *RegistrationWorkflow) Create(ctx context.Context, orgID string, payload RegistrationPayload, requestAPIEnv string) (*Outcome, error) {
	org, err := w.findOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	// The organization in the path owns the record regardless of payload.organization_id.
	ro := &models.RegisteredOrganization{OrganizationID: org.ID}
	if payload.APIEnv != nil {
		ro.APIEnv = strings.TrimSpace(*payload.APIEnv)
	}
	ro.FhirEndpoint = BuildEndpoint(ro.APIEnv, w.sandbox)
	payload.FhirEndpointAttributes.apply(ro.FhirEndpoint)

	apiEnv := ro.APIEnv
	if apiEnv == "" {
		apiEnv = requestAPIEnv
	}

	errs, err := w.validate(ctx, ro)
	if err != nil {
		return nil, err
	}
	if errs.Empty() {
		err = w.registrations.Create(ctx, ro)
		if errors.Is(err, repositories.ErrDuplicate) {
			errs.Add("api_env", validation.MsgTaken)
		} else if err != nil {
			w.record(apiEnv, actionEnable, "error")
			return nil, err
		}
	}

	if !errs.Empty() {
		w.record(apiEnv, actionEnable, "invalid")
		slog.Info("registered organization rejected",
			"organization_id", org.ID,
			"api_env", apiEnv,
			"errors", errs.Error())

		out := render(TemplateRegistrationNew, ro)
		out.APIEnv = apiEnv
		out.Errors = errs
		out.Flash = alert("Access to %s could not be enabled: %s.", apiEnv, errs.Error())
		out.State["organization"] = org
		return out, nil
	}

	w.record(apiEnv, actionEnable, "success")
	slog.Info("registered organization enabled",
		"organization_id", org.ID,
		"registered_organization_id", ro.ID,
		"api_env", ro.APIEnv)
	w.publish(ctx, events.TypeRegistrationEnabled, ro)

	out := redirect(OrganizationPath(org.ID), notice("Access to %s enabled.", apiEnv))
	out.ResourceID = ro.ID
	return out, nil
}

// PrepareEdit loads a registration for editing
func (w *RegistrationWorkflow) PrepareEdit(ctx context.Context, orgID, id string) (*Outcome, error) {
	org, ro, err := w.findScoped(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	out := render(TemplateRegistrationEdit, ro)
	out.APIEnv = ro.APIEnv
	out.State["organization"] = org
	return out, nil
}

// Update applies payload to an existing registration. The environment never changes;
// only an editable endpoint accepts new attributes.
func (w *RegistrationWorkflow) Update(ctx context.Context, orgID, id string, payload RegistrationPayload) (*Outcome, error) {
	org, ro, err := w.findScoped(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	apiEnv := ro.APIEnv

	errs := &validation.Errors{}
	if payload.APIEnv != nil && strings.TrimSpace(*payload.APIEnv) != ro.APIEnv {
		errs.Add("api_env", validation.MsgImmutable)
	}
	if attrs := payload.FhirEndpointAttributes; attrs != nil && attrs.ID != nil && *attrs.ID != "" {
		if ro.FhirEndpoint == nil || *attrs.ID != ro.FhirEndpoint.ID {
			return nil, notFound("fhir_endpoint", *attrs.ID)
		}
	}
	payload.FhirEndpointAttributes.apply(ro.FhirEndpoint)

	vErrs, err := w.validate(ctx, ro)
	if err != nil {
		return nil, err
	}
	errs.Merge(vErrs)

	if errs.Empty() {
		err = w.registrations.Update(ctx, ro)
		if errors.Is(err, repositories.ErrDuplicate) {
			errs.Add("api_env", validation.MsgTaken)
		} else if err != nil {
			w.record(apiEnv, actionUpdate, "error")
			return nil, err
		}
	}

	if !errs.Empty() {
		w.record(apiEnv, actionUpdate, "invalid")
		slog.Info("registered organization update rejected",
			"organization_id", org.ID,
			"registered_organization_id", ro.ID,
			"api_env", apiEnv,
			"errors", errs.Error())

		out := render(TemplateRegistrationEdit, ro)
		out.APIEnv = apiEnv
		out.Errors = errs
		out.Flash = alert("%s access could not be updated: %s.", capitalize(apiEnv), errs.Error())
		out.State["organization"] = org
		return out, nil
	}

	w.record(apiEnv, actionUpdate, "success")
	slog.Info("registered organization updated",
		"organization_id", org.ID,
		"registered_organization_id", ro.ID,
		"api_env", apiEnv)
	w.publish(ctx, events.TypeRegistrationUpdated, ro)

	return redirect(OrganizationPath(org.ID), notice("%s access updated.", capitalize(apiEnv))), nil
}

// Destroy revokes a registration. Persistence failures are reported through the flash;
// the outcome is always a redirect to the organization.
func (w *RegistrationWorkflow) Destroy(ctx context.Context, orgID, id string) (*Outcome, error) {
	org, ro, err := w.findScoped(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	env := capitalize(ro.APIEnv)
	location := OrganizationPath(org.ID)

	deleted, err := w.registrations.Delete(ctx, org.ID, ro.ID)
	if err == nil && !deleted {
		return nil, notFound("registered_organization", id)
	}
	if err != nil {
		w.record(ro.APIEnv, actionDisable, "error")
		slog.Error("failed to delete registered organization",
			"organization_id", org.ID,
			"registered_organization_id", ro.ID,
			"api_env", ro.APIEnv,
			"error", err)

		errs := &validation.Errors{}
		if errors.Is(err, repositories.ErrReferenced) {
			errs.Add(validation.Base, "Cannot delete record because dependent records exist")
		} else {
			errs.Add(validation.Base, "Record could not be deleted")
		}
		return redirect(location, alert("%s access could not be disabled: %s.", env, errs.Error())), nil
	}

	w.record(ro.APIEnv, actionDisable, "success")
	slog.Info("registered organization disabled",
		"organization_id", org.ID,
		"registered_organization_id", ro.ID,
		"api_env", ro.APIEnv)
	w.publish(ctx, events.TypeRegistrationDisabled, ro)

	return redirect(location, notice("%s access disabled.", env)), nil
}

func (w *RegistrationWorkflow) findOrganization(ctx context.Context, orgID string) (*models.Organization, error) {
	if _, err := uuid.Parse(orgID); err != nil {
		return nil, notFound("organization", orgID)
	}
	org, err := w.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, notFound("organization", orgID)
	}
	return org, nil
}

func (w *RegistrationWorkflow) findScoped(ctx context.Context, orgID, id string) (*models.Organization, *models.RegisteredOrganization, error) {
	org, err := w.findOrganization(ctx, orgID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil, notFound("registered_organization", id)
	}
	ro, err := w.registrations.GetByOrganizationAndID(ctx, org.ID, id)
	if err != nil {
		return nil, nil, err
	}
	if ro == nil {
		return nil, nil, notFound("registered_organization", id)
	}
	return org, ro, nil
}

// validate runs the field rules and, when the environment is otherwise valid, the
// one-grant-per-environment check.
func (w *RegistrationWorkflow) validate(ctx context.Context, ro *models.RegisteredOrganization) (*validation.Errors, error) {
	errs := validation.ValidateRegisteredOrganization(ro)
	if len(errs.On("api_env")) > 0 || len(errs.On("organization_id")) > 0 {
		return errs, nil
	}

	taken, err := w.registrations.ExistsForEnv(ctx, ro.OrganizationID, ro.APIEnv, ro.ID)
	if err != nil {
		return nil, err
	}
	if taken {
		errs.Add("api_env", validation.MsgTaken)
	}
	return errs, nil
}

func (w *RegistrationWorkflow) record(apiEnv, action, outcome string) {
	telemetry.RegistrationTransitionsTotal.WithLabelValues(envLabel(apiEnv), action, outcome).Inc()
}

func (w *RegistrationWorkflow) publish(ctx context.Context, eventType string, ro *models.RegisteredOrganization) {
	uri := ""
	if ro.FhirEndpoint != nil {
		uri = ro.FhirEndpoint.URI
	}
	if w.publisher == nil {
		return
	}
	evt := events.NewEvent(eventType, ro.OrganizationID, ro.ID, ro.APIEnv, uri)

	// Committed transitions publish even when the request is canceled.
	publishCtx, cancel := safego.Detached(ctx, publishTimeout)
	w.dispatch("publish "+eventType, func() {
		defer cancel()
		events.PublishLogged(publishCtx, w.publisher, w.eventsBackend, evt)
	})
}

// envLabel bounds metric cardinality to the known environments.
func envLabel(apiEnv string) string {
	if slices.Contains(models.APIEnvs, apiEnv) {
		return apiEnv
	}
	return "unknown"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

