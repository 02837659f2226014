// Package services implements the admin panel workflows: granting and revoking registered
// organization access, and the user directory. Each operation returns an Outcome describing
// what the caller should do next (redirect, render a form, or send a file) so the workflows
// stay independent of the HTTP layer.
package services

import (
	"errors"
	"fmt"

	"github.com/dpc-platform/dpc-admin/internal/validation"
)

// ErrNotFound is wrapped by every lookup failure that should surface as 404.
var ErrNotFound = errors.New("not found")

// NotFoundError names the missing record
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func notFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// OutcomeKind selects how an Outcome is delivered.
type OutcomeKind int

const (
	OutcomeRedirect OutcomeKind = iota + 1
	OutcomeRender
	OutcomeFile
)

// Flash levels.
const (
	FlashNotice = "notice"
	FlashAlert  = "alert"
)

// Template names rendered by the workflows.
const (
	TemplateRegistrationNew  = "registered_organizations/new"
	TemplateRegistrationEdit = "registered_organizations/edit"
	TemplateUsersIndex       = "users/index"
	TemplateUserShow         = "users/show"
	TemplateUserEdit         = "users/edit"

	LayoutTableIndex = "table_index"
)

// Flash is a one-time message shown on the next page
type Flash struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// File is a generated download
type File struct {
	Name        string
	ContentType string
	Body        []byte
}

// Outcome is the result of a workflow operation.
//
// Redirect outcomes carry Location. Render outcomes carry Template, the Model being
// displayed and any validation Errors; a non-empty Errors means a write was rejected.
// File outcomes carry File. ResourceID names a record created by the operation.
type Outcome struct {
	Kind       OutcomeKind
	Location   string
	ResourceID string
	Template   string
	Layout     string
	Model      any
	APIEnv     string
	Errors     *validation.Errors
	State      map[string]any
	Flash      *Flash
	File       *File
}

// Failed reports whether the outcome re-renders a form after a rejected write.
func (o *Outcome) Failed() bool {
	return o.Kind == OutcomeRender && !o.Errors.Empty()
}

func redirect(location string, flash *Flash) *Outcome {
	return &Outcome{Kind: OutcomeRedirect, Location: location, Flash: flash}
}

func render(template string, model any) *Outcome {
	return &Outcome{Kind: OutcomeRender, Template: template, Model: model, State: map[string]any{}}
}

func notice(format string, args ...any) *Flash {
	return &Flash{Level: FlashNotice, Message: fmt.Sprintf(format, args...)}
}

func alert(format string, args ...any) *Flash {
	return &Flash{Level: FlashAlert, Message: fmt.Sprintf(format, args...)}
}

// OrganizationPath is the detail view of an organization.
func OrganizationPath(id string) string {
	return "/internal/organizations/" + id
}

// UserPath is the detail view of a user.
func UserPath(id string) string {
	return "/internal/users/" + id
}
