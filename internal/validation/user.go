package validation

import (
	"regexp"
	"strings"

	"github.com/dpc-platform/dpc-admin/internal/db/models"
)

var (
	zipPattern   = regexp.MustCompile(`^\d{5}(?:-\d{4})?$`)
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+$`)
)

// Messages shared with callers that add their own failures.
const (
	MsgBlank        = "can't be blank"
	MsgInvalid      = "is invalid"
	MsgNotIncluded  = "is not included in the list"
	MsgTaken        = "has already been taken"
	MsgNegative     = "must be greater than or equal to 0"
	MsgAgreeToTerms = "you must agree to the terms of service to create an account"

	MsgUnknownOrganization = "contains an unknown organization"
)

// ValidateUser runs every user rule and returns the accumulated failures.
// The returned bag is never nil.
func ValidateUser(u *models.User) *Errors {
	errs := &Errors{}

	if blank(u.Email) {
		errs.Add("email", MsgBlank)
	} else if !emailPattern.MatchString(u.Email) {
		errs.Add("email", MsgInvalid)
	}
	if blank(u.LastName) {
		errs.Add("last_name", MsgBlank)
	}
	if blank(u.FirstName) {
		errs.Add("first_name", MsgBlank)
	}
	if blank(u.Organization) {
		errs.Add("organization", MsgBlank)
	}
	if u.NumProviders != nil && *u.NumProviders < 0 {
		errs.Add("num_providers", MsgNegative)
	}
	if blank(u.Address1) {
		errs.Add("address_1", MsgBlank)
	}
	if blank(u.City) {
		errs.Add("city", MsgBlank)
	}
	if !ValidState(u.State) {
		errs.Add("state", MsgNotIncluded)
	}
	if !zipPattern.MatchString(u.Zip) {
		errs.Add("zip", MsgInvalid)
	}
	if !u.AgreeToTerms {
		errs.Add("agree_to_terms", MsgAgreeToTerms)
	}

	return errs
}

// NormalizeUser applies the pre-save defaults: email is trimmed and lowercased, and an
// unset provider count is stored as 0.
func NormalizeUser(u *models.User) {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.NumProviders == nil {
		zero := 0
		u.NumProviders = &zero
	}
}
