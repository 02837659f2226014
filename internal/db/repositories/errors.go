// Package repositories implements the Postgres persistence layer. Lookups return (nil, nil)
// when a row does not exist; constraint violations are translated into the sentinel errors
// below so callers can react without importing the driver.
package repositories

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrDuplicate is returned when a write violates a unique constraint.
	ErrDuplicate = errors.New("duplicate record")
	// ErrReferenced is returned when a row cannot be removed or written because of a foreign key.
	ErrReferenced = errors.New("record is referenced by other data")
)

// Postgres SQLSTATE codes we translate.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// ConstraintError carries the violated constraint alongside the sentinel it maps to.
type ConstraintError struct {
	Err        error
	Constraint string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%v (%s)", e.Err, e.Constraint)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// translate maps driver constraint violations to ConstraintError and wraps everything else
// with the failed operation.
func translate(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return &ConstraintError{Err: ErrDuplicate, Constraint: pqErr.Constraint}
		case pqForeignKeyViolation:
			return &ConstraintError{Err: ErrReferenced, Constraint: pqErr.Constraint}
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
