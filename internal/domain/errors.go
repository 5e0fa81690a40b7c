package domain

import (
	"fmt"
	"strings"

	"github.com/totegamma/castline"
)

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

// InvalidIdentityError reports an identity field that could not be repaired.
type InvalidIdentityError struct {
	Field string
	Raw   string
}

func (e *InvalidIdentityError) Error() string {
	return fmt.Sprintf("invalid identity in %s: %q", e.Field, e.Raw)
}

func (e *InvalidIdentityError) Unwrap() error {
	return castline.ErrInvalidIdentity
}

// PersistenceError reports which step of a multi-store write failed.
// Steps before Stage have been committed.
type PersistenceError struct {
	Stage string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed at %s: %v", e.Stage, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ValidationError describes why a record was refused admission to the aggregate.
type ValidationError struct {
	Identity string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record %q rejected: %s", e.Identity, e.Reason)
}

// ModerationRejection lists media fields the classifier refused.
// The caller clears them and asks the user again.
type ModerationRejection struct {
	Fields     []string
	Categories []string
}

func (e *ModerationRejection) Error() string {
	msg := "media rejected: " + strings.Join(e.Fields, ", ")
	if len(e.Categories) > 0 {
		msg += " (" + strings.Join(e.Categories, ", ") + ")"
	}
	return msg
}
