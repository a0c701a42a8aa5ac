package app

import (
	"errors"
	"fmt"
)

var (
	// ErrForbidden is returned when a member reaches for a staff-only operation.
	ErrForbidden = errors.New("staff role required")
	// ErrAdminOnly is returned when a librarian reaches for account management.
	ErrAdminOnly = fmt.Errorf("%w: admin role required", ErrForbidden)
	// ErrCoversDisabled means no object storage is configured for cover uploads.
	ErrCoversDisabled = errors.New("cover uploads are not configured")
	// ErrBookNotFound is returned when the API has no book for the requested id.
	ErrBookNotFound = errors.New("book not found")
)
