package shared

import "errors"

var (
	// ErrNotFound indicates a resource is missing or outside the tenant scope.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a business-rule violation in submitted data.
	ErrValidation = errors.New("validation failed")
)
