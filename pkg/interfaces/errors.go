package interfaces

import "errors"

// Common errors returned by persistence collaborators.
var (
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrStoreClosed        = errors.New("store is closed")
)
