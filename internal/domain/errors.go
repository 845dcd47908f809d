package domain

import "errors"

// Error kinds crossing the service boundary. Services wrap these with
// fmt.Errorf("...: %w", ...) so handlers can classify with errors.Is.
var (
	ErrInvalid   = errors.New("invalid input")
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrForbidden = errors.New("forbidden")
)
