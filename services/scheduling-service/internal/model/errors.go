package model

import "errors"

// Sentinel errors shared by every layer. Wrap them with fmt.Errorf("%w: ...") and match with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation error")
	ErrExpired    = errors.New("expired")
)
