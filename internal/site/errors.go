package site

import "errors"

var (
	// ErrInvalidConfig indicates a site entry or fallback failed validation.
	ErrInvalidConfig = errors.New("invalid analytics configuration")
)
