package common

import "errors"

var (
	// authorization errors
	ErrUnauthorized = errors.New("unauthorized")

	// request validation errors
	ErrValidation   = errors.New("validation error")
	ErrSessionState = errors.New("invalid session state")

	// store errors
	ErrStoreIO  = errors.New("store i/o error")
	ErrNotFound = errors.New("not found")
)
