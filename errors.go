package goBlog

import "errors"

var (
	// ErrMissingBackendConfig means the auth backend URL or key is unset.
	ErrMissingBackendConfig = errors.New("missing auth backend configuration: backend.url and backend.key are required")
	// ErrInvalidConfig wraps every other Config.Validate failure.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrBuilderUsed is returned by a second Build on the same Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrAppClosed is returned by App methods after Close.
	ErrAppClosed = errors.New("app closed")
)
