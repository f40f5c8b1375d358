package router

import "errors"

var (
	// ErrNoRoute is returned when no route matches a path.
	ErrNoRoute = errors.New("no route matches path")
	// ErrInvalidRoute is returned by Compile for malformed route tables.
	ErrInvalidRoute = errors.New("invalid route")
	// ErrRedirectLoop is returned when a navigation exceeds the redirect limit.
	ErrRedirectLoop = errors.New("navigation redirect limit exceeded")
	// ErrNavigationSuperseded is returned when a newer navigation started before
	// this one was decided. The decision is discarded.
	ErrNavigationSuperseded = errors.New("navigation superseded")
)
