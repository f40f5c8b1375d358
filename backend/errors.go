package backend

import "errors"

var (
	// ErrInvalidCredentials is returned when email or password do not match an account.
	ErrInvalidCredentials = errors.New("invalid login credentials")
	// ErrEmailTaken is returned by SignUp when the email already has an account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidEmail is returned when an email address cannot be parsed.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrNoSession is returned by operations that need a signed-in client.
	ErrNoSession = errors.New("no active session")
	// ErrSessionRevoked is returned by RefreshSession when the server dropped the session.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("backend client closed")
)
