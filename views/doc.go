// Package views holds the JSON handlers behind the blog routes. Handlers read
// the resolved location and guard decision that middleware.Navigate placed in
// the request context; they never query the auth backend for identity.
// Account handlers act for the caller's own session only.
package views
