// Package auth defines the contract between goBlog and the hosted auth service:
// the [User] and [Session] shapes, auth-state-change [Event] notifications, and
// the [Backend] interface consumed by the session store and the navigation guard.
//
// # Architecture boundaries
//
// This package owns types only. Transport, token handling, and persistence belong
// to backend implementations (see package backend). Consumers depend on [Backend]
// and never on a concrete client.
package auth
