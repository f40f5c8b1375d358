// Package session holds the process-wide answer to "who is logged in right now".
//
// A [Store] is created once by the application, started once, and closed on
// shutdown. It seeds itself with one GetUser query against the auth backend and
// then follows every auth-state-change notification the backend pushes. Readers
// get copies through [Store.Current] or subscribe with [Store.Observe]; only the
// store's own query and subscription callbacks ever write the value.
//
// # Ordering
//
// A pushed notification is newer than any query still in flight. If the initial
// query resolves after a notification was applied, its result is discarded.
//
// # What this package must NOT do
//
//   - Decide whether a navigation is allowed (package router does).
//   - Talk to a concrete backend; it only sees [auth.Backend].
package session
