// Package router maps paths to blog views and gates every navigation with an
// authentication [Guard].
//
// A [Table] is compiled once from an ordered list of [Route] descriptors and is
// read-only afterwards. A [Router] resolves a navigation against the table, asks
// the guard for a [Decision], follows redirects, and records the current
// [Location]. Every navigation is evaluated from scratch; nothing about a
// previous decision is remembered.
//
// # Guard decisions
//
// The guard queries its [auth.UserQuerier] on every navigation. Routes without
// RequiresAuth are always allowed. Routes with RequiresAuth are allowed only
// when the query returns a user; otherwise the navigation is redirected to the
// login path. A failed query is resolved by [GuardConfig.OnQueryError].
package router
