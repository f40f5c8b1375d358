// Package goBlog assembles the authenticated blog client: an observable
// session store, a route table whose guard keeps signed-out visitors away from
// authoring routes, and the HTTP surface that serves it.
//
// # Architecture boundaries
//
// goBlog is the public surface. It exposes [App], [Builder], [Config] and the
// metrics and audit value types. Session state lives in package session,
// navigation in package router, and the hosted auth service client in package
// backend. Sub-packages never import goBlog.
//
// # Lifecycle
//
// Build an [App] with [Builder.Build], call [App.Start] once to begin session
// synchronization, and [App.Close] to release the backend subscription and
// every goroutine the App started.
package goBlog
