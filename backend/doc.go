// Package backend is the client for the hosted auth service goBlog runs against.
//
// The service keeps accounts and live sessions in Redis and hands out short-lived
// JWT access tokens. A [Client] holds at most one local session (the signed-in
// identity of this process), persists it through a [Storage], and reports every
// transition to listeners registered with [Client.OnAuthStateChange].
//
// # Redis layout
//
//	<prefix>:user:<id>            hash   account record
//	<prefix>:user-email:<email>   string account id, claimed with SETNX
//	<prefix>:session:<sid>        string owning user id, expires with the session
//	<prefix>:user-sessions:<id>   set    live session ids for the user
//	<prefix>:auth                 pubsub revocation notices
//
// # Notification ordering
//
// Listeners run on a single dispatch goroutine in the order transitions happened,
// whether the transition was local (sign-in, refresh) or remote (a revocation
// published by another client).
package backend
