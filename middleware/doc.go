// Package middleware adapts the goBlog router to net/http.
//
// [Navigate] treats every request as a navigation: the path is resolved
// against the route table, the guard runs, and the request is either
// redirected to the login path, rejected with 404, or dispatched to the
// matched route's view with the [router.Location] and [router.Decision] in
// the request context.
//
// # What this package must NOT do
//
//   - Query the auth backend itself (the guard does that).
//   - Decide anything beyond what the guard returned.
package middleware
