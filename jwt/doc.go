// Package jwt issues and verifies the short-lived access tokens handed to backend
// clients after sign-in.
//
// Tokens are signed with HS256 (shared project secret) or Ed25519. Verification
// pins the algorithm, checks issuer and audience when configured, and bounds
// future-dated iat values.
//
// # What this package must NOT do
//
//   - Touch Redis or decide whether a session is still alive (the backend does that).
//   - Accept tokens signed with an algorithm other than the configured one.
package jwt
