// Package rate implements the Redis fixed-window counters behind sign-in and
// sign-up throttling.
//
// # Window semantics
//
// INCR + conditional EXPIRE on the first hit. Keys, under the configured prefix:
//   - <prefix>:rl:signin:<email>  sign-in failures per account
//   - <prefix>:rl:signin-ip:<ip>  sign-in failures per client address
//   - <prefix>:rl:signup-ip:<ip>  account creations per client address
package rate
