// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Parameters are read back from the stored hash on Verify, so raising the cost
// of new hashes never breaks existing accounts.
package password
