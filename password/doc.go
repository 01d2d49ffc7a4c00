// Package password hashes and verifies account passwords.
//
// Two encodings are supported behind the [Hasher] interface:
//
//	$2a$<cost>$<salt+hash>                              bcrypt (default)
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Both salt every hash with fresh randomness, so hashing the same plaintext
// twice yields different strings. Comparison is constant time.
//
// The package never stores passwords and never logs plaintext or hashes.
package password
