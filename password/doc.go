// Package password hashes and verifies passwords with Argon2id in PHC format.
package password
