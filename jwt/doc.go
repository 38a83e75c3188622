// Package jwt provides the default bearer-credential verifier: signature and
// registered-claim validation for HS256 and ed25519 tokens, returning the
// subject user ID. Token issuance is out of scope; this module never mints or
// refreshes credentials.
package jwt
