// Package signer provides the token signers used by the lifecycle controller.
//
// Two formats are supported:
//   - ES256 compact JWS (JWT claims), the default;
//   - PASETO v4.public (Ed25519).
//
// Both sign the same envelope: iss, iat, nbf, exp and jti, plus the caller's
// claims under "data". Both also verify, which is what tests and downstream
// relying parties use to check a published token.
package signer
