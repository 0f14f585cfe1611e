// Package token provides token fingerprinting for diagnostics.
//
// Signed tokens are bearer credentials and must never appear in logs or status
// pages. A fingerprint is a short, stable digest that identifies a token
// without revealing it.
//
// Modes:
//   - Default: SHA-256(token), truncated.
//   - Keyed: HMAC-SHA256(token, key) when ROTATOR_TOKEN_HMAC_KEY is set, so
//     fingerprints cannot be correlated across deployments.
package token
