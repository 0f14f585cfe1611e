// Package lifecycle maintains the active/passive set of signed tokens.
//
// One token is active at a time and is handed to new requests. When the
// rotation period elapses a replacement is signed first and only then is the
// old token demoted to the passive list, where it stays verifiable until its
// TTL runs out and maintenance prunes it. Rotation therefore never leaves the
// process without an active token.
//
// Pieces, leaf first:
//   - Info: immutable token record (token, created, expires).
//   - Manager: in-memory active + ordered passive list. No I/O, no clock.
//   - Store: durable snapshot (FileStore, PostgresStore, MemoryStore).
//   - Controller: rotation/expiry policy; signs, persists, publishes.
//   - Scheduler: runs Controller.Tick on a fixed interval, single-flight.
//
// Readers call Controller.Current, which never blocks and never fails.
// HTTP transport lives in the app package.
package lifecycle
