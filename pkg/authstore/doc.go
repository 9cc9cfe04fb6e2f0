// Package authstore owns the persisted session record: the bearer token,
// role, login identifier and locally decoded expiry.
//
// The Store keeps the record in exactly one of two scopes. The durable scope
// survives restarts and is pluggable (a per-user JSON file or a redis key);
// the ephemeral scope is process memory, the analogue of tab-scoped browser
// storage. Writing to one scope always deletes the other, which makes
// divergent duplicate sessions impossible.
//
// Every write re-arms a single expiry timer derived from the token's exp
// claim. When it fires, the record is cleared autonomously and registered
// change handlers run - no network traffic is involved. The expiry value is
// scheduling metadata only; the server remains the authority on whether the
// credential is accepted.
//
// Durable backends that can observe writes from other processes expose them
// through Watch: the file backend uses fsnotify, the redis backend a pub/sub
// channel. The session controller consumes the wake-ups, re-reads the store
// and re-broadcasts locally, which is the system's only cross-process
// coordination and is eventually consistent by design.
package authstore
