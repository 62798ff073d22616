// Package session holds the client-side authentication state: the bearer token
// and the user profile of whoever is currently logged in on this device.
//
// # Persistence
//
// A [Store] mirrors every mutation into a [Storage] under two fixed keys, one
// holding the raw token and one holding the JSON-encoded user record. On
// construction the store restores both keys. Missing, unreadable, or malformed
// values restore as absent; restore never fails. [Store.Reload] repeats the
// restore on a live store, for storage that changes underneath it.
//
// Three [Storage] backends ship with the package: [MemoryStorage] for tests and
// short-lived processes, [FileStorage] for a per-device JSON file, and
// [RedisStorage] for clients that share session state through Redis.
//
// # Architecture boundaries
//
// This package owns the [Session] model, the [Store], and the storage
// backends. It does NOT decide which requests get the token attached; that is
// the gateway's job.
//
// # What this package must NOT do
//
//   - Import authclient or gateway (no upward imports).
//   - Perform HTTP calls.
//   - Return persistence write failures to callers of SetAuth or ClearAuth.
package session
