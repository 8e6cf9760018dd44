// Package store provides a SQLite-backed cache of compilation results.
//
// Entries are content-addressed: the key is a fingerprint over the schema,
// the query text, the backend, the compile-time bindings and the resource
// limits, so a stale entry can never be returned for a changed input.
//
// # Invariants
//
//   - An entry is written once. Put on an existing key is a no-op.
//   - Get verifies the stored result against its fingerprint column and
//     reports a mismatch as an error rather than a hit.
//   - Listing queries order by backend, then key, for stable output.
//
// # Database Configuration
//
//   - WAL mode: concurrent readers while one compile writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - a single open connection
package store
