// Package database manages the agent's local SQLite store.
//
// The local store holds sealed session credentials, the profile cache,
// and the auth audit trail. This package provides:
//   - Connection management with WAL mode and busy timeout pragmas
//   - Embedded schema migrations applied at startup
//   - Health checks for the local API
//
// SQLite is opened with a single-writer pool: the agent is the only
// process touching the file and writes are infrequent (session adoption,
// cache refresh, audit appends).
package database
