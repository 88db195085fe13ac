// Package database provides SQLite connection management for Foyer Core.
//
// It wraps database/sql with:
//   - Connection setup (WAL mode, busy timeout, foreign keys)
//   - Embedded SQL migrations applied at startup
//   - Health checks for the readiness probe
//
// SQLite is run with a single-connection pool: one writer is all SQLite
// supports, and WAL mode allows concurrent reads during writes.
package database
