// Package store persists jobs.
//
// It currently supports:
//   - "sqlite": SQLite database file (modernc driver, WAL)
//   - "memory": in-process map, used by tests and driverless runs
//
// The scheduler core consumes only the Store interface; it never sees
// SQL or driver details.
package store
