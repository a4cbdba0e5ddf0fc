// Package runstore persists run history in SQLite.
//
// Each invocation of the pipeline records one row in runs (topic, parameters,
// status, final path, failure) plus its ordered event log in run_events. The
// store backs the `storyloom runs` commands. The schema is created on first
// open and its version kept in PRAGMA user_version; a mismatch is reported as
// ErrSchemaMismatch rather than migrated.
package runstore
