// Package runlog locates and reads the per-run JSON log files written next to
// the run history, so the CLI can print or follow a run's records.
package runlog
