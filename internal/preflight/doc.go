// Package preflight provides readiness checks for the directories, disk space
// and external services a run depends on.
//
// The CLI "doctor" command prints every result; "run" executes RunAll first and
// refuses to start when a blocking check fails. Missing optional backends are
// reported as warnings because the pipeline degrades around them.
package preflight
