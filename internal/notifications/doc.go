// Package notifications publishes run outcomes to ntfy.
//
// The ntfy topic URL comes from config.toml (or NTFY_TOPIC). When it is unset
// the service is a no-op, and the run_completed / run_failed toggles silence
// individual events.
package notifications
