// Package ffprobe wraps ffprobe's JSON output. Audio and video durations drive
// the timeline, so the helpers here resolve a usable duration from either the
// container or its streams.
package ffprobe
