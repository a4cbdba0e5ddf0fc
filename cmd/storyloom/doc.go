// Package main hosts the storyloom CLI entrypoint and command graph.
//
// The Cobra-based command tree turns a topic into a rendered video by wiring
// the configured backends into the stage pipeline, and exposes the run
// history, configuration scaffolding and environment checks. Configuration
// resolution, .env loading and logger setup are centralized here so commands
// can focus on presenting results.
//
// Keep this package lean: new behaviour belongs in the internal packages and
// is surfaced through dedicated commands or flags here.
package main
