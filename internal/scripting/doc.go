// Package scripting turns a topic into a style prompt and a storyboard.
//
// Planner asks a language model for both and falls back to fixed templates
// when no model is configured. Storyboards can also be loaded from, and saved
// to, YAML files so a run can be replayed with a hand-edited script.
package scripting
