// Package stages implements the five pipeline stages as stage.Handler values.
//
// Each handler reads a private snapshot of the run state, calls its external
// collaborators and returns only the fields it owns: Init the style prompt,
// anchor image and music style, Script the scene seed, Audio the narration
// fields, Visual the image/video fields and Merge the final video path.
// Per-scene work in Audio and Visual runs on a bounded errgroup pool and is
// collected by scene index so patches and log lines keep storyboard order.
package stages
