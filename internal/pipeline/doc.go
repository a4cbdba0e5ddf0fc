// Package pipeline runs the stage graph for one storyboard run.
//
// A Graph is a static set of named nodes with dependency lists. NewGraph
// validates it once (unknown dependencies, duplicates and cycles) and groups
// the nodes into dependency levels with Kahn's algorithm. The Orchestrator runs
// the nodes of a level concurrently, each against its own snapshot of the run
// state, waits for all of them, and only then folds their deltas into the
// state in declaration order. The standard graph is
//
//	init -> script -> {audio, visual} -> merge
//
// so merge is a fan-in barrier that starts only after both branches finished.
package pipeline
