// Package storyboard defines the run state that flows through the pipeline and
// the reducer that folds stage results into it.
//
// Stages never mutate State directly. Each stage receives a Clone of the
// current state and returns a Delta; Apply merges the delta field by field:
// owned scalars are overwritten, log lines are appended, and scene updates are
// per-scene patches keyed by index. The audio branch may only touch a scene's
// narration fields and the visual branch only its image/video fields, so the
// two branches can run concurrently and be merged in any order with the same
// result.
package storyboard
