// Package visual turns a scene's visual prompt into an accepted image and an
// animated clip.
//
// Engine.Process runs a bounded generate/validate/retry machine per scene:
//
//	generate -> validate -> accept
//	                     -> retry (prompt rewritten with the failure reason) -> generate
//	                     -> exhausted (after MaxAttempts)
//
// An image is accepted only when the validator marks the prompt satisfied and
// alignment+quality exceeds AcceptScoreThreshold. On exhaustion the engine
// either fails with ErrGenerationExhausted or, when constructed with
// ForceExecute, animates the last generated image and records no extend
// prompt. Backend failures inside an attempt count as rejections; context
// cancellation aborts immediately.
package visual
