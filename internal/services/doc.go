// Package services defines shared utilities consumed by the pipeline stages and
// the external generation backends.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and scene indices for
//     logging.
//   - Structured error markers plus the Wrap helper so collaborator failures
//     can be classified with errors.Is regardless of which backend raised them.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
