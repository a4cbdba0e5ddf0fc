// Package llm is an OpenAI-compatible chat client (OpenRouter by default) used
// for style prompts, storyboard planning and image validation.
//
// Every call asks for a json_object response. DecodeJSON unwraps answers that
// arrive inside code fences or prose.
//
// Requests are retried on HTTP 408, 429 and 5xx, on empty answers and on
// network timeouts, with exponential backoff from cenkalti/backoff (1s doubling
// to 10s, five attempts by default). A Retry-After header replaces the computed
// wait, capped at the maximum. Cancelling the context stops retries at once.
package llm
