// Package imagegen talks to an asynchronous image and video synthesis API in
// the DashScope style: a POST with the X-DashScope-Async header returns a task
// id, the task is polled until it reaches a terminal status, and the result
// URLs are downloaded into the run workspace.
//
// ImageClient produces the anchor image and per-scene stills. VideoClient
// animates an accepted still into a short clip.
package imagegen
