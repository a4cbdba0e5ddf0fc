// Package timeline turns an enriched scene collection into a render plan.
//
// Each scene becomes one Clip whose target duration is the measured narration
// length (falling back to the scene estimate, then DefaultDuration). Clips sit
// back to back on a single running timestamp, and scenes with narration text
// also emit a Subtitle spanning their clip. The plan is pure data; the render
// package is responsible for force-fitting media to each target.
package timeline
