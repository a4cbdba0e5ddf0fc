// Package render assembles a timeline.RenderPlan into the final video with
// ffmpeg.
//
// Every clip is first encoded as a standalone segment that lasts exactly its
// target duration: video is time-stretched when the speed change stays within
// the timeline bounds and trimmed (holding the last frame) otherwise, stills
// are looped, missing visuals become a black placeholder frame, and narration
// is padded with silence or cut. Segments are then joined with short
// crossfades, subtitles are burned in from a generated SRT file and the
// optional background music bed is mixed under the narration.
package render
