package timeline

import (
	"fmt"
	"strings"

	"storyloom/internal/storyboard"
	"storyloom/internal/textutil"
)

const (
	// DefaultDuration is used when a scene has neither audio nor an estimate.
	DefaultDuration = 3.0
	// MinSubtitleDuration is the exclusive lower bound for emitting a subtitle.
	MinSubtitleDuration = 0.5
	// MinStretch and MaxStretch bound the speed factor applied to a video clip.
	MinStretch = 0.5
	MaxStretch = 3.0
	// Crossfade is the overlap between consecutive clips in seconds.
	Crossfade = 0.5
)

// Clip binds one scene's assets to its slot on the timeline.
type Clip struct {
	Index     int
	VideoPath string
	ImagePath string
	AudioPath string
	Text      string
	Start     float64
	Target    float64
}

// HasVisual reports whether the clip carries any usable visual.
func (c Clip) HasVisual() bool {
	return c.VideoPath != "" || c.ImagePath != ""
}

// End returns the clip's end on the timeline.
func (c Clip) End() float64 {
	return c.Start + c.Target
}

// Subtitle is narration text shown over [Start, End). Index names the clip it
// belongs to.
type Subtitle struct {
	Index int
	Text  string
	Start float64
	End   float64
}

// RenderPlan is the ordered description handed to the renderer.
type RenderPlan struct {
	Clips         []Clip
	Subtitles     []Subtitle
	BGMStyle      string
	TotalDuration float64
}

// Empty reports whether the plan has nothing to render.
func (p RenderPlan) Empty() bool {
	return len(p.Clips) == 0
}

// TargetDuration picks the length a scene's visuals must be fitted to.
// Non-positive durations count as absent.
func TargetDuration(scene storyboard.Scene) float64 {
	if scene.AudioDuration > 0 {
		return scene.AudioDuration
	}
	if scene.EstimatedDuration > 0 {
		return scene.EstimatedDuration
	}
	return DefaultDuration
}

// Reconcile builds the render plan for scenes in index order. exists reports
// whether an asset path is present on disk; a nil exists trusts every non-empty
// path. Missing visuals and audio do not fail the plan: the asset reference is
// cleared and a warning is returned so the renderer substitutes a placeholder
// or silence.
func Reconcile(scenes []storyboard.Scene, bgmStyle string, exists func(string) bool) (RenderPlan, []string) {
	if exists == nil {
		exists = func(path string) bool { return path != "" }
	}
	present := func(path string) bool {
		return strings.TrimSpace(path) != "" && exists(path)
	}

	plan := RenderPlan{BGMStyle: bgmStyle}
	var warnings []string
	t := 0.0
	for _, scene := range scenes {
		target := TargetDuration(scene)
		clip := Clip{
			Index:  scene.Index,
			Text:   scene.Text,
			Start:  t,
			Target: target,
		}

		switch {
		case present(scene.VideoPath):
			clip.VideoPath = scene.VideoPath
		case present(scene.ImagePath):
			clip.ImagePath = scene.ImagePath
		default:
			warnings = append(warnings, fmt.Sprintf("scene %d: no visual asset, using placeholder", scene.Index))
		}
		if present(scene.AudioPath) {
			clip.AudioPath = scene.AudioPath
		} else if scene.AudioPath != "" {
			warnings = append(warnings, fmt.Sprintf("scene %d: audio %s missing, using silence", scene.Index, scene.AudioPath))
		}

		if clip.Text != "" && target > MinSubtitleDuration {
			plan.Subtitles = append(plan.Subtitles, Subtitle{Index: scene.Index, Text: clip.Text, Start: t, End: t + target})
		}
		plan.Clips = append(plan.Clips, clip)
		t += target
	}
	plan.TotalDuration = t
	return plan, warnings
}

// OutputFilename derives the final video's file name from the run topic.
func OutputFilename(topic string) string {
	name := textutil.SanitizeFileName(textutil.UnderscoreSpaces(strings.TrimSpace(topic)))
	if name == "" {
		name = "untitled"
	}
	return "final_" + name + ".mp4"
}

// StretchFactor returns native/target and whether it lies within the allowed
// speed range. When ok is false the renderer trims instead of stretching.
func StretchFactor(native, target float64) (float64, bool) {
	if native <= 0 || target <= 0 {
		return 0, false
	}
	factor := native / target
	return factor, factor >= MinStretch && factor <= MaxStretch
}
