package storyboard

import (
	"errors"
	"fmt"
)

var (
	// ErrSceneIndex reports a scene collection whose indices are not exactly 0..N-1.
	ErrSceneIndex = errors.New("scene index out of order")
	// ErrUnknownScene reports a patch addressed to a scene that does not exist.
	ErrUnknownScene = errors.New("unknown scene")
	// ErrReseed reports an attempt to replace an already seeded scene collection.
	ErrReseed = errors.New("scenes already seeded")
)

// AudioPatch updates the narration fields of one scene.
type AudioPatch struct {
	Index         int
	AudioPath     string
	AudioDuration float64
}

// VisualPatch updates the image/video fields of one scene.
type VisualPatch struct {
	Index        int
	ImagePath    string
	VideoPath    string
	ExtendPrompt *string
}

// Delta is the partial update a stage returns. Nil pointers and empty slices
// leave the corresponding state untouched.
type Delta struct {
	StylePrompt    *string
	AnchorImage    *string
	BGMStyle       *string
	FinalVideoPath *string

	// Seed replaces the scene collection. Only valid while the state has no scenes.
	Seed []Scene

	Audio  []AudioPatch
	Visual []VisualPatch

	Log []string
}

// Logf appends a formatted status line to the delta's log.
func (d *Delta) Logf(format string, args ...any) {
	d.Log = append(d.Log, fmt.Sprintf(format, args...))
}

// Empty reports whether applying d would leave a state unchanged.
func (d Delta) Empty() bool {
	return d.StylePrompt == nil && d.AnchorImage == nil && d.BGMStyle == nil &&
		d.FinalVideoPath == nil && d.Seed == nil &&
		len(d.Audio) == 0 && len(d.Visual) == 0 && len(d.Log) == 0
}

// Apply folds d into s and returns the result. s is not modified. The merge is
// field-scoped: audio patches never overwrite visual fields and vice versa, so
// deltas from the two parallel branches commute.
func Apply(s State, d Delta) (State, error) {
	out := s.Clone()

	if d.Seed != nil {
		if len(out.Scenes) > 0 {
			return s, ErrReseed
		}
		if err := ValidateIndices(d.Seed); err != nil {
			return s, err
		}
		out.Scenes = make([]Scene, len(d.Seed))
		for i, scene := range d.Seed {
			out.Scenes[i] = scene.clone()
		}
	}

	for _, patch := range d.Audio {
		if patch.Index < 0 || patch.Index >= len(out.Scenes) {
			return s, fmt.Errorf("%w: audio patch for scene %d", ErrUnknownScene, patch.Index)
		}
		scene := &out.Scenes[patch.Index]
		scene.AudioPath = patch.AudioPath
		scene.AudioDuration = patch.AudioDuration
	}

	for _, patch := range d.Visual {
		if patch.Index < 0 || patch.Index >= len(out.Scenes) {
			return s, fmt.Errorf("%w: visual patch for scene %d", ErrUnknownScene, patch.Index)
		}
		scene := &out.Scenes[patch.Index]
		scene.ImagePath = patch.ImagePath
		scene.VideoPath = patch.VideoPath
		scene.ExtendPrompt = nil
		if patch.ExtendPrompt != nil {
			scene.ExtendPrompt = StringPtr(*patch.ExtendPrompt)
		}
	}

	if d.StylePrompt != nil {
		out.StylePrompt = *d.StylePrompt
	}
	if d.AnchorImage != nil {
		out.AnchorImage = *d.AnchorImage
	}
	if d.BGMStyle != nil {
		out.BGMStyle = *d.BGMStyle
	}
	if d.FinalVideoPath != nil {
		out.FinalVideoPath = *d.FinalVideoPath
	}
	out.Log = append(out.Log, d.Log...)
	return out, nil
}

// ValidateIndices checks that scenes[i].Index == i for every scene.
func ValidateIndices(scenes []Scene) error {
	for i, scene := range scenes {
		if scene.Index != i {
			return fmt.Errorf("%w: position %d carries index %d", ErrSceneIndex, i, scene.Index)
		}
	}
	return nil
}
