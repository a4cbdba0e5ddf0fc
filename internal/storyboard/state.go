package storyboard

import "strings"

// Params carries the user's run options. They are read-only once a run starts.
type Params struct {
	AspectRatio  string `json:"aspect_ratio"`
	TargetLength string `json:"target_length"`
	Style        string `json:"style"`
}

// Input is the immutable request that starts a run.
type Input struct {
	Topic  string `json:"topic"`
	Params Params `json:"params"`
}

// Scene is one shot of the storyboard. Index and the seed fields are set once
// by the script stage; AudioPath/AudioDuration belong to the audio branch and
// ImagePath/VideoPath/ExtendPrompt to the visual branch.
type Scene struct {
	Index             int      `json:"index"`
	Text              string   `json:"text_content"`
	Emotion           string   `json:"emotion"`
	VisualPrompt      string   `json:"visual_prompt"`
	VisualTags        []string `json:"visual_tags,omitempty"`
	EstimatedDuration float64  `json:"estimated_duration"`

	AudioPath     string  `json:"audio_path,omitempty"`
	AudioDuration float64 `json:"audio_duration,omitempty"`

	ImagePath    string  `json:"image_path,omitempty"`
	VideoPath    string  `json:"video_path,omitempty"`
	ExtendPrompt *string `json:"extend_prompt,omitempty"`
}

// State is the run-wide record threaded through every stage.
type State struct {
	Topic          string   `json:"topic"`
	Params         Params   `json:"params"`
	StylePrompt    string   `json:"style_prompt,omitempty"`
	AnchorImage    string   `json:"anchor_image,omitempty"`
	BGMStyle       string   `json:"bgm_style,omitempty"`
	Scenes         []Scene  `json:"scenes"`
	Log            []string `json:"log"`
	FinalVideoPath string   `json:"final_video_path"`
}

// NewState seeds a run state from the caller's input.
func NewState(in Input) State {
	return State{
		Topic:  strings.TrimSpace(in.Topic),
		Params: in.Params,
	}
}

// Clone returns a deep copy so a stage can read its snapshot while other
// stages' deltas are being merged.
func (s State) Clone() State {
	out := s
	if s.Scenes != nil {
		out.Scenes = make([]Scene, len(s.Scenes))
		for i, scene := range s.Scenes {
			out.Scenes[i] = scene.clone()
		}
	}
	if s.Log != nil {
		out.Log = append([]string(nil), s.Log...)
	}
	return out
}

func (sc Scene) clone() Scene {
	out := sc
	if sc.VisualTags != nil {
		out.VisualTags = append([]string(nil), sc.VisualTags...)
	}
	if sc.ExtendPrompt != nil {
		v := *sc.ExtendPrompt
		out.ExtendPrompt = &v
	}
	return out
}

// HasVisual reports whether the visual branch recorded any asset for the scene.
func (sc Scene) HasVisual() bool {
	return sc.VideoPath != "" || sc.ImagePath != ""
}

// StringPtr returns a pointer to v for optional Delta fields.
func StringPtr(v string) *string {
	return &v
}
