package timeline

import (
	"math"
	"strings"
	"testing"

	"storyloom/internal/storyboard"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestTargetDuration(t *testing.T) {
	tests := []struct {
		name  string
		scene storyboard.Scene
		want  float64
	}{
		{"audio wins", storyboard.Scene{AudioDuration: 2.5, EstimatedDuration: 4}, 2.5},
		{"estimate fallback", storyboard.Scene{EstimatedDuration: 4}, 4},
		{"zero audio is absent", storyboard.Scene{AudioDuration: 0, EstimatedDuration: 1.2}, 1.2},
		{"negative estimate is absent", storyboard.Scene{EstimatedDuration: -1}, DefaultDuration},
		{"default", storyboard.Scene{}, DefaultDuration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TargetDuration(tt.scene); !approx(got, tt.want) {
				t.Fatalf("TargetDuration = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReconcileTwoNarratedScenes(t *testing.T) {
	scenes := []storyboard.Scene{
		{Index: 0, Text: "A detective walks.", AudioDuration: 3.0, AudioPath: "a0.mp3", VideoPath: "v0.mp4"},
		{Index: 1, Text: "Rain falls.", AudioDuration: 2.5, AudioPath: "a1.mp3", ImagePath: "i1.png"},
	}
	plan, warnings := Reconcile(scenes, "noir", nil)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(plan.Subtitles) != 2 {
		t.Fatalf("expected 2 subtitles, got %d", len(plan.Subtitles))
	}
	want := []Subtitle{
		{Text: "A detective walks.", Start: 0, End: 3.0},
		{Text: "Rain falls.", Start: 3.0, End: 5.5},
	}
	for i, sub := range plan.Subtitles {
		if sub.Text != want[i].Text || !approx(sub.Start, want[i].Start) || !approx(sub.End, want[i].End) {
			t.Fatalf("subtitle %d = %+v, want %+v", i, sub, want[i])
		}
	}
	if !approx(plan.TotalDuration, 5.5) {
		t.Fatalf("TotalDuration = %v, want 5.5", plan.TotalDuration)
	}
	if plan.BGMStyle != "noir" {
		t.Fatalf("BGMStyle = %q", plan.BGMStyle)
	}
	if plan.Clips[0].VideoPath != "v0.mp4" || plan.Clips[0].ImagePath != "" {
		t.Fatalf("clip 0 should prefer video: %+v", plan.Clips[0])
	}
	if plan.Clips[1].ImagePath != "i1.png" {
		t.Fatalf("clip 1 should use image: %+v", plan.Clips[1])
	}
}

func TestReconcileSkipsSubtitleWithoutText(t *testing.T) {
	scenes := []storyboard.Scene{
		{Index: 0, Text: "", EstimatedDuration: 4.0, ImagePath: "i0.png"},
		{Index: 1, Text: "short", AudioDuration: 0.4, ImagePath: "i1.png"},
		{Index: 2, Text: "  ", AudioDuration: 2, ImagePath: "i2.png"},
	}
	plan, _ := Reconcile(scenes, "", nil)
	if len(plan.Clips) != 3 {
		t.Fatalf("expected a clip per scene, got %d", len(plan.Clips))
	}
	// Only the empty string suppresses a subtitle; blank narration still gets one.
	if len(plan.Subtitles) != 1 {
		t.Fatalf("expected one subtitle, got %+v", plan.Subtitles)
	}
	if sub := plan.Subtitles[0]; sub.Index != 2 || !approx(sub.Start, 4.4) || !approx(sub.End, 6.4) {
		t.Fatalf("unexpected subtitle %+v", sub)
	}
	if !approx(plan.TotalDuration, 6.4) {
		t.Fatalf("TotalDuration = %v, want 6.4", plan.TotalDuration)
	}
}

func TestReconcileTimelineMonotonic(t *testing.T) {
	scenes := []storyboard.Scene{
		{Index: 0, Text: "one", AudioDuration: 1.25},
		{Index: 1, Text: "two"},
		{Index: 2, Text: "three", EstimatedDuration: 0.75},
		{Index: 3, Text: "four", AudioDuration: 6},
	}
	plan, _ := Reconcile(scenes, "", nil)
	sum := 0.0
	for i, clip := range plan.Clips {
		if !approx(clip.Start, sum) {
			t.Fatalf("clip %d start = %v, want %v", i, clip.Start, sum)
		}
		sum += clip.Target
	}
	if !approx(plan.TotalDuration, sum) {
		t.Fatalf("TotalDuration = %v, want %v", plan.TotalDuration, sum)
	}
	for i := 1; i < len(plan.Subtitles); i++ {
		prev, cur := plan.Subtitles[i-1], plan.Subtitles[i]
		if cur.Start <= prev.Start || cur.Start < prev.End {
			t.Fatalf("subtitles overlap or regress: %+v then %+v", prev, cur)
		}
	}
}

func TestReconcileMissingAssets(t *testing.T) {
	onDisk := map[string]bool{"i0.png": true}
	exists := func(p string) bool { return onDisk[p] }
	scenes := []storyboard.Scene{
		{Index: 0, Text: "a", VideoPath: "gone.mp4", ImagePath: "i0.png", AudioPath: "gone.mp3", AudioDuration: 2},
		{Index: 1, Text: "b"},
	}
	plan, warnings := Reconcile(scenes, "", exists)
	if plan.Clips[0].VideoPath != "" || plan.Clips[0].ImagePath != "i0.png" {
		t.Fatalf("expected image fallback, got %+v", plan.Clips[0])
	}
	if plan.Clips[0].AudioPath != "" {
		t.Fatalf("missing audio should be cleared, got %q", plan.Clips[0].AudioPath)
	}
	if plan.Clips[1].HasVisual() {
		t.Fatalf("clip 1 should have no visual: %+v", plan.Clips[1])
	}
	if len(warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", warnings)
	}
	if !strings.Contains(warnings[1], "placeholder") {
		t.Fatalf("unexpected warning %q", warnings[1])
	}
}

func TestReconcileEmpty(t *testing.T) {
	plan, warnings := Reconcile(nil, "calm", nil)
	if !plan.Empty() || len(warnings) != 0 || plan.TotalDuration != 0 {
		t.Fatalf("unexpected plan for no scenes: %+v %v", plan, warnings)
	}
}

func TestOutputFilename(t *testing.T) {
	tests := map[string]string{
		"detective story":  "final_detective_story.mp4",
		"  a/b: c  ":       "final_a-b-_c.mp4",
		"":                 "final_untitled.mp4",
		"what   is  this?": "final_what_is_this.mp4",
	}
	for topic, want := range tests {
		if got := OutputFilename(topic); got != want {
			t.Fatalf("OutputFilename(%q) = %q, want %q", topic, got, want)
		}
	}
}

func TestStretchFactor(t *testing.T) {
	tests := []struct {
		native, target float64
		want           float64
		ok             bool
	}{
		{5, 5, 1, true},
		{5, 2.5, 2, true},
		{6, 2, 3, true},
		{7, 2, 3.5, false},
		{1, 2, 0.5, true},
		{1, 4, 0.25, false},
		{0, 3, 0, false},
	}
	for _, tt := range tests {
		got, ok := StretchFactor(tt.native, tt.target)
		if ok != tt.ok || !approx(got, tt.want) {
			t.Fatalf("StretchFactor(%v, %v) = %v, %v; want %v, %v", tt.native, tt.target, got, ok, tt.want, tt.ok)
		}
	}
}
