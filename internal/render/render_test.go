package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storyloom/internal/services"
	"storyloom/internal/testsupport"
	"storyloom/internal/timeline"
)

type recordedCommand struct {
	name string
	args []string
}

type fakeFFmpeg struct {
	calls []recordedCommand
	fail  int
}

func (f *fakeFFmpeg) run(_ context.Context, name string, args ...string) error {
	f.calls = append(f.calls, recordedCommand{name: name, args: append([]string(nil), args...)})
	if f.fail > 0 && len(f.calls) == f.fail {
		return errors.New("exit status 1: boom")
	}
	return os.WriteFile(args[len(args)-1], []byte("mp4"), 0o644)
}

type fixedProber map[string]float64

func (p fixedProber) Duration(_ context.Context, path string) (float64, error) {
	d, ok := p[path]
	if !ok {
		return 0, errors.New("no such file")
	}
	return d, nil
}

func argValue(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func containsArg(args []string, needle string) bool {
	for _, a := range args {
		if a == needle {
			return true
		}
	}
	return false
}

func newTestRenderer(prober DurationProber, bgmDir string) (*Renderer, *fakeFFmpeg) {
	r := New(Options{BGMDir: bgmDir, BGMVolume: 0.15}, prober, nil)
	fake := &fakeFFmpeg{}
	r.WithCommandRunner(fake.run)
	return r, fake
}

func TestRenderEncodesSegmentsAndJoins(t *testing.T) {
	dir := t.TempDir()
	plan := timeline.RenderPlan{
		Clips: []timeline.Clip{
			{Index: 0, VideoPath: "v0.mp4", AudioPath: "a0.mp3", Text: "one", Start: 0, Target: 3},
			{Index: 1, ImagePath: "i1.png", Text: "two", Start: 3, Target: 2.5},
			{Index: 2, Start: 5.5, Target: 2},
		},
		Subtitles: []timeline.Subtitle{
			{Index: 0, Text: "one", Start: 0, End: 3},
			{Index: 1, Text: "two", Start: 3, End: 5.5},
		},
		TotalDuration: 7.5,
	}
	r, fake := newTestRenderer(fixedProber{"v0.mp4": 5}, "")
	out := filepath.Join(dir, "out", "final_story.mp4")

	got, err := r.Render(context.Background(), plan, filepath.Join(dir, "work"), out)
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if got != out {
		t.Fatalf("Render path = %q, want %q", got, out)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("expected output file: %v", err)
	}
	if len(fake.calls) != 4 {
		t.Fatalf("expected 3 segment encodes and 1 join, got %d calls", len(fake.calls))
	}

	videoSeg := fake.calls[0].args
	if graph := argValue(videoSeg, "-filter_complex"); !strings.Contains(graph, "setpts=PTS/1.666667") {
		t.Fatalf("expected stretch in video segment graph, got %q", graph)
	}
	if !containsArg(videoSeg, "a0.mp3") {
		t.Fatalf("expected narration input in %v", videoSeg)
	}

	stillSeg := fake.calls[1].args
	if !containsArg(stillSeg, "-loop") || !containsArg(stillSeg, "i1.png") {
		t.Fatalf("expected looped still input, got %v", stillSeg)
	}
	if !strings.Contains(strings.Join(stillSeg, " "), "anullsrc") {
		t.Fatalf("expected silent audio for scene without narration, got %v", stillSeg)
	}

	placeholderSeg := fake.calls[2].args
	placeholder := filepath.Join(dir, "work", "placeholder.png")
	if !containsArg(placeholderSeg, placeholder) {
		t.Fatalf("expected placeholder input, got %v", placeholderSeg)
	}
	if info, err := os.Stat(placeholder); err != nil || info.Size() == 0 {
		t.Fatalf("expected placeholder png on disk: %v", err)
	}

	join := fake.calls[3].args
	graph := argValue(join, "-filter_complex")
	if !strings.Contains(graph, "xfade=transition=fade:duration=0.500:offset=2.500") {
		t.Fatalf("expected first crossfade at 2.5s, got %q", graph)
	}
	if !strings.Contains(graph, "xfade=transition=fade:duration=0.500:offset=4.500") {
		t.Fatalf("expected second crossfade at 4.5s, got %q", graph)
	}
	if !strings.Contains(graph, "subtitles=") {
		t.Fatalf("expected burned subtitles, got %q", graph)
	}
	if strings.Contains(graph, "amix") {
		t.Fatalf("did not expect music mix without a bgm dir, got %q", graph)
	}

	srt, err := os.ReadFile(filepath.Join(dir, "work", "subtitles.srt"))
	if err != nil {
		t.Fatalf("read srt: %v", err)
	}
	want := "1\n00:00:00,000 --> 00:00:02,500\none\n\n2\n00:00:02,500 --> 00:00:05,000\ntwo\n"
	if string(srt) != want {
		t.Fatalf("srt mismatch:\n%s\nwant:\n%s", srt, want)
	}
}

func TestRenderTrimsOutOfRangeStretch(t *testing.T) {
	dir := t.TempDir()
	plan := timeline.RenderPlan{Clips: []timeline.Clip{{Index: 0, VideoPath: "long.mp4", Target: 2}}, TotalDuration: 2}
	r, fake := newTestRenderer(fixedProber{"long.mp4": 10}, "")
	if _, err := r.Render(context.Background(), plan, dir, filepath.Join(dir, "final.mp4")); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	graph := argValue(fake.calls[0].args, "-filter_complex")
	if strings.Contains(graph, "setpts=PTS/") {
		t.Fatalf("expected no stretch for factor 5, got %q", graph)
	}
	if !strings.Contains(graph, "trim=duration=2.000") || !strings.Contains(graph, "tpad=stop_mode=clone") {
		t.Fatalf("expected trim and hold, got %q", graph)
	}
	join := argValue(fake.calls[1].args, "-filter_complex")
	if join != "[0:v]null[vcat];[0:a]anull[acat]" {
		t.Fatalf("unexpected single clip graph %q", join)
	}
}

func TestRenderMixesMusicBed(t *testing.T) {
	dir := t.TempDir()
	bgmDir := filepath.Join(dir, "bgm")
	testsupport.WriteFile(t, filepath.Join(bgmDir, "noir.mp3"), 4096)
	plan := timeline.RenderPlan{
		Clips:    []timeline.Clip{{Index: 0, ImagePath: "i.png", Target: 3}, {Index: 1, ImagePath: "j.png", Start: 3, Target: 3}},
		BGMStyle: "Noir",
	}
	r, fake := newTestRenderer(nil, bgmDir)
	if _, err := r.Render(context.Background(), plan, dir, filepath.Join(dir, "final.mp4")); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	join := fake.calls[len(fake.calls)-1].args
	if !containsArg(join, filepath.Join(bgmDir, "noir.mp3")) || !containsArg(join, "-stream_loop") {
		t.Fatalf("expected looped music input, got %v", join)
	}
	graph := argValue(join, "-filter_complex")
	if !strings.Contains(graph, "[2:a]volume=0.15[bgm]") || !strings.Contains(graph, "amix=inputs=2:duration=first") {
		t.Fatalf("expected music mix, got %q", graph)
	}
	if argValue(join, "-map") == "" || !containsArg(join, "[amix]") {
		t.Fatalf("expected mixed audio to be mapped, got %v", join)
	}
}

func TestRenderFailureLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	plan := timeline.RenderPlan{Clips: []timeline.Clip{{Index: 0, ImagePath: "i.png", Target: 3}}}
	r, fake := newTestRenderer(nil, "")
	fake.fail = 2
	out := filepath.Join(dir, "final.mp4")
	_, err := r.Render(context.Background(), plan, dir, out)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatalf("expected no output file, stat err = %v", statErr)
	}
	if _, statErr := os.Stat(out + ".part"); !os.IsNotExist(statErr) {
		t.Fatalf("expected temp file removed, stat err = %v", statErr)
	}
}

func TestRenderRejectsEmptyPlan(t *testing.T) {
	r, fake := newTestRenderer(nil, "")
	_, err := r.Render(context.Background(), timeline.RenderPlan{}, t.TempDir(), "out.mp4")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(fake.calls) != 0 {
		t.Fatalf("expected no ffmpeg calls, got %d", len(fake.calls))
	}
}

func TestFadeDurationsClampToShortClips(t *testing.T) {
	fades := fadeDurations([]float64{3, 0.6, 4})
	if fades[0] != 0 || fades[1] != 0.3 || fades[2] != 0.3 {
		t.Fatalf("unexpected fades %v", fades)
	}
}

func TestShiftedCuesSkipBlankSubtitles(t *testing.T) {
	plan := timeline.RenderPlan{
		Clips: []timeline.Clip{
			{Index: 0, Start: 0, Target: 3},
			{Index: 1, Start: 3, Target: 2},
			{Index: 2, Start: 5, Target: 2},
		},
		Subtitles: []timeline.Subtitle{
			{Index: 0, Text: "Hello", Start: 0, End: 3},
			{Index: 1, Text: "  ", Start: 3, End: 5},
			{Index: 2, Text: "Bye", Start: 5, End: 7},
		},
	}
	cues := shiftedCues(plan, []float64{3, 2, 2})
	if len(cues) != 2 {
		t.Fatalf("expected blank subtitle dropped, got %+v", cues)
	}
	if cues[0].text != "Hello" || cues[0].start != 0 || cues[0].end != 3 {
		t.Fatalf("unexpected first cue %+v", cues[0])
	}
	// Two 0.5s crossfades pull the third clip back by one second.
	if cues[1].text != "Bye" || cues[1].start != 4 || cues[1].end != 6 {
		t.Fatalf("unexpected second cue %+v", cues[1])
	}
}

func TestFormatSRTTimestamp(t *testing.T) {
	tests := map[float64]string{
		0:       "00:00:00,000",
		5.5:     "00:00:05,500",
		3661.25: "01:01:01,250",
		-2:      "00:00:00,000",
	}
	for in, want := range tests {
		if got := formatSRTTimestamp(in); got != want {
			t.Fatalf("formatSRTTimestamp(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestEscapeFilterPath(t *testing.T) {
	got := escapeFilterPath(`/tmp/a:b,c's.srt`)
	want := `/tmp/a\\:b\,c\\\'s.srt`
	if got != want {
		t.Fatalf("escapeFilterPath = %q, want %q", got, want)
	}
}

func TestPlaceholderStillsWritesFrame(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "image")
	stills := PlaceholderStills{Dir: dir, Width: 64, Height: 36}
	path, err := stills.GenerateImage(context.Background(), 2, "a prompt", "")
	if err != nil {
		t.Fatalf("GenerateImage returned error: %v", err)
	}
	if filepath.Base(path) != "scene_002_placeholder.png" {
		t.Fatalf("unexpected placeholder name %q", path)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		t.Fatalf("expected non-empty placeholder at %s: %v", path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := stills.GenerateImage(ctx, 3, "", ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
