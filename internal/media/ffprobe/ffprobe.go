package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// Result is the subset of ffprobe's JSON output the pipeline reads.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Duration  string `json:"duration"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	FrameRate string `json:"avg_frame_rate"`
}

// Format captures container-level metadata.
type Format struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	FormatName string `json:"format_name"`
}

var probeArgs = []string{"-v", "error", "-hide_banner", "-of", "json", "-show_format", "-show_streams"}

// Inspect runs ffprobe on path and decodes its report. An empty binary means
// "ffprobe" from PATH.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	if path = strings.TrimSpace(path); path == "" {
		return Result{}, errors.New("probe: no input path")
	}
	if binary = strings.TrimSpace(binary); binary == "" {
		binary = "ffprobe"
	}
	args := append(slices.Clone(probeArgs), "--", path)
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe %s: %w: %s", filepath.Base(path), err, strings.TrimSpace(stderr.String()))
	}
	return Parse(out)
}

// Parse decodes a JSON report produced with -of json.
func Parse(report []byte) (Result, error) {
	var r Result
	if err := json.Unmarshal(report, &r); err != nil {
		return Result{}, fmt.Errorf("decode ffprobe report: %w", err)
	}
	return r, nil
}

// DurationSeconds returns the container duration, falling back to the longest
// stream duration. It returns 0 when neither is usable.
func (r Result) DurationSeconds() float64 {
	if d := parseFloat(r.Format.Duration); d > 0 {
		return d
	}
	var longest float64
	for _, stream := range r.Streams {
		if d := parseFloat(stream.Duration); d > longest {
			longest = d
		}
	}
	return longest
}

// HasVideo reports whether any stream is a video stream.
func (r Result) HasVideo() bool {
	return r.firstOfType("video") != nil
}

// HasAudio reports whether any stream is an audio stream.
func (r Result) HasAudio() bool {
	return r.firstOfType("audio") != nil
}

// Dimensions returns the first video stream's width and height.
func (r Result) Dimensions() (int, int) {
	if s := r.firstOfType("video"); s != nil {
		return s.Width, s.Height
	}
	return 0, 0
}

func (r Result) firstOfType(codecType string) *Stream {
	for i := range r.Streams {
		if strings.EqualFold(r.Streams[i].CodecType, codecType) {
			return &r.Streams[i]
		}
	}
	return nil
}

// Prober binds a binary path so callers can probe durations without carrying
// configuration around.
type Prober struct {
	Binary string
}

// Duration returns the media duration of path in seconds.
func (p Prober) Duration(ctx context.Context, path string) (float64, error) {
	result, err := Inspect(ctx, p.Binary, path)
	if err != nil {
		return 0, err
	}
	d := result.DurationSeconds()
	if d <= 0 {
		return 0, fmt.Errorf("ffprobe %s: no duration", filepath.Base(path))
	}
	return d, nil
}

func parseFloat(value string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
