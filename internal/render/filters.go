package render

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"storyloom/internal/timeline"
)

const (
	sampleRate    = 44100
	channelLayout = "stereo"
)

// segmentSpec describes one clip after asset resolution.
type segmentSpec struct {
	visual  string
	still   bool
	audio   string
	target  float64
	native  float64
	output  string
	stretch float64
}

// canvas holds the output geometry and encoder settings.
type canvas struct {
	width      int
	height     int
	fps        int
	videoCodec string
	audioCodec string
	preset     string
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// segmentArgs builds the ffmpeg invocation that encodes one clip to exactly
// spec.target seconds.
func segmentArgs(c canvas, spec segmentSpec) []string {
	target := seconds(spec.target)
	args := []string{"-hide_banner", "-loglevel", "error", "-y"}
	if spec.still {
		args = append(args, "-loop", "1", "-framerate", strconv.Itoa(c.fps), "-t", target, "-i", spec.visual)
	} else {
		args = append(args, "-i", spec.visual)
	}
	if spec.audio != "" {
		args = append(args, "-i", spec.audio)
	} else {
		args = append(args, "-f", "lavfi", "-t", target, "-i",
			fmt.Sprintf("anullsrc=r=%d:cl=%s", sampleRate, channelLayout))
	}

	var video []string
	video = append(video, "setpts=PTS-STARTPTS")
	if !spec.still && spec.stretch > 0 && spec.stretch != 1 {
		video = append(video, fmt.Sprintf("setpts=PTS/%s", strconv.FormatFloat(spec.stretch, 'f', 6, 64)))
	}
	video = append(video,
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", c.width, c.height),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black", c.width, c.height),
		"setsar=1",
		fmt.Sprintf("fps=%d", c.fps),
		fmt.Sprintf("tpad=stop_mode=clone:stop_duration=%s", target),
		fmt.Sprintf("trim=duration=%s", target),
		"setpts=PTS-STARTPTS",
		"format=yuv420p",
	)
	audio := []string{
		fmt.Sprintf("aresample=%d", sampleRate),
		fmt.Sprintf("aformat=channel_layouts=%s", channelLayout),
		"apad",
		fmt.Sprintf("atrim=duration=%s", target),
		"asetpts=PTS-STARTPTS",
	}
	graph := "[0:v]" + strings.Join(video, ",") + "[v];[1:a]" + strings.Join(audio, ",") + "[a]"

	args = append(args,
		"-filter_complex", graph,
		"-map", "[v]", "-map", "[a]",
		"-c:v", c.videoCodec, "-preset", c.preset,
		"-r", strconv.Itoa(c.fps),
		"-c:a", c.audioCodec, "-ar", strconv.Itoa(sampleRate),
		"-t", target,
		spec.output,
	)
	return args
}

// fadeDurations returns the crossfade between clip i-1 and clip i for every
// i > 0. The fade never exceeds half of either neighbour.
func fadeDurations(targets []float64) []float64 {
	fades := make([]float64, len(targets))
	for i := 1; i < len(targets); i++ {
		fades[i] = math.Min(timeline.Crossfade, math.Min(targets[i-1], targets[i])/2)
	}
	return fades
}

// renderedStarts maps each clip's timeline start to where it begins in the
// crossfaded output.
func renderedStarts(targets, fades []float64) []float64 {
	starts := make([]float64, len(targets))
	t := 0.0
	for i, target := range targets {
		if i > 0 {
			t -= fades[i]
		}
		starts[i] = t
		t += target
	}
	return starts
}

// concatGraph joins n segment inputs with xfade/acrossfade and returns the
// filter graph plus the labels of the joined video and audio streams.
func concatGraph(targets, fades []float64) (string, string, string) {
	if len(targets) == 1 {
		return "[0:v]null[vcat];[0:a]anull[acat]", "[vcat]", "[acat]"
	}
	var parts []string
	prevV, prevA := "[0:v]", "[0:a]"
	length := targets[0]
	for i := 1; i < len(targets); i++ {
		outV, outA := fmt.Sprintf("[v%d]", i), fmt.Sprintf("[a%d]", i)
		if i == len(targets)-1 {
			outV, outA = "[vcat]", "[acat]"
		}
		offset := length - fades[i]
		parts = append(parts,
			fmt.Sprintf("%s[%d:v]xfade=transition=fade:duration=%s:offset=%s%s", prevV, i, seconds(fades[i]), seconds(offset), outV),
			fmt.Sprintf("%s[%d:a]acrossfade=d=%s%s", prevA, i, seconds(fades[i]), outA),
		)
		prevV, prevA = outV, outA
		length += targets[i] - fades[i]
	}
	return strings.Join(parts, ";"), "[vcat]", "[acat]"
}

// subtitleFilter burns srtPath into the video stream.
func subtitleFilter(srtPath string, fontSize int) string {
	style := fmt.Sprintf("FontSize=%d,PrimaryColour=&H00FFFFFF,OutlineColour=&H00000000,BorderStyle=1,Outline=2,Alignment=2,MarginV=30", fontSize)
	return fmt.Sprintf("subtitles=%s:force_style='%s'", escapeFilterPath(srtPath), style)
}

var filterPathEscaper = strings.NewReplacer(
	`\`, `\\\\`,
	`'`, `\\\'`,
	`:`, `\\:`,
	`,`, `\,`,
	`[`, `\[`,
	`]`, `\]`,
	`;`, `\;`,
)

func escapeFilterPath(path string) string {
	return filterPathEscaper.Replace(path)
}

// finalArgs builds the ffmpeg invocation that joins the segments, burns
// subtitles and mixes the music bed.
func finalArgs(c canvas, segments []string, targets []float64, srtPath, bgmPath string, bgmVolume float64, fontSize int, output string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y"}
	for _, seg := range segments {
		args = append(args, "-i", seg)
	}
	if bgmPath != "" {
		args = append(args, "-stream_loop", "-1", "-i", bgmPath)
	}

	fades := fadeDurations(targets)
	graph, videoLabel, audioLabel := concatGraph(targets, fades)
	if srtPath != "" {
		graph += ";" + videoLabel + subtitleFilter(srtPath, fontSize) + "[vsub]"
		videoLabel = "[vsub]"
	}
	if bgmPath != "" {
		bgm := len(segments)
		graph += fmt.Sprintf(";[%d:a]volume=%s[bgm];%s[bgm]amix=inputs=2:duration=first:dropout_transition=0[amix]",
			bgm, strconv.FormatFloat(bgmVolume, 'f', 2, 64), audioLabel)
		audioLabel = "[amix]"
	}

	args = append(args,
		"-filter_complex", graph,
		"-map", videoLabel, "-map", audioLabel,
		"-c:v", c.videoCodec, "-preset", c.preset, "-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(c.fps),
		"-c:a", c.audioCodec,
		"-movflags", "+faststart",
		"-f", "mp4",
		output,
	)
	return args
}
