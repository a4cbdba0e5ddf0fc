package main

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"storyloom/internal/deps"
	"storyloom/internal/runstore"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Result", statusError, "render failed", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Result:", "[ERROR] render failed")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Result", statusOK, "done", true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green line, got %q", got)
	}
}

func TestDependencyLines(t *testing.T) {
	lines := dependencyLines([]deps.Status{
		{Name: "FFmpeg", Available: false, Detail: `binary "ffmpeg" not found`},
		{Name: "FFprobe", Available: true, Command: "/usr/bin/ffprobe", Optional: true},
		{Name: "Other", Available: false, Optional: true, Detail: "not configured"},
	}, false)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[ERROR] binary") {
		t.Fatalf("expected error for missing required binary, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "[OK] Ready (command: /usr/bin/ffprobe)") {
		t.Fatalf("expected ready line, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "[WARN] not configured") {
		t.Fatalf("expected warning for optional binary, got %q", lines[2])
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"ID", "Topic", "Duration"}, [][]string{{"abc", "Deep sea"}, {"def"}}, 2)
	// Headers use go-pretty's default upper-case format.
	for _, want := range []string{"ID", "TOPIC", "DURATION", "abc", "Deep sea", "def"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in table:\n%s", want, out)
		}
	}
	if renderTable(nil, nil) != "" {
		t.Fatal("expected empty table without headers")
	}
}

func TestRunRowsFormatsColumns(t *testing.T) {
	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	finished := created.Add(90 * time.Second)
	rows := runRows([]*runstore.Run{{
		ID:         "0123456789abcdef",
		Topic:      strings.Repeat("a", 60),
		Status:     runstore.StatusCompleted,
		FinalPath:  "/videos/final_x.mp4",
		CreatedAt:  created,
		FinishedAt: &finished,
	}}, created.Add(time.Hour))
	row := rows[0]
	if row[0] != "01234567" {
		t.Fatalf("expected short id, got %q", row[0])
	}
	if len([]rune(row[1])) != topicColumnWidth || !strings.HasSuffix(row[1], "...") {
		t.Fatalf("expected truncated topic, got %q", row[1])
	}
	if row[4] != "1m30s" {
		t.Fatalf("expected finished duration, got %q", row[4])
	}
	if row[5] != "final_x.mp4" {
		t.Fatalf("expected output base name, got %q", row[5])
	}
}
