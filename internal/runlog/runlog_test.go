package runlog

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeLog(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPath(t *testing.T) {
	if got := Path("/var/log/storyloom", "abc"); got != "/var/log/storyloom/runs/abc.log" {
		t.Fatalf("Path = %q", got)
	}
}

func TestLastReturnsTrailingLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	writeLog(t, path, "one\ntwo\nthree\nfour\n")

	lines, offset, err := Last(path, 2)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if !reflect.DeepEqual(lines, []string{"three", "four"}) {
		t.Fatalf("unexpected lines %v", lines)
	}
	if offset != int64(len("one\ntwo\nthree\nfour\n")) {
		t.Fatalf("unexpected offset %d", offset)
	}

	all, _, err := Last(path, 0)
	if err != nil || len(all) != 4 {
		t.Fatalf("expected every line, got %v (%v)", all, err)
	}
}

func TestLastMissingFile(t *testing.T) {
	lines, offset, err := Last(filepath.Join(t.TempDir(), "absent.log"), 10)
	if err != nil || lines != nil || offset != 0 {
		t.Fatalf("expected empty result, got %v %d %v", lines, offset, err)
	}
}

func TestReadFromKeepsPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	writeLog(t, path, "done\npart")

	lines, offset, err := readFrom(path, 0)
	if err != nil {
		t.Fatalf("readFrom: %v", err)
	}
	if !reflect.DeepEqual(lines, []string{"done"}) || offset != 5 {
		t.Fatalf("unexpected read %v offset %d", lines, offset)
	}
}

func TestFollowStopsWhenDone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	writeLog(t, path, "first\n")

	var got []string
	calls := 0
	done := func() bool {
		calls++
		if calls == 1 {
			f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				t.Fatal(err)
			}
			_, _ = f.WriteString("second\n")
			_ = f.Close()
			return false
		}
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Follow(ctx, path, 0, func(line string) { got = append(got, line) }, done); err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"first", "second"}) {
		t.Fatalf("unexpected followed lines %v", got)
	}
}
