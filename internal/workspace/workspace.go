// Package workspace lays out the per-run asset directories and guards final
// output files against concurrent renders.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// stampLayout is month-day-hour-minute, so runs sort chronologically within a year.
const stampLayout = "01-02-15-04"

// Workspace holds the directories one run writes into.
type Workspace struct {
	Root          string
	ImageDir      string
	AudioDir      string
	StoryboardDir string
	VideoDir      string
	RenderDir     string
}

// Plan lays out a workspace under workDir named after the start time and the
// first eight characters of runID, without touching the filesystem.
func Plan(workDir, runID string, started time.Time) (*Workspace, error) {
	workDir = strings.TrimSpace(workDir)
	if workDir == "" {
		return nil, errors.New("workspace: work directory required")
	}
	name := started.Format(stampLayout)
	if short := shortID(runID); short != "" {
		name += "-" + short
	}
	root := filepath.Join(workDir, name)
	return &Workspace{
		Root:          root,
		ImageDir:      filepath.Join(root, "image"),
		AudioDir:      filepath.Join(root, "audio"),
		StoryboardDir: filepath.Join(root, "storyboard"),
		VideoDir:      filepath.Join(root, "video"),
		RenderDir:     filepath.Join(root, "render"),
	}, nil
}

// Create plans a workspace and makes its directories.
func Create(workDir, runID string, started time.Time) (*Workspace, error) {
	ws, err := Plan(workDir, runID, started)
	if err != nil {
		return nil, err
	}
	for _, dir := range ws.dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("workspace: create %s: %w", dir, err)
		}
	}
	return ws, nil
}

func (w *Workspace) dirs() []string {
	return []string{w.ImageDir, w.AudioDir, w.StoryboardDir, w.VideoDir, w.RenderDir}
}

func shortID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// OutputLock is an advisory lock on a final output path.
type OutputLock struct {
	lock *flock.Flock
	path string
}

// ErrOutputBusy is returned when another run holds the output lock.
var ErrOutputBusy = errors.New("output file is being written by another run")

// LockOutput acquires an exclusive lock beside outputPath, retrying until ctx
// is done. A zero wait tries exactly once.
func LockOutput(ctx context.Context, outputPath string, wait time.Duration) (*OutputLock, error) {
	lockPath := outputPath + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create output dir: %w", err)
	}
	fl := flock.New(lockPath)
	var (
		ok  bool
		err error
	)
	if wait <= 0 {
		ok, err = fl.TryLock()
	} else {
		lockCtx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		ok, err = fl.TryLockContext(lockCtx, 100*time.Millisecond)
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("workspace: acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOutputBusy, outputPath)
	}
	return &OutputLock{lock: fl, path: lockPath}, nil
}

// Unlock releases the lock. The lock file stays so waiters never race on an
// unlinked inode.
func (l *OutputLock) Unlock() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}

// Path returns the lock file location.
func (l *OutputLock) Path() string {
	return l.path
}
