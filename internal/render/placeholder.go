package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
)

// writePlaceholder renders the black frame used for scenes without visuals.
// An existing file is reused.
func writePlaceholder(path string, width, height int) error {
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return nil
	}
	dc := gg.NewContext(width, height)
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("write placeholder frame: %w", err)
	}
	return nil
}

// PlaceholderStills stands in for the image backend when none is configured.
// Every scene gets a black frame at the canvas size, so the run still
// produces a narrated video.
type PlaceholderStills struct {
	Dir    string
	Width  int
	Height int
}

// GenerateImage writes scene_NNN_placeholder.png into Dir.
func (p PlaceholderStills) GenerateImage(ctx context.Context, sceneIndex int, _, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	width, height := p.Width, p.Height
	if width <= 0 || height <= 0 {
		width, height = 1280, 720
	}
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create placeholder directory: %w", err)
	}
	path := filepath.Join(p.Dir, fmt.Sprintf("scene_%03d_placeholder.png", sceneIndex))
	if err := writePlaceholder(path, width, height); err != nil {
		return "", err
	}
	return path, nil
}
