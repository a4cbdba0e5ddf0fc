package imagegen

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"storyloom/internal/services"
)

const videoServicePath = "services/aigc/video-generation/video-synthesis"

// Clip is a downloaded image-to-video result.
type Clip struct {
	Path string
	// ActualPrompt is the prompt the backend rewrote and used, if reported.
	ActualPrompt string
}

// VideoClient animates stills through the image-to-video endpoint.
type VideoClient struct {
	tasks    *taskClient
	videoDir string
}

// NewVideoClient writes clips to videoDir.
func NewVideoClient(cfg Config, videoDir string, opts ...Option) *VideoClient {
	return &VideoClient{tasks: newTaskClient(cfg, opts), videoDir: videoDir}
}

// Animate uploads imagePath and waits for the generated clip.
func (c *VideoClient) Animate(ctx context.Context, sceneIndex int, imagePath string, motionStrength float64) (Clip, error) {
	imgURL, err := dataURL(imagePath)
	if err != nil {
		return Clip{}, services.Wrap(services.ErrNotFound, "imagegen", "read still", imagePath, err)
	}
	req := taskRequest{
		Input: map[string]any{"img_url": imgURL},
		Parameters: map[string]any{
			"prompt_extend":   true,
			"motion_strength": motionStrength,
		},
	}
	out, err := c.tasks.run(ctx, videoServicePath, req)
	if err != nil {
		return Clip{}, err
	}
	if strings.TrimSpace(out.VideoURL) == "" {
		return Clip{}, services.Wrap(services.ErrExternalTool, "imagegen", "animate", "task succeeded without a video url", nil)
	}
	name := fmt.Sprintf("vid_%d_%s.mp4", sceneIndex, uuid.NewString()[:8])
	path, err := c.tasks.download(ctx, out.VideoURL, c.videoDir, name)
	if err != nil {
		return Clip{}, err
	}
	return Clip{Path: path, ActualPrompt: strings.TrimSpace(out.ActualPrompt)}, nil
}
