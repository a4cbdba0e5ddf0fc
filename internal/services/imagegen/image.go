package imagegen

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"storyloom/internal/services"
)

const (
	imageServicePath = "services/aigc/text2image/image-synthesis"
	defaultImageSize = "1328*1328"
)

// ImageClient renders stills through the text-to-image endpoint.
type ImageClient struct {
	tasks     *taskClient
	anchorDir string
	boardDir  string
}

// NewImageClient writes anchor images to anchorDir and scene stills to boardDir.
func NewImageClient(cfg Config, anchorDir, boardDir string, opts ...Option) *ImageClient {
	if strings.TrimSpace(cfg.Size) == "" {
		cfg.Size = defaultImageSize
	}
	return &ImageClient{
		tasks:     newTaskClient(cfg, opts),
		anchorDir: anchorDir,
		boardDir:  boardDir,
	}
}

// GenerateAnchor renders the style reference image for a run.
func (c *ImageClient) GenerateAnchor(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", services.Wrap(services.ErrValidation, "imagegen", "anchor", "prompt required", nil)
	}
	out, err := c.tasks.run(ctx, imageServicePath, c.request(prompt, ""))
	if err != nil {
		return "", err
	}
	url, err := firstResultURL(out)
	if err != nil {
		return "", err
	}
	return c.tasks.download(ctx, url, c.anchorDir, "")
}

// GenerateImage renders a scene still. A non-empty anchorImage is sent as a
// reference so scenes share the anchor's look.
func (c *ImageClient) GenerateImage(ctx context.Context, sceneIndex int, prompt, anchorImage string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", services.Wrap(services.ErrValidation, "imagegen", "generate", fmt.Sprintf("scene %d has no visual prompt", sceneIndex), nil)
	}
	var ref string
	if anchorImage = strings.TrimSpace(anchorImage); anchorImage != "" {
		encoded, err := dataURL(anchorImage)
		if err != nil {
			return "", services.Wrap(services.ErrNotFound, "imagegen", "read anchor", anchorImage, err)
		}
		ref = encoded
	}
	out, err := c.tasks.run(ctx, imageServicePath, c.request(prompt, ref))
	if err != nil {
		return "", err
	}
	url, err := firstResultURL(out)
	if err != nil {
		return "", err
	}
	ext := filepath.Ext(fileNameFromURL(url))
	if ext == "" {
		ext = ".png"
	}
	name := fmt.Sprintf("board_img_%d_%s%s", sceneIndex, uuid.NewString()[:8], ext)
	return c.tasks.download(ctx, url, c.boardDir, name)
}

func (c *ImageClient) request(prompt, refImage string) taskRequest {
	input := map[string]any{"prompt": prompt}
	if refImage != "" {
		input["ref_img"] = refImage
	}
	return taskRequest{
		Input: input,
		Parameters: map[string]any{
			"n":             1,
			"size":          c.tasks.cfg.Size,
			"prompt_extend": true,
			"watermark":     false,
		},
	}
}

func firstResultURL(out taskOutput) (string, error) {
	for _, result := range out.Results {
		if url := strings.TrimSpace(result.URL); url != "" {
			return url, nil
		}
	}
	return "", services.Wrap(services.ErrExternalTool, "imagegen", "result", "task succeeded without an image url", nil)
}
