package visual

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"storyloom/internal/services"
	"storyloom/internal/services/llm"
)

// VisionCompleter is the multimodal slice of a chat backend.
type VisionCompleter interface {
	CompleteJSONWithImage(ctx context.Context, systemPrompt, userPrompt string, image []byte, mimeType string) (string, error)
}

// ModelValidator asks a vision-language model to grade an image.
type ModelValidator struct {
	client VisionCompleter
}

// NewModelValidator wraps a vision-capable chat client.
func NewModelValidator(client VisionCompleter) *ModelValidator {
	return &ModelValidator{client: client}
}

// Validate implements Validator.
func (v *ModelValidator) Validate(ctx context.Context, imagePath, prompt string) (Verdict, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return Verdict{}, services.Wrap(services.ErrNotFound, "visual", "read image", imagePath, err)
	}
	content, err := v.client.CompleteJSONWithImage(ctx, validationSystemPrompt, prompt, data, imageMIMEType(imagePath))
	if err != nil {
		return Verdict{}, services.Wrap(services.ErrExternalTool, "visual", "validate image", "", err)
	}
	var verdict Verdict
	if err := llm.DecodeJSON(content, &verdict); err != nil {
		return Verdict{}, services.Wrap(services.ErrValidation, "visual", "parse verdict", "", err)
	}
	verdict.Alignment = verdict.Alignment.clamp()
	verdict.Quality = verdict.Quality.clamp()
	return verdict, nil
}

// PassthroughValidator accepts every image. It is used when no vision model is
// configured so runs still complete.
type PassthroughValidator struct{}

func (PassthroughValidator) Validate(context.Context, string, string) (Verdict, error) {
	return Verdict{
		Alignment: 10,
		Quality:   10,
		Satisfied: true,
		Comment:   "validation disabled: no vision model configured",
	}, nil
}

func imageMIMEType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != "" {
		if t := mime.TypeByExtension(ext); strings.HasPrefix(t, "image/") {
			if idx := strings.Index(t, ";"); idx >= 0 {
				t = t[:idx]
			}
			return t
		}
	}
	return "image/jpeg"
}

var validationSystemPrompt = strings.TrimSpace(fmt.Sprintf(`
You are an expert judge of image quality and text-image consistency.

You receive:
1) the original text prompt used to generate an image
2) the generated image

Your task:
- Judge how well the image matches the prompt (semantics, objects, attributes, counts, relations, style).
- Judge the visual quality (sharpness, artifacts, composition, realism or stylistic consistency).
- Identify obvious errors (missing elements, wrong attributes, wrong counts, distortions, garbled text).

Respond with JSON only, exactly in this shape:

{
  "prompt_image_alignment_score": <integer 1-%[1]d>,
  "visual_quality_score": <integer 1-%[1]d>,
  "is_prompt_satisfied": <true or false>,
  "problems": ["short description of problem 1", "short description of problem 2"],
  "positive_aspects": ["short description of strength 1", "short description of strength 2"],
  "overall_comment": "one or two sentence summary"
}
`, 10))
