package visual

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"storyloom/internal/services"
)

type cannedVision struct {
	answer   string
	err      error
	mimeType string
	image    []byte
}

func (c *cannedVision) CompleteJSONWithImage(_ context.Context, _, _ string, image []byte, mimeType string) (string, error) {
	c.image = image
	c.mimeType = mimeType
	return c.answer, c.err
}

func writeTestImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene.png")
	if err := os.WriteFile(path, []byte("png-bytes"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

func TestModelValidatorDecodesScores(t *testing.T) {
	tests := []struct {
		name      string
		answer    string
		alignment Score
		quality   Score
		accepted  bool
	}{
		{
			name:      "integers",
			answer:    `{"prompt_image_alignment_score": 7, "visual_quality_score": 6, "is_prompt_satisfied": true}`,
			alignment: 7, quality: 6, accepted: true,
		},
		{
			name:      "decimals with zero fraction",
			answer:    `{"prompt_image_alignment_score": 8.0, "visual_quality_score": 7.0, "is_prompt_satisfied": true}`,
			alignment: 8, quality: 7, accepted: true,
		},
		{
			name:      "fractional scores on the boundary",
			answer:    `{"prompt_image_alignment_score": 6.5, "visual_quality_score": 5.5, "is_prompt_satisfied": true}`,
			alignment: 6.5, quality: 5.5, accepted: false,
		},
		{
			name:      "quoted numbers",
			answer:    `{"prompt_image_alignment_score": "9", "visual_quality_score": " 8.5 ", "is_prompt_satisfied": true}`,
			alignment: 9, quality: 8.5, accepted: true,
		},
		{
			name:      "out of range is clamped",
			answer:    "```json\n{\"prompt_image_alignment_score\": 14, \"visual_quality_score\": -2, \"is_prompt_satisfied\": true}\n```",
			alignment: 10, quality: 0, accepted: false,
		},
		{
			name:      "null score",
			answer:    `{"prompt_image_alignment_score": null, "visual_quality_score": 9, "is_prompt_satisfied": true}`,
			alignment: 0, quality: 9, accepted: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vision := &cannedVision{answer: tt.answer}
			verdict, err := NewModelValidator(vision).Validate(context.Background(), writeTestImage(t), "a lighthouse")
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if verdict.Alignment != tt.alignment || verdict.Quality != tt.quality {
				t.Fatalf("scores = %v/%v, want %v/%v", verdict.Alignment, verdict.Quality, tt.alignment, tt.quality)
			}
			if verdict.Accepted() != tt.accepted {
				t.Fatalf("Accepted() = %v, want %v", verdict.Accepted(), tt.accepted)
			}
			if vision.mimeType != "image/png" || string(vision.image) != "png-bytes" {
				t.Fatalf("unexpected image payload %q (%s)", vision.image, vision.mimeType)
			}
		})
	}
}

func TestModelValidatorRejectsNonNumericScore(t *testing.T) {
	vision := &cannedVision{answer: `{"prompt_image_alignment_score": "high", "visual_quality_score": 9}`}
	_, err := NewModelValidator(vision).Validate(context.Background(), writeTestImage(t), "a lighthouse")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestModelValidatorMissingImage(t *testing.T) {
	_, err := NewModelValidator(&cannedVision{}).Validate(context.Background(), filepath.Join(t.TempDir(), "gone.png"), "p")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestModelValidatorBackendError(t *testing.T) {
	vision := &cannedVision{err: errors.New("503")}
	_, err := NewModelValidator(vision).Validate(context.Background(), writeTestImage(t), "p")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}
