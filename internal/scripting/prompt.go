package scripting

import (
	"fmt"
	"strings"
)

const styleSystemPrompt = `You are an art director for short narrated videos.
Expand the user's short style hint into one detailed image-generation style prompt
that fits the topic. Keep it under 60 words, comma separated, no camera moves.

Respond with JSON only: {"style_prompt": "<prompt>"}`

const storyboardSystemPrompt = `You are a video director. Plan a storyboard for a short narrated video.

Respond with JSON only, exactly in this shape:
{
  "items": [
    {
      "text_content": "the spoken narration for this shot (1-2 sentences)",
      "emotion": "one word delivery emotion, e.g. excited, sad, mysterious",
      "visual_prompt": "a detailed image generation prompt that applies the visual style",
      "visual_tags": ["shot type", "subject"],
      "estimated_duration": <seconds as a number>
    }
  ]
}`

// sceneRange maps a target length to the scene count requested from the model.
func sceneRange(targetLength string) (int, int) {
	switch strings.ToLower(strings.TrimSpace(targetLength)) {
	case "medium":
		return 8, 12
	case "long":
		return 15, 20
	default:
		return 4, 6
	}
}

func styleUserPrompt(topic, style string) string {
	return fmt.Sprintf("Topic: %s\nStyle: %s", topic, style)
}

func storyboardUserPrompt(topic, stylePrompt, targetLength, aspectRatio string) string {
	lo, hi := sceneRange(targetLength)
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\nVisual Style: %s\n", topic, stylePrompt)
	fmt.Fprintf(&b, "Write between %d and %d scenes.", lo, hi)
	if aspectRatio = strings.TrimSpace(aspectRatio); aspectRatio != "" {
		fmt.Fprintf(&b, " Frame every shot for a %s aspect ratio.", aspectRatio)
	}
	return b.String()
}
