package visual

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	// MaxAttempts bounds image generations per scene.
	MaxAttempts = 3
	// AcceptScoreThreshold is the exclusive lower bound for alignment+quality.
	AcceptScoreThreshold = 12
	// MotionStrength is passed to the image-to-video backend.
	MotionStrength = 0.5
)

// Score is a 0-10 grade. Models answer with integers, decimals or quoted
// numbers; all three decode.
type Score float64

func (s *Score) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*s = 0
		return nil
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	}
	var v float64
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return fmt.Errorf("score %s: not a number", string(data))
	}
	*s = Score(v)
	return nil
}

func (s Score) clamp() Score {
	return min(max(s, 0), 10)
}

// Verdict is the validator's judgement of one generated image. Scores are 1-10.
type Verdict struct {
	Alignment Score    `json:"prompt_image_alignment_score"`
	Quality   Score    `json:"visual_quality_score"`
	Satisfied bool     `json:"is_prompt_satisfied"`
	Problems  []string `json:"problems"`
	Positive  []string `json:"positive_aspects"`
	Comment   string   `json:"overall_comment"`
}

// Accepted applies the acceptance rule.
func (v Verdict) Accepted() bool {
	return v.Satisfied && v.Alignment+v.Quality > AcceptScoreThreshold
}

// Reason summarizes why an image was rejected. It is never empty.
func (v Verdict) Reason() string {
	problems := make([]string, 0, len(v.Problems))
	for _, p := range v.Problems {
		if p = strings.TrimSpace(p); p != "" {
			problems = append(problems, p)
		}
	}
	if len(problems) > 0 {
		return strings.Join(problems, "; ")
	}
	if comment := strings.TrimSpace(v.Comment); comment != "" {
		return comment
	}
	if !v.Satisfied {
		return "prompt not satisfied"
	}
	return fmt.Sprintf("alignment %g + quality %g not above %d", v.Alignment, v.Quality, AcceptScoreThreshold)
}
