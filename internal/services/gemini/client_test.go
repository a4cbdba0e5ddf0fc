package gemini

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
)

func TestImageFormat(t *testing.T) {
	tests := map[string]string{
		"image/png":  "png",
		"image/jpeg": "jpeg",
		"image/jpg":  "jpeg",
		"":           "jpeg",
		"IMAGE/WEBP": "webp",
	}
	for in, want := range tests {
		if got := imageFormat(in); got != want {
			t.Fatalf("imageFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractTextJoinsTextParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"ok":`), genai.Text(`true}`)}},
		}},
	}
	got, err := extractText(resp)
	if err != nil {
		t.Fatalf("extractText: %v", err)
	}
	if got != `{"ok":true}` {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestExtractTextEmpty(t *testing.T) {
	if _, err := extractText(&genai.GenerateContentResponse{}); err == nil {
		t.Fatal("expected error for empty response")
	}
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []genai.Part{genai.Blob{MIMEType: "image/png"}}}}},
	}
	if _, err := extractText(resp); err == nil {
		t.Fatal("expected error when no text parts are present")
	}
}

func TestNewClientRequiresKeyAndModel(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{Model: "gemini-2.5-flash"}); err == nil {
		t.Fatal("expected error without api key")
	}
	if _, err := NewClient(context.Background(), Config{APIKey: "k"}); err == nil {
		t.Fatal("expected error without model")
	}
}
