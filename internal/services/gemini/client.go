// Package gemini adapts Google's Gemini models to the JSON completion surface
// shared with the llm package, so either backend can plan storyboards and
// grade images.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Config selects the key and models used for requests.
type Config struct {
	APIKey      string
	Model       string
	VisionModel string
}

// Client wraps a genai client. Close it when done.
type Client struct {
	client      *genai.Client
	model       string
	visionModel string
}

// NewClient dials the Gemini API with an API key.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini: api key required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("gemini: model required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	vision := strings.TrimSpace(cfg.VisionModel)
	if vision == "" {
		vision = model
	}
	return &Client{client: client, model: model, visionModel: vision}, nil
}

// Close releases the underlying connection.
func (g *Client) Close() error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Close()
}

// CompleteJSON asks the text model for a JSON-only answer.
func (g *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if strings.TrimSpace(userPrompt) == "" {
		return "", errors.New("gemini complete: user prompt required")
	}
	model := g.jsonModel(g.model, systemPrompt)
	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("gemini generation error: %w", err)
	}
	return extractText(resp)
}

// CompleteJSONWithImage sends the prompt and an inline image to the vision model.
func (g *Client) CompleteJSONWithImage(ctx context.Context, systemPrompt, userPrompt string, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", errors.New("gemini vision: image required")
	}
	model := g.jsonModel(g.visionModel, systemPrompt)
	resp, err := model.GenerateContent(ctx,
		genai.Text("Original prompt: "+strings.TrimSpace(userPrompt)),
		genai.ImageData(imageFormat(mimeType), image),
	)
	if err != nil {
		return "", fmt.Errorf("gemini generation error: %w", err)
	}
	return extractText(resp)
}

func (g *Client) jsonModel(name, systemPrompt string) *genai.GenerativeModel {
	model := g.client.GenerativeModel(name)
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"
	if sys := strings.TrimSpace(systemPrompt); sys != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(sys)}}
	}
	return model
}

// imageFormat maps a MIME type to the short format genai.ImageData expects.
func imageFormat(mimeType string) string {
	format := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
	switch format {
	case "", "jpg":
		return "jpeg"
	default:
		return format
	}
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("empty response from gemini")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", errors.New("gemini response contained no text")
	}
	return sb.String(), nil
}
