package scripting

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"storyloom/internal/services"
	"storyloom/internal/storyboard"
)

// Item is the serialized form of a planned scene, shared by model responses
// and storyboard files.
type Item struct {
	Text              string   `json:"text_content" yaml:"text_content"`
	Emotion           string   `json:"emotion" yaml:"emotion"`
	VisualPrompt      string   `json:"visual_prompt" yaml:"visual_prompt"`
	VisualTags        []string `json:"visual_tags" yaml:"visual_tags,omitempty"`
	EstimatedDuration float64  `json:"estimated_duration" yaml:"estimated_duration"`
}

// File is the on-disk storyboard document.
type File struct {
	Topic       string `yaml:"topic,omitempty"`
	StylePrompt string `yaml:"style_prompt,omitempty"`
	Scenes      []Item `yaml:"scenes"`
}

// ToScenes assigns indices 0..N-1 in order and trims text fields. Items with
// neither narration nor a visual prompt are dropped.
func ToScenes(items []Item) []storyboard.Scene {
	scenes := make([]storyboard.Scene, 0, len(items))
	for _, item := range items {
		text := strings.TrimSpace(item.Text)
		prompt := strings.TrimSpace(item.VisualPrompt)
		if text == "" && prompt == "" {
			continue
		}
		var tags []string
		for _, tag := range item.VisualTags {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
		duration := item.EstimatedDuration
		if duration < 0 {
			duration = 0
		}
		scenes = append(scenes, storyboard.Scene{
			Index:             len(scenes),
			Text:              text,
			Emotion:           strings.TrimSpace(item.Emotion),
			VisualPrompt:      prompt,
			VisualTags:        tags,
			EstimatedDuration: duration,
		})
	}
	return scenes
}

// FromScenes converts scenes back into their serialized form.
func FromScenes(scenes []storyboard.Scene) []Item {
	items := make([]Item, 0, len(scenes))
	for _, sc := range scenes {
		items = append(items, Item{
			Text:              sc.Text,
			Emotion:           sc.Emotion,
			VisualPrompt:      sc.VisualPrompt,
			VisualTags:        append([]string(nil), sc.VisualTags...),
			EstimatedDuration: sc.EstimatedDuration,
		})
	}
	return items
}

// LoadFile reads a YAML storyboard.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, services.Wrap(services.ErrNotFound, "scripting", "load storyboard", path, err)
	}
	var doc File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return File{}, services.Wrap(services.ErrValidation, "scripting", "parse storyboard", path, err)
	}
	if len(ToScenes(doc.Scenes)) == 0 {
		return File{}, services.Wrap(services.ErrValidation, "scripting", "parse storyboard", path+": no scenes", nil)
	}
	return doc, nil
}

// SaveFile writes scenes as a YAML storyboard next to the run's assets.
func SaveFile(path, topic, stylePrompt string, scenes []storyboard.Scene) error {
	doc := File{Topic: topic, StylePrompt: stylePrompt, Scenes: FromScenes(scenes)}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode storyboard: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode storyboard: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create storyboard dir: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// FileScripter replays a loaded storyboard instead of asking a model.
type FileScripter struct {
	Doc File
}

// Storyboard returns the file's scenes, ignoring topic and style.
func (f FileScripter) Storyboard(context.Context, string, string) ([]storyboard.Scene, error) {
	return ToScenes(f.Doc.Scenes), nil
}
