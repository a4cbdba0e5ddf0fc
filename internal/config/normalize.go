package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeBackends()
	c.normalizeRender()
	c.normalizePipeline()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = ExpandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = ExpandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = ExpandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.BGMDir, err = ExpandPath(strings.TrimSpace(c.Paths.BGMDir)); err != nil {
		return fmt.Errorf("paths.bgm_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLLM() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = defaultLLMProvider
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		keys := []string{"LLM_API_KEY", "OPENAI_API_KEY", "OPENROUTER_API_KEY"}
		if c.LLM.Provider == ProviderGemini {
			keys = []string{"GEMINI_API_KEY", "LLM_API_KEY"}
		}
		c.LLM.APIKey = lookupFirstEnv(keys...)
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Provider == ProviderGemini && (c.LLM.Model == "" || c.LLM.Model == defaultLLMModel) {
		c.LLM.Model = defaultGeminiModel
	}
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.VisionModel = strings.TrimSpace(c.LLM.VisionModel)
	if c.LLM.VisionModel == "" {
		c.LLM.VisionModel = c.LLM.Model
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeBackends() {
	c.Image.APIKey = strings.TrimSpace(c.Image.APIKey)
	if c.Image.APIKey == "" {
		c.Image.APIKey = lookupFirstEnv("IMAGE_API_KEY", "DASHSCOPE_API_KEY")
	}
	if strings.TrimSpace(c.Image.BaseURL) == "" {
		c.Image.BaseURL = lookupFirstEnv("IMAGE_API_BASE")
	}
	c.Image.BaseURL = trimBaseURL(c.Image.BaseURL)
	c.Image.Model = strings.TrimSpace(c.Image.Model)
	if c.Image.Model == "" {
		c.Image.Model = lookupFirstEnv("IMAGE_MODEL_NAME")
	}
	if strings.TrimSpace(c.Image.Size) == "" {
		c.Image.Size = defaultImageSize
	}
	if c.Image.TimeoutSeconds <= 0 {
		c.Image.TimeoutSeconds = defaultImageTimeout
	}

	c.Video.APIKey = strings.TrimSpace(c.Video.APIKey)
	if c.Video.APIKey == "" {
		c.Video.APIKey = lookupFirstEnv("VIDEO_API_KEY")
	}
	if c.Video.APIKey == "" {
		c.Video.APIKey = c.Image.APIKey
	}
	if strings.TrimSpace(c.Video.BaseURL) == "" {
		c.Video.BaseURL = c.Image.BaseURL
	}
	c.Video.BaseURL = trimBaseURL(c.Video.BaseURL)
	c.Video.Model = strings.TrimSpace(c.Video.Model)
	if c.Video.TimeoutSeconds <= 0 {
		c.Video.TimeoutSeconds = defaultVideoTimeout
	}
	if c.Video.PollIntervalSeconds <= 0 {
		c.Video.PollIntervalSeconds = defaultVideoPollInterval
	}

	c.TTS.APIKey = strings.TrimSpace(c.TTS.APIKey)
	if c.TTS.APIKey == "" {
		c.TTS.APIKey = lookupFirstEnv("AUDIO_API_KEY")
	}
	c.TTS.BaseURL = trimBaseURL(c.TTS.BaseURL)
	c.TTS.Model = strings.TrimSpace(c.TTS.Model)
	if c.TTS.Model == "" {
		c.TTS.Model = lookupFirstEnv("AUDIO_MODEL_NAME")
	}
	c.TTS.Voice = strings.TrimSpace(c.TTS.Voice)
	if c.TTS.Voice == "" {
		if voice := lookupFirstEnv("AUDIO_VOICE"); voice != "" {
			c.TTS.Voice = voice
		} else {
			c.TTS.Voice = defaultTTSVoice
		}
	}
	c.TTS.Format = strings.ToLower(strings.TrimSpace(c.TTS.Format))
	if c.TTS.Format == "" {
		c.TTS.Format = defaultTTSFormat
	}
	if c.TTS.TimeoutSeconds <= 0 {
		c.TTS.TimeoutSeconds = defaultTTSTimeout
	}
}

func (c *Config) normalizeRender() {
	if strings.TrimSpace(c.Render.FFmpegBinary) == "" {
		c.Render.FFmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(c.Render.FFprobeBinary) == "" {
		c.Render.FFprobeBinary = "ffprobe"
	}
	if c.Render.FPS <= 0 {
		c.Render.FPS = defaultRenderFPS
	}
	if strings.TrimSpace(c.Render.VideoCodec) == "" {
		c.Render.VideoCodec = defaultRenderVideoCodec
	}
	if strings.TrimSpace(c.Render.AudioCodec) == "" {
		c.Render.AudioCodec = defaultRenderAudioCodec
	}
	if strings.TrimSpace(c.Render.Preset) == "" {
		c.Render.Preset = defaultRenderPreset
	}
	if c.Render.MinFreeGiB < 0 {
		c.Render.MinFreeGiB = 0
	}
}

func (c *Config) normalizePipeline() {
	if value, ok := os.LookupEnv("FORCE_EXECUTE"); ok && !c.Pipeline.ForceExecute {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			c.Pipeline.ForceExecute = parsed
		}
	}
	if c.Pipeline.AudioWorkers <= 0 {
		c.Pipeline.AudioWorkers = 1
	}
	if c.Pipeline.VisualWorkers <= 0 {
		c.Pipeline.VisualWorkers = 1
	}
	c.Pipeline.DefaultStyle = strings.TrimSpace(c.Pipeline.DefaultStyle)
	if c.Pipeline.DefaultStyle == "" {
		c.Pipeline.DefaultStyle = defaultPipelineStyle
	}
	c.Pipeline.DefaultAspectRatio = strings.TrimSpace(c.Pipeline.DefaultAspectRatio)
	if c.Pipeline.DefaultAspectRatio == "" {
		c.Pipeline.DefaultAspectRatio = defaultPipelineAspectRatio
	}
	c.Pipeline.DefaultTargetLength = strings.TrimSpace(c.Pipeline.DefaultTargetLength)
	if c.Pipeline.DefaultTargetLength == "" {
		c.Pipeline.DefaultTargetLength = defaultPipelineLength
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		c.Notifications.NtfyTopic = lookupFirstEnv("NTFY_TOPIC")
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func trimBaseURL(value string) string {
	return strings.TrimRight(strings.TrimSpace(value), "/")
}

func lookupFirstEnv(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}
