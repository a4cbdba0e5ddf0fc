package config

const (
	defaultConfigPath          = "~/.config/storyloom/config.toml"
	defaultWorkDir             = "~/.local/share/storyloom/runs"
	defaultOutputDir           = "~/Videos/storyloom"
	defaultLogDir              = "~/.local/share/storyloom/logs"
	defaultLogRetentionDays    = 30
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLLMProvider         = ProviderOpenAI
	defaultLLMBaseURL          = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel            = "google/gemini-2.5-flash"
	defaultGeminiModel         = "gemini-2.5-flash"
	defaultLLMReferer          = "https://github.com/storyloom/storyloom"
	defaultLLMTitle            = "storyloom"
	defaultLLMTimeoutSeconds   = 60
	defaultImageSize           = "1280*720"
	defaultImageTimeout        = 120
	defaultVideoTimeout        = 600
	defaultVideoPollInterval   = 5
	defaultTTSVoice            = "alloy"
	defaultTTSFormat           = "mp3"
	defaultTTSTimeout          = 60
	defaultRenderWidth         = 1280
	defaultRenderHeight        = 720
	defaultRenderFPS           = 24
	defaultRenderVideoCodec    = "libx264"
	defaultRenderAudioCodec    = "aac"
	defaultRenderPreset        = "medium"
	defaultRenderBGMVolume     = 0.15
	defaultRenderMinFreeGiB    = 2
	defaultPipelineStyle       = "cinematic"
	defaultPipelineAspectRatio = "16:9"
	defaultPipelineLength      = "short"
	defaultNotifyTimeout       = 10
)

// Supported language model providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		LLM: LLM{
			Provider:       defaultLLMProvider,
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Image: Image{
			Size:           defaultImageSize,
			TimeoutSeconds: defaultImageTimeout,
		},
		Video: Video{
			TimeoutSeconds:      defaultVideoTimeout,
			PollIntervalSeconds: defaultVideoPollInterval,
		},
		TTS: TTS{
			Voice:          defaultTTSVoice,
			Format:         defaultTTSFormat,
			TimeoutSeconds: defaultTTSTimeout,
		},
		Render: Render{
			FFmpegBinary:  "ffmpeg",
			FFprobeBinary: "ffprobe",
			Width:         defaultRenderWidth,
			Height:        defaultRenderHeight,
			FPS:           defaultRenderFPS,
			VideoCodec:    defaultRenderVideoCodec,
			AudioCodec:    defaultRenderAudioCodec,
			Preset:        defaultRenderPreset,
			BGMVolume:     defaultRenderBGMVolume,
			MinFreeGiB:    defaultRenderMinFreeGiB,
		},
		Pipeline: Pipeline{
			AudioWorkers:        1,
			VisualWorkers:       1,
			DefaultStyle:        defaultPipelineStyle,
			DefaultAspectRatio:  defaultPipelineAspectRatio,
			DefaultTargetLength: defaultPipelineLength,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			RunCompleted:   true,
			RunFailed:      true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
