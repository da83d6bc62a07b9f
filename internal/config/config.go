package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config stores runtime configuration for the interview coach backend.
type Config struct {
	Gemini  GeminiConfig
	Audio   AudioConfig
	Video   VideoConfig
	Prompt  PromptConfig
	Session SessionConfig
}

type GeminiConfig struct {
	APIKey        string
	LiveModel     string
	FeedbackModel string
	Voice         string
	Endpoint      string
}

type AudioConfig struct {
	RecorderCommand    string
	PlayerCommand      string
	InputFormat        string
	InputDevice        string
	CaptureSampleRate  int
	PlaybackSampleRate int
	Channels           int
}

type VideoConfig struct {
	Enabled     bool
	InputFormat string
	InputDevice string
	Width       int
	Quality     int
}

type PromptConfig struct {
	InterviewerTemplatePath string
	FeedbackTemplatePath    string
}

type SessionConfig struct {
	ChunkSize       int
	FrameTick       time.Duration
	RetainEvery     time.Duration
	FrameBufferSize int
	InterimFlush    time.Duration
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Gemini: GeminiConfig{
			APIKey:        firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY")),
			LiveModel:     envOrDefault("INTERVIEWCOACH_LIVE_MODEL", "gemini-2.5-flash-native-audio-preview-09-2025"),
			FeedbackModel: envOrDefault("INTERVIEWCOACH_FEEDBACK_MODEL", "gemini-2.5-flash"),
			Voice:         envOrDefault("INTERVIEWCOACH_VOICE", "Orus"),
			Endpoint:      envOrDefault("INTERVIEWCOACH_LIVE_ENDPOINT", "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("INTERVIEWCOACH_FFMPEG_COMMAND", "ffmpeg"),
			PlayerCommand:   envOrDefault("INTERVIEWCOACH_FFPLAY_COMMAND", "ffplay"),
			InputFormat:     envOrDefault("INTERVIEWCOACH_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice: firstNonEmpty(
				os.Getenv("INTERVIEWCOACH_AUDIO_INPUT_DEVICE"),
				"default",
			),
			CaptureSampleRate:  envOrDefaultInt("INTERVIEWCOACH_CAPTURE_RATE", 16000),
			PlaybackSampleRate: envOrDefaultInt("INTERVIEWCOACH_PLAYBACK_RATE", 24000),
			Channels:           envOrDefaultInt("INTERVIEWCOACH_CHANNELS", 1),
		},
		Video: VideoConfig{
			Enabled:     envOrDefaultBool("INTERVIEWCOACH_CAMERA", true),
			InputFormat: envOrDefault("INTERVIEWCOACH_VIDEO_INPUT_FORMAT", "v4l2"),
			InputDevice: envOrDefault("INTERVIEWCOACH_VIDEO_INPUT_DEVICE", "/dev/video0"),
			Width:       envOrDefaultInt("INTERVIEWCOACH_FRAME_WIDTH", 480),
			Quality:     envOrDefaultInt("INTERVIEWCOACH_FRAME_QUALITY", 8),
		},
		Prompt: PromptConfig{
			InterviewerTemplatePath: strings.TrimSpace(os.Getenv("INTERVIEWCOACH_INTERVIEWER_PROMPT_FILE")),
			FeedbackTemplatePath:    strings.TrimSpace(os.Getenv("INTERVIEWCOACH_FEEDBACK_PROMPT_FILE")),
		},
		Session: SessionConfig{
			ChunkSize:       envOrDefaultInt("INTERVIEWCOACH_AUDIO_CHUNK_SIZE", 4096),
			FrameTick:       envDurationMS("INTERVIEWCOACH_FRAME_TICK_MS", 1000),
			RetainEvery:     envDurationMS("INTERVIEWCOACH_FRAME_RETAIN_MS", 5000),
			FrameBufferSize: envOrDefaultInt("INTERVIEWCOACH_FRAME_BUFFER", 12),
			InterimFlush:    envDurationMS("INTERVIEWCOACH_INTERIM_FLUSH_MS", 16),
		},
	}

	if cfg.Audio.CaptureSampleRate <= 0 {
		cfg.Audio.CaptureSampleRate = 16000
	}
	if cfg.Audio.PlaybackSampleRate <= 0 {
		cfg.Audio.PlaybackSampleRate = 24000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = 4096
	}
	if cfg.Session.FrameBufferSize <= 0 {
		cfg.Session.FrameBufferSize = 12
	}
	if cfg.Session.FrameTick <= 0 {
		cfg.Session.FrameTick = time.Second
	}
	if cfg.Session.RetainEvery < cfg.Session.FrameTick {
		cfg.Session.RetainEvery = cfg.Session.FrameTick
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envDurationMS(key string, fallbackMS int) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
			return time.Duration(parsed) * time.Millisecond
		}
	}
	return time.Duration(fallbackMS) * time.Millisecond
}
