package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/snarg/dictation/internal/hotkey"
)

// Backend identifiers accepted by BACKEND.
const (
	BackendLocalWhisper = "local_whisper"
	BackendAPIWhisper   = "api_whisper"
	BackendAPIGPT4o     = "api_gpt4o"
	BackendAPIGPT4oMini = "api_gpt4o_mini"
	BackendWhisperHTTP  = "whisper_http"
	BackendDeepInfra    = "deepinfra"
	BackendElevenLabs   = "elevenlabs"
)

var knownBackends = map[string]bool{
	BackendLocalWhisper: true,
	BackendAPIWhisper:   true,
	BackendAPIGPT4o:     true,
	BackendAPIGPT4oMini: true,
	BackendWhisperHTTP:  true,
	BackendDeepInfra:    true,
	BackendElevenLabs:   true,
}

type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Backend string `env:"BACKEND" envDefault:"api_whisper"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	WhisperURL   string `env:"WHISPER_URL"`
	WhisperModel string `env:"WHISPER_MODEL"`

	DeepInfraAPIKey string `env:"DEEPINFRA_API_KEY"`
	DeepInfraModel  string `env:"DEEPINFRA_MODEL" envDefault:"openai/whisper-large-v3-turbo"`

	ElevenLabsAPIKey   string `env:"ELEVENLABS_API_KEY"`
	ElevenLabsModel    string `env:"ELEVENLABS_MODEL" envDefault:"scribe_v1"`
	ElevenLabsKeyterms string `env:"ELEVENLABS_KEYTERMS"`

	LocalWhisperCommand  string `env:"LOCAL_WHISPER_COMMAND" envDefault:"whisper-cli"`
	LocalWhisperModel    string `env:"LOCAL_WHISPER_MODEL" envDefault:"base"`
	LocalWhisperModelDir string `env:"LOCAL_WHISPER_MODEL_DIR" envDefault:"./models"`

	Language       string        `env:"LANGUAGE"`
	Prompt         string        `env:"PROMPT"`
	Temperature    float64       `env:"TEMPERATURE" envDefault:"0"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"120s"`
	EnableHTTP2    bool          `env:"ENABLE_HTTP2" envDefault:"true"`

	MaxFileSizeMB    float64       `env:"MAX_FILE_SIZE_MB" envDefault:"25"`
	ChunkMaxSizeMB   float64       `env:"CHUNK_MAX_SIZE_MB" envDefault:"20"`
	ChunkMaxDuration time.Duration `env:"CHUNK_MAX_DURATION" envDefault:"0s"`
	TempDir          string        `env:"TEMP_DIR"`

	HotkeyRecordToggle string `env:"HOTKEY_RECORD_TOGGLE" envDefault:"*"`
	HotkeyCancel       string `env:"HOTKEY_CANCEL" envDefault:"-"`
	HotkeyEnableToggle string `env:"HOTKEY_ENABLE_TOGGLE" envDefault:"ctrl+alt+*"`
	HotkeyDebounceMS   int    `env:"HOTKEY_DEBOUNCE_MS" envDefault:"300"`

	SampleRate int `env:"SAMPLE_RATE" envDefault:"16000"`
	Channels   int `env:"CHANNELS" envDefault:"1"`

	Workers   int `env:"WORKERS" envDefault:"2"`
	QueueSize int `env:"QUEUE_SIZE" envDefault:"8"`

	Paste         bool `env:"PASTE" envDefault:"true"`
	Notifications bool `env:"NOTIFICATIONS" envDefault:"false"`

	HTTPAddr     string        `env:"HTTP_ADDR"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"0s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	AuthToken    string        `env:"AUTH_TOKEN"`

	// UploadTimeout replaces ReadTimeout while an audio upload body is read.
	UploadTimeout time.Duration `env:"HTTP_UPLOAD_TIMEOUT" envDefault:"10m"`

	HistoryPath      string        `env:"HISTORY_PATH"`
	HistoryRetention time.Duration `env:"HISTORY_RETENTION" envDefault:"0s"`
	ArchiveDir       string        `env:"ARCHIVE_DIR"`
	WatchDir         string        `env:"WATCH_DIR"`

	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"dictation"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"dictation"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`

	S3 S3Config
}

// S3Config configures the optional S3 archive for recordings and transcripts.
type S3Config struct {
	Bucket    string `env:"S3_BUCKET"`
	Endpoint  string `env:"S3_ENDPOINT"`
	Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	AccessKey string `env:"S3_ACCESS_KEY"`
	SecretKey string `env:"S3_SECRET_KEY"`
	Prefix    string `env:"S3_PREFIX"`
}

// Enabled reports whether an S3 bucket is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile  string
	LogLevel string
	Backend  string
	HTTPAddr string
	TempDir  string
	WatchDir string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.Backend != "" {
		cfg.Backend = overrides.Backend
	}
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.TempDir != "" {
		cfg.TempDir = overrides.TempDir
	}
	if overrides.WatchDir != "" {
		cfg.WatchDir = overrides.WatchDir
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that env parsing alone cannot.
func (c *Config) Validate() error {
	if !knownBackends[c.Backend] {
		return fmt.Errorf("invalid BACKEND %q", c.Backend)
	}
	for name, spec := range map[string]string{
		"HOTKEY_RECORD_TOGGLE": c.HotkeyRecordToggle,
		"HOTKEY_CANCEL":        c.HotkeyCancel,
		"HOTKEY_ENABLE_TOGGLE": c.HotkeyEnableToggle,
	} {
		if _, err := hotkey.ParseSpec(spec); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if c.HotkeyDebounceMS < 0 {
		return fmt.Errorf("invalid HOTKEY_DEBOUNCE_MS: %d (must be >= 0)", c.HotkeyDebounceMS)
	}
	if c.MaxFileSizeMB <= 0 {
		return fmt.Errorf("invalid MAX_FILE_SIZE_MB: %v (must be > 0)", c.MaxFileSizeMB)
	}
	if c.ChunkMaxSizeMB <= 0 || c.ChunkMaxSizeMB > c.MaxFileSizeMB {
		return fmt.Errorf("invalid CHUNK_MAX_SIZE_MB: %v (must be > 0 and <= MAX_FILE_SIZE_MB)", c.ChunkMaxSizeMB)
	}
	if c.ChunkMaxDuration < 0 {
		return fmt.Errorf("invalid CHUNK_MAX_DURATION: %v", c.ChunkMaxDuration)
	}
	if c.UploadTimeout < 0 {
		return fmt.Errorf("invalid HTTP_UPLOAD_TIMEOUT: %v", c.UploadTimeout)
	}
	if c.HistoryRetention < 0 {
		return fmt.Errorf("invalid HISTORY_RETENTION: %v", c.HistoryRetention)
	}
	if c.Workers < 1 {
		return fmt.Errorf("invalid WORKERS: %d (must be >= 1)", c.Workers)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("invalid QUEUE_SIZE: %d (must be >= 1)", c.QueueSize)
	}
	if c.Channels < 1 || c.Channels > 2 {
		return fmt.Errorf("invalid CHANNELS: %d (allowed 1..2)", c.Channels)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid SAMPLE_RATE: %d (must be > 0)", c.SampleRate)
	}
	return nil
}

// Bindings returns the configured hotkey strings.
func (c *Config) Bindings() hotkey.Bindings {
	return hotkey.Bindings{
		RecordToggle: c.HotkeyRecordToggle,
		Cancel:       c.HotkeyCancel,
		EnableToggle: c.HotkeyEnableToggle,
	}
}

// Debounce returns the record-toggle debounce window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.HotkeyDebounceMS) * time.Millisecond
}

const bytesPerMB = 1024 * 1024

// MaxFileBytes is the direct-transcription ceiling in bytes.
func (c *Config) MaxFileBytes() int64 { return int64(c.MaxFileSizeMB * bytesPerMB) }

// ChunkMaxBytes is the per-chunk ceiling in bytes.
func (c *Config) ChunkMaxBytes() int64 { return int64(c.ChunkMaxSizeMB * bytesPerMB) }
