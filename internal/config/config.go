package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	WhisperBinary   string `env:"WHISPER_BINARY,required,notEmpty"`
	WhisperModel    string `env:"WHISPER_MODEL,required,notEmpty"`
	WhisperLang     string `env:"WHISPER_LANG" envDefault:"auto"`
	WhisperThreads  int    `env:"WHISPER_THREADS" envDefault:"8"`
	WhisperStepMs   int    `env:"WHISPER_STEP_MS" envDefault:"2000"`
	WhisperLengthMs int    `env:"WHISPER_LENGTH_MS" envDefault:"8000"`

	NoisePatterns     []string `env:"NOISE_PATTERNS" envSeparator:"," envDefault:"Sous-titrage Société Radio-Canada,Sous-titrage"`
	NoisePatternsFile string   `env:"NOISE_PATTERNS_FILE"`

	TranscriptBufferSize int           `env:"TRANSCRIPT_BUFFER_SIZE" envDefault:"20"`
	StopTimeout          time.Duration `env:"STOP_TIMEOUT" envDefault:"2s"`
	KillTimeout          time.Duration `env:"KILL_TIMEOUT" envDefault:"3s"`

	LLMAPIKey      string        `env:"LLM_API_KEY"`
	LLMBaseURL     string        `env:"LLM_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta/openai/"`
	LLMModel       string        `env:"LLM_MODEL" envDefault:"gemini-2.5-flash-lite"`
	LLMTemperature float32       `env:"LLM_TEMPERATURE" envDefault:"0.3"`
	LLMTimeout     time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`

	SummaryWorkers   int `env:"SUMMARY_WORKERS" envDefault:"2"`
	SummaryQueueSize int `env:"SUMMARY_QUEUE_SIZE" envDefault:"16"`

	HTTPAddr    string        `env:"HTTP_ADDR" envDefault:":5050"`
	ReadTimeout time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	IdleTimeout time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	CORSOrigins []string      `env:"CORS_ORIGINS" envSeparator:","`

	EventReplaySize int `env:"EVENT_REPLAY_SIZE" envDefault:"256"`

	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"whisper-relay"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"whisper-relay"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile       string
	HTTPAddr      string
	LogLevel      string
	WhisperBinary string
	WhisperModel  string
	WhisperLang   string
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

	// Required whisper settings may come from flags alone.
	opts := env.Options{}
	if overrides.WhisperBinary != "" || overrides.WhisperModel != "" {
		opts.Environment = environMap()
		if overrides.WhisperBinary != "" {
			opts.Environment["WHISPER_BINARY"] = overrides.WhisperBinary
		}
		if overrides.WhisperModel != "" {
			opts.Environment["WHISPER_MODEL"] = overrides.WhisperModel
		}
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.WhisperLang != "" {
		cfg.WhisperLang = overrides.WhisperLang
	}

	return cfg, nil
}

func environMap() map[string]string {
	m := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}

// Validate checks that the transcription engine can be launched at all, so a
// missing binary or model fails at startup instead of on the first start request.
func (c *Config) Validate() error {
	if _, err := os.Stat(c.WhisperBinary); err != nil {
		return fmt.Errorf("WHISPER_BINARY %q: %w", c.WhisperBinary, err)
	}
	if _, err := os.Stat(c.WhisperModel); err != nil {
		return fmt.Errorf("WHISPER_MODEL %q: %w", c.WhisperModel, err)
	}
	if c.TranscriptBufferSize < 1 {
		return fmt.Errorf("TRANSCRIPT_BUFFER_SIZE must be >= 1, got %d", c.TranscriptBufferSize)
	}
	if c.WhisperThreads < 1 {
		return fmt.Errorf("WHISPER_THREADS must be >= 1, got %d", c.WhisperThreads)
	}
	return nil
}

// SummarizerEnabled reports whether an LLM API key is configured.
func (c *Config) SummarizerEnabled() bool {
	return c.LLMAPIKey != ""
}

// MQTTEnabled reports whether the MQTT event mirror is configured.
func (c *Config) MQTTEnabled() bool {
	return c.MQTTBrokerURL != ""
}
