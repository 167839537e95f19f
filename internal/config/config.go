package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ErrMissingPublicURL is returned by StreamURL when no public base URL is configured.
var ErrMissingPublicURL = errors.New("PUBLIC_BASE_URL is not set")

// Config holds all configuration for the voice agent service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"5000"`

	// Externally reachable base URL (e.g. https://xyz.ngrok-free.dev).
	// Twilio is told to open the media stream at wss://<this-host><StreamPath>.
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:""`
	StreamPath    string `envconfig:"STREAM_PATH" default:"/stream"`
	VoicePath     string `envconfig:"VOICE_PATH" default:"/voice"`

	// Deepgram live transcription. Endpointing is the silence (ms) after which
	// Deepgram emits a final transcript.
	DeepgramAPIKey        string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramURL           string `envconfig:"DEEPGRAM_URL" default:"wss://api.deepgram.com/v1/listen"`
	DeepgramModel         string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage      string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`
	DeepgramEndpointingMs int    `envconfig:"DEEPGRAM_ENDPOINTING_MS" default:"500"`
	DeepgramSmartFormat   bool   `envconfig:"DEEPGRAM_SMART_FORMAT" default:"true"`
	DeepgramPunctuate     bool   `envconfig:"DEEPGRAM_PUNCTUATE" default:"true"`
	DeepgramKeepAliveSecs int    `envconfig:"DEEPGRAM_KEEPALIVE_SECONDS" default:"5"`

	// Gemini conversation
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`
	SystemPrompt string `envconfig:"SYSTEM_PROMPT" default:""` // empty uses the built-in persona
	Greeting     string `envconfig:"GREETING" default:"Welcome to your AI Therapist session. Tell me, what is the problem you are facing, and how can I help you feel better?"`

	// Murf speech synthesis
	MurfAPIKey         string `envconfig:"MURF_API_KEY"`
	MurfAPIURL         string `envconfig:"MURF_API_URL" default:"https://api.murf.ai/v1/speech/generate"`
	MurfVoiceID        string `envconfig:"MURF_VOICE_ID" default:"en-US-terrell"`
	MurfTimeoutSeconds int    `envconfig:"MURF_TIMEOUT_SECONDS" default:"15"`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // console output for development
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // expose /metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	return load(true)
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	return load(false)
}

// Read loads configuration without requiring the API keys, for commands
// that never call the external services.
func Read(dotenv bool) (*Config, error) {
	if dotenv {
		// Missing .env is fine
		_ = godotenv.Load()
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func load(dotenv bool) (*Config, error) {
	cfg, err := Read(dotenv)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the credentials every call needs.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DeepgramAPIKey) == "" {
		return errors.New("DEEPGRAM_API_KEY is required")
	}
	if strings.TrimSpace(c.GeminiAPIKey) == "" {
		return errors.New("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(c.MurfAPIKey) == "" {
		return errors.New("MURF_API_KEY is required")
	}
	return nil
}

// StreamURL derives the websocket address Twilio should connect to from
// PublicBaseURL, swapping https for wss and http for ws.
func (c *Config) StreamURL() (string, error) {
	if strings.TrimSpace(c.PublicBaseURL) == "" {
		return "", ErrMissingPublicURL
	}
	u, err := url.Parse(strings.TrimSpace(c.PublicBaseURL))
	if err != nil {
		return "", fmt.Errorf("invalid PUBLIC_BASE_URL: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("invalid PUBLIC_BASE_URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid PUBLIC_BASE_URL: missing host")
	}
	u.Path = strings.TrimRight(u.Path, "/") + c.StreamPath
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// MurfTimeout is the HTTP timeout for one synthesis request.
func (c *Config) MurfTimeout() time.Duration {
	return time.Duration(c.MurfTimeoutSeconds) * time.Second
}

// DeepgramKeepAlive is the ping interval on the transcription socket.
func (c *Config) DeepgramKeepAlive() time.Duration {
	return time.Duration(c.DeepgramKeepAliveSecs) * time.Second
}
