// Package config assembles runtime settings with the precedence
// defaults < environment < config file. A .env file in the working
// directory is loaded first so GEMINI_API_KEY can live next to the
// binary instead of the shell profile.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the complete runtime configuration.
type Config struct {
	HTTP    *HTTPConfig    `json:"http"`
	AI      *AIConfig      `json:"ai"`
	Sync    *SyncConfig    `json:"sync"`
	Archive *ArchiveConfig `json:"archive"`
}

type HTTPConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// ReadTimeout bounds request reads. WriteTimeout must exceed the
	// teaching-notes timeout because that handler blocks on the gateway.
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type AIConfig struct {
	APIKey string `json:"-"` // env only, never a config file
	Model  string `json:"model"`
	// RequestTimeout bounds ordinary enrichment calls; NotesTimeout is
	// the longer budget for teaching-notes generation.
	RequestTimeout time.Duration `json:"request_timeout"`
	NotesTimeout   time.Duration `json:"notes_timeout"`
}

type SyncConfig struct {
	// PollInterval is advertised to clients as the refresh period for
	// list views; it is a contract value, not a server-side timer.
	PollInterval time.Duration `json:"poll_interval"`
	// AIFallbackDelay is how long a student waits before the AI may
	// answer their question in the teacher's place.
	AIFallbackDelay time.Duration `json:"ai_fallback_delay"`
	// FeedBufferSize is the per-subscriber change-feed buffer.
	FeedBufferSize int `json:"feed_buffer_size"`
}

type ArchiveConfig struct {
	// Path of the sqlite transcript file. Empty disables archiving.
	Path string `json:"path"`
}

// DefaultConfig returns classroom-scale defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		AI: &AIConfig{
			Model:          "gemini-2.5-flash",
			RequestTimeout: 30 * time.Second,
			NotesTimeout:   90 * time.Second,
		},
		Sync: &SyncConfig{
			PollInterval:    5 * time.Second,
			AIFallbackDelay: 60 * time.Second,
			FeedBufferSize:  16,
		},
		Archive: &ArchiveConfig{},
	}
}

// Validate rejects configurations that cannot serve.
func (c *Config) Validate() error {
	if c.HTTP == nil || c.AI == nil || c.Sync == nil || c.Archive == nil {
		return fmt.Errorf("incomplete configuration")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.AI.Model == "" {
		return fmt.Errorf("AI model cannot be empty")
	}
	if c.AI.RequestTimeout <= 0 || c.AI.NotesTimeout <= 0 {
		return fmt.Errorf("AI timeouts must be positive")
	}
	if c.HTTP.WriteTimeout <= c.AI.NotesTimeout {
		return fmt.Errorf("HTTP write timeout must exceed the teaching-notes timeout")
	}
	if c.Sync.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Sync.AIFallbackDelay < 0 {
		return fmt.Errorf("AI fallback delay cannot be negative")
	}
	if c.Sync.FeedBufferSize <= 0 {
		return fmt.Errorf("feed buffer size must be positive")
	}
	return nil
}

// LoadFromEnv builds a configuration from defaults overridden by
// environment variables. Unparseable values fall back silently, the same
// forgiving posture the rest of the precedence chain takes.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if host := os.Getenv("CLASSBOARD_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if port := os.Getenv("CLASSBOARD_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	setDuration(&config.HTTP.ReadTimeout, "CLASSBOARD_HTTP_READ_TIMEOUT")
	setDuration(&config.HTTP.WriteTimeout, "CLASSBOARD_HTTP_WRITE_TIMEOUT")

	config.AI.APIKey = os.Getenv("GEMINI_API_KEY")
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		config.AI.Model = model
	}
	setDuration(&config.AI.RequestTimeout, "CLASSBOARD_AI_REQUEST_TIMEOUT")
	setDuration(&config.AI.NotesTimeout, "CLASSBOARD_AI_NOTES_TIMEOUT")

	setDuration(&config.Sync.PollInterval, "CLASSBOARD_POLL_INTERVAL")
	setDuration(&config.Sync.AIFallbackDelay, "CLASSBOARD_AI_FALLBACK_DELAY")
	if size := os.Getenv("CLASSBOARD_FEED_BUFFER_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil {
			config.Sync.FeedBufferSize = n
		}
	}

	if path := os.Getenv("CLASSBOARD_ARCHIVE_PATH"); path != "" {
		config.Archive.Path = path
	}

	return config
}

func setDuration(dst *time.Duration, envVar string) {
	if v := os.Getenv(envVar); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func overlayDuration(dst *time.Duration, value string) {
	if value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			*dst = d
		}
	}
}

// configFile mirrors Config for JSON parsing, with durations as strings
// ("90s", "2m") for readability.
type configFile struct {
	HTTP *struct {
		Host         string `json:"host"`
		Port         int    `json:"port"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"http"`
	AI *struct {
		Model          string `json:"model"`
		RequestTimeout string `json:"request_timeout"`
		NotesTimeout   string `json:"notes_timeout"`
	} `json:"ai"`
	Sync *struct {
		PollInterval    string `json:"poll_interval"`
		AIFallbackDelay string `json:"ai_fallback_delay"`
		FeedBufferSize  int    `json:"feed_buffer_size"`
	} `json:"sync"`
	Archive *struct {
		Path string `json:"path"`
	} `json:"archive"`
}

// LoadFromFile overlays a JSON config file onto base and validates the
// result.
func LoadFromFile(base *Config, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	config := base
	if file.HTTP != nil {
		if file.HTTP.Host != "" {
			config.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.Port > 0 {
			config.HTTP.Port = file.HTTP.Port
		}
		overlayDuration(&config.HTTP.ReadTimeout, file.HTTP.ReadTimeout)
		overlayDuration(&config.HTTP.WriteTimeout, file.HTTP.WriteTimeout)
	}
	if file.AI != nil {
		if file.AI.Model != "" {
			config.AI.Model = file.AI.Model
		}
		overlayDuration(&config.AI.RequestTimeout, file.AI.RequestTimeout)
		overlayDuration(&config.AI.NotesTimeout, file.AI.NotesTimeout)
	}
	if file.Sync != nil {
		overlayDuration(&config.Sync.PollInterval, file.Sync.PollInterval)
		overlayDuration(&config.Sync.AIFallbackDelay, file.Sync.AIFallbackDelay)
		if file.Sync.FeedBufferSize > 0 {
			config.Sync.FeedBufferSize = file.Sync.FeedBufferSize
		}
	}
	if file.Archive != nil && file.Archive.Path != "" {
		config.Archive.Path = file.Archive.Path
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

// Load applies the full precedence chain: .env file, then defaults with
// environment overrides, then the optional JSON config file.
func Load(path string) *Config {
	// Missing .env is the common case, not an error.
	_ = godotenv.Load()

	config := LoadFromEnv()

	if path != "" {
		if fileConfig, err := LoadFromFile(config, path); err == nil {
			config = fileConfig
		}
		// File errors fall through; environment/defaults still serve.
	}

	return config
}
