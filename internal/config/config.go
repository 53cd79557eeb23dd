package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	CMS     CMSConfig
	LLM     LLMConfig
	Relay   RelayConfig
	Prompt  PromptConfig
	Chat    ChatConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host       string
	Port       int
	AdminToken string // guards owner-only endpoints; empty disables them
	TrustProxy bool   // take the client address from X-Forwarded-For
}

// CMSConfig points at the headless content service. An empty BaseURL is
// valid: content degrades to defaults.
type CMSConfig struct {
	BaseURL    string
	Token      string
	MediaHosts string // comma-separated extra hosts allowed by the PDF proxy
}

type LLMConfig struct {
	BaseURL   string
	Model     string
	APIKey    string
	MaxTokens int
}

type RelayConfig struct {
	RateLimit int // requests per minute per client address; 0 disables
	Burst     int
}

type PromptConfig struct {
	CacheTTL string
}

type ChatConfig struct {
	Endpoint string // relay URL used by the terminal chat client
}

type StorageConfig struct {
	DataDir         string
	LogInteractions bool
	Retention       string // interactions older than this are pruned; "0" keeps everything
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 4000,
		},
		LLM: LLMConfig{
			BaseURL:   "https://openrouter.ai/api/v1",
			Model:     "openai/gpt-4o-mini",
			MaxTokens: 1000,
		},
		Relay: RelayConfig{
			RateLimit: 5,
			Burst:     5,
		},
		Prompt: PromptConfig{
			CacheTTL: "5m",
		},
		Storage: StorageConfig{
			DataDir:         defaultDataDir(),
			LogInteractions: true,
			Retention:       "720h",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ConfigError reports a missing required setting.
type ConfigError struct {
	Key string
	Env string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing required config: %s (set environment variable %s)", e.Key, e.Env)
}

// Load reads configuration from the JSON file backend, a .env file in the
// working directory and environment variables.
//
// The backend is a JSON file at $XDG_CONFIG_HOME/folio/config.json. Values
// from .env never override variables already present in the environment.
// Environment variables (FOLIO_*) override backend values. Secrets are only
// read from the environment.
//
// Missing credentials are not an error here; callers that need them use
// RequireLLM or RequireCMS.
func Load() (Config, error) {
	loadDotEnv(".env")
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	cfg.CMS.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.CMS.BaseURL), "/")
	cfg.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.LLM.BaseURL), "/")
	return cfg, nil
}

func loadDotEnv(path string) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[WARN] could not load %s: %v\n", path, err)
	}
}

// RequireLLM returns a *ConfigError when chat cannot be served.
func (c Config) RequireLLM() error {
	if c.LLM.APIKey == "" {
		return &ConfigError{Key: "llm.api_key", Env: "FOLIO_LLM_API_KEY"}
	}
	if c.LLM.BaseURL == "" {
		return &ConfigError{Key: "llm.base_url", Env: "FOLIO_LLM_BASE_URL"}
	}
	return nil
}

// RequireCMS returns a *ConfigError when no content service is configured.
func (c Config) RequireCMS() error {
	if c.CMS.BaseURL == "" {
		return &ConfigError{Key: "cms.base_url", Env: "FOLIO_CMS_URL"}
	}
	return nil
}

// ExtraMediaHosts splits CMS.MediaHosts into trimmed, non-empty host names.
func (c Config) ExtraMediaHosts() []string {
	var hosts []string
	for _, h := range strings.Split(c.CMS.MediaHosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// PromptTTL parses Prompt.CacheTTL. An invalid or non-positive value yields
// the five minute default.
func (c Config) PromptTTL() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.Prompt.CacheTTL))
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// Retention parses Storage.Retention. Zero, negative or invalid values
// disable pruning.
func (c Config) Retention() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.Storage.Retention))
	if err != nil || d < 0 {
		return 0
	}
	return d
}
