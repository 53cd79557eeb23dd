package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "FOLIO_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "FOLIO_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.admin_token", typ: kString, env: "FOLIO_ADMIN_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.AdminToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AdminToken },
	},
	{
		key: "server.trust_proxy", typ: kBool, env: "FOLIO_TRUST_PROXY",
		apply:   func(cfg *Config, v any) { cfg.Server.TrustProxy = v.(bool) },
		extract: func(cfg Config) any { return cfg.Server.TrustProxy },
	},
	{
		key: "cms.base_url", typ: kString, env: "FOLIO_CMS_URL",
		apply:   func(cfg *Config, v any) { cfg.CMS.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.CMS.BaseURL },
	},
	{
		key: "cms.token", typ: kString, env: "FOLIO_CMS_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.CMS.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.CMS.Token },
	},
	{
		key: "cms.media_hosts", typ: kString, env: "FOLIO_CMS_MEDIA_HOSTS",
		apply:   func(cfg *Config, v any) { cfg.CMS.MediaHosts = v.(string) },
		extract: func(cfg Config) any { return cfg.CMS.MediaHosts },
	},
	{
		key: "llm.base_url", typ: kString, env: "FOLIO_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.model", typ: kString, env: "FOLIO_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.api_key", typ: kString, env: "FOLIO_LLM_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "llm.max_tokens", typ: kInt, env: "FOLIO_LLM_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.LLM.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.LLM.MaxTokens },
	},
	{
		key: "relay.rate_limit", typ: kInt, env: "FOLIO_RELAY_RATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Relay.RateLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Relay.RateLimit },
	},
	{
		key: "relay.burst", typ: kInt, env: "FOLIO_RELAY_BURST",
		apply:   func(cfg *Config, v any) { cfg.Relay.Burst = v.(int) },
		extract: func(cfg Config) any { return cfg.Relay.Burst },
	},
	{
		key: "prompt.cache_ttl", typ: kString, env: "FOLIO_PROMPT_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Prompt.CacheTTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Prompt.CacheTTL },
	},
	{
		key: "chat.endpoint", typ: kString, env: "FOLIO_CHAT_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Chat.Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Chat.Endpoint },
	},
	{
		key: "storage.data_dir", typ: kString, env: "FOLIO_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.log_interactions", typ: kBool, env: "FOLIO_STORAGE_LOG_INTERACTIONS",
		apply:   func(cfg *Config, v any) { cfg.Storage.LogInteractions = v.(bool) },
		extract: func(cfg Config) any { return cfg.Storage.LogInteractions },
	},
	{
		key: "storage.retention", typ: kString, env: "FOLIO_STORAGE_RETENTION",
		apply:   func(cfg *Config, v any) { cfg.Storage.Retention = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Retention },
	},
	{
		key: "log.level", typ: kString, env: "FOLIO_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}
		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if ok && raw != "" {
			applyRaw(cfg, s, raw, "config key "+s.key)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		if raw := os.Getenv(s.env); raw != "" {
			applyRaw(cfg, s, raw, "env var "+s.env)
		}
	}
}

// applyRaw parses raw according to the key type. Unparsable values keep the
// current setting.
func applyRaw(cfg *Config, s keySpec, raw, source string) {
	switch s.typ {
	case kString:
		s.apply(cfg, raw)
	case kInt:
		i, err := strconv.Atoi(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from %s=%q: %v. Using default value.\n", source, raw, err)
			return
		}
		s.apply(cfg, i)
	case kBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from %s=%q: %v. Using default value.\n", source, raw, err)
			return
		}
		s.apply(cfg, b)
	}
}
