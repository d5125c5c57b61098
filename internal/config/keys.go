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
		key: "server.port", typ: kInt, env: "DIARISK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "DIARISK_SERVER_API_TOKEN",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "ollama.base_url", typ: kString, env: "DIARISK_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "models.text", typ: kString, env: "DIARISK_MODELS_TEXT",
		apply:   func(cfg *Config, v any) { cfg.Models.Text = v.(string) },
		extract: func(cfg Config) any { return cfg.Models.Text },
	},
	{
		key: "models.vision", typ: kString, env: "DIARISK_MODELS_VISION",
		apply:   func(cfg *Config, v any) { cfg.Models.Vision = v.(string) },
		extract: func(cfg Config) any { return cfg.Models.Vision },
	},
	{
		key: "models.embed", typ: kString, env: "DIARISK_MODELS_EMBED",
		apply:   func(cfg *Config, v any) { cfg.Models.Embed = v.(string) },
		extract: func(cfg Config) any { return cfg.Models.Embed },
	},
	{
		key: "models.ocr", typ: kString, env: "DIARISK_MODELS_OCR",
		apply:   func(cfg *Config, v any) { cfg.Models.OCR = v.(string) },
		extract: func(cfg Config) any { return cfg.Models.OCR },
	},
	{
		key: "features.retinal_enabled", typ: kBool, env: "DIARISK_FEATURES_RETINAL_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Features.RetinalEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Features.RetinalEnabled },
	},
	{
		key: "features.text_llm_enabled", typ: kBool, env: "DIARISK_FEATURES_TEXT_LLM_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Features.TextLLMEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Features.TextLLMEnabled },
	},
	{
		key: "features.auto_pull", typ: kBool, env: "DIARISK_FEATURES_AUTO_PULL",
		apply:   func(cfg *Config, v any) { cfg.Features.AutoPull = v.(bool) },
		extract: func(cfg Config) any { return cfg.Features.AutoPull },
	},
	{
		key: "upload.max_mb", typ: kInt, env: "DIARISK_UPLOAD_MAX_MB",
		apply:   func(cfg *Config, v any) { cfg.Upload.MaxMB = v.(int) },
		extract: func(cfg Config) any { return cfg.Upload.MaxMB },
	},
	{
		key: "storage.data_dir", typ: kString, env: "DIARISK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "DIARISK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "DIARISK_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
	{
		key: "telemetry.enabled", typ: kBool, env: "DIARISK_TELEMETRY_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Telemetry.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Telemetry.Enabled },
	},
	{
		key: "history.default_limit", typ: kInt, env: "DIARISK_HISTORY_DEFAULT_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.History.DefaultLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.History.DefaultLimit },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
