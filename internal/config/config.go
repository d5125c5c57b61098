package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Models    ModelsConfig
	Features  FeaturesConfig
	Upload    UploadConfig
	Storage   StorageConfig
	Log       LogConfig
	Telemetry TelemetryConfig
	History   HistoryConfig
}

type ServerConfig struct {
	Port int
	// APIToken enables bearer auth on /api routes. Empty disables auth.
	APIToken string
}

type OllamaConfig struct {
	BaseURL string
}

// ModelsConfig names the backend model used for each role.
type ModelsConfig struct {
	Text   string
	Vision string
	Embed  string
	OCR    string
}

type FeaturesConfig struct {
	RetinalEnabled bool
	TextLLMEnabled bool
	AutoPull       bool
}

type UploadConfig struct {
	MaxMB int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level  string
	Format string
}

type TelemetryConfig struct {
	Enabled bool
}

type HistoryConfig struct {
	DefaultLimit int
}

// MaxUploadBytes returns the per-file upload limit in bytes.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.Upload.MaxMB) << 20
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8000,
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
		},
		Models: ModelsConfig{
			Text:   "medgemma",
			Vision: "medgemma",
			Embed:  "nomic-embed-text",
			OCR:    "medgemma",
		},
		Features: FeaturesConfig{
			RetinalEnabled: true,
			TextLLMEnabled: true,
		},
		Upload: UploadConfig{
			MaxMB: 25,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		History: HistoryConfig{
			DefaultLimit: 10,
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.diarisk.app) and the API
// token falls back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/diarisk/config.json
// and the token falls back to $XDG_DATA_HOME/diarisk/secrets.json.
//
// Environment variables (DIARISK_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Server.APIToken == "" {
		if tok, err := kc.Get("diarisk", "api_token"); err == nil && tok != "" {
			cfg.Server.APIToken = tok
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d out of range", c.Server.Port)
	}
	if c.Upload.MaxMB <= 0 {
		return fmt.Errorf("invalid config: upload.max_mb must be positive, got %d", c.Upload.MaxMB)
	}
	if c.History.DefaultLimit <= 0 {
		return fmt.Errorf("invalid config: history.default_limit must be positive, got %d", c.History.DefaultLimit)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid config: log.level %q (want debug, info, warn or error)", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid config: log.format %q (want text or json)", c.Log.Format)
	}
	if c.Ollama.BaseURL == "" {
		return fmt.Errorf("missing required config: ollama.base_url")
	}
	return nil
}

// TokenHint describes where the API token can be provided.
func TokenHint() string {
	return "environment variable DIARISK_SERVER_API_TOKEN" + tokenHint()
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
