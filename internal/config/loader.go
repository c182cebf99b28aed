package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when the YAML leaves fields unset.
const (
	DefaultKeyword             = "computer"
	DefaultSensitivity         = 0.7
	DefaultLanguage            = "de-DE"
	DefaultAssistantName       = "Computer"
	DefaultConversationTimeout = 30
	DefaultSoundsDir           = "sounds"
	DefaultSmartHomePort       = 8087
	DefaultMusicVolume         = 50
	DefaultEmbeddingModel      = "text-embedding-3-small"
	DefaultEmbeddingDimensions = 1536
)

// envPattern matches ${VAR} placeholders for secret expansion.
var envPattern = regexp.MustCompile(`\$\{(\w+)\}`)

// Load reads the YAML configuration file at path, expands ${ENV_VAR}
// placeholders, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands environment
// placeholders, applies defaults, and validates the result. Useful in tests
// where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	raw = expandEnv(raw)

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnv replaces ${VAR} placeholders with environment values. Unset
// variables expand to the empty string, which validation then reports for
// required fields.
func expandEnv(raw []byte) []byte {
	return envPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		name := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// applyDefaults fills unset fields with their documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = LogInfo
	}
	if cfg.Audio.SoundsDir == "" {
		cfg.Audio.SoundsDir = DefaultSoundsDir
	}
	if cfg.Wakeword.Keyword == "" {
		cfg.Wakeword.Keyword = DefaultKeyword
	}
	if cfg.Wakeword.Sensitivity == 0 {
		cfg.Wakeword.Sensitivity = DefaultSensitivity
	}
	if cfg.Backend.Language == "" {
		cfg.Backend.Language = DefaultLanguage
	}
	if cfg.Assistant.Name == "" {
		cfg.Assistant.Name = DefaultAssistantName
	}
	if cfg.Assistant.ConversationTimeoutSeconds == 0 {
		cfg.Assistant.ConversationTimeoutSeconds = DefaultConversationTimeout
	}
	if cfg.Tools.SmartHome != nil && cfg.Tools.SmartHome.Port == 0 {
		cfg.Tools.SmartHome.Port = DefaultSmartHomePort
	}
	if cfg.Tools.Music != nil && cfg.Tools.Music.Volume == 0 {
		cfg.Tools.Music.Volume = DefaultMusicVolume
	}
	if cfg.Tools.Memory != nil {
		if cfg.Tools.Memory.EmbeddingModel == "" {
			cfg.Tools.Memory.EmbeddingModel = DefaultEmbeddingModel
		}
		if cfg.Tools.Memory.EmbeddingDimensions == 0 {
			cfg.Tools.Memory.EmbeddingDimensions = DefaultEmbeddingDimensions
		}
	}
}

// Validate checks that cfg contains a coherent set of values. Fatal problems
// are returned as a joined error; recoverable ones (a tool block missing its
// API key, which only disables that tool) are logged as warnings.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	if cfg.Wakeword.AccessKey == "" {
		errs = append(errs, errors.New("wakeword.access_key is required; get a free key from https://console.picovoice.ai"))
	}
	if cfg.Wakeword.Sensitivity < 0 || cfg.Wakeword.Sensitivity > 1 {
		errs = append(errs, fmt.Errorf("wakeword.sensitivity %.2f is out of range [0, 1]", cfg.Wakeword.Sensitivity))
	}

	if cfg.Backend.APIKey == "" {
		errs = append(errs, errors.New("backend.api_key is required; get a key from https://aistudio.google.com"))
	}

	if cfg.Assistant.ConversationTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("assistant.conversation_timeout_seconds %d must be positive", cfg.Assistant.ConversationTimeoutSeconds))
	}

	// Tool blocks with missing credentials are skipped at startup, not fatal.
	if w := cfg.Tools.Weather; w != nil && w.APIKey == "" {
		slog.Warn("tools.weather.api_key is empty; the weather tool will be unavailable")
	}
	if s := cfg.Tools.Search; s != nil && s.APIKey == "" {
		slog.Warn("tools.search.api_key is empty; the web search tool will be unavailable")
	}
	if m := cfg.Tools.Memory; m != nil {
		if m.PostgresDSN == "" {
			slog.Warn("tools.memory.postgres_dsn is empty; the memory tool will be unavailable")
		}
		if m.OpenAIAPIKey == "" {
			slog.Warn("tools.memory.openai_api_key is empty; the memory tool will be unavailable")
		}
	}
	if m := cfg.Tools.Music; m != nil && (m.Volume < 0 || m.Volume > 100) {
		errs = append(errs, fmt.Errorf("tools.music.volume %d is out of range [0, 100]", m.Volume))
	}
	if c := cfg.Tools.Calendar; c != nil && c.CredentialsFile == "" {
		slog.Warn("tools.calendar.credentials_file is empty; the calendar tool will be unavailable")
	}

	for i, srv := range cfg.MCP.Servers {
		if err := srv.BridgeConfig().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("mcp.servers[%d]: %w", i, err))
		}
	}

	return errors.Join(errs...)
}
