package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for photodrop.
type Config struct {
	General   GeneralConfig   `json:"general"`
	Session   SessionConfig   `json:"session"`
	Storage   StorageConfig   `json:"storage"`
	Payment   PaymentConfig   `json:"payment"`
	Webhook   WebhookConfig   `json:"webhook"`
	Flow      FlowConfig      `json:"flow"`
	Assistant AssistantConfig `json:"assistant"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type GeneralConfig struct {
	StateDir string `json:"stateDir"` // session store, history snapshots
	LogLevel string `json:"logLevel"`
}

type SessionConfig struct {
	HistoryPath          string `json:"historyPath,omitempty"` // defaults to <stateDir>/history.json
	FlushIntervalSeconds int    `json:"flushIntervalSeconds"`
	HistoryLimit         int    `json:"historyLimit"` // entries kept per chat
}

type StorageConfig struct {
	Bucket string `json:"bucket"`
	Region string `json:"region"`
}

type PaymentConfig struct {
	AccessToken  string `json:"accessToken"`
	APIBase      string `json:"apiBase,omitempty"` // override for tests
	PixKey       string `json:"pixKey"`
	MerchantName string `json:"merchantName"`
	MerchantCity string `json:"merchantCity"`
}

type WebhookConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

type FlowConfig struct {
	IncludePaymentStep bool   `json:"includePaymentStep"`
	FallbackMode       string `json:"fallbackMode"` // "none" | "echo-llm"
	DemoMode           bool   `json:"demoMode"`
	PaymentLinkBase    string `json:"paymentLinkBase,omitempty"` // required when demoMode
}

type AssistantConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	APIBase string `json:"apiBase,omitempty"`
	Model   string `json:"model,omitempty"`
}

// MetricsConfig configures the Prometheus-format metrics endpoint.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.photodrop).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".photodrop"
	}
	return filepath.Join(home, ".photodrop")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.StateDir = ExpandPath(cfg.General.StateDir)
	cfg.Session.HistoryPath = ExpandPath(cfg.Session.HistoryPath)
	if cfg.Session.HistoryPath == "" {
		cfg.Session.HistoryPath = filepath.Join(cfg.General.StateDir, "history.json")
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Session.FlushIntervalSeconds < 1 {
		errs = append(errs, "session.flushIntervalSeconds must be >= 1")
	}
	if cfg.Session.HistoryLimit < 1 {
		errs = append(errs, "session.historyLimit must be >= 1")
	}

	if cfg.Webhook.Enabled {
		if cfg.Webhook.Port < 1 || cfg.Webhook.Port > 65535 {
			errs = append(errs, "webhook.port must be between 1 and 65535")
		}
		if !strings.HasPrefix(cfg.Webhook.Path, "/") {
			errs = append(errs, "webhook.path must start with /")
		}
	}

	switch cfg.Flow.FallbackMode {
	case "none", "echo-llm":
		// valid
	default:
		errs = append(errs, "flow.fallbackMode must be one of: none, echo-llm")
	}
	if cfg.Flow.FallbackMode == "echo-llm" && cfg.Assistant.APIKey == "" {
		errs = append(errs, "assistant.apiKey is required when flow.fallbackMode is echo-llm")
	}
	if cfg.Flow.DemoMode && cfg.Flow.PaymentLinkBase == "" {
		errs = append(errs, "flow.paymentLinkBase is required when flow.demoMode is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
