package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"storage":{"bucket":"photos"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Bucket != "photos" {
		t.Errorf("expected bucket photos, got %s", cfg.Storage.Bucket)
	}
	if cfg.Session.FlushIntervalSeconds != 10 {
		t.Errorf("expected default flush interval 10, got %d", cfg.Session.FlushIntervalSeconds)
	}
	if cfg.Webhook.Port != 3000 {
		t.Errorf("expected default webhook port 3000, got %d", cfg.Webhook.Port)
	}
	if cfg.Webhook.Path != "/" {
		t.Errorf("expected notifications at / by default, got %s", cfg.Webhook.Path)
	}
	if cfg.Flow.FallbackMode != "none" {
		t.Errorf("expected default fallbackMode none, got %s", cfg.Flow.FallbackMode)
	}
}

func TestLoad_DerivesHistoryPath(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `{"general":{"stateDir":"`+dir+`"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "history.json")
	if cfg.Session.HistoryPath != want {
		t.Errorf("expected history path %s, got %s", want, cfg.Session.HistoryPath)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("PD_TOKEN", "secret-token")

	out := ExpandEnvVars(`{"accessToken":"${PD_TOKEN}","region":"${PD_REGION:-sa-east-1}"}`)
	if !strings.Contains(out, "secret-token") {
		t.Errorf("env var not expanded: %s", out)
	}
	if !strings.Contains(out, "sa-east-1") {
		t.Errorf("default not applied: %s", out)
	}
}

func TestExpandEnvVars_UnsetWithoutDefaultKept(t *testing.T) {
	out := ExpandEnvVars("${PD_DEFINITELY_UNSET_VAR}")
	if out != "${PD_DEFINITELY_UNSET_VAR}" {
		t.Errorf("expected placeholder kept, got %s", out)
	}
}

func TestValidate_FallbackMode(t *testing.T) {
	cfg := Defaults()
	cfg.Flow.FallbackMode = "always-gpt"
	if err := Validate(cfg); err == nil {
		t.Error("expected error for unknown fallbackMode")
	}

	cfg.Flow.FallbackMode = "echo-llm"
	if err := Validate(cfg); err == nil {
		t.Error("expected error when echo-llm set without assistant key")
	}

	cfg.Assistant.APIKey = "sk-test"
	if err := Validate(cfg); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_DemoModeNeedsLinkBase(t *testing.T) {
	cfg := Defaults()
	cfg.Flow.DemoMode = true
	if err := Validate(cfg); err == nil {
		t.Error("expected error when demoMode set without paymentLinkBase")
	}
	cfg.Flow.PaymentLinkBase = "https://pay.example.com/checkout"
	if err := Validate(cfg); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_WebhookPath(t *testing.T) {
	cfg := Defaults()
	cfg.Webhook.Path = "webhook"
	if err := Validate(cfg); err == nil {
		t.Error("expected error for path without leading slash")
	}
}
