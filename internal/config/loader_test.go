package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeTemp(t, "codegw.yaml", `addr: ":9000"
models_db: /etc/codegw/models.yaml
log_level: debug
stream_timeout_seconds: 45
chat_done_delay_ms: 250
local_backend_url: http://127.0.0.1:8001
cloud:
  enabled: true
  base_url: https://api.openai.com/v1
  api_key_env: OPENAI_API_KEY
  models: [gpt-3.5-turbo, gpt-4]
cors_origins: ["http://localhost:5173"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.LogLevel != "debug" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.StreamTimeoutSeconds != 45 || cfg.ChatDoneDelayMS != 250 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if !cfg.Cloud.Enabled || len(cfg.Cloud.Models) != 2 {
		t.Fatalf("cloud=%+v", cfg.Cloud)
	}
	if len(cfg.CORSOrigins) != 1 {
		t.Fatalf("cors=%v", cfg.CORSOrigins)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeTemp(t, "codegw.json", `{"addr":":9000","local_backend_url":"http://127.0.0.1:8001"}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.LocalBackendURL != "http://127.0.0.1:8001" {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeTemp(t, "codegw.toml", `addr = ":9000"

[cloud]
enabled = true
models = ["gpt-4"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9000" || !cfg.Cloud.Enabled {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := writeTemp(t, "codegw.ini", "addr = :9000")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for .ini")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeTemp(t, "codegw.yaml", "addr: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCloudAPIKeyFromEnv(t *testing.T) {
	t.Setenv("CODEGW_TEST_KEY", "sk-test")
	c := CloudConfig{APIKeyEnv: "CODEGW_TEST_KEY"}
	if got := c.APIKey(); got != "sk-test" {
		t.Fatalf("key=%q", got)
	}
	if got := (CloudConfig{}).APIKey(); got != "" {
		t.Fatalf("key=%q, want empty without env name", got)
	}
}
