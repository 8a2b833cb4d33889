package shimd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "shimd.toml")
	data := []byte("" +
		"[server]\n" +
		"broker = \"mqtt://localhost\"\n" +
		"identity = \"shimd-test\"\n" +
		"\n" +
		"[shim]\n" +
		"base_url = \"http://127.0.0.1:6789\"\n" +
		"timeout_ms = 5000\n" +
		"\n" +
		"[identity]\n" +
		"user_id = \"user-1\"\n" +
		"username = \"alice\"\n" +
		"\n" +
		"[modules.bridge]\n" +
		"enabled = true\n" +
		"node_id = \"living-room\"\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Broker != "mqtt://localhost" {
		t.Fatalf("expected broker")
	}
	if cfg.Shim.BaseURL != "http://127.0.0.1:6789" {
		t.Fatalf("expected shim base url")
	}
	if !cfg.Modules.Bridge.Enabled || cfg.Modules.Bridge.NodeID != "living-room" {
		t.Fatalf("expected bridge module config")
	}
	if cfg.Identity.Username != "alice" {
		t.Fatalf("expected identity username")
	}
}

func TestValidateRequiresShimURL(t *testing.T) {
	cfg := Config{}
	cfg.Server.Broker = "mqtt://localhost"
	cfg.Modules.Bridge.Enabled = true
	cfg.Modules.Bridge.NodeID = "n1"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing shim base_url")
	}
	cfg.Shim.BaseURL = "http://127.0.0.1:6789"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRequiresBroker(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when no broker configured")
	}
	cfg.Modules.EmbeddedMQTT.Enabled = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path, err := DefaultConfigPath()
	if err != nil {
		t.Fatalf("default config path: %v", err)
	}
	if path == "" {
		t.Fatalf("expected path")
	}
}
