package bot

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseConfig(t *testing.T) {
	t.Run("defaults survive an empty document", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(""))
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if cfg.Name != "FightBot" {
			t.Errorf("name = %q", cfg.Name)
		}
		if cfg.Web.Listen != ":10000" {
			t.Errorf("listen = %q", cfg.Web.Listen)
		}
		if cfg.Audio.FetchTimeout != 3*time.Minute {
			t.Errorf("fetch timeout = %v", cfg.Audio.FetchTimeout)
		}
	})

	t.Run("yaml overlays defaults", func(t *testing.T) {
		data := []byte(`
name: MyBot
owner: "5511999999999"
web:
  listen: ":8080"
audio:
  enabled: false
channels:
  whatsapp:
    session_dir: /var/lib/bot/sessions
`)
		cfg, err := ParseConfig(data)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if cfg.Name != "MyBot" {
			t.Errorf("name = %q", cfg.Name)
		}
		if cfg.Owner != "5511999999999" {
			t.Errorf("owner = %q", cfg.Owner)
		}
		if cfg.Web.Listen != ":8080" {
			t.Errorf("listen = %q", cfg.Web.Listen)
		}
		if cfg.Audio.Enabled {
			t.Error("audio should be disabled")
		}
		if cfg.Channels.WhatsApp.SessionDir != "/var/lib/bot/sessions" {
			t.Errorf("session dir = %q", cfg.Channels.WhatsApp.SessionDir)
		}
		// Untouched sections keep their defaults.
		if cfg.PolicyPath != "./data/access.json" {
			t.Errorf("policy path = %q", cfg.PolicyPath)
		}
	})

	t.Run("invalid yaml fails", func(t *testing.T) {
		if _, err := ParseConfig([]byte("name: [unclosed")); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Run("expands environment references", func(t *testing.T) {
		t.Setenv("TEST_FIGHTBOT_OWNER", "5511888888888")

		path := filepath.Join(t.TempDir(), "config.yaml")
		data := "owner: ${TEST_FIGHTBOT_OWNER}\n"
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}

		cfg, err := LoadConfigFromFile(path)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if cfg.Owner != "5511888888888" {
			t.Errorf("owner = %q", cfg.Owner)
		}
	})

	t.Run("unset references stay as placeholders", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := "name: ${DEFINITELY_NOT_SET_VAR_123}\n"
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}

		cfg, err := LoadConfigFromFile(path)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if cfg.Name != "${DEFINITELY_NOT_SET_VAR_123}" {
			t.Errorf("name = %q", cfg.Name)
		}
	})

	t.Run("missing file errors", func(t *testing.T) {
		if _, err := LoadConfigFromFile("/nonexistent/config.yaml"); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("web token resolves from environment", func(t *testing.T) {
		t.Setenv("FIGHTBOT_WEB_TOKEN", "tok123")

		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("name: X\n"), 0o600); err != nil {
			t.Fatal(err)
		}

		cfg, err := LoadConfigFromFile(path)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if cfg.Web.AuthToken != "tok123" {
			t.Errorf("token = %q", cfg.Web.AuthToken)
		}
	})
}

func TestSaveConfigToFile(t *testing.T) {
	t.Run("roundtrips and restricts permissions", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		cfg := DefaultConfig()
		cfg.Owner = "5511999999999"

		if err := SaveConfigToFile(cfg, path); err != nil {
			t.Fatalf("save failed: %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("perm = %04o, want 0600", perm)
		}

		loaded, err := LoadConfigFromFile(path)
		if err != nil {
			t.Fatalf("reload failed: %v", err)
		}
		if loaded.Owner != "5511999999999" {
			t.Errorf("owner = %q", loaded.Owner)
		}
	})
}

func TestIsEnvReference(t *testing.T) {
	if !IsEnvReference("${TOKEN}") || !IsEnvReference("$TOKEN") {
		t.Error("expected references to match")
	}
	if IsEnvReference("plain-value") {
		t.Error("plain value must not match")
	}
}
