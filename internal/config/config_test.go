package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 18820 {
		t.Errorf("port = %d, want default 18820", cfg.Server.Port)
	}
	if cfg.Answer.SimThreshold != 0.85 || cfg.Answer.Margin != 0.10 {
		t.Errorf("answer defaults wrong: %+v", cfg.Answer)
	}
}

func TestLoadJSON5File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		// comments are allowed
		server: { port: 9000 },
		answer: { sim_threshold: 0.9 },
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Answer.SimThreshold != 0.9 {
		t.Errorf("sim_threshold = %f, want 0.9", cfg.Answer.SimThreshold)
	}
	// Untouched sections keep defaults.
	if cfg.Coalesce.WindowMS != 500 {
		t.Errorf("window_ms = %d, want default 500", cfg.Coalesce.WindowMS)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DESKBOT_OPENAI_API_KEY", "sk-env")
	t.Setenv("DESKBOT_PORT", "7777")
	t.Setenv("DESKBOT_PORT_BOGUS", "x") // unrelated, ignored

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.APIKey != "sk-env" {
		t.Errorf("api key = %q, want env value", cfg.Provider.APIKey)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("port = %d, want 7777", cfg.Server.Port)
	}
}

func TestLoadRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := ExpandHome("~/x/y"); got != filepath.Join(home, "x", "y") {
		t.Errorf("ExpandHome = %q", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandHome = %q", got)
	}
}
