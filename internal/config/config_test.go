package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HendryAvila/devmem/internal/recall"
)

func writeConfig(t *testing.T, root, body string) {
	t.Helper()
	dir := filepath.Join(root, ".devmem")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// --- Load ---

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("DEVMEM_HOME", "")
	root := t.TempDir()

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.TeamID != "default" {
		t.Errorf("TeamID = %q, want default", cfg.TeamID)
	}
	if cfg.Recall.RecentTurns != recall.DefaultRecentTurns {
		t.Errorf("RecentTurns = %d, want %d", cfg.Recall.RecentTurns, recall.DefaultRecentTurns)
	}
	if cfg.Audit.MaxEntries != 10000 {
		t.Errorf("Audit.MaxEntries = %d, want 10000", cfg.Audit.MaxEntries)
	}
	if cfg.MetaDir != filepath.Join(root, ".devmem") {
		t.Errorf("MetaDir = %q", cfg.MetaDir)
	}
}

func TestLoad_ReadsYAML(t *testing.T) {
	t.Setenv("DEVMEM_HOME", "")
	root := t.TempDir()
	writeConfig(t, root, `
team_id: platform
member_id: m-42
log_level: debug
recall:
  recent_turns: 10
  max_fragments: 8
team:
  search_limit: 5
otel:
  enabled: true
  exporter: stdout
`)

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.TeamID != "platform" || cfg.MemberID != "m-42" {
		t.Errorf("team/member = %q/%q", cfg.TeamID, cfg.MemberID)
	}
	if cfg.Recall.RecentTurns != 10 || cfg.Recall.MaxFragments != 8 {
		t.Errorf("recall = %+v", cfg.Recall)
	}
	if cfg.Recall.PerTokenLimit != recall.DefaultPerTokenLimit {
		t.Errorf("unset per_token_limit should default, got %d", cfg.Recall.PerTokenLimit)
	}
	if cfg.Team.SearchLimit != 5 {
		t.Errorf("SearchLimit = %d, want 5", cfg.Team.SearchLimit)
	}
	if !cfg.OTel.Enabled || cfg.OTel.Exporter != "stdout" || cfg.OTel.ServiceName != "devmem" {
		t.Errorf("otel = %+v", cfg.OTel)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("DEVMEM_HOME", home)
	t.Setenv("DEVMEM_TEAM_ID", "from-env")
	t.Setenv("DEVMEM_LOG_LEVEL", "warn")

	if err := os.WriteFile(filepath.Join(home, FileName), []byte("team_id: from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MetaDir != home {
		t.Errorf("MetaDir = %q, want %q", cfg.MetaDir, home)
	}
	if cfg.TeamID != "from-env" {
		t.Errorf("TeamID = %q, want from-env", cfg.TeamID)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if got := cfg.MemoryConfig().MetaDir(); got != home {
		t.Errorf("memory config dir = %q, want %q", got, home)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	t.Setenv("DEVMEM_HOME", "")
	root := t.TempDir()
	writeConfig(t, root, "team_id: [unclosed\n")

	if _, err := Load(root); err == nil || !strings.Contains(err.Error(), "parse") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

// --- Validate ---

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"empty team", func(c *Config) { c.TeamID = " " }, "team_id"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"negative limit", func(c *Config) { c.Team.SearchLimit = -1 }, "team.search_limit"},
		{"bad exporter", func(c *Config) { c.OTel.Exporter = "zipkin" }, "otel.exporter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default("/tmp/project")
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	t.Setenv("DEVMEM_HOME", "")
	root := t.TempDir()
	cfg := Default(root)
	cfg.TeamID = "saved"
	cfg.Recall.MaxFragments = 9

	if err := Save(cfg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := Load(root)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.TeamID != "saved" || got.Recall.MaxFragments != 9 {
		t.Errorf("loaded %+v", got)
	}
}
