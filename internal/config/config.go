// Package config loads devmem.yaml from the project's metadata directory.
//
// A missing file yields defaults. Environment variables override file
// values so MCP hosts can configure a session without writing files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/HendryAvila/devmem/internal/memory"
	"github.com/HendryAvila/devmem/internal/permission"
	"github.com/HendryAvila/devmem/internal/recall"
	"github.com/HendryAvila/devmem/internal/team"
	"github.com/HendryAvila/devmem/internal/telemetry"
)

// FileName is the config file inside the metadata directory.
const FileName = "devmem.yaml"

// RecallConfig tunes the recall heuristic.
type RecallConfig struct {
	RecentTurns   int `yaml:"recent_turns"`
	PerTokenLimit int `yaml:"per_token_limit"`
	MaxFragments  int `yaml:"max_fragments"`
}

// TeamConfig tunes the team store.
type TeamConfig struct {
	SearchLimit int `yaml:"search_limit"`
}

// AuditConfig bounds the audit trail.
type AuditConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

type Config struct {
	// ProjectRoot and MetaDir are resolved at load time, never read from
	// the file.
	ProjectRoot string `yaml:"-"`
	MetaDir     string `yaml:"-"`

	TeamID   string `yaml:"team_id"`
	MemberID string `yaml:"member_id"`
	LogLevel string `yaml:"log_level"`

	// MaxFileChanges caps file changes returned by GetProjectMemory.
	MaxFileChanges int `yaml:"max_file_changes"`

	Recall RecallConfig         `yaml:"recall"`
	Team   TeamConfig           `yaml:"team"`
	Audit  AuditConfig          `yaml:"audit"`
	OTel   telemetry.OTelConfig `yaml:"otel"`
}

// Default returns the configuration used when no file exists.
func Default(root string) Config {
	return Config{
		ProjectRoot:    root,
		MetaDir:        filepath.Join(root, memory.MetaDirName),
		TeamID:         "default",
		LogLevel:       "info",
		MaxFileChanges: 100,
		Recall: RecallConfig{
			RecentTurns:   recall.DefaultRecentTurns,
			PerTokenLimit: recall.DefaultPerTokenLimit,
			MaxFragments:  recall.DefaultMaxFragments,
		},
		Team:  TeamConfig{SearchLimit: team.DefaultSearchLimit},
		Audit: AuditConfig{MaxEntries: permission.DefaultMaxAudit},
		OTel:  telemetry.OTelConfig{Exporter: "none", ServiceName: "devmem"},
	}
}

// MetaDir returns the metadata directory for root. DEVMEM_HOME overrides
// the default <root>/.devmem.
func MetaDir(root string) string {
	if override := strings.TrimSpace(os.Getenv("DEVMEM_HOME")); override != "" {
		return override
	}
	return filepath.Join(root, memory.MetaDirName)
}

// Path returns the config file location for a metadata directory.
func Path(metaDir string) string {
	return filepath.Join(metaDir, FileName)
}

// Load reads the config for the project at root.
func Load(root string) (Config, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Config{}, fmt.Errorf("resolve project root: %w", err)
	}
	cfg := Default(abs)
	cfg.MetaDir = MetaDir(abs)

	data, err := os.ReadFile(Path(cfg.MetaDir))
	switch {
	case err != nil && !os.IsNotExist(err):
		return cfg, fmt.Errorf("read %s: %w", FileName, err)
	case err == nil && len(data) > 0:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", FileName, err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg to its metadata directory.
func Save(cfg Config) error {
	if err := os.MkdirAll(cfg.MetaDir, 0o700); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(Path(cfg.MetaDir), data, 0o600)
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.TeamID) == "" {
		return fmt.Errorf("team_id must not be empty")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level %q: want debug, info, warn or error", c.LogLevel)
	}
	for name, v := range map[string]int{
		"recall.recent_turns":    c.Recall.RecentTurns,
		"recall.per_token_limit": c.Recall.PerTokenLimit,
		"recall.max_fragments":   c.Recall.MaxFragments,
		"team.search_limit":      c.Team.SearchLimit,
		"audit.max_entries":      c.Audit.MaxEntries,
		"max_file_changes":       c.MaxFileChanges,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative (got %d)", name, v)
		}
	}
	switch c.OTel.Exporter {
	case "", "none", "stdout", "otlp-http":
	default:
		return fmt.Errorf("otel.exporter %q: want otlp-http, stdout or none", c.OTel.Exporter)
	}
	return nil
}

// MemoryConfig derives the store configuration.
func (c Config) MemoryConfig() memory.Config {
	return memory.Config{
		ProjectRoot:    c.ProjectRoot,
		DataDir:        c.MetaDir,
		MaxFileChanges: c.MaxFileChanges,
	}
}

func normalize(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Recall.RecentTurns == 0 {
		cfg.Recall.RecentTurns = recall.DefaultRecentTurns
	}
	if cfg.Recall.PerTokenLimit == 0 {
		cfg.Recall.PerTokenLimit = recall.DefaultPerTokenLimit
	}
	if cfg.Recall.MaxFragments == 0 {
		cfg.Recall.MaxFragments = recall.DefaultMaxFragments
	}
	if cfg.Team.SearchLimit == 0 {
		cfg.Team.SearchLimit = team.DefaultSearchLimit
	}
	if cfg.Audit.MaxEntries == 0 {
		cfg.Audit.MaxEntries = permission.DefaultMaxAudit
	}
	if cfg.MaxFileChanges == 0 {
		cfg.MaxFileChanges = 100
	}
	if cfg.OTel.ServiceName == "" {
		cfg.OTel.ServiceName = "devmem"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("DEVMEM_TEAM_ID")); v != "" {
		cfg.TeamID = v
	}
	if v := strings.TrimSpace(os.Getenv("DEVMEM_MEMBER_ID")); v != "" {
		cfg.MemberID = v
	}
	if v := strings.TrimSpace(os.Getenv("DEVMEM_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("DEVMEM_OTEL_ENABLED")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.OTel.Enabled = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.OTel.Endpoint = v
	}
}
