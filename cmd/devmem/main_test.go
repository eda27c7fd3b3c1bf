package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/devmem/internal/config"
	"github.com/HendryAvila/devmem/internal/engine"
	"github.com/HendryAvila/devmem/internal/memory"
)

// run executes the CLI with args against a project root.
func run(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--root", root))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newProject(t *testing.T) string {
	t.Helper()
	t.Setenv("DEVMEM_HOME", "")
	t.Setenv("DEVMEM_MEMBER_ID", "")
	t.Setenv("DEVMEM_TEAM_ID", "")
	return t.TempDir()
}

// seed writes a decision through the engine, as an MCP session would.
func seed(t *testing.T, root string) {
	t.Helper()
	cfg, err := config.Load(root)
	require.NoError(t, err)
	e, err := engine.Open(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, err = e.Memory.RecordArchitecturalDecision(context.Background(), memory.DecisionInput{
		Decision:  "Use SQLite for project memory",
		Rationale: "single file next to the code",
	})
	require.NoError(t, err)
}

func TestInit_WritesConfig(t *testing.T) {
	root := newProject(t)

	out, err := run(t, root, "init", "--team", "core", "--member", "ada")
	require.NoError(t, err)
	assert.Contains(t, out, config.FileName)

	cfg, err := config.Load(root)
	require.NoError(t, err)
	assert.Equal(t, "core", cfg.TeamID)
	assert.Equal(t, "ada", cfg.MemberID)

	_, err = os.Stat(config.Path(cfg.MetaDir))
	assert.NoError(t, err)
}

func TestInit_RejectsEmptyTeam(t *testing.T) {
	_, err := run(t, newProject(t), "init", "--team", " ")
	assert.Error(t, err)
}

func TestRecall(t *testing.T) {
	root := newProject(t)
	seed(t, root)

	out, err := run(t, root, "recall", "why", "sqlite?")
	require.NoError(t, err)
	assert.Contains(t, out, "Use SQLite for project memory")
}

func TestRecall_RequiresRequest(t *testing.T) {
	_, err := run(t, newProject(t), "recall")
	assert.Error(t, err)
}

func TestStatsAndClear(t *testing.T) {
	root := newProject(t)
	seed(t, root)

	out, err := run(t, root, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "- **Decisions**: 1")

	_, err = run(t, root, "clear")
	assert.ErrorContains(t, err, "--yes")

	out, err = run(t, root, "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Project memory cleared.")

	out, err = run(t, root, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "- **Decisions**: 0")
}

func TestAnalytics_JSON(t *testing.T) {
	root := newProject(t)

	out, err := run(t, root, "analytics", "--json")
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Contains(t, report, "total_members")
}

func TestAnalytics_UnknownMember(t *testing.T) {
	_, err := run(t, newProject(t), "analytics", "--member", "nobody")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, newProject(t), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "devmem v")
}
