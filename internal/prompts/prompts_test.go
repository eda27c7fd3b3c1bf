package prompts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/devmem/internal/config"
	"github.com/HendryAvila/devmem/internal/engine"
	"github.com/HendryAvila/devmem/internal/memory"
)

const goMod = `module example.com/app

go 1.24

require (
	github.com/spf13/cobra v1.10.2
	golang.org/x/sys v0.40.0 // indirect
)
`

func newEngine(t *testing.T) (*engine.Engine, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte(goMod), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Dockerfile"), []byte("FROM scratch\n"), 0o644))
	e, err := engine.Open(context.Background(), config.Default(root))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, root
}

func promptText(t *testing.T, res *mcp.GetPromptResult) string {
	t.Helper()
	require.Len(t, res.Messages, 1)
	tc, ok := res.Messages[0].Content.(mcp.TextContent)
	require.True(t, ok, "prompt content should be text")
	return tc.Text
}

func TestDescribe(t *testing.T) {
	e, root := newEngine(t)
	ctx := context.Background()
	_, err := e.Memory.TrackFileChange(ctx, "main.go", memory.ChangeModified, "")
	require.NoError(t, err)

	d := Describe(ctx, root, e.Memory)
	assert.Equal(t, root, d.WorkingDir)
	assert.Equal(t, []string{"Go", "Docker"}, d.TechStack)
	assert.Equal(t, []string{"github.com/spf13/cobra@v1.10.2"}, d.Dependencies, "indirect requirements are skipped")
	assert.Equal(t, []string{"modified main.go"}, d.RecentChanges)

	md := d.Markdown()
	assert.Contains(t, md, "Tech stack: Go, Docker")
	assert.Contains(t, md, "  - modified main.go")
}

func TestDescribe_EmptyDirectory(t *testing.T) {
	d := Describe(context.Background(), t.TempDir(), nil)
	assert.Empty(t, d.TechStack)
	assert.Empty(t, d.Dependencies)
	assert.NotNil(t, d.RecentChanges)
}

func TestRecallPrompt(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	_, err := e.Memory.RecordArchitecturalDecision(ctx, memory.DecisionInput{
		Decision: "Errors carry a stable code", Rationale: "handlers branch on class",
	})
	require.NoError(t, err)

	p := NewRecallPrompt(e)
	assert.Equal(t, "devmem-recall", p.Definition().Name)

	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"request": "How are errors handled?"}
	res, err := p.Handle(ctx, req)
	require.NoError(t, err)

	text := promptText(t, res)
	assert.Contains(t, text, "## Project Context")
	assert.Contains(t, text, "Errors carry a stable code")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(text), "`mem_record_decision`."), text)
	assert.Contains(t, text, "## Request\nHow are errors handled?")
}

func TestRecallPrompt_RequiresRequest(t *testing.T) {
	e, _ := newEngine(t)
	_, err := NewRecallPrompt(e).Handle(context.Background(), mcp.GetPromptRequest{})
	assert.Error(t, err)
}

func TestWrapUpPrompt(t *testing.T) {
	p := NewWrapUpPrompt()
	assert.Equal(t, "devmem-wrap-up", p.Definition().Name)

	res, err := p.Handle(context.Background(), mcp.GetPromptRequest{})
	require.NoError(t, err)
	text := promptText(t, res)
	assert.Contains(t, text, "mem_record_conversation")
	assert.NotContains(t, text, "team_create_memory")

	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"share_with_team": "YES"}
	res, err = p.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, promptText(t, res), "team_create_memory")
}
