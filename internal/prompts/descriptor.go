package prompts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"

	"github.com/HendryAvila/devmem/internal/memory"
)

// maxRecentChanges caps the recent-changes list of a descriptor.
const maxRecentChanges = 10

// Descriptor is the project context attached to an enhanced request. It
// is informational only; nothing in the engine interprets it.
type Descriptor struct {
	WorkingDir    string   `json:"working_dir"`
	TechStack     []string `json:"tech_stack"`
	Dependencies  []string `json:"dependencies"`
	RecentChanges []string `json:"recent_changes"`
}

// stackMarkers maps a file at the project root to the stack it implies.
var stackMarkers = []struct {
	file  string
	stack string
}{
	{"go.mod", "Go"},
	{"package.json", "Node.js"},
	{"tsconfig.json", "TypeScript"},
	{"Cargo.toml", "Rust"},
	{"pyproject.toml", "Python"},
	{"requirements.txt", "Python"},
	{"pom.xml", "Java (Maven)"},
	{"build.gradle", "Java (Gradle)"},
	{"Gemfile", "Ruby"},
	{"Dockerfile", "Docker"},
}

// Describe builds the descriptor for root. Recent changes come from the
// store; a store error leaves them empty.
func Describe(ctx context.Context, root string, store *memory.Store) Descriptor {
	d := Descriptor{
		WorkingDir:    root,
		TechStack:     []string{},
		Dependencies:  []string{},
		RecentChanges: []string{},
	}

	seen := map[string]bool{}
	for _, m := range stackMarkers {
		if _, err := os.Stat(filepath.Join(root, m.file)); err == nil && !seen[m.stack] {
			seen[m.stack] = true
			d.TechStack = append(d.TechStack, m.stack)
		}
	}

	if deps, err := goDependencies(filepath.Join(root, "go.mod")); err == nil {
		d.Dependencies = deps
	}

	if store != nil {
		if pm, err := store.GetProjectMemory(ctx); err == nil {
			for _, fc := range pm.FileChanges[:min(maxRecentChanges, len(pm.FileChanges))] {
				d.RecentChanges = append(d.RecentChanges, fmt.Sprintf("%s %s", fc.ChangeKind, fc.FilePath))
			}
		}
	}
	return d
}

// goDependencies lists the direct requirements of a go.mod file.
func goDependencies(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := modfile.Parse(path, data, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	deps := []string{}
	for _, r := range f.Require {
		if r.Indirect {
			continue
		}
		deps = append(deps, r.Mod.Path+"@"+r.Mod.Version)
	}
	return deps, nil
}

// Markdown renders the descriptor as a prompt section.
func (d Descriptor) Markdown() string {
	var b strings.Builder
	b.WriteString("## Project Context\n")
	fmt.Fprintf(&b, "- Working directory: %s\n", d.WorkingDir)
	if len(d.TechStack) > 0 {
		fmt.Fprintf(&b, "- Tech stack: %s\n", strings.Join(d.TechStack, ", "))
	}
	if len(d.Dependencies) > 0 {
		fmt.Fprintf(&b, "- Dependencies: %s\n", strings.Join(d.Dependencies, ", "))
	}
	if len(d.RecentChanges) > 0 {
		b.WriteString("- Recent changes:\n")
		for _, c := range d.RecentChanges {
			fmt.Fprintf(&b, "  - %s\n", c)
		}
	}
	return b.String()
}
