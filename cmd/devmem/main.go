// devmem: persistent project memory and team knowledge MCP server.
//
// Usage:
//
//	devmem serve               # Start MCP server (stdio transport)
//	devmem recall "question"   # Print recalled memory for a request
//	devmem stats               # Memory statistics
//	devmem analytics           # Team analytics
//	devmem init --member ada   # Write .devmem/devmem.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	devserver "github.com/HendryAvila/devmem/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "devmem",
		Short:         "devmem - project memory and team knowledge for AI coding tools",
		Version:       devserver.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `devmem remembers a project across AI coding sessions and shares knowledge
across a team. Add it to your AI tool's MCP config:

  {
    "mcpServers": {
      "devmem": {
        "command": "devmem",
        "args": ["serve"]
      }
    }
  }`,
	}
	root.PersistentFlags().String("root", ".", "Project root directory")

	root.AddCommand(serveCmd())
	root.AddCommand(initCmd())
	root.AddCommand(recallCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(clearCmd())
	root.AddCommand(analyticsCmd())
	root.AddCommand(versionCmd())
	return root
}
