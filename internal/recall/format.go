package recall

import (
	"fmt"
	"strings"

	"github.com/HendryAvila/devmem/internal/memory"
)

// Format renders fragments as markdown for inclusion in a model prompt.
// It returns "" for an empty slice.
func Format(fragments []Fragment, level memory.DetailLevel) string {
	if len(fragments) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Recalled Project Memory\n")

	section := Kind("")
	for _, f := range fragments {
		if f.Kind != section {
			section = f.Kind
			fmt.Fprintf(&b, "\n### %s\n", sectionTitle(section))
		}
		switch f.Kind {
		case KindConversation:
			fmt.Fprintf(&b, "- conversation %s (%s)\n", f.SourceID, f.Timestamp.Format("2006-01-02 15:04"))
			for _, t := range f.Turns {
				fmt.Fprintf(&b, "  - %s: %s\n", t.Role, level.Clip(t.Content))
			}
		case KindDecision:
			fmt.Fprintf(&b, "- **%s**", level.Clip(f.Content))
			if f.Rationale != "" && level != memory.DetailSummary {
				fmt.Fprintf(&b, "\n  rationale: %s", level.Clip(f.Rationale))
			}
			b.WriteString("\n")
		case KindPattern:
			outcome := "unknown"
			if f.Success != nil {
				outcome = "failed"
				if *f.Success {
					outcome = "worked"
				}
			}
			fmt.Fprintf(&b, "- [%s, %s, x%d] `%s`", f.Language, outcome, f.Frequency, level.Clip(f.Content))
			if f.Context != "" && level != memory.DetailSummary {
				fmt.Fprintf(&b, "\n  context: %s", level.Clip(f.Context))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func sectionTitle(k Kind) string {
	switch k {
	case KindConversation:
		return "Recent Conversations"
	case KindDecision:
		return "Architectural Decisions"
	case KindPattern:
		return "Code Patterns"
	default:
		return string(k)
	}
}
