// detail.go holds the shared detail_level parameter and response footers
// used by the MCP tool packages.
package memory

import (
	"fmt"
	"strconv"
)

// DetailLevel controls how much content a tool response carries.
type DetailLevel string

const (
	DetailSummary  DetailLevel = "summary"
	DetailStandard DetailLevel = "standard"
	DetailFull     DetailLevel = "full"
)

// DetailLevelValues returns the enum values for MCP tool definitions.
func DetailLevelValues() []string {
	return []string{string(DetailSummary), string(DetailStandard), string(DetailFull)}
}

// ParseDetailLevel normalizes s, defaulting to standard.
func ParseDetailLevel(s string) DetailLevel {
	switch DetailLevel(s) {
	case DetailSummary, DetailFull:
		return DetailLevel(s)
	default:
		return DetailStandard
	}
}

// Clip shortens content for the level: summary keeps a title-sized
// prefix, standard a snippet, full everything.
func (l DetailLevel) Clip(content string) string {
	switch l {
	case DetailSummary:
		return Truncate(content, 80)
	case DetailFull:
		return content
	default:
		return Truncate(content, 300)
	}
}

// NavigationHint returns a footer when a list was capped, or "".
func NavigationHint(showing, total int, hint string) string {
	if total <= 0 || showing >= total {
		return ""
	}
	if hint != "" {
		return fmt.Sprintf("\nShowing %d of %d. %s", showing, total, hint)
	}
	return fmt.Sprintf("\nShowing %d of %d.", showing, total)
}

// EstimateTokens approximates the token count of text at four bytes per
// token. Non-empty text counts at least one token.
func EstimateTokens(text string) int {
	n := len(text)
	if n == 0 {
		return 0
	}
	return max(n/4, 1)
}

// TokenFooter renders the estimated token cost of a response.
func TokenFooter(tokens int) string {
	return "\n~" + groupThousands(tokens) + " tokens"
}

func groupThousands(n int) string {
	s := strconv.Itoa(n)
	if n < 1000 {
		return s
	}
	var out []byte
	for i := range len(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	return string(out)
}
