// detail.go provides shared constants and formatting for the detail_level
// parameter and the token-cost footers used across read-heavy tools.
//
// Three verbosity levels enable progressive disclosure:
//   - summary: minimal tokens — IDs, one-line summaries, metadata only
//   - standard: default behavior — truncated content snippets
//   - full: complete untruncated content for deep analysis
package tools

import "fmt"

// Detail level constants.
const (
	DetailSummary  = "summary"
	DetailStandard = "standard"
	DetailFull     = "full"
)

// DetailLevelValues returns the enum values for MCP tool definitions.
func DetailLevelValues() []string {
	return []string{DetailSummary, DetailStandard, DetailFull}
}

// ParseDetailLevel normalizes a detail_level string, defaulting to
// "standard" for empty or unrecognized values.
func ParseDetailLevel(s string) string {
	switch s {
	case DetailSummary, DetailFull:
		return s
	default:
		return DetailStandard
	}
}

// SummaryFooter is appended to summary-mode responses to guide the caller
// toward progressive disclosure — fetch more detail only when needed.
const SummaryFooter = "\n---\n💡 Use lore_expand with chosen IDs for full content."

// NavigationHint returns a one-line footer when results are capped by a
// limit. Returns an empty string when all results fit.
func NavigationHint(showing, total int, hint string) string {
	if total <= 0 || showing >= total {
		return ""
	}
	if hint != "" {
		return fmt.Sprintf("\n📊 Showing %d of %d. %s", showing, total, hint)
	}
	return fmt.Sprintf("\n📊 Showing %d of %d.", showing, total)
}

// EstimateTokens approximates the token count for a text string using the
// chars/4 heuristic. Returns 0 for empty strings, at least 1 otherwise.
func EstimateTokens(text string) int {
	n := len(text)
	if n == 0 {
		return 0
	}
	tokens := n / 4
	if tokens == 0 {
		return 1
	}
	return tokens
}

// TokenFooter returns a one-line footer with the estimated token count for
// a tool response, giving the caller visibility into context cost.
func TokenFooter(estimatedTokens int) string {
	return fmt.Sprintf("\n📏 ~%d tokens", estimatedTokens)
}
