// Package summarize derives compact summaries from record content.
//
// Summarization is a pure function from content to summary. The upgrade and
// capture paths take it as an injected dependency, so a model-backed
// implementation can replace the heuristic one without touching migration
// or retrieval logic.
package summarize

import "strings"

// ShortContentThreshold is the content length at or below which no derived
// summary is stored — the content itself is already compact enough for a
// scan index entry.
const ShortContentThreshold = 100

// DefaultSummaryLength bounds heuristic summaries.
const DefaultSummaryLength = 120

const ellipsis = "..."

// Func is the summarizer contract: pure content → summary.
type Func func(content string) string

// TruncateAtWord shortens s to at most max characters, cutting at the last
// space before the limit so words are never split mid-way (unless no space
// exists before the cutoff). An ellipsis is appended iff truncation occurred,
// and counts against the limit.
func TruncateAtWord(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	if max <= len(ellipsis) {
		return ellipsis[:max]
	}

	cut := max - len(ellipsis)
	truncated := s[:cut]
	if idx := strings.LastIndex(truncated, " "); idx > 0 {
		truncated = truncated[:idx]
	}
	return strings.TrimRight(truncated, " ") + ellipsis
}

// Summarize is the default heuristic summarizer: collapse whitespace, prefer
// the first sentence when it is reasonably short, otherwise truncate at a
// word boundary. Returns "" for content at or under the short-content
// threshold (callers store no summary in that case).
func Summarize(content string) string {
	collapsed := strings.Join(strings.Fields(content), " ")
	if len(collapsed) <= ShortContentThreshold {
		return ""
	}

	if idx := firstSentenceEnd(collapsed); idx > 0 && idx <= DefaultSummaryLength {
		return collapsed[:idx]
	}
	if len(collapsed) <= DefaultSummaryLength {
		// Content barely over the threshold would survive the default cap
		// whole; cut below the threshold so the summary stays strictly
		// shorter than the content it was derived from.
		return TruncateAtWord(collapsed, ShortContentThreshold)
	}
	return TruncateAtWord(collapsed, DefaultSummaryLength)
}

// firstSentenceEnd returns the index just past the first sentence terminator
// followed by a space, or -1 when none is found early enough to matter.
func firstSentenceEnd(s string) int {
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			if s[i+1] == ' ' {
				return i + 1
			}
		}
	}
	return -1
}
