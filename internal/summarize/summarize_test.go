package summarize_test

import (
	"strings"
	"testing"

	"github.com/rcanale/lore/internal/summarize"
)

// ─── TruncateAtWord ─────────────────────────────────────────────────────────

func TestTruncateAtWord_NoTruncationNeeded(t *testing.T) {
	s := "short enough"
	if got := summarize.TruncateAtWord(s, 50); got != s {
		t.Errorf("got %q, want input unchanged", got)
	}
}

func TestTruncateAtWord_NeverExceedsMax(t *testing.T) {
	inputs := []string{
		"the quick brown fox jumps over the lazy dog repeatedly",
		"supercalifragilisticexpialidocious",
		"a b c d e f g h i j k l m n o p q r s t u v w x y z",
		strings.Repeat("word ", 100),
	}
	for _, in := range inputs {
		for _, max := range []int{1, 3, 10, 25, 40} {
			got := summarize.TruncateAtWord(in, max)
			if len(got) > max {
				t.Errorf("TruncateAtWord(%.20q, %d) = %q (len %d), exceeds max",
					in, max, got, len(got))
			}
		}
	}
}

func TestTruncateAtWord_CutsAtWordBoundary(t *testing.T) {
	got := summarize.TruncateAtWord("use retries for flaky network calls", 20)
	// Must not end mid-word: the char before the ellipsis completes a word.
	body := strings.TrimSuffix(got, "...")
	if !strings.HasSuffix("use retries for flaky network calls", body) &&
		!strings.HasPrefix("use retries for flaky network calls", body) {
		t.Errorf("truncation produced non-prefix %q", body)
	}
	for _, w := range strings.Fields(body) {
		if !strings.Contains("use retries for flaky network calls", w) {
			t.Errorf("word %q was split", w)
		}
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("got %q, want ellipsis suffix", got)
	}
}

func TestTruncateAtWord_EllipsisIffTruncated(t *testing.T) {
	if got := summarize.TruncateAtWord("hello world", 11); strings.HasSuffix(got, "...") {
		t.Errorf("got %q, no truncation should mean no ellipsis", got)
	}
	if got := summarize.TruncateAtWord("hello wonderful world", 12); !strings.HasSuffix(got, "...") {
		t.Errorf("got %q, truncation should append ellipsis", got)
	}
}

func TestTruncateAtWord_NoSpaceBeforeCutoff(t *testing.T) {
	got := summarize.TruncateAtWord("abcdefghijklmnopqrstuvwxyz", 10)
	if len(got) > 10 {
		t.Errorf("len = %d, want <= 10", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("got %q, want ellipsis", got)
	}
}

func TestTruncateAtWord_ZeroMax(t *testing.T) {
	if got := summarize.TruncateAtWord("anything", 0); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

// ─── Summarize ──────────────────────────────────────────────────────────────

func TestSummarize_ShortContentYieldsNoSummary(t *testing.T) {
	if got := summarize.Summarize("use retries for flaky network calls"); got != "" {
		t.Errorf("got %q, want empty for short content", got)
	}
}

func TestSummarize_LongContentIsShorterAndNonEmpty(t *testing.T) {
	content := strings.Repeat("the retrieval layer returns compact summaries first ", 10)
	got := summarize.Summarize(content)
	if got == "" {
		t.Fatal("summary is empty for long content")
	}
	if len(got) >= len(content) {
		t.Errorf("summary (len %d) is not shorter than content (len %d)", len(got), len(content))
	}
	if len(got) > summarize.DefaultSummaryLength {
		t.Errorf("summary length %d exceeds %d", len(got), summarize.DefaultSummaryLength)
	}
}

func TestSummarize_BarelyOverThresholdStillShortens(t *testing.T) {
	// One long sentence with no early terminator, sized between the short
	// threshold and the default cap, so only the truncation fallback runs.
	for _, n := range []int{101, 110, 120} {
		content := strings.Repeat("word ", n/5+1)[:n]
		got := summarize.Summarize(content)
		if got == "" {
			t.Fatalf("len %d: no summary for content over the threshold", n)
		}
		if len(got) >= len(content) {
			t.Errorf("len %d: summary %q (len %d) is not shorter than its content", n, got, len(got))
		}
	}
}

func TestSummarize_PrefersFirstSentence(t *testing.T) {
	content := "Scan before you expand to keep the context window small. " +
		"The rest of this text goes on at considerable length about other details " +
		"that should not show up in the derived summary at all."
	got := summarize.Summarize(content)
	if got != "Scan before you expand to keep the context window small." {
		t.Errorf("got %q, want first sentence", got)
	}
}

func TestSummarize_CollapsesWhitespace(t *testing.T) {
	content := "Scan   before\nyou expand\tto keep the context window small and readable. " +
		"Trailing detail follows so the content clears the short threshold for sure."
	got := summarize.Summarize(content)
	if strings.ContainsAny(got, "\n\t") || strings.Contains(got, "  ") {
		t.Errorf("summary %q contains uncollapsed whitespace", got)
	}
}
