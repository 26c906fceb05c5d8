package ident_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rcanale/lore/internal/ident"
)

// fixedRand returns the same bytes on every read, for deterministic IDs.
func fixedRand(b byte) *bytes.Reader {
	return bytes.NewReader(bytes.Repeat([]byte{b}, 64))
}

// ─── Generate / Parse ───────────────────────────────────────────────────────

func TestGenerate_Format(t *testing.T) {
	ts := time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)
	id, err := ident.Generate(ident.PrefixInsight, ts, fixedRand(7))
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if !strings.HasPrefix(id, "INS-20250314-") {
		t.Errorf("id = %q, want INS-20250314- prefix", id)
	}
	if len(id) != len("INS-20250314-")+ident.SuffixLength {
		t.Errorf("id length = %d, want %d", len(id), len("INS-20250314-")+ident.SuffixLength)
	}
}

func TestGenerate_DeterministicGivenInputs(t *testing.T) {
	ts := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	a, err := ident.Generate(ident.PrefixTask, ts, fixedRand(42))
	if err != nil {
		t.Fatal(err)
	}
	b, err := ident.Generate(ident.PrefixTask, ts, fixedRand(42))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("same inputs produced %q and %q", a, b)
	}
}

func TestGenerate_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 01:00 on the 15th in UTC+9 is still the 14th in UTC.
	ts := time.Date(2025, 3, 15, 1, 0, 0, 0, loc)
	id, err := ident.Generate(ident.PrefixInsight, ts, fixedRand(1))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(id, "-20250314-") {
		t.Errorf("id = %q, want UTC date 20250314", id)
	}
}

func TestParse_RoundTrip(t *testing.T) {
	ts := time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC)
	id, err := ident.Generate(ident.PrefixInsight, ts, fixedRand(3))
	if err != nil {
		t.Fatal(err)
	}

	c := ident.Parse(id)
	if c == nil {
		t.Fatalf("Parse(%q) = nil", id)
	}
	if c.Prefix != "INS" {
		t.Errorf("Prefix = %q, want INS", c.Prefix)
	}
	if got := c.Date.Format("20060102"); got != "20241231" {
		t.Errorf("Date = %s, want 20241231", got)
	}
	if len(c.Suffix) != ident.SuffixLength {
		t.Errorf("Suffix = %q, want %d chars", c.Suffix, ident.SuffixLength)
	}
}

func TestParse_MalformedReturnsNil(t *testing.T) {
	cases := []string{
		"",
		"INS",
		"INS-042",              // legacy, not global
		"INS-2025031-abcdef",   // short date
		"INS-20250314-ABCDEF",  // uppercase suffix
		"INS-20250314-abc",     // short suffix
		"ins-20250314-abcdef",  // lowercase prefix
		"INS-20251301-abcdef",  // month 13
		"INS-20250314-abcdefg", // long suffix
		"random garbage",
	}
	for _, id := range cases {
		if c := ident.Parse(id); c != nil {
			t.Errorf("Parse(%q) = %+v, want nil", id, c)
		}
	}
}

// ─── Legacy IDs ─────────────────────────────────────────────────────────────

func TestIsLegacyID(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"INS-001", true},
		{"INS-1", true},
		{"TASK-042", true},
		{"TASK-9999", true},
		{"INS-20250314-abcdef", false},
		{"INS-", false},
		{"001", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := ident.IsLegacyID(tc.id); got != tc.want {
			t.Errorf("IsLegacyID(%q) = %v, want %v", tc.id, got, tc.want)
		}
	}
}

func TestMigrateLegacyID_Deterministic(t *testing.T) {
	created := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	a, err := ident.MigrateLegacyID("INS-007", created, "abcd1234")
	if err != nil {
		t.Fatalf("MigrateLegacyID error: %v", err)
	}
	b, err := ident.MigrateLegacyID("INS-007", created, "abcd1234")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("identical inputs produced %q and %q", a, b)
	}
}

func TestMigrateLegacyID_ProducesValidGlobalID(t *testing.T) {
	created := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	id, err := ident.MigrateLegacyID("TASK-003", created, "ffff0000")
	if err != nil {
		t.Fatal(err)
	}
	c := ident.Parse(id)
	if c == nil {
		t.Fatalf("migrated ID %q does not parse as a global ID", id)
	}
	if c.Prefix != "TASK" {
		t.Errorf("Prefix = %q, want TASK", c.Prefix)
	}
	if got := c.Date.Format("20060102"); got != "20240601" {
		t.Errorf("Date = %s, want 20240601", got)
	}
}

func TestMigrateLegacyID_DifferentInputsDiffer(t *testing.T) {
	created := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	base, _ := ident.MigrateLegacyID("INS-001", created, "repo-a")
	otherID, _ := ident.MigrateLegacyID("INS-002", created, "repo-a")
	otherRepo, _ := ident.MigrateLegacyID("INS-001", created, "repo-b")

	if base == otherID {
		t.Error("different legacy IDs yielded the same global ID")
	}
	if base == otherRepo {
		t.Error("different repo hashes yielded the same global ID")
	}
}

func TestMigrateLegacyID_RejectsGlobalID(t *testing.T) {
	_, err := ident.MigrateLegacyID("INS-20250314-abcdef", time.Now(), "x")
	if err == nil {
		t.Error("expected error migrating a non-legacy ID")
	}
}

// ─── ContentHash ────────────────────────────────────────────────────────────

func TestContentHash_WhitespaceInsensitive(t *testing.T) {
	a := ident.ContentHash("use retries for flaky network calls")
	b := ident.ContentHash("  use   retries\nfor flaky\tnetwork calls ")
	if a != b {
		t.Errorf("whitespace variants hashed differently: %q vs %q", a, b)
	}
}

func TestContentHash_DistinguishesContent(t *testing.T) {
	a := ident.ContentHash("use retries for flaky network calls")
	b := ident.ContentHash("use circuit breakers for flaky network calls")
	if a == b {
		t.Error("different content hashed identically")
	}
}

// ─── RepoHash ───────────────────────────────────────────────────────────────

func TestRepoHash_StableAndDistinct(t *testing.T) {
	a := ident.RepoHash("/home/dev/project-a")
	b := ident.RepoHash("/home/dev/project-a")
	c := ident.RepoHash("/home/dev/project-b")

	if a != b {
		t.Errorf("same path hashed to %q and %q", a, b)
	}
	if a == c {
		t.Error("different paths hashed identically")
	}
	if len(a) != 8 {
		t.Errorf("hash length = %d, want 8", len(a))
	}
}

func TestRepoHash_NormalizesPath(t *testing.T) {
	a := ident.RepoHash("/home/dev/project")
	b := ident.RepoHash("/home/dev/project/")
	if a != b {
		t.Errorf("trailing slash changed hash: %q vs %q", a, b)
	}
}
