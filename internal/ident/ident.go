// Package ident generates and parses the global record identifiers used
// across the lore store.
//
// IDs have the form {PREFIX}-{YYYYMMDD}-{suffix}: a short entity tag, the
// creation date, and a six-character base36 suffix. The date segment keeps
// IDs chronologically sortable and human-legible; the suffix keeps them
// unique within a day (36^6 combinations per entity per day).
package ident

import (
	"crypto/sha256"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Entity tags. The prefix is the only thing that distinguishes an insight
// ID from a task ID.
const (
	PrefixInsight = "INS"
	PrefixTask    = "TASK"
)

// suffix alphabet: lowercase base36.
const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// SuffixLength is the number of random characters after the date segment.
const SuffixLength = 6

var (
	globalIDPattern = regexp.MustCompile(`^([A-Z]+)-(\d{8})-([a-z0-9]{6})$`)
	legacyIDPattern = regexp.MustCompile(`^([A-Z]+)-(\d{1,4})$`)
)

// Components is the parsed form of a global ID.
type Components struct {
	Prefix string
	Date   time.Time
	Suffix string
}

// Generate produces a new global ID for the given entity prefix. The
// timestamp and random source are explicit so generation is deterministic
// under test; production callers pass time.Now() and crypto-irrelevant
// randomness. Collision re-roll against existing storage is the caller's
// concern.
func Generate(prefix string, t time.Time, rng io.Reader) (string, error) {
	buf := make([]byte, SuffixLength)
	if _, err := io.ReadFull(rng, buf); err != nil {
		return "", fmt.Errorf("ident: read random: %w", err)
	}
	suffix := make([]byte, SuffixLength)
	for i, b := range buf {
		suffix[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return fmt.Sprintf("%s-%s-%s", prefix, t.UTC().Format("20060102"), suffix), nil
}

// Parse splits a global ID into its components. It returns nil for any
// malformed input — absence of a parse is data, not an error.
func Parse(id string) *Components {
	m := globalIDPattern.FindStringSubmatch(id)
	if m == nil {
		return nil
	}
	date, err := time.Parse("20060102", m[2])
	if err != nil {
		return nil
	}
	return &Components{Prefix: m[1], Date: date, Suffix: m[3]}
}

// IsLegacyID reports whether id matches the old fixed-width sequential
// pattern (e.g. "INS-042") that predates dated global IDs.
func IsLegacyID(id string) bool {
	return legacyIDPattern.MatchString(id)
}

// MigrateLegacyID deterministically converts a legacy sequential ID into a
// global ID. The suffix is derived from a stable hash of (legacyId,
// createdDate, repoHash), never from entropy: re-running a migration on an
// already-migrated store must mint the same IDs it minted the first time.
func MigrateLegacyID(legacyID string, created time.Time, repoHash string) (string, error) {
	m := legacyIDPattern.FindStringSubmatch(legacyID)
	if m == nil {
		return "", fmt.Errorf("ident: %q is not a legacy ID", legacyID)
	}
	date := created.UTC().Format("20060102")
	sum := sha256.Sum256([]byte(legacyID + "|" + date + "|" + repoHash))
	suffix := make([]byte, SuffixLength)
	for i := 0; i < SuffixLength; i++ {
		suffix[i] = suffixAlphabet[int(sum[i])%len(suffixAlphabet)]
	}
	return fmt.Sprintf("%s-%s-%s", m[1], date, suffix), nil
}

// ContentHash returns a stable fingerprint of record content, insensitive to
// whitespace differences and letter case. Two records with the same hash are
// semantic duplicates regardless of their assigned IDs.
func ContentHash(content string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(content), " "))
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", sum[:16])
}

// RepoHash returns a short stable fingerprint of a repository path, used to
// namespace legacy-ID migration and bundle provenance. Same path, same hash;
// it is not a security primitive.
func RepoHash(path string) string {
	clean := filepath.ToSlash(filepath.Clean(strings.TrimSpace(path)))
	sum := sha256.Sum256([]byte(clean))
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = suffixAlphabet[int(sum[i])%len(suffixAlphabet)]
	}
	return string(out)
}
