// Package scoring ranks candidate records against a parsed search query.
//
// The scorer is pure: it operates on an in-memory candidate list the caller
// already fetched, touches no storage, and is deterministic given its
// inputs. Scoring is lexical — per-field term frequency with field weights,
// phrase bonuses, and an optional linear recency boost.
package scoring

import (
	"sort"
	"strings"
	"time"
)

// Candidate is one item to score: an opaque ID plus the searchable field
// values the caller extracted from the underlying record.
type Candidate struct {
	ID        string
	Kind      string
	Fields    map[string]string
	CreatedAt time.Time
}

// Scored pairs a candidate with its normalized relevance and the fields
// that contributed to it. Never persisted.
type Scored struct {
	Candidate
	Score         float64
	MatchedFields []string
}

// Query is the parsed form of a free-text search string.
type Query struct {
	Terms        []string           // bare terms, OR-combined
	Phrases      []string           // quoted phrases, exact substring match
	Exclusions   []string           // "-term": any match drops the item
	FieldFilters map[string]string  // "field:value" equality filters
}

// Empty reports whether the query carries no scoring terms at all.
// Field filters alone do not make a query scorable.
func (q Query) Empty() bool {
	return len(q.Terms) == 0 && len(q.Phrases) == 0
}

// Options tunes scoring behavior.
type Options struct {
	// FieldWeights maps field name to weight; unlisted fields get 1.0.
	FieldWeights map[string]float64
	// RecencyBoost enables the linear recency bonus (up to +20%).
	RecencyBoost bool
	// RecencyWindow is the decay horizon; zero means 30 days.
	RecencyWindow time.Duration
	// Now anchors the recency calculation. Zero means no boost is applied
	// even when RecencyBoost is set.
	Now time.Time
}

const (
	phraseWeight     = 2.0 // quoted phrases score higher than bare terms
	maxRecencyFactor = 0.2
	defaultRecency   = 30 * 24 * time.Hour
)

// ParseSearchQuery tokenizes a raw query string. It recognizes quoted
// phrases, "-" exclusions, and "field:value" filters; everything else is a
// bare term. Matching downstream is case-insensitive, so everything is
// lowercased here.
func ParseSearchQuery(raw string) Query {
	q := Query{FieldFilters: map[string]string{}}

	tokens := splitQuoted(raw)
	for _, tok := range tokens {
		switch {
		case strings.HasPrefix(tok, "\""):
			phrase := strings.ToLower(strings.Trim(tok, "\""))
			if phrase != "" {
				q.Phrases = append(q.Phrases, phrase)
			}
		case strings.HasPrefix(tok, "-") && len(tok) > 1:
			q.Exclusions = append(q.Exclusions, strings.ToLower(tok[1:]))
		case strings.Contains(tok, ":"):
			parts := strings.SplitN(tok, ":", 2)
			field, value := strings.ToLower(parts[0]), strings.ToLower(parts[1])
			if field != "" && value != "" {
				q.FieldFilters[field] = value
			} else if value != "" {
				q.Terms = append(q.Terms, value)
			}
		default:
			term := strings.ToLower(tok)
			if term != "" {
				q.Terms = append(q.Terms, term)
			}
		}
	}
	return q
}

// splitQuoted splits on whitespace while keeping quoted spans intact,
// including their quotes so the caller can tell phrases from terms.
func splitQuoted(raw string) []string {
	var tokens []string
	var cur strings.Builder
	inQuote := false

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for _, r := range raw {
		switch {
		case r == '"':
			cur.WriteRune(r)
			if inQuote {
				flush()
			}
			inQuote = !inQuote
		case !inQuote && (r == ' ' || r == '\t' || r == '\n'):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// ScoreItems scores every candidate against the query over the named
// searchable fields and returns the survivors sorted by descending score
// (ties broken by most-recent CreatedAt, then ID, for full determinism).
//
// An empty query scores every item 0 — it never errors and never degrades
// into "return everything unscored". Items matching any exclusion term are
// dropped regardless of their other-field score. Field filters are applied
// as equality checks before scoring.
func ScoreItems(items []Candidate, query Query, searchableFields []string, opts Options) []Scored {
	var out []Scored

	for _, item := range items {
		if !passesFieldFilters(item, query.FieldFilters) {
			continue
		}
		if matchesExclusion(item, query, searchableFields) {
			continue
		}

		if query.Empty() {
			out = append(out, Scored{Candidate: item, Score: 0})
			continue
		}

		score, matched := scoreFields(item, query, searchableFields, opts.FieldWeights)
		if score <= 0 {
			continue
		}

		score = applyRecencyBoost(score, item.CreatedAt, opts)
		out = append(out, Scored{Candidate: item, Score: score, MatchedFields: matched})
	}

	normalize(out)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	return out
}

func passesFieldFilters(item Candidate, filters map[string]string) bool {
	for field, want := range filters {
		got, ok := item.Fields[field]
		if !ok || !strings.EqualFold(strings.TrimSpace(got), want) {
			return false
		}
	}
	return true
}

func matchesExclusion(item Candidate, query Query, fields []string) bool {
	for _, excl := range query.Exclusions {
		for _, field := range fields {
			if strings.Contains(strings.ToLower(item.Fields[field]), excl) {
				return true
			}
		}
	}
	return false
}

// scoreFields computes the weighted term-frequency score across fields and
// reports which fields matched anything.
func scoreFields(item Candidate, query Query, fields []string, weights map[string]float64) (float64, []string) {
	var score float64
	var matched []string

	for _, field := range fields {
		text := strings.ToLower(item.Fields[field])
		if text == "" {
			continue
		}
		weight := 1.0
		if w, ok := weights[field]; ok {
			weight = w
		}

		fieldScore := 0.0
		for _, term := range query.Terms {
			fieldScore += float64(strings.Count(text, term))
		}
		for _, phrase := range query.Phrases {
			fieldScore += float64(strings.Count(text, phrase)) * phraseWeight
		}

		if fieldScore > 0 {
			score += fieldScore * weight
			matched = append(matched, field)
		}
	}
	return score, matched
}

// applyRecencyBoost adds up to +20% to the base score, decaying linearly to
// zero over the recency window measured back from opts.Now.
func applyRecencyBoost(score float64, createdAt time.Time, opts Options) float64 {
	if !opts.RecencyBoost || opts.Now.IsZero() || createdAt.IsZero() {
		return score
	}
	window := opts.RecencyWindow
	if window <= 0 {
		window = defaultRecency
	}
	age := opts.Now.Sub(createdAt)
	if age < 0 {
		age = 0
	}
	if age >= window {
		return score
	}
	factor := maxRecencyFactor * (1 - float64(age)/float64(window))
	return score * (1 + factor)
}

// normalize rescales all scores into [0,1] after boosting.
func normalize(items []Scored) {
	var max float64
	for _, it := range items {
		if it.Score > max {
			max = it.Score
		}
	}
	if max <= 0 {
		return
	}
	for i := range items {
		items[i].Score /= max
	}
}
