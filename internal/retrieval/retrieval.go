// Package retrieval implements progressive disclosure over the record
// store: scan returns a ranked compact index, expand returns full records
// for chosen IDs, and timeline returns the chronological neighborhood of an
// anchor. The intended flow is scan first, expand or timeline second, so a
// caller never pays for full content it did not ask for.
package retrieval

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rcanale/lore/internal/ident"
	"github.com/rcanale/lore/internal/scoring"
	"github.com/rcanale/lore/internal/store"
	"github.com/rcanale/lore/internal/summarize"
)

// Record kinds as they appear in scan and timeline entries.
const (
	KindInsight = "insight"
	KindTask    = "task"
)

const (
	// DefaultScanLimit caps a scan page when the caller gives no limit.
	DefaultScanLimit = 20
	// candidateFactor widens the storage fetch so lexical re-ranking has
	// enough material to work with.
	candidateFactor = 5
	maxCandidates   = 200
	// scanLineMax caps the fallback index line for records without a
	// stored summary. It sits below the short-content threshold so a scan
	// never reproduces content long enough to have earned a summary.
	scanLineMax = 80
)

// Storage is the slice of the store the retrieval service needs.
type Storage interface {
	SearchInsights(query string, f store.Filter, limit int) ([]store.Insight, error)
	GetInsight(id string) (*store.Insight, error)
	InsightsBefore(t time.Time, limit int) ([]store.Insight, error)
	InsightsAfter(t time.Time, limit int) ([]store.Insight, error)
	InsightsAt(t time.Time) ([]store.Insight, error)

	SearchTasks(query string, f store.Filter, limit int) ([]store.Task, error)
	GetTask(id string) (*store.Task, error)
	TasksBefore(t time.Time, limit int) ([]store.Task, error)
	TasksAfter(t time.Time, limit int) ([]store.Task, error)
	TasksAt(t time.Time) ([]store.Task, error)
}

// Service answers scan, expand, and timeline requests.
type Service struct {
	storage Storage
	now     func() time.Time
}

// New creates a retrieval Service over the given storage.
func New(storage Storage) *Service {
	return &Service{storage: storage, now: time.Now}
}

// ─── Scan ────────────────────────────────────────────────────────────────────

// ScanParams selects and ranks records. Kind narrows to one record kind;
// empty means both. The structural filters pass through to storage.
type ScanParams struct {
	Query  string
	Kind   string
	Type   string
	Status string
	Tag    string
	Since  time.Time
	Until  time.Time
	Limit  int
}

// ScanEntry is one row of the compact index: identity, a one-line summary,
// and ranking metadata. Never the full content.
type ScanEntry struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Summary   string    `json:"summary"`
	Type      string    `json:"type,omitempty"`
	Status    string    `json:"status"`
	Priority  string    `json:"priority,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// ScanResult is a ranked page of the index plus pagination facts.
// TotalCount counts the matches among the fetched candidates, which the
// candidate window (limit times candidateFactor, at most maxCandidates)
// bounds; on a corpus with more matches than the window it understates the
// true total. Truncated is set whenever entries were cut from the page.
type ScanResult struct {
	Entries    []ScanEntry `json:"entries"`
	TotalCount int         `json:"total_count"`
	Truncated  bool        `json:"truncated"`
}

// Scan runs the first stage of progressive disclosure. Results are ordered
// by relevance, then recency, then ID, so identical inputs always produce
// identical pages.
func (s *Service) Scan(p ScanParams) (*ScanResult, error) {
	if p.Limit <= 0 {
		p.Limit = DefaultScanLimit
	}
	fetch := p.Limit * candidateFactor
	if fetch > maxCandidates {
		fetch = maxCandidates
	}
	filter := store.Filter{Type: p.Type, Status: p.Status, Tag: p.Tag, Since: p.Since, Until: p.Until}

	var candidates []scoring.Candidate
	byID := map[string]ScanEntry{}

	if p.Kind == "" || p.Kind == KindInsight {
		insights, err := s.storage.SearchInsights(p.Query, filter, fetch)
		if err != nil {
			return nil, fmt.Errorf("retrieval: scan insights: %w", err)
		}
		for _, ins := range insights {
			candidates = append(candidates, insightCandidate(ins))
			byID[ins.ID] = insightEntry(ins)
		}
	}
	if p.Kind == "" || p.Kind == KindTask {
		tasks, err := s.storage.SearchTasks(p.Query, filter, fetch)
		if err != nil {
			return nil, fmt.Errorf("retrieval: scan tasks: %w", err)
		}
		for _, task := range tasks {
			candidates = append(candidates, taskCandidate(task))
			byID[task.ID] = taskEntry(task)
		}
	}

	query := scoring.ParseSearchQuery(p.Query)
	scored := scoring.ScoreItems(candidates, query, searchableFields, scoring.Options{
		FieldWeights: fieldWeights,
		RecencyBoost: true,
		Now:          s.now(),
	})

	result := &ScanResult{TotalCount: len(scored)}
	for i, item := range scored {
		if i >= p.Limit {
			result.Truncated = true
			break
		}
		entry := byID[item.ID]
		entry.Score = item.Score
		result.Entries = append(result.Entries, entry)
	}
	return result, nil
}

// searchableFields and fieldWeights define what lexical scoring sees.
// Summaries and titles outweigh body content; notes barely count.
var (
	searchableFields = []string{"summary", "content", "tags", "notes"}
	fieldWeights     = map[string]float64{
		"summary": 2.0,
		"content": 1.0,
		"tags":    1.5,
		"notes":   0.5,
	}
)

func insightCandidate(ins store.Insight) scoring.Candidate {
	return scoring.Candidate{
		ID:        ins.ID,
		Kind:      KindInsight,
		CreatedAt: ins.CreatedAt,
		Fields: map[string]string{
			"summary": ins.Summary,
			"content": ins.Content,
			"tags":    strings.Join(ins.Tags, " "),
			"notes":   ins.Notes,
			"type":    ins.Type,
			"status":  ins.Status,
		},
	}
}

func taskCandidate(task store.Task) scoring.Candidate {
	return scoring.Candidate{
		ID:        task.ID,
		Kind:      KindTask,
		CreatedAt: task.CreatedAt,
		Fields: map[string]string{
			"summary":  task.Summary,
			"content":  task.Title + " " + task.Description,
			"tags":     "",
			"notes":    "",
			"type":     "task",
			"status":   task.Status,
			"priority": task.Priority,
		},
	}
}

func insightEntry(ins store.Insight) ScanEntry {
	return ScanEntry{
		ID:        ins.ID,
		Kind:      KindInsight,
		Summary:   displayLine(ins.Summary, ins.Content),
		Type:      ins.Type,
		Status:    ins.Status,
		Tags:      ins.Tags,
		CreatedAt: ins.CreatedAt,
	}
}

func taskEntry(task store.Task) ScanEntry {
	return ScanEntry{
		ID:        task.ID,
		Kind:      KindTask,
		Summary:   displayLine(task.Summary, task.Title),
		Status:    task.Status,
		Priority:  task.Priority,
		CreatedAt: task.CreatedAt,
	}
}

// displayLine picks the stored summary when present, otherwise a truncated
// slice of the fallback text. Scan output stays one line either way.
func displayLine(summary, fallback string) string {
	if summary != "" {
		return summary
	}
	return summarize.TruncateAtWord(fallback, scanLineMax)
}

// ─── Expand ──────────────────────────────────────────────────────────────────

// ExpandParams names the records to hydrate. IncludeLinks pulls the one-hop
// link closure of each expanded insight; IncludeTimeline attaches a few
// chronological neighbors per record.
type ExpandParams struct {
	IDs             []string
	IncludeLinks    bool
	IncludeTimeline bool
}

// ExpandedInsight is a full insight plus its requested context. Linked
// records come back as compact entries; getting their full content takes
// another expand call.
type ExpandedInsight struct {
	Insight store.Insight `json:"insight"`
	Linked  []ScanEntry   `json:"linked,omitempty"`
	Before  []ScanEntry   `json:"before,omitempty"`
	After   []ScanEntry   `json:"after,omitempty"`
}

// ExpandResult carries the hydrated records. IDs that resolve to nothing
// land in NotFound; an unknown ID is an answer, not an error.
type ExpandResult struct {
	Insights []ExpandedInsight `json:"insights"`
	Tasks    []store.Task      `json:"tasks"`
	NotFound []string          `json:"not_found,omitempty"`
}

const expandNeighbors = 2

// Expand hydrates the given IDs into full records. Links are followed one
// hop only, with a visited set, so cyclic links cannot recurse; linked
// records already being expanded are not repeated.
func (s *Service) Expand(p ExpandParams) (*ExpandResult, error) {
	result := &ExpandResult{}

	visited := map[string]bool{}
	for _, id := range p.IDs {
		visited[id] = true
	}

	for _, id := range p.IDs {
		parsed := ident.Parse(id)
		if parsed == nil {
			result.NotFound = append(result.NotFound, id)
			continue
		}

		switch parsed.Prefix {
		case ident.PrefixTask:
			task, err := s.storage.GetTask(id)
			if err != nil {
				return nil, fmt.Errorf("retrieval: expand %s: %w", id, err)
			}
			if task == nil {
				result.NotFound = append(result.NotFound, id)
				continue
			}
			result.Tasks = append(result.Tasks, *task)

		default:
			ins, err := s.storage.GetInsight(id)
			if err != nil {
				return nil, fmt.Errorf("retrieval: expand %s: %w", id, err)
			}
			if ins == nil {
				result.NotFound = append(result.NotFound, id)
				continue
			}

			exp := ExpandedInsight{Insight: *ins}
			if p.IncludeLinks {
				linked, err := s.linkedInsights(ins.Links, visited)
				if err != nil {
					return nil, err
				}
				exp.Linked = linked
			}
			if p.IncludeTimeline {
				before, after, err := s.neighbors(ins.CreatedAt)
				if err != nil {
					return nil, err
				}
				exp.Before, exp.After = before, after
			}
			result.Insights = append(result.Insights, exp)
		}
	}
	return result, nil
}

func (s *Service) linkedInsights(links []string, visited map[string]bool) ([]ScanEntry, error) {
	var out []ScanEntry
	for _, linkID := range links {
		if visited[linkID] {
			continue
		}
		visited[linkID] = true
		linked, err := s.storage.GetInsight(linkID)
		if err != nil {
			return nil, fmt.Errorf("retrieval: follow link %s: %w", linkID, err)
		}
		if linked == nil {
			// Dangling link. The record itself is still valid.
			continue
		}
		out = append(out, insightEntry(*linked))
	}
	return out, nil
}

func (s *Service) neighbors(t time.Time) (before, after []ScanEntry, err error) {
	win, err := s.window(t, expandNeighbors, expandNeighbors)
	if err != nil {
		return nil, nil, err
	}
	return win.Before, win.After, nil
}

// ─── Timeline ────────────────────────────────────────────────────────────────

// TimelineParams anchors a chronological window. Exactly one of AnchorID or
// AnchorTime is used; a non-empty AnchorID wins.
type TimelineParams struct {
	AnchorID   string
	AnchorTime time.Time
	Before     int
	After      int
}

// TimelineResult is an ascending window around the anchor. Anchor holds the
// records created at exactly the anchor instant; with a time anchor that
// falls between records, it is empty.
type TimelineResult struct {
	Before []ScanEntry `json:"before"`
	Anchor []ScanEntry `json:"anchor,omitempty"`
	After  []ScanEntry `json:"after"`
}

const defaultTimelineSpan = 5

// Timeline returns the records strictly before and strictly after the
// anchor instant, each sorted ascending. A record whose timestamp equals
// the anchor exactly appears in Anchor, never in Before or After.
func (s *Service) Timeline(p TimelineParams) (*TimelineResult, error) {
	anchor := p.AnchorTime
	if p.AnchorID != "" {
		t, err := s.anchorTime(p.AnchorID)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, fmt.Errorf("retrieval: timeline anchor %s not found", p.AnchorID)
		}
		anchor = *t
	}
	if anchor.IsZero() {
		return nil, fmt.Errorf("retrieval: timeline needs an anchor id or time")
	}

	if p.Before <= 0 {
		p.Before = defaultTimelineSpan
	}
	if p.After <= 0 {
		p.After = defaultTimelineSpan
	}
	return s.window(anchor, p.Before, p.After)
}

func (s *Service) anchorTime(id string) (*time.Time, error) {
	parsed := ident.Parse(id)
	if parsed == nil {
		return nil, fmt.Errorf("retrieval: malformed anchor id %q", id)
	}
	if parsed.Prefix == ident.PrefixTask {
		task, err := s.storage.GetTask(id)
		if err != nil || task == nil {
			return nil, err
		}
		return &task.CreatedAt, nil
	}
	ins, err := s.storage.GetInsight(id)
	if err != nil || ins == nil {
		return nil, err
	}
	return &ins.CreatedAt, nil
}

// window merges insights and tasks into one chronological view around t.
func (s *Service) window(t time.Time, nBefore, nAfter int) (*TimelineResult, error) {
	insBefore, err := s.storage.InsightsBefore(t, nBefore)
	if err != nil {
		return nil, fmt.Errorf("retrieval: timeline before: %w", err)
	}
	taskBefore, err := s.storage.TasksBefore(t, nBefore)
	if err != nil {
		return nil, fmt.Errorf("retrieval: timeline before: %w", err)
	}
	insAfter, err := s.storage.InsightsAfter(t, nAfter)
	if err != nil {
		return nil, fmt.Errorf("retrieval: timeline after: %w", err)
	}
	taskAfter, err := s.storage.TasksAfter(t, nAfter)
	if err != nil {
		return nil, fmt.Errorf("retrieval: timeline after: %w", err)
	}
	insAt, err := s.storage.InsightsAt(t)
	if err != nil {
		return nil, fmt.Errorf("retrieval: timeline anchor: %w", err)
	}
	taskAt, err := s.storage.TasksAt(t)
	if err != nil {
		return nil, fmt.Errorf("retrieval: timeline anchor: %w", err)
	}

	result := &TimelineResult{
		Before: takeNewest(mergeEntries(insBefore, taskBefore), nBefore),
		Anchor: mergeEntries(insAt, taskAt),
		After:  takeOldest(mergeEntries(insAfter, taskAfter), nAfter),
	}
	return result, nil
}

func mergeEntries(insights []store.Insight, tasks []store.Task) []ScanEntry {
	entries := make([]ScanEntry, 0, len(insights)+len(tasks))
	for _, ins := range insights {
		entries = append(entries, insightEntry(ins))
	}
	for _, task := range tasks {
		entries = append(entries, taskEntry(task))
	}
	sortAscending(entries)
	return entries
}

func sortAscending(entries []ScanEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].ID < entries[j].ID
	})
}

// takeNewest keeps the n newest entries while preserving ascending order.
func takeNewest(entries []ScanEntry, n int) []ScanEntry {
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries
}

func takeOldest(entries []ScanEntry, n int) []ScanEntry {
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
