package retrieval

import (
	"fmt"
	"testing"
	"time"

	"github.com/rcanale/lore/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.New(store.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st), st
}

func insightID(n int) string {
	return fmt.Sprintf("INS-20250501-aab%03d", n)
}

func taskID(n int) string {
	return fmt.Sprintf("TASK-20250501-aab%03d", n)
}

func putInsight(t *testing.T, st *store.Store, id, content string, created time.Time, mutate ...func(*store.Insight)) {
	t.Helper()
	ins := store.Insight{
		ID:        id,
		Content:   content,
		Type:      store.TypeTechnical,
		Status:    store.StatusUnprocessed,
		CreatedAt: created,
		UpdatedAt: created,
	}
	for _, m := range mutate {
		m(&ins)
	}
	if err := st.PutInsight(ins); err != nil {
		t.Fatalf("PutInsight %s: %v", id, err)
	}
}

func putTask(t *testing.T, st *store.Store, id, title string, created time.Time) {
	t.Helper()
	task := store.Task{
		ID:        id,
		Title:     title,
		Status:    store.TaskTodo,
		Priority:  store.PriorityMedium,
		CreatedAt: created,
		UpdatedAt: created,
	}
	if err := st.PutTask(task); err != nil {
		t.Fatalf("PutTask %s: %v", id, err)
	}
}

const longContent = "The importer resolves duplicate records by content hash before it ever assigns a target identifier, which keeps repeated imports of the same bundle from multiplying records."

func TestScanReturnsSummariesNotContent(t *testing.T) {
	svc, st := newTestService(t)
	putInsight(t, st, insightID(1), longContent, time.Now().Add(-time.Hour),
		func(ins *store.Insight) { ins.Summary = "Importer dedupes by content hash." })

	res, err := svc.Scan(ScanParams{Query: "importer duplicate"})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(res.Entries))
	}
	e := res.Entries[0]
	if e.Summary != "Importer dedupes by content hash." {
		t.Errorf("Summary = %q", e.Summary)
	}
	if e.Summary == longContent {
		t.Error("scan must never return full content")
	}
	if e.Score <= 0 {
		t.Errorf("matching entry should have a positive score, got %v", e.Score)
	}
}

func TestScanNeverLeaksContentWithoutStoredSummary(t *testing.T) {
	svc, st := newTestService(t)
	// Under the summary threshold (no summary stored) but over the index
	// line cap, so the line must come from truncation.
	content := "the importer resolves duplicates by content hash before assigning any identifier to a record"
	putInsight(t, st, insightID(1), content, time.Now().Add(-time.Hour))

	res, err := svc.Scan(ScanParams{Query: "importer duplicates"})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(res.Entries))
	}
	line := res.Entries[0].Summary
	if line == content {
		t.Fatalf("scan line reproduced the full content: %q", line)
	}
	if len(line) >= len(content) {
		t.Errorf("scan line (len %d) is not shorter than content (len %d)", len(line), len(content))
	}
}

func TestScanDefaultLimitAndTruncation(t *testing.T) {
	svc, st := newTestService(t)
	base := time.Now().Add(-48 * time.Hour)
	for i := 0; i < 25; i++ {
		putInsight(t, st, insightID(i), fmt.Sprintf("note number %d", i), base.Add(time.Duration(i)*time.Minute))
	}

	res, err := svc.Scan(ScanParams{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Entries) != DefaultScanLimit {
		t.Errorf("entries = %d, want %d", len(res.Entries), DefaultScanLimit)
	}
	if res.TotalCount != 25 {
		t.Errorf("TotalCount = %d, want 25", res.TotalCount)
	}
	if !res.Truncated {
		t.Error("Truncated should be set when entries were cut")
	}

	// Empty query ranks everything equal, so the page is newest first.
	for i := 1; i < len(res.Entries); i++ {
		if res.Entries[i].CreatedAt.After(res.Entries[i-1].CreatedAt) {
			t.Fatalf("entries not newest-first at %d", i)
		}
	}
}

func TestScanKindFilter(t *testing.T) {
	svc, st := newTestService(t)
	now := time.Now().Add(-time.Hour)
	putInsight(t, st, insightID(1), "retry with backoff on the queue", now)
	putTask(t, st, taskID(1), "Add backoff to the queue worker", now)

	res, err := svc.Scan(ScanParams{Query: "backoff", Kind: KindTask})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Entries) != 1 || res.Entries[0].Kind != KindTask {
		t.Fatalf("entries = %+v, want one task", res.Entries)
	}
}

func TestScanDateRangeFilter(t *testing.T) {
	svc, st := newTestService(t)
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		putInsight(t, st, insightID(i), fmt.Sprintf("deploy note %d", i), base.Add(time.Duration(i)*24*time.Hour))
	}

	res, err := svc.Scan(ScanParams{
		Query: "deploy",
		Since: base.Add(12 * time.Hour),
		Until: base.Add(36 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Entries) != 1 || res.Entries[0].ID != insightID(1) {
		t.Fatalf("entries = %+v, want just the middle record", res.Entries)
	}
}

func TestScanIsDeterministic(t *testing.T) {
	svc, st := newTestService(t)
	now := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		putInsight(t, st, insightID(i), "parser handles nested quotes", now)
	}

	first, err := svc.Scan(ScanParams{Query: "parser quotes"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Scan(ScanParams{Query: "parser quotes"})
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Entries) != len(second.Entries) {
		t.Fatalf("lengths differ: %d vs %d", len(first.Entries), len(second.Entries))
	}
	for i := range first.Entries {
		if first.Entries[i].ID != second.Entries[i].ID {
			t.Fatalf("order differs at %d: %s vs %s", i, first.Entries[i].ID, second.Entries[i].ID)
		}
	}
}

func TestExpandReportsNotFoundAsData(t *testing.T) {
	svc, st := newTestService(t)
	putInsight(t, st, insightID(1), "known record", time.Now().Add(-time.Hour))

	res, err := svc.Expand(ExpandParams{IDs: []string{insightID(1), insightID(2), "not-an-id"}})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(res.Insights) != 1 {
		t.Fatalf("insights = %d, want 1", len(res.Insights))
	}
	if len(res.NotFound) != 2 {
		t.Fatalf("NotFound = %v, want two entries", res.NotFound)
	}
}

func TestExpandFollowsLinksOneHop(t *testing.T) {
	svc, st := newTestService(t)
	now := time.Now().Add(-time.Hour)
	// a -> b -> c, plus a cycle b -> a. Expanding a must pull b only.
	putInsight(t, st, insightID(3), "record c", now)
	putInsight(t, st, insightID(2), "record b", now,
		func(ins *store.Insight) { ins.Links = []string{insightID(3), insightID(1)} })
	putInsight(t, st, insightID(1), "record a", now,
		func(ins *store.Insight) { ins.Links = []string{insightID(2)} })

	res, err := svc.Expand(ExpandParams{IDs: []string{insightID(1)}, IncludeLinks: true})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(res.Insights) != 1 {
		t.Fatalf("insights = %d, want 1", len(res.Insights))
	}
	linked := res.Insights[0].Linked
	if len(linked) != 1 || linked[0].ID != insightID(2) {
		t.Fatalf("linked = %+v, want just b", linked)
	}
}

func TestExpandSkipsDanglingLinks(t *testing.T) {
	svc, st := newTestService(t)
	putInsight(t, st, insightID(1), "record with a dangling link", time.Now().Add(-time.Hour),
		func(ins *store.Insight) { ins.Links = []string{insightID(9)} })

	res, err := svc.Expand(ExpandParams{IDs: []string{insightID(1)}, IncludeLinks: true})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(res.Insights[0].Linked) != 0 {
		t.Errorf("dangling link should be skipped, got %+v", res.Insights[0].Linked)
	}
	if len(res.NotFound) != 0 {
		t.Errorf("dangling link must not mark the record as missing: %v", res.NotFound)
	}
}

func TestExpandDispatchesTasksByPrefix(t *testing.T) {
	svc, st := newTestService(t)
	putTask(t, st, taskID(1), "Ship the importer", time.Now().Add(-time.Hour))

	res, err := svc.Expand(ExpandParams{IDs: []string{taskID(1)}})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(res.Tasks) != 1 || res.Tasks[0].ID != taskID(1) {
		t.Fatalf("tasks = %+v", res.Tasks)
	}
}

// seedTimeline writes five records a minute apart and returns their times.
func seedTimeline(t *testing.T, st *store.Store) []time.Time {
	t.Helper()
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	times := make([]time.Time, 5)
	for i := 0; i < 5; i++ {
		times[i] = base.Add(time.Duration(i) * time.Minute)
		putInsight(t, st, insightID(i), fmt.Sprintf("event %d", i), times[i])
	}
	return times
}

func TestTimelineAroundAnchorID(t *testing.T) {
	svc, st := newTestService(t)
	seedTimeline(t, st)

	res, err := svc.Timeline(TimelineParams{AnchorID: insightID(2), Before: 2, After: 2})
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}

	if len(res.Anchor) != 1 || res.Anchor[0].ID != insightID(2) {
		t.Fatalf("Anchor = %+v, want the anchor record", res.Anchor)
	}
	wantBefore := []string{insightID(0), insightID(1)}
	wantAfter := []string{insightID(3), insightID(4)}
	for i, want := range wantBefore {
		if res.Before[i].ID != want {
			t.Errorf("Before[%d] = %s, want %s", i, res.Before[i].ID, want)
		}
	}
	for i, want := range wantAfter {
		if res.After[i].ID != want {
			t.Errorf("After[%d] = %s, want %s", i, res.After[i].ID, want)
		}
	}
}

func TestTimelineWindowIsStrict(t *testing.T) {
	svc, st := newTestService(t)
	times := seedTimeline(t, st)

	// A time anchor exactly on record 2: the record sits in Anchor, never
	// in Before or After.
	res, err := svc.Timeline(TimelineParams{AnchorTime: times[2], Before: 5, After: 5})
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	for _, e := range append(res.Before, res.After...) {
		if e.ID == insightID(2) {
			t.Fatal("anchor record leaked into before/after")
		}
	}
	if len(res.Before) != 2 || len(res.After) != 2 {
		t.Errorf("window = %d before, %d after; want 2 and 2", len(res.Before), len(res.After))
	}
}

func TestTimelineBetweenRecordsHasEmptyAnchor(t *testing.T) {
	svc, st := newTestService(t)
	times := seedTimeline(t, st)

	res, err := svc.Timeline(TimelineParams{AnchorTime: times[2].Add(30 * time.Second)})
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if len(res.Anchor) != 0 {
		t.Errorf("Anchor = %+v, want empty for a between-records time", res.Anchor)
	}
	if len(res.Before) != 3 || len(res.After) != 2 {
		t.Errorf("window = %d before, %d after; want 3 and 2", len(res.Before), len(res.After))
	}
}

func TestTimelineMergesKinds(t *testing.T) {
	svc, st := newTestService(t)
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	putInsight(t, st, insightID(1), "first", base)
	putTask(t, st, taskID(1), "Second thing", base.Add(time.Minute))
	putInsight(t, st, insightID(2), "third", base.Add(2*time.Minute))

	res, err := svc.Timeline(TimelineParams{AnchorID: taskID(1)})
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if len(res.Anchor) != 1 || res.Anchor[0].Kind != KindTask {
		t.Fatalf("Anchor = %+v, want the task", res.Anchor)
	}
	if len(res.Before) != 1 || res.Before[0].Kind != KindInsight {
		t.Errorf("Before = %+v", res.Before)
	}
	if len(res.After) != 1 || res.After[0].Kind != KindInsight {
		t.Errorf("After = %+v", res.After)
	}
}

func TestTimelineMissingAnchorErrors(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Timeline(TimelineParams{AnchorID: insightID(9)}); err == nil {
		t.Fatal("expected error for a missing anchor record")
	}
	if _, err := svc.Timeline(TimelineParams{}); err == nil {
		t.Fatal("expected error when no anchor is given")
	}
}
