package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rcanale/lore/internal/format"
	"github.com/rcanale/lore/internal/retrieval"
	"github.com/rcanale/lore/internal/store"
	"github.com/rcanale/lore/internal/upgrade"
	"github.com/mark3labs/mcp-go/mcp"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

func newTestStore(t *testing.T) (*store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.New(store.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st, dir
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func captureInsight(t *testing.T, st *store.Store, content string, tags ...string) *store.Insight {
	t.Helper()
	ins, err := st.CreateInsight(store.CreateInsightParams{Content: content, Tags: tags})
	if err != nil {
		t.Fatalf("CreateInsight: %v", err)
	}
	return ins
}

// ─── CaptureTool ─────────────────────────────────────────────────────────────

func TestCaptureTool_Definition(t *testing.T) {
	st, _ := newTestStore(t)
	def := NewCaptureTool(st).Definition()

	if def.Name != "lore_capture" {
		t.Errorf("tool name = %q, want lore_capture", def.Name)
	}
	if _, ok := def.InputSchema.Properties["content"]; !ok {
		t.Error("missing 'content' parameter")
	}
	found := false
	for _, r := range def.InputSchema.Required {
		if r == "content" {
			found = true
		}
	}
	if !found {
		t.Error("'content' should be required")
	}
}

func TestCaptureTool_SavesInsight(t *testing.T) {
	st, _ := newTestStore(t)
	tool := NewCaptureTool(st)

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"content": "retries need jitter or the thundering herd returns",
		"type":    "technical",
		"tags":    "reliability, queue",
	}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	text := resultText(res)
	if !strings.Contains(text, "Insight captured: INS-") {
		t.Errorf("unexpected response: %q", text)
	}

	scan, err := retrieval.New(st).Scan(retrieval.ScanParams{Tag: "reliability"})
	if err != nil {
		t.Fatal(err)
	}
	if len(scan.Entries) != 1 {
		t.Errorf("captured insight not findable by tag")
	}
}

func TestCaptureTool_RequiresContent(t *testing.T) {
	st, _ := newTestStore(t)
	res, err := NewCaptureTool(st).Handle(context.Background(), makeReq(map[string]interface{}{}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !res.IsError {
		t.Error("missing content should produce a tool error")
	}
}

// ─── TaskTool / UpdateTool ───────────────────────────────────────────────────

func TestTaskTool_CreatesAndUpdates(t *testing.T) {
	st, _ := newTestStore(t)

	res, err := NewTaskTool(st).Handle(context.Background(), makeReq(map[string]interface{}{
		"title":    "[IMPL] wire the scanner",
		"priority": "high",
	}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	text := resultText(res)
	if !strings.Contains(text, "Task created: TASK-") {
		t.Fatalf("unexpected response: %q", text)
	}

	// Pull the ID back out of the response.
	fields := strings.Fields(text)
	id := fields[2]

	res, err = NewUpdateTool(st).Handle(context.Background(), makeReq(map[string]interface{}{
		"id":     id,
		"status": "IN_PROGRESS",
	}))
	if err != nil {
		t.Fatalf("update Handle: %v", err)
	}
	if !strings.Contains(resultText(res), "IN_PROGRESS") {
		t.Errorf("unexpected update response: %q", resultText(res))
	}
}

func TestUpdateTool_RejectsMalformedID(t *testing.T) {
	st, _ := newTestStore(t)
	res, err := NewUpdateTool(st).Handle(context.Background(), makeReq(map[string]interface{}{
		"id": "INS-7",
	}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !res.IsError {
		t.Error("legacy-form id should be rejected as malformed")
	}
}

// ─── ScanTool / ExpandTool ───────────────────────────────────────────────────

func TestScanThenExpandFlow(t *testing.T) {
	st, _ := newTestStore(t)
	svc := retrieval.New(st)
	ins := captureInsight(t, st, "circuit breakers wrap every queue call so one slow consumer cannot stall the rest of the pipeline", "queue")

	res, err := NewScanTool(svc).Handle(context.Background(), makeReq(map[string]interface{}{
		"query": "circuit breaker queue",
	}))
	if err != nil {
		t.Fatalf("scan Handle: %v", err)
	}
	text := resultText(res)
	if !strings.Contains(text, ins.ID) {
		t.Fatalf("scan output missing the record: %q", text)
	}
	if strings.Contains(text, "stall the rest of the pipeline") {
		t.Error("scan output leaked full content")
	}

	res, err = NewExpandTool(svc).Handle(context.Background(), makeReq(map[string]interface{}{
		"ids": ins.ID + ", INS-20200101-absent",
	}))
	if err != nil {
		t.Fatalf("expand Handle: %v", err)
	}
	text = resultText(res)
	if !strings.Contains(text, "stall the rest of the pipeline") {
		t.Errorf("expand output missing full content: %q", text)
	}
	if !strings.Contains(text, "Not found: INS-20200101-absent") {
		t.Errorf("expand should report missing IDs as data: %q", text)
	}
}

func TestScanTool_EmptyStore(t *testing.T) {
	st, _ := newTestStore(t)
	res, err := NewScanTool(retrieval.New(st)).Handle(context.Background(),
		makeReq(map[string]interface{}{"query": "anything"}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(resultText(res), "No matching records") {
		t.Errorf("unexpected response: %q", resultText(res))
	}
}

// ─── StatusTool / UpgradeTool ────────────────────────────────────────────────

func TestStatusTool_FreshInstall(t *testing.T) {
	dir := t.TempDir()
	res, err := NewStatusTool(dir).Handle(context.Background(), makeReq(nil))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	text := resultText(res)
	if !strings.Contains(text, "No upgrade needed") {
		t.Errorf("fresh install should need no upgrade: %q", text)
	}
}

func TestStatusAndUpgradeTools_LegacyStore(t *testing.T) {
	dir := t.TempDir()
	legacy := []format.JSONInsight{{
		ID: "INS-1", Content: "a legacy record", Type: "technical",
		Status: "unprocessed", Tags: []string{}, Links: []string{},
		Created: "2024-06-01T10:00:00Z",
	}}
	if err := format.WriteInsightsFile(dir, legacy); err != nil {
		t.Fatal(err)
	}

	res, err := NewStatusTool(dir).Handle(context.Background(), makeReq(nil))
	if err != nil {
		t.Fatalf("status Handle: %v", err)
	}
	if !strings.Contains(resultText(res), "Upgrade plan") {
		t.Fatalf("status should show an upgrade plan: %q", resultText(res))
	}

	st, err := store.New(store.Config{DataDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	// The database file now exists, so the tool must read the flat files
	// to know work remains.
	svc := upgrade.New(dir, "abc12345", st, nil)
	res, err = NewUpgradeTool(svc, dir).Handle(context.Background(), makeReq(nil))
	if err != nil {
		t.Fatalf("upgrade Handle: %v", err)
	}
	text := resultText(res)
	if res.IsError {
		t.Fatalf("upgrade failed: %q", text)
	}
}

func TestRollbackTool_ClosesStoreBeforeRestoring(t *testing.T) {
	dir := t.TempDir()
	legacy := []format.JSONInsight{{
		ID: "INS-1", Content: "a legacy record", Type: "technical",
		Status: "unprocessed", Tags: []string{}, Links: []string{},
		Created: "2024-06-01T10:00:00Z",
	}}
	if err := format.WriteInsightsFile(dir, legacy); err != nil {
		t.Fatal(err)
	}

	st, err := store.New(store.Config{DataDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	svc := upgrade.New(dir, "abc12345", st, nil)
	res, err := NewUpgradeTool(svc, dir).Handle(context.Background(), makeReq(nil))
	if err != nil || res.IsError {
		t.Fatalf("upgrade: err=%v result=%q", err, resultText(res))
	}
	backupPath := ""
	for _, line := range strings.Split(resultText(res), "\n") {
		if rest, ok := strings.CutPrefix(line, "Backup: "); ok {
			backupPath = rest
		}
	}
	if backupPath == "" {
		t.Fatalf("no backup path in upgrade output: %q", resultText(res))
	}

	res, err = NewRollbackTool(st, dir).Handle(context.Background(),
		makeReq(map[string]interface{}{"backup_path": backupPath}))
	if err != nil || res.IsError {
		t.Fatalf("rollback: err=%v result=%q", err, resultText(res))
	}

	// The live connection was shut down before the files were touched;
	// anything that would write through it must now fail.
	if _, err := st.CreateInsight(store.CreateInsightParams{Content: "after rollback"}); err == nil {
		t.Error("store should be closed after rollback")
	}
	if _, err := os.Stat(filepath.Join(dir, store.DBFileName)); !os.IsNotExist(err) {
		t.Error("rollback should remove the database created by the upgrade path")
	}
}

// ─── ExportTool / ImportTool ─────────────────────────────────────────────────

func TestExportThenImportRoundTrip(t *testing.T) {
	srcStore, _ := newTestStore(t)
	captureInsight(t, srcStore, "use retries for flaky network calls", "reliability")
	bundlePath := filepath.Join(t.TempDir(), "bundle.json")

	res, err := NewExportTool(srcStore, "src-repo", "aaaa1111").Handle(context.Background(),
		makeReq(map[string]interface{}{"path": bundlePath, "tag": "reliability"}))
	if err != nil {
		t.Fatalf("export Handle: %v", err)
	}
	if res.IsError {
		t.Fatalf("export failed: %q", resultText(res))
	}
	if _, err := os.Stat(bundlePath); err != nil {
		t.Fatalf("bundle not written: %v", err)
	}

	dstStore, _ := newTestStore(t)
	importTool := NewImportTool(dstStore)

	res, err = importTool.Handle(context.Background(), makeReq(map[string]interface{}{
		"path": bundlePath,
	}))
	if err != nil {
		t.Fatalf("preview Handle: %v", err)
	}
	if !strings.Contains(resultText(res), "New: 1") {
		t.Fatalf("preview should classify the record as new: %q", resultText(res))
	}

	res, err = importTool.Handle(context.Background(), makeReq(map[string]interface{}{
		"path": bundlePath,
		"mode": "apply",
	}))
	if err != nil {
		t.Fatalf("apply Handle: %v", err)
	}
	if !strings.Contains(resultText(res), "1 created") {
		t.Fatalf("apply should create the record: %q", resultText(res))
	}

	// A second apply finds only a duplicate.
	res, err = importTool.Handle(context.Background(), makeReq(map[string]interface{}{
		"path": bundlePath,
		"mode": "apply",
	}))
	if err != nil {
		t.Fatalf("second apply Handle: %v", err)
	}
	if !strings.Contains(resultText(res), "0 created, 1 duplicates skipped") {
		t.Fatalf("re-import should skip the duplicate: %q", resultText(res))
	}
}

func TestImportTool_RejectsUnknownVersion(t *testing.T) {
	st, _ := newTestStore(t)
	path := filepath.Join(t.TempDir(), "bundle.json")
	if err := os.WriteFile(path, []byte(`{"version":"9.9"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	res, err := NewImportTool(st).Handle(context.Background(), makeReq(map[string]interface{}{
		"path": path,
	}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !res.IsError {
		t.Error("unknown bundle version should be a tool error")
	}
}

// ─── StatsTool ───────────────────────────────────────────────────────────────

func TestStatsTool_Counts(t *testing.T) {
	st, _ := newTestStore(t)
	captureInsight(t, st, "one insight")

	res, err := NewStatsTool(st).Handle(context.Background(), makeReq(nil))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	text := resultText(res)
	if !strings.Contains(text, "**Insights**: 1") {
		t.Errorf("unexpected stats: %q", text)
	}
}
