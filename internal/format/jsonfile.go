package format

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rcanale/lore/internal/store"
)

// Flat-file names inside the data directory (Generations A and B; kept as
// regenerated views under Generation C).
const (
	InsightsFile = "insights.json"
	TasksFile    = "tasks.json"
)

// fileTimeLayout is how flat files serialize timestamps. Legacy files may
// carry date-only values; ParseFileTime tolerates both.
const fileTimeLayout = time.RFC3339

// JSONInsight is the flat-file wire shape of an insight. Summary is a
// pointer so its absence (Generation A) is distinguishable from emptiness.
type JSONInsight struct {
	ID      string        `json:"id"`
	Content string        `json:"content"`
	Summary *string       `json:"summary,omitempty"`
	Type    string        `json:"type"`
	Status  string        `json:"status"`
	Tags    []string      `json:"tags"`
	Links   []string      `json:"links"`
	Source  *store.Source `json:"source,omitempty"`
	Notes   string        `json:"notes,omitempty"`
	Created string        `json:"created"`
	Updated string        `json:"updated,omitempty"`
}

// JSONTask is the flat-file wire shape of a task.
type JSONTask struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description,omitempty"`
	Summary            *string  `json:"summary,omitempty"`
	Status             string   `json:"status"`
	Priority           string   `json:"priority"`
	DependsOn          []string `json:"depends_on"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	Created            string   `json:"created"`
	Updated            string   `json:"updated,omitempty"`
}

// InsightToRecord converts a flat-file insight into a store record.
func InsightToRecord(j JSONInsight) store.Insight {
	ins := store.Insight{
		ID:        j.ID,
		Content:   j.Content,
		Type:      j.Type,
		Status:    j.Status,
		Tags:      j.Tags,
		Links:     j.Links,
		Source:    j.Source,
		Notes:     j.Notes,
		CreatedAt: ParseFileTime(j.Created),
	}
	if j.Summary != nil {
		ins.Summary = *j.Summary
	}
	if j.Updated != "" {
		ins.UpdatedAt = ParseFileTime(j.Updated)
	} else {
		ins.UpdatedAt = ins.CreatedAt
	}
	if ins.Tags == nil {
		ins.Tags = []string{}
	}
	if ins.Links == nil {
		ins.Links = []string{}
	}
	return ins
}

// RecordToJSONInsight is the inverse of InsightToRecord: it reproduces the
// record's semantic content in the flat-file shape.
func RecordToJSONInsight(ins store.Insight) JSONInsight {
	j := JSONInsight{
		ID:      ins.ID,
		Content: ins.Content,
		Type:    ins.Type,
		Status:  ins.Status,
		Tags:    ins.Tags,
		Links:   ins.Links,
		Source:  ins.Source,
		Notes:   ins.Notes,
		Created: ins.CreatedAt.UTC().Format(fileTimeLayout),
	}
	if ins.Summary != "" {
		s := ins.Summary
		j.Summary = &s
	}
	if !ins.UpdatedAt.IsZero() && !ins.UpdatedAt.Equal(ins.CreatedAt) {
		j.Updated = ins.UpdatedAt.UTC().Format(fileTimeLayout)
	}
	if j.Tags == nil {
		j.Tags = []string{}
	}
	if j.Links == nil {
		j.Links = []string{}
	}
	return j
}

// TaskToRecord converts a flat-file task into a store record.
func TaskToRecord(j JSONTask) store.Task {
	t := store.Task{
		ID:                 j.ID,
		Title:              j.Title,
		Description:        j.Description,
		Status:             j.Status,
		Priority:           j.Priority,
		DependsOn:          j.DependsOn,
		AcceptanceCriteria: j.AcceptanceCriteria,
		CreatedAt:          ParseFileTime(j.Created),
	}
	if j.Summary != nil {
		t.Summary = *j.Summary
	}
	if j.Updated != "" {
		t.UpdatedAt = ParseFileTime(j.Updated)
	} else {
		t.UpdatedAt = t.CreatedAt
	}
	if t.DependsOn == nil {
		t.DependsOn = []string{}
	}
	if t.AcceptanceCriteria == nil {
		t.AcceptanceCriteria = []string{}
	}
	return t
}

// RecordToJSONTask is the inverse of TaskToRecord.
func RecordToJSONTask(t store.Task) JSONTask {
	j := JSONTask{
		ID:                 t.ID,
		Title:              t.Title,
		Description:        t.Description,
		Status:             t.Status,
		Priority:           t.Priority,
		DependsOn:          t.DependsOn,
		AcceptanceCriteria: t.AcceptanceCriteria,
		Created:            t.CreatedAt.UTC().Format(fileTimeLayout),
	}
	if t.Summary != "" {
		s := t.Summary
		j.Summary = &s
	}
	if !t.UpdatedAt.IsZero() && !t.UpdatedAt.Equal(t.CreatedAt) {
		j.Updated = t.UpdatedAt.UTC().Format(fileTimeLayout)
	}
	if j.DependsOn == nil {
		j.DependsOn = []string{}
	}
	if j.AcceptanceCriteria == nil {
		j.AcceptanceCriteria = []string{}
	}
	return j
}

// ParseFileTime parses a flat-file timestamp, tolerating both RFC3339 and
// legacy date-only values. Unparseable input yields the zero time rather
// than an error — a bad timestamp on one record must not sink a migration.
func ParseFileTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// ─── File I/O (the boundary Detect itself stays out of) ─────────────────────

// ReadInsightsFile loads the insights flat file. A missing file is an empty
// list, not an error.
func ReadInsightsFile(dataDir string) ([]JSONInsight, error) {
	path := filepath.Join(dataDir, InsightsFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("format: read %s: %w", InsightsFile, err)
	}
	var out []JSONInsight
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("format: parse %s: %w", InsightsFile, err)
	}
	return out, nil
}

// WriteInsightsFile writes the insights flat file atomically (temp + rename).
func WriteInsightsFile(dataDir string, insights []JSONInsight) error {
	return writeJSONFile(filepath.Join(dataDir, InsightsFile), insights)
}

// ReadTasksFile loads the tasks flat file; missing means empty.
func ReadTasksFile(dataDir string) ([]JSONTask, error) {
	path := filepath.Join(dataDir, TasksFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("format: read %s: %w", TasksFile, err)
	}
	var out []JSONTask
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("format: parse %s: %w", TasksFile, err)
	}
	return out, nil
}

// WriteTasksFile writes the tasks flat file atomically.
func WriteTasksFile(dataDir string, tasks []JSONTask) error {
	return writeJSONFile(filepath.Join(dataDir, TasksFile), tasks)
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("format: encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("format: write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("format: rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ReadArtifactState inspects a data directory and summarizes the evidence
// for Detect. It reads, it does not write.
func ReadArtifactState(dataDir, dbFileName string) (ArtifactState, error) {
	var state ArtifactState

	if _, err := os.Stat(filepath.Join(dataDir, dbFileName)); err == nil {
		state.HasDatabase = true
	}

	insights, err := ReadInsightsFile(dataDir)
	if err != nil {
		return state, err
	}
	tasks, err := ReadTasksFile(dataDir)
	if err != nil {
		return state, err
	}

	state.HasFlatFiles = insights != nil || tasks != nil
	state.InsightCount = len(insights)
	state.TaskCount = len(tasks)

	for _, ins := range insights {
		state.IDs = append(state.IDs, ins.ID)
		if ins.Summary != nil {
			state.HasSummaryField = true
		}
	}
	for _, t := range tasks {
		state.IDs = append(state.IDs, t.ID)
		if t.Summary != nil {
			state.HasSummaryField = true
		}
	}
	return state, nil
}
