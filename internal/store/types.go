package store

import "time"

// ─── Insights ────────────────────────────────────────────────────────────────

// Insight types form a small closed set.
const (
	TypeProcess      = "process"
	TypeDomain       = "domain"
	TypeArchitecture = "architecture"
	TypeEdgeCase     = "edge-case"
	TypeTechnical    = "technical"
)

// Insight statuses.
const (
	StatusUnprocessed = "unprocessed"
	StatusDiscussed   = "discussed"
)

// InsightTypes lists the valid insight types, for tool schemas and validation.
func InsightTypes() []string {
	return []string{TypeProcess, TypeDomain, TypeArchitecture, TypeEdgeCase, TypeTechnical}
}

// Source records where an insight came from: an originating task, the
// session that captured it, or its pre-import ID.
type Source struct {
	Task       string `json:"task,omitempty"`
	Session    string `json:"session,omitempty"`
	OriginalID string `json:"original_id,omitempty"`
}

// Insight is a single persisted knowledge record. The ID is immutable once
// assigned. Summary is present only when content exceeds the short-content
// threshold, and is always derivable from content. Links may form cycles;
// consumers bound traversal to one hop.
type Insight struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	Summary     string    `json:"summary,omitempty"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Tags        []string  `json:"tags"`
	Links       []string  `json:"links"`
	Source      *Source   `json:"source,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateInsightParams holds input for capturing a new insight.
type CreateInsightParams struct {
	Content string
	Type    string
	Tags    []string
	Links   []string
	Source  *Source
	Notes   string
}

// UpdateInsightParams holds partial update fields; nil means unchanged.
// Content and ID are deliberately absent — content is immutable through
// this path and IDs are never reassigned.
type UpdateInsightParams struct {
	Status *string
	Tags   *[]string
	Links  *[]string
	Notes  *string
}

// ─── Tasks ───────────────────────────────────────────────────────────────────

// Task statuses form a closed set.
const (
	TaskTodo       = "TODO"
	TaskInProgress = "IN_PROGRESS"
	TaskDone       = "DONE"
	TaskBlocked    = "BLOCKED"
	TaskCancelled  = "CANCELLED"
)

// Task priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// TaskStatuses lists the valid task statuses.
func TaskStatuses() []string {
	return []string{TaskTodo, TaskInProgress, TaskDone, TaskBlocked, TaskCancelled}
}

// Task is a unit of work. Title may carry a bracketed type prefix such as
// "[IMPL] wire the scanner"; Summary is derived from the title.
type Task struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Description        string    `json:"description,omitempty"`
	Summary            string    `json:"summary,omitempty"`
	Status             string    `json:"status"`
	Priority           string    `json:"priority"`
	DependsOn          []string  `json:"depends_on"`
	AcceptanceCriteria []string  `json:"acceptance_criteria"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// CreateTaskParams holds input for capturing a new task.
type CreateTaskParams struct {
	Title              string
	Description        string
	Priority           string
	DependsOn          []string
	AcceptanceCriteria []string
}

// UpdateTaskParams holds partial update fields; nil means unchanged.
type UpdateTaskParams struct {
	Title              *string
	Description        *string
	Status             *string
	Priority           *string
	DependsOn          *[]string
	AcceptanceCriteria *[]string
}

// ─── Queries ─────────────────────────────────────────────────────────────────

// Filter narrows list and search queries by structural fields. Zero values
// mean "no constraint".
type Filter struct {
	Type   string
	Status string
	Tag    string
	Since  time.Time
	Until  time.Time
	Limit  int
}

// BulkResult reports the outcome of a bulk insert-or-skip load.
type BulkResult struct {
	Inserted int
	Skipped  int
	Errored  int
}

// Stats holds aggregate store statistics.
type Stats struct {
	TotalInsights int            `json:"total_insights"`
	TotalTasks    int            `json:"total_tasks"`
	ByType        map[string]int `json:"by_type"`
	ByTaskStatus  map[string]int `json:"by_task_status"`
}
