// Package store implements the persistent insight/task store for lore.
//
// It uses SQLite with FTS5 full-text search as the Generation C record
// store: point lookup by ID, filtered range queries, a ranked full-text
// primitive over the designated text columns, transactional writes, and
// bulk insert-or-skip loading. Records are never hard-deleted here.
package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rcanale/lore/internal/ident"
	"github.com/rcanale/lore/internal/summarize"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// DBFileName is the SQLite database file inside the data directory.
const DBFileName = "lore.db"

// timeLayout is fixed-width UTC so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000Z"

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds store configuration.
type Config struct {
	DataDir          string
	MaxContentLength int
	MaxSearchResults int
	// Summarize derives insight summaries at capture time. Pluggable so a
	// model-backed summarizer can replace the heuristic without touching
	// storage logic.
	Summarize summarize.Func
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:          filepath.Join(home, ".lore"),
		MaxContentLength: 4000,
		MaxSearchResults: 20,
		Summarize:        summarize.Summarize,
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the persistent record store backed by SQLite + FTS5.
type Store struct {
	db  *sql.DB
	cfg Config
}

// New creates a Store with the given configuration. It creates the data
// directory if needed, opens SQLite with WAL mode, and runs migrations.
func New(cfg Config) (*Store, error) {
	if cfg.Summarize == nil {
		cfg.Summarize = summarize.Summarize
	}
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = 4000
	}
	if cfg.MaxSearchResults <= 0 {
		cfg.MaxSearchResults = 20
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, DBFileName)
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the location of the database file.
func (s *Store) Path() string {
	return filepath.Join(s.cfg.DataDir, DBFileName)
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS insights (
			id           TEXT PRIMARY KEY,
			content      TEXT NOT NULL,
			summary      TEXT,
			type         TEXT NOT NULL,
			status       TEXT NOT NULL DEFAULT 'unprocessed',
			tags         TEXT NOT NULL DEFAULT '[]',
			links        TEXT NOT NULL DEFAULT '[]',
			source       TEXT,
			notes        TEXT,
			content_hash TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_insights_type    ON insights(type);
		CREATE INDEX IF NOT EXISTS idx_insights_status  ON insights(status);
		CREATE INDEX IF NOT EXISTS idx_insights_created ON insights(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_insights_hash    ON insights(content_hash);

		CREATE VIRTUAL TABLE IF NOT EXISTS insights_fts USING fts5(
			content,
			summary,
			tags,
			notes,
			type,
			content='insights'
		);

		CREATE TABLE IF NOT EXISTS tasks (
			id                  TEXT PRIMARY KEY,
			title               TEXT NOT NULL,
			description         TEXT,
			summary             TEXT,
			status              TEXT NOT NULL DEFAULT 'TODO',
			priority            TEXT NOT NULL DEFAULT 'medium',
			depends_on          TEXT NOT NULL DEFAULT '[]',
			acceptance_criteria TEXT NOT NULL DEFAULT '[]',
			created_at          TEXT NOT NULL,
			updated_at          TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tasks_status  ON tasks(status);
		CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at DESC);

		CREATE VIRTUAL TABLE IF NOT EXISTS tasks_fts USING fts5(
			title,
			description,
			status,
			content='tasks'
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// FTS sync triggers (idempotent: created only when missing).
	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='trigger' AND name='insights_fts_insert'",
	).Scan(&name)
	if err == sql.ErrNoRows {
		triggers := `
			CREATE TRIGGER insights_fts_insert AFTER INSERT ON insights BEGIN
				INSERT INTO insights_fts(rowid, content, summary, tags, notes, type)
				VALUES (new.rowid, new.content, new.summary, new.tags, new.notes, new.type);
			END;

			CREATE TRIGGER insights_fts_delete AFTER DELETE ON insights BEGIN
				INSERT INTO insights_fts(insights_fts, rowid, content, summary, tags, notes, type)
				VALUES ('delete', old.rowid, old.content, old.summary, old.tags, old.notes, old.type);
			END;

			CREATE TRIGGER insights_fts_update AFTER UPDATE ON insights BEGIN
				INSERT INTO insights_fts(insights_fts, rowid, content, summary, tags, notes, type)
				VALUES ('delete', old.rowid, old.content, old.summary, old.tags, old.notes, old.type);
				INSERT INTO insights_fts(rowid, content, summary, tags, notes, type)
				VALUES (new.rowid, new.content, new.summary, new.tags, new.notes, new.type);
			END;
		`
		if _, err := s.db.Exec(triggers); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	var taskTrigger string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='trigger' AND name='tasks_fts_insert'",
	).Scan(&taskTrigger)
	if err == sql.ErrNoRows {
		triggers := `
			CREATE TRIGGER tasks_fts_insert AFTER INSERT ON tasks BEGIN
				INSERT INTO tasks_fts(rowid, title, description, status)
				VALUES (new.rowid, new.title, new.description, new.status);
			END;

			CREATE TRIGGER tasks_fts_delete AFTER DELETE ON tasks BEGIN
				INSERT INTO tasks_fts(tasks_fts, rowid, title, description, status)
				VALUES ('delete', old.rowid, old.title, old.description, old.status);
			END;

			CREATE TRIGGER tasks_fts_update AFTER UPDATE ON tasks BEGIN
				INSERT INTO tasks_fts(tasks_fts, rowid, title, description, status)
				VALUES ('delete', old.rowid, old.title, old.description, old.status);
				INSERT INTO tasks_fts(rowid, title, description, status)
				VALUES (new.rowid, new.title, new.description, new.status);
			END;
		`
		if _, err := s.db.Exec(triggers); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return nil
}

// ─── Insights ────────────────────────────────────────────────────────────────

// CreateInsight captures a new insight. The content must be non-empty; an
// empty type defaults to "technical", an unknown one is rejected. The ID is
// generated fresh and re-rolled on the (negligible but possible) collision
// against existing storage.
func (s *Store) CreateInsight(p CreateInsightParams) (*Insight, error) {
	content := strings.TrimSpace(p.Content)
	if content == "" {
		return nil, fmt.Errorf("store: insight content must not be empty")
	}
	if len(content) > s.cfg.MaxContentLength {
		content = summarize.TruncateAtWord(content, s.cfg.MaxContentLength)
	}

	typ, err := normalizeInsightType(p.Type)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	id, err := s.freshID(ident.PrefixInsight, now)
	if err != nil {
		return nil, err
	}

	ins := Insight{
		ID:          id,
		Content:     content,
		Summary:     s.cfg.Summarize(content),
		Type:        typ,
		Status:      StatusUnprocessed,
		Tags:        dedupeStrings(p.Tags),
		Links:       dedupeStrings(p.Links),
		Source:      p.Source,
		Notes:       p.Notes,
		ContentHash: ident.ContentHash(content),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.PutInsight(ins); err != nil {
		return nil, err
	}
	return &ins, nil
}

// PutInsight inserts an insight with an explicit ID (import and upgrade
// paths). It fails on a duplicate ID; bulk loads that want skip-on-conflict
// use BulkImportInsights instead.
func (s *Store) PutInsight(ins Insight) error {
	if ins.ContentHash == "" {
		ins.ContentHash = ident.ContentHash(ins.Content)
	}
	source, err := encodeSource(ins.Source)
	if err != nil {
		return fmt.Errorf("store: encode source: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO insights (id, content, summary, type, status, tags, links, source, notes, content_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ins.ID, ins.Content, nullable(ins.Summary), ins.Type, ins.Status,
		encodeList(ins.Tags), encodeList(ins.Links), source, nullable(ins.Notes),
		ins.ContentHash, formatTime(ins.CreatedAt), formatTime(ins.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("store: insert insight %s: %w", ins.ID, err)
	}
	return nil
}

// GetInsight retrieves an insight by ID. A missing record returns
// (nil, nil): absence is data, not an error.
func (s *Store) GetInsight(id string) (*Insight, error) {
	row := s.db.QueryRow(
		`SELECT id, content, summary, type, status, tags, links, source, notes, content_hash, created_at, updated_at
		 FROM insights WHERE id = ?`, id,
	)
	ins, err := scanInsight(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get insight %s: %w", id, err)
	}
	return ins, nil
}

// UpdateInsight applies partial updates to mutable fields. Content and ID
// never change through this path.
func (s *Store) UpdateInsight(id string, p UpdateInsightParams) (*Insight, error) {
	ins, err := s.GetInsight(id)
	if err != nil {
		return nil, err
	}
	if ins == nil {
		return nil, fmt.Errorf("store: insight %s not found", id)
	}

	if p.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*p.Status))
		if status != StatusUnprocessed && status != StatusDiscussed {
			return nil, fmt.Errorf("store: invalid insight status %q", *p.Status)
		}
		ins.Status = status
	}
	if p.Tags != nil {
		ins.Tags = dedupeStrings(*p.Tags)
	}
	if p.Links != nil {
		ins.Links = dedupeStrings(*p.Links)
	}
	if p.Notes != nil {
		ins.Notes = *p.Notes
	}
	ins.UpdatedAt = time.Now().UTC()

	source, err := encodeSource(ins.Source)
	if err != nil {
		return nil, fmt.Errorf("store: encode source: %w", err)
	}
	_, err = s.db.Exec(
		`UPDATE insights SET status = ?, tags = ?, links = ?, source = ?, notes = ?, updated_at = ? WHERE id = ?`,
		ins.Status, encodeList(ins.Tags), encodeList(ins.Links), source,
		nullable(ins.Notes), formatTime(ins.UpdatedAt), id,
	)
	if err != nil {
		return nil, fmt.Errorf("store: update insight %s: %w", id, err)
	}
	return ins, nil
}

// ListInsights returns insights matching the structural filter, newest first.
func (s *Store) ListInsights(f Filter) ([]Insight, error) {
	query := `SELECT id, content, summary, type, status, tags, links, source, notes, content_hash, created_at, updated_at
		FROM insights WHERE 1=1`
	query, args := applyInsightFilter(query, nil, f, "")
	query += " ORDER BY created_at DESC, id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return s.queryInsights(query, args...)
}

// SearchInsights fetches FTS candidates for a free-text query, constrained
// by the structural filter. An empty query falls back to the most recent
// insights rather than erroring.
func (s *Store) SearchInsights(query string, f Filter, limit int) ([]Insight, error) {
	if limit <= 0 {
		limit = s.cfg.MaxSearchResults
	}

	fts := sanitizeFTS(query)
	if fts == "" {
		f.Limit = limit
		return s.ListInsights(f)
	}

	sqlStr := `
		SELECT i.id, i.content, i.summary, i.type, i.status, i.tags, i.links, i.source, i.notes, i.content_hash, i.created_at, i.updated_at
		FROM insights_fts fts
		JOIN insights i ON i.rowid = fts.rowid
		WHERE insights_fts MATCH ?`
	args := []any{fts}
	sqlStr, args = applyInsightFilter(sqlStr, args, f, "i.")
	sqlStr += " ORDER BY fts.rank LIMIT ?"
	args = append(args, limit)

	out, err := s.queryInsights(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("store: search insights: %w", err)
	}
	return out, nil
}

// InsightsBefore returns up to limit insights created strictly before t,
// newest first.
func (s *Store) InsightsBefore(t time.Time, limit int) ([]Insight, error) {
	return s.queryInsights(
		`SELECT id, content, summary, type, status, tags, links, source, notes, content_hash, created_at, updated_at
		 FROM insights WHERE created_at < ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		formatTime(t), limit,
	)
}

// InsightsAfter returns up to limit insights created strictly after t,
// oldest first.
func (s *Store) InsightsAfter(t time.Time, limit int) ([]Insight, error) {
	return s.queryInsights(
		`SELECT id, content, summary, type, status, tags, links, source, notes, content_hash, created_at, updated_at
		 FROM insights WHERE created_at > ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		formatTime(t), limit,
	)
}

// InsightsAt returns the insights whose creation time equals t exactly.
func (s *Store) InsightsAt(t time.Time) ([]Insight, error) {
	return s.queryInsights(
		`SELECT id, content, summary, type, status, tags, links, source, notes, content_hash, created_at, updated_at
		 FROM insights WHERE created_at = ? ORDER BY id ASC`,
		formatTime(t),
	)
}

// AllInsights returns every insight, oldest first. Used by export.
func (s *Store) AllInsights() ([]Insight, error) {
	return s.queryInsights(
		`SELECT id, content, summary, type, status, tags, links, source, notes, content_hash, created_at, updated_at
		 FROM insights ORDER BY created_at ASC, id ASC`,
	)
}

// BulkImportInsights loads insights with insert-or-skip semantics in one
// transaction. Records whose ID already exists are skipped, not errors;
// individually malformed records are counted as errored and do not abort
// their siblings.
func (s *Store) BulkImportInsights(insights []Insight) (BulkResult, error) {
	var result BulkResult

	tx, err := s.db.Begin()
	if err != nil {
		return result, fmt.Errorf("store: bulk import: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, ins := range insights {
		if ins.ID == "" || strings.TrimSpace(ins.Content) == "" {
			result.Errored++
			continue
		}
		hash := ins.ContentHash
		if hash == "" {
			hash = ident.ContentHash(ins.Content)
		}
		source, err := encodeSource(ins.Source)
		if err != nil {
			result.Errored++
			continue
		}
		res, err := tx.Exec(
			`INSERT OR IGNORE INTO insights (id, content, summary, type, status, tags, links, source, notes, content_hash, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ins.ID, ins.Content, nullable(ins.Summary), ins.Type, ins.Status,
			encodeList(ins.Tags), encodeList(ins.Links), source, nullable(ins.Notes),
			hash, formatTime(ins.CreatedAt), formatTime(ins.UpdatedAt),
		)
		if err != nil {
			result.Errored++
			continue
		}
		if n, _ := res.RowsAffected(); n == 0 {
			result.Skipped++
		} else {
			result.Inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("store: bulk import: commit: %w", err)
	}
	return result, nil
}

// ─── Tasks ───────────────────────────────────────────────────────────────────

// CreateTask captures a new task in TODO status.
func (s *Store) CreateTask(p CreateTaskParams) (*Task, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return nil, fmt.Errorf("store: task title must not be empty")
	}

	priority, err := normalizePriority(p.Priority)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	id, err := s.freshID(ident.PrefixTask, now)
	if err != nil {
		return nil, err
	}

	task := Task{
		ID:                 id,
		Title:              title,
		Description:        p.Description,
		Summary:            summarize.TruncateAtWord(stripTitlePrefix(title), summarize.DefaultSummaryLength),
		Status:             TaskTodo,
		Priority:           priority,
		DependsOn:          dedupeStrings(p.DependsOn),
		AcceptanceCriteria: p.AcceptanceCriteria,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.PutTask(task); err != nil {
		return nil, err
	}
	return &task, nil
}

// PutTask inserts a task with an explicit ID.
func (s *Store) PutTask(t Task) error {
	_, err := s.db.Exec(
		`INSERT INTO tasks (id, title, description, summary, status, priority, depends_on, acceptance_criteria, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, nullable(t.Description), nullable(t.Summary), t.Status, t.Priority,
		encodeList(t.DependsOn), encodeList(t.AcceptanceCriteria),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("store: insert task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask retrieves a task by ID; (nil, nil) when absent.
func (s *Store) GetTask(id string) (*Task, error) {
	row := s.db.QueryRow(
		`SELECT id, title, description, summary, status, priority, depends_on, acceptance_criteria, created_at, updated_at
		 FROM tasks WHERE id = ?`, id,
	)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get task %s: %w", id, err)
	}
	return t, nil
}

// UpdateTask applies partial updates to a task.
func (s *Store) UpdateTask(id string, p UpdateTaskParams) (*Task, error) {
	t, err := s.GetTask(id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("store: task %s not found", id)
	}

	if p.Title != nil && strings.TrimSpace(*p.Title) != "" {
		t.Title = strings.TrimSpace(*p.Title)
		t.Summary = summarize.TruncateAtWord(stripTitlePrefix(t.Title), summarize.DefaultSummaryLength)
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		status := strings.ToUpper(strings.TrimSpace(*p.Status))
		if !validTaskStatus(status) {
			return nil, fmt.Errorf("store: invalid task status %q", *p.Status)
		}
		t.Status = status
	}
	if p.Priority != nil {
		priority, err := normalizePriority(*p.Priority)
		if err != nil {
			return nil, err
		}
		t.Priority = priority
	}
	if p.DependsOn != nil {
		t.DependsOn = dedupeStrings(*p.DependsOn)
	}
	if p.AcceptanceCriteria != nil {
		t.AcceptanceCriteria = *p.AcceptanceCriteria
	}
	t.UpdatedAt = time.Now().UTC()

	_, err = s.db.Exec(
		`UPDATE tasks SET title = ?, description = ?, summary = ?, status = ?, priority = ?, depends_on = ?, acceptance_criteria = ?, updated_at = ?
		 WHERE id = ?`,
		t.Title, nullable(t.Description), nullable(t.Summary), t.Status, t.Priority,
		encodeList(t.DependsOn), encodeList(t.AcceptanceCriteria), formatTime(t.UpdatedAt), id,
	)
	if err != nil {
		return nil, fmt.Errorf("store: update task %s: %w", id, err)
	}
	return t, nil
}

// ListTasks returns tasks matching the filter (Status only), newest first.
func (s *Store) ListTasks(f Filter) ([]Task, error) {
	query := `SELECT id, title, description, summary, status, priority, depends_on, acceptance_criteria, created_at, updated_at
		FROM tasks WHERE 1=1`
	var args []any
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, strings.ToUpper(f.Status))
	}
	if !f.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, formatTime(f.Since))
	}
	if !f.Until.IsZero() {
		query += " AND created_at <= ?"
		args = append(args, formatTime(f.Until))
	}
	query += " ORDER BY created_at DESC, id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return s.queryTasks(query, args...)
}

// SearchTasks fetches FTS candidates over task title/description; an empty
// query falls back to recent tasks.
func (s *Store) SearchTasks(query string, f Filter, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = s.cfg.MaxSearchResults
	}

	fts := sanitizeFTS(query)
	if fts == "" {
		f.Limit = limit
		return s.ListTasks(f)
	}

	sqlStr := `
		SELECT t.id, t.title, t.description, t.summary, t.status, t.priority, t.depends_on, t.acceptance_criteria, t.created_at, t.updated_at
		FROM tasks_fts fts
		JOIN tasks t ON t.rowid = fts.rowid
		WHERE tasks_fts MATCH ?`
	args := []any{fts}
	if f.Status != "" {
		sqlStr += " AND t.status = ?"
		args = append(args, strings.ToUpper(f.Status))
	}
	if !f.Since.IsZero() {
		sqlStr += " AND t.created_at >= ?"
		args = append(args, formatTime(f.Since))
	}
	if !f.Until.IsZero() {
		sqlStr += " AND t.created_at <= ?"
		args = append(args, formatTime(f.Until))
	}
	sqlStr += " ORDER BY fts.rank LIMIT ?"
	args = append(args, limit)

	out, err := s.queryTasks(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("store: search tasks: %w", err)
	}
	return out, nil
}

// TasksBefore returns up to limit tasks created strictly before t, newest first.
func (s *Store) TasksBefore(t time.Time, limit int) ([]Task, error) {
	return s.queryTasks(
		`SELECT id, title, description, summary, status, priority, depends_on, acceptance_criteria, created_at, updated_at
		 FROM tasks WHERE created_at < ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		formatTime(t), limit,
	)
}

// TasksAfter returns up to limit tasks created strictly after t, oldest first.
func (s *Store) TasksAfter(t time.Time, limit int) ([]Task, error) {
	return s.queryTasks(
		`SELECT id, title, description, summary, status, priority, depends_on, acceptance_criteria, created_at, updated_at
		 FROM tasks WHERE created_at > ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		formatTime(t), limit,
	)
}

// TasksAt returns tasks created exactly at t.
func (s *Store) TasksAt(t time.Time) ([]Task, error) {
	return s.queryTasks(
		`SELECT id, title, description, summary, status, priority, depends_on, acceptance_criteria, created_at, updated_at
		 FROM tasks WHERE created_at = ? ORDER BY id ASC`,
		formatTime(t),
	)
}

// AllTasks returns every task, oldest first.
func (s *Store) AllTasks() ([]Task, error) {
	return s.queryTasks(
		`SELECT id, title, description, summary, status, priority, depends_on, acceptance_criteria, created_at, updated_at
		 FROM tasks ORDER BY created_at ASC, id ASC`,
	)
}

// BulkImportTasks loads tasks with insert-or-skip semantics.
func (s *Store) BulkImportTasks(tasks []Task) (BulkResult, error) {
	var result BulkResult

	tx, err := s.db.Begin()
	if err != nil {
		return result, fmt.Errorf("store: bulk import tasks: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range tasks {
		if t.ID == "" || strings.TrimSpace(t.Title) == "" {
			result.Errored++
			continue
		}
		res, err := tx.Exec(
			`INSERT OR IGNORE INTO tasks (id, title, description, summary, status, priority, depends_on, acceptance_criteria, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Title, nullable(t.Description), nullable(t.Summary), t.Status, t.Priority,
			encodeList(t.DependsOn), encodeList(t.AcceptanceCriteria),
			formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
		)
		if err != nil {
			result.Errored++
			continue
		}
		if n, _ := res.RowsAffected(); n == 0 {
			result.Skipped++
		} else {
			result.Inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("store: bulk import tasks: commit: %w", err)
	}
	return result, nil
}

// ─── Stats ───────────────────────────────────────────────────────────────────

// Stats returns aggregate store statistics.
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{ByType: map[string]int{}, ByTaskStatus: map[string]int{}}

	_ = s.db.QueryRow("SELECT COUNT(*) FROM insights").Scan(&stats.TotalInsights)
	_ = s.db.QueryRow("SELECT COUNT(*) FROM tasks").Scan(&stats.TotalTasks)

	rows, err := s.db.Query("SELECT type, COUNT(*) FROM insights GROUP BY type")
	if err != nil {
		return stats, nil
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err == nil {
			stats.ByType[typ] = n
		}
	}

	taskRows, err := s.db.Query("SELECT status, COUNT(*) FROM tasks GROUP BY status")
	if err != nil {
		return stats, nil
	}
	defer taskRows.Close()
	for taskRows.Next() {
		var status string
		var n int
		if err := taskRows.Scan(&status, &n); err == nil {
			stats.ByTaskStatus[status] = n
		}
	}

	return stats, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// freshID generates a new ID, re-rolling on collision with existing rows.
func (s *Store) freshID(prefix string, now time.Time) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		id, err := ident.Generate(prefix, now, rand.Reader)
		if err != nil {
			return "", fmt.Errorf("store: generate id: %w", err)
		}
		var exists int
		query := "SELECT COUNT(*) FROM insights WHERE id = ?"
		if prefix == ident.PrefixTask {
			query = "SELECT COUNT(*) FROM tasks WHERE id = ?"
		}
		if err := s.db.QueryRow(query, id).Scan(&exists); err != nil {
			return "", err
		}
		if exists == 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("store: could not generate a unique %s id", prefix)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInsight(row rowScanner) (*Insight, error) {
	var ins Insight
	var summary, source, notes sql.NullString
	var tags, links, created, updated string
	if err := row.Scan(
		&ins.ID, &ins.Content, &summary, &ins.Type, &ins.Status,
		&tags, &links, &source, &notes, &ins.ContentHash, &created, &updated,
	); err != nil {
		return nil, err
	}
	ins.Summary = summary.String
	ins.Notes = notes.String
	ins.Tags = decodeList(tags)
	ins.Links = decodeList(links)
	ins.Source = decodeSource(source.String)
	ins.CreatedAt = parseTime(created)
	ins.UpdatedAt = parseTime(updated)
	return &ins, nil
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var description, summary sql.NullString
	var dependsOn, criteria, created, updated string
	if err := row.Scan(
		&t.ID, &t.Title, &description, &summary, &t.Status, &t.Priority,
		&dependsOn, &criteria, &created, &updated,
	); err != nil {
		return nil, err
	}
	t.Description = description.String
	t.Summary = summary.String
	t.DependsOn = decodeList(dependsOn)
	t.AcceptanceCriteria = decodeList(criteria)
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return &t, nil
}

func (s *Store) queryInsights(query string, args ...any) ([]Insight, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Insight
	for rows.Next() {
		ins, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ins)
	}
	return out, rows.Err()
}

func (s *Store) queryTasks(query string, args ...any) ([]Task, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// applyInsightFilter appends WHERE clauses for the structural filter. Tags
// are stored as a JSON array so the tag filter matches the quoted element.
// col qualifies column names; the FTS search joins the content table under
// an alias, and type/tags exist in both tables.
func applyInsightFilter(query string, args []any, f Filter, col string) (string, []any) {
	if f.Type != "" {
		query += " AND " + col + "type = ?"
		args = append(args, strings.ToLower(f.Type))
	}
	if f.Status != "" {
		query += " AND " + col + "status = ?"
		args = append(args, strings.ToLower(f.Status))
	}
	if f.Tag != "" {
		query += " AND " + col + "tags LIKE ?"
		args = append(args, `%"`+f.Tag+`"%`)
	}
	if !f.Since.IsZero() {
		query += " AND " + col + "created_at >= ?"
		args = append(args, formatTime(f.Since))
	}
	if !f.Until.IsZero() {
		query += " AND " + col + "created_at <= ?"
		args = append(args, formatTime(f.Until))
	}
	return query, args
}

func normalizeInsightType(typ string) (string, error) {
	t := strings.ToLower(strings.TrimSpace(typ))
	if t == "" {
		return TypeTechnical, nil
	}
	for _, valid := range InsightTypes() {
		if t == valid {
			return t, nil
		}
	}
	return "", fmt.Errorf("store: invalid insight type %q", typ)
}

func normalizePriority(p string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(p))
	switch v {
	case "":
		return PriorityMedium, nil
	case PriorityHigh, PriorityMedium, PriorityLow:
		return v, nil
	}
	return "", fmt.Errorf("store: invalid priority %q", p)
}

func validTaskStatus(status string) bool {
	for _, s := range TaskStatuses() {
		if status == s {
			return true
		}
	}
	return false
}

// stripTitlePrefix removes a leading bracketed type tag ("[IMPL] fix x").
func stripTitlePrefix(title string) string {
	if strings.HasPrefix(title, "[") {
		if idx := strings.Index(title, "]"); idx > 0 {
			return strings.TrimSpace(title[idx+1:])
		}
	}
	return title
}

func dedupeStrings(in []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func encodeList(in []string) string {
	if len(in) == 0 {
		return "[]"
	}
	b, err := json.Marshal(in)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeList(s string) []string {
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

func encodeSource(src *Source) (any, error) {
	if src == nil {
		return nil, nil
	}
	b, err := json.Marshal(src)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeSource(s string) *Source {
	if s == "" {
		return nil
	}
	var src Source
	if err := json.Unmarshal([]byte(s), &src); err != nil {
		return nil
	}
	return &src
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Tolerate second-precision timestamps written by older tooling.
		if t2, err2 := time.Parse(time.RFC3339, s); err2 == nil {
			return t2.UTC()
		}
		return time.Time{}
	}
	return t
}

// sanitizeFTS turns a raw query into a safe FTS5 candidate expression:
// each token quoted with a prefix wildcard, OR-combined so candidate fetch
// stays broad (final ranking is the scorer's job).
func sanitizeFTS(query string) string {
	words := strings.Fields(query)
	var parts []string
	for _, w := range words {
		w = strings.Trim(w, `"-`)
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		// field:value filters are structural, not FTS terms.
		if idx := strings.Index(w, ":"); idx > 0 && idx < len(w)-1 {
			w = w[idx+1:]
		}
		parts = append(parts, `"`+w+`"*`)
	}
	return strings.Join(parts, " OR ")
}
