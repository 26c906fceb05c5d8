// Package upgrade plans and executes migrations between on-disk format
// generations.
//
// Every step is idempotent: before mutating, it checks whether its
// target-generation indicators already hold, so re-running an upgrade on an
// already-upgraded store is a no-op. A full backup of the pre-upgrade
// artifact is taken before the first mutating step; failure to write that
// backup is the one class of error that aborts the whole operation.
// Per-record failures are collected as validation errors and never sink
// their siblings.
package upgrade

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rcanale/lore/internal/format"
	"github.com/rcanale/lore/internal/ident"
	"github.com/rcanale/lore/internal/store"
	"github.com/rcanale/lore/internal/summarize"
)

// Step is one planned transition between adjacent generations.
type Step struct {
	From           format.Generation
	To             format.Generation
	Name           string
	Description    string
	EstimatedItems int
}

// ValidationError marks a single record that could not be transformed.
type ValidationError struct {
	RecordID string `json:"record_id"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
}

// KindCounts reports per-entity-kind outcomes of one step.
type KindCounts struct {
	Migrated int
	Skipped  int
	Errored  int
}

// StepResult is the outcome of executing one step.
type StepResult struct {
	Step      Step
	Satisfied bool // indicators already held; step was a no-op
	Insights  KindCounts
	Tasks     KindCounts
	Errors    []ValidationError
}

// Result is the outcome of a whole upgrade run.
type Result struct {
	Target     format.Generation
	BackupPath string
	Steps      []StepResult
}

// Loader is the slice of the relational store the B→C step needs.
type Loader interface {
	BulkImportInsights([]store.Insight) (store.BulkResult, error)
	BulkImportTasks([]store.Task) (store.BulkResult, error)
}

// Service executes upgrades for one data directory.
type Service struct {
	dataDir   string
	repoHash  string
	loader    Loader
	summarize summarize.Func
}

// New creates an upgrade Service. The summarizer is a pure injected
// dependency; nil selects the default heuristic.
func New(dataDir, repoHash string, loader Loader, sum summarize.Func) *Service {
	if sum == nil {
		sum = summarize.Summarize
	}
	return &Service{dataDir: dataDir, repoHash: repoHash, loader: loader, summarize: sum}
}

// PlanUpgrade returns the ordered steps from the captured state to the
// target generation (newest when target is empty). An empty plan means the
// store is already there. Pure: it never touches disk.
func PlanUpgrade(state format.ArtifactState, target format.Generation) []Step {
	if target == "" {
		target = format.Newest
	}
	detection := format.Detect(state)
	path := format.UpgradePath(detection.Generation, target)

	var steps []Step
	from := detection.Generation
	for _, to := range path {
		steps = append(steps, makeStep(from, to, state))
		from = to
	}
	return steps
}

func makeStep(from, to format.Generation, state format.ArtifactState) Step {
	items := state.InsightCount + state.TaskCount
	switch {
	case from == format.GenerationA && to == format.GenerationB:
		return Step{
			From: from, To: to,
			Name:           "migrate-legacy-ids",
			Description:    "rewrite sequential IDs as global IDs and derive missing summaries",
			EstimatedItems: items,
		}
	case from == format.GenerationB && to == format.GenerationC:
		return Step{
			From: from, To: to,
			Name:           "load-relational-store",
			Description:    "bulk-load flat-file records into the indexed relational store",
			EstimatedItems: items,
		}
	}
	return Step{From: from, To: to, Name: fmt.Sprintf("%s-to-%s", from, to)}
}

// Options controls ExecuteUpgrade. State is the format state the caller
// captured (threaded explicitly, never global); Target defaults to the
// newest generation. Backups are on unless SkipBackup is set.
type Options struct {
	State      format.ArtifactState
	Target     format.Generation
	SkipBackup bool
	OnProgress func(step Step, message string)
}

// ExecuteUpgrade runs the planned steps in order. The returned Result
// always describes what happened, step by step; a non-nil error means a
// structural precondition failed and the run was aborted.
func (s *Service) ExecuteUpgrade(opts Options) (*Result, error) {
	if opts.Target == "" {
		opts.Target = format.Newest
	}
	result := &Result{Target: opts.Target}

	steps := PlanUpgrade(opts.State, opts.Target)
	if len(steps) == 0 {
		return result, nil
	}

	if !opts.SkipBackup {
		backupPath, err := s.createBackup()
		if err != nil {
			return result, fmt.Errorf("upgrade: backup failed, aborting: %w", err)
		}
		result.BackupPath = backupPath
	}

	for _, step := range steps {
		s.progress(opts, step, "starting")

		var (
			sr  StepResult
			err error
		)
		switch step.Name {
		case "migrate-legacy-ids":
			sr, err = s.runMigrateIDs(step)
		case "load-relational-store":
			sr, err = s.runLoadStore(step)
		default:
			err = fmt.Errorf("upgrade: unknown step %q", step.Name)
		}
		if err != nil {
			return result, err
		}

		result.Steps = append(result.Steps, sr)
		s.progress(opts, step, "done")
	}

	return result, nil
}

func (s *Service) progress(opts Options, step Step, msg string) {
	if opts.OnProgress != nil {
		opts.OnProgress(step, msg)
	}
}

// ─── Step A→B: migrate legacy IDs, derive summaries ─────────────────────────

func (s *Service) runMigrateIDs(step Step) (StepResult, error) {
	sr := StepResult{Step: step}

	insights, err := format.ReadInsightsFile(s.dataDir)
	if err != nil {
		return sr, fmt.Errorf("upgrade: %w", err)
	}
	tasks, err := format.ReadTasksFile(s.dataDir)
	if err != nil {
		return sr, fmt.Errorf("upgrade: %w", err)
	}

	// Idempotency: if no record needs ID migration or a summary, the
	// target indicators already hold and the step is a no-op.
	if !needsIDMigration(insights, tasks) {
		sr.Satisfied = true
		sr.Insights.Skipped = len(insights)
		sr.Tasks.Skipped = len(tasks)
		return sr, nil
	}

	// First pass: mint new IDs deterministically so links can be remapped
	// even when they point forward in the file.
	idMap := map[string]string{}
	for _, ins := range insights {
		if ident.IsLegacyID(ins.ID) {
			created := format.ParseFileTime(ins.Created)
			newID, err := ident.MigrateLegacyID(ins.ID, created, s.repoHash)
			if err == nil {
				idMap[ins.ID] = newID
			}
		}
	}
	for _, t := range tasks {
		if ident.IsLegacyID(t.ID) {
			created := format.ParseFileTime(t.Created)
			newID, err := ident.MigrateLegacyID(t.ID, created, s.repoHash)
			if err == nil {
				idMap[t.ID] = newID
			}
		}
	}

	for i := range insights {
		ins := &insights[i]
		if ins.Content == "" {
			sr.Errors = append(sr.Errors, ValidationError{
				RecordID: ins.ID, Field: "content", Message: "empty content",
			})
			sr.Insights.Errored++
			continue
		}

		changed := false
		if newID, ok := idMap[ins.ID]; ok {
			// Preserve provenance before the rename.
			if ins.Source == nil {
				ins.Source = &store.Source{}
			}
			if ins.Source.OriginalID == "" {
				ins.Source.OriginalID = ins.ID
			}
			ins.ID = newID
			changed = true
		}
		for j, link := range ins.Links {
			if mapped, ok := idMap[link]; ok {
				ins.Links[j] = mapped
				changed = true
			}
		}
		if ins.Summary == nil {
			if derived := s.summarize(ins.Content); derived != "" {
				ins.Summary = &derived
				changed = true
			}
		}

		if changed {
			sr.Insights.Migrated++
		} else {
			sr.Insights.Skipped++
		}
	}

	for i := range tasks {
		t := &tasks[i]
		if t.Title == "" {
			sr.Errors = append(sr.Errors, ValidationError{
				RecordID: t.ID, Field: "title", Message: "empty title",
			})
			sr.Tasks.Errored++
			continue
		}

		changed := false
		if newID, ok := idMap[t.ID]; ok {
			t.ID = newID
			changed = true
		}
		for j, dep := range t.DependsOn {
			if mapped, ok := idMap[dep]; ok {
				t.DependsOn[j] = mapped
				changed = true
			}
		}
		if t.Summary == nil {
			derived := summarize.TruncateAtWord(t.Title, summarize.DefaultSummaryLength)
			t.Summary = &derived
			changed = true
		}

		if changed {
			sr.Tasks.Migrated++
		} else {
			sr.Tasks.Skipped++
		}
	}

	if insights != nil {
		if err := format.WriteInsightsFile(s.dataDir, insights); err != nil {
			return sr, fmt.Errorf("upgrade: %w", err)
		}
	}
	if tasks != nil {
		if err := format.WriteTasksFile(s.dataDir, tasks); err != nil {
			return sr, fmt.Errorf("upgrade: %w", err)
		}
	}
	return sr, nil
}

func needsIDMigration(insights []format.JSONInsight, tasks []format.JSONTask) bool {
	for _, ins := range insights {
		// Short content never carries a summary, in any generation.
		needsSummary := ins.Summary == nil && len(ins.Content) > summarize.ShortContentThreshold
		if ident.IsLegacyID(ins.ID) || needsSummary {
			return true
		}
	}
	for _, t := range tasks {
		if ident.IsLegacyID(t.ID) || t.Summary == nil {
			return true
		}
	}
	return false
}

// ─── Step B→C: bulk-load the relational store ───────────────────────────────

func (s *Service) runLoadStore(step Step) (StepResult, error) {
	sr := StepResult{Step: step}

	if s.loader == nil {
		return sr, fmt.Errorf("upgrade: no relational store configured for %s", step.Name)
	}

	insights, err := format.ReadInsightsFile(s.dataDir)
	if err != nil {
		return sr, fmt.Errorf("upgrade: %w", err)
	}
	tasks, err := format.ReadTasksFile(s.dataDir)
	if err != nil {
		return sr, fmt.Errorf("upgrade: %w", err)
	}

	records := make([]store.Insight, 0, len(insights))
	for _, j := range insights {
		records = append(records, format.InsightToRecord(j))
	}
	insRes, err := s.loader.BulkImportInsights(records)
	if err != nil {
		return sr, fmt.Errorf("upgrade: load insights: %w", err)
	}
	sr.Insights = KindCounts{Migrated: insRes.Inserted, Skipped: insRes.Skipped, Errored: insRes.Errored}

	taskRecords := make([]store.Task, 0, len(tasks))
	for _, j := range tasks {
		taskRecords = append(taskRecords, format.TaskToRecord(j))
	}
	taskRes, err := s.loader.BulkImportTasks(taskRecords)
	if err != nil {
		return sr, fmt.Errorf("upgrade: load tasks: %w", err)
	}
	sr.Tasks = KindCounts{Migrated: taskRes.Inserted, Skipped: taskRes.Skipped, Errored: taskRes.Errored}

	sr.Satisfied = sr.Insights.Migrated == 0 && sr.Tasks.Migrated == 0
	return sr, nil
}

// ─── Backup / Rollback ───────────────────────────────────────────────────────

// backupSources are the artifacts a pre-upgrade backup preserves. The
// database file is never among them: an upgrade only runs while the flat
// files are still the source of truth, and any database file present at
// that point was created by opening the store, not by a completed
// migration. Backing it up would make rollback restore a spurious empty
// database instead of the true pre-upgrade state.
var backupSources = []string{format.InsightsFile, format.TasksFile}

// rollbackArtifacts is everything rollback manages: restored when present
// in the backup, removed when absent.
var rollbackArtifacts = []string{format.InsightsFile, format.TasksFile, store.DBFileName}

func (s *Service) createBackup() (string, error) {
	stamp := time.Now().UTC().Format("20060102-150405")
	backupDir := filepath.Join(s.dataDir, "backups", stamp)
	if err := os.MkdirAll(backupDir, 0700); err != nil {
		return "", err
	}
	for _, name := range backupSources {
		src := filepath.Join(s.dataDir, name)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		if err := copyFile(src, filepath.Join(backupDir, name)); err != nil {
			return "", err
		}
	}
	return backupDir, nil
}

// Rollback restores the pre-upgrade artifacts from a backup directory. It
// is callable at any time after an upgrade, not only immediately after a
// failure. Any open store handle on the data directory must be closed
// before rolling back the database file.
func Rollback(dataDir, backupPath string) error {
	info, err := os.Stat(backupPath)
	if err != nil {
		return fmt.Errorf("upgrade: rollback: backup %s: %w", backupPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("upgrade: rollback: %s is not a backup directory", backupPath)
	}

	restored := 0
	for _, name := range rollbackArtifacts {
		src := filepath.Join(backupPath, name)
		dst := filepath.Join(dataDir, name)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			// Absent from the backup means absent before the upgrade.
			// Remove whatever a later step created, so detection sees
			// the pre-upgrade generation again.
			if err := removeArtifact(dst); err != nil {
				return fmt.Errorf("upgrade: rollback %s: %w", name, err)
			}
			continue
		}
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("upgrade: rollback %s: %w", name, err)
		}
		restored++
	}
	if restored == 0 {
		return fmt.Errorf("upgrade: rollback: backup %s contains no artifacts", backupPath)
	}
	return nil
}

func removeArtifact(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	// SQLite WAL companions, if any.
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
