// Package sharing moves insights between independent stores. Export builds
// a versioned, self-describing bundle; import previews the bundle against
// existing records and produces a plan with fresh IDs and remapped links.
//
// Everything here is pure over record slices. Duplicates, conflicts, and
// unmappable links are classification outcomes reported as data; the only
// errors are malformed bundles.
package sharing

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rcanale/lore/internal/ident"
	"github.com/rcanale/lore/internal/store"
)

// BundleVersion is the wire version this package writes and accepts.
const BundleVersion = "1.0"

// ─── Bundle wire format ──────────────────────────────────────────────────────

// BundleInsight is one record as it travels. IDs are carried as
// original_id because the importing side always assigns its own.
type BundleInsight struct {
	OriginalID       string        `json:"original_id"`
	Content          string        `json:"content"`
	Summary          string        `json:"summary,omitempty"`
	Type             string        `json:"type"`
	Status           string        `json:"status"`
	Tags             []string      `json:"tags"`
	Links            []string      `json:"links"`
	Source           *store.Source `json:"source,omitempty"`
	Notes            string        `json:"notes,omitempty"`
	Created          string        `json:"created"`
	ExportedFromRepo string        `json:"exported_from_repo"`
	ContentHash      string        `json:"content_hash"`
}

// SourceRepo identifies where a bundle came from.
type SourceRepo struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
}

// BundleMetadata carries counts and the optional human-stated reason.
type BundleMetadata struct {
	TotalCount   int    `json:"total_count"`
	ExportReason string `json:"export_reason,omitempty"`
}

// Bundle is the export artifact. The JSON shape is wire-level interop;
// field names never change within a version.
type Bundle struct {
	Version    string          `json:"version"`
	ExportedAt string          `json:"exported_at"`
	SourceRepo SourceRepo      `json:"source_repo"`
	Insights   []BundleInsight `json:"insights"`
	Metadata   BundleMetadata  `json:"metadata"`
}

// EncodeBundle writes the bundle as indented JSON.
func EncodeBundle(w io.Writer, b *Bundle) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("sharing: encode bundle: %w", err)
	}
	return nil
}

// DecodeBundle reads a bundle, rejecting any version it does not know.
// Guessing at an unknown shape is worse than refusing it.
func DecodeBundle(r io.Reader) (*Bundle, error) {
	var b Bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("sharing: decode bundle: %w", err)
	}
	if b.Version != BundleVersion {
		return nil, fmt.Errorf("sharing: unsupported bundle version %q (want %q)", b.Version, BundleVersion)
	}
	return &b, nil
}

// ─── Export ──────────────────────────────────────────────────────────────────

// ExportOptions filters what goes into a bundle. Link closure is on unless
// NoLinks is set.
type ExportOptions struct {
	Tag     string
	Type    string
	Reason  string
	NoLinks bool
	Now     time.Time // zero means time.Now
}

// ExportResult is the bundle plus an account of how it was assembled.
type ExportResult struct {
	Bundle         *Bundle
	IncludedIDs    []string
	ExcludedIDs    []string
	LinkedIDsAdded []string
}

// CreateExportBundle selects insights by tag and type, then (by default)
// performs a one-level link closure: any insight referenced by a selected
// insight's links joins the bundle even when it did not match the filters
// itself. Closure is one hop only, guarded by a visited set, so cyclic or
// self links cannot grow the bundle unboundedly.
func CreateExportBundle(insights []store.Insight, repoName, repoHash string, opts ExportOptions) *ExportResult {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	byID := make(map[string]store.Insight, len(insights))
	for _, ins := range insights {
		byID[ins.ID] = ins
	}

	included := map[string]bool{}
	var order []string
	for _, ins := range insights {
		if matchesExport(ins, opts) {
			included[ins.ID] = true
			order = append(order, ins.ID)
		}
	}

	var linkedAdded []string
	if !opts.NoLinks {
		for _, id := range append([]string(nil), order...) {
			for _, linkID := range byID[id].Links {
				if included[linkID] {
					continue
				}
				linked, ok := byID[linkID]
				if !ok {
					continue // dangling link, reported at import time
				}
				included[linked.ID] = true
				order = append(order, linked.ID)
				linkedAdded = append(linkedAdded, linked.ID)
			}
		}
	}

	result := &ExportResult{LinkedIDsAdded: linkedAdded}
	bundle := &Bundle{
		Version:    BundleVersion,
		ExportedAt: now.UTC().Format(time.RFC3339),
		SourceRepo: SourceRepo{Name: repoName, Hash: repoHash},
		Metadata:   BundleMetadata{TotalCount: len(order), ExportReason: opts.Reason},
	}
	for _, id := range order {
		bundle.Insights = append(bundle.Insights, toBundleInsight(byID[id], repoName))
		result.IncludedIDs = append(result.IncludedIDs, id)
	}
	for _, ins := range insights {
		if !included[ins.ID] {
			result.ExcludedIDs = append(result.ExcludedIDs, ins.ID)
		}
	}
	result.Bundle = bundle
	return result
}

func matchesExport(ins store.Insight, opts ExportOptions) bool {
	if opts.Type != "" && ins.Type != opts.Type {
		return false
	}
	if opts.Tag != "" {
		found := false
		for _, tag := range ins.Tags {
			if tag == opts.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func toBundleInsight(ins store.Insight, repoName string) BundleInsight {
	hash := ins.ContentHash
	if hash == "" {
		hash = ident.ContentHash(ins.Content)
	}
	return BundleInsight{
		OriginalID:       ins.ID,
		Content:          ins.Content,
		Summary:          ins.Summary,
		Type:             ins.Type,
		Status:           ins.Status,
		Tags:             emptyIfNil(ins.Tags),
		Links:            emptyIfNil(ins.Links),
		Source:           ins.Source,
		Notes:            ins.Notes,
		Created:          ins.CreatedAt.UTC().Format(time.RFC3339),
		ExportedFromRepo: repoName,
		ContentHash:      hash,
	}
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ─── Import preview ──────────────────────────────────────────────────────────

// ValidationError marks one malformed bundled record. Siblings are still
// processed.
type ValidationError struct {
	OriginalID string `json:"original_id"`
	Field      string `json:"field"`
	Message    string `json:"message"`
}

// Preview classifies every bundled record against the existing store
// before anything is written.
type Preview struct {
	New        []BundleInsight
	Duplicates []DuplicateMatch
	Conflicts  []ConflictMatch
	// UnmappableLinks are link targets found in neither the bundle nor
	// the existing store. Informational: import proceeds regardless.
	UnmappableLinks  []string
	ValidationErrors []ValidationError
}

// DuplicateMatch pairs a bundled record with the existing record that has
// the same content hash, whatever its ID.
type DuplicateMatch struct {
	Incoming   BundleInsight
	ExistingID string
}

// ConflictMatch pairs a bundled record with an existing record that shares
// its ID but not its content.
type ConflictMatch struct {
	Incoming   BundleInsight
	ExistingID string
}

// PreviewImport classifies each bundled record: same content hash as an
// existing record means duplicate (regardless of ID); otherwise a shared
// ID with different content means conflict; otherwise new. A bundle that
// carries the same original_id twice is malformed and rejected outright.
func PreviewImport(bundle *Bundle, existing []store.Insight) (*Preview, error) {
	if bundle.Version != BundleVersion {
		return nil, fmt.Errorf("sharing: unsupported bundle version %q", bundle.Version)
	}

	seen := map[string]bool{}
	for _, rec := range bundle.Insights {
		if rec.OriginalID != "" && seen[rec.OriginalID] {
			return nil, fmt.Errorf("sharing: bundle contains original_id %s twice", rec.OriginalID)
		}
		seen[rec.OriginalID] = true
	}

	existingByHash := map[string]string{}
	existingByID := map[string]store.Insight{}
	for _, ins := range existing {
		hash := ins.ContentHash
		if hash == "" {
			hash = ident.ContentHash(ins.Content)
		}
		if _, ok := existingByHash[hash]; !ok {
			existingByHash[hash] = ins.ID
		}
		existingByID[ins.ID] = ins
	}

	preview := &Preview{}
	bundleIDs := map[string]bool{}
	for _, rec := range bundle.Insights {
		bundleIDs[rec.OriginalID] = true
	}

	for _, rec := range bundle.Insights {
		if rec.OriginalID == "" {
			preview.ValidationErrors = append(preview.ValidationErrors, ValidationError{
				Field: "original_id", Message: "missing original_id",
			})
			continue
		}
		if rec.Content == "" {
			preview.ValidationErrors = append(preview.ValidationErrors, ValidationError{
				OriginalID: rec.OriginalID, Field: "content", Message: "empty content",
			})
			continue
		}

		hash := rec.ContentHash
		if hash == "" {
			hash = ident.ContentHash(rec.Content)
		}

		if existingID, ok := existingByHash[hash]; ok {
			preview.Duplicates = append(preview.Duplicates, DuplicateMatch{
				Incoming: rec, ExistingID: existingID,
			})
			continue
		}
		if _, ok := existingByID[rec.OriginalID]; ok {
			preview.Conflicts = append(preview.Conflicts, ConflictMatch{
				Incoming: rec, ExistingID: rec.OriginalID,
			})
			continue
		}
		preview.New = append(preview.New, rec)
	}

	unmappable := map[string]bool{}
	for _, rec := range bundle.Insights {
		for _, link := range rec.Links {
			if bundleIDs[link] {
				continue
			}
			if _, ok := existingByID[link]; ok {
				continue
			}
			unmappable[link] = true
		}
	}
	for link := range unmappable {
		preview.UnmappableLinks = append(preview.UnmappableLinks, link)
	}
	sort.Strings(preview.UnmappableLinks)

	return preview, nil
}

// ─── Import plan ─────────────────────────────────────────────────────────────

// PlanOptions tunes how a preview becomes a plan. The defaults skip
// duplicates and conflicts; setting a flag imports that class anyway,
// under a fresh ID like any new record.
type PlanOptions struct {
	ImportDuplicates bool
	ImportConflicts  bool
	// ExistingIDs are the IDs already present in the target store; fresh
	// IDs are re-rolled on collision against them.
	ExistingIDs []string
	Now         time.Time // zero means time.Now
	Rand        io.Reader // nil means crypto/rand
}

// idAttempts bounds re-rolling a colliding fresh ID before giving up.
const idAttempts = 5

// Plan is everything an import needs to execute: records ready to insert
// and a full account of what was skipped and why.
type Plan struct {
	InsightsToCreate []store.Insight
	// LinkRemapping maps every bundled original_id to the ID it resolves
	// to in the target store, including skipped records, which resolve to
	// the existing record they matched.
	LinkRemapping     map[string]string
	SkippedDuplicates []DuplicateMatch
	SkippedConflicts  []ConflictMatch
}

// CreateImportPlan assigns a fresh target-namespace ID to every record
// being imported, then rewrites every links array through the full
// remapping so imported records keep referencing each other after the
// rename. Links to skipped duplicates or conflicts point at the existing
// record instead of a re-created copy; links found unmappable at preview
// time pass through unchanged.
func CreateImportPlan(preview *Preview, opts PlanOptions) (*Plan, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.Reader
	}

	plan := &Plan{LinkRemapping: map[string]string{}}

	taken := make(map[string]bool, len(opts.ExistingIDs))
	for _, id := range opts.ExistingIDs {
		taken[id] = true
	}

	toCreate := append([]BundleInsight(nil), preview.New...)
	for _, dup := range preview.Duplicates {
		if opts.ImportDuplicates {
			toCreate = append(toCreate, dup.Incoming)
		} else {
			plan.SkippedDuplicates = append(plan.SkippedDuplicates, dup)
			plan.LinkRemapping[dup.Incoming.OriginalID] = dup.ExistingID
		}
	}
	for _, conflict := range preview.Conflicts {
		if opts.ImportConflicts {
			toCreate = append(toCreate, conflict.Incoming)
		} else {
			plan.SkippedConflicts = append(plan.SkippedConflicts, conflict)
			plan.LinkRemapping[conflict.Incoming.OriginalID] = conflict.ExistingID
		}
	}

	for _, rec := range toCreate {
		newID, err := freshImportID(now, rng, taken)
		if err != nil {
			return nil, fmt.Errorf("sharing: assign import id for %s: %w", rec.OriginalID, err)
		}
		taken[newID] = true
		plan.LinkRemapping[rec.OriginalID] = newID
	}

	for _, rec := range toCreate {
		plan.InsightsToCreate = append(plan.InsightsToCreate, planRecord(rec, plan.LinkRemapping))
	}
	return plan, nil
}

// freshImportID generates a target-namespace ID, re-rolling on collision
// against IDs already present or already minted in this plan.
func freshImportID(now time.Time, rng io.Reader, taken map[string]bool) (string, error) {
	for attempt := 0; attempt < idAttempts; attempt++ {
		id, err := ident.Generate(ident.PrefixInsight, now, rng)
		if err != nil {
			return "", err
		}
		if !taken[id] {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique id in %d attempts", idAttempts)
}

func planRecord(rec BundleInsight, remap map[string]string) store.Insight {
	links := make([]string, 0, len(rec.Links))
	for _, link := range rec.Links {
		if mapped, ok := remap[link]; ok {
			links = append(links, mapped)
		} else {
			links = append(links, link)
		}
	}

	source := rec.Source
	if source == nil {
		source = &store.Source{}
	} else {
		copied := *source
		source = &copied
	}
	source.OriginalID = rec.OriginalID

	created := parseCreated(rec.Created)
	hash := rec.ContentHash
	if hash == "" {
		hash = ident.ContentHash(rec.Content)
	}
	return store.Insight{
		ID:          remap[rec.OriginalID],
		Content:     rec.Content,
		Summary:     rec.Summary,
		Type:        rec.Type,
		Status:      rec.Status,
		Tags:        rec.Tags,
		Links:       links,
		Source:      source,
		Notes:       rec.Notes,
		ContentHash: hash,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func parseCreated(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now().UTC()
}
