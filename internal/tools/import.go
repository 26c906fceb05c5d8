package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rcanale/lore/internal/sharing"
	"github.com/rcanale/lore/internal/store"
	"github.com/rcanale/lore/internal/summarize"
	"github.com/mark3labs/mcp-go/mcp"
)

// ImportTool handles the lore_import MCP tool. Preview mode classifies the
// bundle without writing; apply mode executes the import plan.
type ImportTool struct {
	store *store.Store
}

// NewImportTool creates an ImportTool.
func NewImportTool(st *store.Store) *ImportTool {
	return &ImportTool{store: st}
}

// Definition returns the MCP tool definition for lore_import.
func (t *ImportTool) Definition() mcp.Tool {
	return mcp.NewTool("lore_import",
		mcp.WithDescription(
			"Import a bundle exported from another repository. Run with mode=preview first to see what "+
				"is new, duplicate, or conflicting; mode=apply assigns fresh IDs, remaps links, and writes. "+
				"Duplicates and conflicts are skipped unless explicitly included.",
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the bundle file"),
		),
		mcp.WithString("mode",
			mcp.Description("'preview' (default) classifies only; 'apply' executes the import"),
			mcp.Enum("preview", "apply"),
		),
		mcp.WithBoolean("import_duplicates",
			mcp.Description("Import records whose content already exists (default: false)"),
		),
		mcp.WithBoolean("import_conflicts",
			mcp.Description("Import records whose ID exists with different content (default: false)"),
		),
	)
}

// Handle processes the lore_import tool call.
func (t *ImportTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("'path' is required"), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to open bundle: %v", err)), nil
	}
	defer f.Close()

	bundle, err := sharing.DecodeBundle(f)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid bundle: %v", err)), nil
	}

	existing, err := t.store.AllInsights()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read store: %v", err)), nil
	}

	preview, err := sharing.PreviewImport(bundle, existing)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid bundle: %v", err)), nil
	}

	if req.GetString("mode", "preview") != "apply" {
		return mcp.NewToolResultText(formatPreview(bundle, preview)), nil
	}

	existingIDs := make([]string, 0, len(existing))
	for _, ins := range existing {
		existingIDs = append(existingIDs, ins.ID)
	}
	plan, err := sharing.CreateImportPlan(preview, sharing.PlanOptions{
		ImportDuplicates: boolArg(req, "import_duplicates", false),
		ImportConflicts:  boolArg(req, "import_conflicts", false),
		ExistingIDs:      existingIDs,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to plan import: %v", err)), nil
	}

	created := 0
	var failures []string
	for _, ins := range plan.InsightsToCreate {
		if err := t.store.PutInsight(ins); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", ins.Source.OriginalID, err))
			continue
		}
		created++
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Import complete: %d created, %d duplicates skipped, %d conflicts skipped.\n",
		created, len(plan.SkippedDuplicates), len(plan.SkippedConflicts))
	if len(preview.UnmappableLinks) > 0 {
		fmt.Fprintf(&b, "Unmappable links left as-is: %s\n", strings.Join(preview.UnmappableLinks, ", "))
	}
	for _, failure := range failures {
		fmt.Fprintf(&b, "! %s\n", failure)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func formatPreview(bundle *sharing.Bundle, preview *sharing.Preview) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bundle from %s (%s), %d insights, exported %s\n\n",
		bundle.SourceRepo.Name, bundle.SourceRepo.Hash,
		bundle.Metadata.TotalCount, bundle.ExportedAt)

	fmt.Fprintf(&b, "New: %d\n", len(preview.New))
	for _, rec := range preview.New {
		fmt.Fprintf(&b, "  + %s %s\n", rec.OriginalID, previewLine(rec))
	}
	fmt.Fprintf(&b, "Duplicates: %d\n", len(preview.Duplicates))
	for _, dup := range preview.Duplicates {
		fmt.Fprintf(&b, "  = %s matches existing %s\n", dup.Incoming.OriginalID, dup.ExistingID)
	}
	fmt.Fprintf(&b, "Conflicts: %d\n", len(preview.Conflicts))
	for _, conflict := range preview.Conflicts {
		fmt.Fprintf(&b, "  ! %s collides with existing %s\n", conflict.Incoming.OriginalID, conflict.ExistingID)
	}
	if len(preview.UnmappableLinks) > 0 {
		fmt.Fprintf(&b, "Unmappable links: %s\n", strings.Join(preview.UnmappableLinks, ", "))
	}
	for _, ve := range preview.ValidationErrors {
		fmt.Fprintf(&b, "Invalid record %s (%s): %s\n", ve.OriginalID, ve.Field, ve.Message)
	}

	b.WriteString("\nRun with mode=apply to execute.")
	return b.String()
}

func previewLine(rec sharing.BundleInsight) string {
	if rec.Summary != "" {
		return rec.Summary
	}
	return summarize.TruncateAtWord(rec.Content, 80)
}
