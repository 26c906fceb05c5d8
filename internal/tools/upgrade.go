package tools

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rcanale/lore/internal/format"
	"github.com/rcanale/lore/internal/store"
	"github.com/rcanale/lore/internal/upgrade"
	"github.com/mark3labs/mcp-go/mcp"
)

// UpgradeTool handles the lore_upgrade MCP tool.
type UpgradeTool struct {
	svc     *upgrade.Service
	dataDir string
}

// NewUpgradeTool creates an UpgradeTool.
func NewUpgradeTool(svc *upgrade.Service, dataDir string) *UpgradeTool {
	return &UpgradeTool{svc: svc, dataDir: dataDir}
}

// Definition returns the MCP tool definition for lore_upgrade.
func (t *UpgradeTool) Definition() mcp.Tool {
	return mcp.NewTool("lore_upgrade",
		mcp.WithDescription(
			"Upgrade the on-disk store to the newest format generation. Safe to re-run: every step is "+
				"idempotent, and a full backup is taken before anything is rewritten. Use lore_status first "+
				"to see the plan, and lore_rollback with the reported backup path to undo.",
		),
		mcp.WithBoolean("skip_backup",
			mcp.Description("Skip the pre-upgrade backup (default: false; not recommended)"),
		),
	)
}

// Handle processes the lore_upgrade tool call.
func (t *UpgradeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, err := format.ReadArtifactState(t.dataDir, store.DBFileName)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to inspect store: %v", err)), nil
	}

	result, err := t.svc.ExecuteUpgrade(upgrade.Options{
		State:      state,
		SkipBackup: boolArg(req, "skip_backup", false),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("upgrade aborted: %v", err)), nil
	}

	if len(result.Steps) == 0 {
		return mcp.NewToolResultText("Store is already at the newest generation. Nothing to do."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Upgrade to %s complete.\n", result.Target)
	if result.BackupPath != "" {
		fmt.Fprintf(&b, "Backup: %s\n", result.BackupPath)
	}
	for _, sr := range result.Steps {
		fmt.Fprintf(&b, "\n%s (%s → %s)", sr.Step.Name, sr.Step.From, sr.Step.To)
		if sr.Satisfied {
			b.WriteString(" — already satisfied\n")
			continue
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "  insights: %d migrated, %d skipped, %d errored\n",
			sr.Insights.Migrated, sr.Insights.Skipped, sr.Insights.Errored)
		fmt.Fprintf(&b, "  tasks:    %d migrated, %d skipped, %d errored\n",
			sr.Tasks.Migrated, sr.Tasks.Skipped, sr.Tasks.Errored)
		for _, ve := range sr.Errors {
			fmt.Fprintf(&b, "  ! %s %s: %s\n", ve.RecordID, ve.Field, ve.Message)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── RollbackTool ────────────────────────────────────────────────────────────

// RollbackTool handles the lore_rollback MCP tool. It owns shutting down
// the live store: rolling back the database file under an open SQLite
// connection would leave stale WAL frames writing through to the restored
// file.
type RollbackTool struct {
	store   io.Closer
	dataDir string
}

// NewRollbackTool creates a RollbackTool. store is the open store handle
// on the data directory, closed before any file is rolled back.
func NewRollbackTool(store io.Closer, dataDir string) *RollbackTool {
	return &RollbackTool{store: store, dataDir: dataDir}
}

// Definition returns the MCP tool definition for lore_rollback.
func (t *RollbackTool) Definition() mcp.Tool {
	return mcp.NewTool("lore_rollback",
		mcp.WithDescription(
			"Restore the store from a pre-upgrade backup. Pass the backup path reported by lore_upgrade. "+
				"Artifacts created after the backup (such as the database file) are removed so the store "+
				"returns to its exact pre-upgrade generation.",
		),
		mcp.WithString("backup_path",
			mcp.Required(),
			mcp.Description("The backup directory printed by lore_upgrade"),
		),
	)
}

// Handle processes the lore_rollback tool call.
func (t *RollbackTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	backupPath := req.GetString("backup_path", "")
	if backupPath == "" {
		return mcp.NewToolResultError("'backup_path' is required"), nil
	}

	// Close the store first so no open connection writes into the files
	// being restored. Tool calls after this point fail until restart,
	// which is the safe failure mode.
	if err := t.store.Close(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("could not close the store before rollback: %v", err)), nil
	}

	if err := upgrade.Rollback(t.dataDir, backupPath); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("rollback failed (store is closed, restart the server): %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Store restored from %s. The store is closed; restart the server to reopen it.", backupPath)), nil
}
