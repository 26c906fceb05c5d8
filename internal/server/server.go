// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools that depend on them. No business logic lives
// here — only wiring.
package server

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/rcanale/lore/internal/config"
	"github.com/rcanale/lore/internal/format"
	"github.com/rcanale/lore/internal/retrieval"
	"github.com/rcanale/lore/internal/store"
	"github.com/rcanale/lore/internal/tools"
	"github.com/rcanale/lore/internal/upgrade"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all tools registered.
// This is the single place where all dependencies are resolved.
//
// The returned cleanup function closes the store's database connection and
// must be called on shutdown (typically via defer). It is always non-nil.
func New() (*server.MCPServer, func(), error) {
	// --- Resolve configuration ---

	repoPath, err := os.Getwd()
	if err != nil {
		repoPath = "."
	}
	repoName := filepath.Base(repoPath)

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, noop, fmt.Errorf("resolving home directory: %w", err)
	}
	dataDir := os.Getenv("LORE_DATA_DIR")
	if dataDir == "" {
		dataDir = filepath.Join(home, config.DataDirName)
	}

	cfg, err := config.LoadOrInit(config.NewFileStore(), dataDir, repoName, repoPath)
	if err != nil {
		return nil, noop, fmt.Errorf("loading config: %w", err)
	}

	// --- Open the store ---
	//
	// The on-disk state is captured BEFORE the store opens: opening
	// creates the database file, which would otherwise mask an older
	// flat-file generation.

	state, err := format.ReadArtifactState(dataDir, store.DBFileName)
	if err != nil {
		return nil, noop, fmt.Errorf("inspecting data dir: %w", err)
	}
	if pending := upgrade.PlanUpgrade(state, ""); len(pending) > 0 {
		log.Printf("NOTE: store format is %s; run lore_upgrade to migrate (%d steps pending)",
			format.Detect(state).Generation, len(pending))
	}

	st, err := store.New(store.Config{
		DataDir:          dataDir,
		MaxContentLength: cfg.MaxContentLength,
		MaxSearchResults: cfg.MaxSearchResults,
	})
	if err != nil {
		return nil, noop, fmt.Errorf("opening store: %w", err)
	}
	cleanup := func() {
		if err := st.Close(); err != nil {
			log.Printf("WARNING: store close: %v", err)
		}
	}

	retrievalSvc := retrieval.New(st)
	upgradeSvc := upgrade.New(dataDir, cfg.RepoHash, st, nil)

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"lore",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Capture & lifecycle tools ---

	captureTool := tools.NewCaptureTool(st)
	s.AddTool(captureTool.Definition(), captureTool.Handle)

	taskTool := tools.NewTaskTool(st)
	s.AddTool(taskTool.Definition(), taskTool.Handle)

	updateTool := tools.NewUpdateTool(st)
	s.AddTool(updateTool.Definition(), updateTool.Handle)

	// --- Retrieval tools ---

	scanTool := tools.NewScanTool(retrievalSvc)
	s.AddTool(scanTool.Definition(), scanTool.Handle)

	expandTool := tools.NewExpandTool(retrievalSvc)
	s.AddTool(expandTool.Definition(), expandTool.Handle)

	timelineTool := tools.NewTimelineTool(retrievalSvc)
	s.AddTool(timelineTool.Definition(), timelineTool.Handle)

	// --- Format & upgrade tools ---

	statusTool := tools.NewStatusTool(dataDir)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	upgradeTool := tools.NewUpgradeTool(upgradeSvc, dataDir)
	s.AddTool(upgradeTool.Definition(), upgradeTool.Handle)

	rollbackTool := tools.NewRollbackTool(st, dataDir)
	s.AddTool(rollbackTool.Definition(), rollbackTool.Handle)

	// --- Sharing tools ---

	exportTool := tools.NewExportTool(st, cfg.RepoName, cfg.RepoHash)
	s.AddTool(exportTool.Definition(), exportTool.Handle)

	importTool := tools.NewImportTool(st)
	s.AddTool(importTool.Definition(), importTool.Handle)

	// --- Introspection ---

	statsTool := tools.NewStatsTool(st)
	s.AddTool(statsTool.Definition(), statsTool.Handle)

	return s, cleanup, nil
}

// noop is the default cleanup when initialization fails early.
func noop() {}

func serverInstructions() string {
	return `You have access to lore, a persistent knowledge and task store.

## RETRIEVAL: cheap first, detail on demand

Always search in stages:
1. lore_scan — ranked one-line index. Costs almost nothing.
2. lore_expand — full content for the few IDs you actually need.
3. lore_timeline — what was captured around the same time.

Never expand IDs you have not scanned. Never ask for full content to
answer a question a summary already answers.

## CAPTURE: proactively, not on request

Call lore_capture when you learn something durable: a gotcha, a domain
rule, an architectural constraint, an edge case. Call lore_task when work
is identified but not done now. Use lore_update to move tasks through
their lifecycle and to mark insights discussed.

## SHARING & MAINTENANCE

lore_export / lore_import move insights between repositories with
deduplication. lore_status reports the on-disk format; lore_upgrade
migrates old stores (a backup is always taken; lore_rollback undoes).`
}
