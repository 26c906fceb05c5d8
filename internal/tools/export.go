package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rcanale/lore/internal/sharing"
	"github.com/rcanale/lore/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
)

// ExportTool handles the lore_export MCP tool.
type ExportTool struct {
	store    *store.Store
	repoName string
	repoHash string
}

// NewExportTool creates an ExportTool.
func NewExportTool(st *store.Store, repoName, repoHash string) *ExportTool {
	return &ExportTool{store: st, repoName: repoName, repoHash: repoHash}
}

// Definition returns the MCP tool definition for lore_export.
func (t *ExportTool) Definition() mcp.Tool {
	return mcp.NewTool("lore_export",
		mcp.WithDescription(
			"Export insights to a bundle file another repository can import. By default, any insight "+
				"referenced by an exported insight's links joins the bundle too (one hop), so links stay "+
				"resolvable on the other side.",
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File path to write the bundle to"),
		),
		mcp.WithString("tag",
			mcp.Description("Export only insights carrying this tag"),
		),
		mcp.WithString("type",
			mcp.Description("Export only insights of this type"),
			mcp.Enum(store.InsightTypes()...),
		),
		mcp.WithString("reason",
			mcp.Description("Why this export exists; recorded in the bundle metadata"),
		),
		mcp.WithBoolean("include_links",
			mcp.Description("Pull linked insights into the bundle (default: true)"),
		),
	)
}

// Handle processes the lore_export tool call.
func (t *ExportTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("'path' is required"), nil
	}

	insights, err := t.store.AllInsights()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read insights: %v", err)), nil
	}

	result := sharing.CreateExportBundle(insights, t.repoName, t.repoHash, sharing.ExportOptions{
		Tag:     req.GetString("tag", ""),
		Type:    req.GetString("type", ""),
		Reason:  req.GetString("reason", ""),
		NoLinks: !boolArg(req, "include_links", true),
	})
	if len(result.IncludedIDs) == 0 {
		return mcp.NewToolResultText("Nothing matched the export filters; no bundle written."), nil
	}

	f, err := os.Create(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create bundle file: %v", err)), nil
	}
	defer f.Close()
	if err := sharing.EncodeBundle(f, result.Bundle); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to write bundle: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Exported %d insights to %s\n", len(result.IncludedIDs), path)
	if len(result.LinkedIDsAdded) > 0 {
		fmt.Fprintf(&b, "Added via link closure: %s\n", strings.Join(result.LinkedIDsAdded, ", "))
	}
	if len(result.ExcludedIDs) > 0 {
		fmt.Fprintf(&b, "Excluded by filters: %d\n", len(result.ExcludedIDs))
	}
	return mcp.NewToolResultText(b.String()), nil
}
