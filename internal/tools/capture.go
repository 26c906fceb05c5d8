package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcanale/lore/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
)

// CaptureTool handles the lore_capture MCP tool.
type CaptureTool struct {
	store *store.Store
}

// NewCaptureTool creates a CaptureTool with the given store.
func NewCaptureTool(st *store.Store) *CaptureTool {
	return &CaptureTool{store: st}
}

// Definition returns the MCP tool definition for lore_capture.
func (t *CaptureTool) Definition() mcp.Tool {
	return mcp.NewTool("lore_capture",
		mcp.WithDescription(
			"Capture an insight to the persistent store. Call this PROACTIVELY when you learn something "+
				"worth keeping: a gotcha, a domain rule, an architectural constraint, an edge case.",
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("The insight text. Keep it self-contained; a summary is derived automatically for long content."),
		),
		mcp.WithString("type",
			mcp.Description("Category: process, domain, architecture, edge-case, technical (default: technical)"),
			mcp.Enum(store.InsightTypes()...),
		),
		mcp.WithString("tags",
			mcp.Description("Comma-separated tags for filtering (e.g. 'reliability,queue')"),
		),
		mcp.WithString("links",
			mcp.Description("Comma-separated IDs of related insights"),
		),
		mcp.WithString("task",
			mcp.Description("ID of the task this insight came from, if any"),
		),
		mcp.WithString("notes",
			mcp.Description("Free-form notes that should not affect search ranking"),
		),
	)
}

// Handle processes the lore_capture tool call.
func (t *CaptureTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content := req.GetString("content", "")
	if strings.TrimSpace(content) == "" {
		return mcp.NewToolResultError("'content' is required"), nil
	}

	var source *store.Source
	if task := req.GetString("task", ""); task != "" {
		source = &store.Source{Task: task}
	}

	ins, err := t.store.CreateInsight(store.CreateInsightParams{
		Content: content,
		Type:    req.GetString("type", ""),
		Tags:    listArg(req, "tags"),
		Links:   listArg(req, "links"),
		Source:  source,
		Notes:   req.GetString("notes", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to capture insight: %v", err)), nil
	}

	response := fmt.Sprintf("Insight captured: %s (%s)", ins.ID, ins.Type)
	if ins.Summary != "" {
		response += fmt.Sprintf("\nSummary: %s", ins.Summary)
	}
	return mcp.NewToolResultText(response), nil
}
