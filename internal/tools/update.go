package tools

import (
	"context"
	"fmt"

	"github.com/rcanale/lore/internal/ident"
	"github.com/rcanale/lore/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
)

// UpdateTool handles the lore_update MCP tool. It dispatches on the ID
// prefix: INS IDs update insights, TASK IDs update tasks. Content and IDs
// are immutable; only lifecycle fields change through this path.
type UpdateTool struct {
	store *store.Store
}

// NewUpdateTool creates an UpdateTool with the given store.
func NewUpdateTool(st *store.Store) *UpdateTool {
	return &UpdateTool{store: st}
}

// Definition returns the MCP tool definition for lore_update.
func (t *UpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("lore_update",
		mcp.WithDescription(
			"Update the mutable fields of an insight or task. For insights: status, tags, links, notes. "+
				"For tasks: status, priority, title, description, depends_on. Content never changes; capture a new insight instead.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The record ID (from lore_scan results)"),
		),
		mcp.WithString("status",
			mcp.Description("New status. Insights: unprocessed, discussed. Tasks: TODO, IN_PROGRESS, DONE, BLOCKED, CANCELLED."),
		),
		mcp.WithString("tags",
			mcp.Description("Replacement tag list, comma-separated (insights only)"),
		),
		mcp.WithString("links",
			mcp.Description("Replacement links list, comma-separated (insights only)"),
		),
		mcp.WithString("notes",
			mcp.Description("Replacement notes (insights only)"),
		),
		mcp.WithString("priority",
			mcp.Description("New priority: high, medium, low (tasks only)"),
		),
		mcp.WithString("title",
			mcp.Description("New title (tasks only)"),
		),
		mcp.WithString("description",
			mcp.Description("New description (tasks only)"),
		),
		mcp.WithString("depends_on",
			mcp.Description("Replacement dependency list, comma-separated (tasks only)"),
		),
	)
}

// Handle processes the lore_update tool call.
func (t *UpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	parsed := ident.Parse(id)
	if parsed == nil {
		return mcp.NewToolResultError(fmt.Sprintf("malformed id %q", id)), nil
	}

	if parsed.Prefix == ident.PrefixTask {
		return t.updateTask(id, req)
	}
	return t.updateInsight(id, req)
}

func (t *UpdateTool) updateInsight(id string, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p store.UpdateInsightParams
	if v := req.GetString("status", ""); v != "" {
		p.Status = &v
	}
	if _, ok := req.GetArguments()["tags"]; ok {
		tags := listArg(req, "tags")
		p.Tags = &tags
	}
	if _, ok := req.GetArguments()["links"]; ok {
		links := listArg(req, "links")
		p.Links = &links
	}
	if v, ok := req.GetArguments()["notes"].(string); ok {
		p.Notes = &v
	}

	ins, err := t.store.UpdateInsight(id, p)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update insight: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Insight updated: %s (status: %s)", ins.ID, ins.Status)), nil
}

func (t *UpdateTool) updateTask(id string, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p store.UpdateTaskParams
	if v := req.GetString("status", ""); v != "" {
		p.Status = &v
	}
	if v := req.GetString("priority", ""); v != "" {
		p.Priority = &v
	}
	if v := req.GetString("title", ""); v != "" {
		p.Title = &v
	}
	if v, ok := req.GetArguments()["description"].(string); ok {
		p.Description = &v
	}
	if _, ok := req.GetArguments()["depends_on"]; ok {
		deps := listArg(req, "depends_on")
		p.DependsOn = &deps
	}

	task, err := t.store.UpdateTask(id, p)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update task: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task updated: %s [%s/%s]", task.ID, task.Status, task.Priority)), nil
}
