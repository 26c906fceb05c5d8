package tools

import (
	"context"
	"fmt"

	"github.com/rcanale/lore/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
)

// TaskTool handles the lore_task MCP tool.
type TaskTool struct {
	store *store.Store
}

// NewTaskTool creates a TaskTool with the given store.
func NewTaskTool(st *store.Store) *TaskTool {
	return &TaskTool{store: st}
}

// Definition returns the MCP tool definition for lore_task.
func (t *TaskTool) Definition() mcp.Tool {
	return mcp.NewTool("lore_task",
		mcp.WithDescription(
			"Create a task in the persistent store. Tasks track work across sessions; "+
				"use lore_update to move them through TODO, IN_PROGRESS, DONE, BLOCKED, CANCELLED.",
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Short task title. May carry a bracketed type prefix, e.g. '[IMPL] wire the scanner'."),
		),
		mcp.WithString("description",
			mcp.Description("Longer description of the work"),
		),
		mcp.WithString("priority",
			mcp.Description("Priority: high, medium, low (default: medium)"),
			mcp.Enum(store.PriorityHigh, store.PriorityMedium, store.PriorityLow),
		),
		mcp.WithString("depends_on",
			mcp.Description("Comma-separated IDs of tasks this one depends on"),
		),
		mcp.WithString("acceptance_criteria",
			mcp.Description("Comma-separated acceptance criteria"),
		),
	)
}

// Handle processes the lore_task tool call.
func (t *TaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := req.GetString("title", "")
	if title == "" {
		return mcp.NewToolResultError("'title' is required"), nil
	}

	task, err := t.store.CreateTask(store.CreateTaskParams{
		Title:              title,
		Description:        req.GetString("description", ""),
		Priority:           req.GetString("priority", ""),
		DependsOn:          listArg(req, "depends_on"),
		AcceptanceCriteria: listArg(req, "acceptance_criteria"),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create task: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Task created: %s [%s/%s] %s",
		task.ID, task.Status, task.Priority, task.Summary)), nil
}
