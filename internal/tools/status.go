package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcanale/lore/internal/format"
	"github.com/rcanale/lore/internal/store"
	"github.com/rcanale/lore/internal/upgrade"
	"github.com/mark3labs/mcp-go/mcp"
)

// StatusTool handles the lore_status MCP tool: it reports the detected
// on-disk format generation and the upgrade steps, if any, that would
// bring the store to the newest one.
type StatusTool struct {
	dataDir string
}

// NewStatusTool creates a StatusTool for the given data directory.
func NewStatusTool(dataDir string) *StatusTool {
	return &StatusTool{dataDir: dataDir}
}

// Definition returns the MCP tool definition for lore_status.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("lore_status",
		mcp.WithDescription(
			"Inspect the on-disk store: which format generation it is in, what evidence led to that "+
				"conclusion, and what an upgrade to the newest generation would involve. Read-only.",
		),
	)
}

// Handle processes the lore_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, err := format.ReadArtifactState(t.dataDir, store.DBFileName)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to inspect store: %v", err)), nil
	}
	detection := format.Detect(state)

	var b strings.Builder
	fmt.Fprintf(&b, "Data directory: %s\n", t.dataDir)
	fmt.Fprintf(&b, "Format generation: %s\n", detection.Generation)
	if len(detection.Indicators) > 0 {
		fmt.Fprintf(&b, "Evidence: %s\n", strings.Join(detection.Indicators, "; "))
	}
	fmt.Fprintf(&b, "Records: %d insights, %d tasks\n", state.InsightCount, state.TaskCount)

	steps := upgrade.PlanUpgrade(state, "")
	if len(steps) == 0 {
		b.WriteString("\nStore is at the newest generation. No upgrade needed.\n")
		return mcp.NewToolResultText(b.String()), nil
	}

	fmt.Fprintf(&b, "\nUpgrade plan (%d steps):\n", len(steps))
	for i, step := range steps {
		fmt.Fprintf(&b, "%d. %s → %s: %s (~%d records)\n",
			i+1, step.From, step.To, step.Description, step.EstimatedItems)
	}
	b.WriteString("\nRun lore_upgrade to execute. A backup is taken first.\n")
	return mcp.NewToolResultText(b.String()), nil
}
