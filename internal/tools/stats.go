package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rcanale/lore/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
)

// StatsTool handles the lore_stats MCP tool.
type StatsTool struct {
	store *store.Store
}

// NewStatsTool creates a StatsTool with the given store.
func NewStatsTool(st *store.Store) *StatsTool {
	return &StatsTool{store: st}
}

// Definition returns the MCP tool definition for lore_stats.
func (t *StatsTool) Definition() mcp.Tool {
	return mcp.NewTool("lore_stats",
		mcp.WithDescription(
			"Show store statistics — total insights and tasks, broken down by type and status.",
		),
	)
}

// Handle processes the lore_stats tool call.
func (t *StatsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := t.store.Stats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get stats: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString("## Store Statistics\n\n")
	sb.WriteString(fmt.Sprintf("- **Insights**: %d\n", stats.TotalInsights))
	sb.WriteString(fmt.Sprintf("- **Tasks**: %d\n", stats.TotalTasks))

	writeBreakdown(&sb, "By type", stats.ByType)
	writeBreakdown(&sb, "By task status", stats.ByTaskStatus)

	return mcp.NewToolResultText(sb.String()), nil
}

func writeBreakdown(sb *strings.Builder, label string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", k, counts[k]))
	}
	sb.WriteString(fmt.Sprintf("- **%s**: %s\n", label, strings.Join(parts, ", ")))
}
