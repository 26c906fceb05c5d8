package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcanale/lore/internal/retrieval"
	"github.com/mark3labs/mcp-go/mcp"
)

// TimelineTool handles the lore_timeline MCP tool.
type TimelineTool struct {
	svc *retrieval.Service
}

// NewTimelineTool creates a TimelineTool.
func NewTimelineTool(svc *retrieval.Service) *TimelineTool {
	return &TimelineTool{svc: svc}
}

// Definition returns the MCP tool definition for lore_timeline.
func (t *TimelineTool) Definition() mcp.Tool {
	return mcp.NewTool("lore_timeline",
		mcp.WithDescription(
			"Show the chronological neighborhood of a record. Use after lore_scan to understand "+
				"what was captured around the same time. Anchor on a record ID or an RFC 3339 timestamp.",
		),
		mcp.WithString("anchor_id",
			mcp.Description("Record ID to center the window on (from lore_scan results)"),
		),
		mcp.WithString("anchor_time",
			mcp.Description("RFC 3339 timestamp to center on instead of an ID"),
		),
		mcp.WithNumber("before",
			mcp.Description("Records to show before the anchor (default: 5)"),
		),
		mcp.WithNumber("after",
			mcp.Description("Records to show after the anchor (default: 5)"),
		),
	)
}

// Handle processes the lore_timeline tool call.
func (t *TimelineTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := retrieval.TimelineParams{
		AnchorID: req.GetString("anchor_id", ""),
		Before:   intArg(req, "before", 0),
		After:    intArg(req, "after", 0),
	}
	anchorTime, err := timeArg(req, "anchor_time")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	params.AnchorTime = anchorTime
	if params.AnchorID == "" && params.AnchorTime.IsZero() {
		return mcp.NewToolResultError("either 'anchor_id' or 'anchor_time' is required"), nil
	}

	result, err := t.svc.Timeline(params)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("timeline failed: %v", err)), nil
	}

	var b strings.Builder
	writeWindow(&b, "--- Before ---", result.Before)
	for _, e := range result.Anchor {
		fmt.Fprintf(&b, ">>> %s [%s] %s <<<\n", e.ID, e.Kind, e.Summary)
	}
	writeWindow(&b, "--- After ---", result.After)
	if b.Len() == 0 {
		return mcp.NewToolResultText("Nothing recorded around that point."), nil
	}

	b.WriteString(SummaryFooter)
	b.WriteString(TokenFooter(EstimateTokens(b.String())))
	return mcp.NewToolResultText(b.String()), nil
}

func writeWindow(b *strings.Builder, header string, entries []retrieval.ScanEntry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(b, "%s\n", header)
	for _, e := range entries {
		fmt.Fprintf(b, "%s  %s [%s] %s\n",
			e.CreatedAt.Format("2006-01-02 15:04"), e.ID, e.Kind, e.Summary)
	}
	b.WriteString("\n")
}
