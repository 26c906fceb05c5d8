package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcanale/lore/internal/retrieval"
	"github.com/rcanale/lore/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
)

// ExpandTool handles the lore_expand MCP tool: the second stage of
// progressive disclosure, hydrating IDs chosen from a scan.
type ExpandTool struct {
	svc *retrieval.Service
}

// NewExpandTool creates an ExpandTool.
func NewExpandTool(svc *retrieval.Service) *ExpandTool {
	return &ExpandTool{svc: svc}
}

// Definition returns the MCP tool definition for lore_expand.
func (t *ExpandTool) Definition() mcp.Tool {
	return mcp.NewTool("lore_expand",
		mcp.WithDescription(
			"Fetch the full content of specific records by ID, after choosing them from lore_scan. "+
				"Optionally pulls each insight's directly linked records (one hop) and its nearest "+
				"chronological neighbors. IDs that do not exist are reported, not errors.",
		),
		mcp.WithString("ids",
			mcp.Required(),
			mcp.Description("Comma-separated record IDs from lore_scan results"),
		),
		mcp.WithBoolean("include_links",
			mcp.Description("Also fetch directly linked insights (default: true)"),
		),
		mcp.WithBoolean("include_timeline",
			mcp.Description("Also show each insight's nearest chronological neighbors (default: false)"),
		),
		mcp.WithString("detail_level",
			mcp.Description("'summary' truncates content; 'standard'/'full' return it whole."),
			mcp.Enum(DetailLevelValues()...),
		),
	)
}

// Handle processes the lore_expand tool call.
func (t *ExpandTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := listArg(req, "ids")
	if len(ids) == 0 {
		return mcp.NewToolResultError("'ids' is required"), nil
	}
	detail := ParseDetailLevel(req.GetString("detail_level", ""))

	result, err := t.svc.Expand(retrieval.ExpandParams{
		IDs:             ids,
		IncludeLinks:    boolArg(req, "include_links", true),
		IncludeTimeline: boolArg(req, "include_timeline", false),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("expand failed: %v", err)), nil
	}

	var b strings.Builder
	for _, exp := range result.Insights {
		writeInsight(&b, exp.Insight, detail)
		if len(exp.Linked) > 0 {
			b.WriteString("  Linked:\n")
			for _, linked := range exp.Linked {
				fmt.Fprintf(&b, "  - %s [%s] %s\n", linked.ID, linked.Type, linked.Summary)
			}
		}
		writeNeighbors(&b, exp.Before, exp.After)
		b.WriteString("\n")
	}
	for _, task := range result.Tasks {
		writeTask(&b, task, detail)
		b.WriteString("\n")
	}
	if len(result.NotFound) > 0 {
		fmt.Fprintf(&b, "Not found: %s\n", strings.Join(result.NotFound, ", "))
	}
	if b.Len() == 0 {
		return mcp.NewToolResultText("No records resolved."), nil
	}

	b.WriteString(TokenFooter(EstimateTokens(b.String())))
	return mcp.NewToolResultText(b.String()), nil
}

func writeInsight(b *strings.Builder, ins store.Insight, detail string) {
	fmt.Fprintf(b, "=== %s [%s %s] %s ===\n", ins.ID, ins.Type, ins.Status,
		ins.CreatedAt.Format("2006-01-02 15:04"))
	if detail == DetailSummary && ins.Summary != "" {
		fmt.Fprintf(b, "%s\n", ins.Summary)
	} else {
		fmt.Fprintf(b, "%s\n", ins.Content)
	}
	if len(ins.Tags) > 0 {
		fmt.Fprintf(b, "tags: %s\n", strings.Join(ins.Tags, ", "))
	}
	if ins.Notes != "" && detail != DetailSummary {
		fmt.Fprintf(b, "notes: %s\n", ins.Notes)
	}
	if ins.Source != nil && ins.Source.OriginalID != "" {
		fmt.Fprintf(b, "imported as: %s\n", ins.Source.OriginalID)
	}
}

func writeTask(b *strings.Builder, task store.Task, detail string) {
	fmt.Fprintf(b, "=== %s [task %s/%s] %s ===\n", task.ID, task.Status, task.Priority,
		task.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(b, "%s\n", task.Title)
	if task.Description != "" && detail != DetailSummary {
		fmt.Fprintf(b, "%s\n", task.Description)
	}
	if len(task.DependsOn) > 0 {
		fmt.Fprintf(b, "depends on: %s\n", strings.Join(task.DependsOn, ", "))
	}
	if len(task.AcceptanceCriteria) > 0 && detail != DetailSummary {
		for _, c := range task.AcceptanceCriteria {
			fmt.Fprintf(b, "- [ ] %s\n", c)
		}
	}
}

func writeNeighbors(b *strings.Builder, before, after []retrieval.ScanEntry) {
	if len(before) == 0 && len(after) == 0 {
		return
	}
	b.WriteString("  Timeline:\n")
	for _, e := range before {
		fmt.Fprintf(b, "  ← %s %s\n", e.ID, e.Summary)
	}
	for _, e := range after {
		fmt.Fprintf(b, "  → %s %s\n", e.ID, e.Summary)
	}
}
