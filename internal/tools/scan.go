package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcanale/lore/internal/retrieval"
	"github.com/rcanale/lore/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
)

// ScanTool handles the lore_scan MCP tool: the first stage of progressive
// disclosure. It returns a ranked compact index, never full content.
type ScanTool struct {
	svc *retrieval.Service
}

// NewScanTool creates a ScanTool.
func NewScanTool(svc *retrieval.Service) *ScanTool {
	return &ScanTool{svc: svc}
}

// Definition returns the MCP tool definition for lore_scan.
func (t *ScanTool) Definition() mcp.Tool {
	return mcp.NewTool("lore_scan",
		mcp.WithDescription(
			"Search the store and get a ranked, compact index: IDs, one-line summaries, and scores. "+
				"This is the cheap first step — follow up with lore_expand for the records you actually need. "+
				"Query syntax: bare terms (OR), \"quoted phrases\", -exclusions, field:value filters.",
		),
		mcp.WithString("query",
			mcp.Description("Free-text query. Empty returns the most recent records."),
		),
		mcp.WithString("kind",
			mcp.Description("Limit to one record kind"),
			mcp.Enum(retrieval.KindInsight, retrieval.KindTask),
		),
		mcp.WithString("type",
			mcp.Description("Filter insights by type"),
			mcp.Enum(store.InsightTypes()...),
		),
		mcp.WithString("status",
			mcp.Description("Filter by status"),
		),
		mcp.WithString("tag",
			mcp.Description("Filter by tag"),
		),
		mcp.WithString("since",
			mcp.Description("Only records created at or after this RFC3339 timestamp"),
		),
		mcp.WithString("until",
			mcp.Description("Only records created at or before this RFC3339 timestamp"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum entries to return (default: %d)", retrieval.DefaultScanLimit)),
		),
	)
}

// Handle processes the lore_scan tool call.
func (t *ScanTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	since, err := timeArg(req, "since")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	until, err := timeArg(req, "until")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := t.svc.Scan(retrieval.ScanParams{
		Query:  req.GetString("query", ""),
		Kind:   req.GetString("kind", ""),
		Type:   req.GetString("type", ""),
		Status: req.GetString("status", ""),
		Tag:    req.GetString("tag", ""),
		Since:  since,
		Until:  until,
		Limit:  intArg(req, "limit", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scan failed: %v", err)), nil
	}

	if len(result.Entries) == 0 {
		return mcp.NewToolResultText("No matching records."), nil
	}

	var b strings.Builder
	for _, e := range result.Entries {
		fmt.Fprintf(&b, "%s [%s] (%.2f) %s\n", e.ID, entryLabel(e), e.Score, e.Summary)
		if len(e.Tags) > 0 {
			fmt.Fprintf(&b, "    tags: %s\n", strings.Join(e.Tags, ", "))
		}
	}

	b.WriteString(NavigationHint(len(result.Entries), result.TotalCount,
		"Raise 'limit' or narrow the query."))
	b.WriteString(SummaryFooter)
	b.WriteString(TokenFooter(EstimateTokens(b.String())))
	return mcp.NewToolResultText(b.String()), nil
}

// entryLabel renders the metadata cell of an index line: type and status
// for insights, status and priority for tasks.
func entryLabel(e retrieval.ScanEntry) string {
	if e.Kind == retrieval.KindTask {
		return fmt.Sprintf("task %s/%s", e.Status, e.Priority)
	}
	return fmt.Sprintf("%s %s", e.Type, e.Status)
}
