package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/folio/internal/pipeline"
	"github.com/kalambet/folio/internal/storage"
)

// MCPDeps holds dependencies for the MCP server. Store is optional; without
// it recent_interactions reports an error.
type MCPDeps struct {
	Prompt  PromptSource
	Content ContentLoader
	CV      pipeline.CVExtractor
	Store   *storage.Store
}

// NewMCPServer creates an MCP server exposing the portfolio content, the
// synthesized prompt and the interaction log.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"folio",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("folio: portfolio content and the assistant context built from it."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_system_prompt",
			mcp.WithDescription("Return the system prompt the portfolio assistant currently answers with, plus how it was built."),
			mcp.WithBoolean("refresh", mcp.Description("Drop the cached prompt and rebuild it from the content service")),
		),
		mcpGetSystemPrompt(deps),
	)

	s.AddTool(
		mcp.NewTool("extract_cv",
			mcp.WithDescription("Extract plain text from a CV PDF. Defaults to the CV linked from the profile."),
			mcp.WithString("url", mcp.Description("Absolute URL of the PDF")),
		),
		mcpExtractCV(deps),
	)

	s.AddTool(
		mcp.NewTool("recent_interactions",
			mcp.WithDescription("List the most recent relayed chat exchanges."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpRecentInteractions(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"portfolio://content",
			"Portfolio Content",
			mcp.WithResourceDescription("Normalized profile, experiences, projects and contact methods as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceContent(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"portfolio://prompt",
			"Assistant System Prompt",
			mcp.WithResourceDescription("The synthesized system prompt"),
			mcp.WithMIMEType("text/markdown"),
		),
		mcpResourcePrompt(deps),
	)

	return s
}

func mcpGetSystemPrompt(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if req.GetBool("refresh", false) {
			deps.Prompt.Invalidate()
		}
		prompt, meta := deps.Prompt.SystemPrompt(ctx)

		b, err := json.Marshal(struct {
			Prompt string        `json:"prompt"`
			Meta   pipeline.Meta `json:"meta"`
		}{prompt, meta})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal prompt: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpExtractCV(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url := req.GetString("url", "")
		if url == "" {
			bundle := deps.Content.Load(ctx)
			if err := bundle.Err(); err != nil {
				return mcpError(fmt.Sprintf("loading profile: %v", err)), nil
			}
			if bundle.Profile.Value.CVURL == nil || *bundle.Profile.Value.CVURL == "" {
				return mcpError("url is required: the profile has no CV"), nil
			}
			url = *bundle.Profile.Value.CVURL
		}
		return mcpText(deps.CV.Extract(ctx, url)), nil
	}
}

func mcpRecentInteractions(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Store == nil {
			return mcpError("interaction log is not available"), nil
		}

		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		items, err := deps.Store.GetRecentInteractions(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("listing interactions: %v", err)), nil
		}

		type interactionSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Query     string `json:"query"`
			Status    int    `json:"status"`
			LatencyMs int64  `json:"latency_ms"`
		}
		summaries := make([]interactionSummary, len(items))
		for i, ix := range items {
			summaries[i] = interactionSummary{
				ID:        ix.ID,
				CreatedAt: ix.CreatedAt.Format(time.RFC3339),
				Query:     ix.UserQuery,
				Status:    ix.Status,
				LatencyMs: ix.LatencyMs,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal interactions: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceContent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		bundle := deps.Content.Load(ctx)
		if err := bundle.Err(); err != nil {
			return nil, fmt.Errorf("failed to load content: %w", err)
		}

		b, err := json.Marshal(newContentView(bundle))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal content: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourcePrompt(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		prompt, _ := deps.Prompt.SystemPrompt(ctx)
		if prompt == "" {
			return nil, errors.New("empty system prompt")
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "text/markdown",
				Text:     prompt,
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
