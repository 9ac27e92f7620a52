package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/garitadev/garita/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store *storage.Store
}

// NewMCPServer creates an MCP server exposing the intake records to
// operator-side assistants over stdio.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"garita",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("garita gate intake records: submissions, answers, and the business-partner catalog."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_actors",
			mcp.WithDescription("Search the business-partner catalog by name."),
			mcp.WithString("query", mcp.Description("Name fragment to search for"), mcp.Required()),
			mcp.WithString("kind", mcp.Description("Optional kind filter: PROVEEDOR, TRANSPORTISTA or DESTINATARIO")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpSearchActors(deps),
	)

	s.AddTool(
		mcp.NewTool("get_submission",
			mcp.WithDescription("Fetch one intake submission with its recorded answers."),
			mcp.WithString("id", mcp.Description("Submission ID"), mcp.Required()),
		),
		mcpGetSubmission(deps),
	)

	s.AddTool(
		mcp.NewTool("list_recent_submissions",
			mcp.WithDescription("List the most recent intake submissions."),
			mcp.WithString("questionnaire", mcp.Description("Optional questionnaire ID filter")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpListRecentSubmissions(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"intake://recent",
			"Recent Submissions",
			mcp.WithResourceDescription("Last 10 intake submissions (header fields only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpSearchActors(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		kind := req.GetString("kind", "")
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > maxActorResults {
			limit = maxActorResults
		}

		actors, err := deps.Store.SearchActors(query, kind, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(actors) == 0 {
			return mcpText("[]"), nil
		}

		results := make([]actorResult, len(actors))
		for i, a := range actors {
			results[i] = actorResult{ID: a.ID, Name: a.Name, Kind: a.Kind}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetSubmission(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		sub, err := deps.Store.GetSubmission(id)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get submission: %v", err)), nil
		}
		answers, err := deps.Store.ListAnswers(id)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list answers: %v", err)), nil
		}

		detail := struct {
			Submission storage.Submission `json:"submission"`
			Answers    []storage.Answer   `json:"answers"`
		}{Submission: sub, Answers: answers}

		b, err := json.Marshal(detail)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal submission: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListRecentSubmissions(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		questionnaireID := req.GetString("questionnaire", "")
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		subs, err := deps.Store.ListSubmissions(questionnaireID, limit, 0)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list submissions: %v", err)), nil
		}
		if len(subs) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(subs)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal submissions: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		subs, err := deps.Store.ListSubmissions("", 10, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list recent submissions: %w", err)
		}

		type submissionSummary struct {
			ID              string `json:"id"`
			QuestionnaireID string `json:"questionnaire_id"`
			Phase           string `json:"phase"`
			Plate           string `json:"plate,omitempty"`
			Finalized       bool   `json:"finalized"`
			CreatedAt       string `json:"created_at"`
		}

		summaries := make([]submissionSummary, len(subs))
		for i, sub := range subs {
			summaries[i] = submissionSummary{
				ID:              sub.ID,
				QuestionnaireID: sub.QuestionnaireID,
				Phase:           sub.Phase,
				Plate:           sub.Plate,
				Finalized:       sub.Finalized,
				CreatedAt:       sub.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal submissions: %w", err)
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
