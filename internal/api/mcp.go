package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/outreach/internal/classify"
	"github.com/kalambet/outreach/internal/generation"
	"github.com/kalambet/outreach/internal/lead"
	"github.com/kalambet/outreach/internal/orchestrator"
	"github.com/kalambet/outreach/internal/profile"
	"github.com/kalambet/outreach/internal/storage"
)

// LeadReader loads leads for the MCP tools.
type LeadReader interface {
	GetLead(id string) (lead.Lead, error)
	UpdateLead(l lead.Lead) error
	GetCampaignJob(id string) (lead.CampaignJob, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store      LeadReader
	Profile    *profile.Manager // optional; supplies default campaign settings
	Scorer     Scorer
	Generator  Generator
	Classifier Classifier
	Campaigns  Campaigns
	Version    string
}

// NewMCPServer creates an MCP server with the outreach tools and the sender
// profile resource registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"outreach",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("outreach scores sales leads, writes personalized cold emails, classifies replies and reports campaign progress."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("score_lead",
			mcp.WithDescription("Score a stored lead from 0 to 1 and return the factors and recommendations."),
			mcp.WithString("lead_id", mcp.Description("ID of the lead to score"), mcp.Required()),
		),
		mcpScoreLead(deps),
	)

	s.AddTool(
		mcp.NewTool("generate_cold_email",
			mcp.WithDescription("Generate a personalized cold email for a stored lead."),
			mcp.WithString("lead_id", mcp.Description("ID of the lead"), mcp.Required()),
			mcp.WithString("value_proposition", mcp.Description("Override the profile value proposition")),
			mcp.WithString("approach", mcp.Description("Tone or approach, e.g. friendly")),
		),
		mcpGenerateColdEmail(deps),
	)

	s.AddTool(
		mcp.NewTool("classify_response",
			mcp.WithDescription("Classify a reply to an outreach email by category, sentiment and urgency."),
			mcp.WithString("text", mcp.Description("Reply text, plain or HTML"), mcp.Required()),
		),
		mcpClassifyResponse(deps),
	)

	s.AddTool(
		mcp.NewTool("campaign_status",
			mcp.WithDescription("Report progress of a campaign job."),
			mcp.WithString("job_id", mcp.Description("Campaign job ID"), mcp.Required()),
		),
		mcpCampaignStatus(deps),
	)

	if deps.Profile != nil {
		s.AddResource(
			mcp.NewResource(
				"outreach://profile",
				"Sender Profile",
				mcp.WithResourceDescription("Current sender profile as JSON"),
				mcp.WithMIMEType("application/json"),
			),
			mcpResourceProfile(deps),
		)
	}

	return s
}

func mcpLoadLead(deps MCPDeps, req mcp.CallToolRequest) (lead.Lead, *mcp.CallToolResult) {
	id, err := req.RequireString("lead_id")
	if err != nil {
		return lead.Lead{}, mcpError("lead_id is required")
	}
	l, err := deps.Store.GetLead(id)
	if errors.Is(err, storage.ErrNotFound) {
		return lead.Lead{}, mcpError(fmt.Sprintf("lead %s not found", id))
	}
	if err != nil {
		return lead.Lead{}, mcpError(fmt.Sprintf("failed to load lead: %v", err))
	}
	return l, nil
}

func mcpScoreLead(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		l, errResult := mcpLoadLead(deps, req)
		if errResult != nil {
			return errResult, nil
		}
		score := deps.Scorer.ScoreLead(ctx, l)
		l.SetScore(score.Score)
		if err := deps.Store.UpdateLead(l); err != nil {
			return mcpError(fmt.Sprintf("scored lead but failed to save: %v", err)), nil
		}
		return mcpJSON(score)
	}
}

func mcpGenerateColdEmail(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		l, errResult := mcpLoadLead(deps, req)
		if errResult != nil {
			return errResult, nil
		}
		settings := lead.CampaignSettings{
			ValueProposition: req.GetString("value_proposition", ""),
			Approach:         req.GetString("approach", ""),
		}
		if deps.Profile != nil {
			settings = settings.Merge(deps.Profile.CampaignSettings())
		}

		out, err := deps.Generator.GenerateColdEmail(ctx, l, settings, nil)
		if errors.Is(err, generation.ErrDailyQuotaExceeded) {
			return mcpError("daily generation quota exceeded; reset it with `outreach quota reset`"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("generation failed: %v", err)), nil
		}
		return mcpJSON(out.Email)
	}
}

func mcpClassifyResponse(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		text = classify.PlainText(text)
		if text == "" {
			return mcpError("text is empty"), nil
		}
		return mcpJSON(deps.Classifier.AnalyzeResponse(ctx, text))
	}
}

func mcpCampaignStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("job_id")
		if err != nil {
			return mcpError("job_id is required"), nil
		}
		job, err := deps.Campaigns.Status(id)
		if errors.Is(err, orchestrator.ErrJobNotFound) {
			job, err = deps.Store.GetCampaignJob(id)
		}
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("job %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get job: %v", err)), nil
		}
		return mcpJSON(job)
	}
}

func mcpResourceProfile(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		p, err := deps.Profile.GetProfile()
		if err != nil {
			return nil, fmt.Errorf("failed to get profile: %w", err)
		}

		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profile: %w", err)
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

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
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
