package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/diarisk/diarisk/internal/assessment"
	"github.com/diarisk/diarisk/internal/labs"
)

const recentHistoryURI = "diarisk://history/recent"

// RiskScorer is the deterministic scoring engine.
type RiskScorer interface {
	Score(labs assessment.LabValues, retinal *assessment.RetinalResult, cognitive *assessment.CognitiveResult) assessment.RiskScores
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Scorer RiskScorer
	Store  History
	// RecentLimit bounds the recent-history resource. Zero means 10.
	RecentLimit int
}

// NewMCPServer creates an MCP server exposing the risk scorer, the lab text
// parser and recent history. None of the tools call a model.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"diarisk",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("diarisk: deterministic diabetes complication risk scores and lab report parsing."),
		server.WithRecovery(),
	)

	scoreOpts := []mcp.ToolOption{
		mcp.WithDescription("Score dementia, cardiovascular, retinopathy, nephropathy and neuropathy risk from lab values. Omitted values count as unknown."),
	}
	for _, name := range labs.FieldNames() {
		scoreOpts = append(scoreOpts, mcp.WithNumber(name, mcp.Description(fmt.Sprintf("Lab value %s", name))))
	}
	scoreOpts = append(scoreOpts,
		mcp.WithString("retinal_grade", mcp.Description("Diabetic retinopathy grade"), mcp.Enum(assessment.Grades...)),
		mcp.WithNumber("cognitive_score", mcp.Description("Cognitive screening score, 0 to 5")),
	)
	s.AddTool(mcp.NewTool("score_risk", scoreOpts...), mcpScoreRisk(deps))

	s.AddTool(
		mcp.NewTool("parse_lab_text",
			mcp.WithDescription("Extract the recognised lab values from plain report text."),
			mcp.WithString("text", mcp.Description("Lab report text"), mcp.Required()),
		),
		mcpParseLabText(),
	)

	s.AddResource(
		mcp.NewResource(
			recentHistoryURI,
			"Recent Analyses",
			mcp.WithResourceDescription("Most recent stored analyses with their risk levels"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpScoreRisk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		// Lab argument names match the LabValues JSON fields.
		raw, err := json.Marshal(args)
		if err != nil {
			return mcpError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		var values assessment.LabValues
		if err := json.Unmarshal(raw, &values); err != nil {
			return mcpError(fmt.Sprintf("lab values must be numbers: %v", err)), nil
		}

		var retinal *assessment.RetinalResult
		if grade := req.GetString("retinal_grade", ""); grade != "" {
			retinal = &assessment.RetinalResult{Grade: grade}
		}

		var cognitive *assessment.CognitiveResult
		if _, ok := args["cognitive_score"]; ok {
			score := req.GetFloat("cognitive_score", 0)
			if score < 0 || score > 5 {
				return mcpError("cognitive_score must be between 0 and 5"), nil
			}
			cognitive = &assessment.CognitiveResult{Score: &score}
		}

		scores := deps.Scorer.Score(values, retinal, cognitive)
		b, err := json.Marshal(scores)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal scores: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpParseLabText() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		b, err := json.Marshal(labs.ExtractValues(text))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		limit := deps.RecentLimit
		if limit <= 0 {
			limit = 10
		}
		recs, err := deps.Store.RecentAnalyses(limit)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent analyses: %w", err)
		}

		type analysisSummary struct {
			ID        int64             `json:"id"`
			CreatedAt string            `json:"created_at"`
			RequestID string            `json:"request_id"`
			Levels    map[string]string `json:"levels"`
			Warnings  int               `json:"warnings"`
		}

		summaries := make([]analysisSummary, len(recs))
		for i, rec := range recs {
			rs := rec.Analysis.RiskScores
			summaries[i] = analysisSummary{
				ID:        rec.ID,
				CreatedAt: rec.CreatedAt.Format(time.RFC3339),
				RequestID: rec.Analysis.RequestID,
				Levels: map[string]string{
					"dementia":       rs.Dementia.Level,
					"cardiovascular": rs.Cardiovascular.Level,
					"retinopathy":    rs.Retinopathy.Level,
					"nephropathy":    rs.Nephropathy.Level,
					"neuropathy":     rs.Neuropathy.Level,
				},
				Warnings: len(rec.Analysis.Warnings),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal analyses: %w", err)
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
