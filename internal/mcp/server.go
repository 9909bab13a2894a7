// Package mcp exposes the matching pipeline as Model Context Protocol tools
// served over stdio.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/clinical-trial-matcher/internal/domain"
	"github.com/clinical-trial-matcher/internal/service"
)

// Tool names
const (
	ToolImportRecords  = "import_records"
	ToolProfilePatient = "profile_patient"
	ToolMatchTrials    = "match_trials"
	ToolReferralLetter = "referral_letter"
)

// Server wraps an MCP SDK server exposing the matching tools.
type Server struct {
	mcpServer *mcp.Server
	tools     *toolHandlers
	logger    *logrus.Logger
}

// NewServer creates the MCP server and registers every tool.
func NewServer(config domain.MCPConfig, matcher *service.MatchService, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	name := config.ServerName
	if name == "" {
		name = "clinical-trial-matcher"
	}
	version := config.ServerVersion
	if version == "" {
		version = "1.0.0"
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		tools:     &toolHandlers{matcher: matcher, logger: logger},
		logger:    logger,
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolImportRecords,
		Description: "Parse comma-separated patient records and return a normalized profile with fit score for each row",
	}, s.tools.importRecords)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolProfilePatient,
		Description: "Normalize one patient record, extract clinical metrics and compute the trial fit score",
	}, s.tools.profilePatient)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolMatchTrials,
		Description: "Search ClinicalTrials.gov for recruiting trials relevant to a patient record and rank them",
	}, s.tools.matchTrials)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolReferralLetter,
		Description: "Draft a referral letter for a patient and a selected trial, as markdown or HTML",
	}, s.tools.referralLetter)

	s.logger.WithField("tool_count", 4).Info("Registered MCP tools")
}

// Run serves MCP over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting MCP server on stdio")
	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}
