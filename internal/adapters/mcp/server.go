// Package mcpadapter exposes the answering core as MCP tools over stdio so
// agent hosts can query the datasets without going through the HTTP API.
package mcpadapter

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"datanav/internal/core/domain"
	"datanav/internal/core/ports"
)

type Server struct {
	answers     ports.AnswerService
	simulations ports.SimulationService
	logger      *slog.Logger
	mcp         *server.MCPServer
}

func NewServer(answers ports.AnswerService, simulations ports.SimulationService, version string, logger *slog.Logger) *Server {
	if version == "" {
		version = "dev"
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		answers:     answers,
		simulations: simulations,
		logger:      logger,
	}
	s.mcp = server.NewMCPServer(
		"datanav",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	askTool := mcp.NewTool("ask_datasets",
		mcp.WithDescription("Answer a natural language question about the public datasets, citing the underlying sources."),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer."),
		),
		mcp.WithString("mode",
			mcp.Description("Answer mode hint. Omit to let the service classify the question."),
			mcp.Enum("analyst", "researcher", "citizen", "simulation"),
		),
		mcp.WithString("dataset", mcp.Description("Restrict retrieval to one dataset slug.")),
		mcp.WithString("category", mcp.Description("Restrict retrieval to one category.")),
		mcp.WithString("source", mcp.Description("Restrict retrieval to one publishing source.")),
		mcp.WithNumber("year_from", mcp.Description("Earliest year to consider.")),
		mcp.WithNumber("year_to", mcp.Description("Latest year to consider.")),
	)
	s.mcp.AddTool(askTool, s.handleAskDatasets)

	simulateTool := mcp.NewTool("simulate_scenario",
		mcp.WithDescription("Project a what-if scenario from historical dataset series."),
		mcp.WithString("scenario",
			mcp.Required(),
			mcp.Description("The scenario to project, for example 'school enrollment if current migration continues'."),
		),
		mcp.WithNumber("horizon_months",
			mcp.Required(),
			mcp.Description("How many months ahead to project, 1 to 120."),
		),
		mcp.WithString("dataset", mcp.Description("Restrict retrieval to one dataset slug.")),
		mcp.WithString("category", mcp.Description("Restrict retrieval to one category.")),
		mcp.WithString("source", mcp.Description("Restrict retrieval to one publishing source.")),
		mcp.WithNumber("year_from", mcp.Description("Earliest year to consider.")),
		mcp.WithNumber("year_to", mcp.Description("Latest year to consider.")),
	)
	s.mcp.AddTool(simulateTool, s.handleSimulateScenario)
}

// Serve speaks the protocol on stdin/stdout until the context is canceled
// or the host closes the pipe. Protocol errors go to stderr so they never
// corrupt the stdio framing.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func (s *Server) handleAskDatasets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	record, err := s.answers.Answer(ctx, domain.Query{
		Text:         question,
		ExplicitMode: domain.Mode(request.GetString("mode", "")),
		Filters:      filtersFromRequest(request),
	})
	if err != nil {
		s.logger.Warn("ask_datasets failed", "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(renderAnswer(record)), nil
}

func (s *Server) handleSimulateScenario(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scenario, err := request.RequireString("scenario")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.simulations.Simulate(ctx, domain.SimulationRequest{
		Scenario:      scenario,
		HorizonMonths: request.GetInt("horizon_months", 0),
		Filters:       filtersFromRequest(request),
	})
	if err != nil {
		s.logger.Warn("simulate_scenario failed", "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(renderSimulation(result)), nil
}

func filtersFromRequest(request mcp.CallToolRequest) domain.Filters {
	return domain.Filters{
		Dataset:  request.GetString("dataset", ""),
		Category: request.GetString("category", ""),
		Source:   request.GetString("source", ""),
		YearFrom: request.GetInt("year_from", 0),
		YearTo:   request.GetInt("year_to", 0),
	}
}
