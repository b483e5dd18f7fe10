package mcpadapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"datanav/internal/core/domain"
)

type stubAnswerService struct {
	record   *domain.AnswerRecord
	err      error
	gotQuery domain.Query
}

func (s *stubAnswerService) Answer(_ context.Context, q domain.Query) (*domain.AnswerRecord, error) {
	s.gotQuery = q
	if s.err != nil {
		return nil, s.err
	}
	return s.record, nil
}

type stubSimulationService struct {
	result *domain.SimulationResult
	err    error
	gotReq domain.SimulationRequest
}

func (s *stubSimulationService) Simulate(_ context.Context, req domain.SimulationRequest) (*domain.SimulationResult, error) {
	s.gotReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func textContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) != 1 {
		t.Fatalf("expected one content block, got %d", len(result.Content))
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return tc.Text
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAskDatasetsRendersSourceList(t *testing.T) {
	answers := &stubAnswerService{record: &domain.AnswerRecord{
		AnswerText: "Ridership fell 12% between 2020 and 2023 [1][2].",
		Citations: []domain.Citation{
			{Span: domain.Span{Start: 0, End: 20}, SourceID: "transit-2023#4", Confidence: 0.8},
			{Span: domain.Span{Start: 21, End: 47}, SourceID: "transit-2023#9", Confidence: 0.7},
			{Span: domain.Span{Start: 21, End: 47}, SourceID: "transit-2023#4", Confidence: 0.6},
		},
	}}
	srv := NewServer(answers, &stubSimulationService{}, "test", quietLogger())

	req := callRequest("ask_datasets", map[string]any{
		"question":  "How did transit ridership change?",
		"mode":      "analyst",
		"dataset":   "transit",
		"year_from": float64(2020),
	})
	result, err := srv.handleAskDatasets(context.Background(), req)
	if err != nil {
		t.Fatalf("handle ask_datasets: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got tool error: %s", textContent(t, result))
	}

	text := textContent(t, result)
	if !strings.Contains(text, "Ridership fell 12%") {
		t.Fatalf("expected answer text, got: %s", text)
	}
	if !strings.Contains(text, "Sources:") {
		t.Fatalf("expected source list, got: %s", text)
	}
	if !strings.Contains(text, "1. transit-2023#4") || !strings.Contains(text, "2. transit-2023#9") {
		t.Fatalf("expected deduplicated sources in order, got: %s", text)
	}
	if strings.Contains(text, "3. ") {
		t.Fatalf("expected two unique sources, got: %s", text)
	}

	if answers.gotQuery.ExplicitMode != domain.ModeAnalyst {
		t.Fatalf("expected analyst mode, got %q", answers.gotQuery.ExplicitMode)
	}
	if answers.gotQuery.Filters.Dataset != "transit" || answers.gotQuery.Filters.YearFrom != 2020 {
		t.Fatalf("unexpected filters: %+v", answers.gotQuery.Filters)
	}
}

func TestAskDatasetsMissingQuestionIsToolError(t *testing.T) {
	srv := NewServer(&stubAnswerService{}, &stubSimulationService{}, "test", quietLogger())

	result, err := srv.handleAskDatasets(context.Background(), callRequest("ask_datasets", map[string]any{}))
	if err != nil {
		t.Fatalf("handle ask_datasets: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected tool error for missing question")
	}
}

func TestAskDatasetsServiceErrorIsToolError(t *testing.T) {
	answers := &stubAnswerService{
		err: domain.WrapError(domain.ErrAllProvidersUnavailable, "generate", errors.New("2 providers failed")),
	}
	srv := NewServer(answers, &stubSimulationService{}, "test", quietLogger())

	req := callRequest("ask_datasets", map[string]any{"question": "anything"})
	result, err := srv.handleAskDatasets(context.Background(), req)
	if err != nil {
		t.Fatalf("handle ask_datasets: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected tool error when the service fails")
	}
	if !strings.Contains(textContent(t, result), "providers") {
		t.Fatalf("expected provider failure message, got: %s", textContent(t, result))
	}
}

func TestSimulateScenarioRendersProjectionTable(t *testing.T) {
	sims := &stubSimulationService{result: &domain.SimulationResult{
		Narrative: "Enrollment declines about 2% per year under current migration [1].",
		Projections: []domain.ProjectionPoint{
			{Period: "2025-01", Value: 48200, Low: 46100, High: 50300},
			{Period: "2025-02", Value: 48110, Low: 45900, High: 50280},
		},
		Assumptions:        []string{"migration rate stays at the 2020-2023 average"},
		UncertaintyFactors: []string{"school catchment boundaries may change"},
		Citations: []domain.Citation{
			{Span: domain.Span{Start: 0, End: 30}, SourceID: "enrollment-2023#1", Confidence: 0.9},
		},
	}}
	srv := NewServer(&stubAnswerService{}, sims, "test", quietLogger())

	req := callRequest("simulate_scenario", map[string]any{
		"scenario":       "school enrollment if current migration continues",
		"horizon_months": float64(24),
		"category":       "education",
	})
	result, err := srv.handleSimulateScenario(context.Background(), req)
	if err != nil {
		t.Fatalf("handle simulate_scenario: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got tool error: %s", textContent(t, result))
	}

	text := textContent(t, result)
	for _, want := range []string{"Projections:", "2025-01", "2025-02", "Assumptions:", "Uncertainty factors:", "enrollment-2023#1"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in output, got: %s", want, text)
		}
	}

	if sims.gotReq.HorizonMonths != 24 {
		t.Fatalf("expected horizon 24, got %d", sims.gotReq.HorizonMonths)
	}
	if sims.gotReq.Filters.Category != "education" {
		t.Fatalf("unexpected filters: %+v", sims.gotReq.Filters)
	}
}

func TestSimulateScenarioInvalidHorizonIsToolError(t *testing.T) {
	sims := &stubSimulationService{
		err: domain.WrapError(domain.ErrInvalidQuery, "validate scenario", errors.New("horizon 0 months outside 1..120")),
	}
	srv := NewServer(&stubAnswerService{}, sims, "test", quietLogger())

	req := callRequest("simulate_scenario", map[string]any{"scenario": "rents if construction stalls"})
	result, err := srv.handleSimulateScenario(context.Background(), req)
	if err != nil {
		t.Fatalf("handle simulate_scenario: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected tool error for invalid horizon")
	}
}
