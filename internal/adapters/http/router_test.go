package httpadapter

import (
	"context"
	"net/http"
	"testing"
	"time"

	"datanav/internal/core/domain"
	"datanav/internal/observability/metrics"
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

type stubStatsService struct {
	stats domain.StoreStats
	err   error
}

func (s *stubStatsService) Stats(context.Context) (domain.StoreStats, error) {
	if s.err != nil {
		return domain.StoreStats{}, s.err
	}
	return s.stats, nil
}

type stubFeedbackService struct {
	err error
	got domain.Feedback
}

func (s *stubFeedbackService) SaveFeedback(_ context.Context, fb domain.Feedback) error {
	s.got = fb
	return s.err
}

type testBackends struct {
	answers     *stubAnswerService
	simulations *stubSimulationService
	stats       *stubStatsService
	feedback    *stubFeedbackService
}

func newTestHandler(t *testing.T, b testBackends, opts Options) http.Handler {
	t.Helper()

	if b.answers == nil {
		b.answers = &stubAnswerService{record: sampleAnswerRecord()}
	}
	if b.simulations == nil {
		b.simulations = &stubSimulationService{result: sampleSimulationResult()}
	}
	if b.stats == nil {
		b.stats = &stubStatsService{stats: domain.StoreStats{
			VectorDocuments:  10,
			KeywordDocuments: 20,
			GraphEntities:    30,
		}}
	}
	if b.feedback == nil {
		b.feedback = &stubFeedbackService{}
	}

	rt, err := NewRouter(b.answers, b.simulations, b.stats, b.feedback, metrics.NewHTTPServerMetrics("test"), opts)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return rt.Handler()
}

func sampleAnswerRecord() *domain.AnswerRecord {
	return &domain.AnswerRecord{
		ID:         "ans-1",
		QueryID:    "q-1",
		QueryText:  "How did transit ridership change?",
		ModeUsed:   domain.ModeAnalyst,
		AnswerText: "Ridership fell 12% between 2020 and 2023 [1].",
		Citations: []domain.Citation{
			{Span: domain.Span{Start: 0, End: 44}, SourceID: "transit-2023#4", Confidence: 0.82},
		},
		Provider:      "ollama",
		ModelID:       "llama3.1:8b",
		LatencyMillis: 840,
		CreatedAt:     time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
	}
}

func sampleSimulationResult() *domain.SimulationResult {
	return &domain.SimulationResult{
		Narrative: "Enrollment declines about 2% per year under current migration [1].",
		Projections: []domain.ProjectionPoint{
			{Period: "2025-01", Value: 48200, Low: 46100, High: 50300},
		},
		Assumptions:   []string{"migration rate stays at the 2020-2023 average"},
		Provider:      "ollama",
		LatencyMillis: 1200,
	}
}
