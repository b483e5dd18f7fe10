package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"datanav/internal/core/domain"
	"datanav/internal/core/ports"
)

const maxHorizonMonths = 120

type SimulatorConfig struct {
	TokenBudget   int
	BindThreshold float64
	// HorizonCap is the largest accepted projection horizon in months.
	HorizonCap int
}

// Simulator projects a hypothetical scenario: it retrieves grounding data in
// simulation mode, extracts a numeric series from the snippets, generates a
// narrative over a statistical summary of that series and extrapolates a
// deterministic projection with a widening uncertainty band.
type Simulator struct {
	retriever    *Retriever
	orchestrator *Orchestrator
	counter      ports.TokenCounter
	cfg          SimulatorConfig
	logger       *slog.Logger
	now          func() time.Time
}

func NewSimulator(
	retriever *Retriever,
	orchestrator *Orchestrator,
	counter ports.TokenCounter,
	cfg SimulatorConfig,
	logger *slog.Logger,
) *Simulator {
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = 4000
	}
	if cfg.BindThreshold <= 0 {
		cfg.BindThreshold = 0.18
	}
	if cfg.HorizonCap <= 0 {
		cfg.HorizonCap = maxHorizonMonths
	}
	return &Simulator{
		retriever:    retriever,
		orchestrator: orchestrator,
		counter:      counter,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *Simulator) Simulate(ctx context.Context, req domain.SimulationRequest) (*domain.SimulationResult, error) {
	start := s.now()
	req.Scenario = strings.TrimSpace(req.Scenario)
	if req.Scenario == "" {
		return nil, domain.WrapError(domain.ErrInvalidQuery, "validate scenario", errors.New("empty scenario"))
	}
	if req.HorizonMonths < 1 || req.HorizonMonths > s.cfg.HorizonCap {
		return nil, domain.WrapError(domain.ErrInvalidQuery, "validate scenario",
			fmt.Errorf("horizon %d months outside 1..%d", req.HorizonMonths, s.cfg.HorizonCap))
	}

	q := domain.Query{
		ID:           uuid.NewString(),
		Text:         req.Scenario,
		ExplicitMode: domain.ModeSimulation,
		Filters:      req.Filters,
		ReceivedAt:   start.UTC(),
	}
	merged, err := s.retriever.Retrieve(ctx, q, domain.ModeSimulation)
	if err != nil {
		return nil, err
	}

	result := &domain.SimulationResult{
		Projections:      []domain.ProjectionPoint{},
		Citations:        []domain.Citation{},
		UnsupportedSpans: []domain.Span{},
		PartialRetrieval: merged.Partial,
	}

	if len(merged.Items) == 0 {
		result.Narrative = noDataAnswer
		result.Assumptions = []string{"No grounding data was found for this scenario."}
		result.UncertaintyFactors = []string{"The answer is not backed by any retrieved dataset."}
		result.LatencyMillis = s.now().Sub(start).Milliseconds()
		return result, nil
	}

	window, err := AssembleContext(merged, s.cfg.TokenBudget, s.counter)
	if err != nil {
		return nil, err
	}

	series := extractSeries(window.Items)
	summary := summarizeSeries(series)

	gen, err := s.orchestrator.Generate(ctx, buildSimulationPrompt(req, summary, window))
	if err != nil {
		return nil, err
	}

	bound := BindCitations(gen.RawText, window, s.cfg.BindThreshold)
	if bound.Mismatches > 0 {
		s.logger.Warn("dropped fabricated citations",
			"scenario_query_id", q.ID, "count", bound.Mismatches,
			"error", domain.ErrCitationMismatch)
	}

	result.Narrative = bound.Text
	if bound.Citations != nil {
		result.Citations = bound.Citations
	}
	if bound.Unsupported != nil {
		result.UnsupportedSpans = bound.Unsupported
	}
	if projections := projectSeries(series, req.HorizonMonths, start); projections != nil {
		result.Projections = projections
	}
	result.Assumptions = simulationAssumptions(series, req)
	result.UncertaintyFactors = simulationUncertainty(series, merged.Partial)
	result.Provider = gen.Provider
	result.LatencyMillis = s.now().Sub(start).Milliseconds()
	return result, nil
}

type seriesPoint struct {
	year  int
	value float64
}

var yearValueRe = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b[^0-9\-]{0,24}(-?[\d,]+(?:\.\d+)?)`)

// extractSeries pulls year/value pairs out of the admitted snippets, in rank
// order. The first value seen for a year wins, so higher-ranked sources take
// precedence over lower-ranked repeats.
func extractSeries(items []domain.RetrievalItem) []seriesPoint {
	byYear := make(map[int]float64)
	for _, item := range items {
		for _, m := range yearValueRe.FindAllStringSubmatch(item.Snippet, -1) {
			year, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			value, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
			if err != nil {
				continue
			}
			if _, ok := byYear[year]; !ok {
				byYear[year] = value
			}
		}
	}

	out := make([]seriesPoint, 0, len(byYear))
	for year, value := range byYear {
		out = append(out, seriesPoint{year: year, value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].year < out[j].year })
	return out
}

func linearTrend(points []seriesPoint) (slope, intercept float64, ok bool) {
	if len(points) < 2 {
		return 0, 0, false
	}
	n := float64(len(points))
	var sumX, sumY, sumXY, sumXX float64
	for _, p := range points {
		x := float64(p.year)
		sumX += x
		sumY += p.value
		sumXY += x * p.value
		sumXX += x * x
	}
	den := n*sumXX - sumX*sumX
	if den == 0 {
		return 0, 0, false
	}
	slope = (n*sumXY - sumX*sumY) / den
	intercept = (sumY - slope*sumX) / n
	return slope, intercept, true
}

func summarizeSeries(points []seriesPoint) string {
	if len(points) == 0 {
		return "No numeric series could be extracted from the retrieved context."
	}
	minV := points[0].value
	maxV := points[0].value
	sum := 0.0
	for _, p := range points {
		if p.value < minV {
			minV = p.value
		}
		if p.value > maxV {
			maxV = p.value
		}
		sum += p.value
	}
	head := fmt.Sprintf("points=%d span=%d..%d min=%.3f max=%.3f mean=%.3f",
		len(points), points[0].year, points[len(points)-1].year,
		minV, maxV, sum/float64(len(points)))
	if slope, _, ok := linearTrend(points); ok {
		return fmt.Sprintf("%s trend_per_year=%.3f", head, slope)
	}
	return head
}

// projectSeries extrapolates the fitted trend from the last observed point,
// one step per month, with an uncertainty band that starts at 5% of the
// projected value and widens by 1.5 points per projected month.
func projectSeries(points []seriesPoint, horizonMonths int, from time.Time) []domain.ProjectionPoint {
	slope, _, ok := linearTrend(points)
	if !ok {
		return nil
	}
	last := points[len(points)-1]

	out := make([]domain.ProjectionPoint, 0, horizonMonths)
	band := 0.05
	for i := 1; i <= horizonMonths; i++ {
		value := last.value + slope*(float64(i)/12)
		spread := math.Abs(value) * band
		out = append(out, domain.ProjectionPoint{
			Period: from.AddDate(0, i, 0).Format("2006-01"),
			Value:  round3(value),
			Low:    round3(value - spread),
			High:   round3(value + spread),
		})
		band += 0.015
	}
	return out
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func simulationAssumptions(points []seriesPoint, req domain.SimulationRequest) []string {
	out := []string{
		"Retrieved snippets are treated as accurate and current.",
	}
	if len(points) >= 2 {
		out = append(out, fmt.Sprintf(
			"The projection extrapolates a linear trend fitted to %d historical points.", len(points)))
	} else {
		out = append(out, "No usable historical series was found; the narrative carries the reasoning instead of a projection.")
	}
	if !req.Filters.IsZero() {
		out = append(out, "Only data matching the supplied filters was considered.")
	}
	return out
}

func simulationUncertainty(points []seriesPoint, partial bool) []string {
	out := []string{
		"External shocks and policy changes are not modeled.",
	}
	if len(points) > 0 && len(points) < 5 {
		out = append(out, "The historical series is short; trend confidence is low.")
	}
	if len(points) >= 2 {
		out = append(out, "The uncertainty band widens by 1.5 percentage points per projected month.")
	}
	if partial {
		out = append(out, "One or more retrieval stores were unavailable; the grounding context may be incomplete.")
	}
	return out
}
