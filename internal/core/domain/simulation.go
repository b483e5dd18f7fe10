package domain

type SimulationRequest struct {
	Scenario      string
	HorizonMonths int
	Filters       Filters
}

type ProjectionPoint struct {
	Period string  `json:"period"`
	Value  float64 `json:"value"`
	Low    float64 `json:"low"`
	High   float64 `json:"high"`
}

type SimulationResult struct {
	Narrative          string            `json:"narrative"`
	Projections        []ProjectionPoint `json:"projections"`
	Assumptions        []string          `json:"assumptions"`
	UncertaintyFactors []string          `json:"uncertainty_factors"`
	Citations          []Citation        `json:"citations"`
	UnsupportedSpans   []Span            `json:"unsupported"`
	Provider           string            `json:"provider_used"`
	PartialRetrieval   bool              `json:"partial_retrieval"`
	LatencyMillis      int64             `json:"latency_ms"`
}
