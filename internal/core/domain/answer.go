package domain

import "time"

// ContextWindow holds the retrieval items admitted under the token budget,
// in rank order. Items are admitted whole or skipped, never truncated.
type ContextWindow struct {
	Items       []RetrievalItem
	TokenBudget int
	TokensUsed  int
	Dropped     int
}

type GenerationResult struct {
	Provider string
	ModelID  string
	RawText  string
	Attempts int
	Duration time.Duration
}

type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Citation binds a claim span of the answer text to a retrieved source.
// SourceID always names an item of the context window the answer was
// generated from.
type Citation struct {
	Span
	SourceID   string  `json:"source_id"`
	Confidence float64 `json:"confidence"`
}

type AnswerRecord struct {
	ID               string      `json:"answer_id"`
	QueryID          string      `json:"query_id"`
	QueryText        string      `json:"query_text"`
	ModeUsed         Mode        `json:"mode_used"`
	AnswerText       string      `json:"answer_text"`
	Citations        []Citation  `json:"citations"`
	UnsupportedSpans []Span      `json:"unsupported"`
	Provider         string      `json:"provider_used"`
	ModelID          string      `json:"model_id"`
	PartialRetrieval bool        `json:"partial_retrieval"`
	ExcludedStores   []StoreKind `json:"excluded_stores,omitempty"`
	CacheHit         bool        `json:"cache_hit"`
	LatencyMillis    int64       `json:"latency_ms"`
	CreatedAt        time.Time   `json:"created_at"`
}

// AnswerEvent is the analytics record published after every completed answer.
type AnswerEvent struct {
	// EventID identifies one serving. Cache hits reuse the cached
	// AnswerID, so the answer id alone cannot key the analytics log.
	EventID          string    `json:"event_id"`
	QueryID          string    `json:"query_id"`
	AnswerID         string    `json:"answer_id"`
	Mode             Mode      `json:"mode"`
	Provider         string    `json:"provider"`
	CacheHit         bool      `json:"cache_hit"`
	PartialRetrieval bool      `json:"partial_retrieval"`
	LatencyMillis    int64     `json:"latency_ms"`
	CitationCount    int       `json:"citation_count"`
	CreatedAt        time.Time `json:"created_at"`
}

type Feedback struct {
	AnswerID  string    `json:"answer_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
