package ports

import (
	"context"
	"time"

	"datanav/internal/core/domain"
)

// Embedder builds a vector for query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore performs semantic search over the dataset index.
type VectorStore interface {
	SearchVector(ctx context.Context, queryVector []float32, topK int, filters domain.Filters) ([]domain.RetrievalItem, error)
	CountDocuments(ctx context.Context) (int64, error)
}

// KeywordStore performs full-text search over the dataset corpus.
type KeywordStore interface {
	SearchKeyword(ctx context.Context, query string, topK int, filters domain.Filters) ([]domain.RetrievalItem, error)
	CountDocuments(ctx context.Context) (int64, error)
}

// GraphStore walks the dataset knowledge graph around seed entities.
type GraphStore interface {
	Traverse(ctx context.Context, entities []string, maxHops int, filters domain.Filters) ([]domain.RetrievalItem, error)
	CountEntities(ctx context.Context) (int64, error)
}

// ModelProvider generates text for a fully rendered prompt.
type ModelProvider interface {
	Name() string
	Complete(ctx context.Context, prompt, modelID string) (string, error)
}

// StreamChunk is one partial generation delta. A terminal failure travels
// as the last chunk's Err; the channel closes after it.
type StreamChunk struct {
	Content string
	Err     error
}

// StreamingProvider is implemented by providers that emit partial output.
// Callers consume the channel to completion before using the text.
type StreamingProvider interface {
	CompleteStream(ctx context.Context, prompt, modelID string) (<-chan StreamChunk, error)
}

// AnswerCache stores completed answers keyed by normalized query identity.
// Get returns domain.ErrNotFound on a miss.
type AnswerCache interface {
	Get(ctx context.Context, key string) (*domain.AnswerRecord, error)
	Set(ctx context.Context, key string, record *domain.AnswerRecord, ttl time.Duration) error
}

// FeedbackStore persists user feedback on answers.
type FeedbackStore interface {
	SaveFeedback(ctx context.Context, fb domain.Feedback, ttl time.Duration) error
}

// EventPublisher emits answer analytics events.
type EventPublisher interface {
	PublishAnswerCompleted(ctx context.Context, ev domain.AnswerEvent) error
}

// EventConsumer delivers answer analytics events to a handler.
type EventConsumer interface {
	ConsumeAnswerEvents(ctx context.Context, handler func(context.Context, domain.AnswerEvent) error) error
}

// AnswerLogStore records answer events for reporting.
type AnswerLogStore interface {
	RecordAnswerEvent(ctx context.Context, ev domain.AnswerEvent) error
}

// TokenCounter measures text cost in model tokens.
type TokenCounter interface {
	Count(text string) int
}
