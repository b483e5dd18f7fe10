package ports

import (
	"context"

	"datanav/internal/core/domain"
)

// AnswerService is the inbound contract for one-shot question answering.
type AnswerService interface {
	Answer(ctx context.Context, q domain.Query) (*domain.AnswerRecord, error)
}

// SimulationService is the inbound contract for scenario projections.
type SimulationService interface {
	Simulate(ctx context.Context, req domain.SimulationRequest) (*domain.SimulationResult, error)
}

// StatsService reports corpus counts from the retrieval stores.
type StatsService interface {
	Stats(ctx context.Context) (domain.StoreStats, error)
}

// FeedbackService records user verdicts on answers.
type FeedbackService interface {
	SaveFeedback(ctx context.Context, fb domain.Feedback) error
}
