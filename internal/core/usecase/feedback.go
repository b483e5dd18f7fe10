package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"datanav/internal/core/domain"
	"datanav/internal/core/ports"
)

type FeedbackRecorder struct {
	store ports.FeedbackStore
	ttl   time.Duration
	now   func() time.Time
}

func NewFeedbackRecorder(store ports.FeedbackStore, ttl time.Duration) *FeedbackRecorder {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &FeedbackRecorder{store: store, ttl: ttl, now: time.Now}
}

func (f *FeedbackRecorder) SaveFeedback(ctx context.Context, fb domain.Feedback) error {
	if fb.AnswerID == "" {
		return domain.WrapError(domain.ErrInvalidQuery, "save feedback", errors.New("missing answer_id"))
	}
	if fb.Rating != -1 && fb.Rating != 1 {
		return domain.WrapError(domain.ErrInvalidQuery, "save feedback",
			fmt.Errorf("rating %d not in {-1, 1}", fb.Rating))
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = f.now().UTC()
	}
	if err := f.store.SaveFeedback(ctx, fb, f.ttl); err != nil {
		return fmt.Errorf("save feedback: %w", err)
	}
	return nil
}
