package usecase

import (
	"errors"
	"fmt"

	"datanav/internal/core/domain"
	"datanav/internal/core/ports"
)

// Rough cost of the per-item header line in the rendered context block.
const itemOverheadTokens = 12

// AssembleContext admits merged items in rank order until the token budget
// is spent. Items are admitted whole or skipped, never truncated, so a
// smaller item further down may still fit after a large one was dropped.
func AssembleContext(merged *domain.MergedResult, budget int, counter ports.TokenCounter) (*domain.ContextWindow, error) {
	if budget <= 0 {
		return nil, domain.WrapError(domain.ErrContextBudgetTooSmall, "assemble context",
			fmt.Errorf("token budget %d", budget))
	}
	if len(merged.Items) == 0 {
		return nil, domain.WrapError(domain.ErrNoRetrievalAvailable, "assemble context",
			errors.New("merged result carries no items"))
	}

	window := &domain.ContextWindow{TokenBudget: budget}
	remaining := budget
	for _, item := range merged.Items {
		cost := counter.Count(item.Snippet) + counter.Count(item.Title) + itemOverheadTokens
		if cost > remaining {
			window.Dropped++
			continue
		}
		window.Items = append(window.Items, item)
		window.TokensUsed += cost
		remaining -= cost
	}

	if len(window.Items) == 0 {
		return nil, domain.WrapError(domain.ErrContextBudgetTooSmall, "assemble context",
			fmt.Errorf("no retrieved item fits the %d token budget", budget))
	}
	return window, nil
}
