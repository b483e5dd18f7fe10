package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"datanav/internal/core/domain"
	"datanav/internal/core/ports"
)

const (
	generateBackoffInitial = 200 * time.Millisecond
	generateBackoffCap     = 2 * time.Second
)

// Orchestrator walks the provider chain in ascending priority order, one
// provider at a time. Retries stay inside a provider before the chain moves
// on; the chain itself never runs in parallel and never loops back.
type Orchestrator struct {
	chain     []domain.ProviderConfig
	providers map[string]ports.ModelProvider
	logger    *slog.Logger
	sleep     func(context.Context, time.Duration) error
}

func NewOrchestrator(chain []domain.ProviderConfig, providers map[string]ports.ModelProvider, logger *slog.Logger) *Orchestrator {
	ordered := make([]domain.ProviderConfig, len(chain))
	copy(ordered, chain)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})
	return &Orchestrator{
		chain:     ordered,
		providers: providers,
		logger:    logger,
		sleep:     sleepContext,
	}
}

func (o *Orchestrator) Generate(ctx context.Context, prompt string) (*domain.GenerationResult, error) {
	if len(o.chain) == 0 {
		return nil, domain.WrapError(domain.ErrAllProvidersUnavailable, "generate",
			errors.New("empty provider chain"))
	}

	start := time.Now()
	attempts := 0
	var lastErr error

	for _, cfg := range o.chain {
		provider, ok := o.providers[cfg.Name]
		if !ok {
			o.logger.Warn("provider not wired, skipping", "provider", cfg.Name)
			continue
		}

		backoff := generateBackoffInitial
		for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			attempts++

			text, err := o.callOnce(ctx, provider, cfg, prompt)
			if err == nil {
				o.logger.Info("generation succeeded",
					"provider", cfg.Name, "model", cfg.ModelID, "attempts", attempts)
				return &domain.GenerationResult{
					Provider: cfg.Name,
					ModelID:  cfg.ModelID,
					RawText:  text,
					Attempts: attempts,
					Duration: time.Since(start),
				}, nil
			}
			lastErr = err

			outcome := "error"
			if domain.IsKind(err, domain.ErrProviderTimeout) {
				outcome = "timeout"
			}
			o.logger.Warn("generation attempt failed",
				"provider", cfg.Name, "attempt", attempt+1, "outcome", outcome, "error", err)

			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if !retryableGeneration(err) || attempt == cfg.MaxRetries {
				break
			}
			if err := o.sleep(ctx, backoff); err != nil {
				return nil, err
			}
			backoff *= 2
			if backoff > generateBackoffCap {
				backoff = generateBackoffCap
			}
		}
	}

	if lastErr == nil {
		// Every chain entry named a provider that was never wired.
		lastErr = errors.New("no provider in the chain is wired")
	}
	return nil, domain.WrapError(domain.ErrAllProvidersUnavailable, "generate", lastErr)
}

// callOnce runs a single attempt under the provider's own timeout.
// Streaming providers are drained to completion so callers never see
// partial text.
func (o *Orchestrator) callOnce(ctx context.Context, provider ports.ModelProvider, cfg domain.ProviderConfig, prompt string) (string, error) {
	cctx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	var text string
	var err error
	if streamer, ok := provider.(ports.StreamingProvider); ok {
		text, err = drainStream(cctx, streamer, prompt, cfg.ModelID)
	} else {
		text, err = provider.Complete(cctx, prompt, cfg.ModelID)
	}
	if err != nil {
		if parentErr := ctx.Err(); parentErr != nil {
			return "", parentErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", domain.WrapError(domain.ErrProviderTimeout, provider.Name(), err)
		}
		return "", fmt.Errorf("%s: %w", provider.Name(), err)
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.WrapError(domain.ErrProviderRejected, provider.Name(),
			errors.New("empty completion"))
	}
	return text, nil
}

func drainStream(ctx context.Context, provider ports.StreamingProvider, prompt, modelID string) (string, error) {
	stream, err := provider.CompleteStream(ctx, prompt, modelID)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for chunk := range stream {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		b.WriteString(chunk.Content)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return b.String(), nil
}

func retryableGeneration(err error) bool {
	return domain.IsKind(err, domain.ErrProviderTimeout) ||
		domain.IsKind(err, domain.ErrTemporary)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
