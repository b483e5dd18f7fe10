package usecase

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"datanav/internal/core/domain"
	"datanav/internal/core/ports"
)

// StatsCollector reports corpus counts per store. An unreachable store
// reports -1 instead of failing the whole call.
type StatsCollector struct {
	vector  ports.VectorStore
	keyword ports.KeywordStore
	graph   ports.GraphStore
	timeout time.Duration
	logger  *slog.Logger
}

func NewStatsCollector(vector ports.VectorStore, keyword ports.KeywordStore, graph ports.GraphStore, timeout time.Duration, logger *slog.Logger) *StatsCollector {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &StatsCollector{
		vector:  vector,
		keyword: keyword,
		graph:   graph,
		timeout: timeout,
		logger:  logger,
	}
}

func (s *StatsCollector) Stats(ctx context.Context) (domain.StoreStats, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stats := domain.StoreStats{VectorDocuments: -1, KeywordDocuments: -1, GraphEntities: -1}
	g, gctx := errgroup.WithContext(cctx)
	g.Go(func() error {
		if n, err := s.vector.CountDocuments(gctx); err == nil {
			stats.VectorDocuments = n
		} else {
			s.logger.Warn("vector count unavailable", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		if n, err := s.keyword.CountDocuments(gctx); err == nil {
			stats.KeywordDocuments = n
		} else {
			s.logger.Warn("keyword count unavailable", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		if n, err := s.graph.CountEntities(gctx); err == nil {
			stats.GraphEntities = n
		} else {
			s.logger.Warn("graph count unavailable", "error", err)
		}
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}
