package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"datanav/internal/core/domain"
	"datanav/internal/core/ports"
)

type queryState string

const (
	stateReceived   queryState = "received"
	stateClassified queryState = "classified"
	stateRetrieving queryState = "retrieving"
	stateAssembling queryState = "assembling"
	stateGenerating queryState = "generating"
	stateBinding    queryState = "binding"
	stateComplete   queryState = "complete"
	stateFailed     queryState = "failed"
	stateCacheHit   queryState = "cache_hit"
)

const noDataAnswer = "The available datasets contain no material matching this question, so no grounded answer can be given."

type CoordinatorConfig struct {
	TokenBudget    int
	CacheTTL       time.Duration
	BindThreshold  float64
	PublishTimeout time.Duration
	MaxQueryChars  int
}

// Coordinator drives one query through classification, retrieval, context
// assembly, generation and citation binding. Identical queries are answered
// from cache, and concurrent identical queries compute once.
type Coordinator struct {
	retriever    *Retriever
	orchestrator *Orchestrator
	counter      ports.TokenCounter
	cache        ports.AnswerCache
	events       ports.EventPublisher
	cfg          CoordinatorConfig
	logger       *slog.Logger
	inflight     singleflight.Group
	now          func() time.Time
}

func NewCoordinator(
	retriever *Retriever,
	orchestrator *Orchestrator,
	counter ports.TokenCounter,
	cache ports.AnswerCache,
	events ports.EventPublisher,
	cfg CoordinatorConfig,
	logger *slog.Logger,
) *Coordinator {
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = 4000
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Minute
	}
	if cfg.BindThreshold <= 0 {
		cfg.BindThreshold = 0.18
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	if cfg.MaxQueryChars <= 0 {
		cfg.MaxQueryChars = 2000
	}
	return &Coordinator{
		retriever:    retriever,
		orchestrator: orchestrator,
		counter:      counter,
		cache:        cache,
		events:       events,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

func (c *Coordinator) Answer(ctx context.Context, q domain.Query) (*domain.AnswerRecord, error) {
	start := c.now()
	if err := validateQuery(&q, c.cfg.MaxQueryChars); err != nil {
		return nil, err
	}
	c.transition(q.ID, stateReceived, "")

	mode, scores := ClassifyMode(q)
	c.transition(q.ID, stateClassified, mode)
	c.logger.Debug("mode classified", "query_id", q.ID, "mode", string(mode),
		"citizen", scores[domain.ModeCitizen],
		"analyst", scores[domain.ModeAnalyst],
		"researcher", scores[domain.ModeResearcher])

	key := answerCacheKey(q.Text, mode, q.Filters)
	if cached, ok := c.lookupCache(ctx, key); ok {
		c.transition(q.ID, stateCacheHit, mode)
		record := *cached
		record.QueryID = q.ID
		record.CacheHit = true
		record.LatencyMillis = c.now().Sub(start).Milliseconds()
		c.publishEvent(&record)
		return &record, nil
	}

	v, err, _ := c.inflight.Do(key, func() (interface{}, error) {
		return c.compute(ctx, q, mode, key, start)
	})
	if err != nil {
		return nil, err
	}
	record := *v.(*domain.AnswerRecord)
	record.QueryID = q.ID
	return &record, nil
}

func (c *Coordinator) compute(ctx context.Context, q domain.Query, mode domain.Mode, key string, start time.Time) (*domain.AnswerRecord, error) {
	c.transition(q.ID, stateRetrieving, mode)
	merged, err := c.retriever.Retrieve(ctx, q, mode)
	if err != nil {
		return nil, c.fail(ctx, q.ID, err)
	}

	record := &domain.AnswerRecord{
		ID:               uuid.NewString(),
		QueryID:          q.ID,
		QueryText:        q.Text,
		ModeUsed:         mode,
		Citations:        []domain.Citation{},
		UnsupportedSpans: []domain.Span{},
		PartialRetrieval: merged.Partial,
		ExcludedStores:   merged.Excluded,
		CreatedAt:        c.now().UTC(),
	}

	if len(merged.Items) == 0 {
		record.AnswerText = noDataAnswer
		record.LatencyMillis = c.now().Sub(start).Milliseconds()
		c.finish(ctx, key, record)
		return record, nil
	}

	c.transition(q.ID, stateAssembling, mode)
	window, err := AssembleContext(merged, c.cfg.TokenBudget, c.counter)
	if err != nil {
		return nil, c.fail(ctx, q.ID, err)
	}

	c.transition(q.ID, stateGenerating, mode)
	gen, err := c.orchestrator.Generate(ctx, buildAnswerPrompt(mode, q.Text, window))
	if err != nil {
		return nil, c.fail(ctx, q.ID, err)
	}

	c.transition(q.ID, stateBinding, mode)
	bound := BindCitations(gen.RawText, window, c.cfg.BindThreshold)
	if bound.Mismatches > 0 {
		c.logger.Warn("dropped fabricated citations",
			"query_id", q.ID, "count", bound.Mismatches,
			"error", domain.ErrCitationMismatch)
	}

	record.AnswerText = bound.Text
	if bound.Citations != nil {
		record.Citations = bound.Citations
	}
	if bound.Unsupported != nil {
		record.UnsupportedSpans = bound.Unsupported
	}
	record.Provider = gen.Provider
	record.ModelID = gen.ModelID
	record.LatencyMillis = c.now().Sub(start).Milliseconds()

	c.finish(ctx, key, record)
	return record, nil
}

func (c *Coordinator) fail(ctx context.Context, queryID string, err error) error {
	c.transition(queryID, stateFailed, "")
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	c.logger.Error("query failed", "query_id", queryID, "error", err)
	return err
}

// finish completes the happy path. A cancelled caller writes nothing: no
// cache entry, no event.
func (c *Coordinator) finish(ctx context.Context, key string, record *domain.AnswerRecord) {
	if ctx.Err() != nil {
		return
	}
	c.transition(record.QueryID, stateComplete, record.ModeUsed)
	if c.cache != nil {
		if err := c.cache.Set(ctx, key, record, c.cfg.CacheTTL); err != nil {
			c.logger.Warn("answer cache write skipped",
				"error", domain.WrapError(domain.ErrCacheUnavailable, "cache set", err))
		}
	}
	c.publishEvent(record)
}

func (c *Coordinator) lookupCache(ctx context.Context, key string) (*domain.AnswerRecord, bool) {
	if c.cache == nil {
		return nil, false
	}
	record, err := c.cache.Get(ctx, key)
	if err != nil {
		if !domain.IsKind(err, domain.ErrNotFound) {
			c.logger.Warn("answer cache degraded to compute",
				"error", domain.WrapError(domain.ErrCacheUnavailable, "cache get", err))
		}
		return nil, false
	}
	return record, true
}

func (c *Coordinator) publishEvent(record *domain.AnswerRecord) {
	if c.events == nil {
		return
	}
	ev := domain.AnswerEvent{
		EventID:          uuid.NewString(),
		QueryID:          record.QueryID,
		AnswerID:         record.ID,
		Mode:             record.ModeUsed,
		Provider:         record.Provider,
		CacheHit:         record.CacheHit,
		PartialRetrieval: record.PartialRetrieval,
		LatencyMillis:    record.LatencyMillis,
		CitationCount:    len(record.Citations),
		CreatedAt:        c.now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PublishTimeout)
		defer cancel()
		if err := c.events.PublishAnswerCompleted(ctx, ev); err != nil {
			c.logger.Warn("answer event publish failed", "answer_id", ev.AnswerID, "error", err)
		}
	}()
}

func (c *Coordinator) transition(queryID string, state queryState, mode domain.Mode) {
	c.logger.Debug("query state", "query_id", queryID, "state", string(state), "mode", string(mode))
}

func validateQuery(q *domain.Query, maxChars int) error {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return domain.WrapError(domain.ErrInvalidQuery, "validate query", errors.New("empty text"))
	}
	if len(q.Text) > maxChars {
		return domain.WrapError(domain.ErrInvalidQuery, "validate query",
			fmt.Errorf("text exceeds %d characters", maxChars))
	}
	if q.ExplicitMode != "" {
		if _, ok := domain.ParseMode(string(q.ExplicitMode)); !ok {
			return domain.WrapError(domain.ErrInvalidQuery, "validate query",
				fmt.Errorf("unknown mode %q", q.ExplicitMode))
		}
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.ReceivedAt.IsZero() {
		q.ReceivedAt = time.Now().UTC()
	}
	return nil
}

// answerCacheKey hashes the normalized query identity: lowercased collapsed
// text, the effective mode and the filter fields in a fixed order. The cache
// store owns key namespacing.
func answerCacheKey(text string, mode domain.Mode, f domain.Filters) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	payload := fmt.Sprintf("%s|%s|%s|%s|%s|%d|%d",
		normalized, mode, f.Dataset, f.Category, f.Source, f.YearFrom, f.YearTo)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
