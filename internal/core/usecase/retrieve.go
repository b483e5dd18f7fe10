package usecase

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"datanav/internal/core/domain"
	"datanav/internal/core/ports"
)

// StoreWeights carries the per-store merge weights of one mode. The three
// weights sum to 1.
type StoreWeights struct {
	Vector  float64
	Keyword float64
	Graph   float64
}

func (w StoreWeights) forStore(kind domain.StoreKind) float64 {
	switch kind {
	case domain.StoreVector:
		return w.Vector
	case domain.StoreKeyword:
		return w.Keyword
	case domain.StoreGraph:
		return w.Graph
	}
	return 0
}

type ModeWeights map[domain.Mode]StoreWeights

type RetrieverConfig struct {
	TopKPerStore   int
	AdapterTimeout time.Duration
	// TotalTimeout bounds the whole fan-out. A store that misses the window
	// is excluded like any other store failure.
	TotalTimeout time.Duration
	MaxGraphHops int
	Weights      ModeWeights
}

// Retriever fans a query out to the three stores, normalizes each store's
// scores, and merges the batches into one deterministic ranking. Store
// failures exclude that store only; the query fails when nothing is left.
type Retriever struct {
	embedder ports.Embedder
	vector   ports.VectorStore
	keyword  ports.KeywordStore
	graph    ports.GraphStore
	cfg      RetrieverConfig
	logger   *slog.Logger
}

func NewRetriever(
	embedder ports.Embedder,
	vector ports.VectorStore,
	keyword ports.KeywordStore,
	graph ports.GraphStore,
	cfg RetrieverConfig,
	logger *slog.Logger,
) *Retriever {
	if cfg.TopKPerStore <= 0 {
		cfg.TopKPerStore = 8
	}
	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = 5 * time.Second
	}
	if cfg.TotalTimeout <= 0 {
		cfg.TotalTimeout = 10 * time.Second
	}
	if cfg.MaxGraphHops <= 0 {
		cfg.MaxGraphHops = 2
	}
	return &Retriever{
		embedder: embedder,
		vector:   vector,
		keyword:  keyword,
		graph:    graph,
		cfg:      cfg,
		logger:   logger,
	}
}

type storeResponse struct {
	kind  domain.StoreKind
	items []domain.RetrievalItem
	err   error
}

func (r *Retriever) Retrieve(ctx context.Context, q domain.Query, mode domain.Mode) (*domain.MergedResult, error) {
	weights, ok := r.cfg.Weights[mode]
	if !ok {
		weights = r.cfg.Weights[domain.ModeCitizen]
	}

	rctx, cancel := context.WithTimeout(ctx, r.cfg.TotalTimeout)
	defer cancel()

	var vecResp, keyResp, graResp storeResponse
	g, gctx := errgroup.WithContext(rctx)
	g.Go(func() error {
		vecResp = r.searchVector(gctx, q)
		return nil
	})
	g.Go(func() error {
		keyResp = r.searchKeyword(gctx, q)
		return nil
	})
	g.Go(func() error {
		graResp = r.searchGraph(gctx, q)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	excluded := make([]domain.StoreKind, 0, 3)
	hits := make(map[domain.StoreKind]int, 3)
	batches := make([]storeResponse, 0, 3)
	for _, resp := range []storeResponse{vecResp, keyResp, graResp} {
		if resp.err != nil {
			r.logger.Warn("store excluded from merge",
				"store", resp.kind, "query_id", q.ID, "error", resp.err)
			excluded = append(excluded, resp.kind)
			continue
		}
		hits[resp.kind] = len(resp.items)
		batches = append(batches, resp)
	}
	if len(batches) == 0 {
		return nil, domain.WrapError(domain.ErrNoRetrievalAvailable, "retrieve",
			errors.Join(vecResp.err, keyResp.err, graResp.err))
	}

	items := dedupeSnippets(mergeWeighted(batches, weights))

	return &domain.MergedResult{
		Items:    items,
		Partial:  len(excluded) > 0,
		Excluded: excluded,
		Hits:     hits,
	}, nil
}

func (r *Retriever) searchVector(ctx context.Context, q domain.Query) storeResponse {
	resp := storeResponse{kind: domain.StoreVector}
	cctx, cancel := context.WithTimeout(ctx, r.cfg.AdapterTimeout)
	defer cancel()

	vector, err := r.embedder.EmbedQuery(cctx, q.Text)
	if err != nil {
		resp.err = classifyStoreError("embed query", err)
		return resp
	}
	resp.items, resp.err = r.vector.SearchVector(cctx, vector, r.cfg.TopKPerStore, q.Filters)
	if resp.err != nil {
		resp.err = classifyStoreError("search vector store", resp.err)
	}
	return resp
}

func (r *Retriever) searchKeyword(ctx context.Context, q domain.Query) storeResponse {
	resp := storeResponse{kind: domain.StoreKeyword}
	cctx, cancel := context.WithTimeout(ctx, r.cfg.AdapterTimeout)
	defer cancel()

	resp.items, resp.err = r.keyword.SearchKeyword(cctx, q.Text, r.cfg.TopKPerStore, q.Filters)
	if resp.err != nil {
		resp.err = classifyStoreError("search keyword store", resp.err)
	}
	return resp
}

func (r *Retriever) searchGraph(ctx context.Context, q domain.Query) storeResponse {
	resp := storeResponse{kind: domain.StoreGraph}
	entities := extractEntityTerms(q.Text)
	if len(entities) == 0 {
		// Nothing to seed a traversal with; the graph leg contributes
		// zero hits without counting as a failure.
		return resp
	}
	cctx, cancel := context.WithTimeout(ctx, r.cfg.AdapterTimeout)
	defer cancel()

	resp.items, resp.err = r.graph.Traverse(cctx, entities, r.cfg.MaxGraphHops, q.Filters)
	if resp.err != nil {
		resp.err = classifyStoreError("traverse graph store", resp.err)
	}
	return resp
}

func classifyStoreError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrRetrievalTimeout, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

type mergedCandidate struct {
	item     domain.RetrievalItem
	score    float64
	priority int
}

// mergeWeighted normalizes each batch to [0,1], applies the mode weights and
// sums the contributions per SourceID. Ordering is total: score desc, then
// store priority, then SourceID.
func mergeWeighted(batches []storeResponse, weights StoreWeights) []domain.RetrievalItem {
	acc := make(map[string]mergedCandidate)
	for _, batch := range batches {
		weight := weights.forStore(batch.kind)
		normalized := normalizeScores(batch.items)
		for i, item := range batch.items {
			candidate, ok := acc[item.SourceID]
			if !ok {
				candidate = mergedCandidate{item: item, priority: batch.kind.Priority()}
			}
			candidate.item = preferRicherItem(candidate.item, item)
			candidate.score += weight * normalized[i]
			if p := batch.kind.Priority(); p < candidate.priority {
				candidate.priority = p
				candidate.item.Store = batch.kind
			}
			acc[item.SourceID] = candidate
		}
	}

	candidates := make([]mergedCandidate, 0, len(acc))
	for _, c := range acc {
		candidates = append(candidates, c)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority < candidates[j].priority
		}
		return candidates[i].item.SourceID < candidates[j].item.SourceID
	})

	out := make([]domain.RetrievalItem, 0, len(candidates))
	for _, c := range candidates {
		item := c.item
		item.Score = c.score
		out = append(out, item)
	}
	return out
}

func normalizeScores(items []domain.RetrievalItem) []float64 {
	if len(items) == 0 {
		return nil
	}
	minScore := items[0].Score
	maxScore := items[0].Score
	for _, item := range items[1:] {
		if item.Score < minScore {
			minScore = item.Score
		}
		if item.Score > maxScore {
			maxScore = item.Score
		}
	}

	rangeScore := maxScore - minScore
	out := make([]float64, len(items))
	for i, item := range items {
		if rangeScore <= 0 {
			// Degenerate batch: every hit carries the same weight.
			out[i] = 1
			continue
		}
		out[i] = (item.Score - minScore) / rangeScore
	}
	return out
}

func preferRicherItem(current, candidate domain.RetrievalItem) domain.RetrievalItem {
	if current.SourceID == "" && current.Snippet == "" {
		return candidate
	}
	if current.Snippet == "" && candidate.Snippet != "" {
		current.Snippet = candidate.Snippet
	}
	if current.Title == "" && candidate.Title != "" {
		current.Title = candidate.Title
	}
	if current.Dataset == "" && candidate.Dataset != "" {
		current.Dataset = candidate.Dataset
	}
	if len(current.Metadata) == 0 && len(candidate.Metadata) > 0 {
		current.Metadata = candidate.Metadata
	}
	return current
}

// dedupeSnippets drops lower-ranked items whose snippet text collapses to
// the same normalized token stream as an earlier one.
func dedupeSnippets(items []domain.RetrievalItem) []domain.RetrievalItem {
	if len(items) < 2 {
		return items
	}
	seen := make(map[uint64]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		tokens := splitAlphaNumLower(item.Snippet)
		if len(tokens) == 0 {
			// Graph hits may carry no text at all; an empty stream says
			// nothing about duplication.
			out = append(out, item)
			continue
		}
		h := fnv.New64a()
		h.Write([]byte(strings.Join(tokens, " ")))
		sum := h.Sum64()
		if _, dup := seen[sum]; dup {
			continue
		}
		seen[sum] = struct{}{}
		out = append(out, item)
	}
	return out
}
