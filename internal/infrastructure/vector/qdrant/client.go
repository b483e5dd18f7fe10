package qdrant

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"datanav/internal/core/domain"
	"datanav/internal/infrastructure/resilience"
)

// Store queries one Qdrant collection over the REST API. The collection is
// populated by the ingestion pipeline elsewhere; this client only searches
// and counts.
type Store struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	HTTPTimeout        time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL, collection string) *Store {
	return NewWithOptions(baseURL, collection, Options{})
}

func NewWithOptions(baseURL, collection string, options Options) *Store {
	timeout := options.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Store{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

type searchResponse struct {
	Result []searchHit `json:"result"`
}

type searchHit struct {
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (s *Store) SearchVector(ctx context.Context, vector []float32, topK int, filters domain.Filters) ([]domain.RetrievalItem, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("qdrant search: empty query vector")
	}
	if topK <= 0 {
		topK = 8
	}

	reqBody := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if filter := buildFilter(filters); filter != nil {
		reqBody["filter"] = filter
	}

	var searchResp searchResponse
	path := fmt.Sprintf("/collections/%s/points/search", s.collection)
	err := s.execute(ctx, "qdrant.search", func(ctx context.Context) error {
		searchResp = searchResponse{}
		return s.postJSON(ctx, path, reqBody, &searchResp, "search")
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.RetrievalItem, 0, len(searchResp.Result))
	for _, hit := range searchResp.Result {
		item := domain.RetrievalItem{
			SourceID: stringPayload(hit.Payload, "source_id"),
			Dataset:  stringPayload(hit.Payload, "dataset"),
			Title:    stringPayload(hit.Payload, "title"),
			Snippet:  stringPayload(hit.Payload, "text"),
			Score:    hit.Score,
			Store:    domain.StoreVector,
			Metadata: metadataPayload(hit.Payload),
		}
		if item.SourceID == "" {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *Store) CountDocuments(ctx context.Context) (int64, error) {
	var countResp struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/count", s.collection)
	err := s.execute(ctx, "qdrant.count", func(ctx context.Context) error {
		return s.postJSON(ctx, path, map[string]any{"exact": false}, &countResp, "count")
	})
	if err != nil {
		return 0, err
	}
	return countResp.Result.Count, nil
}

func (s *Store) execute(ctx context.Context, operation string, call func(context.Context) error) error {
	var err error
	if s.executor != nil {
		err = s.executor.Execute(ctx, operation, call, classifyQdrantError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(operation, err)
}

func buildFilter(f domain.Filters) map[string]any {
	var must []map[string]any
	if f.Dataset != "" {
		must = append(must, matchClause("dataset", f.Dataset))
	}
	if f.Category != "" {
		must = append(must, matchClause("category", f.Category))
	}
	if f.Source != "" {
		must = append(must, matchClause("source", f.Source))
	}
	if f.YearFrom > 0 || f.YearTo > 0 {
		yearRange := map[string]any{}
		if f.YearFrom > 0 {
			yearRange["gte"] = f.YearFrom
		}
		if f.YearTo > 0 {
			yearRange["lte"] = f.YearTo
		}
		must = append(must, map[string]any{"key": "year", "range": yearRange})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

func matchClause(key, value string) map[string]any {
	return map[string]any{
		"key": key,
		"match": map[string]any{
			"value": value,
		},
	}
}

func stringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func metadataPayload(payload map[string]any) map[string]string {
	meta := make(map[string]string, 3)
	for _, key := range []string{"category", "source", "year"} {
		switch v := payload[key].(type) {
		case string:
			if v != "" {
				meta[key] = v
			}
		case float64:
			meta[key] = strconv.FormatInt(int64(v), 10)
		}
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
