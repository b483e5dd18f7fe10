package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"datanav/internal/core/domain"
	"datanav/internal/core/ports"
)

type cacheFake struct {
	mu       sync.Mutex
	store    map[string]*domain.AnswerRecord
	getErr   error
	setErr   error
	setCalls int
}

func newCacheFake() *cacheFake {
	return &cacheFake{store: make(map[string]*domain.AnswerRecord)}
}

func (f *cacheFake) Get(_ context.Context, key string) (*domain.AnswerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	record, ok := f.store[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "cache get", errors.New("miss"))
	}
	clone := *record
	return &clone, nil
}

func (f *cacheFake) Set(_ context.Context, key string, record *domain.AnswerRecord, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	if f.setErr != nil {
		return f.setErr
	}
	clone := *record
	f.store[key] = &clone
	return nil
}

type publisherFake struct {
	ch chan domain.AnswerEvent
}

func (f *publisherFake) PublishAnswerCompleted(_ context.Context, ev domain.AnswerEvent) error {
	select {
	case f.ch <- ev:
	default:
	}
	return nil
}

func awaitEvent(t *testing.T, ch <-chan domain.AnswerEvent) domain.AnswerEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no answer event published")
		return domain.AnswerEvent{}
	}
}

type answerFixture struct {
	coordinator *Coordinator
	provider    *providerFake
	cache       *cacheFake
	events      *publisherFake
	vector      *vectorStoreFake
	keyword     *keywordStoreFake
}

func budgetItem() domain.RetrievalItem {
	return item("src-budget", 0.9, domain.StoreVector,
		"riverside county budget 2023 totals 4 billion dollars")
}

func newAnswerFixture(items ...domain.RetrievalItem) *answerFixture {
	f := &answerFixture{
		provider: &providerFake{name: "alpha",
			text: "The county budget totaled 4 billion dollars in 2023 [1]."},
		cache:   newCacheFake(),
		events:  &publisherFake{ch: make(chan domain.AnswerEvent, 8)},
		vector:  &vectorStoreFake{items: items},
		keyword: &keywordStoreFake{},
	}
	f.coordinator = f.build(f.provider)
	return f
}

func (f *answerFixture) build(provider ports.ModelProvider) *Coordinator {
	retriever := newTestRetriever(&retrieveEmbedderFake{}, f.vector, f.keyword, &graphStoreFake{})
	chain := []domain.ProviderConfig{
		{Name: provider.Name(), ModelID: "m-1", Priority: 1, Timeout: time.Second, MaxRetries: 1},
	}
	orchestrator := newTestOrchestrator(chain, map[string]ports.ModelProvider{provider.Name(): provider})
	return NewCoordinator(retriever, orchestrator, wordCounterFake{}, f.cache, f.events,
		CoordinatorConfig{TokenBudget: 400, PublishTimeout: time.Second}, testLogger())
}

func TestCoordinatorAnswerPipeline(t *testing.T) {
	f := newAnswerFixture(budgetItem())

	record, err := f.coordinator.Answer(context.Background(), domain.Query{Text: retrieveQueryText})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if record.AnswerText != "The county budget totaled 4 billion dollars in 2023." {
		t.Fatalf("marker not stripped from answer: %q", record.AnswerText)
	}
	if record.ModeUsed != domain.ModeAnalyst {
		t.Fatalf("quantitative question should classify analyst, got %s", record.ModeUsed)
	}
	if len(record.Citations) != 1 || record.Citations[0].SourceID != "src-budget" {
		t.Fatalf("citation binding failed: %+v", record.Citations)
	}
	if record.Provider != "alpha" || record.ModelID != "m-1" {
		t.Fatalf("provider attribution wrong: %s/%s", record.Provider, record.ModelID)
	}
	if record.CacheHit || record.PartialRetrieval {
		t.Fatalf("fresh full answer mislabeled: %+v", record)
	}
	if record.ID == "" || record.QueryID == "" {
		t.Fatalf("identifiers not assigned: %+v", record)
	}

	ev := awaitEvent(t, f.events.ch)
	if ev.AnswerID != record.ID || ev.CitationCount != 1 || ev.CacheHit {
		t.Fatalf("completion event wrong: %+v", ev)
	}
}

func TestCoordinatorSecondIdenticalQueryHitsCache(t *testing.T) {
	f := newAnswerFixture(budgetItem())
	ctx := context.Background()

	first, err := f.coordinator.Answer(ctx, domain.Query{Text: retrieveQueryText})
	if err != nil {
		t.Fatalf("first Answer() error = %v", err)
	}
	second, err := f.coordinator.Answer(ctx, domain.Query{Text: retrieveQueryText})
	if err != nil {
		t.Fatalf("second Answer() error = %v", err)
	}

	if f.provider.calls != 1 {
		t.Fatalf("cached answer recomputed, provider called %d times", f.provider.calls)
	}
	if !second.CacheHit {
		t.Fatalf("second answer not marked cache hit")
	}
	if second.AnswerText != first.AnswerText {
		t.Fatalf("cache returned different text: %q vs %q", second.AnswerText, first.AnswerText)
	}
	if second.QueryID == first.QueryID {
		t.Fatalf("each request keeps its own query id")
	}
	if f.cache.setCalls != 1 {
		t.Fatalf("cache hit must not rewrite the entry, sets=%d", f.cache.setCalls)
	}

	evFirst := awaitEvent(t, f.events.ch)
	evSecond := awaitEvent(t, f.events.ch)
	if evSecond.AnswerID != evFirst.AnswerID {
		t.Fatalf("cache hit must reference the cached answer: %q vs %q", evSecond.AnswerID, evFirst.AnswerID)
	}
	if evFirst.EventID == "" || evSecond.EventID == "" || evSecond.EventID == evFirst.EventID {
		t.Fatalf("each serving needs its own event id: %q vs %q", evFirst.EventID, evSecond.EventID)
	}
	// Publish order is not guaranteed across the two servings.
	if evFirst.CacheHit == evSecond.CacheHit {
		t.Fatalf("exactly one serving is a cache hit: %+v vs %+v", evFirst, evSecond)
	}
}

func TestCoordinatorCacheKeyNormalizesTextIdentity(t *testing.T) {
	f := newAnswerFixture(budgetItem())
	ctx := context.Background()

	if _, err := f.coordinator.Answer(ctx, domain.Query{Text: retrieveQueryText}); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	noisy := "  How   MUCH is the   Riverside County budget in 2023?  "
	record, err := f.coordinator.Answer(ctx, domain.Query{Text: noisy})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !record.CacheHit || f.provider.calls != 1 {
		t.Fatalf("case and spacing variants must share one cache entry, calls=%d", f.provider.calls)
	}
}

func TestCoordinatorModeChangesCacheIdentity(t *testing.T) {
	f := newAnswerFixture(budgetItem())
	ctx := context.Background()

	if _, err := f.coordinator.Answer(ctx, domain.Query{Text: retrieveQueryText}); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	record, err := f.coordinator.Answer(ctx, domain.Query{
		Text:         retrieveQueryText,
		ExplicitMode: domain.ModeResearcher,
	})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if record.CacheHit {
		t.Fatalf("different mode must not reuse the analyst entry")
	}
	if f.provider.calls != 2 {
		t.Fatalf("expected a second generation for the researcher mode, calls=%d", f.provider.calls)
	}
}

func TestCoordinatorDegradedCacheStillAnswers(t *testing.T) {
	f := newAnswerFixture(budgetItem())
	f.cache.getErr = errors.New("redis: connection refused")
	f.cache.setErr = errors.New("redis: connection refused")

	record, err := f.coordinator.Answer(context.Background(), domain.Query{Text: retrieveQueryText})
	if err != nil {
		t.Fatalf("cache outage must not fail the answer: %v", err)
	}
	if record.CacheHit {
		t.Fatalf("degraded cache cannot produce a hit")
	}
	if f.provider.calls != 1 {
		t.Fatalf("expected one compute, got %d", f.provider.calls)
	}
}

func TestCoordinatorNoRetrievalHitsProducesCannedAnswer(t *testing.T) {
	f := newAnswerFixture() // every store is empty but healthy

	record, err := f.coordinator.Answer(context.Background(), domain.Query{Text: retrieveQueryText})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if record.AnswerText != noDataAnswer {
		t.Fatalf("expected the no-data answer, got %q", record.AnswerText)
	}
	if f.provider.calls != 0 {
		t.Fatalf("no provider call allowed without retrieval context, got %d", f.provider.calls)
	}
	if len(record.Citations) != 0 {
		t.Fatalf("no-data answer cannot carry citations: %+v", record.Citations)
	}
	if f.cache.setCalls != 1 {
		t.Fatalf("no-data answers are cacheable, sets=%d", f.cache.setCalls)
	}
}

func TestCoordinatorRejectsInvalidQueries(t *testing.T) {
	f := newAnswerFixture(budgetItem())
	cases := map[string]domain.Query{
		"empty text":     {Text: "   "},
		"oversized text": {Text: strings.Repeat("q", 2001)},
		"unknown mode":   {Text: "valid question", ExplicitMode: domain.Mode("wizard")},
	}
	for name, q := range cases {
		if _, err := f.coordinator.Answer(context.Background(), q); !domain.IsKind(err, domain.ErrInvalidQuery) {
			t.Fatalf("%s: expected ErrInvalidQuery, got %v", name, err)
		}
	}
	if f.provider.calls != 0 {
		t.Fatalf("invalid queries must not reach generation")
	}
}

func TestCoordinatorCancelledRequestWritesNothing(t *testing.T) {
	f := newAnswerFixture(budgetItem())
	f.coordinator = f.build(&hangingProviderFake{name: "slow"})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := f.coordinator.Answer(ctx, domain.Query{Text: retrieveQueryText})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.cache.setCalls != 0 {
		t.Fatalf("cancelled request must not write the cache, sets=%d", f.cache.setCalls)
	}
	select {
	case ev := <-f.events.ch:
		t.Fatalf("cancelled request must not publish events, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCoordinatorPartialRetrievalPropagates(t *testing.T) {
	f := newAnswerFixture(budgetItem())
	f.keyword.err = errors.New("pg down")

	record, err := f.coordinator.Answer(context.Background(), domain.Query{Text: retrieveQueryText})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !record.PartialRetrieval {
		t.Fatalf("keyword outage must mark the answer partial")
	}
	if len(record.ExcludedStores) != 1 || record.ExcludedStores[0] != domain.StoreKeyword {
		t.Fatalf("excluded stores wrong: %v", record.ExcludedStores)
	}
	if record.AnswerText == "" || record.AnswerText == noDataAnswer {
		t.Fatalf("partial retrieval still answers from surviving stores, got %q", record.AnswerText)
	}
}

func TestCoordinatorFabricatedMarkerYieldsUnsupportedSpan(t *testing.T) {
	f := newAnswerFixture(budgetItem())
	f.provider.text = "Nothing relatable here [9]."

	record, err := f.coordinator.Answer(context.Background(), domain.Query{Text: retrieveQueryText})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if len(record.Citations) != 0 {
		t.Fatalf("fabricated marker must not bind: %+v", record.Citations)
	}
	if len(record.UnsupportedSpans) != 1 {
		t.Fatalf("claim without support must be flagged, got %+v", record.UnsupportedSpans)
	}
}
