package neo4j

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"datanav/internal/core/domain"
)

const (
	defaultHops = 2
	maxHops     = 3
)

// Store walks the dataset knowledge graph. Entity nodes carry a normalized
// name; Record nodes carry the dataset payload the retrieval pipeline needs.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

func New(uri, username, password, database string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	return &Store{driver: driver, database: database}, nil
}

func (s *Store) VerifyConnectivity(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j connectivity: %w", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) Traverse(ctx context.Context, entities []string, hops int, filters domain.Filters) ([]domain.RetrievalItem, error) {
	names := normalizeEntityNames(entities)
	if len(names) == 0 {
		return nil, nil
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer func() {
		_ = session.Close(ctx)
	}()

	// Path length bounds cannot be parameterized in Cypher, so the clamped
	// hop count is interpolated into the pattern.
	query := fmt.Sprintf(`
MATCH (seed:Entity) WHERE toLower(seed.name) IN $names
MATCH path = (seed)-[*1..%d]-(rec:Record)
WHERE ($dataset = '' OR rec.dataset = $dataset)
  AND ($category = '' OR rec.category = $category)
  AND ($source = '' OR rec.source = $source)
  AND ($year_from = 0 OR rec.year >= $year_from)
  AND ($year_to = 0 OR rec.year <= $year_to)
WITH rec, min(length(path)) AS hops
RETURN rec.source_id AS source_id, rec.dataset AS dataset, rec.title AS title,
	rec.text AS text, rec.category AS category, rec.source AS source,
	rec.year AS year, hops
ORDER BY hops ASC, source_id
LIMIT $limit
`, clampHops(hops))

	params := map[string]any{
		"names":     names,
		"dataset":   filters.Dataset,
		"category":  filters.Category,
		"source":    filters.Source,
		"year_from": filters.YearFrom,
		"year_to":   filters.YearTo,
		"limit":     16,
	}

	records, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]*neo4j.Record, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("graph traverse: %w", err)
	}

	items := make([]domain.RetrievalItem, 0, len(records))
	for _, record := range records {
		item, ok := itemFromRecord(record.AsMap())
		if !ok {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Store) CountEntities(ctx context.Context) (int64, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer func() {
		_ = session.Close(ctx)
	}()

	count, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) (int64, error) {
		result, err := tx.Run(ctx, `MATCH (e:Entity) RETURN count(e) AS count`, nil)
		if err != nil {
			return 0, err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return 0, err
		}
		value, _ := record.Get("count")
		n, ok := value.(int64)
		if !ok {
			return 0, fmt.Errorf("unexpected count type %T", value)
		}
		return n, nil
	})
	if err != nil {
		return 0, fmt.Errorf("count entities: %w", err)
	}
	return count, nil
}

func clampHops(hops int) int {
	if hops <= 0 {
		return defaultHops
	}
	if hops > maxHops {
		return maxHops
	}
	return hops
}

func normalizeEntityNames(entities []string) []string {
	names := make([]string, 0, len(entities))
	seen := make(map[string]struct{}, len(entities))
	for _, entity := range entities {
		name := strings.ToLower(strings.TrimSpace(entity))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// itemFromRecord converts one traversal row. Closer records score higher;
// the retriever normalizes per store, so only the ordering matters here.
func itemFromRecord(values map[string]any) (domain.RetrievalItem, bool) {
	sourceID, _ := values["source_id"].(string)
	if sourceID == "" {
		return domain.RetrievalItem{}, false
	}

	hops, _ := values["hops"].(int64)
	if hops < 1 {
		hops = 1
	}
	item := domain.RetrievalItem{
		SourceID: sourceID,
		Store:    domain.StoreGraph,
		Score:    1.0 / float64(1+hops),
	}
	item.Dataset, _ = values["dataset"].(string)
	item.Title, _ = values["title"].(string)
	item.Snippet, _ = values["text"].(string)

	meta := make(map[string]string, 4)
	if category, _ := values["category"].(string); category != "" {
		meta["category"] = category
	}
	if source, _ := values["source"].(string); source != "" {
		meta["source"] = source
	}
	if year, ok := values["year"].(int64); ok && year != 0 {
		meta["year"] = strconv.FormatInt(year, 10)
	}
	meta["hops"] = strconv.FormatInt(hops, 10)
	item.Metadata = meta
	return item, true
}
