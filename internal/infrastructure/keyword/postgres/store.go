package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"datanav/internal/core/domain"
)

// Store runs full-text search over the dataset corpus. The search_tsv column
// is generated by Postgres, so writes stay a plain insert and ranking uses
// the GIN index.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026021002)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS dataset_documents (
	id TEXT PRIMARY KEY,
	dataset TEXT NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	category TEXT,
	source TEXT,
	year INT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	search_tsv tsvector GENERATED ALWAYS AS (
		setweight(to_tsvector('english', coalesce(title, '')), 'A') ||
		setweight(to_tsvector('english', coalesce(body, '')), 'B')
	) STORED
);

CREATE INDEX IF NOT EXISTS idx_dataset_documents_tsv ON dataset_documents USING GIN (search_tsv);
CREATE INDEX IF NOT EXISTS idx_dataset_documents_dataset ON dataset_documents(dataset);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (s *Store) SearchKeyword(ctx context.Context, query string, topK int, filters domain.Filters) ([]domain.RetrievalItem, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 8
	}

	conditions := []string{`search_tsv @@ websearch_to_tsquery('english', $1)`}
	args := []any{query}
	appendCondition := func(expr string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(expr, len(args)))
	}
	if filters.Dataset != "" {
		appendCondition("dataset = $%d", filters.Dataset)
	}
	if filters.Category != "" {
		appendCondition("category = $%d", filters.Category)
	}
	if filters.Source != "" {
		appendCondition("source = $%d", filters.Source)
	}
	if filters.YearFrom > 0 {
		appendCondition("year >= $%d", filters.YearFrom)
	}
	if filters.YearTo > 0 {
		appendCondition("year <= $%d", filters.YearTo)
	}
	args = append(args, topK)

	stmt := fmt.Sprintf(`
SELECT id, dataset, title,
	ts_headline('english', body, websearch_to_tsquery('english', $1),
		'MaxFragments=2, MaxWords=40, MinWords=10') AS snippet,
	ts_rank_cd(search_tsv, websearch_to_tsquery('english', $1)) AS rank,
	category, source, year
FROM dataset_documents
WHERE %s
ORDER BY rank DESC, id
LIMIT $%d
`, strings.Join(conditions, " AND "), len(args))

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var items []domain.RetrievalItem
	for rows.Next() {
		var (
			item     domain.RetrievalItem
			category sql.NullString
			source   sql.NullString
			year     sql.NullInt64
		)
		if err := rows.Scan(&item.SourceID, &item.Dataset, &item.Title, &item.Snippet, &item.Score, &category, &source, &year); err != nil {
			return nil, fmt.Errorf("scan keyword hit: %w", err)
		}
		item.Store = domain.StoreKeyword
		item.Metadata = keywordMetadata(category, source, year)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keyword hits: %w", err)
	}
	return items, nil
}

func (s *Store) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM dataset_documents`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

func keywordMetadata(category, source sql.NullString, year sql.NullInt64) map[string]string {
	meta := make(map[string]string, 3)
	if category.Valid && category.String != "" {
		meta["category"] = category.String
	}
	if source.Valid && source.String != "" {
		meta["source"] = source.String
	}
	if year.Valid {
		meta["year"] = strconv.FormatInt(year.Int64, 10)
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
