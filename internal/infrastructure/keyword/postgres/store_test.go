package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"datanav/internal/core/domain"
)

func newStoreWithMock(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &Store{db: db}, mock, func() { _ = db.Close() }
}

func TestSearchKeywordMapsRows(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"id", "dataset", "title", "snippet", "rank", "category", "source", "year"}).
		AddRow("src-budget", "county-budget", "Budget 2023", "<b>budget</b> totals", 0.42, "finance", "county", 2023).
		AddRow("src-transit", "transit", "Ridership", "bus <b>ridership</b>", 0.17, nil, nil, nil)

	mock.ExpectQuery("SELECT id, dataset, title").
		WithArgs("county budget", 8).
		WillReturnRows(rows)

	items, err := store.SearchKeyword(context.Background(), "county budget", 8, domain.Filters{})
	if err != nil {
		t.Fatalf("SearchKeyword() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	first := items[0]
	if first.SourceID != "src-budget" || first.Dataset != "county-budget" || first.Score != 0.42 {
		t.Fatalf("unexpected first item: %+v", first)
	}
	if first.Store != domain.StoreKeyword {
		t.Fatalf("expected store %q, got %q", domain.StoreKeyword, first.Store)
	}
	if first.Metadata["category"] != "finance" || first.Metadata["year"] != "2023" {
		t.Fatalf("unexpected metadata: %v", first.Metadata)
	}
	if items[1].Metadata != nil {
		t.Fatalf("expected nil metadata for null columns, got %v", items[1].Metadata)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchKeywordAppliesFilters(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"id", "dataset", "title", "snippet", "rank", "category", "source", "year"})

	mock.ExpectQuery(`dataset = \$2 AND year >= \$3 AND year <= \$4`).
		WithArgs("ridership trend", "transit", 2020, 2023, 5).
		WillReturnRows(rows)

	filters := domain.Filters{Dataset: "transit", YearFrom: 2020, YearTo: 2023}
	if _, err := store.SearchKeyword(context.Background(), "ridership trend", 5, filters); err != nil {
		t.Fatalf("SearchKeyword() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchKeywordEmptyQueryShortCircuits(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	items, err := store.SearchKeyword(context.Background(), "   ", 5, domain.Filters{})
	if err != nil {
		t.Fatalf("SearchKeyword() error = %v", err)
	}
	if items != nil {
		t.Fatalf("expected no items for blank query, got %+v", items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCountDocuments(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectQuery(`SELECT count\(\*\) FROM dataset_documents`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(950))

	count, err := store.CountDocuments(context.Background())
	if err != nil {
		t.Fatalf("CountDocuments() error = %v", err)
	}
	if count != 950 {
		t.Fatalf("expected 950, got %d", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
