// Package sqlite is the embedded alternative to the PostgreSQL history store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/user/price-aggregator/internal/entity"
	"github.com/user/price-aggregator/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS price_snapshots (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	term           TEXT NOT NULL,
	captured_at    TEXT NOT NULL,
	total_products INTEGER NOT NULL,
	average_price  REAL NOT NULL,
	min_price      REAL,
	max_price      REAL,
	products       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS price_snapshots_term_idx ON price_snapshots (term, captured_at);
`

// HistoryRepoImpl stores aggregate results in a SQLite file.
type HistoryRepoImpl struct {
	db *sql.DB
}

var _ repository.HistoryRepository = (*HistoryRepoImpl)(nil)

// Open opens the database at dsn and configures WAL mode. Use ":memory:" in tests.
func Open(dsn string) (*HistoryRepoImpl, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &HistoryRepoImpl{db: db}, nil
}

// Migrate creates the snapshot table if it does not exist.
func (r *HistoryRepoImpl) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return eris.Wrap(err, "sqlite: migrate price_snapshots")
	}
	return nil
}

func (r *HistoryRepoImpl) Close() error {
	return r.db.Close()
}

// Save stores one aggregate result as a snapshot row.
func (r *HistoryRepoImpl) Save(ctx context.Context, result *entity.AggregateResult) error {
	productsJSON, err := json.Marshal(result.Products)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode products")
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO price_snapshots (term, captured_at, total_products, average_price, min_price, max_price, products)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		normalizeTerm(result.Term),
		result.CapturedAt.UTC().Format(time.RFC3339Nano),
		result.TotalProducts,
		result.Statistics.AveragePrice,
		nullFloat(result.Statistics.MinPrice),
		nullFloat(result.Statistics.MaxPrice),
		string(productsJSON),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save snapshot for %q", result.Term)
	}
	return nil
}

// FindByTerm returns the latest snapshots for term, newest first.
func (r *HistoryRepoImpl) FindByTerm(ctx context.Context, term string, limit int) ([]entity.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, term, captured_at, total_products, average_price, min_price, max_price, products
		FROM price_snapshots
		WHERE term = ?
		ORDER BY captured_at DESC, id DESC
		LIMIT ?`,
		normalizeTerm(term), limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query snapshots for %q", term)
	}
	defer rows.Close()

	snapshots := []entity.Snapshot{}
	for rows.Next() {
		var (
			s            entity.Snapshot
			capturedAt   string
			minPrice     sql.NullFloat64
			maxPrice     sql.NullFloat64
			productsJSON string
		)
		if err := rows.Scan(&s.ID, &s.Term, &capturedAt, &s.TotalProducts, &s.AveragePrice, &minPrice, &maxPrice, &productsJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}
		if s.CapturedAt, err = time.Parse(time.RFC3339Nano, capturedAt); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse captured_at of snapshot %d", s.ID)
		}
		if minPrice.Valid {
			s.MinPrice = &minPrice.Float64
		}
		if maxPrice.Valid {
			s.MaxPrice = &maxPrice.Float64
		}
		if err := json.Unmarshal([]byte(productsJSON), &s.Products); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode products of snapshot %d", s.ID)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate snapshots")
	}
	return snapshots, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func normalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}
