package postgres

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/user/price-aggregator/internal/entity"
	"github.com/user/price-aggregator/internal/repository"
)

// DB is the subset of *pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS price_snapshots (
	id             BIGSERIAL PRIMARY KEY,
	term           TEXT NOT NULL,
	captured_at    TIMESTAMPTZ NOT NULL,
	total_products INTEGER NOT NULL,
	average_price  DOUBLE PRECISION NOT NULL,
	min_price      DOUBLE PRECISION,
	max_price      DOUBLE PRECISION,
	products       JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS price_snapshots_term_idx ON price_snapshots (term, captured_at DESC);
`

// HistoryRepoImpl stores aggregate results in PostgreSQL.
type HistoryRepoImpl struct {
	db DB
}

var _ repository.HistoryRepository = (*HistoryRepoImpl)(nil)

// NewHistoryRepo creates a new instance of HistoryRepoImpl.
func NewHistoryRepo(db DB) *HistoryRepoImpl {
	return &HistoryRepoImpl{db: db}
}

// Migrate creates the snapshot table if it does not exist.
func (r *HistoryRepoImpl) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return eris.Wrap(err, "postgres: migrate price_snapshots")
	}
	return nil
}

// Save stores one aggregate result as a snapshot row.
func (r *HistoryRepoImpl) Save(ctx context.Context, result *entity.AggregateResult) error {
	productsJSON, err := json.Marshal(result.Products)
	if err != nil {
		return eris.Wrap(err, "postgres: encode products")
	}

	query := `
		INSERT INTO price_snapshots (term, captured_at, total_products, average_price, min_price, max_price, products)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err = r.db.Exec(ctx, query,
		normalizeTerm(result.Term),
		result.CapturedAt,
		result.TotalProducts,
		result.Statistics.AveragePrice,
		result.Statistics.MinPrice,
		result.Statistics.MaxPrice,
		productsJSON,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save snapshot for %q", result.Term)
	}
	return nil
}

// FindByTerm returns the latest snapshots for term, newest first.
func (r *HistoryRepoImpl) FindByTerm(ctx context.Context, term string, limit int) ([]entity.Snapshot, error) {
	query := `
		SELECT id, term, captured_at, total_products, average_price, min_price, max_price, products
		FROM price_snapshots
		WHERE term = $1
		ORDER BY captured_at DESC
		LIMIT $2;
	`
	rows, err := r.db.Query(ctx, query, normalizeTerm(term), limit)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query snapshots for %q", term)
	}
	defer rows.Close()

	snapshots := []entity.Snapshot{}
	for rows.Next() {
		var s entity.Snapshot
		var productsJSON []byte
		if err := rows.Scan(
			&s.ID,
			&s.Term,
			&s.CapturedAt,
			&s.TotalProducts,
			&s.AveragePrice,
			&s.MinPrice,
			&s.MaxPrice,
			&productsJSON,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		if err := json.Unmarshal(productsJSON, &s.Products); err != nil {
			return nil, eris.Wrapf(err, "postgres: decode products of snapshot %d", s.ID)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate snapshots")
	}
	return snapshots, nil
}

func normalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}
