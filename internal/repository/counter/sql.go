package counter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/heritage-labs/usagemeter/internal/db"
	"github.com/heritage-labs/usagemeter/internal/domain/category"
	"github.com/heritage-labs/usagemeter/internal/domain/period"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS usage_counters (
	user_id      TEXT        NOT NULL,
	category     TEXT        NOT NULL,
	period_start TIMESTAMPTZ NOT NULL,
	count        BIGINT      NOT NULL DEFAULT 0,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, category, period_start)
)`

const incrementSQL = `INSERT INTO usage_counters (user_id, category, period_start, count, updated_at)
VALUES ($1, $2, $3, 1, NOW())
ON CONFLICT (user_id, category, period_start)
DO UPDATE SET count = usage_counters.count + 1, updated_at = NOW()
RETURNING count`

const readSQL = `SELECT count FROM usage_counters
WHERE user_id = $1 AND category = $2 AND period_start = $3`

const readManySQL = `SELECT category, count FROM usage_counters
WHERE user_id = $1 AND period_start = $2 AND category = ANY($3)`

// SQLRepo keeps counters in the usage_counters table. Rows of past periods are never
// deleted so they remain available for reporting.
type SQLRepo struct {
	db *sql.DB
}

// NewSQL creates a counter repository over a Postgres pool.
func NewSQL(conn *sql.DB) *SQLRepo {
	return &SQLRepo{db: conn}
}

// EnsureSchema creates the counters table if it is missing.
func (r *SQLRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return &db.Error{Op: db.OpSchema, Err: err}
	}
	return nil
}

// Increment upserts the row and returns the new count in one statement.
func (r *SQLRepo) Increment(ctx context.Context, userID string, cat category.Category, p period.Period) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, incrementSQL, userID, string(cat), p.Start.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counter upsert %s/%s: %w", userID, cat, &db.Error{Op: db.OpUpsert, Err: err})
	}
	return n, nil
}

// Read returns the counter value, 0 when no row exists.
func (r *SQLRepo) Read(ctx context.Context, userID string, cat category.Category, p period.Period) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, readSQL, userID, string(cat), p.Start.UTC()).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("counter select %s/%s: %w", userID, cat, &db.Error{Op: db.OpSelect, Err: err})
	}
	return n, nil
}

// ReadMany reads several categories of one period in a single query.
func (r *SQLRepo) ReadMany(
	ctx context.Context, userID string, cats []category.Category, p period.Period,
) (map[category.Category]int64, error) {
	out := make(map[category.Category]int64, len(cats))
	if len(cats) == 0 {
		return out, nil
	}
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = string(c)
		out[c] = 0
	}

	rows, err := r.db.QueryContext(ctx, readManySQL, userID, p.Start.UTC(), pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("counter select %s: %w", userID, &db.Error{Op: db.OpSelect, Err: err})
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			name string
			n    int64
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("counter scan %s: %w", userID, &db.Error{Op: db.OpSelect, Err: err})
		}
		out[category.Category(name)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("counter rows %s: %w", userID, &db.Error{Op: db.OpSelect, Err: err})
	}
	return out, nil
}
