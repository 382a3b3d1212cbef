package dataset

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Brownie44l1/house-price-api/internal/domain"
)

// NewPool builds a small connection pool; the dataset is read a handful of
// times per process.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = 4
	poolCfg.MinConns = 0
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second

	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// PostgresSource reads the houses table.
type PostgresSource struct {
	pool *pgxpool.Pool
}

func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

func (s *PostgresSource) Load(ctx context.Context) ([]domain.HouseRecord, error) {
	const query = `
		SELECT city, price, sqft, bed, bath
		FROM houses
		ORDER BY id
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query houses: %w", err)
	}
	defer rows.Close()

	var out []domain.HouseRecord
	for rows.Next() {
		var r domain.HouseRecord
		if err := rows.Scan(&r.City, &r.Price, &r.Sqft, &r.Bed, &r.Bath); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
