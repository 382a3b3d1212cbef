package dataset

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Source kinds accepted by Open.
const (
	KindCSV      = "csv"
	KindPostgres = "postgres"
	KindSQLite   = "sqlite"
)

// Open builds the source named by kind. The returned close function
// releases any connection the source holds and is never nil.
func Open(ctx context.Context, logger *zap.Logger, kind, path, databaseURL string) (Source, func(), error) {
	switch kind {
	case KindCSV:
		return NewCSVSource(logger, path), func() {}, nil
	case KindSQLite:
		src, err := OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { src.Close() }, nil
	case KindPostgres:
		pool, err := NewPool(ctx, databaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect dataset database: %w", err)
		}
		return NewPostgresSource(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown dataset source %q", kind)
	}
}
