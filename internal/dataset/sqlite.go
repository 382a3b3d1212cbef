package dataset

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Brownie44l1/house-price-api/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS houses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	city TEXT NOT NULL,
	price REAL NOT NULL,
	sqft REAL NOT NULL,
	bed INTEGER NOT NULL DEFAULT 0,
	bath REAL NOT NULL DEFAULT 0
);`

// SQLiteSource keeps the reference dataset in a local SQLite file.
type SQLiteSource struct {
	conn *sql.DB
}

// OpenSQLite opens (and if needed creates) the database at path.
func OpenSQLite(path string) (*SQLiteSource, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &SQLiteSource{conn: conn}, nil
}

func (s *SQLiteSource) Load(ctx context.Context) ([]domain.HouseRecord, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT city, price, sqft, bed, bath FROM houses ORDER BY id`)
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

// Replace swaps the stored dataset for records in one transaction.
func (s *SQLiteSource) Replace(ctx context.Context, records []domain.HouseRecord) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM houses`); err != nil {
		return fmt.Errorf("clear houses: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO houses (city, price, sqft, bed, bath) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.City, r.Price, r.Sqft, r.Bed, r.Bath); err != nil {
			return fmt.Errorf("insert house: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteSource) Close() error {
	return s.conn.Close()
}
