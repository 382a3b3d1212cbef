package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Brownie44l1/house-price-api/internal/domain"
)

// CSVSource reads a CSV file with a header row. Required columns are city
// (or citi), price, sqft, bed and bath; any others are ignored. Rows whose
// numbers do not parse are skipped and logged.
type CSVSource struct {
	Path   string
	logger *zap.Logger
}

func NewCSVSource(logger *zap.Logger, path string) *CSVSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVSource{Path: path, logger: logger}
}

func (s *CSVSource) Load(ctx context.Context) ([]domain.HouseRecord, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	records, skipped, err := ReadCSV(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}
	for _, row := range skipped {
		s.logger.Warn("skipping dataset row", zap.String("path", s.Path), zap.Int("line", row.Line), zap.Error(row.Err))
	}
	if len(skipped) > 0 {
		s.logger.Info("dataset loaded with skipped rows",
			zap.String("path", s.Path),
			zap.Int("records", len(records)),
			zap.Int("skipped", len(skipped)))
	}
	return records, nil
}

// SkippedRow is a data row ReadCSV left out.
type SkippedRow struct {
	Line int
	Err  error
}

var columnAliases = map[string]string{
	"citi":     "city",
	"city":     "city",
	"price":    "price",
	"sqft":     "sqft",
	"bed":      "bed",
	"bedrooms": "bed",
	"bath":     "bath",
}

// ReadCSV parses house records from r. Malformed CSV and missing columns
// fail the whole read; rows with unparseable numbers are returned in
// skipped instead.
func ReadCSV(ctx context.Context, r io.Reader) (records []domain.HouseRecord, skipped []SkippedRow, err error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("missing header row")
		}
		return nil, nil, err
	}
	cols := map[string]int{}
	for i, name := range header {
		if col, ok := columnAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
			if _, seen := cols[col]; !seen {
				cols[col] = i
			}
		}
	}
	for _, col := range []string{"city", "price", "sqft", "bed", "bath"} {
		if _, ok := cols[col]; !ok {
			return nil, nil, fmt.Errorf("missing column %q", col)
		}
	}

	for line := 2; ; line++ {
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}

		rec, err := parseRow(row, cols)
		if err != nil {
			skipped = append(skipped, SkippedRow{Line: line, Err: err})
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

func parseRow(row []string, cols map[string]int) (domain.HouseRecord, error) {
	var err error
	rec := domain.HouseRecord{City: strings.TrimSpace(row[cols["city"]])}
	if rec.Price, err = parseFloat(row[cols["price"]]); err != nil {
		return rec, fmt.Errorf("price: %w", err)
	}
	if rec.Sqft, err = parseFloat(row[cols["sqft"]]); err != nil {
		return rec, fmt.Errorf("sqft: %w", err)
	}
	bed, err := parseFloat(row[cols["bed"]])
	if err != nil {
		return rec, fmt.Errorf("bed: %w", err)
	}
	rec.Bed = int(bed)
	if rec.Bath, err = parseFloat(row[cols["bath"]]); err != nil {
		return rec, fmt.Errorf("bath: %w", err)
	}
	return rec, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
