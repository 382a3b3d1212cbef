package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Brownie44l1/house-price-api/internal/config"
	"github.com/Brownie44l1/house-price-api/internal/dataset"
	"github.com/Brownie44l1/house-price-api/internal/domain"
	"github.com/Brownie44l1/house-price-api/internal/estimator"
	applog "github.com/Brownie44l1/house-price-api/internal/logger"
)

func main() {
	source := flag.String("source", dataset.KindCSV, "Dataset source: csv, sqlite or postgres")
	path := flag.String("path", "data/socal2.csv", "CSV file or SQLite database path")
	dsn := flag.String("dsn", os.Getenv("DATABASE_URL"), "Postgres connection string")
	out := flag.String("out", "", "Write estimator options here instead of stdout")
	importCSV := flag.String("import-csv", "", "Load this CSV into the SQLite database at -path first")
	flag.Parse()

	ctx := context.Background()

	logger, err := applog.New("info", true)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if *importCSV != "" {
		if err := importIntoSQLite(ctx, logger, *importCSV, *path); err != nil {
			log.Fatalf("Failed to import %s: %v", *importCSV, err)
		}
		*source = dataset.KindSQLite
	}

	src, closeSource, err := dataset.Open(ctx, logger, *source, *path, *dsn)
	if err != nil {
		log.Fatalf("Failed to open dataset: %v", err)
	}
	defer closeSource()

	records, err := src.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load dataset: %v", err)
	}

	cal, err := estimator.Calibrate(records, domain.DefaultBands)
	if err != nil {
		log.Fatalf("Failed to calibrate: %v", err)
	}
	fmt.Fprintf(os.Stderr, "Calibrated from %d of %d records (%s): price = %.2f * sqft + %.2f, r = %.3f\n",
		cal.Records, len(records), cal.Method, cal.Slope, cal.Intercept, cal.Correlation)

	opts, err := config.OptionsFromCalibration(cal)
	if err != nil {
		log.Fatalf("Failed to encode calibration: %v", err)
	}

	var w io.Writer = os.Stdout
	if *out != "" {
		if err := os.MkdirAll(filepath.Dir(*out), 0755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", *out, err)
		}
		defer f.Close()
		w = f
	}
	if err := config.WriteEstimatorOptions(w, opts); err != nil {
		log.Fatalf("Failed to write estimator options: %v", err)
	}
	if *out != "" {
		fmt.Fprintf(os.Stderr, "Wrote estimator options to %s\n", *out)
	}
}

func importIntoSQLite(ctx context.Context, logger *zap.Logger, csvPath, dbPath string) error {
	records, err := dataset.NewCSVSource(logger, csvPath).Load(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return err
	}
	db, err := dataset.OpenSQLite(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Replace(ctx, records); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Imported %d records into %s\n", len(records), dbPath)
	return nil
}
