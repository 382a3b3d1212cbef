package config

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Brownie44l1/house-price-api/internal/domain"
	"github.com/Brownie44l1/house-price-api/internal/estimator"
)

// EstimatorOptions is the on-disk form of estimator configuration. Every
// field is optional; absent fields keep the calibrated value.
//
// city_table is either an inline {"city": multiplier} object or a path
// (relative to the options file) to a JSON object or a city,multiplier CSV.
type EstimatorOptions struct {
	CityTable            json.RawMessage             `json:"city_table,omitempty"`
	CalibrationConstants *CalibrationConstants       `json:"calibration_constants,omitempty"`
	PriceFloor           *float64                    `json:"price_floor,omitempty"`
	PriceCeiling         *float64                    `json:"price_ceiling,omitempty"`
	PriceBands           map[string]domain.PriceBand `json:"price_bands,omitempty"`
}

type CalibrationConstants struct {
	Slope        *float64 `json:"slope,omitempty"`
	Intercept    *float64 `json:"intercept,omitempty"`
	BaselineBed  *float64 `json:"baseline_bed,omitempty"`
	BaselineBath *float64 `json:"baseline_bath,omitempty"`
	BedRate      *float64 `json:"bed_rate,omitempty"`
	BathRate     *float64 `json:"bath_rate,omitempty"`
}

// LoadEstimatorOptions reads an options file into estimator overrides.
func LoadEstimatorOptions(path string) (estimator.Overrides, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return estimator.Overrides{}, fmt.Errorf("read estimator options: %w", err)
	}
	var opts EstimatorOptions
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&opts); err != nil {
		return estimator.Overrides{}, fmt.Errorf("parse %s: %w", path, err)
	}
	o, err := opts.overrides(filepath.Dir(path))
	if err != nil {
		return estimator.Overrides{}, fmt.Errorf("%s: %w", path, err)
	}
	return o, nil
}

func (opts EstimatorOptions) overrides(dir string) (estimator.Overrides, error) {
	o := estimator.Overrides{
		PriceFloor:   opts.PriceFloor,
		PriceCeiling: opts.PriceCeiling,
	}
	if c := opts.CalibrationConstants; c != nil {
		o.Slope, o.Intercept = c.Slope, c.Intercept
		o.BaselineBed, o.BaselineBath = c.BaselineBed, c.BaselineBath
		o.BedRate, o.BathRate = c.BedRate, c.BathRate
	}

	if len(opts.CityTable) > 0 && string(opts.CityTable) != "null" {
		table, err := cityTable(opts.CityTable, dir)
		if err != nil {
			return estimator.Overrides{}, err
		}
		o.CityTable = table
	}

	if len(opts.PriceBands) > 0 {
		var bands domain.Bands
		var seen [len(bands)]bool
		for name, band := range opts.PriceBands {
			tier, err := domain.ParseTier(name)
			if err != nil {
				return estimator.Overrides{}, fmt.Errorf("price_bands: %w", err)
			}
			if seen[tier] {
				return estimator.Overrides{}, fmt.Errorf("price_bands: %s given twice", tier)
			}
			bands[tier], seen[tier] = band, true
		}
		for _, t := range domain.Tiers() {
			if !seen[t] {
				return estimator.Overrides{}, fmt.Errorf("price_bands: missing %s", t)
			}
		}
		o.Bands = &bands
	}
	return o, nil
}

func cityTable(raw json.RawMessage, dir string) (map[string]float64, error) {
	var inline map[string]float64
	if err := json.Unmarshal(raw, &inline); err == nil {
		return inline, nil
	}
	var path string
	if err := json.Unmarshal(raw, &path); err != nil {
		return nil, errors.New("city_table: must be an object or a file path")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	return LoadCityTable(path)
}

// LoadCityTable reads a city multiplier table from a .json or .csv file.
func LoadCityTable(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open city table: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		var table map[string]float64
		if err := json.NewDecoder(f).Decode(&table); err != nil {
			return nil, fmt.Errorf("parse city table %s: %w", path, err)
		}
		return table, nil
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = 2
	r.TrimLeadingSpace = true
	table := map[string]float64{}
	for line := 1; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("city table %s: %w", path, err)
		}
		m, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("city table %s line %d: %w", path, line, err)
		}
		table[row[0]] = m
	}
	return table, nil
}

// OptionsFromCalibration captures a calibration in options form, with the
// city table inline.
func OptionsFromCalibration(cal estimator.Calibration) (EstimatorOptions, error) {
	table, err := json.Marshal(cal.Cities)
	if err != nil {
		return EstimatorOptions{}, err
	}
	c := cal.Constants
	bands := make(map[string]domain.PriceBand, len(cal.Bands))
	for _, t := range domain.Tiers() {
		bands[t.String()] = cal.Bands.For(t)
	}
	return EstimatorOptions{
		CityTable: table,
		CalibrationConstants: &CalibrationConstants{
			Slope:        &c.Slope,
			Intercept:    &c.Intercept,
			BaselineBed:  &c.BaselineBed,
			BaselineBath: &c.BaselineBath,
			BedRate:      &c.BedRate,
			BathRate:     &c.BathRate,
		},
		PriceFloor:   &cal.PriceFloor,
		PriceCeiling: &cal.PriceCeiling,
		PriceBands:   bands,
	}, nil
}

// WriteEstimatorOptions writes opts as indented JSON.
func WriteEstimatorOptions(w io.Writer, opts EstimatorOptions) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(opts)
}
