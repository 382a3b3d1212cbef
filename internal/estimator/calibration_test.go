package estimator

import (
	"math"
	"testing"

	"github.com/Brownie44l1/house-price-api/internal/domain"
)

func lineRecords() []domain.HouseRecord {
	var out []domain.HouseRecord
	for i, sqft := range []float64{900, 1200, 1500, 1800, 2100, 2400, 2700, 3000} {
		city := "Los Angeles, CA"
		if i%2 == 1 {
			city = "Irvine, CA"
		}
		out = append(out, domain.HouseRecord{
			City:  city,
			Price: 500*sqft + 100000,
			Sqft:  sqft,
			Bed:   2 + i%3,
			Bath:  2,
		})
	}
	return out
}

func TestCalibrateLeastSquares(t *testing.T) {
	cal, err := Calibrate(lineRecords(), domain.DefaultBands)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cal.Method != MethodLeastSquares {
		t.Fatalf("expected least squares, got %s", cal.Method)
	}
	if math.Abs(cal.Slope-500) > 1e-6 || math.Abs(cal.Intercept-100000) > 1e-3 {
		t.Fatalf("expected slope 500 / intercept 100000, got %v / %v", cal.Slope, cal.Intercept)
	}
	if math.Abs(cal.Correlation-1) > 1e-9 {
		t.Fatalf("expected perfect correlation, got %v", cal.Correlation)
	}
	if cal.Records != 8 || cal.SqftLow != 900 || cal.SqftHigh != 3000 {
		t.Fatalf("unexpected records/range: %d [%v, %v]", cal.Records, cal.SqftLow, cal.SqftHigh)
	}
	if math.Abs(cal.BaselineBath-2) > 1e-9 {
		t.Fatalf("expected bath baseline 2, got %v", cal.BaselineBath)
	}
	for city, m := range cal.Cities {
		if math.Abs(m-1) > 1e-9 {
			t.Fatalf("city %s: expected neutral multiplier on a perfect fit, got %v", city, m)
		}
	}
	if _, ok := cal.Cities["los angeles, ca"]; !ok {
		t.Fatalf("expected normalised city keys, got %v", cal.Cities)
	}
	if err := cal.Validate(); err != nil {
		t.Fatalf("calibration should validate: %v", err)
	}
}

func TestCalibrateSkipsUnusableRecords(t *testing.T) {
	records := append(lineRecords(),
		domain.HouseRecord{City: "Broken", Price: 0, Sqft: 1000},
		domain.HouseRecord{City: "Broken", Price: 500000, Sqft: -1},
		domain.HouseRecord{City: "Broken", Price: math.NaN(), Sqft: 1000},
	)
	cal, err := Calibrate(records, domain.DefaultBands)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cal.Records != 8 {
		t.Fatalf("expected 8 usable records, got %d", cal.Records)
	}
	if _, ok := cal.Cities["broken"]; ok {
		t.Fatalf("unusable records must not produce a city multiplier")
	}
}

func TestCalibratePricePerSqftFallback(t *testing.T) {
	records := []domain.HouseRecord{
		{City: "A", Price: 400000, Sqft: 1000, Bed: 2, Bath: 1},
		{City: "B", Price: 600000, Sqft: 1000, Bed: 4, Bath: 2.1},
	}
	cal, err := Calibrate(records, domain.DefaultBands)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cal.Method != MethodPricePerSqft || cal.Slope != 500 || cal.Intercept != 0 {
		t.Fatalf("expected price-per-sqft fallback of 500, got %s %v %v", cal.Method, cal.Slope, cal.Intercept)
	}
	if cal.BaselineBed != 3 || cal.BaselineBath != 1.75 {
		t.Fatalf("unexpected baselines %v / %v", cal.BaselineBed, cal.BaselineBath)
	}
}

func TestCalibrateRequiresRecords(t *testing.T) {
	if _, err := Calibrate(nil, domain.DefaultBands); err == nil {
		t.Fatalf("expected error for empty dataset")
	}
}

func TestCityMultiplierShrinksTowardNeutral(t *testing.T) {
	c := Constants{Slope: 500, Intercept: 100000}
	var records []domain.HouseRecord
	for i := 0; i < 5; i++ {
		records = append(records, domain.HouseRecord{City: "Malibu, CA", Sqft: 2000, Price: 2 * 1100000})
	}
	records = append(records, domain.HouseRecord{City: "Tiny Town", Sqft: 2000, Price: 550000})

	got := cityMultipliers(records, c)
	if math.Abs(got["malibu, ca"]-1.5) > 1e-9 {
		t.Fatalf("expected shrunk multiplier 1.5, got %v", got["malibu, ca"])
	}
	want := (0.5 + cityPrior) / (1 + cityPrior)
	if math.Abs(got["tiny town"]-want) > 1e-9 {
		t.Fatalf("single-record city should stay near neutral: got %v want %v", got["tiny town"], want)
	}
}

func TestApplyOverrides(t *testing.T) {
	cal, err := Calibrate(lineRecords(), domain.DefaultBands)
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	slope := 450.0
	bedRate := 0.02
	out, err := cal.Apply(Overrides{
		Slope:     &slope,
		BedRate:   &bedRate,
		CityTable: map[string]float64{"  San Diego,  CA": 1.3},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Slope != 450 || out.BedRate != 0.02 || out.Method != MethodConfigured {
		t.Fatalf("overrides not applied: %+v", out.Constants)
	}
	if out.Cities["san diego, ca"] != 1.3 || len(out.Cities) != 1 {
		t.Fatalf("city table not replaced: %v", out.Cities)
	}
	if cal.Slope == 450 || len(cal.Cities) == 1 {
		t.Fatalf("Apply must not modify the receiver")
	}

	floor := 3000000.0
	if _, err := cal.Apply(Overrides{PriceFloor: &floor}); err == nil {
		t.Fatalf("expected floor above ceiling to be rejected")
	}
	bands := domain.DefaultBands
	bands[domain.TierMid].Min = 1
	if _, err := cal.Apply(Overrides{Bands: &bands}); err == nil {
		t.Fatalf("expected non-contiguous bands to be rejected")
	}
}

func TestFromOverrides(t *testing.T) {
	if _, err := FromOverrides(Overrides{}); err == nil {
		t.Fatalf("expected error without a configured slope")
	}
	slope, intercept := 550.0, 50000.0
	cal, err := FromOverrides(Overrides{Slope: &slope, Intercept: &intercept})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	e, err := New(cal)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	est, err := e.Estimate(domain.PropertyFeatures{SquareFootage: 1000})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if est.PredictedPrice != 600000 {
		t.Fatalf("expected 600,000 with neutral modifiers, got %.0f", est.PredictedPrice)
	}
}
