package estimator

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/Brownie44l1/house-price-api/internal/domain"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func testCalibration() Calibration {
	return Calibration{
		Constants: Constants{
			Slope:        500,
			Intercept:    100000,
			BaselineBed:  3,
			BaselineBath: 2,
			BedRate:      DefaultBedRate,
			BathRate:     DefaultBathRate,
		},
		Method:       MethodLeastSquares,
		Correlation:  0.58,
		Records:      100,
		SqftLow:      800,
		SqftHigh:     3500,
		Cities:       map[string]float64{"los angeles, ca": 1.2, "irvine, ca": 1.05},
		Bands:        domain.DefaultBands,
		PriceFloor:   domain.DefaultBands.Floor(),
		PriceCeiling: domain.DefaultBands.Ceiling(),
	}
}

func testEstimator(t *testing.T) *Estimator {
	t.Helper()
	e, err := New(testCalibration())
	if err != nil {
		t.Fatalf("new estimator: %v", err)
	}
	return e
}

func losAngeles() domain.PropertyFeatures {
	return domain.PropertyFeatures{
		SquareFootage: 1500,
		Bedrooms:      intPtr(3),
		Bathrooms:     floatPtr(2),
		City:          "Los Angeles, CA",
	}
}

func factorNames(fs []Factor) []string {
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = f.Name
	}
	return names
}

func findFactor(fs []Factor, name string) (Factor, bool) {
	for _, f := range fs {
		if f.Name == name {
			return f, true
		}
	}
	return Factor{}, false
}

func TestEstimateLosAngelesExample(t *testing.T) {
	est, err := testEstimator(t).Estimate(losAngeles())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if est.PredictedPrice < 195000 || est.PredictedPrice > 2000000 {
		t.Fatalf("predicted price %.0f outside $195K-$2M", est.PredictedPrice)
	}
	if est.PredictedPrice != 1020000 {
		t.Fatalf("expected 1,020,000, got %.0f", est.PredictedPrice)
	}
	if est.PriceRange != domain.TierMid || est.Band != domain.DefaultBands.For(domain.TierMid) {
		t.Fatalf("expected Mid band, got %s %+v", est.PriceRange, est.Band)
	}
	if !est.CityRecognized || math.Abs(est.Confidence-0.9) > 1e-9 {
		t.Fatalf("expected recognised city with confidence 0.9, got %v %v", est.CityRecognized, est.Confidence)
	}
	for _, name := range []string{"base_price", "city_adjustment", "bedroom_adjustment", "bathroom_adjustment"} {
		if _, ok := findFactor(est.Factors, name); !ok {
			t.Fatalf("missing factor %s in %v", name, factorNames(est.Factors))
		}
	}
	for _, f := range est.Factors {
		if f.Description == "" {
			t.Fatalf("factor %s has empty description", f.Name)
		}
	}
}

func TestEstimateDeterministic(t *testing.T) {
	e := testEstimator(t)
	inputs := []domain.PropertyFeatures{
		losAngeles(),
		{SquareFootage: 987.65, Bedrooms: intPtr(1), Bathrooms: floatPtr(1.1), City: "Irvine, CA"},
		{SquareFootage: 6400, City: "Nowhere"},
	}
	for _, in := range inputs {
		first, err := e.Estimate(in)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		second, err := e.Estimate(in)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("estimates differ for %+v:\n%+v\n%+v", in, first, second)
		}
		if math.Float64bits(first.PredictedPrice) != math.Float64bits(second.PredictedPrice) ||
			math.Float64bits(first.Confidence) != math.Float64bits(second.Confidence) {
			t.Fatalf("estimates are not bit-identical for %+v", in)
		}
	}
}

func TestEstimateMonotonicInBedroomsAndBathrooms(t *testing.T) {
	e := testEstimator(t)
	for _, sqft := range []float64{200, 1500, 4200} {
		prev := -1.0
		for bed := 0; bed <= 12; bed++ {
			f := losAngeles()
			f.SquareFootage = sqft
			f.Bedrooms = intPtr(bed)
			est, err := e.Estimate(f)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if est.PredictedPrice < prev {
				t.Fatalf("sqft %.0f: price decreased from %.0f to %.0f at %d bedrooms", sqft, prev, est.PredictedPrice, bed)
			}
			prev = est.PredictedPrice
		}

		prev = -1.0
		for _, bath := range []float64{0, 0.1, 1, 1.1, 2, 2.1, 3, 4.2, 6} {
			f := losAngeles()
			f.SquareFootage = sqft
			f.Bathrooms = floatPtr(bath)
			est, err := e.Estimate(f)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if est.PredictedPrice < prev {
				t.Fatalf("sqft %.0f: price decreased at %.1f bathrooms", sqft, bath)
			}
			prev = est.PredictedPrice
		}
	}
}

func TestEstimateUnknownCityFallsBack(t *testing.T) {
	e := testEstimator(t)
	known, err := e.Estimate(losAngeles())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	f := losAngeles()
	f.City = "Springfield"
	unknown, err := e.Estimate(f)
	if err != nil {
		t.Fatalf("unknown city must not be an error, got %v", err)
	}
	if unknown.CityRecognized {
		t.Fatalf("Springfield should not be recognised")
	}
	if unknown.PredictedPrice != 850000 {
		t.Fatalf("expected neutral multiplier price 850,000, got %.0f", unknown.PredictedPrice)
	}
	if !(unknown.Confidence < known.Confidence) {
		t.Fatalf("unknown city confidence %v should be below %v", unknown.Confidence, known.Confidence)
	}
	city, _ := findFactor(unknown.Factors, "city_adjustment")
	if !strings.Contains(city.Description, "not in reference data") {
		t.Fatalf("city factor should flag the fallback, got %q", city.Description)
	}
}

func TestEstimateCityLookupIsNormalized(t *testing.T) {
	f := losAngeles()
	f.City = "  LOS   angeles,  CA "
	est, err := testEstimator(t).Estimate(f)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !est.CityRecognized {
		t.Fatalf("expected normalised city to be recognised")
	}
}

func TestEstimateInvalidFeatures(t *testing.T) {
	e := testEstimator(t)
	cases := map[string]domain.PropertyFeatures{
		"zero sqft":       {SquareFootage: 0, City: "Los Angeles, CA"},
		"negative sqft":   {SquareFootage: -10},
		"nan sqft":        {SquareFootage: math.NaN()},
		"inf sqft":        {SquareFootage: math.Inf(1)},
		"negative bed":    {SquareFootage: 1500, Bedrooms: intPtr(-1)},
		"negative bath":   {SquareFootage: 1500, Bathrooms: floatPtr(-0.5)},
		"non-finite bath": {SquareFootage: 1500, Bathrooms: floatPtr(math.Inf(1))},
	}
	for name, f := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.Estimate(f)
			var invalid *InvalidFeatureError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidFeatureError, got %v", err)
			}
		})
	}
}

func TestEstimateMissingOptionalFeatures(t *testing.T) {
	e := testEstimator(t)
	full, err := e.Estimate(losAngeles())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	partial, err := e.Estimate(domain.PropertyFeatures{SquareFootage: 1500, City: "Los Angeles, CA"})
	if err != nil {
		t.Fatalf("missing bed/bath must not be an error, got %v", err)
	}
	if partial.PredictedPrice != full.PredictedPrice {
		t.Fatalf("baseline bed/bath should match explicit baseline, got %.0f vs %.0f", partial.PredictedPrice, full.PredictedPrice)
	}
	if !(partial.Confidence < full.Confidence) || partial.Confidence <= 0 {
		t.Fatalf("partial confidence %v should be positive and below %v", partial.Confidence, full.Confidence)
	}

	noCity, err := e.Estimate(domain.PropertyFeatures{SquareFootage: 1500})
	if err != nil {
		t.Fatalf("missing city must not be an error, got %v", err)
	}
	if !(noCity.Confidence < partial.Confidence) {
		t.Fatalf("missing city should lower confidence further: %v vs %v", noCity.Confidence, partial.Confidence)
	}
}

func TestEstimateAboveCeilingIsFlaggedNotClipped(t *testing.T) {
	f := losAngeles()
	f.SquareFootage = 5000
	est, err := testEstimator(t).Estimate(f)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if est.PredictedPrice != 3120000 {
		t.Fatalf("expected unclipped 3,120,000, got %.0f", est.PredictedPrice)
	}
	if !est.AboveTypicalRange || est.PriceRange != domain.TierHigh {
		t.Fatalf("expected above-range High estimate, got %+v", est)
	}
	if _, ok := findFactor(est.Factors, "price_range"); !ok {
		t.Fatalf("expected price_range factor, got %v", factorNames(est.Factors))
	}
	if _, ok := findFactor(est.Factors, "sqft_range"); !ok {
		t.Fatalf("expected sqft_range factor for 5000 sq ft")
	}
	if !(est.Confidence < 0.9) {
		t.Fatalf("extreme input should lower confidence, got %v", est.Confidence)
	}
}

func TestEstimateFloor(t *testing.T) {
	f := losAngeles()
	f.SquareFootage = 100
	f.City = ""
	est, err := testEstimator(t).Estimate(f)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if est.PredictedPrice != 195000 {
		t.Fatalf("expected floor 195,000, got %.0f", est.PredictedPrice)
	}
	if _, ok := findFactor(est.Factors, "price_floor"); !ok {
		t.Fatalf("expected price_floor factor, got %v", factorNames(est.Factors))
	}
	if est.Confidence < minConfidence {
		t.Fatalf("confidence below minimum: %v", est.Confidence)
	}
}

func TestEstimateBathroomExplanation(t *testing.T) {
	f := losAngeles()
	f.Bathrooms = floatPtr(2.1)
	est, err := testEstimator(t).Estimate(f)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	bath, _ := findFactor(est.Factors, "bathroom_adjustment")
	if !strings.Contains(bath.Description, "2 full + 1 half") {
		t.Fatalf("unexpected bathroom factor %q", bath.Description)
	}
	if !(est.PredictedPrice > 1020000) {
		t.Fatalf("a half bath above baseline should raise the estimate, got %.0f", est.PredictedPrice)
	}
}

func TestNewCopiesCityTable(t *testing.T) {
	cal := testCalibration()
	e, err := New(cal)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	cal.Cities["los angeles, ca"] = 9
	est, err := e.Estimate(losAngeles())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if est.PredictedPrice != 1020000 {
		t.Fatalf("estimator must not observe caller mutations, got %.0f", est.PredictedPrice)
	}
}

func TestNewRejectsInvalidCalibration(t *testing.T) {
	cal := testCalibration()
	cal.Slope = 0
	if _, err := New(cal); err == nil {
		t.Fatalf("expected zero slope to be rejected")
	}
	cal = testCalibration()
	cal.BedRate = -0.1
	if _, err := New(cal); err == nil {
		t.Fatalf("expected negative bed rate to be rejected")
	}
}
