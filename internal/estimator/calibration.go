package estimator

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/Brownie44l1/house-price-api/internal/domain"
)

const (
	// DefaultBedRate and DefaultBathRate are the fractional price change per
	// bedroom / effective bathroom away from the baseline.
	DefaultBedRate  = 0.10
	DefaultBathRate = 0.05

	// cityPrior is the number of pseudo-records at multiplier 1.0 blended
	// into each city's observed ratio.
	cityPrior = 5.0
)

// Calibration methods.
const (
	MethodLeastSquares = "least_squares"
	MethodPricePerSqft = "price_per_sqft"
	MethodConfigured   = "configured"
)

// Constants are the regression and modifier parameters.
type Constants struct {
	Slope        float64 `json:"slope"`
	Intercept    float64 `json:"intercept"`
	BaselineBed  float64 `json:"baseline_bed"`
	BaselineBath float64 `json:"baseline_bath"`
	BedRate      float64 `json:"bed_rate"`
	BathRate     float64 `json:"bath_rate"`
}

// Calibration is everything the estimator needs from the reference dataset.
// Treat it as immutable once passed to New.
type Calibration struct {
	Constants
	Method       string
	Correlation  float64
	Records      int
	SqftLow      float64
	SqftHigh     float64
	Cities       map[string]float64
	Bands        domain.Bands
	PriceFloor   float64
	PriceCeiling float64
}

// Overrides replace calibrated values with configured ones. Nil fields keep
// the calibrated value.
type Overrides struct {
	CityTable    map[string]float64
	Slope        *float64
	Intercept    *float64
	BaselineBed  *float64
	BaselineBath *float64
	BedRate      *float64
	BathRate     *float64
	PriceFloor   *float64
	PriceCeiling *float64
	Bands        *domain.Bands
}

// NormalizeCity lower-cases a city label and collapses whitespace.
func NormalizeCity(city string) string {
	return strings.ToLower(strings.Join(strings.Fields(city), " "))
}

// Calibrate fits the estimator to the reference dataset.
//
// Base price is an ordinary least squares fit of price on square footage.
// When the data cannot support a positive slope, it falls back to mean
// price / mean square footage with no intercept. City multipliers are each
// city's total price over its total base price, shrunk toward 1.0.
func Calibrate(records []domain.HouseRecord, bands domain.Bands) (Calibration, error) {
	if err := bands.Validate(); err != nil {
		return Calibration{}, err
	}

	valid := make([]domain.HouseRecord, 0, len(records))
	for _, r := range records {
		if r.Price > 0 && r.Sqft > 0 && !math.IsInf(r.Price, 0) && !math.IsInf(r.Sqft, 0) {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return Calibration{}, errors.New("calibrate: no usable records")
	}

	n := float64(len(valid))
	var sumP, sumS, sumBed, sumBath float64
	for _, r := range valid {
		sumP += r.Price
		sumS += r.Sqft
		sumBed += float64(r.Bed)
		sumBath += domain.EffectiveBathrooms(r.Bath)
	}
	meanP, meanS := sumP/n, sumS/n

	var sxx, sxy, syy float64
	for _, r := range valid {
		dx, dy := r.Sqft-meanS, r.Price-meanP
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}

	cal := Calibration{
		Constants: Constants{
			BaselineBed:  sumBed / n,
			BaselineBath: sumBath / n,
			BedRate:      DefaultBedRate,
			BathRate:     DefaultBathRate,
		},
		Records:      len(valid),
		Bands:        bands,
		PriceFloor:   bands.Floor(),
		PriceCeiling: bands.Ceiling(),
	}
	if sxx > 0 && syy > 0 {
		cal.Correlation = sxy / math.Sqrt(sxx*syy)
	}
	if sxx > 0 && sxy > 0 {
		cal.Slope = sxy / sxx
		cal.Intercept = meanP - cal.Slope*meanS
		cal.Method = MethodLeastSquares
	} else {
		cal.Slope = meanP / meanS
		cal.Method = MethodPricePerSqft
	}

	sqft := make([]float64, len(valid))
	for i, r := range valid {
		sqft[i] = r.Sqft
	}
	slices.Sort(sqft)
	cal.SqftLow = percentile(sqft, 0.05)
	cal.SqftHigh = percentile(sqft, 0.95)

	cal.Cities = cityMultipliers(valid, cal.Constants)
	return cal, nil
}

func cityMultipliers(records []domain.HouseRecord, c Constants) map[string]float64 {
	type acc struct{ price, base, n float64 }
	byCity := make(map[string]*acc)
	for _, r := range records {
		city := NormalizeCity(r.City)
		if city == "" {
			continue
		}
		base := c.Intercept + c.Slope*r.Sqft
		if base <= 0 {
			continue
		}
		a, ok := byCity[city]
		if !ok {
			a = &acc{}
			byCity[city] = a
		}
		a.price += r.Price
		a.base += base
		a.n++
	}

	out := make(map[string]float64, len(byCity))
	for city, a := range byCity {
		ratio := a.price / a.base
		out[city] = (a.n*ratio + cityPrior) / (a.n + cityPrior)
	}
	return out
}

// percentile uses the nearest-rank method on sorted values.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(q*float64(len(sorted)))) - 1
	rank = max(0, min(rank, len(sorted)-1))
	return sorted[rank]
}

// Apply returns a copy of c with the overrides applied and validated.
func (c Calibration) Apply(o Overrides) (Calibration, error) {
	out := c
	out.Cities = maps.Clone(c.Cities)
	configured := false

	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
			configured = true
		}
	}
	set(&out.Slope, o.Slope)
	set(&out.Intercept, o.Intercept)
	set(&out.BaselineBed, o.BaselineBed)
	set(&out.BaselineBath, o.BaselineBath)
	set(&out.BedRate, o.BedRate)
	set(&out.BathRate, o.BathRate)
	if o.Slope != nil || o.Intercept != nil {
		out.Method = MethodConfigured
	}

	if o.Bands != nil {
		out.Bands = *o.Bands
		out.PriceFloor = o.Bands.Floor()
		out.PriceCeiling = o.Bands.Ceiling()
	}
	set(&out.PriceFloor, o.PriceFloor)
	set(&out.PriceCeiling, o.PriceCeiling)

	if o.CityTable != nil {
		out.Cities = make(map[string]float64, len(o.CityTable))
		for city, m := range o.CityTable {
			out.Cities[NormalizeCity(city)] = m
		}
		configured = true
	}
	if configured && out.Method == "" {
		out.Method = MethodConfigured
	}

	if err := out.Validate(); err != nil {
		return Calibration{}, err
	}
	return out, nil
}

// Validate checks the invariants the estimator relies on.
func (c Calibration) Validate() error {
	if err := c.Bands.Validate(); err != nil {
		return err
	}
	if !(c.Slope > 0) || math.IsInf(c.Slope, 0) {
		return fmt.Errorf("calibration: slope must be positive, got %v", c.Slope)
	}
	if math.IsNaN(c.Intercept) || math.IsInf(c.Intercept, 0) {
		return fmt.Errorf("calibration: intercept must be finite")
	}
	if c.BedRate < 0 || c.BathRate < 0 {
		return fmt.Errorf("calibration: bed/bath rates must not be negative")
	}
	if c.BaselineBed < 0 || c.BaselineBath < 0 {
		return fmt.Errorf("calibration: baselines must not be negative")
	}
	if !(c.PriceFloor > 0) || c.PriceCeiling <= c.PriceFloor {
		return fmt.Errorf("calibration: need 0 < price_floor < price_ceiling, got %v / %v", c.PriceFloor, c.PriceCeiling)
	}
	for city, m := range c.Cities {
		if !(m > 0) || math.IsInf(m, 0) {
			return fmt.Errorf("calibration: multiplier for %q must be positive", city)
		}
	}
	return nil
}

// FromOverrides builds a calibration from configuration alone, for running
// without a reference dataset. Slope must be configured.
func FromOverrides(o Overrides) (Calibration, error) {
	base := Calibration{
		Constants: Constants{
			BedRate:  DefaultBedRate,
			BathRate: DefaultBathRate,
		},
		Method:       MethodConfigured,
		Bands:        domain.DefaultBands,
		PriceFloor:   domain.DefaultBands.Floor(),
		PriceCeiling: domain.DefaultBands.Ceiling(),
	}
	return base.Apply(o)
}
