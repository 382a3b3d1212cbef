package estimator

import (
	"fmt"
	"maps"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Brownie44l1/house-price-api/internal/domain"
)

const (
	baseConfidence   = 0.9
	unknownCityScale = 0.8
	missingPenalty   = 0.1
	minRangeScale    = 0.5
	minConfidence    = 0.05
	maxConfidence    = 0.95
	minModifier      = 0.5
)

// Factor is one human-readable contribution to an estimate.
type Factor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// FeatureEstimate is the feature-based estimator's answer.
type FeatureEstimate struct {
	PredictedPrice    float64          `json:"predicted_price"`
	PriceRange        domain.Tier      `json:"price_range"`
	Band              domain.PriceBand `json:"price_band"`
	Confidence        float64          `json:"confidence"`
	AboveTypicalRange bool             `json:"above_typical_range"`
	CityRecognized    bool             `json:"city_recognized"`
	Factors           []Factor         `json:"factors"`
}

// Estimator computes point estimates from property features. It holds only
// immutable calibration data and is safe for concurrent use.
type Estimator struct {
	cal     Calibration
	printer *message.Printer
}

// New validates cal and returns an estimator that owns a private copy of it.
func New(cal Calibration) (*Estimator, error) {
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	cal.Cities = maps.Clone(cal.Cities)
	return &Estimator{cal: cal, printer: message.NewPrinter(language.English)}, nil
}

// Calibration returns a copy of the estimator's calibration.
func (e *Estimator) Calibration() Calibration {
	c := e.cal
	c.Cities = maps.Clone(e.cal.Cities)
	return c
}

// Estimate predicts a price for f. It is deterministic: equal inputs give
// bit-identical results.
func (e *Estimator) Estimate(f domain.PropertyFeatures) (FeatureEstimate, error) {
	if err := validate(f); err != nil {
		return FeatureEstimate{}, err
	}
	c := e.cal
	missing := 0
	factors := make([]Factor, 0, 8)

	base := c.Intercept + c.Slope*f.SquareFootage
	factors = append(factors,
		Factor{"base_price", e.printer.Sprintf("Base price $%.0f for %.0f sq ft; square footage is the strongest predictor (correlation with price: %.2f)",
			base, f.SquareFootage, c.Correlation)},
		Factor{"price_per_sqft", e.printer.Sprintf("$%.2f per sq ft (%s)", c.Slope, c.Method)},
	)

	cityMult, known := 1.0, false
	city := NormalizeCity(f.City)
	switch m, ok := c.Cities[city]; {
	case city == "":
		missing++
		factors = append(factors, Factor{"city_adjustment", "No city supplied; neutral multiplier 1.00 applied"})
	case ok:
		cityMult, known = m, true
		factors = append(factors, Factor{"city_adjustment", fmt.Sprintf("City adjustment for %s: x%.2f", f.City, m)})
	default:
		factors = append(factors, Factor{"city_adjustment", fmt.Sprintf("City %q not in reference data; neutral multiplier 1.00 applied", f.City)})
	}

	bedFactor := 1.0
	if f.Bedrooms == nil {
		missing++
		factors = append(factors, Factor{"bedroom_adjustment", fmt.Sprintf("Bedrooms not supplied; baseline of %.1f assumed", c.BaselineBed)})
	} else {
		bedFactor = modifier(c.BedRate, float64(*f.Bedrooms)-c.BaselineBed)
		factors = append(factors, Factor{"bedroom_adjustment", fmt.Sprintf("%d bedrooms vs baseline %.1f: x%.2f", *f.Bedrooms, c.BaselineBed, bedFactor)})
	}

	bathFactor := 1.0
	if f.Bathrooms == nil {
		missing++
		factors = append(factors, Factor{"bathroom_adjustment", fmt.Sprintf("Bathrooms not supplied; baseline of %.1f assumed", c.BaselineBath)})
	} else {
		full, half := domain.SplitBathrooms(*f.Bathrooms)
		bathFactor = modifier(c.BathRate, domain.EffectiveBathrooms(*f.Bathrooms)-c.BaselineBath)
		factors = append(factors, Factor{"bathroom_adjustment", fmt.Sprintf("%d full + %d half baths vs baseline %.1f: x%.2f", full, half, c.BaselineBath, bathFactor)})
	}

	price := math.Round(base * cityMult * bedFactor * bathFactor)
	if price < c.PriceFloor {
		price = c.PriceFloor
		factors = append(factors, Factor{"price_floor", e.printer.Sprintf("Estimate raised to the $%.0f floor of the reference data", c.PriceFloor)})
	}
	above := price > c.PriceCeiling
	if above {
		factors = append(factors, Factor{"price_range", e.printer.Sprintf("Above typical range: exceeds $%.0f", c.PriceCeiling)})
	}

	rangeScale := e.sqftRangeScale(f.SquareFootage)
	if rangeScale < 1 {
		factors = append(factors, Factor{"sqft_range", e.printer.Sprintf("%.0f sq ft is outside the well-represented range of %.0f-%.0f sq ft; confidence reduced",
			f.SquareFootage, c.SqftLow, c.SqftHigh)})
	}

	confidence := baseConfidence * (1 - missingPenalty*float64(missing)) * rangeScale
	if !known {
		confidence *= unknownCityScale
	}
	confidence = math.Max(minConfidence, math.Min(maxConfidence, confidence))

	tier := c.Bands.TierOf(price)
	return FeatureEstimate{
		PredictedPrice:    price,
		PriceRange:        tier,
		Band:              c.Bands.For(tier),
		Confidence:        confidence,
		AboveTypicalRange: above,
		CityRecognized:    known,
		Factors:           factors,
	}, nil
}

// modifier is non-decreasing in delta for rate >= 0.
func modifier(rate, delta float64) float64 {
	return math.Max(minModifier, 1+rate*delta)
}

// sqftRangeScale is 1 inside the calibrated range and the ratio to the
// nearer bound outside it, never below minRangeScale.
func (e *Estimator) sqftRangeScale(sqft float64) float64 {
	lo, hi := e.cal.SqftLow, e.cal.SqftHigh
	switch {
	case lo <= 0 || hi <= 0:
		return 1
	case sqft < lo:
		return math.Max(minRangeScale, sqft/lo)
	case sqft > hi:
		return math.Max(minRangeScale, hi/sqft)
	default:
		return 1
	}
}

func validate(f domain.PropertyFeatures) error {
	if math.IsNaN(f.SquareFootage) || math.IsInf(f.SquareFootage, 0) {
		return &InvalidFeatureError{Field: "square_footage", Reason: "must be a finite number"}
	}
	if f.SquareFootage <= 0 {
		return &InvalidFeatureError{Field: "square_footage", Reason: "must be greater than zero"}
	}
	if f.Bedrooms != nil && *f.Bedrooms < 0 {
		return &InvalidFeatureError{Field: "bedrooms", Reason: "must not be negative"}
	}
	if f.Bathrooms != nil {
		if math.IsNaN(*f.Bathrooms) || math.IsInf(*f.Bathrooms, 0) {
			return &InvalidFeatureError{Field: "bathrooms", Reason: "must be a finite number"}
		}
		if *f.Bathrooms < 0 {
			return &InvalidFeatureError{Field: "bathrooms", Reason: "must not be negative"}
		}
	}
	return nil
}
