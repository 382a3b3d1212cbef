package domain

import "math"

// PropertyFeatures are the structured inputs of the feature-based estimator.
// Bedrooms and Bathrooms are optional; nil means "not supplied".
// Bathrooms use the full.half convention: 2.1 is two full baths and one half bath.
type PropertyFeatures struct {
	SquareFootage float64  `json:"sqft"`
	Bedrooms      *int     `json:"bed,omitempty"`
	Bathrooms     *float64 `json:"bath,omitempty"`
	City          string   `json:"city,omitempty"`
}

// HouseRecord is one row of the reference dataset.
type HouseRecord struct {
	City  string  `json:"city"`
	Price float64 `json:"price"`
	Sqft  float64 `json:"sqft"`
	Bed   int     `json:"bed"`
	Bath  float64 `json:"bath"`
}

// SplitBathrooms decodes the full.half convention.
func SplitBathrooms(v float64) (full, half int) {
	whole := math.Floor(v)
	return int(whole), int(math.Round((v - whole) * 10))
}

// EffectiveBathrooms counts a half bath as half of a full one.
func EffectiveBathrooms(v float64) float64 {
	full, half := SplitBathrooms(v)
	return float64(full) + 0.5*float64(half)
}
