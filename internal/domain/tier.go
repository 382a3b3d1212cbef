package domain

import (
	"fmt"
	"strings"
)

// Tier is a price category. The numeric order Low < Mid < High is also the
// tie-break order used when classifier outputs are equal.
type Tier int

const (
	TierLow Tier = iota
	TierMid
	TierHigh
)

var tierNames = [...]string{"Low", "Mid", "High"}

// Tiers lists every tier in enum order.
func Tiers() []Tier {
	return []Tier{TierLow, TierMid, TierHigh}
}

func (t Tier) String() string {
	if t < TierLow || t > TierHigh {
		return fmt.Sprintf("Tier(%d)", int(t))
	}
	return tierNames[t]
}

// ParseTier accepts tier names case-insensitively.
func ParseTier(s string) (Tier, error) {
	for i, name := range tierNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Tier(i), nil
		}
	}
	return 0, fmt.Errorf("unknown tier %q", s)
}

func (t Tier) MarshalText() ([]byte, error) {
	if t < TierLow || t > TierHigh {
		return nil, fmt.Errorf("invalid tier %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TierPrediction is the image classifier's answer.
type TierPrediction struct {
	Tier       Tier             `json:"tier"`
	Confidence float64          `json:"confidence"`
	PerTier    map[Tier]float64 `json:"per_tier_confidences"`
}

// PriceBand is the currency interval of a tier. The top band is open ended:
// Max is its nominal upper bound, not a limit.
type PriceBand struct {
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	OpenEnded bool    `json:"open_ended"`
}

// Bands maps each tier, by index, to its price band.
type Bands [3]PriceBand

// DefaultBands split the modelled $195,000 to $2,000,000 range in three equal
// whole-dollar intervals.
var DefaultBands = Bands{
	TierLow:  {Min: 195000, Max: 796666},
	TierMid:  {Min: 796667, Max: 1398333},
	TierHigh: {Min: 1398334, Max: 2000000, OpenEnded: true},
}

// Validate checks that the bands form a contiguous whole-dollar partition
// with only the top band open ended.
func (b Bands) Validate() error {
	for i, band := range b {
		tier := Tier(i)
		if band.Min < 0 || band.Max < band.Min {
			return fmt.Errorf("band %s: invalid interval [%.0f, %.0f]", tier, band.Min, band.Max)
		}
		if band.OpenEnded != (tier == TierHigh) {
			return fmt.Errorf("band %s: only the %s band may be open ended", tier, TierHigh)
		}
		if i > 0 && band.Min != b[i-1].Max+1 {
			return fmt.Errorf("band %s: starts at %.0f, expected %.0f", tier, band.Min, b[i-1].Max+1)
		}
	}
	return nil
}

// For returns the band of a tier.
func (b Bands) For(t Tier) PriceBand {
	return b[t]
}

// TierOf returns the tier whose band contains price. Prices below the floor
// belong to Low and prices above the nominal top belong to High.
func (b Bands) TierOf(price float64) Tier {
	switch {
	case price <= b[TierLow].Max:
		return TierLow
	case price <= b[TierMid].Max:
		return TierMid
	default:
		return TierHigh
	}
}

// Floor is the lowest modelled price.
func (b Bands) Floor() float64 {
	return b[TierLow].Min
}

// Ceiling is the nominal top of the modelled range.
func (b Bands) Ceiling() float64 {
	return b[TierHigh].Max
}
