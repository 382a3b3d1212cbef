package stats

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/Brownie44l1/house-price-api/internal/domain"
)

// Bucket counts the records whose price falls in one tier's band.
type Bucket struct {
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	OpenEnded  bool    `json:"open_ended"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type PriceRanges struct {
	Low  Bucket `json:"low"`
	Mid  Bucket `json:"mid"`
	High Bucket `json:"high"`
}

func (p *PriceRanges) at(t domain.Tier) *Bucket {
	switch t {
	case domain.TierLow:
		return &p.Low
	case domain.TierMid:
		return &p.Mid
	default:
		return &p.High
	}
}

// For returns the bucket of a tier.
func (p PriceRanges) For(t domain.Tier) Bucket {
	return *p.at(t)
}

// DatasetStatistics summarises the reference dataset.
type DatasetStatistics struct {
	TotalCount       int            `json:"total_count"`
	AveragePrice     float64        `json:"average_price"`
	AverageSqft      float64        `json:"average_sqft"`
	AverageBed       float64        `json:"average_bed"`
	AverageBath      float64        `json:"average_bath"`
	PriceRanges      PriceRanges    `json:"price_range_buckets"`
	BedDistribution  map[string]int `json:"bed_distribution"`
	BathDistribution map[string]int `json:"bath_distribution"`
}

// Aggregate computes dataset statistics in one pass. Every record lands in
// exactly one bucket, so bucket counts sum to TotalCount.
func Aggregate(records []domain.HouseRecord, bands domain.Bands) DatasetStatistics {
	s := DatasetStatistics{
		TotalCount:       len(records),
		BedDistribution:  map[string]int{},
		BathDistribution: map[string]int{},
	}
	for _, t := range domain.Tiers() {
		band := bands.For(t)
		*s.PriceRanges.at(t) = Bucket{Min: band.Min, Max: band.Max, OpenEnded: band.OpenEnded}
	}

	var sumPrice, sumSqft, sumBed, sumBath float64
	for _, r := range records {
		sumPrice += r.Price
		sumSqft += r.Sqft
		sumBed += float64(r.Bed)
		sumBath += r.Bath
		s.PriceRanges.at(bands.TierOf(r.Price)).Count++
		s.BedDistribution[strconv.Itoa(r.Bed)]++
		s.BathDistribution[strconv.FormatFloat(r.Bath, 'f', -1, 64)]++
	}

	n := float64(max(s.TotalCount, 1))
	s.AveragePrice = sumPrice / n
	s.AverageSqft = sumSqft / n
	s.AverageBed = sumBed / n
	s.AverageBath = sumBath / n
	for _, t := range domain.Tiers() {
		b := s.PriceRanges.at(t)
		b.Percentage = float64(b.Count) / n * 100
	}
	return s
}

// CityStats summarises the records of one city.
type CityStats struct {
	City         string  `json:"city"`
	HouseCount   int     `json:"house_count"`
	AveragePrice float64 `json:"avg_price"`
	MinPrice     float64 `json:"min_price"`
	MaxPrice     float64 `json:"max_price"`
	AverageSqft  float64 `json:"avg_sqft"`
	AverageBed   float64 `json:"avg_bed"`
	AverageBath  float64 `json:"avg_bath"`
}

// CityBreakdown groups records by trimmed city label, most expensive city
// first. Equal averages are ordered by name.
func CityBreakdown(records []domain.HouseRecord) []CityStats {
	byCity := map[string]*CityStats{}
	for _, r := range records {
		name := strings.TrimSpace(r.City)
		c, ok := byCity[name]
		if !ok {
			c = &CityStats{City: name, MinPrice: r.Price, MaxPrice: r.Price}
			byCity[name] = c
		}
		c.HouseCount++
		c.AveragePrice += r.Price
		c.AverageSqft += r.Sqft
		c.AverageBed += float64(r.Bed)
		c.AverageBath += r.Bath
		c.MinPrice = math.Min(c.MinPrice, r.Price)
		c.MaxPrice = math.Max(c.MaxPrice, r.Price)
	}

	out := make([]CityStats, 0, len(byCity))
	for _, c := range byCity {
		n := float64(c.HouseCount)
		c.AveragePrice /= n
		c.AverageSqft /= n
		c.AverageBed /= n
		c.AverageBath /= n
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b CityStats) int {
		if c := cmp.Compare(b.AveragePrice, a.AveragePrice); c != 0 {
			return c
		}
		return strings.Compare(a.City, b.City)
	})
	return out
}

type Series struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

type Histogram struct {
	Price []float64 `json:"price"`
	Sqft  []float64 `json:"sqft"`
}

type Scatter struct {
	SqftVsPrice Series `json:"sqft_vs_price"`
	BedVsPrice  Series `json:"bed_vs_price"`
	BathVsPrice Series `json:"bath_vs_price"`
}

// Correlations are Pearson coefficients against price. A coefficient is 0
// when either variable is constant.
type Correlations struct {
	PriceSqft float64 `json:"price_sqft"`
	PriceBed  float64 `json:"price_bed"`
	PriceBath float64 `json:"price_bath"`
}

// Visualization is the raw material for the dataset charts.
type Visualization struct {
	Histogram    Histogram    `json:"histogram_data"`
	Scatter      Scatter      `json:"scatter_data"`
	Correlations Correlations `json:"correlation_matrix"`
}

func NewVisualization(records []domain.HouseRecord) Visualization {
	n := len(records)
	price := make([]float64, n)
	sqft := make([]float64, n)
	bed := make([]float64, n)
	bath := make([]float64, n)
	for i, r := range records {
		price[i], sqft[i], bed[i], bath[i] = r.Price, r.Sqft, float64(r.Bed), r.Bath
	}
	return Visualization{
		Histogram: Histogram{Price: price, Sqft: sqft},
		Scatter: Scatter{
			SqftVsPrice: Series{X: sqft, Y: price},
			BedVsPrice:  Series{X: bed, Y: price},
			BathVsPrice: Series{X: bath, Y: price},
		},
		Correlations: Correlations{
			PriceSqft: Pearson(price, sqft),
			PriceBed:  Pearson(price, bed),
			PriceBath: Pearson(price, bath),
		},
	}
}

// Pearson returns the correlation coefficient of two equal-length samples.
func Pearson(x, y []float64) float64 {
	n := min(len(x), len(y))
	if n < 2 {
		return 0
	}
	var mx, my float64
	for i := range n {
		mx += x[i]
		my += y[i]
	}
	mx /= float64(n)
	my /= float64(n)

	var sxx, syy, sxy float64
	for i := range n {
		dx, dy := x[i]-mx, y[i]-my
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	if sxx == 0 || syy == 0 {
		return 0
	}
	return sxy / math.Sqrt(sxx*syy)
}

// Report bundles everything derived from one version of the dataset.
type Report struct {
	Fingerprint   string            `json:"fingerprint"`
	Statistics    DatasetStatistics `json:"statistics"`
	Cities        []CityStats       `json:"cities"`
	Visualization Visualization     `json:"visualization"`
}

func BuildReport(fingerprint string, records []domain.HouseRecord, bands domain.Bands) Report {
	return Report{
		Fingerprint:   fingerprint,
		Statistics:    Aggregate(records, bands),
		Cities:        CityBreakdown(records),
		Visualization: NewVisualization(records),
	}
}
