package model

import (
	"fmt"
	"slices"

	"github.com/Brownie44l1/house-price-api/internal/domain"
	"github.com/Brownie44l1/house-price-api/internal/imaging"
)

// Metadata describes the exported classifier. It is read from the JSON file
// shipped next to the model.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	InputName   string   `json:"input_name,omitempty"`
	OutputName  string   `json:"output_name,omitempty"`
	Layout      string   `json:"layout,omitempty"`
}

// DefaultMetadata matches a three-class 224x224 NHWC image model.
func DefaultMetadata() Metadata {
	return Metadata{
		InputShape:  []int64{1, imaging.DefaultSize, imaging.DefaultSize, imaging.Channels},
		OutputShape: []int64{1, 3},
		Classes:     []string{"Low", "Mid", "High"},
		ImageSize:   imaging.DefaultSize,
		InputName:   "input",
		OutputName:  "output",
		Layout:      string(imaging.LayoutNHWC),
	}
}

// PreprocessOptions returns the tensor format the model expects.
func (m Metadata) PreprocessOptions() imaging.Options {
	return imaging.Options{Size: m.ImageSize, Layout: imaging.Layout(m.Layout)}
}

// validate checks the metadata against the three-tier contract. It returns
// the metadata with its layout resolved and the tier produced by each
// output index. Without a layout, an input shape of [1 3 size size] means
// NCHW and anything else NHWC.
func (m Metadata) validate() (Metadata, []domain.Tier, error) {
	if m.ImageSize <= 0 {
		return m, nil, fmt.Errorf("metadata: image_size must be positive")
	}
	layout := imaging.Layout(m.Layout)
	if layout == "" {
		layout = imaging.LayoutNHWC
		if slices.Equal(m.InputShape, imaging.Shape(m.ImageSize, imaging.LayoutNCHW)) {
			layout = imaging.LayoutNCHW
		}
	}
	if layout != imaging.LayoutNHWC && layout != imaging.LayoutNCHW {
		return m, nil, fmt.Errorf("metadata: unknown layout %q", m.Layout)
	}
	m.Layout = string(layout)

	if want := imaging.Shape(m.ImageSize, layout); !slices.Equal(m.InputShape, want) {
		return m, nil, fmt.Errorf("metadata: input shape %v does not match %s layout %v", m.InputShape, layout, want)
	}
	if product(m.OutputShape) != 3 {
		return m, nil, fmt.Errorf("metadata: output shape %v must hold 3 values", m.OutputShape)
	}
	if len(m.Classes) != 3 {
		return m, nil, fmt.Errorf("metadata: expected 3 classes, got %d", len(m.Classes))
	}

	order := make([]domain.Tier, len(m.Classes))
	seen := make(map[domain.Tier]bool)
	for i, name := range m.Classes {
		tier, err := domain.ParseTier(name)
		if err != nil {
			return m, nil, fmt.Errorf("metadata: %w", err)
		}
		if seen[tier] {
			return m, nil, fmt.Errorf("metadata: duplicate class %s", tier)
		}
		seen[tier] = true
		order[i] = tier
	}
	return m, order, nil
}

func product(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

// PredictionRequest is a raw, already-normalised tensor.
type PredictionRequest struct {
	Image []float32 `json:"image"`
}
