package combiner

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/Brownie44l1/house-price-api/internal/domain"
	"github.com/Brownie44l1/house-price-api/internal/estimator"
)

// Status tells a caller whether a half of the result was computed.
type Status string

const (
	StatusOK     Status = "ok"
	StatusError  Status = "error"
	StatusAbsent Status = "absent"
)

// ImageOutcome is what the image path produced. A nil *ImageOutcome means
// the image estimator was not run.
type ImageOutcome struct {
	Prediction domain.TierPrediction
	Band       domain.PriceBand
	Err        error
}

// FeatureOutcome is what the feature path produced. A nil *FeatureOutcome
// means the feature estimator was not run.
type FeatureOutcome struct {
	Estimate estimator.FeatureEstimate
	Err      error
}

type ImageResult struct {
	Status     Status                 `json:"status"`
	Prediction *domain.TierPrediction `json:"prediction,omitempty"`
	Band       *domain.PriceBand      `json:"price_band,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

type FeatureResult struct {
	Status   Status                     `json:"status"`
	Estimate *estimator.FeatureEstimate `json:"estimate,omitempty"`
	Error    string                     `json:"error,omitempty"`
}

// CombinedResult shows both estimators side by side. It is request scoped.
type CombinedResult struct {
	RequestID string        `json:"request_id"`
	Image     ImageResult   `json:"image_result"`
	Features  FeatureResult `json:"feature_result"`
	Notes     []string      `json:"reconciliation_notes"`
}

// Succeeded reports whether at least one half was computed.
func (r CombinedResult) Succeeded() bool {
	return r.Image.Status == StatusOK || r.Features.Status == StatusOK
}

var newRequestID = uuid.NewString

// Combine merges the two outcomes without re-estimating anything. An empty
// requestID is replaced by a fresh one.
func Combine(requestID string, image *ImageOutcome, features *FeatureOutcome) CombinedResult {
	if requestID == "" {
		requestID = newRequestID()
	}
	result := CombinedResult{
		RequestID: requestID,
		Image:     imageResult(image),
		Features:  featureResult(features),
		Notes:     []string{},
	}

	img, feat := result.Image, result.Features
	switch {
	case img.Status == StatusOK && feat.Status == StatusOK:
		imageTier, featureTier := img.Prediction.Tier, feat.Estimate.PriceRange
		if imageTier != featureTier {
			result.Notes = append(result.Notes, fmt.Sprintf(
				"image suggests %s, feature model suggests %s: visual and quantitative signals diverge",
				imageTier, featureTier))
		} else {
			result.Notes = append(result.Notes, fmt.Sprintf(
				"image and feature model agree on the %s range", imageTier))
		}
	case img.Status == StatusOK:
		result.Notes = append(result.Notes, missingNote("feature estimate", feat.Status, feat.Error))
	case feat.Status == StatusOK:
		result.Notes = append(result.Notes, missingNote("image estimate", img.Status, img.Error))
	default:
		result.Notes = append(result.Notes, "no estimator produced a result")
	}

	if feat.Status == StatusOK && feat.Estimate.AboveTypicalRange {
		result.Notes = append(result.Notes, "feature estimate is above the typical range of the reference data")
	}
	return result
}

func missingNote(what string, status Status, reason string) string {
	if status == StatusAbsent {
		return what + " not computed"
	}
	return fmt.Sprintf("%s unavailable: %s", what, reason)
}

func imageResult(o *ImageOutcome) ImageResult {
	switch {
	case o == nil:
		return ImageResult{Status: StatusAbsent}
	case o.Err != nil:
		return ImageResult{Status: StatusError, Error: o.Err.Error()}
	}
	pred, band := o.Prediction, o.Band
	return ImageResult{Status: StatusOK, Prediction: &pred, Band: &band}
}

func featureResult(o *FeatureOutcome) FeatureResult {
	switch {
	case o == nil:
		return FeatureResult{Status: StatusAbsent}
	case o.Err != nil:
		return FeatureResult{Status: StatusError, Error: o.Err.Error()}
	}
	est := o.Estimate
	return FeatureResult{Status: StatusOK, Estimate: &est}
}
