package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Brownie44l1/house-price-api/internal/combiner"
	"github.com/Brownie44l1/house-price-api/internal/domain"
	"github.com/Brownie44l1/house-price-api/internal/estimator"
	"github.com/Brownie44l1/house-price-api/internal/imaging"
	"github.com/Brownie44l1/house-price-api/internal/model"
	"github.com/Brownie44l1/house-price-api/internal/stats"
)

// ImageClassifier is the part of *model.Classifier the predictor needs.
type ImageClassifier interface {
	Classify(ctx context.Context, t *imaging.Tensor) (domain.TierPrediction, error)
	Metadata() (model.Metadata, error)
	Ready() bool
}

// Predictor is the entry point for price predictions and dataset
// statistics. The two estimators fail independently.
type Predictor struct {
	logger     *zap.Logger
	classifier ImageClassifier
	estimator  *estimator.Estimator
	stats      *stats.Service
	bands      domain.Bands
	maxPixels  int64
}

// NewPredictor wires the estimators. maxImagePixels bounds the declared
// size of decoded images; zero means imaging.DefaultMaxPixels.
func NewPredictor(logger *zap.Logger, classifier ImageClassifier, est *estimator.Estimator, statsSvc *stats.Service, maxImagePixels int64) *Predictor {
	return &Predictor{
		logger:     logger,
		classifier: classifier,
		estimator:  est,
		stats:      statsSvc,
		bands:      est.Calibration().Bands,
		maxPixels:  maxImagePixels,
	}
}

// ModelReady reports whether image classification is available.
func (p *Predictor) ModelReady() bool {
	return p.classifier.Ready()
}

// ClassifyImage decodes, preprocesses and classifies an encoded image.
func (p *Predictor) ClassifyImage(ctx context.Context, raw []byte) (domain.TierPrediction, domain.PriceBand, error) {
	metadata, err := p.classifier.Metadata()
	if err != nil {
		return domain.TierPrediction{}, domain.PriceBand{}, err
	}
	opts := metadata.PreprocessOptions()
	opts.MaxPixels = p.maxPixels
	tensor, err := imaging.Preprocess(raw, opts)
	if err != nil {
		return domain.TierPrediction{}, domain.PriceBand{}, err
	}
	defer tensor.Release()
	return p.classify(ctx, tensor)
}

// ClassifyTensor classifies an already-normalised tensor in the model's
// layout.
func (p *Predictor) ClassifyTensor(ctx context.Context, values []float32) (domain.TierPrediction, domain.PriceBand, error) {
	metadata, err := p.classifier.Metadata()
	if err != nil {
		return domain.TierPrediction{}, domain.PriceBand{}, err
	}
	opts := metadata.PreprocessOptions()
	tensor, err := imaging.NewTensor(values, opts.Size, opts.Layout)
	if err != nil {
		return domain.TierPrediction{}, domain.PriceBand{}, err
	}
	defer tensor.Release()
	return p.classify(ctx, tensor)
}

func (p *Predictor) classify(ctx context.Context, tensor *imaging.Tensor) (domain.TierPrediction, domain.PriceBand, error) {
	pred, err := p.classifier.Classify(ctx, tensor)
	if err != nil {
		return domain.TierPrediction{}, domain.PriceBand{}, err
	}
	return pred, p.bands.For(pred.Tier), nil
}

func (p *Predictor) EstimateFromFeatures(f domain.PropertyFeatures) (estimator.FeatureEstimate, error) {
	return p.estimator.Estimate(f)
}

// CombinedRequest is the input of PredictCombined. FeaturesErr reports
// features that were supplied but could not be parsed; it fails the
// feature half only.
type CombinedRequest struct {
	RequestID   string
	Image       []byte
	Features    *domain.PropertyFeatures
	FeaturesErr error
}

// PredictCombined runs whichever estimators have input, concurrently, and
// merges their results. It never fails as a whole: a failing half is
// reported in its status.
func (p *Predictor) PredictCombined(ctx context.Context, req CombinedRequest) combiner.CombinedResult {
	var (
		wg    sync.WaitGroup
		image *combiner.ImageOutcome
		feats *combiner.FeatureOutcome
	)
	if len(req.Image) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pred, band, err := p.ClassifyImage(ctx, req.Image)
			image = &combiner.ImageOutcome{Prediction: pred, Band: band, Err: err}
		}()
	}
	switch {
	case req.FeaturesErr != nil:
		feats = &combiner.FeatureOutcome{Err: req.FeaturesErr}
	case req.Features != nil:
		est, err := p.estimator.Estimate(*req.Features)
		feats = &combiner.FeatureOutcome{Estimate: est, Err: err}
	}
	wg.Wait()

	result := combiner.Combine(req.RequestID, image, feats)
	fields := []zap.Field{
		zap.String("request_id", result.RequestID),
		zap.String("image_status", string(result.Image.Status)),
		zap.String("feature_status", string(result.Features.Status)),
	}
	if image != nil && image.Err != nil {
		fields = append(fields, zap.NamedError("image_error", image.Err))
	}
	if feats != nil && feats.Err != nil {
		fields = append(fields, zap.NamedError("feature_error", feats.Err))
	}
	p.logger.Info("combined prediction", fields...)
	return result
}

func (p *Predictor) GetDatasetStatistics(ctx context.Context) (stats.DatasetStatistics, error) {
	return p.stats.Statistics(ctx)
}

func (p *Predictor) CityStatistics(ctx context.Context) ([]stats.CityStats, error) {
	return p.stats.Cities(ctx)
}

func (p *Predictor) VisualizationData(ctx context.Context) (stats.Visualization, error) {
	return p.stats.Visualization(ctx)
}

// InvalidateStatistics forces the next statistics call to reload the
// dataset.
func (p *Predictor) InvalidateStatistics(ctx context.Context) error {
	return p.stats.Invalidate(ctx)
}
