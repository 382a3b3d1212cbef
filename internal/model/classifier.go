package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/Brownie44l1/house-price-api/internal/domain"
	"github.com/Brownie44l1/house-price-api/internal/imaging"
)

// ErrModelUnavailable is returned while the model is still loading or after
// loading failed.
var ErrModelUnavailable = errors.New("model unavailable")

// Backend is an opaque pretrained classifier: one input tensor in, one
// output vector out.
type Backend interface {
	Predict(ctx context.Context, input []float32) ([]float32, error)
}

// LoadFunc builds a backend, possibly slowly.
type LoadFunc func(ctx context.Context) (Backend, Metadata, error)

// Classifier adapts a three-class Backend to tier predictions.
type Classifier struct {
	logger *zap.Logger
	done   chan struct{}

	mu       sync.RWMutex
	backend  Backend
	metadata Metadata
	order    []domain.Tier
	loadErr  error
}

// Load starts loading the backend in the background and returns at once.
// Until loading finishes Classify fails with ErrModelUnavailable.
func Load(ctx context.Context, logger *zap.Logger, load LoadFunc) *Classifier {
	c := &Classifier{logger: logger, done: make(chan struct{})}
	go func() {
		defer close(c.done)
		backend, metadata, err := load(ctx)
		c.install(backend, metadata, err)
	}()
	return c
}

// NewClassifier wraps an already-loaded backend.
func NewClassifier(logger *zap.Logger, backend Backend, metadata Metadata) (*Classifier, error) {
	c := &Classifier{logger: logger, done: make(chan struct{})}
	c.install(backend, metadata, nil)
	close(c.done)
	if c.loadErr != nil {
		return nil, c.loadErr
	}
	return c, nil
}

func (c *Classifier) install(backend Backend, metadata Metadata, err error) {
	var order []domain.Tier
	if err == nil && backend == nil {
		err = errors.New("loader returned no backend")
	}
	if err == nil {
		metadata, order, err = metadata.validate()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.loadErr = err
		if closer, ok := backend.(io.Closer); ok {
			_ = closer.Close()
		}
		c.logger.Error("model load failed", zap.Error(err))
		return
	}
	c.backend = backend
	c.metadata = metadata
	c.order = order
	c.logger.Info("model ready",
		zap.Strings("classes", metadata.Classes),
		zap.Int64s("input_shape", metadata.InputShape))
}

// Ready reports whether Classify can be called.
func (c *Classifier) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backend != nil
}

// Wait blocks until the load attempt has finished and returns its error.
func (c *Classifier) Wait(ctx context.Context) error {
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.loadErr != nil {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, c.loadErr)
	}
	return nil
}

// Metadata returns the loaded model's metadata.
func (c *Classifier) Metadata() (Metadata, error) {
	_, metadata, _, err := c.snapshot()
	return metadata, err
}

func (c *Classifier) snapshot() (Backend, Metadata, []domain.Tier, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.backend == nil {
		if c.loadErr != nil {
			return nil, Metadata{}, nil, fmt.Errorf("%w: %v", ErrModelUnavailable, c.loadErr)
		}
		return nil, Metadata{}, nil, fmt.Errorf("%w: still loading", ErrModelUnavailable)
	}
	return c.backend, c.metadata, c.order, nil
}

// Classify runs the model on t. Ties between equal maximal probabilities go
// to the lowest tier (Low, then Mid, then High).
func (c *Classifier) Classify(ctx context.Context, t *imaging.Tensor) (domain.TierPrediction, error) {
	backend, metadata, order, err := c.snapshot()
	if err != nil {
		return domain.TierPrediction{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.TierPrediction{}, err
	}

	data := t.Data()
	if data == nil {
		return domain.TierPrediction{}, errors.New("tensor already released")
	}
	if !slices.Equal(t.Shape, metadata.InputShape) || len(data) != t.Len() {
		return domain.TierPrediction{}, fmt.Errorf("tensor shape %v does not match model input %v", t.Shape, metadata.InputShape)
	}

	out, err := backend.Predict(ctx, data)
	if err != nil {
		return domain.TierPrediction{}, fmt.Errorf("predict: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return domain.TierPrediction{}, err
	}

	probs, err := normalize(out, len(order))
	if err != nil {
		return domain.TierPrediction{}, err
	}
	return predictionFrom(probs, order), nil
}

// Close closes the backend if it holds resources.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	closer, ok := c.backend.(io.Closer)
	c.backend = nil
	if c.loadErr == nil {
		c.loadErr = errors.New("classifier closed")
	}
	if ok {
		return closer.Close()
	}
	return nil
}

// normalize turns raw model output into probabilities summing to 1.
// Outputs with negative entries are treated as logits.
func normalize(out []float32, classes int) ([]float64, error) {
	if len(out) != classes {
		return nil, fmt.Errorf("model returned %d values, expected %d", len(out), classes)
	}
	probs := make([]float64, len(out))
	negative := false
	for i, v := range out {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("model returned non-finite value at %d", i)
		}
		if f < 0 {
			negative = true
		}
		probs[i] = f
	}

	if negative {
		maxLogit := slices.Max(probs)
		for i, v := range probs {
			probs[i] = math.Exp(v - maxLogit)
		}
	}

	var sum float64
	for _, v := range probs {
		sum += v
	}
	if sum <= 0 {
		return nil, errors.New("model returned all-zero output")
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs, nil
}

func predictionFrom(probs []float64, order []domain.Tier) domain.TierPrediction {
	perTier := make(map[domain.Tier]float64, len(probs))
	for i, p := range probs {
		perTier[order[i]] = p
	}

	best := domain.TierLow
	for _, tier := range domain.Tiers() {
		if perTier[tier] > perTier[best] {
			best = tier
		}
	}
	return domain.TierPrediction{
		Tier:       best,
		Confidence: perTier[best],
		PerTier:    perTier,
	}
}
