package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Brownie44l1/house-price-api/internal/dataset"
	"github.com/Brownie44l1/house-price-api/internal/domain"
)

const cacheTimeout = 500 * time.Millisecond

// Service serves statistics for the reference dataset. The dataset is read
// from the source once and reused until Invalidate is called.
type Service struct {
	logger *zap.Logger
	source dataset.Source
	cache  Cache
	bands  domain.Bands

	mu          sync.Mutex
	loaded      bool
	records     []domain.HouseRecord
	fingerprint string
}

func NewService(logger *zap.Logger, source dataset.Source, cache Cache, bands domain.Bands) *Service {
	if cache == nil {
		cache = NewMemoryCache(0)
	}
	return &Service{logger: logger, source: source, cache: cache, bands: bands}
}

// Report returns the report for the current dataset, building it on a
// cache miss. Cache failures are logged and otherwise ignored.
func (s *Service) Report(ctx context.Context) (Report, error) {
	records, fingerprint, err := s.dataset(ctx)
	if err != nil {
		return Report{}, err
	}

	cacheCtx, cancel := context.WithTimeout(ctx, cacheTimeout)
	report, ok, err := s.cache.Get(cacheCtx, fingerprint)
	cancel()
	if err != nil {
		s.logger.Warn("stats cache read failed", zap.String("fingerprint", fingerprint), zap.Error(err))
	}
	if ok {
		return report, nil
	}

	report = BuildReport(fingerprint, records, s.bands)
	cacheCtx, cancel = context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	if err := s.cache.Set(cacheCtx, fingerprint, report); err != nil {
		s.logger.Warn("stats cache write failed", zap.String("fingerprint", fingerprint), zap.Error(err))
	}
	return report, nil
}

func (s *Service) Statistics(ctx context.Context) (DatasetStatistics, error) {
	r, err := s.Report(ctx)
	return r.Statistics, err
}

func (s *Service) Cities(ctx context.Context) ([]CityStats, error) {
	r, err := s.Report(ctx)
	return r.Cities, err
}

func (s *Service) Visualization(ctx context.Context) (Visualization, error) {
	r, err := s.Report(ctx)
	return r.Visualization, err
}

// Invalidate drops the loaded dataset and its cached report. The next call
// reloads from the source.
func (s *Service) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	fingerprint, loaded := s.fingerprint, s.loaded
	s.loaded, s.records, s.fingerprint = false, nil, ""
	s.mu.Unlock()

	if !loaded {
		return nil
	}
	if err := s.cache.Delete(ctx, fingerprint); err != nil {
		return fmt.Errorf("invalidate stats cache: %w", err)
	}
	return nil
}

func (s *Service) dataset(ctx context.Context) ([]domain.HouseRecord, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.records, s.fingerprint, nil
	}
	records, err := s.source.Load(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("load dataset: %w", err)
	}
	s.records, s.fingerprint, s.loaded = records, dataset.Fingerprint(records), true
	s.logger.Info("dataset loaded for statistics",
		zap.Int("records", len(records)),
		zap.String("fingerprint", s.fingerprint))
	return s.records, s.fingerprint, nil
}
