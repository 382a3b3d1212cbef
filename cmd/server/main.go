package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/house-price-api/internal/config"
	"github.com/Brownie44l1/house-price-api/internal/dataset"
	"github.com/Brownie44l1/house-price-api/internal/domain"
	"github.com/Brownie44l1/house-price-api/internal/estimator"
	"github.com/Brownie44l1/house-price-api/internal/handlers"
	applog "github.com/Brownie44l1/house-price-api/internal/logger"
	"github.com/Brownie44l1/house-price-api/internal/model"
	"github.com/Brownie44l1/house-price-api/internal/service"
	"github.com/Brownie44l1/house-price-api/internal/stats"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := applog.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, closeSource, err := dataset.Open(ctx, logger, cfg.DatasetSource, cfg.DatasetPath, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("open dataset", zap.Error(err))
	}
	defer closeSource()

	var (
		records   []domain.HouseRecord
		overrides estimator.Overrides
		loadErr   error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		records, loadErr = source.Load(gctx)
		return nil
	})
	g.Go(func() error {
		if cfg.EstimatorConfig == "" {
			return nil
		}
		var err error
		overrides, err = config.LoadEstimatorOptions(cfg.EstimatorConfig)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Fatal("load estimator options", zap.Error(err))
	}

	cal, err := calibrate(logger, records, loadErr, overrides)
	if err != nil {
		logger.Fatal("calibrate estimator", zap.Error(err))
	}
	est, err := estimator.New(cal)
	if err != nil {
		logger.Fatal("build estimator", zap.Error(err))
	}

	loadCtx, cancelLoad := context.WithTimeout(ctx, cfg.ModelLoadTimeout)
	defer cancelLoad()
	logger.Info("loading model in background", zap.String("model_path", cfg.ModelPath))
	classifier := model.Load(loadCtx, logger, model.ONNXSource{
		ModelPath:    cfg.ModelPath,
		MetadataPath: cfg.ModelMetadataPath,
		ModelURL:     cfg.ModelURL,
		LibraryPath:  cfg.ONNXRuntimeLib,
	}.Loader())
	defer classifier.Close()

	statsSvc := stats.NewService(logger, source, statsCache(ctx, logger, cfg), cal.Bands)
	predictor := service.NewPredictor(logger, classifier, est, statsSvc, cfg.MaxImagePixels)
	router := handlers.NewRouter(logger, handlers.NewHandler(logger, predictor, cfg.MaxUploadBytes))

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server",
		zap.String("port", cfg.HTTPPort),
		zap.Strings("endpoints", []string{
			"GET /health",
			"POST /predict",
			"POST /predict/image",
			"POST /predict/features",
			"POST /predict/combined",
			"GET /stats",
			"GET /stats/cities",
			"GET /stats/visualization",
			"POST /stats/refresh",
		}))

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}

// calibrate fits the estimator to the dataset and applies configured
// overrides. Without a dataset it runs from configuration alone.
func calibrate(logger *zap.Logger, records []domain.HouseRecord, loadErr error, o estimator.Overrides) (estimator.Calibration, error) {
	bands := domain.DefaultBands
	if o.Bands != nil {
		bands = *o.Bands
	}
	if loadErr == nil {
		cal, err := estimator.Calibrate(records, bands)
		if err == nil {
			logger.Info("estimator calibrated",
				zap.String("method", cal.Method),
				zap.Int("records", cal.Records),
				zap.Float64("slope", cal.Slope),
				zap.Float64("intercept", cal.Intercept),
				zap.Float64("correlation", cal.Correlation),
				zap.Int("cities", len(cal.Cities)))
			return cal.Apply(o)
		}
		loadErr = err
	}
	logger.Warn("dataset unavailable, using configured calibration", zap.Error(loadErr))
	return estimator.FromOverrides(o)
}

func statsCache(ctx context.Context, logger *zap.Logger, cfg *config.Config) stats.Cache {
	if cfg.RedisAddr == "" {
		return stats.NewMemoryCache(cfg.StatsCacheTTL)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctxPing).Err(); err != nil {
		logger.Warn("redis ping failed, caching statistics in memory", zap.Error(err))
		client.Close()
		return stats.NewMemoryCache(cfg.StatsCacheTTL)
	}
	return stats.NewRedisCache(client, cfg.StatsCacheTTL)
}
