package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/house-price-api/internal/domain"
	"github.com/Brownie44l1/house-price-api/internal/estimator"
	"github.com/Brownie44l1/house-price-api/internal/imaging"
	"github.com/Brownie44l1/house-price-api/internal/model"
	"github.com/Brownie44l1/house-price-api/internal/service"
)

// formOverhead is the room left for multipart headers and form fields on
// top of the image itself.
const formOverhead = 64 << 10

var errImageTooLarge = errors.New("image too large")

type Handler struct {
	logger         *zap.Logger
	predictor      *service.Predictor
	maxUploadBytes int64
}

func NewHandler(logger *zap.Logger, predictor *service.Predictor, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &Handler{
		logger:         logger,
		predictor:      predictor,
		maxUploadBytes: maxUploadBytes,
	}
}

// PredictionResponse is the image classifier's answer with its price band.
type PredictionResponse struct {
	PriceRange  domain.Tier             `json:"price_range"`
	Confidence  float64                 `json:"confidence"`
	Confidences map[domain.Tier]float64 `json:"per_tier_confidences"`
	PriceBand   domain.PriceBand        `json:"price_band"`
}

func newPredictionResponse(pred domain.TierPrediction, band domain.PriceBand) PredictionResponse {
	return PredictionResponse{
		PriceRange:  pred.Tier,
		Confidence:  pred.Confidence,
		Confidences: pred.PerTier,
		PriceBand:   band,
	}
}

// Health handles GET /health. It stays healthy while the model loads.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"model_ready": h.predictor.ModelReady(),
	})
}

// Predict handles POST /predict with an already-normalised tensor.
func (h *Handler) Predict(c *gin.Context) {
	var req model.PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
		return
	}

	pred, band, err := h.predictor.ClassifyTensor(c.Request.Context(), req.Image)
	if err != nil {
		h.fail(c, "tensor prediction failed", err)
		return
	}
	c.JSON(http.StatusOK, newPredictionResponse(pred, band))
}

// PredictFromImage handles POST /predict/image with an "image" form file.
func (h *Handler) PredictFromImage(c *gin.Context) {
	raw, err := h.formImage(c)
	if err != nil {
		h.badUpload(c, err)
		return
	}
	if raw == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no image file provided, use 'image' as the form field name"})
		return
	}

	pred, band, err := h.predictor.ClassifyImage(c.Request.Context(), raw)
	if err != nil {
		h.fail(c, "image prediction failed", err)
		return
	}
	c.JSON(http.StatusOK, newPredictionResponse(pred, band))
}

// PredictFromFeatures handles POST /predict/features with a JSON body.
func (h *Handler) PredictFromFeatures(c *gin.Context) {
	var f domain.PropertyFeatures
	if err := c.ShouldBindJSON(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
		return
	}

	est, err := h.predictor.EstimateFromFeatures(f)
	if err != nil {
		h.fail(c, "feature prediction failed", err)
		return
	}
	c.JSON(http.StatusOK, est)
}

// PredictCombined handles POST /predict/combined: a multipart form with an
// optional image and optional sqft, bed, bath and city fields. Each half
// reports its own status, so with an image the response is 200 even when
// the feature fields are malformed.
func (h *Handler) PredictCombined(c *gin.Context) {
	raw, err := h.formImage(c)
	if err != nil {
		h.badUpload(c, err)
		return
	}
	features, featuresErr := formFeatures(c)
	if featuresErr != nil && raw == nil {
		h.fail(c, "invalid combined request", featuresErr)
		return
	}
	if raw == nil && features == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide an image, property features, or both"})
		return
	}

	c.JSON(http.StatusOK, h.predictor.PredictCombined(c.Request.Context(), service.CombinedRequest{
		RequestID:   c.GetString(requestIDKey),
		Image:       raw,
		Features:    features,
		FeaturesErr: featuresErr,
	}))
}

func (h *Handler) Stats(c *gin.Context) {
	s, err := h.predictor.GetDatasetStatistics(c.Request.Context())
	if err != nil {
		h.fail(c, "statistics failed", err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) Cities(c *gin.Context) {
	cities, err := h.predictor.CityStatistics(c.Request.Context())
	if err != nil {
		h.fail(c, "city statistics failed", err)
		return
	}
	c.JSON(http.StatusOK, cities)
}

func (h *Handler) Visualization(c *gin.Context) {
	v, err := h.predictor.VisualizationData(c.Request.Context())
	if err != nil {
		h.fail(c, "visualization data failed", err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// RefreshStats handles POST /stats/refresh.
func (h *Handler) RefreshStats(c *gin.Context) {
	if err := h.predictor.InvalidateStatistics(c.Request.Context()); err != nil {
		h.fail(c, "statistics refresh failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// formImage returns the bytes of the "image" form file, or nil when the
// request has none. The whole body is capped before the form is parsed.
func (h *Handler) formImage(c *gin.Context) ([]byte, error) {
	limit := h.maxUploadBytes + formOverhead
	if c.Request.ContentLength > limit {
		return nil, errImageTooLarge
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	header, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return nil, errImageTooLarge
	}
	if err != nil {
		return nil, err
	}
	if header.Size > h.maxUploadBytes {
		return nil, errImageTooLarge
	}

	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > h.maxUploadBytes {
		return nil, errImageTooLarge
	}
	h.logger.Debug("received image",
		zap.String("filename", header.Filename),
		zap.Int("bytes", len(raw)))
	return raw, nil
}

func (h *Handler) badUpload(c *gin.Context, err error) {
	if errors.Is(err, errImageTooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes)})
		return
	}
	h.logger.Warn("invalid upload", zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse form"})
}

// formFeatures reads property features from form fields. It returns nil
// when no feature field is present.
func formFeatures(c *gin.Context) (*domain.PropertyFeatures, error) {
	sqft, hasSqft := c.GetPostForm("sqft")
	bed, hasBed := c.GetPostForm("bed")
	bath, hasBath := c.GetPostForm("bath")
	city, hasCity := c.GetPostForm("city")
	if !hasSqft && !hasBed && !hasBath && !hasCity {
		return nil, nil
	}

	f := &domain.PropertyFeatures{City: strings.TrimSpace(city)}
	if !hasSqft {
		return nil, &estimator.InvalidFeatureError{Field: "square_footage", Reason: "is required"}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(sqft), 64)
	if err != nil {
		return nil, &estimator.InvalidFeatureError{Field: "square_footage", Reason: "must be a number"}
	}
	f.SquareFootage = v

	if strings.TrimSpace(bed) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(bed))
		if err != nil {
			return nil, &estimator.InvalidFeatureError{Field: "bedrooms", Reason: "must be a whole number"}
		}
		f.Bedrooms = &n
	}
	if strings.TrimSpace(bath) != "" {
		b, err := strconv.ParseFloat(strings.TrimSpace(bath), 64)
		if err != nil {
			return nil, &estimator.InvalidFeatureError{Field: "bathrooms", Reason: "must be a number"}
		}
		f.Bathrooms = &b
	}
	return f, nil
}

// fail maps core errors to HTTP status codes.
func (h *Handler) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
	} else {
		h.logger.Info(msg, zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	var (
		decodeErr      *imaging.DecodeError
		unsupportedErr *imaging.UnsupportedFormatError
		featureErr     *estimator.InvalidFeatureError
	)
	switch {
	case errors.As(err, &decodeErr),
		errors.As(err, &unsupportedErr),
		errors.As(err, &featureErr),
		errors.Is(err, imaging.ErrInvalidTensor):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
