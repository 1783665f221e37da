// Package service runs the prediction and submission flows on top of the
// validator, feature builder, artifact holder and observation sink.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fidde/agripredict/internal/artifacts"
	"github.com/fidde/agripredict/internal/features"
	"github.com/fidde/agripredict/internal/metrics"
	"github.com/fidde/agripredict/internal/schema"
	"github.com/fidde/agripredict/internal/storage"
	"github.com/fidde/agripredict/internal/validation"
	"github.com/fidde/agripredict/pkg/models"
	"github.com/google/uuid"
)

// ErrNoObservationReader is returned by Observations when no configured
// sink can list stored observations.
var ErrNoObservationReader = errors.New("observation listing requires a queryable mirror")

// Config wires the service dependencies.
type Config struct {
	Schema  *schema.Schema
	Holder  *artifacts.Holder
	Sink    storage.Sink
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Policy  features.Policy

	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// Service is safe for concurrent use.
type Service struct {
	schema    *schema.Schema
	validator *validation.Validator
	builder   *features.Builder
	holder    *artifacts.Holder
	sink      storage.Sink
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// New creates a service.
func New(cfg Config) (*Service, error) {
	if cfg.Schema == nil {
		return nil, errors.New("schema is required")
	}
	if cfg.Holder == nil {
		return nil, errors.New("artifact holder is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("observation sink is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New("agripredict")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Policy == "" {
		cfg.Policy = features.PolicyDegrade
	}

	s := &Service{
		schema:    cfg.Schema,
		validator: validation.New(cfg.Schema),
		holder:    cfg.Holder,
		sink:      cfg.Sink,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		now:       cfg.Now,
		newID:     cfg.NewID,
	}
	s.builder = features.NewBuilder(cfg.Schema,
		features.WithPolicy(cfg.Policy),
		features.WithLogger(cfg.Logger),
		features.WithUnmappedHook(func(u features.Unmapped) {
			s.metrics.ObserveUnmapped(u.Field, u.Value)
		}),
	)

	cfg.Holder.OnSwap(s.metrics.ObserveBundle)
	return s, nil
}

// Schema returns the feature schema.
func (s *Service) Schema() *schema.Schema {
	return s.schema
}

// Policy returns the unmapped-category policy.
func (s *Service) Policy() features.Policy {
	return s.builder.Policy()
}

// Bundle returns the active artifact bundle.
func (s *Service) Bundle() *artifacts.Bundle {
	return s.holder.Current()
}

// Ready reports whether predictions can be served.
func (s *Service) Ready() bool {
	return s.holder.Ready()
}

// Reload reloads the artifacts and returns the new bundle.
func (s *Service) Reload() *artifacts.Bundle {
	b := s.holder.Reload()
	s.logger.Info("artifacts reloaded", "ready", b.Ready())
	return b
}

// Predict validates payload and returns a price quote.
func (s *Service) Predict(ctx context.Context, payload map[string]any) (models.PriceQuote, error) {
	req, err := s.validator.Prediction(payload)
	if err != nil {
		s.metrics.ObservePrediction(metrics.OutcomeInvalid, 0)
		return models.PriceQuote{}, err
	}
	return s.PredictRequest(ctx, req)
}

// PredictRequest runs an already validated request through the pipeline.
// Readiness is checked before any feature work is done.
func (s *Service) PredictRequest(ctx context.Context, req models.PredictionRequest) (models.PriceQuote, error) {
	start := time.Now()

	quote, err := s.predict(ctx, req)
	outcome := outcomeFor(err)
	s.metrics.ObservePrediction(outcome, time.Since(start).Seconds())

	if err != nil {
		level := slog.LevelError
		if outcome == metrics.OutcomeNotReady || outcome == metrics.OutcomeUnmapped {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "prediction failed",
			"region", req.Region,
			"crop", req.Crop,
			"variety", req.Variety,
			"error", err,
		)
		return models.PriceQuote{}, err
	}

	if !quote.Ordered() {
		s.metrics.ObserveUnordered()
		s.logger.Debug("prediction not ordered",
			"min_price", quote.MinPrice,
			"modal_price", quote.ModalPrice,
			"max_price", quote.MaxPrice,
		)
	}
	return quote, nil
}

func (s *Service) predict(ctx context.Context, req models.PredictionRequest) (models.PriceQuote, error) {
	pipeline, aggregator, err := s.holder.Current().Predictor()
	if err != nil {
		return models.PriceQuote{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.PriceQuote{}, err
	}

	vec, _, err := s.builder.Build(req)
	if err != nil {
		return models.PriceQuote{}, err
	}

	expanded, err := pipeline.Transform(vec)
	if err != nil {
		return models.PriceQuote{}, fmt.Errorf("transform: %w", err)
	}

	quote, err := aggregator.Predict(expanded)
	if err != nil {
		return models.PriceQuote{}, fmt.Errorf("predict: %w", err)
	}
	return quote, nil
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, models.ErrPipelineNotReady):
		return metrics.OutcomeNotReady
	case errors.Is(err, models.ErrArtifactMismatch):
		return metrics.OutcomeMismatch
	case errors.Is(err, models.ErrUnmappedCategory):
		return metrics.OutcomeUnmapped
	default:
		return metrics.OutcomeError
	}
}

// Submit validates an actual-price payload, stamps it and appends it to the
// sink. Submissions do not depend on artifact readiness.
func (s *Service) Submit(ctx context.Context, payload map[string]any) (*models.Observation, error) {
	obs, err := s.validator.Observation(payload)
	if err != nil {
		s.metrics.ObserveSubmission(metrics.OutcomeInvalid)
		return nil, err
	}

	obs.ID = s.newID()
	obs.ReceivedAt = s.now()

	if err := s.sink.Append(ctx, &obs); err != nil {
		s.metrics.ObserveSubmission(metrics.OutcomePersistErr)
		s.logger.Error("failed to persist observation",
			"observation_id", obs.ID,
			"sink", s.sink.Name(),
			"error", err,
		)
		return nil, err
	}

	s.metrics.ObserveSubmission(metrics.OutcomeOK)
	s.logger.Info("observation recorded",
		"observation_id", obs.ID,
		"region", obs.Region,
		"crop", obs.Crop,
		"variety", obs.Variety,
	)
	return &obs, nil
}

// Observations lists recent observations when the sink supports it.
func (s *Service) Observations(ctx context.Context, limit int) ([]*models.Observation, error) {
	r, ok := s.sink.(storage.Reader)
	if !ok {
		return nil, ErrNoObservationReader
	}
	return r.ListObservations(ctx, limit)
}

// Close closes the sink.
func (s *Service) Close() error {
	return s.sink.Close()
}
