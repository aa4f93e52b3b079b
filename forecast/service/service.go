package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tanpawarit/bizai-insight/forecast/model"
	"github.com/tanpawarit/bizai-insight/forecast/store"
)

var ErrInvalidRequest = errors.New("invalid request")

const (
	versionPrefix = "naive-v1."
	versionLayout = "200601021504"
	maxHorizon    = 366
)

type Option func(*Service)

func WithForecaster(f model.Forecaster) Option {
	return func(s *Service) {
		if f != nil {
			s.forecaster = f
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// Service owns the per-tenant model lifecycle. Retrains for one tenant run
// one at a time; predictions read whatever was last committed.
type Service struct {
	store      store.Store
	forecaster model.Forecaster
	now        func() time.Time
	tracer     trace.Tracer

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:      st,
		forecaster: model.Naive{},
		now:        time.Now,
		tracer:     otel.Tracer("github.com/tanpawarit/bizai-insight/forecast/service"),
		locks:      map[string]*sync.Mutex{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Service) tenantLock(businessID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[businessID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[businessID] = l
	}
	return l
}

func (s *Service) Retrain(ctx context.Context, req RetrainRequest) (resp RetrainResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "forecast.retrain", trace.WithAttributes(
		attribute.String("forecast.business_id", req.BusinessID),
		attribute.Int("forecast.records", len(req.Data)),
	))
	defer func() { endSpan(span, err) }()

	businessID := strings.TrimSpace(req.BusinessID)
	if businessID == "" || len(req.Data) == 0 {
		return RetrainResponse{}, fmt.Errorf("%w: missing fields", ErrInvalidRequest)
	}
	if err := model.Validate(req.Data); err != nil {
		return RetrainResponse{}, err
	}
	hp := req.Hyperparameters.WithDefaults()
	if err := hp.Validate(); err != nil {
		return RetrainResponse{}, err
	}

	lock := s.tenantLock(businessID)
	lock.Lock()
	defer lock.Unlock()

	records := model.SortRecords(req.Data)
	metrics, info, err := model.Evaluate(ctx, s.forecaster, records, hp)
	if err != nil {
		return RetrainResponse{}, fmt.Errorf("evaluate: %w", err)
	}
	snap, err := s.forecaster.Train(ctx, records, hp)
	if err != nil {
		return RetrainResponse{}, fmt.Errorf("train: %w", err)
	}

	now := s.now().UTC()
	committed, err := s.store.Commit(ctx, store.Artifact{
		ID:           uuid.NewString(),
		BusinessID:   businessID,
		Version:      versionPrefix + now.Format(versionLayout),
		ModelType:    snap.ModelType,
		Metrics:      metrics,
		TrainingInfo: info,
		Snapshot:     snap,
		CreatedAt:    now,
	})
	if err != nil {
		return RetrainResponse{}, fmt.Errorf("commit artifact: %w", err)
	}

	log.Info().
		Str("business_id", businessID).
		Str("model_version", committed.Version).
		Int64("seq", committed.Seq).
		Str("split_ratio", info.SplitRatio).
		Msg("forecast model committed")

	return RetrainResponse{
		Status:       "success",
		BusinessID:   businessID,
		ArtifactID:   committed.ID,
		ModelType:    committed.ModelType,
		ModelVersion: committed.Version,
		Metrics:      RetrainMetrics{Metrics: metrics, ModelVersion: committed.Version},
		TrainingInfo: info,
	}, nil
}

func (s *Service) Predict(ctx context.Context, req PredictRequest) (resp PredictResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "forecast.predict", trace.WithAttributes(
		attribute.String("forecast.business_id", req.BusinessID),
	))
	defer func() { endSpan(span, err) }()

	if err := model.Validate(req.Data); err != nil {
		return PredictResponse{}, err
	}
	snap, err := s.forecaster.Train(ctx, model.SortRecords(req.Data), req.Hyperparameters)
	if err != nil {
		return PredictResponse{}, err
	}

	items := req.ItemIDs
	if len(items) == 0 {
		items = model.ProductIDs(req.Data)
	}
	return s.forecast(ctx, strings.TrimSpace(req.BusinessID), "", snap, req.Horizon, items)
}

func (s *Service) PredictFast(ctx context.Context, req PredictFastRequest) (resp PredictResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "forecast.predict_fast", trace.WithAttributes(
		attribute.String("forecast.business_id", req.BusinessID),
		attribute.Int("forecast.recent_records", len(req.RecentData)),
	))
	defer func() { endSpan(span, err) }()

	businessID := strings.TrimSpace(req.BusinessID)
	if businessID == "" {
		return PredictResponse{}, fmt.Errorf("%w: business_id is required", ErrInvalidRequest)
	}
	if len(req.ItemIDs) == 0 {
		return PredictResponse{}, fmt.Errorf("%w: item_ids is required", ErrInvalidRequest)
	}
	if len(req.RecentData) > 0 {
		if err := model.Validate(req.RecentData); err != nil {
			return PredictResponse{}, err
		}
	}

	art, err := s.store.Latest(ctx, businessID)
	if err != nil {
		return PredictResponse{}, err
	}
	snap := art.Snapshot.Extend(req.RecentData)
	span.SetAttributes(attribute.String("forecast.model_version", art.Version))

	return s.forecast(ctx, businessID, art.Version, snap, req.Horizon, req.ItemIDs)
}

// Artifact returns the latest artifact, or a specific version when given.
func (s *Service) Artifact(ctx context.Context, businessID, version string) (store.Artifact, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return store.Artifact{}, fmt.Errorf("%w: business_id is required", ErrInvalidRequest)
	}
	if v := strings.TrimSpace(version); v != "" {
		return s.store.Get(ctx, businessID, v)
	}
	return s.store.Latest(ctx, businessID)
}

func (s *Service) forecast(ctx context.Context, businessID, version string, snap model.Snapshot, h Horizon, items []string) (PredictResponse, error) {
	days, err := s.resolveDays(h, snap)
	if err != nil {
		return PredictResponse{}, err
	}

	byItem, err := s.forecaster.Predict(ctx, snap, days, items)
	if err != nil {
		return PredictResponse{}, fmt.Errorf("predict: %w", err)
	}

	out := PredictResponse{
		BusinessID:   businessID,
		ModelVersion: version,
		Forecast:     make([]DayForecast, len(days)),
	}
	for i, d := range days {
		day := DayForecast{Date: d.Date, Predictions: make([]model.Prediction, 0, len(items))}
		for _, id := range items {
			if preds := byItem[id]; i < len(preds) {
				day.Predictions = append(day.Predictions, preds[i])
			}
		}
		out.Forecast[i] = day
	}
	return out, nil
}

func (s *Service) resolveDays(h Horizon, snap model.Snapshot) ([]model.FutureDay, error) {
	if len(h.Future) > 0 {
		if len(h.Future) > maxHorizon {
			return nil, fmt.Errorf("%w: at most %d future days", ErrInvalidRequest, maxHorizon)
		}
		for _, d := range h.Future {
			if _, err := time.Parse(model.DateLayout, d.Date); err != nil {
				return nil, fmt.Errorf("%w: invalid future date %q", ErrInvalidRequest, d.Date)
			}
		}
		return h.Future, nil
	}

	var begin, end time.Time
	var err error
	switch {
	case h.BeginDate != "":
		if begin, err = time.Parse(model.DateLayout, h.BeginDate); err != nil {
			return nil, fmt.Errorf("%w: invalid begin_date %q", ErrInvalidRequest, h.BeginDate)
		}
	case snap.LastDate != "":
		last, err := time.Parse(model.DateLayout, snap.LastDate)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid model last date %q", ErrInvalidRequest, snap.LastDate)
		}
		begin = last.AddDate(0, 0, 1)
	default:
		begin = s.now().UTC().Truncate(24 * time.Hour)
	}

	if h.EndDate != "" {
		if end, err = time.Parse(model.DateLayout, h.EndDate); err != nil {
			return nil, fmt.Errorf("%w: invalid end_date %q", ErrInvalidRequest, h.EndDate)
		}
	} else {
		end = begin.AddDate(0, 0, snap.Hyperparameters.WithDefaults().OutputChunkLength-1)
	}

	if end.Before(begin) {
		return nil, fmt.Errorf("%w: end_date is before begin_date", ErrInvalidRequest)
	}
	if end.After(begin.AddDate(0, 0, maxHorizon-1)) {
		return nil, fmt.Errorf("%w: at most %d days per forecast", ErrInvalidRequest, maxHorizon)
	}
	return model.Days(begin, end), nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
