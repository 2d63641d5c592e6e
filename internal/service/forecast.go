package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/finsight/backend/internal/model"
	"github.com/finsight/backend/internal/store"
)

// Forecast model names accepted at the API boundary. Unknown names resolve
// to linear.
const (
	ModelLinear          = "linear"
	ModelRandomForest    = "rf"
	ModelMonteCarlo      = "mc"
	ModelGradientBoosted = "catboost"
	ModelNeuralProphet   = "neuralprophet"
)

// MaxForecastDays bounds the caller-facing horizon.
const MaxForecastDays = 30

// ErrInvalidHorizon is returned when the requested horizon is outside 1..30.
var ErrInvalidHorizon = errors.New("forecast horizon must be between 1 and 30 days")

// ModelFactory builds a fresh ForecastModel instance. A nil factory marks a
// model name as known but unavailable in this deployment.
type ModelFactory func() ForecastModel

// ModelRegistry maps model names to factories. Tests register instrumented
// models to observe fitting.
type ModelRegistry struct {
	mu        sync.RWMutex
	factories map[string]ModelFactory
}

// NewModelRegistry returns a registry with the built-in variants. The neural
// model has no native backend and is registered as unavailable.
func NewModelRegistry() *ModelRegistry {
	r := &ModelRegistry{factories: make(map[string]ModelFactory)}
	r.Register(ModelLinear, func() ForecastModel { return linearModel{} })
	r.Register(ModelRandomForest, func() ForecastModel { return newRandomForestModel() })
	r.Register(ModelMonteCarlo, func() ForecastModel { return newMonteCarloModel() })
	r.Register(ModelGradientBoosted, func() ForecastModel { return newGradientBoostedModel() })
	r.Register(ModelNeuralProphet, nil)
	return r
}

// Register adds or replaces a model factory. A nil factory marks the name
// unavailable.
func (r *ModelRegistry) Register(name string, factory ModelFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// resolve returns the canonical name and factory for a requested model.
// Unknown names fall through to linear.
func (r *ModelRegistry) resolve(name string) (string, ModelFactory) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if factory, ok := r.factories[name]; ok {
		return name, factory
	}
	return ModelLinear, r.factories[ModelLinear]
}

// Forecaster produces balance projections for a user, memoized through the
// forecast cache.
type Forecaster struct {
	store    store.Store
	cache    *ForecastCache
	registry *ModelRegistry
	log      *logrus.Logger
}

// NewForecaster creates a Forecaster with the built-in model registry.
func NewForecaster(st store.Store, cache *ForecastCache, log *logrus.Logger) *Forecaster {
	return &Forecaster{
		store:    st,
		cache:    cache,
		registry: NewModelRegistry(),
		log:      log,
	}
}

// Registry exposes the model registry so callers can swap model factories.
func (f *Forecaster) Registry() *ModelRegistry {
	return f.registry
}

// Forecast projects the user's cumulative balance days into the future using
// the named model. Short histories degrade: a single observed day projects
// flat, fewer than seven days uses the naive trend regardless of the
// requested model. Returns InsufficientDataError when the user has no
// transactions and ModelUnavailableError when the resolved model has no
// backend.
func (f *Forecaster) Forecast(ctx context.Context, userID string, days int, modelName string) ([]model.ForecastPoint, error) {
	if days < 1 || days > MaxForecastDays {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidHorizon, days)
	}

	name, factory := f.registry.resolve(modelName)

	lastDate, err := f.store.LatestTransactionDate(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &InsufficientDataError{Operation: "forecast", Required: 1, Actual: 0}
		}
		return nil, fmt.Errorf("latest transaction date: %w", err)
	}

	key := cacheKey{
		UserID:    userID,
		Horizon:   days,
		Model:     name,
		LastTxDay: model.DayOrdinal(lastDate),
	}
	if points, ok := f.cache.Get(key); ok {
		return points, nil
	}

	txs, err := f.store.ListTransactions(ctx, userID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	series := AggregateDailyBalance(txs)
	if len(series) == 0 {
		return nil, &InsufficientDataError{Operation: "forecast", Required: 1, Actual: 0}
	}

	var m ForecastModel
	switch {
	case len(series) < 2:
		m = flatModel{}
	case len(series) < 7:
		m = naiveTrendModel{}
	default:
		if factory == nil {
			return nil, &ModelUnavailableError{Model: name, Reason: "no backend installed"}
		}
		m = factory()
	}

	points := m.FitPredict(series, days)
	f.cache.Put(key, points)

	f.log.WithFields(logrus.Fields{
		"user":    userID,
		"model":   name,
		"horizon": days,
		"series":  len(series),
	}).Debug("forecast computed")
	return points, nil
}
