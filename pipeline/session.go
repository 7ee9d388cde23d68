// Package pipeline orchestrates the forecasting session: data loading,
// analytics, dataset preparation, training and forecasting. All state is
// owned by an explicit Session passed around by the caller; there are no
// package-level singletons.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"stockcast/analytics"
	"stockcast/db"
	"stockcast/forecast"
	"stockcast/market"
	"stockcast/ml"
)

// ErrNotPrepared is returned when training or forecasting is requested
// before PrepareData has produced a dataset.
var ErrNotPrepared = errors.New("dataset not prepared")

// Config carries the tunable pipeline parameters.
type Config struct {
	DataURL      string
	CacheTTL     time.Duration
	WindowSize   int
	Horizon      int
	TestSplit    float64
	Epochs       int
	BatchSize    int
	HiddenUnits  int
	LearningRate float64
}

// ProgressEvent is published to subscribers during training. Type is
// "epoch" for per-epoch updates and "train_end" for the terminal event.
type ProgressEvent struct {
	Type        string  `json:"type"`
	Epoch       int     `json:"epoch"`
	TotalEpochs int     `json:"total_epochs"`
	Loss        float64 `json:"loss"`
	ValLoss     float64 `json:"val_loss"`
	Elapsed     float64 `json:"elapsed_seconds"`
	Progress    float64 `json:"progress"`
}

// Session owns the full pipeline state for one asset. Create with
// NewSession, drive with LoadData/PrepareData/Train/Forecast, release with
// Close.
type Session struct {
	cfg     Config
	fetcher *market.Fetcher
	store   *db.Store // optional
	log     *zap.SugaredLogger
	model   *ml.SequenceModel

	mu         sync.RWMutex
	points     []market.PricePoint
	returns    []float64
	normalized []float64
	params     ml.NormalizationParams
	dataset    *ml.WindowedDataset
	insights   analytics.Insights
	metrics    ml.Metrics
	hasMetrics bool

	subMu       sync.Mutex
	subscribers map[chan ProgressEvent]struct{}
}

func NewSession(cfg Config, store *db.Store, log *zap.SugaredLogger) *Session {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = ml.DefaultWindowSize
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = ml.DefaultHorizon
	}

	return &Session{
		cfg:     cfg,
		fetcher: market.NewFetcher(cfg.CacheTTL),
		store:   store,
		log:     log,
		model: ml.NewSequenceModel(ml.ModelConfig{
			WindowSize:   cfg.WindowSize,
			Horizon:      cfg.Horizon,
			HiddenUnits:  cfg.HiddenUnits,
			LearningRate: cfg.LearningRate,
			BatchSize:    cfg.BatchSize,
		}, log),
		insights:    analytics.DefaultInsights(),
		subscribers: make(map[chan ProgressEvent]struct{}),
	}
}

// LoadData fetches the feed and rebuilds the series, returns and insights.
func (s *Session) LoadData(ctx context.Context) error {
	raw, err := s.fetcher.FetchCSV(ctx, s.cfg.DataURL)
	if err != nil {
		return fmt.Errorf("load data: %w", err)
	}
	return s.LoadDataFromBytes(raw)
}

// LoadDataFromBytes parses an already-fetched feed. Parsing is
// best-effort per row; a feed without a single usable row is an error, but
// insights are still reset to the default instance so consumers never see
// stale state.
func (s *Session) LoadDataFromBytes(raw []byte) error {
	points := market.ParseCSV(raw)
	returns := market.ComputeReturns(points)
	insights := analytics.Compute(points, returns)

	s.mu.Lock()
	s.points = points
	s.returns = returns
	s.insights = insights
	s.normalized = nil
	s.dataset = nil
	s.hasMetrics = false
	s.mu.Unlock()

	if len(points) == 0 {
		return fmt.Errorf("load data: %w", ml.ErrNoData)
	}

	if s.store != nil {
		if err := s.store.SavePricePoints(points); err != nil {
			s.log.Warnw("failed to persist price points", "error", err)
		}
	}

	s.log.Infow("data loaded", "points", len(points), "returns", len(returns))
	return nil
}

// PrepareData normalizes the returns and builds the windowed train/test
// dataset. Fails loudly when the series is empty or too short.
func (s *Session) PrepareData() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized, params, err := ml.Normalize(s.returns)
	if err != nil {
		return err
	}

	inputs, targets, err := ml.BuildWindows(normalized, s.cfg.WindowSize, s.cfg.Horizon)
	if err != nil {
		return err
	}

	s.normalized = normalized
	s.params = params
	s.dataset = ml.Split(inputs, targets, s.cfg.TestSplit)

	s.log.Infow("dataset prepared",
		"train_samples", len(s.dataset.TrainInputs),
		"test_samples", len(s.dataset.TestInputs),
		"window_size", s.cfg.WindowSize,
		"horizon", s.cfg.Horizon)
	return nil
}

// Train runs one training pass and evaluates on the held-out windows.
// Progress is fanned out to subscribers; a second call while one is in
// flight is rejected with ml.ErrTrainingInProgress.
func (s *Session) Train(ctx context.Context, epochs int) (ml.TrainingSummary, error) {
	s.mu.RLock()
	dataset := s.dataset
	s.mu.RUnlock()
	if dataset == nil {
		return ml.TrainingSummary{}, ErrNotPrepared
	}

	if epochs <= 0 {
		epochs = s.cfg.Epochs
	}

	summary, trainErr := s.model.Train(ctx, dataset.TrainInputs, dataset.TrainTargets, epochs, ml.Callbacks{
		OnEpochEnd: func(epoch int, stats ml.EpochStats) {
			s.publish(ProgressEvent{
				Type:        "epoch",
				Epoch:       stats.Epoch,
				TotalEpochs: stats.TotalEpochs,
				Loss:        stats.Loss,
				ValLoss:     stats.ValLoss,
				Elapsed:     stats.Elapsed,
				Progress:    stats.Progress,
			})
		},
		OnTrainEnd: func(elapsed float64) {
			s.publish(ProgressEvent{Type: "train_end", Elapsed: elapsed, Progress: 100})
		},
	})
	if errors.Is(trainErr, ml.ErrTrainingInProgress) {
		return summary, trainErr
	}

	metrics := s.model.Evaluate(dataset.TestInputs, dataset.TestTargets)
	s.mu.Lock()
	s.metrics = metrics
	s.hasMetrics = true
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.SaveTrainingRun(summary, metrics); err != nil {
			s.log.Warnw("failed to persist training run", "error", err)
		}
	}

	return summary, trainErr
}

// Forecast composes multi-day price projections from the most recent
// window and the last known price.
func (s *Session) Forecast() ([]forecast.DayForecast, error) {
	s.mu.RLock()
	normalized := s.normalized
	params := s.params
	points := s.points
	s.mu.RUnlock()

	if len(normalized) < s.cfg.WindowSize || len(points) == 0 {
		return nil, ErrNotPrepared
	}

	window := normalized[len(normalized)-s.cfg.WindowSize:]
	lastPrice := points[len(points)-1].Price

	days, err := forecast.Compose(s.model, window, params, lastPrice)
	if err != nil {
		return nil, err
	}

	if s.store != nil {
		if err := s.store.SaveForecasts(days); err != nil {
			s.log.Warnw("failed to persist forecasts", "error", err)
		}
	}
	return days, nil
}

// Insights returns the current analytics snapshot; a default instance
// before any data is loaded.
func (s *Session) Insights() analytics.Insights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.insights
}

// HistoricalData returns the series views for the presentation layer.
func (s *Session) HistoricalData() market.HistoricalData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dates := make([]string, len(s.points))
	prices := make([]float64, len(s.points))
	for i, p := range s.points {
		dates[i] = p.Date
		prices[i] = p.Price
	}
	return market.HistoricalData{
		Dates:             dates,
		Prices:            prices,
		Returns:           append([]float64(nil), s.returns...),
		NormalizedReturns: append([]float64(nil), s.normalized...),
	}
}

// Metrics returns the last evaluation and whether one exists yet.
func (s *Session) Metrics() (ml.Metrics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics, s.hasMetrics
}

// Trained reports whether the model has completed a training run.
func (s *Session) Trained() bool {
	return s.model.Trained()
}

// TrainingInProgress reports whether a training run is currently active.
func (s *Session) TrainingInProgress() bool {
	return s.model.TrainingInProgress()
}

// Subscribe registers a progress listener. The returned cancel func must
// be called to release it. Slow or departed listeners never block
// training: events they cannot take are dropped.
func (s *Session) Subscribe() (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, 16)

	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *Session) publish(ev ProgressEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close releases the model and dataset. Idempotent.
func (s *Session) Close() {
	s.model.Release()

	s.mu.Lock()
	s.normalized = nil
	s.dataset = nil
	s.mu.Unlock()

	s.subMu.Lock()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.subMu.Unlock()
}
