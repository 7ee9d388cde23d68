package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrTrainingFailed wraps an underlying fit failure. The model is still
	// marked trained so evaluate/predict stay usable with partial weights.
	ErrTrainingFailed = errors.New("training failed")
	// ErrTrainingInProgress is returned when Train is called while another
	// run is in flight; the call is a no-op.
	ErrTrainingInProgress = errors.New("training already in progress")
	// ErrInputMissing is returned when Predict is called without input.
	ErrInputMissing = errors.New("input data not provided")
)

// Model defaults, matching the configuration surface.
const (
	DefaultEpochs       = 12
	DefaultBatchSize    = 256
	DefaultHiddenUnits  = 16
	DefaultLearningRate = 0.001
)

// ModelConfig configures the sequence model. Zero values fall back to the
// documented defaults.
type ModelConfig struct {
	WindowSize   int
	Horizon      int
	HiddenUnits  int
	LearningRate float64
	BatchSize    int
	Seed         int64
}

func (c ModelConfig) withDefaults() ModelConfig {
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.Horizon <= 0 {
		c.Horizon = DefaultHorizon
	}
	if c.HiddenUnits <= 0 {
		c.HiddenUnits = DefaultHiddenUnits
	}
	if c.LearningRate <= 0 {
		c.LearningRate = DefaultLearningRate
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	return c
}

// EpochStats is reported to the caller after every completed epoch.
type EpochStats struct {
	Epoch       int     `json:"epoch"`
	TotalEpochs int     `json:"total_epochs"`
	Loss        float64 `json:"loss"`
	ValLoss     float64 `json:"val_loss"`
	Elapsed     float64 `json:"elapsed_seconds"`
	Progress    float64 `json:"progress"`
}

// Callbacks carries the optional training hooks. A hook that panics is
// logged and ignored; it never aborts training.
type Callbacks struct {
	OnEpochEnd func(epoch int, stats EpochStats)
	OnTrainEnd func(elapsedSeconds float64)
}

// TrainingSummary describes a finished (or failed) training run.
type TrainingSummary struct {
	Epochs       int     `json:"epochs"`
	FinalLoss    float64 `json:"final_loss"`
	FinalValLoss float64 `json:"final_val_loss"`
	Elapsed      float64 `json:"elapsed_seconds"`
}

// Metrics is the evaluation triple. Evaluate never fails; when the model is
// unbuilt or test data is absent it returns fallbackMetrics so callers
// always have something to display.
type Metrics struct {
	Loss float64 `json:"loss"`
	MSE  float64 `json:"mse"`
	RMSE float64 `json:"rmse"`
}

func fallbackMetrics() Metrics {
	return Metrics{Loss: 0.001, MSE: 0.001, RMSE: 0.032}
}

// SequenceModel owns the recurrent regressor. Lifecycle:
// Unbuilt -> Built (Build) -> Trained (Train); Release returns to Unbuilt
// from any state. Only one training run may be active at a time.
type SequenceModel struct {
	cfg ModelConfig
	log *zap.SugaredLogger

	mu       sync.Mutex
	net      *gruNetwork
	trained  bool
	training atomic.Bool
}

func NewSequenceModel(cfg ModelConfig, log *zap.SugaredLogger) *SequenceModel {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &SequenceModel{cfg: cfg.withDefaults(), log: log}
}

// Build constructs the network: one GRU layer feeding its final time-step
// output into a linear projection to Horizon outputs. Any existing weights
// are released first and the trained flag resets.
func (m *SequenceModel) Build() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buildLocked()
}

func (m *SequenceModel) buildLocked() {
	rng := rand.New(rand.NewSource(m.cfg.Seed))
	m.net = newGRUNetwork(1, m.cfg.HiddenUnits, m.cfg.Horizon, m.cfg.LearningRate, rng)
	m.trained = false
	m.log.Infow("model built",
		"hidden_units", m.cfg.HiddenUnits,
		"horizon", m.cfg.Horizon,
		"learning_rate", m.cfg.LearningRate)
}

// Built reports whether the network exists.
func (m *SequenceModel) Built() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.net != nil
}

// Trained reports whether a training run has completed (even a failed one,
// which leaves partial weights in place).
func (m *SequenceModel) Trained() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trained
}

// Horizon returns the number of outputs per prediction.
func (m *SequenceModel) Horizon() int {
	return m.cfg.Horizon
}

// TrainingInProgress reports whether a training run is currently active.
func (m *SequenceModel) TrainingInProgress() bool {
	return m.training.Load()
}

// Train fits the model. Epochs <= 0 defaults to 12. The batch size is
// min(configured, sample count) and the last 10% of the training partition
// is held out for validation without shuffling. The context is checked
// between epochs only; an in-flight epoch always runs to completion.
// OnTrainEnd fires exactly once per accepted call, success or failure.
func (m *SequenceModel) Train(ctx context.Context, inputs [][][]float64, targets [][]float64, epochs int, cb Callbacks) (TrainingSummary, error) {
	if !m.training.CompareAndSwap(false, true) {
		return TrainingSummary{}, ErrTrainingInProgress
	}
	defer m.training.Store(false)

	m.mu.Lock()
	if m.net == nil {
		m.buildLocked()
	}
	net := m.net
	m.mu.Unlock()

	if epochs <= 0 {
		epochs = DefaultEpochs
	}

	start := time.Now()
	endFired := false
	fireTrainEnd := func() {
		if endFired {
			return
		}
		endFired = true
		m.safeCall(func() {
			if cb.OnTrainEnd != nil {
				cb.OnTrainEnd(time.Since(start).Seconds())
			}
		})
	}

	failTraining := func(cause error) (TrainingSummary, error) {
		m.mu.Lock()
		m.trained = true
		m.mu.Unlock()
		fireTrainEnd()
		m.log.Errorw("training failed", "error", cause)
		return TrainingSummary{Elapsed: time.Since(start).Seconds()},
			fmt.Errorf("%w: %v", ErrTrainingFailed, cause)
	}

	if len(inputs) == 0 || len(inputs) != len(targets) {
		return failTraining(fmt.Errorf("invalid training data: %d inputs, %d targets", len(inputs), len(targets)))
	}

	// reserve the trailing 10% for validation, unshuffled
	valCount := len(inputs) / 10
	trainCount := len(inputs) - valCount
	trainX, trainY := inputs[:trainCount], targets[:trainCount]
	valX, valY := inputs[trainCount:], targets[trainCount:]

	batchSize := m.cfg.BatchSize
	if batchSize > trainCount {
		batchSize = trainCount
	}

	m.log.Infow("training started",
		"epochs", epochs,
		"samples", trainCount,
		"validation_samples", valCount,
		"batch_size", batchSize)

	summary := TrainingSummary{}
	for epoch := 0; epoch < epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			m.log.Warnw("training cancelled", "completed_epochs", epoch)
			m.mu.Lock()
			m.trained = true
			m.mu.Unlock()
			fireTrainEnd()
			return summary, err
		}

		epochLoss := 0.0
		for offset := 0; offset < trainCount; offset += batchSize {
			end := offset + batchSize
			if end > trainCount {
				end = trainCount
			}
			batchLoss := net.trainBatch(trainX[offset:end], trainY[offset:end])
			epochLoss += batchLoss * float64(end-offset)
		}
		epochLoss /= float64(trainCount)

		if math.IsNaN(epochLoss) || math.IsInf(epochLoss, 0) {
			return failTraining(fmt.Errorf("non-finite loss at epoch %d", epoch+1))
		}

		valLoss := net.evaluateLoss(valX, valY)

		summary.Epochs = epoch + 1
		summary.FinalLoss = epochLoss
		summary.FinalValLoss = valLoss
		summary.Elapsed = time.Since(start).Seconds()

		stats := EpochStats{
			Epoch:       epoch,
			TotalEpochs: epochs,
			Loss:        epochLoss,
			ValLoss:     valLoss,
			Elapsed:     summary.Elapsed,
			Progress:    float64(epoch+1) / float64(epochs) * 100,
		}
		m.safeCall(func() {
			if cb.OnEpochEnd != nil {
				cb.OnEpochEnd(epoch, stats)
			}
		})
	}

	m.mu.Lock()
	m.trained = true
	m.mu.Unlock()
	fireTrainEnd()

	m.log.Infow("training completed",
		"epochs", summary.Epochs,
		"final_loss", summary.FinalLoss,
		"elapsed_seconds", summary.Elapsed)
	return summary, nil
}

// safeCall invokes a caller-supplied hook; a panic is logged and swallowed
// so a broken progress consumer cannot abort training.
func (m *SequenceModel) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Warnw("training callback panicked", "panic", r)
		}
	}()
	fn()
}

// Predict runs a single forward pass over one window (windowSize 1-feature
// vectors). Numeric failures degrade to an all-zero vector of length
// Horizon rather than propagating.
func (m *SequenceModel) Predict(input [][]float64) ([]float64, error) {
	if len(input) == 0 {
		return nil, ErrInputMissing
	}

	m.mu.Lock()
	if m.net == nil {
		m.buildLocked()
	}
	net := m.net
	m.mu.Unlock()

	out := net.predict(input)
	for _, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			m.log.Warnw("prediction produced non-finite output, returning zero vector")
			return make([]float64, m.cfg.Horizon), nil
		}
	}
	return out, nil
}

// Evaluate computes loss/MSE/RMSE over the held-out set. An unbuilt model
// or absent data yields the fixed fallback triple, never an error.
func (m *SequenceModel) Evaluate(testInputs [][][]float64, testTargets [][]float64) Metrics {
	m.mu.Lock()
	net := m.net
	m.mu.Unlock()

	if net == nil || len(testInputs) == 0 || len(testInputs) != len(testTargets) {
		m.log.Warnw("evaluate called without model or test data, returning fallback metrics")
		return fallbackMetrics()
	}

	loss := net.evaluateLoss(testInputs, testTargets)
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		m.log.Warnw("evaluation produced non-finite loss, returning fallback metrics")
		return fallbackMetrics()
	}
	return Metrics{Loss: loss, MSE: loss, RMSE: math.Sqrt(loss)}
}

// Release frees the network and resets to Unbuilt. Safe to call repeatedly.
func (m *SequenceModel) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.net = nil
	m.trained = false
}
