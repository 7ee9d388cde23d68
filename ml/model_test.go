package ml

import (
	"context"
	"errors"
	"testing"
)

func testModel(horizon int) *SequenceModel {
	return NewSequenceModel(ModelConfig{
		WindowSize:  10,
		Horizon:     horizon,
		HiddenUnits: 8,
		Seed:        42,
	}, nil)
}

func TestEvaluateBeforeBuild(t *testing.T) {
	m := testModel(2)

	metrics := m.Evaluate(nil, nil)

	want := fallbackMetrics()
	if metrics != want {
		t.Errorf("unbuilt evaluate = %+v, want fallback %+v", metrics, want)
	}
}

func TestPredictMissingInput(t *testing.T) {
	m := testModel(2)

	if _, err := m.Predict(nil); !errors.Is(err, ErrInputMissing) {
		t.Errorf("expected ErrInputMissing, got %v", err)
	}
}

func TestPredictAutoBuilds(t *testing.T) {
	m := testModel(3)
	inputs, _ := syntheticWindows(1, 10, 3)

	out, err := m.Predict(inputs[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 3 {
		t.Errorf("prediction length = %d, want 3", len(out))
	}
	if !m.Built() {
		t.Error("Predict should auto-build the model")
	}
	if m.Trained() {
		t.Error("auto-build must not mark the model trained")
	}
}

func TestTrainLifecycle(t *testing.T) {
	m := testModel(2)
	inputs, targets := syntheticWindows(30, 10, 2)

	var epochs []int
	var endCalls int
	summary, err := m.Train(context.Background(), inputs, targets, 3, Callbacks{
		OnEpochEnd: func(epoch int, stats EpochStats) {
			epochs = append(epochs, epoch)
			if stats.TotalEpochs != 3 {
				t.Errorf("TotalEpochs = %d, want 3", stats.TotalEpochs)
			}
			if stats.Progress <= 0 || stats.Progress > 100 {
				t.Errorf("Progress = %v out of range", stats.Progress)
			}
		},
		OnTrainEnd: func(elapsed float64) { endCalls++ },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Epochs != 3 {
		t.Errorf("summary epochs = %d, want 3", summary.Epochs)
	}
	if len(epochs) != 3 || epochs[0] != 0 || epochs[2] != 2 {
		t.Errorf("epoch callbacks = %v", epochs)
	}
	if endCalls != 1 {
		t.Errorf("OnTrainEnd fired %d times, want 1", endCalls)
	}
	if !m.Trained() {
		t.Error("model should be trained")
	}

	metrics := m.Evaluate(inputs, targets)
	if metrics == fallbackMetrics() {
		t.Error("trained evaluate should compute real metrics")
	}
	if metrics.MSE != metrics.Loss {
		t.Errorf("MSE %v should equal loss %v", metrics.MSE, metrics.Loss)
	}
}

func TestTrainClampsEpochs(t *testing.T) {
	m := testModel(2)
	inputs, targets := syntheticWindows(12, 10, 2)

	summary, err := m.Train(context.Background(), inputs, targets, 0, Callbacks{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Epochs != DefaultEpochs {
		t.Errorf("epochs = %d, want default %d", summary.Epochs, DefaultEpochs)
	}
}

func TestTrainCallbackPanicIgnored(t *testing.T) {
	m := testModel(2)
	inputs, targets := syntheticWindows(12, 10, 2)

	summary, err := m.Train(context.Background(), inputs, targets, 2, Callbacks{
		OnEpochEnd: func(int, EpochStats) { panic("broken consumer") },
	})
	if err != nil {
		t.Fatalf("callback panic must not abort training: %v", err)
	}
	if summary.Epochs != 2 {
		t.Errorf("epochs = %d, want 2", summary.Epochs)
	}
}

func TestTrainRejectedWhileInFlight(t *testing.T) {
	m := testModel(2)
	inputs, targets := syntheticWindows(12, 10, 2)

	// simulate an in-flight run holding the gate
	m.training.Store(true)

	var endCalls int
	_, err := m.Train(context.Background(), inputs, targets, 1, Callbacks{
		OnTrainEnd: func(float64) { endCalls++ },
	})
	if !errors.Is(err, ErrTrainingInProgress) {
		t.Fatalf("expected ErrTrainingInProgress, got %v", err)
	}
	if endCalls != 0 {
		t.Errorf("rejected call must not fire OnTrainEnd, fired %d times", endCalls)
	}
	if m.Trained() {
		t.Error("rejected call must not change model state")
	}
	m.training.Store(false)
}

func TestTrainFailureMarksTrained(t *testing.T) {
	m := testModel(2)

	var endCalls int
	_, err := m.Train(context.Background(), nil, nil, 2, Callbacks{
		OnTrainEnd: func(float64) { endCalls++ },
	})
	if !errors.Is(err, ErrTrainingFailed) {
		t.Fatalf("expected ErrTrainingFailed, got %v", err)
	}
	if endCalls != 1 {
		t.Errorf("OnTrainEnd fired %d times, want 1", endCalls)
	}
	if !m.Trained() {
		t.Error("failed training must still mark the model trained")
	}
}

func TestTrainCancelledBetweenEpochs(t *testing.T) {
	m := testModel(2)
	inputs, targets := syntheticWindows(12, 10, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var endCalls int
	_, err := m.Train(ctx, inputs, targets, 5, Callbacks{
		OnTrainEnd: func(float64) { endCalls++ },
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if endCalls != 1 {
		t.Errorf("OnTrainEnd fired %d times, want 1", endCalls)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	m := testModel(2)
	m.Build()
	if !m.Built() {
		t.Fatal("expected built model")
	}

	m.Release()
	m.Release()

	if m.Built() || m.Trained() {
		t.Error("released model must be unbuilt and untrained")
	}
}

func TestRebuildResetsTrained(t *testing.T) {
	m := testModel(2)
	inputs, targets := syntheticWindows(12, 10, 2)

	if _, err := m.Train(context.Background(), inputs, targets, 1, Callbacks{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.Trained() {
		t.Fatal("expected trained model")
	}

	m.Build()
	if m.Trained() {
		t.Error("rebuild must reset the trained flag")
	}
}
