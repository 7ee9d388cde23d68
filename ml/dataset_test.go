package ml

import (
	"errors"
	"math"
	"testing"
)

func TestNormalizeRoundTrip(t *testing.T) {
	returns := []float64{0.02, -0.0098, 0.0396, -0.0571, 0.001}

	normalized, params, err := Normalize(returns)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, n := range normalized {
		if n < 0 || n > 1 {
			t.Errorf("normalized[%d] = %v outside [0,1]", i, n)
		}
		back := Denormalize(n, params)
		if math.Abs(back-returns[i]) > 1e-12 {
			t.Errorf("round-trip mismatch at %d: %v != %v", i, back, returns[i])
		}
	}
}

func TestNormalizeEmpty(t *testing.T) {
	_, _, err := Normalize(nil)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestNormalizeConstantSeries(t *testing.T) {
	normalized, params, err := Normalize([]float64{0.01, 0.01, 0.01})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Range() != 1 {
		t.Errorf("constant series should substitute unit range, got %v", params.Range())
	}
	for _, n := range normalized {
		if n != 0 {
			t.Errorf("constant series should normalize to 0, got %v", n)
		}
	}
}

func TestBuildWindowsBoundary(t *testing.T) {
	windowSize, horizon := 5, 2

	// one short of a single window
	short := make([]float64, windowSize+horizon-1)
	if _, _, err := BuildWindows(short, windowSize, horizon); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData for len=%d", len(short))
	}

	// exactly one window
	exact := make([]float64, windowSize+horizon)
	for i := range exact {
		exact[i] = float64(i)
	}
	inputs, targets, err := BuildWindows(exact, windowSize, horizon)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inputs) != 1 || len(targets) != 1 {
		t.Fatalf("expected exactly one window, got %d/%d", len(inputs), len(targets))
	}
	if len(inputs[0]) != windowSize || len(inputs[0][0]) != 1 {
		t.Errorf("input shape wrong: %dx%d", len(inputs[0]), len(inputs[0][0]))
	}
	if len(targets[0]) != horizon {
		t.Errorf("target length = %d, want %d", len(targets[0]), horizon)
	}
	if targets[0][0] != float64(windowSize) {
		t.Errorf("target must start right after the window, got %v", targets[0][0])
	}
}

func TestBuildWindowsContents(t *testing.T) {
	series := []float64{0, 1, 2, 3, 4, 5, 6, 7}
	inputs, targets, err := BuildWindows(series, 3, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inputs) != 4 {
		t.Fatalf("expected 4 windows, got %d", len(inputs))
	}
	// second window covers series[1:4], target series[4:6]
	if inputs[1][0][0] != 1 || inputs[1][2][0] != 3 {
		t.Errorf("window 1 contents wrong: %+v", inputs[1])
	}
	if targets[1][0] != 4 || targets[1][1] != 5 {
		t.Errorf("target 1 contents wrong: %+v", targets[1])
	}
}

func TestSplitChronological(t *testing.T) {
	series := make([]float64, 40)
	for i := range series {
		series[i] = float64(i)
	}
	inputs, targets, err := BuildWindows(series, 5, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, fraction := range []float64{0.1, 0.2, 0.5, 0.9} {
		ds := Split(inputs, targets, fraction)

		wantTrain := int(float64(len(inputs)) * (1 - fraction))
		if len(ds.TrainInputs) != wantTrain {
			t.Errorf("fraction %v: train size %d, want %d", fraction, len(ds.TrainInputs), wantTrain)
		}
		if len(ds.TrainInputs)+len(ds.TestInputs) != len(inputs) {
			t.Errorf("fraction %v: split loses samples", fraction)
		}

		// every train window starts strictly before every test window
		if len(ds.TrainInputs) > 0 && len(ds.TestInputs) > 0 {
			lastTrain := ds.TrainInputs[len(ds.TrainInputs)-1][0][0]
			firstTest := ds.TestInputs[0][0][0]
			if lastTrain >= firstTest {
				t.Errorf("fraction %v: train window %v not before test window %v", fraction, lastTrain, firstTest)
			}
		}
	}
}

func TestSplitDefaultsBadFraction(t *testing.T) {
	series := make([]float64, 20)
	inputs, targets, err := BuildWindows(series, 4, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ds := Split(inputs, targets, 1.5)
	wantTrain := int(float64(len(inputs)) * (1 - DefaultTestFraction))
	if len(ds.TrainInputs) != wantTrain {
		t.Errorf("invalid fraction should fall back to default, got %d train", len(ds.TrainInputs))
	}
}
