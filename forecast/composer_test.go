package forecast

import (
	"errors"
	"math"
	"testing"

	"stockcast/ml"
)

type stubPredictor struct {
	output []float64
	err    error
	calls  int
}

func (s *stubPredictor) Predict(input [][]float64) ([]float64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.output, nil
}

func TestComposeCompounding(t *testing.T) {
	// identity normalization: denormalize(v) == v
	params := ml.NormalizationParams{Min: 0, Max: 1}
	stub := &stubPredictor{output: []float64{0.01, -0.02, 0.03}}

	days, err := Compose(stub, []float64{0.5, 0.6, 0.7}, params, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.calls != 1 {
		t.Errorf("model queried %d times, want exactly 1", stub.calls)
	}
	if len(days) != 3 {
		t.Fatalf("expected 3 day forecasts, got %d", len(days))
	}

	p1 := 100 * 1.01
	p2 := p1 * 0.98
	p3 := p2 * 1.03
	wantPrices := []float64{p1, p2, p3}
	for i, day := range days {
		if day.DayOffset != i+1 {
			t.Errorf("day %d offset = %d", i, day.DayOffset)
		}
		if math.Abs(day.ProjectedPrice-wantPrices[i]) > 1e-9 {
			t.Errorf("day %d price = %v, want %v", i, day.ProjectedPrice, wantPrices[i])
		}
	}
	if math.Abs(days[0].PriceDelta-1.0) > 1e-9 {
		t.Errorf("day 1 delta = %v, want 1.0", days[0].PriceDelta)
	}
	if math.Abs(days[1].PriceDelta-(p2-p1)) > 1e-9 {
		t.Errorf("day 2 delta = %v, want %v", days[1].PriceDelta, p2-p1)
	}
}

func TestComposeDenormalizes(t *testing.T) {
	params := ml.NormalizationParams{Min: -0.1, Max: 0.1}
	stub := &stubPredictor{output: []float64{0.5}} // midpoint -> return 0

	days, err := Compose(stub, []float64{0.5}, params, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(days[0].PredictedReturn) > 1e-12 {
		t.Errorf("midpoint should denormalize to zero return, got %v", days[0].PredictedReturn)
	}
	if math.Abs(days[0].ProjectedPrice-200) > 1e-9 {
		t.Errorf("zero return should keep the price, got %v", days[0].ProjectedPrice)
	}
}

func TestComposeEmptyWindow(t *testing.T) {
	stub := &stubPredictor{output: []float64{0.1}}
	if _, err := Compose(stub, nil, ml.NormalizationParams{}, 100); !errors.Is(err, ml.ErrInputMissing) {
		t.Errorf("expected ErrInputMissing, got %v", err)
	}
}

func TestComposePredictorError(t *testing.T) {
	stub := &stubPredictor{err: errors.New("boom")}
	if _, err := Compose(stub, []float64{0.5}, ml.NormalizationParams{}, 100); err == nil {
		t.Error("predictor error must propagate")
	}
}
