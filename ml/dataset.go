package ml

import "errors"

var (
	// ErrNoData is returned when normalization is asked for an empty series.
	ErrNoData = errors.New("no returns data available")
	// ErrInsufficientData is returned when the series is too short to build
	// a single training window.
	ErrInsufficientData = errors.New("not enough data for training")
)

// Default dataset parameters, matching the configuration surface.
const (
	DefaultWindowSize   = 60
	DefaultHorizon      = 5
	DefaultTestFraction = 0.2
)

// NormalizationParams holds the min-max bounds of the return series. They
// are required both to normalize inputs and to denormalize predictions.
type NormalizationParams struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Range returns max-min, substituting a unit range when the series is
// constant so division never blows up.
func (p NormalizationParams) Range() float64 {
	r := p.Max - p.Min
	if r == 0 {
		return 1
	}
	return r
}

// WindowedDataset holds the supervised windows after the chronological
// split. Each input is a windowSize-long slice of 1-feature vectors; each
// target is the horizon-long forward slice.
type WindowedDataset struct {
	TrainInputs  [][][]float64
	TrainTargets [][]float64
	TestInputs   [][][]float64
	TestTargets  [][]float64
}

// Normalize min-max scales returns to [0,1] and reports the parameters
// needed to invert the mapping.
func Normalize(returns []float64) ([]float64, NormalizationParams, error) {
	if len(returns) == 0 {
		return nil, NormalizationParams{}, ErrNoData
	}

	params := NormalizationParams{Min: returns[0], Max: returns[0]}
	for _, r := range returns[1:] {
		if r < params.Min {
			params.Min = r
		}
		if r > params.Max {
			params.Max = r
		}
	}

	rng := params.Range()
	normalized := make([]float64, len(returns))
	for i, r := range returns {
		normalized[i] = (r - params.Min) / rng
	}
	return normalized, params, nil
}

// Denormalize maps a normalized value back to return space.
func Denormalize(value float64, params NormalizationParams) float64 {
	return value*params.Range() + params.Min
}

// BuildWindows slices the normalized series into (input, target) pairs: for
// every start i with i+windowSize+horizon <= len(normalized), the input is
// normalized[i:i+windowSize] wrapped as 1-feature vectors and the target is
// the following horizon values.
func BuildWindows(normalized []float64, windowSize, horizon int) (inputs [][][]float64, targets [][]float64, err error) {
	total := len(normalized) - windowSize - horizon + 1
	if total <= 0 {
		return nil, nil, ErrInsufficientData
	}

	inputs = make([][][]float64, 0, total)
	targets = make([][]float64, 0, total)
	for i := 0; i < total; i++ {
		window := make([][]float64, windowSize)
		for j := 0; j < windowSize; j++ {
			window[j] = []float64{normalized[i+j]}
		}
		target := make([]float64, horizon)
		copy(target, normalized[i+windowSize:i+windowSize+horizon])

		inputs = append(inputs, window)
		targets = append(targets, target)
	}
	return inputs, targets, nil
}

// Split partitions the windows chronologically at floor(N*(1-testFraction)).
// No shuffling: train samples strictly precede test samples, so no future
// information leaks across the boundary.
func Split(inputs [][][]float64, targets [][]float64, testFraction float64) *WindowedDataset {
	if testFraction <= 0 || testFraction >= 1 {
		testFraction = DefaultTestFraction
	}
	splitIdx := int(float64(len(inputs)) * (1 - testFraction))

	return &WindowedDataset{
		TrainInputs:  inputs[:splitIdx],
		TrainTargets: targets[:splitIdx],
		TestInputs:   inputs[splitIdx:],
		TestTargets:  targets[splitIdx:],
	}
}
