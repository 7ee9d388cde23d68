// Package forecast turns a trained model's output into multi-day price
// projections.
package forecast

import (
	"fmt"

	"stockcast/ml"
)

// Predictor is the single model operation the composer needs.
type Predictor interface {
	Predict(input [][]float64) ([]float64, error)
}

// DayForecast is one projected day, ready for presentation.
type DayForecast struct {
	DayOffset       int     `json:"day_offset"`
	PredictedReturn float64 `json:"predicted_return"`
	ProjectedPrice  float64 `json:"projected_price"`
	PriceDelta      float64 `json:"price_delta"`
}

// Compose runs one prediction over the most recent normalized window and
// compounds the denormalized returns onto the last known price:
// price_k = price_{k-1} * (1 + ret_k). The model is queried exactly once;
// only the running price compounds across the fixed forecast vector.
func Compose(model Predictor, window []float64, params ml.NormalizationParams, lastPrice float64) ([]DayForecast, error) {
	if len(window) == 0 {
		return nil, ml.ErrInputMissing
	}
	if lastPrice <= 0 {
		return nil, fmt.Errorf("last price must be positive, got %v", lastPrice)
	}

	input := make([][]float64, len(window))
	for i, v := range window {
		input[i] = []float64{v}
	}

	predicted, err := model.Predict(input)
	if err != nil {
		return nil, err
	}

	days := make([]DayForecast, 0, len(predicted))
	price := lastPrice
	for k, normalized := range predicted {
		ret := ml.Denormalize(normalized, params)
		next := price * (1 + ret)
		days = append(days, DayForecast{
			DayOffset:       k + 1,
			PredictedReturn: ret,
			ProjectedPrice:  next,
			PriceDelta:      next - price,
		})
		price = next
	}
	return days, nil
}
