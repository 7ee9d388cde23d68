package market

import "time"

// PricePoint is a single daily close parsed from the feed. Date keeps the
// raw label from the source row; Time is the parsed calendar date used for
// ordering (zero when the label could not be parsed).
type PricePoint struct {
	Date  string    `json:"date"`
	Time  time.Time `json:"-"`
	Price float64   `json:"price"`
}

// HistoricalData is the read-only view handed to the presentation layer.
type HistoricalData struct {
	Dates             []string  `json:"dates"`
	Prices            []float64 `json:"prices"`
	Returns           []float64 `json:"returns"`
	NormalizedReturns []float64 `json:"normalized_returns"`
}
