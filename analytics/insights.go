// Package analytics derives descriptive statistics from a daily price
// series and its returns. All values are numeric fractions (not formatted
// percentages); presentation formatting is the consumer's concern.
package analytics

import (
	"math"

	"stockcast/market"
)

const tradingDaysPerYear = 252

// Insights is an atomic snapshot of every derived statistic. A default
// instance exists for the empty-data state so consumers never observe
// partial state.
type Insights struct {
	Basic      BasicStats      `json:"basic"`
	Returns    ReturnStats     `json:"returns"`
	Trends     TrendStats      `json:"trends"`
	Volatility VolatilityStats `json:"volatility"`
}

type BasicStats struct {
	TotalDays   int     `json:"total_days"`
	FirstDate   string  `json:"first_date"`
	LastDate    string  `json:"last_date"`
	FirstPrice  float64 `json:"first_price"`
	LastPrice   float64 `json:"last_price"`
	TotalReturn float64 `json:"total_return"`
	MaxDrawdown float64 `json:"max_drawdown"`
}

type ReturnStats struct {
	MeanDaily            float64 `json:"mean_daily"`
	StdDaily             float64 `json:"std_daily"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
	SharpeRatio          float64 `json:"sharpe_ratio"`
	PositiveDayRatio     float64 `json:"positive_day_ratio"`
}

type TrendStats struct {
	CurrentTrend string  `json:"current_trend"`
	SMA50        float64 `json:"sma50"`
	SMA200       float64 `json:"sma200"`
}

type VolatilityStats struct {
	CurrentRolling float64 `json:"current_rolling"`
	AverageRolling float64 `json:"average_rolling"`
}

// DefaultInsights is the all-zero instance reported before any data is
// loaded or when the series has no returns.
func DefaultInsights() Insights {
	return Insights{
		Basic:  BasicStats{FirstDate: "N/A", LastDate: "N/A"},
		Trends: TrendStats{CurrentTrend: "N/A"},
	}
}

// Compute derives Insights from the price series and its returns. It is a
// pure function; calling it twice on the same input yields identical output.
func Compute(points []market.PricePoint, returns []float64) Insights {
	if len(points) == 0 || len(returns) == 0 {
		return DefaultInsights()
	}

	prices := make([]float64, len(points))
	for i, p := range points {
		prices[i] = p.Price
	}

	firstPrice := prices[0]
	lastPrice := prices[len(prices)-1]

	mean := meanOf(returns)
	std := math.Sqrt(populationVariance(returns, mean))

	sharpe := 0.0
	if std > 0 {
		sharpe = mean / std * math.Sqrt(tradingDaysPerYear)
	}

	positive := 0
	for _, r := range returns {
		if r > 0 {
			positive++
		}
	}

	sma50 := lastSMA(prices, 50)
	sma200 := lastSMA(prices, 200)
	trend := "Bearish"
	if sma50 > 0 && sma200 > 0 && sma50 > sma200 {
		trend = "Bullish"
	}

	currentVol, avgVol := rollingVolatility(returns, 20)

	return Insights{
		Basic: BasicStats{
			TotalDays:   len(points),
			FirstDate:   points[0].Date,
			LastDate:    points[len(points)-1].Date,
			FirstPrice:  firstPrice,
			LastPrice:   lastPrice,
			TotalReturn: (lastPrice - firstPrice) / firstPrice,
			MaxDrawdown: maxDrawdown(prices),
		},
		Returns: ReturnStats{
			MeanDaily:            mean,
			StdDaily:             std,
			AnnualizedVolatility: std * math.Sqrt(tradingDaysPerYear),
			SharpeRatio:          sharpe,
			PositiveDayRatio:     float64(positive) / float64(len(returns)),
		},
		Trends: TrendStats{
			CurrentTrend: trend,
			SMA50:        sma50,
			SMA200:       sma200,
		},
		Volatility: VolatilityStats{
			CurrentRolling: currentVol,
			AverageRolling: avgVol,
		},
	}
}

// maxDrawdown reports the largest peak-to-trough decline as a fraction of
// the running peak.
func maxDrawdown(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	peak := prices[0]
	maxDD := 0.0
	for _, price := range prices[1:] {
		if price > peak {
			peak = price
		}
		dd := (peak - price) / peak
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// lastSMA returns the simple moving average over the trailing period
// prices, or 0 when fewer than period prices exist.
func lastSMA(prices []float64, period int) float64 {
	if len(prices) < period || period <= 0 {
		return 0
	}
	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period)
}

// rollingVolatility computes annualized volatility over trailing windows of
// the given size (shrunk to the series length when shorter) and reports the
// latest window and the mean across all windows.
func rollingVolatility(returns []float64, window int) (current, average float64) {
	if len(returns) == 0 {
		return 0, 0
	}
	if window > len(returns) {
		window = len(returns)
	}

	vols := make([]float64, 0, len(returns)-window+1)
	for i := window; i <= len(returns); i++ {
		segment := returns[i-window : i]
		mean := meanOf(segment)
		vols = append(vols, math.Sqrt(populationVariance(segment, mean))*math.Sqrt(tradingDaysPerYear))
	}
	if len(vols) == 0 {
		return 0, 0
	}
	return vols[len(vols)-1], meanOf(vols)
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// populationVariance divides by N, not N-1, for compatibility with the
// reference statistics.
func populationVariance(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	return variance / float64(len(values))
}
