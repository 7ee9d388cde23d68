package market

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ParseCSV parses a semicolon-delimited price feed: one header row followed
// by date;price rows. Parsing is best-effort: rows with fewer than two
// fields, or whose price is not a finite positive number, are dropped
// silently. The result is sorted ascending by calendar date; rows whose
// date cannot be parsed keep their original relative order.
func ParseCSV(raw []byte) []PricePoint {
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	points := make([]PricePoint, 0, len(lines))

	for i := 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		parts := strings.Split(line, ";")
		if len(parts) < 2 {
			continue
		}
		dateStr := strings.TrimSpace(parts[0])
		price, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil || math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
			continue
		}
		points = append(points, PricePoint{
			Date:  dateStr,
			Time:  parseDate(dateStr),
			Price: price,
		})
	}

	sort.SliceStable(points, func(a, b int) bool {
		if points[a].Time.IsZero() || points[b].Time.IsZero() {
			return false
		}
		return points[a].Time.Before(points[b].Time)
	})

	return points
}

// parseDate prefers DD.MM.YYYY, then falls back to common layouts. Returns
// the zero time when nothing matches.
func parseDate(s string) time.Time {
	if t, err := time.Parse("02.01.2006", s); err == nil {
		return t
	}
	for _, layout := range []string{"2006-01-02", "01/02/2006", "2006/01/02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ComputeReturns derives simple daily returns from the price series:
// r[i] = (p[i+1]-p[i])/p[i]. Fewer than two points yields an empty slice;
// callers must check the length before use.
func ComputeReturns(points []PricePoint) []float64 {
	if len(points) < 2 {
		return []float64{}
	}
	returns := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		returns = append(returns, (points[i].Price-points[i-1].Price)/points[i-1].Price)
	}
	return returns
}
