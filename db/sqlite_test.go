package db

import (
	"path/filepath"
	"testing"

	"stockcast/forecast"
	"stockcast/market"
	"stockcast/ml"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndQueryPricePoints(t *testing.T) {
	store := testStore(t)

	points := []market.PricePoint{
		{Date: "2024-01-01", Price: 100},
		{Date: "2024-01-02", Price: 102},
		{Date: "2024-01-03", Price: 101},
	}
	if err := store.SavePricePoints(points); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.QueryPricePoints()
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d points, want 3", len(got))
	}
	for i := range points {
		if got[i].Date != points[i].Date || got[i].Price != points[i].Price {
			t.Errorf("point %d = %+v, want %+v", i, got[i], points[i])
		}
	}

	// a second save replaces the series
	if err := store.SavePricePoints(points[:1]); err != nil {
		t.Fatalf("resave: %v", err)
	}
	got, err = store.QueryPricePoints()
	if err != nil {
		t.Fatalf("requery: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d points after replace, want 1", len(got))
	}
}

func TestTrainingRunRoundTrip(t *testing.T) {
	store := testStore(t)

	if _, err := store.LatestTrainingRun(); err == nil {
		t.Error("expected error on empty training log")
	}

	summary := ml.TrainingSummary{Epochs: 12, FinalLoss: 0.004, FinalValLoss: 0.006, Elapsed: 3.5}
	metrics := ml.Metrics{Loss: 0.005, MSE: 0.005, RMSE: 0.0707}
	if err := store.SaveTrainingRun(summary, metrics); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.LatestTrainingRun()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.MSE != metrics.MSE || got.RMSE != metrics.RMSE {
		t.Errorf("got %+v, want mse=%v rmse=%v", got, metrics.MSE, metrics.RMSE)
	}
}

func TestSaveForecastsReplaces(t *testing.T) {
	store := testStore(t)

	first := []forecast.DayForecast{
		{DayOffset: 1, PredictedReturn: 0.01, ProjectedPrice: 101, PriceDelta: 1},
		{DayOffset: 2, PredictedReturn: -0.02, ProjectedPrice: 98.98, PriceDelta: -2.02},
	}
	if err := store.SaveForecasts(first); err != nil {
		t.Fatalf("save: %v", err)
	}
	second := []forecast.DayForecast{
		{DayOffset: 1, PredictedReturn: 0.03, ProjectedPrice: 103, PriceDelta: 3},
	}
	if err := store.SaveForecasts(second); err != nil {
		t.Fatalf("resave: %v", err)
	}

	var count int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM forecasts").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("forecast rows = %d, want 1", count)
	}
}
