package market

import (
	"math"
	"testing"
)

func TestParseCSV(t *testing.T) {
	raw := []byte("Date;Price\n03.01.2020;102.5\n02.01.2020;100.0\nbadline\n04.01.2020;abc\n05.01.2020;-5\n06.01.2020;110\n")

	points := ParseCSV(raw)
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	if points[0].Date != "02.01.2020" {
		t.Errorf("expected sorted by date, first is %s", points[0].Date)
	}
	if points[0].Price != 100.0 || points[1].Price != 102.5 || points[2].Price != 110 {
		t.Errorf("unexpected prices: %+v", points)
	}
}

func TestParseCSVFallbackDates(t *testing.T) {
	raw := []byte("Date;Price\n2020-01-03;11\n2020-01-02;10\n")

	points := ParseCSV(raw)
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[0].Price != 10 {
		t.Errorf("expected ISO dates sorted, got %+v", points)
	}
}

func TestParseCSVUnparsableDatesKeepOrder(t *testing.T) {
	raw := []byte("Date;Price\nfirst;1\nsecond;2\nthird;3\n")

	points := ParseCSV(raw)
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	if points[0].Date != "first" || points[1].Date != "second" || points[2].Date != "third" {
		t.Errorf("expected stable order for unparsable dates, got %+v", points)
	}
}

func TestComputeReturns(t *testing.T) {
	points := []PricePoint{
		{Date: "1", Price: 100},
		{Date: "2", Price: 102},
		{Date: "3", Price: 101},
		{Date: "4", Price: 105},
		{Date: "5", Price: 99},
	}

	returns := ComputeReturns(points)
	if len(returns) != len(points)-1 {
		t.Fatalf("expected %d returns, got %d", len(points)-1, len(returns))
	}

	expected := []float64{0.02, -1.0 / 102.0, 4.0 / 101.0, -6.0 / 105.0}
	for i, want := range expected {
		if math.Abs(returns[i]-want) > 1e-12 {
			t.Errorf("return[%d] = %v, want %v", i, returns[i], want)
		}
	}

	// each return recomputes exactly from adjacent prices
	for i := range returns {
		want := (points[i+1].Price - points[i].Price) / points[i].Price
		if returns[i] != want {
			t.Errorf("return[%d] does not match adjacent prices", i)
		}
	}
}

func TestComputeReturnsInsufficientData(t *testing.T) {
	if got := ComputeReturns(nil); len(got) != 0 {
		t.Errorf("expected empty returns for nil points, got %v", got)
	}
	if got := ComputeReturns([]PricePoint{{Price: 100}}); len(got) != 0 {
		t.Errorf("expected empty returns for single point, got %v", got)
	}
}
