package sizing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func baseInput() Input {
	return Input{
		Equity:         dec("4100"),
		RiskBudgetPct:  dec("0.005"),
		VolatilityPct:  dec("0.04"),
		Price:          dec("100"),
		MaxPositionPct: dec("0.25"),
		MinPositionUSD: dec("10"),
	}
}

func TestCalculateBaseline(t *testing.T) {
	in := baseInput()
	in.CustomStopPct = dec("0.20")
	in.HasCustomStop = true
	res, err := Calculate(in)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	// 4100 * 0.005 / 0.20 = 102.50
	if !res.Notional.Equal(dec("102.5")) {
		t.Fatalf("notional = %s, want 102.5", res.Notional)
	}
	if !res.Units.Equal(dec("1.025")) {
		t.Fatalf("units = %s, want 1.025", res.Units)
	}
	if res.Capped || res.BelowMinimum {
		t.Fatalf("unexpected flags: %+v", res)
	}
}

func TestCalculateDefaultStopFromVolatility(t *testing.T) {
	in := baseInput()
	res, err := Calculate(in)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !res.StopPct.Equal(dec("0.06")) {
		t.Fatalf("stop = %s, want 0.06 (1.5x volatility)", res.StopPct)
	}
}

func TestCalculateCapsAtMaxPosition(t *testing.T) {
	in := baseInput()
	in.CustomStopPct = dec("0.01")
	in.HasCustomStop = true
	res, err := Calculate(in)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	// raw = 4100 * 0.005 / 0.01 = 2050, cap = 4100 * 0.25 = 1025
	if !res.Notional.Equal(dec("1025")) {
		t.Fatalf("notional = %s, want 1025", res.Notional)
	}
	if !res.Capped {
		t.Fatalf("expected capped flag")
	}
}

func TestCalculateBelowMinimumIsSkipNotError(t *testing.T) {
	in := baseInput()
	in.Equity = dec("100")
	in.CustomStopPct = dec("0.20")
	in.HasCustomStop = true
	in.MinPositionUSD = dec("10")
	// 100 * 0.005 / 0.20 = 2.50, below the 10 minimum
	res, err := Calculate(in)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !res.BelowMinimum {
		t.Fatalf("expected below-minimum skip")
	}
	if !res.Notional.IsZero() || !res.Units.IsZero() {
		t.Fatalf("skip must carry zero sizes: %+v", res)
	}
}

func TestCalculateInvalidStop(t *testing.T) {
	in := baseInput()
	in.VolatilityPct = decimal.Zero
	if _, err := Calculate(in); !errors.Is(err, ErrInvalidStop) {
		t.Fatalf("expected ErrInvalidStop, got %v", err)
	}
	in = baseInput()
	in.HasCustomStop = true
	in.CustomStopPct = dec("-0.05")
	if _, err := Calculate(in); !errors.Is(err, ErrInvalidStop) {
		t.Fatalf("expected ErrInvalidStop for negative stop, got %v", err)
	}
}

func TestCalculateInvalidPrice(t *testing.T) {
	in := baseInput()
	in.Price = decimal.Zero
	if _, err := Calculate(in); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}
