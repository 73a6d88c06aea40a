package sizing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidStop  = errors.New("stop distance must be > 0")
	ErrInvalidPrice = errors.New("price must be > 0")
)

// stopVolMultiple widens the volatility estimate into a stop distance when
// no explicit stop is configured.
var stopVolMultiple = decimal.RequireFromString("1.5")

type Input struct {
	Equity         decimal.Decimal
	RiskBudgetPct  decimal.Decimal
	VolatilityPct  decimal.Decimal
	Price          decimal.Decimal
	MaxPositionPct decimal.Decimal
	MinPositionUSD decimal.Decimal
	CustomStopPct  decimal.Decimal
	HasCustomStop  bool
}

type Result struct {
	Notional     decimal.Decimal
	Units        decimal.Decimal
	StopPct      decimal.Decimal
	Capped       bool
	BelowMinimum bool
}

// Calculate sizes a position from the risk budget and stop distance:
// notional = equity * riskBudget / stop, capped at equity * maxPositionPct.
// A capped notional below the venue minimum is a policy skip, not an error.
func Calculate(in Input) (Result, error) {
	stop := in.CustomStopPct
	if !in.HasCustomStop {
		stop = in.VolatilityPct.Mul(stopVolMultiple)
	}
	if !stop.IsPositive() {
		return Result{}, ErrInvalidStop
	}
	raw := in.Equity.Mul(in.RiskBudgetPct).Div(stop)
	capLimit := in.Equity.Mul(in.MaxPositionPct)
	notional := raw
	capped := false
	if notional.GreaterThan(capLimit) {
		notional = capLimit
		capped = true
	}
	if notional.LessThan(in.MinPositionUSD) {
		return Result{StopPct: stop, Capped: capped, BelowMinimum: true}, nil
	}
	if !in.Price.IsPositive() {
		return Result{}, ErrInvalidPrice
	}
	return Result{
		Notional: notional,
		Units:    notional.Div(in.Price),
		StopPct:  stop,
		Capped:   capped,
	}, nil
}
