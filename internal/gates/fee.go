package gates

import (
	"github.com/shopspring/decimal"
)

var two = decimal.New(2, 0)

type Params struct {
	MakerFee       decimal.Decimal
	TakerFee       decimal.Decimal
	Spread         decimal.Decimal
	SlippageBuffer decimal.Decimal
	K              decimal.Decimal
	Floor          decimal.Decimal
	MakerOnly      bool
}

type Result struct {
	Allowed         bool
	RequiredMinStep decimal.Decimal
	ActualStep      decimal.Decimal
	CostBasis       decimal.Decimal
}

// CostBasis is the round-trip cost of one grid cycle: pay the fee twice,
// cross the spread once, and absorb the slippage buffer.
func (p Params) CostBasis() decimal.Decimal {
	fee := p.TakerFee
	if p.MakerOnly {
		fee = p.MakerFee
	}
	return fee.Mul(two).Add(p.Spread).Add(p.SlippageBuffer)
}

// Evaluate checks whether a proposed grid step clears the fee-viability
// minimum: max(K * costBasis, Floor). The step passes on equality.
func Evaluate(p Params, proposedStep decimal.Decimal) Result {
	cost := p.CostBasis()
	required := p.K.Mul(cost)
	if required.LessThan(p.Floor) {
		required = p.Floor
	}
	return Result{
		Allowed:         proposedStep.GreaterThanOrEqual(required),
		RequiredMinStep: required,
		ActualStep:      proposedStep,
		CostBasis:       cost,
	}
}
