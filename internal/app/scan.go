package app

import (
	"context"
	"fmt"
	"time"

	"gridgate/internal/allocator"
	"gridgate/internal/gates"
	"gridgate/internal/market"
	"gridgate/internal/rotation"
	"gridgate/internal/sizing"

	"github.com/shopspring/decimal"
)

type Opportunity struct {
	Symbol          string
	Signal          rotation.Signal
	Composite       decimal.Decimal
	Notional        decimal.Decimal
	Units           decimal.Decimal
	StopPct         decimal.Decimal
	RequiredMinStep decimal.Decimal
	Accepted        bool
	Reason          string
	ThinGrid        bool
}

type ScanReport struct {
	At            time.Time
	RegimeOK      bool
	CoreLocked    bool
	CoreHeadroom  decimal.Decimal
	Opportunities []Opportunity
	Excluded      map[string]string
}

// Scan runs the decision pipeline: regime gate, ranking, sizing, ledger
// headroom check, fee gate. It never mutates the ledger; Run commits the
// top accepted opportunity separately.
func (a *App) Scan(ctx context.Context) (*ScanReport, error) {
	report := &ScanReport{At: time.Now().UTC(), Excluded: make(map[string]string)}

	report.RegimeOK = a.regime.Favorable(ctx)
	if !report.RegimeOK {
		return report, nil
	}

	btcCandles, err := a.candles(ctx, a.cfg.Scan.BTCPair)
	if err != nil {
		return nil, fmt.Errorf("btc reference %s: %w", a.cfg.Scan.BTCPair, err)
	}

	candidates := make([]rotation.Candidate, 0, len(a.cfg.Scan.Pairs))
	candleCache := make(map[string][]market.Candle, len(a.cfg.Scan.Pairs))
	for _, pair := range a.cfg.Scan.Pairs {
		if pair == a.cfg.Scan.BTCPair {
			continue
		}
		candles, err := a.candles(ctx, pair)
		if err != nil {
			report.Excluded[pair] = err.Error()
			continue
		}
		candleCache[pair] = candles
		candidates = append(candidates, rotation.Candidate{
			Symbol:  pair,
			Closes:  market.Closes(candles),
			Volumes: market.Volumes(candles),
		})
	}

	ranked, err := a.ranker.Rank(candidates, market.Closes(btcCandles))
	if err != nil {
		return nil, err
	}
	for symbol, reason := range ranked.Excluded {
		report.Excluded[symbol] = reason
	}

	coreStatus, err := a.alloc.Status(allocator.BucketCore)
	if err != nil {
		return nil, err
	}
	report.CoreLocked = coreStatus.Locked
	report.CoreHeadroom = coreStatus.Headroom

	equity := a.alloc.TotalEquity()
	open := openAssets(a.alloc.OpenRecords())
	feeParams := a.feeParams()
	limit := a.cfg.Scan.TopN
	for i, asset := range ranked.Ranked {
		if i >= limit {
			break
		}
		opp := a.evaluate(asset, candleCache[asset.Symbol], equity, coreStatus, open, feeParams)
		report.Opportunities = append(report.Opportunities, opp)
	}
	return report, nil
}

func (a *App) evaluate(
	asset rotation.RankedAsset,
	candles []market.Candle,
	equity decimal.Decimal,
	coreStatus allocator.BucketStatus,
	open map[string]bool,
	feeParams gates.Params,
) Opportunity {
	opp := Opportunity{
		Symbol:    asset.Symbol,
		Signal:    asset.Signal,
		Composite: asset.Composite,
	}
	if open[asset.Symbol] {
		opp.Reason = "position already deployed"
		return opp
	}

	price := decimal.Zero
	if len(candles) > 0 {
		price = candles[len(candles)-1].Close
	}
	input := sizing.Input{
		Equity:         equity,
		RiskBudgetPct:  a.cfg.Risk.RiskBudgetPct.Decimal,
		VolatilityPct:  market.ATRPercent(candles, a.cfg.Ranker.MomentumWindow),
		Price:          price,
		MaxPositionPct: a.cfg.Risk.MaxPositionPct.Decimal,
		MinPositionUSD: a.cfg.Risk.MinPositionUSD.Decimal,
	}
	if a.cfg.Risk.CustomStopPct.IsSet() {
		input.CustomStopPct = a.cfg.Risk.CustomStopPct.Decimal
		input.HasCustomStop = true
	}
	sized, err := sizing.Calculate(input)
	if err != nil {
		opp.Reason = err.Error()
		return opp
	}
	opp.Notional = sized.Notional
	opp.Units = sized.Units
	opp.StopPct = sized.StopPct
	if sized.BelowMinimum {
		opp.Reason = "below minimum position size"
		return opp
	}

	if coreStatus.Locked {
		opp.Reason = "core bucket locked"
		return opp
	}
	if sized.Notional.GreaterThan(coreStatus.Headroom) {
		opp.Reason = fmt.Sprintf("insufficient headroom: need %s, have %s", sized.Notional, coreStatus.Headroom)
		return opp
	}
	remaining := coreStatus.Headroom.Sub(sized.Notional)
	opp.ThinGrid = remaining.IsPositive() && remaining.LessThan(a.cfg.Allocation.MinGridNotional.Decimal)

	verdict := gates.Evaluate(feeParams, a.cfg.Scan.GridStep.Decimal)
	opp.RequiredMinStep = verdict.RequiredMinStep
	if !verdict.Allowed {
		opp.Reason = fmt.Sprintf("grid step %s below fee-viable minimum %s", verdict.ActualStep, verdict.RequiredMinStep)
		return opp
	}

	opp.Accepted = true
	return opp
}

func (a *App) candles(ctx context.Context, pair string) ([]market.Candle, error) {
	rows, err := a.rest.OHLC(ctx, pair, a.ohlcMins)
	if err != nil {
		return nil, err
	}
	return market.ParseOHLC(pair, rows)
}

func openAssets(records []allocator.DeploymentRecord) map[string]bool {
	out := make(map[string]bool, len(records))
	for _, rec := range records {
		out[rec.Asset] = true
	}
	return out
}
