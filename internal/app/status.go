package app

import (
	"context"
	"time"

	"gridgate/internal/allocator"
	"gridgate/internal/market"

	"github.com/shopspring/decimal"
)

type StatusReport struct {
	Buckets     []allocator.BucketStatus
	Drawdown    decimal.Decimal
	TotalEquity decimal.Decimal
	OpenRecords []allocator.DeploymentRecord
}

func (a *App) Status(context.Context) *StatusReport {
	return &StatusReport{
		Buckets:     a.alloc.Statuses(),
		Drawdown:    a.alloc.Drawdown(),
		TotalEquity: a.alloc.TotalEquity(),
		OpenRecords: a.alloc.OpenRecords(),
	}
}

type HealthReport struct {
	RESTOK     bool
	RESTError  string
	Latency    time.Duration
	ServerTime time.Time
	StoreOK    bool
	StoreError string
}

// Health probes the exchange and the local state store.
func (a *App) Health(ctx context.Context) *HealthReport {
	report := &HealthReport{}
	started := time.Now()
	serverTime, err := a.rest.Time(ctx)
	report.Latency = time.Since(started)
	if err != nil {
		report.RESTError = err.Error()
	} else {
		report.RESTOK = true
		report.ServerTime = serverTime
	}
	if a.store != nil {
		if _, _, err := a.store.Get(ctx, "health:probe"); err != nil {
			report.StoreError = err.Error()
		} else {
			report.StoreOK = true
		}
	}
	return report
}

// Tickers fetches and parses current tickers for the given pairs.
func (a *App) Tickers(ctx context.Context, pairs []string) ([]market.Ticker, error) {
	if len(pairs) == 0 {
		pairs = a.cfg.Scan.Pairs
	}
	raw, err := a.rest.Ticker(ctx, pairs)
	if err != nil {
		return nil, err
	}
	out := make([]market.Ticker, 0, len(raw))
	for pair, payload := range raw {
		ticker, err := market.ParseTicker(pair, payload)
		if err != nil {
			continue
		}
		out = append(out, ticker)
	}
	return out, nil
}
