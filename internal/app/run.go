package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"gridgate/internal/allocator"
	"gridgate/internal/kraken/ws"
	"gridgate/internal/state"
	"gridgate/internal/timescale"

	"go.uber.org/zap"
)

// Run drives the engine: it re-records equity, scans on the configured
// interval, commits the top accepted opportunity to the ledger, expires
// stale deployments, and persists the allocator snapshot. No orders are
// placed anywhere; the ledger and audit trail are the output.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	if a.promHTTP != nil {
		a.serveMetrics(ctx)
	}
	if a.audit != nil {
		a.audit.Start(ctx)
	}

	if err := a.tick(ctx); err != nil {
		a.log.Warn("initial tick failed", zap.Error(err))
	}

	ticker := time.NewTicker(a.cfg.Scan.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.tick(ctx); err != nil {
				a.metrics.ScanFailures.Inc()
				a.log.Warn("tick failed", zap.Error(err))
			}
		}
	}
}

func (a *App) tick(ctx context.Context) error {
	a.recordEquity(ctx)
	a.releaseExpired(ctx)

	report, err := a.Scan(ctx)
	if err != nil {
		return err
	}
	a.metrics.ScansRun.Inc()
	if !report.RegimeOK {
		a.log.Info("regime unfavorable, skipping scan")
		return a.persist(ctx)
	}

	for _, opp := range report.Opportunities {
		if !opp.Accepted {
			a.log.Info("opportunity rejected",
				zap.String("symbol", opp.Symbol),
				zap.String("reason", opp.Reason),
			)
			continue
		}
		a.commit(ctx, opp)
		break
	}
	return a.persist(ctx)
}

func (a *App) recordEquity(ctx context.Context) {
	total := a.alloc.TotalEquity()
	if a.account != nil {
		snap, err := a.account.Reconcile(ctx)
		if err != nil {
			a.log.Warn("equity reconcile failed", zap.Error(err))
		} else {
			total = snap.TotalEquity
		}
	}
	coreEquity := total.Mul(a.cfg.Allocation.CoreFraction.Decimal)
	status, err := a.alloc.RecordEquity(allocator.BucketCore, coreEquity)
	if err != nil {
		a.log.Warn("record equity failed", zap.Error(err))
		return
	}
	drawdown, _ := status.Drawdown.Float64()
	totalF, _ := total.Float64()
	a.metrics.CoreDrawdown.Set(drawdown)
	a.metrics.TotalEquityUSD.Set(totalF)

	if a.lockKnown && status.ReserveLocked != a.lastLock {
		if status.ReserveLocked {
			a.metrics.ReserveRelocks.Inc()
			a.alerts.ReserveRelocked(ctx, status.Drawdown)
			a.log.Info("reserve relocked", zap.String("drawdown", status.Drawdown.String()))
		} else {
			a.metrics.ReserveUnlocks.Inc()
			a.alerts.ReserveUnlocked(ctx, status.Drawdown)
			a.log.Warn("reserve unlocked", zap.String("drawdown", status.Drawdown.String()))
		}
	}
	a.lastLock = status.ReserveLocked
	a.lockKnown = true

	if a.audit != nil {
		a.audit.EnqueueEquity(timescale.EquitySnapshot{
			Time:          time.Now().UTC(),
			TotalEquity:   total.String(),
			CoreEquity:    coreEquity.String(),
			Drawdown:      status.Drawdown.String(),
			HighWaterMark: status.HighWaterMark.String(),
			ReserveLocked: status.ReserveLocked,
		})
	}
}

func (a *App) commit(ctx context.Context, opp Opportunity) {
	res, err := a.alloc.Deploy(allocator.BucketCore, opp.Symbol, opp.Notional)
	if err != nil {
		a.metrics.RejectedDeploys.Inc()
		a.log.Warn("deploy rejected",
			zap.String("symbol", opp.Symbol),
			zap.Error(err),
		)
		return
	}
	a.metrics.Deployments.Inc()
	a.log.Info("capital deployed",
		zap.String("symbol", opp.Symbol),
		zap.String("notional", opp.Notional.String()),
		zap.String("headroom", res.Headroom.String()),
	)
	if res.ThinGrid {
		a.metrics.ThinGridWarns.Inc()
		a.alerts.ThinGrid(ctx, string(allocator.BucketCore), res.Headroom)
		a.log.Warn("thin grid headroom", zap.String("headroom", res.Headroom.String()))
	}
	if a.audit != nil {
		a.audit.EnqueueDeployment(timescale.DeploymentEvent{
			Time:     time.Now().UTC(),
			Bucket:   string(allocator.BucketCore),
			Asset:    opp.Symbol,
			Action:   "deploy",
			Amount:   opp.Notional.String(),
			Headroom: res.Headroom.String(),
			ThinGrid: res.ThinGrid,
		})
	}
}

// releaseExpired applies the time stop: open deployments older than the
// max hold window are released back to their bucket.
func (a *App) releaseExpired(_ context.Context) {
	if a.cfg.Scan.MaxHold <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-a.cfg.Scan.MaxHold)
	for _, rec := range a.alloc.OpenRecords() {
		if rec.OpenedAt.After(cutoff) {
			continue
		}
		if err := a.alloc.Release(rec.Bucket, rec.Amount); err != nil {
			a.log.Warn("time-stop release failed",
				zap.String("symbol", rec.Asset),
				zap.Error(err),
			)
			continue
		}
		status, _ := a.alloc.Status(rec.Bucket)
		a.metrics.Releases.Inc()
		a.log.Info("time-stop release",
			zap.String("symbol", rec.Asset),
			zap.String("amount", rec.Amount.String()),
		)
		if a.audit != nil {
			a.audit.EnqueueDeployment(timescale.DeploymentEvent{
				Time:     time.Now().UTC(),
				Bucket:   string(rec.Bucket),
				Asset:    rec.Asset,
				Action:   "release",
				Amount:   rec.Amount.String(),
				Headroom: status.Headroom.String(),
			})
		}
	}
}

func (a *App) persist(ctx context.Context) error {
	if err := state.SaveAllocatorSnapshot(ctx, a.store, a.alloc.Snapshot()); err != nil {
		return err
	}
	return nil
}

func (a *App) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.promHTTP.Handler())
	server := &http.Server{Addr: a.cfg.Metrics.Listen, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}

// FollowTickers streams live ticker updates over the websocket feed until
// the context ends.
func (a *App) FollowTickers(ctx context.Context, pairs []string, handler func(ws.TickerUpdate)) error {
	if len(pairs) == 0 {
		pairs = a.cfg.Scan.Pairs
	}
	if err := a.ws.Connect(ctx); err != nil {
		return err
	}
	if err := a.ws.SubscribeTicker(ctx, pairs); err != nil {
		return err
	}
	return a.ws.Run(ctx, func(raw json.RawMessage) {
		for _, update := range ws.ParseTickerUpdates(raw) {
			handler(update)
		}
	})
}
