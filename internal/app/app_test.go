package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"gridgate/internal/allocator"
	"gridgate/internal/config"
	"gridgate/internal/gates"
	"gridgate/internal/metrics"
	"gridgate/internal/rotation"
	"gridgate/internal/timescale"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type recordingAudit struct {
	mu     sync.Mutex
	events []timescale.DeploymentEvent
}

func (r *recordingAudit) Start(context.Context) {}

func (r *recordingAudit) Close() error { return nil }

func (r *recordingAudit) EnqueueEquity(timescale.EquitySnapshot) {}

func (r *recordingAudit) EnqueueDeployment(event timescale.DeploymentEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingAudit) deployments() []timescale.DeploymentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]timescale.DeploymentEvent(nil), r.events...)
}

type fakeMarket struct {
	ohlc map[string]any
}

func (f *fakeMarket) Time(context.Context) (time.Time, error) {
	return time.Unix(1700000000, 0).UTC(), nil
}

func (f *fakeMarket) Ticker(_ context.Context, pairs []string) (map[string]any, error) {
	out := make(map[string]any)
	for _, pair := range pairs {
		out[pair] = map[string]any{
			"c": []any{"100", "1"},
			"b": []any{"99.9", "1"},
			"a": []any{"100.1", "1"},
		}
	}
	return out, nil
}

func (f *fakeMarket) OHLC(_ context.Context, pair string, _ int) (any, error) {
	return f.ohlc[pair], nil
}

// ohlcRows builds n daily rows closing at base, with the last tail rows
// closing at level and carrying vol volume.
func ohlcRows(n int, base, level string, tail int, vol string) []any {
	rows := make([]any, 0, n)
	for i := 0; i < n; i++ {
		close := base
		volume := "100"
		if i >= n-tail {
			close = level
			volume = vol
		}
		c := decimal.RequireFromString(close)
		rows = append(rows, []any{
			float64(1700000000 + i*86400),
			close,
			c.Add(decimal.New(2, 0)).String(),
			c.Sub(decimal.New(2, 0)).String(),
			close,
			close,
			volume,
			float64(10),
		})
	}
	return rows
}

func testConfig() *config.Config {
	return &config.Config{
		Allocation: config.AllocationConfig{
			TotalEquity:       config.D("10000"),
			CoreFraction:      config.D("0.61"),
			ReserveFraction:   config.D("0.24"),
			ExperimentsFrac:   config.D("0.15"),
			DrawdownThreshold: config.D("0.15"),
			MinGridNotional:   config.D("400"),
		},
		Fees: config.FeeConfig{
			MakerFee:       config.D("0.0016"),
			TakerFee:       config.D("0.0026"),
			Spread:         config.D("0.001"),
			SlippageBuffer: config.D("0.0005"),
			K:              config.D("3"),
			MinStepFloor:   config.D("0.005"),
		},
		Risk: config.RiskConfig{
			RiskBudgetPct:  config.D("0.005"),
			MaxPositionPct: config.D("0.25"),
			MinPositionUSD: config.D("10"),
		},
		Ranker: config.RankerConfig{
			Lookback:        60,
			MomentumWindow:  14,
			WaitThreshold:   config.D("0.30"),
			PullbackMax:     config.D("0.50"),
			RetestTolerance: config.D("0.02"),
			MomentumWeight:  config.D("0.6"),
			VolumeWeight:    config.D("0.4"),
		},
		Scan: config.ScanConfig{
			Pairs:          []string{"SOL/USD"},
			BTCPair:        "XBT/USD",
			TopN:           3,
			GridStep:       config.D("0.03"),
			RegimeTradable: true,
		},
	}
}

func newTestApp(t *testing.T, cfg *config.Config, source MarketSource) *App {
	t.Helper()
	alloc, err := allocator.New(allocator.Params{
		TotalEquity: cfg.Allocation.TotalEquity.Decimal,
		Fractions: map[allocator.Bucket]decimal.Decimal{
			allocator.BucketCore:        cfg.Allocation.CoreFraction.Decimal,
			allocator.BucketReserve:     cfg.Allocation.ReserveFraction.Decimal,
			allocator.BucketExperiments: cfg.Allocation.ExperimentsFrac.Decimal,
		},
		DrawdownThreshold: cfg.Allocation.DrawdownThreshold.Decimal,
		MinGridNotional:   cfg.Allocation.MinGridNotional.Decimal,
	})
	if err != nil {
		t.Fatalf("allocator: %v", err)
	}
	return &App{
		cfg:      cfg,
		log:      zap.NewNop(),
		rest:     source,
		alloc:    alloc,
		ranker:   rotation.NewRanker(rotation.DefaultConfig()),
		regime:   gates.StaticRegime(cfg.Scan.RegimeTradable),
		metrics:  metrics.NewNoop(),
		ohlcMins: 1440,
	}
}

func pullbackMarket() *fakeMarket {
	return &fakeMarket{ohlc: map[string]any{
		"XBT/USD": ohlcRows(61, "100", "100", 0, "100"),
		"SOL/USD": ohlcRows(61, "100", "65", 14, "200"),
	}}
}

func TestScanAcceptsPullbackCandidate(t *testing.T) {
	app := newTestApp(t, testConfig(), pullbackMarket())
	report, err := app.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !report.RegimeOK {
		t.Fatalf("regime should be favorable")
	}
	if len(report.Opportunities) != 1 {
		t.Fatalf("opportunities = %d, want 1 (%+v)", len(report.Opportunities), report.Excluded)
	}
	opp := report.Opportunities[0]
	if opp.Symbol != "SOL/USD" || opp.Signal != rotation.SignalPullbackEntry {
		t.Fatalf("opportunity = %+v", opp)
	}
	if !opp.Accepted {
		t.Fatalf("expected acceptance, reason = %q", opp.Reason)
	}
	if !opp.Notional.IsPositive() || !opp.Units.IsPositive() {
		t.Fatalf("sizes not set: %+v", opp)
	}
}

func TestScanRespectsRegimeGate(t *testing.T) {
	cfg := testConfig()
	cfg.Scan.RegimeTradable = false
	app := newTestApp(t, cfg, pullbackMarket())
	report, err := app.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if report.RegimeOK || len(report.Opportunities) != 0 {
		t.Fatalf("unfavorable regime must short-circuit: %+v", report)
	}
}

func TestScanRejectsThinGridStep(t *testing.T) {
	cfg := testConfig()
	cfg.Scan.GridStep = config.D("0.01") // below 3 * 0.0067
	app := newTestApp(t, cfg, pullbackMarket())
	report, err := app.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(report.Opportunities) != 1 {
		t.Fatalf("opportunities = %d", len(report.Opportunities))
	}
	opp := report.Opportunities[0]
	if opp.Accepted {
		t.Fatalf("grid step below fee minimum must be rejected")
	}
	if !opp.RequiredMinStep.Equal(decimal.RequireFromString("0.0201")) {
		t.Fatalf("required min step = %s", opp.RequiredMinStep)
	}
}

func TestScanSkipsAlreadyDeployedAsset(t *testing.T) {
	app := newTestApp(t, testConfig(), pullbackMarket())
	if _, err := app.alloc.Deploy(allocator.BucketCore, "SOL/USD", decimal.RequireFromString("100")); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	report, err := app.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(report.Opportunities) != 1 || report.Opportunities[0].Accepted {
		t.Fatalf("already deployed asset must be skipped: %+v", report.Opportunities)
	}
}

func TestScanExcludesShortHistory(t *testing.T) {
	source := &fakeMarket{ohlc: map[string]any{
		"XBT/USD": ohlcRows(61, "100", "100", 0, "100"),
		"SOL/USD": ohlcRows(20, "100", "65", 5, "200"),
	}}
	app := newTestApp(t, testConfig(), source)
	report, err := app.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(report.Opportunities) != 0 {
		t.Fatalf("short history should rank nothing")
	}
	if _, ok := report.Excluded["SOL/USD"]; !ok {
		t.Fatalf("expected exclusion reason for SOL/USD: %+v", report.Excluded)
	}
}

func TestCommitDeploysAndStatusReflectsIt(t *testing.T) {
	app := newTestApp(t, testConfig(), pullbackMarket())
	report, err := app.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	opp := report.Opportunities[0]
	app.commit(context.Background(), opp)

	status := app.Status(context.Background())
	var core allocator.BucketStatus
	for _, st := range status.Buckets {
		if st.Bucket == allocator.BucketCore {
			core = st
		}
	}
	if !core.Deployed.Equal(opp.Notional) {
		t.Fatalf("deployed = %s, want %s", core.Deployed, opp.Notional)
	}
	if len(status.OpenRecords) != 1 {
		t.Fatalf("open records = %d", len(status.OpenRecords))
	}
}

func TestTimeStopReleaseAuditCarriesHeadroom(t *testing.T) {
	cfg := testConfig()
	cfg.Scan.MaxHold = time.Nanosecond
	app := newTestApp(t, cfg, pullbackMarket())
	audit := &recordingAudit{}
	app.audit = audit

	if _, err := app.alloc.Deploy(allocator.BucketCore, "SOL/USD", decimal.RequireFromString("500")); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	app.releaseExpired(context.Background())

	events := audit.deployments()
	if len(events) != 1 {
		t.Fatalf("audit events = %d, want 1", len(events))
	}
	event := events[0]
	if event.Action != "release" || event.Amount != "500" {
		t.Fatalf("event = %+v", event)
	}
	// released capital returns to the bucket, so the event carries the
	// post-release headroom, never an empty numeric
	if event.Headroom != "6100" {
		t.Fatalf("headroom = %q, want 6100", event.Headroom)
	}
	if len(app.alloc.OpenRecords()) != 0 {
		t.Fatalf("record should be closed after time stop")
	}
}

func TestHealthReportsRESTProbe(t *testing.T) {
	app := newTestApp(t, testConfig(), pullbackMarket())
	report := app.Health(context.Background())
	if !report.RESTOK {
		t.Fatalf("rest probe should pass: %+v", report)
	}
	if report.ServerTime.IsZero() {
		t.Fatalf("server time missing")
	}
}
