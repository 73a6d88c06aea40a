package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gridgate/internal/account"
	"gridgate/internal/alerts"
	"gridgate/internal/allocator"
	"gridgate/internal/config"
	"gridgate/internal/gates"
	"gridgate/internal/kraken/rest"
	"gridgate/internal/kraken/ws"
	"gridgate/internal/metrics"
	"gridgate/internal/rotation"
	"gridgate/internal/state"
	"gridgate/internal/state/sqlite"
	"gridgate/internal/timescale"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// auditSink is the slice of the timescale writer the run loop needs.
type auditSink interface {
	Start(ctx context.Context)
	Close() error
	EnqueueEquity(timescale.EquitySnapshot)
	EnqueueDeployment(timescale.DeploymentEvent)
}

// MarketSource is the slice of the REST client the scan pipeline needs.
type MarketSource interface {
	Time(ctx context.Context) (time.Time, error)
	Ticker(ctx context.Context, pairs []string) (map[string]any, error)
	OHLC(ctx context.Context, pair string, intervalMinutes int) (any, error)
}

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     state.Store
	rest      MarketSource
	ws        *ws.Client
	alloc     *allocator.Allocator
	ranker    *rotation.Ranker
	regime    gates.Regime
	account   *account.Tracker
	metrics   *metrics.Metrics
	promHTTP  *metrics.Prometheus
	alerts    *alerts.Telegram
	audit     auditSink
	ohlcMins  int
	lastLock  bool
	lockKnown bool
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	restClient := rest.New(cfg.REST.BaseURL, cfg.REST.Timeout, log)
	apiKey := strings.TrimSpace(os.Getenv("KRAKEN_API_KEY"))
	apiSecret := strings.TrimSpace(os.Getenv("KRAKEN_API_SECRET"))
	if apiKey != "" && apiSecret != "" {
		restClient.WithCredentials(apiKey, apiSecret)
	}
	wsClient := ws.New(cfg.WS.URL, cfg.WS.ReconnectDelay, 30*time.Second, log)

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
		_ = store.Close()
		return nil, err
	}
	if snap, ok, err := state.LoadAllocatorSnapshot(context.Background(), store); err != nil {
		log.Warn("allocator snapshot load failed", zap.Error(err))
	} else if ok {
		if err := alloc.RestoreSnapshot(snap); err != nil {
			log.Warn("allocator snapshot restore failed", zap.Error(err))
		} else {
			log.Info("allocator snapshot restored")
		}
	}

	ranker := rotation.NewRanker(rotation.Config{
		Lookback:        cfg.Ranker.Lookback,
		MomentumWindow:  cfg.Ranker.MomentumWindow,
		WaitThreshold:   cfg.Ranker.WaitThreshold.Decimal,
		PullbackMax:     cfg.Ranker.PullbackMax.Decimal,
		RetestTolerance: cfg.Ranker.RetestTolerance.Decimal,
		MomentumWeight:  cfg.Ranker.MomentumWeight.Decimal,
		VolumeWeight:    cfg.Ranker.VolumeWeight.Decimal,
	})

	var tracker *account.Tracker
	if restClient.HasCredentials() {
		tracker = account.NewTracker(restClient, "USD", log)
	}

	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}

	var audit auditSink
	if writer, err := timescale.New(cfg.Timescale, log); err != nil {
		log.Warn("timescale writer disabled", zap.Error(err))
	} else if writer != nil {
		audit = writer
	}

	return &App{
		cfg:      cfg,
		log:      log,
		store:    store,
		rest:     restClient,
		ws:       wsClient,
		alloc:    alloc,
		ranker:   ranker,
		regime:   gates.StaticRegime(cfg.Scan.RegimeTradable),
		account:  tracker,
		metrics:  m,
		promHTTP: prom,
		alerts:   alerts.NewTelegram(cfg.Telegram, log),
		audit:    audit,
		ohlcMins: 1440,
	}, nil
}

func (a *App) Close() error {
	if a.audit != nil {
		_ = a.audit.Close()
	}
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

func (a *App) feeParams() gates.Params {
	return gates.Params{
		MakerFee:       a.cfg.Fees.MakerFee.Decimal,
		TakerFee:       a.cfg.Fees.TakerFee.Decimal,
		Spread:         a.cfg.Fees.Spread.Decimal,
		SlippageBuffer: a.cfg.Fees.SlippageBuffer.Decimal,
		K:              a.cfg.Fees.K.Decimal,
		Floor:          a.cfg.Fees.MinStepFloor.Decimal,
		MakerOnly:      a.cfg.Fees.MakerOnly,
	}
}
