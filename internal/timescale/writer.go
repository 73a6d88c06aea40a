package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"gridgate/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// EquitySnapshot is one row of the equity audit trail. Money travels as
// strings into NUMERIC columns to keep exact values.
type EquitySnapshot struct {
	Time          time.Time
	TotalEquity   string
	CoreEquity    string
	Drawdown      string
	HighWaterMark string
	ReserveLocked bool
}

type DeploymentEvent struct {
	Time     time.Time
	Bucket   string
	Asset    string
	Action   string
	Amount   string
	Headroom string
	ThinGrid bool
}

type Writer struct {
	db          *sql.DB
	log         *zap.Logger
	schema      string
	equity      chan EquitySnapshot
	deployments chan DeploymentEvent
	started     atomic.Bool
	dropEquity  atomic.Uint64
	dropDeploy  atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:          db,
		log:         log,
		schema:      schema,
		equity:      make(chan EquitySnapshot, queueSize),
		deployments: make(chan DeploymentEvent, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueEquity(snap EquitySnapshot) {
	if w == nil {
		return
	}
	select {
	case w.equity <- snap:
		return
	default:
		if w.dropEquity.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale equity queue full")
		}
	}
}

func (w *Writer) EnqueueDeployment(event DeploymentEvent) {
	if w == nil {
		return
	}
	select {
	case w.deployments <- event:
		return
	default:
		if w.dropDeploy.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale deployment queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-w.equity:
			w.writeEquity(ctx, snap)
		case event := <-w.deployments:
			w.writeDeployment(ctx, event)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		total_equity NUMERIC NOT NULL,
		core_equity NUMERIC NOT NULL,
		drawdown NUMERIC NOT NULL,
		high_water_mark NUMERIC NOT NULL,
		reserve_locked BOOLEAN NOT NULL
	)`, w.table("equity_snapshots"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		bucket TEXT NOT NULL,
		asset TEXT NOT NULL,
		action TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		headroom NUMERIC,
		thin_grid BOOLEAN NOT NULL
	)`, w.table("deployment_events"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	for _, table := range []string{"equity_snapshots", "deployment_events"} {
		query := fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(table))
		if err := w.exec(ctx, query); err != nil && w.log != nil {
			w.log.Warn("timescale hypertable create failed", zap.String("table", table), zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) writeEquity(ctx context.Context, snap EquitySnapshot) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, total_equity, core_equity, drawdown, high_water_mark, reserve_locked
	) VALUES ($1,$2,$3,$4,$5,$6)`, w.table("equity_snapshots"))
	if _, err := w.db.ExecContext(ctx, query,
		snap.Time,
		snap.TotalEquity,
		snap.CoreEquity,
		snap.Drawdown,
		snap.HighWaterMark,
		snap.ReserveLocked,
	); err != nil && w.log != nil {
		w.log.Warn("timescale equity insert failed", zap.Error(err))
	}
}

func (w *Writer) writeDeployment(ctx context.Context, event DeploymentEvent) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, bucket, asset, action, amount, headroom, thin_grid
	) VALUES ($1,$2,$3,$4,$5,$6,$7)`, w.table("deployment_events"))
	if _, err := w.db.ExecContext(ctx, query,
		event.Time,
		event.Bucket,
		event.Asset,
		event.Action,
		event.Amount,
		numericOrNull(event.Headroom),
		event.ThinGrid,
	); err != nil && w.log != nil {
		w.log.Warn("timescale deployment insert failed", zap.Error(err))
	}
}

// numericOrNull keeps absent money fields out of NUMERIC columns, which
// reject the empty string.
func numericOrNull(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
