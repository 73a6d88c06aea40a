package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log        LoggingConfig    `yaml:"log"`
	REST       RESTConfig       `yaml:"rest"`
	WS         WSConfig         `yaml:"ws"`
	State      StateConfig      `yaml:"state"`
	Allocation AllocationConfig `yaml:"allocation"`
	Fees       FeeConfig        `yaml:"fees"`
	Risk       RiskConfig       `yaml:"risk"`
	Ranker     RankerConfig     `yaml:"ranker"`
	Scan       ScanConfig       `yaml:"scan"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Timescale  TimescaleConfig  `yaml:"timescale"`
	Telegram   TelegramConfig   `yaml:"telegram"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type RESTConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type WSConfig struct {
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type AllocationConfig struct {
	TotalEquity       Decimal `yaml:"total_equity"`
	CoreFraction      Decimal `yaml:"core_fraction"`
	ReserveFraction   Decimal `yaml:"reserve_fraction"`
	ExperimentsFrac   Decimal `yaml:"experiments_fraction"`
	DrawdownThreshold Decimal `yaml:"drawdown_threshold"`
	MinGridNotional   Decimal `yaml:"min_grid_notional"`
}

type FeeConfig struct {
	MakerFee       Decimal `yaml:"maker_fee"`
	TakerFee       Decimal `yaml:"taker_fee"`
	Spread         Decimal `yaml:"spread"`
	SlippageBuffer Decimal `yaml:"slippage_buffer"`
	K              Decimal `yaml:"k"`
	MinStepFloor   Decimal `yaml:"min_step_floor"`
	MakerOnly      bool    `yaml:"maker_only"`
}

type RiskConfig struct {
	RiskBudgetPct  Decimal `yaml:"risk_budget_pct"`
	MaxPositionPct Decimal `yaml:"max_position_pct"`
	MinPositionUSD Decimal `yaml:"min_position_usd"`
	CustomStopPct  Decimal `yaml:"custom_stop_pct"`
}

type RankerConfig struct {
	Lookback        int     `yaml:"lookback"`
	MomentumWindow  int     `yaml:"momentum_window"`
	WaitThreshold   Decimal `yaml:"wait_threshold"`
	PullbackMax     Decimal `yaml:"pullback_max"`
	RetestTolerance Decimal `yaml:"retest_tolerance"`
	MomentumWeight  Decimal `yaml:"momentum_weight"`
	VolumeWeight    Decimal `yaml:"volume_weight"`
}

type ScanConfig struct {
	Pairs          []string      `yaml:"pairs"`
	BTCPair        string        `yaml:"btc_pair"`
	TopN           int           `yaml:"top_n"`
	Interval       time.Duration `yaml:"interval"`
	GridStep       Decimal       `yaml:"grid_step"`
	MaxHold        time.Duration `yaml:"max_hold"`
	RegimeTradable bool          `yaml:"regime_tradable"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type TimescaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	DSN       string `yaml:"dsn"`
	Schema    string `yaml:"schema"`
	QueueSize int    `yaml:"queue_size"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

// applyEnvOverrides lets secrets come from the environment instead of the
// yaml file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRIDGATE_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("GRIDGATE_TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("GRIDGATE_TIMESCALE_DSN"); v != "" {
		cfg.Timescale.DSN = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.REST.BaseURL == "" {
		cfg.REST.BaseURL = "https://api.kraken.com"
	}
	if cfg.REST.Timeout == 0 {
		cfg.REST.Timeout = 10 * time.Second
	}
	if cfg.WS.URL == "" {
		cfg.WS.URL = "wss://ws.kraken.com/v2"
	}
	if cfg.WS.ReconnectDelay == 0 {
		cfg.WS.ReconnectDelay = 3 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/gridgate.db"
	}
	if !cfg.Allocation.CoreFraction.IsSet() {
		cfg.Allocation.CoreFraction = D("0.61")
	}
	if !cfg.Allocation.ReserveFraction.IsSet() {
		cfg.Allocation.ReserveFraction = D("0.24")
	}
	if !cfg.Allocation.ExperimentsFrac.IsSet() {
		cfg.Allocation.ExperimentsFrac = D("0.15")
	}
	if !cfg.Allocation.DrawdownThreshold.IsSet() {
		cfg.Allocation.DrawdownThreshold = D("0.15")
	}
	if !cfg.Allocation.MinGridNotional.IsSet() {
		cfg.Allocation.MinGridNotional = D("400")
	}
	if !cfg.Fees.MakerFee.IsSet() {
		cfg.Fees.MakerFee = D("0.0016")
	}
	if !cfg.Fees.TakerFee.IsSet() {
		cfg.Fees.TakerFee = D("0.0026")
	}
	if !cfg.Fees.Spread.IsSet() {
		cfg.Fees.Spread = D("0.001")
	}
	if !cfg.Fees.SlippageBuffer.IsSet() {
		cfg.Fees.SlippageBuffer = D("0.0005")
	}
	if !cfg.Fees.K.IsSet() {
		cfg.Fees.K = D("3")
	}
	if !cfg.Fees.MinStepFloor.IsSet() {
		cfg.Fees.MinStepFloor = D("0.005")
	}
	if !cfg.Risk.RiskBudgetPct.IsSet() {
		cfg.Risk.RiskBudgetPct = D("0.005")
	}
	if !cfg.Risk.MaxPositionPct.IsSet() {
		cfg.Risk.MaxPositionPct = D("0.25")
	}
	if !cfg.Risk.MinPositionUSD.IsSet() {
		cfg.Risk.MinPositionUSD = D("10")
	}
	if cfg.Ranker.Lookback == 0 {
		cfg.Ranker.Lookback = 60
	}
	if cfg.Ranker.MomentumWindow == 0 {
		cfg.Ranker.MomentumWindow = 14
	}
	if !cfg.Ranker.WaitThreshold.IsSet() {
		cfg.Ranker.WaitThreshold = D("0.30")
	}
	if !cfg.Ranker.PullbackMax.IsSet() {
		cfg.Ranker.PullbackMax = D("0.50")
	}
	if !cfg.Ranker.RetestTolerance.IsSet() {
		cfg.Ranker.RetestTolerance = D("0.02")
	}
	if !cfg.Ranker.MomentumWeight.IsSet() {
		cfg.Ranker.MomentumWeight = D("0.6")
	}
	if !cfg.Ranker.VolumeWeight.IsSet() {
		cfg.Ranker.VolumeWeight = D("0.4")
	}
	if cfg.Scan.BTCPair == "" {
		cfg.Scan.BTCPair = "XBT/USD"
	}
	if cfg.Scan.TopN == 0 {
		cfg.Scan.TopN = 3
	}
	if cfg.Scan.Interval == 0 {
		cfg.Scan.Interval = 15 * time.Minute
	}
	if !cfg.Scan.GridStep.IsSet() {
		cfg.Scan.GridStep = D("0.03")
	}
	if cfg.Scan.MaxHold == 0 {
		cfg.Scan.MaxHold = 14 * 24 * time.Hour
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9091"
	}
}

func validate(cfg *Config) error {
	one := decimal.New(1, 0)
	sum := cfg.Allocation.CoreFraction.Decimal.
		Add(cfg.Allocation.ReserveFraction.Decimal).
		Add(cfg.Allocation.ExperimentsFrac.Decimal)
	if sum.Sub(one).Abs().GreaterThan(decimal.RequireFromString("0.001")) {
		return fmt.Errorf("allocation fractions sum to %s, want 1.0", sum)
	}
	for name, frac := range map[string]decimal.Decimal{
		"core_fraction":        cfg.Allocation.CoreFraction.Decimal,
		"reserve_fraction":     cfg.Allocation.ReserveFraction.Decimal,
		"experiments_fraction": cfg.Allocation.ExperimentsFrac.Decimal,
	} {
		if frac.IsNegative() {
			return fmt.Errorf("allocation.%s must be >= 0", name)
		}
	}
	if !cfg.Allocation.TotalEquity.IsSet() || cfg.Allocation.TotalEquity.IsNegative() {
		return errors.New("allocation.total_equity must be set and >= 0")
	}
	if !cfg.Fees.K.IsPositive() {
		return errors.New("fees.k must be > 0")
	}
	for name, v := range map[string]decimal.Decimal{
		"maker_fee":       cfg.Fees.MakerFee.Decimal,
		"taker_fee":       cfg.Fees.TakerFee.Decimal,
		"spread":          cfg.Fees.Spread.Decimal,
		"slippage_buffer": cfg.Fees.SlippageBuffer.Decimal,
	} {
		if v.IsNegative() {
			return fmt.Errorf("fees.%s must be >= 0", name)
		}
	}
	if !cfg.Risk.RiskBudgetPct.IsPositive() {
		return errors.New("risk.risk_budget_pct must be > 0")
	}
	if !cfg.Risk.MaxPositionPct.IsPositive() {
		return errors.New("risk.max_position_pct must be > 0")
	}
	if cfg.Ranker.Lookback < cfg.Ranker.MomentumWindow+1 {
		return errors.New("ranker.lookback must exceed momentum_window")
	}
	if len(cfg.Scan.Pairs) == 0 {
		return errors.New("scan.pairs is required")
	}
	if cfg.Timescale.Enabled && cfg.Timescale.DSN == "" {
		return errors.New("timescale.dsn is required when enabled")
	}
	if cfg.Telegram.Enabled && (cfg.Telegram.Token == "" || cfg.Telegram.ChatID == "") {
		return errors.New("telegram token and chat_id are required when enabled")
	}
	return nil
}
