package rotation

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

type Signal string

const (
	SignalNoSignal         Signal = "NO_SIGNAL"
	SignalWaitConfirmation Signal = "WAIT_CONFIRMATION"
	SignalPullbackEntry    Signal = "PULLBACK_ENTRY"
	SignalRetestEntry      Signal = "RETEST_ENTRY"
)

var ErrInsufficientHistory = errors.New("insufficient price history")

type Config struct {
	Lookback        int
	MomentumWindow  int
	WaitThreshold   decimal.Decimal
	PullbackMax     decimal.Decimal
	RetestTolerance decimal.Decimal
	MomentumWeight  decimal.Decimal
	VolumeWeight    decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		Lookback:        60,
		MomentumWindow:  14,
		WaitThreshold:   decimal.RequireFromString("0.30"),
		PullbackMax:     decimal.RequireFromString("0.50"),
		RetestTolerance: decimal.RequireFromString("0.02"),
		MomentumWeight:  decimal.RequireFromString("0.6"),
		VolumeWeight:    decimal.RequireFromString("0.4"),
	}
}

type Candidate struct {
	Symbol        string
	Closes        []decimal.Decimal
	Volumes       []decimal.Decimal
	BreakoutLevel decimal.Decimal
	HasBreakout   bool
}

type RankedAsset struct {
	Symbol          string
	Signal          Signal
	Momentum        decimal.Decimal
	VolumeExpansion decimal.Decimal
	PctFromHigh     decimal.Decimal
	Composite       decimal.Decimal
}

type Result struct {
	Ranked   []RankedAsset
	Excluded map[string]string
}

type Ranker struct {
	cfg Config
}

func NewRanker(cfg Config) *Ranker {
	if cfg.Lookback <= 0 {
		cfg = DefaultConfig()
	}
	return &Ranker{cfg: cfg}
}

// Rank scores candidates against the BTC reference series, drops the ones
// without an entry signal, and orders the rest by composite score. The only
// fatal condition is an unusable reference series; candidate problems land
// in Excluded with a reason.
func (r *Ranker) Rank(candidates []Candidate, btcCloses []decimal.Decimal) (Result, error) {
	btcReturn, err := trailingReturn(btcCloses, r.cfg.MomentumWindow)
	if err != nil {
		return Result{}, fmt.Errorf("btc reference: %w", err)
	}
	res := Result{Excluded: make(map[string]string)}
	for _, cand := range candidates {
		ranked, reason := r.score(cand, btcReturn)
		if reason != "" {
			res.Excluded[cand.Symbol] = reason
			continue
		}
		res.Ranked = append(res.Ranked, ranked)
	}
	sort.Slice(res.Ranked, func(i, j int) bool {
		a, b := res.Ranked[i], res.Ranked[j]
		if !a.Composite.Equal(b.Composite) {
			return a.Composite.GreaterThan(b.Composite)
		}
		return a.Symbol < b.Symbol
	})
	return res, nil
}

func (r *Ranker) score(cand Candidate, btcReturn decimal.Decimal) (RankedAsset, string) {
	if len(cand.Closes) < r.cfg.Lookback || len(cand.Volumes) < r.cfg.Lookback {
		return RankedAsset{}, fmt.Sprintf("%v: need %d periods", ErrInsufficientHistory, r.cfg.Lookback)
	}
	assetReturn, err := trailingReturn(cand.Closes, r.cfg.MomentumWindow)
	if err != nil {
		return RankedAsset{}, err.Error()
	}
	momentum := assetReturn.Sub(btcReturn)
	expansion, err := volumeExpansion(cand.Volumes, r.cfg.MomentumWindow, r.cfg.Lookback)
	if err != nil {
		return RankedAsset{}, err.Error()
	}
	price := cand.Closes[len(cand.Closes)-1]
	pctFromHigh := pctFromPeriodHigh(cand.Closes, r.cfg.Lookback)
	signal := r.classify(price, pctFromHigh, cand)
	if signal == SignalNoSignal || signal == SignalWaitConfirmation {
		return RankedAsset{}, fmt.Sprintf("signal %s", signal)
	}
	return RankedAsset{
		Symbol:          cand.Symbol,
		Signal:          signal,
		Momentum:        momentum,
		VolumeExpansion: expansion,
		PctFromHigh:     pctFromHigh,
		Composite:       r.cfg.MomentumWeight.Mul(momentum).Add(r.cfg.VolumeWeight.Mul(expansion)),
	}, ""
}

// classify applies the no-pump-chasing policy: a retest of a known breakout
// level wins, a shallow dip waits for confirmation, a moderate pullback is
// entrable, and anything deeper is no signal.
func (r *Ranker) classify(price, pctFromHigh decimal.Decimal, cand Candidate) Signal {
	if cand.HasBreakout && cand.BreakoutLevel.IsPositive() {
		band := cand.BreakoutLevel.Mul(r.cfg.RetestTolerance)
		if price.Sub(cand.BreakoutLevel).Abs().LessThanOrEqual(band) {
			return SignalRetestEntry
		}
	}
	switch {
	case pctFromHigh.LessThan(r.cfg.WaitThreshold):
		if pctFromHigh.IsPositive() {
			return SignalWaitConfirmation
		}
		return SignalNoSignal
	case pctFromHigh.LessThanOrEqual(r.cfg.PullbackMax):
		return SignalPullbackEntry
	default:
		return SignalNoSignal
	}
}

func trailingReturn(closes []decimal.Decimal, window int) (decimal.Decimal, error) {
	if len(closes) < window+1 {
		return decimal.Zero, fmt.Errorf("%w: need %d closes", ErrInsufficientHistory, window+1)
	}
	last := closes[len(closes)-1]
	base := closes[len(closes)-1-window]
	if !base.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive base close", ErrInsufficientHistory)
	}
	return last.Sub(base).Div(base), nil
}

func volumeExpansion(volumes []decimal.Decimal, short, long int) (decimal.Decimal, error) {
	if len(volumes) < long {
		return decimal.Zero, fmt.Errorf("%w: need %d volumes", ErrInsufficientHistory, long)
	}
	shortMean := mean(volumes[len(volumes)-short:])
	longMean := mean(volumes[len(volumes)-long:])
	if !longMean.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: zero baseline volume", ErrInsufficientHistory)
	}
	return shortMean.Div(longMean), nil
}

func pctFromPeriodHigh(closes []decimal.Decimal, lookback int) decimal.Decimal {
	window := closes
	if len(window) > lookback {
		window = window[len(window)-lookback:]
	}
	high := window[0]
	for _, c := range window[1:] {
		if c.GreaterThan(high) {
			high = c
		}
	}
	if !high.IsPositive() {
		return decimal.Zero
	}
	price := closes[len(closes)-1]
	return high.Sub(price).Div(high)
}

func mean(xs []decimal.Decimal) decimal.Decimal {
	if len(xs) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, x := range xs {
		sum = sum.Add(x)
	}
	return sum.Div(decimal.New(int64(len(xs)), 0))
}
