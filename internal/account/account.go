package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gridgate/internal/market"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrNoBalances = errors.New("no balances returned")

// BalanceSource is the REST surface the tracker needs.
type BalanceSource interface {
	Balance(ctx context.Context) (map[string]string, error)
	Ticker(ctx context.Context, pairs []string) (map[string]any, error)
}

type Snapshot struct {
	Balances    map[string]decimal.Decimal
	Prices      map[string]decimal.Decimal
	TotalEquity decimal.Decimal
	UpdatedAt   time.Time
}

// Tracker reconciles spot balances into a USD equity snapshot. Reads get a
// copy so callers never observe a half-applied reconcile.
type Tracker struct {
	source BalanceSource
	quote  string
	log    *zap.Logger

	mu   sync.RWMutex
	snap Snapshot
}

func NewTracker(source BalanceSource, quote string, log *zap.Logger) *Tracker {
	if quote == "" {
		quote = "USD"
	}
	return &Tracker{source: source, quote: quote, log: log}
}

// Reconcile fetches balances, prices every non-quote asset against the
// quote currency, and replaces the snapshot.
func (t *Tracker) Reconcile(ctx context.Context) (Snapshot, error) {
	raw, err := t.source.Balance(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch balances: %w", err)
	}
	if len(raw) == 0 {
		return Snapshot{}, ErrNoBalances
	}
	balances := make(map[string]decimal.Decimal, len(raw))
	var pairs []string
	for code, amount := range raw {
		v, err := decimal.NewFromString(amount)
		if err != nil || v.IsZero() {
			continue
		}
		asset := NormalizeAsset(code)
		balances[asset] = balances[asset].Add(v)
		if asset != t.quote {
			pairs = append(pairs, asset+"/"+t.quote)
		}
	}

	prices := map[string]decimal.Decimal{t.quote: decimal.New(1, 0)}
	if len(pairs) > 0 {
		tickers, err := t.source.Ticker(ctx, pairs)
		if err != nil {
			return Snapshot{}, fmt.Errorf("fetch prices: %w", err)
		}
		for pairName, payload := range tickers {
			ticker, err := market.ParseTicker(pairName, payload)
			if err != nil {
				continue
			}
			prices[baseOfPair(pairName)] = ticker.Last
		}
	}

	total := decimal.Zero
	for asset, amount := range balances {
		price, ok := prices[asset]
		if !ok {
			if t.log != nil {
				t.log.Warn("no price for asset, skipping", zap.String("asset", asset))
			}
			continue
		}
		total = total.Add(amount.Mul(price))
	}

	snap := Snapshot{
		Balances:    balances,
		Prices:      prices,
		TotalEquity: total,
		UpdatedAt:   time.Now().UTC(),
	}
	t.mu.Lock()
	t.snap = snap
	t.mu.Unlock()
	return t.Snapshot(), nil
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := Snapshot{
		TotalEquity: t.snap.TotalEquity,
		UpdatedAt:   t.snap.UpdatedAt,
		Balances:    make(map[string]decimal.Decimal, len(t.snap.Balances)),
		Prices:      make(map[string]decimal.Decimal, len(t.snap.Prices)),
	}
	for k, v := range t.snap.Balances {
		out.Balances[k] = v
	}
	for k, v := range t.snap.Prices {
		out.Prices[k] = v
	}
	return out
}

// NormalizeAsset maps Kraken's legacy asset codes (XXBT, ZUSD, XETH) to
// their plain forms.
func NormalizeAsset(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) == 4 && (code[0] == 'X' || code[0] == 'Z') {
		return code[1:]
	}
	return code
}

// baseOfPair extracts the base asset from either "XBT/USD" or Kraken's
// response key form "XXBTZUSD".
func baseOfPair(pair string) string {
	if base, _, ok := strings.Cut(pair, "/"); ok {
		return NormalizeAsset(base)
	}
	if len(pair) == 8 {
		return NormalizeAsset(pair[:4])
	}
	if len(pair) > 3 {
		return NormalizeAsset(pair[:len(pair)-3])
	}
	return NormalizeAsset(pair)
}
