package rotation

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// series builds n closes at base, with the final tail periods at level.
func series(n int, base, level string, tail int) []decimal.Decimal {
	out := make([]decimal.Decimal, n)
	for i := range out {
		if i >= n-tail {
			out[i] = dec(level)
		} else {
			out[i] = dec(base)
		}
	}
	return out
}

func flat(n int, v string) []decimal.Decimal {
	return series(n, v, v, 0)
}

func TestTrailingReturn(t *testing.T) {
	closes := series(60, "100", "110", 14)
	ret, err := trailingReturn(closes, 14)
	if err != nil {
		t.Fatalf("trailing return: %v", err)
	}
	if !ret.Equal(dec("0.1")) {
		t.Fatalf("ret = %s, want 0.1", ret)
	}
	if _, err := trailingReturn(flat(10, "100"), 14); !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
}

func TestMomentumVsBTC(t *testing.T) {
	asset := series(60, "100", "110", 14) // +10%
	btc := series(60, "100", "105", 14)   // +5%
	assetRet, err := trailingReturn(asset, 14)
	if err != nil {
		t.Fatalf("asset return: %v", err)
	}
	btcRet, err := trailingReturn(btc, 14)
	if err != nil {
		t.Fatalf("btc return: %v", err)
	}
	if got := assetRet.Sub(btcRet); !got.Equal(dec("0.05")) {
		t.Fatalf("momentum = %s, want 0.05", got)
	}
}

func TestVolumeExpansion(t *testing.T) {
	volumes := series(60, "100", "200", 14)
	// mean14 = 200, mean60 = (46*100 + 14*200)/60 = 123.33..., ratio 1.6216
	got, err := volumeExpansion(volumes, 14, 60)
	if err != nil {
		t.Fatalf("volume expansion: %v", err)
	}
	if !got.Round(4).Equal(dec("1.6216")) {
		t.Fatalf("expansion = %s, want 1.6216", got.Round(4))
	}
}

func TestClassifySignals(t *testing.T) {
	r := NewRanker(DefaultConfig())
	cases := []struct {
		name string
		pct  string
		want Signal
	}{
		{"at high", "0", SignalNoSignal},
		{"shallow dip", "0.10", SignalWaitConfirmation},
		{"pullback low edge", "0.30", SignalPullbackEntry},
		{"pullback high edge", "0.50", SignalPullbackEntry},
		{"too deep", "0.51", SignalNoSignal},
	}
	for _, tc := range cases {
		got := r.classify(dec("100"), dec(tc.pct), Candidate{})
		if got != tc.want {
			t.Fatalf("%s: signal = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestClassifyRetestWinsPriority(t *testing.T) {
	r := NewRanker(DefaultConfig())
	cand := Candidate{BreakoutLevel: dec("100"), HasBreakout: true}
	// price within 2% of the breakout level, even though pctFromHigh says wait
	if got := r.classify(dec("101"), dec("0.10"), cand); got != SignalRetestEntry {
		t.Fatalf("signal = %s, want RETEST_ENTRY", got)
	}
	// outside the tolerance band falls through to the pullback ladder
	if got := r.classify(dec("110"), dec("0.10"), cand); got != SignalWaitConfirmation {
		t.Fatalf("signal = %s, want WAIT_CONFIRMATION", got)
	}
}

func TestRankFiltersAndSorts(t *testing.T) {
	r := NewRanker(DefaultConfig())
	btc := flat(60, "100")

	pullback := func(symbol, level string) Candidate {
		// peak then settle ~35% below it: enters the pullback band
		closes := series(60, "100", "65", 14)
		return Candidate{
			Symbol:  symbol,
			Closes:  closes,
			Volumes: series(60, "100", level, 14),
		}
	}
	atHigh := Candidate{
		Symbol:  "FLAT/USD",
		Closes:  flat(60, "100"),
		Volumes: flat(60, "100"),
	}
	short := Candidate{
		Symbol:  "NEW/USD",
		Closes:  flat(20, "100"),
		Volumes: flat(20, "100"),
	}

	res, err := r.Rank([]Candidate{pullback("AAA/USD", "200"), atHigh, short, pullback("BBB/USD", "400")}, btc)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(res.Ranked) != 2 {
		t.Fatalf("ranked = %d, want 2: %+v", len(res.Ranked), res.Ranked)
	}
	// BBB has the larger volume expansion, so it sorts first
	if res.Ranked[0].Symbol != "BBB/USD" || res.Ranked[1].Symbol != "AAA/USD" {
		t.Fatalf("order = %s, %s", res.Ranked[0].Symbol, res.Ranked[1].Symbol)
	}
	if res.Ranked[0].Signal != SignalPullbackEntry {
		t.Fatalf("signal = %s, want PULLBACK_ENTRY", res.Ranked[0].Signal)
	}
	if reason, ok := res.Excluded["FLAT/USD"]; !ok || !strings.Contains(reason, string(SignalNoSignal)) {
		t.Fatalf("flat candidate not excluded as NO_SIGNAL: %q", reason)
	}
	if reason, ok := res.Excluded["NEW/USD"]; !ok || !strings.Contains(reason, "insufficient") {
		t.Fatalf("short-history candidate not excluded: %q", reason)
	}
}

func TestRankTieBreaksBySymbol(t *testing.T) {
	r := NewRanker(DefaultConfig())
	btc := flat(60, "100")
	mk := func(symbol string) Candidate {
		return Candidate{
			Symbol:  symbol,
			Closes:  series(60, "100", "65", 14),
			Volumes: series(60, "100", "200", 14),
		}
	}
	res, err := r.Rank([]Candidate{mk("ZZZ/USD"), mk("AAA/USD")}, btc)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(res.Ranked) != 2 || res.Ranked[0].Symbol != "AAA/USD" {
		t.Fatalf("tie should order by symbol ascending: %+v", res.Ranked)
	}
}

func TestRankBadBTCReferenceIsFatal(t *testing.T) {
	r := NewRanker(DefaultConfig())
	_, err := r.Rank(nil, flat(5, "100"))
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory for btc series, got %v", err)
	}
}
