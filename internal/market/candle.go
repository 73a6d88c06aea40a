package market

import (
	"time"

	"github.com/shopspring/decimal"
)

type Candle struct {
	Pair   string
	Start  time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	VWAP   decimal.Decimal
	Volume decimal.Decimal
}

func Closes(candles []Candle) []decimal.Decimal {
	out := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func Volumes(candles []Candle) []decimal.Decimal {
	out := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

// ATRPercent is the mean true range over the trailing window, expressed as
// a fraction of the last close. Returns zero when there is not enough
// history or the last close is not positive.
func ATRPercent(candles []Candle, window int) decimal.Decimal {
	if window <= 0 || len(candles) < window+1 {
		return decimal.Zero
	}
	tail := candles[len(candles)-window:]
	prevClose := candles[len(candles)-window-1].Close
	sum := decimal.Zero
	for _, c := range tail {
		tr := c.High.Sub(c.Low)
		if d := c.High.Sub(prevClose).Abs(); d.GreaterThan(tr) {
			tr = d
		}
		if d := c.Low.Sub(prevClose).Abs(); d.GreaterThan(tr) {
			tr = d
		}
		sum = sum.Add(tr)
		prevClose = c.Close
	}
	last := candles[len(candles)-1].Close
	if !last.IsPositive() {
		return decimal.Zero
	}
	return sum.Div(decimal.New(int64(window), 0)).Div(last)
}

// PeriodHigh returns the highest close over the trailing lookback window.
func PeriodHigh(candles []Candle, lookback int) decimal.Decimal {
	if len(candles) == 0 {
		return decimal.Zero
	}
	window := candles
	if lookback > 0 && len(window) > lookback {
		window = window[len(window)-lookback:]
	}
	high := window[0].Close
	for _, c := range window[1:] {
		if c.Close.GreaterThan(high) {
			high = c.Close
		}
	}
	return high
}
