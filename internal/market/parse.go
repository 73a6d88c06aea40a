package market

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Ticker struct {
	Pair      string
	Last      decimal.Decimal
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Volume24h decimal.Decimal
	High24h   decimal.Decimal
	Low24h    decimal.Decimal
}

// ParseOHLC decodes one pair's rows from a Kraken OHLC result:
// [time, open, high, low, close, vwap, volume, count].
func ParseOHLC(pair string, payload any) ([]Candle, error) {
	rows, ok := toSlice(payload)
	if !ok {
		return nil, errors.New("ohlc payload is not an array")
	}
	candles := make([]Candle, 0, len(rows))
	for _, raw := range rows {
		row, ok := toSlice(raw)
		if !ok || len(row) < 7 {
			continue
		}
		ts, ok := intFromAny(row[0])
		if !ok {
			continue
		}
		candle := Candle{Pair: pair, Start: time.Unix(ts, 0).UTC()}
		fields := []*decimal.Decimal{&candle.Open, &candle.High, &candle.Low, &candle.Close, &candle.VWAP, &candle.Volume}
		parsed := true
		for i, dst := range fields {
			v, ok := decimalFromAny(row[i+1])
			if !ok {
				parsed = false
				break
			}
			*dst = v
		}
		if !parsed {
			continue
		}
		candles = append(candles, candle)
	}
	if len(candles) == 0 {
		return nil, errors.New("no ohlc rows parsed")
	}
	return candles, nil
}

// ParseTicker decodes one pair's entry from a Kraken Ticker result. Kraken
// packs each field as an array: c=[last, lot], b=[bid, ...], a=[ask, ...],
// v=[today, last24h], h/l likewise.
func ParseTicker(pair string, payload any) (Ticker, error) {
	data, ok := toMap(payload)
	if !ok {
		return Ticker{}, errors.New("ticker payload is not an object")
	}
	t := Ticker{Pair: pair}
	var err error
	if t.Last, err = firstDecimal(data, "c"); err != nil {
		return Ticker{}, err
	}
	if t.Bid, err = firstDecimal(data, "b"); err != nil {
		return Ticker{}, err
	}
	if t.Ask, err = firstDecimal(data, "a"); err != nil {
		return Ticker{}, err
	}
	t.Volume24h, _ = secondDecimal(data, "v")
	t.High24h, _ = secondDecimal(data, "h")
	t.Low24h, _ = secondDecimal(data, "l")
	return t, nil
}

// SpreadFraction estimates the relative spread from ticker quotes:
// (ask - bid) / mid. Zero when the quotes are unusable.
func (t Ticker) SpreadFraction() decimal.Decimal {
	if !t.Bid.IsPositive() || !t.Ask.IsPositive() || t.Ask.LessThan(t.Bid) {
		return decimal.Zero
	}
	mid := t.Bid.Add(t.Ask).Div(decimal.New(2, 0))
	if !mid.IsPositive() {
		return decimal.Zero
	}
	return t.Ask.Sub(t.Bid).Div(mid)
}

func firstDecimal(data map[string]any, key string) (decimal.Decimal, error) {
	return indexedDecimal(data, key, 0)
}

func secondDecimal(data map[string]any, key string) (decimal.Decimal, error) {
	return indexedDecimal(data, key, 1)
}

func indexedDecimal(data map[string]any, key string, idx int) (decimal.Decimal, error) {
	arr, ok := toSlice(data[key])
	if !ok || len(arr) <= idx {
		return decimal.Zero, errors.New("ticker field " + key + " missing")
	}
	v, ok := decimalFromAny(arr[idx])
	if !ok {
		return decimal.Zero, errors.New("ticker field " + key + " unparseable")
	}
	return v, nil
}

func toMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func toSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func decimalFromAny(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		return d, err == nil
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(val), true
	case int:
		return decimal.New(int64(val), 0), true
	case int64:
		return decimal.New(val, 0), true
	default:
		return decimal.Zero, false
	}
}

func intFromAny(v any) (int64, bool) {
	switch val := v.(type) {
	case float64:
		return int64(val), true
	case int:
		return int64(val), true
	case int64:
		return val, true
	case json.Number:
		i, err := val.Int64()
		return i, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		if err != nil {
			return 0, false
		}
		return d.IntPart(), true
	default:
		return 0, false
	}
}
