package ws

import "encoding/json"

// TickerUpdate is one entry from a Kraken v2 ticker channel message. Prices
// stay as raw strings so downstream code can parse them exactly.
type TickerUpdate struct {
	Symbol string `json:"symbol"`
	Last   string `json:"last"`
	Bid    string `json:"bid"`
	Ask    string `json:"ask"`
	Volume string `json:"volume"`
}

type tickerMessage struct {
	Channel string            `json:"channel"`
	Type    string            `json:"type"`
	Data    []json.RawMessage `json:"data"`
}

// ParseTickerUpdates extracts ticker entries from a raw ws message; other
// channels and heartbeats return an empty slice.
func ParseTickerUpdates(raw json.RawMessage) []TickerUpdate {
	var msg tickerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil
	}
	if msg.Channel != "ticker" || len(msg.Data) == 0 {
		return nil
	}
	out := make([]TickerUpdate, 0, len(msg.Data))
	for _, item := range msg.Data {
		var entry struct {
			Symbol string          `json:"symbol"`
			Last   json.RawMessage `json:"last"`
			Bid    json.RawMessage `json:"bid"`
			Ask    json.RawMessage `json:"ask"`
			Volume json.RawMessage `json:"volume"`
		}
		if err := json.Unmarshal(item, &entry); err != nil || entry.Symbol == "" {
			continue
		}
		out = append(out, TickerUpdate{
			Symbol: entry.Symbol,
			Last:   rawNumber(entry.Last),
			Bid:    rawNumber(entry.Bid),
			Ask:    rawNumber(entry.Ask),
			Volume: rawNumber(entry.Volume),
		})
	}
	return out
}

// rawNumber strips quotes when present; Kraken v2 sends bare JSON numbers,
// which stay textual here to avoid a float round trip.
func rawNumber(raw json.RawMessage) string {
	s := string(raw)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
