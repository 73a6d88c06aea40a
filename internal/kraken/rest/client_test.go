package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL, 5*time.Second, zap.NewNop()), server
}

func TestTime(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/0/public/Time" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"error":[],"result":{"unixtime":1688669448,"rfc1123":"Thu, 06 Jul 23 18:50:48 +0000"}}`))
	})
	got, err := client.Time(context.Background())
	if err != nil {
		t.Fatalf("time: %v", err)
	}
	if got.Unix() != 1688669448 {
		t.Fatalf("time = %d", got.Unix())
	}
}

func TestTickerPassesPairs(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("pair"); got != "XBT/USD,ETH/USD" {
			t.Fatalf("pair = %q", got)
		}
		_, _ = w.Write([]byte(`{"error":[],"result":{"XBTUSD":{"c":["100","1"]}}}`))
	})
	data, err := client.Ticker(context.Background(), []string{"XBT/USD", "ETH/USD"})
	if err != nil {
		t.Fatalf("ticker: %v", err)
	}
	if _, ok := data["XBTUSD"]; !ok {
		t.Fatalf("result missing pair entry: %v", data)
	}
}

func TestOHLCExtractsRows(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":[],"result":{"XBTUSD":[[1688671200,"100","101","99","100","100","3.5",10]],"last":1688671200}}`))
	})
	rows, err := client.OHLC(context.Background(), "XBT/USD", 60)
	if err != nil {
		t.Fatalf("ohlc: %v", err)
	}
	arr, ok := rows.([]any)
	if !ok || len(arr) != 1 {
		t.Fatalf("rows = %#v", rows)
	}
}

func TestAssetPairs(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/0/public/AssetPairs" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"error":[],"result":{"XXBTZUSD":{"fees":[[0,0.26]],"fees_maker":[[0,0.16]]}}}`))
	})
	data, err := client.AssetPairs(context.Background(), []string{"XBT/USD"})
	if err != nil {
		t.Fatalf("asset pairs: %v", err)
	}
	if _, ok := data["XXBTZUSD"]; !ok {
		t.Fatalf("result missing pair: %v", data)
	}
}

func TestKrakenErrorEnvelope(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":["EQuery:Unknown asset pair"],"result":null}`))
	})
	if _, err := client.Ticker(context.Background(), []string{"NOPE"}); err == nil {
		t.Fatalf("expected kraken error")
	}
}

func TestRetriesOn5xx(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"error":[],"result":{"unixtime":1}}`))
	})
	if _, err := client.Time(context.Background()); err != nil {
		t.Fatalf("expected retry success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRateLimitErrorIsTyped(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":["EAPI:Rate limit exceeded"],"result":null}`))
	})
	_, err := client.Ticker(context.Background(), nil)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestBalanceRequiresCredentials(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	if _, err := client.Balance(context.Background()); err == nil {
		t.Fatalf("expected credentials error")
	}
}

func TestBalanceSignsRequest(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s", r.Method)
		}
		if r.Header.Get("API-Key") != "key" {
			t.Fatalf("missing api key header")
		}
		if r.Header.Get("API-Sign") == "" {
			t.Fatalf("missing api sign header")
		}
		_, _ = w.Write([]byte(`{"error":[],"result":{"ZUSD":"4100.5500","XXBT":"0.1000000000"}}`))
	})
	client.WithCredentials("key", "a2V5c2VjcmV0c2VjcmV0")
	balances, err := client.Balance(context.Background())
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balances["ZUSD"] != "4100.5500" {
		t.Fatalf("balances = %v", balances)
	}
}

func TestSignMatchesKnownVector(t *testing.T) {
	client := New("http://unused", time.Second, zap.NewNop())
	// vector from Kraken's API signature documentation
	client.WithCredentials("key", "kQH5HW/8p1uGOVjbgWA7FunAmGO8lsSUXNsu3eow76sz84Q18fWxnyRzBHCd3pd5nE9qa99HAZtuZuj6F1huXg==")
	sig, err := client.sign(
		"/0/private/AddOrder",
		"1616492376594",
		"nonce=1616492376594&ordertype=limit&pair=XBTUSD&price=37500&type=buy&volume=1.25",
	)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	want := "4/dpxb3iT4tp/ZCVEwSnEsLxx0bqyhLpdfOpc6fn7OR8+UClSV5n9E6aSS8MPtnRfp32bAb0nmbRn6H8ndwLUQ=="
	if sig != want {
		t.Fatalf("sig = %s", sig)
	}
}
