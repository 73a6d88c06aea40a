package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type serverMsg struct {
	conn   int32
	method string
}

// subscribeEchoServer accepts websocket connections and reports every
// received method on msgs. The first connection is dropped after two
// messages to force a client reconnect.
func subscribeEchoServer(t *testing.T, msgs chan serverMsg) *httptest.Server {
	t.Helper()
	var connSeq atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		id := connSeq.Add(1)
		seen := 0
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			var envelope struct {
				Method string `json:"method"`
			}
			if err := json.Unmarshal(data, &envelope); err != nil {
				continue
			}
			msgs <- serverMsg{conn: id, method: envelope.Method}
			seen++
			if id == 1 && seen == 2 {
				_ = conn.Close(websocket.StatusGoingAway, "drop")
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func recvMsg(t *testing.T, msgs chan serverMsg) serverMsg {
	t.Helper()
	select {
	case msg := <-msgs:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for server message")
		return serverMsg{}
	}
}

func TestRunReplaysSubscriptionsOnlyAfterReconnect(t *testing.T) {
	msgs := make(chan serverMsg, 16)
	server := subscribeEchoServer(t, msgs)
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	client := New(url, 10*time.Millisecond, 25*time.Millisecond, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.resetConn)
	if err := client.SubscribeTicker(ctx, []string{"XBT/USD"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = client.Run(ctx, nil)
	}()

	if msg := recvMsg(t, msgs); msg.conn != 1 || msg.method != "subscribe" {
		t.Fatalf("first message = %+v, want subscribe on conn 1", msg)
	}
	// the next message on the live connection must be a keepalive ping,
	// not a repeat of the subscription already sent
	if msg := recvMsg(t, msgs); msg.conn != 1 || msg.method != "ping" {
		t.Fatalf("second message = %+v, want ping on conn 1", msg)
	}
	if msg := recvMsg(t, msgs); msg.conn != 2 || msg.method != "subscribe" {
		t.Fatalf("post-reconnect message = %+v, want subscribe on conn 2", msg)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop on cancel")
	}
}
