package userstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quantgate/internal/config"
)

func TestStreamDeliversFillsFromServer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	payload := `{
		"e": "ORDER_TRADE_UPDATE",
		"o": {"s": "BTCUSDT", "c": "s1:BTCUSDT:1:sl:sell", "x": "TRADE", "l": "1", "L": "44000"}
	}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
			return
		}
		// keep the connection open until the client disconnects
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	cfg := config.UserStreamConfig{
		Enabled:        true,
		URL:            "ws" + strings.TrimPrefix(server.URL, "http"),
		ReconnectDelay: 10 * time.Millisecond,
	}

	stream := NewStream(cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		stream.Run(ctx)
		close(done)
	}()

	select {
	case fill := <-stream.Fills():
		if fill.ClientOrderID != "s1:BTCUSDT:1:sl:sell" {
			t.Errorf("unexpected client id: %s", fill.ClientOrderID)
		}
		if fill.Price != 44000 {
			t.Errorf("unexpected price: %v", fill.Price)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for fill event")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("stream did not stop after cancellation")
	}
}
