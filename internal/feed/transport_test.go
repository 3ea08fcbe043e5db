package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWSDialerReadsMessages(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/btcusdt@aggTrade" {
			http.NotFound(w, r)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		_ = c.WriteMessage(websocket.TextMessage, []byte(sampleAggTrade))
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"e":"aggTrade"}`))
		// hold the socket open until the client goes away
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	tmpl := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/{symbol}@aggTrade"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := NewWSDialer().Dial(ctx, StreamURL(tmpl, "BTCUSDT"))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer s.Close()

	first, err := s.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != sampleAggTrade {
		t.Fatalf("first message got %s", first)
	}
	if _, err := s.Next(ctx); err != nil {
		t.Fatal(err)
	}

	// cancelling the context unblocks a pending read
	errc := make(chan error, 1)
	go func() {
		_, err := s.Next(ctx)
		errc <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		if err == nil {
			t.Fatal("expected error after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read not unblocked by cancel")
	}
}

func TestWSDialerDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewWSDialer().Dial(ctx, "ws://127.0.0.1:1/ws"); err == nil {
		t.Fatal("expected dial error")
	}
}
