package ingestion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tourist-safety-engine/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func fastConfig() *WSConfig {
	cfg := DefaultWSConfig()
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnectDelay = 50 * time.Millisecond
	return &cfg
}

func receive(t *testing.T, ch <-chan *domain.MovementSample, n int) []*domain.MovementSample {
	t.Helper()
	var out []*domain.MovementSample
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case s, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d samples", len(out))
			}
			out = append(out, s)
		case <-timeout:
			t.Fatalf("timed out after %d samples", len(out))
		}
	}
	return out
}

func TestWSSource_StreamsSamples(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte(`{"entity_id":"t-1","latitude":28.6,"longitude":77.2,"timestamp_ms":1000}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		conn.WriteMessage(websocket.TextMessage, []byte(`[{"entity_id":"t-2","timestamp_ms":2000},{"entity_id":"t-3","timestamp_ms":3000}]`))

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := NewWSSource(wsURL(server), fastConfig(), nil)
	ch, err := src.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	got := receive(t, ch, 3)
	if got[0].EntityID != "t-1" || got[1].EntityID != "t-2" || got[2].EntityID != "t-3" {
		t.Errorf("unexpected samples: %+v %+v %+v", got[0], got[1], got[2])
	}
	if !src.Connected() {
		t.Error("expected source to be connected")
	}

	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after cancel")
		}
	}
}

func TestWSSource_Reconnects(t *testing.T) {
	var connections atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := connections.Add(1)
		if n == 1 {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"entity_id":"first","timestamp_ms":1}`))
			conn.Close() // drop the link
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"entity_id":"second","timestamp_ms":2}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := NewWSSource(wsURL(server), fastConfig(), nil).Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	got := receive(t, ch, 2)
	if got[0].EntityID != "first" || got[1].EntityID != "second" {
		t.Errorf("unexpected samples: %s, %s", got[0].EntityID, got[1].EntityID)
	}
	if connections.Load() < 2 {
		t.Errorf("expected a reconnect, got %d connections", connections.Load())
	}
}

func TestWSSource_InitialDialFails(t *testing.T) {
	src := NewWSSource("ws://127.0.0.1:1/feed", fastConfig(), nil)
	if _, err := src.Subscribe(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
}
