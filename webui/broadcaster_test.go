package webui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func startBroadcaster(t *testing.T, config BroadcasterConfig) (*Broadcaster, string) {
	t.Helper()
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	b := NewBroadcaster(config)

	ctx, cancel := context.WithCancel(context.Background())
	go b.Start(ctx)

	srv := httptest.NewServer(http.HandlerFunc(b.HandleConnection))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return b, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return msg
}

func waitForClients(t *testing.T, b *Broadcaster, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", b.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcaster_FansOutToAllClients(t *testing.T) {
	b, url := startBroadcaster(t, BroadcasterConfig{})
	c1 := dial(t, url)
	c2 := dial(t, url)
	waitForClients(t, b, 2)

	if !b.BroadcastMessage(NewSamplesMessage(10, []float32{0.5, -0.5})) {
		t.Fatal("BroadcastMessage() = false")
	}

	for _, c := range []*websocket.Conn{c1, c2} {
		msg := readMessage(t, c)
		if msg.Type != MessageTypeSamples {
			t.Errorf("Type = %q, want %q", msg.Type, MessageTypeSamples)
		}
		data := msg.Data.(map[string]any)
		if data["first_index"].(float64) != 10 {
			t.Errorf("first_index = %v, want 10", data["first_index"])
		}
		if len(data["samples"].([]any)) != 2 {
			t.Errorf("samples = %v, want 2 values", data["samples"])
		}
	}
}

func TestBroadcaster_SendsInitialMessage(t *testing.T) {
	b := NewBroadcaster(BroadcasterConfig{Logger: zap.NewNop()})
	b.OnConnect(func() WSMessage {
		return NewWSMessage(MessageTypeInitial, InitialData{Points: 7})
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Start(ctx)
	srv := httptest.NewServer(http.HandlerFunc(b.HandleConnection))
	defer srv.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	msg := readMessage(t, conn)
	if msg.Type != MessageTypeInitial {
		t.Fatalf("Type = %q, want %q", msg.Type, MessageTypeInitial)
	}
	if pts := msg.Data.(map[string]any)["points"].(float64); pts != 7 {
		t.Errorf("points = %v, want 7", pts)
	}
}

func TestBroadcaster_UnregistersClosedClients(t *testing.T) {
	b, url := startBroadcaster(t, BroadcasterConfig{})
	conn := dial(t, url)
	waitForClients(t, b, 1)

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	waitForClients(t, b, 0)
}

func TestBroadcaster_DropsWhenQueueFull(t *testing.T) {
	// Not started, so nothing drains the queue.
	b := NewBroadcaster(BroadcasterConfig{BroadcastBufferSize: 2})

	for i := 0; i < 2; i++ {
		if !b.BroadcastMessage(NewStatsMessage(metricsStatus())) {
			t.Fatalf("BroadcastMessage(%d) = false", i)
		}
	}
	if b.BroadcastMessage(NewErrorMessage("x", "y")) {
		t.Error("BroadcastMessage() on full queue = true")
	}
	if b.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", b.Dropped())
	}
}

func TestBroadcaster_ClosesClientsOnStop(t *testing.T) {
	b := NewBroadcaster(BroadcasterConfig{Logger: zap.NewNop()})
	ctx, cancel := context.WithCancel(context.Background())
	go b.Start(ctx)
	srv := httptest.NewServer(http.HandlerFunc(b.HandleConnection))
	defer srv.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	waitForClients(t, b, 1)
	cancel()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("ReadMessage() error = %v, want going-away close", err)
	}
}

func TestSampleFeed_BatchesPerFrame(t *testing.T) {
	b, url := startBroadcaster(t, BroadcasterConfig{})
	conn := dial(t, url)
	waitForClients(t, b, 1)

	feed := NewSampleFeed(b, time.Hour)
	feed.Flush() // nothing pending, nothing sent
	for i := 0; i < 5; i++ {
		feed.Consume(float32(i))
	}
	feed.Flush()
	feed.Consume(5)
	feed.Flush()

	first := readMessage(t, conn).Data.(map[string]any)
	second := readMessage(t, conn).Data.(map[string]any)
	if len(first["samples"].([]any)) != 5 || first["first_index"].(float64) != 0 {
		t.Errorf("first batch = %v", first)
	}
	if len(second["samples"].([]any)) != 1 || second["first_index"].(float64) != 5 {
		t.Errorf("second batch = %v", second)
	}
}

func TestSampleFeed_OverflowSkipsOldest(t *testing.T) {
	feed := NewSampleFeed(NewBroadcaster(BroadcasterConfig{}), 0)
	for i := 0; i < maxBatch+3; i++ {
		feed.Consume(float32(i))
	}
	if feed.Skipped() != 3 {
		t.Errorf("Skipped() = %d, want 3", feed.Skipped())
	}
	feed.mu.Lock()
	defer feed.mu.Unlock()
	if feed.next != 3 || feed.pending[0] != 3 {
		t.Errorf("next = %d, pending[0] = %v, want 3", feed.next, feed.pending[0])
	}
}
