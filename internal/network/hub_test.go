package network

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/ChernOS/internal/events"
	"github.com/MRamiBalles/ChernOS/internal/platform/config"
	"github.com/MRamiBalles/ChernOS/internal/platform/metrics"
	"github.com/MRamiBalles/ChernOS/internal/terminal"
)

type echoRunner struct{ calls atomic.Int32 }

func (r *echoRunner) Run(_ context.Context, line string) ([]string, error) {
	r.calls.Add(1)
	if line == "bogus" {
		return []string{"Unknown command"}, terminal.ErrInvalidCommand
	}
	return []string{"ran: " + line}, nil
}

func startHub(t *testing.T, tuning config.HubTuning, runner CommandRunner) (*Hub, *websocket.Conn, *metrics.Collector) {
	t.Helper()
	m := metrics.New()
	hub := NewHub(nil, m, tuning)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(ServeWS(hub, runner))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("Client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return hub, conn, m
}

type wireMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Seq     uint64          `json:"seq"`
	Lines   []string        `json:"lines"`
	Error   string          `json:"error"`
}

// readType reads messages until one of the wanted type arrives.
func readType(t *testing.T, conn *websocket.Conn, want string) wireMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Read waiting for %s: %v", want, err)
		}
		var msg wireMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("Bad JSON %q: %v", raw, err)
		}
		if msg.Type == want {
			return msg
		}
	}
}

func TestHubBroadcastsBusEvents(t *testing.T) {
	hub, conn, m := startHub(t, config.DefaultTuning(), nil)
	bus := events.NewBus(nil, nil)
	hub.Attach(bus)

	bus.Emit(events.LogAppendPayload{Line: "[12:00:00] hello"})

	msg := readType(t, conn, string(events.EventTypeLogAppend))
	var p events.LogAppendPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.Line != "[12:00:00] hello" {
		t.Errorf("Unexpected payload %s (%v)", msg.Payload, err)
	}
	if atomic.LoadInt64(&m.WSConnectionsActive) != 1 {
		t.Errorf("Expected one active connection, got %d", atomic.LoadInt64(&m.WSConnectionsActive))
	}
}

func TestClientCommands(t *testing.T) {
	runner := &echoRunner{}
	_, conn, _ := startHub(t, config.HubTuning{ClientSendBuffer: 16, BroadcastChannelBuffer: 16}, runner)

	if err := conn.WriteJSON(CommandRequest{Command: "net scan", Seq: 42}); err != nil {
		t.Fatal(err)
	}
	msg := readType(t, conn, "command:result")
	if msg.Seq != 42 {
		t.Errorf("Expected seq 42 echoed, got %d", msg.Seq)
	}
	if len(msg.Lines) != 1 || msg.Lines[0] != "ran: net scan" || msg.Error != "" {
		t.Errorf("Unexpected result %+v", msg)
	}

	if err := conn.WriteJSON(CommandRequest{Command: "bogus"}); err != nil {
		t.Fatal(err)
	}
	msg = readType(t, conn, "command:result")
	if !strings.Contains(msg.Error, "invalid command") {
		t.Errorf("Expected invalid command error, got %+v", msg)
	}
}

func TestClientRateLimit(t *testing.T) {
	runner := &echoRunner{}
	tuning := config.HubTuning{ClientSendBuffer: 16, BroadcastChannelBuffer: 16, CommandInterval: time.Hour}
	_, conn, _ := startHub(t, tuning, runner)

	conn.WriteJSON(CommandRequest{Command: "status", Seq: 1})
	readType(t, conn, "command:result")
	conn.WriteJSON(CommandRequest{Command: "status", Seq: 2})
	msg := readType(t, conn, "command:result")

	if msg.Seq != 2 {
		t.Errorf("Rate-limited result should still carry seq 2, got %d", msg.Seq)
	}
	if msg.Error != ErrRateLimited.Error() {
		t.Errorf("Expected rate limit, got %+v", msg)
	}
	if runner.calls.Load() != 1 {
		t.Errorf("Expected one command to run, got %d", runner.calls.Load())
	}
}

func TestBroadcastNeverBlocks(t *testing.T) {
	m := metrics.New()
	hub := NewHub(nil, m, config.HubTuning{ClientSendBuffer: 1, BroadcastChannelBuffer: 1})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			hub.BroadcastEvent(events.New(events.ThemeSetPayload{Theme: "amber"}))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("BroadcastEvent blocked without a running hub")
	}
	if got := atomic.LoadInt64(&m.WSDropped); got != 2 {
		t.Errorf("Expected two dropped events, got %d", got)
	}
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub := NewHub(nil, nil, config.DefaultTuning())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(ServeWS(hub, nil))
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	for hub.ClientCount() != 1 {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("Expected the connection to close on hub shutdown")
	}
}
