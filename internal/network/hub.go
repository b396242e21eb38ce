package network

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/MRamiBalles/ChernOS/internal/events"
	"github.com/MRamiBalles/ChernOS/internal/platform/config"
	"github.com/MRamiBalles/ChernOS/internal/platform/logger"
	"github.com/MRamiBalles/ChernOS/internal/platform/metrics"
)

// Hub maintains the set of active clients and broadcasts bus events to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{} // closed when Run returns
	mu         sync.Mutex
	tuning     config.HubTuning
	logger     *logger.Logger
	metrics    *metrics.Collector
}

// NewHub initializes a new WebSocket Hub. m may be nil.
func NewHub(log *logger.Logger, m *metrics.Collector, tuning config.HubTuning) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	if tuning.ClientSendBuffer <= 0 || tuning.BroadcastChannelBuffer <= 0 {
		tuning = config.DefaultTuning()
	}
	return &Hub{
		broadcast:  make(chan []byte, tuning.BroadcastChannelBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		tuning:     tuning,
		logger:     log.Named("hub"),
		metrics:    m,
	}
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("WebSocket Hub shutting down.")
			h.mu.Lock()
			for client := range h.clients {
				h.drop(client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.record(1)
			h.logger.Info("New WebSocket client connected", "clients", h.ClientCount())
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Info("WebSocket client disconnected")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
					if h.metrics != nil {
						h.metrics.RecordWSMessage(false)
					}
				default:
					// Slow consumer; it reconnects and resyncs from /api/status.
					h.drop(client)
					h.logger.Warn("Dropped slow WebSocket client")
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop removes a client. Caller holds h.mu.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.record(-1)
}

func (h *Hub) record(delta int64) {
	if h.metrics != nil {
		h.metrics.RecordWSConnection(delta)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// BroadcastEvent serializes a bus event and queues it for every client.
// It never blocks: when the broadcast queue is full the event is dropped.
func (h *Hub) BroadcastEvent(event events.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to serialize event for WebSocket broadcast", "type", string(event.Type), "error", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		if h.metrics != nil {
			h.metrics.RecordWSDrop()
		}
	}
}

// Attach subscribes the hub to every bus event.
func (h *Hub) Attach(bus *events.Bus) (detach func()) {
	return bus.Subscribe(func(e events.Event) error {
		h.BroadcastEvent(e)
		return nil
	})
}
