package network

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
	// Time a single terminal command may take.
	commandTimeout = 5 * time.Second
)

// CommandResultType tags command replies on the wire.
const CommandResultType = "command:result"

// ErrRateLimited is reported to a client sending commands too fast.
var ErrRateLimited = errors.New("rate limit exceeded")

// CommandRunner executes terminal command lines. *terminal.Interpreter implements it.
type CommandRunner interface {
	Run(ctx context.Context, line string) ([]string, error)
}

// CommandRequest is an incoming terminal command from the frontend.
type CommandRequest struct {
	Command string `json:"command"`
	Seq     uint64 `json:"seq,omitempty"` // echoed back in the result
}

// CommandResult answers a CommandRequest to the client that sent it.
type CommandResult struct {
	Type    string   `json:"type"` // always CommandResultType
	Seq     uint64   `json:"seq,omitempty"`
	Command string   `json:"command"`
	Lines   []string `json:"lines"`
	Error   string   `json:"error,omitempty"`
}

// Client is one WebSocket connection.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	runner      CommandRunner
	lastCommand time.Time
}

// NewClient creates a new WebSocket client and returns it.
func NewClient(hub *Hub, conn *websocket.Conn, runner CommandRunner) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, hub.tuning.ClientSendBuffer),
		runner: runner,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and starts the client pumps.
func ServeWS(hub *Hub, runner CommandRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Warn("WebSocket upgrade failed", "error", err)
			return
		}
		client := NewClient(hub, conn, runner)
		client.Register()

		go client.WritePump()
		go client.ReadPump()
	}
}

// Register adds the client to the hub.
func (c *Client) Register() {
	select {
	case c.hub.register <- c:
	case <-c.hub.done:
		close(c.send)
	}
}

// ReadPump pumps commands from the websocket connection to the runner.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket read failed", "error", err)
			}
			break
		}
		if c.hub.metrics != nil {
			c.hub.metrics.RecordWSMessage(true)
		}

		var req CommandRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.hub.logger.Warn("Failed to parse command from WebSocket", "error", err)
			continue
		}
		c.reply(c.handleCommand(req))
	}
}

func (c *Client) handleCommand(req CommandRequest) CommandResult {
	res := CommandResult{Type: CommandResultType, Seq: req.Seq, Command: req.Command}

	if interval := c.hub.tuning.CommandInterval; interval > 0 && time.Since(c.lastCommand) < interval {
		res.Error = ErrRateLimited.Error()
		return res
	}
	c.lastCommand = time.Now()

	if c.runner == nil {
		res.Error = "commands are disabled"
		return res
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	lines, err := c.runner.Run(ctx, req.Command)
	res.Lines = lines
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// reply queues a result for this client only. A full queue drops it.
func (c *Client) reply(res CommandResult) {
	b, err := json.Marshal(res)
	if err != nil {
		return
	}
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- b:
	default:
		if c.hub.metrics != nil {
			c.hub.metrics.RecordWSDrop()
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
// Each message is a single JSON document.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
