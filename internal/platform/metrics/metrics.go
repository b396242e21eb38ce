// Package metrics provides observability for the control room server.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers performance and simulation metrics.
type Collector struct {
	// Tick metrics
	TickCount      int64
	TickLatencySum int64 // nanoseconds
	TickLatencyMax int64
	LastTickTime   time.Time

	// Bus metrics
	EventsPublished int64
	HandlerFailures int64

	// Simulation metrics
	FaultsInjected      int64
	StageTransitions    int64
	SafeguardInsertions int64

	// Command metrics
	CommandsExecuted int64
	CommandsInvalid  int64
	CommandsRejected int64

	// WebSocket metrics
	WSConnectionsActive int64
	WSMessagesIn        int64
	WSMessagesOut       int64
	WSDropped           int64

	// Journal
	JournalWrites      int64
	JournalWriteErrors int64

	// System
	StartTime time.Time
	mu        sync.RWMutex
}

// Global collector instance
var collector = New()

// New creates an empty collector. Tests use their own; the server uses Get.
func New() *Collector {
	return &Collector{StartTime: time.Now()}
}

// Get returns the global collector.
func Get() *Collector {
	return collector
}

// RecordTick records a tick cycle completion.
func (c *Collector) RecordTick(latency time.Duration) {
	atomic.AddInt64(&c.TickCount, 1)
	atomic.AddInt64(&c.TickLatencySum, int64(latency))

	// Update max (non-atomic but acceptable for metrics)
	if int64(latency) > atomic.LoadInt64(&c.TickLatencyMax) {
		atomic.StoreInt64(&c.TickLatencyMax, int64(latency))
	}

	c.mu.Lock()
	c.LastTickTime = time.Now()
	c.mu.Unlock()
}

// RecordPublish records one event delivered through the bus.
func (c *Collector) RecordPublish() {
	atomic.AddInt64(&c.EventsPublished, 1)
}

// RecordHandlerFailure records a subscriber that errored or panicked.
func (c *Collector) RecordHandlerFailure() {
	atomic.AddInt64(&c.HandlerFailures, 1)
}

// RecordFault records an injected fault.
func (c *Collector) RecordFault() {
	atomic.AddInt64(&c.FaultsInjected, 1)
}

// RecordStageTransition records a meltdown stage change.
func (c *Collector) RecordStageTransition() {
	atomic.AddInt64(&c.StageTransitions, 1)
}

// RecordSafeguard records an automatic safeguard insertion.
func (c *Collector) RecordSafeguard() {
	atomic.AddInt64(&c.SafeguardInsertions, 1)
}

// CommandOutcome classifies a terminal command result.
type CommandOutcome int

const (
	CommandOK CommandOutcome = iota
	CommandInvalid
	CommandRejected
)

// RecordCommand records a terminal command outcome.
func (c *Collector) RecordCommand(outcome CommandOutcome) {
	switch outcome {
	case CommandInvalid:
		atomic.AddInt64(&c.CommandsInvalid, 1)
	case CommandRejected:
		atomic.AddInt64(&c.CommandsRejected, 1)
	default:
		atomic.AddInt64(&c.CommandsExecuted, 1)
	}
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if incoming {
		atomic.AddInt64(&c.WSMessagesIn, 1)
	} else {
		atomic.AddInt64(&c.WSMessagesOut, 1)
	}
}

// RecordWSDrop records a broadcast dropped because a queue was full.
func (c *Collector) RecordWSDrop() {
	atomic.AddInt64(&c.WSDropped, 1)
}

// RecordJournalWrite records a journal line persisted to storage.
func (c *Collector) RecordJournalWrite(err error) {
	atomic.AddInt64(&c.JournalWrites, 1)
	if err != nil {
		atomic.AddInt64(&c.JournalWriteErrors, 1)
	}
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.TickCount)

	var tickAvg float64
	if tickCount > 0 {
		tickAvg = float64(atomic.LoadInt64(&c.TickLatencySum)) / float64(tickCount) / 1e6 // ms
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"tick": map[string]interface{}{
			"count":          tickCount,
			"avg_latency_ms": tickAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.TickLatencyMax)) / 1e6,
			"last_tick":      c.LastTickTime.Format(time.RFC3339),
		},

		"bus": map[string]interface{}{
			"published":        atomic.LoadInt64(&c.EventsPublished),
			"handler_failures": atomic.LoadInt64(&c.HandlerFailures),
		},

		"simulation": map[string]interface{}{
			"faults_injected":      atomic.LoadInt64(&c.FaultsInjected),
			"stage_transitions":    atomic.LoadInt64(&c.StageTransitions),
			"safeguard_insertions": atomic.LoadInt64(&c.SafeguardInsertions),
		},

		"commands": map[string]interface{}{
			"executed": atomic.LoadInt64(&c.CommandsExecuted),
			"invalid":  atomic.LoadInt64(&c.CommandsInvalid),
			"rejected": atomic.LoadInt64(&c.CommandsRejected),
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_in":        atomic.LoadInt64(&c.WSMessagesIn),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"dropped":            atomic.LoadInt64(&c.WSDropped),
		},

		"journal": map[string]interface{}{
			"writes": atomic.LoadInt64(&c.JournalWrites),
			"errors": atomic.LoadInt64(&c.JournalWriteErrors),
		},
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		json.NewEncoder(w).Encode(c.Snapshot())
	}
}

// PrometheusHandler returns metrics in Prometheus text format.
func (c *Collector) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		counter := func(name, help string, v int64) {
			fmt.Fprintf(w, "# HELP %s %s\n", name, help)
			fmt.Fprintf(w, "# TYPE %s counter\n", name)
			fmt.Fprintf(w, "%s %d\n\n", name, v)
		}

		counter("chernos_tick_count", "Total simulation ticks", atomic.LoadInt64(&c.TickCount))

		fmt.Fprintf(w, "# HELP chernos_tick_latency_max_ms Maximum tick latency\n")
		fmt.Fprintf(w, "# TYPE chernos_tick_latency_max_ms gauge\n")
		fmt.Fprintf(w, "chernos_tick_latency_max_ms %.3f\n\n", float64(atomic.LoadInt64(&c.TickLatencyMax))/1e6)

		counter("chernos_bus_events_published", "Total bus events published", atomic.LoadInt64(&c.EventsPublished))
		counter("chernos_bus_handler_failures", "Subscriber handlers that failed", atomic.LoadInt64(&c.HandlerFailures))
		counter("chernos_faults_injected", "Total injected faults", atomic.LoadInt64(&c.FaultsInjected))
		counter("chernos_stage_transitions", "Total meltdown stage transitions", atomic.LoadInt64(&c.StageTransitions))
		counter("chernos_safeguard_insertions", "Total automatic safeguard insertions", atomic.LoadInt64(&c.SafeguardInsertions))

		fmt.Fprintf(w, "# HELP chernos_commands_total Terminal commands by outcome\n")
		fmt.Fprintf(w, "# TYPE chernos_commands_total counter\n")
		fmt.Fprintf(w, "chernos_commands_total{outcome=\"ok\"} %d\n", atomic.LoadInt64(&c.CommandsExecuted))
		fmt.Fprintf(w, "chernos_commands_total{outcome=\"invalid\"} %d\n", atomic.LoadInt64(&c.CommandsInvalid))
		fmt.Fprintf(w, "chernos_commands_total{outcome=\"rejected\"} %d\n\n", atomic.LoadInt64(&c.CommandsRejected))

		fmt.Fprintf(w, "# HELP chernos_ws_connections Active WebSocket connections\n")
		fmt.Fprintf(w, "# TYPE chernos_ws_connections gauge\n")
		fmt.Fprintf(w, "chernos_ws_connections %d\n\n", atomic.LoadInt64(&c.WSConnectionsActive))

		fmt.Fprintf(w, "# HELP chernos_ws_messages_total Total WebSocket messages\n")
		fmt.Fprintf(w, "# TYPE chernos_ws_messages_total counter\n")
		fmt.Fprintf(w, "chernos_ws_messages_total{direction=\"in\"} %d\n", atomic.LoadInt64(&c.WSMessagesIn))
		fmt.Fprintf(w, "chernos_ws_messages_total{direction=\"out\"} %d\n\n", atomic.LoadInt64(&c.WSMessagesOut))

		counter("chernos_ws_dropped", "Broadcasts dropped on full queues", atomic.LoadInt64(&c.WSDropped))
	}
}
