// Package main - fault-storm
// Load generator: many concurrent WebSocket operators spamming terminal commands.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/url"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"

	"github.com/MRamiBalles/ChernOS/internal/network"
)

// Config for the storm
type Config struct {
	ServerURL       string
	NumClients      int
	CommandInterval time.Duration
	TestDuration    time.Duration
	Faults          bool
	ResultsFile     string
	ProxyURL        string
}

// Stats tracks performance metrics
type Stats struct {
	CommandsSent    int64
	ResultsReceived int64
	Broadcasts      int64
	RateLimited     int64
	CommandErrors   int64
	Unanswered      int64
	Errors          int64

	mu        sync.Mutex
	Latencies []time.Duration // command round trips
}

func (s *Stats) addLatency(d time.Duration) {
	s.mu.Lock()
	s.Latencies = append(s.Latencies, d)
	s.mu.Unlock()
}

// roundTrips matches command results to send times by sequence number.
// The server drops replies for a client whose queue is full, so arrival
// order says nothing about which request a result answers.
type roundTrips struct {
	mu      sync.Mutex
	pending map[uint64]time.Time
}

func newRoundTrips() *roundTrips {
	return &roundTrips{pending: make(map[uint64]time.Time)}
}

func (r *roundTrips) sent(seq uint64, at time.Time) {
	r.mu.Lock()
	r.pending[seq] = at
	r.mu.Unlock()
}

// received returns the round trip for seq, or false for an unknown seq.
func (r *roundTrips) received(seq uint64, at time.Time) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sent, ok := r.pending[seq]
	if !ok {
		return 0, false
	}
	delete(r.pending, seq)
	return at.Sub(sent), true
}

// outstanding counts requests that never got a result.
func (r *roundTrips) outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Read-only commands every client sends.
var readCommands = []string{
	"status",
	"containment status",
	"net status",
	"net scan",
	"net trace CORE-1",
	"net trace OPS-TOWER",
	"plugins",
	"help",
}

// Commands that perturb the simulation, only sent with -faults.
var faultCommands = []string{
	"simulate sensor",
	"simulate pump",
	"simulate pressure",
	"simulate ghost",
	"net throttle 1",
	"net throttle 0",
	"latch beta on",
	"latch beta off",
}

func main() {
	serverURL := flag.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	numClients := flag.Int("clients", 50, "Number of concurrent clients")
	interval := flag.Duration("interval", 100*time.Millisecond, "Command interval per client")
	duration := flag.Duration("duration", 60*time.Second, "Test duration")
	faults := flag.Bool("faults", false, "Also send fault-injecting commands")
	results := flag.String("out", "fault_storm_results.json", "Results file")
	proxyURL := flag.String("proxy", os.Getenv("ALL_PROXY"), "Proxy URL, e.g. socks5://127.0.0.1:1080")
	flag.Parse()

	config := Config{
		ServerURL:       *serverURL,
		NumClients:      *numClients,
		CommandInterval: *interval,
		TestDuration:    *duration,
		Faults:          *faults,
		ResultsFile:     *results,
		ProxyURL:        *proxyURL,
	}

	fmt.Println("=========================================")
	fmt.Println("FAULT STORM - control room load generator")
	fmt.Println("=========================================")
	fmt.Printf("Server:   %s\n", config.ServerURL)
	fmt.Printf("Clients:  %d\n", config.NumClients)
	fmt.Printf("Interval: %v\n", config.CommandInterval)
	fmt.Printf("Duration: %v\n", config.TestDuration)
	fmt.Printf("Faults:   %t\n", config.Faults)
	if config.ProxyURL != "" {
		fmt.Printf("Proxy:    %s\n", config.ProxyURL)
	}
	fmt.Println("=========================================")

	dialer, err := newDialer(config.ProxyURL)
	if err != nil {
		log.Fatalf("Proxy: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.TestDuration)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	start := time.Now()
	stats := runStorm(ctx, config, dialer)
	printResults(stats, config, time.Since(start))
}

// newDialer returns the default dialer, or one tunnelling through a proxy.
func newDialer(rawURL string) (*websocket.Dialer, error) {
	if rawURL == "" {
		return websocket.DefaultDialer, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "socks" {
		u.Scheme = "socks5"
	}
	pd, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		return nil, err
	}

	d := *websocket.DefaultDialer
	d.Proxy = nil
	if cd, ok := pd.(proxy.ContextDialer); ok {
		d.NetDialContext = cd.DialContext
	} else {
		d.NetDial = pd.Dial
	}
	return &d, nil
}

func runStorm(ctx context.Context, config Config, dialer *websocket.Dialer) *Stats {
	stats := &Stats{Latencies: make([]time.Duration, 0, 10000)}
	commands := readCommands
	if config.Faults {
		commands = append(slices.Clone(readCommands), faultCommands...)
	}

	var wg sync.WaitGroup
	fmt.Println("\nStarting clients...")
	for i := 0; i < config.NumClients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			runClient(ctx, clientID, dialer, config, commands, stats)
		}(i)

		// Stagger client starts to avoid thundering herd
		time.Sleep(10 * time.Millisecond)
	}
	fmt.Printf("All %d clients started\n\n", config.NumClients)

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Printf("Progress: sent=%d results=%d broadcasts=%d limited=%d errors=%d\n",
					atomic.LoadInt64(&stats.CommandsSent),
					atomic.LoadInt64(&stats.ResultsReceived),
					atomic.LoadInt64(&stats.Broadcasts),
					atomic.LoadInt64(&stats.RateLimited),
					atomic.LoadInt64(&stats.Errors))
			}
		}
	}()

	wg.Wait()
	return stats
}

func runClient(ctx context.Context, clientID int, dialer *websocket.Dialer, config Config, commands []string, stats *Stats) {
	conn, _, err := dialer.DialContext(ctx, config.ServerURL, nil)
	if err != nil {
		log.Printf("Client %d: connection failed: %v", clientID, err)
		atomic.AddInt64(&stats.Errors, 1)
		return
	}
	defer conn.Close()

	pending := newRoundTrips()
	var seq uint64

	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var res network.CommandResult
			if json.Unmarshal(raw, &res) != nil || res.Type != network.CommandResultType {
				atomic.AddInt64(&stats.Broadcasts, 1)
				continue
			}

			atomic.AddInt64(&stats.ResultsReceived, 1)
			if rtt, ok := pending.received(res.Seq, time.Now()); ok {
				stats.addLatency(rtt)
			}

			switch {
			case res.Error == network.ErrRateLimited.Error():
				atomic.AddInt64(&stats.RateLimited, 1)
			case res.Error != "":
				atomic.AddInt64(&stats.CommandErrors, 1)
			}
		}
	}()

	ticker := time.NewTicker(config.CommandInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			atomic.AddInt64(&stats.Unanswered, int64(pending.outstanding()))
			return
		case <-ticker.C:
			seq++
			req := network.CommandRequest{Command: commands[rand.IntN(len(commands))], Seq: seq}

			pending.sent(seq, time.Now())

			if err := conn.WriteJSON(req); err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				return
			}
			atomic.AddInt64(&stats.CommandsSent, 1)
		}
	}
}

func printResults(stats *Stats, config Config, elapsed time.Duration) {
	fmt.Println("\n=========================================")
	fmt.Println("FAULT STORM RESULTS")
	fmt.Println("=========================================")

	sent := atomic.LoadInt64(&stats.CommandsSent)
	recv := atomic.LoadInt64(&stats.ResultsReceived)
	limited := atomic.LoadInt64(&stats.RateLimited)
	cmdErrs := atomic.LoadInt64(&stats.CommandErrors)
	errs := atomic.LoadInt64(&stats.Errors)

	fmt.Printf("Commands Sent:     %d\n", sent)
	fmt.Printf("Results Received:  %d\n", recv)
	fmt.Printf("Broadcasts:        %d\n", atomic.LoadInt64(&stats.Broadcasts))
	fmt.Printf("Rate Limited:      %d\n", limited)
	fmt.Printf("Command Errors:    %d\n", cmdErrs)
	fmt.Printf("Unanswered:        %d\n", atomic.LoadInt64(&stats.Unanswered))
	fmt.Printf("Transport Errors:  %d\n", errs)

	throughput := float64(sent) / elapsed.Seconds()
	fmt.Printf("Throughput:        %.2f cmd/sec\n", throughput)

	stats.mu.Lock()
	latencies := slices.Clone(stats.Latencies)
	stats.mu.Unlock()

	var p50, p99, worst time.Duration
	if len(latencies) > 0 {
		slices.Sort(latencies)
		p50 = latencies[len(latencies)/2]
		p99 = latencies[len(latencies)*99/100]
		worst = latencies[len(latencies)-1]
		fmt.Printf("\nRound trip:\n")
		fmt.Printf("  p50: %v\n", p50)
		fmt.Printf("  p99: %v\n", p99)
		fmt.Printf("  Max: %v\n", worst)
	}

	fmt.Println("\n-----------------------------------------")
	errRate := float64(errs) / float64(sent+1)
	switch {
	case errs == 0 && recv >= sent*95/100:
		fmt.Println("PASSED: server answered the storm")
	case errRate < 0.05:
		fmt.Println("WARNING: some commands went unanswered")
	default:
		fmt.Println("FAILED: high error rate")
	}
	fmt.Println(strings.Repeat("=", 41))

	results := map[string]interface{}{
		"commands_sent":      sent,
		"results_received":   recv,
		"rate_limited":       limited,
		"command_errors":     cmdErrs,
		"unanswered":         atomic.LoadInt64(&stats.Unanswered),
		"errors":             errs,
		"throughput_per_sec": throughput,
		"latency_p50":        p50.String(),
		"latency_p99":        p99.String(),
		"latency_max":        worst.String(),
		"config": map[string]interface{}{
			"clients":  config.NumClients,
			"interval": config.CommandInterval.String(),
			"duration": config.TestDuration.String(),
			"faults":   config.Faults,
		},
	}

	jsonData, _ := json.MarshalIndent(results, "", "  ")
	if err := os.WriteFile(config.ResultsFile, jsonData, 0644); err != nil {
		log.Printf("Failed to save results: %v", err)
		return
	}
	fmt.Printf("\nResults saved to %s\n", config.ResultsFile)
}
