// Package main is the entry point for the ChernOS reactor control room server.
// It only handles dependency injection and server initialization.
// NO business logic belongs here.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	"github.com/MRamiBalles/ChernOS/internal/audio"
	"github.com/MRamiBalles/ChernOS/internal/domain/network"
	"github.com/MRamiBalles/ChernOS/internal/engine"
	"github.com/MRamiBalles/ChernOS/internal/events"
	"github.com/MRamiBalles/ChernOS/internal/infra/storage"
	hub "github.com/MRamiBalles/ChernOS/internal/network"
	"github.com/MRamiBalles/ChernOS/internal/platform/config"
	"github.com/MRamiBalles/ChernOS/internal/platform/logger"
	"github.com/MRamiBalles/ChernOS/internal/platform/metrics"
	"github.com/MRamiBalles/ChernOS/internal/plugins"
	"github.com/MRamiBalles/ChernOS/internal/terminal"
	"github.com/MRamiBalles/ChernOS/internal/theme"
)

func main() {
	configPath := flag.String("config", "", "CUE configuration file (defaults apply when empty)")
	flag.Parse()

	log.Println("[REACTOR-SERVER] Initializing ChernOS 2.0 control room...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[REACTOR-SERVER] %v", err)
	}

	appLogger, err := logger.New(logger.Options{
		Level:    logger.ParseLevel(cfg.Log.Level),
		JSONFile: cfg.Log.JSONFile,
		Journal:  cfg.Log.Journal,
	})
	if err != nil {
		log.Fatalf("[REACTOR-SERVER] logger: %v", err)
	}
	defer appLogger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.Error("Server failed", "error", err)
		stop()
		appLogger.Close()
		os.Exit(1)
	}
	log.Println("[REACTOR-SERVER] Shut down cleanly.")
}

func run(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) error {
	m := metrics.Get()

	appLogger.Info("Initializing SQLite database", "path", cfg.Storage.Path)
	db, err := storage.InitSQLite(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize SQLite: %w", err)
	}
	defer db.Close()
	prefRepo := storage.NewSQLitePreferenceRepository(db)
	journalRepo := storage.NewSQLiteJournalRepository(db)

	prefs, err := prefRepo.Load(ctx)
	if err != nil {
		appLogger.Warn("Using default preferences", "error", err)
	}

	appLogger.Info("Bootstrapping Message Bus and Journal...")
	bus := events.NewBus(appLogger, m)
	journal := events.NewJournal(journalRepo, events.DefaultJournalLimit, appLogger, m)
	journal.Attach(bus)
	defer journal.Close()

	appLogger.Info("Bootstrapping Engine Subsystems...")
	sim := cfg.Simulation
	eng := engine.NewEngine(bus, appLogger, m, engine.Options{
		Seed:          uint64(sim.Seed),
		AutoFaults:    sim.AutoFaults,
		AutoFaultRate: sim.AutoFaultRate,
		NetworkMode:   network.ParseMode(sim.NetworkMode),
		AlphaLatch:    sim.Latches.Alpha,
		BetaLatch:     sim.Latches.Beta,
		GammaLatch:    sim.Latches.Gamma,
	})
	ticker := engine.NewTicker(eng, sim.FrameRate, appLogger, m)

	themes := theme.NewController(ctx, bus, prefRepo, appLogger)
	themes.Attach()

	synth := audio.New(bus, appLogger, audio.Options{SampleRate: cfg.Audio.SampleRate, Soundscape: prefs.Soundscape})
	synth.Attach()
	if cfg.Audio.Enabled {
		if err := synth.EnableSpeaker(); err != nil {
			appLogger.Warn("Audio output unavailable, continuing silent", "error", err)
		}
	}
	synth.Start()
	defer synth.Close()

	appLogger.Info("Loading plugins...", "dir", cfg.Plugins.Dir)
	host := plugins.NewHost(bus, appLogger)
	if err := host.LoadDir(cfg.Plugins.Dir); err != nil {
		appLogger.Warn("Some plugins failed to load", "error", err)
	}
	defer host.Close()

	term := terminal.New(ticker, host, m, appLogger)

	appLogger.Info("Bootstrapping WebSocket Hub...")
	wsHub := hub.NewHub(appLogger, m, cfg.Hub.Tuning())
	wsHub.Attach(bus)

	api := hub.NewOperatorAPI(ticker, term, wsHub, themes, prefRepo, appLogger)
	api.OnPreferences = func(p storage.Preferences) { synth.SetSoundscape(p.Soundscape) }

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS(wsHub, term))
	api.RegisterRoutes(mux)
	hub.NewJournalHandler(journal, journalRepo, appLogger).RegisterRoutes(mux)
	mux.HandleFunc("/metrics", m.Handler())
	mux.HandleFunc("/metrics/prometheus", m.PrometheusHandler())
	if cfg.Server.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.Server.StaticDir)))
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go wsHub.Run(ctx)
	go ticker.Start(ctx)
	defer ticker.Stop()

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if cfg.Server.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConnections)
	}

	errc := make(chan error, 1)
	go func() {
		appLogger.Info("HTTP API & WS Server listening", "addr", ln.Addr().String(), "max_connections", cfg.Server.MaxConnections)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	appLogger.Info("Server running. Press Ctrl+C to exit.")
	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	}

	appLogger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
