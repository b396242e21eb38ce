// Package main runs the control room in a terminal: an in-process engine
// rendered with tcell.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"

	"github.com/MRamiBalles/ChernOS/internal/audio"
	"github.com/MRamiBalles/ChernOS/internal/console"
	"github.com/MRamiBalles/ChernOS/internal/domain/network"
	"github.com/MRamiBalles/ChernOS/internal/engine"
	"github.com/MRamiBalles/ChernOS/internal/events"
	"github.com/MRamiBalles/ChernOS/internal/infra/storage"
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

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[OPERATOR-CONSOLE] %v", err)
	}

	// The screen belongs to tcell; logs only go to the file and journal sinks.
	appLogger, err := logger.New(logger.Options{
		Level:    logger.ParseLevel(cfg.Log.Level),
		Writer:   io.Discard,
		JSONFile: cfg.Log.JSONFile,
		Journal:  cfg.Log.Journal,
	})
	if err != nil {
		log.Fatalf("[OPERATOR-CONSOLE] logger: %v", err)
	}
	defer appLogger.Close()

	screen, err := tcell.NewScreen()
	if err != nil {
		log.Fatalf("[OPERATOR-CONSOLE] screen: %v", err)
	}
	if err := screen.Init(); err != nil {
		log.Fatalf("[OPERATOR-CONSOLE] screen init: %v", err)
	}
	defer screen.Fini()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	bus := events.NewBus(appLogger, m)

	var prefRepo storage.PreferenceRepository
	var prefs storage.Preferences
	if db, err := storage.InitSQLite(cfg.Storage.Path); err != nil {
		appLogger.Warn("Preferences not persisted", "error", err)
		prefs = storage.DefaultPreferences()
	} else {
		defer db.Close()
		repo := storage.NewSQLitePreferenceRepository(db)
		prefRepo = repo
		if prefs, err = repo.Load(ctx); err != nil {
			appLogger.Warn("Using default preferences", "error", err)
		}
	}

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

	host := plugins.NewHost(bus, appLogger)
	term := terminal.New(ticker, host, m, appLogger)
	ui := console.New(screen, bus, term, appLogger)
	ui.Attach()

	themes := theme.NewController(ctx, bus, prefRepo, appLogger)
	themes.OnChange(func(_ theme.Name, p theme.Palette) { ui.SetPalette(p) })
	ui.SetPalette(themes.Current().Palette())
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

	if err := host.LoadDir(cfg.Plugins.Dir); err != nil {
		appLogger.Warn("Some plugins failed to load", "error", err)
	}
	defer host.Close()

	go ticker.Start(ctx)
	defer ticker.Stop()

	ui.Run(ctx)
}
