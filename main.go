package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	network "smartflow/communication"
	"smartflow/lights"
	"smartflow/manager"
	"smartflow/web"

	"golang.org/x/sync/errgroup"
)

func main() {
	modeName := flag.String("mode", "intersection", "Layout to simulate (intersection or motorway)")
	vehicles := flag.Int("vehicles", 0, "Stop spawning after this many vehicles (0 = no limit)")
	batch := flag.Int("batch", 15, "Vehicles spawned per batch")
	interval := flag.Duration("interval", time.Second, "Time between spawn batches")
	emergencyRate := flag.Float64("emergency-rate", -1, "Chance of an emergency vehicle (negative = mode default)")
	duration := flag.Duration("duration", 0, "Stop the run after this long (0 = until interrupted)")
	cycle := flag.Duration("cycle", lights.DefaultCycle, "Traffic light phase length")
	tick := flag.Duration("tick", 16*time.Millisecond, "Vehicle control loop period")
	webAddr := flag.String("web", ":8080", "Web interface address (empty to disable)")
	feedAddr := flag.String("feed", "localhost:5555", "Snapshot feed address (empty to disable)")
	statsDir := flag.String("stats", "statistics", "Directory for benchmark results")
	width := flag.Float64("width", 0, "Layout width (0 = mode default)")
	height := flag.Float64("height", 0, "Layout height (0 = mode default)")
	seed := flag.Uint64("seed", 0, "Spawner seed (0 = time based)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		slog.Error("invalid log level", "level", *logLevel, "error", err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	mode, err := manager.ParseMode(*modeName)
	if err != nil {
		logger.Error("invalid mode", "error", err)
		os.Exit(2)
	}

	w, h := 800.0, 800.0
	if mode == manager.ModeMotorway {
		w, h = 1200.0, 600.0
	}
	if *width > 0 {
		w = *width
	}
	if *height > 0 {
		h = *height
	}

	tm := manager.NewTrafficManager(mode, w, h)
	tm.SetLogger(logger)
	tm.Tick = *tick
	tm.Lights.Period = *cycle

	cfg := manager.DefaultSpawnConfig(mode)
	cfg.BatchSize = *batch
	cfg.Interval = *interval
	cfg.Total = *vehicles
	if *emergencyRate >= 0 {
		cfg.EmergencyRate = *emergencyRate
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	spawner := manager.NewSpawner(tm, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	logger.Info("starting run", "run", tm.RunID, "mode", mode, "width", w, "height", h)
	tm.StartBenchmark(string(mode))

	g, ctx := errgroup.WithContext(ctx)

	if mode == manager.ModeMotorway {
		g.Go(func() error { return tm.Lights.Run(ctx) })
	}
	g.Go(func() error { return spawner.Run(ctx) })
	g.Go(func() error { return tm.RunMetrics(ctx, time.Second) })

	if *webAddr != "" {
		webServer := web.NewWebServer(tm)
		webServer.Logger = logger
		webServer.StatsDir = *statsDir
		g.Go(func() error { return webServer.Start(ctx, *webAddr) })
	}

	if *feedAddr != "" {
		feed := network.NewFeed(tm)
		feed.Logger = logger
		g.Go(func() error { return feed.ListenAndServe(ctx, *feedAddr) })
	}

	err = g.Wait()

	logger.Info("shutting down")
	tm.StopAll()
	tm.Wait()
	tm.RecordBenchmarkMetrics()

	if _, _, saveErr := tm.SaveBenchmarkResults(*statsDir); saveErr != nil {
		logger.Error("failed to save benchmark results", "error", saveErr)
	}

	if err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}
