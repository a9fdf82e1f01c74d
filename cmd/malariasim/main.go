// Command malariasim runs the malaria transmission simulation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/talgya/malaria-world/internal/api"
	"github.com/talgya/malaria-world/internal/config"
	"github.com/talgya/malaria-world/internal/engine"
	"github.com/talgya/malaria-world/internal/entropy"
	"github.com/talgya/malaria-world/internal/observability"
	"github.com/talgya/malaria-world/internal/persistence"
	"github.com/talgya/malaria-world/internal/report"
)

func main() {
	configPath := flag.String("config", "", "YAML file overlaid on the default parameters")
	dbPath := flag.String("db", "data/malaria.db", "SQLite output database; empty disables persistence")
	apiPort := flag.Int("port", 8080, "HTTP API port; 0 disables the API")
	maxTicks := flag.Uint64("ticks", 0, "stop after this many ticks; 0 runs until interrupted")
	interval := flag.Duration("interval", 100*time.Millisecond, "wall-clock time per tick at speed 1; 0 runs flat out")
	chartPath := flag.String("chart", "", "write a SEIR chart PNG here on exit")
	seedFlag := flag.Int64("seed", 0, "RNG seed; overrides the config file, 0 keeps it")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("malaria-world: agent-based malaria transmission")

	// ── Configuration ─────────────────────────────────────────────────
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		slog.Info("config loaded", "path", *configPath)
	}

	seed := resolveSeed(&cfg, *seedFlag, entropy.NewClient(os.Getenv("RANDOM_ORG_API_KEY")))

	// ── Simulation ────────────────────────────────────────────────────
	sim, err := engine.NewSimulation(cfg, seed)
	if err != nil {
		slog.Error("failed to build simulation", "error", err)
		os.Exit(1)
	}
	st := sim.Stats()
	slog.Info("world ready",
		"seed", seed,
		"grid", fmt.Sprintf("%dx%d", cfg.Grid.Width, cfg.Grid.Height),
		"humans", humanize.Comma(int64(st.Humans.Total())),
		"mosquitoes", humanize.Comma(int64(st.Mosquitoes.Total())),
		"houses", st.Houses,
		"water_bodies", st.WaterBodies,
	)

	// ── Database ──────────────────────────────────────────────────────
	var db *persistence.DB
	var recorder *persistence.Recorder
	if *dbPath != "" {
		if dir := filepath.Dir(*dbPath); dir != "." {
			os.MkdirAll(dir, 0755)
		}
		db, err = persistence.Open(*dbPath)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.SaveRun(cfg, seed); err != nil {
			slog.Error("failed to save run metadata", "error", err)
			os.Exit(1)
		}
		sim.HoldEvents()
		recorder = persistence.NewRecorder(db)
		if err := recorder.Record(sim); err != nil {
			slog.Error("initial record failed", "error", err)
		}
		slog.Info("database opened", "path", *dbPath)
	}

	// ── Metrics ───────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewSimCollector(reg)
	if err != nil {
		slog.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}
	metrics.Update(st)

	// ── Engine ────────────────────────────────────────────────────────
	eng := engine.NewEngine(cfg.Clock.TicksPerDay)
	eng.Interval = *interval
	eng.MaxTicks = *maxTicks

	eng.OnTick = func(uint64) {
		start := time.Now()
		sim.Step()
		metrics.ObserveTick(time.Since(start))
	}
	eng.OnDay = func(uint64) {
		metrics.Update(sim.Stats())
		if recorder != nil {
			if err := recorder.Record(sim); err != nil {
				slog.Error("daily record failed", "error", err)
			}
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	var apiServer *api.Server
	if *apiPort > 0 {
		adminKey := os.Getenv("MALARIA_ADMIN_KEY")
		if adminKey == "" {
			slog.Warn("MALARIA_ADMIN_KEY not set, admin POST endpoints will be disabled")
		}
		apiServer = &api.Server{
			Sim:      sim,
			Eng:      eng,
			DB:       db,
			Metrics:  metrics,
			Port:     *apiPort,
			AdminKey: adminKey,
		}
		apiServer.Start()
	}

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	if apiServer != nil {
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", *apiPort)
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run()

	// Samples stay one per completed day; only the trailing events are saved.
	final := sim.Stats()
	metrics.Update(final)
	if recorder != nil {
		if _, err := recorder.FlushEvents(sim); err != nil {
			slog.Error("final event flush failed", "error", err)
		}
	}

	if *chartPath != "" {
		if err := report.WriteSEIR(*chartPath, sim.History()); err != nil {
			slog.Error("chart failed", "path", *chartPath, "error", err)
		} else {
			slog.Info("chart written", "path", *chartPath)
		}
	}

	if apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(ctx); err != nil {
			slog.Error("API shutdown failed", "error", err)
		}
	}

	fmt.Printf("Simulation stopped at %s: %d humans (%d infected, %d dead), %s mosquitoes.\n",
		engine.SimTime(final.Tick, cfg.Clock.TicksPerDay),
		final.Humans.Total(), final.Humans.Infected, final.HumanDeaths,
		humanize.Comma(int64(final.Mosquitoes.Total())))
}

// resolveSeed picks the run's seed: the -seed flag, then the config file,
// then a freshly drawn one. The result is written back into cfg so the
// stored config replays the run.
func resolveSeed(cfg *config.Config, flagSeed int64, client *entropy.Client) int64 {
	if flagSeed != 0 {
		cfg.Seed = flagSeed
	}
	cfg.Seed = entropy.Seed(client, cfg.Seed)
	return cfg.Seed
}
