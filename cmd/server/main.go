package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/tailview/backend/internal/broadcast"
	"github.com/tailview/backend/internal/config"
	"github.com/tailview/backend/internal/monitor"
	"github.com/tailview/backend/internal/pricing"
	"github.com/tailview/backend/internal/registry"
	"github.com/tailview/backend/internal/server"
	"github.com/tailview/backend/internal/summary"
	"github.com/tailview/backend/internal/watch"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	projectsDir := flag.String("projects", "", "Override Claude projects directory")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	log := logrus.New()
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *projectsDir != "" {
		cfg.Watch.ProjectsDir = *projectsDir
	}

	table, err := pricing.Load(cfg.Pricing.Path)
	if err != nil {
		log.Fatalf("Failed to load pricing table: %v", err)
	}

	reg := registry.New(cfg.Registry.MaxSessions, cfg.Registry.CatchUpTimeout, log)
	bc := broadcast.New(cfg.Broadcast.QueueSize, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var tracker *summary.Tracker
	if cfg.Summary.Enabled {
		promptTemplate, err := summary.LoadPromptTemplate(cfg.Summary.PromptFile)
		if err != nil {
			log.Fatalf("Failed to load prompt template: %v", err)
		}
		runner := summary.NewRunner(cfg.Summary.Command, promptTemplate,
			cfg.Summary.OutputDir, summary.NewLogWriter(cfg.Summary.LogPath), log)

		tracker = summary.NewTracker(cfg.Summary.IdleThreshold,
			cfg.Summary.StuckCheckInterval, cfg.Summary.StuckTimeout,
			runner.Summarize, reg.Get, log)
		tracker.Start()
		defer tracker.Shutdown()

		if cfg.Summary.MinCLIRuntime > 0 {
			scanner := summary.NewCLIScanner(tracker, reg, runner.Summarize,
				cfg.Summary.MinCLIRuntime, cfg.Summary.ScanInterval, log)
			go scanner.Run(ctx)
		}
	}

	watcher, err := watch.NewWatcher([]string{cfg.Watch.ProjectsDir, cfg.Watch.CodexSessionsDir}, log)
	if err != nil {
		log.Fatalf("Failed to start file watcher: %v", err)
	}
	defer watcher.Close()

	mon := monitor.New(cfg, reg, bc, tracker, log)
	go mon.Start(ctx, watcher.Events())

	srv := server.New(cfg, reg, bc, tracker, table, log)
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("Shutting down...")
		cancel()
		watcher.Close()
		if tracker != nil {
			tracker.Shutdown()
		}
		os.Exit(0)
	}()

	log.Infof("Server listening on %s:%d", cfg.Server.Host, cfg.Server.Port)
	if err := server.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
