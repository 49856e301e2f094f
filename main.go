package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pyrohost/pyro-node-agent/internal/config"
	"github.com/pyrohost/pyro-node-agent/internal/dockerengine"
	"github.com/pyrohost/pyro-node-agent/internal/eggs"
	"github.com/pyrohost/pyro-node-agent/internal/eventbus"
	"github.com/pyrohost/pyro-node-agent/internal/fileservice"
	"github.com/pyrohost/pyro-node-agent/internal/httpapi"
	"github.com/pyrohost/pyro-node-agent/internal/instance"
	"github.com/pyrohost/pyro-node-agent/internal/lifecycle"
	"github.com/pyrohost/pyro-node-agent/internal/panel"
	"github.com/pyrohost/pyro-node-agent/internal/reconciler"
	"github.com/pyrohost/pyro-node-agent/internal/scheduler"
	"github.com/pyrohost/pyro-node-agent/internal/statshistory"
)

func main() {
	appConfig := config.LoadAppConfig() // loads the config and stores a pointer
	logger := appConfig.NewLogger()     // return a logger (slog) based on `LogFormat` (text or json)

	logger.Info("pyro node agent starting",
		"port", appConfig.Port,
		"data_dir", appConfig.DataDir,
		"log_format", appConfig.LogFormat,
	)

	// the daemon's persisted state lives entirely under DataDir as four
	// plain directories (eggs/, configs/, servers/, logs/); none of them
	// are optional, so they are created up front rather than lazily by
	// whichever store happens to touch them first.
	for _, dir := range []string{appConfig.EggsDir(), appConfig.ConfigsDir(), appConfig.ServersDir(), appConfig.LogsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("failed to create data directory %q: %v", dir, err)
		}
	}

	// egg registry and instance config store both need to exist before
	// anything else, since every other component either reads through
	// them or validates against them.
	eggRegistry, err := eggs.Open(appConfig.EggsDir(), logger)
	if err != nil {
		log.Fatalf("failed to open egg registry: %v", err)
	}

	configStore, err := instance.Open(appConfig.ConfigsDir(), eggRegistry, logger)
	if err != nil {
		log.Fatalf("failed to open instance config store: %v", err)
	}

	// the stats history store is a SQLite-backed audit trail; if it
	// cannot be opened the daemon can technically still run, but every
	// transition and stats sample would be silently lost, so this fails
	// fast exactly like the database used to in the teacher's control plane.
	history, err := statshistory.Open(appConfig.StatsHistoryDBPath, logger)
	if err != nil {
		log.Fatalf("failed to open stats history store: %v", err)
	}
	defer history.Close()

	// Docker client setup
	dockerClient, err := dockerengine.NewClient(logger)
	if err != nil {
		log.Fatalf("failed to connect to docker daemon: %v", err)
	}
	defer dockerClient.Close()

	bus := eventbus.New(logger)
	containers := dockerengine.NewSupervisor()
	logPipeline := dockerengine.NewLogPipeline(dockerClient, bus, appConfig.LogsDir())
	statsSampler := dockerengine.NewStatsSampler(dockerClient, containers, bus, history)
	notifier := panel.New(appConfig.PanelURL, logger)
	files := fileservice.New(appConfig.ServersDir())

	lifecycleManager := lifecycle.New(
		dockerClient, containers, logPipeline, configStore, bus, history, notifier,
		appConfig.ServersDir(), appConfig.LogsDir(), logger,
	)

	recon := reconciler.New(
		dockerClient, containers, configStore, bus, history, notifier,
		appConfig.LogsDir(), appConfig.LogRetentionDays, logger,
	)

	// background loops: stats sampling and the two reconciler ticks run
	// for the lifetime of the process, canceled together on shutdown.
	backgroundCtx, cancelBackground := context.WithCancel(context.Background())
	go statsSampler.Run(backgroundCtx)
	go recon.RunHealthCheck(backgroundCtx)
	go recon.RunOrphanSweep(backgroundCtx)

	// the retention sweep runs on a calendar schedule (daily at 03:00
	// local time) rather than a ticker, so it is driven by the cron
	// scheduler instead of backgroundCtx's ticker loops.
	jobScheduler := scheduler.New(logger)
	if err := jobScheduler.AddJob(backgroundCtx, "retention-sweep", "0 3 * * *", recon.PruneRetention); err != nil {
		log.Fatalf("failed to register retention sweep job: %v", err)
	}
	jobScheduler.Start()

	// Router setup
	router := httpapi.NewRouter(httpapi.RouterDependencies{
		Logger:    logger,
		Eggs:      eggRegistry,
		Configs:   configStore,
		Lifecycle: lifecycleManager,
		Files:     files,
		Bus:       bus,
		StartedAt: time.Now().UTC(),
	})

	// --- HTTP server construction ---
	//
	// the standard library's http.ListenAndServe is a convenience function
	// that builds an http.Server with infinite timeouts by default. to keep
	// the daemon stable against slow or stalled clients, the server is built
	// explicitly with finite read/write/idle deadlines instead.
	server := &http.Server{
		Addr:         ":" + appConfig.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- graceful shutdown ---
	//
	// the server runs in a goroutine so the main goroutine can block on the
	// signal channel. SIGTERM (an orchestrator's stop) stops accepting new
	// requests and then stops every supervised container, each within its
	// own grace window, before the process exits. SIGINT (Ctrl+C) is an
	// immediate exit: the HTTP server still drains in-flight requests, but
	// running containers are left alone, persisting under the engine's own
	// restart policy.
	shutdownChannel := make(chan error, 1)

	go func() {
		logger.Info("http server listening", "addr", server.Addr)

		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			shutdownChannel <- err
		}
		close(shutdownChannel)
	}()

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("startup complete, server ready to serve", "port", appConfig.Port)

	var receivedSignal os.Signal
	select {
	case sig := <-signalChannel:
		receivedSignal = sig
		logger.Info("shutdown signal received", "signal", sig)
	case err := <-shutdownChannel:
		if err != nil {
			log.Fatalf("http server failed: %v", err)
		}
	}

	// stop accepting new HTTP requests first, with a 10s grace window for
	// in-flight ones.
	shutdownContext, cancelShutdownContext := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdownContext()

	if err := server.Shutdown(shutdownContext); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	} else {
		logger.Info("http server shut down cleanly")
	}

	jobScheduler.Stop()
	cancelBackground()

	if receivedSignal == syscall.SIGINT {
		logger.Info("SIGINT received, exiting immediately and leaving containers under the engine's restart policy")
	} else {
		// every still-supervised container is stopped gracefully, each
		// bounded by its own timeout, so a single stuck server cannot hold
		// up the rest.
		for _, id := range containers.IDs() {
			stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
			if err := lifecycleManager.Stop(stopCtx, id); err != nil {
				logger.Warn("failed to stop instance during shutdown", "instance", id, "error", err)
			}
			cancelStop()
		}
	}

	logger.Info("pyro node agent stopped")
}
