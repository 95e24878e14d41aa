// Package main provides the papaya worker service for processing queued jobs.
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof" // #nosec G108 - pprof on a separate debug port
	"os"
	"os/signal"
	"syscall"

	"github.com/muaviaUsmani/papaya/internal/config"
	"github.com/muaviaUsmani/papaya/internal/keys"
	"github.com/muaviaUsmani/papaya/internal/logger"
	"github.com/muaviaUsmani/papaya/internal/queue"
	"github.com/muaviaUsmani/papaya/internal/scheduler"
	"github.com/muaviaUsmani/papaya/internal/store"
	"github.com/muaviaUsmani/papaya/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := log.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close logger: %v\n", err)
		}
	}()
	logger.SetDefault(log)

	workerLog := log.WithComponent(logger.ComponentWorker)
	workerLog.Info("Worker starting",
		"concurrency", cfg.WorkerConcurrency,
		"job_timeout", cfg.JobTimeout,
		"namespace", cfg.Namespace,
		"redis_url", cfg.RedisURL)

	// pprof server on a separate port for profiling
	pprofPort := os.Getenv("PPROF_PORT")
	if pprofPort == "" {
		pprofPort = "6061"
	}
	go func() {
		if err := http.ListenAndServe("localhost:"+pprofPort, nil); err != nil {
			workerLog.Warn("pprof server exited", "error", err)
		}
	}()

	rc, err := store.Connect(cfg.RedisURL)
	if err != nil {
		workerLog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer rc.Close()

	s := store.New(rc, keys.NewNamer(cfg.Namespace))
	q := queue.New(s)
	outcome := worker.NewOutcomeProcessor(s, q)

	registry := worker.NewRegistry()
	mustRegister := func(name string, h worker.Handler) {
		if err := registry.Register(name, h); err != nil {
			workerLog.Error("Failed to register handler", "job_name", name, "error", err)
			os.Exit(1)
		}
	}
	mustRegister("send_email", worker.HandleSendEmail)
	mustRegister("echo", worker.HandleEcho)

	w, err := worker.New(registry, q, outcome,
		worker.WithConcurrency(cfg.WorkerConcurrency),
		worker.WithPopTimeout(cfg.PopTimeout))
	if err != nil {
		workerLog.Error("Failed to create worker", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)

	// Optionally run the scheduler in-process so delayed jobs promote even
	// without a dedicated scheduler deployment
	if cfg.SchedulerEnabled {
		sched := scheduler.New(s, q, cfg.SchedulerInterval)
		go sched.Start(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	workerLog.Info("Shutdown signal received", "signal", sig.String())

	cancel()
	w.Dispose()
	workerLog.Info("Worker shut down")
}
