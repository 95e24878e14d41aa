// Package main provides the papaya scheduler service that promotes delayed
// jobs into their active queues.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/muaviaUsmani/papaya/internal/config"
	"github.com/muaviaUsmani/papaya/internal/keys"
	"github.com/muaviaUsmani/papaya/internal/logger"
	"github.com/muaviaUsmani/papaya/internal/queue"
	"github.com/muaviaUsmani/papaya/internal/scheduler"
	"github.com/muaviaUsmani/papaya/internal/store"
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

	schedLog := log.WithComponent(logger.ComponentScheduler)
	schedLog.Info("Scheduler starting",
		"interval", cfg.SchedulerInterval,
		"namespace", cfg.Namespace,
		"redis_url", cfg.RedisURL)

	rc, err := store.Connect(cfg.RedisURL)
	if err != nil {
		schedLog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer rc.Close()

	s := store.New(rc, keys.NewNamer(cfg.Namespace))
	sched := scheduler.New(s, queue.New(s), cfg.SchedulerInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sched.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	schedLog.Info("Shutdown signal received", "signal", sig.String())

	cancel()
	schedLog.Info("Scheduler shut down")
}
