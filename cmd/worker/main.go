package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/CihadCengiz/prompt-generator/internal/app"
	"github.com/CihadCengiz/prompt-generator/internal/config"
	"github.com/CihadCengiz/prompt-generator/internal/server"
	temporalmod "github.com/CihadCengiz/prompt-generator/internal/temporal"
)

func main() {
	configPath := flag.String("config", "", "Config file path (YAML, optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := cfg.Log.NewLogger(os.Stderr)

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}

	temporalmod.SetDependencies(&temporalmod.Dependencies{Pipeline: a.Pipeline})

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		_ = a.Close(ctx)
		return fmt.Errorf("temporal client: %w", err)
	}

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		c.Close()
		_ = a.Close(ctx)
		return fmt.Errorf("worker: %w", err)
	}
	logger.Info("worker started", "task_queue", cfg.Temporal.TaskQueue, "namespace", cfg.Temporal.Namespace)

	shutdown := server.NewShutdownHandler(&server.ShutdownConfig{
		Timeout: cfg.Server.ShutdownTimeout,
		Logger:  logger,
	})
	shutdown.Register(server.TemporalWorkerShutdownHook(w.Stop))
	shutdown.RegisterHook("temporal-client", server.PriorityWorker+1, func(context.Context) error {
		c.Close()
		return nil
	})
	a.RegisterShutdown(shutdown)
	shutdown.Start()
	shutdown.Wait()

	logger.Info("worker stopped")
	return nil
}
