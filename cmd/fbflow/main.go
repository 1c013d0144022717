// Command fbflow launches the function-block runtime: the event-chain
// execution engine plus the OPC UA bridge over its data points.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/fbflow/fbflow/config"
	"github.com/fbflow/fbflow/internal/engine"
	"github.com/fbflow/fbflow/internal/observability"
	"github.com/fbflow/fbflow/internal/opcua"
	"github.com/fbflow/fbflow/internal/telemetry"
)

const (
	defaultConfigPath        = "config/fbflow.yaml"
	telemetryShutdownTimeout = 5 * time.Second
	engineStopTimeout        = 10 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the runtime configuration file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, loadedFromFile, err := config.LoadOrDefault(*configPath)
	if err != nil {
		observability.NewZerolog(os.Stderr, "info").Error("load config", observability.Err(err))
		os.Exit(1)
	}

	logger := observability.NewZerolog(os.Stderr, cfg.Logging.Level)
	observability.SetLogger(logger)
	if !loadedFromFile {
		logger.Info("configuration file not found, using defaults",
			observability.String("path", *configPath))
	}
	logger.Info("configuration initialised",
		observability.String("env", string(cfg.Environment)),
		observability.String("cycle_time", cfg.Runtime.CycleTime.String()),
		observability.Int("queue_capacity", cfg.Runtime.QueueCapacity))

	provider, shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Settings{
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
	})
	if err != nil {
		logger.Error("initialise telemetry", observability.Err(err))
		os.Exit(1)
	}
	metrics, err := telemetry.NewRuntimeMetrics(provider)
	if err != nil {
		logger.Error("register runtime metrics", observability.Err(err))
		os.Exit(1)
	}

	eng := engine.New(engine.Config{
		CycleTime:     cfg.Runtime.CycleTime,
		Deadline:      cfg.Runtime.Deadline,
		QueueCapacity: cfg.Runtime.QueueCapacity,
	}, logger, metrics)

	bridge, err := opcua.NewBridge(cfg.OPCUA, eng, logger, metrics)
	if err != nil {
		logger.Error("initialise opcua bridge", observability.Err(err))
		os.Exit(1)
	}

	var lifecycle conc.WaitGroup
	lifecycle.Go(func() {
		if err := bridge.Run(ctx); err != nil {
			logger.Error("opcua bridge shut down with error", observability.Err(err))
		}
	})

	eng.ChangeExecutionState(engine.CmdStart)
	logger.Info("runtime started",
		observability.String("engine_id", eng.ID()),
		observability.Int("opcua_port", cfg.OPCUA.Port))

	<-ctx.Done()
	logger.Info("shutdown signal received")

	eng.ChangeExecutionState(engine.CmdStop)
	joined := make(chan struct{})
	go func() {
		eng.Join()
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(engineStopTimeout):
		logger.Warn("engine did not stop in time")
	}

	lifecycle.Wait()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer cancelShutdown()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown", observability.Err(err))
	}
	logger.Info("runtime stopped")
}
