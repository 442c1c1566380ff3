// Package main implements the entry point for the telemetry gateway.
// The gateway ingests protobuf uplinks from devices over CoAP, streams
// decoded telemetry to WebSocket subscribers, persists it to the backend
// and answers every device with the current downlink policy.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/telemetrygate/config"
	"github.com/c360/telemetrygate/errors"
	coapgw "github.com/c360/telemetrygate/gateway/coap"
	httpgw "github.com/c360/telemetrygate/gateway/http"
	"github.com/c360/telemetrygate/health"
	"github.com/c360/telemetrygate/hub"
	"github.com/c360/telemetrygate/ingest"
	"github.com/c360/telemetrygate/metric"
	natsout "github.com/c360/telemetrygate/output/nats"
	"github.com/c360/telemetrygate/persist"
	"github.com/c360/telemetrygate/pkg/retry"
	"github.com/c360/telemetrygate/store/supabase"
	"github.com/c360/telemetrygate/wire"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "telemetrygate"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Gateway failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting telemetry gateway",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := metric.NewMetricsRegistry()
	monitor := health.NewMonitor()

	metricsSrv := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
	if cfg.Metrics.Port >= 0 {
		if err := metricsSrv.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer stopQuietly("metrics", metricsSrv.Stop, cliCfg.ShutdownTimeout)
	}

	liveHub := hub.New(hub.Options{
		QueueSize:    cfg.Live.QueueSize,
		PingInterval: cfg.PingInterval(),
		Logger:       logger,
		Registry:     registry,
	})
	defer liveHub.Close()
	monitor.UpdateHealthy("hub", "accepting subscribers")

	persister, err := setupPersistence(cfg, logger, registry, monitor)
	if err != nil {
		return err
	}

	mirror, natsConn, err := setupMirror(ctx, cfg, logger, registry, monitor)
	if err != nil {
		return err
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	policy, err := cfg.DownlinkPolicy()
	if err != nil {
		return fmt.Errorf("downlink policy: %w", err)
	}

	orchestrator := ingest.New(liveHub, persister, ingest.Options{
		Policy:   policy,
		Logger:   logger,
		Registry: registry,
		Mirror:   mirror,
	})

	intake, err := coapgw.NewServer(orchestrator, coapgw.Options{
		Addr:   cfg.Intake.Addr,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("create intake listener: %w", err)
	}
	if err := intake.Start(ctx); err != nil {
		return fmt.Errorf("start intake listener: %w", err)
	}
	defer stopQuietly("intake", intake.Stop, cliCfg.ShutdownTimeout)
	monitor.UpdateHealthy("intake", "listening on "+cfg.Intake.Addr)

	live, err := httpgw.NewServer(liveHub, httpgw.Options{
		Addr:    cfg.Live.Addr,
		Token:   cfg.Live.Token,
		Monitor: monitor,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}
	if err := live.Start(ctx); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	defer stopQuietly("http", live.Stop, cliCfg.ShutdownTimeout)

	slog.Info("Gateway running",
		"intake_addr", cfg.Intake.Addr,
		"live_addr", cfg.Live.Addr,
		"metrics_port", cfg.Metrics.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("Shutting down", "signal", sig.String())

	return nil
}

// setupPersistence wires the backend store, or a no-op when the store
// section is empty.
func setupPersistence(
	cfg *config.Config,
	logger *slog.Logger,
	registry *metric.MetricsRegistry,
	monitor *health.Monitor,
) (ingest.Persister, error) {
	if cfg.Store.URL == "" {
		logger.Warn("no backend store configured, uplinks will not be persisted")
		monitor.UpdateDegraded("store", "not configured")
		return noopPersister{}, nil
	}

	client, err := supabase.New(cfg.Store.URL, cfg.Store.Key)
	if err != nil {
		return nil, fmt.Errorf("create store client: %w", err)
	}
	monitor.UpdateHealthy("store", "configured")

	return persist.New(client, persist.Options{
		OpTimeout: cfg.OpTimeout(),
		Logger:    logger,
		Registry:  registry,
	}), nil
}

// setupMirror connects the optional NATS mirror, retrying transient
// connection failures at startup.
func setupMirror(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	registry *metric.MetricsRegistry,
	monitor *health.Monitor,
) (*natsout.Publisher, *nats.Conn, error) {
	if cfg.NATS.URL == "" {
		return nil, nil, nil
	}

	var conn *nats.Conn
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		var connErr error
		conn, connErr = nats.Connect(cfg.NATS.URL,
			nats.Name(appName),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second))
		if connErr != nil {
			return errors.WrapTransient(connErr, "main", "setupMirror", "connect to "+cfg.NATS.URL)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect mirror: %w", err)
	}
	monitor.UpdateHealthy("mirror", "connected to "+cfg.NATS.URL)

	publisher := natsout.New(conn, natsout.Options{
		SubjectPrefix: cfg.NATS.SubjectPrefix,
		Logger:        logger,
		Registry:      registry,
	})
	return publisher, conn, nil
}

func stopQuietly(name string, stop func(time.Duration) error, timeout time.Duration) {
	if err := stop(timeout); err != nil {
		slog.Warn("shutdown step failed", "component", name, "error", err)
	}
}

// noopPersister satisfies the pipeline when no backend is configured.
type noopPersister struct{}

func (noopPersister) Persist(ctx context.Context, rec *wire.UplinkRecord) persist.BatchResult {
	return persist.BatchResult{}
}
