// Command casinoctl connects to a casino service, reports connection health
// and metrics over HTTP, and optionally issues a single request.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/casino-client/internal/config"
	"github.com/rickgao/casino-client/internal/database"
	"github.com/rickgao/casino-client/internal/metrics"
	"github.com/rickgao/casino-client/internal/telemetry"
	"github.com/rickgao/casino-client/internal/version"
	"github.com/rickgao/casino-client/pkg/connection"
	"github.com/rickgao/casino-client/pkg/events"
)

func main() {
	configPath := flag.String("config", "configs/casinoctl.local.yaml", "path to config file")
	once := flag.String("once", "", "send one request of this packet type, print the response and exit")
	payload := flag.String("payload", "{}", "JSON payload for -once")
	timeout := flag.Duration("timeout", 0, "request timeout for -once (0 = configured default)")
	flag.Parse()

	// Set up structured logging
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting casinoctl",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Connection.Debug {
		level.Set(slog.LevelDebug)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"url", cfg.Connection.URL,
	)

	if err := run(cfg, logger, *once, json.RawMessage(*payload), *timeout); err != nil {
		logger.Error("casinoctl failed", "error", err)
		os.Exit(1)
	}
	logger.Info("casinoctl stopped")
}

func run(cfg *config.ClientConfig, logger *slog.Logger, once string, payload json.RawMessage, timeout time.Duration) error {
	if !json.Valid(payload) {
		return fmt.Errorf("invalid -payload: %s", payload)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	mgr := connection.NewManager(cfg.Connection.ToManagerConfig(),
		connection.WithLogger(logger.With("instance_id", cfg.Instance.ID)),
	)
	logEvents(mgr, logger)

	g, gctx := errgroup.WithContext(ctx)

	// Metrics and health endpoint
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector, err := metrics.New(reg, mgr)
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		defer collector.Close()

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.Handler(reg))
		mux.Handle("/health", healthHandler(mgr))
		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	// Connection event log
	if cfg.Telemetry.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Telemetry.Database.Host,
			"port", cfg.Telemetry.Database.Port,
			"database", cfg.Telemetry.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Telemetry.Database)
		if err != nil {
			return fmt.Errorf("connect telemetry database: %w", err)
		}
		defer pool.Close()

		store := telemetry.NewPGStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}

		writer := telemetry.NewWriter(telemetry.Config{
			BatchSize:       cfg.Telemetry.BatchSize,
			FlushInterval:   cfg.Telemetry.FlushInterval,
			IncludeMessages: cfg.Telemetry.IncludeMessages,
		}, store, mgr.SessionID(), logger)
		writer.Attach(mgr)
		if err := writer.Start(ctx); err != nil {
			return fmt.Errorf("start telemetry writer: %w", err)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			writer.Stop(stopCtx)
		}()
	}

	if once != "" {
		connected := make(chan struct{}, 1)
		mgr.On(events.KindConnected, func(events.Event) {
			select {
			case connected <- struct{}{}:
			default:
			}
		})

		g.Go(func() error {
			defer cancel()
			select {
			case <-connected:
			case <-gctx.Done():
				return nil
			}

			resp, err := mgr.Request(gctx, once, payload, timeout)
			if err != nil {
				return fmt.Errorf("request %s: %w", once, err)
			}
			out, err := resp.Marshal()
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		})
	}

	mgr.Connect()
	logger.Info("casinoctl running",
		"instance_id", cfg.Instance.ID,
		"session", mgr.SessionID(),
	)

	// Wait for shutdown
	<-gctx.Done()
	logger.Info("shutting down...")
	mgr.Disconnect()
	cancel()

	return g.Wait()
}

// logEvents logs lifecycle events. Inbound packets are logged by the manager
// itself when debug is on.
func logEvents(mgr *connection.Manager, logger *slog.Logger) {
	mgr.On(events.KindConnected, func(events.Event) {
		logger.Info("connection established")
	})
	mgr.On(events.KindDisconnected, func(events.Event) {
		logger.Info("connection closed")
	})
	mgr.On(events.KindReconnecting, func(ev events.Event) {
		logger.Info("reconnect scheduled", "attempt", ev.Attempt)
	})
	mgr.On(events.KindError, func(ev events.Event) {
		logger.Warn("transport error", "kind", metrics.ErrorKind(ev.Err), "error", ev.Err)
	})
	mgr.On(events.KindPing, func(ev events.Event) {
		logger.Debug("keepalive", "latency", ev.Latency)
	})
}
