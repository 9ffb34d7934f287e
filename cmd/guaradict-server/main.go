// Command guaradict-server is the bootstrap entrypoint for a single
// guaradict node: it loads NodeConfig, wires the Dictionary,
// OperationLog, Synchronizer, ClientServer, ReplicaMonitor, optional
// OperationShipper, and diagnostics HTTP server together, and runs
// until SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/guarapi/guaradict/internal/clientserver"
	"github.com/guarapi/guaradict/internal/config"
	"github.com/guarapi/guaradict/internal/dictionary"
	"github.com/guarapi/guaradict/internal/diagnostics"
	"github.com/guarapi/guaradict/internal/oplog"
	"github.com/guarapi/guaradict/internal/replica"
	"github.com/guarapi/guaradict/internal/shipper"
	"github.com/guarapi/guaradict/internal/synchronizer"
	"github.com/guarapi/guaradict/internal/telemetry"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		tp, err := telemetry.InitTracer(ctx, "guaradict-server", endpoint)
		if err != nil {
			logger.Error("failed to init OTel tracer", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
			logger.Info("OTel tracer initialized", zap.String("endpoint", endpoint))
		}
	}

	dict := dictionary.New()
	log := oplog.New()
	registry := replica.NewRegistry(cfg.ReplicaMap())

	events := make(chan synchronizer.Event, synchronizer.DefaultChannelCapacity)

	var onAppend synchronizer.AppendedFunc
	var ship *shipper.Shipper
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.RetryOnFailedConnect(true), nats.MaxReconnects(-1))
		if err != nil {
			logger.Error("failed to connect to NATS, shipping disabled", zap.Error(err))
		} else {
			js, err := nc.JetStream()
			if err != nil {
				logger.Error("failed to init JetStream, shipping disabled", zap.Error(err))
				nc.Close()
			} else {
				if err := shipper.ProvisionStream(js, logger); err != nil {
					logger.Error("failed to provision oplog stream, shipping disabled", zap.Error(err))
				} else {
					ship = shipper.New(js, cfg.Name, logger)
					onAppend = ship.Enqueue
					defer nc.Drain()
				}
			}
		}
	}

	sync := synchronizer.New(log, events, logger, onAppend)
	go sync.Run()

	if ship != nil {
		go ship.Run(ctx)
	}

	monitor := replica.NewMonitor(registry, logger)
	go monitor.Run(ctx)

	diag := diagnostics.New(cfg.DiagnosticsAddr, log, registry, logger)
	go func() {
		if err := diag.Start(ctx); err != nil {
			logger.Error("diagnostics server failed", zap.Error(err))
		}
	}()

	srv := clientserver.New(cfg.ListenAddr, dict, events, logger)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Fatal("client server failed", zap.Error(err))
	}

	logger.Info("guaradict-server shut down cleanly")
}
