package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ringline/alertcall/internal/ami"
	"github.com/ringline/alertcall/internal/bridge"
	"github.com/ringline/alertcall/internal/config"
	"github.com/ringline/alertcall/internal/dispatch"
	"github.com/ringline/alertcall/internal/fanout"
	"github.com/ringline/alertcall/internal/monitor"
	"github.com/ringline/alertcall/internal/storage"
	"github.com/ringline/alertcall/internal/stream"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := buildLogger(cfg.Log.Level)
	defer logger.Sync()

	// Optional dispatch journal with scheduled retention sweeps.
	var history storage.CallHistory
	if cfg.History.Path != "" {
		h, err := storage.NewSQLiteCallHistory(logger, cfg.History.Path)
		if err != nil {
			logger.Fatal("Failed to open call history", zap.Error(err))
		}
		defer h.Close()
		history = h

		janitor, err := storage.NewJanitor(h, cfg.History.CleanupSchedule, cfg.History.Retention, logger)
		if err != nil {
			logger.Fatal("Invalid history cleanup schedule", zap.Error(err))
		}
		janitor.Start()
		defer janitor.Stop()
	}

	// Optional NATS fanout of received and dispatched alerts.
	var pub *fanout.Publisher
	if cfg.Fanout.URL != "" {
		nc, err := nats.Connect(cfg.Fanout.URL,
			nats.Name("alertcall"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
				logger.Warn("NATS disconnected", zap.Error(err))
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
			}))
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer nc.Close()

		js, err := nc.JetStream()
		if err != nil {
			logger.Fatal("Failed to create JetStream context", zap.Error(err))
		}
		pub, err = fanout.NewPublisher(js, logger)
		if err != nil {
			logger.Fatal("Failed to create alert publisher", zap.Error(err))
		}
	}

	var webhook *dispatch.WebhookSender
	if cfg.Webhook.URL != "" {
		webhook = dispatch.NewWebhookSender(cfg.Webhook.URL, logger)
	}

	creds := ami.Credentials{
		Host:     cfg.AMI.Host,
		Port:     cfg.AMI.Port,
		Username: cfg.AMI.Username,
		Secret:   cfg.AMI.Secret,
	}
	dispatcher := dispatch.NewDispatcher(dispatch.CallConfig{
		Channel:   cfg.Call.DialString,
		Exten:     cfg.Call.Extension,
		Context:   cfg.Call.Context,
		Priority:  cfg.Call.Priority,
		CallerID:  cfg.Call.CallerID,
		Timeout:   cfg.Call.Timeout(),
		Threshold: cfg.Bridge.DispatchThreshold,
	}, func() dispatch.Session {
		return ami.NewClient(creds, logger)
	}, webhook, pub, history, logger)

	subscriber := stream.NewSubscriber(cfg.Ntfy.URL, cfg.Ntfy.Topic, cfg.Ntfy.Auth, dispatcher, logger)
	supervisor := bridge.NewSupervisor(subscriber, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	health := monitor.NewHealthReporter(cfg.Monitor.Interval, logger)
	health.Start(ctx)
	defer health.Stop()

	logger.Info("Starting alert bridge",
		zap.String("ntfy_url", cfg.Ntfy.URL),
		zap.String("topic", cfg.Ntfy.Topic),
		zap.String("ami_host", cfg.AMI.Host),
		zap.String("extension", cfg.Call.Extension))

	if err := supervisor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Bridge stopped unexpectedly", zap.Error(err))
	}

	logger.Info("Bridge shut down gracefully")
}

func buildLogger(level string) *zap.Logger {
	lvl, err := zap.ParseAtomicLevel(strings.ToLower(level))
	if err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	logCfg := zap.NewProductionConfig()
	logCfg.Level = lvl

	logger, err := logCfg.Build()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	return logger
}
